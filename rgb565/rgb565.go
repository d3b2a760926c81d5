// Package rgb565 converts between Go images and the packed 16 bit pixel
// format (5 bits red, 6 green, 5 blue) used by SPI TFT panels.
package rgb565

import (
	"image"
	"image/color"
)

// Color is one packed pixel.
type Color uint16

// RGBA implements color.Color. Channels are widened by bit replication so
// full intensity maps to 0xffff.
func (c Color) RGBA() (r, g, b, a uint32) {
	rgba := Unpack(uint16(c))
	return color.RGBA{rgba.R, rgba.G, rgba.B, 255}.RGBA()
}

// Model converts any color to Color.
var Model = color.ModelFunc(func(c color.Color) color.Color {
	if p, ok := c.(Color); ok {
		return p
	}
	r, g, b, _ := c.RGBA()
	return Color(Pack(uint8(r>>8), uint8(g>>8), uint8(b>>8)))
})

// Pack truncates 8 bit channels into one pixel.
func Pack(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// Unpack expands a pixel to opaque 8 bit channels.
func Unpack(p uint16) color.RGBA {
	r := uint8(p>>11) & 0x1f
	g := uint8(p>>5) & 0x3f
	b := uint8(p) & 0x1f
	return color.RGBA{
		R: r<<3 | r>>2,
		G: g<<2 | g>>4,
		B: b<<3 | b>>2,
		A: 255,
	}
}

// Scale dims each channel of p by num/den, the way trail points fade.
func Scale(p uint16, num, den int) uint16 {
	if den <= 0 {
		return p
	}
	r := int(p>>11) & 0x1f
	g := int(p>>5) & 0x3f
	b := int(p) & 0x1f
	return uint16(r*num/den)<<11 | uint16(g*num/den)<<5 | uint16(b*num/den)
}

// FromImage packs the pixels of img inside r, row major. Pixels of r outside
// the image bounds are black.
func FromImage(img image.Image, r image.Rectangle) []uint16 {
	out := make([]uint16, r.Dx()*r.Dy())
	FromImageInto(out, img, r)
	return out
}

// FromImageInto is FromImage writing into dst, which must hold r.Dx()*r.Dy()
// pixels.
func FromImageInto(dst []uint16, img image.Image, r image.Rectangle) {
	w := r.Dx()
	if rgba, ok := img.(*image.RGBA); ok {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			row := (y - r.Min.Y) * w
			for x := r.Min.X; x < r.Max.X; x++ {
				if !(image.Point{x, y}).In(rgba.Rect) {
					dst[row+x-r.Min.X] = 0
					continue
				}
				i := rgba.PixOffset(x, y)
				dst[row+x-r.Min.X] = Pack(rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2])
			}
		}
		return
	}
	b := img.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := (y - r.Min.Y) * w
		for x := r.Min.X; x < r.Max.X; x++ {
			if !(image.Point{x, y}).In(b) {
				dst[row+x-r.Min.X] = 0
				continue
			}
			cr, cg, cb, _ := img.At(x, y).RGBA()
			dst[row+x-r.Min.X] = Pack(uint8(cr>>8), uint8(cg>>8), uint8(cb>>8))
		}
	}
}

// ToRGBA writes a w x h block of packed pixels into dst at (x0, y0), clipped
// to dst's bounds.
func ToRGBA(dst *image.RGBA, x0, y0, w, h int, pixels []uint16) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := image.Point{x0 + x, y0 + y}
			if !p.In(dst.Rect) {
				continue
			}
			dst.SetRGBA(p.X, p.Y, Unpack(pixels[y*w+x]))
		}
	}
}
