package main

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	xdraw "golang.org/x/image/draw"

	"github.com/photonicat/photo_album_display/rgb565"
	"github.com/photonicat/photo_album_display/warp"
)

// TILE_SIZE matches the JPEG MCU the panel firmware used to stream.
const TILE_SIZE = 16

var errDecodeAborted = errors.New("decode aborted by sink")

// jpegScale picks the smallest power of two reduction, up to 8, that makes
// an imgW x imgH picture fit on the screen.
func jpegScale(imgW, imgH, screenW, screenH int) int {
	scale := 1
	for scale < 8 && (imgW/scale > screenW || imgH/scale > screenH) {
		scale *= 2
	}
	return scale
}

// decodePhoto decodes a JPEG and reduces it with jpegScale.
func decodePhoto(r io.Reader, screenW, screenH int) (*image.RGBA, int, error) {
	img, err := jpeg.Decode(r)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNotJPEG, err)
	}
	b := img.Bounds()
	scale := jpegScale(b.Dx(), b.Dy(), screenW, screenH)
	dst := image.NewRGBA(image.Rect(0, 0, (b.Dx()+scale-1)/scale, (b.Dy()+scale-1)/scale))
	if scale == 1 {
		xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	} else {
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	}
	return dst, scale, nil
}

// emitTiles hands img to sink as RGB565 tiles of TILE_SIZE, row by row,
// clipped to screenW x screenH. The pixel buffer is reused between tiles.
func emitTiles(img *image.RGBA, screenW, screenH int, sink warp.TileSink) error {
	bounds := img.Bounds().Intersect(image.Rect(0, 0, screenW, screenH))
	buf := make([]uint16, TILE_SIZE*TILE_SIZE)
	for ty := bounds.Min.Y; ty < bounds.Max.Y; ty += TILE_SIZE {
		for tx := bounds.Min.X; tx < bounds.Max.X; tx += TILE_SIZE {
			r := image.Rect(tx, ty, tx+TILE_SIZE, ty+TILE_SIZE).Intersect(bounds)
			pix := buf[:r.Dx()*r.Dy()]
			rgb565.FromImageInto(pix, img, r)
			if !sink.OnTile(r.Min.X, r.Min.Y, r.Dx(), r.Dy(), pix) {
				return errDecodeAborted
			}
		}
	}
	return nil
}

// drawJPEG decodes r and streams it through sink, top left aligned.
func drawJPEG(r io.Reader, screenW, screenH int, sink warp.TileSink) error {
	img, _, err := decodePhoto(r, screenW, screenH)
	if err != nil {
		return err
	}
	return emitTiles(img, screenW, screenH, sink)
}
