package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"math"
	"os"
	"sync"

	svg "github.com/ajstarks/svgo"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/llgcode/draw2d/draw2dkit"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

var (
	svgCacheMu sync.Mutex
	svgCache   = make(map[string]*image.RGBA)
)

// drawText draws a string onto an *image.RGBA at (x,y) using the specified font face and color.
func drawText(img *image.RGBA, text string, posX, posY int, face font.Face, clr color.Color, center bool) (finishX, finishY int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(clr),
		Face: face,
	}
	metrics := face.Metrics()

	x := posX
	textWidth := d.MeasureString(text).Round()
	if center {
		x = posX - textWidth/2
	}
	y := posY + metrics.Ascent.Round()

	d.Dot = fixed.P(x, y)
	d.DrawString(text)

	textHeight := metrics.Ascent.Round() + metrics.Descent.Round()
	return x + textWidth, posY + textHeight
}

// drawTextMiddle centers text on (cx, cy) in both directions.
func drawTextMiddle(img *image.RGBA, text string, cx, cy int, face font.Face, clr color.Color) {
	m := face.Metrics()
	h := m.Ascent.Round() + m.Descent.Round()
	drawText(img, text, cx, cy-h/2, face, clr, true)
}

// rasterizeSVG renders an SVG document at w x h. Results are cached by key
// unless key is empty.
func rasterizeSVG(key string, data []byte, w, h int) (*image.RGBA, error) {
	cacheKey := fmt.Sprintf("%s_%d_%d", key, w, h)
	if key != "" {
		svgCacheMu.Lock()
		cached, ok := svgCache[cacheKey]
		svgCacheMu.Unlock()
		if ok {
			return cached, nil
		}
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("svg %s: %w", key, err)
	}
	if w == 0 {
		w = int(icon.ViewBox.W)
	}
	if h == 0 {
		h = int(icon.ViewBox.H)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	icon.Draw(dasher, 1.0)

	if key != "" {
		svgCacheMu.Lock()
		svgCache[cacheKey] = img
		svgCacheMu.Unlock()
	}
	return img, nil
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// progressBarSVG draws the boot progress bar: a white outline with a pill
// filled up to percent.
func progressBarSVG(width, height, percent int, fill color.RGBA) []byte {
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Startview(width, height, 0, 0, width, height)
	r := height / 2
	canvas.Roundrect(1, 1, width-2, height-2, r, r, "fill:none;stroke:white;stroke-width:2")
	inner := (width - 8) * percent / 100
	if inner > 0 {
		ir := (height - 8) / 2
		canvas.Roundrect(4, 4, inner, height-8, ir, ir, "fill:"+hexColor(fill))
	}
	canvas.End()
	return buf.Bytes()
}

// starSVG is a five point star in a size x size box.
func starSVG(size int, fill color.RGBA) []byte {
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Startview(size, size, 0, 0, size, size)
	c := float64(size) / 2
	xs := make([]int, 10)
	ys := make([]int, 10)
	for i := 0; i < 10; i++ {
		r := c
		if i%2 == 1 {
			r = c * 0.45
		}
		a := -math.Pi/2 + float64(i)*math.Pi/5
		xs[i] = int(math.Round(c + r*math.Cos(a)))
		ys[i] = int(math.Round(c + r*math.Sin(a)))
	}
	canvas.Polygon(xs, ys, "fill:"+hexColor(fill))
	canvas.End()
	return buf.Bytes()
}

// heartSVG is a heart drawn in a 12x12 view box.
func heartSVG(fill color.RGBA) []byte {
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Startview(12, 12, 0, 0, 12, 12)
	canvas.Path("M6 11 C6 11 0 7 0 3.5 C0 1.5 1.5 0 3.3 0 C4.6 0 5.5 0.8 6 1.8 "+
		"C6.5 0.8 7.4 0 8.7 0 C10.5 0 12 1.5 12 3.5 C12 7 6 11 6 11 Z", "fill:"+hexColor(fill))
	canvas.End()
	return buf.Bytes()
}

// drawIconCentered blends icon onto frame centered on (cx, cy).
func drawIconCentered(frame, icon *image.RGBA, cx, cy float64) {
	b := icon.Bounds()
	x0 := int(math.Round(cx)) - b.Dx()/2
	y0 := int(math.Round(cy)) - b.Dy()/2
	if err := copyImageToImageAt(frame, icon, x0, y0); err != nil {
		log.Printf("draw icon: %v", err)
	}
}

// copyImageToImageAt alpha blends img onto frame at (x0, y0), clipped to
// frame.
func copyImageToImageAt(frame *image.RGBA, img *image.RGBA, x0, y0 int) error {
	if frame == nil || img == nil {
		return fmt.Errorf("nil image provided")
	}
	targetWidth := img.Bounds().Dx()
	targetHeight := img.Bounds().Dy()
	fb := frame.Bounds()

	for y := 0; y < targetHeight; y++ {
		for x := 0; x < targetWidth; x++ {
			if !(image.Point{x0 + x, y0 + y}).In(fb) {
				continue
			}
			sample := img.RGBAAt(img.Rect.Min.X+x, img.Rect.Min.Y+y)
			if sample.A == 0 {
				continue
			}
			if sample.A == 255 {
				frame.SetRGBA(x0+x, y0+y, sample)
				continue
			}
			// Sample is premultiplied.
			dst := frame.RGBAAt(x0+x, y0+y)
			invA := uint16(255 - sample.A)
			frame.SetRGBA(x0+x, y0+y, color.RGBA{
				R: uint8(uint16(sample.R) + uint16(dst.R)*invA/255),
				G: uint8(uint16(sample.G) + uint16(dst.G)*invA/255),
				B: uint8(uint16(sample.B) + uint16(dst.B)*invA/255),
				A: uint8(uint16(sample.A) + uint16(dst.A)*invA/255),
			})
		}
	}
	return nil
}

// drawRoundedRect adds a rounded rectangle path to gc.
func drawRoundedRect(gc *draw2dimg.GraphicContext, x, y, w, h, r float64) {
	if r > w/2 {
		r = w / 2
	}
	if r > h/2 {
		r = h / 2
	}
	gc.MoveTo(x+r, y)
	gc.LineTo(x+w-r, y)
	gc.ArcTo(x+w-r, y+r, r, r, -math.Pi/2, math.Pi/2)
	gc.LineTo(x+w, y+h-r)
	gc.ArcTo(x+w-r, y+h-r, r, r, 0, math.Pi/2)
	gc.LineTo(x+r, y+h)
	gc.ArcTo(x+r, y+h-r, r, r, math.Pi/2, math.Pi/2)
	gc.LineTo(x, y+r)
	gc.ArcTo(x+r, y+r, r, r, math.Pi, math.Pi/2)
	gc.Close()
}

func fillRoundedRect(gc *draw2dimg.GraphicContext, x, y, w, h, r float64, c color.Color) {
	if w <= 0 || h <= 0 {
		return
	}
	gc.BeginPath()
	drawRoundedRect(gc, x, y, w, h, r)
	gc.SetFillColor(c)
	gc.Fill()
}

func fillCircle(gc *draw2dimg.GraphicContext, cx, cy, r float64, c color.Color) {
	if r <= 0 {
		return
	}
	gc.BeginPath()
	draw2dkit.Circle(gc, cx, cy, r)
	gc.SetFillColor(c)
	gc.Fill()
}

func strokeCircle(gc *draw2dimg.GraphicContext, cx, cy, r, width float64, c color.Color) {
	gc.BeginPath()
	draw2dkit.Circle(gc, cx, cy, r)
	gc.SetLineWidth(width)
	gc.SetStrokeColor(c)
	gc.Stroke()
}

func strokeLine(gc *draw2dimg.GraphicContext, x0, y0, x1, y1, width float64, c color.Color) {
	gc.BeginPath()
	gc.MoveTo(x0, y0)
	gc.LineTo(x1, y1)
	gc.SetLineWidth(width)
	gc.SetStrokeColor(c)
	gc.Stroke()
}

func drawRect(img *image.RGBA, x0, y0, width, height int, c color.Color) {
	draw.Draw(img, image.Rect(x0, y0, x0+width, y0+height), image.NewUniform(c), image.Point{}, draw.Src)
}

func clearFrame(frame *image.RGBA, width int, height int) {
	for i := 0; i < width*height*4; i += 4 {
		frame.Pix[i] = 0
		frame.Pix[i+1] = 0
		frame.Pix[i+2] = 0
		frame.Pix[i+3] = 255
	}
}

func saveFrameToPng(frame *image.RGBA, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(f, frame); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
