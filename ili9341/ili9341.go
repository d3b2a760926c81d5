// Package ili9341 drives 240x320 ILI9341 class SPI TFT panels in 16 bit
// color mode.
//
// # Wiring
//
// Connect SDA to SPI_MOSI, SCK to SPI_CLK, CS to SPI_CS. DC is required, RST
// and the backlight pin are optional and may be nil.
package ili9341

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/photonicat/photo_album_display/rgb565"
)

const (
	_SWRESET = 0x01
	_SLPOUT  = 0x11
	_INVOFF  = 0x20
	_INVON   = 0x21
	_DISPOFF = 0x28
	_DISPON  = 0x29
	_CASET   = 0x2A
	_RASET   = 0x2B
	_RAMWR   = 0x2C
	_MADCTL  = 0x36
	_COLMOD  = 0x3A
)

// MADCTL bits.
const (
	madMY  = 0x80
	madMX  = 0x40
	madMV  = 0x20
	madBGR = 0x08
)

// Rotation is clock-wise.
type Rotation uint8

const (
	Rotation0 Rotation = iota
	Rotation90
	Rotation180
	Rotation270
)

// Opts holds the panel geometry.
type Opts struct {
	Width, Height int
	// Offsets of the visible area inside controller RAM.
	ColumnOffset, RowOffset int
	Rotation                Rotation
	BGR                     bool
	Invert                  bool
	// Clock defaults to 40MHz.
	Clock physic.Frequency
}

// DefaultOpts is a 240x320 portrait panel mounted upside down, as on the
// photo frame board.
var DefaultOpts = Opts{
	Width:    240,
	Height:   320,
	Rotation: Rotation180,
	BGR:      true,
	Clock:    40 * physic.MegaHertz,
}

// Dev is an open handle to the panel.
type Dev struct {
	c     conn.Conn
	dc    gpio.PinOut
	rst   gpio.PinOut
	bl    gpio.PinOut
	opts  Opts
	rect  image.Rectangle
	maxTx int

	// tx is reused between Blit calls.
	tx []byte
}

var _ display.Drawer = (*Dev)(nil)

// sleep is swapped out by tests.
var sleep = time.Sleep

// New opens a panel on SPI port p and runs the init sequence.
func New(p spi.Port, dc, rst, bl gpio.PinOut, opts *Opts) (*Dev, error) {
	if dc == nil || dc == gpio.INVALID {
		return nil, fmt.Errorf("ili9341: a DC pin is required")
	}
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	if o.Clock == 0 {
		o.Clock = DefaultOpts.Clock
	}
	if o.Width <= 0 || o.Height <= 0 {
		return nil, fmt.Errorf("ili9341: invalid size %dx%d", o.Width, o.Height)
	}
	c, err := p.Connect(o.Clock, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("ili9341: connect: %w", err)
	}
	d := &Dev{
		c:     c,
		dc:    dc,
		rst:   rst,
		bl:    bl,
		opts:  o,
		rect:  image.Rect(0, 0, o.Width, o.Height),
		maxTx: 4096,
	}
	if l, ok := c.(conn.Limits); ok && l.MaxTxSize() > 0 {
		d.maxTx = l.MaxTxSize()
	}
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dev) init() error {
	if d.rst != nil {
		if err := d.rst.Out(gpio.High); err != nil {
			return err
		}
		sleep(5 * time.Millisecond)
		if err := d.rst.Out(gpio.Low); err != nil {
			return err
		}
		sleep(20 * time.Millisecond)
		if err := d.rst.Out(gpio.High); err != nil {
			return err
		}
		sleep(150 * time.Millisecond)
	}
	if err := d.sendCommand(_SWRESET); err != nil {
		return err
	}
	sleep(150 * time.Millisecond)
	if err := d.sendCommand(_SLPOUT); err != nil {
		return err
	}
	sleep(120 * time.Millisecond)
	if err := d.sendCommand(_COLMOD, 0x55); err != nil {
		return err
	}
	if err := d.sendCommand(_MADCTL, d.madctl()); err != nil {
		return err
	}
	inv := byte(_INVOFF)
	if d.opts.Invert {
		inv = _INVON
	}
	if err := d.sendCommand(inv); err != nil {
		return err
	}
	return d.sendCommand(_DISPON)
}

func (d *Dev) madctl() byte {
	var m byte
	switch d.opts.Rotation {
	case Rotation0:
		m = madMX
	case Rotation90:
		m = madMV
	case Rotation180:
		m = madMY
	case Rotation270:
		m = madMX | madMY | madMV
	}
	if d.opts.BGR {
		m |= madBGR
	}
	return m
}

func (d *Dev) String() string {
	return fmt.Sprintf("ili9341.Dev{%s, %s, %s}", d.c, d.dc, d.rect.Max)
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return rgb565.Model
}

// Bounds implements display.Drawer. Min is guaranteed to be {0, 0}.
func (d *Dev) Bounds() image.Rectangle {
	return d.rect
}

// Draw implements display.Drawer.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	r = r.Intersect(d.rect)
	if r.Empty() {
		return nil
	}
	srcRect := image.Rectangle{Min: sp, Max: sp.Add(r.Size())}
	if _, ok := src.(*image.RGBA); !ok {
		tmp := image.NewRGBA(image.Rectangle{Max: r.Size()})
		draw.Draw(tmp, tmp.Bounds(), src, sp, draw.Src)
		src, srcRect = tmp, tmp.Bounds()
	}
	pix := rgb565.FromImage(src, srcRect)
	return d.BlitErr(r.Min.X, r.Min.Y, r.Dx(), r.Dy(), pix)
}

// Blit writes a w x h block of packed pixels at (x, y). Errors are dropped;
// use BlitErr to see them.
func (d *Dev) Blit(x, y, w, h int, pixels []uint16) {
	_ = d.BlitErr(x, y, w, h, pixels)
}

// BlitErr writes a w x h block of packed pixels at (x, y), clipped to the
// panel.
func (d *Dev) BlitErr(x, y, w, h int, pixels []uint16) error {
	if len(pixels) < w*h {
		return fmt.Errorf("ili9341: %dx%d block needs %d pixels, got %d", w, h, w*h, len(pixels))
	}
	r := image.Rect(x, y, x+w, y+h).Intersect(d.rect)
	if r.Empty() {
		return nil
	}
	if err := d.setWindow(r); err != nil {
		return err
	}
	if err := d.sendCommand(_RAMWR); err != nil {
		return err
	}
	n := r.Dx() * r.Dy() * 2
	if cap(d.tx) < n {
		d.tx = make([]byte, n)
	}
	buf := d.tx[:n]
	k := 0
	for py := r.Min.Y; py < r.Max.Y; py++ {
		row := (py - y) * w
		for px := r.Min.X; px < r.Max.X; px++ {
			p := pixels[row+px-x]
			buf[k] = byte(p >> 8)
			buf[k+1] = byte(p)
			k += 2
		}
	}
	return d.sendData(buf)
}

func (d *Dev) setWindow(r image.Rectangle) error {
	x0 := r.Min.X + d.opts.ColumnOffset
	x1 := r.Max.X - 1 + d.opts.ColumnOffset
	y0 := r.Min.Y + d.opts.RowOffset
	y1 := r.Max.Y - 1 + d.opts.RowOffset
	if err := d.sendCommand(_CASET, byte(x0>>8), byte(x0), byte(x1>>8), byte(x1)); err != nil {
		return err
	}
	return d.sendCommand(_RASET, byte(y0>>8), byte(y0), byte(y1>>8), byte(y1))
}

// Fill paints the whole panel with one color.
func (d *Dev) Fill(c uint16) error {
	row := make([]uint16, d.rect.Dx())
	for i := range row {
		row[i] = c
	}
	for y := 0; y < d.rect.Dy(); y++ {
		if err := d.BlitErr(0, y, len(row), 1, row); err != nil {
			return err
		}
	}
	return nil
}

// EnableBacklight switches the backlight pin, if one is wired.
func (d *Dev) EnableBacklight(on bool) error {
	if d.bl == nil {
		return nil
	}
	return d.bl.Out(gpio.Level(on))
}

// Halt implements conn.Resource. It turns the display off.
func (d *Dev) Halt() error {
	if err := d.EnableBacklight(false); err != nil {
		return err
	}
	return d.sendCommand(_DISPOFF)
}

func (d *Dev) sendCommand(cmd byte, args ...byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := d.c.Tx([]byte{cmd}, nil); err != nil {
		return fmt.Errorf("ili9341: command %#02x: %w", cmd, err)
	}
	if len(args) == 0 {
		return nil
	}
	return d.sendData(args)
}

func (d *Dev) sendData(b []byte) error {
	if err := d.dc.Out(gpio.High); err != nil {
		return err
	}
	for len(b) > 0 {
		n := len(b)
		if n > d.maxTx {
			n = d.maxTx
		}
		if err := d.c.Tx(b[:n], nil); err != nil {
			return fmt.Errorf("ili9341: data: %w", err)
		}
		b = b[n:]
	}
	return nil
}
