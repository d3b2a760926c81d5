package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/videosink"
	"periph.io/x/host/v3"

	"github.com/photonicat/photo_album_display/ili9341"
	"github.com/photonicat/photo_album_display/rgb565"
	"github.com/photonicat/photo_album_display/warp"
)

var (
	PCAT_YELLOW = color.RGBA{255, 229, 0, 255}
	PCAT_WHITE  = color.RGBA{255, 255, 255, 255}
	PCAT_RED    = color.RGBA{226, 72, 38, 255}
	PCAT_GREY   = color.RGBA{98, 116, 130, 255}
	PCAT_GREEN  = color.RGBA{70, 235, 145, 255}
	PCAT_BLUE   = color.RGBA{0, 120, 255, 255}
	PCAT_BLACK  = color.RGBA{0, 0, 0, 255}
)

// Screen forwards blits to the active backend and keeps an RGBA mirror of
// everything drawn so far, served on /frame.
type Screen struct {
	backend warp.Display
	width   int
	height  int

	frameMutex sync.RWMutex
	mirror     *image.RGBA
	blits      uint64
}

var _ warp.Display = (*Screen)(nil)

// NewScreen wraps backend. A nil backend only updates the mirror.
func NewScreen(backend warp.Display, width, height int) *Screen {
	s := &Screen{
		backend: backend,
		width:   width,
		height:  height,
		mirror:  image.NewRGBA(image.Rect(0, 0, width, height)),
	}
	clearFrame(s.mirror, width, height)
	return s
}

// Blit implements warp.Display.
func (s *Screen) Blit(x, y, w, h int, pixels []uint16) {
	if s.backend != nil {
		s.backend.Blit(x, y, w, h, pixels)
	}
	s.frameMutex.Lock()
	rgb565.ToRGBA(s.mirror, x, y, w, h, pixels)
	s.blits++
	s.frameMutex.Unlock()
}

// Fill paints the whole screen with c.
func (s *Screen) Fill(c color.RGBA) {
	row := make([]uint16, s.width)
	p := rgb565.Pack(c.R, c.G, c.B)
	for i := range row {
		row[i] = p
	}
	for y := 0; y < s.height; y++ {
		s.Blit(0, y, s.width, 1, row)
	}
}

// DrawFrame pushes a full RGBA frame, as rendered by the standby and boot
// animations.
func (s *Screen) DrawFrame(frame *image.RGBA) {
	b := frame.Bounds().Intersect(image.Rect(0, 0, s.width, s.height))
	if b.Empty() {
		return
	}
	pix := rgb565.FromImage(frame, b)
	s.Blit(b.Min.X, b.Min.Y, b.Dx(), b.Dy(), pix)
}

// Snapshot returns a copy of the mirror.
func (s *Screen) Snapshot() *image.RGBA {
	s.frameMutex.RLock()
	defer s.frameMutex.RUnlock()
	out := image.NewRGBA(s.mirror.Rect)
	copy(out.Pix, s.mirror.Pix)
	return out
}

// WritePNG encodes the mirror as PNG.
func (s *Screen) WritePNG(w io.Writer) error {
	return png.Encode(w, s.Snapshot())
}

func (s *Screen) Blits() uint64 {
	s.frameMutex.RLock()
	defer s.frameMutex.RUnlock()
	return s.blits
}

func (s *Screen) Size() (int, int) {
	return s.width, s.height
}

// drawerDisplay adapts any periph display.Drawer, such as videosink, to
// warp.Display.
type drawerDisplay struct {
	drawer interface {
		Draw(r image.Rectangle, src image.Image, sp image.Point) error
	}
	tile *image.RGBA
}

func (d *drawerDisplay) Blit(x, y, w, h int, pixels []uint16) {
	if d.tile == nil || d.tile.Rect.Dx() < w || d.tile.Rect.Dy() < h {
		d.tile = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	rgb565.ToRGBA(d.tile, 0, 0, w, h, pixels)
	if err := d.drawer.Draw(image.Rect(x, y, x+w, y+h), d.tile, image.Point{}); err != nil {
		log.Printf("display draw error: %v", err)
	}
}

// terminalDisplay previews the screen in a terminal, two pixel rows per cell
// using the upper half block.
type terminalDisplay struct {
	screen tcell.Screen

	// mu guards fb and step: Blit runs on the album loop, resizes arrive on
	// the event goroutine.
	mu sync.Mutex
	fb *image.RGBA

	// step is the number of framebuffer pixels per terminal column.
	step int
}

func newTerminalDisplay(screen tcell.Screen, width, height int) *terminalDisplay {
	t := &terminalDisplay{
		screen: screen,
		fb:     image.NewRGBA(image.Rect(0, 0, width, height)),
	}
	clearFrame(t.fb, width, height)
	t.resize()
	return t
}

// resize recomputes step for the current terminal size. Caller holds mu.
func (t *terminalDisplay) resize() {
	cols, rows := t.screen.Size()
	w, h := t.fb.Rect.Dx(), t.fb.Rect.Dy()
	step := 1
	for cols > 0 && rows > 0 && ((w+step-1)/step > cols || (h+2*step-1)/(2*step) > rows) {
		step++
	}
	t.step = step
}

func (t *terminalDisplay) Blit(x, y, w, h int, pixels []uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rgb565.ToRGBA(t.fb, x, y, w, h, pixels)
	r := image.Rect(x, y, x+w, y+h).Intersect(t.fb.Rect)
	if r.Empty() {
		return
	}
	s := t.step
	for cy := r.Min.Y / (2 * s); cy*2*s < r.Max.Y; cy++ {
		for cx := r.Min.X / s; cx*s < r.Max.X; cx++ {
			t.drawCell(cx, cy)
		}
	}
	t.screen.Show()
}

// redraw repaints every cell. Caller holds mu.
func (t *terminalDisplay) redraw() {
	s := t.step
	for cy := 0; cy*2*s < t.fb.Rect.Dy(); cy++ {
		for cx := 0; cx*s < t.fb.Rect.Dx(); cx++ {
			t.drawCell(cx, cy)
		}
	}
	t.screen.Show()
}

func (t *terminalDisplay) drawCell(cx, cy int) {
	s := t.step
	top := t.fb.RGBAAt(cx*s, cy*2*s)
	bottom := t.fb.RGBAAt(cx*s, cy*2*s+s)
	style := tcell.StyleDefault.
		Foreground(tcell.NewRGBColor(int32(top.R), int32(top.G), int32(top.B))).
		Background(tcell.NewRGBColor(int32(bottom.R), int32(bottom.G), int32(bottom.B)))
	t.screen.SetContent(cx, cy, '▀', nil, style)
}

// watchQuit finishes the terminal on Ctrl-C, Escape or q.
func (t *terminalDisplay) watchQuit(cancel context.CancelFunc) {
	for {
		ev := t.screen.PollEvent()
		switch ev := ev.(type) {
		case nil:
			return
		case *tcell.EventResize:
			t.mu.Lock()
			t.resize()
			t.screen.Clear()
			t.redraw()
			t.mu.Unlock()
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyCtrlC || ev.Key() == tcell.KeyEscape || ev.Rune() == 'q' {
				cancel()
				return
			}
		}
	}
}

// openDisplay brings up the configured backend. The returned func releases
// it.
func openDisplay(cfg *DisplayConfig, cancel context.CancelFunc) (warp.Display, func(), error) {
	switch cfg.Driver {
	case "panel":
		return openPanel(cfg)
	case "videosink":
		return openVideosink(cfg)
	case "terminal":
		screen, err := tcell.NewScreen()
		if err != nil {
			return nil, nil, fmt.Errorf("terminal: %w", err)
		}
		if err := screen.Init(); err != nil {
			return nil, nil, fmt.Errorf("terminal: %w", err)
		}
		t := newTerminalDisplay(screen, cfg.Width, cfg.Height)
		go t.watchQuit(cancel)
		return t, screen.Fini, nil
	}
	return nil, nil, fmt.Errorf("unknown display driver %q", cfg.Driver)
}

func pinByName(name string) (gpio.PinOut, error) {
	if name == "" {
		return nil, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio %s not found", name)
	}
	return p, nil
}

func openPanel(cfg *DisplayConfig) (warp.Display, func(), error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.SPIPort, err)
	}
	dc, err := pinByName(cfg.DCPin)
	if err == nil && dc == nil {
		err = errors.New("dc_pin is required")
	}
	if err != nil {
		port.Close()
		return nil, nil, err
	}
	rst, err := pinByName(cfg.RSTPin)
	if err != nil {
		port.Close()
		return nil, nil, err
	}
	bl, err := pinByName(cfg.BLPin)
	if err != nil {
		port.Close()
		return nil, nil, err
	}
	dev, err := ili9341.New(port, dc, rst, bl, &ili9341.Opts{
		Width:        cfg.Width,
		Height:       cfg.Height,
		ColumnOffset: cfg.ColumnOffset,
		RowOffset:    cfg.RowOffset,
		Rotation:     ili9341.Rotation((cfg.Rotation / 90) % 4),
		BGR:          cfg.BGR,
		Invert:       cfg.Invert,
		Clock:        physic.Frequency(cfg.ClockMHz) * physic.MegaHertz,
	})
	if err != nil {
		port.Close()
		return nil, nil, err
	}
	if err := dev.EnableBacklight(true); err != nil {
		log.Printf("backlight: %v", err)
	}
	log.Printf("Opened %s", dev)
	return dev, func() {
		if err := dev.Halt(); err != nil {
			log.Printf("halt: %v", err)
		}
		port.Close()
	}, nil
}

func openVideosink(cfg *DisplayConfig) (warp.Display, func(), error) {
	sink := videosink.New(&videosink.Options{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: videosink.PNG,
	})
	mux := http.NewServeMux()
	mux.Handle("/", sink)
	srv := &http.Server{Addr: cfg.VideosinkListen, Handler: mux}
	go func() {
		log.Println("Starting videosink on", cfg.VideosinkListen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("videosink: %v", err)
		}
	}()
	return &drawerDisplay{drawer: sink}, func() {
		sink.Halt()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}, nil
}
