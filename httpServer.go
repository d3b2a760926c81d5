package main

import (
	"bytes"
	_ "embed"
	"errors"
	"image"
	"image/png"
	"log"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/photonicat/photo_album_display/warp"
)

const MAX_UPLOAD_BYTES = 16 << 20

//go:embed assets/html/index.html
var indexHTML []byte

type webServer struct {
	album *album
}

type statusResponse struct {
	Mode        string            `json:"mode"`
	HasPhoto    bool              `json:"has_photo"`
	Uploading   bool              `json:"uploading"`
	Animating   bool              `json:"animating"`
	FreeBytes   uint64            `json:"free_bytes"`
	FreeHuman   string            `json:"free"`
	MinFree     string            `json:"min_free"`
	Waves       uint64            `json:"waves"`
	Blits       uint64            `json:"blits"`
	Decisions   map[string]uint64 `json:"decisions"`
	UnknownFree bool              `json:"unknown_free,omitempty"`
}

func (w *webServer) indexHandler(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(indexHTML)
}

func (w *webServer) uploadHandler(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Missing file field")
	}
	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Cannot read upload")
	}
	defer f.Close()

	id := uuid.NewString()
	n, err := w.album.store.Save(f)
	switch {
	case errors.Is(err, ErrUploading):
		return c.Status(fiber.StatusConflict).SendString("Another upload is in progress")
	case errors.Is(err, ErrNotJPEG):
		log.Printf("Upload %s rejected: %v", id, err)
		return c.Status(fiber.StatusBadRequest).SendString("Upload must be a JPEG image")
	case err != nil:
		log.Printf("Upload %s failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to store photo")
	}
	log.Printf("Upload %s: %s (%s)", id, fh.Filename, humanize.Bytes(uint64(n)))

	w.album.notify(albumEvent{kind: eventUploaded, id: id})
	c.Set("X-Upload-Id", id)
	return c.SendString("Upload successful")
}

func (w *webServer) switchModeHandler(c *fiber.Ctx) error {
	m, ok := warp.ParseDisplayMode(c.Query("mode"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).SendString("mode must be clear or dynamic")
	}
	if err := w.album.setMode(m); err != nil {
		log.Printf("save display mode: %v", err)
	}
	return c.SendString("success")
}

func sendPNG(c *fiber.Ctx, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to encode image")
	}
	c.Set("Content-Type", "image/png")
	c.Set("Content-Length", strconv.Itoa(buf.Len()))
	return c.Send(buf.Bytes())
}

func (w *webServer) frameHandler(c *fiber.Ctx) error {
	return sendPNG(c, w.album.screen.Snapshot())
}

func (w *webServer) statusHandler(c *fiber.Ctx) error {
	a := w.album
	free := a.lastFree.Load()
	resp := statusResponse{
		Mode:      a.mode.DisplayMode().String(),
		HasPhoto:  a.store.HasPhoto(),
		Uploading: a.store.Uploading(),
		Animating: a.stats.get(warp.Warped) > 0,
		FreeBytes: free,
		FreeHuman: humanize.Bytes(free),
		MinFree:   humanize.Bytes(a.cfg.Memory.MinFreeBytes),
		Waves:     a.waves.Load(),
		Blits:     a.screen.Blits(),
		Decisions: a.stats.snapshot(),
	}
	if free == math.MaxUint64 {
		resp.UnknownFree = true
		resp.FreeBytes = 0
		resp.FreeHuman = "unknown"
	}
	return c.JSON(resp)
}

func (w *webServer) memoryGraphHandler(c *fiber.Ctx) error {
	img := image.NewRGBA(image.Rect(0, 0, GRAPH_WIDTH, GRAPH_HEIGHT))
	clearFrame(img, GRAPH_WIDTH, GRAPH_HEIGHT)
	var samples []MemorySample
	if w.album.history != nil {
		samples = w.album.history.snapshot()
	}
	drawMemoryGraph(img, 0, 0, GRAPH_WIDTH, GRAPH_HEIGHT, samples, w.album.cfg.Memory.MinFreeBytes)
	if face, _, err := getFontFace("small"); err == nil && len(samples) > 0 {
		last := samples[len(samples)-1]
		drawText(img, "free "+humanize.Bytes(last.FreeBytes), 4, 2, face, PCAT_WHITE, false)
	}
	return sendPNG(c, img)
}

func newHTTPServer(a *album) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             MAX_UPLOAD_BYTES,
		DisableStartupMessage: true,
	})
	w := &webServer{album: a}

	app.Get("/", w.indexHandler)
	app.Post("/upload", w.uploadHandler)
	app.Get("/switch-mode", w.switchModeHandler)
	app.Get("/frame", w.frameHandler)
	app.Get("/status", w.statusHandler)
	app.Get("/memory.png", w.memoryGraphHandler)
	return app
}
