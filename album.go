package main

import (
	"context"
	"errors"
	"image"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/photonicat/photo_album_display/warp"
)

type eventKind int

const (
	eventUploaded eventKind = iota
	eventModeChanged
)

type albumEvent struct {
	kind eventKind
	id   string
	mode warp.DisplayMode
}

// modeSetting is the live display mode, read by the gate on every tile and
// written by the HTTP handlers and the mode key.
type modeSetting struct {
	v atomic.Int32
}

func newModeSetting(m warp.DisplayMode) *modeSetting {
	s := &modeSetting{}
	s.Set(m)
	return s
}

func (s *modeSetting) DisplayMode() warp.DisplayMode {
	return warp.DisplayMode(s.v.Load())
}

func (s *modeSetting) Set(m warp.DisplayMode) {
	s.v.Store(int32(m))
}

// gateStats counts gate decisions by kind.
type gateStats struct {
	counts [warp.Warped + 1]atomic.Uint64
}

func (s *gateStats) observe(d warp.Decision) {
	if d >= 0 && int(d) < len(s.counts) {
		s.counts[d].Add(1)
	}
}

func (s *gateStats) get(d warp.Decision) uint64 {
	return s.counts[d].Load()
}

func (s *gateStats) snapshot() map[string]uint64 {
	out := make(map[string]uint64, len(s.counts))
	for d := range s.counts {
		out[warp.Decision(d).String()] = s.counts[d].Load()
	}
	return out
}

// album is the single loop that owns the animation state. Everything that
// touches warp.State or draws on the screen runs on the goroutine calling
// run.
type album struct {
	cfg     *Config
	screen  *Screen
	store   *photoStore
	mode    *modeSetting
	state   *warp.State
	gate    *warp.Gate
	monitor *memoryMonitor
	history *MemoryHistory
	standby *standbyAnimation
	stats   *gateStats
	rng     *rand.Rand

	events   chan albumEvent
	watchdog *Watchdog
	exit     func(code int)

	photo         *image.RGBA
	lastHeapCheck time.Time
	lastRefresh   time.Time
	lastWave      time.Time
	lastStandby   time.Time
	waveInterval  time.Duration

	waves    atomic.Uint64
	lastFree atomic.Uint64
}

func newAlbum(cfg *Config, screen *Screen, store *photoStore, probe warp.MemoryProbe, history *MemoryHistory, rng *rand.Rand, now time.Time) (*album, error) {
	m, err := store.LoadMode()
	if err != nil {
		log.Printf("load display mode: %v", err)
	}
	width, height := screen.Size()
	standby, err := newStandbyAnimation(width, height, networkHint(cfg.Listen), now)
	if err != nil {
		return nil, err
	}

	grid := warp.NewGrid(cfg.Warp.GridSize, cfg.Warp.SpringStrength, cfg.Warp.Friction)
	a := &album{
		cfg:     cfg,
		screen:  screen,
		store:   store,
		mode:    newModeSetting(m),
		state:   warp.NewState(grid, cfg.Warp.WaveStrength, rng),
		history: history,
		standby: standby,
		stats:   &gateStats{},
		rng:     rng,
		events:  make(chan albumEvent, 8),
		exit:    exitProcess,
		monitor: &memoryMonitor{
			probe:        probe,
			minFree:      cfg.Memory.MinFreeBytes,
			restartAfter: cfg.Memory.LowMemRestartCount,
			history:      history,
		},
		lastHeapCheck: now,
		lastRefresh:   now,
		lastWave:      now,
	}
	a.gate = &warp.Gate{
		State:        a.state,
		Display:      screen,
		Mode:         a.mode,
		Memory:       probe,
		Resampler:    &warp.Resampler{Scratch: warp.NewScratchPool(cfg.Warp.ScratchMaxPixels)},
		MinFreeBytes: cfg.Memory.MinFreeBytes,
		Observer:     a.stats.observe,
	}
	a.waveInterval = a.nextWaveInterval()
	a.lastFree.Store(probe.FreeMemoryBytes())
	return a, nil
}

func (a *album) nextWaveInterval() time.Duration {
	lo, hi := a.cfg.Warp.WaveIntervalMin, a.cfg.Warp.WaveIntervalMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(a.rng.Int63n(int64(hi-lo)))
}

// notify hands an event to the loop without blocking the caller.
func (a *album) notify(ev albumEvent) bool {
	select {
	case a.events <- ev:
		return true
	default:
		log.Printf("album: event queue full, dropping event %d", ev.kind)
		return false
	}
}

// toggleMode flips between Clear and Dynamic and persists the choice.
func (a *album) toggleMode() {
	next := warp.ModeDynamic
	if a.mode.DisplayMode() == warp.ModeDynamic {
		next = warp.ModeClear
	}
	if err := a.setMode(next); err != nil {
		log.Printf("switch mode: %v", err)
	}
}

func (a *album) setMode(m warp.DisplayMode) error {
	a.mode.Set(m)
	err := a.store.SaveMode(m)
	a.notify(albumEvent{kind: eventModeChanged, mode: m})
	return err
}

// loadPhoto decodes the stored photo, if any, into a.photo.
func (a *album) loadPhoto() error {
	f, err := a.store.Open()
	if errors.Is(err, ErrNoPhoto) {
		a.photo = nil
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	width, height := a.screen.Size()
	img, scale, err := decodePhoto(f, width, height)
	if err != nil {
		a.photo = nil
		return err
	}
	log.Printf("Loaded photo %dx%d at 1/%d scale", img.Rect.Dx(), img.Rect.Dy(), scale)
	a.photo = img
	return nil
}

// drawPhoto runs one decode pass of the current photo through the gate.
func (a *album) drawPhoto(clear bool) {
	if a.photo == nil {
		return
	}
	if clear {
		a.screen.Fill(PCAT_BLACK)
	}
	width, height := a.screen.Size()
	if err := emitTiles(a.photo, width, height, a.gate); err != nil {
		log.Printf("draw photo: %v", err)
	}
}

func (a *album) handle(ev albumEvent, now time.Time) {
	switch ev.kind {
	case eventUploaded:
		log.Printf("Upload %s stored, redrawing", ev.id)
		a.state.Reset()
		if err := a.loadPhoto(); err != nil {
			log.Printf("load photo: %v", err)
			return
		}
		a.drawPhoto(true)
		a.lastRefresh = now
		a.lastWave = now
		a.waveInterval = a.nextWaveInterval()
	case eventModeChanged:
		log.Printf("Display mode is now %s", ev.mode)
		a.drawPhoto(true)
	}
}

// tick runs one iteration of the loop.
func (a *album) tick(now time.Time) {
	if a.watchdog != nil {
		a.watchdog.Feed()
	}

	if now.Sub(a.lastHeapCheck) >= a.cfg.Memory.CheckInterval {
		a.lastHeapCheck = now
		free, restart := a.monitor.check(now)
		a.lastFree.Store(free)
		if restart {
			log.Printf("Memory stayed below %s, restarting", humanize.Bytes(a.cfg.Memory.MinFreeBytes))
			a.exit(1)
			return
		}
	}

	if a.store.Uploading() {
		return
	}

	if a.photo != nil {
		if now.Sub(a.lastRefresh) >= a.cfg.Loop.RefreshInterval {
			a.lastRefresh = now
			a.drawPhoto(true)
			return
		}
		if now.Sub(a.lastWave) >= a.waveInterval {
			a.lastWave = now
			a.waveInterval = a.nextWaveInterval()
			if a.mode.DisplayMode() != warp.ModeDynamic {
				return
			}
			if a.monitor.low() {
				log.Println("Low memory, skipping wave")
				return
			}
			a.state.Trigger(warp.CornerRandom)
			a.waves.Add(1)
			a.drawPhoto(false)
		}
		return
	}

	period := time.Second / time.Duration(a.cfg.Loop.StandbyFPS)
	if now.Sub(a.lastStandby) < period {
		return
	}
	a.lastStandby = now
	if a.monitor.low() {
		width, height := a.screen.Size()
		frame, err := waitingFrame(width, height)
		if err != nil {
			log.Printf("waiting frame: %v", err)
			return
		}
		a.screen.DrawFrame(frame)
		// Hold the plain frame for a second.
		a.lastStandby = now.Add(time.Second - period)
		return
	}
	a.screen.DrawFrame(a.standby.Frame(now))
}

// run drives the loop until ctx is done.
func (a *album) run(ctx context.Context) error {
	if err := a.loadPhoto(); err != nil {
		log.Printf("load photo: %v", err)
	}
	a.drawPhoto(true)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-a.events:
			if a.watchdog != nil {
				a.watchdog.Feed()
			}
			a.handle(ev, time.Now())
		case now := <-ticker.C:
			a.tick(now)
		}
	}
}
