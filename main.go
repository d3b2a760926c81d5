package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/photonicat/photo_album_display/warp"
)

var (
	configFile string
	seed       int64

	// render
	outputFile string
	waves      int
	passes     int
	corner     string
	renderMode string

	// memstat
	plotWidth int
)

func exitProcess(code int) {
	os.Exit(code)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "photo-album",
		Short: "photo album display daemon",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "/etc/photo-album/config.yaml", "config file path (yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the album: display, upload server and animation loop",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	serveCmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")

	renderCmd := &cobra.Command{
		Use:   "render [photo.jpg]",
		Short: "draw a photo through the animation pipeline into a PNG",
		Args:  cobra.ExactArgs(1),
		RunE:  renderPhoto,
	}
	renderCmd.Flags().StringVarP(&outputFile, "output", "o", "frame.png", "output PNG")
	renderCmd.Flags().IntVar(&waves, "waves", 1, "number of waves to fire")
	renderCmd.Flags().IntVar(&passes, "passes", 1, "decode passes after each wave")
	renderCmd.Flags().StringVar(&corner, "corner", "random", "wave corner: tl, tr, bl, br or random")
	renderCmd.Flags().StringVar(&renderMode, "mode", "dynamic", "display mode: clear or dynamic")
	renderCmd.Flags().Int64Var(&seed, "seed", 1, "random seed")

	memstatCmd := &cobra.Command{
		Use:   "memstat",
		Short: "plot the recorded free memory history",
		Args:  cobra.NoArgs,
		RunE:  memstat,
	}
	memstatCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")

	configCmd := &cobra.Command{
		Use:   "write-config [path]",
		Short: "write the effective configuration as yaml",
		Args:  cobra.ExactArgs(1),
		RunE:  writeConfig,
	}

	rootCmd.AddCommand(serveCmd, renderCmd, memstatCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	backend, closeDisplay, err := openDisplay(&cfg.Display, cancel)
	if err != nil {
		return fmt.Errorf("open display: %w", err)
	}
	defer closeDisplay()
	screen := NewScreen(backend, cfg.Display.Width, cfg.Display.Height)

	store, err := newPhotoStore(cfg.DataDir)
	if err != nil {
		return err
	}
	// The album always boots into standby.
	if err := store.Remove(); err != nil {
		log.Printf("remove old photo: %v", err)
	}

	rng := rand.New(rand.NewSource(seed))
	if cfg.BootAnimation {
		if err := showBootAnimation(screen, rng, time.Sleep); err != nil {
			log.Printf("boot animation: %v", err)
		}
	}

	history := newMemoryHistory(cfg.Memory.HistoryFile, cfg.Memory.HistoryWindowMins)
	if err := history.load(time.Now()); err != nil {
		log.Printf("No memory history loaded: %v", err)
	}
	defer func() {
		if err := history.save(); err != nil {
			log.Printf("save memory history: %v", err)
		}
	}()

	a, err := newAlbum(cfg, screen, store, newMeminfoProbe(), history, rng, time.Now())
	if err != nil {
		return err
	}
	a.watchdog = NewWatchdog(cfg.Loop.WatchdogTimeout, func() { exitProcess(2) })
	defer a.watchdog.Stop()

	if cfg.ModeKey != "" {
		go monitorModeKey(cfg.ModeKey, a.toggleMode, ctx.Done())
	}

	app := newHTTPServer(a)
	go func() {
		log.Println("Starting Fiber server on", cfg.Listen)
		if err := app.Listen(cfg.Listen); err != nil {
			log.Printf("http server: %v", err)
			cancel()
		}
	}()
	defer app.Shutdown()

	log.Printf("Album running, mode %s", a.mode.DisplayMode())
	if err := a.run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Println("Shutting down")
	return nil
}

// renderPhoto runs the real gate against an in-memory screen.
func renderPhoto(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	mode, ok := warp.ParseDisplayMode(renderMode)
	if !ok {
		return fmt.Errorf("unknown mode %q", renderMode)
	}
	c, err := warp.ParseCorner(corner)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	width, height := cfg.Display.Width, cfg.Display.Height
	photo, scale, err := decodePhoto(f, width, height)
	if err != nil {
		return err
	}

	screen := NewScreen(nil, width, height)
	rng := rand.New(rand.NewSource(seed))
	state := warp.NewState(warp.NewGrid(cfg.Warp.GridSize, cfg.Warp.SpringStrength, cfg.Warp.Friction), cfg.Warp.WaveStrength, rng)
	stats := &gateStats{}
	gate := &warp.Gate{
		State:        state,
		Display:      screen,
		Mode:         newModeSetting(mode),
		Memory:       fixedProbe(^uint64(0)),
		Resampler:    &warp.Resampler{Scratch: warp.NewScratchPool(cfg.Warp.ScratchMaxPixels)},
		MinFreeBytes: cfg.Memory.MinFreeBytes,
		Observer:     stats.observe,
	}

	if err := emitTiles(photo, width, height, gate); err != nil {
		return err
	}
	for i := 0; i < waves; i++ {
		fired := state.Trigger(c)
		fmt.Printf("wave %d from %s\n", i+1, fired)
		for p := 0; p < passes; p++ {
			if err := emitTiles(photo, width, height, gate); err != nil {
				return err
			}
		}
	}

	if err := saveFrameToPng(screen.Snapshot(), outputFile); err != nil {
		return err
	}
	fmt.Printf("%s: 1/%d scale, %d tiles warped, wrote %s\n",
		args[0], scale, stats.get(warp.Warped), outputFile)
	return nil
}

func memstat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	history := newMemoryHistory(cfg.Memory.HistoryFile, cfg.Memory.HistoryWindowMins)
	if err := history.load(time.Now()); err != nil {
		return err
	}
	fmt.Println(plotMemoryHistory(history.snapshot(), plotWidth))
	return nil
}

func writeConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	if err := saveConfig(args[0], cfg); err != nil {
		return err
	}
	fmt.Println("wrote", args[0])
	return nil
}
