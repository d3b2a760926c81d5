package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/photonicat/photo_album_display/warp"
)

const (
	SCREEN_WIDTH  = 240
	SCREEN_HEIGHT = 320

	DEFAULT_LISTEN             = ":8081"
	DEFAULT_VIDEOSINK_LISTEN   = ":8082"
	DEFAULT_DATA_DIR           = "/var/lib/photo-album"
	DEFAULT_MIN_FREE_BYTES     = 16 << 20
	DEFAULT_HEAP_CHECK         = 10 * time.Second
	DEFAULT_LOW_MEM_RESTARTS   = 3
	DEFAULT_REFRESH_INTERVAL   = 60 * time.Second
	DEFAULT_WATCHDOG_TIMEOUT   = 5 * time.Second
	DEFAULT_WAVE_INTERVAL_MIN  = 3 * time.Second
	DEFAULT_WAVE_INTERVAL_MAX  = 8 * time.Second
	DEFAULT_STANDBY_FPS        = 20
	DEFAULT_MEMORY_WINDOW_MINS = 15
)

// Config is the daemon configuration, read from a YAML file.
type Config struct {
	Listen        string        `yaml:"listen"`
	DataDir       string        `yaml:"data_dir"`
	BootAnimation bool          `yaml:"boot_animation"`
	ModeKey       string        `yaml:"mode_key"`
	Display       DisplayConfig `yaml:"display"`
	Warp          WarpConfig    `yaml:"warp"`
	Memory        MemoryConfig  `yaml:"memory"`
	Loop          LoopConfig    `yaml:"loop"`
}

type DisplayConfig struct {
	// Driver is one of "panel", "videosink" or "terminal".
	Driver          string `yaml:"driver"`
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	SPIPort         string `yaml:"spi_port"`
	ClockMHz        int    `yaml:"clock_mhz"`
	DCPin           string `yaml:"dc_pin"`
	RSTPin          string `yaml:"rst_pin"`
	BLPin           string `yaml:"bl_pin"`
	ColumnOffset    int    `yaml:"column_offset"`
	RowOffset       int    `yaml:"row_offset"`
	Rotation        int    `yaml:"rotation"`
	BGR             bool   `yaml:"bgr"`
	Invert          bool   `yaml:"invert"`
	VideosinkListen string `yaml:"videosink_listen"`
}

type WarpConfig struct {
	GridSize         int           `yaml:"grid_size"`
	SpringStrength   float64       `yaml:"spring_strength"`
	Friction         float64       `yaml:"friction"`
	WaveStrength     float64       `yaml:"wave_strength"`
	WaveIntervalMin  time.Duration `yaml:"wave_interval_min"`
	WaveIntervalMax  time.Duration `yaml:"wave_interval_max"`
	ScratchMaxPixels int           `yaml:"scratch_max_pixels"`
}

type MemoryConfig struct {
	MinFreeBytes       uint64        `yaml:"min_free_bytes"`
	CheckInterval      time.Duration `yaml:"check_interval"`
	LowMemRestartCount int           `yaml:"low_mem_restart_count"`
	HistoryWindowMins  int           `yaml:"history_window_mins"`
	HistoryFile        string        `yaml:"history_file"`
}

type LoopConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	WatchdogTimeout time.Duration `yaml:"watchdog_timeout"`
	StandbyFPS      int           `yaml:"standby_fps"`
}

// DefaultConfig returns the settings of the stock photo frame.
func DefaultConfig() *Config {
	return &Config{
		Listen:        DEFAULT_LISTEN,
		DataDir:       DEFAULT_DATA_DIR,
		BootAnimation: true,
		Display: DisplayConfig{
			Driver:          "panel",
			Width:           SCREEN_WIDTH,
			Height:          SCREEN_HEIGHT,
			SPIPort:         "SPI0.0",
			ClockMHz:        40,
			DCPin:           "GPIO25",
			RSTPin:          "GPIO24",
			BLPin:           "GPIO18",
			Rotation:        180,
			BGR:             true,
			VideosinkListen: DEFAULT_VIDEOSINK_LISTEN,
		},
		Warp: WarpConfig{
			GridSize:         warp.DefaultGridSize,
			SpringStrength:   warp.DefaultSpringStrength,
			Friction:         warp.DefaultFriction,
			WaveStrength:     warp.DefaultWaveStrength,
			WaveIntervalMin:  DEFAULT_WAVE_INTERVAL_MIN,
			WaveIntervalMax:  DEFAULT_WAVE_INTERVAL_MAX,
			ScratchMaxPixels: SCREEN_WIDTH * SCREEN_HEIGHT,
		},
		Memory: MemoryConfig{
			MinFreeBytes:       DEFAULT_MIN_FREE_BYTES,
			CheckInterval:      DEFAULT_HEAP_CHECK,
			LowMemRestartCount: DEFAULT_LOW_MEM_RESTARTS,
			HistoryWindowMins:  DEFAULT_MEMORY_WINDOW_MINS,
			HistoryFile:        "/tmp/photo_album_memory.json",
		},
		Loop: LoopConfig{
			RefreshInterval: DEFAULT_REFRESH_INTERVAL,
			WatchdogTimeout: DEFAULT_WATCHDOG_TIMEOUT,
			StandbyFPS:      DEFAULT_STANDBY_FPS,
		},
	}
}

// loadConfig reads path over the defaults. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func saveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) validate() error {
	switch c.Display.Driver {
	case "panel", "videosink", "terminal":
	default:
		return fmt.Errorf("unknown display driver %q", c.Display.Driver)
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return fmt.Errorf("invalid screen size %dx%d", c.Display.Width, c.Display.Height)
	}
	switch c.Display.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("rotation must be 0, 90, 180 or 270, got %d", c.Display.Rotation)
	}
	if c.Warp.GridSize < 2 {
		return fmt.Errorf("grid_size must be at least 2, got %d", c.Warp.GridSize)
	}
	if c.Warp.SpringStrength <= 0 || c.Warp.SpringStrength >= 1 {
		return fmt.Errorf("spring_strength must be in (0,1), got %g", c.Warp.SpringStrength)
	}
	if c.Warp.Friction <= 0 || c.Warp.Friction >= 1 {
		return fmt.Errorf("friction must be in (0,1), got %g", c.Warp.Friction)
	}
	if c.Warp.WaveIntervalMin <= 0 || c.Warp.WaveIntervalMax < c.Warp.WaveIntervalMin {
		return fmt.Errorf("invalid wave interval %s-%s", c.Warp.WaveIntervalMin, c.Warp.WaveIntervalMax)
	}
	if c.Loop.StandbyFPS <= 0 {
		return fmt.Errorf("standby_fps must be positive, got %d", c.Loop.StandbyFPS)
	}
	return nil
}
