package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/photonicat/photo_album_display/warp"
)

const (
	MEMINFO_PATH       = "/proc/meminfo"
	MAX_MEMORY_SAMPLES = 900
)

// parseMemAvailable returns MemAvailable from a /proc/meminfo dump, in bytes.
func parseMemAvailable(data []byte) (uint64, error) {
	var memFree uint64
	haveFree := false
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := bytes.Fields(sc.Bytes())
		if len(fields) < 2 {
			continue
		}
		key := string(fields[0])
		if key != "MemAvailable:" && key != "MemFree:" {
			continue
		}
		kb, err := strconv.ParseUint(string(fields[1]), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s %q: %w", key, fields[1], err)
		}
		if key == "MemAvailable:" {
			return kb * 1024, nil
		}
		memFree, haveFree = kb*1024, true
	}
	if haveFree {
		// Kernels before 3.14 have no MemAvailable.
		return memFree, nil
	}
	return 0, fmt.Errorf("no MemAvailable in meminfo")
}

// meminfoProbe implements warp.MemoryProbe on top of /proc/meminfo.
type meminfoProbe struct {
	path string

	once sync.Once
}

var _ warp.MemoryProbe = (*meminfoProbe)(nil)

func newMeminfoProbe() *meminfoProbe {
	return &meminfoProbe{path: MEMINFO_PATH}
}

// FreeMemoryBytes reports unlimited memory when meminfo is unreadable, so a
// host without procfs still animates.
func (p *meminfoProbe) FreeMemoryBytes() uint64 {
	data, err := os.ReadFile(p.path)
	if err == nil {
		var free uint64
		free, err = parseMemAvailable(data)
		if err == nil {
			return free
		}
	}
	p.once.Do(func() {
		log.Printf("memory probe disabled: %v", err)
	})
	return math.MaxUint64
}

// fixedProbe always reports the same amount. Used by the render command.
type fixedProbe uint64

func (f fixedProbe) FreeMemoryBytes() uint64 { return uint64(f) }

// MemorySample is a single free memory measurement.
type MemorySample struct {
	Timestamp time.Time `json:"timestamp"`
	FreeBytes uint64    `json:"free_bytes"`
}

// MemoryHistory keeps the samples of the last WindowMins minutes.
type MemoryHistory struct {
	Samples    []MemorySample `json:"samples"`
	WindowMins int            `json:"window_mins"`

	path string
	mu   sync.RWMutex
}

func newMemoryHistory(path string, windowMins int) *MemoryHistory {
	if windowMins < 1 {
		windowMins = DEFAULT_MEMORY_WINDOW_MINS
	}
	return &MemoryHistory{
		Samples:    make([]MemorySample, 0, 64),
		WindowMins: windowMins,
		path:       path,
	}
}

func (h *MemoryHistory) record(now time.Time, free uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Samples = append(h.Samples, MemorySample{Timestamp: now, FreeBytes: free})
	h.trim(now)
	if len(h.Samples)%10 == 0 {
		if err := h.saveLocked(); err != nil {
			log.Printf("Failed to save memory history: %v", err)
		}
	}
}

// trim drops samples older than the window. Caller holds mu.
func (h *MemoryHistory) trim(now time.Time) {
	cutoff := now.Add(-time.Duration(h.WindowMins) * time.Minute)
	keep := 0
	for keep < len(h.Samples) && !h.Samples[keep].Timestamp.After(cutoff) {
		keep++
	}
	if keep > 0 {
		h.Samples = append(h.Samples[:0], h.Samples[keep:]...)
	}
	if len(h.Samples) > MAX_MEMORY_SAMPLES {
		h.Samples = append(h.Samples[:0], h.Samples[len(h.Samples)-MAX_MEMORY_SAMPLES:]...)
	}
}

func (h *MemoryHistory) snapshot() []MemorySample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]MemorySample, len(h.Samples))
	copy(out, h.Samples)
	return out
}

func (h *MemoryHistory) load(now time.Time) error {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := json.Unmarshal(data, h); err != nil {
		return fmt.Errorf("decode %s: %w", h.path, err)
	}
	h.trim(now)
	log.Printf("Loaded %d memory samples from %s", len(h.Samples), h.path)
	return nil
}

func (h *MemoryHistory) save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.saveLocked()
}

func (h *MemoryHistory) saveLocked() error {
	if h.path == "" {
		return nil
	}
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return os.WriteFile(h.path, data, 0644)
}

// memoryMonitor runs the periodic heap check of the album loop.
type memoryMonitor struct {
	probe        warp.MemoryProbe
	minFree      uint64
	restartAfter int
	history      *MemoryHistory

	lowCount int
	lastFree uint64
}

// check samples free memory. restart is true once more than restartAfter
// consecutive checks came in under the threshold.
func (m *memoryMonitor) check(now time.Time) (free uint64, restart bool) {
	free = m.probe.FreeMemoryBytes()
	m.lastFree = free
	if m.history != nil && free != math.MaxUint64 {
		m.history.record(now, free)
	}
	if free >= m.minFree {
		m.lowCount = 0
		return free, false
	}
	m.lowCount++
	log.Printf("Low memory: %s free (minimum %s), %d consecutive",
		humanize.Bytes(free), humanize.Bytes(m.minFree), m.lowCount)
	return free, m.lowCount > m.restartAfter
}

func (m *memoryMonitor) low() bool {
	return m.probe.FreeMemoryBytes() < m.minFree
}
