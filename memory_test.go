package main

import (
	"image"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleMeminfo = `MemTotal:         505496 kB
MemFree:           21800 kB
MemAvailable:     312044 kB
Buffers:           12000 kB
Cached:           280000 kB
`

func TestParseMemAvailable(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    uint64
		wantErr bool
	}{
		{"mem available", sampleMeminfo, 312044 * 1024, false},
		{"old kernel", "MemTotal: 1000 kB\nMemFree: 500 kB\n", 500 * 1024, false},
		{"empty", "", 0, true},
		{"garbage value", "MemAvailable: lots kB\n", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMemAvailable([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseMemAvailable() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseMemAvailable() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMeminfoProbeUnreadable(t *testing.T) {
	p := &meminfoProbe{path: filepath.Join(t.TempDir(), "missing")}
	if got := p.FreeMemoryBytes(); got != math.MaxUint64 {
		t.Errorf("FreeMemoryBytes() = %d, want MaxUint64", got)
	}
}

func TestMemoryHistoryTrim(t *testing.T) {
	h := newMemoryHistory("", 5)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		h.record(start.Add(time.Duration(i)*time.Minute), uint64(i))
	}
	samples := h.snapshot()
	// Samples at minutes 5..9 are inside the window ending at minute 9.
	if len(samples) != 5 {
		t.Fatalf("len(samples) = %d, want 5", len(samples))
	}
	if samples[0].FreeBytes != 5 {
		t.Errorf("oldest sample = %d, want 5", samples[0].FreeBytes)
	}
}

func TestMemoryHistorySaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	now := time.Now()
	h := newMemoryHistory(path, 15)
	h.record(now.Add(-time.Minute), 100)
	h.record(now, 200)
	if err := h.save(); err != nil {
		t.Fatalf("save() error = %v", err)
	}

	loaded := newMemoryHistory(path, 15)
	if err := loaded.load(now); err != nil {
		t.Fatalf("load() error = %v", err)
	}
	samples := loaded.snapshot()
	if len(samples) != 2 || samples[1].FreeBytes != 200 {
		t.Errorf("loaded samples = %+v", samples)
	}

	// Loading much later drops everything outside the window.
	stale := newMemoryHistory(path, 15)
	if err := stale.load(now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if n := len(stale.snapshot()); n != 0 {
		t.Errorf("stale history kept %d samples", n)
	}
}

type stubProbe struct {
	free uint64
}

func (p *stubProbe) FreeMemoryBytes() uint64 { return p.free }

func TestMemoryMonitorRestart(t *testing.T) {
	probe := &stubProbe{free: 1 << 20}
	m := &memoryMonitor{probe: probe, minFree: 16 << 20, restartAfter: 3}
	now := time.Now()

	for i := 1; i <= 3; i++ {
		if _, restart := m.check(now); restart {
			t.Fatalf("restart requested after %d low checks", i)
		}
	}
	if !m.low() {
		t.Error("low() = false with 1MiB free")
	}
	if _, restart := m.check(now); !restart {
		t.Error("no restart after the fourth consecutive low check")
	}

	// Recovering resets the count.
	probe.free = 64 << 20
	m.check(now)
	if m.lowCount != 0 {
		t.Errorf("lowCount = %d after recovery", m.lowCount)
	}
	probe.free = 1 << 20
	if _, restart := m.check(now); restart {
		t.Error("restart requested on first low check after recovery")
	}
}

func TestMemoryMonitorRecordsHistory(t *testing.T) {
	h := newMemoryHistory("", 15)
	m := &memoryMonitor{probe: fixedProbe(32 << 20), minFree: 16 << 20, restartAfter: 3, history: h}
	free, _ := m.check(time.Now())
	if free != 32<<20 {
		t.Errorf("free = %d", free)
	}
	if len(h.snapshot()) != 1 {
		t.Errorf("history has %d samples, want 1", len(h.snapshot()))
	}

	unknown := &memoryMonitor{probe: fixedProbe(math.MaxUint64), minFree: 16 << 20, history: h}
	unknown.check(time.Now())
	if len(h.snapshot()) != 1 {
		t.Error("unknown memory reading was recorded")
	}
}

func TestDrawMemoryGraph(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, GRAPH_WIDTH, GRAPH_HEIGHT))
	now := time.Now()
	samples := []MemorySample{
		{Timestamp: now.Add(-2 * time.Minute), FreeBytes: 64 << 20},
		{Timestamp: now.Add(-time.Minute), FreeBytes: 8 << 20},
		{Timestamp: now, FreeBytes: 32 << 20},
	}
	drawMemoryGraph(img, 0, 0, GRAPH_WIDTH, GRAPH_HEIGHT, samples, 16<<20)

	lit := 0
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] > 100 || img.Pix[i+1] > 100 {
			lit++
		}
	}
	if lit == 0 {
		t.Error("graph drew no visible line")
	}

	// Too few samples and a degenerate area must not panic.
	drawMemoryGraph(img, 0, 0, GRAPH_WIDTH, GRAPH_HEIGHT, samples[:1], 16<<20)
	drawMemoryGraph(img, 0, 0, 0, 0, samples, 16<<20)
}

func TestPlotMemoryHistory(t *testing.T) {
	if got := plotMemoryHistory(nil, 40); !strings.Contains(got, "no memory samples") {
		t.Errorf("empty plot = %q", got)
	}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	samples := []MemorySample{
		{Timestamp: now, FreeBytes: 10 << 20},
		{Timestamp: now.Add(10 * time.Second), FreeBytes: 20 << 20},
		{Timestamp: now.Add(20 * time.Second), FreeBytes: 15 << 20},
	}
	got := plotMemoryHistory(samples, 40)
	if !strings.Contains(got, "free memory (MiB) 12:00:00 - 12:00:20") {
		t.Errorf("plot caption missing:\n%s", got)
	}
}
