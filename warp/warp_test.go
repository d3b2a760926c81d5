package warp

import (
	"math"
	"math/rand"
	"testing"
)

type blit struct {
	x, y, w, h int
	pixels     []uint16
}

type recordDisplay struct {
	blits []blit
}

func (r *recordDisplay) Blit(x, y, w, h int, pixels []uint16) {
	cp := make([]uint16, len(pixels))
	copy(cp, pixels)
	r.blits = append(r.blits, blit{x, y, w, h, cp})
}

type fixedMode DisplayMode

func (m fixedMode) DisplayMode() DisplayMode { return DisplayMode(m) }

type fixedMemory uint64

func (m fixedMemory) FreeMemoryBytes() uint64 { return uint64(m) }

func testTile(w, h int) []uint16 {
	pix := make([]uint16, w*h)
	for i := range pix {
		pix[i] = uint16(i*7919 + 13)
	}
	return pix
}

func newTestGate(mode DisplayMode, free uint64) (*Gate, *recordDisplay) {
	disp := &recordDisplay{}
	st := NewState(NewGrid(DefaultGridSize, DefaultSpringStrength, DefaultFriction), DefaultWaveStrength, rand.New(rand.NewSource(1)))
	return &Gate{
		State:        st,
		Display:      disp,
		Mode:         fixedMode(mode),
		Memory:       fixedMemory(free),
		Resampler:    &Resampler{Scratch: NewScratchPool(0)},
		MinFreeBytes: 30000,
	}, disp
}

func equalPixels(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStepEndToEnd(t *testing.T) {
	g := NewGrid(16, 0.2, 0.8)
	g.SetTarget(0, 0, 5, 5)
	g.Step()

	dx, dy := g.Current(0, 0)
	if math.Abs(dx-0.8) > 1e-9 || math.Abs(dy-0.8) > 1e-9 {
		t.Fatalf("Current(0,0) = (%f,%f); want (0.8,0.8)", dx, dy)
	}
	for i := 0; i < 16; i++ {
		for j := 0; j < 16; j++ {
			if i == 0 && j == 0 {
				continue
			}
			if x, y := g.Current(i, j); x != 0 || y != 0 {
				t.Errorf("Current(%d,%d) = (%f,%f); want (0,0)", i, j, x, y)
			}
		}
	}

	// Pixel (0,0) sits on node (0,0): the 0.8 offset truncates to no shift.
	ox, oy := OffsetAt(g, 32, 32, 0, 0)
	if math.Abs(ox-0.8) > 1e-9 || math.Abs(oy-0.8) > 1e-9 {
		t.Errorf("OffsetAt(0,0) = (%f,%f); want (0.8,0.8)", ox, oy)
	}
	src := testTile(32, 32)
	dst := make([]uint16, len(src))
	if err := Resample(g, 32, 32, src, dst); err != nil {
		t.Fatal(err)
	}
	if dst[0] != src[0] {
		t.Errorf("dst[0] = %d; want src[0] = %d", dst[0], src[0])
	}

	// Halfway into the first cell the offset has halved; several cells away
	// it is gone.
	half, _ := OffsetAt(g, 32, 32, 1, 0)
	if half <= 0 || half >= 0.8 {
		t.Errorf("OffsetAt(1,0).x = %f; want in (0, 0.8)", half)
	}
	far, farY := OffsetAt(g, 32, 32, 10, 10)
	if far != 0 || farY != 0 {
		t.Errorf("OffsetAt(10,10) = (%f,%f); want (0,0)", far, farY)
	}
}

func TestZeroTargetConvergence(t *testing.T) {
	g := NewGrid(16, 0.2, 0.8)
	for n := 0; n < 500; n++ {
		g.Step()
	}
	for i := 0; i < 16; i++ {
		for j := 0; j < 16; j++ {
			if x, y := g.Current(i, j); x != 0 || y != 0 {
				t.Fatalf("Current(%d,%d) = (%f,%f) after steps with no target", i, j, x, y)
			}
		}
	}
}

func TestBoundedDisplacement(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, c := range []Corner{TopLeft, TopRight, BottomLeft, BottomRight} {
		st := NewState(NewGrid(16, 0.2, 0.8), DefaultWaveStrength, rng)
		st.Enabled = true
		for round := 0; round < 20; round++ {
			st.Trigger(c)
			for n := 0; n < 50; n++ {
				st.Grid.Step()
				for i := 0; i < 16; i++ {
					for j := 0; j < 16; j++ {
						x, y := st.Grid.Current(i, j)
						if math.Abs(x) > DefaultWaveStrength || math.Abs(y) > DefaultWaveStrength {
							t.Fatalf("corner %s: Current(%d,%d) = (%f,%f) exceeds %f", c, i, j, x, y, DefaultWaveStrength)
						}
					}
				}
			}
		}
	}
}

func TestFalloffMonotonic(t *testing.T) {
	const n = 16
	for _, c := range []Corner{TopLeft, TopRight, BottomLeft, BottomRight} {
		env := Falloff(n, c, DefaultWaveStrength)
		type node struct{ d, s float64 }
		var nodes []node
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				d := cornerDistance(n, i, j, c)
				if d <= n {
					nodes = append(nodes, node{d, env[i*n+j]})
				}
			}
		}
		for _, a := range nodes {
			for _, b := range nodes {
				if a.d < b.d && a.s < b.s {
					t.Fatalf("corner %s: strength %f at distance %f < strength %f at distance %f", c, a.s, a.d, b.s, b.d)
				}
			}
		}
	}
}

func TestFalloffCorners(t *testing.T) {
	tests := []struct {
		corner Corner
		i, j   int
	}{
		{TopLeft, 0, 0},
		{TopRight, 15, 0},
		{BottomLeft, 0, 15},
		{BottomRight, 15, 15},
	}
	for _, tt := range tests {
		env := Falloff(16, tt.corner, 10)
		if got := env[tt.i*16+tt.j]; got != 10 {
			t.Errorf("Falloff(%s) at corner node = %f; want 10", tt.corner, got)
		}
		// The opposite corner is sqrt(2)*15 away, beyond the envelope.
		if got := env[(15-tt.i)*16+(15-tt.j)]; got != 0 {
			t.Errorf("Falloff(%s) at opposite corner = %f; want 0", tt.corner, got)
		}
	}
}

func TestTriggerTargetsWithinEnvelope(t *testing.T) {
	st := NewState(NewGrid(16, 0.2, 0.8), 10, rand.New(rand.NewSource(7)))
	st.Enabled = true
	st.Grid.SetTarget(15, 15, 3, -3)
	st.Trigger(TopLeft)

	env := Falloff(16, TopLeft, 10)
	for i := 0; i < 16; i++ {
		for j := 0; j < 16; j++ {
			x, y := st.Grid.Target(i, j)
			s := env[i*16+j]
			if math.Abs(x) > s+1e-12 && s > 0 || math.Abs(y) > s+1e-12 && s > 0 {
				t.Errorf("Target(%d,%d) = (%f,%f) outside envelope %f", i, j, x, y, s)
			}
		}
	}
	if x, y := st.Grid.Target(15, 15); x != 3 || y != -3 {
		t.Errorf("Target(15,15) = (%f,%f); want untouched (3,-3)", x, y)
	}
}

func TestTriggerDisabledIsNoop(t *testing.T) {
	st := NewState(NewGrid(16, 0.2, 0.8), 10, rand.New(rand.NewSource(1)))
	st.Trigger(CornerRandom)
	for i := 0; i < 16; i++ {
		for j := 0; j < 16; j++ {
			if x, y := st.Grid.Target(i, j); x != 0 || y != 0 {
				t.Fatalf("Target(%d,%d) = (%f,%f) on disabled state", i, j, x, y)
			}
		}
	}
}

func TestTriggerRandomCorner(t *testing.T) {
	st := NewState(NewGrid(16, 0.2, 0.8), 10, rand.New(rand.NewSource(3)))
	st.Enabled = true
	seen := map[Corner]bool{}
	for n := 0; n < 200; n++ {
		c := st.Trigger(CornerRandom)
		if c < TopLeft || c > BottomRight {
			t.Fatalf("Trigger picked %v", c)
		}
		seen[c] = true
	}
	if len(seen) != 4 {
		t.Errorf("random trigger visited %d corners; want 4", len(seen))
	}
}

func TestBilinearNodeCoincidence(t *testing.T) {
	const n = 16
	g := NewGrid(n, 0.2, 0.8)
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			g.SetCurrent(i, j, rng.Float64()*4-2, rng.Float64()*4-2)
		}
	}
	// With w = h = 150 each cell is exactly 10 pixels wide.
	const size = 150
	for i := 0; i < n-1; i++ {
		for j := 0; j < n-1; j++ {
			ox, oy := OffsetAt(g, size, size, i*10, j*10)
			wx, wy := g.Current(i, j)
			if math.Abs(ox-wx) > 1e-9 || math.Abs(oy-wy) > 1e-9 {
				t.Errorf("OffsetAt(node %d,%d) = (%f,%f); want (%f,%f)", i, j, ox, oy, wx, wy)
			}
		}
	}
}

func TestResampleOutOfBoundsKeepsPixel(t *testing.T) {
	g := NewGrid(4, 0.2, 0.8)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			g.SetCurrent(i, j, -100, 0)
		}
	}
	src := testTile(9, 9)
	dst := make([]uint16, len(src))
	if err := Resample(g, 9, 9, src, dst); err != nil {
		t.Fatal(err)
	}
	if !equalPixels(src, dst) {
		t.Error("every source is out of bounds; output should equal the original tile")
	}
}

func TestResampleShift(t *testing.T) {
	g := NewGrid(4, 0.2, 0.8)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			g.SetCurrent(i, j, 1.5, 0)
		}
	}
	src := testTile(6, 3)
	dst := make([]uint16, len(src))
	if err := Resample(g, 6, 3, src, dst); err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 6; x++ {
			want := src[y*6+x]
			if x+1 < 6 {
				want = src[y*6+x+1]
			}
			if got := dst[y*6+x]; got != want {
				t.Errorf("dst(%d,%d) = %d; want %d", x, y, got, want)
			}
		}
	}
}

func TestResampleShortBuffer(t *testing.T) {
	g := NewGrid(4, 0.2, 0.8)
	if err := Resample(g, 4, 4, make([]uint16, 15), make([]uint16, 16)); err == nil {
		t.Error("Resample should reject a short source buffer")
	}
}

func TestGateClearPassthrough(t *testing.T) {
	gate, disp := newTestGate(ModeClear, 1<<30)
	gate.State.Enabled = true
	gate.State.Grid.SetCurrent(3, 3, 5, 5)

	src := testTile(16, 16)
	orig := append([]uint16(nil), src...)
	for n := 0; n < 3; n++ {
		if !gate.OnTile(0, 0, 16, 16, src) {
			t.Fatal("OnTile returned false")
		}
	}
	for _, b := range disp.blits {
		if !equalPixels(b.pixels, orig) {
			t.Fatal("clear mode must blit the tile unmodified")
		}
	}
	if !equalPixels(src, orig) {
		t.Error("input tile was modified")
	}
}

func TestGateLowMemoryPassthrough(t *testing.T) {
	var decisions []Decision
	gate, disp := newTestGate(ModeDynamic, 100)
	gate.Observer = func(d Decision) { decisions = append(decisions, d) }

	for _, enabled := range []bool{false, true} {
		gate.State.Enabled = enabled
		gate.State.Grid.SetCurrent(0, 0, 4, 4)
		src := testTile(32, 32)
		gate.OnTile(0, 0, 32, 32, src)
		last := disp.blits[len(disp.blits)-1]
		if !equalPixels(last.pixels, src) {
			t.Errorf("enabled=%t: low-memory tile was modified", enabled)
		}
		if gate.State.Enabled != enabled {
			t.Errorf("enabled=%t: low-memory path changed Enabled", enabled)
		}
	}
	for _, d := range decisions {
		if d != PassLowMemory || !d.Skipped() {
			t.Errorf("decision = %s; want PASS_LOW_MEMORY", d)
		}
	}
}

func TestGateActivateThenWarp(t *testing.T) {
	var decisions []Decision
	gate, disp := newTestGate(ModeDynamic, 1<<30)
	gate.Observer = func(d Decision) { decisions = append(decisions, d) }
	gate.State.Grid.SetTarget(2, 2, 7, 7)

	src := testTile(32, 32)
	gate.OnTile(0, 0, 32, 32, src)
	if !gate.State.Enabled {
		t.Fatal("first tile should enable the animation")
	}
	if x, y := gate.State.Grid.Target(2, 2); x != 0 || y != 0 {
		t.Errorf("activation should zero the grid, Target(2,2) = (%f,%f)", x, y)
	}
	if !equalPixels(disp.blits[0].pixels, src) {
		t.Error("activation tile must be drawn unmodified")
	}

	gate.State.Grid.SetTarget(0, 0, 5, 5)
	gate.OnTile(0, 0, 32, 32, src)
	if x, _ := gate.State.Grid.Current(0, 0); math.Abs(x-0.8) > 1e-9 {
		t.Errorf("warp path should step the grid once, Current(0,0).x = %f", x)
	}
	if want := []Decision{PassActivate, Warped}; len(decisions) != 2 || decisions[0] != want[0] || decisions[1] != want[1] {
		t.Errorf("decisions = %v; want %v", decisions, want)
	}
}

func TestGateScratchFailure(t *testing.T) {
	var decisions []Decision
	gate, disp := newTestGate(ModeDynamic, 1<<30)
	gate.Observer = func(d Decision) { decisions = append(decisions, d) }
	gate.Resampler = &Resampler{Scratch: NewScratchPool(64)}
	gate.State.Enabled = true
	gate.State.Grid.SetCurrent(0, 0, 3, 3)

	src := testTile(16, 16)
	if !gate.OnTile(8, 8, 16, 16, src) {
		t.Fatal("OnTile returned false")
	}
	if len(disp.blits) != 1 || !equalPixels(disp.blits[0].pixels, src) {
		t.Fatal("scratch failure should blit the original tile exactly once")
	}
	if decisions[0] != PassScratchFailure {
		t.Errorf("decision = %s; want PASS_SCRATCH_FAILURE", decisions[0])
	}
	if dx, dy := gate.State.Grid.Current(0, 0); dx != 3 || dy != 3 {
		t.Errorf("Current(0,0) = (%f,%f) after scratch failure; want grid left at (3,3)", dx, dy)
	}
}

func TestStateReset(t *testing.T) {
	st := NewState(NewGrid(8, 0.2, 0.8), 10, rand.New(rand.NewSource(1)))
	st.Enabled = true
	st.Trigger(TopLeft)
	st.Grid.Step()
	st.Reset()
	if st.Enabled {
		t.Error("Reset should disable the animation")
	}
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			cx, cy := st.Grid.Current(i, j)
			tx, ty := st.Grid.Target(i, j)
			if cx != 0 || cy != 0 || tx != 0 || ty != 0 {
				t.Fatalf("node %d,%d not zeroed after Reset", i, j)
			}
		}
	}
}

func TestScratchPool(t *testing.T) {
	p := NewScratchPool(100)
	buf, err := p.Get(100)
	if err != nil || len(buf) != 100 {
		t.Fatalf("Get(100) = len %d, %v", len(buf), err)
	}
	p.Put(buf)
	if _, err := p.Get(101); err != ErrScratchUnavailable {
		t.Errorf("Get(101) error = %v; want ErrScratchUnavailable", err)
	}
	if _, err := p.Get(0); err != ErrScratchUnavailable {
		t.Errorf("Get(0) error = %v; want ErrScratchUnavailable", err)
	}
	small, _ := p.Get(10)
	if len(small) != 10 {
		t.Errorf("Get(10) returned %d pixels", len(small))
	}
}

func TestParse(t *testing.T) {
	corners := []struct {
		in   string
		want Corner
	}{
		{"top-left", TopLeft},
		{"1", TopRight},
		{"bl", BottomLeft},
		{"bottom-right", BottomRight},
		{"", CornerRandom},
	}
	for _, tt := range corners {
		got, err := ParseCorner(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseCorner(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseCorner("middle"); err == nil {
		t.Error("ParseCorner(middle) should fail")
	}

	for _, m := range []DisplayMode{ModeClear, ModeDynamic} {
		got, ok := ParseDisplayMode(m.String())
		if !ok || got != m {
			t.Errorf("ParseDisplayMode(%q) = %v, %t", m.String(), got, ok)
		}
	}
	if _, ok := ParseDisplayMode("oil"); ok {
		t.Error("ParseDisplayMode(oil) should fail")
	}
}
