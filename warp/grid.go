// Package warp implements the photo distortion engine: a coarse grid of
// spring nodes whose offsets are blended across every decoded tile before it
// is sent to the panel.
//
// Nothing in this package is safe for concurrent use. A State is owned by the
// single goroutine that decodes tiles and fires waves.
package warp

const (
	DefaultGridSize       = 16
	DefaultSpringStrength = 0.2
	DefaultFriction       = 0.8
	DefaultWaveStrength   = 10.0
)

// Grid holds the current and target offsets of an N x N node lattice. Node
// (i, j) lives at index i*N+j, i along x and j along y.
type Grid struct {
	N              int
	SpringStrength float64
	Friction       float64

	curX, curY []float64
	tgtX, tgtY []float64
}

// NewGrid returns a zeroed grid. Sizes below 2 are raised to 2 so every tile
// has at least one cell.
func NewGrid(n int, spring, friction float64) *Grid {
	if n < 2 {
		n = 2
	}
	return &Grid{
		N:              n,
		SpringStrength: spring,
		Friction:       friction,
		curX:           make([]float64, n*n),
		curY:           make([]float64, n*n),
		tgtX:           make([]float64, n*n),
		tgtY:           make([]float64, n*n),
	}
}

// Reset zeroes both current and target offsets.
func (g *Grid) Reset() {
	clear(g.curX)
	clear(g.curY)
	clear(g.tgtX)
	clear(g.tgtY)
}

func (g *Grid) index(i, j int) int {
	return i*g.N + j
}

// Current returns the offset node (i, j) is displaced by right now.
func (g *Grid) Current(i, j int) (dx, dy float64) {
	k := g.index(i, j)
	return g.curX[k], g.curY[k]
}

// Target returns the offset node (i, j) is being pulled towards.
func (g *Grid) Target(i, j int) (dx, dy float64) {
	k := g.index(i, j)
	return g.tgtX[k], g.tgtY[k]
}

func (g *Grid) SetTarget(i, j int, dx, dy float64) {
	k := g.index(i, j)
	g.tgtX[k], g.tgtY[k] = dx, dy
}

func (g *Grid) SetCurrent(i, j int, dx, dy float64) {
	k := g.index(i, j)
	g.curX[k], g.curY[k] = dx, dy
}

// Step advances every node one tick. The spring closes part of the gap to the
// target, then friction scales the whole offset, so a node with a non-zero
// target settles short of it.
func (g *Grid) Step() {
	for k := range g.curX {
		g.curX[k] += (g.tgtX[k] - g.curX[k]) * g.SpringStrength
		g.curY[k] += (g.tgtY[k] - g.curY[k]) * g.SpringStrength
		g.curX[k] *= g.Friction
		g.curY[k] *= g.Friction
	}
}

// offsetAt blends the four nodes around cell (gx, gy) at fraction (fx, fy).
func (g *Grid) offsetAt(gx, gy int, fx, fy float64) (ox, oy float64) {
	k00 := g.index(gx, gy)
	k10 := g.index(gx+1, gy)
	k01 := g.index(gx, gy+1)
	k11 := g.index(gx+1, gy+1)

	w00 := (1 - fx) * (1 - fy)
	w10 := fx * (1 - fy)
	w01 := (1 - fx) * fy
	w11 := fx * fy

	ox = g.curX[k00]*w00 + g.curX[k10]*w10 + g.curX[k01]*w01 + g.curX[k11]*w11
	oy = g.curY[k00]*w00 + g.curY[k10]*w10 + g.curY[k01]*w01 + g.curY[k11]*w11
	return ox, oy
}
