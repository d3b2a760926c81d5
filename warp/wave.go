package warp

import (
	"fmt"
	"math"
	"math/rand"
)

// Corner selects where a wave starts.
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomLeft
	BottomRight

	// CornerRandom lets the trigger pick one of the four corners.
	CornerRandom Corner = -1
)

func (c Corner) String() string {
	switch c {
	case TopLeft:
		return "top-left"
	case TopRight:
		return "top-right"
	case BottomLeft:
		return "bottom-left"
	case BottomRight:
		return "bottom-right"
	case CornerRandom:
		return "random"
	default:
		return fmt.Sprintf("Corner(%d)", int(c))
	}
}

// ParseCorner accepts the names printed by String and the digits 0-3.
func ParseCorner(s string) (Corner, error) {
	switch s {
	case "top-left", "tl", "0":
		return TopLeft, nil
	case "top-right", "tr", "1":
		return TopRight, nil
	case "bottom-left", "bl", "2":
		return BottomLeft, nil
	case "bottom-right", "br", "3":
		return BottomRight, nil
	case "random", "":
		return CornerRandom, nil
	}
	return CornerRandom, fmt.Errorf("unknown corner %q", s)
}

// cornerDistance is the distance from node (i, j) to the corner node, in grid
// index units.
func cornerDistance(n, i, j int, c Corner) float64 {
	last := n - 1
	switch c {
	case TopRight:
		i = last - i
	case BottomLeft:
		j = last - j
	case BottomRight:
		i, j = last-i, last-j
	}
	return math.Sqrt(float64(i*i + j*j))
}

// Falloff returns the wave envelope for an n x n grid: max(0, (1-d/n)*k) per
// node, where d is the node's distance to corner c. The slice is indexed like
// Grid, i*n+j.
func Falloff(n int, c Corner, k float64) []float64 {
	out := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			s := (1 - cornerDistance(n, i, j, c)/float64(n)) * k
			if s > 0 {
				out[i*n+j] = s
			}
		}
	}
	return out
}

// ApplyWave gives every node with a positive envelope a fresh random target
// in [-s, s] on each axis. Nodes outside the envelope keep their target.
func (g *Grid) ApplyWave(envelope []float64, rng *rand.Rand) {
	for k, s := range envelope {
		if s <= 0 {
			continue
		}
		g.tgtX[k] = (rng.Float64()*2 - 1) * s
		g.tgtY[k] = (rng.Float64()*2 - 1) * s
	}
}
