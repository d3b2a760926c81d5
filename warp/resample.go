package warp

import (
	"fmt"
	"math"
)

// cellSize maps a w x h tile onto the n-1 cells between grid nodes.
func cellSize(g *Grid, w, h int) (cw, ch float64) {
	return float64(w) / float64(g.N-1), float64(h) / float64(g.N-1)
}

// locate returns the cell holding pixel coordinate p and the fractional
// position inside it.
func locate(p int, cell float64, n int) (int, float64) {
	pos := float64(p) / cell
	c := int(math.Floor(pos))
	if c > n-2 {
		c = n - 2
	}
	return c, pos - float64(c)
}

// OffsetAt returns the interpolated displacement for pixel (px, py) of a
// w x h tile.
func OffsetAt(g *Grid, w, h, px, py int) (ox, oy float64) {
	cw, ch := cellSize(g, w, h)
	gx, fx := locate(px, cw, g.N)
	gy, fy := locate(py, ch, g.N)
	return g.offsetAt(gx, gy, fx, fy)
}

// Resample fills dst with a warped copy of src, both w*h RGB565 pixels.
// Pixels whose source falls outside the tile keep the value src has at the
// same position.
func Resample(g *Grid, w, h int, src, dst []uint16) error {
	n := w * h
	if len(src) < n || len(dst) < n {
		return fmt.Errorf("warp: tile %dx%d needs %d pixels, got src=%d dst=%d", w, h, n, len(src), len(dst))
	}
	copy(dst[:n], src[:n])
	if w == 0 || h == 0 {
		return nil
	}

	cw, ch := cellSize(g, w, h)
	for py := 0; py < h; py++ {
		gy, fy := locate(py, ch, g.N)
		row := py * w
		for px := 0; px < w; px++ {
			gx, fx := locate(px, cw, g.N)
			ox, oy := g.offsetAt(gx, gy, fx, fy)

			sx := int(float64(px) + ox)
			sy := int(float64(py) + oy)
			if sx < 0 || sx >= w || sy < 0 || sy >= h {
				continue
			}
			dst[row+px] = src[sy*w+sx]
		}
	}
	return nil
}

// Resampler warps tiles through buffers borrowed from a ScratchPool.
type Resampler struct {
	Scratch *ScratchPool
}

// Warp advances g by one Step, resamples pixels into a scratch buffer and
// hands it to emit. The grid does not move when no buffer is available. The
// buffer goes back to the pool when emit returns, so emit must not keep it.
// pixels is never written.
func (r *Resampler) Warp(g *Grid, w, h int, pixels []uint16, emit func(out []uint16)) error {
	buf, err := r.Scratch.Get(w * h)
	if err != nil {
		return err
	}
	defer r.Scratch.Put(buf)

	g.Step()

	if err := Resample(g, w, h, pixels, buf); err != nil {
		return err
	}
	emit(buf)
	return nil
}
