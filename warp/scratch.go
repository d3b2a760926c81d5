package warp

import (
	"errors"
	"sync"
)

// ErrScratchUnavailable is returned when a tile needs more scratch space than
// the pool is allowed to hand out.
var ErrScratchUnavailable = errors.New("warp: scratch buffer unavailable")

// ScratchPool hands out reusable RGB565 buffers up to a fixed pixel budget.
type ScratchPool struct {
	maxPixels int
	pool      sync.Pool
}

// NewScratchPool returns a pool refusing requests above maxPixels. Zero or a
// negative value means no limit.
func NewScratchPool(maxPixels int) *ScratchPool {
	return &ScratchPool{maxPixels: maxPixels}
}

// Get returns a buffer of exactly n pixels. Its contents are undefined.
func (p *ScratchPool) Get(n int) ([]uint16, error) {
	if n <= 0 || (p.maxPixels > 0 && n > p.maxPixels) {
		return nil, ErrScratchUnavailable
	}
	if buf, ok := p.pool.Get().(*[]uint16); ok && cap(*buf) >= n {
		return (*buf)[:n], nil
	}
	return make([]uint16, n), nil
}

// Put returns a buffer obtained from Get.
func (p *ScratchPool) Put(buf []uint16) {
	if buf == nil {
		return
	}
	p.pool.Put(&buf)
}
