package main

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/guptarohit/asciigraph"
)

const (
	GRAPH_WIDTH  = 240
	GRAPH_HEIGHT = 120
)

// drawMemoryGraph draws the free memory history on img at the given position.
// The threshold line marks minFree.
func drawMemoryGraph(img *image.RGBA, x, y, width, height int, samples []MemorySample, minFree uint64) {
	if width <= 0 || height <= 0 {
		return
	}

	bgColor := color.RGBA{0, 0, 0, 80}
	for dy := 0; dy < height; dy++ {
		for dx := 0; dx < width; dx++ {
			if x+dx < img.Bounds().Max.X && y+dy < img.Bounds().Max.Y {
				existing := img.RGBAAt(x+dx, y+dy)
				img.Set(x+dx, y+dy, blendColors(existing, bgColor))
			}
		}
	}

	if len(samples) < 2 {
		zeroY := y + height/2
		for dx := 0; dx < width; dx++ {
			if x+dx < img.Bounds().Max.X && zeroY < img.Bounds().Max.Y {
				img.Set(x+dx, zeroY, color.RGBA{80, 80, 80, 120})
			}
		}
		return
	}

	maxFree := float64(minFree)
	for _, s := range samples {
		maxFree = math.Max(maxFree, float64(s.FreeBytes))
	}
	maxFree *= 1.1
	if maxFree == 0 {
		maxFree = 1
	}

	limitY := y + height - int(float64(height)*float64(minFree)/maxFree)
	if limitY >= y && limitY < y+height {
		for dx := 0; dx < width; dx += 2 {
			img.Set(x+dx, limitY, color.RGBA{255, 100, 100, 160})
		}
	}

	timeRange := samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp)
	if timeRange == 0 {
		timeRange = time.Second
	}
	for i := 1; i < len(samples); i++ {
		t1 := samples[i-1].Timestamp.Sub(samples[0].Timestamp)
		t2 := samples[i].Timestamp.Sub(samples[0].Timestamp)

		x1 := x + int(float64(width-1)*float64(t1)/float64(timeRange))
		x2 := x + int(float64(width-1)*float64(t2)/float64(timeRange))
		y1 := y + height - 1 - int(float64(height-1)*float64(samples[i-1].FreeBytes)/maxFree)
		y2 := y + height - 1 - int(float64(height-1)*float64(samples[i].FreeBytes)/maxFree)

		lineColor := color.RGBA{100, 255, 100, 200}
		if samples[i].FreeBytes < minFree {
			lineColor = color.RGBA{255, 100, 100, 200}
		}
		drawLine(img, x1, y1, x2, y2, lineColor)
	}
}

// drawLine draws a line between two points using Bresenham's algorithm
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, clr color.RGBA) {
	dx := abs(x1 - x0)
	dy := abs(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		if x0 >= 0 && y0 >= 0 && x0 < img.Bounds().Max.X && y0 < img.Bounds().Max.Y {
			img.Set(x0, y0, clr)
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// blendColors performs alpha blending between two colors
func blendColors(bg, fg color.RGBA) color.RGBA {
	alpha := float64(fg.A) / 255.0
	invAlpha := 1.0 - alpha

	return color.RGBA{
		R: uint8(float64(fg.R)*alpha + float64(bg.R)*invAlpha),
		G: uint8(float64(fg.G)*alpha + float64(bg.G)*invAlpha),
		B: uint8(float64(fg.B)*alpha + float64(bg.B)*invAlpha),
		A: uint8(math.Max(float64(bg.A), float64(fg.A))),
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// plotMemoryHistory renders the samples as a terminal chart in MiB.
func plotMemoryHistory(samples []MemorySample, width int) string {
	if len(samples) == 0 {
		return "no memory samples recorded"
	}
	data := make([]float64, len(samples))
	for i, s := range samples {
		data[i] = float64(s.FreeBytes) / (1 << 20)
	}
	first, last := samples[0].Timestamp, samples[len(samples)-1].Timestamp
	opts := []asciigraph.Option{
		asciigraph.Height(10),
		asciigraph.Precision(1),
		asciigraph.Caption(fmt.Sprintf("free memory (MiB) %s - %s",
			first.Format("15:04:05"), last.Format("15:04:05"))),
	}
	if width > 0 {
		opts = append(opts, asciigraph.Width(width))
	}
	return asciigraph.Plot(data, opts...)
}
