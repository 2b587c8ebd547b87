// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bbrot

import "math"

// Grid is a Steps x Steps lattice of points in the complex plane. Point
// (row, col) sits at (XMin + col*DX, YMin + row*DY). Grids are immutable.
type Grid struct {
	Steps  int
	XMin   float64
	YMin   float64
	DX, DY float64
}

// Len returns the number of grid points.
func (g Grid) Len() int { return g.Steps * g.Steps }

// Point returns the plane coordinates of grid point (row, col).
func (g Grid) Point(row, col int) (x, y float64) {
	return g.XMin + float64(col)*g.DX, g.YMin + float64(row)*g.DY
}

// Coords returns row-major arrays of the real and imaginary parts of every
// grid point.
func (g Grid) Coords() (x0, y0 []float64) {
	n := g.Len()
	x0 = make([]float64, n)
	y0 = make([]float64, n)
	for row := 0; row < g.Steps; row++ {
		for col := 0; col < g.Steps; col++ {
			i := row*g.Steps + col
			x0[i], y0[i] = g.Point(row, col)
		}
	}
	return x0, y0
}

// CellIndex returns the row-major index of the grid cell containing (x, y).
// ok is false when the point lies outside the grid.
func (g Grid) CellIndex(x, y float64) (idx int, ok bool) {
	fc := math.Floor((x - g.XMin) / g.DX)
	fr := math.Floor((y - g.YMin) / g.DY)
	// Comparisons on float64 first so NaN and huge values never convert.
	if !(fc >= 0 && fc < float64(g.Steps) && fr >= 0 && fr < float64(g.Steps)) {
		return 0, false
	}
	return int(fr)*g.Steps + int(fc), true
}

// EscapeField holds one escape count per grid point, row-major.
// A count equal to MaxIters means the point never escaped within the horizon.
type EscapeField struct {
	Steps    int
	MaxIters int32
	Iters    []int32
}

// At returns the escape count of grid point (row, col).
func (f EscapeField) At(row, col int) int32 {
	return f.Iters[row*f.Steps+col]
}

// Maxed reports whether grid point (row, col) never escaped.
func (f EscapeField) Maxed(row, col int) bool {
	return f.At(row, col) == f.MaxIters
}

// Histogram counts orbit visits per grid cell, row-major.
type Histogram struct {
	Steps  int
	Counts []uint32
}

// NewHistogram returns a zeroed steps x steps histogram.
func NewHistogram(steps int) Histogram {
	return Histogram{Steps: steps, Counts: make([]uint32, steps*steps)}
}

// At returns the count of cell (row, col).
func (h Histogram) At(row, col int) uint32 {
	return h.Counts[row*h.Steps+col]
}

// Total returns the sum of all counts.
func (h Histogram) Total() uint64 {
	var t uint64
	for _, c := range h.Counts {
		t += uint64(c)
	}
	return t
}

// Max returns the largest count.
func (h Histogram) Max() uint32 {
	var m uint32
	for _, c := range h.Counts {
		if c > m {
			m = c
		}
	}
	return m
}

// Add accumulates other into h element-wise.
// Both histograms must have the same size.
func (h Histogram) Add(other Histogram) {
	for i, c := range other.Counts {
		h.Counts[i] += c
	}
}

// Sub returns h - prev, clamped at zero. Used to isolate the visits added
// between two checkpoints.
func (h Histogram) Sub(prev Histogram) Histogram {
	out := NewHistogram(h.Steps)
	for i, c := range h.Counts {
		if p := prev.Counts[i]; c > p {
			out.Counts[i] = c - p
		}
	}
	return out
}

// Clone returns a deep copy of h.
func (h Histogram) Clone() Histogram {
	out := Histogram{Steps: h.Steps, Counts: make([]uint32, len(h.Counts))}
	copy(out.Counts, h.Counts)
	return out
}

// Clear zeroes every count.
func (h Histogram) Clear() {
	clear(h.Counts)
}

// Equal reports whether h and other hold identical counts.
func (h Histogram) Equal(other Histogram) bool {
	if h.Steps != other.Steps || len(h.Counts) != len(other.Counts) {
		return false
	}
	for i, c := range h.Counts {
		if other.Counts[i] != c {
			return false
		}
	}
	return true
}
