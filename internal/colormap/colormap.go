// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package colormap turns orbit histograms into images.
//
// Counts are normalized to [0, 1], square-rooted to lift faint orbits and
// looked up in a 256-entry palette. Images are rotated so the real axis runs
// vertically with the negative end at the top.
package colormap

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/gogpu/bbrot"
)

// Palette maps an intensity index to a color.
type Palette []color.RGBA

// Flame returns the black-red-yellow-white ramp: red rises first, then
// green, then blue, each three times as fast as the index.
func Flame() Palette {
	p := make(Palette, 256)
	for x := range p {
		r := min(255, 3*x)
		g := min(255, max(0, 3*x-r))
		b := min(255, max(0, 3*x-r-g))
		p[x] = color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255} //nolint:gosec // G115: clamped to 255
	}
	return p
}

// At returns the color for intensity v in [0, 1], truncating toward black.
func (p Palette) At(v float64) color.RGBA {
	switch {
	case !(v > 0):
		return p[0]
	case v >= 1:
		return p[len(p)-1]
	}
	return p[int(v*float64(len(p)-1))]
}

// Still colors a histogram by sqrt(count / max). An empty histogram gives
// a black image.
func Still(h bbrot.Histogram, p Palette) *image.RGBA {
	peak := float64(h.Max())
	img := image.NewRGBA(image.Rect(0, 0, h.Steps, h.Steps))
	if peak == 0 {
		fill(img, p[0])
		return Rotate(img)
	}
	for i, c := range h.Counts {
		setIndex(img, i, h.Steps, p.At(math.Sqrt(float64(c)/peak)))
	}
	return Rotate(img)
}

// Frame colors one animation frame. Each cell takes the larger of its
// normalized total count and its normalized increase since prev, so newly
// visited regions stand out. prev may be the zero Histogram for the first
// frame.
func Frame(counts, prev bbrot.Histogram, p Palette) *image.RGBA {
	diff := counts
	if prev.Counts != nil {
		diff = counts.Sub(prev)
	}
	peak := float64(max(1, counts.Max()))
	peakDiff := float64(max(1, diff.Max()))

	img := image.NewRGBA(image.Rect(0, 0, counts.Steps, counts.Steps))
	for i, c := range counts.Counts {
		v := max(float64(c)/peak, float64(diff.Counts[i])/peakDiff)
		setIndex(img, i, counts.Steps, p.At(math.Sqrt(v)))
	}
	return Rotate(img)
}

// Rotate turns src a quarter turn clockwise.
func Rotate(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))

	// dst.x = h - src.y, dst.y = src.x
	s2d := f64.Aff3{
		0, -1, float64(h),
		1, 0, 0,
	}
	draw.NearestNeighbor.Transform(dst, s2d, src, b, draw.Src, nil)
	return dst
}

func setIndex(img *image.RGBA, i, steps int, c color.RGBA) {
	row, col := i/steps, i%steps
	o := img.PixOffset(col, row)
	img.Pix[o+0] = c.R
	img.Pix[o+1] = c.G
	img.Pix[o+2] = c.B
	img.Pix[o+3] = c.A
}

func fill(img *image.RGBA, c color.RGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
}
