// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bbrot

import (
	"errors"
	"math/rand/v2"
)

// ErrNoFrontier is returned when the escape field has no frontier cells.
// It is a non-fatal empty result.
var ErrNoFrontier = errors.New("bbrot: no frontier cells")

// Sampler draws seeds inside frontier cells and keeps those whose escape
// count falls strictly inside (MinItersSamples, MaxItersSamples).
type Sampler struct {
	Device Device
	Config Config

	// Rand is the source of cell offsets. Nil uses a randomly seeded PCG.
	Rand *rand.Rand
}

// PerCell returns the number of samples drawn in each of n cells:
// 1 + Samples/n.
func PerCell(samples, n int) int {
	if n <= 0 {
		return 0
	}
	return 1 + samples/n
}

// Sample draws PerCell(Samples, len(cells)) uniform points in every cell,
// evaluates them in one batch at MaxItersSamples and returns the accepted
// seeds. Points are drawn round-robin over the cells. An empty result is
// not an error.
func (s Sampler) Sample(grid Grid, cells []Cell) ([]Seed, error) {
	if len(cells) == 0 {
		return nil, ErrNoFrontier
	}
	cfg := s.Config
	rng := s.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // G404: not security sensitive
	}

	total := len(cells) * PerCell(cfg.Samples, len(cells))
	x0 := make([]float64, total)
	y0 := make([]float64, total)
	for k := range total {
		c := cells[k%len(cells)]
		x, y := grid.Point(c.Row, c.Col)
		x0[k] = x + rng.Float64()*grid.DX
		y0[k] = y + rng.Float64()*grid.DY
	}
	Logger().Debug("sampling frontier", "cells", len(cells), "points", total)

	iters, err := EscapeTimes(s.Device, cfg, x0, y0, cfg.MaxItersSamples)
	if err != nil {
		return nil, err
	}

	var seeds []Seed
	for k, n := range iters {
		if InWindow(cfg, n) {
			seeds = append(seeds, Seed{X: x0[k], Y: y0[k], OrbitLength: n})
		}
	}
	return seeds, nil
}

// InWindow reports whether an escape count lies strictly inside the
// sampling window.
func InWindow(cfg Config, n int32) bool {
	return cfg.MinItersSamples < n && n < cfg.MaxItersSamples
}
