// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bbrot

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrNoSeeds is returned when sampling accepted no seed. It is a non-fatal
// empty result.
var ErrNoSeeds = errors.New("bbrot: no seeds accepted")

// Compute runs the seed search: evaluate the grid, extract the frontier,
// sample it. It returns ErrNoFrontier or ErrNoSeeds when a stage comes up
// empty. rng may be nil.
func Compute(ctx context.Context, dev Device, cfg Config, rng *rand.Rand) ([]Seed, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := Logger()

	field, err := EvaluateGrid(dev, cfg)
	if err != nil {
		return nil, fmt.Errorf("bbrot: evaluate grid: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cells := FrontierCells(field)
	log.Info("cell count", "cells", len(cells))
	if len(cells) == 0 {
		return nil, ErrNoFrontier
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := Sampler{Device: dev, Config: cfg, Rand: rng}
	seeds, err := s.Sample(cfg.Grid(), cells)
	if err != nil {
		return nil, fmt.Errorf("bbrot: sample: %w", err)
	}
	log.Info("seed count", "seeds", len(seeds))
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}
	return seeds, nil
}
