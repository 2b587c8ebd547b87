// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bbrot

import "fmt"

// DispatchCount returns the number of bounded dispatches needed to reach
// maxIters when each dispatch advances at most loops iterations.
// It is never less than one.
func DispatchCount(maxIters, loops int32) int {
	if loops <= 0 || maxIters <= 0 {
		return 1
	}
	n := (int(maxIters) + int(loops) - 1) / int(loops)
	return max(n, 1)
}

// EscapeTimes returns, for every point (x0[i], y0[i]), the number of
// iterations of z <- z^2 + c (starting from z = c) performed before
// |z| > 2, or maxIters if the point never escaped. Every count lies in
// [0, maxIters].
//
// The work is issued as DispatchCount(maxIters, cfg.MaxLoops) resumable
// dispatches on dev; the call blocks until all of them have completed.
func EscapeTimes(dev Device, cfg Config, x0, y0 []float64, maxIters int32) ([]int32, error) {
	if maxIters < 0 {
		return nil, fmt.Errorf("bbrot: escape times: negative horizon %d", maxIters)
	}
	iters := make([]int32, len(x0))
	if len(x0) == 0 {
		return iters, nil
	}

	batch, err := dev.NewEscapeBatch(x0, y0)
	if err != nil {
		return nil, fmt.Errorf("bbrot: escape times: %w", err)
	}
	defer batch.Release()

	log := Logger()
	n := DispatchCount(maxIters, cfg.MaxLoops)
	for i := range n {
		log.Debug("escape iters", "dispatch", i+1, "of", n, "points", len(x0), "device", dev.Name())
		if err := batch.Dispatch(maxIters, cfg.MaxLoops); err != nil {
			return nil, fmt.Errorf("bbrot: escape dispatch %d/%d: %w", i+1, n, err)
		}
	}

	if err := batch.ReadIters(iters); err != nil {
		return nil, fmt.Errorf("bbrot: escape readback: %w", err)
	}
	return iters, nil
}

// EvaluateGrid computes the escape field of the configuration grid at the
// MaxItersCells horizon.
func EvaluateGrid(dev Device, cfg Config) (EscapeField, error) {
	x0, y0 := cfg.Grid().Coords()
	iters, err := EscapeTimes(dev, cfg, x0, y0, cfg.MaxItersCells)
	if err != nil {
		return EscapeField{}, err
	}
	return EscapeField{Steps: cfg.Steps, MaxIters: cfg.MaxItersCells, Iters: iters}, nil
}
