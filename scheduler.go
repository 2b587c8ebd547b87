// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bbrot

import (
	"context"
	"errors"
	"fmt"
)

// ErrMaxRoundsExceeded is returned when a checkpoint does not finish within
// the round limit, meaning some seed never reports done.
var ErrMaxRoundsExceeded = errors.New("bbrot: max dispatch rounds exceeded")

// DoneSet is the per-seed completion state of one checkpoint.
type DoneSet []bool

// Count returns the number of finished seeds.
func (d DoneSet) Count() int {
	n := 0
	for _, v := range d {
		if v {
			n++
		}
	}
	return n
}

// All reports whether every seed has finished.
func (d DoneSet) All() bool {
	for _, v := range d {
		if !v {
			return false
		}
	}
	return true
}

// Frame is the immutable result of one checkpoint. Counts holds every visit
// made by every seed up to Bound, including earlier checkpoints.
type Frame struct {
	// Index is the position of the checkpoint in the requested sequence.
	Index int

	// Bound is the checkpoint iteration bound (NoBound = full orbits).
	Bound int32

	// Counts is the merged histogram of all slots.
	Counts Histogram

	// Done is the completion state at the end of the checkpoint.
	Done DoneSet

	// Rounds is the number of dispatch rounds the checkpoint took.
	Rounds int
}

// Scheduler replays seed orbits on a Device into a bounded pool of
// accumulation buffers.
type Scheduler struct {
	Device Device
	Config Config
}

// Render replays every seed orbit to completion and returns the merged
// histogram.
func (s Scheduler) Render(ctx context.Context, seeds []Seed) (Histogram, error) {
	var out Histogram
	err := s.Accumulate(ctx, seeds, []int32{NoBound}, func(f Frame) error {
		out = f.Counts
		return nil
	})
	return out, err
}

// Accumulate replays seeds for each checkpoint in order and calls yield
// with the cumulative histogram of that checkpoint. Checkpoints must be
// ascending; NoBound may only appear last.
//
// Each checkpoint runs rounds of: assign the earliest unfinished seeds to
// the slots, dispatch one bounded step, read back the done flags. Orbit
// positions persist across checkpoints, so a later checkpoint continues
// where the previous one stopped.
//
// With no seeds, yield receives all-zero histograms and the device is not
// used. A non-nil error from yield stops the run and is returned.
func (s Scheduler) Accumulate(ctx context.Context, seeds []Seed, checkpoints []int32, yield func(Frame) error) error {
	if err := validateCheckpoints(checkpoints); err != nil {
		return err
	}
	log := Logger()
	cfg := s.Config

	if len(seeds) == 0 {
		log.Warn("no seeds to trace")
		for i, b := range checkpoints {
			f := Frame{Index: i, Bound: b, Counts: NewHistogram(cfg.Steps), Done: DoneSet{}}
			if err := yield(f); err != nil {
				return err
			}
		}
		return nil
	}

	pool, err := NewBufferPool(cfg, len(seeds), s.Device.MaxBufferSize())
	if err != nil {
		return err
	}
	batch, err := s.Device.NewTraceBatch(cfg.Grid(), seeds, pool.Slots())
	if err != nil {
		return fmt.Errorf("bbrot: trace batch: %w", err)
	}
	defer batch.Release()

	log.Info("tracing orbits", "seeds", len(seeds), "slots", pool.Len(),
		"checkpoints", len(checkpoints), "device", s.Device.Name())

	done := make(DoneSet, len(seeds))
	for i, bound := range checkpoints {
		if i > 0 {
			if err := batch.ResetDone(); err != nil {
				return fmt.Errorf("bbrot: checkpoint %d: reset: %w", i, err)
			}
		}
		clear(done)

		limit := s.roundLimit(seeds, bound, pool.Len())
		rounds := 0
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			assign := pool.Assign(done)
			if len(assign) == 0 {
				break
			}
			if rounds == limit {
				return fmt.Errorf("%w: checkpoint %d (bound %d): %d of %d seeds done after %d rounds",
					ErrMaxRoundsExceeded, i, bound, done.Count(), len(done), rounds)
			}
			if err := batch.Dispatch(assign, bound, cfg.MaxLoops); err != nil {
				return fmt.Errorf("bbrot: trace dispatch: %w", err)
			}
			if err := batch.ReadDone(done); err != nil {
				return fmt.Errorf("bbrot: trace readback: %w", err)
			}
			rounds++
			log.Debug("trace round", "checkpoint", i, "round", rounds, "assigned", len(assign),
				"done", done.Count())
		}

		if err := batch.ReadSlots(); err != nil {
			return fmt.Errorf("bbrot: slot readback: %w", err)
		}
		frame := Frame{
			Index:  i,
			Bound:  bound,
			Counts: pool.Merge(),
			Done:   append(DoneSet(nil), done...),
			Rounds: rounds,
		}
		log.Debug("checkpoint merged", "checkpoint", i, "bound", bound, "rounds", rounds,
			"visits", frame.Counts.Total())
		if err := yield(frame); err != nil {
			return err
		}
	}
	return nil
}

// roundLimit returns the number of rounds a checkpoint may take before it
// is considered stuck: the configured MaxRounds, or a bound derived from the
// number of slot groups and the dispatches the longest orbit needs.
func (s Scheduler) roundLimit(seeds []Seed, bound int32, slots int) int {
	if s.Config.MaxRounds > 0 {
		return s.Config.MaxRounds
	}
	var longest int32
	for _, sd := range seeds {
		longest = max(longest, sd.OrbitLength)
	}
	if bound >= 0 {
		longest = min(longest, bound)
	}
	groups := (len(seeds) + slots - 1) / slots
	return (groups + 1) * (DispatchCount(longest, s.Config.MaxLoops) + 1)
}

func validateCheckpoints(checkpoints []int32) error {
	if len(checkpoints) == 0 {
		return fmt.Errorf("%w: no checkpoints", ErrInvalidConfig)
	}
	for i, b := range checkpoints {
		switch {
		case b == NoBound:
			if i != len(checkpoints)-1 {
				return fmt.Errorf("%w: unbounded checkpoint %d is not last", ErrInvalidConfig, i)
			}
		case b < 0:
			return fmt.Errorf("%w: checkpoint %d is negative (%d)", ErrInvalidConfig, i, b)
		case i > 0 && b < checkpoints[i-1]:
			return fmt.Errorf("%w: checkpoints not ascending at %d", ErrInvalidConfig, i)
		}
	}
	return nil
}

// AnimationCheckpoints returns the frame bounds of an animation:
// AnimateFPS*AnimateSeconds evenly spaced bounds ending at MinItersSamples.
func AnimationCheckpoints(cfg Config) []int32 {
	frames := int32(cfg.AnimateFPS * cfg.AnimateSeconds) //nolint:gosec // G115: small config values
	if frames <= 0 {
		return []int32{NoBound}
	}
	// int64 so the last step cannot wrap past MaxInt32.
	last := int64(cfg.MinItersSamples)
	step := max(last/int64(frames), 1)
	out := make([]int32, 0, frames)
	for b := step; b <= last; b += step {
		out = append(out, int32(b)) //nolint:gosec // G115: b <= MinItersSamples
	}
	if len(out) == 0 {
		out = append(out, cfg.MinItersSamples)
	}
	return out
}
