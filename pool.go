// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bbrot

import (
	"errors"
	"fmt"
)

// ErrMemoryBudgetExceeded is returned when the accumulation budget cannot
// hold a single buffer.
var ErrMemoryBudgetExceeded = errors.New("bbrot: memory budget exceeded")

// PoolStats describes the memory held by a BufferPool.
type PoolStats struct {
	// BudgetBytes is the effective budget (config budget, capped by the
	// device buffer limit).
	BudgetBytes uint64

	// UsedBytes is the memory held by the slots.
	UsedBytes uint64

	// Slots is the number of accumulation buffers.
	Slots int

	// Utilization is UsedBytes / BudgetBytes (0.0 to 1.0).
	Utilization float64
}

// String returns a human-readable summary.
func (s PoolStats) String() string {
	return fmt.Sprintf("Pool[%d slots, %.1f%% used, %d/%d MB]",
		s.Slots,
		s.Utilization*100,
		s.UsedBytes/(1024*1024),
		s.BudgetBytes/(1024*1024))
}

// BufferPool owns the accumulation buffers of one trace run. Its size is
// fixed at construction: N = min(budget / buffer size, MaxRenderBufs,
// seed count), so N buffers never exceed the budget.
//
// BufferPool is not safe for concurrent use; the scheduler owns it.
type BufferPool struct {
	steps       int
	bufferBytes uint64
	budgetBytes uint64
	slots       []Histogram
	assign      []int32
}

// NewBufferPool sizes and allocates the pool for seedCount seeds.
// deviceLimit is the largest buffer the device can bind (0 = unlimited);
// all slots are bound as one array, so it caps the budget.
//
// A pool for zero seeds holds no slots. A budget too small for one buffer
// returns ErrMemoryBudgetExceeded.
func NewBufferPool(cfg Config, seedCount int, deviceLimit uint64) (*BufferPool, error) {
	budget := cfg.MaxRenderBufMem
	if deviceLimit > 0 && deviceLimit < budget {
		budget = deviceLimit
	}
	p := &BufferPool{
		steps:       cfg.Steps,
		bufferBytes: cfg.BufferBytes(),
		budgetBytes: budget,
	}
	if seedCount <= 0 {
		return p, nil
	}

	n := BufferCount(cfg, budget, seedCount)
	if n == 0 {
		return nil, fmt.Errorf("%w: one %d MB buffer, budget %d MB",
			ErrMemoryBudgetExceeded, p.bufferBytes/(1024*1024), budget/(1024*1024))
	}

	p.slots = make([]Histogram, n)
	for i := range p.slots {
		p.slots[i] = NewHistogram(cfg.Steps)
	}
	p.assign = make([]int32, 0, n)

	Logger().Debug("buffer pool allocated", "stats", p.Stats().String())
	return p, nil
}

// BufferCount returns min(budget / buffer size, cfg.MaxRenderBufs if set,
// seedCount).
func BufferCount(cfg Config, budget uint64, seedCount int) int {
	perBuf := cfg.BufferBytes()
	if perBuf == 0 || seedCount <= 0 {
		return 0
	}
	fit := budget / perBuf
	n := uint64(seedCount) //nolint:gosec // G115: seedCount checked positive
	if fit < n {
		n = fit
	}
	if cfg.MaxRenderBufs > 0 && uint64(cfg.MaxRenderBufs) < n {
		n = uint64(cfg.MaxRenderBufs)
	}
	return int(n) //nolint:gosec // G115: n <= seedCount
}

// Len returns the number of slots.
func (p *BufferPool) Len() int { return len(p.slots) }

// Slots returns the slot buffers. The device writes into them; the caller
// must not retain them beyond the pool's lifetime.
func (p *BufferPool) Slots() []Histogram { return p.slots }

// Assign returns the seed indices for the next dispatch: the lowest
// unfinished indices in ascending order, at most one per slot. Slot k
// receives the k-th returned seed. The returned slice is reused by the
// next call.
func (p *BufferPool) Assign(done []bool) []int32 {
	p.assign = p.assign[:0]
	for i, d := range done {
		if len(p.assign) == len(p.slots) {
			break
		}
		if !d {
			p.assign = append(p.assign, int32(i)) //nolint:gosec // G115: seed count fits int32
		}
	}
	return p.assign
}

// Merge returns the element-wise sum of all slots as a new histogram.
func (p *BufferPool) Merge() Histogram {
	out := NewHistogram(p.steps)
	for _, s := range p.slots {
		out.Add(s)
	}
	return out
}

// Clear zeroes every slot.
func (p *BufferPool) Clear() {
	for _, s := range p.slots {
		s.Clear()
	}
}

// Stats returns the pool memory statistics.
func (p *BufferPool) Stats() PoolStats {
	used := p.bufferBytes * uint64(len(p.slots))
	var util float64
	if p.budgetBytes > 0 {
		util = float64(used) / float64(p.budgetBytes)
	}
	return PoolStats{
		BudgetBytes: p.budgetBytes,
		UsedBytes:   used,
		Slots:       len(p.slots),
		Utilization: util,
	}
}
