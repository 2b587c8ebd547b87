// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bbrot

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/bbrot/internal/parallel"
)

// bailout is the squared escape radius of z <- z^2 + c.
const bailout = 4.0

// SoftwareDevice runs the escape and trace kernels on the CPU in float64.
// It is the reference implementation and the fallback when no GPU device
// is registered. Each dispatch is spread over a worker pool and returns
// once every work item has finished.
type SoftwareDevice struct {
	mu      sync.Mutex
	workers int
	pool    *parallel.WorkerPool
	log     atomic.Pointer[slog.Logger]
}

var _ Device = (*SoftwareDevice)(nil)

// NewSoftwareDevice creates a software device with the given number of
// workers (0 = GOMAXPROCS). Init must be called before use; RegisterDevice
// does this.
func NewSoftwareDevice(workers int) *SoftwareDevice {
	return &SoftwareDevice{workers: workers}
}

var defaultSoftware = sync.OnceValue(func() *SoftwareDevice {
	d := NewSoftwareDevice(0)
	_ = d.Init()
	return d
})

// Name returns "software".
func (d *SoftwareDevice) Name() string { return "software" }

// Init starts the worker pool.
func (d *SoftwareDevice) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool == nil || !d.pool.IsRunning() {
		d.pool = parallel.NewWorkerPool(d.workers)
	}
	return nil
}

// Close stops the worker pool.
func (d *SoftwareDevice) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool != nil {
		d.pool.Close()
	}
}

// SetLogger tags l with the device name for the device's own records.
// bbrot.SetLogger and RegisterDevice call it.
func (d *SoftwareDevice) SetLogger(l *slog.Logger) {
	d.log.Store(l.With("device", d.Name()))
}

func (d *SoftwareDevice) logger() *slog.Logger {
	if l := d.log.Load(); l != nil {
		return l
	}
	return Logger()
}

// MaxBufferSize returns 0: host memory has no per-buffer binding limit.
func (d *SoftwareDevice) MaxBufferSize() uint64 { return 0 }

func (d *SoftwareDevice) workerPool() *parallel.WorkerPool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool == nil {
		d.pool = parallel.NewWorkerPool(d.workers)
	}
	return d.pool
}

// NewEscapeBatch implements Device.
func (d *SoftwareDevice) NewEscapeBatch(x0, y0 []float64) (EscapeBatch, error) {
	if len(x0) != len(y0) {
		return nil, fmt.Errorf("bbrot: escape batch: %d x values, %d y values", len(x0), len(y0))
	}
	b := &softwareEscapeBatch{
		pool:  d.workerPool(),
		x0:    x0,
		y0:    y0,
		x:     make([]float64, len(x0)),
		y:     make([]float64, len(y0)),
		iters: make([]int32, len(x0)),
		done:  make([]bool, len(x0)),
	}
	copy(b.x, x0)
	copy(b.y, y0)
	return b, nil
}

// NewTraceBatch implements Device. Slots are written in place, so
// ReadSlots is a no-op.
func (d *SoftwareDevice) NewTraceBatch(grid Grid, seeds []Seed, slots []Histogram) (TraceBatch, error) {
	for i, s := range slots {
		if len(s.Counts) != grid.Len() {
			return nil, fmt.Errorf("bbrot: trace batch: slot %d has %d cells, grid has %d",
				i, len(s.Counts), grid.Len())
		}
	}
	b := &softwareTraceBatch{
		dev:   d,
		pool:  d.workerPool(),
		grid:  grid,
		seeds: seeds,
		slots: slots,
		x:     make([]float64, len(seeds)),
		y:     make([]float64, len(seeds)),
		iters: make([]int32, len(seeds)),
		done:  make([]bool, len(seeds)),
	}
	for i, s := range seeds {
		b.x[i], b.y[i] = s.X, s.Y
	}
	return b, nil
}

type softwareEscapeBatch struct {
	pool   *parallel.WorkerPool
	x0, y0 []float64
	x, y   []float64
	iters  []int32
	done   []bool
}

func (b *softwareEscapeBatch) Dispatch(maxIters, loops int32) error {
	b.pool.For(len(b.x0), func(i int) {
		if b.done[i] {
			return
		}
		b.x[i], b.y[i], b.iters[i], b.done[i] = escapeKernel(
			b.x0[i], b.y0[i], b.x[i], b.y[i], b.iters[i], maxIters, loops)
	})
	return nil
}

func (b *softwareEscapeBatch) ReadIters(dst []int32) error {
	if len(dst) != len(b.iters) {
		return fmt.Errorf("bbrot: read iters: dst has %d entries, batch has %d", len(dst), len(b.iters))
	}
	copy(dst, b.iters)
	return nil
}

func (b *softwareEscapeBatch) Release() {
	b.x, b.y, b.iters, b.done = nil, nil, nil, nil
}

// escapeKernel advances z <- z^2 + c by at most loops iterations from the
// saved state (x, y, n) and reports whether the point is finished: escaped
// or at the maxIters horizon.
func escapeKernel(cx, cy, x, y float64, n, maxIters, loops int32) (float64, float64, int32, bool) {
	for range loops {
		if n >= maxIters || x*x+y*y > bailout {
			break
		}
		x, y = x*x-y*y+cx, 2*x*y+cy
		n++
	}
	return x, y, n, n >= maxIters || x*x+y*y > bailout
}

type softwareTraceBatch struct {
	dev   *SoftwareDevice
	pool  *parallel.WorkerPool
	grid  Grid
	seeds []Seed
	slots []Histogram
	x, y  []float64
	iters []int32
	done  []bool
}

func (b *softwareTraceBatch) Dispatch(assign []int32, bound, loops int32) error {
	if len(assign) > len(b.slots) {
		return fmt.Errorf("bbrot: trace dispatch: %d seeds for %d slots", len(assign), len(b.slots))
	}
	for _, s := range assign {
		if s < 0 || int(s) >= len(b.seeds) {
			return fmt.Errorf("bbrot: trace dispatch: seed index %d out of range", s)
		}
	}
	b.dev.logger().Debug("trace dispatch", "seeds", len(assign), "bound", bound, "loops", loops)
	// One seed per task: each can run up to loops iterations.
	b.pool.ForChunk(len(assign), 1, func(k int) {
		s := assign[k]
		if b.done[s] {
			return
		}
		seed := b.seeds[s]
		limit := seed.OrbitLength
		if bound >= 0 && bound < limit {
			limit = bound
		}
		b.x[s], b.y[s], b.iters[s], b.done[s] = traceKernel(b.grid, b.slots[k].Counts,
			seed.X, seed.Y, b.x[s], b.y[s], b.iters[s], limit, loops)
	})
	return nil
}

func (b *softwareTraceBatch) ReadDone(dst []bool) error {
	if len(dst) != len(b.done) {
		return fmt.Errorf("bbrot: read done: dst has %d entries, batch has %d", len(dst), len(b.done))
	}
	copy(dst, b.done)
	return nil
}

func (b *softwareTraceBatch) ResetDone() error {
	clear(b.done)
	return nil
}

func (b *softwareTraceBatch) ReadSlots() error { return nil }

func (b *softwareTraceBatch) Release() {
	b.x, b.y, b.iters, b.done = nil, nil, nil, nil
}

// traceKernel replays an orbit from the saved state (x, y, n), counting
// every visited in-grid point into counts before stepping, until limit
// iterations, escape, or loops steps in this dispatch.
func traceKernel(g Grid, counts []uint32, cx, cy, x, y float64, n, limit, loops int32) (float64, float64, int32, bool) {
	for range loops {
		if n >= limit || x*x+y*y > bailout {
			break
		}
		if idx, ok := g.CellIndex(x, y); ok {
			counts[idx]++
		}
		x, y = x*x-y*y+cx, 2*x*y+cy
		n++
	}
	return x, y, n, n >= limit || x*x+y*y > bailout
}
