//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/bbrot"
)

// traceSeedSize is the byte size of one Seed in trace.wgsl.
const traceSeedSize = 24

const traceParamsSize = 32

type traceBatch struct {
	d     *Device
	grid  bbrot.Grid
	count int
	slots []bbrot.Histogram

	params hal.Buffer
	seeds  hal.Buffer
	done   hal.Buffer
	assign hal.Buffer
	counts hal.Buffer
	bind   hal.BindGroup

	doneBytes   uint64
	countsBytes uint64
}

// NewTraceBatch implements bbrot.Device. All seeds share one binding, and
// the slots are laid out back to back in a single counts buffer.
func (d *Device) NewTraceBatch(grid bbrot.Grid, seeds []bbrot.Seed, slots []bbrot.Histogram) (bbrot.TraceBatch, error) {
	cells := uint64(grid.Len())
	for i, s := range slots {
		if uint64(len(s.Counts)) != cells {
			return nil, fmt.Errorf("gpu: trace batch: slot %d has %d cells, grid has %d", i, len(s.Counts), cells)
		}
	}
	seedBytes := uint64(len(seeds)) * traceSeedSize
	countsBytes := uint64(len(slots)) * cells * 4
	if seedBytes > maxBindingSize || countsBytes > maxBindingSize {
		return nil, fmt.Errorf("gpu: trace batch: %d seeds and %d slots exceed the %d byte binding limit",
			len(seeds), len(slots), maxBindingSize)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return nil, errNotReady
	}

	b := &traceBatch{
		d: d, grid: grid, count: len(seeds), slots: slots,
		doneBytes: uint64(len(seeds)) * 4, countsBytes: countsBytes,
	}
	if err := b.createBuffers(seedBytes); err != nil {
		b.releaseLocked()
		return nil, err
	}
	d.queue.WriteBuffer(b.seeds, 0, packTraceSeeds(seeds))
	d.zeroBuffer(b.done, b.doneBytes)
	d.zeroBuffer(b.counts, countsBytes)

	var err error
	b.bind, err = d.trace.bindGroup(d.device,
		[]hal.Buffer{b.params, b.seeds, b.done, b.assign, b.counts},
		[]uint64{
			traceParamsSize,
			max(seedBytes, traceSeedSize),
			max(b.doneBytes, 4),
			max(uint64(len(slots))*4, 4),
			max(countsBytes, 4),
		})
	if err != nil {
		b.releaseLocked()
		return nil, err
	}
	return b, nil
}

func (b *traceBatch) createBuffers(seedBytes uint64) error {
	storage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	var err error
	if b.params, err = b.d.createBuffer("bbrot_trace_params", traceParamsSize,
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	if b.seeds, err = b.d.createBuffer("bbrot_trace_seeds", seedBytes, storage); err != nil {
		return err
	}
	if b.done, err = b.d.createBuffer("bbrot_trace_done", b.doneBytes, storage); err != nil {
		return err
	}
	if b.assign, err = b.d.createBuffer("bbrot_trace_assign", uint64(len(b.slots))*4,
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	b.counts, err = b.d.createBuffer("bbrot_trace_counts", b.countsBytes, storage)
	return err
}

// packTraceSeeds lays out seeds as trace.wgsl Seed structs with z = c.
func packTraceSeeds(seeds []bbrot.Seed) []byte {
	buf := make([]byte, len(seeds)*traceSeedSize)
	for i, s := range seeds {
		o := buf[i*traceSeedSize:]
		cx := math.Float32bits(float32(s.X))
		cy := math.Float32bits(float32(s.Y))
		binary.LittleEndian.PutUint32(o[0:], cx)
		binary.LittleEndian.PutUint32(o[4:], cy)
		binary.LittleEndian.PutUint32(o[8:], cx)
		binary.LittleEndian.PutUint32(o[12:], cy)
		binary.LittleEndian.PutUint32(o[16:], 0)
		binary.LittleEndian.PutUint32(o[20:], uint32(max(s.OrbitLength, 0))) //nolint:gosec // G115: clamped
	}
	return buf
}

func packTraceParams(g bbrot.Grid, bound, loops int32, count int) []byte {
	buf := make([]byte, traceParamsSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(bound)) //nolint:gosec // G115: two's complement carries NoBound
	binary.LittleEndian.PutUint32(buf[4:], uint32(loops)) //nolint:gosec // G115: checked positive
	binary.LittleEndian.PutUint32(buf[8:], uint32(count)) //nolint:gosec // G115: bounded by slot count
	binary.LittleEndian.PutUint32(buf[12:], uint32(g.Steps))
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(float32(g.XMin)))
	binary.LittleEndian.PutUint32(buf[20:], math.Float32bits(float32(g.YMin)))
	binary.LittleEndian.PutUint32(buf[24:], math.Float32bits(float32(1/g.DX)))
	binary.LittleEndian.PutUint32(buf[28:], math.Float32bits(float32(1/g.DY)))
	return buf
}

func packAssign(assign []int32) []byte {
	buf := make([]byte, len(assign)*4)
	for k, s := range assign {
		binary.LittleEndian.PutUint32(buf[k*4:], uint32(s)) //nolint:gosec // G115: checked in range
	}
	return buf
}

func (b *traceBatch) Dispatch(assign []int32, bound, loops int32) error {
	if len(assign) > len(b.slots) {
		return fmt.Errorf("gpu: trace dispatch: %d seeds for %d slots", len(assign), len(b.slots))
	}
	if loops <= 0 {
		return fmt.Errorf("gpu: trace dispatch: loops %d", loops)
	}
	for _, s := range assign {
		if s < 0 || int(s) >= b.count {
			return fmt.Errorf("gpu: trace dispatch: seed index %d out of range", s)
		}
	}
	if len(assign) == 0 {
		return nil
	}

	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	if !b.d.ready {
		return errNotReady
	}
	b.d.logger().Debug("trace dispatch", "seeds", len(assign), "bound", bound, "loops", loops,
		"workgroups", workgroups(len(assign)))
	b.d.queue.WriteBuffer(b.assign, 0, packAssign(assign))
	b.d.queue.WriteBuffer(b.params, 0, packTraceParams(b.grid, bound, loops, len(assign)))
	if err := b.d.submit("bbrot_trace", &pass{k: b.d.trace, bind: b.bind, groups: workgroups(len(assign))}, nil); err != nil {
		return fmt.Errorf("gpu: trace dispatch: %w", err)
	}
	return nil
}

func (b *traceBatch) ReadDone(dst []bool) error {
	if len(dst) != b.count {
		return fmt.Errorf("gpu: read done: dst has %d entries, batch has %d", len(dst), b.count)
	}
	if b.count == 0 {
		return nil
	}
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	if !b.d.ready {
		return errNotReady
	}
	raw, err := b.d.readback("bbrot_trace_done", b.done, b.doneBytes)
	if err != nil {
		return fmt.Errorf("gpu: read done: %w", err)
	}
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint32(raw[i*4:]) != 0
	}
	return nil
}

func (b *traceBatch) ResetDone() error {
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	if !b.d.ready {
		return errNotReady
	}
	b.d.zeroBuffer(b.done, b.doneBytes)
	return nil
}

// ReadSlots overwrites the host slots with the device counts, which
// accumulate for the lifetime of the batch.
func (b *traceBatch) ReadSlots() error {
	if b.countsBytes == 0 {
		return nil
	}
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	if !b.d.ready {
		return errNotReady
	}
	raw, err := b.d.readback("bbrot_trace_counts", b.counts, b.countsBytes)
	if err != nil {
		return fmt.Errorf("gpu: read slots: %w", err)
	}
	unpackCounts(raw, b.slots)
	return nil
}

func unpackCounts(raw []byte, slots []bbrot.Histogram) {
	off := 0
	for _, s := range slots {
		for i := range s.Counts {
			s.Counts[i] = binary.LittleEndian.Uint32(raw[off:])
			off += 4
		}
	}
}

func (b *traceBatch) Release() {
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	b.releaseLocked()
}

func (b *traceBatch) releaseLocked() {
	b.d.destroyAll(b.bind, b.params, b.seeds, b.done, b.assign, b.counts)
	b.bind = nil
	b.params, b.seeds, b.done, b.assign, b.counts = nil, nil, nil, nil, nil
}
