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

// escapePointSize is the byte size of one Point in escape.wgsl.
const escapePointSize = 24

const escapeParamsSize = 16

// maxWorkgroups is the WebGPU default maxComputeWorkgroupsPerDimension.
const maxWorkgroups = 65535

// escapeChunkPoints is the largest number of points one dispatch covers:
// bounded by both the workgroup count and the storage binding size.
const escapeChunkPoints = min(maxWorkgroups*workgroupSize, maxBindingSize/escapePointSize)

// escapeChunk is one points buffer with its own params and bind group.
type escapeChunk struct {
	count  int
	params hal.Buffer
	points hal.Buffer
	bind   hal.BindGroup
}

type escapeBatch struct {
	d      *Device
	count  int
	chunks []escapeChunk
}

// NewEscapeBatch implements bbrot.Device. Points are split into chunks that
// fit one binding and one dispatch.
func (d *Device) NewEscapeBatch(x0, y0 []float64) (bbrot.EscapeBatch, error) {
	if len(x0) != len(y0) {
		return nil, fmt.Errorf("gpu: escape batch: %d x values, %d y values", len(x0), len(y0))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return nil, errNotReady
	}

	b := &escapeBatch{d: d, count: len(x0)}
	for start := 0; start < len(x0); start += escapeChunkPoints {
		end := min(start+escapeChunkPoints, len(x0))
		c, err := d.newEscapeChunk(x0[start:end], y0[start:end])
		if err != nil {
			b.releaseLocked()
			return nil, err
		}
		b.chunks = append(b.chunks, c)
	}
	return b, nil
}

func (d *Device) newEscapeChunk(x0, y0 []float64) (escapeChunk, error) {
	c := escapeChunk{count: len(x0)}
	size := uint64(len(x0)) * escapePointSize
	var err error
	c.params, err = d.createBuffer("bbrot_escape_params", escapeParamsSize,
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		return c, err
	}
	c.points, err = d.createBuffer("bbrot_escape_points", size,
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc|gputypes.BufferUsageCopyDst)
	if err != nil {
		d.destroyAll(nil, c.params)
		return c, err
	}
	d.queue.WriteBuffer(c.points, 0, packEscapePoints(x0, y0))

	c.bind, err = d.escape.bindGroup(d.device,
		[]hal.Buffer{c.params, c.points},
		[]uint64{escapeParamsSize, max(size, escapePointSize)})
	if err != nil {
		d.destroyAll(nil, c.params, c.points)
		return c, err
	}
	return c, nil
}

// packEscapePoints lays out points as escape.wgsl Point structs with z = c.
func packEscapePoints(x0, y0 []float64) []byte {
	buf := make([]byte, len(x0)*escapePointSize)
	for i := range x0 {
		o := buf[i*escapePointSize:]
		cx := math.Float32bits(float32(x0[i]))
		cy := math.Float32bits(float32(y0[i]))
		binary.LittleEndian.PutUint32(o[0:], cx)
		binary.LittleEndian.PutUint32(o[4:], cy)
		binary.LittleEndian.PutUint32(o[8:], cx)
		binary.LittleEndian.PutUint32(o[12:], cy)
		// iters and done start at zero.
	}
	return buf
}

// unpackEscapeIters extracts the iteration counts from packed points.
func unpackEscapeIters(buf []byte, dst []int32) {
	for i := range dst {
		n := binary.LittleEndian.Uint32(buf[i*escapePointSize+16:])
		dst[i] = int32(n) //nolint:gosec // G115: bounded by maxIters
	}
}

func packEscapeParams(maxIters, loops int32, count int) []byte {
	buf := make([]byte, escapeParamsSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(maxIters)) //nolint:gosec // G115: checked non-negative
	binary.LittleEndian.PutUint32(buf[4:], uint32(loops))    //nolint:gosec // G115: checked non-negative
	binary.LittleEndian.PutUint32(buf[8:], uint32(count))    //nolint:gosec // G115: bounded by escapeChunkPoints
	return buf
}

func (b *escapeBatch) Dispatch(maxIters, loops int32) error {
	if maxIters < 0 || loops <= 0 {
		return fmt.Errorf("gpu: escape dispatch: maxIters %d, loops %d", maxIters, loops)
	}
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	if !b.d.ready {
		return errNotReady
	}
	for i := range b.chunks {
		c := &b.chunks[i]
		b.d.queue.WriteBuffer(c.params, 0, packEscapeParams(maxIters, loops, c.count))
		err := b.d.submit("bbrot_escape", &pass{k: b.d.escape, bind: c.bind, groups: workgroups(c.count)}, nil)
		if err != nil {
			return fmt.Errorf("gpu: escape dispatch: %w", err)
		}
	}
	return nil
}

func (b *escapeBatch) ReadIters(dst []int32) error {
	if len(dst) != b.count {
		return fmt.Errorf("gpu: read iters: dst has %d entries, batch has %d", len(dst), b.count)
	}
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	if !b.d.ready {
		return errNotReady
	}
	off := 0
	for _, c := range b.chunks {
		raw, err := b.d.readback("bbrot_escape_points", c.points, uint64(c.count)*escapePointSize)
		if err != nil {
			return fmt.Errorf("gpu: read iters: %w", err)
		}
		unpackEscapeIters(raw, dst[off:off+c.count])
		off += c.count
	}
	return nil
}

func (b *escapeBatch) Release() {
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	b.releaseLocked()
}

func (b *escapeBatch) releaseLocked() {
	for _, c := range b.chunks {
		b.d.destroyAll(c.bind, c.params, c.points)
	}
	b.chunks = nil
}
