// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bbrot

import (
	"errors"
	"sync"

	"github.com/gogpu/gpucontext"
)

// ErrDeviceUnavailable indicates that a compute device could not be
// initialized (no adapter, shader build failure). It is fatal for the run.
var ErrDeviceUnavailable = errors.New("bbrot: compute device unavailable")

// NoBound is the checkpoint value meaning "replay every orbit to completion".
const NoBound int32 = -1

// Device is a data-parallel compute capability. The pipeline only ever
// talks to a Device through batches, and every batch call blocks until the
// dispatch has completed and its results are visible to the host.
//
// Implementations are provided by the software device in this package and
// by GPU packages. GPU acceleration is enabled via blank import:
//
//	import _ "github.com/gogpu/bbrot/gpu" // enables the wgpu device
type Device interface {
	// Name returns the device name (e.g., "software", "wgpu").
	Name() string

	// Init acquires device resources. Called once during registration.
	Init() error

	// Close releases device resources.
	Close()

	// MaxBufferSize returns the largest single buffer the device can bind,
	// in bytes. Zero means the device imposes no limit.
	MaxBufferSize() uint64

	// NewEscapeBatch uploads starting coordinates for escape-time evaluation.
	// x0 and y0 must have equal length.
	NewEscapeBatch(x0, y0 []float64) (EscapeBatch, error)

	// NewTraceBatch uploads seeds for orbit replay into len(slots)
	// accumulation buffers. Slot contents become visible in slots after
	// TraceBatch.ReadSlots.
	NewTraceBatch(grid Grid, seeds []Seed, slots []Histogram) (TraceBatch, error)
}

// EscapeBatch holds the resumable per-point state (x, y, iteration count,
// done flag) of one escape-time evaluation.
type EscapeBatch interface {
	// Dispatch advances every unfinished point by at most loops iterations,
	// never past maxIters.
	Dispatch(maxIters, loops int32) error

	// ReadIters copies the current iteration counts into dst.
	ReadIters(dst []int32) error

	// Release frees the batch resources.
	Release()
}

// TraceBatch holds the resumable per-seed orbit state and the device side
// of the accumulation buffers.
type TraceBatch interface {
	// Dispatch replays seed assign[k] into slot k for every k, advancing each
	// by at most loops iterations toward bound (NoBound = orbit length).
	Dispatch(assign []int32, bound, loops int32) error

	// ReadDone copies the per-seed done flags into dst.
	ReadDone(dst []bool) error

	// ResetDone marks every seed unfinished for the next checkpoint.
	// Orbit positions are kept.
	ResetDone() error

	// ReadSlots makes the accumulated slot counts visible in the host slots
	// given to NewTraceBatch.
	ReadSlots() error

	// Release frees the batch resources.
	Release()
}

// DeviceProviderAware is an optional interface for devices that can share
// GPU resources with an external provider (e.g., a gogpu window).
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

var (
	deviceMu sync.RWMutex
	device   Device
)

// RegisterDevice registers d as the device used by CurrentDevice.
//
// Only one device can be registered. Subsequent calls replace the previous
// one, which is closed. d.Init is called during registration; if it fails,
// d is not registered and the error is returned.
func RegisterDevice(d Device) error {
	if d == nil {
		return errors.New("bbrot: device must not be nil")
	}
	if err := d.Init(); err != nil {
		return err
	}
	propagateLogger(d, Logger())

	deviceMu.Lock()
	old := device
	device = d
	deviceMu.Unlock()
	if old != nil && old != d {
		old.Close()
	}
	Logger().Info("bbrot: device registered", "device", d.Name())
	return nil
}

// CurrentDevice returns the registered device, or the shared software
// device when none is registered.
func CurrentDevice() Device {
	deviceMu.RLock()
	d := device
	deviceMu.RUnlock()
	if d != nil {
		return d
	}
	return defaultSoftware()
}

// SetDeviceProvider passes a shared GPU device to the registered device,
// enabling device sharing with a host application. If no device is
// registered or it does not support sharing, this is a no-op.
//
// The provider should also implement HalDevice() any and HalQueue() any.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	deviceMu.RLock()
	d := device
	deviceMu.RUnlock()
	if d == nil {
		return nil
	}
	if dpa, ok := d.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}
