//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/bbrot"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// maxBindingSize caps every storage binding at the WebGPU default
// maxStorageBufferBindingSize.
const maxBindingSize = 128 << 20

// dispatchTimeout bounds the fence wait of one dispatch. MaxLoops keeps a
// single dispatch well below it.
const dispatchTimeout = 30 * time.Second

var errNotReady = errors.New("gpu: device not initialized")

// Device runs the escape and trace kernels as wgpu/hal compute pipelines.
// Kernels iterate in float32: WGSL has no portable f64. Results can differ
// from the float64 software device for points near the boundary.
//
// Every batch call submits its work, waits on a fence and returns, so the
// host never overlaps two dispatches.
type Device struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	escape *kernel
	trace  *kernel

	log atomic.Pointer[slog.Logger]

	adapterName    string
	ready          bool
	externalDevice bool // true when using shared device (don't destroy on Close)
}

var _ bbrot.Device = (*Device)(nil)

// Name returns "wgpu".
func (d *Device) Name() string { return "wgpu" }

// Init opens the first discrete or integrated Vulkan adapter and builds the
// kernels. Failures wrap bbrot.ErrDeviceUnavailable.
func (d *Device) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ready {
		return nil
	}
	if err := d.initGPU(); err != nil {
		d.releaseLocked()
		return fmt.Errorf("%w: %w", bbrot.ErrDeviceUnavailable, err)
	}
	return nil
}

// Close releases the kernels and, unless shared, the device.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked()
}

func (d *Device) releaseLocked() {
	d.escape.destroy(d.device)
	d.trace.destroy(d.device)
	d.escape, d.trace = nil, nil
	if !d.externalDevice {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.instance = nil
	d.queue = nil
	d.ready = false
	d.externalDevice = false
}

// SetLogger tags l with the device name for the device's own records.
func (d *Device) SetLogger(l *slog.Logger) { d.log.Store(l.With("device", d.Name())) }

func (d *Device) logger() *slog.Logger {
	if l := d.log.Load(); l != nil {
		return l
	}
	return bbrot.Logger()
}

// SetDeviceProvider switches to a shared GPU device from an external
// provider. The provider must implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue.
func (d *Device) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("gpu: provider HalQueue is not hal.Queue")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked()

	d.device = device
	d.queue = queue
	d.externalDevice = true
	if err := d.createKernels(); err != nil {
		return fmt.Errorf("gpu: create kernels with shared device: %w", err)
	}
	d.ready = true
	d.logger().Info("gpu: switched to shared GPU device")
	return nil
}

// MaxBufferSize returns the largest storage binding the kernels may use.
func (d *Device) MaxBufferSize() uint64 {
	return min(gputypes.DefaultLimits().MaxBufferSize, maxBindingSize)
}

func (d *Device) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	d.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	d.device = openDev.Device
	d.queue = openDev.Queue
	if err := d.createKernels(); err != nil {
		return fmt.Errorf("create kernels: %w", err)
	}
	d.adapterName = selected.Info.Name
	d.ready = true
	d.logger().Info("gpu: compute device initialized", "adapter", d.adapterName)
	return nil
}

func (d *Device) createKernels() error {
	var err error
	d.escape, err = newKernel(d.device, "bbrot_escape", escapeShaderWGSL,
		[]bindingKind{bindUniform, bindStorage})
	if err != nil {
		return err
	}
	d.trace, err = newKernel(d.device, "bbrot_trace", traceShaderWGSL,
		[]bindingKind{bindUniform, bindStorage, bindStorage, bindReadOnlyStorage, bindStorage})
	return err
}

// createBuffer allocates a buffer of at least 4 bytes.
func (d *Device) createBuffer(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label, Size: max(size, 4), Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s buffer: %w", label, err)
	}
	return buf, nil
}

// zeroBuffer clears size bytes of buf in bounded writes.
func (d *Device) zeroBuffer(buf hal.Buffer, size uint64) {
	const chunk = 4 << 20
	zeros := make([]byte, min(size, chunk))
	for off := uint64(0); off < size; off += chunk {
		n := min(size-off, chunk)
		d.queue.WriteBuffer(buf, off, zeros[:n])
	}
}

// pass is one compute pass of a submission.
type pass struct {
	k      *kernel
	bind   hal.BindGroup
	groups uint32
}

// bufferCopy is a buffer-to-buffer copy recorded after the pass.
type bufferCopy struct {
	src, dst hal.Buffer
	size     uint64
}

// submit records an optional pass and an optional copy into one command
// buffer, submits it and waits for the fence.
func (d *Device) submit(label string, p *pass, cp *bufferCopy) error {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label + "_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	if p != nil && p.groups > 0 {
		computePass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: label + "_pass"})
		computePass.SetPipeline(p.k.pipeline)
		computePass.SetBindGroup(0, p.bind, nil)
		computePass.Dispatch(p.groups, 1, 1)
		computePass.End()
	}
	if cp != nil {
		encoder.CopyBufferToBuffer(cp.src, cp.dst, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: cp.size},
		})
	}
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := d.device.Wait(fence, 1, dispatchTimeout)
	if err != nil || !fenceOK {
		return fmt.Errorf("wait for GPU: ok=%v err=%w", fenceOK, err)
	}
	return nil
}

// readback copies size bytes of src to the host through a staging buffer.
func (d *Device) readback(label string, src hal.Buffer, size uint64) ([]byte, error) {
	staging, err := d.createBuffer(label+"_staging", size,
		gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	defer d.device.DestroyBuffer(staging)

	if err := d.submit(label+"_readback", nil, &bufferCopy{src: src, dst: staging, size: size}); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if err := d.queue.ReadBuffer(staging, 0, out); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	return out, nil
}

func (d *Device) destroyAll(bind hal.BindGroup, bufs ...hal.Buffer) {
	if d.device == nil {
		return
	}
	if bind != nil {
		d.device.DestroyBindGroup(bind)
	}
	for _, b := range bufs {
		if b != nil {
			d.device.DestroyBuffer(b)
		}
	}
}
