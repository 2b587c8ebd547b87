//go:build !nogpu

package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/escape.wgsl
var escapeShaderWGSL string

//go:embed shaders/trace.wgsl
var traceShaderWGSL string

// workgroupSize must match @workgroup_size in the kernels.
const workgroupSize = 64

// compileSPIRV compiles WGSL source to SPIR-V words.
func compileSPIRV(wgslSource string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("compile shader: SPIR-V size %d is not a multiple of 4", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// bindingKind is the buffer binding type of one kernel binding.
type bindingKind uint8

const (
	bindUniform bindingKind = iota
	bindStorage
	bindReadOnlyStorage
)

func (k bindingKind) layout() *gputypes.BufferBindingLayout {
	switch k {
	case bindUniform:
		return &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	case bindReadOnlyStorage:
		return &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
	default:
		return &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
	}
}

// kernel is one compute pipeline with a single bind group layout.
type kernel struct {
	label      string
	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// newKernel compiles wgslSource and builds its pipeline. Binding i of group
// 0 has type bindings[i].
func newKernel(device hal.Device, label, wgslSource string, bindings []bindingKind) (*kernel, error) {
	spirv, err := compileSPIRV(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}

	k := &kernel{label: label}
	k.shader, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s shader module: %w", label, err)
	}

	entries := make([]gputypes.BindGroupLayoutEntry, len(bindings))
	for i, b := range bindings {
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i), //nolint:gosec // G115: small binding index
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     b.layout(),
		}
	}
	k.bindLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_bind_layout",
		Entries: entries,
	})
	if err != nil {
		k.destroy(device)
		return nil, fmt.Errorf("create %s bind group layout: %w", label, err)
	}

	k.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: label + "_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{k.bindLayout},
	})
	if err != nil {
		k.destroy(device)
		return nil, fmt.Errorf("create %s pipeline layout: %w", label, err)
	}

	k.pipeline, err = device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: label + "_pipeline", Layout: k.pipeLayout,
		Compute: hal.ComputeState{Module: k.shader, EntryPoint: "main"},
	})
	if err != nil {
		k.destroy(device)
		return nil, fmt.Errorf("create %s compute pipeline: %w", label, err)
	}
	return k, nil
}

// bindGroup binds bufs[i] (whole buffer, sizes[i] bytes) to binding i.
func (k *kernel) bindGroup(device hal.Device, bufs []hal.Buffer, sizes []uint64) (hal.BindGroup, error) {
	entries := make([]gputypes.BindGroupEntry, len(bufs))
	for i, b := range bufs {
		entries[i] = gputypes.BindGroupEntry{
			Binding:  uint32(i), //nolint:gosec // G115: small binding index
			Resource: gputypes.BufferBinding{Buffer: b.NativeHandle(), Offset: 0, Size: sizes[i]},
		}
	}
	bg, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: k.label + "_bind", Layout: k.bindLayout, Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s bind group: %w", k.label, err)
	}
	return bg, nil
}

// destroy releases the pipeline objects in reverse creation order.
func (k *kernel) destroy(device hal.Device) {
	if k == nil || device == nil {
		return
	}
	if k.pipeline != nil {
		device.DestroyComputePipeline(k.pipeline)
	}
	if k.pipeLayout != nil {
		device.DestroyPipelineLayout(k.pipeLayout)
	}
	if k.bindLayout != nil {
		device.DestroyBindGroupLayout(k.bindLayout)
	}
	if k.shader != nil {
		device.DestroyShaderModule(k.shader)
	}
	*k = kernel{label: k.label}
}

// workgroups returns the number of workgroups covering n invocations.
func workgroups(n int) uint32 {
	return uint32((n + workgroupSize - 1) / workgroupSize) //nolint:gosec // G115: bounded by buffer sizes
}
