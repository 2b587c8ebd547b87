//go:build !nogpu

// Package gpu implements bbrot.Device on wgpu/hal compute pipelines.
//
// Two WGSL kernels do the work:
//
//   - escape.wgsl: resumable escape-time iteration of z <- z^2 + c,
//     one invocation per grid or sample point
//   - trace.wgsl: orbit replay, invocation k traces seed assign[k] into
//     its own accumulation slot
//
// Kernels are compiled to SPIR-V with naga and run on the Vulkan backend.
// Every batch call submits one command buffer, waits on a fence and reads
// results back through a staging buffer, so calls are synchronous from the
// host's point of view.
//
// Iteration is float32. The software device in package bbrot is the float64
// reference; GPU results can differ for points near the set boundary.
//
// # Limits
//
// Storage bindings are capped at 128 MiB. Escape batches larger than one
// binding or one dispatch are split into chunks. Trace batches keep all
// seeds and slots in single bindings; bbrot.BufferPool sizes the slots from
// MaxBufferSize.
package gpu
