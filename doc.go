// Package bbrot computes Buddhabrot orbit histograms.
//
// # Overview
//
// A Buddhabrot is the density of all orbit points of z <- z^2 + c for the
// values of c that escape. bbrot finds such values efficiently and replays
// their orbits on a data-parallel compute device:
//
//  1. Evaluate escape times on a Steps x Steps grid of the plane.
//  2. Extract the frontier: grid cells with both escaping and
//     non-escaping corners.
//  3. Sample random points inside frontier cells and keep the seeds whose
//     escape count lies inside (MinItersSamples, MaxItersSamples).
//  4. Replay every seed orbit into a bounded pool of accumulation buffers
//     and merge them into a histogram, once per checkpoint.
//
// # Quick Start
//
//	cfg := bbrot.DefaultConfig()
//	dev := bbrot.CurrentDevice()
//
//	seeds, err := bbrot.Compute(ctx, dev, cfg, nil)
//	if err != nil {
//		return err
//	}
//	hist, err := bbrot.Scheduler{Device: dev, Config: cfg}.Render(ctx, seeds)
//
// # Devices
//
// All iteration runs through a Device in resumable dispatches of at most
// Config.MaxLoops iterations. The software device (float64, worker pool)
// is always available. A wgpu compute device is enabled by blank import:
//
//	import _ "github.com/gogpu/bbrot/gpu"
//
// # Animation
//
// Scheduler.Accumulate accepts ascending iteration checkpoints and yields
// one cumulative Frame per checkpoint. AnimationCheckpoints derives them
// from the animation frame rate and duration.
package bbrot

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
