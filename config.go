// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bbrot

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned when a Config fails validation.
var ErrInvalidConfig = errors.New("bbrot: invalid config")

// Default configuration values.
const (
	DefaultSteps  = 1024
	DefaultXMin   = -2.1
	DefaultXRange = 3.0
	DefaultYMin   = -1.5
	DefaultYRange = 3.0

	// DefaultMaxLoops is the per-dispatch iteration cap. Device kernels
	// never run more than this many iterations per work item in one dispatch.
	DefaultMaxLoops = 10_000

	DefaultMaxItersCells = 256

	DefaultSamples         = 10_000_000
	DefaultMinItersSamples = 1_000_000
	DefaultMaxItersSamples = 5_000_000

	// DefaultMaxRenderBufMem is the accumulation buffer budget (2 GiB).
	DefaultMaxRenderBufMem = 2 << 30

	DefaultAnimateFPS     = 25
	DefaultAnimateSeconds = 10
)

// Config holds the parameters of one run. It is passed by value to every
// component and never mutated after NewConfig returns.
type Config struct {
	// Steps is the grid resolution per axis.
	Steps int

	// Viewport origin and extent in the complex plane.
	XMin, XRange float64
	YMin, YRange float64

	// MaxLoops bounds the iterations a kernel runs per work item per dispatch.
	MaxLoops int32

	// MaxItersCells is the escape horizon for the frontier grid.
	MaxItersCells int32

	// Samples is the target number of random samples across frontier cells.
	Samples int

	// Seeds are kept when MinItersSamples < escape count < MaxItersSamples.
	MinItersSamples int32
	MaxItersSamples int32

	// MaxRenderBufMem is the byte budget for accumulation buffers.
	MaxRenderBufMem uint64

	// MaxRenderBufs optionally caps the number of accumulation buffers
	// below what the memory budget allows. Zero means no extra cap.
	MaxRenderBufs int

	AnimateFPS     int
	AnimateSeconds int

	// MaxRounds caps dispatch rounds per checkpoint. Zero derives a bound
	// from the seed orbit lengths.
	MaxRounds int
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Steps:           DefaultSteps,
		XMin:            DefaultXMin,
		XRange:          DefaultXRange,
		YMin:            DefaultYMin,
		YRange:          DefaultYRange,
		MaxLoops:        DefaultMaxLoops,
		MaxItersCells:   DefaultMaxItersCells,
		Samples:         DefaultSamples,
		MinItersSamples: DefaultMinItersSamples,
		MaxItersSamples: DefaultMaxItersSamples,
		MaxRenderBufMem: DefaultMaxRenderBufMem,
		AnimateFPS:      DefaultAnimateFPS,
		AnimateSeconds:  DefaultAnimateSeconds,
	}
}

// Option configures a Config during creation.
//
// Example:
//
//	cfg, err := bbrot.NewConfig(
//	    bbrot.WithSteps(512),
//	    bbrot.WithSampling(1_000_000, 10_000, 100_000),
//	)
type Option func(*Config)

// WithSteps sets the grid resolution.
func WithSteps(steps int) Option {
	return func(c *Config) {
		c.Steps = steps
	}
}

// WithViewport sets the rectangle of the complex plane covered by the grid.
func WithViewport(xMin, xRange, yMin, yRange float64) Option {
	return func(c *Config) {
		c.XMin, c.XRange = xMin, xRange
		c.YMin, c.YRange = yMin, yRange
	}
}

// WithMaxLoops sets the per-dispatch iteration cap.
func WithMaxLoops(n int32) Option {
	return func(c *Config) {
		c.MaxLoops = n
	}
}

// WithCellIters sets the escape horizon used to build the frontier grid.
func WithCellIters(n int32) Option {
	return func(c *Config) {
		c.MaxItersCells = n
	}
}

// WithSampling sets the sample count and the accepted orbit length window.
func WithSampling(samples int, minIters, maxIters int32) Option {
	return func(c *Config) {
		c.Samples = samples
		c.MinItersSamples = minIters
		c.MaxItersSamples = maxIters
	}
}

// WithBufferBudget sets the accumulation buffer memory budget in bytes.
func WithBufferBudget(bytes uint64) Option {
	return func(c *Config) {
		c.MaxRenderBufMem = bytes
	}
}

// WithMaxRenderBufs caps the number of accumulation buffers.
func WithMaxRenderBufs(n int) Option {
	return func(c *Config) {
		c.MaxRenderBufs = n
	}
}

// WithAnimation sets the frame rate and duration of animations.
func WithAnimation(fps, seconds int) Option {
	return func(c *Config) {
		c.AnimateFPS = fps
		c.AnimateSeconds = seconds
	}
}

// WithMaxRounds caps the dispatch rounds per checkpoint.
func WithMaxRounds(n int) Option {
	return func(c *Config) {
		c.MaxRounds = n
	}
}

// NewConfig applies opts on top of DefaultConfig and validates the result.
func NewConfig(opts ...Option) (Config, error) {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports the first inconsistent field.
func (c Config) Validate() error {
	switch {
	case c.Steps < 2:
		return fmt.Errorf("%w: steps %d < 2", ErrInvalidConfig, c.Steps)
	case c.XRange <= 0 || c.YRange <= 0:
		return fmt.Errorf("%w: viewport range must be positive", ErrInvalidConfig)
	case c.MaxLoops <= 0:
		return fmt.Errorf("%w: max loops %d <= 0", ErrInvalidConfig, c.MaxLoops)
	case c.MaxItersCells <= 0:
		return fmt.Errorf("%w: cell iters %d <= 0", ErrInvalidConfig, c.MaxItersCells)
	case c.Samples <= 0:
		return fmt.Errorf("%w: samples %d <= 0", ErrInvalidConfig, c.Samples)
	case c.MinItersSamples < 0 || c.MinItersSamples >= c.MaxItersSamples:
		return fmt.Errorf("%w: sample window (%d, %d) is empty",
			ErrInvalidConfig, c.MinItersSamples, c.MaxItersSamples)
	case c.MaxRenderBufs < 0:
		return fmt.Errorf("%w: max render bufs %d < 0", ErrInvalidConfig, c.MaxRenderBufs)
	case c.AnimateFPS < 0 || c.AnimateSeconds < 0:
		return fmt.Errorf("%w: negative animation parameters", ErrInvalidConfig)
	case c.MaxRounds < 0:
		return fmt.Errorf("%w: max rounds %d < 0", ErrInvalidConfig, c.MaxRounds)
	}
	return nil
}

// DX returns the grid step along the real axis.
func (c Config) DX() float64 { return c.XRange / float64(c.Steps) }

// DY returns the grid step along the imaginary axis.
func (c Config) DY() float64 { return c.YRange / float64(c.Steps) }

// BufferBytes returns the size of one accumulation buffer.
func (c Config) BufferBytes() uint64 {
	//nolint:gosec // G115: Steps validated positive
	s := uint64(c.Steps)
	return s * s * 4
}

// Grid returns the sampling grid described by c.
func (c Config) Grid() Grid {
	return Grid{
		Steps: c.Steps,
		XMin:  c.XMin,
		YMin:  c.YMin,
		DX:    c.DX(),
		DY:    c.DY(),
	}
}
