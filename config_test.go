package bbrot

import (
	"errors"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.Steps != 1024 || cfg.MaxLoops != 10_000 || cfg.MaxItersCells != 256 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if got, want := cfg.BufferBytes(), uint64(1024*1024*4); got != want {
		t.Errorf("BufferBytes() = %d, want %d", got, want)
	}
}

func TestNewConfigOptions(t *testing.T) {
	cfg, err := NewConfig(
		WithSteps(64),
		WithViewport(-2, 4, -2, 4),
		WithMaxLoops(100),
		WithCellIters(32),
		WithSampling(1000, 10, 500),
		WithBufferBudget(1<<20),
		WithMaxRenderBufs(3),
		WithAnimation(10, 2),
		WithMaxRounds(50),
	)
	if err != nil {
		t.Fatalf("NewConfig() = %v", err)
	}

	if cfg.Steps != 64 || cfg.MaxLoops != 100 || cfg.MaxItersCells != 32 {
		t.Errorf("grid options not applied: %+v", cfg)
	}
	if cfg.Samples != 1000 || cfg.MinItersSamples != 10 || cfg.MaxItersSamples != 500 {
		t.Errorf("sampling options not applied: %+v", cfg)
	}
	if cfg.MaxRenderBufMem != 1<<20 || cfg.MaxRenderBufs != 3 || cfg.MaxRounds != 50 {
		t.Errorf("buffer options not applied: %+v", cfg)
	}
	if cfg.DX() != 4.0/64 || cfg.DY() != 4.0/64 {
		t.Errorf("DX, DY = %v, %v, want %v", cfg.DX(), cfg.DY(), 4.0/64)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"steps", WithSteps(1)},
		{"viewport", WithViewport(0, 0, 0, 1)},
		{"max loops", WithMaxLoops(0)},
		{"cell iters", WithCellIters(-1)},
		{"samples", WithSampling(0, 1, 2)},
		{"empty window", WithSampling(10, 5, 5)},
		{"negative window", WithSampling(10, -1, 5)},
		{"render bufs", WithMaxRenderBufs(-1)},
		{"animation", WithAnimation(-1, 10)},
		{"rounds", WithMaxRounds(-5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(tt.opt)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewConfig() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfigGrid(t *testing.T) {
	cfg, err := NewConfig(WithSteps(4), WithViewport(-2, 4, -1, 2))
	if err != nil {
		t.Fatal(err)
	}
	g := cfg.Grid()
	if g.Steps != 4 || g.XMin != -2 || g.YMin != -1 || g.DX != 1 || g.DY != 0.5 {
		t.Errorf("Grid() = %+v", g)
	}
}
