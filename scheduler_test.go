package bbrot

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"
)

func schedulerConfig(t *testing.T, opts ...Option) Config {
	t.Helper()
	cfg, err := NewConfig(append([]Option{WithSteps(16)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

// boundedSeeds returns seeds whose orbits never leave the default viewport.
func boundedSeeds() []Seed {
	return []Seed{
		{X: 0, Y: 0, OrbitLength: 10},
		{X: -1, Y: 0, OrbitLength: 20},
		{X: -0.5, Y: 0, OrbitLength: 30},
		{X: 0.25, Y: 0, OrbitLength: 40},
		{X: -1.5, Y: 0, OrbitLength: 50},
	}
}

func TestRenderSingleSeedTotal(t *testing.T) {
	for _, loops := range []int32{10_000, 100, 7, 1} {
		cfg := schedulerConfig(t, WithMaxRenderBufs(1), WithMaxLoops(loops))
		dev := newMockDevice("single")
		if err := dev.Init(); err != nil {
			t.Fatal(err)
		}

		s := Scheduler{Device: dev, Config: cfg}
		h, err := s.Render(context.Background(), []Seed{{X: 0, Y: 0, OrbitLength: 100}})
		if err != nil {
			t.Fatalf("loops=%d: Render() = %v", loops, err)
		}
		if h.Total() != 100 {
			t.Errorf("loops=%d: total = %d, want 100", loops, h.Total())
		}
		if h.Max() != 100 {
			t.Errorf("loops=%d: the fixed point should hold every visit, max = %d", loops, h.Max())
		}
		if got, want := len(dev.rounds()), DispatchCount(100, loops); got != want {
			t.Errorf("loops=%d: %d rounds, want %d", loops, got, want)
		}
		dev.Close()
	}
}

func TestAccumulateRoundsWithSmallPool(t *testing.T) {
	cfg := schedulerConfig(t, WithMaxRenderBufs(2))
	dev := newMockDevice("rounds")
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(dev.Close)

	seeds := boundedSeeds()
	var frames []Frame
	err := Scheduler{Device: dev, Config: cfg}.Accumulate(context.Background(), seeds,
		[]int32{NoBound}, func(f Frame) error {
			frames = append(frames, f)
			return nil
		})
	if err != nil {
		t.Fatalf("Accumulate() = %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}

	f := frames[0]
	if f.Rounds != 3 {
		t.Errorf("Rounds = %d, want ceil(5/2) = 3", f.Rounds)
	}
	want := [][]int32{{0, 1}, {2, 3}, {4}}
	if got := dev.rounds(); !slices.EqualFunc(got, want, slices.Equal[[]int32]) {
		t.Errorf("assignments = %v, want %v", got, want)
	}
	if !f.Done.All() || f.Done.Count() != 5 {
		t.Errorf("Done = %v, want all finished", f.Done)
	}
	if f.Counts.Total() != 150 {
		t.Errorf("total = %d, want sum of orbit lengths 150", f.Counts.Total())
	}
}

func TestRenderOrderIndependent(t *testing.T) {
	cfg := schedulerConfig(t, WithSteps(32), WithMaxRenderBufs(3), WithMaxLoops(13))
	rng := rand.New(rand.NewPCG(5, 6))

	seeds := make([]Seed, 40)
	for i := range seeds {
		seeds[i] = Seed{
			X:           -2 + 2.5*rng.Float64(),
			Y:           -1.2 + 2.4*rng.Float64(),
			OrbitLength: rng.Int32N(200),
		}
	}

	s := Scheduler{Device: CurrentDevice(), Config: cfg}
	ref, err := s.Render(context.Background(), seeds)
	if err != nil {
		t.Fatal(err)
	}
	if ref.Total() == 0 {
		t.Fatal("reference histogram is empty")
	}

	for trial := range 3 {
		perm := slices.Clone(seeds)
		rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		got, err := s.Render(context.Background(), perm)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(ref) {
			t.Errorf("trial %d: permuted seeds changed the histogram", trial)
		}
	}

	// The pool size does not change the result either.
	s.Config.MaxRenderBufs = 40
	got, err := s.Render(context.Background(), seeds)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(ref) {
		t.Error("pool size changed the histogram")
	}
}

func TestAccumulateCheckpointsCumulative(t *testing.T) {
	cfg := schedulerConfig(t, WithMaxRenderBufs(2), WithMaxLoops(8))
	seeds := boundedSeeds()
	s := Scheduler{Device: CurrentDevice(), Config: cfg}

	var frames []Frame
	err := s.Accumulate(context.Background(), seeds, []int32{5, 15, 15, 35, NoBound},
		func(f Frame) error {
			frames = append(frames, f)
			return nil
		})
	if err != nil {
		t.Fatalf("Accumulate() = %v", err)
	}

	// Each frame counts min(orbitLength, bound) visits per seed.
	wantTotals := []uint64{25, 70, 70, 130, 150}
	if len(frames) != len(wantTotals) {
		t.Fatalf("got %d frames, want %d", len(frames), len(wantTotals))
	}
	for i, f := range frames {
		if f.Index != i {
			t.Errorf("frame %d: Index = %d", i, f.Index)
		}
		if got := f.Counts.Total(); got != wantTotals[i] {
			t.Errorf("frame %d (bound %d): total = %d, want %d", i, f.Bound, got, wantTotals[i])
		}
		if !f.Done.All() {
			t.Errorf("frame %d: not every seed done", i)
		}
		if i > 0 && f.Counts.Sub(frames[i-1].Counts).Total() != wantTotals[i]-wantTotals[i-1] {
			t.Errorf("frame %d: difference to previous frame is not the new visits", i)
		}
	}

	// Frames are snapshots: later checkpoints do not rewrite earlier ones.
	if frames[0].Counts.Total() != 25 {
		t.Error("first frame was modified by later checkpoints")
	}

	full, err := s.Render(context.Background(), seeds)
	if err != nil {
		t.Fatal(err)
	}
	if !full.Equal(frames[len(frames)-1].Counts) {
		t.Error("checkpointed run differs from a single full render")
	}
}

func TestAccumulateNoSeeds(t *testing.T) {
	cfg := schedulerConfig(t)
	dev := newMockDevice("empty")
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(dev.Close)

	var frames []Frame
	err := Scheduler{Device: dev, Config: cfg}.Accumulate(context.Background(), nil,
		[]int32{10, 20, NoBound}, func(f Frame) error {
			frames = append(frames, f)
			return nil
		})
	if err != nil {
		t.Fatalf("Accumulate() = %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for i, f := range frames {
		if f.Counts.Steps != 16 || len(f.Counts.Counts) != 256 || f.Counts.Total() != 0 {
			t.Errorf("frame %d: want an all-zero 16x16 histogram", i)
		}
	}
	if n := len(dev.rounds()); n != 0 {
		t.Errorf("device dispatched %d rounds for no seeds", n)
	}
}

func TestAccumulateMaxRounds(t *testing.T) {
	cfg := schedulerConfig(t, WithMaxLoops(10), WithMaxRounds(2))
	_, err := Scheduler{Device: CurrentDevice(), Config: cfg}.Render(context.Background(),
		[]Seed{{X: 0, Y: 0, OrbitLength: 100}})
	if !errors.Is(err, ErrMaxRoundsExceeded) {
		t.Errorf("Render() = %v, want ErrMaxRoundsExceeded", err)
	}
}

// stuckDevice never reports a seed as done.
type stuckDevice struct {
	*mockDevice
}

func (d stuckDevice) NewTraceBatch(grid Grid, seeds []Seed, slots []Histogram) (TraceBatch, error) {
	b, err := d.mockDevice.NewTraceBatch(grid, seeds, slots)
	if err != nil {
		return nil, err
	}
	return stuckBatch{b}, nil
}

type stuckBatch struct {
	TraceBatch
}

func (stuckBatch) ReadDone(dst []bool) error {
	clear(dst)
	return nil
}

func TestAccumulateDerivedRoundLimit(t *testing.T) {
	cfg := schedulerConfig(t, WithMaxLoops(10), WithMaxRenderBufs(2))
	dev := stuckDevice{newMockDevice("stuck")}
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(dev.Close)

	_, err := Scheduler{Device: dev, Config: cfg}.Render(context.Background(), boundedSeeds())
	if !errors.Is(err, ErrMaxRoundsExceeded) {
		t.Fatalf("Render() = %v, want ErrMaxRoundsExceeded", err)
	}
	// Three slot groups plus one, times five dispatches plus one.
	if got := len(dev.rounds()); got != 24 {
		t.Errorf("gave up after %d rounds, want 24", got)
	}
}

func TestAccumulateInvalidCheckpoints(t *testing.T) {
	cfg := schedulerConfig(t)
	s := Scheduler{Device: CurrentDevice(), Config: cfg}
	for _, cps := range [][]int32{nil, {10, 5}, {NoBound, 10}, {-3}} {
		err := s.Accumulate(context.Background(), boundedSeeds(), cps, func(Frame) error { return nil })
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Accumulate(%v) = %v, want ErrInvalidConfig", cps, err)
		}
	}
}

func TestAccumulateStops(t *testing.T) {
	cfg := schedulerConfig(t, WithMaxLoops(5))
	s := Scheduler{Device: CurrentDevice(), Config: cfg}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Render(ctx, boundedSeeds()); !errors.Is(err, context.Canceled) {
		t.Errorf("Render(cancelled) = %v, want context.Canceled", err)
	}

	stop := errors.New("stop")
	calls := 0
	err := s.Accumulate(context.Background(), boundedSeeds(), []int32{5, 10, 20}, func(Frame) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("Accumulate() = %v after %d calls, want yield error after 1", err, calls)
	}
}

func TestAccumulateBudgetTooSmall(t *testing.T) {
	cfg := schedulerConfig(t, WithBufferBudget(16))
	_, err := Scheduler{Device: CurrentDevice(), Config: cfg}.Render(context.Background(), boundedSeeds())
	if !errors.Is(err, ErrMemoryBudgetExceeded) {
		t.Errorf("Render() = %v, want ErrMemoryBudgetExceeded", err)
	}
}

func TestAnimationCheckpoints(t *testing.T) {
	cfg := DefaultConfig()
	cps := AnimationCheckpoints(cfg)
	if len(cps) != 250 {
		t.Fatalf("len = %d, want 250", len(cps))
	}
	if cps[0] != 4000 || cps[len(cps)-1] != 1_000_000 {
		t.Errorf("checkpoints run %d..%d, want 4000..1000000", cps[0], cps[len(cps)-1])
	}
	if !slices.IsSorted(cps) {
		t.Error("checkpoints not ascending")
	}

	cfg.MinItersSamples = 1000
	cfg.AnimateFPS, cfg.AnimateSeconds = 2, 5
	if got, want := AnimationCheckpoints(cfg), []int32{100, 200, 300, 400, 500, 600, 700, 800, 900, 1000}; !slices.Equal(got, want) {
		t.Errorf("AnimationCheckpoints() = %v, want %v", got, want)
	}

	cfg.AnimateFPS = 0
	if got := AnimationCheckpoints(cfg); !slices.Equal(got, []int32{NoBound}) {
		t.Errorf("no frames: got %v, want [NoBound]", got)
	}
}

func TestAnimationCheckpointsNearMaxInt32(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinItersSamples = math.MaxInt32 - 1
	cfg.MaxItersSamples = math.MaxInt32
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	cps := AnimationCheckpoints(cfg)
	if len(cps) != 250 {
		t.Fatalf("len = %d, want 250", len(cps))
	}
	if cps[0] <= 0 || cps[len(cps)-1] > cfg.MinItersSamples {
		t.Errorf("checkpoints run %d..%d, want within (0, %d]", cps[0], cps[len(cps)-1], cfg.MinItersSamples)
	}
	if !slices.IsSorted(cps) {
		t.Error("checkpoints wrapped around")
	}
}
