package bbrot

import (
	"math/rand/v2"
	"slices"
	"testing"
)

// fieldFromMask builds an escape field where mask[i] marks maxed points and
// every other point gets an escape count below max from escaped.
func fieldFromMask(steps int, maxIters int32, mask []bool, escaped func(i int) int32) EscapeField {
	f := EscapeField{Steps: steps, MaxIters: maxIters, Iters: make([]int32, len(mask))}
	for i, m := range mask {
		if m {
			f.Iters[i] = maxIters
		} else {
			f.Iters[i] = escaped(i)
		}
	}
	return f
}

func TestFrontierCells(t *testing.T) {
	const (
		x = true
		o = false
	)
	tests := []struct {
		name string
		mask []bool
		want []Cell
	}{
		{
			// Four maxed center points: every cell except the center one
			// mixes maxed and escaped corners.
			name: "center block",
			mask: []bool{
				o, o, o, o,
				o, x, x, o,
				o, x, x, o,
				o, o, o, o,
			},
			want: []Cell{
				{0, 0}, {0, 1}, {0, 2},
				{1, 0}, {1, 2},
				{2, 0}, {2, 1}, {2, 2},
			},
		},
		{
			name: "single maxed point",
			mask: []bool{
				o, o, o, o,
				o, x, o, o,
				o, o, o, o,
				o, o, o, o,
			},
			want: []Cell{{0, 0}, {0, 1}, {1, 0}, {1, 1}},
		},
		{
			name: "half plane",
			mask: []bool{
				x, x, o, o,
				x, x, o, o,
				x, x, o, o,
				x, x, o, o,
			},
			want: []Cell{{0, 1}, {1, 1}, {2, 1}},
		},
		{name: "all escaped", mask: make([]bool, 16)},
		{
			name: "all maxed",
			mask: []bool{x, x, x, x, x, x, x, x, x, x, x, x, x, x, x, x},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fieldFromMask(4, 100, tt.mask, func(i int) int32 { return int32(i) })
			got := FrontierCells(f)
			if !slices.Equal(got, tt.want) {
				t.Errorf("FrontierCells() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrontierDependsOnlyOnMaxed(t *testing.T) {
	const steps = 24
	rng := rand.New(rand.NewPCG(7, 11))
	mask := make([]bool, steps*steps)
	for i := range mask {
		mask[i] = rng.IntN(3) == 0
	}

	base := FrontierCells(fieldFromMask(steps, 50, mask, func(int) int32 { return 0 }))
	if len(base) == 0 {
		t.Fatal("random mask produced no frontier")
	}
	for trial := range 5 {
		f := fieldFromMask(steps, 50, mask, func(int) int32 { return rng.Int32N(50) })
		if got := FrontierCells(f); !slices.Equal(got, base) {
			t.Errorf("trial %d: frontier changed when escaped counts changed", trial)
		}
	}

	// Rescaling the horizon with the maxed points keeps the frontier.
	f := fieldFromMask(steps, 1000, mask, func(int) int32 { return 999 })
	if got := FrontierCells(f); !slices.Equal(got, base) {
		t.Error("frontier changed under a different horizon")
	}
}

func TestFrontierTinyField(t *testing.T) {
	if got := FrontierCells(EscapeField{Steps: 1, MaxIters: 1, Iters: []int32{1}}); got != nil {
		t.Errorf("FrontierCells(1x1) = %v, want nil", got)
	}
}
