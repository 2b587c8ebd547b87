package bbrot

import (
	"testing"
	"time"
)

func TestToUnit(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1K"},
		{1500, "1K"},
		{10_000_000, "10M"},
		{5_000_000, "5M"},
		{2_500_000_000, "2G"},
		{-3000, "-3K"},
	}
	for _, tt := range tests {
		if got := ToUnit(tt.n); got != tt.want {
			t.Errorf("ToUnit(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestSeedFileName(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	if got, want := SeedFileName(DefaultConfig(), ts), "seeds-10M-1M_5M-1700000000.json"; got != want {
		t.Errorf("SeedFileName() = %q, want %q", got, want)
	}
}

func TestImageNameForSeeds(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{"single", []string{"out/seeds-10M-1M_5M-1699.json"}, "bbrot-10M-1M_5M-1699.png"},
		{"compressed", []string{"seeds-1K-2_3-4.json.zst"}, "bbrot-1K-2_3-4.png"},
		{"foreign name", []string{"points.json"}, "bbrot-1700000000.png"},
		{"bare prefix", []string{"seeds-.json"}, "bbrot-1700000000.png"},
		{"several", []string{"seeds-a.json", "seeds-b.json"}, "bbrot-1700000000.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ImageNameForSeeds(tt.paths, ts); got != tt.want {
				t.Errorf("ImageNameForSeeds(%v) = %q, want %q", tt.paths, got, tt.want)
			}
		})
	}
}

func TestFrameName(t *testing.T) {
	if got := FrameName("anim/frame", 7); got != "anim/frame-00007.png" {
		t.Errorf("FrameName() = %q", got)
	}
}
