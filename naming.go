// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bbrot

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ToUnit abbreviates n with the largest fitting decimal suffix
// (K, M, G), truncating: 1500000 -> "1M".
func ToUnit(n int64) string {
	switch {
	case n >= 1_000_000_000 || n <= -1_000_000_000:
		return strconv.FormatInt(n/1_000_000_000, 10) + "G"
	case n >= 1_000_000 || n <= -1_000_000:
		return strconv.FormatInt(n/1_000_000, 10) + "M"
	case n >= 1_000 || n <= -1_000:
		return strconv.FormatInt(n/1_000, 10) + "K"
	}
	return strconv.FormatInt(n, 10)
}

// SeedFileName names a seed file after its sampling parameters:
// seeds-<samples>-<min>_<max>-<unix>.json.
func SeedFileName(cfg Config, t time.Time) string {
	return fmt.Sprintf("seeds-%s-%s_%s-%d.json",
		ToUnit(int64(cfg.Samples)),
		ToUnit(int64(cfg.MinItersSamples)),
		ToUnit(int64(cfg.MaxItersSamples)),
		t.Unix())
}

// ImageNameForSeeds names the image rendered from seed files. A single
// seeds-<middle>.json input gives bbrot-<middle>.png; anything else gives
// bbrot-<unix>.png.
func ImageNameForSeeds(paths []string, t time.Time) string {
	if len(paths) == 1 {
		base := filepath.Base(paths[0])
		base = strings.TrimSuffix(base, CompressedSuffix)
		if mid, ok := strings.CutPrefix(base, "seeds-"); ok {
			if mid, ok = strings.CutSuffix(mid, ".json"); ok && mid != "" {
				return "bbrot-" + mid + ".png"
			}
		}
	}
	return fmt.Sprintf("bbrot-%d.png", t.Unix())
}

// FrameName returns the file name of animation frame i (1-based):
// <prefix>-00001.png.
func FrameName(prefix string, i int) string {
	return fmt.Sprintf("%s-%05d.png", prefix, i)
}
