// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bbrot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/gogpu/bbrot/internal/output"
)

// Seed persistence errors.
var (
	// ErrMalformedSeeds is returned when a seed file lacks required fields.
	ErrMalformedSeeds = errors.New("bbrot: malformed seed file")

	// ErrNoInput is returned when a set of seed files holds no seeds.
	ErrNoInput = errors.New("bbrot: no input seeds")
)

// CompressedSuffix marks seed files stored with zstd compression.
const CompressedSuffix = ".zst"

// Seed is a sampled plane coordinate together with its escape count at
// sampling time. The orbit of a seed is replayed for OrbitLength iterations.
type Seed struct {
	X, Y        float64
	OrbitLength int32
}

// seedRecord is the on-disk form of a Seed. Pointer fields detect
// missing keys.
type seedRecord struct {
	PointX      *float64 `json:"pointX"`
	PointY      *float64 `json:"pointY"`
	OrbitLength *int64   `json:"orbitLength"`
}

type seedDocument struct {
	PointList []seedRecord `json:"pointList"`
}

type seedDocumentIn struct {
	PointList *[]seedRecord `json:"pointList"`
}

// WriteSeeds encodes seeds as a JSON point list.
func WriteSeeds(w io.Writer, seeds []Seed) error {
	doc := seedDocument{PointList: make([]seedRecord, len(seeds))}
	for i := range seeds {
		s := &seeds[i]
		n := int64(s.OrbitLength)
		doc.PointList[i] = seedRecord{PointX: &s.X, PointY: &s.Y, OrbitLength: &n}
	}
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("bbrot: encode seeds: %w", err)
	}
	return nil
}

// ReadSeeds decodes a JSON point list. Records with a missing field or an
// orbit length outside the int32 range yield ErrMalformedSeeds.
func ReadSeeds(r io.Reader) ([]Seed, error) {
	var doc seedDocumentIn
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSeeds, err)
	}
	if doc.PointList == nil {
		return nil, fmt.Errorf("%w: missing pointList", ErrMalformedSeeds)
	}

	seeds := make([]Seed, len(*doc.PointList))
	for i, rec := range *doc.PointList {
		switch {
		case rec.PointX == nil:
			return nil, fmt.Errorf("%w: point %d: missing pointX", ErrMalformedSeeds, i)
		case rec.PointY == nil:
			return nil, fmt.Errorf("%w: point %d: missing pointY", ErrMalformedSeeds, i)
		case rec.OrbitLength == nil:
			return nil, fmt.Errorf("%w: point %d: missing orbitLength", ErrMalformedSeeds, i)
		case *rec.OrbitLength < 0 || *rec.OrbitLength > math.MaxInt32:
			return nil, fmt.Errorf("%w: point %d: orbitLength %d out of range",
				ErrMalformedSeeds, i, *rec.OrbitLength)
		}
		seeds[i] = Seed{X: *rec.PointX, Y: *rec.PointY, OrbitLength: int32(*rec.OrbitLength)}
	}
	return seeds, nil
}

var zstdEncPool = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil)
		return enc
	},
}

var zstdDecPool = sync.Pool{
	New: func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	},
}

func compressed(path string) bool {
	return strings.HasSuffix(path, CompressedSuffix)
}

// SaveSeeds writes seeds to path. Paths ending in ".zst" are zstd
// compressed. The file only appears once fully written.
func SaveSeeds(path string, seeds []Seed) error {
	return output.WriteFile(path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if !compressed(path) {
			if err := WriteSeeds(bw, seeds); err != nil {
				return err
			}
			return bw.Flush()
		}

		enc := zstdEncPool.Get().(*zstd.Encoder)
		defer zstdEncPool.Put(enc)
		enc.Reset(bw)
		if err := WriteSeeds(enc, seeds); err != nil {
			_ = enc.Close()
			return err
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("bbrot: compress seeds: %w", err)
		}
		return bw.Flush()
	})
}

// LoadSeeds reads the seeds stored at path.
func LoadSeeds(path string) ([]Seed, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("bbrot: open seeds: %w", err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = bufio.NewReader(f)
	if compressed(path) {
		dec := zstdDecPool.Get().(*zstd.Decoder)
		defer zstdDecPool.Put(dec)
		if err := dec.Reset(r); err != nil {
			return nil, fmt.Errorf("bbrot: %s: %w", path, err)
		}
		r = dec
	}

	seeds, err := ReadSeeds(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return seeds, nil
}

// LoadSeedFiles concatenates the seeds of every file in order.
// It returns ErrNoInput when the files hold no seeds at all.
func LoadSeedFiles(paths ...string) ([]Seed, error) {
	var seeds []Seed
	for _, p := range paths {
		s, err := LoadSeeds(p)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, s...)
	}
	if len(seeds) == 0 {
		return nil, ErrNoInput
	}
	Logger().Info("seeds loaded", "files", len(paths), "seeds", len(seeds))
	return seeds, nil
}
