// Package output writes run artifacts (images, videos, seed files) so that
// a failed run never leaves a partial file behind.
package output

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
)

// ErrEmptyImage is returned when encoding an image with no pixels.
var ErrEmptyImage = errors.New("output: empty image")

// WriteFile creates path through a temporary file in the same directory.
// The file appears under its final name only if write returns nil and
// every byte reached the disk.
func WriteFile(path string, write func(w io.Writer) error) (err error) {
	path = filepath.Clean(path)
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("output: create file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if err = write(f); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("output: sync %s: %w", path, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("output: close %s: %w", path, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("output: rename %s: %w", path, err)
	}
	return nil
}

// SavePNG saves img as a PNG file.
func SavePNG(path string, img image.Image) error {
	return WriteFile(path, func(w io.Writer) error {
		return EncodePNG(w, img)
	})
}

// EncodePNG encodes img as PNG to w.
func EncodePNG(w io.Writer, img image.Image) error {
	if img.Bounds().Empty() {
		return ErrEmptyImage
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("output: encode PNG: %w", err)
	}
	return nil
}

// EncodeJPEG encodes img as JPEG to w with the given quality (1-100).
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if img.Bounds().Empty() {
		return ErrEmptyImage
	}
	quality = min(max(quality, 1), 100)
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("output: encode JPEG: %w", err)
	}
	return nil
}
