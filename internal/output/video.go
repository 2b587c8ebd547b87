package output

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/icza/mjpeg"
)

// DefaultJPEGQuality is the quality of video frames.
const DefaultJPEGQuality = 90

// VideoWriter writes frames into a Motion-JPEG AVI file. The file is built
// under a temporary name and renamed into place by Close; Abort discards it.
type VideoWriter struct {
	path    string
	tmp     string
	avi     mjpeg.AviWriter
	buf     bytes.Buffer
	quality int
	frames  int
}

// NewVideoWriter starts an AVI file of the given frame size and rate.
func NewVideoWriter(path string, width, height, fps int) (*VideoWriter, error) {
	if width <= 0 || height <= 0 || fps <= 0 {
		return nil, fmt.Errorf("output: video %dx%d at %d fps: invalid parameters", width, height, fps)
	}
	path = filepath.Clean(path)
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")

	//nolint:gosec // G115: frame sizes are grid resolutions, far below MaxInt32
	avi, err := mjpeg.New(tmp, int32(width), int32(height), int32(fps))
	if err != nil {
		return nil, fmt.Errorf("output: create video: %w", err)
	}
	return &VideoWriter{path: path, tmp: tmp, avi: avi, quality: DefaultJPEGQuality}, nil
}

// AddFrame appends img as the next frame.
func (v *VideoWriter) AddFrame(img image.Image) error {
	v.buf.Reset()
	if err := EncodeJPEG(&v.buf, img, v.quality); err != nil {
		return err
	}
	if err := v.avi.AddFrame(v.buf.Bytes()); err != nil {
		return fmt.Errorf("output: add video frame %d: %w", v.frames+1, err)
	}
	v.frames++
	return nil
}

// Frames returns the number of frames written so far.
func (v *VideoWriter) Frames() int { return v.frames }

// Close finalizes the AVI index and moves the file to its final name.
func (v *VideoWriter) Close() error {
	if err := v.avi.Close(); err != nil {
		_ = os.Remove(v.tmp)
		return fmt.Errorf("output: finalize video: %w", err)
	}
	if err := os.Rename(v.tmp, v.path); err != nil {
		_ = os.Remove(v.tmp)
		return fmt.Errorf("output: rename video: %w", err)
	}
	return nil
}

// Abort closes the writer and removes the partial file.
func (v *VideoWriter) Abort() {
	_ = v.avi.Close()
	_ = os.Remove(v.tmp)
}
