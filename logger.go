package bbrot

import (
	"log/slog"
	"sync/atomic"
)

// current is the package logger. It discards everything until SetLogger is
// called.
var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(slog.DiscardHandler))
}

// SetLogger routes the pipeline's records to l and hands l to the
// registered device. Pass nil to discard records again.
//
// Records by level:
//   - [slog.LevelDebug]: one per escape dispatch, trace round and merged
//     checkpoint, plus the device's own dispatch records
//   - [slog.LevelInfo]: device registration, cell and seed counts, start of
//     a trace run
//   - [slog.LevelWarn]: tracing with no seeds, GPU registration failure
//
// The CLI installs a text handler on stderr; -v lowers it to Debug.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	current.Store(l)

	deviceMu.RLock()
	d := device
	deviceMu.RUnlock()
	if d != nil {
		propagateLogger(d, l)
	}
}

// Logger returns the logger set by SetLogger. The gpu packages log through
// it without importing anything but bbrot.
func Logger() *slog.Logger {
	return current.Load()
}

// propagateLogger gives l to devices that log on their own, such as the
// software and wgpu devices.
func propagateLogger(d Device, l *slog.Logger) {
	if ls, ok := d.(interface{ SetLogger(*slog.Logger) }); ok {
		ls.SetLogger(l)
	}
}
