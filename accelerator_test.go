package bbrot

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// mockDevice implements Device by delegating the kernels to a software
// device and recording lifecycle calls and trace dispatches.
type mockDevice struct {
	name     string
	initErr  error
	maxBuf   uint64
	provider any

	mu         sync.Mutex
	closed     bool
	logger     *slog.Logger
	sw         *SoftwareDevice
	dispatches [][]int32
}

func newMockDevice(name string) *mockDevice {
	return &mockDevice{name: name, sw: NewSoftwareDevice(2)}
}

func (m *mockDevice) Name() string { return m.name }

func (m *mockDevice) Init() error {
	if m.initErr != nil {
		return m.initErr
	}
	return m.sw.Init()
}

func (m *mockDevice) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.sw.Close()
}

func (m *mockDevice) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockDevice) SetLogger(l *slog.Logger) {
	m.mu.Lock()
	m.logger = l
	m.mu.Unlock()
}

func (m *mockDevice) SetDeviceProvider(p any) error {
	m.provider = p
	return nil
}

func (m *mockDevice) MaxBufferSize() uint64 { return m.maxBuf }

func (m *mockDevice) NewEscapeBatch(x0, y0 []float64) (EscapeBatch, error) {
	return m.sw.NewEscapeBatch(x0, y0)
}

func (m *mockDevice) NewTraceBatch(grid Grid, seeds []Seed, slots []Histogram) (TraceBatch, error) {
	b, err := m.sw.NewTraceBatch(grid, seeds, slots)
	if err != nil {
		return nil, err
	}
	return &recordingTraceBatch{TraceBatch: b, dev: m}, nil
}

// rounds returns the recorded trace dispatches.
func (m *mockDevice) rounds() [][]int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dispatches
}

type recordingTraceBatch struct {
	TraceBatch
	dev *mockDevice
}

func (b *recordingTraceBatch) Dispatch(assign []int32, bound, loops int32) error {
	b.dev.mu.Lock()
	b.dev.dispatches = append(b.dev.dispatches, append([]int32(nil), assign...))
	b.dev.mu.Unlock()
	return b.TraceBatch.Dispatch(assign, bound, loops)
}

// resetDevice clears the global device state between tests.
func resetDevice() {
	deviceMu.Lock()
	device = nil
	deviceMu.Unlock()
}

func TestRegisterDeviceNil(t *testing.T) {
	resetDevice()

	err := RegisterDevice(nil)
	if err == nil {
		t.Fatal("expected error when registering nil device")
	}
	if err.Error() != "bbrot: device must not be nil" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
	if CurrentDevice().Name() != "software" {
		t.Error("software device should stay current after failed registration")
	}
}

func TestRegisterDeviceInitError(t *testing.T) {
	resetDevice()

	initErr := errors.New("GPU init failed")
	mock := newMockDevice("failing")
	mock.initErr = initErr

	err := RegisterDevice(mock)
	if !errors.Is(err, initErr) {
		t.Errorf("expected init error, got: %v", err)
	}
	if CurrentDevice() == Device(mock) {
		t.Error("device should not be registered after Init failure")
	}
}

func TestRegisterDeviceReplacesOld(t *testing.T) {
	resetDevice()
	t.Cleanup(resetDevice)

	first := newMockDevice("first")
	second := newMockDevice("second")

	if err := RegisterDevice(first); err != nil {
		t.Fatalf("unexpected error registering first: %v", err)
	}
	if err := RegisterDevice(second); err != nil {
		t.Fatalf("unexpected error registering second: %v", err)
	}

	if !first.isClosed() {
		t.Error("expected first device to be closed after replacement")
	}
	if got := CurrentDevice().Name(); got != "second" {
		t.Errorf("expected name %q, got %q", "second", got)
	}
	if second.isClosed() {
		t.Error("second device should not be closed")
	}
}

func TestCurrentDeviceDefaultsToSoftware(t *testing.T) {
	resetDevice()

	d := CurrentDevice()
	if d == nil {
		t.Fatal("CurrentDevice() returned nil")
	}
	if d.Name() != "software" {
		t.Errorf("CurrentDevice().Name() = %q, want %q", d.Name(), "software")
	}
	if d != CurrentDevice() {
		t.Error("software fallback should be shared")
	}
}

type fakeProvider struct{}

func (fakeProvider) Device() gpucontext.Device   { return nil }
func (fakeProvider) Queue() gpucontext.Queue     { return nil }
func (fakeProvider) Adapter() gpucontext.Adapter { return nil }
func (fakeProvider) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}
func (fakeProvider) AdapterInfo() gpucontext.AdapterInfo {
	var info gpucontext.AdapterInfo
	return info
}

func TestSetDeviceProvider(t *testing.T) {
	resetDevice()
	t.Cleanup(resetDevice)

	if err := SetDeviceProvider(fakeProvider{}); err != nil {
		t.Fatalf("SetDeviceProvider without device = %v, want nil", err)
	}

	mock := newMockDevice("shared")
	if err := RegisterDevice(mock); err != nil {
		t.Fatal(err)
	}
	if err := SetDeviceProvider(fakeProvider{}); err != nil {
		t.Fatalf("SetDeviceProvider = %v", err)
	}
	if _, ok := mock.provider.(fakeProvider); !ok {
		t.Errorf("provider not forwarded, got %T", mock.provider)
	}
}
