package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"
)

// MockHost implements Host for testing. Devices and permission are
// scripted; open handles are counted so tests can assert that no two
// devices are ever open at once.
type MockHost struct {
	// QueryFunc overrides QueryPermission.
	QueryFunc func(ctx context.Context) (PermissionState, error)

	// RequestFunc overrides RequestPermission.
	RequestFunc func(ctx context.Context) (PermissionState, error)

	// FrameFunc overrides the frames produced by opened devices.
	FrameFunc func(ctx context.Context, info DeviceInfo) ([]byte, error)

	// OpenDelay stalls Open to widen race windows in tests.
	OpenDelay time.Duration

	mu         sync.Mutex
	devices    []DeviceInfo
	permission PermissionState
	open       int
	maxOpen    int
	opened     int
	calls      []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMockHost creates a host with the given devices and permission granted.
func NewMockHost(devices ...DeviceInfo) *MockHost {
	return &MockHost{
		devices:    devices,
		permission: PermissionGranted,
	}
}

// NewMockPhone returns a host with one front and one rear device.
func NewMockPhone() *MockHost {
	return NewMockHost(
		DeviceInfo{ID: "front-0", Label: "Front Camera", Path: "/dev/video0", Facing: FacingFront},
		DeviceInfo{ID: "rear-0", Label: "Back Camera", Path: "/dev/video2", Facing: FacingRear},
	)
}

// SetPermission changes the scripted permission state.
func (h *MockHost) SetPermission(state PermissionState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.permission = state
}

// SetDevices replaces the scripted device list.
func (h *MockHost) SetDevices(devices ...DeviceInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.devices = devices
}

// QueryPermission returns the scripted state.
func (h *MockHost) QueryPermission(ctx context.Context) (PermissionState, error) {
	h.record("QueryPermission")
	if h.QueryFunc != nil {
		return h.QueryFunc(ctx)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.permission, nil
}

// RequestPermission grants unless the state is already denied.
func (h *MockHost) RequestPermission(ctx context.Context) (PermissionState, error) {
	h.record("RequestPermission")
	if h.RequestFunc != nil {
		return h.RequestFunc(ctx)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.permission == PermissionUndetermined {
		h.permission = PermissionGranted
	}
	return h.permission, nil
}

// Devices returns the scripted devices.
func (h *MockHost) Devices(ctx context.Context) ([]DeviceInfo, error) {
	h.record("Devices")
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]DeviceInfo, len(h.devices))
	copy(out, h.devices)
	return out, nil
}

// Open selects a scripted device and opens a mock handle.
func (h *MockHost) Open(ctx context.Context, c Constraints) (Device, error) {
	h.record("Open")
	if h.OpenDelay > 0 {
		select {
		case <-time.After(h.OpenDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.permission == PermissionDenied {
		return nil, ErrPermissionDenied
	}
	info, err := SelectDevice(h.devices, c)
	if err != nil {
		return nil, err
	}

	// A successful open implies the user granted access.
	if h.permission == PermissionUndetermined {
		h.permission = PermissionGranted
	}
	h.open++
	h.opened++
	if h.open > h.maxOpen {
		h.maxOpen = h.open
	}
	return &mockDevice{host: h, info: info}, nil
}

// OpenCount returns the number of handles currently open.
func (h *MockHost) OpenCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

// MaxOpen returns the highest number of simultaneously open handles.
func (h *MockHost) MaxOpen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxOpen
}

// Opened returns the total number of successful opens.
func (h *MockHost) Opened() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opened
}

// CallCount returns the number of times a method was called.
func (h *MockHost) CallCount(method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, c := range h.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

func (h *MockHost) record(method string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, MockCall{Method: method, Time: time.Now()})
}

type mockDevice struct {
	host   *MockHost
	info   DeviceInfo
	closed bool
}

func (d *mockDevice) Info() DeviceInfo { return d.info }

func (d *mockDevice) Frame(ctx context.Context) ([]byte, error) {
	if d.closed {
		return nil, fmt.Errorf("%w: device closed", ErrFrameUnavailable)
	}
	if d.host.FrameFunc != nil {
		return d.host.FrameFunc(ctx, d.info)
	}
	return MockFrame(), nil
}

func (d *mockDevice) Close() error {
	d.host.mu.Lock()
	defer d.host.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.host.open--
	return nil
}

// MockFrame returns a small green JPEG.
func MockFrame() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 160, B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80})
	return buf.Bytes()
}

// Verify MockHost implements Host at compile time.
var _ Host = (*MockHost)(nil)
