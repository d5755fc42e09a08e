// Package camera manages the lifecycle of a single live capture device.
//
// A Manager mediates every interaction with the platform capture API (a
// Host) and guarantees that at most one device handle is open at a time.
// Acquisition returns a *Stream; every exit path that leaves camera mode
// must hand the stream back through Manager.End.
//
//	m := camera.NewManager(host, camera.WithHandheld(true))
//	defer m.Close()
//
//	s, err := m.Start(ctx, m.Preference())
//	if err != nil {
//	    return err
//	}
//	img, err := m.Capture(ctx, s)
//	m.End(s)
package camera

import (
	"context"
	"fmt"
)

// Facing is the logical orientation of a capture device.
type Facing string

const (
	FacingFront Facing = "front"
	FacingRear  Facing = "rear"
)

// Valid reports whether f is front or rear.
func (f Facing) Valid() bool {
	return f == FacingFront || f == FacingRear
}

// Toggle returns the opposite facing.
func (f Facing) Toggle() Facing {
	if f == FacingFront {
		return FacingRear
	}
	return FacingFront
}

// ParseFacing accepts "front"/"user" and "rear"/"back"/"environment".
func ParseFacing(s string) (Facing, error) {
	switch s {
	case "front", "user":
		return FacingFront, nil
	case "rear", "back", "environment":
		return FacingRear, nil
	}
	return "", fmt.Errorf("camera: unknown facing %q", s)
}

// DefaultFacing is rear on handheld form factors, front otherwise.
func DefaultFacing(handheld bool) Facing {
	if handheld {
		return FacingRear
	}
	return FacingFront
}

// PermissionState is the host's camera grant state.
type PermissionState string

const (
	PermissionUndetermined PermissionState = "undetermined"
	PermissionGranted      PermissionState = "granted"
	PermissionDenied       PermissionState = "denied"
)

// State is the manager's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
)

// DeviceInfo describes one physical capture device.
type DeviceInfo struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Path   string `json:"path,omitempty"`
	Facing Facing `json:"facing,omitempty"` // empty when unknown
}

// Constraints select and configure a device at acquisition time.
type Constraints struct {
	// Facing is the requested orientation.
	Facing Facing

	// Exact requires a device reporting Facing. When false any video
	// device is acceptable and Facing is only a preference.
	Exact bool

	Width     int
	Height    int
	Framerate int
	Quality   int // JPEG quality 1-100
}

// Host is the platform capture API.
type Host interface {
	// QueryPermission inspects the grant state without side effects.
	// Hosts that cannot tell return ErrUnsupported.
	QueryPermission(ctx context.Context) (PermissionState, error)

	// RequestPermission prompts the user and blocks until they answer.
	RequestPermission(ctx context.Context) (PermissionState, error)

	// Devices enumerates the physical video devices.
	Devices(ctx context.Context) ([]DeviceInfo, error)

	// Open acquires a device matching c. Errors wrap ErrDeviceUnavailable
	// or ErrPermissionDenied.
	Open(ctx context.Context, c Constraints) (Device, error)
}

// Device is an open capture handle.
type Device interface {
	Info() DeviceInfo

	// Frame returns the current frame as an encoded JPEG, or an error
	// wrapping ErrFrameUnavailable when no decodable frame exists yet.
	Frame(ctx context.Context) ([]byte, error)

	// Close releases the hardware.
	Close() error
}

// SelectDevice picks the device satisfying c from devices.
// Exact constraints only match a device reporting c.Facing; otherwise a
// facing match is preferred and the first device is the fallback.
func SelectDevice(devices []DeviceInfo, c Constraints) (DeviceInfo, error) {
	for _, d := range devices {
		if d.Facing == c.Facing {
			return d, nil
		}
	}
	if c.Exact {
		return DeviceInfo{}, fmt.Errorf("%w: no %s-facing device", ErrDeviceUnavailable, c.Facing)
	}
	if len(devices) == 0 {
		return DeviceInfo{}, fmt.Errorf("%w: no video devices", ErrDeviceUnavailable)
	}
	return devices[0], nil
}
