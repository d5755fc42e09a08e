package camera

import (
	"errors"
	"fmt"
)

// Sentinel errors for capture failures.
var (
	// ErrPermissionDenied is returned when the host refuses camera access.
	ErrPermissionDenied = errors.New("camera: permission denied")

	// ErrDeviceUnavailable is returned when no device matches the request.
	ErrDeviceUnavailable = errors.New("camera: device unavailable")

	// ErrFrameUnavailable is returned when the stream has no decodable frame yet.
	ErrFrameUnavailable = errors.New("camera: frame unavailable")

	// ErrStreamReleased is returned when a released or stale stream is used.
	ErrStreamReleased = errors.New("camera: stream released")

	// ErrUnsupported is returned by hosts that cannot answer a query.
	ErrUnsupported = errors.New("camera: not supported by host")
)

// Error wraps a capture failure with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("camera %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Cause returns a short label for the sentinel behind err, for metrics
// and API responses.
func Cause(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, ErrFrameUnavailable):
		return "frame_unavailable"
	case errors.Is(err, ErrStreamReleased):
		return "stream_released"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	default:
		return "other"
	}
}
