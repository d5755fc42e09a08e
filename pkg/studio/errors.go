package studio

import (
	"errors"

	"github.com/teslashibe/go-plantid/pkg/camera"
	"github.com/teslashibe/go-plantid/pkg/plant"
)

// ErrSuperseded is returned by Identify when a newer identification or a
// reset replaced it before the model answered.
var ErrSuperseded = errors.New("studio: identification superseded")

// User-facing messages.
const (
	MsgCameraAccess  = "Unable to access camera. Please check your permissions."
	MsgCameraNotOpen = "The camera is not open."
	MsgFrameNotReady = "The camera is not ready yet. Please try again."
	MsgNoImage       = "Please upload or capture an image first."
	MsgGeneric       = "Error identifying plant. Please try again."
)

// Message renders err for display. It is the only place failures are
// turned into text.
func Message(err error) string {
	var f *plant.Failure
	switch {
	case err == nil:
		return ""
	case errors.Is(err, plant.ErrNoImage):
		return MsgNoImage
	case errors.As(err, &f):
		return f.Message
	case errors.Is(err, camera.ErrPermissionDenied), errors.Is(err, camera.ErrDeviceUnavailable):
		return MsgCameraAccess
	case errors.Is(err, camera.ErrFrameUnavailable):
		return MsgFrameNotReady
	case errors.Is(err, camera.ErrStreamReleased):
		return MsgCameraNotOpen
	default:
		return MsgGeneric
	}
}

// Reason returns the machine-readable cause of err.
func Reason(err error) string {
	if r := plant.ReasonOf(err); r != "" {
		return string(r)
	}
	if c := camera.Cause(err); c != "other" {
		return c
	}
	return ""
}
