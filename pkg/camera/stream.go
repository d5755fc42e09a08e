package camera

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Stream is an owned handle to a live capture device. It is created by
// Manager.Start and must be handed back through Manager.End.
type Stream struct {
	id        string
	facing    Facing
	info      DeviceInfo
	startedAt time.Time
	device    Device

	frames   atomic.Int64
	released atomic.Bool
}

func newStream(dev Device, facing Facing) *Stream {
	return &Stream{
		id:        uuid.NewString(),
		facing:    facing,
		info:      dev.Info(),
		startedAt: time.Now(),
		device:    dev,
	}
}

// ID is unique per acquisition and never reused.
func (s *Stream) ID() string { return s.id }

// Facing is the preference the stream was acquired for.
func (s *Stream) Facing() Facing { return s.facing }

// Device describes the physical device behind the stream.
func (s *Stream) Device() DeviceInfo { return s.info }

// StartedAt returns the acquisition time.
func (s *Stream) StartedAt() time.Time { return s.startedAt }

// Frames returns how many frames were captured from the stream.
func (s *Stream) Frames() int64 { return s.frames.Load() }

// Released reports whether the device handle has been closed.
func (s *Stream) Released() bool { return s.released.Load() }

// release closes the device once.
func (s *Stream) release() error {
	if s.released.Swap(true) {
		return nil
	}
	return s.device.Close()
}
