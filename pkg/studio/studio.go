// Package studio is the controller between the presentation layer and the
// capture and identification components. It owns the displayed state.
package studio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-plantid/pkg/camera"
	"github.com/teslashibe/go-plantid/pkg/metrics"
	"github.com/teslashibe/go-plantid/pkg/photo"
	"github.com/teslashibe/go-plantid/pkg/plant"
)

// Identifier turns an image into a record. *plant.Identifier implements it.
type Identifier interface {
	Identify(ctx context.Context, img *photo.Image) (*plant.Record, error)
}

// Option configures a Studio.
type Option func(*Studio)

// WithMetrics records camera and identification metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Studio) { s.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Studio) { s.logger = l }
}

// Studio holds the current image, record, loading flag and error, and
// drives the camera manager and identifier.
//
// The studio lock is never held while calling into the camera manager,
// because manager events call back into the studio.
type Studio struct {
	cam     *camera.Manager
	id      Identifier
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	image   *photo.Image
	record  *plant.Record
	loading bool
	err     error
	gen     uint64
	cancel  context.CancelFunc
	updated time.Time

	subMu  sync.Mutex
	subs   map[int]func(State)
	nextID int
}

// New creates a studio and takes over cam.OnEvent.
func New(cam *camera.Manager, id Identifier, opts ...Option) *Studio {
	s := &Studio{
		cam:     cam,
		id:      id,
		logger:  slog.Default(),
		subs:    make(map[int]func(State)),
		updated: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "studio")
	cam.OnEvent = s.handleCameraEvent
	return s
}

// Camera returns the camera manager.
func (s *Studio) Camera() *camera.Manager {
	return s.cam
}

// Subscribe registers fn to receive every state change. The returned
// function unsubscribes.
func (s *Studio) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Snapshot returns the current state.
func (s *Studio) Snapshot() State {
	s.mu.Lock()
	st := State{
		Image:      imageInfo(s.image),
		Record:     s.record,
		Loading:    s.loading,
		Error:      Message(s.err),
		Reason:     Reason(s.err),
		Generation: s.gen,
		UpdatedAt:  s.updated,
	}
	s.mu.Unlock()

	st.Camera = CameraState{
		Facing:     s.cam.Preference(),
		Permission: s.cam.Permission(),
		Handheld:   s.cam.Handheld(),
	}
	if a := s.cam.Active(); a != nil {
		st.Camera.Active = true
		st.Camera.StreamID = a.ID()
		st.Camera.Facing = a.Facing()
		st.Camera.Device = a.Device().ID
	}
	return st
}

// Image returns the held image, or nil.
func (s *Studio) Image() *photo.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

// Upload replaces the held image with user-supplied bytes. The previous
// record and error are cleared and any in-flight identification is
// superseded.
func (s *Studio) Upload(data []byte) (*photo.Image, error) {
	img, err := photo.FromUpload(data)
	if err != nil {
		f := &plant.Failure{
			Reason:  plant.ReasonInvalidImage,
			Message: "Invalid image: " + err.Error(),
			Err:     err,
		}
		s.fail(f)
		return nil, f
	}

	s.mu.Lock()
	s.supersedeLocked()
	s.image = img
	s.record = nil
	s.err = nil
	s.touchLocked()
	s.mu.Unlock()

	s.logger.Info("image uploaded", "mime", img.MIMEType(), "bytes", img.Len())
	s.notify()
	return img, nil
}

// QueryPermission refreshes the camera permission state.
func (s *Studio) QueryPermission(ctx context.Context) camera.PermissionState {
	return s.cam.QueryPermission(ctx)
}

// RequestPermission prompts for camera access. A denial sets the error
// message and a grant clears it.
func (s *Studio) RequestPermission(ctx context.Context) camera.PermissionState {
	state := s.cam.RequestPermission(ctx)
	switch state {
	case camera.PermissionDenied:
		s.fail(&camera.Error{Op: "request", Err: camera.ErrPermissionDenied})
	case camera.PermissionGranted:
		s.clearError()
	}
	return state
}

// OpenCamera starts a capture session. An empty facing uses the current
// preference. On failure the camera is left idle.
func (s *Studio) OpenCamera(ctx context.Context, facing camera.Facing) (*camera.Stream, error) {
	if facing == "" {
		facing = s.cam.Preference()
	}
	st, err := s.cam.Start(ctx, facing)
	if err != nil {
		s.cameraFailed("start", err)
		return nil, err
	}
	s.clearError()
	return st, nil
}

// SwitchCamera toggles between front and rear.
func (s *Studio) SwitchCamera(ctx context.Context) (*camera.Stream, error) {
	st, err := s.cam.Switch(ctx)
	if err != nil {
		s.cameraFailed("switch", err)
		return nil, err
	}
	return st, nil
}

// Capture snapshots the live stream into the held image and ends the
// session. A frame that is not ready yet leaves the session open.
func (s *Studio) Capture(ctx context.Context) (*photo.Image, error) {
	st := s.cam.Active()
	if st == nil {
		err := &camera.Error{Op: "capture", Err: camera.ErrStreamReleased}
		s.metrics.ObserveCameraError("capture", err)
		s.fail(err)
		return nil, err
	}

	img, err := s.cam.Capture(ctx, st)
	if err != nil {
		if errors.Is(err, camera.ErrFrameUnavailable) {
			s.metrics.ObserveCameraError("capture", err)
			s.fail(err)
		} else {
			s.cameraFailed("capture", err)
		}
		return nil, err
	}
	s.metrics.ObserveFrame(metrics.FrameCapture)

	if err := s.cam.End(st); err != nil {
		s.logger.Warn("end after capture failed", "error", err)
	}

	s.mu.Lock()
	s.supersedeLocked()
	s.image = img
	s.record = nil
	s.err = nil
	s.touchLocked()
	s.mu.Unlock()

	s.logger.Info("frame captured", "stream", st.ID(), "bytes", img.Len())
	s.notify()
	return img, nil
}

// Preview reads a frame from the live stream without changing state.
func (s *Studio) Preview(ctx context.Context) ([]byte, error) {
	st := s.cam.Active()
	if st == nil {
		return nil, &camera.Error{Op: "preview", Err: camera.ErrStreamReleased}
	}
	img, err := s.cam.Capture(ctx, st)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveFrame(metrics.FramePreview)
	return img.Bytes(), nil
}

// CloseCamera ends the capture session, if any.
func (s *Studio) CloseCamera() error {
	return s.cam.Close()
}

// Identify runs the identifier on the held image. A newer Identify,
// Upload, Capture or Reset supersedes it: its context is canceled and its
// result is discarded with ErrSuperseded.
func (s *Studio) Identify(ctx context.Context) (*plant.Record, error) {
	s.mu.Lock()
	img := s.image
	if img == nil {
		s.mu.Unlock()
		return nil, &plant.Failure{
			Reason:  plant.ReasonInvalidImage,
			Message: MsgNoImage,
			Err:     plant.ErrNoImage,
		}
	}

	s.supersedeLocked()
	ctx, cancel := context.WithCancel(ctx)
	gen := s.gen
	s.cancel = cancel
	s.loading = true
	s.record = nil
	s.err = nil
	s.touchLocked()
	s.mu.Unlock()
	s.notify()

	done := s.metrics.IdentifyStarted()
	rec, err := s.id.Identify(ctx, img)
	cancel()
	done(err)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("identification superseded", "generation", gen)
		return nil, ErrSuperseded
	}
	s.cancel = nil
	s.loading = false
	if err != nil {
		s.err = err
	} else {
		s.record = rec
	}
	s.touchLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("identification failed", "reason", plant.ReasonOf(err), "error", err)
	} else {
		s.logger.Info("plant identified", "name", rec.Name, "complete", rec.Complete())
	}
	s.notify()
	return rec, err
}

// Reset cancels any identification, ends the camera session and clears
// the image, record and error.
func (s *Studio) Reset() error {
	err := s.cam.Close()

	s.mu.Lock()
	s.supersedeLocked()
	s.image = nil
	s.record = nil
	s.err = nil
	s.touchLocked()
	s.mu.Unlock()

	s.notify()
	return err
}

// Close releases the camera and cancels in-flight work.
func (s *Studio) Close() error {
	s.mu.Lock()
	s.supersedeLocked()
	s.mu.Unlock()
	return s.cam.Close()
}

// supersedeLocked invalidates the in-flight identification.
func (s *Studio) supersedeLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.loading = false
}

func (s *Studio) touchLocked() {
	s.updated = time.Now()
}

func (s *Studio) cameraFailed(op string, err error) {
	s.metrics.ObserveCameraError(op, err)
	if cerr := s.cam.Close(); cerr != nil {
		s.logger.Warn("camera reset failed", "error", cerr)
	}
	s.logger.Warn("camera operation failed", "op", op, "cause", camera.Cause(err), "error", err)
	s.fail(err)
}

// fail records err and drops the record and any in-flight identification
// so a stale result never sits next to the new error.
func (s *Studio) fail(err error) {
	s.mu.Lock()
	s.supersedeLocked()
	s.record = nil
	s.err = err
	s.touchLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *Studio) clearError() {
	s.mu.Lock()
	if s.err == nil {
		s.mu.Unlock()
		return
	}
	s.err = nil
	s.touchLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *Studio) handleCameraEvent(ev camera.Event) {
	s.metrics.ObserveCameraEvent(ev)
	s.logger.Debug("camera event", "type", ev.Type, "stream", ev.StreamID, "facing", ev.Facing)
	s.notify()
}

func (s *Studio) notify() {
	s.subMu.Lock()
	if len(s.subs) == 0 {
		s.subMu.Unlock()
		return
	}
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	st := s.Snapshot()
	for _, fn := range fns {
		fn(st)
	}
}
