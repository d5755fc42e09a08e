package studio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-plantid/pkg/camera"
	"github.com/teslashibe/go-plantid/pkg/metrics"
	"github.com/teslashibe/go-plantid/pkg/photo"
	"github.com/teslashibe/go-plantid/pkg/plant"
)

const roseReply = "Name: Rose\nScientific Name: Rosa\nFamily: Rosaceae\nDescription: A flower\nCare Tips: Water daily"

func newTestStudio(t *testing.T, model plant.Model) (*Studio, *camera.MockHost) {
	t.Helper()
	host := camera.NewMockPhone()
	cam := camera.NewManager(host, camera.WithHandheld(true))
	s := New(cam, plant.NewIdentifier(model), WithMetrics(metrics.New()))
	t.Cleanup(func() { s.Close() })
	return s, host
}

func TestUploadAndIdentify(t *testing.T) {
	s, _ := newTestStudio(t, plant.NewMockModel(roseReply))

	if s.Snapshot().CanIdentify() {
		t.Error("identify should be disabled without an image")
	}
	if _, err := s.Upload(camera.MockFrame()); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	st := s.Snapshot()
	if st.Image == nil || st.Image.Source != photo.SourceUpload || st.Image.MIMEType != "image/jpeg" {
		t.Fatalf("image = %+v", st.Image)
	}
	if !st.CanIdentify() {
		t.Error("identify should be enabled with an image")
	}

	rec, err := s.Identify(context.Background())
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if rec.Name != "Rose" {
		t.Errorf("Name = %q", rec.Name)
	}

	st = s.Snapshot()
	if st.Loading || st.Error != "" || st.Record == nil || st.Record.Family != "Rosaceae" {
		t.Errorf("state = %+v", st)
	}
}

func TestUploadInvalid(t *testing.T) {
	s, _ := newTestStudio(t, plant.NewMockModel(roseReply))

	_, err := s.Upload([]byte("definitely not an image"))
	if plant.ReasonOf(err) != plant.ReasonInvalidImage {
		t.Fatalf("reason = %q, want INVALID_IMAGE", plant.ReasonOf(err))
	}
	st := s.Snapshot()
	if st.Error == "" || st.Reason != "INVALID_IMAGE" || st.Image != nil {
		t.Errorf("state = %+v", st)
	}
}

func TestIdentifyWithoutImage(t *testing.T) {
	model := plant.NewMockModel(roseReply)
	s, _ := newTestStudio(t, model)

	_, err := s.Identify(context.Background())
	if !errors.Is(err, plant.ErrNoImage) {
		t.Fatalf("err = %v, want ErrNoImage", err)
	}
	if Message(err) != MsgNoImage {
		t.Errorf("message = %q", Message(err))
	}
	if model.CallCount() != 0 {
		t.Error("model must not be called")
	}
}

func TestIdentifyFailureResetsRecord(t *testing.T) {
	model := plant.NewMockModel(roseReply)
	s, _ := newTestStudio(t, model)
	s.Upload(camera.MockFrame())
	if _, err := s.Identify(context.Background()); err != nil {
		t.Fatal(err)
	}

	model.GenerateFunc = func(ctx context.Context, req plant.Request) (string, error) {
		return "", errors.New("quota exceeded")
	}
	_, err := s.Identify(context.Background())
	if plant.ReasonOf(err) != plant.ReasonModel {
		t.Fatalf("reason = %q", plant.ReasonOf(err))
	}

	st := s.Snapshot()
	if st.Record != nil {
		t.Error("stale record must be cleared")
	}
	if st.Error != "Failed to identify plant: quota exceeded" || st.Reason != "MODEL_ERROR" {
		t.Errorf("error = %q reason = %q", st.Error, st.Reason)
	}
	if st.Image == nil {
		t.Error("image should be kept for retry")
	}

	// A new attempt clears the previous error.
	model.GenerateFunc = func(ctx context.Context, req plant.Request) (string, error) {
		return roseReply, nil
	}
	if _, err := s.Identify(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Snapshot().Error != "" {
		t.Error("error should be cleared by a successful identify")
	}
}

func TestIdentifySupersede(t *testing.T) {
	started := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	model := &plant.MockModel{
		GenerateFunc: func(ctx context.Context, req plant.Request) (string, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				close(started)
				<-ctx.Done()
				return "", ctx.Err()
			}
			return "Name: Tulip", nil
		},
	}
	s, _ := newTestStudio(t, model)
	s.Upload(camera.MockFrame())

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Identify(context.Background())
		firstErr <- err
	}()
	<-started
	if !s.Snapshot().Loading {
		t.Error("state should be loading")
	}

	rec, err := s.Identify(context.Background())
	if err != nil {
		t.Fatalf("second Identify failed: %v", err)
	}
	if rec.Name != "Tulip" {
		t.Errorf("Name = %q", rec.Name)
	}

	select {
	case err := <-firstErr:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("first err = %v, want ErrSuperseded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first identify was not canceled")
	}

	st := s.Snapshot()
	if st.Record == nil || st.Record.Name != "Tulip" || st.Loading || st.Error != "" {
		t.Errorf("state = %+v", st)
	}
}

func TestResetDuringIdentify(t *testing.T) {
	started := make(chan struct{})
	model := &plant.MockModel{
		GenerateFunc: func(ctx context.Context, req plant.Request) (string, error) {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	s, _ := newTestStudio(t, model)
	s.Upload(camera.MockFrame())

	errc := make(chan error, 1)
	go func() {
		_, err := s.Identify(context.Background())
		errc <- err
	}()
	<-started

	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Errorf("err = %v, want ErrSuperseded", err)
	}
	st := s.Snapshot()
	if st.Image != nil || st.Record != nil || st.Loading || st.Error != "" {
		t.Errorf("state after reset = %+v", st)
	}
}

func TestCameraCapture(t *testing.T) {
	s, host := newTestStudio(t, plant.NewMockModel(roseReply))
	ctx := context.Background()

	st, err := s.OpenCamera(ctx, "")
	if err != nil {
		t.Fatalf("OpenCamera failed: %v", err)
	}
	if st.Facing() != camera.FacingRear {
		t.Errorf("facing = %s, want rear on handheld", st.Facing())
	}
	snap := s.Snapshot()
	if !snap.Camera.Active || snap.Camera.StreamID != st.ID() || snap.CanIdentify() {
		t.Errorf("camera state = %+v", snap.Camera)
	}

	if _, err := s.SwitchCamera(ctx); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().Camera.Facing; got != camera.FacingFront {
		t.Errorf("facing after switch = %s", got)
	}

	img, err := s.Capture(ctx)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if img.Source() != photo.SourceCamera {
		t.Errorf("source = %s", img.Source())
	}

	snap = s.Snapshot()
	if snap.Camera.Active {
		t.Error("capture should end the session")
	}
	if host.OpenCount() != 0 {
		t.Errorf("open handles = %d, want 0", host.OpenCount())
	}
	if snap.Image == nil || snap.Image.Source != photo.SourceCamera || !snap.CanIdentify() {
		t.Errorf("image = %+v", snap.Image)
	}
}

func TestCaptureWithoutCamera(t *testing.T) {
	s, _ := newTestStudio(t, plant.NewMockModel(roseReply))

	_, err := s.Capture(context.Background())
	if !errors.Is(err, camera.ErrStreamReleased) {
		t.Fatalf("err = %v, want ErrStreamReleased", err)
	}
	if s.Snapshot().Error != MsgCameraNotOpen {
		t.Errorf("error = %q", s.Snapshot().Error)
	}
}

func TestCaptureFrameNotReady(t *testing.T) {
	s, host := newTestStudio(t, plant.NewMockModel(roseReply))
	host.FrameFunc = func(ctx context.Context, info camera.DeviceInfo) ([]byte, error) {
		return nil, camera.ErrFrameUnavailable
	}
	if _, err := s.OpenCamera(context.Background(), camera.FacingFront); err != nil {
		t.Fatal(err)
	}

	_, err := s.Capture(context.Background())
	if !errors.Is(err, camera.ErrFrameUnavailable) {
		t.Fatalf("err = %v", err)
	}
	snap := s.Snapshot()
	if !snap.Camera.Active {
		t.Error("session should stay open while waiting for a frame")
	}
	if snap.Error != MsgFrameNotReady {
		t.Errorf("error = %q", snap.Error)
	}
}

func TestOpenCameraDenied(t *testing.T) {
	s, host := newTestStudio(t, plant.NewMockModel(roseReply))
	host.SetPermission(camera.PermissionDenied)

	_, err := s.OpenCamera(context.Background(), "")
	if !errors.Is(err, camera.ErrPermissionDenied) {
		t.Fatalf("err = %v", err)
	}
	snap := s.Snapshot()
	if snap.Camera.Active || host.OpenCount() != 0 {
		t.Error("camera must be idle after a failed start")
	}
	if snap.Error != MsgCameraAccess || snap.Reason != "permission_denied" {
		t.Errorf("error = %q reason = %q", snap.Error, snap.Reason)
	}
	if snap.Camera.Permission != camera.PermissionDenied {
		t.Errorf("permission = %s", snap.Camera.Permission)
	}
}

func TestRequestPermission(t *testing.T) {
	s, host := newTestStudio(t, plant.NewMockModel(roseReply))
	host.SetPermission(camera.PermissionUndetermined)

	if got := s.QueryPermission(context.Background()); got != camera.PermissionUndetermined {
		t.Errorf("query = %s", got)
	}
	if got := s.RequestPermission(context.Background()); got != camera.PermissionGranted {
		t.Errorf("request = %s", got)
	}
	if host.OpenCount() != 0 {
		t.Error("a grant must not open a device")
	}
}

func TestRequestPermissionGrantClearsDenial(t *testing.T) {
	s, host := newTestStudio(t, plant.NewMockModel(roseReply))
	host.SetPermission(camera.PermissionDenied)

	if got := s.RequestPermission(context.Background()); got != camera.PermissionDenied {
		t.Fatalf("request = %s", got)
	}
	if s.Snapshot().Error != MsgCameraAccess {
		t.Fatalf("error = %q, want camera access message", s.Snapshot().Error)
	}

	host.SetPermission(camera.PermissionGranted)
	if got := s.RequestPermission(context.Background()); got != camera.PermissionGranted {
		t.Fatalf("request = %s", got)
	}
	if snap := s.Snapshot(); snap.Error != "" || snap.Reason != "" {
		t.Errorf("grant should clear the denial, got error %q reason %q", snap.Error, snap.Reason)
	}
}

func TestFailureDropsStaleRecord(t *testing.T) {
	s, host := newTestStudio(t, plant.NewMockModel(roseReply))

	if _, err := s.Upload(camera.MockFrame()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Identify(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Snapshot().Record == nil {
		t.Fatal("expected a record after identify")
	}

	host.SetPermission(camera.PermissionDenied)
	if _, err := s.OpenCamera(context.Background(), ""); err == nil {
		t.Fatal("OpenCamera should fail when permission is denied")
	}
	snap := s.Snapshot()
	if snap.Record != nil {
		t.Errorf("record %q survived a camera failure", snap.Record.Name)
	}
	if snap.Error != MsgCameraAccess || snap.Camera.Active || snap.Loading {
		t.Errorf("state = %+v", snap)
	}

	// Identify again, then reject an upload.
	host.SetPermission(camera.PermissionGranted)
	if _, err := s.Identify(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upload([]byte("not an image")); err == nil {
		t.Fatal("Upload should reject garbage")
	}
	snap = s.Snapshot()
	if snap.Record != nil {
		t.Errorf("record %q survived a rejected upload", snap.Record.Name)
	}
	if snap.Reason != "INVALID_IMAGE" {
		t.Errorf("reason = %q", snap.Reason)
	}
}

func TestFailureSupersedesIdentify(t *testing.T) {
	started := make(chan struct{})
	model := &plant.MockModel{
		GenerateFunc: func(ctx context.Context, req plant.Request) (string, error) {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	s, _ := newTestStudio(t, model)
	if _, err := s.Upload(camera.MockFrame()); err != nil {
		t.Fatal(err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := s.Identify(context.Background())
		errc <- err
	}()
	<-started

	if _, err := s.Upload([]byte("not an image")); err == nil {
		t.Fatal("Upload should reject garbage")
	}

	select {
	case err := <-errc:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("err = %v, want ErrSuperseded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("identify was not canceled by the failure")
	}
	snap := s.Snapshot()
	if snap.Loading || snap.Record != nil || snap.Reason != "INVALID_IMAGE" {
		t.Errorf("state = %+v", snap)
	}
}

func TestPreview(t *testing.T) {
	s, _ := newTestStudio(t, plant.NewMockModel(roseReply))

	if _, err := s.Preview(context.Background()); !errors.Is(err, camera.ErrStreamReleased) {
		t.Errorf("preview while idle: err = %v", err)
	}
	st, err := s.OpenCamera(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	frame, err := s.Preview(context.Background())
	if err != nil || len(frame) == 0 {
		t.Fatalf("Preview = %d bytes, %v", len(frame), err)
	}
	if st.Frames() != 1 {
		t.Errorf("frames = %d", st.Frames())
	}
	if s.Snapshot().Image != nil {
		t.Error("preview must not change the held image")
	}
}

func TestSubscribe(t *testing.T) {
	s, _ := newTestStudio(t, plant.NewMockModel(roseReply))

	var mu sync.Mutex
	var states []State
	unsubscribe := s.Subscribe(func(st State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})

	s.Upload(camera.MockFrame())
	s.Identify(context.Background())

	mu.Lock()
	n := len(states)
	last := states[n-1]
	mu.Unlock()
	if n < 3 {
		t.Fatalf("got %d notifications, want upload, loading and result", n)
	}
	if last.Record == nil || last.Loading {
		t.Errorf("last state = %+v", last)
	}

	unsubscribe()
	s.Reset()
	mu.Lock()
	defer mu.Unlock()
	if len(states) != n {
		t.Error("unsubscribed callback was called")
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&camera.Error{Op: "start", Err: camera.ErrDeviceUnavailable}, MsgCameraAccess},
		{&plant.Failure{Reason: plant.ReasonEmpty, Message: "Failed to identify plant: empty", Err: plant.ErrEmptyResponse}, "Failed to identify plant: empty"},
		{errors.New("boom"), MsgGeneric},
	}
	for _, tt := range tests {
		if got := Message(tt.err); got != tt.want {
			t.Errorf("Message(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
