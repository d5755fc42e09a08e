package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-plantid/pkg/photo"
)

// EventType names a manager lifecycle event.
type EventType string

const (
	EventStarted    EventType = "started"
	EventEnded      EventType = "ended"
	EventSwitched   EventType = "switched"
	EventPermission EventType = "permission"
	EventHotplug    EventType = "hotplug"
)

// Event is emitted after a state change, outside the manager lock.
type Event struct {
	Type       EventType       `json:"type"`
	StreamID   string          `json:"stream_id,omitempty"`
	Facing     Facing          `json:"facing,omitempty"`
	Device     string          `json:"device,omitempty"`
	Permission PermissionState `json:"permission,omitempty"`
	Time       time.Time       `json:"time"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithHandheld marks the host as a handheld form factor: rear is the
// default facing and facing constraints are exact.
func WithHandheld(handheld bool) Option {
	return func(m *Manager) { m.handheld = handheld }
}

// WithConfig sets the initial capture config.
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.config = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager owns at most one live Stream. All methods are safe for
// concurrent use; camera operations are serialized.
type Manager struct {
	host     Host
	handheld bool
	logger   *slog.Logger

	mu         sync.Mutex
	config     Config
	facing     Facing
	permission PermissionState
	active     *Stream

	// OnEvent is called after each state change. Set before first use.
	OnEvent func(Event)
}

// NewManager creates a manager for host. The default facing is chosen
// once from the handheld setting.
func NewManager(host Host, opts ...Option) *Manager {
	m := &Manager{
		host:       host,
		config:     DefaultConfig(),
		permission: PermissionUndetermined,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.facing = DefaultFacing(m.handheld)
	m.logger = m.logger.With("component", "camera")
	return m
}

// QueryPermission inspects the host grant state. Hosts that cannot tell
// report PermissionUndetermined.
func (m *Manager) QueryPermission(ctx context.Context) PermissionState {
	var events []Event
	defer func() { m.emit(events) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.host.QueryPermission(ctx)
	if err != nil {
		if !errors.Is(err, ErrUnsupported) {
			m.logger.Debug("permission query failed", "error", err)
		}
		return PermissionUndetermined
	}
	m.setPermissionLocked(state, &events)
	return state
}

// RequestPermission prompts the host and blocks until it answers. A grant
// does not open a device. Failures are recorded as PermissionDenied.
func (m *Manager) RequestPermission(ctx context.Context) PermissionState {
	var events []Event
	defer func() { m.emit(events) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.host.RequestPermission(ctx)
	if err != nil {
		m.logger.Warn("permission request failed", "error", err)
		state = PermissionDenied
	}
	m.setPermissionLocked(state, &events)
	return state
}

// Permission returns the last observed permission state.
func (m *Manager) Permission() PermissionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permission
}

// Start acquires a device for facing. Any stream this manager holds is
// released first.
func (m *Manager) Start(ctx context.Context, facing Facing) (*Stream, error) {
	var events []Event
	defer func() { m.emit(events) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.startLocked(ctx, facing, &events)
}

func (m *Manager) startLocked(ctx context.Context, facing Facing, events *[]Event) (*Stream, error) {
	if !facing.Valid() {
		return nil, wrap("start", fmt.Errorf("invalid facing %q", facing))
	}

	m.releaseLocked(events)

	if err := ctx.Err(); err != nil {
		return nil, wrap("start", err)
	}

	state, err := m.host.QueryPermission(ctx)
	switch {
	case err == nil:
		m.setPermissionLocked(state, events)
	case !errors.Is(err, ErrUnsupported):
		return nil, wrap("start", err)
	}
	if m.permission == PermissionDenied {
		return nil, wrap("start", ErrPermissionDenied)
	}

	dev, err := m.host.Open(ctx, m.constraintsLocked(facing))
	if err != nil {
		switch {
		case errors.Is(err, ErrPermissionDenied):
			m.setPermissionLocked(PermissionDenied, events)
		case errors.Is(err, ErrDeviceUnavailable), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		default:
			err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		m.logger.Warn("camera acquisition failed", "facing", facing, "error", err)
		return nil, wrap("start", err)
	}
	m.setPermissionLocked(PermissionGranted, events)

	s := newStream(dev, facing)
	m.active = s
	m.facing = facing

	m.logger.Info("camera session started",
		"stream", s.ID(),
		"facing", facing,
		"device", s.Device().ID,
	)
	*events = append(*events, Event{
		Type:     EventStarted,
		StreamID: s.ID(),
		Facing:   facing,
		Device:   s.Device().ID,
	})
	return s, nil
}

// Switch toggles the facing preference and restarts the session.
//
// With a single physical device the preference is left alone: the current
// stream is returned, or the session is started if idle. If the toggled facing cannot be opened the
// previous preference is reacquired and returned without an error.
func (m *Manager) Switch(ctx context.Context) (*Stream, error) {
	var events []Event
	defer func() { m.emit(events) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.active
	if devices, err := m.host.Devices(ctx); err == nil && len(devices) < 2 {
		if current != nil {
			m.logger.Info("single capture device, switch ignored", "stream", current.ID())
			return current, nil
		}
		return m.startLocked(ctx, m.facing, &events)
	}

	prev := m.facing
	s, err := m.startLocked(ctx, prev.Toggle(), &events)
	if err == nil {
		events = append(events, Event{Type: EventSwitched, StreamID: s.ID(), Facing: s.Facing(), Device: s.Device().ID})
		return s, nil
	}
	if current == nil || !errors.Is(err, ErrDeviceUnavailable) {
		return nil, err
	}

	m.logger.Warn("switch target unavailable, reacquiring previous device",
		"from", prev,
		"error", err,
	)
	return m.startLocked(ctx, prev, &events)
}

// Capture snapshots the current frame of s as an encoded image.
func (m *Manager) Capture(ctx context.Context, s *Stream) (*photo.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s == nil || s != m.active || s.Released() {
		return nil, wrap("capture", ErrStreamReleased)
	}

	data, err := s.device.Frame(ctx)
	if err != nil {
		if !errors.Is(err, ErrFrameUnavailable) {
			err = fmt.Errorf("%w: %v", ErrFrameUnavailable, err)
		}
		return nil, wrap("capture", err)
	}

	img, err := photo.FromFrame(data)
	if err != nil {
		return nil, wrap("capture", fmt.Errorf("%w: %v", ErrFrameUnavailable, err))
	}
	s.frames.Add(1)
	return img, nil
}

// End releases s. It is idempotent and safe to call on every exit path.
func (m *Manager) End(s *Stream) error {
	if s == nil {
		return nil
	}

	var events []Event
	defer func() { m.emit(events) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if s != m.active {
		return wrap("end", s.release())
	}
	return m.releaseLocked(&events)
}

// Close releases the active stream, if any. Call on teardown.
func (m *Manager) Close() error {
	var events []Event
	defer func() { m.emit(events) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.releaseLocked(&events)
}

func (m *Manager) releaseLocked(events *[]Event) error {
	s := m.active
	if s == nil {
		return nil
	}
	m.active = nil

	err := s.release()
	if err != nil {
		m.logger.Warn("camera release failed", "stream", s.ID(), "error", err)
	} else {
		m.logger.Info("camera session ended",
			"stream", s.ID(),
			"frames", s.Frames(),
			"duration", time.Since(s.StartedAt()).Round(time.Millisecond),
		)
	}
	*events = append(*events, Event{
		Type:     EventEnded,
		StreamID: s.ID(),
		Facing:   s.Facing(),
		Device:   s.Device().ID,
	})
	return wrap("end", err)
}

// HandleHotplug reacts to a device being added, removed or changed.
// Permission is re-queried; if the active stream's device went away it is
// released.
func (m *Manager) HandleHotplug(ctx context.Context, action, devPath string) {
	var events []Event
	defer func() { m.emit(events) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	events = append(events, Event{Type: EventHotplug, Device: devPath})

	if s := m.active; s != nil && action == "remove" && s.Device().Path == devPath {
		m.logger.Warn("active camera removed", "stream", s.ID(), "device", devPath)
		m.releaseLocked(&events)
	}

	if state, err := m.host.QueryPermission(ctx); err == nil {
		m.setPermissionLocked(state, &events)
	}
}

// Devices enumerates host devices.
func (m *Manager) Devices(ctx context.Context) ([]DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	devices, err := m.host.Devices(ctx)
	return devices, wrap("devices", err)
}

// State reports whether a device handle is held.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return StateStreaming
	}
	return StateIdle
}

// Active returns the live stream, or nil when idle.
func (m *Manager) Active() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Preference returns the current facing preference.
func (m *Manager) Preference() Facing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.facing
}

// Handheld reports the form factor chosen at construction.
func (m *Manager) Handheld() bool {
	return m.handheld
}

// Config returns the capture config.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// SetConfig validates and stores cfg. It applies from the next Start.
func (m *Manager) SetConfig(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("camera: validation failed: %v", errs)
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// ApplyPreset switches to a named preset.
func (m *Manager) ApplyPreset(name string) error {
	cfg := GetPreset(name)
	if cfg == nil {
		return fmt.Errorf("camera: unknown preset: %s", name)
	}
	return m.SetConfig(*cfg)
}

func (m *Manager) constraintsLocked(facing Facing) Constraints {
	return Constraints{
		Facing:    facing,
		Exact:     m.handheld,
		Width:     m.config.Width,
		Height:    m.config.Height,
		Framerate: m.config.Framerate,
		Quality:   m.config.Quality,
	}
}

func (m *Manager) setPermissionLocked(state PermissionState, events *[]Event) {
	if state == m.permission {
		return
	}
	m.logger.Info("camera permission changed", "from", m.permission, "to", state)
	m.permission = state
	*events = append(*events, Event{Type: EventPermission, Permission: state})
}

func (m *Manager) emit(events []Event) {
	if m.OnEvent == nil {
		return
	}
	now := time.Now()
	for _, e := range events {
		e.Time = now
		m.OnEvent(e)
	}
}
