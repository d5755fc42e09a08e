//go:build !linux

package camera

import (
	"context"
	"log/slog"
)

// Monitor is a no-op outside Linux.
type Monitor struct {
	logger *slog.Logger
}

// NewMonitor creates a hotplug monitor for m.
func NewMonitor(m *Manager, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{logger: logger.With("component", "camera.monitor")}
}

// Start logs that hotplug is unavailable.
func (mon *Monitor) Start(ctx context.Context) error {
	mon.logger.Info("camera hotplug not supported on this platform")
	return nil
}

// Stop is a no-op.
func (mon *Monitor) Stop() {}

// Running always reports false.
func (mon *Monitor) Running() bool { return false }
