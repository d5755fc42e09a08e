//go:build linux

package camera

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/pilebones/go-udev/netlink"
)

// Monitor listens for video4linux udev events and forwards them to a
// Manager, so unplugged cameras are released and permission changes are
// picked up live.
type Monitor struct {
	manager *Manager
	logger  *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewMonitor creates a hotplug monitor for m.
func NewMonitor(m *Manager, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		manager: m,
		logger:  logger.With("component", "camera.monitor"),
	}
}

// Start connects to the udev netlink socket. Failure is logged and not
// fatal: devices are then only rediscovered on the next acquisition.
func (mon *Monitor) Start(ctx context.Context) error {
	mon.mu.Lock()
	defer mon.mu.Unlock()

	if mon.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		mon.logger.Warn("failed to connect to netlink socket; camera hotplug disabled", "error", err)
		return nil
	}

	mon.conn = conn
	mon.quit = make(chan struct{})
	mon.running = true

	quit := mon.quit
	go mon.loop(ctx, conn, quit)

	mon.logger.Info("camera hotplug monitor started")
	return nil
}

// Stop shuts the monitor down.
func (mon *Monitor) Stop() {
	mon.mu.Lock()
	defer mon.mu.Unlock()

	if !mon.running {
		return
	}
	close(mon.quit)
	mon.quit = nil
	_ = mon.conn.Close()
	mon.conn = nil
	mon.running = false

	mon.logger.Info("camera hotplug monitor stopped")
}

// Running reports whether the monitor is active.
func (mon *Monitor) Running() bool {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return mon.running
}

// monitorChannels returns the event and error channels handed to go-udev.
// Its reader goroutine makes one last send on errs when the closed socket
// fails, after loop has returned, so errs must be buffered.
func monitorChannels() (chan netlink.UEvent, chan error) {
	return make(chan netlink.UEvent, 8), make(chan error, 1)
}

func (mon *Monitor) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue, errs := monitorChannels()
	monitorQuit := conn.Monitor(queue, errs, videoMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case ev := <-queue:
			mon.handleEvent(ctx, string(ev.Action), ev.Env)
		case err := <-errs:
			mon.logger.Warn("netlink monitor error", "error", err)
		}
	}
}

// videoMatcher matches SUBSYSTEM=video4linux add/remove/change.
func videoMatcher() netlink.Matcher {
	action := "add|remove|change"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
		},
	})
	return rules
}

func (mon *Monitor) handleEvent(ctx context.Context, action string, env map[string]string) {
	dev := deviceNode(env)
	if dev == "" {
		mon.logger.Debug("ignoring video event without device name", "action", action)
		return
	}
	mon.logger.Info("camera hotplug event", "action", action, "device", dev)
	mon.manager.HandleHotplug(ctx, action, dev)
}

// deviceNode resolves the /dev path of a uevent.
func deviceNode(env map[string]string) string {
	if name := env["DEVNAME"]; name != "" {
		if filepath.IsAbs(name) {
			return name
		}
		return filepath.Join(DefaultDevRoot, name)
	}
	if p := env["DEVPATH"]; p != "" {
		return filepath.Join(DefaultDevRoot, filepath.Base(p))
	}
	return ""
}
