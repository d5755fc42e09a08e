//go:build linux

package camera

import (
	"context"
	"testing"
	"time"

	"github.com/pilebones/go-udev/netlink"
)

func TestDeviceNode(t *testing.T) {
	tests := []struct {
		env  map[string]string
		want string
	}{
		{map[string]string{"DEVNAME": "/dev/video2"}, "/dev/video2"},
		{map[string]string{"DEVNAME": "video4"}, "/dev/video4"},
		{map[string]string{"DEVPATH": "/devices/pci0000:00/usb1/1-1/video4linux/video6"}, "/dev/video6"},
		{map[string]string{}, ""},
	}
	for _, tt := range tests {
		if got := deviceNode(tt.env); got != tt.want {
			t.Errorf("deviceNode(%v) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestMonitorHandleEventReleasesRemovedCamera(t *testing.T) {
	ctx := context.Background()
	host := NewMockPhone()
	m := NewManager(host)
	s, err := m.Start(ctx, FacingFront)
	if err != nil {
		t.Fatal(err)
	}

	mon := NewMonitor(m, nil)
	mon.handleEvent(ctx, "remove", map[string]string{"SUBSYSTEM": "video4linux"})
	if s.Released() {
		t.Fatal("event without a device must be ignored")
	}

	mon.handleEvent(ctx, "remove", map[string]string{"DEVNAME": "video0"})
	if !s.Released() {
		t.Error("stream should be released when its device is removed")
	}
	if host.OpenCount() != 0 {
		t.Errorf("open handles = %d", host.OpenCount())
	}
	if mon.Running() {
		t.Error("monitor was never started")
	}
}

func TestMonitorErrorSendDoesNotBlock(t *testing.T) {
	queue, errs := monitorChannels()
	if cap(errs) < 1 {
		t.Fatal("error channel must be buffered")
	}

	// An invalid matcher makes go-udev report on errs synchronously, with
	// nobody reading, just like its reader does after Stop.
	bad := "("
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{Action: &bad})

	done := make(chan struct{})
	go func() {
		new(netlink.UEventConn).Monitor(queue, errs, rules)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor blocked sending on the error channel")
	}
	if err := <-errs; err == nil {
		t.Error("expected a matcher error")
	}
}

func TestVideoMatcherCompiles(t *testing.T) {
	m := videoMatcher()
	if err := m.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ev := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "video4linux"}}
	if !m.Evaluate(ev) {
		t.Error("video4linux add should match")
	}
}
