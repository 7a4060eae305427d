package hotplug

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"
)

func TestMonitorNilSafety(t *testing.T) {
	var m *Monitor
	if m.Running() {
		t.Error("expected Running() to return false for nil monitor")
	}
	m.Stop()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start on nil monitor should return nil, got: %v", err)
	}
}

func TestMonitorStopIdempotency(t *testing.T) {
	m := NewMonitor(nil, nil)
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Error("expected Running() to return false after Stop on unstarted monitor")
	}
}

func TestBuildMatcher(t *testing.T) {
	matcher := buildMatcher()

	tests := []struct {
		name   string
		action netlink.KObjAction
		env    map[string]string
		want   bool
	}{
		{
			name:   "usb device add",
			action: netlink.ADD,
			env:    map[string]string{"SUBSYSTEM": "usb", "DEVTYPE": "usb_device"},
			want:   true,
		},
		{
			name:   "usb device remove",
			action: netlink.REMOVE,
			env:    map[string]string{"SUBSYSTEM": "usb", "DEVTYPE": "usb_device"},
			want:   true,
		},
		{
			name:   "usb interface",
			action: netlink.ADD,
			env:    map[string]string{"SUBSYSTEM": "usb", "DEVTYPE": "usb_interface"},
			want:   false,
		},
		{
			name:   "block device",
			action: netlink.ADD,
			env:    map[string]string{"SUBSYSTEM": "block"},
			want:   false,
		},
		{
			name:   "usb change",
			action: netlink.CHANGE,
			env:    map[string]string{"SUBSYSTEM": "usb", "DEVTYPE": "usb_device"},
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matcher.Evaluate(netlink.UEvent{Action: tt.action, Env: tt.env})
			if got != tt.want {
				t.Fatalf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleEventForwardsAttachAndDetach(t *testing.T) {
	var events []Event
	m := NewMonitor(nil, func(_ context.Context, e Event) {
		events = append(events, e)
	})

	m.handleEvent(context.Background(), netlink.UEvent{
		Action: netlink.ADD,
		KObj:   "/devices/pci0000:00/0000:00:14.0/usb1/1-2",
		Env: map[string]string{
			"SUBSYSTEM": "usb",
			"DEVTYPE":   "usb_device",
			"PRODUCT":   "72f/2200/214",
		},
	})
	m.handleEvent(context.Background(), netlink.UEvent{
		Action: netlink.REMOVE,
		Env: map[string]string{
			"DEVPATH": "/devices/pci0000:00/0000:00:14.0/usb1/1-2",
		},
	})
	m.handleEvent(context.Background(), netlink.UEvent{Action: netlink.MOVE})

	if len(events) != 2 {
		t.Fatalf("expected two forwarded events, got %d", len(events))
	}
	if events[0].Action != ActionAdd || events[0].Product != "72f/2200/214" {
		t.Fatalf("unexpected add event %+v", events[0])
	}
	if events[0].DevPath != "/devices/pci0000:00/0000:00:14.0/usb1/1-2" {
		t.Fatalf("expected devpath to fall back to kobj, got %q", events[0].DevPath)
	}
	if events[1].Action != ActionRemove {
		t.Fatalf("unexpected remove event %+v", events[1])
	}
}
