package hotplug

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"nfckeyboard/internal/logging"
)

// Action is the kind of USB change observed.
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// Event describes a matched USB device uevent.
type Event struct {
	Action  Action
	DevPath string
	Product string
}

// Handler reacts to a USB event.
type Handler func(ctx context.Context, event Event)

// Monitor listens for udev netlink events and forwards USB device attach and
// detach events to a handler.
type Monitor struct {
	logger  *slog.Logger
	handler Handler

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	done    chan struct{}
	running bool
}

// NewMonitor creates a monitor that calls handler for every matched event.
func NewMonitor(logger *slog.Logger, handler Handler) *Monitor {
	return &Monitor{
		logger:  logging.NewComponentLogger(logger, "hotplug-monitor"),
		handler: handler,
	}
}

// Start begins listening. Failing to open the netlink socket is logged and
// otherwise ignored; the reader keeps working, only replug handling is lost.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket; reader replug will not be detected",
			"netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the process may open NETLINK_KOBJECT_UEVENT sockets"),
			logging.String(logging.FieldImpact, "beep suppression is not re-applied after the reader is replugged"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true

	go m.monitorLoop(ctx, conn, m.quit, m.done)

	m.logger.Info("hotplug monitor started", logging.String(logging.FieldEventType, "hotplug_monitor_started"))
	return nil
}

// Stop shuts the monitor down and waits for the event loop to exit.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	close(m.quit)
	done := m.done
	conn := m.conn
	m.quit = nil
	m.conn = nil
	m.running = false
	m.mu.Unlock()

	<-done
	if conn != nil {
		_ = conn.Close()
	}
	m.logger.Info("hotplug monitor stopped", logging.String(logging.FieldEventType, "hotplug_monitor_stopped"))
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "reader replug may go unnoticed"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=usb, DEVTYPE=usb_device, ACTION=add|remove.
func buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "usb",
			"DEVTYPE":   "usb_device",
		},
	})
	return rules
}

func (m *Monitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	event := Event{
		Action:  Action(uevent.Action),
		DevPath: uevent.Env["DEVPATH"],
		Product: uevent.Env["PRODUCT"],
	}
	if event.DevPath == "" {
		event.DevPath = uevent.KObj
	}
	if event.Action != ActionAdd && event.Action != ActionRemove {
		m.logger.Debug("ignoring usb event", logging.String("action", string(uevent.Action)))
		return
	}

	m.logger.Debug("usb device event",
		logging.String(logging.FieldEventType, "usb_"+string(event.Action)),
		logging.String("devpath", event.DevPath),
		logging.String("product", event.Product),
	)
	if m.handler != nil {
		m.handler(ctx, event)
	}
}
