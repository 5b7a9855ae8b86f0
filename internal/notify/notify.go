package notify

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lectorlabs/lector-core/internal/bus"
	"github.com/lectorlabs/lector-core/internal/protocol"
)

// Severity classifies a notification for the presentation layer.
type Severity string

const (
	SeverityInfo        Severity = "informational"
	SeverityDestructive Severity = "destructive"
)

// Notifier is a fire-and-forget sink for user-visible outcomes. It never
// affects control flow; components report through it and move on.
type Notifier interface {
	Notify(title, description string, severity Severity)
}

type logNotifier struct {
	log *slog.Logger
}

// NewLogNotifier reports notifications through the runtime logger only.
func NewLogNotifier(log *slog.Logger) Notifier {
	return &logNotifier{log: log.With(slog.String("component", "notify"))}
}

func (n *logNotifier) Notify(title, description string, severity Severity) {
	if severity == SeverityDestructive {
		n.log.Warn(title, slog.String("description", description))
		return
	}
	n.log.Info(title, slog.String("description", description))
}

type busNotifier struct {
	bus *bus.Client
	log *slog.Logger
}

// NewBusNotifier publishes notifications on the bus for remote frontends and
// mirrors them to the logger.
func NewBusNotifier(busClient *bus.Client, log *slog.Logger) Notifier {
	return &busNotifier{bus: busClient, log: log.With(slog.String("component", "notify"))}
}

func (n *busNotifier) Notify(title, description string, severity Severity) {
	msg := protocol.Notification{
		Title:       title,
		Description: description,
		Severity:    string(severity),
		Timestamp:   time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		n.log.Warn("failed to marshal notification", slog.String("error", err.Error()))
		return
	}
	if err := n.bus.Conn().Publish(protocol.SubjectNotification, data); err != nil {
		n.log.Warn("failed to publish notification", slog.String("error", err.Error()))
	}
	if severity == SeverityDestructive {
		n.log.Warn(title, slog.String("description", description))
		return
	}
	n.log.Info(title, slog.String("description", description))
}

// Capture records notifications for assertions in tests.
type Capture struct {
	mu      sync.Mutex
	entries []Entry
}

type Entry struct {
	Title       string
	Description string
	Severity    Severity
}

func NewCapture() *Capture { return &Capture{} }

func (c *Capture) Notify(title, description string, severity Severity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, Entry{Title: title, Description: description, Severity: severity})
}

func (c *Capture) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.entries...)
}
