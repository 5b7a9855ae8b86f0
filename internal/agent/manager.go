package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lectorlabs/lector-core/internal/config"
	"github.com/lectorlabs/lector-core/internal/notify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// StatusObserver is invoked after every session status or speaking change.
type StatusObserver func(sessionID string, status Status, speaking bool)

// Manager owns the single voice session to the remote agent: start, stop,
// and reconnection with a fixed attempt budget. At most one session is active
// at a time; a session that exhausts its reconnect budget is destroyed and
// must be started fresh.
type Manager struct {
	cfg       config.AgentConfig
	transport Transport
	mic       Microphone
	notifier  notify.Notifier
	log       *slog.Logger

	// sleep waits between reconnect attempts; returns false when the session
	// context ends first. Injected in tests to avoid real time.
	sleep func(ctx context.Context, d time.Duration) bool

	mu        sync.Mutex
	status    Status
	speaking  bool
	starting  bool
	sessionID string
	conn      Conn
	cancel    context.CancelFunc
	open      OpenRequest
	observers []StatusObserver

	reconnects metric.Int64Counter
}

func NewManager(cfg config.AgentConfig, transport Transport, mic Microphone, notifier notify.Notifier, log *slog.Logger) *Manager {
	m := &Manager{
		cfg:       cfg,
		transport: transport,
		mic:       mic,
		notifier:  notifier,
		log:       log.With(slog.String("component", "agent-session")),
		sleep:     sleepContext,
		status:    StatusDisconnected,
	}

	meter := otel.Meter("github.com/lectorlabs/lector-core/agent")
	var err error
	m.reconnects, err = meter.Int64Counter("lector_agent_reconnect_attempts_total",
		metric.WithDescription("Reconnection attempts after unexpected disconnects"))
	if err != nil {
		m.log.Warn("failed to initialize reconnect counter", slog.String("error", err.Error()))
	}

	return m
}

// OnStatus registers an observer for status changes. Register before use.
func (m *Manager) OnStatus(obs StatusObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) IsSpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking
}

func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Start opens a new session seeded with the given context window. It rejects
// a blank credential before touching the transport and rejects a second
// session while one is active. Microphone permission is requested before any
// session state exists; only a grant moves the manager to Connecting.
func (m *Manager) Start(ctx context.Context, credential, seedContext string) error {
	if isBlank(credential) {
		m.notifier.Notify("Missing credential", "An agent credential is required to start a conversation.", notify.SeverityDestructive)
		return ErrMissingCredential
	}

	m.mu.Lock()
	if m.starting || (m.status != StatusDisconnected && m.status != StatusFailed) {
		m.mu.Unlock()
		m.notifier.Notify("Session already active", "Stop the current conversation before starting a new one.", notify.SeverityDestructive)
		return ErrAlreadyActive
	}
	m.starting = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.starting = false
		m.mu.Unlock()
	}()

	if err := m.mic.RequestCapture(ctx); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.mu.Unlock()
		m.emitStatus()
		m.notifier.Notify("Microphone permission denied", "Please make sure you have a working microphone.", notify.SeverityDestructive)
		return ErrPermissionDenied
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.sessionID = uuid.NewString()
	m.status = StatusConnecting
	m.speaking = false
	m.cancel = cancel
	m.open = OpenRequest{
		AgentID:            m.cfg.AgentID,
		Credential:         credential,
		InitialInstruction: InitialInstruction(seedContext),
	}
	req := m.open
	sessionID := m.sessionID
	m.mu.Unlock()
	m.emitStatus()

	// The open attempt runs on the session context so Stop() cancels it.
	conn, err := m.openOnce(sessionCtx, req)

	m.mu.Lock()
	if m.sessionID != sessionID || m.status != StatusConnecting {
		// Stop() or a newer session won the race; this attempt is void.
		m.mu.Unlock()
		cancel()
		if conn != nil {
			_ = conn.Close()
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSessionOpenFailed, err)
		}
		return nil
	}
	if err != nil {
		m.status = StatusFailed
		m.cancel = nil
		m.mu.Unlock()
		cancel()
		m.emitStatus()
		m.notifier.Notify("Failed to start conversation", err.Error(), notify.SeverityDestructive)
		return fmt.Errorf("%w: %v", ErrSessionOpenFailed, err)
	}
	m.conn = conn
	m.status = StatusConnected
	m.mu.Unlock()
	m.emitStatus()

	m.log.Info("agent session connected", slog.String("session_id", sessionID))
	m.notifier.Notify("Connected to agent", "You can start speaking now", notify.SeverityInfo)

	go m.readEvents(sessionCtx, conn)
	return nil
}

// Stop tears down the active session, if any, and returns to Disconnected.
// Safe to call from any state, repeatedly.
func (m *Manager) Stop() {
	m.mu.Lock()
	prev := m.status
	conn := m.conn
	cancel := m.cancel
	m.conn = nil
	m.cancel = nil
	m.status = StatusDisconnected
	m.speaking = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if prev == StatusDisconnected {
		return
	}
	m.emitStatus()
	if prev == StatusConnected || prev == StatusReconnecting {
		m.notifier.Notify("Disconnected from agent", "", notify.SeverityInfo)
	}
}

func (m *Manager) openOnce(ctx context.Context, req OpenRequest) (Conn, error) {
	openCtx, cancel := context.WithTimeout(ctx, time.Duration(m.cfg.OpenTimeoutMS)*time.Millisecond)
	defer cancel()
	return m.transport.Open(openCtx, req)
}

// readEvents consumes session events until the connection ends. Messages and
// speaking signals never change connection state; a remote disconnect hands
// off to the reconnect loop.
func (m *Manager) readEvents(ctx context.Context, conn Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-conn.Events():
			if !ok {
				m.handleDisconnect(ctx, conn)
				return
			}
			switch ev.Kind {
			case EventMessage:
				m.log.Info("agent message", slog.String("text", ev.Message))
			case EventSpeaking:
				m.setSpeaking(conn, ev.Speaking)
			case EventError:
				if ev.Err != nil {
					m.notifier.Notify("Error", ev.Err.Error(), notify.SeverityDestructive)
				}
			case EventDisconnected:
				m.handleDisconnect(ctx, conn)
				return
			}
		}
	}
}

func (m *Manager) setSpeaking(conn Conn, speaking bool) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	changed := m.speaking != speaking
	m.speaking = speaking
	m.mu.Unlock()
	if changed {
		m.emitStatus()
	}
}

// handleDisconnect runs the reconnect policy after an unexpected disconnect:
// up to the configured attempt budget with a fixed delay between attempts.
// Attempts are silent; only final exhaustion is surfaced.
func (m *Manager) handleDisconnect(ctx context.Context, conn Conn) {
	m.mu.Lock()
	if m.conn != conn || m.status != StatusConnected {
		// Stop() or a newer session got here first.
		m.mu.Unlock()
		return
	}
	m.status = StatusReconnecting
	m.speaking = false
	m.conn = nil
	req := m.open
	m.mu.Unlock()
	m.emitStatus()

	m.notifier.Notify("Disconnected from agent", "", notify.SeverityInfo)
	_ = conn.Close()

	delay := time.Duration(m.cfg.ReconnectDelayMS) * time.Millisecond
	for attempt := 1; attempt <= m.cfg.ReconnectAttempts; attempt++ {
		if !m.sleep(ctx, delay) {
			return
		}
		if m.reconnects != nil {
			m.reconnects.Add(ctx, 1)
		}

		next, err := m.openOnce(ctx, req)
		if err != nil {
			m.log.Warn("reconnect attempt failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			continue
		}

		m.mu.Lock()
		if m.status != StatusReconnecting {
			m.mu.Unlock()
			_ = next.Close()
			return
		}
		m.conn = next
		m.status = StatusConnected
		m.mu.Unlock()
		m.emitStatus()

		m.log.Info("agent session reconnected", slog.Int("attempt", attempt))
		m.notifier.Notify("Connected to agent", "You can start speaking now", notify.SeverityInfo)
		go m.readEvents(ctx, next)
		return
	}

	m.mu.Lock()
	if m.status != StatusReconnecting {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.cancel = nil
	m.status = StatusFailed
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.emitStatus()
	m.notifier.Notify("Connection lost", ErrReconnectExhausted.Error(), notify.SeverityDestructive)
}

func (m *Manager) emitStatus() {
	m.mu.Lock()
	sessionID := m.sessionID
	status := m.status
	speaking := m.speaking
	obs := append([]StatusObserver(nil), m.observers...)
	m.mu.Unlock()
	for _, o := range obs {
		o(sessionID, status, speaking)
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
