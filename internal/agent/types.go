package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Status is the connection state of the voice session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusFailed       Status = "failed"
)

var (
	ErrMissingCredential  = errors.New("agent credential is empty")
	ErrAlreadyActive      = errors.New("a voice session is already active")
	ErrPermissionDenied   = errors.New("microphone permission denied")
	ErrSessionOpenFailed  = errors.New("failed to open agent session")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// EventKind classifies inbound session events.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventMessage      EventKind = "message"
	EventSpeaking     EventKind = "speaking"
	EventError        EventKind = "error"
)

// Event is one inbound occurrence on an open session.
type Event struct {
	Kind     EventKind
	Message  string
	Speaking bool
	Err      error
}

// OpenRequest carries everything needed to open a session with the remote
// agent. InitialInstruction embeds the seed context verbatim.
type OpenRequest struct {
	AgentID            string
	Credential         string
	InitialInstruction string
}

// Conn is one open session. The events channel closes when the session ends,
// after an EventDisconnected if the end was remote.
type Conn interface {
	Events() <-chan Event
	Close() error
}

// Transport opens sessions to the remote agent. Open returns only after the
// agent has acknowledged the session.
type Transport interface {
	Open(ctx context.Context, req OpenRequest) (Conn, error)
}

// Microphone gates session start on audio capture permission.
type Microphone interface {
	RequestCapture(ctx context.Context) error
}

// StaticMicrophone answers every capture request with a fixed result. The
// daemon itself has no interactive prompt; frontends that do can wrap their
// own prompt in this interface.
type StaticMicrophone struct {
	Err error
}

func (s StaticMicrophone) RequestCapture(context.Context) error { return s.Err }

const instructionTemplate = "You are an AI assistant helping with a book. Here's the current context from the book: %s. Please use this context to provide more relevant answers."

// InitialInstruction interpolates the seed context into the fixed agent
// prompt template.
func InitialInstruction(contextWindow string) string {
	if strings.TrimSpace(contextWindow) == "" {
		contextWindow = "No context provided"
	}
	return fmt.Sprintf(instructionTemplate, contextWindow)
}
