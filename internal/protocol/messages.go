package protocol

import "time"

// LoadDocument asks the reader to replace the current document.
type LoadDocument struct {
	Text string `json:"text,omitempty"`
	Path string `json:"path,omitempty"`
}

// Seek moves the reading cursor to an absolute word index.
type Seek struct {
	Position int `json:"position"`
}

// CursorUpdate is broadcast on every cursor move so frontends can highlight
// and scroll the current word.
type CursorUpdate struct {
	Position  int       `json:"position"`
	Token     string    `json:"token"`
	Total     int       `json:"total"`
	Playing   bool      `json:"playing"`
	Timestamp time.Time `json:"timestamp"`
}

// AddNote captures a note against the current context window.
type AddNote struct {
	Text string `json:"text"`
}

// DeleteNote removes a note by id.
type DeleteNote struct {
	ID string `json:"id"`
}

// StartSession opens a voice session seeded with the current context
// window. An empty credential falls back to the configured credential env.
type StartSession struct {
	Credential string `json:"credential,omitempty"`
}

// SessionStatus is broadcast when the voice session changes state.
type SessionStatus struct {
	SessionID string    `json:"session_id,omitempty"`
	Status    string    `json:"status"`
	Speaking  bool      `json:"speaking"`
	Timestamp time.Time `json:"timestamp"`
}

// Notification carries a user-visible outcome to frontends.
type Notification struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Severity    string    `json:"severity"`
	Timestamp   time.Time `json:"timestamp"`
}

const (
	SubjectCmdLoad         = "reader.cmd.load"
	SubjectCmdToggle       = "reader.cmd.toggle"
	SubjectCmdSeek         = "reader.cmd.seek"
	SubjectCmdReplay       = "reader.cmd.replay"
	SubjectCmdNoteAdd      = "reader.cmd.note.add"
	SubjectCmdNoteDelete   = "reader.cmd.note.delete"
	SubjectCmdSessionStart = "reader.cmd.session.start"
	SubjectCmdSessionStop  = "reader.cmd.session.stop"

	SubjectCursor        = "reader.position"
	SubjectSessionStatus = "agent.session.status"
	SubjectNotification  = "notify.event"
)
