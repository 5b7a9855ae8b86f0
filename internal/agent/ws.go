package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type wsTransport struct {
	endpoint string
	dialer   *websocket.Dialer
	log      *slog.Logger
}

// NewWSTransport opens sessions over a websocket to the agent endpoint. The
// credential travels as a bearer token; the session opens with a single
// session.open frame and is acknowledged by a session.ack frame.
func NewWSTransport(endpoint string, log *slog.Logger) Transport {
	return &wsTransport{
		endpoint: endpoint,
		dialer:   websocket.DefaultDialer,
		log:      log.With(slog.String("component", "agent-ws")),
	}
}

type wsOpenFrame struct {
	Type        string `json:"type"`
	AgentID     string `json:"agent_id"`
	Instruction string `json:"instruction"`
}

type wsEventFrame struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Speaking bool   `json:"speaking,omitempty"`
	Error    string `json:"error,omitempty"`
}

type wsConn struct {
	ws     *websocket.Conn
	events chan Event
}

func (t *wsTransport) Open(ctx context.Context, req OpenRequest) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+req.Credential)

	ws, resp, err := t.dialer.DialContext(ctx, t.endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial agent endpoint: %w (status %s)", err, resp.Status)
		}
		return nil, fmt.Errorf("dial agent endpoint: %w", err)
	}

	open := wsOpenFrame{Type: "session.open", AgentID: req.AgentID, Instruction: req.InitialInstruction}
	if err := ws.WriteJSON(open); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send session open: %w", err)
	}

	// The agent acknowledges before any other traffic.
	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
	}
	var ack wsEventFrame
	if err := ws.ReadJSON(&ack); err != nil {
		ws.Close()
		return nil, fmt.Errorf("read session ack: %w", err)
	}
	if ack.Type != "session.ack" {
		ws.Close()
		return nil, fmt.Errorf("unexpected frame %q before session ack", ack.Type)
	}
	_ = ws.SetReadDeadline(time.Time{})

	c := &wsConn{ws: ws, events: make(chan Event, 16)}
	go c.readLoop(t.log)
	return c, nil
}

func (c *wsConn) Events() <-chan Event { return c.events }

func (c *wsConn) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *wsConn) readLoop(log *slog.Logger) {
	defer close(c.events)
	for {
		var frame wsEventFrame
		if err := c.ws.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Warn("agent connection read failed", slog.String("error", err.Error()))
			}
			c.events <- Event{Kind: EventDisconnected}
			return
		}
		switch frame.Type {
		case "message":
			c.events <- Event{Kind: EventMessage, Message: frame.Text}
		case "speaking":
			c.events <- Event{Kind: EventSpeaking, Speaking: frame.Speaking}
		case "error":
			c.events <- Event{Kind: EventError, Err: errors.New(frame.Error)}
		case "session.close":
			c.events <- Event{Kind: EventDisconnected}
			return
		default:
			raw, _ := json.Marshal(frame)
			log.Warn("unknown agent frame", slog.String("frame", string(raw)))
		}
	}
}
