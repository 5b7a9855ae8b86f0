package agent

import (
	"context"
	"sync"
)

// MockTransport scripts Open outcomes for tests: each call consumes the next
// scripted error, nil meaning success. An exhausted script means success.
type MockTransport struct {
	mu     sync.Mutex
	script []error
	opens  []OpenRequest
	conns  []*MockConn
}

func NewMockTransport(script ...error) *MockTransport {
	return &MockTransport{script: script}
}

func (t *MockTransport) Open(ctx context.Context, req OpenRequest) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opens = append(t.opens, req)
	var outcome error
	if len(t.script) > 0 {
		outcome = t.script[0]
		t.script = t.script[1:]
	}
	if outcome != nil {
		return nil, outcome
	}
	conn := &MockConn{events: make(chan Event, 16)}
	t.conns = append(t.conns, conn)
	return conn, nil
}

// OpenCalls returns every OpenRequest seen so far.
func (t *MockTransport) OpenCalls() []OpenRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]OpenRequest(nil), t.opens...)
}

// Conn returns the i-th successfully opened connection.
func (t *MockTransport) Conn(i int) *MockConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[i]
}

// MockConn is a scriptable session connection.
type MockConn struct {
	mu     sync.Mutex
	events chan Event
	closed bool
}

func (c *MockConn) Events() <-chan Event { return c.events }

func (c *MockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *MockConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Emit delivers an event to the manager, as if sent by the remote agent.
func (c *MockConn) Emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.events <- ev
	}
}

// Drop simulates an unexpected remote disconnect.
func (c *MockConn) Drop() {
	c.Emit(Event{Kind: EventDisconnected})
}
