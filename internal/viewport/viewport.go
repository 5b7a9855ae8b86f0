package viewport

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lectorlabs/lector-core/internal/bus"
	"github.com/lectorlabs/lector-core/internal/playback"
	"github.com/lectorlabs/lector-core/internal/protocol"
)

// Scroller brings the rendered token at index into the center of the view,
// smoothly. Frontends supply the implementation.
type Scroller interface {
	CenterOn(index int)
}

// Synchronizer keeps the viewport aligned with the reading cursor. It reacts
// to position alone: a seek while paused scrolls exactly like an advance
// while playing.
type Synchronizer struct {
	scroller Scroller
}

func NewSynchronizer(s Scroller) *Synchronizer {
	return &Synchronizer{scroller: s}
}

// Attach registers the synchronizer on the machine's position feed.
func (s *Synchronizer) Attach(m *playback.Machine) {
	m.OnPosition(s.PositionChanged)
}

func (s *Synchronizer) PositionChanged(pos int, _ string) {
	s.scroller.CenterOn(pos)
}

// Publisher mirrors cursor moves onto the bus so out-of-process frontends
// can highlight and scroll the current word.
type Publisher struct {
	bus *bus.Client
	m   *playback.Machine
	log *slog.Logger
}

func NewPublisher(busClient *bus.Client, m *playback.Machine, log *slog.Logger) *Publisher {
	return &Publisher{
		bus: busClient,
		m:   m,
		log: log.With(slog.String("component", "viewport")),
	}
}

// Attach registers the publisher on the machine's position feed.
func (p *Publisher) Attach() {
	p.m.OnPosition(p.PositionChanged)
}

func (p *Publisher) PositionChanged(pos int, token string) {
	msg := protocol.CursorUpdate{
		Position:  pos,
		Token:     token,
		Total:     p.m.Len(),
		Playing:   p.m.Status() == playback.StatusPlaying,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn("failed to marshal cursor update", slog.String("error", err.Error()))
		return
	}
	if err := p.bus.Conn().Publish(protocol.SubjectCursor, data); err != nil {
		p.log.Warn("failed to publish cursor update", slog.String("error", err.Error()))
	}
}
