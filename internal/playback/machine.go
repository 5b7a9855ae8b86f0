package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/lectorlabs/lector-core/internal/document"
	"github.com/lectorlabs/lector-core/internal/notify"
	"github.com/lectorlabs/lector-core/internal/synth"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Status is the playback state of the current document.
type Status int

const (
	StatusIdle Status = iota
	StatusPlaying
)

func (s Status) String() string {
	if s == StatusPlaying {
		return "playing"
	}
	return "idle"
}

// Observer is invoked after every cursor move, playing or paused.
type Observer func(pos int, token string)

// Machine owns the token sequence, the reading cursor, and the play state.
// It drives the synthesizer one word at a time: each completed utterance
// advances the cursor and issues the next one, so the player is the chain of
// completions rather than a polling loop.
//
// Every utterance carries a generation number. Seek, Toggle, Stop, and Load
// all bump the generation, so a completion that belongs to a superseded
// utterance can never move the cursor.
type Machine struct {
	synth    synth.Synthesizer
	voice    string
	radius   int
	notifier notify.Notifier
	log      *slog.Logger

	mu        sync.Mutex
	tokens    []string
	pos       int
	status    Status
	gen       uint64
	cancel    context.CancelFunc
	observers []Observer

	utterances metric.Int64Counter
	cursor     metric.Int64Gauge
}

func NewMachine(s synth.Synthesizer, voice string, radius int, notifier notify.Notifier, log *slog.Logger) *Machine {
	m := &Machine{
		synth:    s,
		voice:    voice,
		radius:   radius,
		notifier: notifier,
		log:      log.With(slog.String("component", "playback")),
		pos:      -1,
	}

	meter := otel.Meter("github.com/lectorlabs/lector-core/playback")
	var err error
	m.utterances, err = meter.Int64Counter("lector_utterances_total",
		metric.WithDescription("Synthesis requests issued"))
	if err != nil {
		m.log.Warn("failed to initialize utterance counter", slog.String("error", err.Error()))
	}
	m.cursor, err = meter.Int64Gauge("lector_cursor_position",
		metric.WithDescription("Current word index of the reading cursor"))
	if err != nil {
		m.log.Warn("failed to initialize cursor gauge", slog.String("error", err.Error()))
	}

	return m
}

// OnPosition registers an observer for cursor moves. Register before use;
// observers are not removable.
func (m *Machine) OnPosition(obs Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

// Load replaces the document. Any in-flight utterance is cancelled and the
// cursor resets to the first word, idle.
func (m *Machine) Load(text string) {
	m.mu.Lock()
	m.invalidateLocked()
	m.status = StatusIdle
	m.tokens = document.Tokenize(text)
	if len(m.tokens) == 0 {
		m.pos = -1
		m.mu.Unlock()
		return
	}
	m.pos = 0
	pos, token := m.pos, m.tokens[m.pos]
	obs := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	m.emit(obs, pos, token)
}

// Toggle flips Idle and Playing. On an empty document it is a no-op.
func (m *Machine) Toggle() {
	m.mu.Lock()
	if len(m.tokens) == 0 {
		m.mu.Unlock()
		return
	}
	if m.status == StatusPlaying {
		m.invalidateLocked()
		m.status = StatusIdle
		m.mu.Unlock()
		return
	}
	m.status = StatusPlaying
	m.speakCurrentLocked()
	m.mu.Unlock()
}

// Seek moves the cursor to pos, clamped to the document. While playing, the
// in-flight utterance is cancelled and synthesis restarts at the new word.
// While idle it only moves the cursor (it never resumes playback), but it
// still invalidates any utterance left over from a prior play session.
func (m *Machine) Seek(pos int) {
	m.mu.Lock()
	if len(m.tokens) == 0 {
		m.mu.Unlock()
		return
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(m.tokens)-1 {
		pos = len(m.tokens) - 1
	}
	m.invalidateLocked()
	m.pos = pos
	if m.status == StatusPlaying {
		m.speakCurrentLocked()
	}
	token := m.tokens[pos]
	obs := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	m.emit(obs, pos, token)
}

// Replay backs the cursor up one word.
func (m *Machine) Replay() {
	m.mu.Lock()
	pos := m.pos - 1
	if pos < 0 {
		pos = 0
	}
	m.mu.Unlock()
	m.Seek(pos)
}

// Stop cancels any in-flight utterance and returns to Idle. It is the
// mandatory teardown path and is safe to call repeatedly.
func (m *Machine) Stop() {
	m.mu.Lock()
	m.invalidateLocked()
	m.status = StatusIdle
	m.mu.Unlock()
}

// Window returns the context around the cursor, recomputed on every call.
func (m *Machine) Window() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return document.ContextAround(m.tokens, m.pos, m.radius)
}

func (m *Machine) Pos() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Machine) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

// invalidateLocked supersedes the in-flight utterance, if any. After this no
// completion from an earlier generation can alter state.
func (m *Machine) invalidateLocked() {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// speakCurrentLocked issues synthesis for the word at the cursor, superseding
// any in-flight utterance first.
func (m *Machine) speakCurrentLocked() {
	m.invalidateLocked()
	gen := m.gen

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	done, errs := m.synth.Speak(ctx, synth.Utterance{Text: m.tokens[m.pos], Voice: m.voice})
	if m.utterances != nil {
		m.utterances.Add(ctx, 1)
	}
	go m.watch(ctx, gen, done, errs)
}

func (m *Machine) watch(ctx context.Context, gen uint64, done <-chan struct{}, errs <-chan error) {
	for {
		select {
		case <-done:
			m.handleUtteranceDone(gen)
			return
		case err, ok := <-errs:
			if !ok {
				// errs closed clean; completion arrives on done.
				errs = nil
				continue
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				m.handleUtteranceError(gen, err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleUtteranceDone advances the cursor after a completed utterance, or
// returns to Idle at the end of the document. Stale generations are no-ops.
func (m *Machine) handleUtteranceDone(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.status != StatusPlaying {
		m.mu.Unlock()
		return
	}
	if m.pos >= len(m.tokens)-1 {
		m.status = StatusIdle
		m.cancel = nil
		m.mu.Unlock()
		m.log.Info("finished reading document")
		return
	}
	m.pos++
	pos, token := m.pos, m.tokens[m.pos]
	m.speakCurrentLocked()
	obs := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	m.emit(obs, pos, token)
}

func (m *Machine) handleUtteranceError(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.invalidateLocked()
	m.status = StatusIdle
	m.mu.Unlock()

	m.log.Warn("synthesis failed", slog.String("error", err.Error()))
	title := "Speech synthesis failed"
	if errors.Is(err, synth.ErrUnavailable) {
		title = "Speech synthesizer unavailable"
	}
	m.notifier.Notify(title, err.Error(), notify.SeverityDestructive)
}

func (m *Machine) emit(obs []Observer, pos int, token string) {
	if m.cursor != nil {
		m.cursor.Record(context.Background(), int64(pos))
	}
	for _, o := range obs {
		o(pos, token)
	}
}
