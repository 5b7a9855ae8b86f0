package playback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lectorlabs/lector-core/internal/notify"
	"github.com/lectorlabs/lector-core/internal/synth"
)

// fakeSynth records every utterance and lets the test drive completions.
type fakeSynth struct {
	mu   sync.Mutex
	utts []*fakeUtterance
}

type fakeUtterance struct {
	text string
	ctx  context.Context
	done chan struct{}
	errs chan error
}

func (f *fakeSynth) Speak(ctx context.Context, utt synth.Utterance) (<-chan struct{}, <-chan error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &fakeUtterance{text: utt.Text, ctx: ctx, done: make(chan struct{}), errs: make(chan error, 1)}
	f.utts = append(f.utts, u)
	return u.done, u.errs
}

func (f *fakeSynth) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.utts)
}

func (f *fakeSynth) at(i int) *fakeUtterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.utts[i]
}

func (f *fakeSynth) complete(i int) {
	u := f.at(i)
	close(u.done)
	close(u.errs)
}

func (f *fakeSynth) fail(i int, err error) {
	u := f.at(i)
	u.errs <- err
	close(u.errs)
}

func newTestMachine(t *testing.T) (*Machine, *fakeSynth, *notify.Capture) {
	t.Helper()
	fs := &fakeSynth{}
	capture := notify.NewCapture()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewMachine(fs, "en-US", 50, capture, log)
	return m, fs, capture
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPlayThroughAdvancesToEnd(t *testing.T) {
	m, fs, _ := newTestMachine(t)
	m.Load("The quick brown fox jumps")

	m.Toggle()
	if m.Status() != StatusPlaying {
		t.Fatal("expected Playing after toggle")
	}

	for i := 0; i < 5; i++ {
		waitFor(t, fmt.Sprintf("utterance %d", i), func() bool { return fs.count() == i+1 })
		if got := fs.at(i).text; got != []string{"The", "quick", "brown", "fox", "jumps"}[i] {
			t.Fatalf("utterance %d: expected word %d, got %q", i, i, got)
		}
		fs.complete(i)
	}

	waitFor(t, "return to idle", func() bool { return m.Status() == StatusIdle })
	if m.Pos() != 4 {
		t.Fatalf("expected cursor at last word, got %d", m.Pos())
	}
	if fs.count() != 5 {
		t.Fatalf("expected exactly 5 synthesis requests, got %d", fs.count())
	}
}

func TestToggleOnEmptyDocumentIsNoOp(t *testing.T) {
	m, fs, _ := newTestMachine(t)
	m.Load("   \t\n ")

	m.Toggle()
	if m.Status() != StatusIdle {
		t.Fatal("empty document must not start playing")
	}
	if fs.count() != 0 {
		t.Fatalf("expected no synthesis requests, got %d", fs.count())
	}
	if m.Pos() != -1 {
		t.Fatalf("expected undefined cursor, got %d", m.Pos())
	}
}

func TestPauseCancelsInflightUtterance(t *testing.T) {
	m, fs, _ := newTestMachine(t)
	m.Load("one two three")

	m.Toggle()
	waitFor(t, "first utterance", func() bool { return fs.count() == 1 })

	m.Toggle()
	if m.Status() != StatusIdle {
		t.Fatal("expected Idle after pause")
	}
	select {
	case <-fs.at(0).ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("pause did not cancel the in-flight utterance")
	}
}

func TestStaleCompletionNeverMovesCursor(t *testing.T) {
	m, fs, _ := newTestMachine(t)
	m.Load("a b c d e")

	m.Toggle()
	waitFor(t, "utterance at 0", func() bool { return fs.count() == 1 })

	m.Seek(2)
	waitFor(t, "utterance at 2", func() bool { return fs.count() == 2 })
	if got := fs.at(1).text; got != "c" {
		t.Fatalf("expected restart at %q, got %q", "c", got)
	}

	// Completion for the superseded utterance must be a no-op.
	fs.complete(0)
	time.Sleep(20 * time.Millisecond)
	if m.Pos() != 2 {
		t.Fatalf("stale completion moved cursor to %d", m.Pos())
	}

	fs.complete(1)
	waitFor(t, "advance to 3", func() bool { return m.Pos() == 3 })
}

func TestSeekWhilePausedOnlyMovesCursor(t *testing.T) {
	m, fs, _ := newTestMachine(t)
	m.Load("a b c d e")

	var moves []int
	m.OnPosition(func(pos int, _ string) { moves = append(moves, pos) })

	m.Seek(3)
	if m.Status() != StatusIdle {
		t.Fatal("seek while paused must not start playback")
	}
	if fs.count() != 0 {
		t.Fatalf("seek while paused issued %d synthesis requests", fs.count())
	}
	if m.Pos() != 3 {
		t.Fatalf("expected cursor at 3, got %d", m.Pos())
	}
	if len(moves) != 1 || moves[0] != 3 {
		t.Fatalf("expected one observer call for position 3, got %v", moves)
	}
}

func TestSeekClamps(t *testing.T) {
	m, _, _ := newTestMachine(t)
	m.Load("a b c")

	m.Seek(99)
	if m.Pos() != 2 {
		t.Fatalf("expected clamp to last index, got %d", m.Pos())
	}
	m.Seek(-7)
	if m.Pos() != 0 {
		t.Fatalf("expected clamp to 0, got %d", m.Pos())
	}
}

func TestReplayStepsBackOneWord(t *testing.T) {
	m, _, _ := newTestMachine(t)
	m.Load("a b c d")

	m.Seek(2)
	m.Replay()
	if m.Pos() != 1 {
		t.Fatalf("expected cursor at 1, got %d", m.Pos())
	}

	m.Seek(0)
	m.Replay()
	if m.Pos() != 0 {
		t.Fatalf("replay at start must stay at 0, got %d", m.Pos())
	}
}

func TestStopIsUnconditionalAndIdempotent(t *testing.T) {
	m, fs, _ := newTestMachine(t)
	m.Load("a b c")

	m.Toggle()
	waitFor(t, "first utterance", func() bool { return fs.count() == 1 })

	m.Stop()
	m.Stop()
	if m.Status() != StatusIdle {
		t.Fatal("expected Idle after stop")
	}
	select {
	case <-fs.at(0).ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not cancel the in-flight utterance")
	}

	// A completion delivered after teardown must change nothing.
	fs.complete(0)
	time.Sleep(20 * time.Millisecond)
	if m.Pos() != 0 || fs.count() != 1 {
		t.Fatalf("post-stop completion altered state: pos=%d requests=%d", m.Pos(), fs.count())
	}
}

func TestSynthesisErrorSurfacesOnce(t *testing.T) {
	m, fs, capture := newTestMachine(t)
	m.Load("a b c")

	m.Toggle()
	waitFor(t, "first utterance", func() bool { return fs.count() == 1 })

	fs.fail(0, fmt.Errorf("%w: no backend", synth.ErrUnavailable))
	waitFor(t, "return to idle", func() bool { return m.Status() == StatusIdle })

	entries := capture.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(entries))
	}
	if entries[0].Severity != notify.SeverityDestructive {
		t.Fatalf("expected destructive severity, got %s", entries[0].Severity)
	}
	if entries[0].Title != "Speech synthesizer unavailable" {
		t.Fatalf("unexpected title %q", entries[0].Title)
	}
}

func TestWindowTracksCursor(t *testing.T) {
	fs := &fakeSynth{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewMachine(fs, "en-US", 1, notify.NewCapture(), log)
	m.Load("The quick brown fox jumps")

	m.Seek(2)
	if got := m.Window(); got != "quick brown fox" {
		t.Fatalf("expected %q, got %q", "quick brown fox", got)
	}

	m.Seek(0)
	if got := m.Window(); got != "The quick" {
		t.Fatalf("expected %q, got %q", "The quick", got)
	}
}

func TestObserversFireWhilePlaying(t *testing.T) {
	m, fs, _ := newTestMachine(t)
	m.Load("a b c")

	var mu sync.Mutex
	var moves []int
	m.OnPosition(func(pos int, _ string) {
		mu.Lock()
		moves = append(moves, pos)
		mu.Unlock()
	})

	m.Toggle()
	waitFor(t, "first utterance", func() bool { return fs.count() == 1 })
	fs.complete(0)
	waitFor(t, "second utterance", func() bool { return fs.count() == 2 })
	fs.complete(1)
	waitFor(t, "third utterance", func() bool { return fs.count() == 3 })
	fs.complete(2)
	waitFor(t, "idle", func() bool { return m.Status() == StatusIdle })

	mu.Lock()
	defer mu.Unlock()
	if len(moves) != 2 || moves[0] != 1 || moves[1] != 2 {
		t.Fatalf("expected observer calls for positions [1 2], got %v", moves)
	}
}
