package notes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/lectorlabs/lector-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	tmp := t.TempDir()
	cfg := config.NotesConfig{Path: filepath.Join(tmp, "notes.db"), Collection: "reader-notes"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open note store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddListDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := s.Add(ctx, "nice line", "quick brown fox")
	if err != nil {
		t.Fatalf("add note: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated id")
	}
	if rec.Context != "quick brown fox" {
		t.Fatalf("unexpected context: %q", rec.Context)
	}

	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 note, got %d", len(records))
	}
	if records[0].ID != rec.ID || records[0].Text != "nice line" || records[0].Context != "quick brown fox" {
		t.Fatalf("unexpected record: %+v", records[0])
	}

	if err := s.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("delete note: %v", err)
	}
	records, err = s.List(ctx)
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty list after delete, got %d", len(records))
	}
}

func TestAddRejectsEmptyText(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Add(ctx, "   \t ", "some context"); !errors.Is(err, ErrEmptyNote) {
		t.Fatalf("expected ErrEmptyNote, got %v", err)
	}
	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(records) != 0 {
		t.Fatal("rejected note must not be persisted")
	}
}

func TestDeleteAbsentIDIsNoOp(t *testing.T) {
	s := openTestStore(t)
	if err := s.Delete(context.Background(), "no-such-id"); err != nil {
		t.Fatalf("absent-id delete must succeed, got %v", err)
	}
}

func TestListPreservesInsertionOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return base }

	for _, text := range []string{"first", "second", "third"} {
		if _, err := s.Add(ctx, text, ""); err != nil {
			t.Fatalf("add %q: %v", text, err)
		}
	}

	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 notes, got %d", len(records))
	}
	for i, want := range []string{"first", "second", "third"} {
		if records[i].Text != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, records[i].Text)
		}
	}
	if !records[0].Timestamp.Equal(base) {
		t.Fatalf("expected injected clock timestamp, got %v", records[0].Timestamp)
	}
}
