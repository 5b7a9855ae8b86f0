package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lectorlabs/lector-core/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	_ "modernc.org/sqlite"
)

// ErrEmptyNote reports a note whose text is empty after trimming. Nothing is
// persisted in that case.
var ErrEmptyNote = errors.New("note text is empty")

// Record is one captured note with its reading context.
type Record struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Context   string    `json:"context"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is a SQLite-backed append log of notes. Insertion order is display
// order; records are deleted by id and never updated.
type Store struct {
	db    *sql.DB
	cfg   config.NotesConfig
	log   *slog.Logger
	clock func() time.Time

	appends metric.Int64Counter
}

// Open initializes the note store according to config.
func Open(ctx context.Context, cfg config.NotesConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	meter := otel.Meter("github.com/lectorlabs/lector-core/notes")
	s.appends, err = meter.Int64Counter("lector_notes_total",
		metric.WithDescription("Notes appended to the log"))
	if err != nil {
		log.Warn("failed to initialize note counter", slog.String("error", err.Error()))
	}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    collection TEXT NOT NULL,
    body TEXT NOT NULL,
    context TEXT,
    created_at TIMESTAMP NOT NULL
);
-- SQLite does not permit rowid in an index; collection alone is indexable.
CREATE INDEX IF NOT EXISTS idx_notes_collection ON notes(collection);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Add validates and appends a note captured against contextSnapshot.
func (s *Store) Add(ctx context.Context, text, contextSnapshot string) (Record, error) {
	if strings.TrimSpace(text) == "" {
		return Record{}, ErrEmptyNote
	}
	rec := Record{
		ID:        uuid.NewString(),
		Text:      text,
		Context:   contextSnapshot,
		Timestamp: s.clock().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes(id, collection, body, context, created_at) VALUES(?, ?, ?, ?, ?)`,
		rec.ID, s.cfg.Collection, rec.Text, rec.Context, rec.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return Record{}, fmt.Errorf("append note: %w", err)
	}
	if s.appends != nil {
		s.appends.Add(ctx, 1)
	}
	return rec, nil
}

// List returns all notes in insertion order.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, body, context, created_at FROM notes WHERE collection = ? ORDER BY rowid ASC`,
		s.cfg.Collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var created string
		if err := rows.Scan(&r.ID, &r.Text, &r.Context, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.Timestamp = ts
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Delete removes the note with the given id. Deleting an absent id is a
// silent no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM notes WHERE collection = ? AND id = ?`, s.cfg.Collection, id)
	return err
}
