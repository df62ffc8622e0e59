// Package draft persists the in-progress input of a client so it survives a
// restart.
package draft

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/preferences"
	"github.com/loqalabs/loqa-podcast/internal/reference"
	_ "modernc.org/sqlite"
)

const (
	keyReferences  = "references"
	keyPreferences = "preferences"
	keyCatalog     = "catalog"
)

// Draft is everything the user has entered but not yet cleared.
type Draft struct {
	Content     []reference.Reference   `json:"content"`
	Image       []reference.Reference   `json:"image"`
	Preferences preferences.Preferences `json:"preferences"`
	Catalog     preferences.Catalog     `json:"catalog"`
	SavedAt     time.Time               `json:"saved_at"`
}

type refsValue struct {
	Content []reference.Reference `json:"content"`
	Image   []reference.Reference `json:"image"`
}

// Store keeps the draft in a small SQLite key/value table. A disabled store
// accepts every call and never returns a draft.
type Store struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

func Open(ctx context.Context, cfg config.DraftsConfig, log *slog.Logger) (*Store, error) {
	s := &Store{log: log.With(slog.String("component", "drafts")), clock: time.Now}
	if !cfg.Enabled {
		return s, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create draft dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	_, err = db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS drafts (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at TEXT NOT NULL
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init draft schema: %w", err)
	}
	s.db = db
	return s, nil
}

func (s *Store) Enabled() bool { return s.db != nil }

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces the stored draft.
func (s *Store) Save(ctx context.Context, d Draft) (err error) {
	if s.db == nil {
		return nil
	}
	values := map[string]any{
		keyReferences:  refsValue{Content: d.Content, Image: d.Image},
		keyPreferences: d.Preferences,
		keyCatalog:     d.Catalog,
	}
	now := s.clock().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	for key, v := range values {
		var data []byte
		data, err = json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO drafts(key, value, updated_at) VALUES(?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
			key, data, now)
		if err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	err = tx.Commit()
	return err
}

// Load returns the stored draft. ok is false when nothing has been saved.
func (s *Store) Load(ctx context.Context) (d Draft, ok bool, err error) {
	if s.db == nil {
		return Draft{}, false, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, updated_at FROM drafts`)
	if err != nil {
		return Draft{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, updated string
		var value []byte
		if err := rows.Scan(&key, &value, &updated); err != nil {
			return Draft{}, false, err
		}
		if err := s.decode(&d, key, value); err != nil {
			return Draft{}, false, err
		}
		ok = true
		if ts, perr := time.Parse(time.RFC3339Nano, updated); perr == nil && ts.After(d.SavedAt) {
			d.SavedAt = ts
		}
	}
	if err := rows.Err(); err != nil {
		return Draft{}, false, err
	}
	return d, ok, nil
}

func (s *Store) decode(d *Draft, key string, value []byte) error {
	var err error
	switch key {
	case keyReferences:
		var refs refsValue
		if err = json.Unmarshal(value, &refs); err == nil {
			d.Content, d.Image = refs.Content, refs.Image
		}
	case keyPreferences:
		err = json.Unmarshal(value, &d.Preferences)
	case keyCatalog:
		err = json.Unmarshal(value, &d.Catalog)
	default:
		s.log.Debug("ignoring unknown draft key", slog.String("key", key))
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Clear removes the stored draft.
func (s *Store) Clear(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM drafts`)
	return err
}
