package session

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/docdiff/core/errors"
	"github.com/FocuswithJustin/docdiff/core/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		key             TEXT PRIMARY KEY,
		state           TEXT NOT NULL,
		old_name        TEXT NOT NULL DEFAULT '',
		new_name        TEXT NOT NULL DEFAULT '',
		old_fingerprint TEXT NOT NULL DEFAULT '',
		new_fingerprint TEXT NOT NULL DEFAULT '',
		items           INTEGER NOT NULL DEFAULT 0,
		results         INTEGER NOT NULL DEFAULT 0,
		updated_at      INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sessions_updated ON sessions(updated_at DESC)`,
}

// Summary describes a stored session without its payload.
type Summary struct {
	Key            string    `json:"key"`
	OldName        string    `json:"oldName,omitempty"`
	NewName        string    `json:"newName,omitempty"`
	OldFingerprint string    `json:"oldFingerprint,omitempty"`
	NewFingerprint string    `json:"newFingerprint,omitempty"`
	Items          int       `json:"items"`
	Results        int       `json:"results"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Store keeps sessions in a SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the session database at path. An
// empty path or sqlite.MemoryPath gives a private in-memory store.
func Open(path string) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, &errors.IOError{Operation: "open", Path: path, Err: err}
	}
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenReadOnly opens an existing session database without write access.
// A missing file is reported as an IOError wrapping fs.ErrNotExist.
func OpenReadOnly(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &errors.IOError{Operation: "open", Path: path, Err: err}
	}
	db, err := sqlite.OpenReadOnly(path)
	if err != nil {
		return nil, &errors.IOError{Operation: "open", Path: path, Err: err}
	}
	return &Store{db: db, logger: slog.New(slog.DiscardHandler), now: time.Now}, nil
}

// NewStore wraps an open database and ensures the schema exists.
func NewStore(db *sql.DB) (*Store, error) {
	if err := sqlite.Migrate(db, schema...); err != nil {
		return nil, errors.Wrap(err, "session schema")
	}
	return &Store{db: db, logger: slog.New(slog.DiscardHandler), now: time.Now}, nil
}

// WithLogger sets the logger used for store events.
func (s *Store) WithLogger(l *slog.Logger) *Store {
	if l != nil {
		s.logger = l
	}
	return s
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewKey returns a fresh session key.
func NewKey() string {
	return uuid.NewString()
}

// Save stores st under key, replacing any previous session. An empty
// key allocates a new one. LastUpdated is set to the save time. The key
// used is returned.
func (s *Store) Save(ctx context.Context, key string, st *State) (string, error) {
	if st == nil {
		return "", errors.NewValidation("state", "session state is required")
	}
	if key == "" {
		key = NewKey()
	}

	now := s.now()
	st.LastUpdated = now.UnixMilli()
	data, err := json.Marshal(st)
	if err != nil {
		return "", errors.Wrap(err, "encode session")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (key, state, old_name, new_name, old_fingerprint, new_fingerprint, items, results, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			state = excluded.state,
			old_name = excluded.old_name,
			new_name = excluded.new_name,
			old_fingerprint = excluded.old_fingerprint,
			new_fingerprint = excluded.new_fingerprint,
			items = excluded.items,
			results = excluded.results,
			updated_at = excluded.updated_at`,
		key, string(data), st.OldName, st.NewName, st.OldFingerprint, st.NewFingerprint,
		len(st.ExtractedItems), len(st.AnalysisResults), st.LastUpdated)
	if err != nil {
		return "", errors.Wrapf(err, "save session %s", key)
	}

	s.logger.DebugContext(ctx, "session_saved", "key", key, "items", len(st.ExtractedItems))
	return key, nil
}

// Load returns the session stored under key, or nil when there is none.
func (s *Store) Load(ctx context.Context, key string) (*State, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM sessions WHERE key = ?`, key).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load session %s", key)
	}

	var st State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		// A corrupt row is treated like a missing one.
		s.logger.WarnContext(ctx, "session_corrupt", "key", key, "error", err)
		return nil, nil
	}
	return &st, nil
}

// Clear removes the session stored under key. Clearing a missing key is
// not an error.
func (s *Store) Clear(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE key = ?`, key); err != nil {
		return errors.Wrapf(err, "clear session %s", key)
	}
	return nil
}

// List returns all sessions, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, old_name, new_name, old_fingerprint, new_fingerprint, items, results, updated_at
		FROM sessions ORDER BY updated_at DESC, key`)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var updated int64
		if err := rows.Scan(&sum.Key, &sum.OldName, &sum.NewName, &sum.OldFingerprint, &sum.NewFingerprint,
			&sum.Items, &sum.Results, &updated); err != nil {
			return nil, errors.Wrap(err, "scan session")
		}
		sum.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}
