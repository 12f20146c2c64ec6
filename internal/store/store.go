// Package store persists sessions to a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/heardlabs/heard/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	language   TEXT NOT NULL,
	provider   TEXT NOT NULL,
	status     TEXT NOT NULL,
	started_at TEXT NOT NULL,
	stopped_at TEXT
);

CREATE TABLE IF NOT EXISTS segments (
	session_id  TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	segment_id  TEXT NOT NULL,
	text        TEXT NOT NULL,
	words       TEXT,
	start_sec   REAL NOT NULL,
	end_sec     REAL NOT NULL,
	confidence  REAL,
	speaker     INTEGER,
	final       INTEGER NOT NULL,
	received_at TEXT NOT NULL,
	PRIMARY KEY (session_id, seq),
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
`

// Store is a SQLite-backed session repository. It is safe for concurrent
// use across distinct session ids; callers must not issue concurrent saves
// for the same id.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists. Pass ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, repoErr("open", err)
	}
	// SQLite has a single writer anyway, and a second pooled connection
	// would see its own empty database when path is :memory:.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, repoErr("open", err)
	}
	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing database without schema setup, for CLI
// readers running next to a live daemon.
func OpenReadOnly(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, repoErr("open", err)
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes the full session record, replacing any prior record with the
// same id. The stop timestamp, when present, is stored exactly as carried
// by the session.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return repoErr("save", err)
	}
	defer tx.Rollback()

	var stoppedAt any
	if sess.StoppedAt != nil {
		stoppedAt = sess.StoppedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, language, provider, status, started_at, stopped_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			language = excluded.language,
			provider = excluded.provider,
			status = excluded.status,
			started_at = excluded.started_at,
			stopped_at = excluded.stopped_at`,
		sess.ID, sess.Language, sess.Provider, sess.Status,
		sess.StartedAt.UTC().Format(time.RFC3339Nano), stoppedAt)
	if err != nil {
		return repoErr("save", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE session_id = ?`, sess.ID); err != nil {
		return repoErr("save", err)
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (session_id, seq, segment_id, text, words, start_sec, end_sec, confidence, speaker, final, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return repoErr("save", err)
	}
	defer insert.Close()

	for i, seg := range sess.Segments {
		var words any
		if len(seg.Words) > 0 {
			data, err := json.Marshal(seg.Words)
			if err != nil {
				return repoErr("save", fmt.Errorf("encode words for segment %s: %w", seg.ID, err))
			}
			words = string(data)
		}
		var confidence any
		if seg.Confidence != nil {
			confidence = *seg.Confidence
		}
		var speaker any
		if seg.Speaker != nil {
			speaker = *seg.Speaker
		}
		_, err := insert.ExecContext(ctx, sess.ID, i, seg.ID, seg.Text, words,
			seg.Start, seg.End, confidence, speaker, boolToInt(seg.Final),
			seg.ReceivedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return repoErr("save", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return repoErr("save", err)
	}
	return nil
}

// Find returns the stored session or nil when no record exists. The session
// is rebuilt through the restore path, so a stopped record comes back with
// its original stop timestamp.
func (s *Store) Find(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, language, provider, status, started_at, stopped_at
		FROM sessions WHERE id = ?`, id)

	var (
		language, provider, status, startedAt string
		stoppedAt                             sql.NullString
	)
	if err := row.Scan(&id, &language, &provider, &status, &startedAt, &stoppedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, repoErr("find", err)
	}

	started, err := parseTime(startedAt)
	if err != nil {
		return nil, repoErr("find", err)
	}
	var stopped *time.Time
	if stoppedAt.Valid {
		t, err := parseTime(stoppedAt.String)
		if err != nil {
			return nil, repoErr("find", err)
		}
		stopped = &t
	}

	segments, err := s.loadSegments(ctx, id)
	if err != nil {
		return nil, err
	}
	return session.Restore(id, language, provider, status, segments, started, stopped), nil
}

// List returns up to limit sessions, optionally filtered by status. A
// non-positive limit means no limit. Results are ordered newest first and
// the order is stable within one call.
func (s *Store) List(ctx context.Context, status string, limit int) ([]*session.Session, error) {
	query := `SELECT id FROM sessions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, repoErr("list", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, repoErr("list", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, repoErr("list", err)
	}

	sessions := make([]*session.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Find(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			sessions = append(sessions, sess)
		}
	}
	return sessions, nil
}

// Delete removes the record for id. Deleting a missing record fails with
// session.ErrSessionNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return repoErr("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return repoErr("delete", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	// Cascade is on, but segments are removed explicitly so read-only
	// copies opened without foreign_keys still see consistent data.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM segments WHERE session_id = ?`, id); err != nil {
		return repoErr("delete", err)
	}
	return nil
}

func (s *Store) loadSegments(ctx context.Context, sessionID string) ([]session.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT segment_id, text, words, start_sec, end_sec, confidence, speaker, final, received_at
		FROM segments WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, repoErr("find", err)
	}
	defer rows.Close()

	var segments []session.Segment
	for rows.Next() {
		var (
			seg        session.Segment
			words      sql.NullString
			confidence sql.NullFloat64
			speaker    sql.NullInt64
			final      int
			receivedAt string
		)
		if err := rows.Scan(&seg.ID, &seg.Text, &words, &seg.Start, &seg.End,
			&confidence, &speaker, &final, &receivedAt); err != nil {
			return nil, repoErr("find", err)
		}
		if words.Valid && words.String != "" {
			if err := json.Unmarshal([]byte(words.String), &seg.Words); err != nil {
				return nil, repoErr("find", fmt.Errorf("decode words for segment %s: %w", seg.ID, err))
			}
		}
		if confidence.Valid {
			c := confidence.Float64
			seg.Confidence = &c
		}
		if speaker.Valid {
			sp := int(speaker.Int64)
			seg.Speaker = &sp
		}
		seg.Final = final != 0
		received, err := parseTime(receivedAt)
		if err != nil {
			return nil, repoErr("find", err)
		}
		seg.ReceivedAt = received
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, repoErr("find", err)
	}
	return segments, nil
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
