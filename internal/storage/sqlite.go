// Package storage is the default persistence collaborator backed by
// SQLite. Durability guarantees live with the external store in
// production deployments; this adapter keeps the contract complete.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/peervoice/peervoice/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_records (
	room_id       TEXT PRIMARY KEY,
	offerer_id    TEXT NOT NULL,
	offerer_name  TEXT NOT NULL,
	answerer_id   TEXT NOT NULL,
	answerer_name TEXT NOT NULL,
	mode          TEXT NOT NULL,
	started_at    INTEGER NOT NULL,
	duration_ms   INTEGER NOT NULL,
	end_reason    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_records_offerer  ON session_records(offerer_id, started_at);
CREATE INDEX IF NOT EXISTS idx_session_records_answerer ON session_records(answerer_id, started_at);
CREATE TABLE IF NOT EXISTS friendships (
	user_a     TEXT NOT NULL,
	user_b     TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (user_a, user_b)
);`

type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open DB: %w", err)
	}
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) AppendSessionRecord(ctx context.Context, rec domain.SessionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_records
		 (room_id, offerer_id, offerer_name, answerer_id, answerer_name, mode, started_at, duration_ms, end_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.RoomID),
		string(rec.Offerer.ID), rec.Offerer.Username,
		string(rec.Answerer.ID), rec.Answerer.Username,
		string(rec.Mode),
		rec.StartedAt.UnixMilli(),
		rec.Duration.Milliseconds(),
		string(rec.EndReason),
	)
	if err != nil {
		return fmt.Errorf("storage: append session record: %w", err)
	}
	return nil
}

func (s *Store) ReadHistory(ctx context.Context, user domain.UserID, limit int) ([]domain.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id, offerer_id, offerer_name, answerer_id, answerer_name, mode, started_at, duration_ms, end_reason
		 FROM session_records
		 WHERE offerer_id = ? OR answerer_id = ?
		 ORDER BY started_at DESC
		 LIMIT ?`,
		string(user), string(user), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: read history: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionRecord
	for rows.Next() {
		var (
			rec                      domain.SessionRecord
			startedAtMs, durationMs int64
		)
		if err := rows.Scan(
			&rec.RoomID,
			&rec.Offerer.ID, &rec.Offerer.Username,
			&rec.Answerer.ID, &rec.Answerer.Username,
			&rec.Mode, &startedAtMs, &durationMs, &rec.EndReason,
		); err != nil {
			return nil, fmt.Errorf("storage: scan record: %w", err)
		}
		rec.StartedAt = time.UnixMilli(startedAtMs)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertFriendship stores the unordered pair exactly once.
func (s *Store) UpsertFriendship(ctx context.Context, a, b domain.UserID) error {
	if b < a {
		a, b = b, a
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO friendships (user_a, user_b, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_a, user_b) DO UPDATE SET updated_at = excluded.updated_at`,
		string(a), string(b), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("storage: upsert friendship: %w", err)
	}
	return nil
}
