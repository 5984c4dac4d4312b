// Package sessionstore maintains a SQLite index of exported replay
// sessions so tooling can list and resolve recordings without scanning
// directories. The index stores metadata and the on-disk path only; session
// documents themselves stay as flat files.
package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Nullpoint56/Warships2-sub000/pkg/canonicalize"
	"github.com/Nullpoint56/Warships2-sub000/pkg/session"
)

// ErrNotFound marks a lookup for a session the index does not know.
var ErrNotFound = errors.New("session not found")

// Meta is one indexed session.
type Meta struct {
	SessionID   string    `json:"session_id"`
	BuildID     string    `json:"build_id"`
	Seed        int64     `json:"seed"`
	TickRate    int       `json:"tick_rate"`
	CreatedAt   time.Time `json:"created_at"`
	MaxTick     uint64    `json:"max_tick"`
	Commands    int       `json:"commands"`
	Checkpoints int       `json:"checkpoints"`
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash"`
}

// Store is a SQLite-backed session index.
type Store struct {
	db *sql.DB
}

// Open opens or creates the index database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session index: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS sessions (
        session_id TEXT PRIMARY KEY,
        build_id TEXT NOT NULL,
        seed INTEGER NOT NULL,
        tick_rate INTEGER NOT NULL,
        created_at DATETIME NOT NULL,
        max_tick INTEGER NOT NULL,
        commands INTEGER NOT NULL,
        checkpoints INTEGER NOT NULL,
        path TEXT NOT NULL,
        content_hash TEXT NOT NULL
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("migrate session index: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add indexes one session document stored at path. Re-adding the same
// session ID replaces the previous row, which covers re-exports.
func (s *Store) Add(ctx context.Context, sess *session.Session, path string) (Meta, error) {
	data, err := session.Encode(sess)
	if err != nil {
		return Meta{}, err
	}

	meta := Meta{
		SessionID:   sess.SessionID,
		BuildID:     sess.BuildID,
		Seed:        sess.Seed,
		TickRate:    sess.TickRate,
		CreatedAt:   sess.CreatedAt.UTC(),
		MaxTick:     sess.MaxTick,
		Commands:    len(sess.Commands),
		Checkpoints: len(sess.Checkpoints),
		Path:        path,
		ContentHash: canonicalize.HashBytes(data),
	}

	query := `INSERT INTO sessions (
        session_id, build_id, seed, tick_rate, created_at, max_tick, commands, checkpoints, path, content_hash
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(session_id) DO UPDATE SET
        build_id = excluded.build_id,
        seed = excluded.seed,
        tick_rate = excluded.tick_rate,
        created_at = excluded.created_at,
        max_tick = excluded.max_tick,
        commands = excluded.commands,
        checkpoints = excluded.checkpoints,
        path = excluded.path,
        content_hash = excluded.content_hash`

	_, err = s.db.ExecContext(ctx, query,
		meta.SessionID, meta.BuildID, meta.Seed, meta.TickRate,
		meta.CreatedAt.Format(time.RFC3339Nano), meta.MaxTick,
		meta.Commands, meta.Checkpoints, meta.Path, meta.ContentHash,
	)
	if err != nil {
		return Meta{}, fmt.Errorf("index session %s: %w", meta.SessionID, err)
	}
	return meta, nil
}

// AddFile loads a session document and indexes it under its own path.
func (s *Store) AddFile(ctx context.Context, path string) (Meta, error) {
	sess, err := session.Load(path)
	if err != nil {
		return Meta{}, err
	}
	return s.Add(ctx, sess, path)
}

const selectColumns = `session_id, build_id, seed, tick_rate, created_at, max_tick, commands, checkpoints, path, content_hash`

// Get looks one session up by ID.
func (s *Store) Get(ctx context.Context, sessionID string) (Meta, error) {
	query := `SELECT ` + selectColumns + ` FROM sessions WHERE session_id = ?`
	row := s.db.QueryRowContext(ctx, query, sessionID)

	meta, err := scanMeta(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return Meta{}, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return meta, nil
}

// List returns the newest sessions first, up to limit.
func (s *Store) List(ctx context.Context, limit int) ([]Meta, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + selectColumns + ` FROM sessions ORDER BY created_at DESC, session_id LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var metas []Meta
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return metas, nil
}

// Count returns the number of indexed sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMeta(row scannable) (Meta, error) {
	var meta Meta
	var createdAt string
	err := row.Scan(
		&meta.SessionID, &meta.BuildID, &meta.Seed, &meta.TickRate,
		&createdAt, &meta.MaxTick, &meta.Commands, &meta.Checkpoints,
		&meta.Path, &meta.ContentHash,
	)
	if err != nil {
		return Meta{}, err
	}
	meta.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Meta{}, fmt.Errorf("parse created_at: %w", err)
	}
	return meta, nil
}
