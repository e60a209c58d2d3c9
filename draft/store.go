// Package draft persists per-identity order drafts in an embedded SQLite
// database so they survive process restarts. The same database hosts the
// cross-context bump marker and the saved credential, so every durable
// artifact of a session lives in one file.
package draft

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zaikapos/orderclient/orders"
)

const schema = `
CREATE TABLE IF NOT EXISTS drafts (
	local_id   TEXT PRIMARY KEY,
	identity   TEXT NOT NULL,
	server_id  INTEGER NOT NULL DEFAULT 0,
	payload    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS drafts_identity ON drafts (identity, created_at DESC);

CREATE TABLE IF NOT EXISTS markers (
	channel    TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS credentials (
	identity      TEXT PRIMARY KEY,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	updated_at    INTEGER NOT NULL
);
`

// Store is the durable session-state store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path and ensures the schema.
// WAL mode and a busy timeout let several processes of the same user
// share the file, which is what the cross-context notifier relies on.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Drafts returns the identity's drafts, newest first.
func (s *Store) Drafts(ctx context.Context, identity string) ([]orders.Order, error) {
	if identity == "" {
		return nil, errors.New("identity is required")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM drafts WHERE identity = ? ORDER BY created_at DESC, local_id`,
		identity)
	if err != nil {
		return nil, fmt.Errorf("query drafts: %w", err)
	}
	defer rows.Close()

	var list []orders.Order
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		var o orders.Order
		if err := json.Unmarshal([]byte(payload), &o); err != nil {
			// A corrupt record must not take the whole list down.
			continue
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drafts: %w", err)
	}
	return list, nil
}

// Append records one draft for the identity.
func (s *Store) Append(ctx context.Context, identity string, order orders.Order) error {
	if identity == "" {
		return errors.New("identity is required")
	}
	if order.LocalID == "" {
		return errors.New("draft local id is required")
	}
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO drafts (local_id, identity, server_id, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		order.LocalID, identity, order.ID, string(payload), createdAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	return nil
}

// ReplaceAll swaps the identity's full draft list in one transaction.
// Mutations of the list are whole-list read-modify-write operations, so
// concurrent call sites within a session cannot lose each other's rows.
func (s *Store) ReplaceAll(ctx context.Context, identity string, list []orders.Order) error {
	if identity == "" {
		return errors.New("identity is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM drafts WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("clear drafts: %w", err)
	}
	for _, o := range list {
		if o.LocalID == "" {
			return errors.New("draft local id is required")
		}
		payload, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("encode draft: %w", err)
		}
		createdAt := o.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO drafts (local_id, identity, server_id, payload, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			o.LocalID, identity, o.ID, string(payload), createdAt.UnixMilli()); err != nil {
			return fmt.Errorf("insert draft: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- bump markers ---

// SetMarker overwrites the channel's marker value.
func (s *Store) SetMarker(ctx context.Context, channel, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO markers (channel, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (channel) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		channel, value, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("set marker: %w", err)
	}
	return nil
}

// Marker returns the channel's current marker value, empty when none was
// ever written.
func (s *Store) Marker(ctx context.Context, channel string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM markers WHERE channel = ?`, channel).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read marker: %w", err)
	}
	return value, nil
}

// --- credentials ---

// SaveCredential persists the identity's tokens so a restarted process
// resumes the session.
func (s *Store) SaveCredential(ctx context.Context, identity, access, refresh string) error {
	if identity == "" {
		return errors.New("identity is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (identity, access_token, refresh_token, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (identity) DO UPDATE SET access_token = excluded.access_token,
		 refresh_token = excluded.refresh_token, updated_at = excluded.updated_at`,
		identity, access, refresh, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// LoadCredential returns the most recently saved credential, empty when
// no session was ever persisted.
func (s *Store) LoadCredential(ctx context.Context) (identity, access, refresh string, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT identity, access_token, refresh_token FROM credentials
		 ORDER BY updated_at DESC LIMIT 1`).Scan(&identity, &access, &refresh)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", "", nil
	}
	if err != nil {
		return "", "", "", fmt.Errorf("load credential: %w", err)
	}
	return identity, access, refresh, nil
}

// DeleteCredential removes the identity's persisted tokens.
func (s *Store) DeleteCredential(ctx context.Context, identity string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
