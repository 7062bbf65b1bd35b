package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"rosterbot/internal/roster"
	"rosterbot/internal/transport"
	logx "rosterbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const (
	kvMessageRef   = "message_ref"
	kvRenderedText = "rendered_text"
)

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) getKV(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *sqliteStore) putKV(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

func (s *sqliteStore) MessageRef(ctx context.Context) (transport.MessageRef, bool, error) {
	v, ok, err := s.getKV(ctx, kvMessageRef)
	if err != nil || !ok {
		return transport.MessageRef{}, false, err
	}
	var ref transport.MessageRef
	if err := json.Unmarshal([]byte(v), &ref); err != nil {
		return transport.MessageRef{}, false, err
	}
	return ref, !ref.IsZero(), nil
}

func (s *sqliteStore) SaveMessageRef(ctx context.Context, ref transport.MessageRef) error {
	b, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	return s.putKV(ctx, kvMessageRef, string(b))
}

func (s *sqliteStore) RenderedText(ctx context.Context) (string, bool, error) {
	return s.getKV(ctx, kvRenderedText)
}

func (s *sqliteStore) SaveRenderedText(ctx context.Context, text string) error {
	return s.putKV(ctx, kvRenderedText, text)
}

func (s *sqliteStore) Cancellation(ctx context.Context, week string) (roster.Cancellation, bool, error) {
	var (
		c         roster.Cancellation
		cancelled int
		at        sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT is_cancelled, reason, actor, at FROM cancellations WHERE week = ?`, week,
	).Scan(&cancelled, &c.Reason, &c.Actor, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return roster.Cancellation{}, false, nil
	}
	if err != nil {
		return roster.Cancellation{}, false, err
	}
	c.Cancelled = cancelled != 0
	if at.Valid && at.String != "" {
		if t, perr := time.Parse(time.RFC3339Nano, at.String); perr == nil {
			c.At = t
		}
	}
	return c, true, nil
}

func (s *sqliteStore) SaveCancellation(ctx context.Context, week string, c roster.Cancellation) error {
	cancelled := 0
	if c.Cancelled {
		cancelled = 1
	}
	var at any
	if !c.At.IsZero() {
		at = c.At.Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cancellations(week, is_cancelled, reason, actor, at) VALUES(?,?,?,?,?)
		 ON CONFLICT(week) DO UPDATE SET
		   is_cancelled=excluded.is_cancelled, reason=excluded.reason,
		   actor=excluded.actor, at=excluded.at`,
		week, cancelled, c.Reason, c.Actor, at,
	)
	return err
}

func (s *sqliteStore) PruneCancellations(ctx context.Context, before string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cancellations WHERE week < ?`, before)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
