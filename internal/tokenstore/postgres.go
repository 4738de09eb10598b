package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

const pgChannel = "portfolio_kv"

// PostgresBackend stores values in Postgres and announces every mutation on a
// NOTIFY channel so that other server instances can fan it out to their tabs.
//
// The pool is owned by the caller; Close is a no-op.
type PostgresBackend struct {
	pool   *pgxpool.Pool
	log    *slog.Logger
	origin string
}

type pgPayload struct {
	Origin    string `json:"origin"`
	Namespace string `json:"ns"`
	Key       string `json:"key"`
	Old       string `json:"old,omitempty"`
	New       string `json:"new,omitempty"`
	Removed   bool   `json:"removed,omitempty"`
}

// NewPostgresBackend wraps a pool. Each backend gets its own origin id so that
// it can skip the notifications it sent itself.
func NewPostgresBackend(pool *pgxpool.Pool, log *slog.Logger) (*PostgresBackend, error) {
	if pool == nil {
		return nil, errors.New("tokenstore: nil pool")
	}
	if log == nil {
		log = slog.Default()
	}
	return &PostgresBackend{
		pool:   pool,
		log:    log,
		origin: ulid.Make().String(),
	}, nil
}

// EnsureSchema creates the kv table when missing.
func (p *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS portfolio_kv (
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, key)
		)`)
	if err != nil {
		return fmt.Errorf("create portfolio_kv: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	var value string
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM portfolio_kv WHERE namespace = $1 AND key = $2`,
		namespace, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (p *PostgresBackend) Set(ctx context.Context, namespace, key, value string) error {
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var old string
		had := true
		err := tx.QueryRow(ctx,
			`SELECT value FROM portfolio_kv WHERE namespace = $1 AND key = $2 FOR UPDATE`,
			namespace, key,
		).Scan(&old)
		if errors.Is(err, pgx.ErrNoRows) {
			had = false
		} else if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO portfolio_kv (namespace, key, value)
			VALUES ($1, $2, $3)
			ON CONFLICT (namespace, key) DO UPDATE SET
				value = EXCLUDED.value,
				updated_at = now()`,
			namespace, key, value,
		); err != nil {
			return err
		}

		if had && old == value {
			return nil
		}
		return p.notify(ctx, tx, pgPayload{Namespace: namespace, Key: key, Old: old, New: value})
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (p *PostgresBackend) Remove(ctx context.Context, namespace, key string) error {
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var old string
		err := tx.QueryRow(ctx,
			`DELETE FROM portfolio_kv WHERE namespace = $1 AND key = $2 RETURNING value`,
			namespace, key,
		).Scan(&old)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		return p.notify(ctx, tx, pgPayload{Namespace: namespace, Key: key, Old: old, Removed: true})
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// notify is delivered when the surrounding transaction commits.
func (p *PostgresBackend) notify(ctx context.Context, tx pgx.Tx, pl pgPayload) error {
	pl.Origin = p.origin
	b, err := json.Marshal(pl)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, pgChannel, string(b))
	return err
}

// Watch listens on the notification channel until ctx is done.
func (p *PostgresBackend) Watch(ctx context.Context, fn func(Notification)) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer func() {
		if !conn.Conn().IsClosed() {
			_, _ = conn.Exec(context.Background(), "UNLISTEN "+pgChannel)
		}
	}()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		var pl pgPayload
		if err := json.Unmarshal([]byte(n.Payload), &pl); err != nil {
			p.log.Warn("tokenstore.notify.bad_payload", "err", err)
			continue
		}
		if pl.Origin == p.origin {
			continue
		}

		fn(Notification{
			Namespace: pl.Namespace,
			Change: Change{
				Key:      pl.Key,
				OldValue: pl.Old,
				NewValue: pl.New,
				Removed:  pl.Removed,
			},
		})
	}
}

func (p *PostgresBackend) Close() error { return nil }
