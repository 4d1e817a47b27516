package store

import (
	"context"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/pkg/errors"
)

// pgxHandle serialises use of its connection, since a pgx.Conn is a single session that cannot
// run a health probe while a write is in flight.
type pgxHandle struct {
	conn    *pgx.Conn
	session chan struct{}
}

func connectPgx(ctx context.Context, connString string, connectTimeout time.Duration) (*pgxHandle, error) {
	config, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	config.ConnectTimeout = connectTimeout
	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &pgxHandle{conn: conn, session: make(chan struct{}, 1)}, nil
}

func (h *pgxHandle) acquire(ctx context.Context) error {
	select {
	case h.session <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

func (h *pgxHandle) release() {
	<-h.session
}

func (h *pgxHandle) Dialect() Dialect {
	return Postgres
}

func (h *pgxHandle) EnsureTable(ctx context.Context, table string) error {
	if err := h.acquire(ctx); err != nil {
		return err
	}
	defer h.release()
	_, err := h.conn.Exec(ctx, Postgres.CreateTableSQL(table))
	if isConcurrentCreate(err) {
		return nil
	}
	return errors.WithStack(err)
}

func (h *pgxHandle) InsertHeartbeat(ctx context.Context, table string, at time.Time) error {
	if err := h.acquire(ctx); err != nil {
		return err
	}
	defer h.release()
	err := h.conn.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, Postgres.InsertSQL(table), Postgres.EncodeTime(at))
		return err
	})
	return errors.WithStack(err)
}

func (h *pgxHandle) LatestHeartbeat(ctx context.Context, table string) (time.Time, bool, error) {
	if err := h.acquire(ctx); err != nil {
		return time.Time{}, false, err
	}
	defer h.release()
	var at time.Time
	err := h.conn.QueryRow(ctx, Postgres.LatestSQL(table)).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.WithStack(err)
	}
	return at.UTC(), true, nil
}

// Ping does not queue behind a statement in flight; it returns ErrSessionBusy instead, and the
// statement reports its own outcome.
func (h *pgxHandle) Ping(ctx context.Context) error {
	select {
	case h.session <- struct{}{}:
	default:
		return errors.WithStack(ErrSessionBusy)
	}
	defer h.release()
	return errors.WithStack(h.conn.Ping(ctx))
}

func (h *pgxHandle) Close(ctx context.Context) error {
	if err := h.acquire(ctx); err != nil {
		return err
	}
	defer h.release()
	return errors.WithStack(h.conn.Close(ctx))
}

// Two sessions racing on CREATE TABLE IF NOT EXISTS can still collide on the catalog entries.
func isConcurrentCreate(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.DuplicateTable || pgErr.Code == pgerrcode.UniqueViolation
}
