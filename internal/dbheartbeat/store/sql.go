package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLHandle wraps a database/sql pool restricted to one connection, so that it behaves as a single session.
type SQLHandle struct {
	db      *sql.DB
	dialect Dialect
}

func openSQL(ctx context.Context, driverName string, dsn string, dialect Dialect) (*SQLHandle, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	h := NewSQLHandle(db, dialect)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}
	return h, nil
}

// NewSQLHandle wraps an already opened database.
func NewSQLHandle(db *sql.DB, dialect Dialect) *SQLHandle {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return &SQLHandle{db: db, dialect: dialect}
}

func (h *SQLHandle) Dialect() Dialect {
	return h.dialect
}

func (h *SQLHandle) EnsureTable(ctx context.Context, table string) error {
	_, err := h.db.ExecContext(ctx, h.dialect.CreateTableSQL(table))
	if isConcurrentCreatePq(err) {
		return nil
	}
	return errors.WithStack(err)
}

func (h *SQLHandle) InsertHeartbeat(ctx context.Context, table string, at time.Time) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := tx.ExecContext(ctx, h.dialect.InsertSQL(table), h.dialect.EncodeTime(at)); err != nil {
		_ = tx.Rollback()
		return errors.WithStack(err)
	}
	return errors.WithStack(tx.Commit())
}

func (h *SQLHandle) LatestHeartbeat(ctx context.Context, table string) (time.Time, bool, error) {
	var value interface{}
	err := h.db.QueryRowContext(ctx, h.dialect.LatestSQL(table)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.WithStack(err)
	}
	at, err := h.dialect.DecodeTime(value)
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

func (h *SQLHandle) Ping(ctx context.Context) error {
	return errors.WithStack(h.db.PingContext(ctx))
}

func (h *SQLHandle) Close(_ context.Context) error {
	return errors.WithStack(h.db.Close())
}

func isConcurrentCreatePq(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pgerrcode.DuplicateTable || pqErr.Code == pgerrcode.UniqueViolation
}
