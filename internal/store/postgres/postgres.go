package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"net"
	"time"

	"outbound-crm/internal/apperr"
	"outbound-crm/internal/store"
	"outbound-crm/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// DriverName is the database/sql driver registered by pgx stdlib.
const DriverName = "pgx"

//go:embed schema.sql
var schema string

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return mapErr(err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the Postgres implementation of store.Store.
type Store struct {
	queries
	db *sql.DB
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*txn)(nil)
)

func New(db *sql.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

// WithTx runs fn in a READ COMMITTED transaction. Unique constraints are the
// concurrency control; services retry once on store.ErrUniqueViolation.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &txn{queries: queries{q: tx}, now: time.Now})
	})
	return mapErr(err)
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return mapErr(utils.HealthCheck(ctx, s.db, 2*time.Second))
}

const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
)

// mapErr translates driver errors into the store/apperr vocabulary.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrUniqueViolation) || errors.Is(err, store.ErrSessionEnded) {
		return err
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateUniqueViolation:
			return errors.Join(store.ErrUniqueViolation, err)
		case sqlStateForeignKeyViolation:
			return errors.Join(store.ErrNotFound, err)
		}
		return err
	}
	if isConnErr(err) {
		return apperr.Unavailable("database unavailable", err)
	}
	return err
}

func isConnErr(err error) bool {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || pgconn.Timeout(err)
}
