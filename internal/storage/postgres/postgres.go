// Package postgres implements the commerce store on PostgreSQL using pgx.
// Row locks (SELECT ... FOR UPDATE) serialize concurrent mutations of the
// same cart, order, wallet, product or coupon.
package postgres

import (
	"context"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shoppie-backend/db"
	"github.com/xenking/shoppie-backend/internal/commerce"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, letting the query
// helpers run inside and outside transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, db.Schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

var _ commerce.Store = (*Store)(nil)

// Store implements commerce.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	queries
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, queries: queries{db: pool}}
}

// InTx runs fn inside a single database transaction. All writes performed
// through the Tx commit together; any error rolls everything back.
func (s *Store) InTx(ctx context.Context, fn func(tx commerce.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&storeTx{queries: queries{db: tx}})
	})
}

var _ commerce.Tx = (*storeTx)(nil)

// storeTx exposes the transactional operations over a single pgx.Tx.
type storeTx struct {
	queries
}

// queries holds the shared query implementations; db is either the pool or
// an open transaction.
type queries struct {
	db DBTX
}
