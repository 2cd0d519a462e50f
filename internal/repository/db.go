package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"xorm.io/builder"

	"github.com/sumire/defects/internal/domain"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

type txKey struct{}

// DB wraps the connection pool and runs transactions whose handle travels in the context.
type DB struct {
	*sqlx.DB
}

// Open connects to PostgreSQL through the pgx stdlib driver.
func Open(ctx context.Context, dsn string) (*DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &DB{DB: db}, nil
}

// Migrate creates any missing tables and indexes.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction. Repositories called with the context
// passed to fn use that transaction. A nested call reuses the outer transaction.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ext returns the transaction carried by ctx, or the pool.
func (db *DB) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db.DB
}

func (db *DB) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, db.ext(ctx), dest, query, args...)
}

func (db *DB) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, db.ext(ctx), dest, query, args...)
}

func (db *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.ext(ctx).ExecContext(ctx, query, args...)
}

// where renders cond as a WHERE clause with ? placeholders.
func where(cond builder.Cond) (string, []any, error) {
	if cond == nil || !cond.IsValid() {
		return "", nil, nil
	}
	sqlStr, args, err := builder.ToSQL(cond)
	if err != nil {
		return "", nil, fmt.Errorf("build condition: %w", err)
	}
	return " WHERE " + sqlStr, args, nil
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// affected maps a zero-row mutation to domain.ErrNotFound.
func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
