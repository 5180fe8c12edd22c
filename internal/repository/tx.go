package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"

	"github.com/joseph-ayodele/tools-tracker/internal/common"
)

type txKey struct{}

// WithTx runs fn inside a transaction carried by ctx. Repository calls made with the context
// handed to fn join that transaction. Nested calls reuse the outer transaction.
func WithTx(ctx context.Context, drv *entsql.Driver, fn func(ctx context.Context) error) error {
	return withTx(ctx, drv, nil, fn)
}

// WithSnapshot is WithTx where every read made by fn sees the same committed state. SQLite
// transactions already serialize; Postgres runs the transaction as REPEATABLE READ.
func WithSnapshot(ctx context.Context, drv *entsql.Driver, fn func(ctx context.Context) error) error {
	var opts *sql.TxOptions
	if drv.Dialect() == dialect.Postgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	}
	return withTx(ctx, drv, opts, fn)
}

// InTx reports whether ctx carries a transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(dialect.Tx)
	return ok
}

func withTx(ctx context.Context, drv *entsql.Driver, opts *sql.TxOptions, fn func(ctx context.Context) error) (err error) {
	if InTx(ctx) {
		return fn(ctx)
	}

	tx, err := drv.BeginTx(ctx, opts)
	if err != nil {
		return dbError("begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: rolling back transaction: %v", err, rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return dbError("commit transaction", err)
	}
	return nil
}

// conn returns the transaction carried by ctx, or the driver itself.
func conn(ctx context.Context, drv *entsql.Driver) dialect.ExecQuerier {
	if tx, ok := ctx.Value(txKey{}).(dialect.Tx); ok {
		return tx
	}
	return drv
}

type querier interface {
	Query() (string, []any)
}

func build(drv *entsql.Driver) *entsql.DialectBuilder {
	return entsql.Dialect(drv.Dialect())
}

func execQuery(ctx context.Context, eq dialect.ExecQuerier, q querier) (int64, error) {
	query, args := q.Query()
	var res sql.Result
	if err := eq.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// queryAll runs q and scans every row with scan. Rows are closed before returning so the
// connection can be reused inside a single-connection transaction.
func queryAll[T any](ctx context.Context, eq dialect.ExecQuerier, q querier, scan func(*entsql.Rows) (T, error)) ([]T, error) {
	query, args := q.Query()
	rows := &entsql.Rows{}
	if err := eq.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func queryOne[T any](ctx context.Context, eq dialect.ExecQuerier, q querier, scan func(*entsql.Rows) (T, error)) (T, bool, error) {
	var zero T
	all, err := queryAll(ctx, eq, q, scan)
	if err != nil || len(all) == 0 {
		return zero, false, err
	}
	return all[0], true, nil
}

func dbError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if sqlgraph.IsUniqueConstraintError(err) {
		return common.NewAppError("CONFLICT", op, errors.Join(common.ErrPrecondition, err))
	}
	if sqlgraph.IsForeignKeyConstraintError(err) {
		return common.NewAppError("FOREIGN_KEY", op, errors.Join(common.ErrInvalidInput, err))
	}
	return common.NewAppError("DB_ERROR", op, errors.Join(common.ErrDatabase, err))
}

func notFound(what string, id any) error {
	return common.NewAppError("NOT_FOUND", fmt.Sprintf("%s %v not found", what, id), common.ErrNotFound)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
