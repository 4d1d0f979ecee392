// Package sqlxrepos implements repositories with sqlx on top of database/sql.
package sqlxrepos

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
)

// where collects AND-ed conditions with `?` bindvars.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// selectAll scans every row of the query into dest, a pointer to a slice of structs.
func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	rows, err := exec.QueryContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	return sqlx.StructScan(rows, dest)
}

// getOne returns the first row of the query, or notFound.
func getOne[T any](ctx context.Context, exec core.DBExecutor, notFound error, query string, args ...interface{}) (T, error) {
	var (
		zero T
		rows []T
	)
	if err := selectAll(ctx, exec, &rows, query+" LIMIT 1", args...); err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, notFound
	}
	return rows[0], nil
}

// insertNamed runs a named INSERT ... RETURNING id with the fields of arg.
func insertNamed(ctx context.Context, exec core.DBExecutor, query string, arg interface{}) (int64, error) {
	q, args, err := sqlx.Named(query+" RETURNING id", arg)
	if err != nil {
		return 0, errors.Wrap(err, "binding named query")
	}
	var id int64
	err = exec.QueryRowContext(ctx, sqlx.Rebind(sqlx.DOLLAR, q), args...).Scan(&id)
	return id, err
}

// updateNamed runs a named UPDATE and returns notFound when no row matched.
func updateNamed(ctx context.Context, exec core.DBExecutor, notFound error, query string, arg interface{}) error {
	q, args, err := sqlx.Named(query, arg)
	if err != nil {
		return errors.Wrap(err, "binding named query")
	}
	res, err := exec.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, q), args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound
	}
	return nil
}

func execQuery(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (sql.Result, error) {
	return exec.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// withTx runs fn in the caller's transaction, or in a new one.
func withTx(ctx context.Context, db *sqlx.DB, exec []core.DBExecutor, fn func(exe core.DBExecutor) error) error {
	if len(exec) > 0 && exec[0] != nil {
		return fn(exec[0])
	}
	return core.WithTx(ctx, db, fn)
}

func int64Array(ids []int64) pq.Int64Array {
	if ids == nil {
		return pq.Int64Array{}
	}
	return ids
}

func stringArray(vals []string) pq.StringArray {
	if vals == nil {
		return pq.StringArray{}
	}
	return vals
}

func sortByID[T any](rows []T, id func(T) int64) {
	sort.Slice(rows, func(i, j int) bool { return id(rows[i]) < id(rows[j]) })
}
