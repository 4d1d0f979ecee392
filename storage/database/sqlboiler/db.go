// Package boiledrepos implements repositories with sqlboiler's query builder.
package boiledrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/boil"
	"github.com/volatiletech/sqlboiler/v4/drivers"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"
	"github.com/volatiletech/strmangle"

	"github.com/trezcool/indysis/core"
)

var dialect = drivers.Dialect{
	LQ:                   '"',
	RQ:                   '"',
	UseIndexPlaceholders: true,
	UseSchema:            false,
	UseDefaultKeyword:    true,
}

// newQuery builds a postgres query from mods.
func newQuery(mods ...qm.QueryMod) *queries.Query {
	q := &queries.Query{}
	queries.SetDialect(q, &dialect)
	qm.Apply(q, mods...)
	return q
}

// bindAll runs the query and binds every row into dest (a pointer to a slice).
func bindAll(ctx context.Context, exec boil.ContextExecutor, dest interface{}, mods ...qm.QueryMod) error {
	return newQuery(mods...).Bind(ctx, exec, dest)
}

// bindOne binds the first row into dest. notFound is returned when there is none.
func bindOne(ctx context.Context, exec boil.ContextExecutor, dest interface{}, notFound error, mods ...qm.QueryMod) error {
	mods = append(mods, qm.Limit(1))
	if err := newQuery(mods...).Bind(ctx, exec, dest); err != nil {
		return trapNoRowsErr(err, notFound)
	}
	return nil
}

// deleteAll deletes the rows selected by mods.
func deleteAll(ctx context.Context, exec boil.ContextExecutor, mods ...qm.QueryMod) (int64, error) {
	q := newQuery(mods...)
	queries.SetDelete(q)
	res, err := q.ExecContext(ctx, exec)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// insertQuery builds an INSERT of cols into table.
func insertQuery(table string, cols []string) string {
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quote(table),
		strings.Join(strmangle.IdentQuoteSlice(dialect.LQ, dialect.RQ, cols), ", "),
		strmangle.Placeholders(dialect.UseIndexPlaceholders, len(cols), 1, 1),
	)
}

// insert runs an INSERT ... RETURNING id and returns the new id.
func insert(ctx context.Context, exec core.DBExecutor, table string, cols []string, vals []interface{}) (int64, error) {
	var id int64
	err := exec.QueryRowContext(ctx, insertQuery(table, cols)+" RETURNING "+quote("id"), vals...).Scan(&id)
	return id, err
}

// update sets cols of the row with id. notFound is returned when no row matched.
func update(ctx context.Context, exec core.DBExecutor, table string, id interface{}, cols []string, vals []interface{}, notFound error) error {
	q := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s",
		quote(table),
		strmangle.SetParamNames(string(dialect.LQ), string(dialect.RQ), 1, cols),
		strmangle.WhereClause(dialect.LQ, dialect.RQ, len(cols)+1, []string{"id"}),
	)
	res, err := exec.ExecContext(ctx, q, append(vals, id)...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound
	}
	return nil
}

func quote(ident string) string {
	return strmangle.IdentQuote(dialect.LQ, dialect.RQ, ident)
}

// trapNoRowsErr maps psql "no rows" err to notFound.
func trapNoRowsErr(err, notFound error) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return err
}

// orderBy turns the orderings into an ORDER BY mod.
func orderBy(ordering []core.DBOrdering) qm.QueryMod {
	list := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		list = append(list, ord.String())
	}
	return qm.OrderBy(strings.Join(list, ", "))
}

func int64sToIfaces(ids []int64) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
