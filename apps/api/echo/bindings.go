package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/indysis/core"
)

const (
	orderingParam = "ordering"
	dateLayout    = "2006-01-02"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// idParam reads an int64 path param. A malformed id is not found.
func idParam(ctx echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil {
		return 0, errHttpNotFound
	}
	return id, nil
}

// intQuery reads an optional int64 query param.
func intQuery(ctx echo.Context, name string) (int64, bool, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, core.NewValidationError(nil, core.FieldError{Field: name, Error: "enter a whole number"})
	}
	return n, true, nil
}

// intsQuery reads a repeated int64 query param.
func intsQuery(ctx echo.Context, name string) ([]int64, error) {
	vals := ctx.QueryParams()[name]
	ids := make([]int64, 0, len(vals))
	for _, val := range vals {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, core.NewValidationError(nil, core.FieldError{Field: name, Error: "enter a whole number"})
		}
		ids = append(ids, n)
	}
	return ids, nil
}

// dateQuery reads a YYYY-MM-DD query param, def when it is missing.
func dateQuery(ctx echo.Context, name string, def time.Time) (time.Time, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return def, nil
	}
	d, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: name, Error: "enter a valid date (YYYY-MM-DD)"})
	}
	return d, nil
}

// parseDate parses an optional YYYY-MM-DD body field.
func parseDate(field, val string) (time.Time, error) {
	if val == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: field, Error: "enter a valid date (YYYY-MM-DD)"})
	}
	return d, nil
}

func today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}
