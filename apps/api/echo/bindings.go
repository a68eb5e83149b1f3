package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/telatku/telatku/core"
)

var orderingParam = "ordering"

// Ordering binds the `ordering` query param, e.g. `ordering=-date,full_name`.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// Allowed keeps the orderings on the given fields only.
func (ord *Ordering) Allowed(fields ...string) []core.DBOrdering {
	allowed := make(map[string]string, len(fields))
	for _, f := range fields {
		allowed[f] = f
	}
	return core.FilterOrderings(ord.Orderings, allowed)
}

func bindOrdering(ctx echo.Context, fields ...string) []core.DBOrdering {
	ord := new(Ordering)
	ord.Bind(ctx)
	return ord.Allowed(fields...)
}
