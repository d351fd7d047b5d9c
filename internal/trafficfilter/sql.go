package trafficfilter

import (
	"strconv"
	"strings"
)

// Dialect selects placeholder and case-insensitive match syntax.
type Dialect int

const (
	// Postgres uses $n placeholders and ILIKE.
	Postgres Dialect = iota
	// SQLite uses ? placeholders and lower(col) LIKE.
	SQLite
)

// Query accumulates positional arguments for a SQL statement.
type Query struct {
	dialect Dialect
	args    []any
}

// NewQuery starts a query whose first placeholders bind args.
func NewQuery(dialect Dialect, args ...any) *Query {
	return &Query{dialect: dialect, args: append([]any(nil), args...)}
}

// Bind appends v and returns its placeholder.
func (q *Query) Bind(v any) string {
	q.args = append(q.args, v)
	if q.dialect == Postgres {
		return "$" + strconv.Itoa(len(q.args))
	}
	return "?"
}

// Args returns the bound arguments in placeholder order.
func (q *Query) Args() []any {
	return q.args
}

// Conditions returns WHERE fragments implementing opts over the given
// columns. The fragments are meant to be ANDed with the caller's own.
func (q *Query) Conditions(opts Options, ipColumn, uaColumn string) []string {
	var conds []string
	if opts.BrowserOnly {
		conds = append(conds,
			q.anyMatch(uaColumn, BrowserTokens),
			"NOT "+q.anyMatch(uaColumn, BotTokens),
		)
	}
	if opts.ExcludeDatacenterIP {
		parts := make([]string, len(DatacenterPrefixes))
		for i, prefix := range DatacenterPrefixes {
			parts[i] = ipColumn + " LIKE " + q.Bind(prefix+"%")
		}
		conds = append(conds, "NOT ("+strings.Join(parts, " OR ")+")")
	}
	return conds
}

func (q *Query) anyMatch(column string, tokens []string) string {
	parts := make([]string, len(tokens))
	for i, token := range tokens {
		pattern := q.Bind("%" + token + "%")
		if q.dialect == Postgres {
			parts[i] = column + " ILIKE " + pattern
		} else {
			parts[i] = "lower(" + column + ") LIKE " + pattern
		}
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}
