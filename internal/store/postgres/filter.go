package postgres

import (
	"fmt"
	"strings"

	"github.com/chirino/memory-mcp/internal/store"
)

// filterClause renders store.Filter plus an optional namespace into a SQL
// WHERE fragment (without the leading "WHERE"), appending placeholders to
// args starting at $<len(args)+1>. alias is the table alias for `memories`
// columns (e.g. "m").
func filterClause(alias, namespace string, f store.Filter, args []any) (string, []any) {
	var clauses []string

	if namespace != "" {
		args = append(args, namespace)
		clauses = append(clauses, fmt.Sprintf("%s.namespace = $%d", alias, len(args)))
	}

	if len(f.IncludeLabels) > 0 {
		var ors []string
		for _, label := range f.IncludeLabels {
			args = append(args, "%"+strings.ToLower(label)+"%")
			ors = append(ors, fmt.Sprintf(
				"EXISTS (SELECT 1 FROM unnest(%s.labels) AS l WHERE lower(l) LIKE $%d)", alias, len(args)))
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}

	for _, label := range f.ExcludeLabels {
		args = append(args, "%"+strings.ToLower(label)+"%")
		clauses = append(clauses, fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM unnest(%s.labels) AS l WHERE lower(l) LIKE $%d)", alias, len(args)))
	}

	if f.Source != "" {
		args = append(args, "%"+strings.ToLower(f.Source)+"%")
		cond := fmt.Sprintf("lower(%s.source) LIKE $%d", alias, len(args))
		if f.ExcludeSource {
			cond = "NOT (" + cond + " )"
		}
		clauses = append(clauses, cond)
	}

	if len(clauses) == 0 {
		return "1 = 1", args
	}
	return strings.Join(clauses, " AND "), args
}
