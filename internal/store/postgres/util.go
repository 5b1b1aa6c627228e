package postgres

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

func lower(s string) string { return strings.ToLower(s) }

func joinOR(clauses []string) string {
	if len(clauses) == 0 {
		return "false"
	}
	return strings.Join(clauses, " OR ")
}

func mustCompileTableName() *regexp.Regexp {
	return regexp.MustCompile(`^memory_[0-9]+$`)
}

// pgErrCode extracts the SQLSTATE from err, if it wraps a *pgconn.PgError.
func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
