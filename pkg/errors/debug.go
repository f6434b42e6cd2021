package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Dump renders an error chain with driver-level detail for log output.
// Postgres errors carry code, constraint, table, and message fields that the
// plain Error() string hides.
func Dump(err error) string {
	if err == nil {
		return "<nil>"
	}

	var b strings.Builder
	depth := 0
	for current := err; current != nil; current = stdErrors.Unwrap(current) {
		if depth > 0 {
			b.WriteString("\n  caused by: ")
		}
		b.WriteString(describe(current))
		depth++
	}
	return b.String()
}

func describe(err error) string {
	var pgErr *pgconn.PgError
	if stdErrors.As(err, &pgErr) {
		return fmt.Sprintf("pg[%s] %s (table=%s constraint=%s detail=%s)",
			pgErr.Code, pgErr.Message, pgErr.TableName, pgErr.ConstraintName, pgErr.Detail)
	}

	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return fmt.Sprintf("pq[%s] %s (table=%s constraint=%s detail=%s)",
			pqErr.Code, pqErr.Message, pqErr.Table, pqErr.Constraint, pqErr.Detail)
	}

	var typed *Error
	if stdErrors.As(err, &typed) && typed != nil {
		return fmt.Sprintf("%s: %s", typed.Code(), typed.Message())
	}

	return err.Error()
}
