package telemetry

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func OpenDB(driverName, dsn string) (*sql.DB, error) {
	return otelsql.Open(driverName, dsn,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
}

// WithSearchPath pins the schema as a connection parameter in the DSN.
// database/sql hands out pooled connections, so a session-scoped
// `SET search_path` issued through the pool only ever reaches one of them;
// carrying it in the DSN makes every connection the pool opens resolve
// unqualified names against the schema.
func WithSearchPath(dsn, schema string) (string, error) {
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		q := u.Query()
		q.Set("options", "-csearch_path="+schema)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	return dsn + " options='-csearch_path=" + schema + "'", nil
}
