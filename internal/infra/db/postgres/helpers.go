package postgres

import (
	"database/sql"
	"strings"
)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func joinList(items []string) sql.NullString {
	return nullString(strings.Join(items, ","))
}

func splitList(s sql.NullString) []string {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return nil
	}
	return strings.Split(s.String, ",")
}

type rowScanner interface {
	Scan(dest ...any) error
}
