package mysql

import (
	"database/sql"
	"strings"
)

// nullString maps "" to SQL NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullInt64 maps 0 to SQL NULL
func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

// joinList / splitList store a probe selection as one comma-joined column
func joinList(items []string) sql.NullString {
	return nullString(strings.Join(items, ","))
}

func splitList(s sql.NullString) []string {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return nil
	}
	return strings.Split(s.String, ",")
}
