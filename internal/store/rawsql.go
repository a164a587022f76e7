package store

import (
	"context"
	"fmt"
	"strings"
)

// Row is one result row from ExecRawQuery, preserving declared column order
// (a plain map loses it, so callers get an ordered pair of slices instead).
type Row struct {
	Columns []string
	Values  []any
}

// ExecRawQuery runs an arbitrary read-only SQL statement against the store,
// backing the raw-SQL tool. Only SELECT/PRAGMA/EXPLAIN/WITH are permitted; DDL and
// DML go through ExecRawStatement so the table directory can be resynced.
func (s *Store) ExecRawQuery(ctx context.Context, query string) ([]Row, error) {
	if !isReadOnlyStatement(query) {
		return nil, fmt.Errorf("only read-only statements are allowed, use ExecRawStatement for writes")
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, Row{Columns: cols, Values: values})
	}
	return out, rows.Err()
}

// ExecRawStatement runs an arbitrary DDL/DML statement and refreshes the
// table directory afterward, since a CREATE/DROP TABLE changes what the
// raw-SQL tool should be allowed to describe.
func (s *Store) ExecRawStatement(ctx context.Context, statement string) error {
	if _, err := s.db.ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("execute statement: %w", err)
	}
	return s.syncTableDirectory(ctx)
}

func isReadOnlyStatement(query string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(query))
	for _, prefix := range []string{"SELECT", "PRAGMA", "EXPLAIN", "WITH"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
