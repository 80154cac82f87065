package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/officepass/officepass/internal/database/adapter"
)

// Run executes a parameterized mutation on the handle and returns the
// normalized result.
func (a *Adapter) Run(ctx context.Context, query string, params ...interface{}) (adapter.RunResult, error) {
	db, err := a.handle()
	if err != nil {
		return adapter.RunResult{}, err
	}

	res, err := db.ExecContext(ctx, query, params...)
	if err != nil {
		return adapter.RunResult{}, fmt.Errorf("error executing statement: %w", err)
	}
	return normalizeResult(res), nil
}

// Get executes a parameterized query and returns at most one row, or nil
// when no row matches.
func (a *Adapter) Get(ctx context.Context, query string, params ...interface{}) (map[string]interface{}, error) {
	rows, err := a.All(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// All executes a parameterized query and returns every row in order.
func (a *Adapter) All(ctx context.Context, query string, params ...interface{}) ([]map[string]interface{}, error) {
	db, err := a.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Exec runs a statement through the raw, non-parameterized path.
func (a *Adapter) Exec(ctx context.Context, query string) error {
	db, err := a.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("error executing raw statement: %w", err)
	}
	return nil
}

// normalizeResult computes the shared RunResult shape from the driver's
// mutation header.
func normalizeResult(res sql.Result) adapter.RunResult {
	out := adapter.RunResult{}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	return out
}

// scanRows converts a result set into ordered row maps.
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("error reading columns: %w", err)
	}

	result := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}

		rowMap := make(map[string]interface{})
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				rowMap[col] = string(v)
			default:
				rowMap[col] = v
			}
		}
		result = append(result, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}
