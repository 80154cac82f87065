package sqlite

import (
	"context"
	"fmt"

	"github.com/officepass/officepass/internal/database/adapter"
)

// schemaTables lists the application tables in creation order. Drop order is
// the reverse, so foreign keys never dangle.
var schemaTables = []string{"merchants", "employees", "visitors", "passcodes", "access_records"}

// schemaStatements is the application schema in SQLite dialect.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS merchants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		address TEXT,
		contact_email TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS employees (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		merchant_id INTEGER NOT NULL REFERENCES merchants(id),
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		phone TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS visitors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		phone TEXT,
		company TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS passcodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		visitor_id INTEGER NOT NULL REFERENCES visitors(id),
		employee_id INTEGER NOT NULL REFERENCES employees(id),
		code TEXT UNIQUE NOT NULL,
		valid_from TIMESTAMP NOT NULL,
		valid_until TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS access_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		passcode_id INTEGER NOT NULL REFERENCES passcodes(id),
		entered_at TIMESTAMP NOT NULL,
		exited_at TIMESTAMP,
		gate TEXT
	)`,
}

// CreateTestDatabase validates the name and is otherwise a no-op: the file
// itself is the database, so there is no separate schema to provision.
func (a *Adapter) CreateTestDatabase(ctx context.Context, name string) error {
	if err := adapter.ValidateIdentifier(name); err != nil {
		return err
	}
	if !a.IsReady() {
		return adapter.ErrNotInitialized
	}
	a.log.Debug().Str("database", name).Msg("create test database is a no-op for sqlite")
	return nil
}

// DropTestDatabase validates the name and removes the installed application
// tables from the file.
func (a *Adapter) DropTestDatabase(ctx context.Context, name string) error {
	if err := adapter.ValidateIdentifier(name); err != nil {
		return err
	}
	for i := len(schemaTables) - 1; i >= 0; i-- {
		if err := a.Exec(ctx, "DROP TABLE IF EXISTS "+schemaTables[i]); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", schemaTables[i], err)
		}
	}
	a.log.Info().Str("database", name).Msg("dropped test tables")
	return nil
}

// InitializeSchema installs the application schema on the handle.
func (a *Adapter) InitializeSchema(ctx context.Context, name string) error {
	if err := adapter.ValidateIdentifier(name); err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if err := a.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	a.log.Info().Str("database", name).Int("tables", len(schemaStatements)).Msg("initialized schema")
	return nil
}

// ListTables enumerates the user tables in the file.
func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	rows, err := a.All(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, err
	}

	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, ok := row["name"].(string); ok {
			tables = append(tables, name)
		}
	}
	return tables, nil
}
