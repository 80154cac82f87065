package mysql

import (
	"context"
	"fmt"

	"github.com/officepass/officepass/internal/database/adapter"
)

// schemaStatements is the application schema in MySQL dialect, installed by
// InitializeSchema into a freshly created test database.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS merchants (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		address VARCHAR(512),
		contact_email VARCHAR(255),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS employees (
		id INT AUTO_INCREMENT PRIMARY KEY,
		merchant_id INT NOT NULL,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		phone VARCHAR(64),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (merchant_id) REFERENCES merchants(id)
	)`,
	`CREATE TABLE IF NOT EXISTS visitors (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		phone VARCHAR(64),
		company VARCHAR(255),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS passcodes (
		id INT AUTO_INCREMENT PRIMARY KEY,
		visitor_id INT NOT NULL,
		employee_id INT NOT NULL,
		code VARCHAR(16) UNIQUE NOT NULL,
		valid_from DATETIME NOT NULL,
		valid_until DATETIME NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (visitor_id) REFERENCES visitors(id),
		FOREIGN KEY (employee_id) REFERENCES employees(id)
	)`,
	`CREATE TABLE IF NOT EXISTS access_records (
		id INT AUTO_INCREMENT PRIMARY KEY,
		passcode_id INT NOT NULL,
		entered_at DATETIME NOT NULL,
		exited_at DATETIME,
		gate VARCHAR(64),
		FOREIGN KEY (passcode_id) REFERENCES passcodes(id)
	)`,
}

// CreateTestDatabase provisions a disposable database for an isolated test
// run and moves the schema marker onto it. The name is validated before any
// raw DDL is issued.
func (a *Adapter) CreateTestDatabase(ctx context.Context, name string) error {
	if err := adapter.ValidateIdentifier(name); err != nil {
		return err
	}
	if err := a.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteIdentifier(name)); err != nil {
		return fmt.Errorf("failed to create database %s: %w", name, err)
	}
	a.setSchema(name)
	a.log.Info().Str("database", name).Msg("created test database")
	return nil
}

// DropTestDatabase removes a disposable database. If it is the currently
// selected schema, the marker falls back to the configured default.
func (a *Adapter) DropTestDatabase(ctx context.Context, name string) error {
	if err := adapter.ValidateIdentifier(name); err != nil {
		return err
	}
	if a.currentSchema() == name {
		a.setSchema(a.Config().MySQL.Database)
	}
	if err := a.Exec(ctx, "DROP DATABASE IF EXISTS "+quoteIdentifier(name)); err != nil {
		return fmt.Errorf("failed to drop database %s: %w", name, err)
	}
	a.log.Info().Str("database", name).Msg("dropped test database")
	return nil
}

// InitializeSchema installs the application schema into the named database.
// DDL cannot bind parameters, so each statement goes through the raw path on
// a borrowed connection with the schema asserted first.
func (a *Adapter) InitializeSchema(ctx context.Context, name string) error {
	if err := adapter.ValidateIdentifier(name); err != nil {
		return err
	}

	conn, err := a.borrowConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "USE "+quoteIdentifier(name)); err != nil {
		return fmt.Errorf("failed to select database %s: %w", name, err)
	}
	for _, stmt := range schemaStatements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema in %s: %w", name, err)
		}
	}

	a.setSchema(name)
	a.log.Info().Str("database", name).Int("tables", len(schemaStatements)).Msg("initialized schema")
	return nil
}

// ListTables enumerates the tables in the currently selected schema.
func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	schema := a.currentSchema()
	rows, err := a.All(ctx,
		"SELECT table_name AS table_name FROM information_schema.tables WHERE table_schema = ? ORDER BY table_name",
		schema)
	if err != nil {
		return nil, err
	}

	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, ok := row["table_name"].(string); ok {
			tables = append(tables, name)
		}
	}
	return tables, nil
}
