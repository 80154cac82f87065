package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/officepass/officepass/internal/database/adapter"
)

func testConfig(t *testing.T) adapter.Config {
	return adapter.Config{
		Type: adapter.BackendSQLite,
		SQLite: &adapter.SQLiteConfig{
			Path: filepath.Join(t.TempDir(), "officepass_test.db"),
			Pragmas: map[string]string{
				"foreign_keys": "ON",
				"journal_mode": "WAL",
			},
		},
	}
}

func connectedAdapter(t *testing.T) *Adapter {
	a := New()
	require.NoError(t, a.Connect(context.Background(), testConfig(t)))
	t.Cleanup(func() { a.Disconnect(context.Background()) })
	return a
}

func TestConnectMismatchedConfig(t *testing.T) {
	a := New()
	cfg := adapter.Config{
		Type:  adapter.BackendMySQL,
		MySQL: &adapter.MySQLConfig{Host: "localhost", Port: 3306, User: "u", Password: "p"},
	}

	err := a.Connect(context.Background(), cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, adapter.ErrConfigMismatch)
	assert.False(t, a.IsReady())
}

func TestConnectAppliesPragmas(t *testing.T) {
	a := connectedAdapter(t)

	row, err := a.Get(context.Background(), "PRAGMA foreign_keys")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.EqualValues(t, int64(1), row["foreign_keys"])
}

func TestNotInitializedBeforeConnect(t *testing.T) {
	a := New()
	ctx := context.Background()

	_, err := a.Run(ctx, "INSERT INTO t VALUES (1)")
	assert.ErrorIs(t, err, adapter.ErrNotInitialized)

	_, err = a.Get(ctx, "SELECT 1")
	assert.ErrorIs(t, err, adapter.ErrNotInitialized)

	_, err = a.All(ctx, "SELECT 1")
	assert.ErrorIs(t, err, adapter.ErrNotInitialized)

	assert.ErrorIs(t, a.Ping(ctx), adapter.ErrNotInitialized)

	_, err = a.BeginTransaction(ctx)
	assert.ErrorIs(t, err, adapter.ErrNotInitialized)
}

func TestDisconnectIdempotent(t *testing.T) {
	a := New()
	ctx := context.Background()

	// Never connected; must not fail.
	require.NoError(t, a.Disconnect(ctx))

	require.NoError(t, a.Connect(ctx, testConfig(t)))
	require.NoError(t, a.Disconnect(ctx))
	require.NoError(t, a.Disconnect(ctx))

	assert.False(t, a.IsReady())
	_, err := a.All(ctx, "SELECT 1")
	assert.ErrorIs(t, err, adapter.ErrNotInitialized)
}

func TestPing(t *testing.T) {
	a := connectedAdapter(t)
	assert.NoError(t, a.Ping(context.Background()))
}

func TestRunResultShapes(t *testing.T) {
	a := connectedAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.InitializeSchema(ctx, "officepass_test"))

	res, err := a.Run(ctx, "INSERT INTO visitors (name, company) VALUES (?, ?)", "Dana", "Acme")
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.LastInsertID)
	assert.EqualValues(t, 1, res.RowsAffected)

	// Update matching zero rows succeeds with zero rows affected.
	res, err = a.Run(ctx, "UPDATE visitors SET company = ? WHERE id = ?", "None", 9999)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.RowsAffected)

	res, err = a.Run(ctx, "DELETE FROM visitors WHERE id = ?", 9999)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.RowsAffected)
}

func TestGetAbsentRow(t *testing.T) {
	a := connectedAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.InitializeSchema(ctx, "officepass_test"))

	row, err := a.Get(ctx, "SELECT * FROM visitors WHERE id = ?", 12345)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestAllOrderedAndEmpty(t *testing.T) {
	a := connectedAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.InitializeSchema(ctx, "officepass_test"))

	rows, err := a.All(ctx, "SELECT * FROM visitors")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	for _, name := range []string{"Ana", "Ben", "Cleo"} {
		_, err := a.Run(ctx, "INSERT INTO visitors (name) VALUES (?)", name)
		require.NoError(t, err)
	}

	rows, err = a.All(ctx, "SELECT name FROM visitors ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Ana", rows[0]["name"])
	assert.Equal(t, "Cleo", rows[2]["name"])
}

func TestSchemaLifecycle(t *testing.T) {
	a := connectedAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.CreateTestDatabase(ctx, "officepass_test"))
	require.NoError(t, a.InitializeSchema(ctx, "officepass_test"))

	tables, err := a.ListTables(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tables)
	assert.Contains(t, tables, "visitors")
	assert.Contains(t, tables, "passcodes")
	assert.Contains(t, tables, "access_records")

	require.NoError(t, a.DropTestDatabase(ctx, "officepass_test"))

	tables, err = a.ListTables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestSchemaLifecycleRejectsInvalidNames(t *testing.T) {
	a := connectedAdapter(t)
	ctx := context.Background()

	for _, name := range []string{"", "bad-name", "x; DROP TABLE visitors", "späce"} {
		assert.ErrorIs(t, a.CreateTestDatabase(ctx, name), adapter.ErrConfigInvalid, name)
		assert.ErrorIs(t, a.DropTestDatabase(ctx, name), adapter.ErrConfigInvalid, name)
		assert.ErrorIs(t, a.InitializeSchema(ctx, name), adapter.ErrConfigInvalid, name)
	}
}

func TestTransactionCommit(t *testing.T) {
	a := connectedAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.InitializeSchema(ctx, "officepass_test"))

	tx, err := a.BeginTransaction(ctx)
	require.NoError(t, err)

	res, err := tx.Run(ctx, "INSERT INTO visitors (name) VALUES (?)", "Committed")
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.RowsAffected)

	require.NoError(t, tx.Commit(ctx))

	row, err := a.Get(ctx, "SELECT name FROM visitors WHERE name = ?", "Committed")
	require.NoError(t, err)
	require.NotNil(t, row)

	// The reserved connection was released; a following transaction proceeds.
	tx2, err := a.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback(ctx))
}

func TestTransactionRollback(t *testing.T) {
	a := connectedAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.InitializeSchema(ctx, "officepass_test"))

	tx, err := a.BeginTransaction(ctx)
	require.NoError(t, err)

	_, err = tx.Run(ctx, "INSERT INTO visitors (name) VALUES (?)", "Phantom")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	row, err := a.Get(ctx, "SELECT name FROM visitors WHERE name = ?", "Phantom")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestTransactionResolveOnce(t *testing.T) {
	a := connectedAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.InitializeSchema(ctx, "officepass_test"))

	tx, err := a.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.ErrorIs(t, tx.Commit(ctx), adapter.ErrTransactionClosed)
	assert.ErrorIs(t, tx.Rollback(ctx), adapter.ErrTransactionClosed)

	_, err = tx.Run(ctx, "INSERT INTO visitors (name) VALUES (?)", "Late")
	assert.ErrorIs(t, err, adapter.ErrTransactionClosed)
}

func TestConcurrentTransactions(t *testing.T) {
	a := connectedAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.InitializeSchema(ctx, "officepass_test"))

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		tx, err := a.BeginTransaction(ctx)
		if err != nil {
			t.Error(err)
			return
		}
		if _, err := tx.Run(ctx, "INSERT INTO visitors (name) VALUES (?)", "keeper"); err != nil {
			t.Error(err)
			tx.Rollback(ctx)
			return
		}
		if err := tx.Commit(ctx); err != nil {
			t.Error(err)
		}
	}()

	go func() {
		defer wg.Done()
		tx, err := a.BeginTransaction(ctx)
		if err != nil {
			t.Error(err)
			return
		}
		if _, err := tx.Run(ctx, "INSERT INTO visitors (name) VALUES (?)", "discarded"); err != nil {
			t.Error(err)
			tx.Rollback(ctx)
			return
		}
		if err := tx.Rollback(ctx); err != nil {
			t.Error(err)
		}
	}()

	wg.Wait()

	rows, err := a.All(ctx, "SELECT name FROM visitors ORDER BY name")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "keeper", rows[0]["name"])
}

func TestConstraintViolationPropagates(t *testing.T) {
	a := connectedAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.InitializeSchema(ctx, "officepass_test"))

	res, err := a.Run(ctx, "INSERT INTO merchants (name) VALUES (?)", "Acme")
	require.NoError(t, err)

	_, err = a.Run(ctx,
		"INSERT INTO employees (merchant_id, name, email) VALUES (?, ?, ?)", res.LastInsertID, "A", "dup@example.com")
	require.NoError(t, err)

	_, err = a.Run(ctx,
		"INSERT INTO employees (merchant_id, name, email) VALUES (?, ?, ?)", res.LastInsertID, "B", "dup@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNIQUE")
}
