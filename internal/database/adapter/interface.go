package adapter

import (
	"context"
)

// Adapter is the shared capability contract every storage backend satisfies.
// An adapter is constructed unconnected; Connect makes it ready, Disconnect
// tears it down. All data-path operations fail with ErrNotInitialized when
// the adapter is not ready.
type Adapter interface {
	// Type returns the backend variant this adapter implements.
	Type() BackendType

	// Connect establishes the pool or handle described by cfg. It fails with
	// ErrConfigMismatch before any network or file access when cfg's
	// discriminant does not match the variant, and releases anything
	// partially allocated before returning any other error.
	Connect(ctx context.Context, cfg Config) error

	// Disconnect tears down the pool or handle. It is idempotent and never
	// fails, even if the adapter was never connected.
	Disconnect(ctx context.Context) error

	// IsReady reports whether the adapter has a live pool or handle.
	IsReady() bool

	// Ping performs a trivial round-trip. Backends may coerce the probe
	// result (a count arriving as text still passes).
	Ping(ctx context.Context) error

	// Run executes a parameterized mutation and returns its normalized result.
	Run(ctx context.Context, query string, params ...interface{}) (RunResult, error)

	// Get executes a parameterized query and returns at most one row, or nil
	// when no row matches.
	Get(ctx context.Context, query string, params ...interface{}) (map[string]interface{}, error)

	// All executes a parameterized query and returns every row in order; the
	// result may be empty but is never nil on success.
	All(ctx context.Context, query string, params ...interface{}) ([]map[string]interface{}, error)

	// Exec runs a statement through the raw, non-parameterized path. DDL and
	// USE go through here because those statement classes cannot bind
	// parameters.
	Exec(ctx context.Context, query string) error

	// BeginTransaction reserves one connection, re-asserts the active schema
	// on it, and returns a handle pinned to it.
	BeginTransaction(ctx context.Context) (Transaction, error)

	// CreateTestDatabase provisions a disposable schema for an isolated test
	// run. The name must match ^[A-Za-z0-9_]+$ or the call fails before any
	// raw DDL is issued.
	CreateTestDatabase(ctx context.Context, name string) error

	// DropTestDatabase removes a disposable schema. Name validation matches
	// CreateTestDatabase.
	DropTestDatabase(ctx context.Context, name string) error

	// InitializeSchema installs the application schema into the named
	// database. Name validation matches CreateTestDatabase.
	InitializeSchema(ctx context.Context, name string) error

	// ListTables enumerates the tables in the currently selected schema.
	ListTables(ctx context.Context) ([]string, error)

	// Cleanup releases every resource the adapter holds, including anything
	// left over from a partially failed connect. Best effort, never fails.
	Cleanup(ctx context.Context) error

	// Config returns the configuration the adapter was connected with.
	Config() Config
}

// Transaction is one open unit of work pinned to a single reserved
// connection. Exactly one of Commit or Rollback must be called exactly once;
// after either, the connection is released unconditionally, even if the
// commit or rollback itself fails.
type Transaction interface {
	Run(ctx context.Context, query string, params ...interface{}) (RunResult, error)
	Get(ctx context.Context, query string, params ...interface{}) (map[string]interface{}, error)
	All(ctx context.Context, query string, params ...interface{}) ([]map[string]interface{}, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// RunResult is the normalized mutation result, computed from whichever
// native shape the backend returns.
type RunResult struct {
	LastInsertID int64 `json:"lastInsertId,omitempty"`
	RowsAffected int64 `json:"rowsAffected"`
}
