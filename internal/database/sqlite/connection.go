// Package sqlite implements the adapter contract over a single persistent
// SQLite handle. All operations serialize through that one connection, so
// correctness depends only on sequencing, not pool coordination.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/officepass/officepass/internal/database/adapter"
)

func init() {
	adapter.Register(adapter.BackendSQLite, func() adapter.Adapter { return New() })
}

// Adapter is the embedded file backend.
type Adapter struct {
	mu        sync.Mutex
	db        *sql.DB
	cfg       adapter.Config
	connected int32
	log       zerolog.Logger
}

// New creates a new, unconnected SQLite adapter.
func New() *Adapter {
	return &Adapter{log: zerolog.Nop()}
}

// SetLogger sets the logger for the adapter.
func (a *Adapter) SetLogger(log zerolog.Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log = log
}

// Type returns the backend variant identifier.
func (a *Adapter) Type() adapter.BackendType {
	return adapter.BackendSQLite
}

// IsReady reports whether the adapter holds a live handle.
func (a *Adapter) IsReady() bool {
	return atomic.LoadInt32(&a.connected) == 1
}

// Config returns the configuration the adapter was connected with.
func (a *Adapter) Config() adapter.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Connect opens the database file and applies configured pragmas
// sequentially before marking the adapter ready. A pragma failure closes the
// handle and fails the connect.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	if cfg.Type != adapter.BackendSQLite {
		return fmt.Errorf("%w: sqlite adapter given %q configuration", adapter.ErrConfigMismatch, cfg.Type)
	}
	sc := cfg.SQLite
	if sc == nil {
		return adapter.NewConfigError(adapter.BackendSQLite, "sqlite", "sqlite settings missing")
	}
	if sc.Path == "" {
		return adapter.NewConfigError(adapter.BackendSQLite, "path", "path is required")
	}

	db, err := sql.Open("sqlite", buildDSN(sc))
	if err != nil {
		return adapter.NewConnectionError(adapter.BackendSQLite, sc.Path, 0, adapter.ConnUnknown, err)
	}

	// One persistent handle; every operation funnels through it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return adapter.NewConnectionError(adapter.BackendSQLite, sc.Path, 0, adapter.ConnUnknown, err)
	}

	for _, name := range sortedPragmaKeys(sc.Pragmas) {
		stmt := fmt.Sprintf("PRAGMA %s = %s", name, sc.Pragmas[name])
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return adapter.NewConnectionError(adapter.BackendSQLite, sc.Path, 0, adapter.ConnUnknown,
				fmt.Errorf("pragma %s failed: %w", name, err))
		}
	}

	a.mu.Lock()
	a.db = db
	a.cfg = cfg
	a.mu.Unlock()
	atomic.StoreInt32(&a.connected, 1)

	a.log.Info().Str("path", sc.Path).Int("pragmas", len(sc.Pragmas)).Msg("opened sqlite database")
	return nil
}

// Disconnect closes the handle. Idempotent; safe to call before connect.
func (a *Adapter) Disconnect(ctx context.Context) error {
	atomic.StoreInt32(&a.connected, 0)

	a.mu.Lock()
	db := a.db
	a.db = nil
	a.mu.Unlock()

	if db != nil {
		if err := db.Close(); err != nil {
			a.log.Warn().Err(err).Msg("error closing sqlite handle")
		}
		a.log.Info().Msg("closed sqlite database")
	}
	return nil
}

// Cleanup releases everything the adapter holds. Best effort.
func (a *Adapter) Cleanup(ctx context.Context) error {
	return a.Disconnect(ctx)
}

// Ping performs a trivial round-trip on the handle.
func (a *Adapter) Ping(ctx context.Context) error {
	db, err := a.handle()
	if err != nil {
		return err
	}

	var probe interface{}
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&probe); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	if !looselyOne(probe) {
		return fmt.Errorf("sqlite ping returned unexpected result %v", probe)
	}
	return nil
}

// handle returns the open handle or ErrNotInitialized.
func (a *Adapter) handle() (*sql.DB, error) {
	if !a.IsReady() {
		return nil, adapter.ErrNotInitialized
	}
	a.mu.Lock()
	db := a.db
	a.mu.Unlock()
	if db == nil {
		return nil, adapter.ErrNotInitialized
	}
	return db, nil
}

// buildDSN renders the driver connection string from config.
func buildDSN(sc *adapter.SQLiteConfig) string {
	if sc.Mode != "" {
		return fmt.Sprintf("file:%s?mode=%s", sc.Path, sc.Mode)
	}
	return sc.Path
}

// sortedPragmaKeys fixes the application order of configured pragmas.
func sortedPragmaKeys(pragmas map[string]string) []string {
	keys := make([]string, 0, len(pragmas))
	for k := range pragmas {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// looselyOne reports whether a probe result is the value 1 under the
// driver's possible representations.
func looselyOne(v interface{}) bool {
	switch val := v.(type) {
	case int64:
		return val == 1
	case int:
		return val == 1
	case float64:
		return val == 1
	case []byte:
		return string(val) == "1"
	case string:
		return val == "1"
	}
	return false
}
