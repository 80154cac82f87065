// Package mysql implements the adapter contract over a pooled MySQL
// connection. Pool connections are not guaranteed to retain session state
// across borrow cycles, so every schema-sensitive call re-asserts the active
// schema on its borrowed connection before running anything.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/officepass/officepass/internal/database/adapter"
)

func init() {
	adapter.Register(adapter.BackendMySQL, func() adapter.Adapter { return New() })
}

const (
	defaultConnectionLimit = 10
	defaultAcquireTimeout  = 10 * time.Second
)

// Adapter is the pooled networked backend.
type Adapter struct {
	mu        sync.Mutex
	db        *sql.DB
	cfg       adapter.Config
	schema    string // currently selected schema; "" until connected
	connected int32  // atomic readiness flag
	log       zerolog.Logger
}

// New creates a new, unconnected MySQL adapter.
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
	return adapter.BackendMySQL
}

// IsReady reports whether the adapter holds a live pool.
func (a *Adapter) IsReady() bool {
	return atomic.LoadInt32(&a.connected) == 1
}

// Config returns the configuration the adapter was connected with.
func (a *Adapter) Config() adapter.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Connect establishes the connection pool described by cfg.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	if cfg.Type != adapter.BackendMySQL {
		return fmt.Errorf("%w: mysql adapter given %q configuration", adapter.ErrConfigMismatch, cfg.Type)
	}
	mc := cfg.MySQL
	if mc == nil {
		return adapter.NewConfigError(adapter.BackendMySQL, "mysql", "mysql settings missing")
	}
	if mc.Port <= 0 || mc.Port > 65535 {
		return adapter.NewConnectionError(adapter.BackendMySQL, mc.Host, mc.Port,
			adapter.ConnInvalidPort, fmt.Errorf("port %d out of range", mc.Port))
	}

	db, err := sql.Open("mysql", buildDSN(mc))
	if err != nil {
		return classifyConnectionError(mc.Host, mc.Port, err)
	}

	limit := mc.ConnectionLimit
	if limit <= 0 {
		limit = defaultConnectionLimit
	}
	db.SetMaxOpenConns(limit)
	idle := limit / 2
	if idle < 1 {
		idle = 1
	}
	db.SetMaxIdleConns(idle)

	acquire := mc.AcquireTimeout
	if acquire <= 0 {
		acquire = defaultAcquireTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, acquire)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return classifyConnectionError(mc.Host, mc.Port, err)
	}

	a.mu.Lock()
	a.db = db
	a.cfg = cfg
	a.schema = mc.Database
	a.mu.Unlock()
	atomic.StoreInt32(&a.connected, 1)

	a.log.Info().Str("host", mc.Host).Int("port", mc.Port).Str("database", mc.Database).
		Int("pool", limit).Msg("connected to mysql")
	return nil
}

// Disconnect closes the pool. Idempotent; safe to call before connect.
func (a *Adapter) Disconnect(ctx context.Context) error {
	atomic.StoreInt32(&a.connected, 0)

	a.mu.Lock()
	db := a.db
	a.db = nil
	a.mu.Unlock()

	if db != nil {
		if err := db.Close(); err != nil {
			a.log.Warn().Err(err).Msg("error closing mysql pool")
		}
		a.log.Info().Msg("disconnected from mysql")
	}
	return nil
}

// Cleanup releases everything the adapter holds. Best effort.
func (a *Adapter) Cleanup(ctx context.Context) error {
	return a.Disconnect(ctx)
}

// Ping performs a trivial round-trip. The probe result may arrive as text
// depending on driver and server settings, so the comparison is coercive.
func (a *Adapter) Ping(ctx context.Context) error {
	db, err := a.handle()
	if err != nil {
		return err
	}

	var probe interface{}
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&probe); err != nil {
		return fmt.Errorf("mysql ping failed: %w", err)
	}
	if !looselyOne(probe) {
		return fmt.Errorf("mysql ping returned unexpected result %v", probe)
	}
	return nil
}

// handle returns the pool or ErrNotInitialized.
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

// borrowConn reserves one pool connection and re-asserts the active schema on
// it when the tracked marker has moved off the DSN default. The caller owns
// the connection and must Close it to return it to the pool.
func (a *Adapter) borrowConn(ctx context.Context) (*sql.Conn, error) {
	db, err := a.handle()
	if err != nil {
		return nil, err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to borrow mysql connection: %w", err)
	}

	a.mu.Lock()
	schema := a.schema
	dsnDefault := a.cfg.MySQL.Database
	a.mu.Unlock()

	if schema != "" && schema != dsnDefault {
		if _, err := conn.ExecContext(ctx, "USE "+quoteIdentifier(schema)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to select schema %s: %w", schema, err)
		}
	}
	return conn, nil
}

// currentSchema returns the tracked schema marker.
func (a *Adapter) currentSchema() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.schema
}

// setSchema moves the tracked schema marker.
func (a *Adapter) setSchema(name string) {
	a.mu.Lock()
	a.schema = name
	a.mu.Unlock()
}

// buildDSN renders the driver connection string from config.
func buildDSN(mc *adapter.MySQLConfig) string {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		mc.User, mc.Password, mc.Host, mc.Port, mc.Database)
	if mc.Timeout > 0 {
		dsn = fmt.Sprintf("%s&timeout=%s&readTimeout=%s&writeTimeout=%s",
			dsn, mc.Timeout, mc.Timeout, mc.Timeout)
	}
	if mc.MultipleStatements {
		dsn += "&multiStatements=true"
	}
	return dsn
}
