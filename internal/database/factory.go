// Package database owns the process-wide database connectivity services: the
// adapter factory, the connection/resilience service, and the timeout/retry
// manager. Backend variants live in the mysql and sqlite subpackages and are
// pulled in through blank imports so their init() registration runs.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/officepass/officepass/internal/database/adapter"
	_ "github.com/officepass/officepass/internal/database/mysql"
	_ "github.com/officepass/officepass/internal/database/sqlite"
)

// Factory validates configuration and constructs ready adapters. It is
// constructed once at process start and passed by reference to consumers.
type Factory struct {
	registry *adapter.Registry
	log      zerolog.Logger
}

// NewFactory creates a factory over the global adapter registry.
func NewFactory(log zerolog.Logger) *Factory {
	return &Factory{
		registry: adapter.GlobalRegistry(),
		log:      log,
	}
}

// ValidateConfig reports whether the configuration could produce a working
// adapter: exactly one variant populated, matching the discriminant, with
// required fields present and the port in (0, 65535].
func (f *Factory) ValidateConfig(cfg adapter.Config) bool {
	return cfg.Validate() == nil
}

// CreateAdapter validates the configuration, constructs the variant selected
// by its discriminant, and connects it. On any failure the partially built
// adapter is cleaned up before the error is returned.
func (f *Factory) CreateAdapter(ctx context.Context, cfg adapter.Config) (adapter.Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// The discriminant is matched exhaustively here; an unknown type never
	// reaches the registry.
	switch cfg.Type {
	case adapter.BackendMySQL, adapter.BackendSQLite:
	default:
		return nil, adapter.NewConfigError(cfg.Type, "type", fmt.Sprintf("unknown backend type %q", string(cfg.Type)))
	}

	adp, err := f.registry.New(cfg.Type)
	if err != nil {
		return nil, err
	}
	if la, ok := adp.(interface{ SetLogger(zerolog.Logger) }); ok {
		la.SetLogger(f.log)
	}

	if err := adp.Connect(ctx, cfg); err != nil {
		adp.Cleanup(ctx)
		f.log.Error().Err(err).Str("backend", string(cfg.Type)).Msg("adapter connect failed")
		return nil, err
	}
	return adp, nil
}

// CreateAndTestAdapter creates an adapter and verifies liveness with a ping.
// A failed ping triggers cleanup and a connection-test error.
func (f *Factory) CreateAndTestAdapter(ctx context.Context, cfg adapter.Config) (adapter.Adapter, error) {
	adp, err := f.CreateAdapter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := adp.Ping(ctx); err != nil {
		adp.Cleanup(ctx)
		return nil, fmt.Errorf("%w: %v", adapter.ErrConnectionTestFailed, err)
	}
	return adp, nil
}

// CreateMultipleAdapters attempts n independent creations. Batches are
// all-or-nothing: if any creation fails, every adapter that did succeed is
// cleaned up before the aggregate error is returned.
func (f *Factory) CreateMultipleAdapters(ctx context.Context, cfg adapter.Config, n int) ([]adapter.Adapter, error) {
	if n <= 0 {
		return nil, adapter.NewConfigError(cfg.Type, "count", fmt.Sprintf("adapter count must be positive, got %d", n))
	}

	adapters := make([]adapter.Adapter, 0, n)
	var errs []error
	for i := 0; i < n; i++ {
		adp, err := f.CreateAdapter(ctx, cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("adapter %d: %w", i, err))
			continue
		}
		adapters = append(adapters, adp)
	}

	if len(errs) > 0 {
		for _, adp := range adapters {
			adp.Cleanup(ctx)
		}
		return nil, fmt.Errorf("created %d of %d adapters, cleaned up the rest: %w",
			len(adapters), n, errors.Join(errs...))
	}
	return adapters, nil
}
