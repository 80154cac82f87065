package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/officepass/officepass/internal/database/adapter"
)

// State is the connection state of the resilience service.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"

	// StateFallback is a legacy wire value. The automatic cross-backend
	// fallback that produced it was removed from the initialization path;
	// the value is kept because external status consumers still switch on
	// it. Nothing in this service sets it.
	StateFallback State = "fallback"
)

// ServiceOptions tune the resilience behavior around the managed adapter.
type ServiceOptions struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	ConnectTimeout time.Duration
	HealthInterval time.Duration
}

// DefaultServiceOptions returns the default resilience settings.
func DefaultServiceOptions() ServiceOptions {
	return ServiceOptions{
		MaxRetries:     3,
		RetryBaseDelay: 500 * time.Millisecond,
		ConnectTimeout: 10 * time.Second,
		HealthInterval: 30 * time.Second,
	}
}

// Status is a point-in-time copy of the service state.
type Status struct {
	State             State               `json:"state"`
	Backend           adapter.BackendType `json:"backend,omitempty"`
	LastPing          time.Time           `json:"lastPing,omitempty"`
	ConsecutiveErrors int                 `json:"consecutiveErrors"`
	LastError         string              `json:"lastError,omitempty"`
	Uptime            time.Duration       `json:"uptime"`

	// FallbackReason pairs with StateFallback and is never populated.
	FallbackReason string `json:"fallbackReason,omitempty"`
}

// Health is a condensed view of Status for liveness endpoints.
type Health struct {
	Healthy           bool      `json:"healthy"`
	State             State     `json:"state"`
	LastPing          time.Time `json:"lastPing,omitempty"`
	ConsecutiveErrors int       `json:"consecutiveErrors"`
}

// ConnectionStats reports connection-level counters for operational callers.
type ConnectionStats struct {
	Backend        adapter.BackendType `json:"backend,omitempty"`
	Connected      bool                `json:"connected"`
	Uptime         time.Duration       `json:"uptime"`
	HealthInterval time.Duration       `json:"healthInterval"`
	PingFailures   int                 `json:"pingFailures"`
}

// Service is the single process-wide owner of the current adapter. It drives
// bounded-retry initialization, periodic health polling, and status
// reporting. At most one adapter is under management at a time.
type Service struct {
	factory *Factory
	cfg     adapter.Config
	opts    ServiceOptions
	log     zerolog.Logger

	mu                sync.RWMutex
	adp               adapter.Adapter
	state             State
	lastPing          time.Time
	consecutiveErrors int
	lastError         string
	connectedAt       time.Time
	healthStop        chan struct{}
}

// NewService creates a disconnected service around the given factory and
// configuration.
func NewService(factory *Factory, cfg adapter.Config, opts ServiceOptions, log zerolog.Logger) *Service {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultServiceOptions().MaxRetries
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = DefaultServiceOptions().RetryBaseDelay
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultServiceOptions().ConnectTimeout
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = DefaultServiceOptions().HealthInterval
	}
	return &Service{
		factory: factory,
		cfg:     cfg,
		opts:    opts,
		log:     log,
		state:   StateDisconnected,
	}
}

// Initialize connects the service with bounded retries. Each attempt races
// adapter creation against the connect timeout; on failure the next attempt
// waits baseDelay × attemptNumber. Exhausting the budget transitions the
// service to the error state and returns the final error — there is no
// automatic fallback to a different backend.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnected:
		s.mu.Unlock()
		return nil
	case StateConnecting:
		s.mu.Unlock()
		return fmt.Errorf("initialization already in progress")
	}
	s.state = StateConnecting
	s.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
		adp, err := s.factory.CreateAndTestAdapter(attemptCtx, s.cfg)
		cancel()

		if err == nil {
			s.mu.Lock()
			s.adp = adp
			s.state = StateConnected
			s.consecutiveErrors = 0
			s.lastError = ""
			s.connectedAt = time.Now()
			s.healthStop = make(chan struct{})
			stop := s.healthStop
			s.mu.Unlock()

			go s.healthLoop(stop)
			s.log.Info().Str("backend", string(s.cfg.Type)).Int("attempt", attempt).Msg("database connection established")
			return nil
		}

		lastErr = err
		s.log.Warn().Err(err).Int("attempt", attempt).Int("maxRetries", s.opts.MaxRetries).
			Msg("database connection attempt failed")

		if attempt < s.opts.MaxRetries {
			delay := s.opts.RetryBaseDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = s.opts.MaxRetries
			case <-time.After(delay):
			}
		}
	}

	s.mu.Lock()
	s.state = StateError
	s.lastError = lastErr.Error()
	s.mu.Unlock()

	return fmt.Errorf("database initialization failed after %d attempts: %w", s.opts.MaxRetries, lastErr)
}

// Disconnect stops the health timer, tears down the adapter, and returns the
// service to the disconnected state. Idempotent.
func (s *Service) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	adp := s.adp
	stop := s.healthStop
	s.adp = nil
	s.healthStop = nil
	s.state = StateDisconnected
	s.connectedAt = time.Time{}
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if adp != nil {
		adp.Disconnect(ctx)
		s.log.Info().Msg("database connection closed")
	}
	return nil
}

// Reconnect tears down the current adapter and runs initialization again.
func (s *Service) Reconnect(ctx context.Context) error {
	if err := s.Disconnect(ctx); err != nil {
		return err
	}
	return s.Initialize(ctx)
}

// Adapter returns the adapter currently under management, or nil when the
// service is not connected.
func (s *Service) Adapter() adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adp
}

// healthLoop polls the adapter until the stop channel closes. A single
// failed ping increments the error counter and records the message but does
// not change the connected status; only Initialize's retry budget is
// authoritative for hard failure.
func (s *Service) healthLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.opts.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.checkHealth()
		}
	}
}

func (s *Service) checkHealth() {
	s.mu.RLock()
	adp := s.adp
	s.mu.RUnlock()
	if adp == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := adp.Ping(ctx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPing = time.Now()
	if err != nil {
		s.consecutiveErrors++
		s.lastError = err.Error()
		s.log.Warn().Err(err).Int("consecutiveErrors", s.consecutiveErrors).Msg("health check ping failed")
		return
	}
	s.consecutiveErrors = 0
	s.lastError = ""
}

// Status returns a point-in-time copy of the service state.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:             s.state,
		LastPing:          s.lastPing,
		ConsecutiveErrors: s.consecutiveErrors,
		LastError:         s.lastError,
	}
	if s.adp != nil {
		st.Backend = s.adp.Type()
	}
	if !s.connectedAt.IsZero() {
		st.Uptime = time.Since(s.connectedAt)
	}
	return st
}

// Health returns a condensed liveness view.
func (s *Service) Health() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Health{
		Healthy:           s.state == StateConnected,
		State:             s.state,
		LastPing:          s.lastPing,
		ConsecutiveErrors: s.consecutiveErrors,
	}
}

// ConnectionStats returns connection-level counters.
func (s *Service) ConnectionStats() ConnectionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := ConnectionStats{
		Connected:      s.state == StateConnected,
		HealthInterval: s.opts.HealthInterval,
		PingFailures:   s.consecutiveErrors,
	}
	if s.adp != nil {
		cs.Backend = s.adp.Type()
	}
	if !s.connectedAt.IsZero() {
		cs.Uptime = time.Since(s.connectedAt)
	}
	return cs
}
