package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/officepass/officepass/internal/database/adapter"
)

// OperationClass selects the timeout/retry policy for an operation.
type OperationClass string

const (
	OpConnection  OperationClass = "connection"
	OpQuery       OperationClass = "query"
	OpTransaction OperationClass = "transaction"
	OpBulk        OperationClass = "bulk"
	OpTestSetup   OperationClass = "test-setup"
	OpTestCleanup OperationClass = "test-cleanup"
)

// TimeoutOptions tune the timeout manager.
type TimeoutOptions struct {
	MaxRetries        int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	Budgets           map[OperationClass]time.Duration

	// Health thresholds for PerformHealthCheck.
	TimeoutRateThreshold float64
	InFlightWarning      time.Duration
	AvgLatencyWarning    time.Duration
}

// DefaultTimeoutOptions returns the default per-class budgets and retry
// policy.
func DefaultTimeoutOptions() TimeoutOptions {
	return TimeoutOptions{
		MaxRetries:        3,
		BaseDelay:         250 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Budgets: map[OperationClass]time.Duration{
			OpConnection:  10 * time.Second,
			OpQuery:       5 * time.Second,
			OpTransaction: 15 * time.Second,
			OpBulk:        60 * time.Second,
			OpTestSetup:   30 * time.Second,
			OpTestCleanup: 30 * time.Second,
		},
		TimeoutRateThreshold: 0.2,
		InFlightWarning:      30 * time.Second,
		AvgLatencyWarning:    2 * time.Second,
	}
}

// ActiveOperation is a copy of one in-flight operation's registry entry.
type ActiveOperation struct {
	ID      string         `json:"id"`
	Class   OperationClass `json:"class"`
	Started time.Time      `json:"started"`
	Budget  time.Duration  `json:"budget"`
	Elapsed time.Duration  `json:"elapsed"`
}

// ClassStats are the per-class running statistics.
type ClassStats struct {
	Attempts   int64         `json:"attempts"`
	Timeouts   int64         `json:"timeouts"`
	MinLatency time.Duration `json:"minLatency"`
	AvgLatency time.Duration `json:"avgLatency"`
	MaxLatency time.Duration `json:"maxLatency"`

	totalLatency time.Duration
}

// TimeoutReport is a serializable snapshot of manager statistics and the
// in-flight operation list.
type TimeoutReport struct {
	GeneratedAt   time.Time                      `json:"generatedAt"`
	TotalAttempts int64                          `json:"totalAttempts"`
	TotalTimeouts int64                          `json:"totalTimeouts"`
	TimeoutRate   float64                        `json:"timeoutRate"`
	Classes       map[OperationClass]*ClassStats `json:"classes"`
	Active        []ActiveOperation              `json:"active"`
}

// TimeoutHealth is the result of a manager health check.
type TimeoutHealth struct {
	Healthy bool          `json:"healthy"`
	Reasons []string      `json:"reasons,omitempty"`
	Report  TimeoutReport `json:"report"`
}

type activeOperation struct {
	id      string
	class   OperationClass
	started time.Time
	budget  time.Duration
	cancel  context.CancelFunc
}

// TimeoutManager wraps operations in a per-class timeout race with
// exponential-backoff retry, and tracks running statistics and in-flight
// operations.
type TimeoutManager struct {
	opts TimeoutOptions
	log  zerolog.Logger

	mu            sync.Mutex
	active        map[string]*activeOperation
	stats         map[OperationClass]*ClassStats
	totalAttempts int64
	totalTimeouts int64
}

// NewTimeoutManager creates a manager with the given options; zero-valued
// options fall back to defaults.
func NewTimeoutManager(opts TimeoutOptions, log zerolog.Logger) *TimeoutManager {
	def := DefaultTimeoutOptions()
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = def.BaseDelay
	}
	if opts.BackoffMultiplier <= 1 {
		// A multiplier of 1 would make the inter-attempt delays constant.
		opts.BackoffMultiplier = def.BackoffMultiplier
	}
	if opts.Budgets == nil {
		opts.Budgets = def.Budgets
	}
	if opts.TimeoutRateThreshold <= 0 {
		opts.TimeoutRateThreshold = def.TimeoutRateThreshold
	}
	if opts.InFlightWarning <= 0 {
		opts.InFlightWarning = def.InFlightWarning
	}
	if opts.AvgLatencyWarning <= 0 {
		opts.AvgLatencyWarning = def.AvgLatencyWarning
	}
	return &TimeoutManager{
		opts:   opts,
		log:    log,
		active: make(map[string]*activeOperation),
		stats:  make(map[OperationClass]*ClassStats),
	}
}

// Budget returns the time budget for an operation class. A class missing
// from a partial budget map gets its default; an unknown class gets the
// default query budget.
func (m *TimeoutManager) Budget(class OperationClass) time.Duration {
	if b, ok := m.opts.Budgets[class]; ok {
		return b
	}
	def := DefaultTimeoutOptions().Budgets
	if b, ok := def[class]; ok {
		return b
	}
	return def[OpQuery]
}

// ExecuteWithTimeout races fn against the class's default budget, retrying
// timeouts with exponential backoff.
func (m *TimeoutManager) ExecuteWithTimeout(ctx context.Context, class OperationClass, fn func(context.Context) error) error {
	return m.ExecuteWithBudget(ctx, class, 0, fn)
}

// ExecuteWithBudget is ExecuteWithTimeout with a per-call budget override.
// A timed-out attempt is retried MaxRetries times on top of the initial
// attempt, with a strictly growing delay of baseDelay × multiplier^retry
// between attempts; any non-timeout failure is returned immediately without
// retry.
func (m *TimeoutManager) ExecuteWithBudget(ctx context.Context, class OperationClass, override time.Duration, fn func(context.Context) error) error {
	budget := override
	if budget <= 0 {
		budget = m.Budget(class)
	}

	var lastErr error
	delay := m.opts.BaseDelay
	for attempt := 0; attempt <= m.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			m.log.Warn().Str("class", string(class)).Int("retry", attempt).
				Dur("budget", budget).Dur("delay", delay).Msg("operation timed out, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * m.opts.BackoffMultiplier)
		}

		err := m.runAttempt(ctx, class, budget, fn)
		if err == nil {
			return nil
		}
		if !adapter.IsTimeout(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%s operation failed after %d attempts: %w", class, m.opts.MaxRetries+1, lastErr)
}

// runAttempt runs one attempt of fn against the budget. Every attempt is
// registered in the active-operations map and deregistered on any terminal
// outcome. Losing the race does not stop the underlying operation; its
// context is cancelled and its result discarded, so a timeout means
// "outcome unknown", not "rolled back".
func (m *TimeoutManager) runAttempt(ctx context.Context, class OperationClass, budget time.Duration, fn func(context.Context) error) error {
	opCtx, cancel := context.WithCancel(ctx)

	op := &activeOperation{
		id:      uuid.NewString(),
		class:   class,
		started: time.Now(),
		budget:  budget,
		cancel:  cancel,
	}
	m.mu.Lock()
	m.active[op.id] = op
	m.mu.Unlock()

	timer := time.NewTimer(budget)
	done := make(chan error, 1)
	go func() {
		done <- fn(opCtx)
	}()

	var err error
	timedOut := false
	select {
	case err = <-done:
		if adapter.IsTimeout(err) {
			timedOut = true
		}
	case <-timer.C:
		timedOut = true
		err = fmt.Errorf("%w: %s exceeded %s budget", adapter.ErrOperationTimeout, class, budget)
	case <-ctx.Done():
		err = ctx.Err()
		if adapter.IsTimeout(err) {
			timedOut = true
		}
	}
	timer.Stop()
	cancel()

	m.mu.Lock()
	delete(m.active, op.id)
	m.recordAttemptLocked(class, time.Since(op.started), timedOut)
	m.mu.Unlock()

	return err
}

// recordAttemptLocked updates the running statistics. Caller holds m.mu.
func (m *TimeoutManager) recordAttemptLocked(class OperationClass, latency time.Duration, timedOut bool) {
	cs, ok := m.stats[class]
	if !ok {
		cs = &ClassStats{}
		m.stats[class] = cs
	}

	cs.Attempts++
	m.totalAttempts++
	if timedOut {
		cs.Timeouts++
		m.totalTimeouts++
	}

	cs.totalLatency += latency
	cs.AvgLatency = cs.totalLatency / time.Duration(cs.Attempts)
	if cs.MinLatency == 0 || latency < cs.MinLatency {
		cs.MinLatency = latency
	}
	if latency > cs.MaxLatency {
		cs.MaxLatency = latency
	}
}

// CancelAllActiveOperations cancels every in-flight operation's context and
// empties the registry. Cancellation is cooperative; a native call that
// ignores its context keeps running orphaned.
func (m *TimeoutManager) CancelAllActiveOperations() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.active)
	for id, op := range m.active {
		op.cancel()
		delete(m.active, id)
	}
	if n > 0 {
		m.log.Info().Int("cancelled", n).Msg("cancelled active operations")
	}
	return n
}

// ActiveOperations returns a copy of the in-flight operation registry.
func (m *TimeoutManager) ActiveOperations() []ActiveOperation {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	out := make([]ActiveOperation, 0, len(m.active))
	for _, op := range m.active {
		out = append(out, ActiveOperation{
			ID:      op.id,
			Class:   op.class,
			Started: op.started,
			Budget:  op.budget,
			Elapsed: now.Sub(op.started),
		})
	}
	return out
}

// GenerateTimeoutReport returns a serializable snapshot of the statistics
// and the active-operation list.
func (m *TimeoutManager) GenerateTimeoutReport() TimeoutReport {
	m.mu.Lock()
	classes := make(map[OperationClass]*ClassStats, len(m.stats))
	for class, cs := range m.stats {
		copied := *cs
		classes[class] = &copied
	}
	totalAttempts := m.totalAttempts
	totalTimeouts := m.totalTimeouts
	m.mu.Unlock()

	report := TimeoutReport{
		GeneratedAt:   time.Now(),
		TotalAttempts: totalAttempts,
		TotalTimeouts: totalTimeouts,
		Classes:       classes,
		Active:        m.ActiveOperations(),
	}
	if totalAttempts > 0 {
		report.TimeoutRate = float64(totalTimeouts) / float64(totalAttempts)
	}
	return report
}

// PerformHealthCheck combines the statistics with a fresh connectivity
// probe. The result is unhealthy if the probe fails, the timeout rate
// exceeds its threshold, any in-flight operation exceeds the warning
// threshold, or any class's average latency exceeds the warning threshold.
func (m *TimeoutManager) PerformHealthCheck(ctx context.Context, probe func(context.Context) error) TimeoutHealth {
	report := m.GenerateTimeoutReport()
	health := TimeoutHealth{Healthy: true, Report: report}

	if probe != nil {
		if err := probe(ctx); err != nil {
			health.Healthy = false
			health.Reasons = append(health.Reasons, fmt.Sprintf("connectivity probe failed: %v", err))
		}
	}
	if report.TimeoutRate > m.opts.TimeoutRateThreshold {
		health.Healthy = false
		health.Reasons = append(health.Reasons,
			fmt.Sprintf("timeout rate %.2f exceeds threshold %.2f", report.TimeoutRate, m.opts.TimeoutRateThreshold))
	}
	for _, op := range report.Active {
		if op.Elapsed > m.opts.InFlightWarning {
			health.Healthy = false
			health.Reasons = append(health.Reasons,
				fmt.Sprintf("operation %s (%s) in flight for %s", op.ID, op.Class, op.Elapsed))
		}
	}
	for class, cs := range report.Classes {
		if cs.AvgLatency > m.opts.AvgLatencyWarning {
			health.Healthy = false
			health.Reasons = append(health.Reasons,
				fmt.Sprintf("%s average latency %s exceeds warning threshold", class, cs.AvgLatency))
		}
	}
	return health
}
