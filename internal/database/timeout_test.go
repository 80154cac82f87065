package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/officepass/officepass/internal/database/adapter"
)

func newTestManager(opts TimeoutOptions) *TimeoutManager {
	return NewTimeoutManager(opts, zerolog.Nop())
}

func TestExecuteWithTimeoutSuccess(t *testing.T) {
	m := newTestManager(TimeoutOptions{})

	var calls int32
	err := m.ExecuteWithTimeout(context.Background(), OpQuery, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	report := m.GenerateTimeoutReport()
	assert.Equal(t, int64(1), report.TotalAttempts)
	assert.Zero(t, report.TotalTimeouts)
	assert.Empty(t, report.Active)
}

func TestExecuteWithBudgetRetriesTimeouts(t *testing.T) {
	m := newTestManager(TimeoutOptions{
		MaxRetries:        3,
		BaseDelay:         5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	})

	var calls int32
	var mu sync.Mutex
	var starts []time.Time
	err := m.ExecuteWithBudget(context.Background(), OpQuery, 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.True(t, adapter.IsTimeout(err))
	assert.ErrorIs(t, err, adapter.ErrOperationTimeout)

	// One initial attempt plus maxRetries retries.
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))

	// Inter-attempt gaps grow strictly with the backoff multiplier.
	require.Len(t, starts, 4)
	gap1 := starts[1].Sub(starts[0])
	gap2 := starts[2].Sub(starts[1])
	gap3 := starts[3].Sub(starts[2])
	assert.Greater(t, gap2, gap1)
	assert.Greater(t, gap3, gap2)

	report := m.GenerateTimeoutReport()
	assert.Equal(t, int64(4), report.TotalAttempts)
	assert.Equal(t, int64(4), report.TotalTimeouts)
	assert.InDelta(t, 1.0, report.TimeoutRate, 1e-9)
}

func TestExecuteWithTimeoutNonTimeoutFailsImmediately(t *testing.T) {
	m := newTestManager(TimeoutOptions{MaxRetries: 3, BaseDelay: time.Millisecond})

	boom := errors.New("syntax error")
	var calls int32
	err := m.ExecuteWithTimeout(context.Background(), OpQuery, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Zero(t, m.GenerateTimeoutReport().TotalTimeouts)
}

func TestActiveOperationsRegistry(t *testing.T) {
	m := newTestManager(TimeoutOptions{MaxRetries: 1})

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.ExecuteWithBudget(context.Background(), OpBulk, time.Minute, func(ctx context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	ops := m.ActiveOperations()
	require.Len(t, ops, 1)
	assert.Equal(t, OpBulk, ops[0].Class)
	assert.Equal(t, time.Minute, ops[0].Budget)
	assert.NotEmpty(t, ops[0].ID)

	close(release)
	require.NoError(t, <-done)
	assert.Empty(t, m.ActiveOperations())
}

func TestCancelAllActiveOperations(t *testing.T) {
	m := newTestManager(TimeoutOptions{MaxRetries: 1})

	entered := make(chan struct{}, 2)
	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			done <- m.ExecuteWithBudget(context.Background(), OpQuery, time.Minute, func(ctx context.Context) error {
				entered <- struct{}{}
				<-ctx.Done()
				return ctx.Err()
			})
		}()
	}
	<-entered
	<-entered

	n := m.CancelAllActiveOperations()
	assert.Equal(t, 2, n)

	require.Error(t, <-done)
	require.Error(t, <-done)
	assert.Empty(t, m.ActiveOperations())
	assert.Zero(t, m.CancelAllActiveOperations())
}

func TestBudgetFallsBackToDefaults(t *testing.T) {
	m := newTestManager(TimeoutOptions{})

	assert.Equal(t, 10*time.Second, m.Budget(OpConnection))
	assert.Equal(t, 5*time.Second, m.Budget(OpQuery))
	assert.Equal(t, 5*time.Second, m.Budget(OperationClass("unknown")))

	// A partial budget map keeps its entries; everything else gets its
	// default rather than a zero budget.
	m = newTestManager(TimeoutOptions{
		Budgets: map[OperationClass]time.Duration{OpBulk: time.Second},
	})
	assert.Equal(t, time.Second, m.Budget(OpBulk))
	assert.Equal(t, 5*time.Second, m.Budget(OpQuery))
	assert.Equal(t, 10*time.Second, m.Budget(OpConnection))
	assert.Equal(t, 5*time.Second, m.Budget(OperationClass("unknown")))
}

func TestManagerRejectsNonGrowingMultiplier(t *testing.T) {
	def := DefaultTimeoutOptions()

	m := newTestManager(TimeoutOptions{BackoffMultiplier: 1.0})
	assert.Equal(t, def.BackoffMultiplier, m.opts.BackoffMultiplier)

	m = newTestManager(TimeoutOptions{BackoffMultiplier: 0.5})
	assert.Equal(t, def.BackoffMultiplier, m.opts.BackoffMultiplier)

	m = newTestManager(TimeoutOptions{BackoffMultiplier: 1.5})
	assert.Equal(t, 1.5, m.opts.BackoffMultiplier)
}

func TestGenerateTimeoutReportPerClassStats(t *testing.T) {
	m := newTestManager(TimeoutOptions{MaxRetries: 1})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.ExecuteWithTimeout(ctx, OpQuery, func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			return nil
		}))
	}
	require.NoError(t, m.ExecuteWithTimeout(ctx, OpTransaction, func(ctx context.Context) error { return nil }))

	report := m.GenerateTimeoutReport()
	require.Contains(t, report.Classes, OpQuery)
	require.Contains(t, report.Classes, OpTransaction)

	qs := report.Classes[OpQuery]
	assert.Equal(t, int64(3), qs.Attempts)
	assert.Greater(t, qs.AvgLatency, time.Duration(0))
	assert.LessOrEqual(t, qs.MinLatency, qs.AvgLatency)
	assert.LessOrEqual(t, qs.AvgLatency, qs.MaxLatency)
}

func TestPerformHealthCheck(t *testing.T) {
	m := newTestManager(TimeoutOptions{MaxRetries: 1, BaseDelay: time.Millisecond})
	ctx := context.Background()

	require.NoError(t, m.ExecuteWithTimeout(ctx, OpQuery, func(ctx context.Context) error { return nil }))

	health := m.PerformHealthCheck(ctx, func(ctx context.Context) error { return nil })
	assert.True(t, health.Healthy)
	assert.Empty(t, health.Reasons)

	health = m.PerformHealthCheck(ctx, func(ctx context.Context) error { return errors.New("down") })
	assert.False(t, health.Healthy)
	require.Len(t, health.Reasons, 1)
	assert.Contains(t, health.Reasons[0], "probe failed")
}

func TestPerformHealthCheckFlagsTimeoutRate(t *testing.T) {
	m := newTestManager(TimeoutOptions{
		MaxRetries:           1,
		BaseDelay:            time.Millisecond,
		TimeoutRateThreshold: 0.2,
	})
	ctx := context.Background()

	err := m.ExecuteWithBudget(ctx, OpQuery, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)

	health := m.PerformHealthCheck(ctx, nil)
	assert.False(t, health.Healthy)
	require.NotEmpty(t, health.Reasons)
	assert.Contains(t, health.Reasons[0], "timeout rate")
}
