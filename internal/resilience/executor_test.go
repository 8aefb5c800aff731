package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablelens/internal/domain"
)

func newTestExecutor(t *testing.T) (*Executor, *[]time.Duration) {
	t.Helper()
	exec := NewExecutor(RetryConfig{}, NewCircuitRegistry(0, 0), NewErrorLog(), nil, nil)
	var delays []time.Duration
	exec.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return exec, &delays
}

func testFaultContext() domain.FaultContext {
	return domain.FaultContext{
		Operation: "analyze_structure",
		TableID:   "tbl1",
		TableName: "Orders",
		Category:  domain.CategoryStructure,
	}
}

// === RetryConfig ===

func TestRetryDelayBackoff(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{}.withDefaults()

	assert.Equal(t, time.Second, cfg.Delay(1))
	assert.Equal(t, 2*time.Second, cfg.Delay(2))
	assert.Equal(t, 4*time.Second, cfg.Delay(3))
	assert.Equal(t, 16*time.Second, cfg.Delay(5))
	assert.Equal(t, 30*time.Second, cfg.Delay(6), "delay is capped at MaxDelay")
	assert.Equal(t, 30*time.Second, cfg.Delay(20))
}

// === ExecuteWithFallback ===

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	exec, delays := newTestExecutor(t)
	want := []domain.Finding{{IssueType: "missing_primary_field"}}

	result, err := exec.ExecuteWithFallback(context.Background(), func(context.Context) ([]domain.Finding, error) {
		return want, nil
	}, testFaultContext(), "simplified")

	require.NoError(t, err)
	assert.Equal(t, want, result.Findings)
	assert.False(t, result.FallbackUsed)
	assert.Empty(t, *delays)
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	exec, delays := newTestExecutor(t)
	calls := 0

	result, err := exec.ExecuteWithFallback(context.Background(), func(context.Context) ([]domain.Finding, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection reset")
		}
		return []domain.Finding{{IssueType: "ok"}}, nil
	}, testFaultContext(), "simplified")

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.False(t, result.FallbackUsed)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestExecuteExhaustsRetriesAndFallsBack(t *testing.T) {
	t.Parallel()

	exec, _ := newTestExecutor(t)
	calls := 0

	result, err := exec.ExecuteWithFallback(context.Background(), func(context.Context) ([]domain.Finding, error) {
		calls++
		return nil, errors.New("connection refused")
	}, testFaultContext(), "simplified")

	require.NoError(t, err, "simplified fallback absorbs the failure")
	assert.Equal(t, DefaultMaxAttempts, calls)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, "simplified", result.FallbackType)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "analysis_fallback", result.Findings[0].IssueType)
	assert.Equal(t, "Orders", result.Findings[0].TableName)
	require.NotNil(t, result.ErrorInfo)
	assert.Equal(t, domain.ErrorNetwork, result.ErrorInfo.Category)
}

func TestExecuteAuthErrorNotRetried(t *testing.T) {
	t.Parallel()

	exec, delays := newTestExecutor(t)
	calls := 0

	result, err := exec.ExecuteWithFallback(context.Background(), func(context.Context) ([]domain.Finding, error) {
		calls++
		return nil, errors.New("401 unauthorized")
	}, testFaultContext(), "simplified")

	require.NoError(t, err)
	assert.Equal(t, 1, calls, "authentication failures must not be retried")
	assert.Empty(t, *delays)
	assert.True(t, result.FallbackUsed)
}

func TestExecuteOpenCircuitSkipsOperation(t *testing.T) {
	t.Parallel()

	exec, _ := newTestExecutor(t)
	fctx := testFaultContext()
	for i := 0; i < DefaultFailureThreshold; i++ {
		exec.circuits.RecordFailure(fctx.Operation)
	}

	calls := 0
	result, err := exec.ExecuteWithFallback(context.Background(), func(context.Context) ([]domain.Finding, error) {
		calls++
		return nil, errors.New("should not run")
	}, fctx, "simplified")

	require.NoError(t, err)
	assert.Zero(t, calls, "open breaker must short-circuit the call")
	assert.True(t, result.FallbackUsed)
}

func TestExecuteSuccessClosesCircuit(t *testing.T) {
	t.Parallel()

	exec, _ := newTestExecutor(t)
	fctx := testFaultContext()
	exec.circuits.RecordFailure(fctx.Operation)
	exec.circuits.RecordFailure(fctx.Operation)

	_, err := exec.ExecuteWithFallback(context.Background(), func(context.Context) ([]domain.Finding, error) {
		return nil, nil
	}, fctx, "simplified")
	require.NoError(t, err)

	for _, snap := range exec.circuits.Snapshot() {
		if snap.Operation == fctx.Operation {
			assert.Zero(t, snap.FailureCount)
			assert.False(t, snap.Open)
		}
	}
}

func TestExecuteUnknownFallbackReturnsLastError(t *testing.T) {
	t.Parallel()

	exec, _ := newTestExecutor(t)
	opErr := errors.New("boom")

	result, err := exec.ExecuteWithFallback(context.Background(), func(context.Context) ([]domain.Finding, error) {
		return nil, opErr
	}, testFaultContext(), "no_such_strategy")

	assert.Nil(t, result)
	assert.Equal(t, opErr, err)
}

func TestExecuteRecordsErrors(t *testing.T) {
	t.Parallel()

	exec, _ := newTestExecutor(t)

	_, err := exec.ExecuteWithFallback(context.Background(), func(context.Context) ([]domain.Finding, error) {
		return nil, errors.New("request timed out")
	}, testFaultContext(), "simplified")
	require.NoError(t, err)

	summary := exec.Errors().Summary(exec.Circuits())
	assert.Equal(t, DefaultMaxAttempts, summary.TotalErrors)
	assert.Equal(t, DefaultMaxAttempts, summary.CategoryBreakdown[domain.ErrorTimeout])
}

func TestExecuteCancelledSleepAborts(t *testing.T) {
	t.Parallel()

	exec := NewExecutor(RetryConfig{}, NewCircuitRegistry(0, 0), NewErrorLog(), nil, nil)
	exec.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	calls := 0
	result, err := exec.ExecuteWithFallback(context.Background(), func(context.Context) ([]domain.Finding, error) {
		calls++
		return nil, errors.New("network glitch")
	}, testFaultContext(), "simplified")

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, result.FallbackUsed)
	require.NotNil(t, result.ErrorInfo)
	assert.Equal(t, context.Canceled.Error(), result.ErrorInfo.OriginalError)
}

func TestRegisterFallback(t *testing.T) {
	t.Parallel()

	exec, _ := newTestExecutor(t)
	exec.RegisterFallback(PartialFallback{})

	fctx := testFaultContext()
	fctx.PartialResponse = `[{"issue_type": "salvaged", "description": "partial"}]`

	result, err := exec.ExecuteWithFallback(context.Background(), func(context.Context) ([]domain.Finding, error) {
		return nil, errors.New("response truncated mid json")
	}, fctx, "partial")

	require.NoError(t, err)
	assert.Equal(t, "partial", result.FallbackType)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "salvaged", result.Findings[0].IssueType)
}
