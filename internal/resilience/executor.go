package resilience

import (
	"context"
	"io"
	"log/slog"
	"math"
	"time"

	"tablelens/internal/domain"
)

// Retry defaults.
const (
	DefaultMaxAttempts       = 3
	DefaultBaseDelay         = time.Second
	DefaultMaxDelay          = 30 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// Operation is the unit of work the executor guards: one provider-backed
// analysis call producing findings.
type Operation func(ctx context.Context) ([]domain.Finding, error)

// RetryConfig controls the executor's backoff loop.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = DefaultBackoffMultiplier
	}
	return c
}

// Delay returns the backoff before retrying after the given 1-based attempt,
// capped at MaxDelay.
func (c RetryConfig) Delay(attempt int) time.Duration {
	d := time.Duration(float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt-1)))
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// Executor runs operations under retry, circuit-breaking, and fallback.
// Construct one at startup and share it; circuit state is per operation
// name across all callers.
type Executor struct {
	circuits  *CircuitRegistry
	errorLog  *ErrorLog
	retry     RetryConfig
	fallbacks map[string]FallbackStrategy
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewExecutor wires an executor with the standard fallback strategies.
// cache may be nil, in which case the cached strategy always degrades to
// simplified.
func NewExecutor(retry RetryConfig, circuits *CircuitRegistry, errorLog *ErrorLog, cache domain.AnalysisCacheRepository, logger *slog.Logger) *Executor {
	if circuits == nil {
		circuits = NewCircuitRegistry(0, 0)
	}
	if errorLog == nil {
		errorLog = NewErrorLog()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Executor{
		circuits: circuits,
		errorLog: errorLog,
		retry:    retry.withDefaults(),
		logger:   logger,
		sleep:    sleepCtx,
	}
	e.fallbacks = map[string]FallbackStrategy{
		"simplified": SimplifiedFallback{},
		"cached":     CachedFallback{Cache: cache, Logger: logger},
		"partial":    PartialFallback{Logger: logger},
	}
	return e
}

// Circuits exposes the registry for observability endpoints.
func (e *Executor) Circuits() *CircuitRegistry { return e.circuits }

// Errors exposes the error log for observability endpoints.
func (e *Executor) Errors() *ErrorLog { return e.errorLog }

// ExecuteWithFallback runs op under the retry policy. Every failure is
// classified and recorded; once attempts are exhausted (or the circuit is
// open, or the error is non-retryable) the named fallback strategy runs.
// A fallback failure degrades to the simplified strategy, which never
// fails, so the returned error is non-nil only for an unknown strategy name.
func (e *Executor) ExecuteWithFallback(ctx context.Context, op Operation, fctx domain.FaultContext, fallback string) (*Result, error) {
	if fctx.MaxAttempts <= 0 {
		fctx.MaxAttempts = e.retry.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= fctx.MaxAttempts; attempt++ {
		fctx.Attempt = attempt

		if !e.circuits.Allow(fctx.Operation) {
			e.logger.Warn("circuit breaker open", "operation", fctx.Operation)
			break
		}

		findings, err := op(ctx)
		if err == nil {
			e.circuits.RecordSuccess(fctx.Operation)
			return &Result{Findings: findings}, nil
		}
		lastErr = err

		e.errorLog.Record(err, fctx)
		category := Classify(err)

		if Retryable(category) && attempt < fctx.MaxAttempts {
			delay := e.retry.Delay(attempt)
			e.logger.Warn("attempt failed, retrying",
				"operation", fctx.Operation,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
			if serr := e.sleep(ctx, delay); serr != nil {
				lastErr = serr
				break
			}
			continue
		}

		e.circuits.RecordFailure(fctx.Operation)
		break
	}

	e.logger.Error("all attempts failed, using fallback",
		"operation", fctx.Operation,
		"fallback", fallback,
		"error", lastErr,
	)

	strategy, ok := e.fallbacks[fallback]
	if !ok {
		e.logger.Error("unknown fallback strategy", "fallback", fallback)
		return nil, lastErr
	}
	result, err := strategy.Execute(ctx, fctx, lastErr)
	if err != nil {
		e.logger.Error("fallback strategy failed", "fallback", fallback, "error", err)
		return SimplifiedFallback{}.Execute(ctx, fctx, lastErr)
	}
	return result, nil
}

// RegisterFallback adds or replaces a named strategy.
func (e *Executor) RegisterFallback(s FallbackStrategy) {
	e.fallbacks[s.Name()] = s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
