package backup

import (
	"context"
	"time"

	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/internal/metrics"
	"github.com/OldStager01/farm-bi/internal/resilience"
)

// ResilientRequester retries a requester and stops calling it while its
// circuit is open.
type ResilientRequester struct {
	requester      Requester
	circuitBreaker *resilience.CircuitBreaker
	retryAttempts  int
	retryDelay     time.Duration
}

type ResilientRequesterConfig struct {
	Requester     Requester
	MaxFailures   int
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

func NewResilientRequester(cfg ResilientRequesterConfig) *ResilientRequester {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 1 * time.Second
	}

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:        "backup",
		MaxFailures: cfg.MaxFailures,
		Timeout:     cfg.Timeout,
		OnStateChange: func(name string, from, to resilience.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warnf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &ResilientRequester{
		requester:      cfg.Requester,
		circuitBreaker: cb,
		retryAttempts:  cfg.RetryAttempts,
		retryDelay:     cfg.RetryDelay,
	}
}

func (r *ResilientRequester) RequestBackup(ctx context.Context, req Request) error {
	return r.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, r.retryAttempts, r.retryDelay, func(attempt int) error {
			err := r.requester.RequestBackup(ctx, req)
			if err != nil {
				logger.WithField("period", req.Period).Warnf(
					"Backup attempt %d/%d failed: %v",
					attempt, r.retryAttempts, err,
				)
			}
			return err
		})
	})
}

func (r *ResilientRequester) CircuitState() resilience.State {
	return r.circuitBreaker.State()
}

func (r *ResilientRequester) ResetCircuit() {
	r.circuitBreaker.Reset()
}
