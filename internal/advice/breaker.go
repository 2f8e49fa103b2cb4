package advice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/weather-advisor-service/internal/observability"
)

// BreakerConfig holds circuit breaker parameters for the completion upstream.
type BreakerConfig struct {
	FailureThreshold uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// BreakerCompletion wraps a CompletionClient with a circuit breaker. An
// empty completion is a content problem, not an upstream fault, so it does
// not count toward tripping.
type BreakerCompletion struct {
	cb      *gobreaker.CircuitBreaker
	wrapped CompletionClient
}

// NewBreakerCompletion creates a BreakerCompletion around wrapped.
func NewBreakerCompletion(cfg BreakerConfig, wrapped CompletionClient) *BreakerCompletion {
	settings := gobreaker.Settings{
		Name:        "text_gen",
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrEmptyCompletion)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			observability.BreakerStateGauge.WithLabelValues(name).Set(v)
		},
	}
	observability.BreakerStateGauge.WithLabelValues(settings.Name).Set(0)
	return &BreakerCompletion{
		cb:      gobreaker.NewCircuitBreaker(settings),
		wrapped: wrapped,
	}
}

// Complete implements CompletionClient.
func (b *BreakerCompletion) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.wrapped.Complete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: circuit breaker open", ErrBadStatus)
		}
		return "", err
	}
	text, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("text_gen returned unexpected result")
	}
	return text, nil
}
