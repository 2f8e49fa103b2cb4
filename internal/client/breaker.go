package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/weather-advisor-service/internal/models"
	"github.com/kjstillabower/weather-advisor-service/internal/observability"
)

// BreakerConfig holds circuit breaker parameters for the weather upstream.
type BreakerConfig struct {
	FailureThreshold uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// BreakerClient wraps a WeatherClient with a shared circuit breaker. All
// three endpoints hit the same provider, so one breaker guards them all.
// A city-not-found result is a normal outcome and does not count as failure.
type BreakerClient struct {
	cb      *gobreaker.CircuitBreaker
	wrapped WeatherClient
}

// NewBreakerClient creates a BreakerClient around wrapped.
func NewBreakerClient(cfg BreakerConfig, wrapped WeatherClient) *BreakerClient {
	settings := gobreaker.Settings{
		Name:        "weather_api",
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCityNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.BreakerStateGauge.WithLabelValues(name).Set(breakerStateValue(to))
		},
	}
	observability.BreakerStateGauge.WithLabelValues(settings.Name).Set(0)
	return &BreakerClient{
		cb:      gobreaker.NewCircuitBreaker(settings),
		wrapped: wrapped,
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// Geocode implements WeatherClient.
func (b *BreakerClient) Geocode(ctx context.Context, city string) (models.Location, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.wrapped.Geocode(ctx, city)
	})
	if err != nil {
		return models.Location{}, b.wrapErr(err)
	}
	loc, ok := result.(models.Location)
	if !ok {
		return models.Location{}, fmt.Errorf("weather_api returned unexpected result")
	}
	return loc, nil
}

// GetCurrent implements WeatherClient.
func (b *BreakerClient) GetCurrent(ctx context.Context, loc models.Location) (models.CurrentConditions, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.wrapped.GetCurrent(ctx, loc)
	})
	if err != nil {
		return models.CurrentConditions{}, b.wrapErr(err)
	}
	current, ok := result.(models.CurrentConditions)
	if !ok {
		return models.CurrentConditions{}, fmt.Errorf("weather_api returned unexpected result")
	}
	return current, nil
}

// GetForecast implements WeatherClient.
func (b *BreakerClient) GetForecast(ctx context.Context, loc models.Location) ([]ForecastEntry, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.wrapped.GetForecast(ctx, loc)
	})
	if err != nil {
		return nil, b.wrapErr(err)
	}
	entries, ok := result.([]ForecastEntry)
	if !ok {
		return nil, fmt.Errorf("weather_api returned unexpected result")
	}
	return entries, nil
}

// ValidateAPIKey bypasses the breaker: the health handler and the recovery
// probe must be able to test the upstream while the breaker is open.
func (b *BreakerClient) ValidateAPIKey(ctx context.Context) error {
	return b.wrapped.ValidateAPIKey(ctx)
}

// wrapErr maps an open-breaker rejection to the upstream failure taxonomy so
// callers see one error surface; all other errors pass through unchanged.
func (b *BreakerClient) wrapErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit breaker open", ErrUpstreamFailure)
	}
	return err
}
