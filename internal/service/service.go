package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-advisor-service/internal/cache"
	"github.com/kjstillabower/weather-advisor-service/internal/client"
	"github.com/kjstillabower/weather-advisor-service/internal/models"
	"github.com/kjstillabower/weather-advisor-service/internal/observability"
)

// WeatherService turns a free-text city into a normalized weather payload:
// cache-aside lookup, geocode, concurrent current+forecast fetch, forecast
// normalization, cache fill.
type WeatherService struct {
	client          client.WeatherClient
	cache           cache.Cache
	ttl             time.Duration
	stampedeTracker *stampedeTracker
	coalescer       *requestCoalescer // nil when coalescing disabled
}

// NewWeatherService creates a WeatherService. ttl is the cache expiration for
// normalized payloads. coalesceTimeout > 0 enables request coalescing so
// concurrent misses for the same city share one upstream fetch.
func NewWeatherService(weatherClient client.WeatherClient, cacheSvc cache.Cache, ttl time.Duration, coalesceTimeout time.Duration) *WeatherService {
	var coalescer *requestCoalescer
	if coalesceTimeout > 0 {
		coalescer = newRequestCoalescer(coalesceTimeout)
	}
	return &WeatherService{
		client:          weatherClient,
		cache:           cacheSvc,
		ttl:             ttl,
		stampedeTracker: newStampedeTracker(),
		coalescer:       coalescer,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// GetWeather returns the normalized weather for city. The cache key is the
// lowercased, trimmed query, so "Kyiv" and "kyiv" share an entry. A hit
// returns the stored payload bit-identical to the first response; a miss
// geocodes, fetches current conditions and forecast concurrently (both must
// succeed), normalizes, and fills the cache.
func (s *WeatherService) GetWeather(ctx context.Context, city string) (models.NormalizedWeather, error) {
	key := normalizeCity(city)
	start := time.Now()
	logger := loggerFromContext(ctx)

	observability.RecordWeatherQuery(key)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues("weather").Inc()
		if logger != nil {
			logger.Debug("cache hit", zap.String("city", key))
			logger.Debug("weather served", zap.String("city", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		}
		return cached, nil
	}

	concurrentMisses := s.stampedeTracker.RecordMiss(key)
	defer s.stampedeTracker.RecordHit(key)

	if logger != nil {
		logger.Debug("cache miss, fetching upstream", zap.String("city", key), zap.Int("concurrent_misses", concurrentMisses))
	}

	var data models.NormalizedWeather
	var upstreamErr error
	if s.coalescer != nil {
		var coalesced bool
		data, coalesced, upstreamErr = s.coalescer.GetOrDo(ctx, key, func() (models.NormalizedWeather, error) {
			return s.fetchAndNormalize(ctx, key)
		})
		if coalesced {
			observability.CoalescedFetchesTotal.WithLabelValues(observability.MetricCityLabel(key)).Inc()
		}
	} else {
		data, upstreamErr = s.fetchAndNormalize(ctx, key)
	}
	if upstreamErr != nil {
		return models.NormalizedWeather{}, fmt.Errorf("fetch weather for %s: %w", key, upstreamErr)
	}

	if setErr := s.cache.Set(ctx, key, data, s.ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
		if logger != nil {
			logger.Warn("cache set failed", zap.String("city", key), zap.Error(setErr))
		}
	}
	if logger != nil {
		logger.Debug("weather served", zap.String("city", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	}
	return data, nil
}

// fetchAndNormalize geocodes the city, then issues the current-conditions and
// forecast calls in parallel and joins. Both calls must succeed; there is no
// partial result.
func (s *WeatherService) fetchAndNormalize(ctx context.Context, city string) (models.NormalizedWeather, error) {
	loc, err := s.client.Geocode(ctx, city)
	if err != nil {
		return models.NormalizedWeather{}, err
	}

	var (
		wg          sync.WaitGroup
		current     models.CurrentConditions
		currentErr  error
		entries     []client.ForecastEntry
		forecastErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		current, currentErr = s.client.GetCurrent(ctx, loc)
	}()
	go func() {
		defer wg.Done()
		entries, forecastErr = s.client.GetForecast(ctx, loc)
	}()
	wg.Wait()

	if currentErr != nil {
		return models.NormalizedWeather{}, fmt.Errorf("current conditions: %w", currentErr)
	}
	if forecastErr != nil {
		return models.NormalizedWeather{}, fmt.Errorf("forecast: %w", forecastErr)
	}

	return models.NormalizedWeather{
		Location: loc,
		Current:  current,
		Forecast: normalizeForecast(entries),
	}, nil
}

// categorizeCacheError returns a stable label for cache error metrics.
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}

// normalizeCity normalizes city strings by trimming whitespace and lowering
// case. Used for cache keys and coalescing so lookups are case-insensitive.
func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
