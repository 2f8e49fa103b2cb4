package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kjstillabower/weather-advisor-service/internal/models"
)

type mockWeatherFetcher struct {
	mu      sync.Mutex
	weather models.NormalizedWeather
	err     error
	calls   []string
}

func (m *mockWeatherFetcher) GetWeather(ctx context.Context, city string) (models.NormalizedWeather, error) {
	m.mu.Lock()
	m.calls = append(m.calls, city)
	m.mu.Unlock()
	if m.err != nil {
		return models.NormalizedWeather{}, m.err
	}
	out := m.weather
	out.Location.Name = city
	return out, nil
}

func TestCacheWarmer_Warm_Success(t *testing.T) {
	fetcher := &mockWeatherFetcher{weather: models.NormalizedWeather{
		Current: models.CurrentConditions{Description: "clear sky", Temp: models.Float(10)},
	}}
	warmer := NewCacheWarmer(fetcher, nil)
	ctx := context.Background()

	err := warmer.Warm(ctx, []string{"seattle", "boston"})
	if err != nil {
		t.Fatalf("Warm() error = %v, want nil", err)
	}
	if len(fetcher.calls) != 2 {
		t.Errorf("fetcher called %d times, want 2", len(fetcher.calls))
	}
}

func TestCacheWarmer_Warm_EmptyCities(t *testing.T) {
	fetcher := &mockWeatherFetcher{}
	warmer := NewCacheWarmer(fetcher, nil)
	ctx := context.Background()

	err := warmer.Warm(ctx, nil)
	if err != nil {
		t.Fatalf("Warm() with nil cities error = %v, want nil", err)
	}
	err = warmer.Warm(ctx, []string{})
	if err != nil {
		t.Fatalf("Warm() with empty cities error = %v, want nil", err)
	}
}

func TestCacheWarmer_Warm_FetcherError(t *testing.T) {
	fetcher := &mockWeatherFetcher{err: errors.New("api down")}
	warmer := NewCacheWarmer(fetcher, nil)
	ctx := context.Background()

	err := warmer.Warm(ctx, []string{"seattle"})
	if err == nil {
		t.Fatal("Warm() error = nil, want non-nil")
	}
	if msg := err.Error(); msg == "" || (msg != "cache warming: [warm seattle: api down]" && len(msg) < 10) {
		t.Errorf("Warm() error = %q, want non-empty message containing failure", msg)
	}
}
