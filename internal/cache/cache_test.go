package cache

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/weather-advisor-service/internal/models"
)

// TestInMemoryCache_GetSet verifies that Set stores values and Get retrieves
// them correctly with the expected data.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	val := models.NormalizedWeather{
		Location: models.Location{Name: "Seattle", Country: "US", Lat: 47.6, Lon: -122.3},
		Current:  models.CurrentConditions{Description: "light rain", Temp: models.Float(12.5)},
	}
	err := c.Set(ctx, "seattle", val, time.Minute)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "seattle")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Location.Name != val.Location.Name || got.Current.Description != val.Current.Description {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
	if got.Current.Temp == nil || *got.Current.Temp != 12.5 {
		t.Errorf("Get() Temp = %v, want 12.5", got.Current.Temp)
	}
}

// TestInMemoryCache_Get_Miss verifies that Get returns ok=false when
// the requested key does not exist in cache.
func TestInMemoryCache_Get_Miss(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	_, ok, err := c.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies that Get returns ok=false for expired
// entries and removes them from cache on access.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	val := models.NormalizedWeather{Location: models.Location{Name: "Seattle"}}
	err := c.Set(ctx, "seattle", val, 1*time.Millisecond)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	time.Sleep(2 * time.Millisecond)

	_, ok, err := c.Get(ctx, "seattle")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for expired entry")
	}

	// Expired entry should be removed
	_, ok2, _ := c.Get(ctx, "seattle")
	if ok2 {
		t.Error("Expired entry should be deleted from cache")
	}
}

// TestInMemoryCache_Set_Overwrite verifies that Set replaces an existing
// entry and resets its TTL.
func TestInMemoryCache_Set_Overwrite(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	first := models.NormalizedWeather{Current: models.CurrentConditions{Description: "clear sky"}}
	if err := c.Set(ctx, "lisbon", first, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	second := models.NormalizedWeather{Current: models.CurrentConditions{Description: "overcast clouds"}}
	if err := c.Set(ctx, "lisbon", second, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "lisbon")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Current.Description != "overcast clouds" {
		t.Errorf("Get() Description = %q, want %q", got.Current.Description, "overcast clouds")
	}
}
