//go:build integration
// +build integration

package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-advisor-service/internal/advice"
	"github.com/kjstillabower/weather-advisor-service/internal/cache"
	"github.com/kjstillabower/weather-advisor-service/internal/client"
	"github.com/kjstillabower/weather-advisor-service/internal/models"
	"github.com/kjstillabower/weather-advisor-service/internal/service"
)

// fakeUpstream serves minimal OpenWeather-shaped responses for all three
// endpoints from one test server.
func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/geo"):
			if r.URL.Query().Get("q") == "atlantis" {
				w.Write([]byte(`[]`))
				return
			}
			w.Write([]byte(`[{"name":"Kyiv","lat":50.4501,"lon":30.5234,"country":"UA"}]`))
		case strings.Contains(r.URL.Path, "/forecast"):
			w.Write([]byte(`{"list":[
				{"dt_txt":"2026-09-01 00:00:00","main":{"temp":13.5},"pop":0.6,"weather":[{"description":"light rain"}]},
				{"dt_txt":"2026-09-02 00:00:00","main":{"temp":17.0},"pop":0.1,"weather":[{"description":"clear sky"}]}
			]}`))
		default:
			w.Write([]byte(`{
				"weather":[{"description":"light rain"}],
				"main":{"temp":14.2,"feels_like":13.1,"humidity":72},
				"wind":{"speed":4.6},
				"dt":1756650000
			}`))
		}
	}))
}

// setupRouter assembles the full request path the way main does: middleware,
// real client against the fake upstream, real service and cache.
func setupRouter(t *testing.T, upstream *httptest.Server) *mux.Router {
	t.Helper()

	weatherClient, err := client.NewOpenWeatherClientWithRetry(
		"integration-test-key-123",
		upstream.URL+"/geo/1.0/direct",
		upstream.URL+"/data/2.5/weather",
		upstream.URL+"/data/2.5/forecast",
		2*time.Second, 2, time.Millisecond, 10*time.Millisecond,
	)
	if err != nil {
		t.Fatalf("NewOpenWeatherClientWithRetry() error = %v", err)
	}

	svc := service.NewWeatherService(weatherClient, cache.NewInMemoryCache(), 5*time.Minute, 2*time.Second)
	advisor := advice.NewGenerator(nil, false, zap.NewNop())
	healthCfg := &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50, StartTime: time.Now()}
	h := NewHandler(svc, advisor, weatherClient, healthCfg, zap.NewNop(), 1, 100)

	r := mux.NewRouter()
	r.Use(CorrelationIDMiddleware(zap.NewNop()))
	r.Use(MetricsMiddleware)
	r.HandleFunc("/health", h.GetHealth).Methods("GET")
	api := r.PathPrefix("/api").Subrouter()
	api.Use(TimeoutMiddleware(5 * time.Second))
	api.HandleFunc("/weather", h.GetWeather).Methods("GET")
	api.HandleFunc("/ai-advice", h.PostAdvice).Methods("POST")
	return r
}

// TestIntegration_WeatherRoundTrip verifies the full path from router to fake
// upstream and back, including the normalized forecast shape.
func TestIntegration_WeatherRoundTrip(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	router := setupRouter(t, upstream)

	req := httptest.NewRequest("GET", "/api/weather?city=Kyiv", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got models.NormalizedWeather
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Location.Name != "Kyiv" || len(got.Forecast) != 2 {
		t.Errorf("payload = %+v", got)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("missing X-Correlation-ID response header")
	}
}

// TestIntegration_NotFoundAndAdvice verifies the 404 path and that the advice
// endpoint accepts a previously fetched payload.
func TestIntegration_NotFoundAndAdvice(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	router := setupRouter(t, upstream)

	req := httptest.NewRequest("GET", "/api/weather?city=atlantis", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	payload := `{"current":{"description":"light rain","temp":14.2,"humidity":72}}`
	req = httptest.NewRequest("POST", "/api/ai-advice", strings.NewReader(payload))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("advice status = %d, want 200", rec.Code)
	}
	var resp adviceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode advice: %v", err)
	}
	if resp.Advice == "" {
		t.Error("advice is empty")
	}
}
