package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/weather-advisor-service/internal/models"
	"github.com/kjstillabower/weather-advisor-service/internal/observability"
)

// WeatherClient is the upstream weather provider surface: free-text geocoding
// plus coordinate-keyed current conditions and 3-hour forecast series.
type WeatherClient interface {
	Geocode(ctx context.Context, city string) (models.Location, error)
	GetCurrent(ctx context.Context, loc models.Location) (models.CurrentConditions, error)
	GetForecast(ctx context.Context, loc models.Location) ([]ForecastEntry, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrCityNotFound    = errors.New("city not found")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
)

// ForecastEntry is one raw 3-hour upstream forecast interval. DtTxt carries
// the upstream timestamp string "YYYY-MM-DD HH:MM:SS"; the service layer
// groups entries by its date prefix.
type ForecastEntry struct {
	DtTxt       string
	Temp        *float64
	Pop         float64
	Description string
}

// OpenWeatherClient calls the OpenWeather geocoding, current-conditions and
// 5-day/3-hour forecast endpoints with retry and exponential backoff.
type OpenWeatherClient struct {
	apiKey         string
	geoURL         string
	currentURL     string
	forecastURL    string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// NewOpenWeatherClient creates a client with default retry policy.
func NewOpenWeatherClient(apiKey, geoURL, currentURL, forecastURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	return NewOpenWeatherClientWithRetry(apiKey, geoURL, currentURL, forecastURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

// NewOpenWeatherClientWithRetry creates a client with an explicit retry policy.
func NewOpenWeatherClientWithRetry(apiKey, geoURL, currentURL, forecastURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}

	return &OpenWeatherClient{
		apiKey:         apiKey,
		geoURL:         geoURL,
		currentURL:     currentURL,
		forecastURL:    forecastURL,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type geocodeMatch struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state"`
}

type currentResponse struct {
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Humidity  *float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Clouds struct {
		All *float64 `json:"all"`
	} `json:"clouds"`
	Dt int64 `json:"dt"`
}

type forecastResponse struct {
	List []struct {
		DtTxt string `json:"dt_txt"`
		Main  struct {
			Temp *float64 `json:"temp"`
		} `json:"main"`
		Pop     float64 `json:"pop"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"list"`
}

// Geocode resolves a free-text city to coordinates and a canonical name.
// Returns ErrCityNotFound when the upstream match list is empty.
func (c *OpenWeatherClient) Geocode(ctx context.Context, city string) (models.Location, error) {
	params := url.Values{}
	params.Set("q", city)
	params.Set("limit", "1")

	var matches []geocodeMatch
	if err := c.callWithRetry(ctx, "geocode", c.geoURL, params, &matches); err != nil {
		return models.Location{}, err
	}
	if len(matches) == 0 {
		return models.Location{}, fmt.Errorf("%w: %q", ErrCityNotFound, city)
	}

	m := matches[0]
	return models.Location{
		Name:    m.Name,
		State:   m.State, // empty when upstream omits it
		Country: m.Country,
		Lat:     m.Lat,
		Lon:     m.Lon,
	}, nil
}

// GetCurrent fetches the instantaneous reading for the given coordinates in
// metric units. Missing nested fields map to nil/empty, never an error.
func (c *OpenWeatherClient) GetCurrent(ctx context.Context, loc models.Location) (models.CurrentConditions, error) {
	var resp currentResponse
	if err := c.callWithRetry(ctx, "current", c.currentURL, coordParams(loc), &resp); err != nil {
		return models.CurrentConditions{}, err
	}

	description := ""
	if len(resp.Weather) > 0 {
		description = resp.Weather[0].Description
		if description == "" {
			description = resp.Weather[0].Main
		}
	}
	return models.CurrentConditions{
		Description: description,
		Temp:        resp.Main.Temp,
		FeelsLike:   resp.Main.FeelsLike,
		Humidity:    resp.Main.Humidity,
		WindSpeed:   resp.Wind.Speed,
		Clouds:      resp.Clouds.All,
		ObservedAt:  resp.Dt,
	}, nil
}

// GetForecast fetches the 5-day/3-hour forecast series for the given
// coordinates in metric units, preserving upstream order.
func (c *OpenWeatherClient) GetForecast(ctx context.Context, loc models.Location) ([]ForecastEntry, error) {
	var resp forecastResponse
	if err := c.callWithRetry(ctx, "forecast", c.forecastURL, coordParams(loc), &resp); err != nil {
		return nil, err
	}

	entries := make([]ForecastEntry, 0, len(resp.List))
	for _, item := range resp.List {
		description := ""
		if len(item.Weather) > 0 {
			description = item.Weather[0].Description
		}
		entries = append(entries, ForecastEntry{
			DtTxt:       item.DtTxt,
			Temp:        item.Main.Temp,
			Pop:         item.Pop,
			Description: description,
		})
	}
	return entries, nil
}

func coordParams(loc models.Location) url.Values {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	params.Set("units", "metric")
	return params
}

// callWithRetry runs callAPI with the configured retry policy. Non-retryable
// errors (404, bad key) return immediately.
func (c *OpenWeatherClient) callWithRetry(ctx context.Context, endpoint, apiURL string, params url.Values, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.callAPI(ctx, endpoint, apiURL, params, out)
		if err == nil {
			return nil
		}

		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, endpoint, apiURL string, params url.Values, out interface{}) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, apiURL, params)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	return CategorizeError(err) == ErrorCategoryTimeout
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, apiURL string, params url.Values) (*http.Request, error) {
	baseURL, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params.Set("appid", c.apiKey)
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: unauthorized", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrCityNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func extractCorrelationID(ctx context.Context) string {
	if v := ctx.Value("correlation_id"); v != nil {
		if corrID, ok := v.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey issues a cheap geocode call to verify the configured key.
// Used by the health handler and the degraded-recovery probe.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	params := url.Values{}
	params.Set("q", "London")
	params.Set("limit", "1")
	req, err := c.buildRequest(ctx, c.geoURL, params)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}
	return nil
}
