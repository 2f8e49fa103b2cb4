package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-advisor-service/internal/advice"
	"github.com/kjstillabower/weather-advisor-service/internal/client"
	"github.com/kjstillabower/weather-advisor-service/internal/degraded"
	"github.com/kjstillabower/weather-advisor-service/internal/lifecycle"
	"github.com/kjstillabower/weather-advisor-service/internal/models"
	"github.com/kjstillabower/weather-advisor-service/internal/service"
	"github.com/kjstillabower/weather-advisor-service/internal/validation"
)

// HealthConfig holds health evaluation thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	StartTime        time.Time
	// CachePing, when set, is called to check cache reachability. Used when
	// the backend is memcached or redis.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService   *service.WeatherService
	advisor          *advice.Generator
	client           client.WeatherClient
	healthConfig     *HealthConfig
	logger           *zap.Logger
	cityMinLength    int
	cityMaxLength    int
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	weatherService *service.WeatherService,
	advisor *advice.Generator,
	weatherClient client.WeatherClient,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	cityMinLength, cityMaxLength int,
) *Handler {
	return &Handler{
		weatherService: weatherService,
		advisor:        advisor,
		client:         weatherClient,
		healthConfig:   healthConfig,
		logger:         logger,
		cityMinLength:  cityMinLength,
		cityMaxLength:  cityMaxLength,
	}
}

// GetWeather handles GET /api/weather?city=<text>.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	city, err := validation.ValidateCity(r.URL.Query().Get("city"), h.cityMinLength, h.cityMaxLength)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.weatherService.GetWeather(r.Context(), city)
	if err != nil {
		if errors.Is(err, client.ErrCityNotFound) {
			degraded.RecordSuccess() // not-found is a resolved request, not an upstream fault
			writeError(w, http.StatusNotFound, "no match found for city "+strings.ToLower(city))
			return
		}
		degraded.RecordError()
		writeUpstreamError(w, r, err)
		return
	}
	degraded.RecordSuccess()
	writeJSON(w, http.StatusOK, result)
}

// adviceResponse is the /api/ai-advice body: tips both newline-joined and as
// a list, plus the tier that produced them.
type adviceResponse struct {
	Advice string   `json:"advice"`
	Tips   []string `json:"tips"`
	Source string   `json:"source"`
}

// PostAdvice handles POST /api/ai-advice. The body is a NormalizedWeather
// payload; decode failures degrade to an empty payload rather than a 4xx,
// so the generator's terminal fallback still yields usable advice. This
// endpoint never returns a non-success status.
func (h *Handler) PostAdvice(w http.ResponseWriter, r *http.Request) {
	var payload models.NormalizedWeather
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if logger := loggerFromRequest(r); logger != nil {
			logger.Debug("advice payload malformed, using empty payload", zap.Error(err))
		}
		payload = models.NormalizedWeather{}
	}

	result := h.advisor.Generate(r.Context(), payload)
	writeJSON(w, http.StatusOK, adviceResponse{
		Advice: strings.Join(result.Tips, "\n"),
		Tips:   result.Tips,
		Source: result.Source,
	})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["weatherApi"] = "unhealthy"
	} else {
		checks["weatherApi"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-advisor-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates health conditions in priority order:
// shutting-down > API key invalid > error-rate breach > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if err := h.client.ValidateAPIKey(ctx); err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errCount, total := degraded.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errCount) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				degraded.NotifyDegraded()
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error body: {"error": "<message>"}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeUpstreamError writes an opaque 500 for upstream failures. The
// underlying detail is logged, never leaked to the client.
func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, http.StatusInternalServerError, "unable to fetch weather data")
	if logger := loggerFromRequest(r); logger != nil {
		logger.Error("upstream error", zap.Error(err), zap.String("category", string(client.CategorizeError(err))))
	}
}

// loggerFromRequest extracts the request-scoped logger placed in context by
// CorrelationIDMiddleware. Returns nil when absent.
func loggerFromRequest(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok {
		return logger
	}
	return nil
}
