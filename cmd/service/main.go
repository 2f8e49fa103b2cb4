package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-advisor-service/internal/advice"
	"github.com/kjstillabower/weather-advisor-service/internal/cache"
	"github.com/kjstillabower/weather-advisor-service/internal/client"
	"github.com/kjstillabower/weather-advisor-service/internal/config"
	"github.com/kjstillabower/weather-advisor-service/internal/degraded"
	httphandler "github.com/kjstillabower/weather-advisor-service/internal/http"
	"github.com/kjstillabower/weather-advisor-service/internal/lifecycle"
	"github.com/kjstillabower/weather-advisor-service/internal/observability"
	"github.com/kjstillabower/weather-advisor-service/internal/service"
)

// pinger is implemented by cache backends that can report reachability.
type pinger interface {
	Ping() error
	Close() error
}

func main() {
	_ = godotenv.Load()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	baseClient, err := client.NewOpenWeatherClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.GeoAPIURL,
		cfg.CurrentAPIURL,
		cfg.ForecastAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	weatherClient := client.NewBreakerClient(client.BreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Interval:         cfg.BreakerInterval,
		Timeout:          cfg.BreakerTimeout,
	}, baseClient)

	var cacheSvc cache.Cache
	var cacheCloser pinger
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		cacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "redis":
		rc, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal("redis cache", zap.Error(err))
		}
		cacheCloser = rc
		cacheSvc = rc
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr))
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	weatherService := service.NewWeatherService(weatherClient, cacheSvc, cfg.CacheTTL, cfg.WeatherAPITimeout*2)

	var completion advice.CompletionClient
	if cfg.TextGenAPIKey != "" {
		tg, err := advice.NewTextGenClient(cfg.TextGenAPIKey, cfg.TextGenAPIURL, cfg.TextGenModel, cfg.TextGenTimeout)
		if err != nil {
			logger.Fatal("text generation client", zap.Error(err))
		}
		completion = advice.NewBreakerCompletion(advice.BreakerConfig{
			FailureThreshold: cfg.BreakerFailureThreshold,
			Interval:         cfg.BreakerInterval,
			Timeout:          cfg.BreakerTimeout,
		}, tg)
		logger.Info("text generation enabled", zap.String("model", cfg.TextGenModel), zap.Bool("offline_advice", cfg.OfflineAdvice))
	} else {
		logger.Info("no text generation credential; advice uses rule engine")
	}
	advisor := advice.NewGenerator(completion, cfg.OfflineAdvice, logger)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		StartTime:        time.Now(),
	}
	if cacheCloser != nil {
		healthConfig.CachePing = cacheCloser.Ping
	}

	handler := httphandler.NewHandler(weatherService, advisor, weatherClient, healthConfig, logger, cfg.CityMinLength, cfg.CityMaxLength)

	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	degraded.StartRecoveryListener(appCtx, weatherClient.ValidateAPIKey, cfg.DegradedRetryInitial, cfg.DegradedRetryMax, func() {
		logger.Error("upstream recovery exhausted; flagging shutdown")
		lifecycle.SetShuttingDown(true)
	})

	if cfg.WarmCache && len(cfg.TrackedCities) > 0 {
		warmer := cache.NewCacheWarmer(weatherService, logger)
		warmCtx, warmCancel := context.WithTimeout(appCtx, 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.TrackedCities); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(appCtx, cfg.TrackedCities, cfg.WarmInterval); err != nil && err != context.Canceled {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	apiRouter.HandleFunc("/weather", handler.GetWeather).Methods("GET")
	apiRouter.HandleFunc("/ai-advice", handler.PostAdvice).Methods("POST")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	appCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	observability.RecordShutdownInFlight(inFlight)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if cacheCloser != nil {
		if err := cacheCloser.Close(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
