package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-advisor-service/internal/models"
)

// inFlightFetch tracks a single upstream fetch that multiple callers may wait for.
type inFlightFetch struct {
	mu      sync.Mutex
	result  models.NormalizedWeather
	err     error
	done    bool
	waiters []chan struct{}
}

// requestCoalescer shares one upstream fetch among concurrent callers for the
// same city key. Prevents the cache stampede where several simultaneous
// misses each trigger the geocode + current + forecast round trip.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch
	timeout  time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightFetch),
		timeout:  timeout,
	}
}

// GetOrDo checks whether a fetch for key is already in flight. If yes, waits
// for its result and returns coalesced=true. If no, registers the fetch,
// executes fn, and shares the outcome with any waiters. Respects context
// cancellation and the coalescer timeout.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func() (models.NormalizedWeather, error)) (models.NormalizedWeather, bool, error) {
	rc.mu.Lock()
	req, exists := rc.inFlight[key]
	if exists {
		notify := make(chan struct{})
		req.mu.Lock()
		if req.done {
			result, err := req.result, req.err
			req.mu.Unlock()
			rc.mu.Unlock()
			return result, true, err
		}
		req.waiters = append(req.waiters, notify)
		req.mu.Unlock()
		rc.mu.Unlock()

		result, err := rc.wait(ctx, req, notify)
		return result, true, err
	}

	req = &inFlightFetch{
		waiters: make([]chan struct{}, 0),
	}
	rc.inFlight[key] = req
	rc.mu.Unlock()

	// Execute in a goroutine so the initiating caller can still time out
	// without abandoning waiters.
	go func() {
		result, err := fn()

		req.mu.Lock()
		req.result = result
		req.err = err
		req.done = true
		waiters := req.waiters
		req.waiters = nil
		req.mu.Unlock()

		for _, notify := range waiters {
			close(notify)
		}

		rc.cleanup(key)
	}()

	notify := make(chan struct{})
	req.mu.Lock()
	if req.done {
		result, err := req.result, req.err
		req.mu.Unlock()
		return result, false, err
	}
	req.waiters = append(req.waiters, notify)
	req.mu.Unlock()

	result, err := rc.wait(ctx, req, notify)
	return result, false, err
}

// wait blocks until notify closes, ctx is done, or the coalescer timeout
// elapses.
func (rc *requestCoalescer) wait(ctx context.Context, req *inFlightFetch, notify chan struct{}) (models.NormalizedWeather, error) {
	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-notify:
		req.mu.Lock()
		result, err := req.result, req.err
		req.mu.Unlock()
		return result, err
	case <-waitCtx.Done():
		return models.NormalizedWeather{}, waitCtx.Err()
	}
}

// cleanup removes the in-flight fetch for key. Called after the fetch completes.
func (rc *requestCoalescer) cleanup(key string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.inFlight, key)
}
