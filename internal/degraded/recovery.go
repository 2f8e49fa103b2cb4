package degraded

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

var (
	recoveryChan   chan struct{}
	recoveryChanMu sync.Mutex
)

// ValidateFunc probes the upstream (API key check, optionally a test call).
// Returns nil once the upstream is back.
type ValidateFunc func(ctx context.Context) error

// NotifyDegraded signals that the service is degraded. Triggers recovery if
// not already running. Safe to call from handlers; non-blocking.
func NotifyDegraded() {
	recoveryChanMu.Lock()
	ch := recoveryChan
	recoveryChanMu.Unlock()
	if ch != nil {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// StartRecoveryListener starts a goroutine that runs recovery when
// NotifyDegraded is called. Call from main with the app context.
func StartRecoveryListener(ctx context.Context, validate ValidateFunc, initial, max time.Duration, onExhausted func()) {
	ch := make(chan struct{}, 1)
	recoveryChanMu.Lock()
	recoveryChan = ch
	recoveryChanMu.Unlock()

	var running atomic.Bool
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				if running.Swap(true) {
					continue
				}
				go func() {
					defer running.Store(false)
					RunRecovery(ctx, validate, initial, max, onExhausted)
				}()
			}
		}
	}()
}

// RunRecovery probes the upstream on a Fibonacci backoff clock derived from
// initial (e.g. 1m, 2m, 3m, 5m, 8m, 13m, capped at max). Stops and resets
// the degraded tracker when validate returns nil. Calls onExhausted when the
// final attempt still fails.
func RunRecovery(ctx context.Context, validate ValidateFunc, initial, max time.Duration, onExhausted func()) {
	if initial <= 0 || max < initial {
		return
	}
	delays := fibDelays(initial, max)
	const attemptTimeout = 10 * time.Second
	for i, d := range delays {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		err := validate(attemptCtx)
		cancel()
		if err == nil {
			Reset()
			return
		}
		if i == len(delays)-1 {
			onExhausted()
			return
		}
	}
}

func fibDelays(initial, max time.Duration) []time.Duration {
	a, b := 1.0, 2.0
	var out []time.Duration
	for {
		d := time.Duration(a * float64(initial))
		if d > max {
			break
		}
		out = append(out, d)
		a, b = b, a+b
	}
	return out
}
