package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-advisor-service/internal/models"
)

// TestRequestCoalescer_SharesSingleFetch verifies concurrent GetOrDo calls for
// one key execute fn once and all receive the same result.
func TestRequestCoalescer_SharesSingleFetch(t *testing.T) {
	rc := newRequestCoalescer(2 * time.Second)
	var executions int32
	release := make(chan struct{})

	fn := func() (models.NormalizedWeather, error) {
		atomic.AddInt32(&executions, 1)
		<-release
		return models.NormalizedWeather{Location: models.Location{Name: "Kyiv"}}, nil
	}

	const n = 5
	var wg sync.WaitGroup
	results := make([]models.NormalizedWeather, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = rc.GetOrDo(context.Background(), "kyiv", fn)
		}(i)
	}

	// Give all goroutines time to register before releasing the fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&executions); got != 1 {
		t.Errorf("fn executed %d times, want 1", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Errorf("goroutine %d: error = %v", i, errs[i])
		}
		if results[i].Location.Name != "Kyiv" {
			t.Errorf("goroutine %d: result = %+v, want shared payload", i, results[i])
		}
	}
}

// TestRequestCoalescer_SharesError verifies a failed fetch propagates its
// error to every waiter.
func TestRequestCoalescer_SharesError(t *testing.T) {
	rc := newRequestCoalescer(2 * time.Second)
	wantErr := errors.New("upstream down")
	release := make(chan struct{})

	fn := func() (models.NormalizedWeather, error) {
		<-release
		return models.NormalizedWeather{}, wantErr
	}

	const n = 3
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = rc.GetOrDo(context.Background(), "kyiv", fn)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		if !errors.Is(errs[i], wantErr) {
			t.Errorf("goroutine %d: error = %v, want shared upstream error", i, errs[i])
		}
	}
}

// TestRequestCoalescer_DistinctKeysIndependent verifies different keys do not
// coalesce with each other.
func TestRequestCoalescer_DistinctKeysIndependent(t *testing.T) {
	rc := newRequestCoalescer(2 * time.Second)
	var executions int32

	fn := func() (models.NormalizedWeather, error) {
		atomic.AddInt32(&executions, 1)
		return models.NormalizedWeather{}, nil
	}

	if _, _, err := rc.GetOrDo(context.Background(), "kyiv", fn); err != nil {
		t.Fatalf("GetOrDo(kyiv) error = %v", err)
	}
	if _, _, err := rc.GetOrDo(context.Background(), "lisbon", fn); err != nil {
		t.Fatalf("GetOrDo(lisbon) error = %v", err)
	}

	if got := atomic.LoadInt32(&executions); got != 2 {
		t.Errorf("fn executed %d times, want 2 for distinct keys", got)
	}
}

// TestRequestCoalescer_CallerTimeout verifies a caller that hits the
// coalescer timeout gets a deadline error instead of blocking forever.
func TestRequestCoalescer_CallerTimeout(t *testing.T) {
	rc := newRequestCoalescer(20 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)

	fn := func() (models.NormalizedWeather, error) {
		<-release
		return models.NormalizedWeather{}, nil
	}

	_, _, err := rc.GetOrDo(context.Background(), "kyiv", fn)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

// TestRequestCoalescer_ContextCancellation verifies waiter cancellation is
// honored while the fetch is still in flight.
func TestRequestCoalescer_ContextCancellation(t *testing.T) {
	rc := newRequestCoalescer(time.Minute)
	release := make(chan struct{})
	defer close(release)

	fn := func() (models.NormalizedWeather, error) {
		<-release
		return models.NormalizedWeather{}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := rc.GetOrDo(ctx, "kyiv", fn)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("GetOrDo did not return after cancellation")
	}
}

// TestRequestCoalescer_CleansUpBetweenRounds verifies a second round after
// the first completes executes fn again.
func TestRequestCoalescer_CleansUpBetweenRounds(t *testing.T) {
	rc := newRequestCoalescer(2 * time.Second)
	var executions int32

	fn := func() (models.NormalizedWeather, error) {
		atomic.AddInt32(&executions, 1)
		return models.NormalizedWeather{}, nil
	}

	for round := 0; round < 2; round++ {
		if _, _, err := rc.GetOrDo(context.Background(), "kyiv", fn); err != nil {
			t.Fatalf("round %d: GetOrDo() error = %v", round, err)
		}
		// Wait for the async cleanup of the completed fetch.
		time.Sleep(10 * time.Millisecond)
	}

	if got := atomic.LoadInt32(&executions); got != 2 {
		t.Errorf("fn executed %d times, want 2 across rounds", got)
	}
}
