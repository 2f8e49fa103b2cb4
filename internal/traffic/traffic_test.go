package traffic

import (
	"sync"
	"testing"
	"time"
)

// TestTracker_ErrorRate verifies error and total counts within the window.
func TestTracker_ErrorRate(t *testing.T) {
	var tr Tracker

	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordError()

	errs, total := tr.ErrorRate(time.Minute)
	if errs != 1 {
		t.Errorf("errors = %d, want 1", errs)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
}

// TestTracker_ErrorRate_Empty verifies an empty tracker reports zero without
// error.
func TestTracker_ErrorRate_Empty(t *testing.T) {
	var tr Tracker

	errs, total := tr.ErrorRate(time.Minute)
	if errs != 0 || total != 0 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 0)", errs, total)
	}
}

// TestTracker_WindowExcludesOldOutcomes verifies outcomes older than the
// queried window are not counted.
func TestTracker_WindowExcludesOldOutcomes(t *testing.T) {
	var tr Tracker

	tr.RecordError()
	time.Sleep(30 * time.Millisecond)
	tr.RecordSuccess()

	errs, total := tr.ErrorRate(20 * time.Millisecond)
	if errs != 0 {
		t.Errorf("errors = %d, want 0 (error outside window)", errs)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
}

// TestTracker_Reset verifies Reset clears all recorded outcomes.
func TestTracker_Reset(t *testing.T) {
	var tr Tracker

	tr.RecordSuccess()
	tr.RecordError()
	tr.Reset()

	errs, total := tr.ErrorRate(time.Minute)
	if errs != 0 || total != 0 {
		t.Errorf("ErrorRate() after Reset = (%d, %d), want (0, 0)", errs, total)
	}
}

// TestTracker_ConcurrentRecording verifies concurrent writers do not lose
// outcomes.
func TestTracker_ConcurrentRecording(t *testing.T) {
	var tr Tracker

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				tr.RecordSuccess()
			} else {
				tr.RecordError()
			}
		}(i)
	}
	wg.Wait()

	errs, total := tr.ErrorRate(time.Minute)
	if total != 50 {
		t.Errorf("total = %d, want 50", total)
	}
	if errs != 25 {
		t.Errorf("errors = %d, want 25", errs)
	}
}

// TestPackageLevelHelpers verifies the package-level funcs delegate to the
// default tracker.
func TestPackageLevelHelpers(t *testing.T) {
	Reset()
	defer Reset()

	RecordSuccess()
	RecordError()

	errs, total := ErrorRate(time.Minute)
	if errs != 1 || total != 2 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 2)", errs, total)
	}
}
