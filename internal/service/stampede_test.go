package service

import (
	"sync"
	"testing"
)

// TestStampedeTracker_CountsConcurrentMisses verifies the per-key miss count
// rises with unresolved misses and falls back as they resolve.
func TestStampedeTracker_CountsConcurrentMisses(t *testing.T) {
	st := newStampedeTracker()

	if got := st.RecordMiss("kyiv"); got != 1 {
		t.Errorf("first RecordMiss() = %d, want 1", got)
	}
	if got := st.RecordMiss("kyiv"); got != 2 {
		t.Errorf("second RecordMiss() = %d, want 2", got)
	}
	st.RecordHit("kyiv")
	if got := st.RecordMiss("kyiv"); got != 2 {
		t.Errorf("RecordMiss() after one hit = %d, want 2", got)
	}
}

// TestStampedeTracker_KeysIndependent verifies counts are tracked per key.
func TestStampedeTracker_KeysIndependent(t *testing.T) {
	st := newStampedeTracker()

	st.RecordMiss("kyiv")
	if got := st.RecordMiss("lisbon"); got != 1 {
		t.Errorf("RecordMiss(lisbon) = %d, want 1", got)
	}
}

// TestStampedeTracker_HitWithoutMiss verifies RecordHit on an unknown key is
// a no-op rather than producing a negative count.
func TestStampedeTracker_HitWithoutMiss(t *testing.T) {
	st := newStampedeTracker()

	st.RecordHit("kyiv")
	if got := st.RecordMiss("kyiv"); got != 1 {
		t.Errorf("RecordMiss() after stray hit = %d, want 1", got)
	}
}

// TestStampedeTracker_Concurrent verifies balanced miss/hit pairs under
// concurrency leave the tracker empty.
func TestStampedeTracker_Concurrent(t *testing.T) {
	st := newStampedeTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.RecordMiss("kyiv")
			st.RecordHit("kyiv")
		}()
	}
	wg.Wait()

	if got := st.RecordMiss("kyiv"); got != 1 {
		t.Errorf("RecordMiss() after balanced pairs = %d, want 1", got)
	}
}
