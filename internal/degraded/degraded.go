// Package degraded tracks the weather endpoint's windowed error rate and
// runs the recovery probe that clears degraded state once the upstream
// answers again.
package degraded

import (
	"time"

	"github.com/kjstillabower/weather-advisor-service/internal/traffic"
)

// RecordSuccess records a successful weather request.
func RecordSuccess() {
	traffic.RecordSuccess()
}

// RecordError records a failed weather request (upstream error, timeout, etc.).
func RecordError() {
	traffic.RecordError()
}

// ErrorRate returns (errorCount, totalCount) within the window.
func ErrorRate(window time.Duration) (errors, total int) {
	return traffic.ErrorRate(window)
}

// Reset clears all recorded data. For tests only.
func Reset() {
	traffic.Reset()
}
