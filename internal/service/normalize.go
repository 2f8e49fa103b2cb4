package service

import (
	"strings"

	"github.com/kjstillabower/weather-advisor-service/internal/client"
	"github.com/kjstillabower/weather-advisor-service/internal/models"
)

// maxForecastDays caps the normalized forecast length. Fixed policy, not
// configurable.
const maxForecastDays = 5

// normalizeForecast reduces the upstream 3-hour series to at most one entry
// per calendar day. Entries arrive chronologically ordered, so keeping the
// first entry seen per date yields the earliest same-day reading and an
// ascending day sequence. Capped at maxForecastDays distinct days.
func normalizeForecast(entries []client.ForecastEntry) []models.ForecastDay {
	days := make([]models.ForecastDay, 0, maxForecastDays)
	seen := make(map[string]struct{}, maxForecastDays)

	for _, e := range entries {
		day := dayOf(e.DtTxt)
		if day == "" {
			continue
		}
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, models.ForecastDay{
			Day:         day,
			Temp:        e.Temp,
			Pop:         e.Pop,
			Description: e.Description,
		})
		if len(days) == maxForecastDays {
			break
		}
	}
	return days
}

// dayOf extracts the date portion of an upstream "YYYY-MM-DD HH:MM:SS"
// timestamp. Returns "" for malformed input.
func dayOf(dtTxt string) string {
	day, _, found := strings.Cut(dtTxt, " ")
	if !found || len(day) != len("2006-01-02") {
		return ""
	}
	return day
}
