package models

// Location is a geocoded city. Immutable once resolved.
type Location struct {
	Name    string  `json:"name"`
	State   string  `json:"state,omitempty"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// CurrentConditions holds the instantaneous reading for a location.
// Numeric fields are pointers so that data absent upstream stays absent in
// our payload instead of collapsing to zero.
type CurrentConditions struct {
	Description string   `json:"description"`
	Temp        *float64 `json:"temp,omitempty"`
	FeelsLike   *float64 `json:"feels_like,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	WindSpeed   *float64 `json:"wind_speed,omitempty"`
	Clouds      *float64 `json:"clouds,omitempty"`
	ObservedAt  int64    `json:"observed_at,omitempty"`
}

// ForecastDay is one calendar day of the normalized forecast.
// Pop is the probability of precipitation in [0,1].
type ForecastDay struct {
	Day         string   `json:"day"`
	Temp        *float64 `json:"temp,omitempty"`
	Pop         float64  `json:"pop"`
	Description string   `json:"description"`
}

// NormalizedWeather is the canonical weather payload: the only artifact the
// cache stores and the only input the advice generator accepts. The forecast
// holds at most one entry per day, ascending, capped at five days.
type NormalizedWeather struct {
	Location Location          `json:"location"`
	Current  CurrentConditions `json:"current"`
	Forecast []ForecastDay     `json:"forecast"`
}

// AdviceResult is the outcome of advice generation: one to four short tips
// in fixed priority order. Source records which tier produced them
// ("model" or "rules").
type AdviceResult struct {
	Tips   []string `json:"tips"`
	Source string   `json:"source"`
}

// Float is a convenience constructor for optional numeric fields.
func Float(v float64) *float64 { return &v }
