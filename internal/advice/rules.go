package advice

import (
	"math"
	"strings"

	"github.com/kjstillabower/weather-advisor-service/internal/models"
)

// maxTips caps the advice result length. Fixed policy, not configurable.
const maxTips = 4

// Threshold constants for the rule engine, metric units.
const (
	heatTempC      = 32
	heatFeelsC     = 34
	coolTempC      = 15
	humidHumidity  = 70
	windySpeedMS   = 8
	rainChancePct  = 40
)

const genericTip = "Conditions look uneventful - plan with basic precautions."

// ruleTips evaluates the deterministic decision table over the current
// conditions and the first forecast day. Conditions are checked in fixed
// priority order and the result is truncated to maxTips; the temperature
// branch is mutually exclusive and fires only when temp is present.
func ruleTips(w models.NormalizedWeather) []string {
	var tips []string
	c := w.Current
	desc := strings.ToLower(c.Description)

	if c.Temp != nil {
		temp := *c.Temp
		feels := temp
		if c.FeelsLike != nil {
			feels = *c.FeelsLike
		}
		switch {
		case temp >= heatTempC || feels >= heatFeelsC:
			tips = append(tips, "It's hot out - drink plenty of water and avoid strenuous activity around midday.")
		case temp <= coolTempC:
			tips = append(tips, "On the cool side - dress in layers and keep a jacket handy.")
		default:
			tips = append(tips, "Pleasant temperature - a good day to spend time outdoors.")
		}
	}

	if c.Humidity != nil && *c.Humidity >= humidHumidity {
		tips = append(tips, "High humidity - wear light, breathable fabrics.")
	}

	if c.WindSpeed != nil && *c.WindSpeed >= windySpeedMS {
		tips = append(tips, "Strong winds expected - secure loose items and take extra care outdoors.")
	}

	if strings.Contains(desc, "rain") || rainChance(w.Forecast) >= rainChancePct {
		tips = append(tips, "Rain is likely - carry an umbrella or a raincoat.")
	}

	if strings.Contains(desc, "haze") || strings.Contains(desc, "smoke") {
		tips = append(tips, "Air quality may be poor - limit prolonged outdoor exposure.")
	}

	if strings.Contains(desc, "clear") {
		tips = append(tips, "Clear skies - great visibility, but don't skip the sunscreen.")
	}

	if len(tips) == 0 {
		return []string{genericTip}
	}
	if len(tips) > maxTips {
		tips = tips[:maxTips]
	}
	return tips
}

// rainChance returns the first forecast day's precipitation probability as a
// rounded percentage, or 0 when there is no forecast.
func rainChance(forecast []models.ForecastDay) int {
	if len(forecast) == 0 {
		return 0
	}
	return int(math.Round(forecast[0].Pop * 100))
}
