package costar

import (
	"math"
	"strconv"
)

// MapWeatherCode translates a WMO weather code into a display condition
// and the matching meteocons icon name.
func MapWeatherCode(code int) (condition, icon string) {
	switch code {
	case 0:
		return "Clear", "clear-day"
	case 1:
		return "Mostly Clear", "partly-cloudy-day"
	case 2:
		return "Partly Cloudy", "partly-cloudy-day"
	case 3:
		return "Overcast", "cloudy"
	case 45, 48:
		return "Fog", "fog"
	case 51, 53, 55, 56, 57:
		return "Drizzle", "drizzle"
	case 61, 63, 65, 66, 67, 80, 81, 82:
		return "Rain", "rain"
	case 71, 73, 75, 77, 85, 86:
		return "Snow", "snow"
	case 95, 96, 99:
		return "Storm", "thunderstorms-day"
	}
	return "Unknown", "cloudy"
}

// weatherIconPath locates the raw icon asset for a meteocons name.
func weatherIconPath(icon string) string {
	return "/icons/meteocons/" + icon + ".raw"
}

// weatherDerivation maps a numeric code key to the condition/icon keys it
// fills in.
var weatherDerivations = []struct {
	codeKey, condKey, iconKey string
}{
	{"code_now", "cond_now", "icon_now"},
	{"day1_code", "day1_cond", "day1_icon"},
	{"day2_code", "day2_cond", "day2_icon"},
}

// applyWeatherDerivedValues fills condition and icon values for any
// weather-code keys present. An empty code clears the derived keys; an
// unparseable code leaves them untouched.
func applyWeatherDerivedValues(values map[string]string) {
	for _, d := range weatherDerivations {
		code, ok := values[d.codeKey]
		if !ok {
			continue
		}
		if code == "" {
			values[d.condKey] = ""
			values[d.iconKey] = ""
			continue
		}
		n, err := strconv.ParseFloat(code, 64)
		if err != nil {
			continue
		}
		cond, icon := MapWeatherCode(int(math.Round(n)))
		values[d.condKey] = cond
		values[d.iconKey] = weatherIconPath(icon)
	}
}
