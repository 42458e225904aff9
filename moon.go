package costar

import (
	"math"
	"time"
)

// Synodic month length in days and a reference new moon
// (2000-01-06 18:14 UTC).
const (
	synodicMonth = 29.53058867
	moonEpochH   = 18.0 + 14.0/60.0
)

// MoonPhaseFraction returns the phase of the moon at the given instant as
// a fraction of the synodic cycle: 0 = new, 0.5 = full.
func MoonPhaseFraction(now time.Time) float64 {
	u := now.UTC()
	daysNow := float64(daysFromCivil(u.Year(), int(u.Month()), u.Day())) +
		(float64(u.Hour()) + float64(u.Minute())/60 + float64(u.Second())/3600) / 24
	epochDays := float64(daysFromCivil(2000, 1, 6)) + moonEpochH/24

	phase := math.Mod(daysNow-epochDays, synodicMonth) / synodicMonth
	if phase < 0 {
		phase += 1
	}
	return phase
}

// MoonPhaseName maps a phase fraction onto the eight common phase names,
// with bands centered on the cardinal points.
func MoonPhaseName(phase float64) string {
	switch {
	case phase < 0.0625 || phase >= 0.9375:
		return "New Moon"
	case phase < 0.1875:
		return "Waxing Crescent"
	case phase < 0.3125:
		return "First Quarter"
	case phase < 0.4375:
		return "Waxing Gibbous"
	case phase < 0.5625:
		return "Full Moon"
	case phase < 0.6875:
		return "Waning Gibbous"
	case phase < 0.8125:
		return "Last Quarter"
	default:
		return "Waning Crescent"
	}
}
