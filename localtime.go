package costar

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Fallback offsets for a handful of common zones, used when no live UTC
// offset has been resolved yet.
var tzOffsetTable = map[string]int{
	"America/Los_Angeles": -8 * 60,
	"America/Denver":      -7 * 60,
	"America/Chicago":     -6 * 60,
	"America/New_York":    -5 * 60,
	"UTC":                 0,
	"Etc/UTC":             0,
}

// inferOffsetFromTimezone returns a static offset for well-known zone
// names. It ignores DST; the live worldtimeapi lookup supersedes it.
func inferOffsetFromTimezone(tz string) (int, bool) {
	off, ok := tzOffsetTable[tz]
	return off, ok
}

// BuildLocalTimeDoc synthesizes the "local_time" data source: a JSON
// document of clock fields derived from the geo fix, so time widgets run
// entirely offline.
func BuildLocalTimeDoc(now time.Time, geo GeoSnapshot, prefs PrefSnapshot) (Value, error) {
	nowUtc := now.UTC()
	// reject the pre-NTP boot window
	if nowUtc.Unix() < 946684800 {
		return Value{}, errors.New("time unavailable")
	}

	offsetMinutes := 0
	haveOffset := false
	if geo.OffsetKnown {
		offsetMinutes = geo.OffsetMin
		haveOffset = true
	} else if off, ok := inferOffsetFromTimezone(geo.Tz); ok {
		offsetMinutes = off
		haveOffset = true
	}

	local := nowUtc
	if haveOffset {
		local = nowUtc.Add(time.Duration(offsetMinutes) * time.Minute)
	}

	h, min, sec := local.Hour(), local.Minute(), local.Second()
	time24 := fmt.Sprintf("%02d:%02d:%02d", h, min, sec)
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	meridiem := "AM"
	if h >= 12 {
		meridiem = "PM"
	}
	time12 := fmt.Sprintf("%02d:%02d:%02d %s", h12, min, sec, meridiem)

	timeField := time12
	if prefs.Clock24h {
		timeField = time24
	}

	doc := map[string]any{
		"time":         timeField,
		"time_24":      time24,
		"time_12":      time12,
		"date":         fmt.Sprintf("%04d-%02d-%02d", local.Year(), int(local.Month()), local.Day()),
		"iso_local":    fmt.Sprintf("%04d-%02d-%02dT%02d:%02d", local.Year(), int(local.Month()), local.Day(), h, min),
		"hour":         h,
		"minute":       min,
		"second":       sec,
		"millis":       nowUtc.UnixMilli() % 1000,
		"epoch":        nowUtc.Unix(),
		"tz":           geo.Tz,
		"offset_min":   offsetMinutes,
		"offset_known": haveOffset,
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return Value{}, err
	}
	return ParseJSON(data)
}
