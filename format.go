package costar

import (
	"fmt"
	"strconv"
	"strings"
)

// Formatter renders resolved field values according to a FormatSpec. The
// geo fix feeds the "local" timezone and the Fahrenheit preference picks
// pressure units.
type Formatter struct {
	Geo   GeoSnapshot
	Prefs PrefSnapshot
}

// Apply formats a raw field value. Numeric values go through unit
// conversion, rounding and locale grouping; a non-empty Tz takes the
// timestamp branch first.
func (f *Formatter) Apply(rawText string, spec FormatSpec, numeric bool, numericValue float64) string {
	out := rawText
	if numeric {
		out = ""
	}

	if spec.Tz != "" {
		out = f.formatTimestampWithTz(rawText, spec.Tz, spec.TimeFormat)
	}

	value := numericValue
	unitSuffix := ""
	unitLower := strings.ToLower(spec.Unit)

	if numeric && unitLower != "" {
		switch unitLower {
		case "f", "fahrenheit", "c_to_f":
			value = value*9/5 + 32
			unitSuffix = " F"
		case "c", "celsius":
			unitSuffix = " C"
		case "pressure":
			if f.Prefs.Fahrenheit {
				value *= 0.0295299830714
				unitSuffix = " inHg"
			} else {
				unitSuffix = " hPa"
			}
		case "percent", "%":
			unitSuffix = "%"
		case "currency_usd":
			if spec.Prefix == "" {
				spec.Prefix = "$"
			}
		}
	}

	if numeric {
		decimals := 2
		if spec.RoundDigits >= 0 {
			decimals = spec.RoundDigits
		} else if unitLower == "pressure" {
			if f.Prefs.Fahrenheit {
				decimals = 2
			} else {
				decimals = 0
			}
		}
		out += formatNumericLocale(value, decimals, spec.Locale)
	}

	if spec.Prefix != "" {
		out = spec.Prefix + out
	}
	if spec.Suffix != "" {
		out += spec.Suffix
	} else if unitSuffix != "" {
		out += unitSuffix
	}

	return out
}

// formatNumericLocale renders a number with thousands grouping and the
// locale's separators. de-DE/fr-FR/es-ES swap to European separators.
func formatNumericLocale(value float64, decimals int, locale string) string {
	if decimals < 0 {
		decimals = 0
	}
	if decimals > 6 {
		decimals = 6
	}

	text := strconv.FormatFloat(value, 'f', decimals, 64)
	intPart := text
	fracPart := ""
	if dot := strings.IndexByte(text, '.'); dot >= 0 {
		intPart = text[:dot]
		fracPart = text[dot+1:]
	}

	negative := strings.HasPrefix(intPart, "-")
	if negative {
		intPart = intPart[1:]
	}

	euroStyle := locale == "de-DE" || locale == "fr-FR" || locale == "es-ES"
	thousandsSep := byte(',')
	decimalSep := byte('.')
	if euroStyle {
		thousandsSep = '.'
		decimalSep = ','
	}

	var grouped strings.Builder
	grouped.Grow(len(intPart) + len(intPart)/3 + 2)
	for i := 0; i < len(intPart); i++ {
		grouped.WriteByte(intPart[i])
		rem := len(intPart) - i - 1
		if rem > 0 && rem%3 == 0 {
			grouped.WriteByte(thousandsSep)
		}
	}

	out := grouped.String()
	if negative {
		out = "-" + out
	}
	if decimals > 0 {
		out += string(decimalSep) + fracPart
	}
	return out
}

// parseTzOffsetMinutes parses the literal form "UTC±HH:MM".
func parseTzOffsetMinutes(tz string) (int, bool) {
	if len(tz) < 9 || !strings.HasPrefix(tz, "UTC") {
		return 0, false
	}
	sign := tz[3]
	if (sign != '+' && sign != '-') || tz[6] != ':' {
		return 0, false
	}
	hh, err1 := strconv.Atoi(tz[4:6])
	mm, err2 := strconv.Atoi(tz[7:9])
	if err1 != nil || err2 != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, false
	}
	minutes := hh*60 + mm
	if sign == '-' {
		minutes = -minutes
	}
	return minutes, true
}

// parseIsoMinuteTimestamp parses "YYYY-MM-DD" with an optional "THH:MM"
// tail, the shape upstream weather APIs emit.
func parseIsoMinuteTimestamp(text string) (year, mon, day, hour, minute int, ok bool) {
	if len(text) < 10 {
		return 0, 0, 0, 0, 0, false
	}
	var err error
	if year, err = strconv.Atoi(text[0:4]); err != nil {
		return 0, 0, 0, 0, 0, false
	}
	if mon, err = strconv.Atoi(text[5:7]); err != nil {
		return 0, 0, 0, 0, 0, false
	}
	if day, err = strconv.Atoi(text[8:10]); err != nil {
		return 0, 0, 0, 0, 0, false
	}
	if len(text) >= 16 {
		if hour, err = strconv.Atoi(text[11:13]); err != nil {
			return 0, 0, 0, 0, 0, false
		}
		if minute, err = strconv.Atoi(text[14:16]); err != nil {
			return 0, 0, 0, 0, 0, false
		}
	}
	if year < 1970 || mon < 1 || mon > 12 || day < 1 || day > 31 ||
		hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, 0, 0, 0, false
	}
	return year, mon, day, hour, minute, true
}

var (
	dowShort   = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	dowLong    = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	monthShort = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
	monthLong  = [12]string{"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December"}
)

// formatTimestampWithTz shifts a UTC ISO-minute timestamp into the given
// zone and renders it with a strftime subset (%Y %m %d %H %M %a %A %b %B
// %V). tz is either "local" (use the geo fix) or a literal "UTC±HH:MM";
// anything unparseable passes the input through unchanged.
func (f *Formatter) formatTimestampWithTz(text, tz, timeFormat string) string {
	offsetMinutes := 0
	tzSource := tz

	if tzSource == "local" {
		if f.Geo.OffsetKnown {
			offsetMinutes = f.Geo.OffsetMin
		} else if off, ok := inferOffsetFromTimezone(f.Geo.Tz); ok {
			offsetMinutes = off
		}
		sign := "+"
		absMin := offsetMinutes
		if absMin < 0 {
			sign = "-"
			absMin = -absMin
		}
		tzSource = fmt.Sprintf("UTC%s%02d:%02d", sign, absMin/60, absMin%60)
	}

	offsetMinutes, ok := parseTzOffsetMinutes(tzSource)
	if !ok {
		return text
	}

	year, mon, day, hour, minute, ok := parseIsoMinuteTimestamp(text)
	if !ok {
		return text
	}

	totalMinutes := int64(daysFromCivil(year, mon, day))*1440 + int64(hour)*60 + int64(minute)
	totalMinutes += int64(offsetMinutes)

	dayCount := totalMinutes / 1440
	rem := int(totalMinutes % 1440)
	if rem < 0 {
		rem += 1440
		dayCount--
	}

	outYear, outMon, outDay := civilFromDays(int(dayCount))
	outHour := rem / 60
	outMinute := rem % 60
	dow := weekdayFromDays(int(dayCount))

	out := timeFormat
	if out == "" {
		out = "%H:%M"
	}

	replace := func(token, value string) {
		out = strings.ReplaceAll(out, token, value)
	}
	replace("%Y", fmt.Sprintf("%04d", outYear))
	replace("%m", fmt.Sprintf("%02d", outMon))
	replace("%d", fmt.Sprintf("%02d", outDay))
	replace("%H", fmt.Sprintf("%02d", outHour))
	replace("%M", fmt.Sprintf("%02d", outMinute))
	replace("%a", dowShort[dow])
	replace("%A", dowLong[dow])
	if outMon >= 1 && outMon <= 12 {
		replace("%b", monthShort[outMon-1])
		replace("%B", monthLong[outMon-1])
	}
	replace("%V", fmt.Sprintf("%02d", isoWeekNumber(outYear, outMon, outDay)))

	return out
}
