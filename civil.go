package costar

// Civil-calendar day arithmetic, used by the timestamp formatter and the
// moon phase computation. Days count from the Unix epoch 1970-01-01.

// daysFromCivil converts a proleptic Gregorian date to days since epoch.
func daysFromCivil(y, m, d int) int {
	if m <= 2 {
		y--
	}
	var era int
	if y >= 0 {
		era = y / 400
	} else {
		era = (y - 399) / 400
	}
	yoe := y - era*400
	var mShift int
	if m > 2 {
		mShift = m - 3
	} else {
		mShift = m + 9
	}
	doy := (153*mShift+2)/5 + d - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 719468
}

// civilFromDays converts days since epoch back to year/month/day.
func civilFromDays(z int) (y, m, d int) {
	z += 719468
	var era int
	if z >= 0 {
		era = z / 146097
	} else {
		era = (z - 146096) / 146097
	}
	doe := z - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	y = yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	d = doy - (153*mp+2)/5 + 1
	if mp < 10 {
		m = mp + 3
	} else {
		m = mp - 9
	}
	if m <= 2 {
		y++
	}
	return
}

// weekdayFromDays returns 0=Sunday..6=Saturday for days since epoch
// (1970-01-01 was a Thursday).
func weekdayFromDays(z int) int {
	if z >= -4 {
		return (z + 4) % 7
	}
	return (z+5)%7 + 6
}

// isoWeekNumber computes the ISO-8601 week of the year: weeks start on
// Monday and week 1 contains January 4th.
func isoWeekNumber(y, m, d int) int {
	days := daysFromCivil(y, m, d)
	// shift so Monday=0
	wd := (weekdayFromDays(days) + 6) % 7
	// Thursday of the current week decides the ISO year
	thursday := days - wd + 3
	ty, _, _ := civilFromDays(thursday)
	jan1 := daysFromCivil(ty, 1, 1)
	return (thursday-jan1)/7 + 1
}
