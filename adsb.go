package costar

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// adsbRow is one nearby aircraft, distilled for a five-row table widget.
type adsbRow struct {
	km       float64
	flight   string
	distance string
	altitude string
	typ      string
	dest     string
	line     string
}

// BuildADSBNearestDoc transforms an ADS-B aircraft feed (adsb.lol style:
// either {"ac": [...]} or a bare array) into a fixed five-row nearest
// document with row1..row5 plus per-column keys. Rows beyond the feed are
// blanked so stale values never linger on screen.
func BuildADSBNearestDoc(raw Value, geo GeoSnapshot, prefs PrefSnapshot) (Value, error) {
	ac := raw.Array()
	if ac == nil {
		if list, ok := raw.Field("ac"); ok {
			ac = list.Array()
		}
	}
	if ac == nil {
		return Value{}, errors.New("adsb response missing aircraft list")
	}

	rows := make([]adsbRow, 0, len(ac))
	for _, rawEl := range ac {
		obj := Value{raw: rawEl}
		if !obj.IsObject() {
			continue
		}
		lat, latOK := resolveFloat(obj, "lat")
		lon, lonOK := resolveFloat(obj, "lon")
		if !latOK || !lonOK {
			continue
		}

		var row adsbRow
		if dst, ok := resolveFloat(obj, "dst"); ok {
			// feed distance is nautical miles
			row.km = dst * 1.852
		} else {
			row.km = haversineMeters(geo.Lat, geo.Lon, lat, lon) / 1000
		}

		flight := strings.TrimSpace(resolveText(obj, "flight"))
		if flight == "" {
			flight = strings.TrimSpace(resolveText(obj, "callsign"))
		}
		if flight == "" {
			flight = resolveText(obj, "hex")
			if flight == "" {
				flight = "?"
			}
		}
		row.flight = clipField(flight, 8)

		typ := strings.TrimSpace(resolveText(obj, "t"))
		if typ == "" {
			typ = strings.TrimSpace(resolveText(obj, "type"))
		}
		if typ == "" {
			typ = "?"
		}
		row.typ = clipField(typ, 5)

		dest := strings.TrimSpace(resolveText(obj, "destination"))
		if dest == "" {
			dest = strings.TrimSpace(resolveText(obj, "route"))
		}
		if dest == "" {
			dest = strings.TrimSpace(resolveText(obj, "to"))
		}
		if dest == "" {
			dest = "?"
		}
		row.dest = clipField(dest, 8)

		row.altitude = "?"
		if alt, ok := obj.Field("alt_baro"); ok && !alt.IsNull() {
			if f, ok := alt.Float(); ok {
				row.altitude = fmt.Sprintf("%dft", int(f))
			} else if strings.EqualFold(alt.Text(), "ground") {
				row.altitude = "GND"
			} else {
				row.altitude = alt.Text()
			}
		} else if f, ok := resolveFloat(obj, "altitude"); ok {
			row.altitude = fmt.Sprintf("%dft", int(f))
		}

		dist := row.km
		unit := "km"
		if prefs.Miles {
			dist = row.km * 0.621371
			unit = "mi"
		}
		row.distance = fmt.Sprintf("%.1f%s", dist, unit)

		row.line = row.flight + " " + row.distance + " " + row.altitude + " " + row.typ + "->" + row.dest
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].km < rows[j].km })
	if len(rows) > 5 {
		rows = rows[:5]
	}

	doc := map[string]any{"count": len(rows)}
	for i := 1; i <= 5; i++ {
		var row adsbRow
		if i <= len(rows) {
			row = rows[i-1]
		}
		idx := fmt.Sprintf("%d", i)
		doc["row"+idx] = row.line
		doc["flight"+idx] = row.flight
		doc["distance"+idx] = row.distance
		doc["altitude"+idx] = row.altitude
		doc["type"+idx] = row.typ
		doc["destination"+idx] = row.dest
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return Value{}, err
	}
	return ParseJSON(data)
}

// clipField shortens a cell to maxLen, marking truncation with a dot.
func clipField(in string, maxLen int) string {
	if len(in) <= maxLen {
		return in
	}
	if maxLen <= 1 {
		return in[:maxLen]
	}
	return in[:maxLen-1] + "."
}
