package costar

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// GeoSnapshot is an immutable copy of the current location fix.
type GeoSnapshot struct {
	Lat, Lon    float64
	Tz          string
	Label       string
	OffsetMin   int
	OffsetKnown bool
}

// OffsetUnknown is the stored sentinel for "UTC offset not known".
const OffsetUnknown = -32768

const (
	geoNs         = "geo"
	geoModeAuto   = 0
	geoModeManual = 1
)

// Provider chain for IP geolocation, tried in order.
var geoProviders = []string{
	"https://ipwho.is/",
	"https://ipapi.co/json/",
	"https://ipinfo.io/json",
	"http://ip-api.com/json/",
}

// jsonGetter is the piece of the HTTP client geo needs.
type jsonGetter interface {
	GetJSON(ctx context.Context, url string) (Value, error)
}

// GeoService resolves and persists the appliance's location: manual
// override first, then the persisted cache, then IP geolocation.
type GeoService struct {
	store *KVStore
	http  jsonGetter

	mu         sync.Mutex
	cur        GeoSnapshot
	lastSource string
	lastError  string
}

// NewGeoService creates a geo service over the given store and client.
func NewGeoService(store *KVStore, http jsonGetter) *GeoService {
	return &GeoService{store: store, http: http}
}

// Snapshot returns the current fix.
func (g *GeoService) Snapshot() GeoSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cur
}

// LastSource reports where the current fix came from (manual, nvs-cache,
// or the provider URL).
func (g *GeoService) LastSource() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSource
}

func (g *GeoService) setLocation(snap GeoSnapshot, source string) {
	g.mu.Lock()
	g.cur = snap
	g.lastSource = source
	g.lastError = ""
	g.mu.Unlock()
}

func (g *GeoService) setError(msg string) {
	g.mu.Lock()
	g.lastError = msg
	g.mu.Unlock()
}

// LoadOverride applies a manual location override when one is stored.
func (g *GeoService) LoadOverride() bool {
	if g.store == nil {
		return false
	}
	if g.store.GetInt(geoNs, "mode", geoModeAuto) != geoModeManual {
		g.setError("manual override missing")
		return false
	}
	lat := g.store.GetFloat(geoNs, "mlat", math.NaN())
	lon := g.store.GetFloat(geoNs, "mlon", math.NaN())
	tz := g.store.GetString(geoNs, "mtz", "")
	label := g.store.GetString(geoNs, "mlabel", "")
	offMin := g.store.GetInt(geoNs, "moff", OffsetUnknown)
	if math.IsNaN(lat) || math.IsNaN(lon) || tz == "" {
		g.setError("manual override missing")
		return false
	}
	g.setLocation(GeoSnapshot{
		Lat: lat, Lon: lon, Tz: tz, Label: label,
		OffsetMin:   offsetOrZero(offMin),
		OffsetKnown: offMin != OffsetUnknown,
	}, "manual")
	return true
}

// LoadCached restores the last auto-resolved fix from the store.
func (g *GeoService) LoadCached() bool {
	if g.store == nil {
		return false
	}
	lat := g.store.GetFloat(geoNs, "lat", math.NaN())
	lon := g.store.GetFloat(geoNs, "lon", math.NaN())
	tz := g.store.GetString(geoNs, "tz", "")
	label := g.store.GetString(geoNs, "label", "")
	offMin := g.store.GetInt(geoNs, "off_min", OffsetUnknown)
	if math.IsNaN(lat) || math.IsNaN(lon) || tz == "" {
		g.setError("cache missing lat/lon/tz")
		return false
	}
	g.setLocation(GeoSnapshot{
		Lat: lat, Lon: lon, Tz: tz, Label: label,
		OffsetMin:   offsetOrZero(offMin),
		OffsetKnown: offMin != OffsetUnknown,
	}, "nvs-cache")
	return true
}

func offsetOrZero(offMin int) int {
	if offMin == OffsetUnknown {
		return 0
	}
	return offMin
}

func (g *GeoService) saveCached(snap GeoSnapshot) {
	if g.store == nil {
		return
	}
	g.store.PutFloat(geoNs, "lat", snap.Lat)
	g.store.PutFloat(geoNs, "lon", snap.Lon)
	g.store.Put(geoNs, "tz", snap.Tz)
	if snap.Label != "" {
		g.store.Put(geoNs, "label", snap.Label)
	}
	if snap.OffsetKnown {
		g.store.PutInt(geoNs, "off_min", snap.OffsetMin)
	}
}

func (g *GeoService) saveManual(snap GeoSnapshot, city string) {
	if g.store == nil {
		return
	}
	g.store.PutInt(geoNs, "mode", geoModeManual)
	g.store.PutFloat(geoNs, "mlat", snap.Lat)
	g.store.PutFloat(geoNs, "mlon", snap.Lon)
	g.store.Put(geoNs, "mtz", snap.Tz)
	if snap.OffsetKnown {
		g.store.PutInt(geoNs, "moff", snap.OffsetMin)
	} else {
		g.store.PutInt(geoNs, "moff", OffsetUnknown)
	}
	if snap.Label != "" {
		g.store.Put(geoNs, "mlabel", snap.Label)
	}
	if city != "" {
		g.store.Put(geoNs, "mcity", city)
	}
}

// ClearOverride switches back to automatic geolocation.
func (g *GeoService) ClearOverride() {
	if g.store != nil {
		g.store.PutInt(geoNs, "mode", geoModeAuto)
	}
	g.mu.Lock()
	g.lastSource = "auto"
	g.lastError = ""
	g.mu.Unlock()
}

// SetManualCity geocodes a city name and stores it as a manual override.
func (g *GeoService) SetManualCity(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("geocode: empty name")
	}
	u := "https://geocoding-api.open-meteo.com/v1/search?name=" +
		url.QueryEscape(name) + "&count=1&language=en&format=json"
	doc, err := g.http.GetJSON(ctx, u)
	if err != nil {
		g.setError("geocode failed")
		return fmt.Errorf("geocode: %w", err)
	}

	first, ok := doc.Resolve("results[0]")
	if !ok {
		g.setError("geocode failed")
		return fmt.Errorf("geocode: no results for %q", name)
	}
	lat, latOK := resolveFloat(first, "latitude")
	lon, lonOK := resolveFloat(first, "longitude")
	tz := resolveText(first, "timezone")
	if !latOK || !lonOK || tz == "" {
		g.setError("geocode failed")
		return fmt.Errorf("geocode: incomplete result for %q", name)
	}

	label := resolveText(first, "name")
	if admin1 := resolveText(first, "admin1"); admin1 != "" {
		label += ", " + admin1
	}
	if country := resolveText(first, "country"); country != "" {
		label += ", " + country
	}

	snap := GeoSnapshot{Lat: lat, Lon: lon, Tz: tz, Label: label}
	if offMin, ok := g.fetchOffsetForTimezone(ctx, tz); ok {
		snap.OffsetMin = offMin
		snap.OffsetKnown = true
	}
	g.setLocation(snap, "manual")
	g.saveManual(snap, name)
	return nil
}

// SetManualLatLon resolves a timezone for explicit coordinates and stores
// them as a manual override.
func (g *GeoService) SetManualLatLon(ctx context.Context, lat, lon float64) error {
	u := fmt.Sprintf(
		"https://api.open-meteo.com/v1/forecast?latitude=%.4f&longitude=%.4f&current=temperature_2m&timezone=auto",
		lat, lon)
	doc, err := g.http.GetJSON(ctx, u)
	if err != nil {
		g.setError("timezone lookup failed")
		return fmt.Errorf("timezone lookup: %w", err)
	}
	tz := resolveText(doc, "timezone")
	if tz == "" {
		g.setError("timezone lookup failed")
		return fmt.Errorf("timezone lookup: no timezone in response")
	}

	snap := GeoSnapshot{
		Lat: lat, Lon: lon, Tz: tz,
		Label: fmt.Sprintf("%.4f,%.4f", lat, lon),
	}
	if offSec, ok := resolveFloat(doc, "utc_offset_seconds"); ok {
		snap.OffsetMin = int(offSec) / 60
		snap.OffsetKnown = true
	} else if offMin, ok := g.fetchOffsetForTimezone(ctx, tz); ok {
		snap.OffsetMin = offMin
		snap.OffsetKnown = true
	}
	g.setLocation(snap, "manual")
	g.saveManual(snap, "")
	return nil
}

// RefreshFromInternet walks the provider chain until one yields a usable
// fix, then caches it.
func (g *GeoService) RefreshFromInternet(ctx context.Context) error {
	var errs []string
	for _, provider := range geoProviders {
		doc, err := g.http.GetJSON(ctx, provider)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", provider, err))
			continue
		}
		snap, ok := parseGeoDoc(doc)
		if !ok {
			errs = append(errs, provider+": response missing latitude/longitude/timezone")
			continue
		}
		if !snap.OffsetKnown && snap.Tz != "" {
			if offMin, ok := g.fetchOffsetForTimezone(ctx, snap.Tz); ok {
				snap.OffsetMin = offMin
				snap.OffsetKnown = true
				geoLog.Printf("offset resolved tz=%s off_min=%d", snap.Tz, offMin)
			} else {
				geoLog.Printf("offset unresolved tz=%s", snap.Tz)
			}
		}
		snap.Label = extractGeoLabel(doc)
		g.setLocation(snap, provider)
		g.saveCached(snap)
		return nil
	}
	g.mu.Lock()
	g.lastSource = "none"
	g.lastError = strings.Join(errs, "; ")
	g.mu.Unlock()
	return fmt.Errorf("geo refresh failed: %s", strings.Join(errs, "; "))
}

// fetchOffsetForTimezone asks worldtimeapi for the current UTC offset of
// a named zone.
func (g *GeoService) fetchOffsetForTimezone(ctx context.Context, tz string) (int, bool) {
	if tz == "" {
		return 0, false
	}
	doc, err := g.http.GetJSON(ctx, "https://worldtimeapi.org/api/timezone/"+tz)
	if err != nil {
		return 0, false
	}
	if off := resolveText(doc, "utc_offset"); off != "" {
		if minutes, ok := parseOffsetText(off); ok {
			return minutes, true
		}
	}
	if raw, ok := resolveFloat(doc, "raw_offset"); ok {
		dst, _ := resolveFloat(doc, "dst_offset")
		return int(raw+dst) / 60, true
	}
	return 0, false
}

// parseGeoDoc handles the response shapes of all four providers.
func parseGeoDoc(doc Value) (GeoSnapshot, bool) {
	var snap GeoSnapshot

	switch {
	case hasField(doc, "latitude") && hasField(doc, "longitude"):
		snap.Lat, _ = resolveFloat(doc, "latitude")
		snap.Lon, _ = resolveFloat(doc, "longitude")
		if tzObj, ok := doc.Field("timezone"); ok && tzObj.IsObject() {
			snap.Tz = resolveText(tzObj, "id")
			if off, ok := resolveFloat(tzObj, "offset"); ok {
				snap.OffsetMin = int(off) / 60
				snap.OffsetKnown = true
			} else if utc := resolveText(tzObj, "utc"); utc != "" {
				if minutes, ok := parseOffsetText(utc); ok {
					snap.OffsetMin = minutes
					snap.OffsetKnown = true
				}
			}
		} else {
			snap.Tz = resolveText(doc, "timezone")
		}

	case hasField(doc, "lat") && hasField(doc, "lon"):
		snap.Lat, _ = resolveFloat(doc, "lat")
		snap.Lon, _ = resolveFloat(doc, "lon")
		snap.Tz = resolveText(doc, "timezone")
		if utc := resolveText(doc, "utc_offset"); utc != "" {
			if minutes, ok := parseOffsetText(utc); ok {
				snap.OffsetMin = minutes
				snap.OffsetKnown = true
			}
		} else if off, ok := resolveFloat(doc, "offset"); ok {
			// ip-api.com reports seconds
			snap.OffsetMin = int(off) / 60
			snap.OffsetKnown = true
		}

	case hasField(doc, "loc"):
		loc := resolveText(doc, "loc")
		comma := strings.IndexByte(loc, ',')
		if comma <= 0 {
			return GeoSnapshot{}, false
		}
		var err1, err2 error
		snap.Lat, err1 = strconv.ParseFloat(loc[:comma], 64)
		snap.Lon, err2 = strconv.ParseFloat(loc[comma+1:], 64)
		if err1 != nil || err2 != nil {
			return GeoSnapshot{}, false
		}
		snap.Tz = resolveText(doc, "timezone")

	default:
		return GeoSnapshot{}, false
	}

	if math.IsNaN(snap.Lat) || math.IsNaN(snap.Lon) || snap.Tz == "" {
		return GeoSnapshot{}, false
	}
	return snap, true
}

// extractGeoLabel builds "City, Region, Country" from whichever field
// names the provider used.
func extractGeoLabel(doc Value) string {
	city := resolveText(doc, "city")
	if city == "" {
		return ""
	}
	label := city
	region := resolveText(doc, "region")
	if region == "" {
		region = resolveText(doc, "regionName")
	}
	country := resolveText(doc, "country")
	if country == "" {
		country = resolveText(doc, "country_name")
	}
	if region != "" {
		label += ", " + region
	}
	if country != "" {
		label += ", " + country
	}
	return label
}

// parseOffsetText parses "±HH:MM" or "±HHMM" into minutes.
func parseOffsetText(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	sign := 1
	if s[0] == '+' || s[0] == '-' {
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
	}
	var hhText, mmText string
	switch {
	case len(s) == 5 && s[2] == ':':
		hhText, mmText = s[:2], s[3:5]
	case len(s) == 4:
		hhText, mmText = s[:2], s[2:4]
	default:
		return 0, false
	}
	hh, err1 := strconv.Atoi(hhText)
	mm, err2 := strconv.Atoi(mmText)
	if err1 != nil || err2 != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, false
	}
	return sign * (hh*60 + mm), true
}

func hasField(v Value, name string) bool {
	f, ok := v.Field(name)
	return ok && !f.IsNull()
}

func resolveText(v Value, name string) string {
	f, ok := v.Field(name)
	if !ok {
		return ""
	}
	return f.Text()
}

func resolveFloat(v Value, name string) (float64, bool) {
	f, ok := v.Field(name)
	if !ok {
		return 0, false
	}
	return f.Float()
}
