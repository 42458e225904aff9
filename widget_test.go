package costar

import (
	"testing"
	"time"
)

func mustParseJSON(t *testing.T, src string) Value {
	t.Helper()
	v, err := ParseJSON([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func testWidget(t *testing.T, docSrc string) *WidgetInstance {
	t.Helper()
	doc, err := ParseDocument([]byte(docSrc))
	if err != nil {
		t.Fatal(err)
	}
	return NewWidgetInstance("w", doc, 0, 0, 160, 120, nil)
}

func TestApplyDocumentScalarsAndSeries(t *testing.T) {
	w := testWidget(t, `{
		"version": 1,
		"data": {"source": "http", "url": "http://x", "fields": {
			"temp": {"path": "current.temperature_2m", "format": {"unit": "f", "round": 1}},
			"trend": {"path": "hourly.temperature_2m", "format": {"round": 1}},
			"cond": "current.summary",
			"missing": "current.nope"
		}},
		"ui": {"nodes": [{"type": "label", "key": "temp"}]}
	}`)

	doc := mustParseJSON(t, `{
		"current": {"temperature_2m": 20, "summary": "calm"},
		"hourly": {"temperature_2m": [18, 19, 20.5]}
	}`)

	prefs := PrefSnapshot{Fahrenheit: true}
	changed := w.applyDocument(doc, time.Now(), GeoSnapshot{}, prefs)
	if !changed {
		t.Fatal("first apply should report change")
	}

	if w.Values["temp"] != "68.0 F" {
		t.Errorf("temp = %q", w.Values["temp"])
	}
	if n, ok := w.Numeric["temp"]; !ok || n != 20 {
		t.Errorf("numeric temp = %v,%v, want raw celsius", n, ok)
	}
	if w.Values["cond"] != "calm" {
		t.Errorf("cond = %q", w.Values["cond"])
	}

	series := w.Series["trend"]
	if len(series) != 3 || series[2] != 20.5 {
		t.Errorf("series = %v", series)
	}
	// last element lands in values, formatted
	if w.Values["trend"] != "20.5" {
		t.Errorf("trend value = %q", w.Values["trend"])
	}

	if w.Values["missing"] != "" {
		t.Errorf("missing path should yield empty, got %q", w.Values["missing"])
	}
}

func TestApplyDocumentUnchangedStaysClean(t *testing.T) {
	w := testWidget(t, `{
		"version": 1,
		"data": {"source": "http", "url": "http://x", "fields": {
			"temp": "current.t",
			"trend": "hourly.temps"
		}},
		"ui": {"nodes": [
			{"type": "sparkline", "key": "trend"},
			{"type": "label", "path": "current.summary"}
		]}
	}`)

	src := `{"current": {"t": 20, "summary": "calm"}, "hourly": {"temps": [1, 2, 3]}}`
	if !w.applyDocument(mustParseJSON(t, src), time.Now(), GeoSnapshot{}, PrefSnapshot{}) {
		t.Fatal("first apply should report change")
	}
	// a byte-identical poll result must not dirty the widget
	if w.applyDocument(mustParseJSON(t, src), time.Now(), GeoSnapshot{}, PrefSnapshot{}) {
		t.Error("identical document should not report change")
	}

	bumped := `{"current": {"t": 20, "summary": "calm"}, "hourly": {"temps": [1, 2, 4]}}`
	if !w.applyDocument(mustParseJSON(t, bumped), time.Now(), GeoSnapshot{}, PrefSnapshot{}) {
		t.Error("series change should report change")
	}
}

func TestApplyDocumentMissClearsStaleSeries(t *testing.T) {
	w := testWidget(t, `{
		"version": 1,
		"data": {"source": "http", "url": "http://x", "fields": {
			"trend": "hourly.t"
		}},
		"ui": {"nodes": [{"type": "sparkline", "key": "trend"}]}
	}`)

	w.applyDocument(mustParseJSON(t, `{"hourly": {"t": [1, 2, 3]}}`), time.Now(), GeoSnapshot{}, PrefSnapshot{})
	if len(w.Series["trend"]) != 3 {
		t.Fatal("series not stored")
	}
	w.applyDocument(mustParseJSON(t, `{"hourly": {}}`), time.Now(), GeoSnapshot{}, PrefSnapshot{})
	if _, ok := w.Series["trend"]; ok {
		t.Error("missing path should clear the series")
	}
	if w.Values["trend"] != "" {
		t.Errorf("missing path should clear the value, got %q", w.Values["trend"])
	}
}

func TestApplyDocumentComputedMoonPhase(t *testing.T) {
	w := testWidget(t, `{
		"version": 1,
		"data": {"source": "http", "url": "http://x", "fields": {
			"phase": "computed.moon_phase"
		}},
		"ui": {"nodes": [{"type": "label", "key": "phase"}]}
	}`)

	// 2024-01-25 was a full moon
	now := time.Date(2024, 1, 25, 18, 0, 0, 0, time.UTC)
	w.applyDocument(mustParseJSON(t, `{}`), now, GeoSnapshot{}, PrefSnapshot{})
	if w.Values["phase"] != "Full Moon" {
		t.Errorf("phase = %q", w.Values["phase"])
	}
}

func TestApplyDocumentWeatherDerivation(t *testing.T) {
	w := testWidget(t, `{
		"version": 1,
		"data": {"source": "http", "url": "http://x", "fields": {
			"code_now": {"path": "current.weather_code", "format": {"round": 0}}
		}},
		"ui": {"nodes": [{"type": "label", "key": "cond_now"}]}
	}`)

	w.applyDocument(mustParseJSON(t, `{"current": {"weather_code": 61}}`), time.Now(), GeoSnapshot{}, PrefSnapshot{})
	if w.Values["cond_now"] != "Rain" {
		t.Errorf("cond_now = %q", w.Values["cond_now"])
	}
	if w.Values["icon_now"] != "/icons/meteocons/rain.raw" {
		t.Errorf("icon_now = %q", w.Values["icon_now"])
	}
}

func TestApplyDocumentTemplateBoundPath(t *testing.T) {
	doc, err := ParseDocument([]byte(`{
		"version": 1,
		"data": {"source": "http", "url": "http://x", "fields": {
			"v": "rows[{{setting.row}}].n"
		}},
		"ui": {"nodes": [{"type": "label", "key": "v"}]}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	w := NewWidgetInstance("w", doc, 0, 0, 100, 100, map[string]string{"row": "1"})

	w.applyDocument(mustParseJSON(t, `{"rows": [{"n": 10}, {"n": 20}]}`), time.Now(), GeoSnapshot{}, PrefSnapshot{})
	// shorthand fields carry no format, so numerics render with the
	// two-decimal default
	if w.Values["v"] != "20.00" {
		t.Errorf("template-bound path = %q, want 20.00", w.Values["v"])
	}
}

func TestApplyDocumentRetainsSource(t *testing.T) {
	w := testWidget(t, `{
		"version": 1,
		"data": {"source": "http", "url": "http://x", "fields": {}},
		"ui": {"nodes": [{"type": "label", "path": "deep.value"}]}
	}`)
	if !w.Doc.RetainSource {
		t.Fatal("node with raw path should set RetainSource")
	}

	w.applyDocument(mustParseJSON(t, `{"deep": {"value": "kept"}}`), time.Now(), GeoSnapshot{}, PrefSnapshot{})
	if !w.HasSource {
		t.Fatal("source document should be retained")
	}
	if got, ok := w.Source.Resolve("deep.value"); !ok || got.Text() != "kept" {
		t.Error("retained source should resolve raw paths")
	}
}

func TestHitTouchRegionOrder(t *testing.T) {
	doc := &Document{TouchRegions: []TouchRegion{
		{X: 0, Y: 0, W: 100, H: 100, OnTouch: TouchAction{Action: "modal", ModalID: "a"}},
		{X: 10, Y: 10, W: 20, H: 20, OnTouch: TouchAction{Action: "modal", ModalID: "b"}},
	}}
	w := NewWidgetInstance("w", doc, 0, 0, 100, 100, nil)

	// first matching region wins
	if r := w.HitTouchRegion(15, 15); r == nil || r.OnTouch.ModalID != "a" {
		t.Errorf("hit = %+v", r)
	}
	if r := w.HitTouchRegion(200, 200); r != nil {
		t.Errorf("miss should return nil, got %+v", r)
	}
}
