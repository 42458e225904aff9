package costar

import (
	"os"
	"path/filepath"
	"testing"
)

const clockDSL = `{
	"version": 1,
	"data": {"source": "local_time", "fields": {"clock": "time_24"}},
	"ui": {"nodes": [{"type": "label", "key": "clock"}]}
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testComposer(t *testing.T, layout string) (*Composer, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "layout.json"), layout)
	writeFile(t, filepath.Join(dir, "local_clock.json"), clockDSL)
	c := NewComposer(filepath.Join(dir, "layout.json"), dir, testScheduler(t))
	return c, dir
}

func TestParseLayoutRegions(t *testing.T) {
	root := mustParseJSON(t, `{
		"screen": {"regions": [
			{"id": "a", "widget": "local-clock", "x": 0, "y": 0, "w": 160, "h": 120},
			{"id": "zero", "widget": "w", "x": 0, "y": 0, "w": 0, "h": 50},
			{"id": "off", "widget": "w", "x": 400, "y": 0, "w": 50, "h": 50},
			{"id": "hang", "widget": "w", "x": 300, "y": 230, "w": 50, "h": 50}
		]}
	}`)
	regions, err := parseLayout(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 2 {
		t.Fatalf("regions = %d, want 2 (zero-size and off-screen dropped)", len(regions))
	}
	if regions[0].ID != "a" || regions[0].W != 160 {
		t.Errorf("region a = %+v", regions[0])
	}
	// overhanging region clamped to the panel
	if regions[1].W != 20 || regions[1].H != 10 {
		t.Errorf("clamped region = %+v, want w=20 h=10", regions[1])
	}
}

func TestParseLayoutSettingsMerge(t *testing.T) {
	root := mustParseJSON(t, `{
		"widget_defs": {
			"wx": {"settings": {"dsl_path": "weather.json", "station": "KSFO"}}
		},
		"screen": {"regions": [
			{"id": "r", "widget": "wx", "x": 0, "y": 0, "w": 100, "h": 100,
			 "settings": {"station": "KOAK"}}
		]}
	}`)
	regions, err := parseLayout(root)
	if err != nil {
		t.Fatal(err)
	}
	if regions[0].Settings["dsl_path"] != "weather.json" {
		t.Errorf("dsl_path from widget_defs missing: %v", regions[0].Settings)
	}
	// region settings override widget_defs
	if regions[0].Settings["station"] != "KOAK" {
		t.Errorf("station = %q, want region override", regions[0].Settings["station"])
	}
}

func TestParseLayoutMissingRegions(t *testing.T) {
	if _, err := parseLayout(mustParseJSON(t, `{"screen": {}}`)); err == nil {
		t.Error("want error for layout without regions")
	}
}

func TestDSLPathMapping(t *testing.T) {
	c := NewComposer("/assets/layout.json", "/assets/dsl", testScheduler(t))

	got := c.dslPathFor(Region{Widget: "local-clock"})
	if got != filepath.Join("/assets/dsl", "local_clock.json") {
		t.Errorf("dashes should flatten to underscores, got %q", got)
	}

	got = c.dslPathFor(Region{Widget: "wx", Settings: map[string]string{"dsl_path": "custom.json"}})
	if got != filepath.Join("/assets/dsl", "custom.json") {
		t.Errorf("dsl_path override = %q", got)
	}

	got = c.dslPathFor(Region{Widget: "wx", Settings: map[string]string{"dsl_path": "/abs/doc.json"}})
	if got != "/abs/doc.json" {
		t.Errorf("absolute dsl_path = %q", got)
	}
}

func TestComposerLoadAndTick(t *testing.T) {
	c, _ := testComposer(t, `{
		"screen": {"regions": [
			{"id": "clk", "widget": "local-clock", "x": 0, "y": 0, "w": 160, "h": 120},
			{"id": "gone", "widget": "no-such-widget", "x": 160, "y": 0, "w": 160, "h": 120}
		]}
	}`)
	if err := c.Load(0); err != nil {
		t.Fatal(err)
	}
	// the unresolvable widget is skipped, not fatal
	if len(c.Widgets) != 1 {
		t.Fatalf("widgets = %d, want 1", len(c.Widgets))
	}

	if dirty := c.Tick(1_000_000); !dirty {
		t.Error("local_time widget should dirty on first tick")
	}
	if c.Widgets[0].Values["clock"] == "" {
		t.Error("clock value not populated")
	}
}

func TestComposerReloadsChangedDocument(t *testing.T) {
	c, dir := testComposer(t, `{
		"screen": {"regions": [
			{"id": "clk", "widget": "local-clock", "x": 0, "y": 0, "w": 160, "h": 120}
		]}
	}`)
	if err := c.Load(0); err != nil {
		t.Fatal(err)
	}
	old := c.Widgets[0]

	changed := filepath.Join(dir, "local_clock.json")
	writeFile(t, changed, `{
		"version": 1,
		"data": {"source": "local_time", "fields": {"d": "date"}},
		"ui": {"nodes": [{"type": "label", "key": "d"}]}
	}`)
	c.reload <- changed
	c.Tick(1_000_000)

	if c.Widgets[0] == old {
		t.Fatal("widget should be rebuilt after its document changed")
	}
	if _, ok := c.Widgets[0].Doc.Fields["d"]; !ok {
		t.Error("reloaded widget should carry the new fields")
	}
}

func TestComposerTouchRouting(t *testing.T) {
	c, _ := testComposer(t, `{
		"screen": {"regions": [
			{"id": "clk", "widget": "local-clock", "x": 100, "y": 50, "w": 160, "h": 120}
		]}
	}`)
	if err := c.Load(0); err != nil {
		t.Fatal(err)
	}
	w := c.Widgets[0]
	w.Doc.Modals = []Modal{{ID: "m", W: 100, H: 60}}
	w.Doc.TouchRegions = []TouchRegion{{
		X: 0, Y: 0, W: 160, H: 120,
		OnTouch: TouchAction{Action: "modal", ModalID: "m"},
	}}

	// outside the widget nothing happens
	c.HandleTouch(10, 10, 1000)
	if w.ActiveModal != "" {
		t.Fatal("touch outside widget should not dispatch")
	}
	// inside: origin is subtracted before the region hit-test
	c.HandleTouch(110, 60, 1000)
	if w.ActiveModal != "m" {
		t.Errorf("modal = %q, want m", w.ActiveModal)
	}
}
