package costar

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testRenderer() (*Renderer, *MemFramebuffer) {
	fb := NewMemFramebuffer(ScreenW, ScreenH)
	return NewRenderer(fb, NewIconCache(nil, "")), fb
}

func countColor(fb *MemFramebuffer, c RGB565) int {
	n := 0
	for _, p := range fb.Pixels() {
		if p == c {
			n++
		}
	}
	return n
}

func TestRenderStatusDot(t *testing.T) {
	r, fb := testRenderer()
	w := NewWidgetInstance("w", &Document{}, 10, 10, 100, 80, nil)

	w.Status = StatusOk
	r.RenderWidget(w, GeoSnapshot{}, PrefSnapshot{})
	if got := fb.Get(10+100-6, 10+6); got != ColorGreen {
		t.Errorf("ok dot = %04x, want green", got)
	}

	w.Status = StatusNetErr
	r.RenderWidget(w, GeoSnapshot{}, PrefSnapshot{})
	if got := fb.Get(10+100-6, 10+6); got != ColorRed {
		t.Errorf("err dot = %04x, want red", got)
	}
}

func TestRenderClearsDirty(t *testing.T) {
	r, _ := testRenderer()
	w := NewWidgetInstance("w", &Document{}, 0, 0, 50, 50, nil)
	w.Dirty = true
	r.RenderWidget(w, GeoSnapshot{}, PrefSnapshot{})
	if w.Dirty {
		t.Error("render should clear the dirty flag")
	}
}

func TestRenderLabel(t *testing.T) {
	r, fb := testRenderer()
	doc := &Document{Nodes: []Node{{
		Type: NodeLabel, X: 4, Y: 4, Font: 2, Color: ColorWhite, Text: "HI",
	}}}
	w := NewWidgetInstance("w", doc, 0, 0, 100, 40, nil)
	r.RenderWidget(w, GeoSnapshot{}, PrefSnapshot{})
	if countColor(fb, ColorWhite) == 0 {
		t.Error("label drew no pixels")
	}
}

func TestRenderLabelPathValue(t *testing.T) {
	r, fb := testRenderer()
	doc := &Document{
		RetainSource: true,
		Nodes: []Node{{
			Type: NodeLabel, X: 4, Y: 4, Font: 2, Color: 0x07FF, Path: "deep.v",
		}},
	}
	w := NewWidgetInstance("w", doc, 0, 0, 100, 40, nil)
	w.applyDocument(mustParseJSON(t, `{"deep": {"v": "X"}}`), time.Now(), GeoSnapshot{}, PrefSnapshot{})
	r.RenderWidget(w, GeoSnapshot{}, PrefSnapshot{})
	if countColor(fb, 0x07FF) == 0 {
		t.Error("path-bound label drew no pixels")
	}
}

func TestRenderProgress(t *testing.T) {
	r, fb := testRenderer()
	doc := &Document{Nodes: []Node{{
		Type: NodeProgress, X: 0, Y: 0, W: 100, H: 20,
		Color: ColorGreen, Bg: 0x2104, Key: "pct", Min: 0, Max: 100,
	}}}
	w := NewWidgetInstance("w", doc, 0, 0, 120, 40, nil)
	w.Numeric["pct"] = 50

	r.RenderWidget(w, GeoSnapshot{}, PrefSnapshot{})

	// border pixel
	if fb.Get(0, 0) != ColorGreen {
		t.Error("progress border missing")
	}
	// fill reaches halfway through the inner area but not further
	if fb.Get(5, 10) != ColorGreen {
		t.Error("progress fill missing at 50%")
	}
	if fb.Get(2+90, 3) == ColorGreen {
		t.Error("progress fill overshoots at 50%")
	}
}

func TestRenderSparklineAutoRange(t *testing.T) {
	r, fb := testRenderer()
	doc := &Document{Nodes: []Node{{
		Type: NodeSparkline, X: 0, Y: 0, W: 60, H: 30,
		Color: 0xFFE0, Bg: ColorBlack, Key: "s", Min: 0, Max: 0,
	}}}
	w := NewWidgetInstance("w", doc, 0, 0, 80, 40, nil)
	w.Series["s"] = []float64{1, 5, 3, 8, 2}

	r.RenderWidget(w, GeoSnapshot{}, PrefSnapshot{})
	// frame + polyline both use the node color
	if countColor(fb, 0xFFE0) < 60 {
		t.Error("sparkline drew too few pixels")
	}
}

func TestRenderSparklineFlatSeries(t *testing.T) {
	r, fb := testRenderer()
	doc := &Document{Nodes: []Node{{
		Type: NodeSparkline, X: 0, Y: 0, W: 60, H: 30,
		Color: 0xFFE0, Key: "s",
	}}}
	// node min/max from defaults would be 0..100; force auto-range
	doc.Nodes[0].Min = 5
	doc.Nodes[0].Max = 5
	w := NewWidgetInstance("w", doc, 0, 0, 80, 40, nil)
	w.Series["s"] = []float64{7, 7, 7, 7}

	// must not divide by zero; the flat line sits at the bottom
	r.RenderWidget(w, GeoSnapshot{}, PrefSnapshot{})
	if fb.Get(10, 30-2) != 0xFFE0 {
		t.Error("flat series line missing")
	}
}

func TestRenderMoonPhase(t *testing.T) {
	r, fb := testRenderer()
	doc := &Document{Nodes: []Node{{
		Type: NodeMoonPhase, X: 40, Y: 40, Radius: 10,
		Color: ColorWhite, Bg: 0x2104, Key: "phase",
	}}}
	w := NewWidgetInstance("w", doc, 0, 0, 80, 80, nil)

	// quarter moon lights half the disk
	w.Numeric["phase"] = 0.5
	r.RenderWidget(w, GeoSnapshot{}, PrefSnapshot{})
	half := countColor(fb, ColorWhite)

	// a near-new moon shows only a sliver
	w.Numeric["phase"] = 0.02
	r.RenderWidget(w, GeoSnapshot{}, PrefSnapshot{})
	sliver := countColor(fb, ColorWhite)

	if half < 100 {
		t.Errorf("phase 0.5 lit %d pixels, want about half the disk", half)
	}
	if sliver >= half/5 {
		t.Errorf("phase 0.02 lit %d pixels, want a sliver (half=%d)", sliver, half)
	}
}

func TestRenderLineFromAngle(t *testing.T) {
	r, fb := testRenderer()
	doc := &Document{Nodes: []Node{{
		Type: NodeLine, X: 40, Y: 40, Length: 20, Thickness: 1,
		Color: ColorRed, Key: "deg",
	}}}
	w := NewWidgetInstance("w", doc, 0, 0, 80, 80, nil)
	w.Numeric["deg"] = 0 // angle 0 points straight up

	r.RenderWidget(w, GeoSnapshot{}, PrefSnapshot{})
	if fb.Get(40, 25) != ColorRed {
		t.Error("hand at angle 0 should point up")
	}
	if fb.Get(55, 40) == ColorRed {
		t.Error("hand at angle 0 should not point right")
	}
}

func TestRenderArc(t *testing.T) {
	r, fb := testRenderer()
	doc := &Document{Nodes: []Node{{
		Type: NodeArc, X: 40, Y: 40, Radius: 15, Thickness: 2,
		Color: 0x07FF, StartDeg: 0, EndDeg: 90,
	}}}
	w := NewWidgetInstance("w", doc, 0, 0, 80, 80, nil)
	r.RenderWidget(w, GeoSnapshot{}, PrefSnapshot{})

	// 0..90 degrees rotated -90: the arc occupies the top-right quadrant
	if fb.Get(40, 40-15) != 0x07FF {
		t.Error("arc start pixel missing")
	}
	if fb.Get(40+15, 40) != 0x07FF {
		t.Error("arc end pixel missing")
	}
	if fb.Get(40-15, 40) == 0x07FF {
		t.Error("arc drew outside its span")
	}
}

func TestRenderIconFromFile(t *testing.T) {
	dir := t.TempDir()
	// 2x2 big-endian RGB565 red pixels
	red := []byte{0xF8, 0x00, 0xF8, 0x00, 0xF8, 0x00, 0xF8, 0x00}
	path := filepath.Join(dir, "dot.raw")
	if err := os.WriteFile(path, red, 0o644); err != nil {
		t.Fatal(err)
	}

	r, fb := testRenderer()
	doc := &Document{Nodes: []Node{{
		Type: NodeIcon, X: 5, Y: 5, W: 2, H: 2, Path: path,
	}}}
	w := NewWidgetInstance("w", doc, 0, 0, 40, 40, nil)
	r.RenderWidget(w, GeoSnapshot{}, PrefSnapshot{})

	if fb.Get(5, 5) != 0xF800 {
		t.Errorf("icon pixel = %04x, want byte-swapped red", fb.Get(5, 5))
	}
}

func TestRenderModalOverlay(t *testing.T) {
	r, fb := testRenderer()
	doc := &Document{
		Modals: []Modal{{
			ID: "m", X: -1, Y: -1, W: 60, H: 40, Font: 2,
			Bg: 0x10A2, Border: 0x4C9C, TitleColor: ColorWhite, TextColor: 0xDF3E,
			Title: "Info", Text: "hello",
		}},
	}
	w := NewWidgetInstance("w", doc, 0, 0, 200, 120, nil)
	w.OpenModal("m", 0, 0)
	r.RenderWidget(w, GeoSnapshot{}, PrefSnapshot{})

	// centered: x=(200-60)/2=70, y=(120-40)/2=40
	if fb.Get(71, 41) != 0x10A2 {
		t.Errorf("modal bg = %04x", fb.Get(71, 41))
	}
	if fb.Get(70, 40) != 0x4C9C {
		t.Errorf("modal border = %04x", fb.Get(70, 40))
	}
	if countColor(fb, ColorWhite) == 0 {
		t.Error("modal title not drawn")
	}
}

func TestWrapLines(t *testing.T) {
	font := FontByID(2) // 7px advance
	lines := wrapLines(font, "the quick brown fox", 70)
	// 10 chars per line at 7px
	want := []string{"the quick", "brown fox"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	// words longer than the line split mid-word
	lines = wrapLines(font, "abcdefghijklmno", 35)
	if len(lines) != 3 || lines[0] != "abcde" {
		t.Errorf("long word split = %v", lines)
	}

	// explicit newlines are respected
	lines = wrapLines(font, "a\nb", 70)
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Errorf("newline split = %v", lines)
	}
}

func TestEllipsize(t *testing.T) {
	font := FontByID(2)
	if got := ellipsize(font, "short", 70); got != "short" {
		t.Errorf("fit text changed: %q", got)
	}
	got := ellipsize(font, "averylongline", 70)
	if len(got) != 10 || got[7:] != "..." {
		t.Errorf("ellipsized = %q", got)
	}
	if got := ellipsize(font, "abc", 0); got != "" {
		t.Errorf("zero width = %q", got)
	}
}
