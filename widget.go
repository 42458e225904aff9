package costar

import (
	"reflect"
	"slices"
	"strings"
	"sync/atomic"
	"time"
)

// WidgetStatus tracks where a widget instance is in its fetch lifecycle.
type WidgetStatus int

const (
	StatusInit WidgetStatus = iota
	StatusOk
	StatusNetErr
	StatusParseErr
	StatusConfigErr
)

func (s WidgetStatus) String() string {
	switch s {
	case StatusInit:
		return "init"
	case StatusOk:
		return "ok"
	case StatusNetErr:
		return "net-err"
	case StatusParseErr:
		return "parse-err"
	case StatusConfigErr:
		return "config-err"
	}
	return "unknown"
}

// WidgetInstance is one placed widget: its parsed document, screen
// rectangle, resolved values and polling state. Instances own their
// values and series exclusively; shared runtime data (geo, prefs) is
// read-only during a tick.
type WidgetInstance struct {
	ID       string
	Name     string // widget definition name from the layout
	Doc      *Document
	X, Y     int
	W, H     int
	Settings map[string]string

	Values  map[string]string
	Series  map[string][]float64
	Numeric map[string]float64

	// retained source document, kept when nodes read raw JSON paths
	Source    Value
	HasSource bool

	Status WidgetStatus
	Dirty  bool

	lastFetchMs int64
	notBeforeMs int64
	// forceAtMs is written by tap goroutines, read by the tick loop
	forceAtMs    atomic.Int64
	firstFetch   bool
	failStreak   uint8
	backoffUntil int64
	fetching     bool
	results      chan fetchOutcome

	// open modal overlay, empty when none
	ActiveModal   string
	modalClosesMs int64
}

func NewWidgetInstance(id string, doc *Document, x, y, w, h int, settings map[string]string) *WidgetInstance {
	return &WidgetInstance{
		ID:         id,
		Doc:        doc,
		X:          x,
		Y:          y,
		W:          w,
		H:          h,
		Settings:   settings,
		Values:     make(map[string]string),
		Series:     make(map[string][]float64),
		Numeric:    make(map[string]float64),
		firstFetch: true,
		results:    make(chan fetchOutcome, 1),
	}
}

// templateEnv builds the binding context for this instance.
func (w *WidgetInstance) templateEnv(geo GeoSnapshot, prefs PrefSnapshot) *TemplateEnv {
	return &TemplateEnv{Geo: geo, Prefs: prefs, Settings: w.Settings, Values: w.Values}
}

// applyDocument walks the document's field specs against a fetched JSON
// document, filling values, series and numeric caches. It reports
// whether anything visible changed.
func (w *WidgetInstance) applyDocument(doc Value, now time.Time, geo GeoSnapshot, prefs PrefSnapshot) bool {
	env := w.templateEnv(geo, prefs)
	fmtr := &Formatter{Geo: geo, Prefs: prefs}
	changed := false

	for key, spec := range w.Doc.Fields {
		path := env.Bind(spec.Path)

		if computed, ok := strings.CutPrefix(path, "computed."); ok {
			out := w.computeDerived(computed, now)
			if w.Values[key] != out {
				changed = true
			}
			w.Values[key] = out
			continue
		}

		node, ok := doc.Resolve(path)
		if !ok {
			if w.Values[key] != "" {
				changed = true
			}
			w.Values[key] = ""
			if _, had := w.Series[key]; had {
				delete(w.Series, key)
				changed = true
			}
			delete(w.Numeric, key)
			continue
		}

		boundSpec := w.bindFormat(spec.Format, env)

		if series := node.FloatSeries(); series != nil {
			if !slices.Equal(w.Series[key], series) {
				changed = true
			}
			w.Series[key] = series
			if len(series) > 0 {
				last := series[len(series)-1]
				out := fmtr.Apply("", boundSpec, true, last)
				if w.Values[key] != out {
					changed = true
				}
				w.Values[key] = out
				w.Numeric[key] = last
			}
			continue
		}

		raw := node.Text()
		num, numeric := node.Float()
		out := fmtr.Apply(raw, boundSpec, numeric, num)
		if w.Values[key] != out {
			changed = true
		}
		w.Values[key] = out
		if numeric {
			w.Numeric[key] = num
		} else {
			delete(w.Numeric, key)
		}
	}

	applyWeatherDerivedValues(w.Values)

	if w.Doc.RetainSource {
		if !w.HasSource || !reflect.DeepEqual(w.Source.raw, doc.raw) {
			changed = true
		}
		w.Source = doc
		w.HasSource = true
	}
	return changed
}

// computeDerived handles computed.* field paths.
func (w *WidgetInstance) computeDerived(name string, now time.Time) string {
	switch name {
	case "moon_phase":
		return MoonPhaseName(MoonPhaseFraction(now))
	}
	return ""
}

// bindFormat template-binds every textual field of a format spec so
// documents can key units and zones off runtime state.
func (w *WidgetInstance) bindFormat(spec FormatSpec, env *TemplateEnv) FormatSpec {
	spec.Prefix = env.Bind(spec.Prefix)
	spec.Suffix = env.Bind(spec.Suffix)
	spec.Unit = env.Bind(spec.Unit)
	spec.Locale = env.Bind(spec.Locale)
	spec.Tz = env.Bind(spec.Tz)
	spec.TimeFormat = env.Bind(spec.TimeFormat)
	return spec
}

// NumericVar resolves identifiers inside angle expressions from the
// widget's numeric values.
func (w *WidgetInstance) NumericVar(name string) (float64, bool) {
	v, ok := w.Numeric[name]
	return v, ok
}

// HitTouchRegion returns the first region containing the widget-local
// point, or nil.
func (w *WidgetInstance) HitTouchRegion(x, y int) *TouchRegion {
	for i := range w.Doc.TouchRegions {
		if w.Doc.TouchRegions[i].Contains(x, y) {
			return &w.Doc.TouchRegions[i]
		}
	}
	return nil
}

// FindModal looks up a modal by id.
func (w *WidgetInstance) FindModal(id string) *Modal {
	for i := range w.Doc.Modals {
		if w.Doc.Modals[i].ID == id {
			return &w.Doc.Modals[i]
		}
	}
	return nil
}

// OpenModal shows a modal overlay; a DismissMs > 0 auto-closes it.
func (w *WidgetInstance) OpenModal(id string, nowMs int64, dismissMs int) {
	if w.FindModal(id) == nil {
		return
	}
	w.ActiveModal = id
	w.modalClosesMs = 0
	if dismissMs > 0 {
		w.modalClosesMs = nowMs + int64(dismissMs)
	}
	w.Dirty = true
}

// CloseModal dismisses any open overlay.
func (w *WidgetInstance) CloseModal() {
	if w.ActiveModal != "" {
		w.ActiveModal = ""
		w.modalClosesMs = 0
		w.Dirty = true
	}
}
