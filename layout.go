package costar

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Region is one placed widget slot from the layout document.
type Region struct {
	ID       string
	Widget   string
	X, Y     int
	W, H     int
	Settings map[string]string
}

// Composer owns the widget instances for one screen: it loads the
// layout, resolves each region's DSL document, ticks the instances and
// forwards pointer events. Layout and DSL files are watched for live
// reload.
type Composer struct {
	LayoutPath string
	DSLDir     string
	Sched      *Scheduler

	Widgets []*WidgetInstance

	watcher *fsnotify.Watcher
	reload  chan string
}

func NewComposer(layoutPath, dslDir string, sched *Scheduler) *Composer {
	return &Composer{
		LayoutPath: layoutPath,
		DSLDir:     dslDir,
		Sched:      sched,
		reload:     make(chan string, 8),
	}
}

// Load parses the layout document and builds the widget instances.
// Previously loaded instances are discarded.
func (c *Composer) Load(nowMs int64) error {
	doc, err := parseLayoutFile(c.LayoutPath)
	if err != nil {
		return err
	}

	widgets := make([]*WidgetInstance, 0, len(doc))
	for _, region := range doc {
		inst, err := c.buildInstance(region)
		if err != nil {
			layoutLog.Printf("region %s: %v", region.ID, err)
			continue
		}
		c.Sched.Register(inst, nowMs)
		widgets = append(widgets, inst)
	}
	c.Widgets = widgets
	layoutLog.Printf("loaded %d widgets from %s", len(widgets), c.LayoutPath)
	return nil
}

// dslPathFor resolves the document path for a region: an explicit
// settings.dsl_path wins, else the widget name with dashes flattened to
// underscores under the DSL directory.
func (c *Composer) dslPathFor(region Region) string {
	if p := region.Settings["dsl_path"]; p != "" {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.DSLDir, p)
	}
	name := strings.ReplaceAll(region.Widget, "-", "_")
	return filepath.Join(c.DSLDir, name+".json")
}

func (c *Composer) buildInstance(region Region) (*WidgetInstance, error) {
	path := c.dslPathFor(region)
	doc, err := ParseDocumentFile(path)
	if err != nil {
		return nil, err
	}
	inst := NewWidgetInstance(region.ID, doc, region.X, region.Y, region.W, region.H, region.Settings)
	inst.Name = region.Widget
	return inst, nil
}

// Tick advances every widget; it reports whether any needs a repaint.
func (c *Composer) Tick(nowMs int64) bool {
	c.drainReloads(nowMs)
	dirty := false
	for _, w := range c.Widgets {
		if c.Sched.Tick(w, nowMs) {
			dirty = true
		}
	}
	return dirty
}

// HandleTouch routes a screen-space touch to the top-most widget whose
// rectangle contains it, in widget-local coordinates.
func (c *Composer) HandleTouch(x, y int, nowMs int64) {
	for i := len(c.Widgets) - 1; i >= 0; i-- {
		w := c.Widgets[i]
		if x >= w.X && x < w.X+w.W && y >= w.Y && y < w.Y+w.H {
			c.Sched.HandleTap(w, x-w.X, y-w.Y, nowMs)
			return
		}
	}
}

// Watch starts fsnotify on the layout file and the DSL directory.
// Events are queued and folded into the next Tick.
func (c *Composer) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("layout watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(c.LayoutPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", c.LayoutPath, err)
	}
	if c.DSLDir != filepath.Dir(c.LayoutPath) {
		if err := watcher.Add(c.DSLDir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch %s: %w", c.DSLDir, err)
		}
	}
	c.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case c.reload <- ev.Name:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				layoutLog.Printf("watch error: %v", err)
			}
		}
	}()
	return nil
}

// Close stops the file watcher.
func (c *Composer) Close() {
	if c.watcher != nil {
		c.watcher.Close()
	}
}

// drainReloads applies queued file-change events: a layout change
// rebuilds everything, a DSL change reloads just the widgets using that
// document.
func (c *Composer) drainReloads(nowMs int64) {
	seen := map[string]bool{}
	for {
		select {
		case name := <-c.reload:
			if seen[name] {
				continue
			}
			seen[name] = true
			c.applyReload(name, nowMs)
		default:
			return
		}
	}
}

func (c *Composer) applyReload(name string, nowMs int64) {
	if filepath.Clean(name) == filepath.Clean(c.LayoutPath) {
		layoutLog.Printf("layout changed, reloading")
		if err := c.Load(nowMs); err != nil {
			layoutLog.Printf("reload: %v", err)
		}
		return
	}
	if filepath.Ext(name) != ".json" {
		return
	}
	for i, w := range c.Widgets {
		if filepath.Clean(c.instancePath(w)) != filepath.Clean(name) {
			continue
		}
		inst, err := c.buildInstance(Region{
			ID: w.ID, Widget: w.Name, X: w.X, Y: w.Y, W: w.W, H: w.H,
			Settings: w.Settings,
		})
		if err != nil {
			layoutLog.Printf("reload %s: %v", name, err)
			continue
		}
		c.Sched.Register(inst, nowMs)
		c.Widgets[i] = inst
		layoutLog.Printf("reloaded widget %s from %s", w.ID, name)
	}
}

func (c *Composer) instancePath(w *WidgetInstance) string {
	return c.dslPathFor(Region{Widget: w.Name, Settings: w.Settings})
}

// parseLayoutFile reads a layout document and returns its usable
// regions: zero-size and fully off-screen slots are dropped, partial
// overhangs clamped to the panel.
func parseLayoutFile(path string) ([]Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("layout file missing: %w", err)
	}
	root, err := ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("layout parse: %w", err)
	}
	return parseLayout(root)
}

func parseLayout(root Value) ([]Region, error) {
	regionsVal, ok := root.Resolve("screen.regions")
	if !ok {
		return nil, fmt.Errorf("layout has no screen.regions")
	}

	defs := map[string]map[string]string{}
	if defsVal, ok := root.Resolve("widget_defs"); ok {
		for name, raw := range defsVal.Object() {
			settings := map[string]string{}
			if obj, ok := (Value{raw: raw}).Resolve("settings"); ok {
				for k, sv := range obj.Object() {
					settings[k] = (Value{raw: sv}).Text()
				}
			}
			defs[name] = settings
		}
	}

	var out []Region
	for i := 0; ; i++ {
		rv, ok := regionsVal.Index(i)
		if !ok {
			break
		}
		region := Region{
			ID:     resolveText(rv, "id"),
			Widget: resolveText(rv, "widget"),
			X:      int(resolveFloatOr(rv, "x", 0)),
			Y:      int(resolveFloatOr(rv, "y", 0)),
			W:      int(resolveFloatOr(rv, "w", 0)),
			H:      int(resolveFloatOr(rv, "h", 0)),
		}
		if region.ID == "" {
			region.ID = region.Widget
		}
		if region.W <= 0 || region.H <= 0 {
			layoutLog.Printf("region %s: zero size, skipped", region.ID)
			continue
		}
		if region.X >= ScreenW || region.Y >= ScreenH || region.X+region.W <= 0 || region.Y+region.H <= 0 {
			layoutLog.Printf("region %s: off screen, skipped", region.ID)
			continue
		}
		clampRegion(&region)

		region.Settings = map[string]string{}
		for k, v := range defs[region.Widget] {
			region.Settings[k] = v
		}
		if sv, ok := rv.Resolve("settings"); ok {
			for k, raw := range sv.Object() {
				region.Settings[k] = (Value{raw: raw}).Text()
			}
		}
		out = append(out, region)
	}
	return out, nil
}

func clampRegion(r *Region) {
	if r.X < 0 {
		r.W += r.X
		r.X = 0
	}
	if r.Y < 0 {
		r.H += r.Y
		r.Y = 0
	}
	if r.X+r.W > ScreenW {
		r.W = ScreenW - r.X
	}
	if r.Y+r.H > ScreenH {
		r.H = ScreenH - r.Y
	}
}

func resolveFloatOr(v Value, path string, def float64) float64 {
	node, ok := v.Resolve(path)
	if !ok {
		return def
	}
	f, ok := node.Float()
	if !ok {
		return def
	}
	return f
}
