package costar

import (
	"context"
	"time"
)

// Config carries the file-system layout of an appliance installation.
type Config struct {
	LayoutPath string
	DSLDir     string
	IconDir    string
	DBPath     string
	// TickEvery is the main-loop cadence; zero means 50ms.
	TickEvery time.Duration
}

// App wires the full runtime: persistent store, preferences, geo
// context, gated HTTP transport, widget scheduler, layout composer and
// renderer, all painting into one framebuffer.
type App struct {
	Store    *KVStore
	Prefs    *Prefs
	Geo      *GeoService
	Gate     *TransportGate
	Client   *HTTPClient
	Sched    *Scheduler
	Composer *Composer
	Renderer *Renderer
	FB       Framebuffer

	cfg     Config
	onFrame func()
	started int64
}

func NewApp(cfg Config, fb Framebuffer) (*App, error) {
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = 50 * time.Millisecond
	}

	store, err := OpenKVStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	gate := NewTransportGate()
	client := NewHTTPClient(gate)
	prefs := LoadPrefs(store)
	geo := NewGeoService(store, client)
	sched := NewScheduler(client, geo, prefs)

	app := &App{
		Store:    store,
		Prefs:    prefs,
		Geo:      geo,
		Gate:     gate,
		Client:   client,
		Sched:    sched,
		Composer: NewComposer(cfg.LayoutPath, cfg.DSLDir, sched),
		Renderer: NewRenderer(fb, NewIconCache(client, cfg.IconDir)),
		FB:       fb,
		cfg:      cfg,
		started:  time.Now().UnixMilli(),
	}
	return app, nil
}

// OnFrame registers a callback invoked after any repaint, so display
// backends can flush the framebuffer out.
func (a *App) OnFrame(f func()) {
	a.onFrame = f
}

// NowMs is the runtime's monotonic-ish millisecond clock.
func (a *App) NowMs() int64 {
	return time.Now().UnixMilli()
}

// Start restores the geo context, loads the layout and paints the
// initial frame. A background refresh updates the geo fix when no
// manual override is set.
func (a *App) Start(ctx context.Context) error {
	manual := a.Geo.LoadOverride()
	if !manual {
		if !a.Geo.LoadCached() {
			geoLog.Printf("no cached location, starting without a fix")
		}
		go func() {
			if err := a.Geo.RefreshFromInternet(ctx); err != nil {
				geoLog.Printf("refresh: %v", err)
			}
		}()
	}

	if err := a.Composer.Load(a.NowMs()); err != nil {
		return err
	}
	if err := a.Composer.Watch(); err != nil {
		layoutLog.Printf("live reload unavailable: %v", err)
	}

	// structure first, data later
	a.paintAll()
	return nil
}

// Step runs one main-loop iteration: tick every widget and repaint the
// dirty ones. It reports whether anything was painted.
func (a *App) Step(nowMs int64) bool {
	a.Composer.Tick(nowMs)

	painted := false
	geo := a.Geo.Snapshot()
	prefs := a.Prefs.Snapshot()
	for _, w := range a.Composer.Widgets {
		if !w.Dirty {
			continue
		}
		a.Renderer.RenderWidget(w, geo, prefs)
		painted = true
	}
	if painted && a.onFrame != nil {
		a.onFrame()
	}
	return painted
}

// Run drives the main loop until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.TickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.Gate.ReconnectSignal():
			schedLog.Printf("transport outage, reconnect requested")
		case <-ticker.C:
			a.Step(a.NowMs())
		}
	}
}

// Touch forwards a screen-space touch event into the layout.
func (a *App) Touch(x, y int) {
	a.Composer.HandleTouch(x, y, a.NowMs())
}

func (a *App) paintAll() {
	geo := a.Geo.Snapshot()
	prefs := a.Prefs.Snapshot()
	for _, w := range a.Composer.Widgets {
		a.Renderer.RenderWidget(w, geo, prefs)
	}
	if a.onFrame != nil {
		a.onFrame()
	}
}

// Close releases the watcher and the store.
func (a *App) Close() {
	a.Composer.Close()
	a.Store.Close()
}
