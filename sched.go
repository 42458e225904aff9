package costar

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

const (
	initialPollMs        = 15000
	deferRetryMs         = 250
	forcedRefreshDelayMs = 750
	backoffBaseMs        = 2000
	backoffCapMs         = 60000
)

// fetchOutcome is handed back from the network goroutine to the tick
// loop.
type fetchOutcome struct {
	doc      Value
	err      error
	deferred bool
	parseErr bool
}

// Scheduler drives widget polling. Ticks never block: a tick only
// starts a fetch or collects a finished one; the network goroutine does
// the waiting.
type Scheduler struct {
	Client *HTTPClient
	Geo    *GeoService
	Prefs  *Prefs

	now    func() time.Time
	jitter func(n int) int
}

func NewScheduler(client *HTTPClient, geo *GeoService, prefs *Prefs) *Scheduler {
	return &Scheduler{
		Client: client,
		Geo:    geo,
		Prefs:  prefs,
		now:    time.Now,
		jitter: rand.Intn,
	}
}

// Register primes a fresh instance: http widgets get a jittered first
// fetch so a screenful of widgets does not stampede the transport.
func (s *Scheduler) Register(w *WidgetInstance, nowMs int64) {
	if w.Doc.Source == SourceHTTP {
		window := w.Doc.PollMs / 10
		if window < 1000 {
			window = 1000
		}
		w.notBeforeMs = nowMs + int64(s.jitter(window))
	}
}

// Tick advances one widget. It returns true when the widget needs a
// repaint.
func (s *Scheduler) Tick(w *WidgetInstance, nowMs int64) bool {
	if w.Status == StatusConfigErr {
		return false
	}

	if w.ActiveModal != "" && w.modalClosesMs != 0 && nowMs >= w.modalClosesMs {
		w.CloseModal()
	}

	s.collect(w, nowMs)

	if w.fetching {
		return w.Dirty
	}
	if w.backoffUntil != 0 && nowMs < w.backoffUntil {
		return w.Dirty
	}
	if nowMs < w.notBeforeMs {
		return w.Dirty
	}

	forceAt := w.forceAtMs.Load()
	forced := forceAt != 0 && nowMs >= forceAt
	if !forced {
		cadence := int64(w.Doc.PollMs)
		if w.firstFetch {
			cadence = initialPollMs
		}
		if w.lastFetchMs != 0 && nowMs-w.lastFetchMs < cadence {
			return w.Dirty
		}
	}
	w.forceAtMs.Store(0)
	w.lastFetchMs = nowMs

	s.startFetch(w, nowMs)
	return w.Dirty
}

// collect drains at most one finished fetch and folds it into the
// widget's state.
func (s *Scheduler) collect(w *WidgetInstance, nowMs int64) {
	select {
	case out := <-w.results:
		w.fetching = false
		s.applyOutcome(w, out, nowMs)
	default:
	}
}

func (s *Scheduler) applyOutcome(w *WidgetInstance, out fetchOutcome, nowMs int64) {
	if out.deferred {
		// transport busy; try again shortly without counting a failure
		w.lastFetchMs = 0
		w.backoffUntil = nowMs + deferRetryMs
		return
	}
	if out.err != nil {
		if w.failStreak < 255 {
			w.failStreak++
		}
		shift := uint(w.failStreak)
		if shift > 5 {
			shift = 5
		}
		backoff := int64(backoffBaseMs) << shift
		if backoff > backoffCapMs {
			backoff = backoffCapMs
		}
		w.backoffUntil = nowMs + backoff
		if out.parseErr {
			w.Status = StatusParseErr
		} else {
			w.Status = StatusNetErr
		}
		w.Dirty = true
		schedLog.Printf("%s: fetch failed (streak %d): %v", w.ID, w.failStreak, out.err)
		return
	}

	geo := s.Geo.Snapshot()
	prefs := s.Prefs.Snapshot()
	changed := w.applyDocument(out.doc, s.now(), geo, prefs)
	if changed || w.Status != StatusOk {
		w.Dirty = true
	}
	w.Status = StatusOk
	w.firstFetch = false
	w.failStreak = 0
	w.backoffUntil = 0
}

// startFetch kicks off the source-appropriate fetch. local_time and
// adsb synthesis happen inline for local data; anything with a network
// leg runs in a goroutine.
func (s *Scheduler) startFetch(w *WidgetInstance, nowMs int64) {
	geo := s.Geo.Snapshot()
	prefs := s.Prefs.Snapshot()

	switch w.Doc.Source {
	case SourceLocalTime:
		doc, err := BuildLocalTimeDoc(s.now(), geo, prefs)
		if err != nil {
			s.applyOutcome(w, fetchOutcome{err: err}, nowMs)
			return
		}
		s.applyOutcome(w, fetchOutcome{doc: doc}, nowMs)

	case SourceHTTP, SourceADSBNearest:
		env := w.templateEnv(geo, prefs)
		url := env.Bind(w.Doc.URL)
		if url == "" {
			w.Status = StatusConfigErr
			w.Dirty = true
			schedLog.Printf("%s: empty url after binding", w.ID)
			return
		}
		w.fetching = true
		go s.fetchHTTP(w, url, geo, prefs)

	default:
		w.Status = StatusConfigErr
		w.Dirty = true
	}
}

func (s *Scheduler) fetchHTTP(w *WidgetInstance, url string, geo GeoSnapshot, prefs PrefSnapshot) {
	doc := *w.Doc
	doc.URL = url
	raw, _, err := s.Client.FetchDocJSON(context.Background(), &doc)
	if err != nil {
		out := fetchOutcome{err: err}
		if errors.Is(err, ErrTransportBusy) || errors.Is(err, ErrTransportCooldown) {
			out.deferred = true
		} else if strings.Contains(err.Error(), "decode") {
			out.parseErr = true
		}
		w.results <- out
		return
	}
	if w.Doc.Source == SourceADSBNearest {
		raw, err = BuildADSBNearestDoc(raw, geo, prefs)
		if err != nil {
			w.results <- fetchOutcome{err: err, parseErr: true}
			return
		}
	}
	w.results <- fetchOutcome{doc: raw}
}

// HandleTap dispatches a widget-local pointer event: regions first,
// then the legacy tap_* settings. A completed tap action forces a
// refresh shortly after so the display reflects the new remote state.
func (s *Scheduler) HandleTap(w *WidgetInstance, x, y int, nowMs int64) {
	if w.ActiveModal != "" {
		w.CloseModal()
		return
	}

	if region := w.HitTouchRegion(x, y); region != nil {
		switch region.OnTouch.Action {
		case "modal":
			w.OpenModal(region.OnTouch.ModalID, nowMs, region.OnTouch.DismissMs)
		case "http":
			s.fireTapRequest(w, FetchRequest{
				Method:      region.OnTouch.Method,
				URL:         region.OnTouch.URL,
				Headers:     region.OnTouch.Headers,
				Body:        region.OnTouch.Body,
				ContentType: region.OnTouch.ContentType,
			}, nowMs)
		}
		return
	}

	if req, ok := s.tapRequestFromSettings(w); ok {
		s.fireTapRequest(w, req, nowMs)
	}
}

// tapRequestFromSettings assembles the legacy tap action from instance
// settings: tap_url, tap_method (default POST), tap_body,
// tap_content_type (default application/json) and tap_header_<Name>
// headers with underscores turned into dashes.
func (s *Scheduler) tapRequestFromSettings(w *WidgetInstance) (FetchRequest, bool) {
	env := w.templateEnv(s.Geo.Snapshot(), s.Prefs.Snapshot())
	url := env.Bind(w.Settings["tap_url"])
	if url == "" {
		return FetchRequest{}, false
	}

	req := FetchRequest{
		URL:         url,
		Method:      strings.ToUpper(w.Settings["tap_method"]),
		Body:        env.Bind(w.Settings["tap_body"]),
		ContentType: w.Settings["tap_content_type"],
	}
	if req.Method == "" {
		req.Method = "POST"
	}
	if req.ContentType == "" {
		req.ContentType = "application/json"
	}
	for key, value := range w.Settings {
		if name, ok := strings.CutPrefix(key, "tap_header_"); ok && name != "" {
			if req.Headers == nil {
				req.Headers = make(map[string]string)
			}
			req.Headers[strings.ReplaceAll(name, "_", "-")] = value
		}
	}
	return req, true
}

func (s *Scheduler) fireTapRequest(w *WidgetInstance, req FetchRequest, nowMs int64) {
	go func() {
		if _, err := s.Client.Do(context.Background(), req); err != nil {
			schedLog.Printf("%s: tap request: %v", w.ID, err)
			return
		}
		w.forceAtMs.Store(nowMs + forcedRefreshDelayMs)
	}()
}
