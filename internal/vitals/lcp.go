package vitals

import (
	"github.com/vincentbai/browsetrace-vitals/internal/analytics"
	"github.com/vincentbai/browsetrace-vitals/internal/browser"
	"github.com/vincentbai/browsetrace-vitals/internal/lifecycle"
	"github.com/vincentbai/browsetrace-vitals/internal/models"
)

// LCP reports Largest Contentful Paint once the window has loaded. Candidates
// can be superseded while the page loads, so the last entry seen by then is
// taken as final.
type LCP struct {
	watch
	log     Sender
	entries []models.Entry
}

// TrackLCP starts collecting LCP candidates and reports when gate resolves.
func TrackLCP(timeline browser.Timeline, gate *lifecycle.Gate, log Sender) *LCP {
	w := &LCP{log: log}
	w.attach(timeline.Observe(models.EntryLCP, true, w.collect))
	if w.listening() {
		gate.Then(w.report)
	}
	return w
}

func (w *LCP) collect(entries []models.Entry) {
	if !w.listening() {
		return
	}
	w.entries = append(w.entries, entries...)
}

func (w *LCP) report() {
	if !w.listening() {
		return
	}
	w.entries = append(w.entries, w.takeRecords()...)
	w.disconnect()
	if len(w.entries) == 0 {
		return
	}
	last := w.entries[len(w.entries)-1]
	w.entries = nil
	w.log.Send(analytics.HitEvent, analytics.Fields{
		analytics.FieldEventCategory:  categoryPerformance,
		analytics.FieldEventAction:    "LCP",
		analytics.FieldNonInteraction: true,
		analytics.MetricLCP:           round(last.StartTime),
	})
}
