package vitals

import (
	"github.com/vincentbai/browsetrace-vitals/internal/analytics"
	"github.com/vincentbai/browsetrace-vitals/internal/browser"
	"github.com/vincentbai/browsetrace-vitals/internal/models"
)

// clsScale encodes the unitless score as an integer metric.
const clsScale = 1000

// CLS accumulates layout shifts not caused by recent input and reports the
// total once, the first time the page becomes hidden. A page that is never
// hidden never reports.
type CLS struct {
	watch
	log        Sender
	visibility browser.Visibility
	listener   browser.ListenerID
	total      float64
}

// TrackCLS starts accumulating layout-shift entries.
func TrackCLS(timeline browser.Timeline, visibility browser.Visibility, log Sender) *CLS {
	w := &CLS{log: log, visibility: visibility}
	w.attach(timeline.Observe(models.EntryLayoutShift, true, w.accumulate))
	if w.listening() {
		w.listener = visibility.Subscribe(w.visibilityChanged)
	}
	return w
}

// Total returns the score accumulated so far.
func (w *CLS) Total() float64 { return w.total }

func (w *CLS) accumulate(entries []models.Entry) {
	if !w.listening() {
		return
	}
	for _, entry := range entries {
		if entry.HadRecentInput {
			continue
		}
		w.total += entry.Value
	}
}

func (w *CLS) visibilityChanged(state string) {
	if state != models.VisibilityHidden || !w.listening() {
		return
	}
	w.accumulate(w.takeRecords())
	w.disconnect()
	w.visibility.Unsubscribe(w.listener)

	score := round(w.total * clsScale)
	w.log.Send(analytics.HitEvent, analytics.Fields{
		analytics.FieldEventCategory:  categoryPerformance,
		analytics.FieldEventAction:    "CLS",
		analytics.FieldEventValue:     score,
		analytics.FieldNonInteraction: true,
		analytics.MetricCLS:           score,
	})
}
