package vitals

import (
	"github.com/vincentbai/browsetrace-vitals/internal/analytics"
	"github.com/vincentbai/browsetrace-vitals/internal/browser"
	"github.com/vincentbai/browsetrace-vitals/internal/models"
)

const firstContentfulPaint = "first-contentful-paint"

// FCP reports First Contentful Paint at most once.
type FCP struct {
	watch
	log Sender
}

// TrackFCP starts watching paint entries.
func TrackFCP(timeline browser.Timeline, log Sender) *FCP {
	w := &FCP{log: log}
	w.attach(timeline.Observe(models.EntryPaint, true, w.handle))
	return w
}

func (w *FCP) handle(entries []models.Entry) {
	if !w.listening() {
		return
	}
	for _, entry := range entries {
		if entry.Name != firstContentfulPaint {
			continue
		}
		w.disconnect()
		w.log.Send(analytics.HitEvent, analytics.Fields{
			analytics.FieldEventCategory:  categoryPerformance,
			analytics.FieldEventAction:    "FCP",
			analytics.FieldNonInteraction: true,
			analytics.MetricFCP:           round(entry.StartTime),
		})
		return
	}
}
