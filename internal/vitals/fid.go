package vitals

import (
	"github.com/vincentbai/browsetrace-vitals/internal/analytics"
	"github.com/vincentbai/browsetrace-vitals/internal/browser"
	"github.com/vincentbai/browsetrace-vitals/internal/models"
)

// FID reports First Input Delay once per page, labelled with the input event
// type.
type FID struct {
	watch
	log Sender
}

// TrackFID starts watching first-input entries.
func TrackFID(timeline browser.Timeline, log Sender) *FID {
	w := &FID{log: log}
	w.attach(timeline.Observe(models.EntryFirstInput, true, w.handle))
	return w
}

func (w *FID) handle(entries []models.Entry) {
	if !w.listening() || len(entries) == 0 {
		return
	}
	entry := entries[0]
	w.disconnect()
	delay := round(entry.ProcessingStart - entry.StartTime)
	w.log.Send(analytics.HitEvent, analytics.Fields{
		analytics.FieldEventCategory:  categoryPerformance,
		analytics.FieldEventAction:    "FID",
		analytics.FieldEventLabel:     entry.Name,
		analytics.FieldEventValue:     delay,
		analytics.FieldNonInteraction: true,
		analytics.MetricFID:           delay,
	})
}
