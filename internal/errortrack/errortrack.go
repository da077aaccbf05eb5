// Package errortrack forwards page script errors as analytics events.
package errortrack

import (
	"maps"

	"github.com/vincentbai/browsetrace-vitals/internal/analytics"
	"github.com/vincentbai/browsetrace-vitals/internal/browser"
	"github.com/vincentbai/browsetrace-vitals/internal/models"
)

// Event categories. Uncaught errors reach the tracker through the page;
// reported errors are passed to Track by calling code.
const (
	CategoryUncaught = "Uncaught Error"
	CategoryReported = "Error"
)

const (
	noErrorName  = "(no error name)"
	noStackTrace = "(no stack trace)"
)

// Sender dispatches a hit. *analytics.Logger satisfies it.
type Sender interface {
	Send(hitType string, fields analytics.Fields)
}

// Tracker converts errors into event hits.
type Tracker struct {
	log     Sender
	started bool
}

// New returns a Tracker that sends through log.
func New(log Sender) *Tracker {
	return &Tracker{log: log}
}

// Start replays errors queued before the tracker existed, in order, then
// listens for every later uncaught error. Calling Start again is a no-op.
func (t *Tracker) Start(source browser.ErrorSource) {
	if t.started {
		return
	}
	t.started = true
	uncaught := analytics.Fields{analytics.FieldEventCategory: CategoryUncaught}
	for _, e := range source.QueuedErrors() {
		t.Track(e, uncaught)
	}
	source.OnError(func(e models.ErrorInfo) {
		t.Track(e, uncaught)
	})
}

// Track sends err as an event. Keys in overrides replace the defaults.
func (t *Tracker) Track(err models.ErrorInfo, overrides analytics.Fields) {
	t.log.Send(analytics.HitEvent, Fields(err, overrides))
}

// Fields builds the event record for err.
func Fields(err models.ErrorInfo, overrides analytics.Fields) analytics.Fields {
	name := err.Name
	if name == "" {
		name = noErrorName
	}
	stack := err.Stack
	if stack == "" {
		stack = noStackTrace
	}
	fields := analytics.Fields{
		analytics.FieldEventCategory:  CategoryReported,
		analytics.FieldEventAction:    name,
		analytics.FieldEventLabel:     err.Message + "\n" + stack,
		analytics.FieldNonInteraction: true,
	}
	maps.Copy(fields, overrides)
	return fields
}
