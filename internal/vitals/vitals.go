// Package vitals converts performance timeline entries into one-shot metric
// hits: FCP, LCP, FID, CLS and navigation timing.
//
// Each watcher is an explicit two-state machine. It starts Listening and moves
// to Disconnected after its single emission (or when the host cannot observe
// its entry type), so late callbacks are ignored rather than re-emitted.
package vitals

import (
	"math"

	"github.com/vincentbai/browsetrace-vitals/internal/analytics"
	"github.com/vincentbai/browsetrace-vitals/internal/browser"
	"github.com/vincentbai/browsetrace-vitals/internal/models"
)

// Sender dispatches a hit. *analytics.Logger satisfies it.
type Sender interface {
	Send(hitType string, fields analytics.Fields)
}

// State of a watcher.
type State int

const (
	Listening State = iota
	Disconnected
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "disconnected"
}

const categoryPerformance = "Performance Metrics"

// watch holds the observer registration shared by every watcher.
type watch struct {
	state    State
	observer browser.Observer
}

// attach records obs. A watcher that already disconnected (or has no
// observer) disconnects obs immediately.
func (w *watch) attach(obs browser.Observer) {
	if obs == nil {
		w.state = Disconnected
		return
	}
	if w.state == Disconnected {
		obs.Disconnect()
		return
	}
	w.observer = obs
}

// State reports whether the watcher is still listening.
func (w *watch) State() State { return w.state }

func (w *watch) listening() bool { return w.state == Listening }

func (w *watch) disconnect() {
	w.state = Disconnected
	if w.observer != nil {
		w.observer.Disconnect()
		w.observer = nil
	}
}

func (w *watch) takeRecords() []models.Entry {
	if w.observer == nil {
		return nil
	}
	return w.observer.TakeRecords()
}

// round is half-up rounding, matching how browsers report rounded timings.
func round(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}
