package browser

import (
	"testing"

	"github.com/vincentbai/browsetrace-vitals/internal/models"
)

func newPage(t *testing.T, init models.Signal) *Page {
	t.Helper()
	init.Type = models.SignalInit
	page, err := NewPage("window-1", init, 2)
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	return page
}

func TestNewPageErrors(t *testing.T) {
	if _, err := NewPage("", models.Signal{Type: models.SignalInit}, 0); err == nil {
		t.Error("Expected error for empty window id")
	}
	if _, err := NewPage("w", models.Signal{Type: models.SignalLoad}, 0); err == nil {
		t.Error("Expected error for a page not started by init")
	}
}

func TestNewPageDefaults(t *testing.T) {
	page := newPage(t, models.Signal{})
	page.Run(func(h Host) {
		if h.ReadyState() != models.ReadyStateLoading {
			t.Errorf("ReadyState() = %q", h.ReadyState())
		}
		if h.VisibilityState() != models.VisibilityVisible || !h.VisibleSinceStart() {
			t.Error("Expected a visible page")
		}
		if h.ServiceWorkerState() != ServiceWorkerUnsupported {
			t.Errorf("ServiceWorkerState() = %q", h.ServiceWorkerState())
		}
		if !h.MatchMedia("all") || h.MatchMedia("(min-width: 420px)") {
			t.Error("Unexpected media match")
		}
		if _, ok := h.EffectiveConnectionType(); ok {
			t.Error("Expected no connection type")
		}
	})
}

func TestObserveBufferedAndLive(t *testing.T) {
	page := newPage(t, models.Signal{Entries: []models.Entry{
		{EntryType: models.EntryPaint, Name: "first-paint", StartTime: 10},
	}})

	var got []string
	page.Run(func(h Host) {
		h.Observe(models.EntryPaint, true, func(entries []models.Entry) {
			for _, e := range entries {
				got = append(got, e.Name)
			}
		})
	})
	if len(got) != 1 || got[0] != "first-paint" {
		t.Fatalf("Expected buffered entry delivered after Run, got %v", got)
	}

	err := page.Apply(models.Signal{Type: models.SignalEntries, Entries: []models.Entry{
		{EntryType: models.EntryPaint, Name: "first-contentful-paint", StartTime: 20},
		{EntryType: models.EntryLCP, StartTime: 30},
	}})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(got) != 2 || got[1] != "first-contentful-paint" {
		t.Errorf("Expected live entry delivered, got %v", got)
	}
}

func TestObserveUnsupportedType(t *testing.T) {
	page := newPage(t, models.Signal{SupportedEntryTypes: []string{models.EntryPaint}})
	page.Run(func(h Host) {
		if o := h.Observe(models.EntryLayoutShift, true, func([]models.Entry) {}); o != nil {
			t.Error("Expected nil observer for an unsupported type")
		}
		if _, ok := h.NavigationEntry(); ok {
			t.Error("Expected no navigation entry")
		}
	})
}

func TestTakeRecordsAndDisconnect(t *testing.T) {
	page := newPage(t, models.Signal{})
	delivered := 0
	var taken []models.Entry
	page.Run(func(h Host) {
		observer := h.Observe(models.EntryLayoutShift, false, func(entries []models.Entry) {
			delivered += len(entries)
		})
		// Records queued before delivery can be drawn out synchronously.
		page.host.record([]models.Entry{{EntryType: models.EntryLayoutShift, Value: 0.1}})
		taken = observer.TakeRecords()
		observer.Disconnect()
	})
	if len(taken) != 1 || delivered != 0 {
		t.Errorf("taken = %d delivered = %d, want 1 and 0", len(taken), delivered)
	}

	page.Apply(models.Signal{Type: models.SignalEntries, Entries: []models.Entry{
		{EntryType: models.EntryLayoutShift, Value: 0.2},
	}})
	if delivered != 0 {
		t.Errorf("Expected no delivery after Disconnect, got %d", delivered)
	}
}

func TestVisibilitySubscriptions(t *testing.T) {
	page := newPage(t, models.Signal{})
	var states []string
	var id ListenerID
	page.Run(func(h Host) {
		id = h.Subscribe(func(state string) { states = append(states, state) })
	})

	page.Apply(
		models.Signal{Type: models.SignalVisibilityChange, VisibilityState: models.VisibilityHidden},
		models.Signal{Type: models.SignalVisibilityChange, VisibilityState: models.VisibilityHidden},
		models.Signal{Type: models.SignalVisibilityChange, VisibilityState: models.VisibilityVisible},
	)
	if len(states) != 2 {
		t.Fatalf("Expected repeated states to be ignored, got %v", states)
	}

	page.Run(func(h Host) {
		if h.VisibleSinceStart() {
			t.Error("Expected VisibleSinceStart to stay false once hidden")
		}
		h.Unsubscribe(id)
	})
	page.Apply(models.Signal{Type: models.SignalVisibilityChange, VisibilityState: models.VisibilityHidden})
	if len(states) != 2 {
		t.Errorf("Expected no callback after Unsubscribe, got %v", states)
	}
}

func TestLoadFiresOnce(t *testing.T) {
	page := newPage(t, models.Signal{})
	loads := 0
	page.Run(func(h Host) { h.OnLoad(func() { loads++ }) })

	page.Apply(models.Signal{Type: models.SignalLoad}, models.Signal{Type: models.SignalLoad})
	if loads != 1 {
		t.Errorf("Expected one load callback, got %d", loads)
	}
	page.Run(func(h Host) {
		if h.ReadyState() != models.ReadyStateComplete {
			t.Errorf("ReadyState() = %q", h.ReadyState())
		}
		h.OnLoad(func() { loads++ })
	})
	if loads != 1 {
		t.Errorf("Expected late OnLoad to be ignored, got %d", loads)
	}
}

func TestErrorsQueueUntilListener(t *testing.T) {
	page := newPage(t, models.Signal{QueuedErrors: []models.ErrorInfo{{Name: "A"}}})
	page.Apply(
		models.Signal{Type: models.SignalError, Error: &models.ErrorInfo{Name: "B"}},
		models.Signal{Type: models.SignalError, Error: &models.ErrorInfo{Name: "C"}},
	)

	var live []string
	page.Run(func(h Host) {
		queued := h.QueuedErrors()
		if len(queued) != 2 || queued[0].Name != "A" || queued[1].Name != "B" {
			t.Errorf("Expected backlog bounded to 2, got %+v", queued)
		}
		if len(h.QueuedErrors()) != 0 {
			t.Error("Expected QueuedErrors to drain the backlog")
		}
		h.OnError(func(e models.ErrorInfo) { live = append(live, e.Name) })
	})

	page.Apply(models.Signal{Type: models.SignalError, Error: &models.ErrorInfo{Name: "D"}})
	if len(live) != 1 || live[0] != "D" {
		t.Errorf("Expected live error delivered, got %v", live)
	}
}

func TestUnloadClosesPage(t *testing.T) {
	page := newPage(t, models.Signal{})
	var hidden bool
	page.Run(func(h Host) {
		h.Subscribe(func(state string) { hidden = state == models.VisibilityHidden })
	})

	if err := page.Apply(models.Signal{Type: models.SignalUnload}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !page.Closed() || !hidden {
		t.Error("Expected unload to hide and close the page")
	}
	if err := page.Apply(models.Signal{Type: models.SignalEntries}); err == nil {
		t.Error("Expected error for a signal after unload")
	}
}

func TestApplyRejectsBadSignals(t *testing.T) {
	tests := []models.Signal{
		{Type: models.SignalInit},
		{Type: models.SignalError},
		{Type: "scroll"},
	}
	for _, signal := range tests {
		t.Run(signal.Type, func(t *testing.T) {
			page := newPage(t, models.Signal{})
			if err := page.Apply(signal); err == nil {
				t.Errorf("Expected error for %q", signal.Type)
			}
		})
	}
}
