// Package browser defines the host-environment contracts the page
// instrumentation runs against, and Page, an in-agent model of one browser
// window fed by forwarded signals.
package browser

import "github.com/vincentbai/browsetrace-vitals/internal/models"

// EntryCallback receives a batch of performance entries.
type EntryCallback func(entries []models.Entry)

// Observer is a registered performance observer.
type Observer interface {
	// TakeRecords returns and clears entries queued but not yet delivered.
	TakeRecords() []models.Entry
	// Disconnect stops delivery. It is safe to call more than once.
	Disconnect()
}

// Timeline is the page's performance timeline.
type Timeline interface {
	// Observe registers fn for entryType. When buffered is set, entries
	// recorded before registration are queued for delivery too. It returns
	// nil when the host cannot observe entryType.
	Observe(entryType string, buffered bool, fn EntryCallback) Observer
	// NavigationEntry returns the native navigation timing record.
	NavigationEntry() (models.Navigation, bool)
	// LegacyTiming returns the deprecated absolute timing fields.
	LegacyTiming() (models.LegacyTiming, bool)
}

// ListenerID identifies a visibility subscription.
type ListenerID uint64

// Visibility exposes document visibility and its change notifications.
type Visibility interface {
	VisibilityState() string
	// Subscribe registers fn and returns a handle for Unsubscribe.
	Subscribe(fn func(state string)) ListenerID
	// Unsubscribe removes the listener. Unknown or spent handles are ignored.
	Unsubscribe(id ListenerID)
}

// LoadState exposes document readiness.
type LoadState interface {
	ReadyState() string
	// OnLoad registers fn to run when the window load event fires.
	OnLoad(fn func())
}

// ErrorSource exposes script errors.
type ErrorSource interface {
	// QueuedErrors returns errors captured before any tracker was attached.
	QueuedErrors() []models.ErrorInfo
	// OnError registers fn for every future uncaught error.
	OnError(fn func(models.ErrorInfo))
}

// Environment exposes the static probes read once at bootstrap.
type Environment interface {
	MatchMedia(query string) bool
	ClientID() string
	URL() string
	Title() string
	// ServiceWorkerState is one of unsupported, supported or controlled.
	ServiceWorkerState() string
	// Controlled reports whether a service worker served this page.
	Controlled() bool
	// EffectiveConnectionType returns the network estimate when known.
	EffectiveConnectionType() (string, bool)
	// VisibleSinceStart reports whether the page has never been hidden.
	VisibleSinceStart() bool
}

// Host bundles every contract a page offers.
type Host interface {
	Timeline
	Visibility
	LoadState
	ErrorSource
	Environment
}

// Service worker states.
const (
	ServiceWorkerUnsupported = "unsupported"
	ServiceWorkerSupported   = "supported"
	ServiceWorkerControlled  = "controlled"
)
