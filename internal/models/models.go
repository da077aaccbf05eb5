package models

// Signal types forwarded by the browser side.
const (
	SignalInit             = "init"
	SignalEntries          = "entries"
	SignalVisibilityChange = "visibilitychange"
	SignalLoad             = "load"
	SignalError            = "error"
	SignalUnload           = "unload"
)

// Performance entry types understood by the agent.
const (
	EntryPaint       = "paint"
	EntryLCP         = "largest-contentful-paint"
	EntryFirstInput  = "first-input"
	EntryLayoutShift = "layout-shift"
	EntryNavigation  = "navigation"
)

// Visibility and ready states as reported by the document.
const (
	VisibilityVisible = "visible"
	VisibilityHidden  = "hidden"

	ReadyStateLoading  = "loading"
	ReadyStateComplete = "complete"
)

// Signal is one page event forwarded by the browser. Only the fields relevant
// to Type are populated.
type Signal struct {
	Type string `json:"type"` // init|entries|visibilitychange|load|error|unload

	// init
	URL                     string        `json:"url,omitempty"`
	Title                   *string       `json:"title,omitempty"` // nullable
	ClientID                string        `json:"client_id,omitempty"`
	ReadyState              string        `json:"ready_state,omitempty"`
	MatchedMedia            []string      `json:"matched_media,omitempty"`
	SupportedEntryTypes     []string      `json:"supported_entry_types,omitempty"`
	ServiceWorkerState      string        `json:"service_worker_state,omitempty"`
	Controlled              bool          `json:"controlled,omitempty"`
	EffectiveConnectionType string        `json:"effective_connection_type,omitempty"`
	QueuedErrors            []ErrorInfo   `json:"queued_errors,omitempty"`
	Entries                 []Entry       `json:"entries,omitempty"` // init and entries
	Navigation              *Navigation   `json:"navigation,omitempty"`
	LegacyTiming            *LegacyTiming `json:"legacy_timing,omitempty"`

	// init and visibilitychange
	VisibilityState string `json:"visibility_state,omitempty"`

	// error
	Error *ErrorInfo `json:"error,omitempty"`
}

// Batch is the body of POST /signals.
type Batch struct {
	WindowID string   `json:"window_id"`
	Signals  []Signal `json:"signals"`
}

// Entry mirrors a PerformanceEntry and the subtype fields the observers read.
type Entry struct {
	EntryType       string  `json:"entry_type"`
	Name            string  `json:"name"`
	StartTime       float64 `json:"start_time"`
	Duration        float64 `json:"duration,omitempty"`
	ProcessingStart float64 `json:"processing_start,omitempty"` // first-input
	Value           float64 `json:"value,omitempty"`            // layout-shift
	HadRecentInput  bool    `json:"had_recent_input,omitempty"` // layout-shift
}

// Navigation mirrors a PerformanceNavigationTiming record. All values are
// milliseconds relative to the page time origin.
type Navigation struct {
	WorkerStart                float64 `json:"worker_start"`
	RequestStart               float64 `json:"request_start"`
	ResponseStart              float64 `json:"response_start"`
	ResponseEnd                float64 `json:"response_end"`
	DomContentLoadedEventStart float64 `json:"dom_content_loaded_event_start"`
	LoadEventStart             float64 `json:"load_event_start"`
}

// LegacyTiming mirrors the deprecated performance.timing object. All values
// are absolute epoch milliseconds.
type LegacyTiming struct {
	NavigationStart            float64 `json:"navigation_start"`
	RequestStart               float64 `json:"request_start"`
	ResponseStart              float64 `json:"response_start"`
	ResponseEnd                float64 `json:"response_end"`
	DomContentLoadedEventStart float64 `json:"dom_content_loaded_event_start"`
	LoadEventStart             float64 `json:"load_event_start"`
}

// ErrorInfo is a script error captured on the page.
type ErrorInfo struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Hit is one record handed to a transport.
type Hit struct {
	TSUTC    int64          `json:"ts_utc"`
	WindowID string         `json:"window_id"`
	Type     string         `json:"type"` // pageview|event
	Fields   map[string]any `json:"fields"`
}
