package analytics

// TrackingVersion is attached to every hit so reports can be segmented by
// tracking-schema revision. Bump it whenever a key below changes meaning.
const TrackingVersion = "7"

// Custom dimensions. Keys are stable; never reuse a retired index.
const (
	DimensionBreakpoint              = "dimension1"
	DimensionPixelDensity            = "dimension2"
	DimensionTrackingVersion         = "dimension3"
	DimensionClientID                = "dimension4"
	DimensionWindowID                = "dimension5"
	DimensionHitID                   = "dimension6"
	DimensionHitTime                 = "dimension7"
	DimensionHitType                 = "dimension8"
	DimensionVisibilityState         = "dimension9"
	DimensionServiceWorkerState      = "dimension10"
	DimensionEffectiveConnectionType = "dimension11"
)

// Custom metrics. All values are integers.
const (
	MetricResponseEndTime  = "metric1"
	MetricDOMLoadTime      = "metric2"
	MetricWindowLoadTime   = "metric3"
	MetricPageLoads        = "metric4"
	MetricRequestStartTime = "metric5"
	MetricResponseStart    = "metric6"
	MetricWorkerStartTime  = "metric7"
	MetricFCP              = "metric8"
	MetricLCP              = "metric9"
	MetricFID              = "metric10"
	MetricCLS              = "metric11"
)

// Standard hit fields.
const (
	FieldEventCategory  = "eventCategory"
	FieldEventAction    = "eventAction"
	FieldEventLabel     = "eventLabel"
	FieldEventValue     = "eventValue"
	FieldNonInteraction = "nonInteraction"
	FieldPage           = "page"
	FieldTitle          = "title"
	FieldClientID       = "clientId"
)

// Hit types.
const (
	HitPageview = "pageview"
	HitEvent    = "event"
)
