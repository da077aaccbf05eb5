package vitals

import (
	"math"

	"github.com/vincentbai/browsetrace-vitals/internal/analytics"
	"github.com/vincentbai/browsetrace-vitals/internal/lifecycle"
	"github.com/vincentbai/browsetrace-vitals/internal/models"
)

// maxTimingMillis is the exclusive upper bound for a plausible timing value.
const maxTimingMillis = 6_000_000

const categoryNavigation = "Navigation Timing"

// NavigationSource supplies navigation timing and service worker control.
type NavigationSource interface {
	NavigationEntry() (models.Navigation, bool)
	LegacyTiming() (models.LegacyTiming, bool)
	Controlled() bool
}

// TrackNavigation reports navigation timing once gate resolves.
func TrackNavigation(source NavigationSource, gate *lifecycle.Gate, log Sender) {
	gate.Then(func() {
		if fields, ok := NavigationFields(source); ok {
			log.Send(analytics.HitEvent, fields)
		}
	})
}

// NavigationFields reads the navigation record and converts it into hit
// fields. It returns false when no record exists or any timing is outside
// [0, 6000000) ms once rounded, worker start included on controlled pages;
// partial timings are never reported.
func NavigationFields(source NavigationSource) (analytics.Fields, bool) {
	nav, native, ok := navigationRecord(source)
	if !ok {
		return nil, false
	}

	timings := []struct {
		key   string
		value float64
	}{
		{analytics.MetricRequestStartTime, nav.RequestStart},
		{analytics.MetricResponseStart, nav.ResponseStart},
		{analytics.MetricResponseEndTime, nav.ResponseEnd},
		{analytics.MetricDOMLoadTime, nav.DomContentLoadedEventStart},
		{analytics.MetricWindowLoadTime, nav.LoadEventStart},
	}

	fields := analytics.Fields{
		analytics.FieldEventCategory:  categoryNavigation,
		analytics.FieldEventAction:    "track",
		analytics.FieldNonInteraction: true,
	}
	for _, timing := range timings {
		v, ok := validTiming(timing.value)
		if !ok {
			return nil, false
		}
		fields[timing.key] = v
	}
	// Legacy timing has no worker start, so only a native record carries it.
	if native && source.Controlled() {
		v, ok := validTiming(nav.WorkerStart)
		if !ok {
			return nil, false
		}
		fields[analytics.MetricWorkerStartTime] = v
	}
	return fields, true
}

// navigationRecord prefers the native record and falls back to legacy timing
// made relative to navigationStart. The second result reports whether the
// native record was used.
func navigationRecord(source NavigationSource) (models.Navigation, bool, bool) {
	if nav, ok := source.NavigationEntry(); ok {
		return nav, true, true
	}
	legacy, ok := source.LegacyTiming()
	if !ok {
		return models.Navigation{}, false, false
	}
	origin := legacy.NavigationStart
	return models.Navigation{
		RequestStart:               legacy.RequestStart - origin,
		ResponseStart:              legacy.ResponseStart - origin,
		ResponseEnd:                legacy.ResponseEnd - origin,
		DomContentLoadedEventStart: legacy.DomContentLoadedEventStart - origin,
		LoadEventStart:             legacy.LoadEventStart - origin,
	}, false, true
}

// validTiming rounds x and checks it against [0, maxTimingMillis). The range
// applies to the rounded value, so -0.4 is accepted as 0. Bounds are checked
// before the integer conversion so huge values cannot overflow.
func validTiming(x float64) (int64, bool) {
	if math.IsNaN(x) || x < -0.5 || x >= maxTimingMillis-0.5 {
		return 0, false
	}
	return round(x), true
}
