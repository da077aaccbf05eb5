// Package tracker boots page instrumentation against a browser host.
package tracker

import (
	"net/url"
	"strconv"
	"time"

	"github.com/vincentbai/browsetrace-vitals/internal/analytics"
	"github.com/vincentbai/browsetrace-vitals/internal/browser"
	"github.com/vincentbai/browsetrace-vitals/internal/errortrack"
	"github.com/vincentbai/browsetrace-vitals/internal/lifecycle"
	"github.com/vincentbai/browsetrace-vitals/internal/vitals"
)

// Options configures Init. Zero values select the real clock and UUIDs.
type Options struct {
	Transport analytics.Transport
	Now       func() time.Time
	NewID     func() string
}

// Tracker is the instrumentation attached to one page.
type Tracker struct {
	WindowID string
	Log      *analytics.Logger
	Errors   *errortrack.Tracker
	Gate     *lifecycle.Gate

	// Nil when the page was hidden before Init.
	FCP *vitals.FCP
	LCP *vitals.LCP
	FID *vitals.FID

	CLS *vitals.CLS
}

// Init runs the one-time bootstrap sequence: static context, connection
// type, error tracking, the initial pageview, then the performance watchers.
// FCP, LCP, FID and navigation timing only start on pages that have been
// visible their whole life; CLS always starts.
//
// Init must run inside browser.Page.Run.
func Init(h browser.Host, opts Options) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = analytics.NewWindowID
	}

	t := &Tracker{
		WindowID: opts.NewID(),
		Log:      analytics.NewLogger(opts.Transport),
	}

	t.Log.Set(analytics.Fields{
		analytics.FieldClientID:               h.ClientID(),
		analytics.DimensionClientID:           h.ClientID(),
		analytics.DimensionBreakpoint:         analytics.ActiveBreakpoint(h),
		analytics.DimensionPixelDensity:       analytics.PixelDensity(h),
		analytics.DimensionTrackingVersion:    analytics.TrackingVersion,
		analytics.DimensionWindowID:           t.WindowID,
		analytics.DimensionServiceWorkerState: h.ServiceWorkerState(),
	})
	if ect, ok := h.EffectiveConnectionType(); ok {
		t.Log.Set(analytics.Fields{analytics.DimensionEffectiveConnectionType: ect})
	}
	t.Log.SetDecorator(func(hitType string, fields analytics.Fields) {
		fields[analytics.DimensionHitID] = opts.NewID()
		fields[analytics.DimensionHitTime] = strconv.FormatInt(opts.Now().UnixMilli(), 10)
		fields[analytics.DimensionHitType] = hitType
		fields[analytics.DimensionVisibilityState] = h.VisibilityState()
	})

	t.Errors = errortrack.New(t.Log)
	t.Errors.Start(h)

	t.Log.Send(analytics.HitPageview, pageviewFields(h))

	t.Gate = lifecycle.NewGate(h)
	if h.VisibleSinceStart() {
		t.FCP = vitals.TrackFCP(h, t.Log)
		t.LCP = vitals.TrackLCP(h, t.Gate, t.Log)
		t.FID = vitals.TrackFID(h, t.Log)
		vitals.TrackNavigation(h, t.Gate, t.Log)
	}
	t.CLS = vitals.TrackCLS(h, h, t.Log)
	return t
}

func pageviewFields(env browser.Environment) analytics.Fields {
	fields := analytics.Fields{analytics.MetricPageLoads: 1}
	if u, err := url.Parse(env.URL()); err == nil && u.Path != "" {
		page := u.Path
		if u.RawQuery != "" {
			page += "?" + u.RawQuery
		}
		fields[analytics.FieldPage] = page
	}
	if title := env.Title(); title != "" {
		fields[analytics.FieldTitle] = title
	}
	return fields
}
