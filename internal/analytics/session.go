package analytics

import "github.com/google/uuid"

// MediaMatcher reports whether a CSS media query currently matches.
type MediaMatcher interface {
	MatchMedia(query string) bool
}

type mediaOption struct {
	name  string
	query string
}

var breakpoints = []mediaOption{
	{name: "xs", query: "(min-width: 0px)"},
	{name: "sm", query: "(min-width: 420px)"},
	{name: "md", query: "(min-width: 570px)"},
	{name: "lg", query: "(min-width: 1024px)"},
}

var pixelDensities = []mediaOption{
	{name: "1x", query: "all"},
	{name: "1.5x", query: "(-webkit-min-device-pixel-ratio: 1.5),(min-resolution: 144dpi)"},
	{name: "2x", query: "(-webkit-min-device-pixel-ratio: 2),(min-resolution: 192dpi)"},
	{name: "3x", query: "(-webkit-min-device-pixel-ratio: 3),(min-resolution: 288dpi)"},
	{name: "4x", query: "(-webkit-min-device-pixel-ratio: 4),(min-resolution: 384dpi)"},
}

// BreakpointQueries returns the media queries ActiveBreakpoint evaluates, in
// order.
func BreakpointQueries() []string { return queries(breakpoints) }

// PixelDensityQueries returns the media queries PixelDensity evaluates, in
// order.
func PixelDensityQueries() []string { return queries(pixelDensities) }

// ActiveBreakpoint returns the name of the widest matching breakpoint.
func ActiveBreakpoint(m MediaMatcher) string {
	return lastMatch(m, breakpoints, "(not set)")
}

// PixelDensity returns the highest matching pixel density bucket.
func PixelDensity(m MediaMatcher) string {
	return lastMatch(m, pixelDensities, "(not set)")
}

// NewWindowID returns an identifier unique to this page instance.
func NewWindowID() string {
	return uuid.NewString()
}

func lastMatch(m MediaMatcher, options []mediaOption, fallback string) string {
	name := fallback
	for _, option := range options {
		if m.MatchMedia(option.query) {
			name = option.name
		}
	}
	return name
}

func queries(options []mediaOption) []string {
	out := make([]string, len(options))
	for i, option := range options {
		out[i] = option.query
	}
	return out
}
