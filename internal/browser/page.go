package browser

import (
	"fmt"
	"slices"
	"sync"

	"github.com/vincentbai/browsetrace-vitals/internal/models"
)

// DefaultMaxQueuedErrors bounds the pre-attach error backlog.
const DefaultMaxQueuedErrors = 100

// maxDeliveryRounds bounds re-entrant delivery when callbacks queue new
// records while being delivered.
const maxDeliveryRounds = 8

var defaultEntryTypes = []string{
	models.EntryPaint,
	models.EntryLCP,
	models.EntryFirstInput,
	models.EntryLayoutShift,
	models.EntryNavigation,
}

// Page models one browser window. Signals are applied one at a time and every
// callback runs while the page lock is held, so code handed a Host through Run
// sees the same single-threaded callback model a real page offers.
type Page struct {
	mu   sync.Mutex
	host *host
}

// NewPage builds a page from its init signal.
func NewPage(windowID string, init models.Signal, maxQueuedErrors int) (*Page, error) {
	if windowID == "" {
		return nil, fmt.Errorf("window id cannot be empty")
	}
	if init.Type != models.SignalInit {
		return nil, fmt.Errorf("page must start with an %s signal, got %q", models.SignalInit, init.Type)
	}
	if maxQueuedErrors <= 0 {
		maxQueuedErrors = DefaultMaxQueuedErrors
	}

	h := &host{
		windowID:     windowID,
		url:          init.URL,
		clientID:     init.ClientID,
		readyState:   init.ReadyState,
		visibility:   init.VisibilityState,
		swState:      init.ServiceWorkerState,
		controlled:   init.Controlled,
		ect:          init.EffectiveConnectionType,
		navigation:   init.Navigation,
		legacy:       init.LegacyTiming,
		matchedMedia: make(map[string]bool, len(init.MatchedMedia)),
		supported:    map[string]bool{},
		buffer:       map[string][]models.Entry{},
		maxQueued:    maxQueuedErrors,
	}
	if init.Title != nil {
		h.title = *init.Title
	}
	if h.readyState == "" {
		h.readyState = models.ReadyStateLoading
	}
	if h.visibility == "" {
		h.visibility = models.VisibilityVisible
	}
	h.visibleSinceStart = h.visibility == models.VisibilityVisible
	if h.swState == "" {
		h.swState = ServiceWorkerUnsupported
	}
	h.loaded = h.readyState == models.ReadyStateComplete
	for _, query := range init.MatchedMedia {
		h.matchedMedia[query] = true
	}
	entryTypes := init.SupportedEntryTypes
	if len(entryTypes) == 0 {
		entryTypes = defaultEntryTypes
	}
	for _, entryType := range entryTypes {
		h.supported[entryType] = true
	}
	for _, e := range init.QueuedErrors {
		h.queueError(e)
	}
	h.record(init.Entries)

	return &Page{host: h}, nil
}

// WindowID returns the window this page belongs to.
func (p *Page) WindowID() string {
	return p.host.windowID
}

// Run calls fn with the page's Host, then delivers any records queued while
// fn ran. The Host must not be retained past callbacks it registers.
func (p *Page) Run(fn func(Host)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.host)
	p.host.deliver()
}

// Apply applies signals in order. Observer records are delivered after each
// signal, the way a browser queues an observer task per event.
func (p *Page) Apply(signals ...models.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, signal := range signals {
		if err := p.host.apply(signal); err != nil {
			return err
		}
		p.host.deliver()
	}
	return nil
}

// Closed reports whether the page received its unload signal.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.host.closed
}

type host struct {
	windowID   string
	url        string
	title      string
	clientID   string
	readyState string
	visibility string
	swState    string
	controlled bool
	ect        string
	navigation *models.Navigation
	legacy     *models.LegacyTiming

	visibleSinceStart bool
	matchedMedia      map[string]bool
	supported         map[string]bool

	buffer    map[string][]models.Entry
	observers []*observer

	nextListener ListenerID
	visListeners []visibilityListener

	loaded        bool
	loadListeners []func()

	queuedErrors   []models.ErrorInfo
	maxQueued      int
	errorListeners []func(models.ErrorInfo)

	closed bool
}

type visibilityListener struct {
	id ListenerID
	fn func(string)
}

type observer struct {
	entryType string
	fn        EntryCallback
	pending   []models.Entry
	active    bool
}

func (o *observer) TakeRecords() []models.Entry {
	records := o.pending
	o.pending = nil
	return records
}

func (o *observer) Disconnect() {
	o.active = false
	o.pending = nil
}

func (h *host) apply(signal models.Signal) error {
	if h.closed {
		return fmt.Errorf("window %s already unloaded", h.windowID)
	}
	switch signal.Type {
	case models.SignalEntries:
		h.record(signal.Entries)
	case models.SignalVisibilityChange:
		h.setVisibility(signal.VisibilityState)
	case models.SignalLoad:
		if signal.Navigation != nil {
			h.navigation = signal.Navigation
		}
		if signal.LegacyTiming != nil {
			h.legacy = signal.LegacyTiming
		}
		h.record(signal.Entries)
		h.load()
	case models.SignalError:
		if signal.Error == nil {
			return fmt.Errorf("error signal without error")
		}
		h.reportError(*signal.Error)
	case models.SignalUnload:
		h.setVisibility(models.VisibilityHidden)
		h.closed = true
	case models.SignalInit:
		return fmt.Errorf("window %s already initialised", h.windowID)
	default:
		return fmt.Errorf("unknown signal type: %s", signal.Type)
	}
	return nil
}

func (h *host) record(entries []models.Entry) {
	for _, entry := range entries {
		if !h.supported[entry.EntryType] {
			continue
		}
		h.buffer[entry.EntryType] = append(h.buffer[entry.EntryType], entry)
		for _, o := range h.observers {
			if o.active && o.entryType == entry.EntryType {
				o.pending = append(o.pending, entry)
			}
		}
	}
}

func (h *host) deliver() {
	for round := 0; round < maxDeliveryRounds; round++ {
		delivered := false
		for _, o := range slices.Clone(h.observers) {
			if !o.active || len(o.pending) == 0 {
				continue
			}
			o.fn(o.TakeRecords())
			delivered = true
		}
		h.observers = slices.DeleteFunc(h.observers, func(o *observer) bool { return !o.active })
		if !delivered {
			return
		}
	}
}

func (h *host) setVisibility(state string) {
	if state == "" || state == h.visibility {
		return
	}
	h.visibility = state
	if state == models.VisibilityHidden {
		h.visibleSinceStart = false
	}
	for _, l := range slices.Clone(h.visListeners) {
		l.fn(state)
	}
}

func (h *host) load() {
	h.readyState = models.ReadyStateComplete
	if h.loaded {
		return
	}
	h.loaded = true
	listeners := h.loadListeners
	h.loadListeners = nil
	for _, fn := range listeners {
		fn()
	}
}

func (h *host) queueError(e models.ErrorInfo) {
	if len(h.queuedErrors) >= h.maxQueued {
		return
	}
	h.queuedErrors = append(h.queuedErrors, e)
}

func (h *host) reportError(e models.ErrorInfo) {
	if len(h.errorListeners) == 0 {
		h.queueError(e)
		return
	}
	for _, fn := range slices.Clone(h.errorListeners) {
		fn(e)
	}
}

// Timeline

func (h *host) Observe(entryType string, buffered bool, fn EntryCallback) Observer {
	if !h.supported[entryType] || fn == nil {
		return nil
	}
	o := &observer{entryType: entryType, fn: fn, active: true}
	if buffered {
		o.pending = slices.Clone(h.buffer[entryType])
	}
	h.observers = append(h.observers, o)
	return o
}

func (h *host) NavigationEntry() (models.Navigation, bool) {
	if h.navigation == nil || !h.supported[models.EntryNavigation] {
		return models.Navigation{}, false
	}
	return *h.navigation, true
}

func (h *host) LegacyTiming() (models.LegacyTiming, bool) {
	if h.legacy == nil {
		return models.LegacyTiming{}, false
	}
	return *h.legacy, true
}

// Visibility

func (h *host) VisibilityState() string { return h.visibility }

func (h *host) Subscribe(fn func(state string)) ListenerID {
	h.nextListener++
	h.visListeners = append(h.visListeners, visibilityListener{id: h.nextListener, fn: fn})
	return h.nextListener
}

func (h *host) Unsubscribe(id ListenerID) {
	h.visListeners = slices.DeleteFunc(h.visListeners, func(l visibilityListener) bool { return l.id == id })
}

// LoadState

func (h *host) ReadyState() string { return h.readyState }

func (h *host) OnLoad(fn func()) {
	if h.loaded {
		return
	}
	h.loadListeners = append(h.loadListeners, fn)
}

// ErrorSource

func (h *host) QueuedErrors() []models.ErrorInfo {
	queued := h.queuedErrors
	h.queuedErrors = nil
	return queued
}

func (h *host) OnError(fn func(models.ErrorInfo)) {
	h.errorListeners = append(h.errorListeners, fn)
}

// Environment

func (h *host) MatchMedia(query string) bool {
	return query == "all" || h.matchedMedia[query]
}

func (h *host) ClientID() string           { return h.clientID }
func (h *host) URL() string                { return h.url }
func (h *host) Title() string              { return h.title }
func (h *host) ServiceWorkerState() string { return h.swState }
func (h *host) Controlled() bool           { return h.controlled }
func (h *host) VisibleSinceStart() bool    { return h.visibleSinceStart }

func (h *host) EffectiveConnectionType() (string, bool) {
	return h.ect, h.ect != ""
}
