// Package analytics accumulates session context and dispatches hits to a
// Transport.
package analytics

import (
	"maps"
	"sync"
)

// Fields is a flat mapping of hit keys to primitive values.
type Fields map[string]any

// Transport delivers a hit. Implementations are best-effort and must not
// block the caller on network I/O.
type Transport interface {
	Send(hitType string, fields Fields)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(hitType string, fields Fields)

func (f TransportFunc) Send(hitType string, fields Fields) { f(hitType, fields) }

// Decorator adds per-send context to an outgoing record. It runs last, so its
// keys win over both session context and one-shot fields.
type Decorator func(hitType string, fields Fields)

// Logger merges session context into every hit it sends.
type Logger struct {
	transport Transport

	mu        sync.Mutex
	context   Fields
	decorator Decorator
}

// NewLogger creates a Logger that sends through transport.
func NewLogger(transport Transport) *Logger {
	return &Logger{
		transport: transport,
		context:   Fields{},
	}
}

// SetDecorator installs the per-send decorator, replacing any previous one.
func (l *Logger) SetDecorator(d Decorator) {
	l.mu.Lock()
	l.decorator = d
	l.mu.Unlock()
}

// Set merges fields into the session context. Later values win per key.
func (l *Logger) Set(fields Fields) {
	l.mu.Lock()
	maps.Copy(l.context, fields)
	l.mu.Unlock()
}

// Context returns a copy of the current session context.
func (l *Logger) Context() Fields {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.context)
}

// Send builds one record from session context, fields and the decorator, in
// that order, and hands it to the transport.
func (l *Logger) Send(hitType string, fields Fields) {
	l.mu.Lock()
	record := make(Fields, len(l.context)+len(fields)+4)
	maps.Copy(record, l.context)
	decorate := l.decorator
	l.mu.Unlock()

	maps.Copy(record, fields)
	if decorate != nil {
		decorate(hitType, record)
	}
	if l.transport != nil {
		l.transport.Send(hitType, record)
	}
}
