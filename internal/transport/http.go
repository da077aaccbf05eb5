// Package transport delivers hits to the analytics backend and the local
// journal. Every transport is fire-and-forget: failures are logged and
// counted, never returned to the caller.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vincentbai/browsetrace-vitals/internal/analytics"
	"github.com/vincentbai/browsetrace-vitals/internal/metrics"
)

const (
	defaultTimeout   = 5 * time.Second
	maxErrorBodySize = 4096
	protocolVersion  = "1"
)

// ErrRejected indicates the collect endpoint answered with an error status.
var ErrRejected = errors.New("collect endpoint rejected hit")

// HTTP sends hits to a Measurement Protocol collect endpoint.
type HTTP struct {
	endpoint   string
	trackingID string
	client     *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	wg sync.WaitGroup
}

// NewHTTP creates an HTTP transport posting to endpoint with trackingID.
func NewHTTP(endpoint, trackingID string, client *http.Client, logger *slog.Logger, m *metrics.Metrics) (*HTTP, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, errors.New("collect endpoint required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid collect endpoint: %w", err)
	}
	if strings.TrimSpace(trackingID) == "" {
		return nil, errors.New("tracking id required")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	} else if client.Timeout == 0 {
		client.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTP{
		endpoint:   trimmed,
		trackingID: strings.TrimSpace(trackingID),
		client:     client,
		logger:     logger,
		metrics:    m,
	}, nil
}

// Send posts the hit in the background.
func (t *HTTP) Send(hitType string, fields analytics.Fields) {
	body := EncodePayload(t.trackingID, hitType, fields)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.post(context.Background(), body); err != nil {
			t.logger.Warn("hit delivery failed", "hit_type", hitType, "error", err)
			t.metrics.HitOutcome("http", metrics.OutcomeFailed)
			return
		}
		t.metrics.HitOutcome("http", metrics.OutcomeSent)
	}()
}

// Close waits for in-flight hits or for ctx to end.
func (t *HTTP) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *HTTP) post(ctx context.Context, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("build collect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send collect request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		summary := strings.TrimSpace(string(buf))
		if summary == "" {
			summary = resp.Status
		}
		return fmt.Errorf("%w: %s", ErrRejected, summary)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// fieldParams maps hit field names onto Measurement Protocol parameters.
// Custom dimensions and metrics map to cdN and cmN.
var fieldParams = map[string]string{
	analytics.FieldClientID:       "cid",
	analytics.FieldEventCategory:  "ec",
	analytics.FieldEventAction:    "ea",
	analytics.FieldEventLabel:     "el",
	analytics.FieldEventValue:     "ev",
	analytics.FieldNonInteraction: "ni",
	analytics.FieldPage:           "dp",
	analytics.FieldTitle:          "dt",
}

// EncodePayload renders a hit as a form-encoded Measurement Protocol body.
func EncodePayload(trackingID, hitType string, fields analytics.Fields) string {
	values := url.Values{}
	values.Set("v", protocolVersion)
	values.Set("tid", trackingID)
	values.Set("t", hitType)

	for key, field := range fields {
		param, ok := paramFor(key)
		if !ok {
			continue
		}
		if value, ok := formatValue(field); ok {
			values.Set(param, value)
		}
	}
	return values.Encode()
}

func paramFor(key string) (string, bool) {
	if param, ok := fieldParams[key]; ok {
		return param, true
	}
	if n, ok := strings.CutPrefix(key, "dimension"); ok && n != "" {
		return "cd" + n, true
	}
	if n, ok := strings.CutPrefix(key, "metric"); ok && n != "" {
		return "cm" + n, true
	}
	return "", false
}

func formatValue(v any) (string, bool) {
	switch value := v.(type) {
	case string:
		return value, true
	case bool:
		if value {
			return "1", true
		}
		return "0", true
	case int:
		return strconv.Itoa(value), true
	case int64:
		return strconv.FormatInt(value, 10), true
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(value), true
	}
}
