package transport

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/vincentbai/browsetrace-vitals/internal/analytics"
	"github.com/vincentbai/browsetrace-vitals/internal/metrics"
	"github.com/vincentbai/browsetrace-vitals/internal/models"
)

// HitStore persists hits. *database.Database satisfies it.
type HitStore interface {
	InsertHits(hits []models.Hit) error
}

// Journal records hits in a local store.
type Journal struct {
	store   HitStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	wg sync.WaitGroup
}

// NewJournal creates a journal transport writing to store.
func NewJournal(store HitStore, logger *slog.Logger, m *metrics.Metrics) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{store: store, logger: logger, metrics: m, now: time.Now}
}

// Send stores the hit in the background.
func (j *Journal) Send(hitType string, fields analytics.Fields) {
	hit := models.Hit{
		TSUTC:  j.now().UTC().UnixMilli(),
		Type:   hitType,
		Fields: maps.Clone(map[string]any(fields)),
	}
	if windowID, ok := fields[analytics.DimensionWindowID].(string); ok {
		hit.WindowID = windowID
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		if err := j.store.InsertHits([]models.Hit{hit}); err != nil {
			j.logger.Warn("journal write failed", "hit_type", hitType, "error", err)
			j.metrics.HitOutcome("journal", metrics.OutcomeFailed)
			return
		}
		j.metrics.HitOutcome("journal", metrics.OutcomeSent)
	}()
}

// Close waits for pending writes or for ctx to end.
func (j *Journal) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fanout sends every hit to each transport in order.
type Fanout []analytics.Transport

func (f Fanout) Send(hitType string, fields analytics.Fields) {
	for _, t := range f {
		t.Send(hitType, maps.Clone(fields))
	}
}
