package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vincentbai/browsetrace-vitals/internal/analytics"
	"github.com/vincentbai/browsetrace-vitals/internal/config"
	"github.com/vincentbai/browsetrace-vitals/internal/database"
	"github.com/vincentbai/browsetrace-vitals/internal/logger"
	"github.com/vincentbai/browsetrace-vitals/internal/metrics"
	"github.com/vincentbai/browsetrace-vitals/internal/server"
	"github.com/vincentbai/browsetrace-vitals/internal/transport"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "browsetrace-vitals:", err)
		os.Exit(2)
	}

	log := logger.New("browsetrace-vitals", cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("agent stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	var transports transport.Fanout
	var closers []func(context.Context) error

	var db *database.Database
	if cfg.Journal {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		var err error
		db, err = database.NewDatabase(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()

		if size, err := db.Size(); err == nil {
			log.Info("hit journal opened", "path", cfg.DatabasePath, "size", humanize.Bytes(uint64(size)))
		}
		journal := transport.NewJournal(db, log, m)
		transports = append(transports, journal)
		closers = append(closers, journal.Close)
	}

	if cfg.CollectURL != "" {
		upload, err := transport.NewHTTP(cfg.CollectURL, cfg.TrackingID,
			&http.Client{Timeout: cfg.TransportTimeout}, log, m)
		if err != nil {
			return err
		}
		transports = append(transports, upload)
		closers = append(closers, upload.Close)
		log.Info("uploading hits", "collect_url", cfg.CollectURL, "tracking_id", cfg.TrackingID)
	}

	var sink analytics.Transport
	if len(transports) > 0 {
		sink = transports
	} else {
		log.Warn("no transport configured, hits are discarded")
	}

	srv := server.NewServer(db, cfg.Address, sink, server.Options{
		Logger:          log,
		Metrics:         m,
		MaxQueuedErrors: cfg.MaxQueuedErrors,
		IdleTimeout:     cfg.PageIdleTimeout,
	})
	serveErr := srv.Start(ctx)

	// Drain in-flight hits before the journal closes.
	drainContext, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, closeTransport := range closers {
		if err := closeTransport(drainContext); err != nil {
			log.Warn("transport did not drain", "error", err)
		}
	}
	return serveErr
}
