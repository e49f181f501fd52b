package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/calendarapi/internal/config"
	"example.com/calendarapi/internal/journal"
	"example.com/calendarapi/internal/logging"
	spg "example.com/calendarapi/internal/storage/postgres"
	ssqlite "example.com/calendarapi/internal/storage/sqlite"
	"example.com/calendarapi/internal/store"
	transport "example.com/calendarapi/internal/transport/http"
)

// backend is what both journal databases provide.
type backend interface {
	journal.Sink
	journal.Pruner
	journal.Reader
}

func openBackend(ctx context.Context, cfg config.Config) (backend, func(), error) {
	switch cfg.JournalDriver {
	case config.DriverPostgres:
		db, err := spg.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return db, db.Close, nil
	case config.DriverSQLite:
		db, err := ssqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite open: %w", err)
		}
		return db, func() { _ = db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown journal driver %q", cfg.JournalDriver)
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	policy, err := store.ParseIDPolicy(cfg.IDAllocation)
	if err != nil {
		return err
	}
	slog.Info("config loaded", "port", cfg.Port, "id_allocation", policy, "journal", cfg.JournalDriver)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps := &transport.ServerDeps{
		Cfg:   cfg,
		Store: store.New(policy),
		Now:   func() time.Time { return time.Now().UTC() },
	}

	// The journal outlives the signal context so changes committed by
	// in-flight requests during srv.Shutdown are still flushed.
	jctx, stopJournal := context.WithCancel(context.Background())
	defer stopJournal()

	var jr *journal.Journal
	if cfg.JournalEnabled() {
		be, closeBackend, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeBackend()
		slog.Info("journal: sink ready", "driver", cfg.JournalDriver)

		jr = journal.New(be, cfg.QueueMaxSize, cfg.BatchMaxSize, cfg.BatchMaxWait)
		jr.Start(jctx)
		slog.Info("journal: started", "queue", cfg.QueueMaxSize, "batch", cfg.BatchMaxSize, "wait", cfg.BatchMaxWait)

		if cfg.JournalRetention > 0 {
			ret := journal.NewRetention(be, cfg.JournalRetention, deps.Now)
			if err := ret.Start(ctx, cfg.JournalPruneCron); err != nil {
				return fmt.Errorf("retention schedule: %w", err)
			}
		}
		deps.Journal = jr
		deps.Reader = be
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           deps.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	if jr != nil {
		stopJournal()
		select {
		case <-jr.Done():
			slog.Info("journal: flushed", "written", jr.Written(), "dropped", jr.Dropped())
		case <-time.After(10 * time.Second):
			slog.Warn("journal: flush timed out")
		}
	}
	return nil
}
