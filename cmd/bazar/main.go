package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/bazar/internal/api"
	"github.com/erazemk/bazar/internal/assistant"
	"github.com/erazemk/bazar/internal/cache"
	"github.com/erazemk/bazar/internal/config"
	"github.com/erazemk/bazar/internal/db"
	"github.com/erazemk/bazar/internal/events"
	"github.com/erazemk/bazar/internal/reservations"
	"github.com/erazemk/bazar/internal/store"
)

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. INFO/WARN go to stdout, ERROR goes
// to stderr. If logPath is non-empty, all levels are also written to that file.
// Returns a cleanup function that closes the log file (if opened).
func setupLogger(logPath string) (func(), error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var cleanup func()

	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	handler := &levelRouter{
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

func main() {
	cfg, err := config.Load(os.Args[1:], os.Stdout)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	closeLog, err := setupLogger(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if closeLog != nil {
		defer closeLog()
	}

	if err := run(cfg); err != nil {
		slog.Error("bazar stopped", "error", err)
		if closeLog != nil {
			closeLog()
		}
		os.Exit(1)
	}
	slog.Info("bazar stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	slog.Info("database ready", "path", cfg.DBPath)

	jwtSecret, err := store.JWTSecret(ctx, database, cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("loading JWT secret: %w", err)
	}

	var listings *cache.Listings
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		listings = cache.New(rdb, cfg.CacheTTL, slog.Default())
		if err := listings.Ping(ctx); err != nil {
			slog.Warn("listing cache unreachable, serving from database until it recovers", "addr", cfg.RedisAddr, "error", err)
		} else {
			slog.Info("listing cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
		}
	}

	var chat assistant.Completer
	if cfg.AIAPIKey != "" {
		chat = assistant.NewGemini(cfg.AIEndpoint, cfg.AIAPIKey, slog.Default())
		slog.Info("chat assistant enabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	// The event stream outlives gctx; stopServing ends it once nothing can publish.
	eventsCtx, stopEvents := context.WithCancel(context.Background())
	defer stopEvents()

	var publisher events.Publisher = events.LogPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafka := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, 256, slog.Default())
		publisher = events.Multi{publisher, kafka}
		g.Go(func() error { return kafka.Run(eventsCtx) })
		slog.Info("event stream enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	sweeper := &reservations.Sweeper{
		DB:       database,
		Interval: cfg.SweepInterval,
		Timeout:  cfg.ReservationTimeout,
		Events:   publisher,
		Cache:    listings,
	}
	sweepDone := make(chan struct{})
	g.Go(func() error {
		defer close(sweepDone)
		return sweeper.Run(gctx)
	})

	server := &http.Server{
		Addr: cfg.Addr,
		Handler: api.NewRouter(api.Config{
			DB:           database,
			JWTSecret:    jwtSecret,
			EmailDomains: cfg.EmailDomains,
			Cache:        listings,
			Events:       publisher,
			Assistant:    chat,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g.Go(func() error {
		slog.Info("server started", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving HTTP: %w", err)
		}
		return nil
	})

	// Graceful shutdown on SIGINT/SIGTERM or when any component fails.
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		return stopServing(server, sweepDone, stopEvents, 5*time.Second)
	})

	return g.Wait()
}

// stopServing shuts the HTTP server down and waits for the other event
// producers to finish before stopping the event stream, so events from
// requests still in flight are written rather than dropped.
func stopServing(server *http.Server, producersDone <-chan struct{}, stopEvents func(), timeout time.Duration) error {
	defer stopEvents()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	select {
	case <-producersDone:
	case <-shutdownCtx.Done():
	}
	return nil
}
