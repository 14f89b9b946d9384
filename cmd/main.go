package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/okian/livedraft/internal/adapters/http/api"
	"github.com/okian/livedraft/internal/adapters/http/swagger"
	service "github.com/okian/livedraft/internal/app"
	"github.com/okian/livedraft/internal/config"
	"github.com/okian/livedraft/pkg/logger"
	"github.com/okian/livedraft/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't configured yet.
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitWith(os.Stderr, cfg.LogFormat); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Runtime collectors go on the custom registry served at /metrics.
	metrics.GetRegistry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "exiting", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

// newMux registers the API and docs routes.
func newMux(ctx context.Context, svc api.Drafts) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, logger.Get().Named("api")).Register(ctx, mux)
	return mux
}

// run serves the API until ctx ends, then stops the HTTP server and every
// draft within the shutdown timeout.
func run(ctx context.Context, cfg *config.Config, opts ...service.ServiceOption) error {
	log := logger.Get()
	opts = append([]service.ServiceOption{service.WithServiceLogger(log.Named("service"))}, opts...)
	svc := service.New(cfg, opts...)

	if cfg.LeagueID != "" {
		st, err := svc.Start(ctx, service.SpecFromConfig(cfg))
		if err != nil {
			// The API stays up so the draft can be inspected and restarted.
			log.Error(ctx, "configured draft did not start",
				logger.String("league_id", cfg.LeagueID), logger.Error(err))
		} else {
			log.Info(ctx, "configured draft running", logger.String("draft_id", st.DraftID))
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(gctx, "shutting down")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout())
		defer cancel()

		var errs []error
		if err := srv.Shutdown(sctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := svc.Shutdown(sctx); err != nil {
			errs = append(errs, err)
		}
		log.Info(sctx, "server stopped")
		return errors.Join(errs...)
	})
	return g.Wait()
}
