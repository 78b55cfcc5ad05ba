package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/uptimeadvisor/internal/config"
	"github.com/hamed0406/uptimeadvisor/internal/detector"
	"github.com/hamed0406/uptimeadvisor/internal/httpapi"
	apimw "github.com/hamed0406/uptimeadvisor/internal/httpapi/middleware"
	"github.com/hamed0406/uptimeadvisor/internal/logging"
	"github.com/hamed0406/uptimeadvisor/internal/probe"
	"github.com/hamed0406/uptimeadvisor/internal/scheduler"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(logging.DefaultService, cfg.LogDir)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("api_exit", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("store_close_failed", zap.Error(err))
		}
	}()

	gens, closeGen, err := newGenerators(ctx, cfg.Advisory, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeGen(); err != nil {
			logger.Warn("advisory_close_failed", zap.Error(err))
		}
	}()

	policy, err := detector.ParsePolicy(cfg.Advisory.Policy)
	if err != nil {
		return err
	}
	det := detector.New(store, gens.Advisory, policy, logger)
	det.Timeout = cfg.Advisory.Timeout

	mon := scheduler.New(store, probe.NewHTTPProber(cfg.HTTPTimeout, cfg.NormalizeRedirects), det, scheduler.Options{
		Interval:      cfg.CheckInterval,
		MaxConcurrent: cfg.MaxConcurrentChecks,
		Logger:        logger,
		Alerter:       scheduler.NewAlerter(newNotifier(cfg), 0, logger),
	})

	if err := seedTargets(ctx, cfg.Targets, store, mon, logger); err != nil {
		return err
	}

	api := httpapi.NewServer(logger, store, mon, gens.Greeting)
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api_listen",
			zap.String("addr", cfg.Addr),
			zap.String("store", cfg.Store),
			zap.String("advisory", cfg.Advisory.Provider),
			zap.String("policy", string(policy)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("api_shutdown", zap.Duration("grace", cfg.ShutdownGrace))

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("http_shutdown_failed", zap.Error(err))
		}
		if err := mon.Shutdown(sctx); err != nil {
			logger.Warn("scheduler_shutdown_incomplete", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}
