package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeadvisor/internal/advisory"
	"github.com/hamed0406/uptimeadvisor/internal/config"
	"github.com/hamed0406/uptimeadvisor/internal/domain"
	"github.com/hamed0406/uptimeadvisor/internal/notify"
	"github.com/hamed0406/uptimeadvisor/internal/repo"
	"github.com/hamed0406/uptimeadvisor/internal/repo/memory"
	pg "github.com/hamed0406/uptimeadvisor/internal/repo/postgres"
	"github.com/hamed0406/uptimeadvisor/internal/repo/sqlite"
	"github.com/hamed0406/uptimeadvisor/internal/scheduler"
)

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, func() error, error) {
	switch cfg.Store {
	case "postgres":
		s, err := pg.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, func() error { s.Close(); return nil }, nil
	case "sqlite":
		s, err := sqlite.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, s.Close, nil
	default:
		return memory.New(), func() error { return nil }, nil
	}
}

// generators splits the provider into two budgets so public greeting
// traffic cannot spend the calls reserved for transition advisories.
type generators struct {
	Advisory advisory.Generator
	Greeting advisory.Generator
}

// newGenerators builds the provider once, then wraps it with a budget per
// use. Only advisories go through the optional Redis cache.
func newGenerators(ctx context.Context, cfg config.AdvisoryConfig, logger *zap.Logger) (generators, func() error, error) {
	var provider advisory.Generator
	switch cfg.Provider {
	case "anthropic":
		a, err := advisory.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		if err != nil {
			return generators{}, nil, err
		}
		provider = a
	case "gemini":
		g, err := advisory.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, "")
		if err != nil {
			return generators{}, nil, err
		}
		provider = g
	default:
		provider = advisory.Static{}
	}

	gens := generators{
		Advisory: advisory.NewLimited(provider, cfg.RPM, cfg.Burst, cfg.Timeout),
		Greeting: advisory.NewLimited(provider, cfg.GreetingRPM, cfg.GreetingBurst, cfg.Timeout),
	}

	closer := func() error { return nil }
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		gens.Advisory = advisory.NewCached(gens.Advisory, rdb, cfg.CacheTTL, logger)
		closer = rdb.Close
		logger.Info("advisory_cache_enabled", zap.String("redis_addr", cfg.RedisAddr))
	}
	return gens, closer, nil
}

func newNotifier(cfg config.Config) notify.Notifier {
	var ns []notify.Notifier
	if s := notify.NewSlack(cfg.SlackWebhook); s != nil {
		ns = append(ns, s)
	}
	if tg := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID); tg != nil {
		ns = append(ns, tg)
	}
	return notify.Join(ns...)
}

// seedTargets registers configured targets missing from the store and
// starts the ones marked for monitoring.
func seedTargets(ctx context.Context, seeds []config.SeedTarget, store repo.TargetStore, mon *scheduler.Registry, logger *zap.Logger) error {
	var errs error
	for _, s := range seeds {
		t, err := store.GetByURL(ctx, s.URL)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("seed %s: %w", s.URL, err))
			continue
		}
		if t == nil {
			t = &domain.Target{Name: s.Name, URL: s.URL}
			if err := store.Add(ctx, t); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("seed %s: %w", s.URL, err))
				continue
			}
			logger.Info("seeded_target", zap.String("target_id", string(t.ID)), zap.String("url", t.URL))
		}
		if s.Monitor {
			if err := mon.Start(ctx, t.ID); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("seed start %s: %w", s.URL, err))
			}
		}
	}
	return errs
}
