package main

import (
	"context"
	"time"

	"github.com/MarketMinds/OrderPulse/config"
	"github.com/MarketMinds/OrderPulse/internal/cache/rediscache"
	"github.com/MarketMinds/OrderPulse/internal/services/expiry"
	"github.com/MarketMinds/OrderPulse/internal/services/notify"
	"github.com/MarketMinds/OrderPulse/internal/storage/pgcontracts"
	"github.com/MarketMinds/OrderPulse/internal/storage/pgnotify"
	"golang.org/x/sync/errgroup"
)

type watcherFactories struct {
	newContracts   func(cfg *config.Config) (repo expiry.Repository, closeFn func(), err error)
	newNotifier    func(cfg *config.Config) (n expiry.Notifier, closeFn func(), err error)
	newRateLimiter func(cfg *config.Config) expiry.RateLimiter
}

func defaultWatcherFactories() watcherFactories {
	return watcherFactories{
		newContracts: func(cfg *config.Config) (expiry.Repository, func(), error) {
			st, err := pgcontracts.New(cfg.Database.ConnString())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newNotifier: func(cfg *config.Config) (expiry.Notifier, func(), error) {
			st, err := pgnotify.New(cfg.Database.ConnString())
			if err != nil {
				return nil, nil, err
			}
			return notify.NewStore(st), st.Close, nil
		},
		newRateLimiter: func(cfg *config.Config) expiry.RateLimiter {
			return rediscache.NewRateLimiter(cfg.Redis.Addr())
		},
	}
}

func buildWatcher(cfg *config.Config, f watcherFactories) (*expiry.Watcher, func(), error) {
	pollInterval := time.Duration(cfg.OrderPulse.WatcherPollIntervalSeconds) * time.Second
	batchSize := cfg.OrderPulse.WatcherBatchSize
	concurrency := cfg.OrderPulse.WatcherConcurrency
	lease := time.Duration(cfg.OrderPulse.WatcherLeaseSeconds) * time.Second
	rlPerRecipient := int64(cfg.OrderPulse.WatcherRateLimitPerRecipientMinute)

	repo, closeRepo, err := f.newContracts(cfg)
	if err != nil {
		return nil, nil, err
	}
	notifier, closeNotifier, err := f.newNotifier(cfg)
	if err != nil {
		if closeRepo != nil {
			closeRepo()
		}
		return nil, nil, err
	}
	rl := f.newRateLimiter(cfg)

	w := expiry.New(repo, notifier, rl).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerRecipient).
		WithSchedule(expiry.ScheduleConfig{
			WarnBefore:   time.Duration(cfg.OrderPulse.WatcherWarnBeforeHours) * time.Hour,
			NearMinDelay: time.Duration(cfg.OrderPulse.WatcherNearCheckMinSeconds) * time.Second,
			NearMaxDelay: time.Duration(cfg.OrderPulse.WatcherNearCheckMaxSeconds) * time.Second,
			FarDelay:     time.Duration(cfg.OrderPulse.WatcherFarCheckSeconds) * time.Second,
			ExpiredDelay: time.Duration(cfg.OrderPulse.WatcherExpiredCheckSeconds) * time.Second,
			RetryDelay:   time.Duration(cfg.OrderPulse.WatcherRetrySeconds) * time.Second,
		})

	closeAll := func() {
		if closeNotifier != nil {
			closeNotifier()
		}
		if closeRepo != nil {
			closeRepo()
		}
	}
	return w, closeAll, nil
}

func RunContractWatcher(ctx context.Context, cfg *config.Config, f watcherFactories, httpOpts watcherHTTPOpts) error {
	w, closeAll, err := buildWatcher(cfg, f)
	if err != nil {
		return err
	}
	defer closeAll()

	httpOpts.watcher = w
	httpOpts.cfg = cfg

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(ctx) })
	g.Go(func() error { return runWatcherHTTPServer(ctx, httpOpts) })
	return g.Wait()
}
