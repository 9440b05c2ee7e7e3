package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MarketMinds/OrderPulse/internal/models"
	"github.com/MarketMinds/OrderPulse/internal/notifications"
	"github.com/pkg/errors"
)

type Repository interface {
	ClaimDueContracts(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Contract, error)
	MarkExpiryNotified(ctx context.Context, contractID uint64, at time.Time) error
	MarkRenewalForwarded(ctx context.Context, contractID uint64) error
	ScheduleNextCheck(ctx context.Context, contractID uint64, at time.Time) error
}

type Notifier interface {
	Add(ctx context.Context, n notifications.Notification) (uint64, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Watcher периодически забирает контракты, у которых подошёл next_check_at,
// и рассылает уведомления об истечении и запросы продления. Выборка идёт
// с lease, так что несколько реплик не наступают друг другу на пятки.
type Watcher struct {
	repo     Repository
	notifier Notifier
	rl       RateLimiter

	schedule *Schedule

	pollInterval           time.Duration
	batchSize              int
	concurrency            int
	lease                  time.Duration
	rateLimitPerRecipient  int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalNotified       atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, notifier Notifier, rl RateLimiter) *Watcher {
	return &Watcher{
		repo: repo, notifier: notifier, rl: rl,
		schedule:              DefaultSchedule(),
		pollInterval:          5 * time.Second,
		batchSize:             100,
		concurrency:           10,
		lease:                 120 * time.Second,
		rateLimitPerRecipient: 30,
		triggerCh:             make(chan struct{}, 1),
		startedAtUnixNano:     time.Now().UTC().UnixNano(),
	}
}

func (w *Watcher) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, rlPerRecipient int64) *Watcher {
	if pollInterval > 0 {
		w.pollInterval = pollInterval
	}
	if batchSize > 0 {
		w.batchSize = batchSize
	}
	if concurrency > 0 {
		w.concurrency = concurrency
	}
	if lease > 0 {
		w.lease = lease
	}
	if rlPerRecipient > 0 {
		w.rateLimitPerRecipient = rlPerRecipient
	}
	return w
}

func (w *Watcher) WithSchedule(cfg ScheduleConfig) *Watcher {
	w.schedule = NewSchedule(cfg, nil)
	return w
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (w *Watcher) Trigger() {
	w.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalNotified  int64      `json:"totalNotified"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (w *Watcher) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, w.startedAtUnixNano).UTC(),
		TotalClaimed:   w.totalClaimed.Load(),
		TotalProcessed: w.totalProcessed.Load(),
		TotalNotified:  w.totalNotified.Load(),
		TotalErrors:    w.totalErrors.Load(),
		InFlight:       w.inFlight.Load(),
	}
	if n := w.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := w.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	w.lastErrorMu.Lock()
	st.LastError = w.lastError
	w.lastErrorMu.Unlock()
	return st
}

func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			w.runOnce(ctx)
		case <-w.triggerCh:
			w.runOnce(ctx)
		}
	}
}

func (w *Watcher) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	w.lastCycleUnixNano.Store(now.UnixNano())

	items, err := w.repo.ClaimDueContracts(ctx, now, w.batchSize, w.lease)
	if err != nil {
		slog.Error("claim due contracts", "error", err.Error())
		w.lastErrorMu.Lock()
		w.lastError = err.Error()
		w.lastErrorMu.Unlock()
		return
	}
	w.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	for _, c := range items {
		sem <- struct{}{}
		wg.Add(1)
		cCopy := c
		w.inFlight.Add(1)
		go func() {
			defer func() {
				w.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := w.processOne(ctx, cCopy); err != nil {
				w.totalErrors.Add(1)
				w.lastErrorMu.Lock()
				w.lastError = err.Error()
				w.lastErrorMu.Unlock()
				slog.Error("process contract", "contract_id", cCopy.ID, "error", err.Error())
			}
			w.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (w *Watcher) processOne(ctx context.Context, c *models.Contract) error {
	now := time.Now().UTC()

	var firstErr error

	if c.ExpiryNotifiedAt == nil && !c.EndDate.After(now.Add(w.schedule.WarnBefore())) {
		if err := w.notifyOne(ctx, &notifications.ContractExpiration{
			Base:           notifications.Base{RecipientID: c.BuyerID, Timestamp: now},
			ContractID:     c.ID,
			ExpirationDate: c.EndDate,
		}); err != nil {
			firstErr = errors.Wrap(err, "expiration notice")
		} else if err := w.repo.MarkExpiryNotified(ctx, c.ID, now); err != nil {
			firstErr = errors.Wrap(err, "mark expiry notified")
		}
	}

	if c.RenewalRequested && !c.RenewalForwarded {
		if err := w.notifyOne(ctx, &notifications.ContractRenewalRequest{
			Base:       notifications.Base{RecipientID: c.SellerID, Timestamp: now},
			ContractID: c.ID,
		}); err != nil {
			if firstErr == nil {
				firstErr = errors.Wrap(err, "renewal request")
			}
		} else if err := w.repo.MarkRenewalForwarded(ctx, c.ID); err != nil {
			if firstErr == nil {
				firstErr = errors.Wrap(err, "mark renewal forwarded")
			}
		}
	}

	next := now.Add(w.schedule.NextCheckDelay(now, c))
	if firstErr != nil {
		next = now.Add(w.schedule.RetryDelay())
	}
	if err := w.repo.ScheduleNextCheck(ctx, c.ID, next); err != nil {
		if firstErr == nil {
			firstErr = errors.Wrap(err, "schedule next check")
		}
	}
	return firstErr
}

func (w *Watcher) notifyOne(ctx context.Context, n notifications.Notification) error {
	recipientID := notifications.BaseOf(n).RecipientID

	if w.rl != nil && w.rateLimitPerRecipient > 0 {
		minuteKey := fmt.Sprintf("rl:notify:%d:%s", recipientID, time.Now().UTC().Format("200601021504"))
		allowed, cnt, err := w.rl.Allow(ctx, minuteKey, w.rateLimitPerRecipient, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			// Получателя уже завалило уведомлениями за эту минуту, притормозим.
			slog.Warn("recipient rate limit exceeded", "recipient_id", recipientID, "count", cnt)
			time.Sleep(500 * time.Millisecond)
		}
	}

	if _, err := w.notifier.Add(ctx, n); err != nil {
		return err
	}
	w.totalNotified.Add(1)
	return nil
}
