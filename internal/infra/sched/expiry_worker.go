package sched

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"edu-subscription-platform/internal/domain"
	"edu-subscription-platform/internal/infra/metrics"
	red "edu-subscription-platform/internal/infra/redis"
	"edu-subscription-platform/internal/usecase"
)

const sweepLockKey = "sched:expiry-sweep"

// ExpiryWorker runs the subscription expiration sweep on a cron schedule.
// A redis lock lets overlapping instances skip a pass; the sweep's own
// guarded update keeps duplicate runs harmless either way.
type ExpiryWorker struct {
	schedule  string
	batchSize int
	subUC     usecase.SubscriptionUseCase
	events    usecase.EventSink
	locker    red.Locker
	cron      *cron.Cron
	log       *zerolog.Logger
}

func NewExpiryWorker(schedule string, batchSize int, subUC usecase.SubscriptionUseCase, events usecase.EventSink, locker red.Locker, logger *zerolog.Logger) *ExpiryWorker {
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		schedule:  schedule,
		batchSize: batchSize,
		subUC:     subUC,
		events:    events,
		locker:    locker,
		log:       &l,
	}
}

// Run schedules the sweep and blocks until ctx is cancelled.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.cron = cron.New()
	if _, err := w.cron.AddFunc(w.schedule, func() { w.sweep(ctx) }); err != nil {
		return err
	}
	w.log.Info().Str("schedule", w.schedule).Msg("starting expiry worker")
	w.cron.Start()

	<-ctx.Done()
	w.log.Info().Msg("stopping expiry worker")
	stopCtx := w.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
	}
	return ctx.Err()
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	token, err := w.locker.TryLock(ctx, sweepLockKey, 5*time.Minute)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			w.log.Debug().Msg("sweep already running elsewhere; skipping pass")
			return
		}
		w.log.Warn().Err(err).Msg("sweep lock unavailable; running unguarded")
	} else {
		defer func() { _ = w.locker.Unlock(ctx, sweepLockKey, token) }()
	}

	n, events, err := w.subUC.FinishExpired(ctx, w.batchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("expiry sweep error")
	}
	if len(events) > 0 {
		w.events.Enqueue(events...)
	}
	if n > 0 {
		metrics.IncSubscriptionsExpired(n)
		w.log.Info().Int("count", n).Msg("expired subscriptions finished")
	}
}
