package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"edu-subscription-platform/internal/domain/ports/repository"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

// StatsUseCase owns the plan counters. The On* hooks run on the hot path and
// must never fail the triggering transition: errors are logged and swallowed.
// Recompute is the admin-triggered drift correction that rewrites counters
// from source truth.
type StatsUseCase interface {
	OnPurchase(ctx context.Context, planID string, revenue int64)
	OnRefund(ctx context.Context, planID string, amount int64)
	OnReversal(ctx context.Context, planID string, amount int64)
	OnSubscriptionClosed(ctx context.Context, planID string)

	Recompute(ctx context.Context, planID string) (repository.PlanStats, error)
	Revenue(ctx context.Context) (week, month, year int64, err error)
}

type statsUC struct {
	plans    repository.PlanRepository
	subs     repository.SubscriptionRepository
	payments repository.PaymentRepository
	log      *zerolog.Logger
}

func NewStatsUseCase(plans repository.PlanRepository, subs repository.SubscriptionRepository, payments repository.PaymentRepository, logger *zerolog.Logger) *statsUC {
	l := logger.With().Str("component", "StatsUC").Logger()
	return &statsUC{plans: plans, subs: subs, payments: payments, log: &l}
}

func (s *statsUC) OnPurchase(ctx context.Context, planID string, revenue int64) {
	s.increment(ctx, planID, 1, revenue, 1)
}

func (s *statsUC) OnRefund(ctx context.Context, planID string, amount int64) {
	s.increment(ctx, planID, 0, -amount, 0)
}

// OnReversal is a gateway-pushed full reversal: revenue comes back and the
// subscription slot is released.
func (s *statsUC) OnReversal(ctx context.Context, planID string, amount int64) {
	s.increment(ctx, planID, 0, -amount, -1)
}

func (s *statsUC) OnSubscriptionClosed(ctx context.Context, planID string) {
	s.increment(ctx, planID, 0, 0, -1)
}

func (s *statsUC) increment(ctx context.Context, planID string, purchases, revenue, subscriptions int64) {
	if err := s.plans.IncrementCounters(ctx, repository.NoTX, planID, purchases, revenue, subscriptions); err != nil {
		s.log.Error().Err(err).Str("plan_id", planID).Int64("purchases", purchases).Int64("revenue", revenue).Int64("subscriptions", subscriptions).Msg("counter increment failed; run a recompute to correct drift")
	}
}

func (s *statsUC) Recompute(ctx context.Context, planID string) (repository.PlanStats, error) {
	purchases, revenue, err := s.payments.SumStatsByPlan(ctx, repository.NoTX, planID)
	if err != nil {
		return repository.PlanStats{}, err
	}
	active, err := s.subs.CountStatsByPlan(ctx, repository.NoTX, planID)
	if err != nil {
		return repository.PlanStats{}, err
	}
	stats := repository.PlanStats{Purchases: purchases, Revenue: revenue, ActiveSubscriptions: active}
	if err := s.plans.WriteStats(ctx, repository.NoTX, planID, stats); err != nil {
		return repository.PlanStats{}, err
	}
	s.log.Info().Str("plan_id", planID).Int64("purchases", purchases).Int64("revenue", revenue).Int64("active", active).Msg("plan stats recomputed")
	return stats, nil
}

func (s *statsUC) Revenue(ctx context.Context) (int64, int64, int64, error) {
	now := time.Now()
	w, err := s.payments.SumRevenueSince(ctx, repository.NoTX, now.AddDate(0, 0, -7))
	if err != nil {
		return 0, 0, 0, err
	}
	m, err := s.payments.SumRevenueSince(ctx, repository.NoTX, now.AddDate(0, -1, 0))
	if err != nil {
		return 0, 0, 0, err
	}
	y, err := s.payments.SumRevenueSince(ctx, repository.NoTX, now.AddDate(-1, 0, 0))
	if err != nil {
		return 0, 0, 0, err
	}
	return w, m, y, nil
}
