package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"edu-subscription-platform/internal/domain"
	"edu-subscription-platform/internal/domain/model"
	"edu-subscription-platform/internal/domain/ports/repository"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type SubscriptionUseCase interface {
	// Create reserves a pending, unpaid subscription for an available plan.
	// For course plans a second open subscription per (user, course) is a
	// conflict.
	Create(ctx context.Context, userID, planID string) (*model.Subscription, error)
	Get(ctx context.Context, id string) (*model.Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error)

	// Cancel revokes access now (immediate) or lets the subscription run out
	// its window; either way the plan's subscription counter is decremented.
	Cancel(ctx context.Context, id, reason, actor string, immediate bool) (*model.Subscription, error)
	// Extend pushes the end date of an active subscription forward without
	// creating a payment.
	Extend(ctx context.Context, id string, months int) (*model.Subscription, error)
	RecordProgress(ctx context.Context, id string, completedLessons, totalLessons int) (*model.Subscription, error)

	// FinishExpired is one sweep pass: it expires due subscriptions in
	// bounded batches and returns how many were transitioned plus the
	// expiration notifications to dispatch.
	FinishExpired(ctx context.Context, batchSize int) (int, []model.OutboundEvent, error)
}

type subscriptionUC struct {
	subs  repository.SubscriptionRepository
	plans repository.PlanRepository
	stats StatsUseCase
	tm    repository.TransactionManager
	log   *zerolog.Logger
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, plans repository.PlanRepository, stats StatsUseCase, tm repository.TransactionManager, logger *zerolog.Logger) *subscriptionUC {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{subs: subs, plans: plans, stats: stats, tm: tm, log: &l}
}

func (uc *subscriptionUC) Create(ctx context.Context, userID, planID string) (*model.Subscription, error) {
	plan, err := uc.plans.FindByID(ctx, repository.NoTX, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsAvailableNow(time.Now()) {
		return nil, domain.ErrPlanUnavailable
	}

	var sub *model.Subscription
	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if plan.Kind == model.PlanKindCourse {
			existing, err := uc.subs.FindOpenByUserAndCourse(ctx, tx, userID, *plan.CourseID)
			if err == nil && existing != nil {
				return domain.ErrConflict
			}
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		}
		s, err := model.NewSubscription(uuid.NewString(), userID, plan, time.Now())
		if err != nil {
			return err
		}
		// The partial unique index on open (user, course) pairs backs this up
		// against concurrent inserts; the repo maps its violation to ErrConflict.
		if err := uc.subs.Save(ctx, tx, s); err != nil {
			return err
		}
		sub = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("subscription_id", sub.ID).Str("user_id", userID).Str("plan_id", planID).Int64("price", sub.Price).Msg("subscription created")
	return sub, nil
}

func (uc *subscriptionUC) Get(ctx context.Context, id string) (*model.Subscription, error) {
	return uc.subs.FindByID(ctx, repository.NoTX, id)
}

func (uc *subscriptionUC) ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error) {
	return uc.subs.ListByUser(ctx, repository.NoTX, userID)
}

func (uc *subscriptionUC) Cancel(ctx context.Context, id, reason, actor string, immediate bool) (*model.Subscription, error) {
	sub, err := uc.subs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if !sub.IsOpen() {
		return nil, domain.ErrSubscriptionState
	}

	now := time.Now()
	sub.CancelReason = &reason
	sub.CancelledBy = &actor
	sub.CancelledAt = &now
	sub.AutoRenewal = false
	if immediate {
		sub.Status = model.SubscriptionStatusCancelled
	}
	// Non-immediate: status stays as-is until the sweep sees the cancellation
	// metadata after end_date and lands the row in cancelled.
	sub.UpdatedAt = now
	if err := uc.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return nil, err
	}

	if sub.Paid {
		uc.stats.OnSubscriptionClosed(ctx, sub.PlanID)
	}
	uc.log.Info().Str("subscription_id", id).Bool("immediate", immediate).Str("actor", actor).Msg("subscription cancelled")
	return sub, nil
}

func (uc *subscriptionUC) Extend(ctx context.Context, id string, months int) (*model.Subscription, error) {
	sub, err := uc.subs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if err := sub.Extend(months); err != nil {
		return nil, err
	}
	sub.UpdatedAt = time.Now()
	if err := uc.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (uc *subscriptionUC) RecordProgress(ctx context.Context, id string, completedLessons, totalLessons int) (*model.Subscription, error) {
	sub, err := uc.subs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if err := sub.RecordProgress(completedLessons, totalLessons); err != nil {
		return nil, err
	}
	sub.UpdatedAt = time.Now()
	if err := uc.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (uc *subscriptionUC) FinishExpired(ctx context.Context, batchSize int) (int, []model.OutboundEvent, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	total := 0
	var events []model.OutboundEvent
	for {
		expired, err := uc.subs.ExpireDue(ctx, repository.NoTX, time.Now(), batchSize)
		if err != nil {
			return total, events, err
		}
		for _, s := range expired {
			// Cancelled-at-period-end rows already released their counter
			// slot when the cancellation was recorded.
			if s.CancelledAt == nil {
				uc.stats.OnSubscriptionClosed(ctx, s.PlanID)
			}
			events = append(events, model.OutboundEvent{
				Kind:      model.NotificationSubscriptionExpired,
				Recipient: s.UserID,
				Data: map[string]string{
					"subscription_id": s.ID,
					"plan_id":         s.PlanID,
					"end_date":        s.EndDate.Format(time.RFC3339),
				},
			})
		}
		total += len(expired)
		if len(expired) < batchSize {
			return total, events, nil
		}
	}
}
