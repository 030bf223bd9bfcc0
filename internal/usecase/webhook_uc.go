package usecase

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"edu-subscription-platform/internal/domain"
	"edu-subscription-platform/internal/domain/model"
	"edu-subscription-platform/internal/domain/ports/repository"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

// GatewayCallback is the parsed, signature-verified webhook payload.
// Signature verification happens at the transport layer against the raw body;
// this use case never sees unverified input.
type GatewayCallback struct {
	InvoiceID     string
	Status        model.GatewayStatus
	Amount        int64
	ApprovalCode  string
	RRN           string
	FailureReason string
}

type ReconcileOutcome string

const (
	OutcomeApplied        ReconcileOutcome = "applied"
	OutcomeNoop           ReconcileOutcome = "noop" // duplicate or out-of-order delivery
	OutcomeUnknownInvoice ReconcileOutcome = "unknown_invoice"
	OutcomeUnknownStatus  ReconcileOutcome = "unknown_status"
)

type ReconcileResult struct {
	Outcome ReconcileOutcome
	Payment *model.Payment
}

// EventSink accepts outbound notification events for asynchronous delivery.
// Enqueue must never block the caller.
type EventSink interface {
	Enqueue(events ...model.OutboundEvent)
}

// WebhookUseCase reconciles at-least-once, possibly duplicate, possibly
// out-of-order gateway callbacks against local payment and subscription state.
type WebhookUseCase interface {
	Reconcile(ctx context.Context, cb GatewayCallback) (ReconcileResult, error)
}

type webhookUC struct {
	payments repository.PaymentRepository
	subs     repository.SubscriptionRepository
	stats    StatsUseCase
	tm       repository.TransactionManager
	events   EventSink
	log      *zerolog.Logger
}

func NewWebhookUseCase(payments repository.PaymentRepository, subs repository.SubscriptionRepository, stats StatsUseCase, tm repository.TransactionManager, events EventSink, logger *zerolog.Logger) *webhookUC {
	l := logger.With().Str("component", "WebhookUC").Logger()
	return &webhookUC{payments: payments, subs: subs, stats: stats, tm: tm, events: events, log: &l}
}

func (uc *webhookUC) Reconcile(ctx context.Context, cb GatewayCallback) (ReconcileResult, error) {
	p, err := uc.payments.FindByInvoiceID(ctx, repository.NoTX, cb.InvoiceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Gateway misconfiguration, not a local error: acknowledge and drop.
			uc.log.Warn().Str("invoice_id", cb.InvoiceID).Msg("callback for unknown invoice dropped")
			return ReconcileResult{Outcome: OutcomeUnknownInvoice}, nil
		}
		return ReconcileResult{}, err
	}

	target, ok := model.TargetStatusFor(cb.Status)
	if !ok {
		uc.log.Warn().Str("invoice_id", cb.InvoiceID).Str("status", string(cb.Status)).Msg("callback with unknown status dropped")
		return ReconcileResult{Outcome: OutcomeUnknownStatus, Payment: p}, nil
	}

	mut := repository.PaymentMutation{}
	now := time.Now()
	switch target {
	case model.PaymentStatusSuccess:
		mut.PaidAt = &now
		if cb.RRN != "" {
			mut.TransactionID = &cb.RRN
		}
	case model.PaymentStatusFailed:
		if cb.FailureReason != "" {
			mut.FailureReason = &cb.FailureReason
		}
	case model.PaymentStatusRefunded:
		if cb.RRN != "" {
			mut.TransactionID = &cb.RRN
		}
	}

	applied := false
	released := false
	remainder := p.RefundableRemainder()
	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// The status-guarded update is the sole idempotency mechanism: a
		// delivery whose source status no longer matches changes nothing.
		ok, err := uc.payments.TransitionStatus(ctx, tx, p.ID, target, model.AllowedSources(target), mut)
		if err != nil {
			return err
		}
		applied = ok
		if !applied {
			return nil
		}
		switch target {
		case model.PaymentStatusSuccess:
			if _, err := uc.subs.Activate(ctx, tx, p.SubscriptionID); err != nil {
				return err
			}
		case model.PaymentStatusRefunded:
			// Reversal pushed by the gateway: mirror refund bookkeeping and
			// deactivate the grant. A fully discounted payment has nothing
			// to return; the transition alone records the reversal.
			if remainder > 0 {
				if _, err := uc.payments.AddRefund(ctx, tx, p.ID, remainder); err != nil {
					return err
				}
			}
			closed, err := uc.deactivateSubscription(ctx, tx, p.SubscriptionID, now)
			if err != nil {
				return err
			}
			released = closed
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{Payment: p}, err
	}
	if !applied {
		uc.log.Debug().Str("payment_id", p.ID).Str("target", string(target)).Str("current", string(p.Status)).Msg("transition not applicable; callback ignored")
		return ReconcileResult{Outcome: OutcomeNoop, Payment: p}, nil
	}

	// Side effects after the committed transition; none of them can undo it.
	switch target {
	case model.PaymentStatusSuccess:
		uc.stats.OnPurchase(ctx, p.PlanID, p.FinalAmount)
		uc.events.Enqueue(model.OutboundEvent{
			Kind:      model.NotificationPaymentSuccess,
			Recipient: p.UserID,
			Data: map[string]string{
				"payment_id":      p.ID,
				"subscription_id": p.SubscriptionID,
				"amount":          strconv.FormatInt(p.FinalAmount, 10),
				"currency":        p.Currency,
				"approval_code":   cb.ApprovalCode,
			},
		})
	case model.PaymentStatusFailed:
		uc.events.Enqueue(model.OutboundEvent{
			Kind:      model.NotificationPaymentFailed,
			Recipient: p.UserID,
			Data: map[string]string{
				"payment_id": p.ID,
				"reason":     cb.FailureReason,
			},
		})
	case model.PaymentStatusRefunded:
		// The plan slot comes back only when this reversal is what closed the
		// grant; a subscription the user already cancelled released it then.
		if released {
			uc.stats.OnReversal(ctx, p.PlanID, remainder)
		} else if remainder > 0 {
			uc.stats.OnRefund(ctx, p.PlanID, remainder)
		}
		uc.events.Enqueue(model.OutboundEvent{
			Kind:      model.NotificationPaymentReversed,
			Recipient: p.UserID,
			Data:      map[string]string{"payment_id": p.ID},
		})
	}

	uc.log.Info().Str("payment_id", p.ID).Str("invoice_id", cb.InvoiceID).Str("from", string(p.Status)).Str("to", string(target)).Msg("callback reconciled")
	refreshed, err := uc.payments.FindByID(ctx, repository.NoTX, p.ID)
	if err != nil {
		refreshed = p
	}
	return ReconcileResult{Outcome: OutcomeApplied, Payment: refreshed}, nil
}

// deactivateSubscription closes the grant behind a reversed payment and
// reports whether its plan slot still needs releasing. Already-closed
// subscriptions are left untouched, and a subscription carrying cancellation
// metadata released its slot at cancel time even if it is still active.
func (uc *webhookUC) deactivateSubscription(ctx context.Context, tx repository.Tx, id string, now time.Time) (bool, error) {
	sub, err := uc.subs.FindByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !sub.IsOpen() {
		return false, nil
	}
	holdsSlot := sub.CancelledAt == nil
	reason := "payment reversed by gateway"
	actor := "gateway"
	sub.Status = model.SubscriptionStatusCancelled
	sub.CancelReason = &reason
	sub.CancelledBy = &actor
	sub.CancelledAt = &now
	sub.UpdatedAt = now
	if err := uc.subs.Save(ctx, tx, sub); err != nil {
		return false, err
	}
	return holdsSlot, nil
}
