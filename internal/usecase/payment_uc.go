package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"edu-subscription-platform/internal/domain"
	"edu-subscription-platform/internal/domain/model"
	"edu-subscription-platform/internal/domain/ports/adapter"
	"edu-subscription-platform/internal/domain/ports/repository"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	// Create opens a payment attempt for a pending subscription and obtains a
	// payable link from the gateway. If the gateway call fails the local
	// record stays in status created (no external invoice), so a retry cannot
	// duplicate invoices.
	Create(ctx context.Context, subscriptionID string) (*model.Payment, error)
	Get(ctx context.Context, id string) (*model.Payment, error)

	// Refund returns money against a successful payment. amount <= 0 means
	// the full refundable remainder. Validation happens before any external
	// call.
	Refund(ctx context.Context, paymentID string, amount int64, reason string) (*model.Payment, error)
}

type paymentUC struct {
	payments    repository.PaymentRepository
	subs        repository.SubscriptionRepository
	plans       repository.PlanRepository
	gateway     adapter.PaymentGateway
	stats       StatsUseCase
	redirectURL string
	log         *zerolog.Logger
}

func NewPaymentUseCase(payments repository.PaymentRepository, subs repository.SubscriptionRepository, plans repository.PlanRepository, gateway adapter.PaymentGateway, stats StatsUseCase, redirectURL string, logger *zerolog.Logger) *paymentUC {
	l := logger.With().Str("component", "PaymentUC").Logger()
	return &paymentUC{payments: payments, subs: subs, plans: plans, gateway: gateway, stats: stats, redirectURL: redirectURL, log: &l}
}

func (uc *paymentUC) Create(ctx context.Context, subscriptionID string) (*model.Payment, error) {
	sub, err := uc.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return nil, err
	}
	paid, err := uc.payments.HasSuccessful(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, domain.ErrConflict
	}
	plan, err := uc.plans.FindByID(ctx, repository.NoTX, sub.PlanID)
	if err != nil {
		return nil, err
	}

	attempts, err := uc.payments.CountBySubscription(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return nil, err
	}

	// The charged amount was frozen on the subscription; the list price is
	// read from the plan as of now only to present the discount split. If the
	// plan has since been repriced below the frozen amount, the discount
	// collapses to zero rather than going negative.
	finalAmount := sub.Price
	amount := plan.Price
	if amount < finalAmount {
		amount = finalAmount
	}

	now := time.Now()
	p := &model.Payment{
		ID:             ulid.Make().String(),
		SubscriptionID: sub.ID,
		PlanID:         plan.ID,
		UserID:         sub.UserID,
		Amount:         amount,
		DiscountAmount: amount - finalAmount,
		FinalAmount:    finalAmount,
		Currency:       sub.Currency,
		Status:         model.PaymentStatusCreated,
		AttemptNumber:  attempts + 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := uc.payments.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}

	desc := fmt.Sprintf("%s (attempt %d)", plan.Name, p.AttemptNumber)
	inv, err := uc.gateway.CreateInvoice(ctx, p.FinalAmount, p.Currency, desc, uc.redirectURL)
	if err != nil {
		uc.log.Warn().Err(err).Str("payment_id", p.ID).Msg("gateway invoice creation failed; payment left in created")
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	p.AttachInvoice(inv.InvoiceID, inv.PageURL, time.Now())
	if err := uc.payments.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	uc.log.Info().Str("payment_id", p.ID).Str("invoice_id", inv.InvoiceID).Int64("amount", p.FinalAmount).Int("attempt", p.AttemptNumber).Msg("payment initiated")
	return p, nil
}

func (uc *paymentUC) Get(ctx context.Context, id string) (*model.Payment, error) {
	return uc.payments.FindByID(ctx, repository.NoTX, id)
}

func (uc *paymentUC) Refund(ctx context.Context, paymentID string, amount int64, reason string) (*model.Payment, error) {
	p, err := uc.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PaymentStatusSuccess {
		return nil, domain.ErrNotRefundable
	}
	remainder := p.RefundableRemainder()
	if amount <= 0 {
		amount = remainder
	}
	if amount > remainder || remainder == 0 {
		return nil, domain.ErrRefundExceedsPaid
	}
	if p.InvoiceID == nil {
		return nil, domain.ErrNotRefundable
	}

	res, err := uc.gateway.Refund(ctx, *p.InvoiceID, amount)
	if err != nil {
		return nil, fmt.Errorf("gateway refund: %w", err)
	}
	if !res.OK {
		return nil, domain.ErrOperationFailed
	}

	applied, err := uc.payments.AddRefund(ctx, repository.NoTX, p.ID, amount)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent refund won the remainder.
		return nil, domain.ErrRefundExceedsPaid
	}

	uc.stats.OnRefund(ctx, p.PlanID, amount)
	uc.log.Info().Str("payment_id", p.ID).Int64("amount", amount).Str("reason", reason).Str("transaction_id", res.TransactionID).Msg("refund issued")
	return uc.payments.FindByID(ctx, repository.NoTX, p.ID)
}
