package model

import "time"

type PaymentStatus string

const (
	PaymentStatusCreated    PaymentStatus = "created"    // local record only, no external invoice yet
	PaymentStatusPending    PaymentStatus = "pending"    // invoice issued; awaiting gateway callback
	PaymentStatusProcessing PaymentStatus = "processing" // gateway reported processing/hold
	PaymentStatusSuccess    PaymentStatus = "success"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// paymentLinkTTL is how long a freshly issued payment URL stays payable.
const paymentLinkTTL = 15 * time.Minute

// paymentTransitions maps a target status to the set of statuses it may be
// applied from. The guarded conditional update built on this table is the
// sole idempotency mechanism for at-least-once webhook delivery: a repeated
// or out-of-order callback whose source status no longer matches is a no-op.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusCreated},
	PaymentStatusProcessing: {PaymentStatusCreated, PaymentStatusPending},
	PaymentStatusSuccess:    {PaymentStatusCreated, PaymentStatusPending, PaymentStatusProcessing},
	PaymentStatusFailed:     {PaymentStatusCreated, PaymentStatusPending, PaymentStatusProcessing},
	PaymentStatusCancelled:  {PaymentStatusCreated, PaymentStatusPending, PaymentStatusProcessing},
	PaymentStatusRefunded:   {PaymentStatusSuccess},
}

// AllowedSources returns the statuses from which target may be entered.
func AllowedSources(target PaymentStatus) []PaymentStatus {
	return paymentTransitions[target]
}

// CanTransition reports whether from -> to is a legal payment transition.
func CanTransition(from, to PaymentStatus) bool {
	for _, s := range paymentTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// GatewayStatus is the status vocabulary of the external gateway callback.
type GatewayStatus string

const (
	GatewayStatusProcessing GatewayStatus = "processing"
	GatewayStatusHold       GatewayStatus = "hold"
	GatewayStatusSuccess    GatewayStatus = "success"
	GatewayStatusFailure    GatewayStatus = "failure"
	GatewayStatusReversed   GatewayStatus = "reversed"
)

// TargetStatusFor maps a gateway-reported status to the internal target
// status. Unknown gateway statuses are dropped by the reconciler.
func TargetStatusFor(gw GatewayStatus) (PaymentStatus, bool) {
	switch gw {
	case GatewayStatusProcessing, GatewayStatusHold:
		return PaymentStatusProcessing, true
	case GatewayStatusSuccess:
		return PaymentStatusSuccess, true
	case GatewayStatusFailure:
		return PaymentStatusFailed, true
	case GatewayStatusReversed:
		return PaymentStatusRefunded, true
	default:
		return "", false
	}
}

// Payment records one attempt to collect money for a subscription via the
// external gateway. FinalAmount = Amount - DiscountAmount, always >= 0.
type Payment struct {
	ID             string // ULID, time-ordered
	SubscriptionID string
	PlanID         string
	UserID         string

	Amount         int64
	DiscountAmount int64
	FinalAmount    int64
	Currency       string

	Status PaymentStatus

	InvoiceID     *string // external invoice id, set once the gateway call succeeds
	TransactionID *string // external transaction id (rrn) from the callback

	PaymentURL           *string
	PaymentLinkExpiresAt *time.Time

	AttemptNumber  int
	FailureReason  *string
	PaidAt         *time.Time
	RefundedAmount int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AttachInvoice records the issued invoice and opens the payment window.
func (p *Payment) AttachInvoice(invoiceID, pageURL string, now time.Time) {
	expires := now.Add(paymentLinkTTL)
	p.InvoiceID = &invoiceID
	p.PaymentURL = &pageURL
	p.PaymentLinkExpiresAt = &expires
	p.Status = PaymentStatusPending
	p.UpdatedAt = now
}

// LinkExpiresInMinutes is a derived read-time field; 0 means the link is no
// longer payable and a new payment must be created.
func (p *Payment) LinkExpiresInMinutes(now time.Time) int {
	if p.PaymentLinkExpiresAt == nil || !now.Before(*p.PaymentLinkExpiresAt) {
		return 0
	}
	return int(p.PaymentLinkExpiresAt.Sub(now).Minutes())
}

// RefundableRemainder is how much of the payment can still be refunded.
func (p *Payment) RefundableRemainder() int64 {
	return p.FinalAmount - p.RefundedAmount
}
