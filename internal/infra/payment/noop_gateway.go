package payment

import (
	"context"
	"fmt"
	"sync/atomic"

	"edu-subscription-platform/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.PaymentGateway = (*NoopGateway)(nil)

// NoopGateway fakes the provider for dev mode and tests: every invoice is
// issued immediately and refunds always succeed.
type NoopGateway struct {
	seq atomic.Int64
}

func NewNoopGateway() *NoopGateway { return &NoopGateway{} }

func (g *NoopGateway) Name() string { return "noop" }

func (g *NoopGateway) CreateInvoice(ctx context.Context, amount int64, currency, description, redirectURL string) (adapter.Invoice, error) {
	n := g.seq.Add(1)
	id := fmt.Sprintf("noop-inv-%06d", n)
	return adapter.Invoice{
		InvoiceID: id,
		PageURL:   "https://pay.example.invalid/" + id,
	}, nil
}

func (g *NoopGateway) Refund(ctx context.Context, invoiceID string, amount int64) (adapter.RefundResult, error) {
	n := g.seq.Add(1)
	return adapter.RefundResult{OK: true, TransactionID: fmt.Sprintf("noop-ref-%06d", n)}, nil
}
