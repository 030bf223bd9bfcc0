package adapter

import "context"

// Invoice is the gateway's representation of a payable request.
type Invoice struct {
	InvoiceID string
	PageURL   string
}

// RefundResult captures a minimal, provider-agnostic result of a refund call.
type RefundResult struct {
	OK            bool
	TransactionID string
}

// PaymentGateway is the hex port for the external payment provider. Calls are
// blocking I/O with no internal retry loop; failures surface to the caller,
// who decides whether to retry.
type PaymentGateway interface {
	Name() string

	// CreateInvoice asks the provider for a payable invoice and hosted page.
	CreateInvoice(ctx context.Context, amount int64, currency, description, redirectURL string) (Invoice, error)

	// Refund returns money against a previously settled invoice. Partial
	// amounts are allowed.
	Refund(ctx context.Context, invoiceID string, amount int64) (RefundResult, error)
}
