package web

import (
	"io"
	"net/http"

	"edu-subscription-platform/internal/domain/model"
	"edu-subscription-platform/internal/infra/metrics"
	"edu-subscription-platform/internal/infra/payment"
	"edu-subscription-platform/internal/usecase"
)

const maxWebhookBody = 64 << 10

// handleWebhook receives Monolink callbacks. The gateway retries on any
// non-2xx, so every terminal path here answers 200: a forged or malformed
// callback is logged and dropped rather than redelivered forever.
// Only a genuine processing failure (db down) returns 500 to request a retry.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		metrics.IncWebhookEvent("read_error")
		w.WriteHeader(http.StatusOK)
		return
	}

	p, err := payment.ParseWebhook(body)
	if err != nil {
		s.log.Warn().Err(err).Msg("webhook: malformed body")
		metrics.IncWebhookEvent("malformed")
		w.WriteHeader(http.StatusOK)
		return
	}

	if !payment.VerifyWebhookSignature(s.webhookSecret, p) {
		s.log.Warn().Str("invoice_id", p.InvoiceID).Msg("webhook: bad signature")
		metrics.IncWebhookEvent("bad_signature")
		w.WriteHeader(http.StatusOK)
		return
	}

	res, err := s.webhookUC.Reconcile(r.Context(), p.ToCallback())
	if err != nil {
		s.log.Error().Err(err).Str("invoice_id", p.InvoiceID).Msg("webhook: reconcile failed")
		metrics.IncWebhookEvent("error")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	metrics.IncWebhookEvent(string(res.Outcome))
	if res.Outcome == usecase.OutcomeApplied && res.Payment != nil {
		metrics.IncPayment(string(res.Payment.Status))
		switch res.Payment.Status {
		case model.PaymentStatusSuccess:
			metrics.AddPaymentRevenue(res.Payment.Currency, res.Payment.FinalAmount)
		case model.PaymentStatusRefunded:
			metrics.AddPaymentRefunded(res.Payment.Currency, res.Payment.RefundedAmount)
		}
	}
	switch res.Outcome {
	case usecase.OutcomeUnknownInvoice:
		s.log.Warn().Str("invoice_id", p.InvoiceID).Msg("webhook: unknown invoice")
	case usecase.OutcomeUnknownStatus:
		s.log.Warn().Str("invoice_id", p.InvoiceID).Str("status", p.Status).Msg("webhook: unknown status")
	}
	w.WriteHeader(http.StatusOK)
}
