//go:build !integration

package payment

import (
	"strings"
	"testing"

	"edu-subscription-platform/internal/domain/model"
)

func TestWebhookSignature(t *testing.T) {
	const secret = "whsec_test"

	payload := WebhookPayload{
		InvoiceID: "inv-42",
		Status:    "success",
		Amount:    80_000,
		RRN:       "rrn-001",
	}
	payload.Signature = SignWebhookPayload(secret, payload)

	t.Run("accepts a genuine signature", func(t *testing.T) {
		if !VerifyWebhookSignature(secret, payload) {
			t.Fatal("expected a genuine payload to verify")
		}
	})

	t.Run("accepts an uppercase hex signature", func(t *testing.T) {
		p := payload
		p.Signature = strings.ToUpper(p.Signature)
		if !VerifyWebhookSignature(secret, p) {
			t.Fatal("signature comparison must be case-insensitive on hex")
		}
	})

	t.Run("rejects a tampered amount", func(t *testing.T) {
		p := payload
		p.Amount = 1
		if VerifyWebhookSignature(secret, p) {
			t.Fatal("expected a tampered payload to fail")
		}
	})

	t.Run("rejects a wrong secret", func(t *testing.T) {
		if VerifyWebhookSignature("whsec_other", payload) {
			t.Fatal("expected verification with the wrong secret to fail")
		}
	})

	t.Run("rejects an empty signature", func(t *testing.T) {
		p := payload
		p.Signature = ""
		if VerifyWebhookSignature(secret, p) {
			t.Fatal("expected an unsigned payload to fail")
		}
	})
}

func TestParseWebhook(t *testing.T) {
	t.Run("decodes the wire shape", func(t *testing.T) {
		raw := []byte(`{"invoiceId":"inv-42","status":"reversed","amount":80000,"rrn":"rrn-002","signature":"ab"}`)
		p, err := ParseWebhook(raw)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if p.InvoiceID != "inv-42" || p.Status != "reversed" || p.Amount != 80000 {
			t.Errorf("unexpected payload: %+v", p)
		}

		cb := p.ToCallback()
		if cb.Status != model.GatewayStatusReversed {
			t.Errorf("expected reversed gateway status, got %s", cb.Status)
		}
		if cb.RRN != "rrn-002" {
			t.Errorf("expected rrn to carry over, got %s", cb.RRN)
		}
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		if _, err := ParseWebhook([]byte(`{"invoiceId":`)); err == nil {
			t.Fatal("expected an error")
		}
	})
}
