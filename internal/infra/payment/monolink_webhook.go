package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"edu-subscription-platform/internal/domain/model"
	"edu-subscription-platform/internal/usecase"
)

// WebhookPayload is the wire shape of a Monolink callback.
type WebhookPayload struct {
	InvoiceID     string                 `json:"invoiceId"`
	Status        string                 `json:"status"`
	Amount        int64                  `json:"amount,omitempty"`
	ApprovalCode  string                 `json:"approvalCode,omitempty"`
	RRN           string                 `json:"rrn,omitempty"`
	FailureReason string                 `json:"failureReason,omitempty"`
	Reference     map[string]interface{} `json:"reference,omitempty"`
	Signature     string                 `json:"signature"`
}

// VerifyWebhookSignature checks the callback against the pre-shared secret:
// signature = hex(HMAC-SHA256(invoiceId + status + amount + secret, secret)).
func VerifyWebhookSignature(secret string, p WebhookPayload) bool {
	signed := p.InvoiceID + p.Status + strconv.FormatInt(p.Amount, 10) + secret

	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(signed))
	expected := hex.EncodeToString(h.Sum(nil))

	return hmac.Equal([]byte(strings.ToLower(p.Signature)), []byte(expected))
}

// SignWebhookPayload produces the signature a genuine gateway would attach.
// Used by tests and the sandbox tooling.
func SignWebhookPayload(secret string, p WebhookPayload) string {
	signed := p.InvoiceID + p.Status + strconv.FormatInt(p.Amount, 10) + secret
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(signed))
	return hex.EncodeToString(h.Sum(nil))
}

// ParseWebhook decodes a raw callback body.
func ParseWebhook(body []byte) (WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return WebhookPayload{}, err
	}
	return p, nil
}

// ToCallback converts the verified wire payload into the reconciler's input.
func (p WebhookPayload) ToCallback() usecase.GatewayCallback {
	return usecase.GatewayCallback{
		InvoiceID:     p.InvoiceID,
		Status:        model.GatewayStatus(p.Status),
		Amount:        p.Amount,
		ApprovalCode:  p.ApprovalCode,
		RRN:           p.RRN,
		FailureReason: p.FailureReason,
	}
}
