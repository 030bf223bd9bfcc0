//go:build !integration

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"edu-subscription-platform/internal/domain"
	"edu-subscription-platform/internal/domain/model"
	"edu-subscription-platform/internal/domain/ports/repository"
	"edu-subscription-platform/internal/infra/payment"
	"edu-subscription-platform/internal/usecase"
)

// --- Mock use cases ---

type mockPlanUC struct {
	GetBySlugFunc func(ctx context.Context, slug string) (*model.Plan, error)
}

var _ usecase.PlanUseCase = (*mockPlanUC)(nil)

func (m *mockPlanUC) Create(ctx context.Context, in usecase.CreatePlanInput) (*model.Plan, error) {
	return nil, domain.ErrOperationFailed
}
func (m *mockPlanUC) Get(ctx context.Context, id string) (*model.Plan, error) {
	return nil, domain.ErrNotFound
}
func (m *mockPlanUC) GetBySlug(ctx context.Context, slug string) (*model.Plan, error) {
	if m.GetBySlugFunc != nil {
		return m.GetBySlugFunc(ctx, slug)
	}
	return nil, domain.ErrNotFound
}
func (m *mockPlanUC) List(ctx context.Context, f repository.PlanFilter) ([]*model.Plan, error) {
	return nil, nil
}
func (m *mockPlanUC) Update(ctx context.Context, id string, in usecase.UpdatePlanInput) (*model.Plan, error) {
	return nil, domain.ErrNotFound
}
func (m *mockPlanUC) Delete(ctx context.Context, id string) error { return domain.ErrNotFound }

type mockSubUC struct {
	CreateFunc func(ctx context.Context, userID, planID string) (*model.Subscription, error)
}

var _ usecase.SubscriptionUseCase = (*mockSubUC)(nil)

func (m *mockSubUC) Create(ctx context.Context, userID, planID string) (*model.Subscription, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, userID, planID)
	}
	return nil, domain.ErrNotFound
}
func (m *mockSubUC) Get(ctx context.Context, id string) (*model.Subscription, error) {
	return nil, domain.ErrNotFound
}
func (m *mockSubUC) ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error) {
	return nil, nil
}
func (m *mockSubUC) Cancel(ctx context.Context, id, reason, actor string, immediate bool) (*model.Subscription, error) {
	return nil, domain.ErrNotFound
}
func (m *mockSubUC) Extend(ctx context.Context, id string, months int) (*model.Subscription, error) {
	return nil, domain.ErrNotFound
}
func (m *mockSubUC) RecordProgress(ctx context.Context, id string, completedLessons, totalLessons int) (*model.Subscription, error) {
	return nil, domain.ErrNotFound
}
func (m *mockSubUC) FinishExpired(ctx context.Context, batchSize int) (int, []model.OutboundEvent, error) {
	return 0, nil, nil
}

type mockPaymentUC struct{}

var _ usecase.PaymentUseCase = (*mockPaymentUC)(nil)

func (m *mockPaymentUC) Create(ctx context.Context, subscriptionID string) (*model.Payment, error) {
	return nil, domain.ErrNotFound
}
func (m *mockPaymentUC) Get(ctx context.Context, id string) (*model.Payment, error) {
	return nil, domain.ErrNotFound
}
func (m *mockPaymentUC) Refund(ctx context.Context, paymentID string, amount int64, reason string) (*model.Payment, error) {
	return nil, domain.ErrNotFound
}

type mockWebhookUC struct {
	mu    sync.Mutex
	Calls []usecase.GatewayCallback

	ReconcileFunc func(ctx context.Context, cb usecase.GatewayCallback) (usecase.ReconcileResult, error)
}

var _ usecase.WebhookUseCase = (*mockWebhookUC)(nil)

func (m *mockWebhookUC) Reconcile(ctx context.Context, cb usecase.GatewayCallback) (usecase.ReconcileResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, cb)
	m.mu.Unlock()
	if m.ReconcileFunc != nil {
		return m.ReconcileFunc(ctx, cb)
	}
	return usecase.ReconcileResult{Outcome: usecase.OutcomeApplied}, nil
}

type mockStatsUC struct{}

var _ usecase.StatsUseCase = (*mockStatsUC)(nil)

func (m *mockStatsUC) OnPurchase(ctx context.Context, planID string, revenue int64) {}
func (m *mockStatsUC) OnRefund(ctx context.Context, planID string, amount int64)    {}
func (m *mockStatsUC) OnReversal(ctx context.Context, planID string, amount int64)  {}
func (m *mockStatsUC) OnSubscriptionClosed(ctx context.Context, planID string)      {}
func (m *mockStatsUC) Recompute(ctx context.Context, planID string) (repository.PlanStats, error) {
	return repository.PlanStats{}, nil
}
func (m *mockStatsUC) Revenue(ctx context.Context) (int64, int64, int64, error) {
	return 100, 200, 300, nil
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

const testWebhookSecret = "whsec_test"

type serverMocks struct {
	plans    *mockPlanUC
	subs     *mockSubUC
	payments *mockPaymentUC
	webhooks *mockWebhookUC
	stats    *mockStatsUC
}

func newTestServer() (*Server, *serverMocks) {
	m := &serverMocks{
		plans:    &mockPlanUC{},
		subs:     &mockSubUC{},
		payments: &mockPaymentUC{},
		webhooks: &mockWebhookUC{},
		stats:    &mockStatsUC{},
	}
	l := testLogger()
	auth := NewAuthManager("jwt-secret", "admin-pass", time.Minute)
	srv := NewServer(m.plans, m.subs, m.payments, m.webhooks, m.stats, auth, testWebhookSecret, l)
	return srv, m
}

func TestWebhookEndpoint(t *testing.T) {
	post := func(srv *Server, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/monolink", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		return rec
	}

	signedBody := func(p payment.WebhookPayload) []byte {
		p.Signature = payment.SignWebhookPayload(testWebhookSecret, p)
		b, _ := json.Marshal(p)
		return b
	}

	t.Run("verified callback reaches the reconciler", func(t *testing.T) {
		srv, m := newTestServer()

		rec := post(srv, signedBody(payment.WebhookPayload{
			InvoiceID: "inv-1", Status: "success", Amount: 80_000,
		}))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if len(m.webhooks.Calls) != 1 {
			t.Fatalf("expected 1 reconcile call, got %d", len(m.webhooks.Calls))
		}
		if m.webhooks.Calls[0].InvoiceID != "inv-1" {
			t.Errorf("unexpected callback: %+v", m.webhooks.Calls[0])
		}
	})

	t.Run("bad signature is acknowledged and never reconciled", func(t *testing.T) {
		srv, m := newTestServer()
		p := payment.WebhookPayload{InvoiceID: "inv-1", Status: "success", Amount: 80_000, Signature: "forged"}
		b, _ := json.Marshal(p)

		rec := post(srv, b)
		// 200 keeps the gateway from retrying a payload that can never verify.
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if len(m.webhooks.Calls) != 0 {
			t.Fatal("a forged callback must never reach the reconciler")
		}
	})

	t.Run("malformed body is acknowledged and dropped", func(t *testing.T) {
		srv, m := newTestServer()
		rec := post(srv, []byte(`{"invoiceId":`))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if len(m.webhooks.Calls) != 0 {
			t.Fatal("a malformed callback must never reach the reconciler")
		}
	})

	t.Run("a processing failure asks the gateway to retry", func(t *testing.T) {
		srv, m := newTestServer()
		m.webhooks.ReconcileFunc = func(ctx context.Context, cb usecase.GatewayCallback) (usecase.ReconcileResult, error) {
			return usecase.ReconcileResult{}, domain.ErrOperationFailed
		}

		rec := post(srv, signedBody(payment.WebhookPayload{
			InvoiceID: "inv-1", Status: "success", Amount: 80_000,
		}))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
	})
}

func TestPublicPlanEndpoint(t *testing.T) {
	t.Run("serves an active plan with derived fields", func(t *testing.T) {
		srv, m := newTestServer()
		m.plans.GetBySlugFunc = func(ctx context.Context, slug string) (*model.Plan, error) {
			p, _ := model.NewPlan("p1", slug, "Go from scratch", model.PlanKindPeriod, 100_000, "UAH", 10, 12)
			p.IncludesAllCourses = true
			return p, nil
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/plans/go-basics", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body planResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.DiscountedPrice != 90_000 {
			t.Errorf("expected discounted price 90000, got %d", body.DiscountedPrice)
		}
		if !body.IsAvailableNow {
			t.Error("expected the derived availability flag")
		}
	})

	t.Run("an inactive plan is not publicly visible", func(t *testing.T) {
		srv, m := newTestServer()
		m.plans.GetBySlugFunc = func(ctx context.Context, slug string) (*model.Plan, error) {
			p, _ := model.NewPlan("p1", slug, "Retired", model.PlanKindPeriod, 100_000, "UAH", 0, 12)
			p.Active = false
			return p, nil
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/plans/retired", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestAdminAuth(t *testing.T) {
	login := func(srv *Server, password string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"password": password})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/login", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		return rec
	}

	t.Run("admin routes reject missing tokens", func(t *testing.T) {
		srv, _ := newTestServer()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats/revenue", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		srv, _ := newTestServer()
		if rec := login(srv, "wrong"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("a fresh token opens the admin surface", func(t *testing.T) {
		srv, _ := newTestServer()
		rec := login(srv, "admin-pass")
		if rec.Code != http.StatusOK {
			t.Fatalf("login failed: %d", rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats/revenue", nil)
		req.Header.Set("Authorization", "Bearer "+body["token"])
		rec2 := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec2, req)
		if rec2.Code != http.StatusOK {
			t.Fatalf("expected 200 with a valid token, got %d", rec2.Code)
		}
		var revenue map[string]int64
		if err := json.Unmarshal(rec2.Body.Bytes(), &revenue); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if revenue["month"] != 200 {
			t.Errorf("unexpected revenue payload: %+v", revenue)
		}
	})

	t.Run("a garbage token is rejected", func(t *testing.T) {
		srv, _ := newTestServer()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats/revenue", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized && rec.Code != http.StatusForbidden {
			t.Fatalf("expected auth failure, got %d", rec.Code)
		}
	})
}

func TestErrorMapping(t *testing.T) {
	t.Run("conflict surfaces as 409", func(t *testing.T) {
		srv, m := newTestServer()
		m.subs.CreateFunc = func(ctx context.Context, userID, planID string) (*model.Subscription, error) {
			return nil, domain.ErrConflict
		}

		body, _ := json.Marshal(map[string]string{"user_id": "u1", "plan_id": "p1"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("unavailable plan surfaces as 422", func(t *testing.T) {
		srv, m := newTestServer()
		m.subs.CreateFunc = func(ctx context.Context, userID, planID string) (*model.Subscription, error) {
			return nil, domain.ErrPlanUnavailable
		}

		body, _ := json.Marshal(map[string]string{"user_id": "u1", "plan_id": "p1"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})

	t.Run("missing fields surface as 400", func(t *testing.T) {
		srv, _ := newTestServer()
		body, _ := json.Marshal(map[string]string{"user_id": "u1"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
