//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"edu-subscription-platform/internal/domain"
	"edu-subscription-platform/internal/domain/model"
	"edu-subscription-platform/internal/domain/ports/adapter"
	"edu-subscription-platform/internal/domain/ports/repository"
	"edu-subscription-platform/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// =============================
// Repositories
// =============================

// ---- Mock PlanRepository ----

// MockPlanRepo is an in-memory PlanRepository. Every method can be overridden
// through its Func field; the default behavior is a straightforward map store.
type MockPlanRepo struct {
	mu    sync.Mutex
	plans map[string]*model.Plan

	SaveFunc              func(ctx context.Context, qx repository.Tx, p *model.Plan) error
	FindByIDFunc          func(ctx context.Context, qx repository.Tx, id string) (*model.Plan, error)
	DeleteFunc            func(ctx context.Context, qx repository.Tx, id string) error
	IncrementCountersFunc func(ctx context.Context, qx repository.Tx, planID string, purchases, revenue, subscriptions int64) error

	IncrementCalls []IncrementCall
	WrittenStats   map[string]repository.PlanStats
}

type IncrementCall struct {
	PlanID                           string
	Purchases, Revenue, Subscription int64
}

func NewMockPlanRepo() *MockPlanRepo {
	return &MockPlanRepo{
		plans:        make(map[string]*model.Plan),
		WrittenStats: make(map[string]repository.PlanStats),
	}
}

var _ repository.PlanRepository = (*MockPlanRepo)(nil)

func (m *MockPlanRepo) Save(ctx context.Context, qx repository.Tx, p *model.Plan) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, qx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

func (m *MockPlanRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.Plan, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, qx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPlanRepo) FindBySlug(ctx context.Context, qx repository.Tx, slug string) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPlanRepo) FindActiveByCourse(ctx context.Context, qx repository.Tx, courseID string) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if p.Kind == model.PlanKindCourse && p.Active && p.CourseID != nil && *p.CourseID == courseID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPlanRepo) List(ctx context.Context, qx repository.Tx, f repository.PlanFilter) ([]*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []*model.Plan
	for _, p := range m.plans {
		if f.Kind != "" && p.Kind != f.Kind {
			continue
		}
		if f.ActiveOnly && !p.Active {
			continue
		}
		if f.AvailableOnly && !p.IsAvailableNow(now) {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockPlanRepo) Delete(ctx context.Context, qx repository.Tx, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, qx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.CurrentSubscriptions > 0 {
		return domain.ErrPlanHasSubscribers
	}
	delete(m.plans, id)
	return nil
}

func (m *MockPlanRepo) IncrementCounters(ctx context.Context, qx repository.Tx, planID string, purchases, revenue, subscriptions int64) error {
	if m.IncrementCountersFunc != nil {
		return m.IncrementCountersFunc(ctx, qx, planID, purchases, revenue, subscriptions)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IncrementCalls = append(m.IncrementCalls, IncrementCall{planID, purchases, revenue, subscriptions})
	if p, ok := m.plans[planID]; ok {
		p.TotalPurchases += purchases
		p.TotalRevenue += revenue
		p.CurrentSubscriptions += subscriptions
		if p.CurrentSubscriptions < 0 {
			p.CurrentSubscriptions = 0
		}
	}
	return nil
}

func (m *MockPlanRepo) WriteStats(ctx context.Context, qx repository.Tx, planID string, stats repository.PlanStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WrittenStats[planID] = stats
	if p, ok := m.plans[planID]; ok {
		p.TotalPurchases = stats.Purchases
		p.TotalRevenue = stats.Revenue
		p.CurrentSubscriptions = stats.ActiveSubscriptions
	}
	return nil
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[string]*model.Subscription

	SaveFunc      func(ctx context.Context, qx repository.Tx, s *model.Subscription) error
	ActivateFunc  func(ctx context.Context, qx repository.Tx, id string) (bool, error)
	ExpireDueFunc func(ctx context.Context, qx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error)
}

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{subs: make(map[string]*model.Subscription)}
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func (m *MockSubscriptionRepo) Save(ctx context.Context, qx repository.Tx, s *model.Subscription) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, qx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subs[s.ID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepo) FindOpenByUserAndCourse(ctx context.Context, qx repository.Tx, userID, courseID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.UserID == userID && s.CourseID != nil && *s.CourseID == courseID && s.IsOpen() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) ListByUser(ctx context.Context, qx repository.Tx, userID string) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) Activate(ctx context.Context, qx repository.Tx, id string) (bool, error) {
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, qx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.Status != model.SubscriptionStatusPending {
		return false, nil
	}
	s.Status = model.SubscriptionStatusActive
	s.Paid = true
	return true, nil
}

func (m *MockSubscriptionRepo) ExpireDue(ctx context.Context, qx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	if m.ExpireDueFunc != nil {
		return m.ExpireDueFunc(ctx, qx, now, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if len(out) >= limit {
			break
		}
		if s.Status == model.SubscriptionStatusActive && s.EndDate.Before(now) {
			if s.CancelledAt != nil {
				s.Status = model.SubscriptionStatusCancelled
			} else {
				s.Status = model.SubscriptionStatusExpired
			}
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) CountStatsByPlan(ctx context.Context, qx repository.Tx, planID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.subs {
		if s.PlanID == planID && s.Status == model.SubscriptionStatusActive {
			n++
		}
	}
	return n, nil
}

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*model.Payment

	SaveFunc             func(ctx context.Context, qx repository.Tx, p *model.Payment) error
	TransitionStatusFunc func(ctx context.Context, qx repository.Tx, id string, target model.PaymentStatus, sources []model.PaymentStatus, mut repository.PaymentMutation) (bool, error)
	AddRefundFunc        func(ctx context.Context, qx repository.Tx, id string, amount int64) (bool, error)
}

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{payments: make(map[string]*model.Payment)}
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func (m *MockPaymentRepo) Save(ctx context.Context, qx repository.Tx, p *model.Payment) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, qx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *MockPaymentRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) FindByInvoiceID(ctx context.Context, qx repository.Tx, invoiceID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.InvoiceID != nil && *p.InvoiceID == invoiceID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) CountBySubscription(ctx context.Context, qx repository.Tx, subscriptionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.payments {
		if p.SubscriptionID == subscriptionID {
			n++
		}
	}
	return n, nil
}

func (m *MockPaymentRepo) HasSuccessful(ctx context.Context, qx repository.Tx, subscriptionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.SubscriptionID == subscriptionID && p.Status == model.PaymentStatusSuccess {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockPaymentRepo) TransitionStatus(ctx context.Context, qx repository.Tx, id string, target model.PaymentStatus, sources []model.PaymentStatus, mut repository.PaymentMutation) (bool, error) {
	if m.TransitionStatusFunc != nil {
		return m.TransitionStatusFunc(ctx, qx, id, target, sources, mut)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, src := range sources {
		if p.Status == src {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	p.Status = target
	if mut.TransactionID != nil {
		p.TransactionID = mut.TransactionID
	}
	if mut.FailureReason != nil {
		p.FailureReason = mut.FailureReason
	}
	if mut.PaidAt != nil {
		p.PaidAt = mut.PaidAt
	}
	return true, nil
}

func (m *MockPaymentRepo) AddRefund(ctx context.Context, qx repository.Tx, id string, amount int64) (bool, error) {
	if m.AddRefundFunc != nil {
		return m.AddRefundFunc(ctx, qx, id, amount)
	}
	if amount <= 0 {
		return false, domain.ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return false, nil
	}
	if p.RefundedAmount+amount > p.FinalAmount {
		return false, nil
	}
	p.RefundedAmount += amount
	if p.RefundedAmount == p.FinalAmount {
		p.Status = model.PaymentStatusRefunded
	}
	return true, nil
}

func (m *MockPaymentRepo) SumStatsByPlan(ctx context.Context, qx repository.Tx, planID string) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purchases, revenue int64
	for _, p := range m.payments {
		if p.PlanID != planID {
			continue
		}
		if p.Status == model.PaymentStatusSuccess || p.Status == model.PaymentStatusRefunded {
			purchases++
			revenue += p.FinalAmount - p.RefundedAmount
		}
	}
	return purchases, revenue, nil
}

func (m *MockPaymentRepo) SumRevenueSince(ctx context.Context, qx repository.Tx, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var revenue int64
	for _, p := range m.payments {
		if p.PaidAt == nil || p.PaidAt.Before(since) {
			continue
		}
		if p.Status == model.PaymentStatusSuccess || p.Status == model.PaymentStatusRefunded {
			revenue += p.FinalAmount - p.RefundedAmount
		}
	}
	return revenue, nil
}

// =============================
// Adapters and plumbing
// =============================

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu  sync.Mutex
	seq int

	CreateInvoiceFunc func(ctx context.Context, amount int64, currency, description, redirectURL string) (adapter.Invoice, error)
	RefundFunc        func(ctx context.Context, invoiceID string, amount int64) (adapter.RefundResult, error)

	RefundCalls []string
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string { return "mock" }

func (m *MockPaymentGateway) CreateInvoice(ctx context.Context, amount int64, currency, description, redirectURL string) (adapter.Invoice, error) {
	if m.CreateInvoiceFunc != nil {
		return m.CreateInvoiceFunc(ctx, amount, currency, description, redirectURL)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("inv-%04d", m.seq)
	return adapter.Invoice{InvoiceID: id, PageURL: "https://pay.example.com/" + id}, nil
}

func (m *MockPaymentGateway) Refund(ctx context.Context, invoiceID string, amount int64) (adapter.RefundResult, error) {
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, invoiceID, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefundCalls = append(m.RefundCalls, invoiceID)
	return adapter.RefundResult{OK: true, TransactionID: "rrn-" + invoiceID}, nil
}

// ---- Mock TransactionManager ----

// MockTxManager runs the callback inline with a nil transaction handle, which
// all mocks accept. Assign WithTxFunc to exercise rollback paths.
type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Mock EventSink ----

type MockEventSink struct {
	mu     sync.Mutex
	Events []model.OutboundEvent
}

var _ usecase.EventSink = (*MockEventSink)(nil)

func (m *MockEventSink) Enqueue(events ...model.OutboundEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, events...)
}

// ---- Recording StatsUseCase ----

// RecordingStats captures counter hooks so tests can assert exactly which
// side effects a use case triggered.
type RecordingStats struct {
	mu         sync.Mutex
	Purchases  []string
	Refunds    []int64
	Reversals  []int64
	Closed     []string
	RecomputeF func(ctx context.Context, planID string) (repository.PlanStats, error)
}

var _ usecase.StatsUseCase = (*RecordingStats)(nil)

func (r *RecordingStats) OnPurchase(ctx context.Context, planID string, revenue int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Purchases = append(r.Purchases, planID)
}

func (r *RecordingStats) OnRefund(ctx context.Context, planID string, amount int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Refunds = append(r.Refunds, amount)
}

func (r *RecordingStats) OnReversal(ctx context.Context, planID string, amount int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reversals = append(r.Reversals, amount)
}

func (r *RecordingStats) OnSubscriptionClosed(ctx context.Context, planID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = append(r.Closed, planID)
}

func (r *RecordingStats) Recompute(ctx context.Context, planID string) (repository.PlanStats, error) {
	if r.RecomputeF != nil {
		return r.RecomputeF(ctx, planID)
	}
	return repository.PlanStats{}, nil
}

func (r *RecordingStats) Revenue(ctx context.Context) (int64, int64, int64, error) {
	return 0, 0, 0, nil
}
