package model

import (
	"time"

	"edu-subscription-platform/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// courseAccessMonths is the fixed access window granted by a course plan,
// regardless of the plan's duration field.
const courseAccessMonths = 3

// Subscription is a user's time-bounded access grant derived from a plan.
// Price is frozen at creation; later plan price changes must not affect it.
type Subscription struct {
	ID     string // UUID
	UserID string
	PlanID string

	// Denormalized from the plan for cheap filtering.
	Kind     PlanKind
	CourseID *string

	StartDate time.Time
	EndDate   time.Time
	Status    SubscriptionStatus

	Price    int64 // charged amount, frozen at creation
	Currency string
	Paid     bool

	AutoRenewal bool

	CompletedLessons int
	TotalLessons     int
	ProgressPercent  float64

	CancelReason *string
	CancelledBy  *string
	CancelledAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSubscription builds a pending, unpaid subscription from a plan. The
// validity window starts at start; course plans get a fixed three-month
// window, period plans run for the plan duration.
func NewSubscription(id, userID string, plan *Plan, start time.Time) (*Subscription, error) {
	if id == "" || userID == "" || plan.IsZero() {
		return nil, domain.ErrInvalidArgument
	}
	months := plan.DurationMonths
	if plan.Kind == PlanKindCourse {
		months = courseAccessMonths
	}
	now := time.Now()
	return &Subscription{
		ID:        id,
		UserID:    userID,
		PlanID:    plan.ID,
		Kind:      plan.Kind,
		CourseID:  plan.CourseID,
		StartDate: start,
		EndDate:   start.AddDate(0, months, 0),
		Status:    SubscriptionStatusPending,
		Price:     plan.DiscountedPrice(),
		Currency:  plan.Currency,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsOpen reports whether the subscription blocks a new purchase for the same
// course (pending payment or already active).
func (s *Subscription) IsOpen() bool {
	return s.Status == SubscriptionStatusPending || s.Status == SubscriptionStatusActive
}

// RecordProgress updates lesson counters and the derived percentage, clamped
// to [0,100].
func (s *Subscription) RecordProgress(completed, total int) error {
	if completed < 0 || total < 0 {
		return domain.ErrInvalidArgument
	}
	s.CompletedLessons = completed
	s.TotalLessons = total
	if total == 0 {
		s.ProgressPercent = 0
		return nil
	}
	pct := float64(completed) / float64(total) * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	s.ProgressPercent = pct
	return nil
}

// Extend pushes the end date forward. Only active subscriptions can be
// extended; no payment is attached to an extension.
func (s *Subscription) Extend(months int) error {
	if months <= 0 {
		return domain.ErrInvalidArgument
	}
	if s.Status != SubscriptionStatusActive {
		return domain.ErrSubscriptionState
	}
	s.EndDate = s.EndDate.AddDate(0, months, 0)
	return nil
}
