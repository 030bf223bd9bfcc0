package model

import (
	"time"

	"edu-subscription-platform/internal/domain"
)

type PlanKind string

const (
	PlanKindCourse PlanKind = "course" // access to a single course
	PlanKindPeriod PlanKind = "period" // time-boxed access to the catalog
)

// Plan is a purchasable offer. Course plans bind exactly one course; period
// plans cover the whole catalog minus an optional exclusion set.
type Plan struct {
	ID          string // UUID
	Slug        string // unique human-readable identity
	Name        string
	Description string
	Kind        PlanKind

	CourseID           *string  // required for course kind
	IncludesAllCourses bool     // period kind
	ExcludedCourseIDs  []string // period kind, alternative to IncludesAllCourses

	Price           int64 // minor currency units
	Currency        string
	DiscountPercent int
	DurationMonths  int

	AvailableFrom  *time.Time
	AvailableUntil *time.Time

	MaxSubscriptions     int64 // 0 = unlimited
	CurrentSubscriptions int64
	TotalPurchases       int64
	TotalRevenue         int64

	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPlan validates and constructs a plan.
func NewPlan(id, slug, name string, kind PlanKind, price int64, currency string, discountPercent, durationMonths int) (*Plan, error) {
	if id == "" || slug == "" || name == "" || price < 0 || currency == "" {
		return nil, domain.ErrInvalidArgument
	}
	if discountPercent < 0 || discountPercent > 100 {
		return nil, domain.ErrInvalidArgument
	}
	if kind != PlanKindCourse && kind != PlanKindPeriod {
		return nil, domain.ErrInvalidArgument
	}
	if kind == PlanKindPeriod && durationMonths <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Plan{
		ID:              id,
		Slug:            slug,
		Name:            name,
		Kind:            kind,
		Price:           price,
		Currency:        currency,
		DiscountPercent: discountPercent,
		DurationMonths:  durationMonths,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Validate checks kind-specific invariants. A course plan must name its
// course; a period plan must cover the whole catalog or exclude a non-empty set.
func (p *Plan) Validate() error {
	switch p.Kind {
	case PlanKindCourse:
		if p.CourseID == nil || *p.CourseID == "" {
			return domain.ErrInvalidArgument
		}
	case PlanKindPeriod:
		if !p.IncludesAllCourses && len(p.ExcludedCourseIDs) == 0 {
			return domain.ErrInvalidArgument
		}
	default:
		return domain.ErrInvalidArgument
	}
	return nil
}

// DiscountedPrice returns the price after the plan discount, in minor units.
func (p *Plan) DiscountedPrice() int64 {
	return p.Price - p.Price*int64(p.DiscountPercent)/100
}

// IsAvailableNow is the derived availability predicate. It is computed at read
// time and never stored.
func (p *Plan) IsAvailableNow(now time.Time) bool {
	if !p.Active {
		return false
	}
	if p.AvailableFrom != nil && now.Before(*p.AvailableFrom) {
		return false
	}
	if p.AvailableUntil != nil && now.After(*p.AvailableUntil) {
		return false
	}
	if p.MaxSubscriptions > 0 && p.CurrentSubscriptions >= p.MaxSubscriptions {
		return false
	}
	return true
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }
