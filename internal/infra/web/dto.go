package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"edu-subscription-platform/internal/domain"
	"edu-subscription-platform/internal/domain/model"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// respondError maps domain sentinel errors onto HTTP statuses. Anything
// unrecognized is a 500 with a generic message so internals never leak.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, domain.ErrAlreadyExists):
		respondJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		respondJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrPlanHasSubscribers):
		respondJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrPlanUnavailable):
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotRefundable),
		errors.Is(err, domain.ErrRefundExceedsPaid),
		errors.Is(err, domain.ErrSubscriptionState):
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidArgument):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ErrInvalidArgument
	}
	return nil
}

type planResponse struct {
	ID                 string     `json:"id"`
	Slug               string     `json:"slug"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	Kind               string     `json:"kind"`
	CourseID           *string    `json:"course_id,omitempty"`
	IncludesAllCourses bool       `json:"includes_all_courses,omitempty"`
	ExcludedCourseIDs  []string   `json:"excluded_course_ids,omitempty"`
	Price              int64      `json:"price"`
	Currency           string     `json:"currency"`
	DiscountPercent    int        `json:"discount_percent"`
	DiscountedPrice    int64      `json:"discounted_price"`
	DurationMonths     int        `json:"duration_months"`
	AvailableFrom      *time.Time `json:"available_from,omitempty"`
	AvailableUntil     *time.Time `json:"available_until,omitempty"`
	MaxSubscriptions   int64      `json:"max_subscriptions"`
	Active             bool       `json:"active"`
	IsAvailableNow     bool       `json:"is_available_now"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// adminPlanResponse adds the running counters kept off the public surface.
type adminPlanResponse struct {
	planResponse
	CurrentSubscriptions int64 `json:"current_subscriptions"`
	TotalPurchases       int64 `json:"total_purchases"`
	TotalRevenue         int64 `json:"total_revenue"`
}

func toPlanResponse(p *model.Plan, now time.Time) planResponse {
	return planResponse{
		ID:                 p.ID,
		Slug:               p.Slug,
		Name:               p.Name,
		Description:        p.Description,
		Kind:               string(p.Kind),
		CourseID:           p.CourseID,
		IncludesAllCourses: p.IncludesAllCourses,
		ExcludedCourseIDs:  p.ExcludedCourseIDs,
		Price:              p.Price,
		Currency:           p.Currency,
		DiscountPercent:    p.DiscountPercent,
		DiscountedPrice:    p.DiscountedPrice(),
		DurationMonths:     p.DurationMonths,
		AvailableFrom:      p.AvailableFrom,
		AvailableUntil:     p.AvailableUntil,
		MaxSubscriptions:   p.MaxSubscriptions,
		Active:             p.Active,
		IsAvailableNow:     p.IsAvailableNow(now),
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func toAdminPlanResponse(p *model.Plan, now time.Time) adminPlanResponse {
	return adminPlanResponse{
		planResponse:         toPlanResponse(p, now),
		CurrentSubscriptions: p.CurrentSubscriptions,
		TotalPurchases:       p.TotalPurchases,
		TotalRevenue:         p.TotalRevenue,
	}
}

type subscriptionResponse struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	PlanID           string     `json:"plan_id"`
	Kind             string     `json:"kind"`
	CourseID         *string    `json:"course_id,omitempty"`
	StartDate        time.Time  `json:"start_date"`
	EndDate          time.Time  `json:"end_date"`
	Status           string     `json:"status"`
	Price            int64      `json:"price"`
	Currency         string     `json:"currency"`
	Paid             bool       `json:"paid"`
	AutoRenewal      bool       `json:"auto_renewal"`
	CompletedLessons int        `json:"completed_lessons"`
	TotalLessons     int        `json:"total_lessons"`
	ProgressPercent  float64    `json:"progress_percent"`
	CancelReason     *string    `json:"cancel_reason,omitempty"`
	CancelledBy      *string    `json:"cancelled_by,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toSubscriptionResponse(s *model.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:               s.ID,
		UserID:           s.UserID,
		PlanID:           s.PlanID,
		Kind:             string(s.Kind),
		CourseID:         s.CourseID,
		StartDate:        s.StartDate,
		EndDate:          s.EndDate,
		Status:           string(s.Status),
		Price:            s.Price,
		Currency:         s.Currency,
		Paid:             s.Paid,
		AutoRenewal:      s.AutoRenewal,
		CompletedLessons: s.CompletedLessons,
		TotalLessons:     s.TotalLessons,
		ProgressPercent:  s.ProgressPercent,
		CancelReason:     s.CancelReason,
		CancelledBy:      s.CancelledBy,
		CancelledAt:      s.CancelledAt,
		CreatedAt:        s.CreatedAt,
	}
}

type paymentResponse struct {
	ID                   string     `json:"id"`
	SubscriptionID       string     `json:"subscription_id"`
	PlanID               string     `json:"plan_id"`
	UserID               string     `json:"user_id"`
	Amount               int64      `json:"amount"`
	DiscountAmount       int64      `json:"discount_amount"`
	FinalAmount          int64      `json:"final_amount"`
	Currency             string     `json:"currency"`
	Status               string     `json:"status"`
	PaymentURL           *string    `json:"payment_url,omitempty"`
	PaymentLinkExpiresAt *time.Time `json:"payment_link_expires_at,omitempty"`
	LinkExpiresInMinutes int        `json:"link_expires_in_minutes"`
	AttemptNumber        int        `json:"attempt_number"`
	FailureReason        *string    `json:"failure_reason,omitempty"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
	RefundedAmount       int64      `json:"refunded_amount"`
	CreatedAt            time.Time  `json:"created_at"`
}

func toPaymentResponse(p *model.Payment, now time.Time) paymentResponse {
	return paymentResponse{
		ID:                   p.ID,
		SubscriptionID:       p.SubscriptionID,
		PlanID:               p.PlanID,
		UserID:               p.UserID,
		Amount:               p.Amount,
		DiscountAmount:       p.DiscountAmount,
		FinalAmount:          p.FinalAmount,
		Currency:             p.Currency,
		Status:               string(p.Status),
		PaymentURL:           p.PaymentURL,
		PaymentLinkExpiresAt: p.PaymentLinkExpiresAt,
		LinkExpiresInMinutes: p.LinkExpiresInMinutes(now),
		AttemptNumber:        p.AttemptNumber,
		FailureReason:        p.FailureReason,
		PaidAt:               p.PaidAt,
		RefundedAmount:       p.RefundedAmount,
		CreatedAt:            p.CreatedAt,
	}
}
