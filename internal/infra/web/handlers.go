package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"edu-subscription-platform/internal/domain"
	"edu-subscription-platform/internal/domain/model"
	"edu-subscription-platform/internal/domain/ports/repository"
	"edu-subscription-platform/internal/infra/metrics"
	"edu-subscription-platform/internal/usecase"
)

// --- Catalog ---

func planFilterFromQuery(r *http.Request) repository.PlanFilter {
	q := r.URL.Query()
	f := repository.PlanFilter{
		Kind:     model.PlanKind(q.Get("kind")),
		CourseID: q.Get("course_id"),
		Search:   q.Get("q"),
	}
	f.PriceMin, _ = strconv.ParseInt(q.Get("price_min"), 10, 64)
	f.PriceMax, _ = strconv.ParseInt(q.Get("price_max"), 10, 64)
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	return f
}

func (s *Server) handlePlanList(w http.ResponseWriter, r *http.Request) {
	f := planFilterFromQuery(r)
	f.ActiveOnly = true
	f.AvailableOnly = true
	plans, err := s.planUC.List(r.Context(), f)
	if err != nil {
		respondError(w, err)
		return
	}
	now := time.Now()
	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, toPlanResponse(p, now))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handlePlanGetBySlug(w http.ResponseWriter, r *http.Request) {
	plan, err := s.planUC.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondError(w, err)
		return
	}
	if !plan.Active {
		respondError(w, domain.ErrNotFound)
		return
	}
	respondJSON(w, http.StatusOK, toPlanResponse(plan, time.Now()))
}

// --- Subscriptions ---

func (s *Server) handleSubscriptionCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		PlanID string `json:"plan_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" || req.PlanID == "" {
		respondError(w, domain.ErrInvalidArgument)
		return
	}
	sub, err := s.subUC.Create(r.Context(), req.UserID, req.PlanID)
	if err != nil {
		respondError(w, err)
		return
	}
	metrics.IncSubscriptionCreated(string(sub.Kind))
	respondJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
}

func (s *Server) handleSubscriptionGet(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

// handleSubscriptionCancel serves both the self-service and the admin cancel
// route; only the recorded actor differs.
func (s *Server) handleSubscriptionCancel(actor string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reason    string `json:"reason"`
			Immediate bool   `json:"immediate"`
		}
		if err := decodeBody(r, &req); err != nil {
			respondError(w, err)
			return
		}
		sub, err := s.subUC.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason, actor, req.Immediate)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, toSubscriptionResponse(sub))
	}
}

func (s *Server) handleSubscriptionProgress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompletedLessons int `json:"completed_lessons"`
		TotalLessons     int `json:"total_lessons"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	sub, err := s.subUC.RecordProgress(r.Context(), chi.URLParam(r, "id"), req.CompletedLessons, req.TotalLessons)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (s *Server) handleSubscriptionExtend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Months int `json:"months"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	sub, err := s.subUC.Extend(r.Context(), chi.URLParam(r, "id"), req.Months)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

// --- Payments ---

func (s *Server) handlePaymentCreate(w http.ResponseWriter, r *http.Request) {
	p, err := s.payUC.Create(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	metrics.IncPayment(string(p.Status))
	respondJSON(w, http.StatusCreated, toPaymentResponse(p, time.Now()))
}

func (s *Server) handlePaymentGet(w http.ResponseWriter, r *http.Request) {
	p, err := s.payUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toPaymentResponse(p, time.Now()))
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64  `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	p, err := s.payUC.Refund(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toPaymentResponse(p, time.Now()))
}

// --- Admin ---

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	token, ok := s.auth.Login(req.Password)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleAdminPlanList(w http.ResponseWriter, r *http.Request) {
	plans, err := s.planUC.List(r.Context(), planFilterFromQuery(r))
	if err != nil {
		respondError(w, err)
		return
	}
	now := time.Now()
	out := make([]adminPlanResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, toAdminPlanResponse(p, now))
	}
	respondJSON(w, http.StatusOK, out)
}

type planWriteRequest struct {
	Slug               string     `json:"slug"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	Kind               string     `json:"kind"`
	CourseID           *string    `json:"course_id"`
	IncludesAllCourses bool       `json:"includes_all_courses"`
	ExcludedCourseIDs  []string   `json:"excluded_course_ids"`
	Price              int64      `json:"price"`
	Currency           string     `json:"currency"`
	DiscountPercent    int        `json:"discount_percent"`
	DurationMonths     int        `json:"duration_months"`
	AvailableFrom      *time.Time `json:"available_from"`
	AvailableUntil     *time.Time `json:"available_until"`
	MaxSubscriptions   int64      `json:"max_subscriptions"`
}

func (s *Server) handlePlanCreate(w http.ResponseWriter, r *http.Request) {
	var req planWriteRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	plan, err := s.planUC.Create(r.Context(), usecase.CreatePlanInput{
		Slug:               req.Slug,
		Name:               req.Name,
		Description:        req.Description,
		Kind:               model.PlanKind(req.Kind),
		CourseID:           req.CourseID,
		IncludesAllCourses: req.IncludesAllCourses,
		ExcludedCourseIDs:  req.ExcludedCourseIDs,
		Price:              req.Price,
		Currency:           req.Currency,
		DiscountPercent:    req.DiscountPercent,
		DurationMonths:     req.DurationMonths,
		AvailableFrom:      req.AvailableFrom,
		AvailableUntil:     req.AvailableUntil,
		MaxSubscriptions:   req.MaxSubscriptions,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toAdminPlanResponse(plan, time.Now()))
}

func (s *Server) handlePlanGet(w http.ResponseWriter, r *http.Request) {
	plan, err := s.planUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toAdminPlanResponse(plan, time.Now()))
}

func (s *Server) handlePlanUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slug             *string    `json:"slug"`
		Name             *string    `json:"name"`
		Description      *string    `json:"description"`
		Price            *int64     `json:"price"`
		DiscountPercent  *int       `json:"discount_percent"`
		DurationMonths   *int       `json:"duration_months"`
		AvailableFrom    *time.Time `json:"available_from"`
		AvailableUntil   *time.Time `json:"available_until"`
		MaxSubscriptions *int64     `json:"max_subscriptions"`
		Active           *bool      `json:"active"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	plan, err := s.planUC.Update(r.Context(), chi.URLParam(r, "id"), usecase.UpdatePlanInput{
		Slug:             req.Slug,
		Name:             req.Name,
		Description:      req.Description,
		Price:            req.Price,
		DiscountPercent:  req.DiscountPercent,
		DurationMonths:   req.DurationMonths,
		AvailableFrom:    req.AvailableFrom,
		AvailableUntil:   req.AvailableUntil,
		MaxSubscriptions: req.MaxSubscriptions,
		Active:           req.Active,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toAdminPlanResponse(plan, time.Now()))
}

func (s *Server) handlePlanDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.planUC.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlanRecompute(w http.ResponseWriter, r *http.Request) {
	stats, err := s.statsUC.Recompute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{
		"total_purchases":      stats.Purchases,
		"total_revenue":        stats.Revenue,
		"active_subscriptions": stats.ActiveSubscriptions,
	})
}

func (s *Server) handleRevenue(w http.ResponseWriter, r *http.Request) {
	week, month, year, err := s.statsUC.Revenue(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{
		"week":  week,
		"month": month,
		"year":  year,
	})
}
