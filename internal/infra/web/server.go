package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"edu-subscription-platform/internal/usecase"
)

type Server struct {
	planUC    usecase.PlanUseCase
	subUC     usecase.SubscriptionUseCase
	payUC     usecase.PaymentUseCase
	webhookUC usecase.WebhookUseCase
	statsUC   usecase.StatsUseCase

	auth          *AuthManager
	webhookSecret string

	srv *http.Server
	log *zerolog.Logger
}

func NewServer(
	planUC usecase.PlanUseCase,
	subUC usecase.SubscriptionUseCase,
	payUC usecase.PaymentUseCase,
	webhookUC usecase.WebhookUseCase,
	statsUC usecase.StatsUseCase,
	auth *AuthManager,
	webhookSecret string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		planUC:        planUC,
		subUC:         subUC,
		payUC:         payUC,
		webhookUC:     webhookUC,
		statsUC:       statsUC,
		auth:          auth,
		webhookSecret: webhookSecret,
		log:           &l,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/webhooks/monolink", s.handleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", s.handlePlanList)
		r.Get("/plans/{slug}", s.handlePlanGetBySlug)

		r.Post("/subscriptions", s.handleSubscriptionCreate)
		r.Get("/subscriptions/{id}", s.handleSubscriptionGet)
		r.Post("/subscriptions/{id}/cancel", s.handleSubscriptionCancel("user"))
		r.Post("/subscriptions/{id}/progress", s.handleSubscriptionProgress)
		r.Post("/subscriptions/{id}/payments", s.handlePaymentCreate)
		r.Get("/payments/{id}", s.handlePaymentGet)

		r.Post("/admin/login", s.handleAdminLogin)
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.Middleware)

			r.Get("/plans", s.handleAdminPlanList)
			r.Post("/plans", s.handlePlanCreate)
			r.Get("/plans/{id}", s.handlePlanGet)
			r.Put("/plans/{id}", s.handlePlanUpdate)
			r.Delete("/plans/{id}", s.handlePlanDelete)
			r.Post("/plans/{id}/recompute", s.handlePlanRecompute)

			r.Post("/payments/{id}/refund", s.handleRefund)
			r.Post("/subscriptions/{id}/extend", s.handleSubscriptionExtend)
			r.Post("/subscriptions/{id}/cancel", s.handleSubscriptionCancel("admin"))
			r.Get("/stats/revenue", s.handleRevenue)
		})
	})
	return r
}

func (s *Server) Start(port int) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
