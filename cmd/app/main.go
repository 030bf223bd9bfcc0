package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edu-subscription-platform/internal/config"
	"edu-subscription-platform/internal/domain/ports/adapter"
	pg "edu-subscription-platform/internal/infra/db/postgres"
	"edu-subscription-platform/internal/infra/logging"
	"edu-subscription-platform/internal/infra/metrics"
	"edu-subscription-platform/internal/infra/notify"
	pay "edu-subscription-platform/internal/infra/payment"
	red "edu-subscription-platform/internal/infra/redis"
	"edu-subscription-platform/internal/infra/sched"
	"edu-subscription-platform/internal/infra/web"
	"edu-subscription-platform/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop gateway, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer func() { _ = redisClient.Close() }()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPlanRepo(pool), redisClient)
	subRepo := pg.NewSubscriptionRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Payment gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Runtime.Dev && cfg.Payment.Monolink.Token == "" {
		gateway = pay.NewNoopGateway()
		logger.Warn().Msg("payment gateway: noop (dev)")
	} else {
		gateway, err = pay.NewMonolinkGateway(cfg.Payment.Monolink.Token, cfg.Payment.Monolink.BaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("monolink gateway")
		}
	}

	// ---- Notifications ----
	dispatcher := notify.NewDispatcher(notify.NewLogNotifier(logger), cfg.Notify.Buffer, logger)
	go func() { _ = dispatcher.Run(ctx) }()

	// ---- Use cases ----
	statsUC := usecase.NewStatsUseCase(planRepo, subRepo, payRepo, logger)
	planUC := usecase.NewPlanUseCase(planRepo, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, planRepo, statsUC, tm, logger)
	payUC := usecase.NewPaymentUseCase(payRepo, subRepo, planRepo, gateway, statsUC, cfg.Payment.Monolink.RedirectURL, logger)
	webhookUC := usecase.NewWebhookUseCase(payRepo, subRepo, statsUC, tm, dispatcher, logger)

	// ---- Expiry sweep ----
	worker := sched.NewExpiryWorker(cfg.Scheduler.ExpiryCheckCron, cfg.Scheduler.ExpiryBatchSize, subUC, dispatcher, locker, logger)
	go func() {
		if err := worker.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("expiry worker stopped")
		}
	}()

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.Password, cfg.Admin.SessionTTL)
	server := web.NewServer(planUC, subUC, payUC, webhookUC, statsUC, auth, cfg.Payment.Monolink.WebhookSecret, logger)
	go func() {
		if err := server.Start(cfg.HTTP.Port); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
