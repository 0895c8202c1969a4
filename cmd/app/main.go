package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course-platform/internal/config"
	"course-platform/internal/domain/model"
	"course-platform/internal/domain/ports/adapter"
	pg "course-platform/internal/infra/db/postgres"
	"course-platform/internal/infra/logging"
	"course-platform/internal/infra/metrics"
	"course-platform/internal/infra/notify"
	payAdapters "course-platform/internal/infra/payment"
	red "course-platform/internal/infra/redis"
	"course-platform/internal/infra/sched"
	"course-platform/internal/infra/web"
	"course-platform/internal/infra/worker"
	"course-platform/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
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
	defer redisClient.Close()

	// ---- Repositories ----
	orderRepo := pg.NewOrderRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	enrollRepo := pg.NewEnrollmentRepo(pool)
	courseRepo := pg.NewCourseRepo(pool)
	eventRepo := pg.NewWebhookEventRepo(pool)
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPlanRepo(pool), redisClient)
	tm := pg.NewTxManager(pool)

	// ---- Notifications ----
	pool2 := worker.NewPool(cfg.Scheduler.Workers, logger)
	pool2.Start(ctx)
	defer pool2.Stop()
	notifier := notify.NewDispatcher(notify.NewLogNotifier(logger), pool2, logger)

	// ---- Payment gateways ----
	mp := payAdapters.NewMercadoPagoGateway(
		cfg.Payment.MercadoPago.AccessToken,
		cfg.Payment.MercadoPago.BaseURL,
		cfg.Payment.MercadoPago.BackURL,
		cfg.Payment.MercadoPago.NotificationURL,
	)
	stripeGW := payAdapters.NewStripeGateway(
		cfg.Payment.Stripe.SecretKey,
		cfg.Payment.Stripe.BaseURL,
		cfg.Payment.Stripe.SuccessURL,
		cfg.Payment.Stripe.CancelURL,
	)
	checkoutGateways := map[string]adapter.CheckoutGateway{
		model.ProviderMercadoPago: mp,
		model.ProviderStripe:      stripeGW,
	}

	// ---- Use cases ----
	reconcileUC := usecase.NewReconcileUseCase(orderRepo, subRepo, planRepo, enrollRepo, eventRepo, tm, notifier, logger)
	checkoutUC := usecase.NewCheckoutUseCase(orderRepo, courseRepo, enrollRepo, checkoutGateways, reconcileUC, cfg.Checkout.MinOrderTotal, cfg.Checkout.OrderTTL, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, planRepo, mp, reconcileUC, tm, logger)
	entUC := usecase.NewEntitlementUseCase(enrollRepo, courseRepo, reconcileUC, logger)
	planUC := usecase.NewPlanUseCase(planRepo)
	statsUC := usecase.NewStatsUseCase(subRepo, enrollRepo, orderRepo, logger)

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Server.JWTSecret, !cfg.Runtime.Dev, "", 30*time.Minute)
	srv := web.NewServer(checkoutUC, subUC, entUC, planUC, statsUC, reconcileUC,
		mp, mp, cfg.Payment.Stripe.WebhookSecret, auth, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: srv.Router()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Expiry worker ----
	expiry := sched.NewExpiryWorker(cfg.Scheduler.ExpiryInterval, cfg.Scheduler.ReminderDays,
		reconcileUC, subRepo, enrollRepo, notifier, redisClient, logger)
	go func() { _ = expiry.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	cancel()
}
