package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	"github.com/shopspring/decimal"

	"ticket-ledger/config"
	"ticket-ledger/internal/handlers"
	"ticket-ledger/internal/services"
	"ticket-ledger/internal/store/pbstore"
	_ "ticket-ledger/migrations"
	"ticket-ledger/monitoring"
	"ticket-ledger/security"
	"ticket-ledger/utils"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()
	loc, err := cfg.EventLocation()
	if err != nil {
		return err
	}

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage and services
	st := pbstore.New(app)

	var (
		ledger  *services.LedgerService
		monitor *monitoring.Monitor
	)
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor(func(ctx context.Context) (decimal.Decimal, error) {
			return ledger.GetBalance(ctx, cfg.PlatformWalletOwner)
		})
	}
	ledger = services.NewLedgerService(st, cfg.PlatformWalletOwner, monitor)

	notifier := services.NewNotifier(newPublisher(cfg), monitor)
	tokens := services.NewTokenStore(redisClient, cfg.FeedbackTokenTTL)

	rewardService := services.NewRewardService(st, ledger, notifier, services.NewRewardConfig(cfg), monitor)
	bookingService := services.NewBookingService(st)
	feedbackService := services.NewFeedbackService(st, tokens, notifier, cfg.FeedbackURL)
	scheduler := services.NewLifecycleScheduler(
		st,
		ledger,
		bookingService,
		feedbackService,
		services.NewPocketBaseFileStore(app),
		utils.NewRedisLocker(redisClient, cfg.InstanceID),
		notifier,
		services.NewSchedulerConfig(cfg, loc),
		monitor,
	)

	// Initialize handlers
	walletHandler := handlers.NewWalletHandler(ledger, notifier)
	rewardHandler := handlers.NewRewardHandler(rewardService)
	bookingHandler := handlers.NewBookingHandler(bookingService)
	feedbackHandler := handlers.NewFeedbackHandler(feedbackService)
	adminHandler := handlers.NewAdminHandler(scheduler, bookingService, ledger)
	limiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		if _, err := ledger.OpenWallet(ctx, cfg.PlatformWalletOwner); err != nil {
			return err
		}

		// Wallet endpoints
		e.Router.GET("/api/v1/wallet/balance", walletHandler.GetBalance)
		e.Router.GET("/api/v1/wallet/history", walletHandler.GetHistory)
		e.Router.POST("/api/v1/wallet/withdraw", walletHandler.Withdraw).BindFunc(limiter.Middleware("withdraw"))

		// Reward endpoints
		e.Router.POST("/api/v1/rewards/generate", rewardHandler.Generate).BindFunc(limiter.Middleware("rewards"))
		e.Router.GET("/api/v1/rewards", rewardHandler.List)
		e.Router.POST("/api/v1/rewards/{rewardId}/reveal", rewardHandler.Reveal)
		e.Router.POST("/api/v1/rewards/redeem", rewardHandler.Redeem)

		// Booking endpoints
		e.Router.POST("/api/v1/bookings", bookingHandler.CreateBooking)
		e.Router.POST("/api/v1/bookings/{bookingId}/cancel", bookingHandler.CancelBooking)

		// Feedback endpoints
		e.Router.POST("/api/v1/feedback", feedbackHandler.Submit).BindFunc(limiter.Middleware("feedback"))

		// Admin endpoints
		e.Router.POST("/api/v1/admin/sweep", adminHandler.ForceSweep)
		e.Router.POST("/api/v1/admin/bookings/{bookingId}/complete", adminHandler.CompleteBooking)
		e.Router.GET("/api/v1/admin/platform-wallet", adminHandler.GetPlatformWallet)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(e.Request.Context(), redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		// Start background tasks
		scheduler.Start(ctx)
		if monitor != nil {
			monitor.Start(ctx, time.Minute)
			go serveMetrics(ctx, cfg.MetricsPort)
		}

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		cancel()
		scheduler.Stop()
		if monitor != nil {
			monitor.Stop()
		}
		log.Println("Background tasks stopped")
		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// newPublisher returns the PubNub publisher, or a log-only publisher when no keys are configured.
func newPublisher(cfg *config.Config) services.Publisher {
	if cfg.PubNubPublishKey == "" || cfg.PubNubSubscribeKey == "" {
		log.Println("PubNub keys not set, notifications will only be logged")
		return services.LogPublisher{}
	}

	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey
	pnConfig.UUID = cfg.PubNubUUID

	return services.NewPubNubPublisher(pubnub.NewPubNub(pnConfig))
}

func serveMetrics(ctx context.Context, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Metrics listening on :%s/metrics", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Metrics server stopped: %v", err)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
