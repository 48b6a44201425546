package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"tumapesa/internal/gateway"
	"tumapesa/internal/handler"
	"tumapesa/internal/kyc"
	"tumapesa/internal/middleware"
	"tumapesa/internal/notification"
	"tumapesa/internal/payout"
	"tumapesa/internal/quote"
	"tumapesa/internal/rates"
	"tumapesa/internal/recipient"
	"tumapesa/internal/repository/postgres"
	"tumapesa/internal/scheduler"
	"tumapesa/internal/transfer"
	"tumapesa/pkg/config"
	"tumapesa/pkg/logger"
	"tumapesa/pkg/validator"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("transfer-service")

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting Transfer Service", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	// Database connection
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	log.Info("Database connected", nil)

	// Redis connection
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Redis connected", nil)

	// Repositories
	txRepo := postgres.NewTransactionRepository(db)
	rateRepo := postgres.NewRateRepository(db)
	recipientRepo := postgres.NewRecipientRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	profileRepo := postgres.NewProfileRepository(db)

	// Services
	rateCache := rates.NewRedisRateCache(redisClient)
	rateService := rates.NewService(rateRepo, rateCache, cfg.Transfer.RateCacheTTL, log)
	kycService := kyc.NewService(profileRepo)
	recipientService := recipient.NewService(recipientRepo)
	notificationService := notification.NewService(notificationRepo, log)

	registry := gateway.NewRegistry(
		gateway.NewStripeGateway(cfg.Stripe),
		gateway.NewFlutterwaveGateway(cfg.Flutterwave),
	)
	mpesaClient := payout.NewMpesaClient(cfg.Mpesa)

	transferService := transfer.NewService(
		txRepo,
		rateService,
		kycService,
		recipientService,
		registry,
		mpesaClient,
		notificationService,
		cfg.Transfer,
		log,
	)

	// Background sweep resolves transfers stranded by a restart.
	reaper := scheduler.NewReaper(txRepo, transferService, time.Minute, 2*cfg.Transfer.SettlementTimeout, log)
	reaper.Start()
	defer reaper.Stop()

	// Handlers
	val := validator.New()
	transferHandler := handler.NewTransferHandler(transferService, val, log)
	ratesHandler := handler.NewRatesHandler(rateService, quote.NewCalculator(cfg.Transfer.MaxSendAmount), log)
	recipientHandler := handler.NewRecipientHandler(recipientService, log)
	notificationHandler := handler.NewNotificationHandler(notificationService, log)
	webhookHandler := handler.NewWebhookHandler(transferService, cfg.Mpesa.WebhookSecret, log)
	systemHandler := handler.NewSystemHandler(db, redisClient)

	// Router
	r := mux.NewRouter()

	r.Use(middleware.CORS)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)
	r.Use(middleware.BodyLimit(1 << 20)) // 1MB global cap
	r.Use(middleware.NewRateLimiter(redisClient, 150, time.Minute).Limit)

	authMW := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	idemMW := middleware.NewIdempotencyMiddleware(redisClient, 24*time.Hour)

	// Health check routes (no auth)
	r.HandleFunc("/health", systemHandler.Health).Methods("GET")
	r.HandleFunc("/ready", systemHandler.Ready).Methods("GET")

	// Settlement webhook (shared secret, no JWT)
	r.HandleFunc("/api/v1/payouts/confirm", webhookHandler.ConfirmPayout).Methods("POST")

	// Protected routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW.Authenticate)
	api.Use(middleware.NewRateLimiter(redisClient, 60, time.Minute).Limit)

	transfers := api.PathPrefix("/transfers").Subrouter()
	transfers.Use(idemMW.Require)
	transfers.HandleFunc("", transferHandler.Initiate).Methods("POST")
	transfers.HandleFunc("", transferHandler.List).Methods("GET")
	transfers.HandleFunc("/{id}", transferHandler.Get).Methods("GET")

	api.HandleFunc("/rates/{currency}", ratesHandler.Get).Methods("GET")
	api.HandleFunc("/recipients", recipientHandler.List).Methods("GET")
	api.HandleFunc("/recipients/{id}", recipientHandler.Get).Methods("GET")
	api.HandleFunc("/notifications", notificationHandler.List).Methods("GET")
	api.HandleFunc("/notifications/{id}/read", notificationHandler.MarkRead).Methods("POST")

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Transfer service started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down transfer service...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Transfer service forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Transfer service stopped gracefully", nil)
}
