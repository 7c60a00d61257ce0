package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vevsa/books-auth/internal/config"
	"github.com/vevsa/books-auth/internal/database"
	"github.com/vevsa/books-auth/internal/handlers"
	"github.com/vevsa/books-auth/internal/logging"
	"github.com/vevsa/books-auth/internal/metrics"
	"github.com/vevsa/books-auth/internal/middleware"
	"github.com/vevsa/books-auth/internal/repository"
	"github.com/vevsa/books-auth/internal/routes"
	"github.com/vevsa/books-auth/internal/services"
)

const serviceName = "books-auth"

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	logger := logging.NewLogger(logging.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("no .env file found")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("connecting to postgres")
	if err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
		return err
	}
	defer database.DisconnectPostgres()

	logger.Info("connecting to redis")
	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		return err
	}
	defer database.DisconnectRedis()

	logger.Info("connecting to mongodb", "uri", database.MaskURI(cfg.MongoURI))
	if err := database.Connect(cfg.MongoURI); err != nil {
		return err
	}
	defer database.Disconnect()

	m := metrics.New(prometheus.DefaultRegisterer, serviceName)
	rs := handlers.Responder{Always200: cfg.CompatAlways200, Log: logger}

	// Stores
	userRepo := repository.NewUserRepository(database.PostgresDB, cfg.DBTimeout)
	trustRepo := repository.NewTrustRepository(database.PostgresDB, cfg.DBTimeout)
	recoveryRepo := repository.NewRecoveryRepository(database.PostgresDB, cfg.DBTimeout)
	vendorRepo := repository.NewVendorRepository(database.PostgresDB, cfg.DBTimeout)
	otpStore := services.NewOTPStore(database.RedisClient, cfg.OTPTTL, cfg.OTPMaxAttempts, m)
	cache := services.NewCacheService(database.RedisClient, cfg.CacheTTL)

	audit := services.NewAuditLog(database.DB.Collection(services.RecoveryEventsCollection), logger)
	if err := audit.EnsureIndexes(ctx); err != nil {
		logger.Warn("failed to ensure recovery event indexes", "error", err)
	}

	// Realtime
	hub := services.NewHub(logger)
	notifier := services.NewNotifier(database.RedisClient, hub, logger)
	notifier.Start(ctx)

	// Services
	mailer := &services.LogMailer{From: cfg.MailFrom, Log: logger}
	users := services.NewUserService(userRepo, otpStore, mailer, logger, cfg.OTPTTL)
	trust := services.NewTrustService(trustRepo, logger)
	events := services.NewRecoveryEvents(audit, notifier, m, logger)
	coord := services.NewCoordinator(recoveryRepo, trustRepo, userRepo, events, audit,
		services.CoordinatorConfig{Quorum: cfg.RecoveryQuorum}, logger)

	vendors := services.NewVendorService(vendorRepo, cache, nil, cfg.JWTSecret, logger)
	if cfg.CloudinaryEnabled() {
		cld, err := services.NewCloudinaryService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			logger.Warn("cloudinary unavailable, logo uploads disabled", "error", err)
		} else {
			vendors = services.NewVendorService(vendorRepo, cache, cld, cfg.JWTSecret, logger)
			logger.Info("cloudinary service initialized")
		}
	} else {
		logger.Warn("cloudinary credentials not found, logo uploads disabled")
	}

	r := chi.NewRouter()
	r.Use(middleware.WithRequestID)
	r.Use(middleware.AccessLog(logger))
	r.Use(middleware.WithMetrics(m))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(cfg.Host) {
			r.Use(mw)
		}
		logger.Info("production security enabled")
	} else {
		r.Use(middleware.GlobalRedisLimiter(database.RedisClient, logger).Handler)
	}

	routes.SetupRoutes(r, routes.Handlers{
		Users:    handlers.NewUserHandler(users, trust, rs),
		Recovery: handlers.NewRecoveryHandler(coord, rs),
		Vendors:  handlers.NewVendorHandler(vendors, rs),
		Stream:   handlers.NewRecoveryStream(hub, cfg.AllowedOrigins, rs),
		Health: handlers.Health(map[string]handlers.Pinger{
			"postgres": database.PostgresDB.PingContext,
			"redis":    func(ctx context.Context) error { return database.RedisClient.Ping(ctx).Err() },
			"mongodb":  func(ctx context.Context) error { return database.Client.Ping(ctx, nil) },
		}),
		OTPLimit: middleware.OTPSendLimiter(database.RedisClient, logger).Handler,
		Metrics:  promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("books-auth running", "port", cfg.Port, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
