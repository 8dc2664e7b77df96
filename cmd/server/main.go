package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"rideengine/internal/app"
	"rideengine/internal/config"
	"rideengine/internal/events"
	"rideengine/internal/handler"
	"rideengine/internal/logging"
	"rideengine/internal/middleware"
	internalRedis "rideengine/internal/redis"
	"rideengine/internal/repository/postgres"
	"rideengine/internal/service"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", "error", err)
		} else {
			logger.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	if cfg.Database.Migrate {
		if err := app.Migrate(ctx, db, logger); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	runCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	w, err := wire(db, redisClient, nrApp, cfg, logger)
	if err != nil {
		logger.Error("failed to wire server", "error", err)
		os.Exit(1)
	}
	defer w.close()

	var workers sync.WaitGroup
	w.start(runCtx, &workers, cfg)

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := w.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	stopWorkers()
	workers.Wait()

	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}
	logger.Info("server exited")
}

// wiring holds the server and the background workers that share its
// services.
type wiring struct {
	server    *http.Server
	dispatch  *service.DispatchService
	drivers   *service.DriverService
	consumer  *events.LocationConsumer
	publisher *events.KafkaPublisher
	logger    *slog.Logger
}

// wire wires all dependencies.
func wire(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config, logger *slog.Logger) (*wiring, error) {
	// Redis stores.
	locationStore := internalRedis.NewLocationStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)

	// Repositories.
	userRepo := postgres.NewUserRepository(db)
	driverRepo := postgres.NewDriverRepository(db)
	rideRepo := postgres.NewRideRepository(db)
	transactor := postgres.NewTransactor(db)

	geocoder, err := app.NewGeocoder(cfg.Geocoder, cacheStore, logger)
	if err != nil {
		return nil, err
	}

	w := &wiring{logger: logger}

	var publisher service.Publisher = events.NewLogPublisher(logger)
	if cfg.Kafka.Enabled {
		w.publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.NotificationTopic)
		publisher = w.publisher
	}

	// Services.
	notificationService := service.NewNotificationService(publisher, logger)
	w.dispatch = service.NewDispatchService(transactor, rideRepo, driverRepo, geocoder, lockStore, notificationService, logger,
		service.DispatchConfig{
			RequestTTL:   cfg.Dispatch.RideRequestTTL,
			RiderLockTTL: cfg.Dispatch.RiderLockTTL,
		})
	lifecycleService := service.NewLifecycleService(transactor, rideRepo, cacheStore, notificationService, logger)
	w.drivers = service.NewDriverService(transactor, driverRepo, rideRepo, locationStore, logger).
		WithNearbyRadius(cfg.Dispatch.NearbyRadiusKm)
	adminService := service.NewAdminService(transactor, driverRepo, rideRepo, locationStore, cacheStore, logger)
	bridge := service.NewLocationBridge(userRepo, driverRepo, rideRepo, locationStore, cacheStore, notificationService, logger)

	if cfg.Kafka.Enabled {
		w.consumer = events.NewLocationConsumer(cfg.Kafka.Brokers, cfg.Kafka.LocationTopic, cfg.Kafka.GroupID, bridge, logger)
	}

	router := app.NewRouter(app.RouterDeps{
		RideHandler:     handler.NewRideHandler(w.dispatch, lifecycleService),
		DriverHandler:   handler.NewDriverHandler(w.drivers, w.dispatch),
		LocationHandler: handler.NewLocationHandler(bridge),
		AdminHandler:    handler.NewAdminHandler(adminService),
		UserHandler:     handler.NewUserHandler(userRepo),
		Identity: middleware.IdentityConfig{
			JWTSecret:    cfg.Auth.JWTSecret,
			TrustHeaders: cfg.Auth.TrustHeaders,
		},
		RedisClient: redisClient,
		NewRelicApp: nrApp,
	})

	w.server = &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return w, nil
}

// start launches the sweepers and the location consumer.
func (w *wiring) start(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config) {
	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.logger.Info("worker started", "worker", name)
			fn()
		}()
	}

	run("expiry-sweeper", func() {
		w.dispatch.RunExpirySweeper(ctx, cfg.Dispatch.ExpirySweepInterval)
	})
	run("offline-sweeper", func() {
		w.drivers.RunOfflineSweeper(ctx, cfg.Dispatch.OfflineSweepInterval, cfg.Dispatch.DriverIdleTimeout)
	})
	if w.consumer != nil {
		run("location-consumer", func() { w.consumer.Run(ctx) })
	}
}

func (w *wiring) close() {
	if w.consumer != nil {
		if err := w.consumer.Close(); err != nil {
			w.logger.Warn("closing location consumer", "error", err)
		}
	}
	if w.publisher != nil {
		if err := w.publisher.Close(); err != nil {
			w.logger.Warn("closing notification publisher", "error", err)
		}
	}
}
