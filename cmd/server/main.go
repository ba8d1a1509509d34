package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"dispatch/internal/app"
	"dispatch/internal/config"
	"dispatch/internal/handler"
	"dispatch/internal/maps"
	internalRedis "dispatch/internal/redis"
	"dispatch/internal/repository/postgres"
	"dispatch/internal/service"
	"dispatch/internal/ws"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	log := newLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.WithError(err).Warn("failed to initialize New Relic")
		} else {
			log.WithField("app", cfg.NewRelic.AppName).Info("New Relic enabled")
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	log.Info("connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info("connected to Redis")

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := wireServer(runCtx, db, redisClient, nrApp, cfg, log)

	go func() {
		log.WithField("port", cfg.Server.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-runCtx.Done()
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server exited")
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(level)
	}
	return log
}

// wireServer wires all dependencies and returns the HTTP server.
// Background workers (the event hub and the heartbeat supervisor) run
// until ctx is cancelled.
func wireServer(ctx context.Context, db *sql.DB, redisClient *goredis.Client, nrApp *newrelic.Application, cfg *config.Config, log *logrus.Logger) *http.Server {
	// Initialize Redis stores.
	locationStore := internalRedis.NewLocationStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)

	// Initialize repositories.
	driverRepo := postgres.NewDriverRepository(db)
	rideRepo := postgres.NewRideRepository(db)

	// Routing provider. Without an API key every route falls back to the
	// straight-line estimate, which keeps local development working.
	var provider maps.Provider
	if cfg.Maps.APIKey != "" {
		p, err := maps.NewGoogleProvider(cfg.Maps.APIKey)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize maps provider")
		}
		provider = p
	}
	geoClient := maps.NewClient(provider, cacheStore, log, cfg.Maps.Timeout, cfg.Maps.MaxAttempts)

	// Event hub.
	hub := ws.NewHub(log)
	go hub.Run()

	// Initialize services.
	registry := service.NewRegistry(driverRepo, locationStore, log, cfg.Dispatch.FreshnessWindow)
	fanout := service.NewFanout(ws.NewEventPusher(hub), log)
	rideService := service.NewRideService(rideRepo, registry, fanout, lockStore, log, cfg.Dispatch.ETAWindow)
	dispatchService := service.NewDispatchService(rideService, registry, fanout, geoClient, cacheStore, log, cfg.Dispatch.QuoteTTL, cfg.Dispatch.SearchRadiusKm)

	go registry.RunSupervisor(ctx)

	// Initialize handlers.
	rideHandler := handler.NewRideHandler(rideService, dispatchService)
	driverHandler := handler.NewDriverHandler(registry)
	fareHandler := handler.NewFareHandler(dispatchService)
	geoHandler := handler.NewGeoHandler(geoClient)
	wsHandler := handler.NewWSHandler(hub)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		RideHandler:   rideHandler,
		DriverHandler: driverHandler,
		FareHandler:   fareHandler,
		GeoHandler:    geoHandler,
		WSHandler:     wsHandler,
		Cache:         cacheStore,
		NewRelicApp:   nrApp,
		Logger:        log,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
