package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/ecogov/be-inspections/internal/client"
	"github.com/ecogov/be-inspections/internal/config"
	"github.com/ecogov/be-inspections/internal/database"
	"github.com/ecogov/be-inspections/internal/handler"
	"github.com/ecogov/be-inspections/internal/kvstore"
	"github.com/ecogov/be-inspections/internal/logger"
	"github.com/ecogov/be-inspections/internal/middleware"
	"github.com/ecogov/be-inspections/internal/repository"
	"github.com/ecogov/be-inspections/internal/resilience"
	"github.com/ecogov/be-inspections/internal/routing"
	"github.com/ecogov/be-inspections/internal/service"
	"github.com/ecogov/be-inspections/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting inspection workflow service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Key-value store for drafts and wizard progress
	kv, err := kvstore.NewRedisStore(ctx, cfg.Redis.URL, "inspections")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer kv.Close()
	log.Info().Msg("Redis connection established")

	// NATS notification publisher (optional)
	var nc *nats.Conn
	if cfg.NATS.Enabled {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1))
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable; notifications disabled")
			nc = nil
		} else {
			defer nc.Close()
		}
	}
	publisher := client.NewNotificationPublisher(nc, log.Logger)

	// Repositories
	inspectionRepo := repository.NewInspectionRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	personnelRepo := repository.NewPersonnelRepository(db)

	// Workflow engine
	var resolverOpts []routing.Option
	if cfg.Workflow.RoutingCacheTTL > 0 {
		resolverOpts = append(resolverOpts, routing.WithCacheTTL(cfg.Workflow.RoutingCacheTTL))
	}
	resolver := routing.NewResolver(personnelRepo, resolverOpts...)
	gateway := workflow.NewGateway()
	machine := workflow.NewMachine(gateway, resolver)

	inspectionService := service.NewInspectionService(
		inspectionRepo, historyRepo, personnelRepo,
		gateway, machine, resolver, publisher, log)

	// External collaborators
	establishmentClient := client.NewEstablishmentClient(
		cfg.Clients.EstablishmentsURL, nil, resilience.DefaultPolicy(), log.Logger)
	prober := client.NewProber(
		cfg.Clients.EstablishmentsURL+"/health", cfg.Workflow.ProbeTimeout, log.Logger)

	// Wizard sessions
	wizardSessions := service.NewWizardSessions(
		kv, inspectionService, establishmentClient,
		cfg.Workflow.WizardProgressTTL, cfg.Workflow.WizardDebounce, log)
	defer wizardSessions.Close()

	// HTTP routes
	httpHandler := handler.NewHTTPHandler(inspectionService, log)
	wizardHandler := handler.NewWizardHandler(wizardSessions, log)
	mux := http.NewServeMux()
	httpHandler.RegisterRoutes(mux)
	wizardHandler.RegisterRoutes(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, `{"status":"degraded","database":"down"}`, http.StatusServiceUnavailable)
			return
		}
		if err := kv.Ping(r.Context()); err != nil {
			http.Error(w, `{"status":"degraded","kvstore":"down"}`, http.StatusServiceUnavailable)
			return
		}
		// Establishments-service reachability is informational only.
		establishments := "up"
		if !prober.Online(r.Context()) {
			establishments = "down"
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","establishments":"` + establishments + `"}`))
	})

	var h http.Handler = mux
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.RequestID(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
