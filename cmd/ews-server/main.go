package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinical-ews/platform/pkg/anonymizer"
	"github.com/clinical-ews/platform/pkg/audit"
	"github.com/clinical-ews/platform/pkg/common/config"
	"github.com/clinical-ews/platform/pkg/common/database"
	"github.com/clinical-ews/platform/pkg/common/kafka"
	"github.com/clinical-ews/platform/pkg/common/logger"
	"github.com/clinical-ews/platform/pkg/observability/metrics"
	"github.com/clinical-ews/platform/pkg/pipeline"
	"github.com/clinical-ews/platform/pkg/risk"
	"github.com/clinical-ews/platform/pkg/vitals"
	"github.com/gorilla/mux"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	store := vitals.NewStore(db)
	if err := store.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate vitals tables")
	}
	predictions := risk.NewRepository(db)
	if err := predictions.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate prediction tables")
	}
	trail := audit.NewTrail(db)
	if err := trail.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate audit tables")
	}

	rules, err := vitals.LoadRules(cfg.VitalRulesPath)
	if err != nil {
		logger.Log.WithError(err).Warn("falling back to default vital sign rules")
		rules = vitals.DefaultRules()
	}
	validator := vitals.NewValidator(rules)

	model := risk.NewModel()
	if err := model.LoadFrom(cfg.ModelArtifactPath); err != nil {
		logger.Log.WithError(err).WithField("path", cfg.ModelArtifactPath).
			Warn("no risk model loaded; predictions will fail until one is available")
	}

	coordinator := pipeline.NewCoordinator(
		validator,
		anonymizer.New(cfg.AnonymizerSalt),
		store,
		model,
		predictions,
		trail,
	)
	coordinator.WithCache(pipeline.NewRedisCache(database.GetRedis()), cfg.PredictionCacheTTL)

	var alertProducer *kafka.Producer
	if cfg.AlertTopic != "" {
		alertProducer = kafka.NewProducer(cfg.AlertTopic)
		defer alertProducer.Close()
		coordinator.WithAlerts(alertProducer, cfg.AlertSource)
	}

	handler := pipeline.NewHTTPHandler(
		coordinator,
		cfg.MaxRequestBody,
		cfg.VitalsHistoryLimit,
		cfg.AuditQueryLimit,
		cfg.DashboardCacheTTL,
	)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !model.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"waiting_for_model"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	handler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Early Warning Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Early Warning Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Warn("failed to close postgres connection")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Warn("failed to close redis connection")
	}

	logger.Log.Info("Early Warning Service stopped")
}
