// Package app assembles the services and routes shared by the server binary
// and the serverless entry point.
package app

import (
	"log/slog"
	"os"

	config "sales-insight-api/configs"
	"sales-insight-api/pkg/handlers"
	"sales-insight-api/pkg/models"
	"sales-insight-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// NewLogger returns a JSON logger in production and a text logger elsewhere.
func NewLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// Build creates every service and returns the configured router.
func Build(cfg *config.Config, logger *slog.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// サービスの初期化
	monitoringService := services.NewMonitoringService(registry, logger)
	datasetLoader := services.NewDatasetLoader(cfg.DataPath, cfg.CacheTTL, logger)
	modelLoader := services.NewModelLoader(cfg.ModelDir, cfg.FeatureNames, logger)

	var snapshots handlers.SnapshotSaver
	if cfg.SnapshotsEnabled() {
		store, err := services.NewClusterStore(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.QdrantCollection, logger)
		if err != nil {
			// スナップショット保存は任意機能なので起動は継続する
			logger.Error("❌ failed to initialize cluster store", "error", err)
		} else {
			snapshots = store
		}
	}

	clusterOpts := services.DefaultClusterOptions()
	clusterOpts.K = cfg.ClusterCount
	clusterOpts.Seed = cfg.ClusterSeed

	// ハンドラーの初期化
	analytics := handlers.NewAnalyticsHandler(datasetLoader, modelLoader, handlers.AnalyticsOptions{
		Columns:        models.DefaultColumnMap(),
		Cluster:        clusterOpts,
		DefaultPeriods: cfg.ForecastPeriods,
		Snapshots:      snapshots,
		Logger:         logger,
	})
	admin := handlers.NewAdminHandler(analytics)

	logger.Info("🟢 application initialized",
		"environment", cfg.Environment,
		"data_path", cfg.DataPath,
		"model_dir", cfg.ModelDir,
		"snapshots", snapshots != nil)

	return handlers.NewRouter(handlers.RouterOptions{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		APIKey:         cfg.APIKey,
		Gatherer:       registry,
		Logger:         logger,
	}, analytics, admin, monitoringService)
}
