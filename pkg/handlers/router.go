package handlers

import (
	"log/slog"
	"time"

	"sales-insight-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions holds the HTTP-level settings of NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	// APIKey protects /admin and /monitoring when set.
	APIKey string
	// Gatherer backs /metrics. nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter wires every route of the API.
func NewRouter(opts RouterOptions, analytics *AnalyticsHandler, admin *AdminHandler, monitoring *services.MonitoringService) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(monitoring.LoggingMiddleware())
	r.Use(cors.New(corsConfig(opts.AllowedOrigins)))
	r.Use(RateLimit(opts.RateLimitRPS, opts.RateLimitBurst, logger))

	// ヘルスチェック
	r.GET("/", analytics.Root)
	r.GET("/health", admin.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// 分析API（元のUIのパスを維持）
	r.GET("/names/", analytics.Names)
	r.POST("/predict/", analytics.Predict)
	r.POST("/forecast/", analytics.Forecast)
	r.POST("/clustering/", analytics.Clustering)

	// 管理者向けAPI
	adminGroup := r.Group("/admin")
	adminGroup.Use(APIKeyAuth(opts.APIKey))
	{
		adminGroup.POST("/cache/invalidate", admin.InvalidateCache)
		adminGroup.GET("/health-status", admin.GetHealthStatus)
		adminGroup.POST("/maintenance/start", admin.StartMaintenance)
		adminGroup.POST("/maintenance/stop", admin.StopMaintenance)
	}

	// モニタリングAPI
	monitoringHandler := NewMonitoringHandler(monitoring)
	monitoringGroup := r.Group("/monitoring")
	monitoringGroup.Use(APIKeyAuth(opts.APIKey))
	{
		monitoringGroup.GET("/logs", monitoringHandler.GetLogs)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	origins = trimOrigins(origins)
	config := cors.DefaultConfig()
	if allowsAnyOrigin(origins) {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	config.AllowHeaders = append(config.AllowHeaders, "X-API-KEY", services.RequestIDHeader)
	config.ExposeHeaders = []string{services.RequestIDHeader}
	config.MaxAge = 12 * time.Hour
	return config
}
