package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"sales-insight-api/pkg/models"
	"sales-insight-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// TableSource provides the current sales table.
type TableSource interface {
	Load(ctx context.Context) (models.RawTable, error)
	Invalidate()
}

// ModelSource provides the pre-trained decision tree and its encoders.
type ModelSource interface {
	Load(ctx context.Context) (*services.ModelBundle, error)
	Invalidate()
}

// SnapshotSaver persists clustering results. Optional.
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, result *models.ClusterResult) (string, error)
}

// AnalyticsHandler serves the tree, forecast, clustering and names endpoints.
type AnalyticsHandler struct {
	dataset        TableSource
	models         ModelSource
	forecasts      *services.ForecastService
	trees          *services.TreeService
	snapshots      SnapshotSaver
	columns        models.ColumnMap
	clusterOpts    services.ClusterOptions
	defaultPeriods int
	logger         *slog.Logger
}

// AnalyticsOptions configures NewAnalyticsHandler.
type AnalyticsOptions struct {
	Columns        models.ColumnMap
	Cluster        services.ClusterOptions
	DefaultPeriods int
	// Snapshots may be nil; clustering results are then not exported.
	Snapshots SnapshotSaver
	Logger    *slog.Logger
}

// NewAnalyticsHandler は新しいAnalyticsHandlerを生成します。
func NewAnalyticsHandler(dataset TableSource, modelSource ModelSource, opts AnalyticsOptions) *AnalyticsHandler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultPeriods <= 0 {
		opts.DefaultPeriods = services.DefaultForecastPeriods
	}
	if opts.Cluster.K == 0 {
		opts.Cluster = services.DefaultClusterOptions()
	}
	return &AnalyticsHandler{
		dataset:        dataset,
		models:         modelSource,
		forecasts:      services.NewForecastService(opts.Columns, services.NewLinearTrendForecaster, logger),
		trees:          services.NewTreeService(opts.Columns, logger),
		snapshots:      opts.Snapshots,
		columns:        opts.Columns,
		clusterOpts:    opts.Cluster,
		defaultPeriods: opts.DefaultPeriods,
		logger:         logger,
	}
}

// Root is the liveness message the dashboard polls.
func (h *AnalyticsHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "Server running!"})
}

// Names returns the sorted distinct customer/store names.
func (h *AnalyticsHandler) Names(c *gin.Context) {
	table, err := h.dataset.Load(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "names", err)
		return
	}
	names, err := services.EntityNames(table, h.columns)
	if err != nil {
		respondError(c, h.logger, "names", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"names": names})
}

// Predict validates the dataset against the model encoders and returns the tree.
func (h *AnalyticsHandler) Predict(c *gin.Context) {
	ctx := c.Request.Context()
	table, err := h.dataset.Load(ctx)
	if err != nil {
		respondError(c, h.logger, "predict", err)
		return
	}
	bundle, err := h.models.Load(ctx)
	if err != nil {
		respondError(c, h.logger, "predict", err)
		return
	}
	desc, err := h.trees.Describe(table, bundle)
	if err != nil {
		respondError(c, h.logger, "predict", err)
		return
	}
	c.JSON(http.StatusOK, services.Sanitize([]*models.TreeNode{desc.Root}))
}

// Forecast returns the monthly forecast of one store merged with its actuals.
func (h *AnalyticsHandler) Forecast(c *gin.Context) {
	var req models.ForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("⚠️ invalid forecast request", "error", err)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "store_name is required"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	periods := req.Periods
	if periods == 0 {
		periods = h.defaultPeriods
	}

	table, err := h.dataset.Load(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "forecast", err)
		return
	}
	result, err := h.forecasts.Forecast(table, req.StoreName, periods)
	if err != nil {
		respondError(c, h.logger, "forecast", err)
		return
	}
	c.JSON(http.StatusOK, services.Sanitize(gin.H{
		"message": "Forecast completed successfully.",
		"result":  result,
	}))
}

// Clustering segments customers by total spend.
// When a snapshot store is configured the result is exported as well;
// an export failure is logged and does not fail the request.
func (h *AnalyticsHandler) Clustering(c *gin.Context) {
	ctx := c.Request.Context()
	table, err := h.dataset.Load(ctx)
	if err != nil {
		respondError(c, h.logger, "clustering", err)
		return
	}
	result, err := services.ClusterCustomers(table, h.columns, h.clusterOpts)
	if err != nil {
		respondError(c, h.logger, "clustering", err)
		return
	}
	h.logger.Info("🧮 customers clustered",
		"customers", len(result.Customers),
		"k", result.K,
		"inertia", result.Inertia,
		"dropped", result.DroppedRows)

	body, _ := services.Sanitize(result).(map[string]any)
	if h.snapshots != nil {
		runID, err := h.snapshots.SaveSnapshot(ctx, result)
		if err != nil {
			h.logger.Warn("⚠️ cluster snapshot export failed", "error", err)
		} else {
			body["snapshot_id"] = runID
		}
	}
	c.JSON(http.StatusOK, body)
}

// InvalidateCaches drops the cached dataset and model bundle.
func (h *AnalyticsHandler) InvalidateCaches() {
	h.dataset.Invalidate()
	h.models.Invalidate()
	h.logger.Info("🧹 caches invalidated")
}
