package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"sales-insight-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// statusFor maps a pipeline error to its HTTP status.
func statusFor(err error) int {
	var (
		notFound     *services.NotFoundError
		insufficient *services.InsufficientDataError
		configErr    *services.ConfigurationError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &insufficient), errors.As(err, &configErr):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrClusterStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error body and logs the failure.
// NotFoundError additionally lists the entity names that do exist.
func respondError(c *gin.Context, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var notFound *services.NotFoundError
	if errors.As(err, &notFound) {
		available := notFound.Available
		if available == nil {
			available = []string{}
		}
		body["available_names"] = available
	}

	if status >= http.StatusInternalServerError {
		logger.Error("❌ "+op+" failed", "error", err, "request_id", c.GetString("request_id"))
	} else {
		logger.Warn("⚠️ "+op+" rejected", "error", err, "status", status, "request_id", c.GetString("request_id"))
	}
	c.JSON(status, body)
}
