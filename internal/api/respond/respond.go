// Package respond writes JSON error responses for the HTTP handlers and maps
// the engine's error taxonomy onto status codes.
package respond

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/pkg/logger"
)

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	var (
		validation *apperrors.ValidationError
		notFound   *apperrors.NotFoundError
		conflict   *apperrors.ConcurrencyConflictError
		cfg        *apperrors.ConfigurationError
		storage    *apperrors.StorageError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &cfg):
		return http.StatusInternalServerError
	case errors.As(err, &storage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error sends a standardized error response for err. Server-side failures
// are logged and their details withheld from the client.
func Error(c *gin.Context, log *logger.Logger, err error) {
	status := StatusFor(err)
	body := gin.H{
		"error":     err.Error(),
		"timestamp": time.Now().UTC(),
	}

	switch status {
	case http.StatusConflict:
		c.Header("Retry-After", "1")
	case http.StatusServiceUnavailable:
		body["error"] = "storage temporarily unavailable"
		c.Header("Retry-After", "5")
	case http.StatusInternalServerError:
		if !apperrors.IsConfiguration(err) {
			body["error"] = "internal error"
		}
	}

	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Msg("Request failed")
	}

	c.AbortWithStatusJSON(status, body)
}

// Message sends a standardized error response with a fixed status and message.
func Message(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
