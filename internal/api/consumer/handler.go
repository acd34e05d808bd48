// Package consumer provides REST API handlers for consumer-facing progression
// endpoints and order-completion intake.
package consumer

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/hero-rewards/internal/api/respond"
	"github.com/aimd54/hero-rewards/internal/models"
	"github.com/aimd54/hero-rewards/internal/service/rewards"
	"github.com/aimd54/hero-rewards/internal/service/status"
	"github.com/aimd54/hero-rewards/pkg/logger"
)

// HeaderConsumerID carries the authenticated consumer when the identity
// collaborator fronts consumer traffic.
const HeaderConsumerID = "X-Consumer-ID"

// Engine interface for order and profile operations.
type Engine interface {
	EnsureProfile(ctx context.Context, consumerID string) (*models.ConsumerProfile, bool, error)
	HandleOrderCompleted(ctx context.Context, order rewards.OrderCompleted) (*rewards.OrderResult, error)
}

// StatusService interface for progression queries.
type StatusService interface {
	GetStatus(ctx context.Context, consumerID string) (*status.Status, error)
	GetUpgradeHistory(ctx context.Context, consumerID string) ([]models.UpgradeLog, error)
}

// GradeTableService interface for grade table lookups.
type GradeTableService interface {
	ActiveTable(ctx context.Context) (*models.GradeTable, error)
}

// Handler handles consumer API requests.
type Handler struct {
	engine     Engine
	status     StatusService
	gradeTable GradeTableService
	log        *logger.Logger
}

// NewHandler creates a new consumer handler.
func NewHandler(engine Engine, statusService StatusService, gradeTable GradeTableService, log *logger.Logger) *Handler {
	return &Handler{
		engine:     engine,
		status:     statusService,
		gradeTable: gradeTable,
		log:        log,
	}
}

// RegisterRoutes mounts the consumer endpoints on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/contributions", h.RecordContribution)
	rg.GET("/grade-table", h.GetGradeTable)

	consumers := rg.Group("/consumers/:id", h.matchConsumer)
	consumers.POST("", h.EnsureProfile)
	consumers.GET("/status", h.GetStatus)
	consumers.GET("/upgrades", h.GetUpgradeHistory)
}

// matchConsumer rejects requests whose X-Consumer-ID names a different consumer than the path.
func (h *Handler) matchConsumer(c *gin.Context) {
	if caller := c.GetHeader(HeaderConsumerID); caller != "" && caller != c.Param("id") {
		respond.Message(c, http.StatusForbidden, "consumer may only access their own progression")
		return
	}
	c.Next()
}

// EnsureProfile creates the consumer's profile if missing.
// POST /api/v1/consumers/:id.
func (h *Handler) EnsureProfile(c *gin.Context) {
	consumerID := c.Param("id")
	profile, created, err := h.engine.EnsureProfile(c.Request.Context(), consumerID)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	c.JSON(code, gin.H{
		"profile": profile,
		"created": created,
	})
}

type contributionRequest struct {
	ConsumerID string `json:"consumer_id" binding:"required"`
	OrderID    string `json:"order_id" binding:"required"`
	WeightG    int64  `json:"weight_g"`
	CO2G       int64  `json:"co2_g"`
}

// RecordContribution ingests an order-completion event.
// POST /api/v1/contributions.
func (h *Handler) RecordContribution(c *gin.Context) {
	var req contributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Message(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.engine.HandleOrderCompleted(c.Request.Context(), rewards.OrderCompleted{
		ConsumerID: strings.TrimSpace(req.ConsumerID),
		OrderID:    strings.TrimSpace(req.OrderID),
		WeightG:    req.WeightG,
		CO2G:       req.CO2G,
	})
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}

	code := http.StatusAccepted
	if res.Recorded {
		code = http.StatusCreated
	}
	c.JSON(code, res)
}

// GetStatus returns the consumer's progression snapshot.
// GET /api/v1/consumers/:id/status.
func (h *Handler) GetStatus(c *gin.Context) {
	st, err := h.status.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       st,
		"generated_at": time.Now().UTC(),
	})
}

// GetUpgradeHistory returns the consumer's transitions, most recent first.
// GET /api/v1/consumers/:id/upgrades.
func (h *Handler) GetUpgradeHistory(c *gin.Context) {
	consumerID := c.Param("id")
	history, err := h.status.GetUpgradeHistory(c.Request.Context(), consumerID)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"consumer_id":    consumerID,
		"upgrades":       history,
		"total_upgrades": len(history),
	})
}

// GetGradeTable returns the active grade table.
// GET /api/v1/grade-table.
func (h *Handler) GetGradeTable(c *gin.Context) {
	table, err := h.gradeTable.ActiveTable(c.Request.Context())
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"version":        table.Version,
		"effective_from": table.EffectiveFrom,
		"thresholds":     models.SortedByLevel(table.Thresholds),
	})
}
