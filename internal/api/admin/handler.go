// Package admin provides REST API handlers for operator actions: grade
// adjustments, grade table and badge catalog maintenance, and audit review.
// Every mutation is attributed to the actor named in X-Actor-ID.
package admin

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/hero-rewards/internal/api/respond"
	"github.com/aimd54/hero-rewards/internal/models"
	"github.com/aimd54/hero-rewards/internal/service/audit"
	"github.com/aimd54/hero-rewards/internal/service/upgrade"
	"github.com/aimd54/hero-rewards/pkg/logger"
)

// HeaderActorID carries the operator identity supplied by the identity collaborator.
const HeaderActorID = "X-Actor-ID"

const actorKey = "actor_id"

// OverrideProcessor interface for manual grade adjustments.
type OverrideProcessor interface {
	ProcessAdminOverride(ctx context.Context, req upgrade.AdminOverrideRequest) (*upgrade.Transition, error)
}

// GradeTableService interface for grade table administration.
type GradeTableService interface {
	UpdateGradeTable(ctx context.Context, thresholds []models.GradeThreshold, actorID, reason string) (*models.GradeTable, error)
}

// BadgeService interface for badge catalog administration.
type BadgeService interface {
	UpsertBadge(ctx context.Context, spec models.BadgeSpec, actorID, reason string) (*models.Badge, error)
	GetBadgeCatalog(ctx context.Context) ([]models.Badge, error)
}

// AuditReader interface for audit log review.
type AuditReader interface {
	List(ctx context.Context, targetType, targetID string, limit int) ([]models.AuditLogEntry, error)
}

// Handler handles admin API requests.
type Handler struct {
	overrides  OverrideProcessor
	gradeTable GradeTableService
	badges     BadgeService
	audit      AuditReader
	log        *logger.Logger
}

// NewHandler creates a new admin handler.
func NewHandler(
	overrides OverrideProcessor,
	gradeTable GradeTableService,
	badgeService BadgeService,
	auditReader AuditReader,
	log *logger.Logger,
) *Handler {
	return &Handler{
		overrides:  overrides,
		gradeTable: gradeTable,
		badges:     badgeService,
		audit:      auditReader,
		log:        log,
	}
}

// RegisterRoutes mounts the admin endpoints under rg/admin.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	admin := rg.Group("/admin", RequireActor)
	admin.POST("/consumers/:id/grade", h.AdjustGrade)
	admin.PUT("/grade-table", h.UpdateGradeTable)
	admin.GET("/badges", h.GetBadgeCatalog)
	admin.PUT("/badges/:type", h.UpsertBadge)
	admin.GET("/audit", h.ListAudit)
}

// RequireActor rejects admin requests without an X-Actor-ID header.
func RequireActor(c *gin.Context) {
	actor := strings.TrimSpace(c.GetHeader(HeaderActorID))
	if actor == "" {
		respond.Message(c, http.StatusUnauthorized, HeaderActorID+" header is required")
		return
	}
	c.Set(actorKey, actor)
	c.Next()
}

func actorFrom(c *gin.Context) string {
	return c.GetString(actorKey)
}

type adjustGradeRequest struct {
	Grade  string `json:"grade" binding:"required"`
	Tier   int    `json:"tier" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// AdjustGrade sets a consumer's level manually.
// POST /api/v1/admin/consumers/:id/grade.
func (h *Handler) AdjustGrade(c *gin.Context) {
	var req adjustGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Message(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	grade, err := models.ParseGrade(req.Grade)
	if err != nil {
		respond.Message(c, http.StatusBadRequest, err.Error())
		return
	}

	transition, err := h.overrides.ProcessAdminOverride(c.Request.Context(), upgrade.AdminOverrideRequest{
		ConsumerID: c.Param("id"),
		Grade:      grade,
		Tier:       req.Tier,
		Reason:     req.Reason,
		ActorID:    actorFrom(c),
	})
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transition": transition})
}

type updateGradeTableRequest struct {
	Thresholds []models.GradeThreshold `json:"thresholds" binding:"required"`
	Reason     string                  `json:"reason" binding:"required"`
}

// UpdateGradeTable activates a new grade table version.
// PUT /api/v1/admin/grade-table.
func (h *Handler) UpdateGradeTable(c *gin.Context) {
	var req updateGradeTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Message(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	table, err := h.gradeTable.UpdateGradeTable(c.Request.Context(), req.Thresholds, actorFrom(c), req.Reason)
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

type upsertBadgeRequest struct {
	Name          string               `json:"name" binding:"required"`
	Emoji         string               `json:"emoji"`
	MilestoneRule models.MilestoneRule `json:"milestone_rule"`
	Reason        string               `json:"reason" binding:"required"`
}

// UpsertBadge creates or edits a catalog badge.
// PUT /api/v1/admin/badges/:type.
func (h *Handler) UpsertBadge(c *gin.Context) {
	var req upsertBadgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Message(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	badge, err := h.badges.UpsertBadge(c.Request.Context(), models.BadgeSpec{
		BadgeType: c.Param("type"),
		Name:      req.Name,
		Emoji:     req.Emoji,
		Rule:      req.MilestoneRule,
	}, actorFrom(c), req.Reason)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"badge": badge})
}

// GetBadgeCatalog returns all catalog badges.
// GET /api/v1/admin/badges.
func (h *Handler) GetBadgeCatalog(c *gin.Context) {
	catalog, err := h.badges.GetBadgeCatalog(c.Request.Context())
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"badges":       catalog,
		"total_badges": len(catalog),
	})
}

// ListAudit returns audit entries, newest first.
// GET /api/v1/admin/audit?target_type=consumer&target_id=c-1&limit=50.
func (h *Handler) ListAudit(c *gin.Context) {
	limit, err := parseLimit(c, audit.DefaultListLimit)
	if err != nil {
		respond.Message(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.audit.List(c.Request.Context(), c.Query("target_type"), c.Query("target_id"), limit)
	if err != nil {
		respond.Error(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":       entries,
		"total_entries": len(entries),
	})
}

// parseLimit extracts and validates the limit query parameter.
func parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}
	if limit > 1000 {
		return 0, fmt.Errorf("limit cannot exceed 1000")
	}
	return limit, nil
}
