//nolint:noctx // Test file uses http.NewRequest for simplicity
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/models"
	"github.com/aimd54/hero-rewards/internal/service/upgrade"
	"github.com/aimd54/hero-rewards/pkg/logger"
	"github.com/aimd54/hero-rewards/test/mocks"
)

type testDeps struct {
	overrides  *mocks.MockOverrideProcessor
	gradeTable *mocks.MockGradeTableService
	badges     *mocks.MockBadgeService
	audit      *mocks.MockAuditReader
}

func setupTestRouter() (*gin.Engine, *testDeps) {
	gin.SetMode(gin.TestMode)

	deps := &testDeps{
		overrides:  &mocks.MockOverrideProcessor{},
		gradeTable: &mocks.MockGradeTableService{},
		badges:     &mocks.MockBadgeService{},
		audit:      &mocks.MockAuditReader{},
	}
	h := NewHandler(deps.overrides, deps.gradeTable, deps.badges, deps.audit, logger.NewNop())

	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1"))
	return router, deps
}

func doRequest(router *gin.Engine, method, path string, body any, actor string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(HeaderActorID, actor)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireActor(t *testing.T) {
	router, _ := setupTestRouter()

	w := doRequest(router, http.MethodGet, "/api/v1/admin/audit", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/admin/audit", nil, "   ")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/admin/audit", nil, "admin-1")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdjustGrade(t *testing.T) {
	router, deps := setupTestRouter()

	var got upgrade.AdminOverrideRequest
	deps.overrides.ProcessAdminOverrideFunc = func(_ context.Context, req upgrade.AdminOverrideRequest) (*upgrade.Transition, error) {
		got = req
		return &upgrade.Transition{ConsumerID: req.ConsumerID, To: req.Level(), Trigger: models.TriggerAdmin}, nil
	}

	w := doRequest(router, http.MethodPost, "/api/v1/admin/consumers/c-1/grade",
		gin.H{"grade": "Gold", "tier": 1, "reason": "VIP goodwill"}, "admin-7")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, upgrade.AdminOverrideRequest{
		ConsumerID: "c-1",
		Grade:      models.GradeGold,
		Tier:       1,
		Reason:     "VIP goodwill",
		ActorID:    "admin-7",
	}, got)
}

func TestAdjustGrade_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		err      error
		wantCode int
	}{
		{name: "unknown grade", body: gin.H{"grade": "mythril", "tier": 1, "reason": "x"}, wantCode: http.StatusBadRequest},
		{name: "missing reason", body: gin.H{"grade": "gold", "tier": 1}, wantCode: http.StatusBadRequest},
		{name: "level outside table", body: gin.H{"grade": "diamond", "tier": 1, "reason": "x"}, err: apperrors.Validation("grade", "not defined"), wantCode: http.StatusBadRequest},
		{name: "unknown consumer", body: gin.H{"grade": "gold", "tier": 1, "reason": "x"}, err: apperrors.NotFound("consumer", "c-1"), wantCode: http.StatusNotFound},
		{name: "busy consumer", body: gin.H{"grade": "gold", "tier": 1, "reason": "x"}, err: &apperrors.ConcurrencyConflictError{ConsumerID: "c-1"}, wantCode: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, deps := setupTestRouter()
			deps.overrides.ProcessAdminOverrideFunc = func(context.Context, upgrade.AdminOverrideRequest) (*upgrade.Transition, error) {
				return nil, tt.err
			}

			w := doRequest(router, http.MethodPost, "/api/v1/admin/consumers/c-1/grade", tt.body, "admin-1")
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestUpdateGradeTable(t *testing.T) {
	router, deps := setupTestRouter()

	var gotActor, gotReason string
	deps.gradeTable.UpdateGradeTableFunc = func(_ context.Context, thresholds []models.GradeThreshold, actorID, reason string) (*models.GradeTable, error) {
		gotActor, gotReason = actorID, reason
		return &models.GradeTable{Version: 2, Thresholds: thresholds}, nil
	}

	w := doRequest(router, http.MethodPut, "/api/v1/admin/grade-table", gin.H{
		"reason": "spring rebalance",
		"thresholds": []gin.H{
			{"grade": "bronze", "tier": 1, "min_cumulative_weight_g": 0},
			{"grade": "silver", "tier": 1, "min_cumulative_weight_g": 4000},
		},
	}, "admin-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", gotActor)
	assert.Equal(t, "spring rebalance", gotReason)

	var body struct {
		Version    uint                    `json:"version"`
		Thresholds []models.GradeThreshold `json:"thresholds"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, uint(2), body.Version)
	assert.Len(t, body.Thresholds, 2)
}

func TestUpdateGradeTable_Rejected(t *testing.T) {
	router, deps := setupTestRouter()
	deps.gradeTable.UpdateGradeTableFunc = func(context.Context, []models.GradeThreshold, string, string) (*models.GradeTable, error) {
		return nil, apperrors.Validation("thresholds", "must increase with level")
	}

	w := doRequest(router, http.MethodPut, "/api/v1/admin/grade-table", gin.H{
		"reason":     "broken",
		"thresholds": []gin.H{{"grade": "silver", "tier": 2, "min_cumulative_weight_g": 3000}},
	}, "admin-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "must increase with level")
}

func TestUpsertBadge(t *testing.T) {
	router, deps := setupTestRouter()

	var got models.BadgeSpec
	deps.badges.UpsertBadgeFunc = func(_ context.Context, spec models.BadgeSpec, _, _ string) (*models.Badge, error) {
		got = spec
		return &models.Badge{BadgeType: spec.BadgeType, Name: spec.Name}, nil
	}

	w := doRequest(router, http.MethodPut, "/api/v1/admin/badges/gold_reached", gin.H{
		"name":           "Gold Hero",
		"emoji":          "🥇",
		"milestone_rule": gin.H{"kind": "level", "grade": "gold", "tier": 1},
		"reason":         "launch",
	}, "admin-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gold_reached", got.BadgeType)
	assert.Equal(t, models.MilestoneLevel, got.Rule.Kind)
	assert.Equal(t, models.GradeGold, got.Rule.Grade)
}

func TestListAudit(t *testing.T) {
	router, deps := setupTestRouter()

	var gotType, gotID string
	var gotLimit int
	deps.audit.ListFunc = func(_ context.Context, targetType, targetID string, limit int) ([]models.AuditLogEntry, error) {
		gotType, gotID, gotLimit = targetType, targetID, limit
		return []models.AuditLogEntry{{ID: 1, ActorID: "admin-1", Action: models.AuditActionGradeAdjusted}}, nil
	}

	w := doRequest(router, http.MethodGet, "/api/v1/admin/audit?target_type=consumer&target_id=c-1&limit=5", nil, "admin-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "consumer", gotType)
	assert.Equal(t, "c-1", gotID)
	assert.Equal(t, 5, gotLimit)

	w = doRequest(router, http.MethodGet, "/api/v1/admin/audit?limit=0", nil, "admin-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
