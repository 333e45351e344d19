package aiadmin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"backend/api/handlers/common"
	"backend/internal/aicore"
	"backend/internal/feature"
	"backend/internal/logger"
	"backend/internal/middleware"
	"backend/internal/notification"
	"backend/internal/settings"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "console", "stderr")
	os.Exit(m.Run())
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	dsn := fmt.Sprintf("file:aiadmin_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	settingsSvc := settings.NewService(db)
	featureSvc := feature.NewService(db)
	notificationSvc := notification.NewService(db)
	ledger := aicore.NewLedger(db)
	require.NoError(t, settingsSvc.AutoMigrate())
	require.NoError(t, featureSvc.AutoMigrate())
	require.NoError(t, notificationSvc.AutoMigrate())
	require.NoError(t, ledger.AutoMigrate())

	handler := NewHandler(settingsSvc, featureSvc, ledger, notificationSvc)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.PrincipalIDKey, "admin-1")
		c.Next()
	})
	router.GET("/admin/ai/settings", handler.GetSettings)
	router.PUT("/admin/ai/settings", handler.UpdateSettings)
	router.GET("/admin/ai/features", handler.ListFeatures)
	router.POST("/admin/ai/features", handler.CreateFeature)
	return router
}

func doJSON(router *gin.Engine, method, path string, payload any) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		_ = json.NewEncoder(&body).Encode(payload)
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetSettingsReturnsDefaults(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodGet, "/admin/ai/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		common.APIResponse
		Data settings.GlobalAISettings `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Data.IsEnabled)
	assert.NotEmpty(t, resp.Data.DefaultModel)
}

func TestUpdateSettingsRecordsOperator(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodPut, "/admin/ai/settings", map[string]any{
		"monthlyBudgetLimitEur": 200.0,
		"fallbackProvider":      "openai",
		"fallbackModel":         "gpt-4o-mini",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data settings.GlobalAISettings `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 200.0, resp.Data.MonthlyBudgetLimitEUR, 1e-9)
	assert.Equal(t, "gpt-4o-mini", resp.Data.FallbackModel)
	assert.Equal(t, "admin-1", resp.Data.UpdatedBy)
}

func TestCreateFeatureDuplicateReturns409(t *testing.T) {
	router := newTestRouter(t)

	payload := map[string]any{"featureKey": "chat", "displayName": "Chat"}
	require.Equal(t, http.StatusCreated, doJSON(router, http.MethodPost, "/admin/ai/features", payload).Code)

	rec := doJSON(router, http.MethodPost, "/admin/ai/features", payload)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body common.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.Error)
}

func TestListFeaturesReturnsTotal(t *testing.T) {
	router := newTestRouter(t)

	payload := map[string]any{"featureKey": "ocr", "displayName": "Beleg-Erkennung"}
	require.Equal(t, http.StatusCreated, doJSON(router, http.MethodPost, "/admin/ai/features", payload).Code)

	rec := doJSON(router, http.MethodGet, "/admin/ai/features", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		common.APIResponse
		Data []feature.FeatureConfig `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "ocr", resp.Data[0].FeatureKey)
}
