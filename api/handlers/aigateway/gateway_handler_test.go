package aigateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"backend/api/handlers/common"
	"backend/internal/aicore"
	"backend/internal/feature"
	"backend/internal/logger"
	"backend/internal/middleware"
	"backend/internal/settings"
	"backend/internal/subscription"
	"backend/pkg/aiinterface"

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

// memoryLatch 进程内越线闩，测试用
type memoryLatch struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (l *memoryLatch) Acquire(_ context.Context, month string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	if l.seen[month] {
		return false, nil
	}
	l.seen[month] = true
	return true, nil
}

// stubInvoker 固定返回的调用器
type stubInvoker struct {
	result *aicore.InvocationResult
	err    error
}

func (s *stubInvoker) Invoke(_ context.Context, _ *aicore.EffectivePlan, _ []aiinterface.Message, _ *aicore.GatewayRequest, _ *settings.GlobalAISettings) (*aicore.InvocationResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	settings *settings.Service
	features *feature.Service
}

func newTestEnv(t *testing.T, invoker *stubInvoker) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:aigateway_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	settingsSvc := settings.NewService(db)
	featureSvc := feature.NewService(db)
	subscriptionSvc := subscription.NewService(db)
	ledger := aicore.NewLedger(db)
	conversations := aicore.NewConversationStore(db, 10, 2000)

	require.NoError(t, settingsSvc.AutoMigrate())
	require.NoError(t, featureSvc.AutoMigrate())
	require.NoError(t, subscriptionSvc.AutoMigrate())
	require.NoError(t, ledger.AutoMigrate())
	require.NoError(t, conversations.AutoMigrate())

	guard := aicore.NewBudgetGuard(ledger, &memoryLatch{}, nil)
	limiter := aicore.NewRateLimiter(aicore.NewMemoryCounterStore())
	resolver := aicore.NewResolver(featureSvc, subscriptionSvc, aicore.ResolverDefaults{
		MaxTokens:              1024,
		RateLimitWindowSeconds: 60,
		RateLimitMaxRequests:   2,
	})
	accountant := aicore.NewAccountant(aicore.NewPriceTable(), 0.92)

	service := aicore.NewService(settingsSvc, guard, limiter, resolver, conversations, invoker, accountant, ledger)
	handler := NewHandler(service, conversations)

	router := gin.New()
	// 测试用认证替身，直接注入调用主体
	router.Use(func(c *gin.Context) {
		c.Set(middleware.PrincipalIDKey, "user-1")
		c.Next()
	})
	router.POST("/api/ai/request", handler.ProcessRequest)
	router.GET("/api/ai/conversations/:id", handler.GetConversation)

	return &testEnv{router: router, db: db, settings: settingsSvc, features: featureSvc}
}

func successInvoker() *stubInvoker {
	return &stubInvoker{result: &aicore.InvocationResult{
		Content:      "Gerne helfe ich weiter.",
		Model:        "claude-haiku-3-5-20241022",
		ProviderUsed: "anthropic",
		Stage:        aicore.StagePrimary,
		Usage:        aiinterface.TokenUsage{InputTokens: 1000, OutputTokens: 200},
	}}
}

func doRequest(env *testEnv, body map[string]any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/ai/request", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestProcessRequestSuccess(t *testing.T) {
	env := newTestEnv(t, successInvoker())

	rec := doRequest(env, map[string]any{"action": "chat", "prompt": "Hallo"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp aicore.GatewayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Gerne helfe ich weiter.", resp.Content)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Greater(t, resp.Usage.CostEUR, 0.0)
	assert.Equal(t, 1, resp.RateLimitRemaining)
}

func TestProcessRequestDisabledReturns403(t *testing.T) {
	env := newTestEnv(t, successInvoker())

	disabled := false
	_, err := env.settings.Update(context.Background(), "admin-1", &settings.UpdateSettingsRequest{
		IsEnabled: &disabled,
	})
	require.NoError(t, err)

	rec := doRequest(env, map[string]any{"action": "chat", "prompt": "Hallo"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "AI-Features sind deaktiviert", body["error"])
	assert.Equal(t, string(aicore.KindDisabled), body["kind"])
}

func TestProcessRequestRateLimitedReturns429(t *testing.T) {
	env := newTestEnv(t, successInvoker())

	payload := map[string]any{"action": "chat", "prompt": "Hallo"}
	require.Equal(t, http.StatusOK, doRequest(env, payload).Code)
	require.Equal(t, http.StatusOK, doRequest(env, payload).Code)

	rec := doRequest(env, payload)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(aicore.KindRateLimited), body["kind"])
	assert.Greater(t, body["retryAfter"].(float64), 0.0)
}

func TestProcessRequestSubscriptionGateReturns403(t *testing.T) {
	env := newTestEnv(t, successInvoker())

	_, err := env.features.Create(context.Background(), &feature.CreateFeatureConfigRequest{
		FeatureKey:           "workflow_assist",
		DisplayName:          "Workflow",
		RequiresSubscription: subscription.PlanTierPro,
	})
	require.NoError(t, err)

	rec := doRequest(env, map[string]any{"action": "workflow_assist", "prompt": "Plan erstellen"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(aicore.KindSubscriptionRequired), body["kind"])
	assert.Equal(t, string(subscription.PlanTierPro), body["requiredSubscription"])
}

func TestProcessRequestProviderErrorReturns502(t *testing.T) {
	env := newTestEnv(t, &stubInvoker{
		err: aicore.ErrProvider(aicore.StageFallback, fmt.Errorf("verbindung fehlgeschlagen")),
	})

	rec := doRequest(env, map[string]any{"action": "chat", "prompt": "Hallo"})
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body common.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, string(aicore.KindProviderError), body.Kind)
	assert.Equal(t, aicore.StageFallback, body.Stage)
	assert.NotEmpty(t, body.Error)
}

func TestProcessRequestMissingPromptReturns400(t *testing.T) {
	env := newTestEnv(t, successInvoker())

	rec := doRequest(env, map[string]any{"action": "chat"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetConversation(t *testing.T) {
	env := newTestEnv(t, successInvoker())

	rec := doRequest(env, map[string]any{
		"action":         "chat",
		"prompt":         "Hallo",
		"conversationId": "conv-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/ai/conversations/conv-1", nil)
	getRec := httptest.NewRecorder()
	env.router.ServeHTTP(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code)

	var body struct {
		Success  bool                  `json:"success"`
		Messages []aiinterface.Message `json:"messages"`
		Total    int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Equal(t, 2, body.Total)
	assert.Equal(t, aiinterface.RoleUser, body.Messages[0].Role)
	assert.Equal(t, "Hallo", body.Messages[0].Content)
	assert.Equal(t, aiinterface.RoleAssistant, body.Messages[1].Role)
}
