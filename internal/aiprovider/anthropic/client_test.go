package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend/pkg/aiinterface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, status int, body string, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.NotEmpty(t, r.Header.Get("x-api-key"))

		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestCompleteNormalizesCacheUsage(t *testing.T) {
	// input_tokens 不含缓存命中，客户端要归一成完整输入
	respBody := `{
		"id": "msg_1",
		"model": "claude-haiku-3-5-20241022",
		"stop_reason": "end_turn",
		"content": [{"type": "text", "text": "Hallo!"}],
		"usage": {
			"input_tokens": 200,
			"output_tokens": 50,
			"cache_read_input_tokens": 800,
			"cache_creation_input_tokens": 100
		}
	}`
	srv := newTestServer(t, http.StatusOK, respBody, nil)
	defer srv.Close()

	client, err := NewClient("test-key", srv.URL, 5*time.Second)
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), &aiinterface.CompletionRequest{
		Model:     "claude-haiku-3-5-20241022",
		Messages:  []aiinterface.Message{{Role: aiinterface.RoleUser, Content: "Hallo"}},
		MaxTokens: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, "Hallo!", resp.Content)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, 1000, resp.Usage.InputTokens)
	assert.Equal(t, 50, resp.Usage.OutputTokens)
	assert.Equal(t, 800, resp.Usage.CacheReadTokens)
	assert.Equal(t, 100, resp.Usage.CacheWriteTokens)
}

func TestCompleteSendsCacheControl(t *testing.T) {
	respBody := `{"id":"msg_1","model":"m","content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":1,"output_tokens":1}}`
	var captured map[string]any
	srv := newTestServer(t, http.StatusOK, respBody, &captured)
	defer srv.Close()

	client, err := NewClient("test-key", srv.URL, 5*time.Second)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), &aiinterface.CompletionRequest{
		Model: "claude-haiku-3-5-20241022",
		System: []aiinterface.SystemBlock{
			{Text: "Stabiler Prompt", CacheControl: true},
			{Text: "Volatiler Teil"},
		},
		Messages:  []aiinterface.Message{{Role: aiinterface.RoleUser, Content: "Hallo"}},
		MaxTokens: 100,
	})
	require.NoError(t, err)

	system, ok := captured["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 2)

	first := system[0].(map[string]any)
	cc, ok := first["cache_control"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ephemeral", cc["type"])

	second := system[1].(map[string]any)
	_, hasCC := second["cache_control"]
	assert.False(t, hasCC)
}

func TestCompleteErrorMapping(t *testing.T) {
	cases := []struct {
		status    int
		wantType  string
		retryable bool
	}{
		{http.StatusTooManyRequests, aiinterface.ErrTypeRateLimit, true},
		{http.StatusBadRequest, aiinterface.ErrTypeBadRequest, false},
		{http.StatusUnauthorized, aiinterface.ErrTypeAuth, false},
		{http.StatusInternalServerError, aiinterface.ErrTypeServer, true},
		{529, aiinterface.ErrTypeOverloaded, true},
	}

	for _, tc := range cases {
		srv := newTestServer(t, tc.status, `{"error":{"type":"x","message":"kaputt"}}`, nil)

		client, err := NewClient("test-key", srv.URL, 5*time.Second)
		require.NoError(t, err)

		_, err = client.Complete(context.Background(), &aiinterface.CompletionRequest{
			Model:     "m",
			Messages:  []aiinterface.Message{{Role: aiinterface.RoleUser, Content: "x"}},
			MaxTokens: 10,
		})
		require.Error(t, err)

		var clientErr *aiinterface.ClientError
		require.ErrorAs(t, err, &clientErr)
		assert.Equal(t, tc.wantType, clientErr.Type, "status %d", tc.status)
		assert.Equal(t, tc.retryable, clientErr.IsRetryable(), "status %d", tc.status)
		srv.Close()
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("", "", 0)
	require.Error(t, err)

	var clientErr *aiinterface.ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, aiinterface.ErrTypeAuth, clientErr.Type)
}
