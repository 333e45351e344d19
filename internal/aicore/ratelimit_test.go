package aicore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryCounterStore())
	cfg := RateLimitConfig{WindowSeconds: 60, MaxRequests: 5}
	now := time.Unix(1_700_000_010, 0)

	for i := 1; i <= 5; i++ {
		status, err := limiter.Check(context.Background(), "user-1", "chat", cfg, now)
		require.NoError(t, err)
		assert.True(t, status.Allowed, "第 %d 次请求应放行", i)
		assert.Equal(t, 5-i, status.Remaining)
	}

	// 第 6 次拒绝，retry_after 在 (0, 60] 内
	status, err := limiter.Check(context.Background(), "user-1", "chat", cfg, now)
	require.NoError(t, err)
	assert.False(t, status.Allowed)
	assert.Zero(t, status.Remaining)
	assert.Greater(t, status.RetryAfterSeconds, 0)
	assert.LessOrEqual(t, status.RetryAfterSeconds, 60)
}

func TestRateLimiterWindowRollover(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryCounterStore())
	cfg := RateLimitConfig{WindowSeconds: 60, MaxRequests: 2}

	windowStart := time.Unix(1_700_000_040, 0).Truncate(time.Minute)
	for i := 0; i < 3; i++ {
		_, err := limiter.Check(context.Background(), "user-1", "chat", cfg, windowStart.Add(time.Second))
		require.NoError(t, err)
	}

	// 窗口刚过去，计数从 1 重新开始
	status, err := limiter.Check(context.Background(), "user-1", "chat", cfg, windowStart.Add(61*time.Second))
	require.NoError(t, err)
	assert.True(t, status.Allowed)
	assert.Equal(t, 1, status.Remaining)
}

func TestRateLimiterIsolatesPrincipalAndFeature(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryCounterStore())
	cfg := RateLimitConfig{WindowSeconds: 60, MaxRequests: 1}
	now := time.Unix(1_700_000_010, 0)

	status, err := limiter.Check(context.Background(), "user-1", "chat", cfg, now)
	require.NoError(t, err)
	assert.True(t, status.Allowed)

	// 同一用户同一功能第二次被拒
	status, err = limiter.Check(context.Background(), "user-1", "chat", cfg, now)
	require.NoError(t, err)
	assert.False(t, status.Allowed)

	// 其他用户、其他功能不受影响
	status, err = limiter.Check(context.Background(), "user-2", "chat", cfg, now)
	require.NoError(t, err)
	assert.True(t, status.Allowed)

	status, err = limiter.Check(context.Background(), "user-1", "ocr", cfg, now)
	require.NoError(t, err)
	assert.True(t, status.Allowed)
}

func TestRateLimiterRetryAfterShrinksTowardWindowEnd(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryCounterStore())
	cfg := RateLimitConfig{WindowSeconds: 60, MaxRequests: 1}
	windowStart := time.Unix(1_700_000_040, 0).Truncate(time.Minute)

	_, err := limiter.Check(context.Background(), "user-1", "chat", cfg, windowStart)
	require.NoError(t, err)

	status, err := limiter.Check(context.Background(), "user-1", "chat", cfg, windowStart.Add(55*time.Second))
	require.NoError(t, err)
	assert.False(t, status.Allowed)
	assert.Equal(t, 5, status.RetryAfterSeconds)
}
