package settings

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func initTestService(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:settings_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	svc := NewService(db)
	require.NoError(t, svc.AutoMigrate())
	return svc
}

func TestGetCreatesDefaults(t *testing.T) {
	svc := initTestService(t)

	s, err := svc.Get(context.Background())
	require.NoError(t, err)

	assert.True(t, s.IsEnabled)
	assert.Equal(t, defaultModel, s.DefaultModel)
	assert.True(t, s.EnablePromptCaching)
	assert.False(t, s.HasFallback())
	assert.InDelta(t, 100.0, s.MonthlyBudgetLimitEUR, 1e-9)

	// 再次读取返回同一行
	again, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s.ID, again.ID)
}

func TestUpdatePartial(t *testing.T) {
	svc := initTestService(t)
	ctx := context.Background()

	disabled := false
	limit := 250.0
	fallback := "openai"
	fallbackModel := "gpt-4o-mini"
	s, err := svc.Update(ctx, "admin-1", &UpdateSettingsRequest{
		IsEnabled:             &disabled,
		MonthlyBudgetLimitEUR: &limit,
		FallbackProvider:      &fallback,
		FallbackModel:         &fallbackModel,
	})
	require.NoError(t, err)

	assert.False(t, s.IsEnabled)
	assert.InDelta(t, 250.0, s.MonthlyBudgetLimitEUR, 1e-9)
	assert.True(t, s.HasFallback())
	assert.Equal(t, "gpt-4o-mini", s.FallbackModel)
	assert.Equal(t, "admin-1", s.UpdatedBy)
	// 未传字段保持原值
	assert.Equal(t, defaultModel, s.DefaultModel)
	assert.True(t, s.EnablePromptCaching)
}

func TestUpdateClearFallback(t *testing.T) {
	svc := initTestService(t)
	ctx := context.Background()

	fallback := "openai"
	_, err := svc.Update(ctx, "admin-1", &UpdateSettingsRequest{FallbackProvider: &fallback})
	require.NoError(t, err)

	empty := ""
	s, err := svc.Update(ctx, "admin-1", &UpdateSettingsRequest{FallbackProvider: &empty})
	require.NoError(t, err)
	assert.False(t, s.HasFallback())
}
