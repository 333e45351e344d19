package aicore

import (
	"context"
	"sync"
	"testing"
	"time"

	"backend/internal/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSpendReader 可编程的当月用量读取
type mockSpendReader struct {
	cost float64
	err  error
}

func (m *mockSpendReader) MonthToDateCost(_ context.Context, _ time.Time) (float64, error) {
	return m.cost, m.err
}

// memoryLatch 进程内越线闩
type memoryLatch struct {
	mu       sync.Mutex
	acquired map[string]bool
}

func newMemoryLatch() *memoryLatch {
	return &memoryLatch{acquired: make(map[string]bool)}
}

func (l *memoryLatch) Acquire(_ context.Context, month string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquired[month] {
		return false, nil
	}
	l.acquired[month] = true
	return true, nil
}

// mockNotifier 记录越线事件
type mockNotifier struct {
	calls int
	used  float64
	limit float64
}

func (m *mockNotifier) NotifyBudgetCrossed(_ context.Context, used, limit float64) error {
	m.calls++
	m.used = used
	m.limit = limit
	return nil
}

func enabledSettings(limit float64) *settings.GlobalAISettings {
	return &settings.GlobalAISettings{
		IsEnabled:             true,
		DefaultModel:          "claude-haiku-3-5-20241022",
		MonthlyBudgetLimitEUR: limit,
	}
}

func TestBudgetGuardDisabledShortCircuits(t *testing.T) {
	spend := &mockSpendReader{err: assert.AnError} // 停用时不应读用量
	guard := NewBudgetGuard(spend, newMemoryLatch(), nil)

	s := enabledSettings(100)
	s.IsEnabled = false

	status, err := guard.Check(context.Background(), s, time.Now())
	require.NoError(t, err)
	assert.False(t, status.Allowed)
	assert.Zero(t, status.Used)
}

func TestBudgetGuardUnderLimit(t *testing.T) {
	guard := NewBudgetGuard(&mockSpendReader{cost: 99.5}, newMemoryLatch(), nil)

	status, err := guard.Check(context.Background(), enabledSettings(100), time.Now())
	require.NoError(t, err)
	assert.True(t, status.Allowed)
	assert.InDelta(t, 99.5, status.Used, 1e-9)
	assert.InDelta(t, 0.5, status.Remaining, 1e-9)
	assert.False(t, status.CrossedThisCall)
}

func TestBudgetGuardCrossingFiresOnce(t *testing.T) {
	spend := &mockSpendReader{cost: 101.5}
	notifier := &mockNotifier{}
	guard := NewBudgetGuard(spend, newMemoryLatch(), notifier)

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	// 首次越线：标记 crossed 并发一次事件
	status, err := guard.Check(context.Background(), enabledSettings(100), now)
	require.NoError(t, err)
	assert.False(t, status.Allowed)
	assert.True(t, status.CrossedThisCall)
	assert.Equal(t, 1, notifier.calls)
	assert.InDelta(t, 101.5, notifier.used, 1e-9)

	// 同月后续请求照样拒绝，但不再触发事件
	for i := 0; i < 3; i++ {
		status, err = guard.Check(context.Background(), enabledSettings(100), now.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, status.Allowed)
		assert.False(t, status.CrossedThisCall)
	}
	assert.Equal(t, 1, notifier.calls)

	// 新的月份重新武装
	status, err = guard.Check(context.Background(), enabledSettings(100), now.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.True(t, status.CrossedThisCall)
	assert.Equal(t, 2, notifier.calls)
}

func TestBudgetGuardExactLimitDenies(t *testing.T) {
	guard := NewBudgetGuard(&mockSpendReader{cost: 100}, newMemoryLatch(), nil)

	status, err := guard.Check(context.Background(), enabledSettings(100), time.Now())
	require.NoError(t, err)
	assert.False(t, status.Allowed)
	assert.Zero(t, status.Remaining)
}
