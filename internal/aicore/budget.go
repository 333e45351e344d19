package aicore

import (
	"context"
	"fmt"
	"time"

	"backend/internal/logger"
	"backend/internal/settings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BudgetStatus 预算检查结果
type BudgetStatus struct {
	Allowed         bool
	Used            float64
	Limit           float64
	Remaining       float64
	CrossedThisCall bool
}

// spendReader 当月已用成本读取口径
type spendReader interface {
	MonthToDateCost(ctx context.Context, now time.Time) (float64, error)
}

// crossingLatch 越线去重闩：当月首次越线返回 true，之后返回 false
type crossingLatch interface {
	Acquire(ctx context.Context, month string) (bool, error)
}

// CrossingNotifier 预算越线事件接收方（通知 + 可选自动停用由它负责）
type CrossingNotifier interface {
	NotifyBudgetCrossed(ctx context.Context, used, limit float64) error
}

// BudgetGuard 月度预算守卫
// 只判断和发事件，不发邮件、不改功能配置
type BudgetGuard struct {
	spend    spendReader
	latch    crossingLatch
	notifier CrossingNotifier
}

// NewBudgetGuard 创建预算守卫，notifier 可为 nil（仅判断不通知）
func NewBudgetGuard(spend spendReader, latch crossingLatch, notifier CrossingNotifier) *BudgetGuard {
	return &BudgetGuard{spend: spend, latch: latch, notifier: notifier}
}

// Check 预算检查
// 全局停用时直接短路，省一次汇总查询
func (g *BudgetGuard) Check(ctx context.Context, s *settings.GlobalAISettings, now time.Time) (*BudgetStatus, error) {
	if !s.IsEnabled {
		return &BudgetStatus{Allowed: false, Limit: s.MonthlyBudgetLimitEUR}, nil
	}

	used, err := g.spend.MonthToDateCost(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("查询当月用量失败: %w", err)
	}

	limit := s.MonthlyBudgetLimitEUR
	status := &BudgetStatus{
		Used:      used,
		Limit:     limit,
		Remaining: limit - used,
		Allowed:   used < limit,
	}
	if status.Remaining < 0 {
		status.Remaining = 0
	}

	if !status.Allowed {
		status.CrossedThisCall = g.markCrossing(ctx, now)
		if status.CrossedThisCall && g.notifier != nil {
			if err := g.notifier.NotifyBudgetCrossed(ctx, used, limit); err != nil {
				logger.Error("预算越线事件投递失败", zap.Error(err))
			}
		}
	}
	return status, nil
}

// markCrossing 尝试占用当月越线闩，失败按未越线处理（宁可漏报不重复报）
func (g *BudgetGuard) markCrossing(ctx context.Context, now time.Time) bool {
	if g.latch == nil {
		return false
	}
	acquired, err := g.latch.Acquire(ctx, now.UTC().Format("2006-01"))
	if err != nil {
		logger.Error("预算越线闩操作失败", zap.Error(err))
		return false
	}
	return acquired
}

// redisCrossingLatch 基于 Redis SetNX 的越线闩，多实例下保证单次触发
type redisCrossingLatch struct {
	client redis.UniversalClient
}

// NewRedisCrossingLatch 创建 Redis 越线闩
func NewRedisCrossingLatch(client redis.UniversalClient) crossingLatch {
	return &redisCrossingLatch{client: client}
}

func (l *redisCrossingLatch) Acquire(ctx context.Context, month string) (bool, error) {
	key := "ai:budget:alert:" + month
	// TTL 覆盖整月即可，40 天留足余量
	return l.client.SetNX(ctx, key, 1, 40*24*time.Hour).Result()
}
