package aicore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageLedgerEntry 用量账本条目，只追加、不更新不删除
// 当月 cost_eur 合计即预算判断的权威口径
type UsageLedgerEntry struct {
	ID                  string    `json:"id" gorm:"primaryKey;type:uuid"`
	PrincipalID         string    `json:"principalId" gorm:"type:uuid;not null;index"`
	FeatureKey          string    `json:"featureKey" gorm:"size:100;not null;index"`
	Model               string    `json:"model" gorm:"size:100;not null"`
	Provider            string    `json:"provider" gorm:"size:50"`
	InputTokens         int       `json:"inputTokens"`
	OutputTokens        int       `json:"outputTokens"`
	CacheWriteTokens    int       `json:"cacheWriteTokens"`
	CacheReadTokens     int       `json:"cacheReadTokens"`
	CostEUR             float64   `json:"costEur" gorm:"type:decimal(12,8);not null"`
	CostWithoutCacheEUR float64   `json:"costWithoutCacheEur" gorm:"type:decimal(12,8);not null"`
	ResponseTimeMs      int64     `json:"responseTimeMs"`
	Success             bool      `json:"success" gorm:"not null"`
	ErrorKind           string    `json:"errorKind" gorm:"size:50"`
	ConversationID      string    `json:"conversationId" gorm:"size:100;index"`
	Timestamp           time.Time `json:"timestamp" gorm:"not null;index"`
}

// TableName 指定表名
func (UsageLedgerEntry) TableName() string {
	return "ai_usage_ledger"
}

// UsageStats 管理端用量统计
type UsageStats struct {
	TotalRequests   int64   `json:"totalRequests"`
	SuccessRequests int64   `json:"successRequests"`
	TotalCostEUR    float64 `json:"totalCostEur"`
	TotalSavingsEUR float64 `json:"totalSavingsEur"`
	InputTokens     int64   `json:"inputTokens"`
	OutputTokens    int64   `json:"outputTokens"`
	CacheReadTokens int64   `json:"cacheReadTokens"`
}

// FeatureUsageStats 按功能聚合的用量统计
type FeatureUsageStats struct {
	FeatureKey   string  `json:"featureKey"`
	Requests     int64   `json:"requests"`
	TotalCostEUR float64 `json:"totalCostEur"`
}

// Ledger 用量账本
type Ledger struct {
	db *gorm.DB
}

// NewLedger 创建用量账本
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Append 追加一条账本条目
func (l *Ledger) Append(ctx context.Context, entry *UsageLedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	return l.db.WithContext(ctx).Create(entry).Error
}

// MonthToDateCost 当月已发生成本合计（EUR）
func (l *Ledger) MonthToDateCost(ctx context.Context, now time.Time) (float64, error) {
	var total float64
	err := l.db.WithContext(ctx).Model(&UsageLedgerEntry{}).
		Where("timestamp >= ? AND timestamp < ?", startOfMonth(now), now).
		Select("COALESCE(SUM(cost_eur), 0)").
		Scan(&total).Error
	return total, err
}

// Stats 指定区间的总体统计
func (l *Ledger) Stats(ctx context.Context, from, to time.Time) (*UsageStats, error) {
	var stats UsageStats
	err := l.db.WithContext(ctx).Model(&UsageLedgerEntry{}).
		Where("timestamp >= ? AND timestamp < ?", from, to).
		Select(`COUNT(*) AS total_requests,
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS success_requests,
			COALESCE(SUM(cost_eur), 0) AS total_cost_eur,
			COALESCE(SUM(cost_without_cache_eur - cost_eur), 0) AS total_savings_eur,
			COALESCE(SUM(input_tokens), 0) AS input_tokens,
			COALESCE(SUM(output_tokens), 0) AS output_tokens,
			COALESCE(SUM(cache_read_tokens), 0) AS cache_read_tokens`).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// StatsByFeature 指定区间按功能聚合
func (l *Ledger) StatsByFeature(ctx context.Context, from, to time.Time) ([]FeatureUsageStats, error) {
	var stats []FeatureUsageStats
	err := l.db.WithContext(ctx).Model(&UsageLedgerEntry{}).
		Where("timestamp >= ? AND timestamp < ?", from, to).
		Select("feature_key, COUNT(*) AS requests, COALESCE(SUM(cost_eur), 0) AS total_cost_eur").
		Group("feature_key").
		Order("total_cost_eur DESC").
		Scan(&stats).Error
	return stats, err
}

// RecentEntries 最近条目，管理端排查用
func (l *Ledger) RecentEntries(ctx context.Context, limit int) ([]UsageLedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []UsageLedgerEntry
	err := l.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// AutoMigrate 自动迁移表结构
func (l *Ledger) AutoMigrate() error {
	return l.db.AutoMigrate(&UsageLedgerEntry{})
}

// startOfMonth 当月起点（UTC）
func startOfMonth(now time.Time) time.Time {
	t := now.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
