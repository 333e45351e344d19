package subscription

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// PlanTier 套餐等级
type PlanTier string

const (
	PlanTierFree       PlanTier = "free"
	PlanTierBasic      PlanTier = "basic"
	PlanTierPro        PlanTier = "pro"
	PlanTierEnterprise PlanTier = "enterprise"
)

// 等级序号，用于门槛比较
var tierOrder = map[PlanTier]int{
	PlanTierFree:       0,
	PlanTierBasic:      1,
	PlanTierPro:        2,
	PlanTierEnterprise: 3,
}

// TierAtLeast 判断 have 是否达到 want 的等级
func TierAtLeast(have, want PlanTier) bool {
	return tierOrder[have] >= tierOrder[want]
}

// IsValidTier 校验等级取值
func IsValidTier(t PlanTier) bool {
	_, ok := tierOrder[t]
	return ok
}

// UserSubscription 用户订阅记录（订阅的创建/续费由计费系统维护，本服务只读）
type UserSubscription struct {
	ID        string     `json:"id" gorm:"primaryKey;type:uuid"`
	UserID    string     `json:"userId" gorm:"type:uuid;not null;index"`
	PlanTier  PlanTier   `json:"planTier" gorm:"size:20;not null"`
	Status    string     `json:"status" gorm:"size:20;not null;index"` // active, trialing, canceled, expired
	StartDate time.Time  `json:"startDate" gorm:"not null"`
	EndDate   *time.Time `json:"endDate"`
	CreatedAt time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (UserSubscription) TableName() string {
	return "user_subscriptions"
}

// TierLookup 订阅等级查询接口，网关经由它做订阅门槛判断
type TierLookup interface {
	CurrentTier(ctx context.Context, principalID string) (PlanTier, error)
}

// Service 订阅查询服务
type Service struct {
	db *gorm.DB
}

// NewService 创建订阅查询服务
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CurrentTier 查询用户当前生效的订阅等级，无有效订阅视为 free
func (s *Service) CurrentTier(ctx context.Context, principalID string) (PlanTier, error) {
	var sub UserSubscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", principalID, []string{"active", "trialing"}).
		Order("start_date DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PlanTierFree, nil
	}
	if err != nil {
		return "", err
	}

	// 已到期但状态未同步的记录按 free 处理
	if sub.EndDate != nil && sub.EndDate.Before(time.Now().UTC()) {
		return PlanTierFree, nil
	}
	return sub.PlanTier, nil
}

// AutoMigrate 自动迁移表结构
func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&UserSubscription{})
}
