package settings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 默认模型，首次读取时落库，之后由管理员维护
const defaultModel = "claude-haiku-3-5-20241022"

// Service 全局 AI 设置服务
type Service struct {
	db *gorm.DB
}

// NewService 创建设置服务
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Get 读取全局设置，不存在时创建默认行
func (s *Service) Get(ctx context.Context) (*GlobalAISettings, error) {
	var settings GlobalAISettings
	err := s.db.WithContext(ctx).First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	settings = GlobalAISettings{
		ID:                    uuid.New().String(),
		IsEnabled:             true,
		DefaultModel:          defaultModel,
		EnablePromptCaching:   true,
		MonthlyBudgetLimitEUR: 100,
	}
	if err := s.db.WithContext(ctx).Create(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

// Update 部分更新全局设置
func (s *Service) Update(ctx context.Context, operatorID string, req *UpdateSettingsRequest) (*GlobalAISettings, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"updated_by": operatorID}
	if req.IsEnabled != nil {
		updates["is_enabled"] = *req.IsEnabled
	}
	if req.DefaultModel != nil && *req.DefaultModel != "" {
		updates["default_model"] = *req.DefaultModel
	}
	if req.EnablePromptCaching != nil {
		updates["enable_prompt_caching"] = *req.EnablePromptCaching
	}
	if req.FallbackProvider != nil {
		updates["fallback_provider"] = *req.FallbackProvider
	}
	if req.FallbackModel != nil {
		updates["fallback_model"] = *req.FallbackModel
	}
	if req.MonthlyBudgetLimitEUR != nil {
		updates["monthly_budget_limit_eur"] = *req.MonthlyBudgetLimitEUR
	}
	if req.AutoDisableOnBudget != nil {
		updates["auto_disable_on_budget"] = *req.AutoDisableOnBudget
	}

	if err := s.db.WithContext(ctx).Model(settings).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx)
}

// AutoMigrate 自动迁移表结构
func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&GlobalAISettings{})
}
