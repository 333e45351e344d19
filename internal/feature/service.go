package feature

import (
	"context"
	"errors"
	"fmt"

	"backend/internal/subscription"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrFeatureNotFound = errors.New("功能配置不存在")
	ErrPromptNotFound  = errors.New("系统提示词不存在")
	ErrDuplicateKey    = errors.New("feature_key 已存在")
)

// Service 功能配置服务
type Service struct {
	db *gorm.DB
}

// NewService 创建功能配置服务
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// GetByKey 按 feature_key 查询功能配置，未配置的功能返回 ErrFeatureNotFound
func (s *Service) GetByKey(ctx context.Context, featureKey string) (*FeatureConfig, error) {
	var cfg FeatureConfig
	err := s.db.WithContext(ctx).Where("feature_key = ?", featureKey).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFeatureNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// List 获取全部功能配置
func (s *Service) List(ctx context.Context) ([]FeatureConfig, error) {
	var configs []FeatureConfig
	err := s.db.WithContext(ctx).Order("feature_key").Find(&configs).Error
	return configs, err
}

// Create 创建功能配置
func (s *Service) Create(ctx context.Context, req *CreateFeatureConfigRequest) (*FeatureConfig, error) {
	if req.RequiresSubscription != "" && !subscription.IsValidTier(req.RequiresSubscription) {
		return nil, fmt.Errorf("无效的订阅等级: %s", req.RequiresSubscription)
	}

	cfg := FeatureConfig{
		ID:                     uuid.New().String(),
		FeatureKey:             req.FeatureKey,
		DisplayName:            req.DisplayName,
		PreferredModel:         req.PreferredModel,
		MaxTokens:              req.MaxTokens,
		SystemPromptKey:        req.SystemPromptKey,
		RequiresSubscription:   req.RequiresSubscription,
		RateLimitWindowSeconds: req.RateLimitWindowSeconds,
		RateLimitMaxRequests:   req.RateLimitMaxRequests,
		IsEnabled:              true,
	}
	if err := s.db.WithContext(ctx).Create(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &cfg, nil
}

// Update 部分更新功能配置
func (s *Service) Update(ctx context.Context, featureKey string, req *UpdateFeatureConfigRequest) (*FeatureConfig, error) {
	cfg, err := s.GetByKey(ctx, featureKey)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.DisplayName != nil {
		updates["display_name"] = *req.DisplayName
	}
	if req.PreferredModel != nil {
		updates["preferred_model"] = *req.PreferredModel
	}
	if req.MaxTokens != nil {
		updates["max_tokens"] = *req.MaxTokens
	}
	if req.SystemPromptKey != nil {
		updates["system_prompt_key"] = *req.SystemPromptKey
	}
	if req.RequiresSubscription != nil {
		if *req.RequiresSubscription != "" && !subscription.IsValidTier(*req.RequiresSubscription) {
			return nil, fmt.Errorf("无效的订阅等级: %s", *req.RequiresSubscription)
		}
		updates["requires_subscription"] = *req.RequiresSubscription
	}
	if req.RateLimitWindowSeconds != nil {
		updates["rate_limit_window_seconds"] = *req.RateLimitWindowSeconds
	}
	if req.RateLimitMaxRequests != nil {
		updates["rate_limit_max_requests"] = *req.RateLimitMaxRequests
	}
	if req.IsEnabled != nil {
		updates["is_enabled"] = *req.IsEnabled
	}

	if len(updates) == 0 {
		return cfg, nil
	}
	if err := s.db.WithContext(ctx).Model(cfg).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetByKey(ctx, featureKey)
}

// Delete 删除功能配置
func (s *Service) Delete(ctx context.Context, featureKey string) error {
	result := s.db.WithContext(ctx).Where("feature_key = ?", featureKey).Delete(&FeatureConfig{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrFeatureNotFound
	}
	return nil
}

// DisableAll 批量停用全部功能
// 由预算自动化 worker 调用，网关自身不会触发
func (s *Service) DisableAll(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&FeatureConfig{}).
		Where("is_enabled = ?", true).
		Update("is_enabled", false)
	return result.RowsAffected, result.Error
}

// GetPrompt 按 key 查询系统提示词
func (s *Service) GetPrompt(ctx context.Context, key string) (*SystemPrompt, error) {
	var prompt SystemPrompt
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&prompt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPromptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &prompt, nil
}

// ListPrompts 获取全部系统提示词
func (s *Service) ListPrompts(ctx context.Context) ([]SystemPrompt, error) {
	var prompts []SystemPrompt
	err := s.db.WithContext(ctx).Order("key").Find(&prompts).Error
	return prompts, err
}

// UpsertPrompt 创建或更新系统提示词
func (s *Service) UpsertPrompt(ctx context.Context, req *UpsertPromptRequest) (*SystemPrompt, error) {
	prompt := SystemPrompt{
		ID:      uuid.New().String(),
		Key:     req.Key,
		Content: req.Content,
		Remark:  req.Remark,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "remark", "updated_at"}),
	}).Create(&prompt).Error
	if err != nil {
		return nil, err
	}
	return s.GetPrompt(ctx, req.Key)
}

// DeletePrompt 删除系统提示词
func (s *Service) DeletePrompt(ctx context.Context, key string) error {
	result := s.db.WithContext(ctx).Where("key = ?", key).Delete(&SystemPrompt{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPromptNotFound
	}
	return nil
}

// SeedDefaults 预置产品的四个 AI 功能配置，已存在的键跳过
func (s *Service) SeedDefaults(ctx context.Context) error {
	defaults := []FeatureConfig{
		{
			FeatureKey:             KeyChat,
			DisplayName:            "Verwaltungs-Assistent",
			SystemPromptKey:        "chat_default",
			RateLimitWindowSeconds: 60,
			RateLimitMaxRequests:   20,
		},
		{
			FeatureKey:             KeyOCR,
			DisplayName:            "Beleg-Erkennung",
			SystemPromptKey:        "ocr_default",
			MaxTokens:              2048,
			RequiresSubscription:   subscription.PlanTierBasic,
			RateLimitWindowSeconds: 60,
			RateLimitMaxRequests:   10,
		},
		{
			FeatureKey:             KeyCategorize,
			DisplayName:            "Buchungs-Kategorisierung",
			SystemPromptKey:        "categorize_default",
			MaxTokens:              512,
			RateLimitWindowSeconds: 60,
			RateLimitMaxRequests:   30,
		},
		{
			FeatureKey:             KeyWorkflowAssist,
			DisplayName:            "Workflow-Assistent",
			SystemPromptKey:        "workflow_default",
			RequiresSubscription:   subscription.PlanTierPro,
			RateLimitWindowSeconds: 60,
			RateLimitMaxRequests:   10,
		},
	}

	for i := range defaults {
		defaults[i].ID = uuid.New().String()
		defaults[i].IsEnabled = true
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "feature_key"}},
			DoNothing: true,
		}).Create(&defaults[i]).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// AutoMigrate 自动迁移表结构
func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&FeatureConfig{}, &SystemPrompt{})
}
