package feature

import (
	"time"

	"backend/internal/subscription"
)

// 内置功能键，对应产品的四个 AI 能力
const (
	KeyChat           = "chat"
	KeyOCR            = "ocr"
	KeyCategorize     = "categorize"
	KeyWorkflowAssist = "workflow_assist"
)

// FeatureConfig 功能级 AI 配置，按 feature_key 唯一
// 网关只读，管理员维护
type FeatureConfig struct {
	ID              string `json:"id" gorm:"primaryKey;type:uuid"`
	FeatureKey      string `json:"featureKey" gorm:"size:100;not null;uniqueIndex"`
	DisplayName     string `json:"displayName" gorm:"size:200"`
	PreferredModel  string `json:"preferredModel" gorm:"size:100"`
	MaxTokens       int    `json:"maxTokens"`
	SystemPromptKey string `json:"systemPromptKey" gorm:"size:100"`

	// 订阅门槛，空表示所有用户可用
	RequiresSubscription subscription.PlanTier `json:"requiresSubscription" gorm:"size:20"`

	// 限流配置，0 表示使用部署级默认值
	RateLimitWindowSeconds int `json:"rateLimitWindowSeconds"`
	RateLimitMaxRequests   int `json:"rateLimitMaxRequests"`

	IsEnabled bool      `json:"isEnabled" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (FeatureConfig) TableName() string {
	return "ai_feature_configs"
}

// HasRateLimit 是否配置了功能级限流
func (f *FeatureConfig) HasRateLimit() bool {
	return f.RateLimitWindowSeconds > 0 && f.RateLimitMaxRequests > 0
}

// SystemPrompt 系统提示词，按 key 供功能配置引用
type SystemPrompt struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid"`
	Key       string    `json:"key" gorm:"size:100;not null;uniqueIndex"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	Remark    string    `json:"remark" gorm:"size:500"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (SystemPrompt) TableName() string {
	return "ai_system_prompts"
}

// CreateFeatureConfigRequest 创建功能配置请求
type CreateFeatureConfigRequest struct {
	FeatureKey             string                `json:"featureKey" binding:"required"`
	DisplayName            string                `json:"displayName"`
	PreferredModel         string                `json:"preferredModel"`
	MaxTokens              int                   `json:"maxTokens" binding:"gte=0"`
	SystemPromptKey        string                `json:"systemPromptKey"`
	RequiresSubscription   subscription.PlanTier `json:"requiresSubscription"`
	RateLimitWindowSeconds int                   `json:"rateLimitWindowSeconds" binding:"gte=0"`
	RateLimitMaxRequests   int                   `json:"rateLimitMaxRequests" binding:"gte=0"`
}

// UpdateFeatureConfigRequest 更新功能配置请求（字段为空时不变）
type UpdateFeatureConfigRequest struct {
	DisplayName            *string                `json:"displayName"`
	PreferredModel         *string                `json:"preferredModel"`
	MaxTokens              *int                   `json:"maxTokens"`
	SystemPromptKey        *string                `json:"systemPromptKey"`
	RequiresSubscription   *subscription.PlanTier `json:"requiresSubscription"`
	RateLimitWindowSeconds *int                   `json:"rateLimitWindowSeconds"`
	RateLimitMaxRequests   *int                   `json:"rateLimitMaxRequests"`
	IsEnabled              *bool                  `json:"isEnabled"`
}

// UpsertPromptRequest 创建/更新系统提示词请求
type UpsertPromptRequest struct {
	Key     string `json:"key" binding:"required"`
	Content string `json:"content" binding:"required"`
	Remark  string `json:"remark"`
}
