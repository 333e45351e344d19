package settings

import "time"

// GlobalAISettings 全局 AI 设置（单例，管理员可改，每次请求读取）
type GlobalAISettings struct {
	ID                    string    `json:"id" gorm:"primaryKey;type:uuid"`
	IsEnabled             bool      `json:"isEnabled" gorm:"not null;default:true"`
	DefaultModel          string    `json:"defaultModel" gorm:"size:100;not null"`
	EnablePromptCaching   bool      `json:"enablePromptCaching" gorm:"not null;default:true"`
	FallbackProvider      string    `json:"fallbackProvider" gorm:"size:50"`  // 空表示未配置回退
	FallbackModel         string    `json:"fallbackModel" gorm:"size:100"`    // 回退提供商上使用的模型，空时用提供商默认
	MonthlyBudgetLimitEUR float64   `json:"monthlyBudgetLimitEur" gorm:"type:decimal(10,2);not null;default:100"`
	AutoDisableOnBudget   bool      `json:"autoDisableOnBudget" gorm:"not null;default:false"`
	UpdatedBy             string    `json:"updatedBy" gorm:"type:uuid"`
	CreatedAt             time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt             time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (GlobalAISettings) TableName() string {
	return "global_ai_settings"
}

// HasFallback 是否配置了回退提供商
func (s *GlobalAISettings) HasFallback() bool {
	return s.FallbackProvider != ""
}

// UpdateSettingsRequest 更新设置请求（字段为空时不变）
type UpdateSettingsRequest struct {
	IsEnabled             *bool    `json:"isEnabled"`
	DefaultModel          *string  `json:"defaultModel"`
	EnablePromptCaching   *bool    `json:"enablePromptCaching"`
	FallbackProvider      *string  `json:"fallbackProvider"`
	FallbackModel         *string  `json:"fallbackModel"`
	MonthlyBudgetLimitEUR *float64 `json:"monthlyBudgetLimitEur" binding:"omitempty,gte=0"`
	AutoDisableOnBudget   *bool    `json:"autoDisableOnBudget"`
}
