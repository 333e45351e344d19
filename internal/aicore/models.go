// Package aicore 实现 AI 请求网关：预算控制、限流、配置解析、
// 提供商调用与用量账本
package aicore

import (
	"fmt"

	"backend/internal/subscription"
	"backend/pkg/aiinterface"
)

// 请求动作，决定内置提示词兜底
const (
	ActionChat       = "chat"
	ActionOCR        = "ocr"
	ActionCategorize = "categorize"
	ActionWorkflow   = "workflow_assist"
)

// GatewayRequest 网关入站请求
type GatewayRequest struct {
	Action         string `json:"action" binding:"required"`
	Prompt         string `json:"prompt" binding:"required"`
	SystemPrompt   string `json:"systemPrompt"`
	Context        string `json:"context"`
	Image          string `json:"image"` // base64，可选
	Model          string `json:"model"`
	MaxTokens      int    `json:"maxTokens" binding:"gte=0"`
	FeatureKey     string `json:"featureKey"`
	ConversationID string `json:"conversationId"`

	// 由认证中间件填充，不接受客户端传入
	PrincipalID string `json:"-"`
}

// UsageSummary 响应中的用量摘要
type UsageSummary struct {
	InputTokens         int     `json:"inputTokens"`
	OutputTokens        int     `json:"outputTokens"`
	CacheReadTokens     int     `json:"cacheReadTokens"`
	CacheCreationTokens int     `json:"cacheCreationTokens"`
	CostEUR             float64 `json:"costEur"`
	SavingsEUR          float64 `json:"savingsEur"`
	SavingsPercent      float64 `json:"savingsPercent"`
}

// GatewayResponse 网关成功响应
type GatewayResponse struct {
	Success            bool         `json:"success"`
	Content            string       `json:"content"`
	Usage              UsageSummary `json:"usage"`
	Model              string       `json:"model"`
	Provider           string       `json:"provider"`
	ResponseTimeMs     int64        `json:"responseTimeMs"`
	BudgetRemaining    float64      `json:"budgetRemaining"`
	RateLimitRemaining int          `json:"rateLimitRemaining"`
}

// ErrorKind 网关错误分类
type ErrorKind string

const (
	KindDisabled             ErrorKind = "disabled"
	KindBudgetExceeded       ErrorKind = "budget_exceeded"
	KindRateLimited          ErrorKind = "rate_limited"
	KindSubscriptionRequired ErrorKind = "subscription_required"
	KindProviderError        ErrorKind = "provider_error"
	KindUnknownModelPricing  ErrorKind = "unknown_model_pricing"
	KindInvalidRequest       ErrorKind = "invalid_request"
)

// 提供商调用阶段
const (
	StagePrimary  = "primary"
	StageFallback = "fallback"
)

// GatewayError 网关错误，携带调用方决策所需的结构化字段
type GatewayError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`

	// budget_exceeded
	BudgetUsed  float64 `json:"budgetUsed,omitempty"`
	BudgetLimit float64 `json:"budgetLimit,omitempty"`

	// rate_limited
	RetryAfterSeconds int `json:"retryAfterSeconds,omitempty"`

	// subscription_required
	RequiredTier subscription.PlanTier `json:"requiredTier,omitempty"`

	// provider_error：primary / fallback
	Stage string `json:"stage,omitempty"`

	Err error `json:"-"`
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// 面向用户的拒绝文案（产品界面为德语）
const (
	msgDisabled             = "AI-Features sind deaktiviert"
	msgBudgetExceeded       = "Das monatliche AI-Budget ist aufgebraucht"
	msgRateLimited          = "Zu viele Anfragen, bitte versuchen Sie es später erneut"
	msgSubscriptionRequired = "Diese Funktion erfordert ein höheres Abonnement"
	msgFeatureDisabled      = "Diese AI-Funktion ist derzeit deaktiviert"
)

// ErrDisabled AI 功能全局停用
func ErrDisabled() *GatewayError {
	return &GatewayError{Kind: KindDisabled, Message: msgDisabled}
}

// ErrFeatureDisabled 单个功能停用
func ErrFeatureDisabled() *GatewayError {
	return &GatewayError{Kind: KindDisabled, Message: msgFeatureDisabled}
}

// ErrBudgetExceeded 月度预算耗尽
func ErrBudgetExceeded(used, limit float64) *GatewayError {
	return &GatewayError{
		Kind:        KindBudgetExceeded,
		Message:     msgBudgetExceeded,
		BudgetUsed:  used,
		BudgetLimit: limit,
	}
}

// ErrRateLimited 触发限流
func ErrRateLimited(retryAfterSeconds int) *GatewayError {
	return &GatewayError{
		Kind:              KindRateLimited,
		Message:           msgRateLimited,
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// ErrSubscriptionRequired 订阅等级不足
func ErrSubscriptionRequired(required subscription.PlanTier) *GatewayError {
	return &GatewayError{
		Kind:         KindSubscriptionRequired,
		Message:      msgSubscriptionRequired,
		RequiredTier: required,
	}
}

// ErrProvider 提供商调用失败，stage 标记最后失败的阶段
func ErrProvider(stage string, err error) *GatewayError {
	return &GatewayError{
		Kind:    KindProviderError,
		Message: "AI-Anbieter nicht erreichbar",
		Stage:   stage,
		Err:     err,
	}
}

// ErrUnknownModelPricing 价格表缺少模型，宁可失败也不估价
func ErrUnknownModelPricing(model string) *GatewayError {
	return &GatewayError{
		Kind:    KindUnknownModelPricing,
		Message: fmt.Sprintf("模型 %s 缺少价格配置", model),
	}
}

// ErrInvalidRequest 请求参数错误
func ErrInvalidRequest(message string) *GatewayError {
	return &GatewayError{Kind: KindInvalidRequest, Message: message}
}

// EffectivePlan 配置解析结果：一次调用的生效参数
type EffectivePlan struct {
	Model        string
	MaxTokens    int
	SystemPrompt string
	RateLimit    RateLimitConfig
}

// RateLimitConfig 限流参数
type RateLimitConfig struct {
	WindowSeconds int
	MaxRequests   int
}

// InvocationResult 提供商调用结果
type InvocationResult struct {
	Content      string
	Model        string
	ProviderUsed string
	Stage        string
	Usage        aiinterface.TokenUsage
}
