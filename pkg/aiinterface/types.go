// Package aiinterface 定义 AI 提供商客户端的统一接口和数据类型
package aiinterface

import (
	"context"
	"fmt"
)

// Role 消息角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemBlock 系统提示词块
// CacheControl 为 true 时请求提供商缓存该块（仅部分提供商支持）
type SystemBlock struct {
	Text         string `json:"text"`
	CacheControl bool   `json:"cacheControl"`
}

// CompletionRequest 补全请求
type CompletionRequest struct {
	Model       string        `json:"model"`
	System      []SystemBlock `json:"system,omitempty"`
	Messages    []Message     `json:"messages"`
	MaxTokens   int           `json:"maxTokens"`
	Temperature float32       `json:"temperature,omitempty"`
}

// TokenUsage 标准化的 token 用量
// InputTokens 为完整输入 token 数，已包含缓存命中部分；
// 各适配器负责把提供商原始字段归一到该口径
type TokenUsage struct {
	InputTokens      int `json:"inputTokens"`
	OutputTokens     int `json:"outputTokens"`
	CacheReadTokens  int `json:"cacheReadTokens"`
	CacheWriteTokens int `json:"cacheWriteTokens"`
}

// CompletionResponse 补全响应
type CompletionResponse struct {
	Content    string     `json:"content"`
	Model      string     `json:"model"`
	Provider   string     `json:"provider"`
	StopReason string     `json:"stopReason,omitempty"`
	Usage      TokenUsage `json:"usage"`
}

// ProviderClient AI 提供商客户端接口
type ProviderClient interface {
	// Complete 执行一次补全调用
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	// Name 返回提供商标识（anthropic / openai）
	Name() string
}

// 错误类型
const (
	ErrTypeAuth       = "auth"        // 认证失败
	ErrTypeRateLimit  = "rate_limit"  // 提供商侧限流
	ErrTypeOverloaded = "overloaded"  // 提供商过载
	ErrTypeTimeout    = "timeout"     // 请求超时
	ErrTypeBadRequest = "bad_request" // 请求参数错误
	ErrTypeServer     = "server"      // 提供商服务端错误
	ErrTypeNetwork    = "network"     // 网络错误
)

// ClientError 提供商调用错误
type ClientError struct {
	Provider   string
	Type       string
	StatusCode int
	Message    string
	Err        error
}

func (e *ClientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Provider, e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Type, e.Message)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsRetryable 该错误换一个提供商是否可能成功
// 参数类错误重试无意义，其余都值得回退一次
func (e *ClientError) IsRetryable() bool {
	switch e.Type {
	case ErrTypeBadRequest, ErrTypeAuth:
		return false
	default:
		return true
	}
}

// NewClientError 构造客户端错误
func NewClientError(provider, errType string, statusCode int, message string, err error) *ClientError {
	return &ClientError{
		Provider:   provider,
		Type:       errType,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}
