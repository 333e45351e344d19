// Package aiprovider 按提供商名称创建和缓存 AI 客户端
package aiprovider

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"backend/internal/aiprovider/anthropic"
	"backend/internal/aiprovider/openai"
	"backend/pkg/aiinterface"
)

// 提供商标识
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// ProviderCredentials 单个提供商的接入配置
type ProviderCredentials struct {
	APIKey  string
	BaseURL string
}

// Factory 客户端工厂，按提供商名称懒加载并复用客户端
type Factory struct {
	mu          sync.Mutex
	clients     map[string]aiinterface.ProviderClient
	credentials map[string]ProviderCredentials
	timeout     time.Duration
}

// NewFactory 创建客户端工厂
func NewFactory(credentials map[string]ProviderCredentials, timeout time.Duration) *Factory {
	return &Factory{
		clients:     make(map[string]aiinterface.ProviderClient),
		credentials: credentials,
		timeout:     timeout,
	}
}

// ProviderForModel 按模型名推断提供商
func ProviderForModel(model string) string {
	if strings.HasPrefix(model, "claude") {
		return ProviderAnthropic
	}
	return ProviderOpenAI
}

// DefaultModelFor 提供商的默认模型，跨提供商回退时原模型不可用，用这个兜底
func DefaultModelFor(provider string) string {
	if provider == ProviderAnthropic {
		return "claude-haiku-3-5-20241022"
	}
	return "gpt-4o-mini"
}

// ClientFor 获取指定提供商的客户端
func (f *Factory) ClientFor(provider string) (aiinterface.ProviderClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[provider]; ok {
		return client, nil
	}

	creds, ok := f.credentials[provider]
	if !ok {
		return nil, fmt.Errorf("提供商 %s 未配置接入凭证", provider)
	}

	var client aiinterface.ProviderClient
	var err error
	switch provider {
	case ProviderAnthropic:
		client, err = anthropic.NewClient(creds.APIKey, creds.BaseURL, f.timeout)
	case ProviderOpenAI:
		client, err = openai.NewClient(creds.APIKey, creds.BaseURL, f.timeout)
	default:
		return nil, fmt.Errorf("不支持的提供商: %s", provider)
	}
	if err != nil {
		return nil, err
	}

	f.clients[provider] = client
	return client, nil
}

// ClientForModel 按模型名获取客户端
func (f *Factory) ClientForModel(model string) (aiinterface.ProviderClient, error) {
	return f.ClientFor(ProviderForModel(model))
}
