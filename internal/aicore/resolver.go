package aicore

import (
	"context"
	"errors"
	"fmt"

	"backend/internal/feature"
	"backend/internal/settings"
	"backend/internal/subscription"
)

// 内置提示词兜底，按 action 区分，未配置提示词的功能也能工作
var builtinPrompts = map[string]string{
	ActionChat:       "Du bist ein hilfreicher Assistent für Hausverwaltung. Antworte präzise und auf Deutsch.",
	ActionOCR:        "Extrahiere die Rechnungsdaten aus dem Dokument und gib sie als strukturiertes JSON zurück.",
	ActionCategorize: "Ordne die Buchung einer der vorgegebenen Kategorien zu. Antworte nur mit der Kategorie.",
	ActionWorkflow:   "Du unterstützt bei der Ausführung von Verwaltungs-Workflows. Antworte strukturiert und knapp.",
}

// featureSource 功能配置与提示词读取口径
type featureSource interface {
	GetByKey(ctx context.Context, featureKey string) (*feature.FeatureConfig, error)
	GetPrompt(ctx context.Context, key string) (*feature.SystemPrompt, error)
}

// ResolverDefaults 部署级默认值
type ResolverDefaults struct {
	MaxTokens              int
	RateLimitWindowSeconds int
	RateLimitMaxRequests   int
}

// Resolver 配置解析器：把请求覆盖、功能配置和全局设置合并成生效参数
type Resolver struct {
	features featureSource
	tiers    subscription.TierLookup
	defaults ResolverDefaults
}

// NewResolver 创建配置解析器
func NewResolver(features featureSource, tiers subscription.TierLookup, defaults ResolverDefaults) *Resolver {
	return &Resolver{features: features, tiers: tiers, defaults: defaults}
}

// Resolve 解析一次调用的生效参数
// 优先级统一为：请求显式值 > 功能配置 > 全局设置/部署默认
func (r *Resolver) Resolve(ctx context.Context, req *GatewayRequest, s *settings.GlobalAISettings) (*EffectivePlan, error) {
	featureKey := req.FeatureKey
	if featureKey == "" {
		featureKey = req.Action
	}

	cfg, err := r.features.GetByKey(ctx, featureKey)
	if err != nil && !errors.Is(err, feature.ErrFeatureNotFound) {
		return nil, fmt.Errorf("读取功能配置失败: %w", err)
	}

	if cfg != nil {
		if !cfg.IsEnabled {
			return nil, ErrFeatureDisabled()
		}
		if cfg.RequiresSubscription != "" {
			tier, err := r.tiers.CurrentTier(ctx, req.PrincipalID)
			if err != nil {
				return nil, fmt.Errorf("查询订阅等级失败: %w", err)
			}
			if !subscription.TierAtLeast(tier, cfg.RequiresSubscription) {
				return nil, ErrSubscriptionRequired(cfg.RequiresSubscription)
			}
		}
	}

	plan := &EffectivePlan{
		Model:     s.DefaultModel,
		MaxTokens: r.defaults.MaxTokens,
		RateLimit: RateLimitConfig{
			WindowSeconds: r.defaults.RateLimitWindowSeconds,
			MaxRequests:   r.defaults.RateLimitMaxRequests,
		},
	}

	if cfg != nil {
		if cfg.PreferredModel != "" {
			plan.Model = cfg.PreferredModel
		}
		if cfg.MaxTokens > 0 {
			plan.MaxTokens = cfg.MaxTokens
		}
		if cfg.HasRateLimit() {
			plan.RateLimit = RateLimitConfig{
				WindowSeconds: cfg.RateLimitWindowSeconds,
				MaxRequests:   cfg.RateLimitMaxRequests,
			}
		}
	}
	if req.Model != "" {
		plan.Model = req.Model
	}
	if req.MaxTokens > 0 {
		plan.MaxTokens = req.MaxTokens
	}

	plan.SystemPrompt = r.resolvePrompt(ctx, req, cfg)
	return plan, nil
}

// resolvePrompt 解析系统提示词
// 提示词缺失不算错误，逐级降到内置兜底
func (r *Resolver) resolvePrompt(ctx context.Context, req *GatewayRequest, cfg *feature.FeatureConfig) string {
	if req.SystemPrompt != "" {
		return req.SystemPrompt
	}
	if cfg != nil && cfg.SystemPromptKey != "" {
		prompt, err := r.features.GetPrompt(ctx, cfg.SystemPromptKey)
		if err == nil && prompt.Content != "" {
			return prompt.Content
		}
	}
	return builtinPrompts[req.Action]
}
