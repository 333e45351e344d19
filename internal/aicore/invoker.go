package aicore

import (
	"context"
	"time"

	"backend/internal/aiprovider"
	"backend/internal/logger"
	"backend/internal/settings"
	"backend/pkg/aiinterface"

	"go.uber.org/zap"
)

// clientSource 提供商客户端获取口径，生产实现为 aiprovider.Factory
type clientSource interface {
	ClientFor(provider string) (aiinterface.ProviderClient, error)
}

// Invoker 提供商调用器：主调用失败时走一次回退，不做同源重试
type Invoker struct {
	clients clientSource
	timeout time.Duration
}

// NewInvoker 创建提供商调用器
func NewInvoker(clients clientSource, timeout time.Duration) *Invoker {
	return &Invoker{clients: clients, timeout: timeout}
}

// Invoke 执行一次补全
//
// 系统提示词和对话上下文构成稳定前缀，开启缓存时标记为可缓存；
// 用户输入是易变部分，永远不标记。回退调用不带缓存标记，
// 不同提供商的缓存语义不通用。
func (i *Invoker) Invoke(ctx context.Context, plan *EffectivePlan, history []aiinterface.Message, req *GatewayRequest, s *settings.GlobalAISettings) (*InvocationResult, error) {
	primary := aiprovider.ProviderForModel(plan.Model)

	result, primaryErr := i.attempt(ctx, primary, plan, history, req, s.EnablePromptCaching)
	if primaryErr == nil {
		result.Stage = StagePrimary
		return result, nil
	}

	logger.Warn("主提供商调用失败",
		zap.String("provider", primary),
		zap.String("model", plan.Model),
		zap.Error(primaryErr))

	if !s.HasFallback() || s.FallbackProvider == primary {
		return nil, ErrProvider(StagePrimary, primaryErr)
	}

	// 一次性回退，回退再失败就到此为止。
	// 回退提供商认不了原模型名，换成配置的回退模型或提供商默认模型
	fallbackPlan := *plan
	if aiprovider.ProviderForModel(plan.Model) != s.FallbackProvider {
		fallbackPlan.Model = s.FallbackModel
		if fallbackPlan.Model == "" {
			fallbackPlan.Model = aiprovider.DefaultModelFor(s.FallbackProvider)
		}
	}

	result, fallbackErr := i.attempt(ctx, s.FallbackProvider, &fallbackPlan, history, req, false)
	if fallbackErr != nil {
		logger.Error("回退提供商调用失败",
			zap.String("provider", s.FallbackProvider),
			zap.Error(fallbackErr))
		return nil, ErrProvider(StageFallback, fallbackErr)
	}

	result.Stage = StageFallback
	return result, nil
}

// attempt 对单个提供商发起一次带超时的调用
func (i *Invoker) attempt(ctx context.Context, provider string, plan *EffectivePlan, history []aiinterface.Message, req *GatewayRequest, enableCaching bool) (*InvocationResult, error) {
	client, err := i.clients.ClientFor(provider)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	resp, err := client.Complete(callCtx, i.buildRequest(plan, history, req, enableCaching))
	if err != nil {
		return nil, err
	}

	return &InvocationResult{
		Content:      resp.Content,
		Model:        resp.Model,
		ProviderUsed: client.Name(),
		Usage:        resp.Usage,
	}, nil
}

// buildRequest 组装提供商请求
func (i *Invoker) buildRequest(plan *EffectivePlan, history []aiinterface.Message, req *GatewayRequest, enableCaching bool) *aiinterface.CompletionRequest {
	var system []aiinterface.SystemBlock
	if plan.SystemPrompt != "" {
		system = append(system, aiinterface.SystemBlock{Text: plan.SystemPrompt, CacheControl: enableCaching})
	}
	if req.Context != "" {
		system = append(system, aiinterface.SystemBlock{Text: req.Context, CacheControl: enableCaching})
	}

	userContent := req.Prompt
	if req.Image != "" {
		userContent += "\n\n[Dokument, base64]:\n" + req.Image
	}

	messages := make([]aiinterface.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, aiinterface.Message{Role: aiinterface.RoleUser, Content: userContent})

	return &aiinterface.CompletionRequest{
		Model:     plan.Model,
		System:    system,
		Messages:  messages,
		MaxTokens: plan.MaxTokens,
	}
}
