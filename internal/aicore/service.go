package aicore

import (
	"context"
	"errors"
	"time"

	"backend/internal/logger"
	"backend/internal/settings"
	"backend/pkg/aiinterface"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("backend/internal/aicore")

// settingsSource 全局设置读取口径
type settingsSource interface {
	Get(ctx context.Context) (*settings.GlobalAISettings, error)
}

// conversationSource 对话历史存取口径
type conversationSource interface {
	Load(ctx context.Context, conversationID string) ([]aiinterface.Message, error)
	Append(ctx context.Context, conversationID, prompt, response string) error
}

// ledgerSink 账本写入口径
type ledgerSink interface {
	Append(ctx context.Context, entry *UsageLedgerEntry) error
}

// invocationRunner 提供商调用口径
type invocationRunner interface {
	Invoke(ctx context.Context, plan *EffectivePlan, history []aiinterface.Message, req *GatewayRequest, s *settings.GlobalAISettings) (*InvocationResult, error)
}

// Service AI 请求网关
// 流水线：预算 → 配置解析（含订阅门槛）→ 限流 → 上下文 → 调用 → 核算 → 账本
type Service struct {
	settings      settingsSource
	budget        *BudgetGuard
	limiter       *RateLimiter
	resolver      *Resolver
	conversations conversationSource
	invoker       invocationRunner
	accountant    *Accountant
	ledger        ledgerSink

	now func() time.Time
}

// NewService 创建网关服务
func NewService(
	settings settingsSource,
	budget *BudgetGuard,
	limiter *RateLimiter,
	resolver *Resolver,
	conversations conversationSource,
	invoker invocationRunner,
	accountant *Accountant,
	ledger ledgerSink,
) *Service {
	return &Service{
		settings:      settings,
		budget:        budget,
		limiter:       limiter,
		resolver:      resolver,
		conversations: conversations,
		invoker:       invoker,
		accountant:    accountant,
		ledger:        ledger,
		now:           time.Now,
	}
}

// Process 处理一次网关请求
//
// 调用前的拒绝（停用、预算、限流、订阅）不写账本，没有可计费事件；
// 进入调用阶段后，无论成功失败都恰好写一条账本。
func (s *Service) Process(ctx context.Context, req *GatewayRequest) (*GatewayResponse, error) {
	ctx, span := tracer.Start(ctx, "aicore.Process",
		trace.WithAttributes(attribute.String("ai.action", req.Action)))
	defer span.End()

	if err := validateRequest(req); err != nil {
		observeOutcome(req.FeatureKey, string(KindInvalidRequest))
		return nil, err
	}
	featureKey := req.FeatureKey
	if featureKey == "" {
		featureKey = req.Action
	}
	span.SetAttributes(attribute.String("ai.feature_key", featureKey))

	now := s.now()

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	// 预算守卫，全局停用在这里一并短路
	budget, err := s.budget.Check(ctx, cfg, now)
	if err != nil {
		return nil, err
	}
	if !budget.Allowed {
		if !cfg.IsEnabled {
			observeOutcome(featureKey, string(KindDisabled))
			return nil, ErrDisabled()
		}
		observeOutcome(featureKey, string(KindBudgetExceeded))
		return nil, ErrBudgetExceeded(budget.Used, budget.Limit)
	}

	// 配置解析，订阅门槛和功能停用在这一步拒绝
	plan, err := s.resolver.Resolve(ctx, req, cfg)
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			observeOutcome(featureKey, string(gwErr.Kind))
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("ai.model", plan.Model))

	// 限流
	limit, err := s.limiter.Check(ctx, req.PrincipalID, featureKey, plan.RateLimit, now)
	if err != nil {
		return nil, err
	}
	if !limit.Allowed {
		observeOutcome(featureKey, string(KindRateLimited))
		return nil, ErrRateLimited(limit.RetryAfterSeconds)
	}

	// 对话历史是尽力而为的增强，读失败不挡请求
	history, err := s.conversations.Load(ctx, req.ConversationID)
	if err != nil {
		logger.Warn("加载对话历史失败",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err))
		history = nil
	}

	// 进入调用阶段后脱离客户端取消：提供商可能已经计费，
	// 账本必须落下去，超时由调用器自身的限时控制
	tailCtx := context.WithoutCancel(ctx)

	start := s.now()
	result, err := s.invoker.Invoke(tailCtx, plan, history, req, cfg)
	elapsed := s.now().Sub(start)

	if err != nil {
		s.appendFailure(tailCtx, req, featureKey, plan.Model, err, elapsed)
		observeOutcome(featureKey, string(KindProviderError))
		return nil, err
	}

	cost, err := s.accountant.Compute(result.Usage, result.Model)
	if err != nil {
		// 缺价格按配置缺陷处理：请求报错，账本记一条零成本失败
		s.appendFailure(tailCtx, req, featureKey, result.Model, err, elapsed)
		observeOutcome(featureKey, string(KindUnknownModelPricing))
		return nil, err
	}

	entry := &UsageLedgerEntry{
		PrincipalID:         req.PrincipalID,
		FeatureKey:          featureKey,
		Model:               result.Model,
		Provider:            result.ProviderUsed,
		InputTokens:         result.Usage.InputTokens,
		OutputTokens:        result.Usage.OutputTokens,
		CacheWriteTokens:    result.Usage.CacheWriteTokens,
		CacheReadTokens:     result.Usage.CacheReadTokens,
		CostEUR:             cost.CostEUR,
		CostWithoutCacheEUR: cost.CostWithoutCacheEUR,
		ResponseTimeMs:      elapsed.Milliseconds(),
		Success:             true,
		ConversationID:      req.ConversationID,
		Timestamp:           s.now().UTC(),
	}
	if err := s.ledger.Append(tailCtx, entry); err != nil {
		// token 已经消耗，账本写失败只能记日志，不能把成功回滚成失败
		logger.Error("账本写入失败", zap.Error(err), zap.String("principal_id", req.PrincipalID))
	}

	if err := s.conversations.Append(tailCtx, req.ConversationID, req.Prompt, result.Content); err != nil {
		logger.Warn("追加对话历史失败",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err))
	}

	observeOutcome(featureKey, "success")
	observeInvocation(result, cost, elapsed.Seconds())

	remaining := budget.Remaining - cost.CostEUR
	if remaining < 0 {
		remaining = 0
	}

	return &GatewayResponse{
		Success: true,
		Content: result.Content,
		Usage: UsageSummary{
			InputTokens:         result.Usage.InputTokens,
			OutputTokens:        result.Usage.OutputTokens,
			CacheReadTokens:     result.Usage.CacheReadTokens,
			CacheCreationTokens: result.Usage.CacheWriteTokens,
			CostEUR:             cost.CostEUR,
			SavingsEUR:          cost.SavingsEUR,
			SavingsPercent:      cost.SavingsPercent,
		},
		Model:              result.Model,
		Provider:           result.ProviderUsed,
		ResponseTimeMs:     elapsed.Milliseconds(),
		BudgetRemaining:    remaining,
		RateLimitRemaining: limit.Remaining,
	}, nil
}

// appendFailure 调用阶段失败记零成本账本条目
func (s *Service) appendFailure(ctx context.Context, req *GatewayRequest, featureKey, model string, cause error, elapsed time.Duration) {
	errorKind := string(KindProviderError)
	var gwErr *GatewayError
	if errors.As(cause, &gwErr) {
		errorKind = string(gwErr.Kind)
	}

	entry := &UsageLedgerEntry{
		PrincipalID:    req.PrincipalID,
		FeatureKey:     featureKey,
		Model:          model,
		ResponseTimeMs: elapsed.Milliseconds(),
		Success:        false,
		ErrorKind:      errorKind,
		ConversationID: req.ConversationID,
		Timestamp:      s.now().UTC(),
	}
	if err := s.ledger.Append(ctx, entry); err != nil {
		logger.Error("失败账本条目写入失败", zap.Error(err))
	}
}

// validateRequest 基本参数校验
func validateRequest(req *GatewayRequest) error {
	if req.PrincipalID == "" {
		return ErrInvalidRequest("缺少调用主体")
	}
	if req.Action == "" {
		return ErrInvalidRequest("action 不能为空")
	}
	if req.Prompt == "" {
		return ErrInvalidRequest("prompt 不能为空")
	}
	return nil
}
