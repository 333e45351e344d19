package aicore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus 指标，/metrics 暴露
var (
	metricRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ai_gateway",
		Name:      "requests_total",
		Help:      "网关请求总数，按功能与结果分类",
	}, []string{"feature", "outcome"})

	metricProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ai_gateway",
		Name:      "provider_latency_seconds",
		Help:      "提供商调用耗时",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"provider", "stage"})

	metricTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ai_gateway",
		Name:      "tokens_total",
		Help:      "消耗 token 总数，按类型分类",
	}, []string{"model", "kind"})

	metricCostEUR = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ai_gateway",
		Name:      "cost_eur_total",
		Help:      "累计成本（EUR）",
	})

	metricSavingsEUR = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ai_gateway",
		Name:      "cache_savings_eur_total",
		Help:      "提示词缓存累计节省（EUR）",
	})

	metricFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ai_gateway",
		Name:      "fallbacks_total",
		Help:      "回退提供商调用次数",
	})
)

// observeOutcome 记录一次请求结果
func observeOutcome(featureKey, outcome string) {
	metricRequestsTotal.WithLabelValues(featureKey, outcome).Inc()
}

// observeInvocation 记录一次成功调用的用量与成本
func observeInvocation(result *InvocationResult, cost *CostBreakdown, latencySeconds float64) {
	metricProviderLatency.WithLabelValues(result.ProviderUsed, result.Stage).Observe(latencySeconds)
	metricTokensTotal.WithLabelValues(result.Model, "input").Add(float64(result.Usage.InputTokens))
	metricTokensTotal.WithLabelValues(result.Model, "output").Add(float64(result.Usage.OutputTokens))
	metricTokensTotal.WithLabelValues(result.Model, "cache_read").Add(float64(result.Usage.CacheReadTokens))
	metricTokensTotal.WithLabelValues(result.Model, "cache_write").Add(float64(result.Usage.CacheWriteTokens))
	metricCostEUR.Add(cost.CostEUR)
	metricSavingsEUR.Add(cost.SavingsEUR)
	if result.Stage == StageFallback {
		metricFallbacksTotal.Inc()
	}
}
