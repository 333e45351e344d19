package aicore

import "backend/pkg/aiinterface"

const tokensPerMillion = 1_000_000

// CostBreakdown 一次调用的成本核算结果，货币为 EUR
type CostBreakdown struct {
	CostEUR             float64
	CostWithoutCacheEUR float64
	SavingsEUR          float64
	SavingsPercent      float64
}

// Accountant 成本核算器，纯计算，无 I/O
type Accountant struct {
	prices     *PriceTable
	fxUSDToEUR float64
}

// NewAccountant 创建成本核算器
func NewAccountant(prices *PriceTable, fxUSDToEUR float64) *Accountant {
	return &Accountant{prices: prices, fxUSDToEUR: fxUSDToEUR}
}

// Compute 按用量和模型价格核算成本
//
// 正常成本把缓存命中部分按 cache-read 价计费；
// 反事实成本假设没有缓存、全部按普通输入价计费（缓存写入随之消失）。
// 两者之差即缓存节省。
func (a *Accountant) Compute(usage aiinterface.TokenUsage, model string) (*CostBreakdown, error) {
	row, ok := a.prices.Lookup(model)
	if !ok {
		// 缺价格宁可报错，静默估价会污染预算汇总
		return nil, ErrUnknownModelPricing(model)
	}

	inputPrice := row.InputUSDPerM / tokensPerMillion
	outputPrice := row.OutputUSDPerM / tokensPerMillion
	cacheWritePrice := row.CacheWriteUSDPM / tokensPerMillion
	cacheReadPrice := row.CacheReadUSDPM / tokensPerMillion

	plainInput := usage.InputTokens - usage.CacheReadTokens
	if plainInput < 0 {
		plainInput = 0
	}

	costUSD := float64(plainInput)*inputPrice +
		float64(usage.OutputTokens)*outputPrice +
		float64(usage.CacheWriteTokens)*cacheWritePrice +
		float64(usage.CacheReadTokens)*cacheReadPrice

	withoutCacheUSD := float64(usage.InputTokens)*inputPrice +
		float64(usage.OutputTokens)*outputPrice

	costEUR := costUSD * a.fxUSDToEUR
	withoutCacheEUR := withoutCacheUSD * a.fxUSDToEUR

	savings := withoutCacheEUR - costEUR
	var savingsPercent float64
	if withoutCacheEUR > 0 {
		savingsPercent = savings / withoutCacheEUR * 100
	}
	if savingsPercent < 0 {
		savingsPercent = 0
	}
	if savingsPercent > 100 {
		savingsPercent = 100
	}

	return &CostBreakdown{
		CostEUR:             costEUR,
		CostWithoutCacheEUR: withoutCacheEUR,
		SavingsEUR:          savings,
		SavingsPercent:      savingsPercent,
	}, nil
}
