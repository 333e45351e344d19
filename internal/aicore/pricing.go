package aicore

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelPriceRow 单个模型的价格行，单位 USD / 1M tokens
type ModelPriceRow struct {
	ModelID         string  `yaml:"model_id"`
	InputUSDPerM    float64 `yaml:"input_usd_per_m"`
	OutputUSDPerM   float64 `yaml:"output_usd_per_m"`
	CacheWriteUSDPM float64 `yaml:"cache_write_usd_per_m"`
	CacheReadUSDPM  float64 `yaml:"cache_read_usd_per_m"`
}

// PriceTable 模型价格表，部署期静态，不随请求变化
type PriceTable struct {
	rows map[string]ModelPriceRow
}

// 内置价格表，部署可用 YAML 文件覆盖或补充
var builtinPrices = []ModelPriceRow{
	{ModelID: "claude-haiku-3-5-20241022", InputUSDPerM: 0.80, OutputUSDPerM: 4.00, CacheWriteUSDPM: 1.00, CacheReadUSDPM: 0.08},
	{ModelID: "claude-sonnet-4-20250514", InputUSDPerM: 3.00, OutputUSDPerM: 15.00, CacheWriteUSDPM: 3.75, CacheReadUSDPM: 0.30},
	{ModelID: "claude-opus-4-20250514", InputUSDPerM: 15.00, OutputUSDPerM: 75.00, CacheWriteUSDPM: 18.75, CacheReadUSDPM: 1.50},
	{ModelID: "gpt-4o", InputUSDPerM: 2.50, OutputUSDPerM: 10.00, CacheReadUSDPM: 1.25},
	{ModelID: "gpt-4o-mini", InputUSDPerM: 0.15, OutputUSDPerM: 0.60, CacheReadUSDPM: 0.075},
}

// NewPriceTable 创建内置价格表
func NewPriceTable() *PriceTable {
	t := &PriceTable{rows: make(map[string]ModelPriceRow, len(builtinPrices))}
	for _, row := range builtinPrices {
		t.rows[row.ModelID] = row
	}
	return t
}

// priceFile YAML 覆盖文件结构
type priceFile struct {
	Models []ModelPriceRow `yaml:"models"`
}

// LoadPriceTable 创建价格表并用 YAML 文件覆盖，path 为空时只用内置表
func LoadPriceTable(path string) (*PriceTable, error) {
	t := NewPriceTable()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取价格表文件失败: %w", err)
	}

	var file priceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析价格表文件失败: %w", err)
	}
	for _, row := range file.Models {
		if row.ModelID == "" {
			return nil, fmt.Errorf("价格表存在缺少 model_id 的条目")
		}
		t.rows[row.ModelID] = row
	}
	return t, nil
}

// Lookup 按模型 ID 查价格行
func (t *PriceTable) Lookup(modelID string) (ModelPriceRow, bool) {
	row, ok := t.rows[modelID]
	return row, ok
}

// Models 返回全部已配置模型 ID
func (t *PriceTable) Models() []string {
	ids := make([]string, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	return ids
}
