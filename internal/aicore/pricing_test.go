package aicore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPriceTableBuiltinOnly(t *testing.T) {
	table, err := LoadPriceTable("")
	require.NoError(t, err)

	row, ok := table.Lookup("claude-haiku-3-5-20241022")
	require.True(t, ok)
	assert.InDelta(t, 0.80, row.InputUSDPerM, 1e-9)
	assert.InDelta(t, 0.08, row.CacheReadUSDPM, 1e-9)

	_, ok = table.Lookup("unbekanntes-modell")
	assert.False(t, ok)
}

func TestLoadPriceTableOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.yaml")
	content := `models:
  - model_id: claude-haiku-3-5-20241022
    input_usd_per_m: 1.00
    output_usd_per_m: 5.00
    cache_write_usd_per_m: 1.25
    cache_read_usd_per_m: 0.10
  - model_id: hausintern-llm-1
    input_usd_per_m: 0.05
    output_usd_per_m: 0.20
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := LoadPriceTable(path)
	require.NoError(t, err)

	// 文件覆盖内置条目
	row, ok := table.Lookup("claude-haiku-3-5-20241022")
	require.True(t, ok)
	assert.InDelta(t, 1.00, row.InputUSDPerM, 1e-9)
	assert.InDelta(t, 0.10, row.CacheReadUSDPM, 1e-9)

	// 新模型补充进表
	row, ok = table.Lookup("hausintern-llm-1")
	require.True(t, ok)
	assert.InDelta(t, 0.05, row.InputUSDPerM, 1e-9)

	// 未覆盖的内置条目不受影响
	row, ok = table.Lookup("gpt-4o")
	require.True(t, ok)
	assert.InDelta(t, 2.50, row.InputUSDPerM, 1e-9)
}

func TestLoadPriceTableRejectsMissingModelID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.yaml")
	content := `models:
  - input_usd_per_m: 1.00
    output_usd_per_m: 5.00
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadPriceTable(path)
	require.Error(t, err)
}

func TestLoadPriceTableMissingFile(t *testing.T) {
	_, err := LoadPriceTable(filepath.Join(t.TempDir(), "fehlt.yaml"))
	require.Error(t, err)
}
