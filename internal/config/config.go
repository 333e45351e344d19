package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	AI       AIConfig       `mapstructure:"ai"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`      // 是否自动迁移表结构
}

// RedisConfig Redis 配置（单节点）
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// AuthConfig 认证配置（身份主体由上游签发的 JWT 提供，签发逻辑不在本服务内）
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// AIConfig AI 网关配置
type AIConfig struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
}

// AnthropicConfig Anthropic 配置
type AnthropicConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// OpenAIConfig OpenAI 配置
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	OrgID   string `mapstructure:"org_id"`
}

// GatewayConfig AI 请求网关配置
type GatewayConfig struct {
	// 美元兑欧元固定汇率，成本入账一律以欧元计
	FXRateUSDToEUR float64 `mapstructure:"fx_rate_usd_to_eur"`

	// 单次模型调用超时（秒），超时按提供商错误处理并触发回退
	ProviderTimeoutSeconds int `mapstructure:"provider_timeout_seconds"`

	// 请求与功能配置均未指定时的最大输出 Token 数
	DefaultMaxTokens int `mapstructure:"default_max_tokens"`

	// 功能未配置限流时的部署级默认值
	DefaultRateLimitWindowSeconds int `mapstructure:"default_rate_limit_window_seconds"`
	DefaultRateLimitMaxRequests   int `mapstructure:"default_rate_limit_max_requests"`

	// 会话上下文裁剪：最多加载的历史轮数与估算 Token 上限
	ContextMaxTurns  int `mapstructure:"context_max_turns"`
	ContextMaxTokens int `mapstructure:"context_max_tokens"`

	// 模型价格表文件（yaml），为空时仅使用内置价格
	PriceTablePath string `mapstructure:"price_table_path"`
}

// ApplyDefaults 填充网关配置缺省值
func (g *GatewayConfig) ApplyDefaults() {
	if g.FXRateUSDToEUR <= 0 {
		g.FXRateUSDToEUR = 0.92
	}
	if g.ProviderTimeoutSeconds <= 0 {
		g.ProviderTimeoutSeconds = 30
	}
	if g.DefaultMaxTokens <= 0 {
		g.DefaultMaxTokens = 1024
	}
	if g.DefaultRateLimitWindowSeconds <= 0 {
		g.DefaultRateLimitWindowSeconds = 60
	}
	if g.DefaultRateLimitMaxRequests <= 0 {
		g.DefaultRateLimitMaxRequests = 20
	}
	if g.ContextMaxTurns <= 0 {
		g.ContextMaxTurns = 20
	}
	if g.ContextMaxTokens <= 0 {
		g.ContextMaxTokens = 4000
	}
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	// 读取环境变量（优先级高于配置文件）
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 支持嵌套配置：APP_DATABASE_HOST

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.AI.Gateway.ApplyDefaults()

	globalConfig = &cfg
	return &cfg, nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
