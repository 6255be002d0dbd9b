// =============================================================================
// 📦 QueryFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("QUERYFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 QueryFlow 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// HKGAI 语言模型配置
	HKGAI HKGAIConfig `yaml:"hkgai" env:"HKGAI"`

	// KB 本地知识库配置
	KB KBConfig `yaml:"kb" env:"KB"`

	// WebSearch 网络搜索配置
	WebSearch WebSearchConfig `yaml:"web_search" env:"WEB_SEARCH"`

	// Weather 天气领域配置
	Weather WeatherConfig `yaml:"weather" env:"WEATHER"`

	// Finance 金融领域配置
	Finance FinanceConfig `yaml:"finance" env:"FINANCE"`

	// Pipeline 管线参数配置
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// HKGAIConfig HKGAI 模型配置
type HKGAIConfig struct {
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 响应缓存 TTL（0 表示不缓存）
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// KBConfig 本地知识库配置
type KBConfig struct {
	// 数据目录（documents.json / embeddings.json）
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`
	// 嵌入服务基础 URL
	EmbeddingBaseURL string `yaml:"embedding_base_url" env:"EMBEDDING_BASE_URL"`
	// 嵌入服务 API Key
	EmbeddingAPIKey string `yaml:"embedding_api_key" env:"EMBEDDING_API_KEY"`
	// 嵌入模型名称
	EmbeddingModel string `yaml:"embedding_model" env:"EMBEDDING_MODEL"`
}

// WebSearchConfig 网络搜索配置
type WebSearchConfig struct {
	// SerpAPI Key（为空时搜索静默降级为空结果）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 每秒请求数上限
	RatePerSecond float64 `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
	// 突发容量
	Burst int `yaml:"burst" env:"BURST"`
}

// WeatherConfig 天气领域配置
type WeatherConfig struct {
	// OpenWeatherMap API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// OpenWeatherMap 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 环保署 AQHI XML 端点
	AQHIURL string `yaml:"aqhi_url" env:"AQHI_URL"`
	// 天文台开放数据端点
	HKOBaseURL string `yaml:"hko_base_url" env:"HKO_BASE_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// FinanceConfig 金融领域配置
type FinanceConfig struct {
	// 外汇接口端点
	ExchangeRateURL string `yaml:"exchange_rate_url" env:"EXCHANGE_RATE_URL"`
	// CoinGecko 端点
	CoinGeckoURL string `yaml:"coingecko_url" env:"COINGECKO_URL"`
	// Yahoo 行情端点
	YahooQuoteURL string `yaml:"yahoo_quote_url" env:"YAHOO_QUOTE_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// PipelineConfig 管线参数配置
type PipelineConfig struct {
	// 知识库 top-k
	TopK int `yaml:"top_k" env:"TOP_K"`
	// 相似度下限
	MinSimilarity float64 `yaml:"min_similarity" env:"MIN_SIMILARITY"`
	// 网络结果上限
	MaxWebResults int `yaml:"max_web_results" env:"MAX_WEB_RESULTS"`
	// 网络结果默认分
	WebResultScore float64 `yaml:"web_result_score" env:"WEB_RESULT_SCORE"`
	// 单后端超时
	BackendTimeout time.Duration `yaml:"backend_timeout" env:"BACKEND_TIMEOUT"`
	// 原始分权重
	OriginalWeight float64 `yaml:"original_weight" env:"ORIGINAL_WEIGHT"`
	// BM25 权重
	BM25Weight float64 `yaml:"bm25_weight" env:"BM25_WEIGHT"`
	// 地理定位端点
	GeoEndpoint string `yaml:"geo_endpoint" env:"GEO_ENDPOINT"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址（为空时不启用缓存）
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "QUERYFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.HKGAI.BaseURL == "" {
		errs = append(errs, "hkgai base_url is required")
	}
	if c.Pipeline.TopK <= 0 {
		errs = append(errs, "top_k must be positive")
	}
	if c.Pipeline.MinSimilarity < 0 || c.Pipeline.MinSimilarity > 1 {
		errs = append(errs, "min_similarity must be between 0 and 1")
	}
	if c.Pipeline.OriginalWeight+c.Pipeline.BM25Weight <= 0 {
		errs = append(errs, "rerank weights must not both be zero")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
