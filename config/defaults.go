// =============================================================================
// 📦 QueryFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		HKGAI:     DefaultHKGAIConfig(),
		KB:        DefaultKBConfig(),
		WebSearch: DefaultWebSearchConfig(),
		Weather:   DefaultWeatherConfig(),
		Finance:   DefaultFinanceConfig(),
		Pipeline:  DefaultPipelineConfig(),
		Redis:     DefaultRedisConfig(),
		Log:       DefaultLogConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultHKGAIConfig 返回默认 HKGAI 配置
func DefaultHKGAIConfig() HKGAIConfig {
	return HKGAIConfig{
		BaseURL:  "https://oneapi.hkgai.net/v1",
		Model:    "HKGAI-V1",
		Timeout:  30 * time.Second,
		CacheTTL: 0,
	}
}

// DefaultKBConfig 返回默认知识库配置
func DefaultKBConfig() KBConfig {
	return KBConfig{
		DataDir:        "data/kb",
		EmbeddingModel: "multilingual-e5-small",
	}
}

// DefaultWebSearchConfig 返回默认网络搜索配置
func DefaultWebSearchConfig() WebSearchConfig {
	return WebSearchConfig{
		BaseURL:       "https://serpapi.com/search",
		Timeout:       10 * time.Second,
		RatePerSecond: 2,
		Burst:         2,
	}
}

// DefaultWeatherConfig 返回默认天气配置
func DefaultWeatherConfig() WeatherConfig {
	return WeatherConfig{
		BaseURL:    "https://api.openweathermap.org/data/2.5",
		AQHIURL:    "https://www.aqhi.gov.hk/epd/ddata/html/out/aqhi_D_e.xml",
		HKOBaseURL: "https://data.weather.gov.hk/weatherAPI/opendata/weather.php",
		Timeout:    10 * time.Second,
	}
}

// DefaultFinanceConfig 返回默认金融配置
func DefaultFinanceConfig() FinanceConfig {
	return FinanceConfig{
		ExchangeRateURL: "https://api.exchangerate.host/latest",
		CoinGeckoURL:    "https://api.coingecko.com/api/v3/simple/price",
		YahooQuoteURL:   "https://query1.finance.yahoo.com/v7/finance/quote",
		Timeout:         5 * time.Second,
	}
}

// DefaultPipelineConfig 返回默认管线参数
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		TopK:           5,
		MinSimilarity:  0.3,
		MaxWebResults:  5,
		WebResultScore: 0.8,
		BackendTimeout: 10 * time.Second,
		OriginalWeight: 0.7,
		BM25Weight:     0.3,
		GeoEndpoint:    "http://ip-api.com/json/",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     "",
		Password: "",
		DB:       0,
		PoolSize: 10,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: false,
	}
}
