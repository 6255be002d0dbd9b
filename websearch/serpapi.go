// Package websearch 提供基于 SerpAPI 的实时网络搜索能力。
// 未配置 API Key 时静默降级为空结果，不会让上层失败。
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/queryflow/pipeline"
)

// Config 搜索客户端配置。
type Config struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// RatePerSecond 限制对 SerpAPI 的每秒请求数。
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"`
	Burst         int     `json:"burst" yaml:"burst"`
}

// DefaultConfig 返回默认搜索配置。
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://serpapi.com/search",
		Timeout:       10 * time.Second,
		RatePerSecond: 2,
		Burst:         2,
	}
}

// Client 实现 pipeline.WebSearcher。
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient 创建搜索客户端。
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultConfig().RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultConfig().Burst
	}
	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:  logger.With(zap.String("component", "websearch")),
	}
}

type serpResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
	Error string `json:"error"`
}

// Search 执行搜索并返回最多 max 条结果。
// 未配置 Key、限流等待失败或请求出错都返回空列表加 error，调用方自行决定降级。
func (c *Client) Search(ctx context.Context, query string, max int) ([]pipeline.WebResult, error) {
	if c.cfg.APIKey == "" {
		c.logger.Debug("搜索未配置 API Key，返回空结果")
		return nil, nil
	}
	if max <= 0 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", c.cfg.APIKey)
	params.Set("num", fmt.Sprintf("%d", max))
	params.Set("engine", "google")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed: status=%d", resp.StatusCode)
	}

	var out serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("search api error: %s", out.Error)
	}

	results := make([]pipeline.WebResult, 0, max)
	for _, r := range out.OrganicResults {
		if len(results) >= max {
			break
		}
		results = append(results, pipeline.WebResult{
			Title:   r.Title,
			Link:    r.Link,
			Snippet: r.Snippet,
		})
	}

	c.logger.Debug("搜索完成",
		zap.String("query", query),
		zap.Int("results", len(results)))
	return results, nil
}
