package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPEncoderConfig 配置 OpenAI 兼容的嵌入接口客户端。
type HTTPEncoderConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	APIKey  string        `json:"api_key" yaml:"api_key"`
	Model   string        `json:"model" yaml:"model"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// HTTPEncoder 通过 /embeddings 接口把文本编码为向量。
// 嵌入计算本身由外部服务承担。
type HTTPEncoder struct {
	cfg    HTTPEncoderConfig
	client *http.Client
}

// NewHTTPEncoder 创建嵌入客户端。
func NewHTTPEncoder(cfg HTTPEncoderConfig) *HTTPEncoder {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "multilingual-e5-small"
	}
	return &HTTPEncoder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Encode 编码单条查询文本。
func (e *HTTPEncoder) Encode(ctx context.Context, text string) ([]float64, error) {
	payload, _ := json.Marshal(embeddingRequest{
		Model: e.cfg.Model,
		Input: []string{text},
	})

	endpoint := fmt.Sprintf("%s/embeddings", strings.TrimRight(e.cfg.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding request failed: status=%d", resp.StatusCode)
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return out.Data[0].Embedding, nil
}
