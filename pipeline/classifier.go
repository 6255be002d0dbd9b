package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/llm"
)

// Classifier 将原始查询 + 环境上下文转换为结构化 Understanding。
// 分类从不向调用方返回错误：任何失败都落到保守默认值。
type Classifier struct {
	provider llm.Provider
	geo      *Geolocator
	logger   *zap.Logger
}

// NewClassifier 创建查询分类器。
func NewClassifier(provider llm.Provider, geo *Geolocator, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		provider: provider,
		geo:      geo,
		logger:   logger.With(zap.String("component", "classifier")),
	}
}

// Classify 对查询做意图/领域/实体分类。
func (c *Classifier) Classify(ctx context.Context, query string) Understanding {
	uc := c.geo.Resolve(ctx)

	u, err := c.classifyWithLLM(ctx, query, uc)
	if err != nil {
		c.logger.Warn("llm classification failed, using defaults", zap.Error(err))
		return DefaultUnderstanding(query, uc)
	}

	c.logger.Info("query classified",
		zap.String("intent", string(u.Intent)),
		zap.String("domain", string(u.Domain)),
		zap.Bool("needs_web", u.NeedsWeb))

	return u
}

// classifyWithLLM 调用 LLM 做分类，并执行完整校验链。
// 校验链任一环失败都返回错误，由上层落默认值。
func (c *Classifier) classifyWithLLM(ctx context.Context, query string, uc UserContext) (Understanding, error) {
	userPrompt := fmt.Sprintf("Classify this query: %q", query) + contextSuffix(uc)

	result, err := llm.Chat(ctx, c.provider, classificationSystemPrompt, userPrompt, classificationMaxTokens, classificationTemperature)
	if err != nil {
		return Understanding{}, fmt.Errorf("classification call: %w", err)
	}

	content := strings.TrimSpace(result.Content)
	if content == "" {
		return Understanding{}, fmt.Errorf("empty classification response")
	}

	return parseClassification(query, content, uc)
}

func contextSuffix(uc UserContext) string {
	return fmt.Sprintf("\n\nContext Information:\n- Current Time: %s\n- User Location: %s, %s\n- Timezone: %s\n\nUse this context when interpreting the query, especially for time-sensitive or location-specific queries.\n",
		uc.CurrentTime, uc.Location, uc.Country, uc.Timezone)
}

// stripCodeFence 去掉模型偶尔包裹的 markdown 代码块标记。
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

type rawClassification struct {
	Intent   string          `json:"intent"`
	Domain   string          `json:"domain"`
	NeedsWeb *bool           `json:"needs_web"`
	Entities json.RawMessage `json:"entities"`
}

// parseClassification 执行校验链：
// JSON 解析 → 必需字段 → 枚举合法性 → needs_web 默认 → 实体归一化。
func parseClassification(query, content string, uc UserContext) (Understanding, error) {
	content = stripCodeFence(content)

	var raw rawClassification
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Understanding{}, fmt.Errorf("parse classification json: %w", err)
	}

	if raw.Intent == "" || raw.Domain == "" {
		return Understanding{}, fmt.Errorf("classification missing intent or domain")
	}

	intent, ok := ParseIntent(raw.Intent)
	if !ok {
		return Understanding{}, fmt.Errorf("invalid intent %q", raw.Intent)
	}
	domain, ok := ParseDomain(raw.Domain)
	if !ok {
		return Understanding{}, fmt.Errorf("invalid domain %q", raw.Domain)
	}

	needsWeb := domain.IsSpecialized()
	if raw.NeedsWeb != nil {
		needsWeb = *raw.NeedsWeb
	}

	return Understanding{
		Query:    query,
		Intent:   intent,
		Domain:   domain,
		NeedsWeb: needsWeb,
		Entities: normalizeEntities(raw.Entities),
		Context:  uc,
	}, nil
}

// normalizeEntities 将任意形状的 entities 值归一化到固定字段结构。
// 非对象值（如裸列表）被折叠进 General。
func normalizeEntities(raw json.RawMessage) Entities {
	if len(raw) == 0 {
		return EmptyEntities()
	}

	var e Entities
	if err := json.Unmarshal(raw, &e); err == nil {
		e.normalize()
		return e
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		e = EmptyEntities()
		e.General = list
		return e
	}

	return EmptyEntities()
}
