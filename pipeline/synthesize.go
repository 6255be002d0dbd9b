package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/llm"
)

// 上下文装配上限
const (
	maxSupportingWeb  = 3   // 领域答案的网络补充条数
	maxContextResults = 5   // 通用查询的上下文条数
	webSnippetLimit   = 200 // 网络摘要截断长度（字符）
)

// Synthesizer 把重排结果装配成有依据的上下文并调 LLM 生成最终回答。
// 生成从不向调用方抛错：失败落到固定兜底文案。
type Synthesizer struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewSynthesizer 创建回答合成器。
func NewSynthesizer(provider llm.Provider, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		provider: provider,
		logger:   logger.With(zap.String("component", "synthesizer")),
	}
}

// Synthesize 生成最终回答，恒返回非空字符串。
func (s *Synthesizer) Synthesize(ctx context.Context, u Understanding, ranked []RankedItem) string {
	domainPayload := extractDomainPayload(ranked)
	contextSummary := buildContextSummary(ranked, domainPayload)

	systemPrompt := fmt.Sprintf(responseSystemPromptTemplate, u.Intent, u.Domain)
	userPrompt := fmt.Sprintf(responseUserPromptTemplate, u.Query, contextSummary)

	result, err := llm.Chat(ctx, s.provider, systemPrompt, userPrompt, generationMaxTokens, generationTemperature)
	if err != nil {
		s.logger.Error("response generation failed", zap.Error(err))
		return responseErrorFallback
	}

	if strings.TrimSpace(result.Content) == "" {
		s.logger.Warn("response generation returned empty content")
		return responseEmptyFallback
	}

	return result.Content
}

// extractDomainPayload 找出排序结果里的领域 API 负载（若有）。
func extractDomainPayload(ranked []RankedItem) DomainPayload {
	for _, item := range ranked {
		if item.Source != ResultSourceDomainAPI {
			continue
		}
		if payload, ok := item.Content.(DomainPayload); ok {
			return payload
		}
		if m, ok := item.Content.(map[string]any); ok {
			return DomainPayload(m)
		}
	}
	return nil
}

// buildContextSummary 装配提示词上下文：
// 有领域负载时它作为 Primary Source 打头，最多补 3 条网络摘要；
// 否则取排序前 5 条，按来源标注渲染为 JSON 块。
func buildContextSummary(ranked []RankedItem, domainPayload DomainPayload) string {
	if len(ranked) == 0 {
		return emptyContextPlaceholder
	}

	var sb strings.Builder
	sb.WriteString(contextHeader)

	if domainPayload != nil {
		sb.WriteString(primarySourceHeader)
		sb.WriteString(marshalIndent(domainPayload))
		sb.WriteString("\n")

		webItems := filterBySource(ranked, ResultSourceWeb, maxSupportingWeb)
		if len(webItems) > 0 {
			sb.WriteString(supportingWebHeader)
			for i, item := range webItems {
				if text, ok := item.Content.(string); ok {
					fmt.Fprintf(&sb, "%d. %s...\n", i+1, truncate(text, webSnippetLimit))
				}
			}
		}
		return sb.String()
	}

	limit := maxContextResults
	if len(ranked) < limit {
		limit = len(ranked)
	}
	for i, item := range ranked[:limit] {
		fmt.Fprintf(&sb, sourceHeaderTemplate, i+1, item.Source)
		sb.WriteString(marshalIndent(item.Content))
		sb.WriteString("\n")
	}

	return sb.String()
}

func filterBySource(ranked []RankedItem, source string, max int) []RankedItem {
	out := make([]RankedItem, 0, max)
	for _, item := range ranked {
		if item.Source == source {
			out = append(out, item)
			if len(out) == max {
				break
			}
		}
	}
	return out
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func marshalIndent(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
