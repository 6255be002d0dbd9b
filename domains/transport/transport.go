// Package transport 处理交通路线查询。
// 运输署行程规划接口不可用，改为把起止点装配成搜索查询走网络搜索。
package transport

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/pipeline"
)

// 中英文 "从 X 到 Y" 模式。
var routePattern = regexp.MustCompile(`(?i)(?:from|從)\s+(\S+(?:\s+\S+)*?)\s+(?:to|去|到)\s+([^\s?]+(?:\s+[^\s?]+)*)`)

const maxRouteResults = 5

// Client 实现 pipeline.DomainClient，底层复用网络搜索协作方。
type Client struct {
	web    pipeline.WebSearcher
	logger *zap.Logger
}

// NewClient 创建交通领域客户端。
func NewClient(web pipeline.WebSearcher, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		web:    web,
		logger: logger.With(zap.String("component", "transport")),
	}
}

// extractRoute 解析起止点：优先位置实体，其次正则匹配查询文本。
// 只有一个位置时视为目的地。
func extractRoute(query string, locations []string) (start, end string) {
	var cleaned []string
	for _, loc := range locations {
		if loc = strings.TrimSpace(loc); loc != "" {
			cleaned = append(cleaned, loc)
		}
	}

	switch {
	case len(cleaned) >= 2:
		start = cleaned[0]
		end = cleaned[len(cleaned)-1]
	case len(cleaned) == 1:
		end = cleaned[0]
	}

	if start == "" || end == "" {
		if m := routePattern.FindStringSubmatch(query); m != nil {
			start = strings.TrimSpace(m[1])
			end = strings.TrimSpace(m[2])
		}
	}
	return start, end
}

// buildSearchQuery 装配交通路线搜索查询。
func buildSearchQuery(query, start, end string) string {
	switch {
	case start != "" && end != "":
		return fmt.Sprintf("how to get from %s to %s Hong Kong public transport MTR bus", start, end)
	case end != "":
		return fmt.Sprintf("how to get to %s Hong Kong public transport directions", end)
	default:
		return query + " Hong Kong transport directions"
	}
}

// Fetch 返回基于网络搜索的路线信息负载。
func (c *Client) Fetch(ctx context.Context, query string, entities pipeline.Entities) pipeline.DomainPayload {
	start, end := extractRoute(query, entities.Locations)
	searchQuery := buildSearchQuery(query, start, end)

	if start != "" && end != "" {
		c.logger.Info("交通路线查询",
			zap.String("start", start),
			zap.String("end", end))
	} else {
		c.logger.Info("交通查询", zap.String("search_query", searchQuery))
	}

	results, err := c.web.Search(ctx, searchQuery, maxRouteResults)
	if err != nil {
		c.logger.Error("交通路线搜索失败", zap.Error(err))
		return pipeline.ErrorPayload(pipeline.DomainTransportation,
			fmt.Sprintf("Transportation search failed: %v", err))
	}
	if len(results) == 0 {
		return pipeline.ErrorPayload(pipeline.DomainTransportation, "No transportation results found")
	}

	formatted := make([]map[string]any, 0, len(results))
	for _, r := range results {
		formatted = append(formatted, map[string]any{
			"title":   r.Title,
			"link":    r.Link,
			"snippet": r.Snippet,
		})
	}

	return pipeline.DomainPayload{
		"topic":        "transportation",
		"start":        start,
		"end":          end,
		"search_query": searchQuery,
		"method":       "web_search",
		"results":      formatted,
		"message":      "Transportation directions retrieved from web search",
	}
}
