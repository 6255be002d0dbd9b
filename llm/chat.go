package llm

import "context"

// ChatResult 是一次 system+user 对话调用的简化结果。
// Content 为空且无错误时表示上游返回了空回复。
type ChatResult struct {
	Content string
	Usage   ChatUsage
}

// Chat 以 system/user 两条消息发起一次补全调用。
// 管线各阶段（分类、改写、生成）都走这一个入口。
func Chat(ctx context.Context, p Provider, systemPrompt, userPrompt string, maxTokens int, temperature float32) (*ChatResult, error) {
	req := &ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: systemPrompt},
			{Role: RoleUser, Content: userPrompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	resp, err := p.Completion(ctx, req)
	if err != nil {
		return nil, err
	}

	return &ChatResult{
		Content: resp.FirstContent(),
		Usage:   resp.Usage,
	}, nil
}
