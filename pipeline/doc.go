// Package pipeline 实现五阶段查询问答管线：
// 分类（LLM JSON 分类 + 保守兜底）→ 选源（纯函数）→
// 检索（至多三后端并发扇出）→ 重排（BM25 混合打分）→ 生成。
//
// 管线对调用方的契约只有一条：Answer 恒返回非空字符串。
// 单个阶段、单个后端的失败都在内部消化为降级行为。
package pipeline
