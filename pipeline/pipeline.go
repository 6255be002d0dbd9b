package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pipeline 串联五个阶段：分类 → 选源 → 检索 → 重排 → 生成。
// 依赖在构造时显式注入，进程内不持有全局可变状态。
type Pipeline struct {
	classifier  *Classifier
	retriever   *Retriever
	reranker    *Reranker
	synthesizer *Synthesizer
	metrics     *Metrics
	logger      *zap.Logger
}

// New 组装完整管线。
func New(
	classifier *Classifier,
	retriever *Retriever,
	reranker *Reranker,
	synthesizer *Synthesizer,
	metrics *Metrics,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		classifier:  classifier,
		retriever:   retriever,
		reranker:    reranker,
		synthesizer: synthesizer,
		metrics:     metrics,
		logger:      logger.With(zap.String("component", "pipeline")),
	}
}

// Answer 回答一条自由文本查询。
// 恒返回非空字符串，从不向调用方抛错或 panic：
// 任何未捕获失败都收敛为带错误文本的道歉文案，进程继续服务后续查询。
func (p *Pipeline) Answer(ctx context.Context, query string) (answer string) {
	requestID := uuid.NewString()
	logger := p.logger.With(zap.String("request_id", requestID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline panic recovered", zap.Any("panic", r))
			if p.metrics != nil {
				p.metrics.Recovered.Inc()
			}
			answer = fmt.Sprintf("%s: %v", pipelineErrorPrefix, r)
		}
	}()

	if p.metrics != nil {
		p.metrics.Requests.Inc()
	}

	start := time.Now()
	understanding := p.classifier.Classify(ctx, query)
	p.metrics.observeStage("classify", start)
	logger.Info("understanding",
		zap.String("intent", string(understanding.Intent)),
		zap.String("domain", string(understanding.Domain)),
		zap.Bool("needs_web", understanding.NeedsWeb))

	selection := SelectSources(understanding)
	logger.Info("sources selected",
		zap.Any("sources", selection.Sources),
		zap.String("domain_handler", string(selection.DomainHandler)),
		zap.Any("priority", selection.Priority))

	start = time.Now()
	results := p.retriever.Retrieve(ctx, understanding, selection)
	p.metrics.observeStage("retrieve", start)
	logger.Info("retrieved", zap.Int("total", results.Total()))

	start = time.Now()
	ranked := p.reranker.Rerank(query, results)
	p.metrics.observeStage("rerank", start)
	logger.Info("reranked", zap.Int("count", len(ranked)))

	start = time.Now()
	answer = p.synthesizer.Synthesize(ctx, understanding, ranked)
	p.metrics.observeStage("synthesize", start)
	logger.Info("response generated")

	return answer
}
