package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/config"
	"github.com/BaSui01/queryflow/domains/finance"
	"github.com/BaSui01/queryflow/domains/transport"
	"github.com/BaSui01/queryflow/domains/weather"
	"github.com/BaSui01/queryflow/kb"
	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/pipeline"
	"github.com/BaSui01/queryflow/providers/hkgai"
	"github.com/BaSui01/queryflow/websearch"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 QueryFlow 的主服务器，持有管线与 HTTP 监听。
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	pipeline   *pipeline.Pipeline
	kbStore    *kb.Store
	registry   *prometheus.Registry
	rdb        *redis.Client
	httpServer *http.Server
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 组装管线并启动 HTTP 服务（非阻塞）。
func (s *Server) Start() error {
	s.registry = prometheus.NewRegistry()

	provider := s.buildProvider()
	s.buildKB()

	webClient := websearch.NewClient(websearch.Config{
		APIKey:        s.cfg.WebSearch.APIKey,
		BaseURL:       s.cfg.WebSearch.BaseURL,
		Timeout:       s.cfg.WebSearch.Timeout,
		RatePerSecond: s.cfg.WebSearch.RatePerSecond,
		Burst:         s.cfg.WebSearch.Burst,
	}, s.logger)

	domainClients := map[pipeline.Domain]pipeline.DomainClient{
		pipeline.DomainFinance: finance.NewClient(finance.Config{
			ExchangeRateURL: s.cfg.Finance.ExchangeRateURL,
			CoinGeckoURL:    s.cfg.Finance.CoinGeckoURL,
			YahooQuoteURL:   s.cfg.Finance.YahooQuoteURL,
			Timeout:         s.cfg.Finance.Timeout,
		}, s.logger),
		pipeline.DomainWeather: weather.NewClient(weather.Config{
			APIKey:     s.cfg.Weather.APIKey,
			BaseURL:    s.cfg.Weather.BaseURL,
			AQHIURL:    s.cfg.Weather.AQHIURL,
			HKOBaseURL: s.cfg.Weather.HKOBaseURL,
			Timeout:    s.cfg.Weather.Timeout,
		}, s.logger),
		pipeline.DomainTransportation: transport.NewClient(webClient, s.logger),
	}

	geo := pipeline.NewGeolocator(s.cfg.Pipeline.GeoEndpoint, s.logger)
	classifier := pipeline.NewClassifier(provider, geo, s.logger)
	metrics := pipeline.NewMetrics(s.registry)

	retrieverConfig := pipeline.DefaultRetrieverConfig()
	retrieverConfig.TopK = s.cfg.Pipeline.TopK
	retrieverConfig.MinSimilarity = s.cfg.Pipeline.MinSimilarity
	retrieverConfig.MaxWebResults = s.cfg.Pipeline.MaxWebResults
	retrieverConfig.WebResultScore = s.cfg.Pipeline.WebResultScore
	retrieverConfig.BackendTimeout = s.cfg.Pipeline.BackendTimeout
	retriever := pipeline.NewRetriever(
		&kbSearcher{store: s.kbStore},
		webClient,
		domainClients,
		provider,
		retrieverConfig,
		metrics,
		s.logger,
	)

	rerankConfig := pipeline.DefaultRerankConfig()
	rerankConfig.OriginalWeight = s.cfg.Pipeline.OriginalWeight
	rerankConfig.BM25Weight = s.cfg.Pipeline.BM25Weight
	reranker := pipeline.NewReranker(rerankConfig, s.logger)

	synthesizer := pipeline.NewSynthesizer(provider, s.logger)

	s.pipeline = pipeline.New(classifier, retriever, reranker, synthesizer, metrics, s.logger)

	return s.startHTTPServer()
}

// buildProvider 构造 HKGAI Provider，配置了 Redis 时套响应缓存。
func (s *Server) buildProvider() llm.Provider {
	var provider llm.Provider = hkgai.New(hkgai.Config{
		BaseURL: s.cfg.HKGAI.BaseURL,
		APIKey:  s.cfg.HKGAI.APIKey,
		Model:   s.cfg.HKGAI.Model,
		Timeout: s.cfg.HKGAI.Timeout,
	}, s.logger)

	if s.cfg.Redis.Addr != "" && s.cfg.HKGAI.CacheTTL > 0 {
		s.rdb = redis.NewClient(&redis.Options{
			Addr:     s.cfg.Redis.Addr,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
			PoolSize: s.cfg.Redis.PoolSize,
		})
		provider = llm.NewCachingProvider(provider, s.rdb, llm.CacheConfig{
			TTL:     s.cfg.HKGAI.CacheTTL,
			Enabled: true,
		}, s.logger)
		s.logger.Info("LLM response cache enabled",
			zap.String("redis_addr", s.cfg.Redis.Addr),
			zap.Duration("ttl", s.cfg.HKGAI.CacheTTL))
	}

	return provider
}

// buildKB 加载本地知识库；数据缺失时得到一个不可用但安全的 Store。
func (s *Server) buildKB() {
	embeddingBaseURL := s.cfg.KB.EmbeddingBaseURL
	if embeddingBaseURL == "" {
		embeddingBaseURL = s.cfg.HKGAI.BaseURL
	}
	embeddingAPIKey := s.cfg.KB.EmbeddingAPIKey
	if embeddingAPIKey == "" {
		embeddingAPIKey = s.cfg.HKGAI.APIKey
	}

	encoder := kb.NewHTTPEncoder(kb.HTTPEncoderConfig{
		BaseURL: embeddingBaseURL,
		APIKey:  embeddingAPIKey,
		Model:   s.cfg.KB.EmbeddingModel,
	})
	s.kbStore = kb.Load(s.cfg.KB.DataDir, encoder, s.logger)
}

// kbSearcher 把 kb.Store 适配为 pipeline.KBSearcher。
// kb 包不依赖 pipeline，转换发生在装配层。
type kbSearcher struct {
	store *kb.Store
}

func (a *kbSearcher) Search(ctx context.Context, query string, topK int) ([]pipeline.KBHit, error) {
	hits, err := a.store.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	out := make([]pipeline.KBHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, pipeline.KBHit{Content: h.Content, Score: h.Score})
	}
	return out, nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

type answerRequest struct {
	Query string `json:"query"`
}

type answerResponse struct {
	Answer string `json:"answer"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// startHTTPServer 注册路由并开始监听。
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/answer", s.handleAnswer)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// handleAnswer 处理 POST /v1/answer。
// 管线本身从不失败，这里只需要校验请求形状。
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
		return
	}

	answer := s.pipeline.Answer(r.Context(), req.Query)
	writeJSON(w, http.StatusOK, answerResponse{Answer: answer})
}

// handleHealthz 存活检查。
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      Version,
		"kb_available": s.kbStore.Available(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.logger.Error("Redis close error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
