// Package finance 对接金融行情数据源：
// 外汇（exchangerate.host）、加密货币（CoinGecko）、
// 股票与商品期货（Yahoo 行情接口，=F 后缀视为商品）。
package finance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/pipeline"
)

// Config 金融客户端配置。
type Config struct {
	ExchangeRateURL string        `json:"exchange_rate_url" yaml:"exchange_rate_url"`
	CoinGeckoURL    string        `json:"coingecko_url" yaml:"coingecko_url"`
	YahooQuoteURL   string        `json:"yahoo_quote_url" yaml:"yahoo_quote_url"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig 返回默认金融数据源端点。
func DefaultConfig() Config {
	return Config{
		ExchangeRateURL: "https://api.exchangerate.host/latest",
		CoinGeckoURL:    "https://api.coingecko.com/api/v3/simple/price",
		YahooQuoteURL:   "https://query1.finance.yahoo.com/v7/finance/quote",
		Timeout:         5 * time.Second,
	}
}

// Client 实现 pipeline.DomainClient。
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewClient 创建金融领域客户端。
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.ExchangeRateURL == "" {
		cfg.ExchangeRateURL = def.ExchangeRateURL
	}
	if cfg.CoinGeckoURL == "" {
		cfg.CoinGeckoURL = def.CoinGeckoURL
	}
	if cfg.YahooQuoteURL == "" {
		cfg.YahooQuoteURL = def.YahooQuoteURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "finance")),
	}
}

// 常见加密货币别名 → CoinGecko ID。
var coinAliases = map[string]string{
	"bitcoin":  "bitcoin",
	"btc":      "bitcoin",
	"比特币":      "bitcoin",
	"比特幣":      "bitcoin",
	"ethereum": "ethereum",
	"eth":      "ethereum",
	"以太坊":      "ethereum",
	"solana":   "solana",
	"sol":      "solana",
	"dogecoin": "dogecoin",
	"doge":     "dogecoin",
	"ripple":   "ripple",
	"xrp":      "ripple",
}

// Fetch 按实体依次尝试外汇 → 加密货币 → 股票/商品，
// 第一个命中的子查询即为最终负载。
func (c *Client) Fetch(ctx context.Context, query string, entities pipeline.Entities) pipeline.DomainPayload {
	if payload := c.fetchFX(ctx, entities); payload != nil {
		return payload
	}
	if payload := c.fetchCrypto(ctx, entities); payload != nil {
		return payload
	}
	if payload := c.fetchQuotes(ctx, entities); payload != nil {
		return payload
	}
	return pipeline.ErrorPayload(pipeline.DomainFinance, "no recognizable finance query detected")
}

type fxResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// errNoRate 标记接口可达但没有目标货币对的汇率。
var errNoRate = errors.New("no exchange rate for pair")

// fetchFX 处理外汇换算。无货币实体、或接口没有该货币对时
// 不命中（返回 nil 让加密货币/股票分支继续尝试）。
func (c *Client) fetchFX(ctx context.Context, entities pipeline.Entities) pipeline.DomainPayload {
	if len(entities.Currencies) == 0 {
		return nil
	}

	base := strings.ToUpper(entities.Currencies[0])
	target := "HKD"
	if len(entities.Currencies) >= 2 {
		target = strings.ToUpper(entities.Currencies[1])
	} else if base == "HKD" {
		target = "USD"
	}

	amount := 1.0
	if len(entities.Amounts) > 0 {
		amount = entities.Amounts[0]
	}

	rate, err := c.exchangeRate(ctx, base, target)
	if errors.Is(err, errNoRate) {
		c.logger.Warn("无该货币对汇率，继续尝试其它金融分支",
			zap.String("base", base), zap.String("target", target))
		return nil
	}
	if err != nil {
		c.logger.Error("外汇接口调用失败", zap.Error(err))
		return pipeline.ErrorPayload(pipeline.DomainFinance, fmt.Sprintf("FX API failed: %v", err))
	}

	return pipeline.DomainPayload{
		"topic":            "finance",
		"type":             "fx",
		"base":             base,
		"target":           target,
		"rate":             rate,
		"amount":           amount,
		"converted_amount": round2(amount * rate),
	}
}

func (c *Client) exchangeRate(ctx context.Context, base, target string) (float64, error) {
	endpoint := fmt.Sprintf("%s?base=%s&symbols=%s", c.cfg.ExchangeRateURL, url.QueryEscape(base), url.QueryEscape(target))
	var out fxResponse
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return 0, err
	}
	rate, ok := out.Rates[target]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", errNoRate, base, target)
	}
	return rate, nil
}

// fetchCrypto 处理加密货币报价，从 Products/General 里识别币种别名。
func (c *Client) fetchCrypto(ctx context.Context, entities pipeline.Entities) pipeline.DomainPayload {
	coinID := ""
	for _, candidates := range [][]string{entities.Products, entities.General} {
		for _, term := range candidates {
			if id, ok := coinAliases[strings.ToLower(strings.TrimSpace(term))]; ok {
				coinID = id
				break
			}
		}
		if coinID != "" {
			break
		}
	}
	if coinID == "" {
		return nil
	}

	endpoint := fmt.Sprintf("%s?ids=%s&vs_currencies=hkd,usd", c.cfg.CoinGeckoURL, url.QueryEscape(coinID))
	var out map[string]map[string]float64
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		c.logger.Error("加密货币接口调用失败", zap.Error(err))
		return pipeline.ErrorPayload(pipeline.DomainFinance, "CRYPTO_API_FAILED")
	}
	prices, ok := out[coinID]
	if !ok {
		return pipeline.ErrorPayload(pipeline.DomainFinance, "CRYPTO_API_FAILED")
	}

	return pipeline.DomainPayload{
		"topic":     "finance",
		"type":      "crypto",
		"coin":      coinID,
		"price_hkd": prices["hkd"],
		"price_usd": prices["usd"],
	}
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []yahooQuote `json:"result"`
	} `json:"quoteResponse"`
}

type yahooQuote struct {
	Symbol                     string  `json:"symbol"`
	LongName                   string  `json:"longName"`
	ShortName                  string  `json:"shortName"`
	RegularMarketPrice         float64 `json:"regularMarketPrice"`
	RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
	Currency                   string  `json:"currency"`
	FullExchangeName           string  `json:"fullExchangeName"`
	MarketState                string  `json:"marketState"`
	RegularMarketVolume        int64   `json:"regularMarketVolume"`
	MarketCap                  int64   `json:"marketCap"`
}

// fetchQuotes 处理股票与商品期货报价。
// =F 后缀的连续合约按商品处理并附加 USD→HKD 换算。
func (c *Client) fetchQuotes(ctx context.Context, entities pipeline.Entities) pipeline.DomainPayload {
	if len(entities.StockSymbols) == 0 {
		return nil
	}

	quotes := make(map[string]*yahooQuote)
	symbols := make([]string, 0, len(entities.StockSymbols))
	for _, s := range entities.StockSymbols {
		s = strings.TrimSpace(s)
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		return nil
	}

	endpoint := fmt.Sprintf("%s?symbols=%s", c.cfg.YahooQuoteURL, url.QueryEscape(strings.Join(symbols, ",")))
	var out yahooQuoteResponse
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		c.logger.Error("行情接口调用失败", zap.Error(err))
		return pipeline.ErrorPayload(pipeline.DomainFinance, "FINANCE_API_FAILED")
	}
	for i := range out.QuoteResponse.Result {
		q := &out.QuoteResponse.Result[i]
		quotes[q.Symbol] = q
	}

	var stocks, commodities, errs []map[string]any
	for _, symbol := range symbols {
		isCommodity := strings.HasSuffix(symbol, "=F")
		kind := "stock"
		if isCommodity {
			kind = "commodity"
		}

		q, ok := quotes[symbol]
		if !ok || q.RegularMarketPrice == 0 {
			errs = append(errs, map[string]any{
				"symbol": symbol,
				"type":   kind,
				"error":  "Failed to fetch data",
			})
			continue
		}

		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		if name == "" {
			name = symbol
		}

		info := map[string]any{
			"symbol":         symbol,
			"type":           kind,
			"name":           name,
			"current_price":  q.RegularMarketPrice,
			"previous_close": q.RegularMarketPreviousClose,
			"currency":       q.Currency,
			"exchange":       q.FullExchangeName,
			"market_state":   q.MarketState,
		}
		if !isCommodity {
			info["volume"] = q.RegularMarketVolume
			info["market_cap"] = q.MarketCap
		}
		if q.RegularMarketPreviousClose != 0 {
			change := round2(q.RegularMarketPrice - q.RegularMarketPreviousClose)
			info["change"] = change
			info["change_percent"] = round2(change / q.RegularMarketPreviousClose * 100)
		}

		if isCommodity {
			// 商品期货以美元计价，附加港币换算；汇率取不到时按 7.8 兜底。
			usdToHKD, err := c.exchangeRate(ctx, "USD", "HKD")
			if err != nil {
				c.logger.Warn("商品港币换算失败，使用兜底汇率", zap.Error(err))
				usdToHKD = 7.8
			}
			info["price_hkd"] = round2(q.RegularMarketPrice * usdToHKD)
			if q.RegularMarketPreviousClose != 0 {
				info["previous_close_hkd"] = round2(q.RegularMarketPreviousClose * usdToHKD)
			}
		}

		if isCommodity {
			commodities = append(commodities, info)
		} else {
			stocks = append(stocks, info)
		}
		c.logger.Info("行情获取成功",
			zap.String("symbol", symbol),
			zap.String("type", kind),
			zap.Float64("price", q.RegularMarketPrice))
	}

	if len(stocks) == 0 && len(commodities) == 0 && len(errs) == 0 {
		return pipeline.ErrorPayload(pipeline.DomainFinance, "FINANCE_API_FAILED")
	}

	payload := pipeline.DomainPayload{
		"topic": "finance",
		"count": len(stocks) + len(commodities) + len(errs),
	}
	if len(stocks) > 0 {
		payload["stocks"] = stocks
	}
	if len(commodities) > 0 {
		payload["commodities"] = commodities
	}
	if len(errs) > 0 {
		payload["errors"] = errs
	}
	switch {
	case len(stocks) > 0 && len(commodities) > 0:
		payload["type"] = "mixed"
	case len(commodities) > 0:
		payload["type"] = "commodity"
	default:
		payload["type"] = "stock"
	}
	return payload
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "queryflow/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed: status=%d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
