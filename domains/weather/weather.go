// Package weather 对接 OpenWeatherMap 天气数据，
// 香港地区额外整合环保署 AQHI 与天文台九天预报、热带气旋路径。
package weather

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/pipeline"
)

// Config 天气客户端配置。
type Config struct {
	APIKey      string        `json:"api_key" yaml:"api_key"`
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	AQHIURL     string        `json:"aqhi_url" yaml:"aqhi_url"`
	HKOBaseURL  string        `json:"hko_base_url" yaml:"hko_base_url"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	ForecastCnt int           `json:"forecast_cnt" yaml:"forecast_cnt"`
}

// DefaultConfig 返回默认天气数据源端点。
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.openweathermap.org/data/2.5",
		AQHIURL:     "https://www.aqhi.gov.hk/epd/ddata/html/out/aqhi_D_e.xml",
		HKOBaseURL:  "https://data.weather.gov.hk/weatherAPI/opendata/weather.php",
		Timeout:     10 * time.Second,
		ForecastCnt: 40, // 每天 8 个数据点，免费层最多 5 天
	}
}

// Client 实现 pipeline.DomainClient。
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewClient 创建天气领域客户端。
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.AQHIURL == "" {
		cfg.AQHIURL = def.AQHIURL
	}
	if cfg.HKOBaseURL == "" {
		cfg.HKOBaseURL = def.HKOBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ForecastCnt == 0 {
		cfg.ForecastCnt = def.ForecastCnt
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "weather")),
	}
}

// 香港地标（中英文）归一化到 "Hong Kong"。
var hkLandmarks = []string{
	"香港", "Hong Kong", "中環", "Central", "尖沙咀", "Tsim Sha Tsui",
	"銅鑼灣", "Causeway Bay", "旺角", "Mong Kok", "灣仔", "Wan Chai",
}

// extractCities 把位置实体归一化为城市名。
func extractCities(locations []string) []string {
	var cities []string
	hasHK := false
	for _, entity := range locations {
		isHK := false
		for _, landmark := range hkLandmarks {
			if strings.Contains(entity, landmark) {
				isHK = true
				break
			}
		}
		if isHK {
			if !hasHK {
				cities = append(cities, "Hong Kong")
				hasHK = true
			}
			continue
		}
		if len(entity) > 2 {
			cities = append(cities, entity)
		}
	}
	return cities
}

// Fetch 为每个位置实体获取完整天气数据，单个城市失败不影响其余城市。
func (c *Client) Fetch(ctx context.Context, query string, entities pipeline.Entities) pipeline.DomainPayload {
	if c.cfg.APIKey == "" {
		c.logger.Warn("天气接口未配置 API Key")
		return pipeline.ErrorPayload(pipeline.DomainWeather, "Missing API key")
	}

	cities := extractCities(entities.Locations)
	results := make([]map[string]any, 0, len(cities))
	hasHK := false

	for _, city := range cities {
		result, err := c.fetchCity(ctx, city)
		if err != nil {
			c.logger.Error("城市天气获取失败", zap.String("city", city), zap.Error(err))
			results = append(results, map[string]any{"city": city, "error": err.Error()})
			continue
		}
		if strings.Contains(city, "Hong Kong") {
			hasHK = true
		}
		results = append(results, result)
	}

	return pipeline.DomainPayload{
		"domain":    string(pipeline.DomainWeather),
		"locations": results,
		"source":    "openweathermap",
		"multiple":  len(results) > 1,
		"features": map[string]any{
			"current_weather":           true,
			"air_quality":               true,
			"forecast_days":             5,
			"hko_forecast":              hasHK,
			"tropical_cyclone_tracking": hasHK,
		},
	}
}

type owmCurrentResponse struct {
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
		Pressure  int     `json:"pressure"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Visibility int `json:"visibility"`
	Clouds     struct {
		All int `json:"all"`
	} `json:"clouds"`
}

// fetchCity 获取单个城市的当前天气、空气质量与预报。
func (c *Client) fetchCity(ctx context.Context, city string) (map[string]any, error) {
	endpoint := fmt.Sprintf("%s/weather?q=%s&appid=%s&units=metric",
		c.cfg.BaseURL, url.QueryEscape(city), url.QueryEscape(c.cfg.APIKey))

	var current owmCurrentResponse
	if err := c.getJSON(ctx, endpoint, &current); err != nil {
		return nil, fmt.Errorf("weather API failed: %w", err)
	}

	conditions := ""
	if len(current.Weather) > 0 {
		conditions = current.Weather[0].Description
	}

	result := map[string]any{
		"city": city,
		"coordinates": map[string]any{
			"lat": current.Coord.Lat,
			"lon": current.Coord.Lon,
		},
		"current": map[string]any{
			"temperature": current.Main.Temp,
			"feels_like":  current.Main.FeelsLike,
			"humidity":    current.Main.Humidity,
			"pressure":    current.Main.Pressure,
			"conditions":  conditions,
			"wind_speed":  current.Wind.Speed,
			"visibility":  current.Visibility,
			"clouds":      current.Clouds.All,
		},
	}

	if aq := c.airQuality(ctx, current.Coord.Lat, current.Coord.Lon, city); len(aq) > 0 {
		result["air_quality"] = aq
	}

	if strings.Contains(city, "Hong Kong") {
		if hko := c.hkoForecast(ctx); hko != nil {
			result["hko_forecast"] = hko
		}
		if tc := c.tropicalCyclone(ctx); tc != nil {
			result["tropical_cyclone"] = tc
		}
	}

	if forecast := c.forecast(ctx, current.Coord.Lat, current.Coord.Lon); len(forecast) > 0 {
		result["forecast"] = forecast
	}

	c.logger.Info("城市天气获取成功",
		zap.String("city", city),
		zap.Float64("temperature", current.Main.Temp),
		zap.String("conditions", conditions))
	return result, nil
}

type owmAirResponse struct {
	List []struct {
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
		Components map[string]float64 `json:"components"`
	} `json:"list"`
}

var aqiLabels = map[int]string{1: "Good", 2: "Fair", 3: "Moderate", 4: "Poor", 5: "Very Poor"}

// airQuality 合并 OpenWeather AQI 与（香港时）环保署 AQHI。
// 两个来源都失败时返回空 map，上层不附加该字段。
func (c *Client) airQuality(ctx context.Context, lat, lon float64, city string) map[string]any {
	aq := map[string]any{}

	endpoint := fmt.Sprintf("%s/air_pollution?lat=%g&lon=%g&appid=%s",
		c.cfg.BaseURL, lat, lon, url.QueryEscape(c.cfg.APIKey))
	var out owmAirResponse
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		c.logger.Error("空气质量接口调用失败", zap.Error(err))
	} else if len(out.List) > 0 {
		entry := out.List[0]
		label, ok := aqiLabels[entry.Main.AQI]
		if !ok {
			label = "Unknown"
		}
		aq["aqi"] = entry.Main.AQI
		aq["aqi_label"] = label
		for _, k := range []string{"pm2_5", "pm10", "no2", "o3", "co", "so2"} {
			if v, ok := entry.Components[k]; ok {
				aq[k] = v
			}
		}
	}

	if strings.Contains(city, "Hong Kong") {
		if aqhi := c.hkAQHI(ctx); aqhi != nil {
			aq["aqhi"] = aqhi
		}
	}

	return aq
}

type aqhiDocument struct {
	Regions []struct {
		RegionName string `xml:"RegionName"`
		AQHI       string `xml:"AQHI"`
		HealthRisk string `xml:"HealthRisk"`
	} `xml:"RegionalAQHI"`
}

// hkAQHI 解析环保署 AQHI XML，取综合（General）指数。
func (c *Client) hkAQHI(ctx context.Context) map[string]any {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.AQHIURL, nil)
	if err != nil {
		return nil
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("AQHI 获取失败", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	var doc aqhiDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		c.logger.Debug("AQHI XML 解析失败", zap.Error(err))
		return nil
	}

	regional := map[string]any{}
	var general map[string]any
	for _, region := range doc.Regions {
		if region.RegionName == "" || region.AQHI == "" {
			continue
		}
		var aqhi any = region.AQHI
		if n, err := strconv.Atoi(region.AQHI); err == nil {
			aqhi = n
		}
		entry := map[string]any{
			"aqhi":        aqhi,
			"health_risk": region.HealthRisk,
		}
		regional[region.RegionName] = entry
		if region.RegionName == "General" {
			general = entry
		}
	}
	if general == nil {
		return nil
	}

	return map[string]any{
		"source":        "Hong Kong EPD",
		"aqhi":          general["aqhi"],
		"health_risk":   general["health_risk"],
		"regional_data": regional,
		"scale":         "1-10+ (Low: 1-3, Moderate: 4-6, High: 7, Very High: 8-10, Serious: 10+)",
	}
}

type hkoForecastResponse struct {
	GeneralSituation string `json:"generalSituation"`
	WeatherForecast  []struct {
		ForecastDate    string `json:"forecastDate"`
		Week            string `json:"week"`
		ForecastMaxtemp struct {
			Value float64 `json:"value"`
		} `json:"forecastMaxtemp"`
		ForecastMintemp struct {
			Value float64 `json:"value"`
		} `json:"forecastMintemp"`
		ForecastMaxrh struct {
			Value float64 `json:"value"`
		} `json:"forecastMaxrh"`
		ForecastMinrh struct {
			Value float64 `json:"value"`
		} `json:"forecastMinrh"`
		ForecastWeather string `json:"forecastWeather"`
		ForecastWind    string `json:"forecastWind"`
		ForecastIcon    int    `json:"ForecastIcon"`
	} `json:"weatherForecast"`
	UpdateTime string `json:"updateTime"`
}

// hkoForecast 获取天文台九天天气预报。
func (c *Client) hkoForecast(ctx context.Context) map[string]any {
	endpoint := c.cfg.HKOBaseURL + "?dataType=fnd&lang=en"
	var out hkoForecastResponse
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		c.logger.Debug("HKO 九天预报获取失败", zap.Error(err))
		return nil
	}

	periods := make([]map[string]any, 0, 9)
	for i, p := range out.WeatherForecast {
		if i >= 9 {
			break
		}
		periods = append(periods, map[string]any{
			"date":     p.ForecastDate,
			"week":     p.Week,
			"max_temp": p.ForecastMaxtemp.Value,
			"min_temp": p.ForecastMintemp.Value,
			"max_rh":   p.ForecastMaxrh.Value,
			"min_rh":   p.ForecastMinrh.Value,
			"weather":  p.ForecastWeather,
			"wind":     p.ForecastWind,
			"icon":     p.ForecastIcon,
		})
	}

	return map[string]any{
		"source":            "Hong Kong Observatory",
		"general_situation": out.GeneralSituation,
		"forecast_periods":  periods,
		"update_time":       out.UpdateTime,
	}
}

type hkoCycloneResponse struct {
	TropicalCycloneInfo []struct {
		Name             string `json:"nameOfTropicalCyclone"`
		NameChinese      string `json:"tropicalCycloneNameChinese"`
		Category         string `json:"tropicalCycloneCategory"`
		Intensity        string `json:"intensity"`
		Position         string `json:"position"`
		Movement         string `json:"movement"`
		MaxSustainedWind string `json:"maxSustainedWind"`
		TCWarningSignal  string `json:"tcWarningSignal"`
		UpdateTime       string `json:"updateTime"`
		ForecastTrack    []struct {
			ForecastTime string  `json:"forecastTime"`
			Latitude     float64 `json:"latitude"`
			Longitude    float64 `json:"longitude"`
			MaxWind      string  `json:"maxWind"`
		} `json:"forecastTrack"`
	} `json:"tropicalCycloneInfo"`
	UpdateTime string `json:"updateTime"`
}

// tropicalCyclone 获取天文台热带气旋警告与预测路径。
func (c *Client) tropicalCyclone(ctx context.Context) map[string]any {
	endpoint := c.cfg.HKOBaseURL + "?dataType=wtc&lang=en"
	var out hkoCycloneResponse
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		c.logger.Debug("热带气旋信息获取失败", zap.Error(err))
		return nil
	}

	if len(out.TropicalCycloneInfo) == 0 {
		return map[string]any{
			"source":          "Hong Kong Observatory",
			"active_cyclones": 0,
			"message":         "No active tropical cyclone at the moment",
		}
	}

	cyclones := make([]map[string]any, 0, len(out.TropicalCycloneInfo))
	for _, tc := range out.TropicalCycloneInfo {
		cyclone := map[string]any{
			"name":           tc.Name,
			"name_chinese":   tc.NameChinese,
			"category":       tc.Category,
			"intensity":      tc.Intensity,
			"position":       tc.Position,
			"movement":       tc.Movement,
			"max_wind":       tc.MaxSustainedWind,
			"warning_signal": tc.TCWarningSignal,
			"update_time":    tc.UpdateTime,
		}
		if len(tc.ForecastTrack) > 0 {
			positions := make([]map[string]any, 0, len(tc.ForecastTrack))
			for _, pos := range tc.ForecastTrack {
				positions = append(positions, map[string]any{
					"time":      pos.ForecastTime,
					"latitude":  pos.Latitude,
					"longitude": pos.Longitude,
					"max_wind":  pos.MaxWind,
				})
			}
			cyclone["forecast_positions"] = positions
		}
		cyclones = append(cyclones, cyclone)
	}

	return map[string]any{
		"source":          "Hong Kong Observatory",
		"active_cyclones": len(cyclones),
		"cyclones":        cyclones,
		"update_time":     out.UpdateTime,
	}
}

type owmForecastResponse struct {
	List []struct {
		DtTxt string `json:"dt_txt"`
		Main  struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  int     `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Pop float64 `json:"pop"`
	} `json:"list"`
}

// forecast 获取 5 天逐 3 小时预报（免费层替代 One Call API）。
func (c *Client) forecast(ctx context.Context, lat, lon float64) []map[string]any {
	endpoint := fmt.Sprintf("%s/forecast?lat=%g&lon=%g&appid=%s&units=metric&cnt=%d",
		c.cfg.BaseURL, lat, lon, url.QueryEscape(c.cfg.APIKey), c.cfg.ForecastCnt)
	var out owmForecastResponse
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		c.logger.Error("天气预报接口调用失败", zap.Error(err))
		return nil
	}

	points := make([]map[string]any, 0, len(out.List))
	for _, item := range out.List {
		conditions := ""
		if len(item.Weather) > 0 {
			conditions = item.Weather[0].Description
		}
		points = append(points, map[string]any{
			"date":             item.DtTxt,
			"temperature":      item.Main.Temp,
			"feels_like":       item.Main.FeelsLike,
			"humidity":         item.Main.Humidity,
			"conditions":       conditions,
			"wind_speed":       item.Wind.Speed,
			"rain_probability": item.Pop * 100,
		})
	}
	return points
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
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
