package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// 定位失败时的默认位置（香港）
const (
	defaultLocation  = "Hong Kong"
	defaultCountry   = "Hong Kong"
	defaultTimezone  = "Asia/Hong_Kong"
	defaultLatitude  = 22.3193
	defaultLongitude = 114.1694
)

// Geolocator 通过 IP 归属推断用户位置。
// 任何失败都静默回退到默认位置，从不上抛。
type Geolocator struct {
	endpoint string
	client   *http.Client
	now      func() time.Time
	logger   *zap.Logger
}

// NewGeolocator 创建 IP 定位器。endpoint 为空时使用 ip-api.com。
func NewGeolocator(endpoint string, logger *zap.Logger) *Geolocator {
	if endpoint == "" {
		endpoint = "http://ip-api.com/json/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Geolocator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 2 * time.Second},
		now:      time.Now,
		logger:   logger.With(zap.String("component", "geolocator")),
	}
}

type ipAPIResponse struct {
	Status   string  `json:"status"`
	City     string  `json:"city"`
	Country  string  `json:"country"`
	Timezone string  `json:"timezone"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// Resolve 返回当前时间与尽力而为的位置信息。
func (g *Geolocator) Resolve(ctx context.Context) UserContext {
	uc := UserContext{
		CurrentTime: g.now().Format("2006-01-02 15:04:05"),
		Location:    defaultLocation,
		Country:     defaultCountry,
		Timezone:    defaultTimezone,
		Latitude:    defaultLatitude,
		Longitude:   defaultLongitude,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint, nil)
	if err != nil {
		return uc
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Debug("ip geolocation unavailable, using default", zap.Error(err))
		return uc
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return uc
	}

	var data ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil || data.Status != "success" {
		return uc
	}

	if data.City != "" {
		uc.Location = data.City
	}
	if data.Country != "" {
		uc.Country = data.Country
	}
	if data.Timezone != "" {
		uc.Timezone = data.Timezone
	}
	if data.Lat != 0 {
		uc.Latitude = data.Lat
	}
	if data.Lon != 0 {
		uc.Longitude = data.Lon
	}

	g.logger.Debug("resolved user location",
		zap.String("location", uc.Location),
		zap.String("country", uc.Country))

	return uc
}
