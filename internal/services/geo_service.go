package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"s2s-tracker/internal/logger"
	"s2s-tracker/internal/metrics"
	"s2s-tracker/pkg/common"
)

// GeoRecord is the normalized result of an IP lookup.
type GeoRecord struct {
	Country  string `json:"country"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Timezone string `json:"timezone"`
	ISP      string `json:"isp"`
}

// FallbackGeoRecord is used whenever a lookup cannot produce an answer.
func FallbackGeoRecord() GeoRecord {
	return GeoRecord{
		Country:  unknownValue,
		City:     unknownValue,
		Region:   unknownValue,
		Timezone: "UTC",
		ISP:      unknownValue,
	}
}

// ClientInfo is the enrichment attached to a conversion.
type ClientInfo struct {
	GeoRecord
	DeviceInfo
}

// GeoLookup resolves one IP address through an external service.
type GeoLookup interface {
	Lookup(ctx context.Context, ip string) (GeoRecord, error)
}

// IPAPIClient queries ipapi.co style endpoints: GET {BaseURL}/{ip}/json/.
type IPAPIClient struct {
	BaseURL string
	Client  *http.Client
}

func NewIPAPIClient(baseURL string, timeout time.Duration) *IPAPIClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &IPAPIClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

type ipapiResponse struct {
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
	Country     string `json:"country"`
	CountryName string `json:"country_name"`
	City        string `json:"city"`
	Region      string `json:"region"`
	Timezone    string `json:"timezone"`
	Org         string `json:"org"`
}

func (c *IPAPIClient) Lookup(ctx context.Context, ip string) (GeoRecord, error) {
	var res ipapiResponse
	url := fmt.Sprintf("%s/%s/json/", c.BaseURL, ip)
	if err := common.GetJSON(ctx, c.Client, url, map[string]string{"User-Agent": "S2S-Tracker/1.0"}, &res); err != nil {
		return GeoRecord{}, err
	}
	if res.Error {
		return GeoRecord{}, fmt.Errorf("geolocation lookup rejected: %s", res.Reason)
	}

	country := res.Country
	if country == "" {
		country = res.CountryName
	}

	fallback := FallbackGeoRecord()
	return GeoRecord{
		Country:  orDefault(country, fallback.Country),
		City:     orDefault(res.City, fallback.City),
		Region:   orDefault(res.Region, fallback.Region),
		Timezone: orDefault(res.Timezone, fallback.Timezone),
		ISP:      orDefault(res.Org, fallback.ISP),
	}, nil
}

type GeoService struct {
	Lookup   GeoLookup
	Cache    *redis.Client
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
}

// NewGeoService wires a lookup with an optional Redis cache (nil disables caching).
func NewGeoService(lookup GeoLookup, cache *redis.Client, cacheTTL time.Duration, m *metrics.Metrics) *GeoService {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &GeoService{Lookup: lookup, Cache: cache, CacheTTL: cacheTTL, Metrics: m}
}

// Resolve enriches a request with location and device data. It never fails: any lookup
// problem yields FallbackGeoRecord.
func (s *GeoService) Resolve(ctx context.Context, ip, userAgent string) ClientInfo {
	return ClientInfo{
		GeoRecord:  s.Locate(ctx, ip),
		DeviceInfo: GetDeviceInfo(userAgent),
	}
}

func (s *GeoService) Locate(ctx context.Context, ip string) GeoRecord {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || !common.IsPublicIP(parsed) || s.Lookup == nil {
		s.Metrics.GeoLookups.WithLabelValues("fallback").Inc()
		return FallbackGeoRecord()
	}
	key := "geo:" + parsed.String()

	if rec, ok := s.cached(ctx, key); ok {
		s.Metrics.GeoLookups.WithLabelValues("cache").Inc()
		return rec
	}

	rec, err := s.Lookup.Lookup(ctx, parsed.String())
	if err != nil {
		logger.FromContext(ctx).Warn("Geolocation lookup failed, using fallback",
			zap.String("ip", parsed.String()),
			zap.Error(err),
		)
		s.Metrics.GeoLookups.WithLabelValues("fallback").Inc()
		return FallbackGeoRecord()
	}

	s.Metrics.GeoLookups.WithLabelValues("api").Inc()
	s.store(ctx, key, rec)
	return rec
}

func (s *GeoService) cached(ctx context.Context, key string) (GeoRecord, bool) {
	if s.Cache == nil {
		return GeoRecord{}, false
	}
	raw, err := s.Cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.FromContext(ctx).Debug("Geo cache read failed", zap.Error(err))
		}
		return GeoRecord{}, false
	}
	var rec GeoRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return GeoRecord{}, false
	}
	return rec, true
}

func (s *GeoService) store(ctx context.Context, key string, rec GeoRecord) {
	if s.Cache == nil {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.Cache.Set(ctx, key, raw, s.CacheTTL).Err(); err != nil {
		logger.FromContext(ctx).Debug("Geo cache write failed", zap.Error(err))
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
