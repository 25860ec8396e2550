package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"s2s-tracker/internal/logger"
	"s2s-tracker/internal/metrics"
	"s2s-tracker/internal/models"
)

// Result carries one analytics widget. On failure Data holds the widget's empty value
// and Err the cause, so callers can render without branching.
type Result[T any] struct {
	Data T     `json:"data"`
	Err  error `json:"-"`
}

type DashboardStats struct {
	TotalClicks      int64   `json:"total_clicks"`
	TotalConversions int64   `json:"total_conversions"`
	ConversionRate   float64 `json:"conversion_rate"`
	TotalRevenue     float64 `json:"total_revenue"`
	TodayClicks      int64   `json:"today_clicks"`
	TodayConversions int64   `json:"today_conversions"`
	ClickGrowth      float64 `json:"click_growth"`
	ConversionGrowth float64 `json:"conversion_growth"`
}

type OfferPerformance struct {
	ID          uint    `json:"id"`
	Title       string  `json:"title"`
	Type        string  `json:"type"`
	Payout      float64 `json:"payout"`
	Status      string  `json:"status"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
	AvgPayout   float64 `json:"avg_payout"`
}

// BreakdownRow is one bucket of a grouped widget (country, device, os, browser, isp,
// traffic source).
type BreakdownRow struct {
	Label       string  `json:"label"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
}

type TrendPoint struct {
	Date        string  `json:"date"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
}

type HourBucket struct {
	Hour        int   `json:"hour"`
	Clicks      int64 `json:"clicks"`
	Conversions int64 `json:"conversions"`
}

type FunnelStep struct {
	Step       string  `json:"step"`
	Count      float64 `json:"count"`
	Percentage float64 `json:"percentage"`
}

type PerformanceMetrics struct {
	TotalClicks      int64   `json:"total_clicks"`
	TotalConversions int64   `json:"total_conversions"`
	ConversionRate   float64 `json:"conversion_rate"`
	TotalRevenue     float64 `json:"total_revenue"`
	AvgPayout        float64 `json:"avg_payout"`
	UniqueCountries  int64   `json:"unique_countries"`
	UniqueDevices    int64   `json:"unique_devices"`
	UniqueOS         int64   `json:"unique_os"`
}

type RealTimeStats struct {
	ClicksLastHour      int64 `json:"clicks_last_hour"`
	ConversionsLastHour int64 `json:"conversions_last_hour"`
	ClicksLast24h       int64 `json:"clicks_last_24h"`
	ConversionsLast24h  int64 `json:"conversions_last_24h"`
	ActiveUsers         int64 `json:"active_users"`
}

type CohortRow struct {
	CohortMonth    string  `json:"cohort_month"`
	CohortSize     int64   `json:"cohort_size"`
	TotalClicks    int64   `json:"total_clicks"`
	Conversions    int64   `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
}

type PostbackStatusRow struct {
	Status        string  `json:"status"`
	Attempts      int64   `json:"attempts"`
	AvgResponseMs float64 `json:"avg_response_ms"`
}

// AnalyticsFilter narrows DetailedAnalytics and exports. Dates are YYYY-MM-DD and inclusive.
type AnalyticsFilter struct {
	DateFrom string `form:"date_from"`
	DateTo   string `form:"date_to"`
	OfferId  uint   `form:"offer_id"`
	Country  string `form:"country"`
	Status   string `form:"status"`
	Limit    int    `form:"limit"`
}

const (
	detailedAnalyticsLimit = 1000
	dateLayout             = "2006-01-02"
)

// AnalyticsService answers read-only reporting queries over conversions and postback logs.
type AnalyticsService struct {
	DB       *gorm.DB
	Metrics  *metrics.Metrics
	Location *time.Location
	Now      func() time.Time
}

func NewAnalyticsService(db *gorm.DB, m *metrics.Metrics) *AnalyticsService {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &AnalyticsService{
		DB:       db,
		Metrics:  m,
		Location: time.UTC,
		Now:      time.Now,
	}
}

// ConversionRate is conversions/clicks as a percentage, 0 when there were no clicks.
func ConversionRate(clicks, conversions int64) float64 {
	if clicks <= 0 {
		return 0
	}
	return float64(conversions) / float64(clicks) * 100
}

func growthRate(current, previous int64) float64 {
	if previous <= 0 {
		return 0
	}
	return float64(current-previous) / float64(previous) * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s *AnalyticsService) now() time.Time {
	return s.Now().In(s.Location)
}

// getDateRange returns the inclusive bounds of the day or the day before it.
func (s *AnalyticsService) getDateRange(rangeZ string, date time.Time) (time.Time, time.Time) {
	loc := s.Location
	dayStart := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}
	dayEnd := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, loc)
	}

	switch rangeZ {
	case "yesterday":
		y := date.AddDate(0, 0, -1)
		return dayStart(y), dayEnd(y)
	default: // day
		return dayStart(date), dayEnd(date)
	}
}

func (s *AnalyticsService) conversions(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx).Model(&models.Conversion{})
}

func finish[T any](ctx context.Context, s *AnalyticsService, widget string, data T, err error, empty T) Result[T] {
	if err != nil {
		logger.FromContext(ctx).Error("Analytics query error", zap.String("widget", widget), zap.Error(err))
		s.Metrics.AnalyticsFailures.WithLabelValues(widget).Inc()
		return Result[T]{Data: empty, Err: err}
	}
	return Result[T]{Data: data}
}

func (s *AnalyticsService) countBetween(ctx context.Context, start, end time.Time, convertedOnly bool) (int64, error) {
	var n int64
	q := s.conversions(ctx).Where("created_at BETWEEN ? AND ?", start, end)
	if convertedOnly {
		q = q.Where("status = ?", models.ConversionStatusConverted)
	}
	err := q.Count(&n).Error
	return n, err
}

func (s *AnalyticsService) DashboardStats(ctx context.Context) Result[DashboardStats] {
	stats, err := s.dashboardStats(ctx)
	return finish(ctx, s, "dashboard_stats", stats, err, DashboardStats{})
}

func (s *AnalyticsService) dashboardStats(ctx context.Context) (DashboardStats, error) {
	var stats DashboardStats

	if err := s.conversions(ctx).Count(&stats.TotalClicks).Error; err != nil {
		return stats, err
	}
	if err := s.conversions(ctx).Where("status = ?", models.ConversionStatusConverted).Count(&stats.TotalConversions).Error; err != nil {
		return stats, err
	}
	if err := s.conversions(ctx).
		Select("COALESCE(SUM(payout), 0)").
		Where("status = ?", models.ConversionStatusConverted).
		Scan(&stats.TotalRevenue).Error; err != nil {
		return stats, err
	}
	stats.ConversionRate = ConversionRate(stats.TotalClicks, stats.TotalConversions)

	now := s.now()
	todayStart, todayEnd := s.getDateRange("day", now)
	yStart, yEnd := s.getDateRange("yesterday", now)

	var err error
	if stats.TodayClicks, err = s.countBetween(ctx, todayStart, todayEnd, false); err != nil {
		return stats, err
	}
	if stats.TodayConversions, err = s.countBetween(ctx, todayStart, todayEnd, true); err != nil {
		return stats, err
	}
	yesterdayClicks, err := s.countBetween(ctx, yStart, yEnd, false)
	if err != nil {
		return stats, err
	}
	yesterdayConversions, err := s.countBetween(ctx, yStart, yEnd, true)
	if err != nil {
		return stats, err
	}

	stats.ClickGrowth = growthRate(stats.TodayClicks, yesterdayClicks)
	stats.ConversionGrowth = growthRate(stats.TodayConversions, yesterdayConversions)
	return stats, nil
}

// RecentActivity returns the newest conversions with their offer attached.
func (s *AnalyticsService) RecentActivity(ctx context.Context, limit int) Result[[]models.Conversion] {
	if limit <= 0 {
		limit = 10
	}
	rows := []models.Conversion{}
	err := s.DB.WithContext(ctx).Preload("Offer").
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&rows).Error
	return finish(ctx, s, "recent_activity", rows, err, []models.Conversion{})
}

func (s *AnalyticsService) TopOffers(ctx context.Context, limit int) Result[[]OfferPerformance] {
	if limit <= 0 {
		limit = 5
	}
	rows := []OfferPerformance{}
	err := s.DB.WithContext(ctx).
		Table("offers AS o").
		Select(`o.id, o.title, o.type, o.payout, o.status,
			COUNT(c.id) AS conversions,
			COALESCE(SUM(c.payout), 0) AS revenue,
			COALESCE(AVG(c.payout), 0) AS avg_payout`).
		Joins("LEFT JOIN conversions c ON o.id = c.offer_id AND c.status = ?", models.ConversionStatusConverted).
		Group("o.id, o.title, o.type, o.payout, o.status").
		Order("conversions DESC, o.id ASC").
		Limit(limit).
		Scan(&rows).Error
	return finish(ctx, s, "top_offers", rows, err, []OfferPerformance{})
}

type conversionPoint struct {
	CreatedAt time.Time
	Status    string
	Payout    float64
	IPAddress string
	Referrer  string
}

func (s *AnalyticsService) pointsSince(ctx context.Context, since time.Time) ([]conversionPoint, error) {
	var points []conversionPoint
	err := s.conversions(ctx).
		Select("created_at, status, payout, ip_address, referrer").
		Where("created_at >= ?", since).
		Scan(&points).Error
	return points, err
}

// ConversionTrends buckets the last days by calendar day, oldest first.
func (s *AnalyticsService) ConversionTrends(ctx context.Context, days int) Result[[]TrendPoint] {
	if days <= 0 {
		days = 7
	}
	todayStart, _ := s.getDateRange("day", s.now())
	points, err := s.pointsSince(ctx, todayStart.AddDate(0, 0, -days))
	if err != nil {
		return finish(ctx, s, "conversion_trends", []TrendPoint{}, err, []TrendPoint{})
	}

	byDay := map[string]*TrendPoint{}
	for _, p := range points {
		key := p.CreatedAt.In(s.Location).Format(dateLayout)
		tp, ok := byDay[key]
		if !ok {
			tp = &TrendPoint{Date: key}
			byDay[key] = tp
		}
		tp.Clicks++
		if p.Status == models.ConversionStatusConverted {
			tp.Conversions++
			tp.Revenue += p.Payout
		}
	}

	trends := make([]TrendPoint, 0, len(byDay))
	for _, tp := range byDay {
		tp.Revenue = round2(tp.Revenue)
		trends = append(trends, *tp)
	}
	sort.Slice(trends, func(i, j int) bool { return trends[i].Date < trends[j].Date })
	return finish(ctx, s, "conversion_trends", trends, nil, []TrendPoint{})
}

// breakdown groups conversions by a fixed column. column never comes from user input.
func (s *AnalyticsService) breakdown(ctx context.Context, widget, column string, limit int) Result[[]BreakdownRow] {
	rows := []BreakdownRow{}
	q := s.conversions(ctx).
		Select(column+` AS label,
			COUNT(*) AS clicks,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS conversions,
			COALESCE(SUM(CASE WHEN status = ? THEN payout ELSE 0 END), 0) AS revenue`,
			models.ConversionStatusConverted, models.ConversionStatusConverted).
		Where(column+" IS NOT NULL AND "+column+" <> '' AND "+column+" <> ?", unknownValue).
		Group(column).
		Order("conversions DESC, clicks DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Scan(&rows).Error
	return finish(ctx, s, widget, rows, err, []BreakdownRow{})
}

func (s *AnalyticsService) GeographicData(ctx context.Context) Result[[]BreakdownRow] {
	return s.breakdown(ctx, "geographic", "country", 20)
}

func (s *AnalyticsService) DeviceAnalytics(ctx context.Context) Result[[]BreakdownRow] {
	return s.breakdown(ctx, "devices", "device", 0)
}

func (s *AnalyticsService) OSAnalytics(ctx context.Context) Result[[]BreakdownRow] {
	return s.breakdown(ctx, "os", "os", 10)
}

func (s *AnalyticsService) BrowserAnalytics(ctx context.Context) Result[[]BreakdownRow] {
	return s.breakdown(ctx, "browsers", "browser", 10)
}

func (s *AnalyticsService) NetworkAnalytics(ctx context.Context) Result[[]BreakdownRow] {
	return s.breakdown(ctx, "networks", "isp", 15)
}

var trafficSources = []struct {
	needle string
	label  string
}{
	{"google", "Google"},
	{"facebook", "Facebook"},
	{"twitter", "Twitter"},
	{"instagram", "Instagram"},
	{"youtube", "YouTube"},
}

// ClassifyReferrer names the traffic source of a referrer URL.
func ClassifyReferrer(referrer string) string {
	if strings.TrimSpace(referrer) == "" {
		return "Direct"
	}
	lower := strings.ToLower(referrer)
	for _, src := range trafficSources {
		if strings.Contains(lower, src.needle) {
			return src.label
		}
	}
	return "Other"
}

func (s *AnalyticsService) TrafficSources(ctx context.Context) Result[[]BreakdownRow] {
	var points []conversionPoint
	err := s.conversions(ctx).Select("status, payout, referrer").Scan(&points).Error
	if err != nil {
		return finish(ctx, s, "traffic_sources", []BreakdownRow{}, err, []BreakdownRow{})
	}

	bySource := map[string]*BreakdownRow{}
	for _, p := range points {
		label := ClassifyReferrer(p.Referrer)
		row, ok := bySource[label]
		if !ok {
			row = &BreakdownRow{Label: label}
			bySource[label] = row
		}
		row.Clicks++
		if p.Status == models.ConversionStatusConverted {
			row.Conversions++
			row.Revenue += p.Payout
		}
	}

	rows := make([]BreakdownRow, 0, len(bySource))
	for _, row := range bySource {
		row.Revenue = round2(row.Revenue)
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Conversions != rows[j].Conversions {
			return rows[i].Conversions > rows[j].Conversions
		}
		return rows[i].Label < rows[j].Label
	})
	return finish(ctx, s, "traffic_sources", rows, nil, []BreakdownRow{})
}

// HourlyDistribution buckets the last seven days by hour of day.
func (s *AnalyticsService) HourlyDistribution(ctx context.Context) Result[[]HourBucket] {
	todayStart, _ := s.getDateRange("day", s.now())
	points, err := s.pointsSince(ctx, todayStart.AddDate(0, 0, -7))
	if err != nil {
		return finish(ctx, s, "hourly_distribution", []HourBucket{}, err, []HourBucket{})
	}

	var hours [24]HourBucket
	var seen [24]bool
	for _, p := range points {
		h := p.CreatedAt.In(s.Location).Hour()
		seen[h] = true
		hours[h].Hour = h
		hours[h].Clicks++
		if p.Status == models.ConversionStatusConverted {
			hours[h].Conversions++
		}
	}

	buckets := []HourBucket{}
	for h := range hours {
		if seen[h] {
			buckets = append(buckets, hours[h])
		}
	}
	return finish(ctx, s, "hourly_distribution", buckets, nil, []HourBucket{})
}

type conversionTotals struct {
	Clicks      int64
	Conversions int64
	Revenue     float64
}

func (s *AnalyticsService) totals(q *gorm.DB) (conversionTotals, error) {
	var t conversionTotals
	err := q.Select(`COUNT(*) AS clicks,
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS conversions,
		COALESCE(SUM(CASE WHEN status = ? THEN payout ELSE 0 END), 0) AS revenue`,
		models.ConversionStatusConverted, models.ConversionStatusConverted).
		Scan(&t).Error
	return t, err
}

func (s *AnalyticsService) ConversionFunnel(ctx context.Context) Result[[]FunnelStep] {
	t, err := s.totals(s.conversions(ctx))
	if err != nil {
		return finish(ctx, s, "conversion_funnel", []FunnelStep{}, err, []FunnelStep{})
	}

	revenuePct := 0.0
	if t.Clicks > 0 {
		revenuePct = t.Revenue / float64(t.Clicks) * 100
	}
	steps := []FunnelStep{
		{Step: "Total Clicks", Count: float64(t.Clicks), Percentage: 100},
		{Step: "Conversions", Count: float64(t.Conversions), Percentage: round2(ConversionRate(t.Clicks, t.Conversions))},
		{Step: "Revenue Generated", Count: round2(t.Revenue), Percentage: round2(revenuePct)},
	}
	return finish(ctx, s, "conversion_funnel", steps, nil, []FunnelStep{})
}

// filteredConversions applies f to a conversions query. Bad dates are validation errors.
func (s *AnalyticsService) filteredConversions(ctx context.Context, f AnalyticsFilter) (*gorm.DB, error) {
	q := s.DB.WithContext(ctx).Model(&models.Conversion{})

	if f.DateFrom != "" {
		from, err := time.ParseInLocation(dateLayout, f.DateFrom, s.Location)
		if err != nil {
			return nil, fmt.Errorf("invalid date_from %q: %w", f.DateFrom, ErrValidation)
		}
		q = q.Where("created_at >= ?", from)
	}
	if f.DateTo != "" {
		to, err := time.ParseInLocation(dateLayout, f.DateTo, s.Location)
		if err != nil {
			return nil, fmt.Errorf("invalid date_to %q: %w", f.DateTo, ErrValidation)
		}
		q = q.Where("created_at < ?", to.AddDate(0, 0, 1))
	}
	if f.OfferId != 0 {
		q = q.Where("offer_id = ?", f.OfferId)
	}
	if f.Country != "" {
		q = q.Where("country = ?", f.Country)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	return q, nil
}

// DetailedAnalytics lists filtered conversions, newest first, capped at 1000 rows.
func (s *AnalyticsService) DetailedAnalytics(ctx context.Context, f AnalyticsFilter) Result[[]models.Conversion] {
	limit := f.Limit
	if limit <= 0 || limit > detailedAnalyticsLimit {
		limit = detailedAnalyticsLimit
	}

	q, err := s.filteredConversions(ctx, f)
	if err != nil {
		return finish(ctx, s, "detailed_analytics", []models.Conversion{}, err, []models.Conversion{})
	}

	rows := []models.Conversion{}
	err = q.Preload("Offer").Order("created_at desc, id desc").Limit(limit).Find(&rows).Error
	return finish(ctx, s, "detailed_analytics", rows, err, []models.Conversion{})
}

func (s *AnalyticsService) PerformanceMetrics(ctx context.Context, days int) Result[PerformanceMetrics] {
	if days <= 0 {
		days = 30
	}
	todayStart, _ := s.getDateRange("day", s.now())
	since := todayStart.AddDate(0, 0, -days)

	var pm PerformanceMetrics
	t, err := s.totals(s.conversions(ctx).Where("created_at >= ?", since))
	if err != nil {
		return finish(ctx, s, "performance_metrics", pm, err, PerformanceMetrics{})
	}

	var distinct struct {
		Countries int64
		Devices   int64
		OS        int64 `gorm:"column:os"`
	}
	err = s.conversions(ctx).
		Select("COUNT(DISTINCT country) AS countries, COUNT(DISTINCT device) AS devices, COUNT(DISTINCT os) AS os").
		Where("created_at >= ?", since).
		Scan(&distinct).Error
	if err != nil {
		return finish(ctx, s, "performance_metrics", pm, err, PerformanceMetrics{})
	}

	pm = PerformanceMetrics{
		TotalClicks:      t.Clicks,
		TotalConversions: t.Conversions,
		ConversionRate:   round2(ConversionRate(t.Clicks, t.Conversions)),
		TotalRevenue:     round2(t.Revenue),
		UniqueCountries:  distinct.Countries,
		UniqueDevices:    distinct.Devices,
		UniqueOS:         distinct.OS,
	}
	if t.Clicks > 0 {
		pm.AvgPayout = round2(t.Revenue / float64(t.Clicks))
	}
	return finish(ctx, s, "performance_metrics", pm, nil, PerformanceMetrics{})
}

func (s *AnalyticsService) RealTimeStats(ctx context.Context) Result[RealTimeStats] {
	now := s.Now()
	var rt RealTimeStats

	hour, err := s.totals(s.conversions(ctx).Where("created_at >= ?", now.Add(-time.Hour)))
	if err != nil {
		return finish(ctx, s, "real_time", rt, err, RealTimeStats{})
	}
	day, err := s.totals(s.conversions(ctx).Where("created_at >= ?", now.Add(-24*time.Hour)))
	if err != nil {
		return finish(ctx, s, "real_time", rt, err, RealTimeStats{})
	}
	var active int64
	err = s.conversions(ctx).
		Where("created_at >= ?", now.Add(-5*time.Minute)).
		Distinct("ip_address").
		Count(&active).Error
	if err != nil {
		return finish(ctx, s, "real_time", rt, err, RealTimeStats{})
	}

	rt = RealTimeStats{
		ClicksLastHour:      hour.Clicks,
		ConversionsLastHour: hour.Conversions,
		ClicksLast24h:       day.Clicks,
		ConversionsLast24h:  day.Conversions,
		ActiveUsers:         active,
	}
	return finish(ctx, s, "real_time", rt, nil, RealTimeStats{})
}

// CohortAnalysis groups the last twelve months by calendar month, newest first.
func (s *AnalyticsService) CohortAnalysis(ctx context.Context) Result[[]CohortRow] {
	todayStart, _ := s.getDateRange("day", s.now())
	points, err := s.pointsSince(ctx, todayStart.AddDate(0, -12, 0))
	if err != nil {
		return finish(ctx, s, "cohorts", []CohortRow{}, err, []CohortRow{})
	}

	type cohort struct {
		row CohortRow
		ips map[string]struct{}
	}
	byMonth := map[string]*cohort{}
	for _, p := range points {
		key := p.CreatedAt.In(s.Location).Format("2006-01")
		c, ok := byMonth[key]
		if !ok {
			c = &cohort{row: CohortRow{CohortMonth: key}, ips: map[string]struct{}{}}
			byMonth[key] = c
		}
		c.ips[p.IPAddress] = struct{}{}
		c.row.TotalClicks++
		if p.Status == models.ConversionStatusConverted {
			c.row.Conversions++
		}
	}

	rows := make([]CohortRow, 0, len(byMonth))
	for _, c := range byMonth {
		c.row.CohortSize = int64(len(c.ips))
		c.row.ConversionRate = round2(ConversionRate(c.row.TotalClicks, c.row.Conversions))
		rows = append(rows, c.row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CohortMonth > rows[j].CohortMonth })
	return finish(ctx, s, "cohorts", rows, nil, []CohortRow{})
}

// PostbackStats summarises delivery attempts per classified status.
func (s *AnalyticsService) PostbackStats(ctx context.Context) Result[[]PostbackStatusRow] {
	rows := []PostbackStatusRow{}
	err := s.DB.WithContext(ctx).Model(&models.PostbackLog{}).
		Select("status, COUNT(*) AS attempts, COALESCE(AVG(response_time), 0) AS avg_response_ms").
		Group("status").
		Order("status").
		Scan(&rows).Error
	for i := range rows {
		rows[i].AvgResponseMs = round2(rows[i].AvgResponseMs)
	}
	return finish(ctx, s, "postback_stats", rows, err, []PostbackStatusRow{})
}
