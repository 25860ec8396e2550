package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"s2s-tracker/internal/metrics"
	"s2s-tracker/internal/models"
	"s2s-tracker/internal/services"
)

type staticGeo struct{}

func (staticGeo) Lookup(ctx context.Context, ip string) (services.GeoRecord, error) {
	return services.GeoRecord{Country: "US", City: "Austin", Region: "Texas", Timezone: "America/Chicago", ISP: "Example"}, nil
}

type recordingQueue struct {
	ids []string
}

func (q *recordingQueue) EnqueueRedelivery(ctx context.Context, transactionId string) error {
	q.ids = append(q.ids, transactionId)
	return nil
}

type fixture struct {
	DB     *gorm.DB
	Router *gin.Engine
	Queue  *recordingQueue
}

func newFixture(t *testing.T, withQueue bool) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Offer{}, &models.Conversion{}, &models.PostbackLog{}, &models.Setting{}, &models.TestResult{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	advertiser := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}))
	t.Cleanup(advertiser.Close)

	m := metrics.NewNoop()
	settings := services.NewSettingsService(db, false)
	require.NoError(t, settings.Set(context.Background(), models.SettingDefaultPostbackURL, advertiser.URL+"/pb"))

	var queue *recordingQueue
	var enqueuer services.RedeliveryEnqueuer
	if withQueue {
		queue = &recordingQueue{}
		enqueuer = queue
	}

	sender := services.NewPostbackSender(m)
	logs := services.NewPostbackLogService(db)
	offers := services.NewOfferService(db)
	conversions := services.NewConversionService(db)
	delivery := services.NewDeliveryService(sender, logs, conversions, settings, enqueuer, m)
	geo := services.NewGeoService(staticGeo{}, nil, time.Hour, m)
	analytics := services.NewAnalyticsService(db, m)

	h := &Handler{
		Tracking:     services.NewTrackingService(offers, geo, settings, conversions, delivery, m),
		Offers:       offers,
		Conversions:  conversions,
		Delivery:     delivery,
		Analytics:    analytics,
		Settings:     settings,
		PostbackLogs: logs,
		PostbackTest: services.NewPostbackTestService(db, sender, logs, settings),
		Export:       services.NewExportService(analytics),
	}

	return &fixture{DB: db, Router: NewRouter(h, prometheus.NewRegistry()), Queue: queue}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.Router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status  int             `json:"status"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestSubmitOffer(t *testing.T) {
	f := newFixture(t, false)
	offer := models.Offer{Title: "Survey", Payout: 2, Status: models.OfferStatusActive}
	require.NoError(t, f.DB.Create(&offer).Error)

	form := url.Values{"name": {"Jane"}, "email": {"jane@example.com"}, "screen_resolution": {"1920x1080"}}
	req := httptest.NewRequest(http.MethodPost, "/offers/1/submit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.8")
	w := httptest.NewRecorder()
	f.Router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	env := decode(t, w)
	var data struct {
		TransactionId string `json:"transaction_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, strings.HasPrefix(data.TransactionId, "txn_"))

	var conv models.Conversion
	require.NoError(t, f.DB.Where("transaction_id = ?", data.TransactionId).First(&conv).Error)
	assert.Equal(t, "1920x1080", conv.ScreenResolution)
	assert.Equal(t, "en-GB", conv.Language)
	assert.Equal(t, "Windows 10", conv.OS)
	assert.Equal(t, "Austin", conv.City)
	assert.Equal(t, models.ConversionStatusConverted, conv.Status)
}

func TestSubmitOffer_Errors(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.DB.Create(&models.Offer{Title: "Survey", Status: models.OfferStatusActive}).Error)

	w := f.do(t, http.MethodPost, "/offers/abc/submit", map[string]string{"name": "Jane"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/offers/1/submit", map[string]string{"name": "Jane", "email": "bad"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.False(t, decode(t, w).Success)

	w = f.do(t, http.MethodPost, "/offers/99/submit", map[string]string{"name": "Jane", "email": "jane@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	var count int64
	f.DB.Model(&models.Conversion{}).Count(&count)
	assert.Zero(t, count)
}

func TestOfferCRUD(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(t, http.MethodPost, "/api/offers", map[string]interface{}{"title": "Download app", "type": "download", "payout": 0.75})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Offer
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &created))
	assert.Equal(t, "download", created.Type)

	w = f.do(t, http.MethodPost, "/api/offers", map[string]interface{}{"title": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodPut, "/api/offers/1", map[string]interface{}{"title": "Install app"})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/api/offers/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/offers?status=inactive", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var offers []models.Offer
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &offers))
	require.Len(t, offers, 1)
	assert.Equal(t, "Install app", offers[0].Title)

	w = f.do(t, http.MethodGet, "/api/offers/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(t, http.MethodPost, "/api/settings", map[string]string{"default_goal_param": "event", "postback_method": "POST"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var settings map[string]string
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &settings))
	assert.Equal(t, "event", settings["default_goal_param"])
	assert.Equal(t, "USD", settings["currency"])

	w = f.do(t, http.MethodPost, "/api/settings", map[string]string{"postback_timeout": "never"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodPost, "/api/settings", []string{"nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConversionAndResend(t *testing.T) {
	t.Run("queued", func(t *testing.T) {
		f := newFixture(t, true)
		require.NoError(t, f.DB.Create(&models.Conversion{TransactionId: "TXN1", Status: models.ConversionStatusConverted}).Error)

		w := f.do(t, http.MethodGet, "/api/conversions/TXN1", nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = f.do(t, http.MethodPost, "/api/conversions/TXN1/resend", nil)
		require.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, []string{"TXN1"}, f.Queue.ids)

		w = f.do(t, http.MethodPost, "/api/conversions/NOPE/resend", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("no queue", func(t *testing.T) {
		f := newFixture(t, false)
		w := f.do(t, http.MethodPost, "/api/conversions/TXN1/resend", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestPostbackTestAndLogs(t *testing.T) {
	f := newFixture(t, false)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}))
	defer target.Close()

	w := f.do(t, http.MethodPost, "/api/test-postback", map[string]interface{}{"url": target.URL, "transaction_id": "TEST1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report services.PostbackTestReport
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &report))
	assert.Equal(t, 1, report.Successes)

	w = f.do(t, http.MethodPost, "/api/test-postback", map[string]interface{}{"url": "nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodGet, "/api/postback-logs?transaction_id=TEST1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Count int64 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(1), page.Count)

	w = f.do(t, http.MethodGet, "/api/test-results", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/api/test-results", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted":1`)
}

func TestAnalyticsEndpoints(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.DB.Create(&models.Conversion{TransactionId: "TXN1", Country: "US", Status: models.ConversionStatusConverted, Payout: 1}).Error)

	w := f.do(t, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dash struct {
		Stats services.DashboardStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &dash))
	assert.Equal(t, int64(1), dash.Stats.TotalClicks)

	w = f.do(t, http.MethodGet, "/api/analytics?country=US", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"traffic_sources"`)

	w = f.do(t, http.MethodGet, "/api/analytics?date_from=yesterday", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodGet, "/api/export?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "analytics_export_")
	assert.Contains(t, w.Body.String(), "TXN1")

	w = f.do(t, http.MethodGet, "/api/export?format=pdf", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestPingAndMetrics(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(t, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDashboardClampsWidgetSizes(t *testing.T) {
	f := newFixture(t, false)
	rows := make([]models.Conversion, 0, maxWidgetRows+5)
	for i := 0; i < maxWidgetRows+5; i++ {
		rows = append(rows, models.Conversion{TransactionId: fmt.Sprintf("TXN%03d", i), Status: models.ConversionStatusConverted})
	}
	require.NoError(t, f.DB.CreateInBatches(&rows, 50).Error)

	w := f.do(t, http.MethodGet, "/api/dashboard?recent=1000000&days=-3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dash struct {
		Recent []models.Conversion `json:"recent_activity"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &dash))
	assert.Len(t, dash.Recent, maxWidgetRows)
}

func TestBoundedQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[string]int{
		"":        7,
		"abc":     7,
		"0":       7,
		"-4":      7,
		"30":      30,
		"5000000": maxAnalyticsDays,
	}
	for raw, want := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?days="+raw, nil)
		assert.Equal(t, want, boundedQuery(c, "days", 7, maxAnalyticsDays), raw)
	}
}
