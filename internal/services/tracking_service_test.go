package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"s2s-tracker/internal/models"
)

// postbackRecorder is an advertiser endpoint that remembers every query it receives.
type postbackRecorder struct {
	mu      sync.Mutex
	queries []url.Values
	status  int
}

func (p *postbackRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = r.ParseForm()
	p.queries = append(p.queries, r.Form)
	if p.status != 0 {
		w.WriteHeader(p.status)
	}
	w.Write([]byte("OK"))
}

func (p *postbackRecorder) respondWith(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

func (p *postbackRecorder) received() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.queries...)
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *fakeQueue) EnqueueRedelivery(ctx context.Context, transactionId string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, transactionId)
	return nil
}

type testStack struct {
	DB          *gorm.DB
	Endpoint    *postbackRecorder
	Settings    *SettingsService
	Offers      *OfferService
	Conversions *ConversionService
	Delivery    *DeliveryService
	Tracking    *TrackingService
}

func newTestStack(t *testing.T, queue RedeliveryEnqueuer) *testStack {
	t.Helper()
	db := newTestDB(t)

	endpoint := &postbackRecorder{}
	srv := httptest.NewServer(endpoint)
	t.Cleanup(srv.Close)

	settings := NewSettingsService(db, false)
	require.NoError(t, settings.SetMany(context.Background(), map[string]string{
		models.SettingDefaultPostbackURL: srv.URL + "/pb",
		models.SettingPostbackTimeout:    "2",
	}))

	geo := NewGeoService(&stubLookup{rec: GeoRecord{Country: "US", City: "Austin", Region: "Texas", Timezone: "America/Chicago", ISP: "Example"}}, nil, time.Hour, nil)
	offers := NewOfferService(db)
	conversions := NewConversionService(db)
	delivery := NewDeliveryService(NewPostbackSender(nil), NewPostbackLogService(db), conversions, settings, queue, nil)

	return &testStack{
		DB:          db,
		Endpoint:    endpoint,
		Settings:    settings,
		Offers:      offers,
		Conversions: conversions,
		Delivery:    delivery,
		Tracking:    NewTrackingService(offers, geo, settings, conversions, delivery, nil),
	}
}

func (s *testStack) counts(t *testing.T) (conversions, logs int64) {
	t.Helper()
	require.NoError(t, s.DB.Model(&models.Conversion{}).Count(&conversions).Error)
	require.NoError(t, s.DB.Model(&models.PostbackLog{}).Count(&logs).Error)
	return conversions, logs
}

func TestTrackingService_Submit(t *testing.T) {
	stack := newTestStack(t, nil)
	offer := createOffer(t, stack.DB, "Survey", 2.5, models.OfferStatusActive)

	res, err := stack.Tracking.Submit(context.Background(), Submission{
		OfferId:   offer.ID,
		Name:      " Jane Doe ",
		Email:     "jane@example.com",
		IP:        "203.0.113.7",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148 Safari/604.1",
		Language:  "en-US,en;q=0.9",
		Referrer:  "https://www.google.com/search?q=x",
	})
	require.NoError(t, err)
	assert.True(t, res.PostbackSent)
	assert.True(t, strings.HasPrefix(res.TransactionId, "txn_"))
	assert.Len(t, res.TransactionId, 30)

	conversions, logs := stack.counts(t)
	assert.Equal(t, int64(1), conversions)
	assert.Equal(t, int64(1), logs)

	got, err := stack.Conversions.Get(context.Background(), res.TransactionId)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.Name)
	assert.Equal(t, models.ConversionStatusConverted, got.Status)
	assert.True(t, got.PostbackSent)
	assert.Equal(t, 2.5, got.Payout)
	assert.Equal(t, "Austin", got.City)
	assert.Equal(t, "Mobile", got.Device)
	assert.Equal(t, "en-US", got.Language)
	assert.Equal(t, "Unknown", got.ScreenResolution)

	received := stack.Endpoint.received()
	require.Len(t, received, 1)
	assert.Equal(t, res.TransactionId, received[0].Get("transaction_id"))
	assert.Equal(t, "conversion", received[0].Get("goal"))
	assert.Equal(t, "2.50", received[0].Get("payout"))
	assert.Equal(t, "jane@example.com", received[0].Get("email"))
}

func TestTrackingService_SubmitKeepsConversionWhenPostbackFails(t *testing.T) {
	stack := newTestStack(t, nil)
	stack.Endpoint.respondWith(http.StatusBadGateway)
	offer := createOffer(t, stack.DB, "Survey", 1, models.OfferStatusActive)

	res, err := stack.Tracking.Submit(context.Background(), Submission{OfferId: offer.ID, Name: "Jane", Email: "jane@example.com"})
	require.NoError(t, err)
	assert.False(t, res.PostbackSent)

	got, err := stack.Conversions.Get(context.Background(), res.TransactionId)
	require.NoError(t, err)
	assert.Equal(t, models.ConversionStatusConverted, got.Status)
	assert.False(t, got.PostbackSent)

	var log models.PostbackLog
	require.NoError(t, stack.DB.First(&log).Error)
	assert.Equal(t, models.PostbackStatusFailed, log.Status)
	assert.Equal(t, http.StatusBadGateway, log.ResponseCode)
}

func TestTrackingService_SubmitRejections(t *testing.T) {
	stack := newTestStack(t, nil)
	active := createOffer(t, stack.DB, "Active", 1, models.OfferStatusActive)
	paused := createOffer(t, stack.DB, "Paused", 1, models.OfferStatusPaused)

	cases := []struct {
		name string
		sub  Submission
		want error
	}{
		{"missing name", Submission{OfferId: active.ID, Email: "jane@example.com"}, ErrValidation},
		{"bad email", Submission{OfferId: active.ID, Name: "Jane", Email: "not-an-email"}, ErrValidation},
		{"inactive offer", Submission{OfferId: paused.ID, Name: "Jane", Email: "jane@example.com"}, ErrValidation},
		{"unknown offer", Submission{OfferId: 999, Name: "Jane", Email: "jane@example.com"}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := stack.Tracking.Submit(context.Background(), tc.sub)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, IsClientError(err))
		})
	}

	conversions, logs := stack.counts(t)
	assert.Zero(t, conversions)
	assert.Zero(t, logs)
	assert.Empty(t, stack.Endpoint.received())
}

func TestPrimaryLanguage(t *testing.T) {
	assert.Equal(t, "fr-CA", primaryLanguage("fr-CA,fr;q=0.9"))
	assert.Equal(t, "de", primaryLanguage("de;q=0.8"))
	assert.Equal(t, "Unknown", primaryLanguage(""))
	assert.Equal(t, "zh-Hant-TW", primaryLanguage("zh-Hant-TW-x-private"))
}

func TestTrackingService_SubmitStoresValidText(t *testing.T) {
	stack := newTestStack(t, nil)
	offer := createOffer(t, stack.DB, "Survey", 1, models.OfferStatusActive)

	res, err := stack.Tracking.Submit(context.Background(), Submission{
		OfferId:          offer.ID,
		Name:             "Jos\xe9",
		Email:            "jose@example.com",
		IP:               "203.0.113.7",
		UserAgent:        "Agent\xff",
		ScreenResolution: "\xff" + strings.Repeat("é", 25),
		Referrer:         "https://example.com/\xfe",
	})
	require.NoError(t, err)

	got, err := stack.Conversions.Get(context.Background(), res.TransactionId)
	require.NoError(t, err)
	assert.Equal(t, "Jos\uFFFD", got.Name)
	assert.Equal(t, "Agent\uFFFD", got.UserAgent)
	assert.Equal(t, "https://example.com/\uFFFD", got.Referrer)
	assert.Equal(t, "\uFFFD"+strings.Repeat("é", 19), got.ScreenResolution)
}

func TestTrackingService_SubmitHonoursTLSSetting(t *testing.T) {
	stack := newTestStack(t, nil)
	offer := createOffer(t, stack.DB, "Survey", 1, models.OfferStatusActive)
	ctx := context.Background()

	srv := httptest.NewTLSServer(stack.Endpoint)
	defer srv.Close()
	require.NoError(t, stack.Settings.Set(ctx, models.SettingDefaultPostbackURL, srv.URL+"/pb"))

	submit := func() SubmitResult {
		res, err := stack.Tracking.Submit(ctx, Submission{OfferId: offer.ID, Name: "Jane", Email: "jane@example.com", IP: "203.0.113.7"})
		require.NoError(t, err)
		return res
	}

	assert.False(t, submit().PostbackSent)
	assert.Empty(t, stack.Endpoint.received())

	require.NoError(t, stack.Settings.Set(ctx, models.SettingPostbackInsecureSkipTLS, "true"))
	assert.True(t, submit().PostbackSent)
	assert.Len(t, stack.Endpoint.received(), 1)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "éé", truncate("ééé", 2))
	assert.Equal(t, "a\uFFFD", truncate("a\xffbc", 2))
}
