package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loveworld-europe/donations/internal/clock"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/email"
	"github.com/loveworld-europe/donations/internal/middleware"
	"github.com/loveworld-europe/donations/internal/services"
	"github.com/loveworld-europe/donations/internal/stripe/stripetest"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stripego "github.com/stripe/stripe-go/v78"
)

const webhookSecret = "whsec_test"

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProcessor struct {
	outcome domain.WebhookOutcome
	err     error
	events  []stripego.Event
}

func (f *fakeProcessor) HandleEvent(_ context.Context, event stripego.Event) (domain.WebhookOutcome, error) {
	f.events = append(f.events, event)
	return f.outcome, f.err
}

type fakeCheckout struct {
	in  services.CreateIntentInput
	out *services.CreateIntentOutput
	err error
}

func (f *fakeCheckout) CreateIntent(_ context.Context, in services.CreateIntentInput) (*services.CreateIntentOutput, error) {
	f.in = in
	return f.out, f.err
}

type fakeExpiry struct {
	preview *services.ExpiryPreview
	report  *services.ExpiryReport
	err     error
	runs    int
}

func (f *fakeExpiry) Preview(context.Context) (*services.ExpiryPreview, error) {
	return f.preview, f.err
}

func (f *fakeExpiry) Run(context.Context) (*services.ExpiryReport, error) {
	f.runs++
	return f.report, f.err
}

type fakeCampaigns struct {
	filter      domain.CampaignFilter
	cancelledBy string
	err         error
}

func (f *fakeCampaigns) List(_ context.Context, filter domain.CampaignFilter) ([]domain.CampaignDetails, error) {
	f.filter = filter
	return []domain.CampaignDetails{}, f.err
}

func (f *fakeCampaigns) Cancel(_ context.Context, id, cancelledBy string) (*domain.Campaign, error) {
	f.cancelledBy = cancelledBy
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Campaign{ID: id, Status: domain.CampaignStatusCancelled}, nil
}

func (f *fakeCampaigns) SendImpactReport(_ context.Context, partnerID string) (email.Result, error) {
	if f.err != nil {
		return email.Result{}, f.err
	}
	return email.Result{Success: true, Message: "sent to " + partnerID}, nil
}

type fakeSettings struct {
	updatedBy string
	err       error
}

func (f *fakeSettings) Get(context.Context) (*domain.CheckoutSettings, error) {
	s := domain.DefaultCheckoutSettings()
	return &s, nil
}

func (f *fakeSettings) Upsert(_ context.Context, in domain.CheckoutSettings, updatedBy string) (*domain.CheckoutSettings, error) {
	f.updatedBy = updatedBy
	if f.err != nil {
		return nil, f.err
	}
	return &in, nil
}

type nopSystemMetrics struct{ up map[string]bool }

func (m *nopSystemMetrics) SetDependencyUp(name string, up bool) { m.up[name] = up }
func (m *nopSystemMetrics) SchedulerTick(string, time.Time)      {}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func serve(r *gin.Engine, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func webhookRouter(t *testing.T, p *fakeProcessor) *gin.Engine {
	t.Helper()
	h, err := NewWebhookHandler(webhookSecret, p, logger.NewNop())
	require.NoError(t, err)
	r := gin.New()
	r.POST("/api/webhooks/stripe", h.HandleStripeWebhook)
	return r
}

func TestNewWebhookHandlerRequiresSecret(t *testing.T) {
	_, err := NewWebhookHandler("", &fakeProcessor{}, logger.NewNop())
	assert.Error(t, err)
}

func TestWebhookRejectsBadSignatures(t *testing.T) {
	payload := stripetest.EventPayload("evt_1", "invoice.payment_succeeded", map[string]any{"id": "in_1", "object": "invoice"})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong secret", stripetest.SignatureHeader("whsec_other", payload, time.Now())},
		{"stale timestamp", stripetest.SignatureHeader(webhookSecret, payload, time.Now().Add(-time.Hour))},
		{"garbage", "t=abc,v1=def"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProcessor{outcome: domain.WebhookOutcomeProcessed}
			headers := map[string]string{}
			if tc.header != "" {
				headers["Stripe-Signature"] = tc.header
			}
			w := serve(webhookRouter(t, p), http.MethodPost, "/api/webhooks/stripe", payload, headers)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "Invalid signature", decodeJSON(t, w)["error"])
			assert.Empty(t, p.events)
		})
	}
}

func TestWebhookOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		outcome    domain.WebhookOutcome
		err        error
		wantStatus int
	}{
		{"processed", domain.WebhookOutcomeProcessed, nil, http.StatusOK},
		{"duplicate", domain.WebhookOutcomeDuplicate, nil, http.StatusOK},
		{"ignored", domain.WebhookOutcomeIgnored, nil, http.StatusOK},
		{"unmatched", domain.WebhookOutcomeUnmatched, nil, http.StatusAccepted},
		{"processing error", "", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProcessor{outcome: tc.outcome, err: tc.err}
			payload := stripetest.EventPayload("evt_ok", "customer.subscription.updated", map[string]any{"id": "sub_1", "object": "subscription"})
			w := serve(webhookRouter(t, p), http.MethodPost, "/api/webhooks/stripe", payload, map[string]string{
				"Stripe-Signature": stripetest.SignatureHeader(webhookSecret, payload, time.Now()),
			})

			assert.Equal(t, tc.wantStatus, w.Code)
			require.Len(t, p.events, 1)
			assert.Equal(t, "evt_ok", p.events[0].ID)
			body := decodeJSON(t, w)
			if tc.err != nil {
				assert.Equal(t, "Internal server error", body["error"])
				return
			}
			assert.Equal(t, true, body["received"])
		})
	}
}

func TestWebhookBodyTooLarge(t *testing.T) {
	p := &fakeProcessor{outcome: domain.WebhookOutcomeProcessed}
	payload := bytes.Repeat([]byte("a"), int(maxRequestBodySize)+1)
	w := serve(webhookRouter(t, p), http.MethodPost, "/api/webhooks/stripe", payload, map[string]string{
		"Stripe-Signature": stripetest.SignatureHeader(webhookSecret, payload, time.Now()),
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, p.events)
}

func paymentRouter(f *fakeCheckout) *gin.Engine {
	h := NewPaymentHandler(f, logger.NewNop())
	r := gin.New()
	r.POST("/api/payments/create-intent", h.CreateIntent)
	return r
}

func TestCreateIntent(t *testing.T) {
	f := &fakeCheckout{out: &services.CreateIntentOutput{
		SubscriptionID: "sub_1",
		CampaignID:     "camp_1",
		ClientSecret:   "pi_1_secret",
		CustomerID:     "cus_1",
	}}
	body := `{"campaignType":"ADOPT_LANGUAGE","languageId":"lang_yoruba","amount":15000,"currency":"gbp","isRecurring":true,
		"partnerInfo":{"firstName":"Grace","lastName":"Adeyemi","email":"grace@example.org","country":"GB"}}`

	w := serve(paymentRouter(f), http.MethodPost, "/api/payments/create-intent", []byte(body), map[string]string{
		"Idempotency-Key": "checkout-42",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeJSON(t, w)
	assert.Equal(t, "sub_1", resp["subscriptionId"])
	assert.Equal(t, "camp_1", resp["campaignId"])
	assert.Equal(t, "pi_1_secret", resp["clientSecret"])
	assert.Equal(t, "cus_1", resp["customerId"])

	assert.Equal(t, "checkout-42", f.in.IdempotencyKey)
	assert.Equal(t, domain.CampaignTypeAdoptLanguage, f.in.CampaignType)
	assert.Equal(t, int64(15000), f.in.Amount)
	assert.Equal(t, "grace@example.org", f.in.PartnerInfo.Email)
}

func TestCreateIntentErrors(t *testing.T) {
	validation := domain.ValidationErrors{}
	validation.Add("partnerInfo.email", "must be a valid email address")

	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"malformed json", `{"amount":`, nil, http.StatusBadRequest, "Invalid request data"},
		{"validation", `{}`, fmt.Errorf("create intent: %w", validation), http.StatusBadRequest, "Invalid request data"},
		{"language missing", `{}`, domain.ErrLanguageNotFound, http.StatusNotFound, "Language not found"},
		{"already adopted", `{}`, domain.ErrLanguageAlreadyAdopted, http.StatusBadRequest, "Language already adopted"},
		{"idempotency key reused", `{}`, domain.ErrIdempotencyKeyReused, http.StatusConflict, "Idempotency key already used"},
		{"stripe failure", `{}`, domain.NewExternalServiceError("stripe", "CreateSubscription", false, errors.New("card_declined")), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(paymentRouter(&fakeCheckout{err: tc.err}), http.MethodPost, "/api/payments/create-intent", []byte(tc.body), nil)

			assert.Equal(t, tc.wantStatus, w.Code)
			resp := decodeJSON(t, w)
			assert.Equal(t, tc.wantError, resp["error"])
			if tc.wantError == "Invalid request data" {
				assert.NotEmpty(t, resp["details"])
			} else {
				assert.NotContains(t, resp, "details")
			}
		})
	}
}

func withAdmin(role middleware.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextAdminKey, middleware.Admin{ID: "admin_1", Email: "ops@loveworld.eu", Role: role})
		c.Next()
	}
}

func adminRouter(expiry *fakeExpiry, campaigns *fakeCampaigns, settings *fakeSettings) *gin.Engine {
	h := NewAdminHandler(expiry, campaigns, nil, logger.NewNop())
	s := NewSettingsHandler(settings, logger.NewNop())
	r := gin.New()
	r.Use(withAdmin(middleware.RoleSuperAdmin))
	r.GET("/expire", h.PreviewExpiry)
	r.POST("/expire", h.RunExpiry)
	r.GET("/campaigns", h.ListCampaigns)
	r.POST("/campaigns/:id/cancel", h.CancelCampaign)
	r.POST("/partners/:id/impact-report", h.SendImpactReport)
	r.POST("/settings", s.Upsert)
	return r
}

func TestExpiryEndpoints(t *testing.T) {
	expiry := &fakeExpiry{
		preview: &services.ExpiryPreview{
			CheckedAt:        testNow,
			ExpiringSoon:     []domain.CampaignDetails{},
			ExpiringThisWeek: []domain.CampaignDetails{{Campaign: domain.Campaign{ID: "camp_1"}}},
		},
		report: &services.ExpiryReport{
			ProcessedAt:      testNow,
			ExpiredCampaigns: 1,
			Results: []services.ExpiryResult{{
				CampaignID:  "camp_1",
				LanguageID:  "lang_yoruba",
				PartnerName: "Grace Adeyemi",
				Action:      services.ActionReleased,
			}},
		},
	}
	r := adminRouter(expiry, &fakeCampaigns{}, &fakeSettings{})

	w := serve(r, http.MethodGet, "/expire", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	preview := decodeJSON(t, w)
	assert.Equal(t, true, preview["success"])
	assert.Equal(t, "2026-03-10T12:00:00Z", preview["checkedAt"])
	assert.Len(t, preview["expiringSoon"], 0)
	assert.Len(t, preview["expiringThisWeek"], 1)
	assert.Equal(t, 0, expiry.runs)

	w = serve(r, http.MethodPost, "/expire", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decodeJSON(t, w)
	assert.Equal(t, true, report["success"])
	assert.Equal(t, float64(1), report["expiredCampaigns"])
	results := report["results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	assert.Equal(t, "RELEASED", first["action"])
	assert.Equal(t, "Grace Adeyemi", first["partnerName"])
	assert.Equal(t, 1, expiry.runs)
}

func TestExpiryRunFailure(t *testing.T) {
	r := adminRouter(&fakeExpiry{err: errors.New("query failed")}, &fakeCampaigns{}, &fakeSettings{})

	w := serve(r, http.MethodPost, "/expire", nil, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decodeJSON(t, w)["error"])
}

func TestListCampaignsFilter(t *testing.T) {
	campaigns := &fakeCampaigns{}
	r := adminRouter(&fakeExpiry{}, campaigns, &fakeSettings{})

	w := serve(r, http.MethodGet, "/campaigns?status=active&type=adopt_language&languageId=lang_1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.CampaignFilter{
		Status:     domain.CampaignStatusActive,
		Type:       domain.CampaignTypeAdoptLanguage,
		LanguageID: "lang_1",
	}, campaigns.filter)
	assert.Equal(t, []any{}, decodeJSON(t, w)["campaigns"])

	w = serve(r, http.MethodGet, "/campaigns?status=EXPIRED", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	details := decodeJSON(t, w)["details"].([]any)
	require.Len(t, details, 1)
	assert.Equal(t, "status", details[0].(map[string]any)["field"])
}

func TestCancelCampaign(t *testing.T) {
	campaigns := &fakeCampaigns{}
	r := adminRouter(&fakeExpiry{}, campaigns, &fakeSettings{})

	w := serve(r, http.MethodPost, "/campaigns/camp_1/cancel", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops@loveworld.eu", campaigns.cancelledBy)
	campaign := decodeJSON(t, w)["campaign"].(map[string]any)
	assert.Equal(t, "CANCELLED", campaign["status"])

	campaigns.err = domain.ErrCampaignNotFound
	w = serve(r, http.MethodPost, "/campaigns/camp_missing/cancel", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Campaign not found", decodeJSON(t, w)["error"])
}

func TestImpactReport(t *testing.T) {
	campaigns := &fakeCampaigns{}
	r := adminRouter(&fakeExpiry{}, campaigns, &fakeSettings{})

	w := serve(r, http.MethodPost, "/partners/partner_1/impact-report", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeJSON(t, w)["success"])

	campaigns.err = domain.ErrPartnerNotFound
	w = serve(r, http.MethodPost, "/partners/nobody/impact-report", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpsertSettings(t *testing.T) {
	settings := &fakeSettings{}
	r := adminRouter(&fakeExpiry{}, &fakeCampaigns{}, settings)

	w := serve(r, http.MethodPost, "/settings", []byte(`{"currencies":["GBP"],"defaultCurrency":"GBP","minimumAmount":100,"maximumAmount":5000}`), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ops@loveworld.eu", settings.updatedBy)

	var errs domain.ValidationErrors
	errs.Add("maximumAmount", "must be greater than MinimumAmount")
	settings.err = errs
	w = serve(r, http.MethodPost, "/settings", []byte(`{"minimumAmount":500,"maximumAmount":100}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "maximumAmount"))
}

func TestHealthCheck(t *testing.T) {
	m := &nopSystemMetrics{up: map[string]bool{}}
	checks := map[string]PingFunc{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}
	h := NewHealthHandler(checks, m, clock.NewFakeClock(testNow), logger.NewNop())
	r := gin.New()
	r.GET("/health", h.HealthCheck)

	w := serve(r, http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "DEGRADED", body["status"])
	assert.Equal(t, "2026-03-10T12:00:00Z", body["time"])
	assert.Equal(t, map[string]any{"postgres": "UP", "redis": "DOWN"}, body["dependencies"])
	assert.Equal(t, map[string]bool{"postgres": true, "redis": false}, m.up)

	h = NewHealthHandler(nil, m, clock.NewFakeClock(testNow), logger.NewNop())
	r = gin.New()
	r.GET("/health", h.HealthCheck)
	w = serve(r, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", decodeJSON(t, w)["status"])
}
