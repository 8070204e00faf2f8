package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/kafka"
	"github.com/loveworld-europe/donations/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignCancel(t *testing.T) {
	env := newTestEnv(t, subscriptionFixtures())
	svc := env.campaigns()
	ctx := context.Background()

	cancelled, err := svc.Cancel(ctx, "camp_1", "admin@loveworld.eu")
	require.NoError(t, err)
	env.background.Wait()

	assert.Equal(t, domain.CampaignStatusCancelled, cancelled.Status)
	assert.Equal(t, []string{"sub_1"}, env.stripe.cancelledSubs)

	stored, _ := env.mem.Campaign("camp_1")
	assert.Equal(t, domain.CampaignStatusCancelled, stored.Status)
	require.NotNil(t, stored.EndDate)
	assert.True(t, stored.EndDate.Equal(testNow))

	lang, _ := env.mem.Language("lang_fr")
	assert.Equal(t, domain.AdoptionStatusAvailable, lang.AdoptionStatus)

	topics := env.publisher.topics()
	require.Equal(t, []string{kafka.TopicCampaignCancelled}, topics)
	ev := env.publisher.events[0].Payload.(kafka.CampaignEvent)
	assert.Equal(t, string(ActionReleased), ev.LanguageAction)

	// повторная отмена не обращается к Stripe
	_, err = svc.Cancel(ctx, "camp_1", "admin@loveworld.eu")
	require.NoError(t, err)
	assert.Len(t, env.stripe.cancelledSubs, 1)

	_, err = svc.Cancel(ctx, "camp_missing", "admin@loveworld.eu")
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
}

func TestCampaignCancelStripeFailureKeepsCampaign(t *testing.T) {
	env := newTestEnv(t, subscriptionFixtures())
	env.stripe.cancelErr = domain.NewExternalServiceError("stripe", "CancelSubscription", true, errors.New("timeout"))

	_, err := env.campaigns().Cancel(context.Background(), "camp_1", "admin")
	require.ErrorIs(t, err, domain.ErrExternalServiceUnavailable)

	stored, _ := env.mem.Campaign("camp_1")
	assert.Equal(t, domain.CampaignStatusActive, stored.Status)
}

func TestCampaignListAndLanguages(t *testing.T) {
	f := subscriptionFixtures()
	f.Languages = append(f.Languages, language("lang_pl", domain.AdoptionStatusAvailable))
	env := newTestEnv(t, f)
	svc := env.campaigns()
	ctx := context.Background()

	campaigns, err := svc.List(ctx, domain.CampaignFilter{Status: domain.CampaignStatusActive})
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, "Grace Adeyemi", campaigns[0].PartnerName)

	none, err := svc.List(ctx, domain.CampaignFilter{Status: domain.CampaignStatusCompleted})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	available, err := svc.ListLanguages(ctx, domain.LanguageFilter{Status: domain.AdoptionStatusAvailable})
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "lang_pl", available[0].ID)

	_, err = svc.ListLanguages(ctx, domain.LanguageFilter{Status: "SOLD"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.GetLanguage(ctx, "lang_xx")
	assert.ErrorIs(t, err, domain.ErrLanguageNotFound)
}

func TestSendImpactReport(t *testing.T) {
	invoice := "in_1"
	f := subscriptionFixtures()
	f.Payments = []domain.Payment{
		{ID: "pay_1", CampaignID: "camp_1", PartnerID: "partner_1", Amount: 15000, Currency: "GBP", Status: domain.PaymentStatusSucceeded, StripeInvoiceID: &invoice, PaymentDate: testNow.AddDate(0, 0, -5)},
		{ID: "pay_2", CampaignID: "camp_1", PartnerID: "partner_1", Amount: 15000, Currency: "GBP", Status: domain.PaymentStatusFailed, PaymentDate: testNow.AddDate(0, 0, -4)},
		{ID: "pay_3", CampaignID: "camp_1", PartnerID: "partner_1", Amount: 15000, Currency: "GBP", Status: domain.PaymentStatusSucceeded, PaymentDate: testNow.AddDate(0, -3, 0)},
	}
	env := newTestEnv(t, f)

	result, err := env.campaigns().SendImpactReport(context.Background(), "partner_1")
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Len(t, env.notifier.reports, 1)
	report := env.notifier.reports[0]
	assert.Equal(t, "grace@example.org", report.Email)
	assert.Equal(t, int64(15000), report.TotalGiven)
	assert.Equal(t, 1, report.PaymentCount)
	assert.Equal(t, "GBP", report.Currency)
	assert.Equal(t, "February 2026", report.Period)
	require.Len(t, report.Campaigns, 1)
	assert.Equal(t, "Language lang_fr", report.Campaigns[0].LanguageName)

	_, err = env.campaigns().SendImpactReport(context.Background(), "partner_missing")
	assert.ErrorIs(t, err, domain.ErrPartnerNotFound)
}

func TestSumSucceeded(t *testing.T) {
	payments := []domain.Payment{
		{Amount: 1000, Currency: "EUR", Status: domain.PaymentStatusSucceeded},
		{Amount: 2000, Currency: "EUR", Status: domain.PaymentStatusSucceeded},
		{Amount: 9000, Currency: "GBP", Status: domain.PaymentStatusSucceeded},
		{Amount: 5000, Currency: "EUR", Status: domain.PaymentStatusFailed},
	}
	total, currency, count := sumSucceeded(payments)
	assert.Equal(t, int64(3000), total)
	assert.Equal(t, "EUR", currency)
	assert.Equal(t, 2, count)

	total, currency, count = sumSucceeded(nil)
	assert.Zero(t, total)
	assert.Equal(t, "GBP", currency)
	assert.Zero(t, count)
}

type staticDashboard struct {
	since time.Time
}

func (s *staticDashboard) DashboardStats(_ context.Context, since time.Time) (*domain.DashboardStats, error) {
	s.since = since
	return &domain.DashboardStats{Since: since}, nil
}

func TestDashboardStatsWindow(t *testing.T) {
	env := newTestEnv(t, memory.Fixtures{})
	source := &staticDashboard{}

	stats, err := NewDashboardService(source, env.clock, env.log).Stats(context.Background())
	require.NoError(t, err)
	assert.True(t, source.since.Equal(testNow.AddDate(0, 0, -30)))
	assert.True(t, stats.Since.Equal(source.since))
}
