package email

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loveworld-europe/donations/internal/clock"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/metrics"
	"github.com/loveworld-europe/donations/internal/repository/memory"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	sent []Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg Message) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.sent = append(c.sent, msg)
	return "<msg-1@test>", nil
}

var sentAt = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestService(sender Sender) (*Service, *memory.Store) {
	store := memory.NewStore(logger.NewNop())
	svc := NewService(sender, store.Repositories().Communications, metrics.NewNop(), clock.NewFakeClock(sentAt), "https://give.example.org", logger.NewNop())
	return svc, store
}

func TestSendWelcomeEmailLogsCommunication(t *testing.T) {
	sender := &captureSender{}
	svc, store := newTestService(sender)
	next := sentAt.AddDate(0, 1, 0)

	res := svc.SendWelcomeEmail(context.Background(), WelcomeEmail{
		Recipient:       Recipient{PartnerID: "partner_1", Email: "grace@example.org", FirstName: "Grace"},
		CampaignType:    domain.CampaignTypeAdoptLanguage,
		LanguageName:    "Polish",
		Amount:          15000,
		Currency:        "GBP",
		Recurring:       true,
		NextBillingDate: &next,
	})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "<msg-1@test>", res.MessageID)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "grace@example.org", msg.To)
	assert.Equal(t, "Thank you for adopting Polish", msg.Subject)
	assert.Contains(t, msg.HTML, "Dear Grace")
	assert.Contains(t, msg.HTML, "£150.00")
	assert.Contains(t, msg.HTML, "per month")
	assert.Contains(t, msg.HTML, "10 April 2026")

	comms := store.Communications()
	require.Len(t, comms, 1)
	assert.Equal(t, domain.CommunicationStatusSent, comms[0].Status)
	assert.Equal(t, "partner_1", comms[0].PartnerID)
	assert.Equal(t, sentAt, comms[0].SentAt)
	assert.Nil(t, comms[0].Error)
}

func TestSendFailureIsRecordedNotReturned(t *testing.T) {
	svc, store := newTestService(&captureSender{err: errors.New("535 authentication failed")})

	res := svc.SendPaymentFailed(context.Background(), PaymentFailed{
		Recipient:    Recipient{PartnerID: "partner_1", Email: "grace@example.org"},
		LanguageName: "Polish",
		Amount:       15000,
		Currency:     "EUR",
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "535")

	comms := store.Communications()
	require.Len(t, comms, 1)
	assert.Equal(t, domain.CommunicationStatusFailed, comms[0].Status)
	require.NotNil(t, comms[0].Error)
	assert.Contains(t, *comms[0].Error, "authentication failed")
	assert.Contains(t, comms[0].Content, "Payment failed")
}

func TestSendMonthlyImpactReport(t *testing.T) {
	sender := &captureSender{}
	svc, _ := newTestService(sender)

	res := svc.SendMonthlyImpactReport(context.Background(), ImpactReport{
		Recipient: Recipient{PartnerID: "partner_1", Email: "grace@example.org", FirstName: "Grace"},
		Period:    "February 2026",
		Campaigns: []ImpactCampaign{
			{LanguageName: "Polish", Type: domain.CampaignTypeAdoptLanguage, Amount: 15000, Currency: "GBP"},
			{LanguageName: "Welsh", Type: domain.CampaignTypeSponsorTranslation, Amount: 5000, Currency: "GBP"},
		},
		TotalGiven:   20000,
		Currency:     "GBP",
		PaymentCount: 2,
	})

	require.True(t, res.Success)
	html := sender.sent[0].HTML
	assert.Contains(t, html, "Language adoption")
	assert.Contains(t, html, "Translation sponsorship")
	assert.Contains(t, html, "£200.00")
	assert.Equal(t, "Your impact in February 2026", sender.sent[0].Subject)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "£150.00", FormatAmount(15000, "GBP"))
	assert.Equal(t, "€0.05", FormatAmount(5, "eur"))
	assert.Equal(t, "12.34 CHF", FormatAmount(1234, "CHF"))
	assert.Equal(t, "-$1.00", FormatAmount(-100, "USD"))
}

func TestSMTPConfigConfigured(t *testing.T) {
	assert.False(t, SMTPConfig{Host: "smtp-relay.brevo.com"}.Configured())
	assert.True(t, SMTPConfig{Host: "smtp-relay.brevo.com", Username: "u", Password: "k", From: "give@example.org"}.Configured())
}
