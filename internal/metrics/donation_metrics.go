package metrics

import (
	"strconv"

	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DonationMetrics интерфейс для метрик пожертвований
type DonationMetrics interface {
	IncCampaignCreated(campaignType string)
	IncPayment(status, currency string)
	ObservePaymentAmount(amount int64, currency, status string)
	IncWebhookEvent(eventType, outcome string)
	IncExpiryRun(outcome string)
	IncExpiredCampaign(action string)
	IncEmail(emailType string, success bool)
}

type donationMetrics struct {
	log              *logger.Logger
	campaignsCreated *prometheus.CounterVec
	payments         *prometheus.CounterVec
	paymentAmount    *prometheus.HistogramVec
	webhookEvents    *prometheus.CounterVec
	expiryRuns       *prometheus.CounterVec
	expiredCampaigns *prometheus.CounterVec
	emails           *prometheus.CounterVec
}

// NewDonationMetrics регистрирует метрики в registry
func NewDonationMetrics(registry *prometheus.Registry, log *logger.Logger) DonationMetrics {
	factory := promauto.With(registry)

	return &donationMetrics{
		log: log,
		campaignsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donations_campaigns_created_total",
				Help: "The total number of created campaigns",
			},
			[]string{"type"},
		),
		payments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donations_payments_total",
				Help: "The total number of recorded payments by status",
			},
			[]string{"status", "currency"},
		),
		paymentAmount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "donations_payment_amount_minor",
				Help:    "Payment amounts distribution in minor currency units",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6), // 1.00 .. 1 000 000.00
			},
			[]string{"currency", "status"},
		),
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donations_webhook_events_total",
				Help: "Stripe webhook events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		expiryRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donations_expiry_runs_total",
				Help: "Campaign expiry sweeps by outcome",
			},
			[]string{"outcome"},
		),
		expiredCampaigns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donations_expired_campaigns_total",
				Help: "Campaigns handled by the expiry sweep by action",
			},
			[]string{"action"},
		),
		emails: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donations_emails_total",
				Help: "Outbound emails by type and status",
			},
			[]string{"type", "status"},
		),
	}
}

// IncCampaignCreated увеличивает счетчик созданных кампаний
func (m *donationMetrics) IncCampaignCreated(campaignType string) {
	m.campaignsCreated.WithLabelValues(campaignType).Inc()
}

// IncPayment увеличивает счетчик платежей
func (m *donationMetrics) IncPayment(status, currency string) {
	m.payments.WithLabelValues(status, currency).Inc()
}

// ObservePaymentAmount записывает сумму платежа
func (m *donationMetrics) ObservePaymentAmount(amount int64, currency, status string) {
	m.paymentAmount.WithLabelValues(currency, status).Observe(float64(amount))
}

func (m *donationMetrics) IncWebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *donationMetrics) IncExpiryRun(outcome string) {
	m.expiryRuns.WithLabelValues(outcome).Inc()
}

func (m *donationMetrics) IncExpiredCampaign(action string) {
	m.expiredCampaigns.WithLabelValues(action).Inc()
}

// IncEmail status: sent|failed
func (m *donationMetrics) IncEmail(emailType string, success bool) {
	status := "failed"
	if success {
		status = "sent"
	}
	m.emails.WithLabelValues(emailType, status).Inc()
}

type nopMetrics struct{}

// NewNop возвращает метрики, которые ничего не записывают
func NewNop() DonationMetrics { return nopMetrics{} }

func (nopMetrics) IncCampaignCreated(string)                  {}
func (nopMetrics) IncPayment(string, string)                  {}
func (nopMetrics) ObservePaymentAmount(int64, string, string) {}
func (nopMetrics) IncWebhookEvent(string, string)             {}
func (nopMetrics) IncExpiryRun(string)                        {}
func (nopMetrics) IncExpiredCampaign(string)                  {}
func (nopMetrics) IncEmail(string, bool)                      {}

// boolLabel для меток вида "true"/"false"
func boolLabel(v bool) string {
	return strconv.FormatBool(v)
}
