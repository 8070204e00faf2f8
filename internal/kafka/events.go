package kafka

import (
	"context"
	"time"
)

// Топики событий сервиса пожертвований
const (
	TopicCampaignCreated   = "donations.campaign.created"
	TopicCampaignCancelled = "donations.campaign.cancelled"
	TopicCampaignCompleted = "donations.campaign.completed"
	TopicPaymentSucceeded  = "donations.payment.succeeded"
	TopicPaymentFailed     = "donations.payment.failed"
)

// Topics все топики, которые сервис публикует
var Topics = []string{
	TopicCampaignCreated,
	TopicCampaignCancelled,
	TopicCampaignCompleted,
	TopicPaymentSucceeded,
	TopicPaymentFailed,
}

// Publisher определяет интерфейс для публикации событий.
// key используется для партиционирования (ID кампании).
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
	Close() error
}

// CampaignEvent событие жизненного цикла кампании
type CampaignEvent struct {
	CampaignID      string     `json:"campaign_id"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	PartnerID       string     `json:"partner_id"`
	LanguageID      string     `json:"language_id"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	Recurring       bool       `json:"recurring"`
	LanguageAction  string     `json:"language_action,omitempty"`
	NextBillingDate *time.Time `json:"next_billing_date,omitempty"`
	OccurredAt      time.Time  `json:"occurred_at"`
}

// PaymentEvent событие платежа
type PaymentEvent struct {
	PaymentID       string    `json:"payment_id"`
	CampaignID      string    `json:"campaign_id"`
	PartnerID       string    `json:"partner_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	StripeInvoiceID string    `json:"stripe_invoice_id,omitempty"`
	StripeEventID   string    `json:"stripe_event_id,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// NopPublisher используется, когда Kafka выключена
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }
func (NopPublisher) Close() error                                       { return nil }
