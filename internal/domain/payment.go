package domain

import "time"

// PaymentStatus статус платежа
type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// DefaultFailureReason причина по умолчанию для неуспешного списания
const DefaultFailureReason = "Payment failed"

// Payment - строка журнала платежей, одна на событие Stripe
type Payment struct {
	ID                    string        `json:"id"`
	CampaignID            string        `json:"campaignId"`
	PartnerID             string        `json:"partnerId"`
	Amount                int64         `json:"amount"`
	Currency              string        `json:"currency"`
	Status                PaymentStatus `json:"status"`
	StripePaymentIntentID *string       `json:"stripePaymentIntentId,omitempty"`
	StripeInvoiceID       *string       `json:"stripeInvoiceId,omitempty"`
	PaymentDate           time.Time     `json:"paymentDate"`
	FailureReason         *string       `json:"failureReason,omitempty"`
}
