package domain

import "time"

// WebhookOutcome результат обработки события Stripe
type WebhookOutcome string

const (
	// WebhookOutcomeProcessed событие применено к локальному состоянию
	WebhookOutcomeProcessed WebhookOutcome = "processed"
	// WebhookOutcomeDuplicate событие уже было обработано ранее
	WebhookOutcomeDuplicate WebhookOutcome = "duplicate"
	// WebhookOutcomeIgnored тип события не обрабатывается
	WebhookOutcomeIgnored WebhookOutcome = "ignored"
	// WebhookOutcomeUnmatched кампания для события не найдена
	WebhookOutcomeUnmatched WebhookOutcome = "unmatched"
)

// WebhookEvent - запись журнала обработанных событий Stripe
type WebhookEvent struct {
	ID          string         `json:"id"` // ID события в Stripe (evt_...)
	Type        string         `json:"type"`
	Outcome     WebhookOutcome `json:"outcome"`
	ReceivedAt  time.Time      `json:"receivedAt"`
	ProcessedAt time.Time      `json:"processedAt"`
}
