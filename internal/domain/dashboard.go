package domain

import "time"

// CampaignTypeCount число активных кампаний одного типа
type CampaignTypeCount struct {
	Type  CampaignType `json:"type" db:"type"`
	Count int          `json:"count" db:"count"`
}

// CurrencyTotal сумма успешных платежей в одной валюте
type CurrencyTotal struct {
	Currency string `json:"currency" db:"currency"`
	Amount   int64  `json:"amount" db:"amount"`
	Payments int    `json:"payments" db:"payments"`
}

// DashboardStats сводка для главной страницы админки
type DashboardStats struct {
	GeneratedAt      time.Time           `json:"generatedAt"`
	Since            time.Time           `json:"since"`
	ActiveCampaigns  []CampaignTypeCount `json:"activeCampaigns"`
	AdoptedLanguages int                 `json:"adoptedLanguages"`
	Revenue          []CurrencyTotal     `json:"revenue"`
	FailedPayments   int                 `json:"failedPayments"`
}
