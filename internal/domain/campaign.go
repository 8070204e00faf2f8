package domain

import "time"

// CampaignType тип кампании
type CampaignType string

const (
	CampaignTypeAdoptLanguage      CampaignType = "ADOPT_LANGUAGE"
	CampaignTypeSponsorTranslation CampaignType = "SPONSOR_TRANSLATION"
	CampaignTypeGeneralDonation    CampaignType = "GENERAL_DONATION"
)

// CampaignStatus статус кампании
type CampaignStatus string

const (
	CampaignStatusActive    CampaignStatus = "ACTIVE"
	CampaignStatusPaused    CampaignStatus = "PAUSED"
	CampaignStatusCancelled CampaignStatus = "CANCELLED"
	CampaignStatusCompleted CampaignStatus = "COMPLETED"
)

// Campaign - долговременная запись обязательства партнера
type Campaign struct {
	ID                    string         `json:"id"`
	Type                  CampaignType   `json:"type"`
	PartnerID             string         `json:"partnerId"`
	LanguageID            string         `json:"languageId"`
	MonthlyAmount         int64          `json:"monthlyAmount"`
	Currency              string         `json:"currency"`
	Status                CampaignStatus `json:"status"`
	StripeSubscriptionID  *string        `json:"stripeSubscriptionId,omitempty"`
	StripePaymentIntentID *string        `json:"stripePaymentIntentId,omitempty"`
	StartDate             time.Time      `json:"startDate"`
	EndDate               *time.Time     `json:"endDate,omitempty"`
	NextBillingDate       *time.Time     `json:"nextBillingDate,omitempty"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
}

// IsAdoption - активная кампания этого типа закрепляет язык за партнером
func (c Campaign) IsAdoption() bool {
	return c.Type == CampaignTypeAdoptLanguage
}

// IsOneTime - кампания без подписки Stripe
func (c Campaign) IsOneTime() bool {
	return c.StripeSubscriptionID == nil || *c.StripeSubscriptionID == ""
}

// CampaignFilter фильтр для административного списка кампаний
type CampaignFilter struct {
	Status     CampaignStatus
	Type       CampaignType
	LanguageID string
}

// CampaignDetails кампания вместе с языком и партнером, для ответов админки
type CampaignDetails struct {
	Campaign
	LanguageName string `json:"languageName"`
	PartnerName  string `json:"partnerName"`
	PartnerEmail string `json:"partnerEmail"`
}
