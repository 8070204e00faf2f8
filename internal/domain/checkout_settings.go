package domain

import "time"

// CheckoutSettingsKey - единственный ключ строки настроек
const CheckoutSettingsKey = "default"

// CheckoutSettings настройки страницы оформления пожертвования
type CheckoutSettings struct {
	ID                string    `json:"id"`
	Currencies        []string  `json:"currencies" validate:"required,min=1,max=10,dive,len=3,uppercase"`
	DefaultCurrency   string    `json:"defaultCurrency" validate:"required,len=3,uppercase"`
	PresetAmounts     []int64   `json:"presetAmounts" validate:"max=8,dive,gte=100"`
	MinimumAmount     int64     `json:"minimumAmount" validate:"gte=100"`
	MaximumAmount     int64     `json:"maximumAmount" validate:"gtfield=MinimumAmount,lte=10000000"`
	AdoptionAmount    int64     `json:"adoptionAmount" validate:"gte=100"`
	SponsorshipAmount int64     `json:"sponsorshipAmount" validate:"gte=100"`
	HeroTitle         string    `json:"heroTitle" validate:"max=120"`
	HeroSubtitle      string    `json:"heroSubtitle" validate:"max=300"`
	ThankYouMessage   string    `json:"thankYouMessage" validate:"max=500"`
	UpdatedAt         time.Time `json:"updatedAt"`
	UpdatedBy         string    `json:"updatedBy,omitempty"`
}

// DefaultCheckoutSettings значения, которые отдаются до первого сохранения
func DefaultCheckoutSettings() CheckoutSettings {
	return CheckoutSettings{
		ID:                CheckoutSettingsKey,
		Currencies:        []string{"GBP", "EUR", "USD"},
		DefaultCurrency:   "GBP",
		PresetAmounts:     []int64{1000, 2500, 5000, 10000},
		MinimumAmount:     100,
		MaximumAmount:     1000000,
		AdoptionAmount:    15000,
		SponsorshipAmount: 5000,
		HeroTitle:         "Adopt a Language",
		HeroSubtitle:      "Take the Gospel to every nation in their own language.",
		ThankYouMessage:   "Thank you for your partnership.",
	}
}

// SupportsCurrency проверяет, принимается ли валюта на странице оплаты
func (s CheckoutSettings) SupportsCurrency(currency string) bool {
	for _, c := range s.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}
