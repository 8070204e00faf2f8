package domain

import "time"

// AdoptionStatus статус усыновления языкового канала
type AdoptionStatus string

const (
	AdoptionStatusAvailable AdoptionStatus = "AVAILABLE"
	AdoptionStatusAdopted   AdoptionStatus = "ADOPTED"
	AdoptionStatusPending   AdoptionStatus = "PENDING"
	AdoptionStatusWaitlist  AdoptionStatus = "WAITLIST"
)

// Valid проверяет, что статус входит в допустимый набор
func (s AdoptionStatus) Valid() bool {
	switch s {
	case AdoptionStatusAvailable, AdoptionStatusAdopted, AdoptionStatusPending, AdoptionStatusWaitlist:
		return true
	}
	return false
}

// Language представляет языковой вещательный канал
type Language struct {
	ID                          string         `json:"id"`
	Name                        string         `json:"name"`
	NativeName                  string         `json:"nativeName"`
	ISO639Code                  string         `json:"iso639Code"`
	Region                      string         `json:"region"`
	Countries                   []string       `json:"countries"`
	SpeakerCount                int64          `json:"speakerCount"`
	AdoptionStatus              AdoptionStatus `json:"adoptionStatus"`
	TranslationNeedsSponsorship bool           `json:"translationNeedsSponsorship"`
	Priority                    int            `json:"priority"`
	CreatedAt                   time.Time      `json:"createdAt"`
	UpdatedAt                   time.Time      `json:"updatedAt"`
}

// LanguageFilter фильтр для выборки каталога языков
type LanguageFilter struct {
	Status AdoptionStatus
	Region string
}
