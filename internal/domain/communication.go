package domain

import "time"

// CommunicationType канал уведомления
type CommunicationType string

const CommunicationTypeEmail CommunicationType = "EMAIL"

// CommunicationStatus результат отправки
type CommunicationStatus string

const (
	CommunicationStatusSent   CommunicationStatus = "SENT"
	CommunicationStatusFailed CommunicationStatus = "FAILED"
)

// Communication - запись аудита исходящих уведомлений
type Communication struct {
	ID        string              `json:"id"`
	PartnerID string              `json:"partnerId"`
	Type      CommunicationType   `json:"type"`
	Subject   string              `json:"subject"`
	Content   string              `json:"content"`
	SentAt    time.Time           `json:"sentAt"`
	Status    CommunicationStatus `json:"status"`
	Error     *string             `json:"error,omitempty"`
}
