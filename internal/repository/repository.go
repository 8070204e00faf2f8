package repository

import (
	"context"
	"time"

	"github.com/loveworld-europe/donations/internal/domain"
)

// LanguageRepository каталог языковых каналов
type LanguageRepository interface {
	// GetByID возвращает язык по ID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.Language, error)

	// List возвращает каталог, отсортированный по приоритету и имени.
	List(ctx context.Context, filter domain.LanguageFilter) ([]domain.Language, error)
}

// PartnerRepository хранилище партнеров. Email нормализуется к нижнему регистру.
type PartnerRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Partner, error)
	GetByEmail(ctx context.Context, email string) (*domain.Partner, error)

	// Create возвращает ErrDuplicate, если партнер с таким email уже есть.
	Create(ctx context.Context, partner *domain.Partner) error

	// SetStripeCustomerID заполняет stripe_customer_id.
	SetStripeCustomerID(ctx context.Context, partnerID, customerID string) error
}

// LanguageRelease результат завершения или отмены кампании для языка
type LanguageRelease struct {
	// Released язык переведен в AVAILABLE
	Released bool
	// OtherActive число других ACTIVE кампаний (любого типа) того же языка
	OtherActive int
}

// CampaignRepository хранилище кампаний.
// Методы, меняющие жизненный цикл, атомарно поддерживают статус языка.
type CampaignRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*domain.Campaign, error)
	GetByStripePaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Campaign, error)

	// HasActiveAdoption - есть ли у языка ACTIVE кампания ADOPT_LANGUAGE.
	HasActiveAdoption(ctx context.Context, languageID string) (bool, error)

	// Create сохраняет кампанию. Для ACTIVE ADOPT_LANGUAGE в той же транзакции
	// переводит язык в ADOPTED; конкурентное усыновление дает ErrDuplicate,
	// отсутствующий язык дает ErrNotFound, уже сохраненный ID или объект Stripe
	// дает ErrStateConflict.
	Create(ctx context.Context, campaign *domain.Campaign) error

	// UpdateBilling обновляет статус и дату следующего списания.
	// nextBillingDate == nil оставляет дату без изменений.
	UpdateBilling(ctx context.Context, id string, status domain.CampaignStatus, nextBillingDate *time.Time) error

	// RecordInvoicePayment в одной транзакции добавляет платеж по счету и обновляет
	// статус и дату списания кампании, как UpdateBilling.
	// Повторный SUCCEEDED платеж по тому же счету дает ErrDuplicate, возврат
	// усыновления в ACTIVE при другом активном усыновлении языка дает ErrStateConflict.
	// В обоих случаях ничего не меняется.
	RecordInvoicePayment(ctx context.Context, payment *domain.Payment, status domain.CampaignStatus, nextBillingDate *time.Time) error

	// Complete переводит ACTIVE кампанию в COMPLETED и освобождает язык,
	// если у него не осталось других активных усыновлений.
	// Кампания не в статусе ACTIVE дает ErrStateConflict.
	Complete(ctx context.Context, id string, at time.Time) (LanguageRelease, error)

	// Cancel переводит кампанию в CANCELLED с endDate и освобождает язык так же, как Complete.
	// Повторная отмена возвращает пустой LanguageRelease без ошибки.
	Cancel(ctx context.Context, id string, at time.Time) (LanguageRelease, error)

	// List возвращает кампании с именами языка и партнера.
	List(ctx context.Context, filter domain.CampaignFilter) ([]domain.CampaignDetails, error)

	// ListActiveBillingBetween - ACTIVE кампании с nextBillingDate в [from, to).
	ListActiveBillingBetween(ctx context.Context, from, to time.Time) ([]domain.CampaignDetails, error)

	// ListExpiredOneTimeAdoptions - ACTIVE ADOPT_LANGUAGE без подписки Stripe
	// и с nextBillingDate строго раньше before.
	ListExpiredOneTimeAdoptions(ctx context.Context, before time.Time) ([]domain.CampaignDetails, error)

	ListByPartner(ctx context.Context, partnerID string) ([]domain.Campaign, error)
}

// PaymentRepository журнал платежей (только добавление)
type PaymentRepository interface {
	// Create возвращает ErrDuplicate для повторного SUCCEEDED платежа по тому же
	// счету или payment intent.
	Create(ctx context.Context, payment *domain.Payment) error

	ListByCampaign(ctx context.Context, campaignID string) ([]domain.Payment, error)
	ListByPartnerSince(ctx context.Context, partnerID string, since time.Time) ([]domain.Payment, error)
}

// CommunicationRepository журнал исходящих уведомлений
type CommunicationRepository interface {
	Create(ctx context.Context, c *domain.Communication) error
	ListByPartner(ctx context.Context, partnerID string) ([]domain.Communication, error)
}

// CheckoutSettingsRepository хранит единственную строку настроек с ключом domain.CheckoutSettingsKey
type CheckoutSettingsRepository interface {
	// Get возвращает ErrNotFound, пока настройки не сохранялись.
	Get(ctx context.Context) (*domain.CheckoutSettings, error)
	Upsert(ctx context.Context, settings *domain.CheckoutSettings) error
}

// WebhookEventRepository журнал обработанных событий Stripe
type WebhookEventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)

	// Record возвращает ErrDuplicate, если событие уже записано.
	Record(ctx context.Context, event *domain.WebhookEvent) error
}

// Store объединяет репозитории одного хранилища
type Store struct {
	Languages        LanguageRepository
	Partners         PartnerRepository
	Campaigns        CampaignRepository
	Payments         PaymentRepository
	Communications   CommunicationRepository
	CheckoutSettings CheckoutSettingsRepository
	WebhookEvents    WebhookEventRepository
}
