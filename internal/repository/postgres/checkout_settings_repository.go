package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/pkg/logger"
)

// CheckoutSettingsRepository хранит настройки страницы оплаты
type CheckoutSettingsRepository struct {
	db  DB
	log *logger.Logger
}

// NewCheckoutSettingsRepository создает новый репозиторий настроек
func NewCheckoutSettingsRepository(db DB, log *logger.Logger) *CheckoutSettingsRepository {
	return &CheckoutSettingsRepository{db: db, log: log}
}

// Get возвращает сохраненные настройки
func (r *CheckoutSettingsRepository) Get(ctx context.Context) (*domain.CheckoutSettings, error) {
	var s domain.CheckoutSettings
	err := r.db.QueryRow(ctx, `
		SELECT id, currencies, default_currency, preset_amounts, minimum_amount, maximum_amount,
			adoption_amount, sponsorship_amount, hero_title, hero_subtitle, thank_you_message,
			updated_at, updated_by
		FROM checkout_settings WHERE id = $1`, domain.CheckoutSettingsKey,
	).Scan(
		&s.ID, &s.Currencies, &s.DefaultCurrency, &s.PresetAmounts, &s.MinimumAmount, &s.MaximumAmount,
		&s.AdoptionAmount, &s.SponsorshipAmount, &s.HeroTitle, &s.HeroSubtitle, &s.ThankYouMessage,
		&s.UpdatedAt, &s.UpdatedBy,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &s, nil
}

// Upsert сохраняет настройки под единственным ключом
func (r *CheckoutSettingsRepository) Upsert(ctx context.Context, s *domain.CheckoutSettings) error {
	s.ID = domain.CheckoutSettingsKey
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	if s.PresetAmounts == nil {
		s.PresetAmounts = []int64{}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO checkout_settings (id, currencies, default_currency, preset_amounts, minimum_amount,
			maximum_amount, adoption_amount, sponsorship_amount, hero_title, hero_subtitle,
			thank_you_message, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			currencies = EXCLUDED.currencies,
			default_currency = EXCLUDED.default_currency,
			preset_amounts = EXCLUDED.preset_amounts,
			minimum_amount = EXCLUDED.minimum_amount,
			maximum_amount = EXCLUDED.maximum_amount,
			adoption_amount = EXCLUDED.adoption_amount,
			sponsorship_amount = EXCLUDED.sponsorship_amount,
			hero_title = EXCLUDED.hero_title,
			hero_subtitle = EXCLUDED.hero_subtitle,
			thank_you_message = EXCLUDED.thank_you_message,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by`,
		s.ID, s.Currencies, s.DefaultCurrency, s.PresetAmounts, s.MinimumAmount,
		s.MaximumAmount, s.AdoptionAmount, s.SponsorshipAmount, s.HeroTitle, s.HeroSubtitle,
		s.ThankYouMessage, s.UpdatedAt, s.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert checkout settings: %w", err)
	}
	r.log.Infow("Checkout settings saved", "updatedBy", s.UpdatedBy)
	return nil
}
