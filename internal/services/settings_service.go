package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loveworld-europe/donations/internal/clock"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/repository"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/loveworld-europe/donations/pkg/req"
)

// CheckoutSettingsService читает и сохраняет настройки страницы оплаты
type CheckoutSettingsService struct {
	repo  repository.CheckoutSettingsRepository
	clock clock.Clock
	log   *logger.Logger
}

// NewCheckoutSettingsService создает сервис настроек
func NewCheckoutSettingsService(repo repository.CheckoutSettingsRepository, clk clock.Clock, log *logger.Logger) *CheckoutSettingsService {
	return &CheckoutSettingsService{repo: repo, clock: clk, log: log}
}

// Get возвращает сохраненные настройки или значения по умолчанию
func (s *CheckoutSettingsService) Get(ctx context.Context) (*domain.CheckoutSettings, error) {
	settings, err := s.repo.Get(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		defaults := domain.DefaultCheckoutSettings()
		return &defaults, nil
	}
	if err != nil {
		s.log.Errorw("Failed to load checkout settings", "error", err)
		return nil, fmt.Errorf("load checkout settings: %w", err)
	}
	return settings, nil
}

// Upsert проверяет и сохраняет настройки под ключом domain.CheckoutSettingsKey
func (s *CheckoutSettingsService) Upsert(ctx context.Context, in domain.CheckoutSettings, updatedBy string) (*domain.CheckoutSettings, error) {
	in.ID = domain.CheckoutSettingsKey
	in.DefaultCurrency = strings.ToUpper(strings.TrimSpace(in.DefaultCurrency))
	for i, c := range in.Currencies {
		in.Currencies[i] = strings.ToUpper(strings.TrimSpace(c))
	}

	if errs := ValidateCheckoutSettings(in); errs.HasErrors() {
		s.log.Warnw("Checkout settings rejected", "errors", errs.Error(), "updatedBy", updatedBy)
		return nil, errs
	}

	in.UpdatedAt = s.clock.Now().UTC()
	in.UpdatedBy = updatedBy
	if err := s.repo.Upsert(ctx, &in); err != nil {
		s.log.Errorw("Failed to save checkout settings", "error", err)
		return nil, fmt.Errorf("save checkout settings: %w", err)
	}

	s.log.Infow("Checkout settings updated", "updatedBy", updatedBy, "currencies", in.Currencies)
	return &in, nil
}

// ValidateCheckoutSettings проверяет теги структуры и связи между полями
func ValidateCheckoutSettings(in domain.CheckoutSettings) domain.ValidationErrors {
	var errs domain.ValidationErrors
	if err := req.IsValid(in); err != nil {
		errs = validationErrors(err)
	}

	if in.DefaultCurrency != "" && !in.SupportsCurrency(in.DefaultCurrency) {
		errs.Add("defaultCurrency", "must be one of currencies")
	}
	for i, amount := range in.PresetAmounts {
		if amount < in.MinimumAmount || amount > in.MaximumAmount {
			errs.Add(fmt.Sprintf("presetAmounts[%d]", i), "must be between minimumAmount and maximumAmount")
		}
	}
	seen := make(map[string]bool, len(in.Currencies))
	for i, c := range in.Currencies {
		if seen[c] {
			errs.Add(fmt.Sprintf("currencies[%d]", i), "must be unique")
		}
		seen[c] = true
	}
	return errs
}
