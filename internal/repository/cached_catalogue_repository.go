package repository

import (
	"context"
	"time"

	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/pkg/logger"
)

// CachedLanguageRepository реализует LanguageRepository с кешированием
type CachedLanguageRepository struct {
	repo  LanguageRepository
	cache CatalogueCache
	log   *logger.Logger
}

// NewCachedLanguageRepository создает новый репозиторий с кешированием
func NewCachedLanguageRepository(repo LanguageRepository, cache CatalogueCache, log *logger.Logger) LanguageRepository {
	return &CachedLanguageRepository{repo: repo, cache: cache, log: log}
}

// GetByID получает язык по ID (сначала из кеша, потом из БД)
func (r *CachedLanguageRepository) GetByID(ctx context.Context, id string) (*domain.Language, error) {
	cached, err := r.cache.GetCachedLanguage(ctx, id)
	if err != nil {
		r.log.Warnw("Error getting language from cache", "error", err, "languageID", id)
	}
	if cached != nil {
		return cached, nil
	}

	lang, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.CacheLanguage(ctx, lang); err != nil {
		r.log.Warnw("Failed to cache language after fetching", "error", err, "languageID", id)
	}
	return lang, nil
}

// List возвращает каталог (сначала из кеша, потом из БД)
func (r *CachedLanguageRepository) List(ctx context.Context, filter domain.LanguageFilter) ([]domain.Language, error) {
	cached, err := r.cache.GetCachedLanguages(ctx, filter)
	if err != nil {
		r.log.Warnw("Error getting language list from cache", "error", err)
	}
	if cached != nil {
		return cached, nil
	}

	langs, err := r.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if err := r.cache.CacheLanguages(ctx, filter, langs); err != nil {
		r.log.Warnw("Failed to cache language list", "error", err)
	}
	return langs, nil
}

// CachedCampaignRepository сбрасывает кеш каталога, когда кампания
// может изменить статус усыновления языка
type CachedCampaignRepository struct {
	CampaignRepository
	cache CatalogueCache
	log   *logger.Logger
}

// NewCachedCampaignRepository оборачивает репозиторий кампаний
func NewCachedCampaignRepository(repo CampaignRepository, cache CatalogueCache, log *logger.Logger) CampaignRepository {
	return &CachedCampaignRepository{CampaignRepository: repo, cache: cache, log: log}
}

func (r *CachedCampaignRepository) invalidate(ctx context.Context, campaignID string) {
	if err := r.cache.InvalidateLanguages(ctx); err != nil {
		r.log.Warnw("Failed to invalidate language cache", "error", err, "campaignID", campaignID)
	}
}

// Create сохраняет кампанию и сбрасывает кеш каталога для усыновлений
func (r *CachedCampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	if err := r.CampaignRepository.Create(ctx, c); err != nil {
		return err
	}
	if c.IsAdoption() {
		r.invalidate(ctx, c.ID)
	}
	return nil
}

// UpdateBilling обновляет кампанию и сбрасывает кеш каталога
func (r *CachedCampaignRepository) UpdateBilling(ctx context.Context, id string, status domain.CampaignStatus, next *time.Time) error {
	if err := r.CampaignRepository.UpdateBilling(ctx, id, status, next); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

// RecordInvoicePayment записывает платеж и сбрасывает кеш каталога
func (r *CachedCampaignRepository) RecordInvoicePayment(ctx context.Context, p *domain.Payment, status domain.CampaignStatus, next *time.Time) error {
	if err := r.CampaignRepository.RecordInvoicePayment(ctx, p, status, next); err != nil {
		return err
	}
	r.invalidate(ctx, p.CampaignID)
	return nil
}

// Complete завершает кампанию и сбрасывает кеш, если язык освободился
func (r *CachedCampaignRepository) Complete(ctx context.Context, id string, at time.Time) (LanguageRelease, error) {
	rel, err := r.CampaignRepository.Complete(ctx, id, at)
	if err == nil && rel.Released {
		r.invalidate(ctx, id)
	}
	return rel, err
}

// Cancel отменяет кампанию и сбрасывает кеш, если язык освободился
func (r *CachedCampaignRepository) Cancel(ctx context.Context, id string, at time.Time) (LanguageRelease, error) {
	rel, err := r.CampaignRepository.Cancel(ctx, id, at)
	if err == nil && rel.Released {
		r.invalidate(ctx, id)
	}
	return rel, err
}

// CachedCheckoutSettingsRepository реализует CheckoutSettingsRepository с кешированием
type CachedCheckoutSettingsRepository struct {
	repo  CheckoutSettingsRepository
	cache CatalogueCache
	log   *logger.Logger
}

// NewCachedCheckoutSettingsRepository создает новый репозиторий с кешированием
func NewCachedCheckoutSettingsRepository(repo CheckoutSettingsRepository, cache CatalogueCache, log *logger.Logger) CheckoutSettingsRepository {
	return &CachedCheckoutSettingsRepository{repo: repo, cache: cache, log: log}
}

// Get возвращает настройки (сначала из кеша, потом из БД)
func (r *CachedCheckoutSettingsRepository) Get(ctx context.Context) (*domain.CheckoutSettings, error) {
	cached, err := r.cache.GetCachedCheckoutSettings(ctx)
	if err != nil {
		r.log.Warnw("Error getting checkout settings from cache", "error", err)
	}
	if cached != nil {
		return cached, nil
	}

	s, err := r.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.cache.CacheCheckoutSettings(ctx, s); err != nil {
		r.log.Warnw("Failed to cache checkout settings", "error", err)
	}
	return s, nil
}

// Upsert сохраняет настройки и инвалидирует кеш
func (r *CachedCheckoutSettingsRepository) Upsert(ctx context.Context, s *domain.CheckoutSettings) error {
	if err := r.repo.Upsert(ctx, s); err != nil {
		return err
	}
	if err := r.cache.InvalidateCheckoutSettings(ctx); err != nil {
		r.log.Warnw("Failed to invalidate checkout settings cache", "error", err)
	}
	return nil
}

// WithCache оборачивает репозитории каталога, кампаний и настроек кешем
func (s Store) WithCache(cache CatalogueCache, log *logger.Logger) Store {
	s.Languages = NewCachedLanguageRepository(s.Languages, cache, log)
	s.Campaigns = NewCachedCampaignRepository(s.Campaigns, cache, log)
	s.CheckoutSettings = NewCachedCheckoutSettingsRepository(s.CheckoutSettings, cache, log)
	return s
}
