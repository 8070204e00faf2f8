package services

import (
	"context"
	"errors"
	"time"

	"github.com/loveworld-europe/donations/internal/clock"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/email"
	"github.com/loveworld-europe/donations/internal/kafka"
	"github.com/loveworld-europe/donations/internal/repository"
	"github.com/loveworld-europe/donations/internal/stripe"
	"github.com/loveworld-europe/donations/pkg/logger"
)

// CampaignService административные операции над кампаниями и партнерами
type CampaignService struct {
	store      repository.Store
	stripe     stripe.Client
	notifier   Notifier
	publisher  kafka.Publisher
	clock      clock.Clock
	background *Background
	log        *logger.Logger
}

// NewCampaignService конструктор сервиса
func NewCampaignService(
	store repository.Store,
	stripeClient stripe.Client,
	notifier Notifier,
	publisher kafka.Publisher,
	clk clock.Clock,
	background *Background,
	log *logger.Logger,
) *CampaignService {
	return &CampaignService{
		store:      store,
		stripe:     stripeClient,
		notifier:   notifier,
		publisher:  publisher,
		clock:      clk,
		background: background,
		log:        log,
	}
}

// ListLanguages каталог языков для страницы оформления
func (s *CampaignService) ListLanguages(ctx context.Context, filter domain.LanguageFilter) ([]domain.Language, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		var errs domain.ValidationErrors
		errs.Add("status", "must be one of [AVAILABLE ADOPTED PENDING WAITLIST]")
		return nil, errs
	}
	languages, err := s.store.Languages.List(ctx, filter)
	if err != nil {
		s.log.Errorw("Failed to list languages", "error", err)
		return nil, internalError("list languages", err)
	}
	return nonNil(languages), nil
}

// GetLanguage возвращает язык или domain.ErrLanguageNotFound
func (s *CampaignService) GetLanguage(ctx context.Context, id string) (*domain.Language, error) {
	language, err := s.store.Languages.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.ErrLanguageNotFound
	}
	if err != nil {
		s.log.Errorw("Failed to load language", "languageId", id, "error", err)
		return nil, internalError("load language", err)
	}
	return language, nil
}

// List возвращает кампании по фильтру
func (s *CampaignService) List(ctx context.Context, filter domain.CampaignFilter) ([]domain.CampaignDetails, error) {
	campaigns, err := s.store.Campaigns.List(ctx, filter)
	if err != nil {
		s.log.Errorw("Failed to list campaigns", "error", err)
		return nil, internalError("list campaigns", err)
	}
	return nonNil(campaigns), nil
}

// Cancel отменяет кампанию: подписку в Stripe, затем запись и статус языка
func (s *CampaignService) Cancel(ctx context.Context, id, cancelledBy string) (*domain.Campaign, error) {
	log := s.log.With("campaignId", id, "cancelledBy", cancelledBy)

	campaign, err := s.store.Campaigns.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.ErrCampaignNotFound
	}
	if err != nil {
		return nil, internalError("load campaign", err)
	}
	if campaign.Status == domain.CampaignStatusCancelled {
		log.Infow("Campaign already cancelled")
		return campaign, nil
	}

	if !campaign.IsOneTime() {
		if err := s.stripe.CancelSubscription(ctx, *campaign.StripeSubscriptionID); err != nil {
			log.Errorw("Failed to cancel Stripe subscription", "error", err)
			return nil, err
		}
	}

	now := s.clock.Now().UTC()
	release, err := s.store.Campaigns.Cancel(ctx, campaign.ID, now)
	if err != nil {
		log.Errorw("Failed to cancel campaign", "error", err)
		return nil, internalError("cancel campaign", err)
	}

	action := languageAction(campaign, release)
	campaign.Status = domain.CampaignStatusCancelled
	campaign.EndDate = &now
	campaign.UpdatedAt = now
	log.Infow("Campaign cancelled by admin", "languageAction", action)

	ev := campaignEvent(*campaign, now)
	ev.LanguageAction = action
	publish(s.background, s.publisher, s.log, kafka.TopicCampaignCancelled, campaign.ID, ev)
	return campaign, nil
}

// SendImpactReport собирает платежи партнера за последний месяц и отправляет отчет
func (s *CampaignService) SendImpactReport(ctx context.Context, partnerID string) (email.Result, error) {
	partner, err := s.store.Partners.GetByID(ctx, partnerID)
	if errors.Is(err, repository.ErrNotFound) {
		return email.Result{}, domain.ErrPartnerNotFound
	}
	if err != nil {
		return email.Result{}, internalError("load partner", err)
	}

	now := s.clock.Now().UTC()
	since := now.AddDate(0, -1, 0)

	campaigns, err := s.store.Campaigns.ListByPartner(ctx, partner.ID)
	if err != nil {
		return email.Result{}, internalError("list partner campaigns", err)
	}
	payments, err := s.store.Payments.ListByPartnerSince(ctx, partner.ID, since)
	if err != nil {
		return email.Result{}, internalError("list partner payments", err)
	}

	report := email.ImpactReport{
		Recipient: email.Recipient{PartnerID: partner.ID, Email: partner.Email, FirstName: partner.FirstName},
		Period:    since.Format("January 2006"),
	}
	for _, c := range campaigns {
		if c.Status != domain.CampaignStatusActive {
			continue
		}
		name := ""
		if language, err := s.store.Languages.GetByID(ctx, c.LanguageID); err == nil {
			name = language.Name
		}
		report.Campaigns = append(report.Campaigns, email.ImpactCampaign{
			LanguageName: name,
			Type:         c.Type,
			Amount:       c.MonthlyAmount,
			Currency:     c.Currency,
		})
	}
	report.TotalGiven, report.Currency, report.PaymentCount = sumSucceeded(payments)

	result := s.notifier.SendMonthlyImpactReport(ctx, report)
	s.log.Infow("Impact report sent", "partnerId", partner.ID, "success", result.Success, "payments", report.PaymentCount)
	return result, nil
}

// sumSucceeded суммирует успешные платежи в валюте, по которой их больше всего
func sumSucceeded(payments []domain.Payment) (int64, string, int) {
	totals := map[string]int64{}
	counts := map[string]int{}
	for _, p := range payments {
		if p.Status != domain.PaymentStatusSucceeded {
			continue
		}
		totals[p.Currency] += p.Amount
		counts[p.Currency]++
	}

	currency := ""
	for c := range totals {
		if currency == "" || counts[c] > counts[currency] || (counts[c] == counts[currency] && c < currency) {
			currency = c
		}
	}
	if currency == "" {
		return 0, "GBP", 0
	}
	return totals[currency], currency, counts[currency]
}

// DashboardSource статистика для панели администратора
type DashboardSource interface {
	DashboardStats(ctx context.Context, since time.Time) (*domain.DashboardStats, error)
}

// DashboardService собирает сводку за последние 30 дней
type DashboardService struct {
	source DashboardSource
	clock  clock.Clock
	log    *logger.Logger
}

// NewDashboardService конструктор сервиса
func NewDashboardService(source DashboardSource, clk clock.Clock, log *logger.Logger) *DashboardService {
	return &DashboardService{source: source, clock: clk, log: log}
}

// Stats возвращает сводку
func (s *DashboardService) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	since := s.clock.Now().UTC().AddDate(0, 0, -30)
	stats, err := s.source.DashboardStats(ctx, since)
	if err != nil {
		s.log.Errorw("Failed to build dashboard stats", "error", err)
		return nil, internalError("dashboard stats", err)
	}
	return stats, nil
}
