package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loveworld-europe/donations/internal/clock"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/kafka"
	"github.com/loveworld-europe/donations/internal/metrics"
	"github.com/loveworld-europe/donations/internal/repository"
	"github.com/loveworld-europe/donations/pkg/logger"
)

// ExpiryAction итог обработки одной истекшей кампании
type ExpiryAction string

const (
	ActionReleased     ExpiryAction = "RELEASED"
	ActionStillAdopted ExpiryAction = "CAMPAIGN_COMPLETED_BUT_LANGUAGE_STILL_ADOPTED"
	ActionError        ExpiryAction = "ERROR"
)

// Результаты запуска (метка метрик)
const (
	runOutcomeSuccess = "success"
	runOutcomePartial = "partial"
	runOutcomeFailed  = "failed"
)

// ExpiryPreview кампании, у которых скоро наступает дата списания
type ExpiryPreview struct {
	CheckedAt        time.Time                `json:"checkedAt"`
	ExpiringSoon     []domain.CampaignDetails `json:"expiringSoon"`
	ExpiringThisWeek []domain.CampaignDetails `json:"expiringThisWeek"`
}

// ExpiryResult результат по одной кампании
type ExpiryResult struct {
	CampaignID           string       `json:"campaignId"`
	LanguageID           string       `json:"languageId"`
	LanguageName         string       `json:"languageName"`
	PartnerName          string       `json:"partnerName"`
	PartnerEmail         string       `json:"partnerEmail"`
	Action               ExpiryAction `json:"action"`
	OtherActiveCampaigns int          `json:"otherActiveCampaigns,omitempty"`
	Error                string       `json:"error,omitempty"`
}

// ExpiryReport итог запуска очистки
type ExpiryReport struct {
	ProcessedAt      time.Time      `json:"processedAt"`
	ExpiredCampaigns int            `json:"expiredCampaigns"`
	Results          []ExpiryResult `json:"results"`
}

// ExpiryService завершает истекшие разовые усыновления и освобождает языки
type ExpiryService struct {
	campaigns  repository.CampaignRepository
	publisher  kafka.Publisher
	metrics    metrics.DonationMetrics
	clock      clock.Clock
	background *Background
	log        *logger.Logger
}

// NewExpiryService конструктор сервиса
func NewExpiryService(
	campaigns repository.CampaignRepository,
	publisher kafka.Publisher,
	m metrics.DonationMetrics,
	clk clock.Clock,
	background *Background,
	log *logger.Logger,
) *ExpiryService {
	return &ExpiryService{
		campaigns:  campaigns,
		publisher:  publisher,
		metrics:    m,
		clock:      clk,
		background: background,
		log:        log,
	}
}

// Preview возвращает ACTIVE кампании с датой списания в ближайшие сутки и неделю
func (s *ExpiryService) Preview(ctx context.Context) (*ExpiryPreview, error) {
	now := s.clock.Now().UTC()

	soon, err := s.campaigns.ListActiveBillingBetween(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		s.log.Errorw("Failed to list campaigns expiring soon", "error", err)
		return nil, internalError("list expiring campaigns", err)
	}
	week, err := s.campaigns.ListActiveBillingBetween(ctx, now, now.Add(7*24*time.Hour))
	if err != nil {
		s.log.Errorw("Failed to list campaigns expiring this week", "error", err)
		return nil, internalError("list expiring campaigns", err)
	}

	return &ExpiryPreview{
		CheckedAt:        now,
		ExpiringSoon:     nonNil(soon),
		ExpiringThisWeek: nonNil(week),
	}, nil
}

// Run завершает истекшие кампании. Каждая кампания обрабатывается в своей
// транзакции; ошибка по одной кампании попадает в результаты и не прерывает запуск.
func (s *ExpiryService) Run(ctx context.Context) (*ExpiryReport, error) {
	now := s.clock.Now().UTC()
	s.log.Infow("Starting expiry sweep", "now", now)

	expired, err := s.campaigns.ListExpiredOneTimeAdoptions(ctx, now)
	if err != nil {
		s.metrics.IncExpiryRun(runOutcomeFailed)
		s.log.Errorw("Failed to list expired campaigns", "error", err)
		return nil, internalError("list expired campaigns", err)
	}

	report := &ExpiryReport{ProcessedAt: now, Results: make([]ExpiryResult, 0, len(expired))}
	failures := 0
	for _, c := range expired {
		result := s.expire(ctx, c, now)
		if result.Action == ActionError {
			failures++
		} else {
			report.ExpiredCampaigns++
		}
		s.metrics.IncExpiredCampaign(string(result.Action))
		report.Results = append(report.Results, result)
	}

	outcome := runOutcomeSuccess
	if failures > 0 {
		outcome = runOutcomePartial
	}
	s.metrics.IncExpiryRun(outcome)
	s.log.Infow("Expiry sweep finished",
		"found", len(expired),
		"expired", report.ExpiredCampaigns,
		"failed", failures,
	)
	return report, nil
}

func (s *ExpiryService) expire(ctx context.Context, c domain.CampaignDetails, now time.Time) ExpiryResult {
	result := ExpiryResult{
		CampaignID:   c.ID,
		LanguageID:   c.LanguageID,
		LanguageName: c.LanguageName,
		PartnerName:  c.PartnerName,
		PartnerEmail: c.PartnerEmail,
	}

	release, err := s.campaigns.Complete(ctx, c.ID, now)
	if err != nil {
		result.Action = ActionError
		result.Error = expiryErrorMessage(err)
		s.log.Errorw("Failed to expire campaign", "campaignId", c.ID, "error", err)
		return result
	}

	if release.Released {
		result.Action = ActionReleased
	} else {
		result.Action = ActionStillAdopted
		result.OtherActiveCampaigns = release.OtherActive
	}
	s.log.Infow("Campaign expired",
		"campaignId", c.ID,
		"languageId", c.LanguageID,
		"action", result.Action,
		"otherActive", release.OtherActive,
	)

	completed := c.Campaign
	completed.Status = domain.CampaignStatusCompleted
	completed.EndDate = &now
	ev := campaignEvent(completed, now)
	ev.LanguageAction = string(result.Action)
	publish(s.background, s.publisher, s.log, kafka.TopicCampaignCompleted, c.ID, ev)
	return result
}

func expiryErrorMessage(err error) string {
	switch {
	case errors.Is(err, repository.ErrStateConflict):
		return "campaign is no longer active"
	case errors.Is(err, repository.ErrNotFound):
		return "campaign not found"
	}
	return fmt.Sprintf("failed to complete campaign: %v", err)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
