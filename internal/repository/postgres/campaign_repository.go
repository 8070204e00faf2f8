package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/repository"
	"github.com/loveworld-europe/donations/pkg/logger"
)

const (
	campaignColumns = `c.id, c.type, c.partner_id, c.language_id, c.monthly_amount, c.currency, c.status,
	c.stripe_subscription_id, c.stripe_payment_intent_id, c.start_date, c.end_date, c.next_billing_date,
	c.created_at, c.updated_at`

	campaignDetailsSelect = `SELECT ` + campaignColumns + `,
	l.name, p.first_name, p.last_name, p.email
	FROM campaigns c
	JOIN languages l ON l.id = c.language_id
	JOIN partners p ON p.id = c.partner_id`

	activeAdoptionIndex = "campaigns_one_active_adoption"
)

// CampaignRepository реализация репозитория кампаний через PostgreSQL
type CampaignRepository struct {
	db  DB
	log *logger.Logger
}

// NewCampaignRepository создает новый репозиторий кампаний
func NewCampaignRepository(db DB, log *logger.Logger) *CampaignRepository {
	return &CampaignRepository{db: db, log: log}
}

func campaignDest(c *domain.Campaign) []any {
	return []any{
		&c.ID,
		&c.Type,
		&c.PartnerID,
		&c.LanguageID,
		&c.MonthlyAmount,
		&c.Currency,
		&c.Status,
		&c.StripeSubscriptionID,
		&c.StripePaymentIntentID,
		&c.StartDate,
		&c.EndDate,
		&c.NextBillingDate,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
}

func (r *CampaignRepository) getOne(ctx context.Context, where string, arg any) (*domain.Campaign, error) {
	var c domain.Campaign
	err := r.db.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns c WHERE `+where, arg).Scan(campaignDest(&c)...)
	if err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}

// GetByID возвращает кампанию по ID
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	return r.getOne(ctx, `c.id = $1`, id)
}

// GetByStripeSubscriptionID возвращает кампанию по ID подписки Stripe
func (r *CampaignRepository) GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*domain.Campaign, error) {
	return r.getOne(ctx, `c.stripe_subscription_id = $1`, subscriptionID)
}

// GetByStripePaymentIntentID возвращает разовую кампанию по ID payment intent
func (r *CampaignRepository) GetByStripePaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Campaign, error) {
	return r.getOne(ctx, `c.stripe_payment_intent_id = $1 ORDER BY c.created_at DESC LIMIT 1`, paymentIntentID)
}

// HasActiveAdoption проверяет наличие активной кампании усыновления языка
func (r *CampaignRepository) HasActiveAdoption(ctx context.Context, languageID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM campaigns
			WHERE language_id = $1 AND type = 'ADOPT_LANGUAGE' AND status = 'ACTIVE'
		)`, languageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active adoption: %w", err)
	}
	return exists, nil
}

// Create сохраняет кампанию; для усыновления в той же транзакции помечает язык ADOPTED
func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if c.IsAdoption() && c.Status == domain.CampaignStatusActive {
			// Блокирует строку языка до конца транзакции: конкурентные
			// усыновления выстраиваются в очередь и упираются в уникальный индекс.
			tag, err := tx.Exec(ctx,
				`UPDATE languages SET adoption_status = 'ADOPTED', updated_at = $2 WHERE id = $1`,
				c.LanguageID, now,
			)
			if err != nil {
				return fmt.Errorf("failed to adopt language: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return repository.ErrNotFound
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO campaigns (id, type, partner_id, language_id, monthly_amount, currency, status,
				stripe_subscription_id, stripe_payment_intent_id, start_date, end_date, next_billing_date,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			c.ID, c.Type, c.PartnerID, c.LanguageID, c.MonthlyAmount, c.Currency, c.Status,
			c.StripeSubscriptionID, c.StripePaymentIntentID, c.StartDate, c.EndDate, c.NextBillingDate,
			c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err, activeAdoptionIndex) {
				r.log.Warnw("Concurrent adoption rejected by unique index", "languageID", c.LanguageID)
				return repository.ErrDuplicate
			}
			if mapError(err) == repository.ErrDuplicate {
				// тот же ID или те же объекты Stripe уже сохранены
				return repository.ErrStateConflict
			}
			return fmt.Errorf("failed to create campaign: %w", err)
		}
		return nil
	})
}

// UpdateBilling обновляет статус и дату следующего списания
func (r *CampaignRepository) UpdateBilling(ctx context.Context, id string, status domain.CampaignStatus, nextBillingDate *time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE campaigns
		SET status = $2,
			next_billing_date = COALESCE($3, next_billing_date),
			updated_at = now()
		WHERE id = $1`,
		id, status, nextBillingDate,
	)
	if err != nil {
		if isUniqueViolation(err, activeAdoptionIndex) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to update campaign billing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RecordInvoicePayment добавляет платеж по счету и обновляет биллинг кампании в одной транзакции
func (r *CampaignRepository) RecordInvoicePayment(ctx context.Context, p *domain.Payment, status domain.CampaignStatus, nextBillingDate *time.Time) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PaymentDate.IsZero() {
		p.PaymentDate = time.Now().UTC()
	}

	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := insertPayment(ctx, tx, p); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				r.log.Debugw("Invoice payment already recorded", "campaignID", p.CampaignID)
			}
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE campaigns
			SET status = $2,
				next_billing_date = COALESCE($3, next_billing_date),
				updated_at = now()
			WHERE id = $1`,
			p.CampaignID, status, nextBillingDate,
		)
		if err != nil {
			if isUniqueViolation(err, activeAdoptionIndex) {
				return repository.ErrStateConflict
			}
			return fmt.Errorf("failed to update campaign billing: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

// Complete завершает активную кампанию и при необходимости освобождает язык
func (r *CampaignRepository) Complete(ctx context.Context, id string, at time.Time) (repository.LanguageRelease, error) {
	var release repository.LanguageRelease
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var (
			campaignType domain.CampaignType
			languageID   string
		)
		err := tx.QueryRow(ctx, `
			UPDATE campaigns SET status = 'COMPLETED', end_date = $2, updated_at = $2
			WHERE id = $1 AND status = 'ACTIVE'
			RETURNING type, language_id`,
			id, at,
		).Scan(&campaignType, &languageID)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missingOrConflict(ctx, tx, id)
		}
		if err != nil {
			return fmt.Errorf("failed to complete campaign: %w", err)
		}

		if campaignType != domain.CampaignTypeAdoptLanguage {
			return nil
		}
		release, err = releaseLanguage(ctx, tx, id, languageID, at)
		return err
	})
	return release, err
}

// Cancel отменяет кампанию; повторная отмена ничего не меняет
func (r *CampaignRepository) Cancel(ctx context.Context, id string, at time.Time) (repository.LanguageRelease, error) {
	var release repository.LanguageRelease
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var (
			campaignType domain.CampaignType
			languageID   string
		)
		err := tx.QueryRow(ctx, `
			UPDATE campaigns SET status = 'CANCELLED', end_date = $2, updated_at = $2
			WHERE id = $1 AND status <> 'CANCELLED'
			RETURNING type, language_id`,
			id, at,
		).Scan(&campaignType, &languageID)
		if errors.Is(err, pgx.ErrNoRows) {
			// Уже отменена: повторный вызов ничего не меняет
			err := r.missingOrConflict(ctx, tx, id)
			if errors.Is(err, repository.ErrStateConflict) {
				return nil
			}
			return err
		}
		if err != nil {
			return fmt.Errorf("failed to cancel campaign: %w", err)
		}

		if campaignType != domain.CampaignTypeAdoptLanguage {
			return nil
		}
		release, err = releaseLanguage(ctx, tx, id, languageID, at)
		return err
	})
	return release, err
}

func (r *CampaignRepository) missingOrConflict(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM campaigns WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check campaign: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrStateConflict
}

// releaseLanguage переводит язык в AVAILABLE, если на него не ссылается ни одна ACTIVE кампания
func releaseLanguage(ctx context.Context, tx pgx.Tx, campaignID, languageID string, at time.Time) (repository.LanguageRelease, error) {
	// Блокировка строки языка упорядочивает нас с конкурентным Create
	if _, err := tx.Exec(ctx, `SELECT 1 FROM languages WHERE id = $1 FOR UPDATE`, languageID); err != nil {
		return repository.LanguageRelease{}, fmt.Errorf("failed to lock language: %w", err)
	}

	var others int
	err := tx.QueryRow(ctx, `
		SELECT count(*) FROM campaigns
		WHERE language_id = $1 AND id <> $2 AND status = 'ACTIVE'`,
		languageID, campaignID,
	).Scan(&others)
	if err != nil {
		return repository.LanguageRelease{}, fmt.Errorf("failed to count active campaigns: %w", err)
	}
	if others > 0 {
		return repository.LanguageRelease{OtherActive: others}, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE languages SET adoption_status = 'AVAILABLE', updated_at = $2 WHERE id = $1`,
		languageID, at,
	); err != nil {
		return repository.LanguageRelease{}, fmt.Errorf("failed to release language: %w", err)
	}
	return repository.LanguageRelease{Released: true}, nil
}

// List возвращает кампании по фильтру
func (r *CampaignRepository) List(ctx context.Context, filter domain.CampaignFilter) ([]domain.CampaignDetails, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("c.status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("c.type = $%d", len(args)))
	}
	if filter.LanguageID != "" {
		args = append(args, filter.LanguageID)
		where = append(where, fmt.Sprintf("c.language_id = $%d", len(args)))
	}
	query := campaignDetailsSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY c.next_billing_date NULLS LAST, c.id`
	return r.queryDetails(ctx, query, args...)
}

// ListActiveBillingBetween возвращает активные кампании со списанием в [from, to)
func (r *CampaignRepository) ListActiveBillingBetween(ctx context.Context, from, to time.Time) ([]domain.CampaignDetails, error) {
	return r.queryDetails(ctx, campaignDetailsSelect+`
		WHERE c.status = 'ACTIVE' AND c.next_billing_date >= $1 AND c.next_billing_date < $2
		ORDER BY c.next_billing_date, c.id`, from, to)
}

// ListExpiredOneTimeAdoptions возвращает разовые усыновления с истекшим периодом
func (r *CampaignRepository) ListExpiredOneTimeAdoptions(ctx context.Context, before time.Time) ([]domain.CampaignDetails, error) {
	return r.queryDetails(ctx, campaignDetailsSelect+`
		WHERE c.type = 'ADOPT_LANGUAGE'
		  AND c.status = 'ACTIVE'
		  AND (c.stripe_subscription_id IS NULL OR c.stripe_subscription_id = '')
		  AND c.next_billing_date < $1
		ORDER BY c.next_billing_date, c.id`, before)
}

// ListByPartner возвращает все кампании партнера
func (r *CampaignRepository) ListByPartner(ctx context.Context, partnerID string) ([]domain.Campaign, error) {
	rows, err := r.db.Query(ctx, `SELECT `+campaignColumns+` FROM campaigns c WHERE c.partner_id = $1 ORDER BY c.start_date`, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query partner campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(campaignDest(&c)...); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CampaignRepository) queryDetails(ctx context.Context, query string, args ...any) ([]domain.CampaignDetails, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CampaignDetails, 0)
	for rows.Next() {
		var (
			d                   domain.CampaignDetails
			firstName, lastName string
		)
		dest := append(campaignDest(&d.Campaign), &d.LanguageName, &firstName, &lastName, &d.PartnerEmail)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		d.PartnerName = domain.Partner{FirstName: firstName, LastName: lastName}.FullName()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}
	return out, nil
}
