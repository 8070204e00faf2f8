package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/repository"
	"github.com/loveworld-europe/donations/pkg/logger"
)

const paymentColumns = `id, campaign_id, partner_id, amount, currency, status,
	stripe_payment_intent_id, stripe_invoice_id, payment_date, failure_reason`

// PaymentRepository реализация журнала платежей через PostgreSQL
type PaymentRepository struct {
	db  DB
	log *logger.Logger
}

// NewPaymentRepository создает новый репозиторий платежей
func NewPaymentRepository(db DB, log *logger.Logger) *PaymentRepository {
	return &PaymentRepository{db: db, log: log}
}

// Create добавляет запись о платеже
func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PaymentDate.IsZero() {
		p.PaymentDate = time.Now().UTC()
	}

	err := insertPayment(ctx, r.db, p)
	if errors.Is(err, repository.ErrDuplicate) {
		r.log.Debugw("Payment already recorded", "campaignID", p.CampaignID, "status", p.Status)
	}
	return err
}

// insertPayment общая вставка для пула и транзакции
func insertPayment(ctx context.Context, db execer, p *domain.Payment) error {
	_, err := db.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.CampaignID, p.PartnerID, p.Amount, p.Currency, p.Status,
		p.StripePaymentIntentID, p.StripeInvoiceID, p.PaymentDate, p.FailureReason,
	)
	if err != nil {
		if mapped := mapError(err); mapped == repository.ErrDuplicate {
			return mapped
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// ListByCampaign возвращает платежи кампании в хронологическом порядке
func (r *PaymentRepository) ListByCampaign(ctx context.Context, campaignID string) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE campaign_id = $1 ORDER BY payment_date`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	return collectPayments(rows)
}

// ListByPartnerSince возвращает платежи партнера начиная с since
func (r *PaymentRepository) ListByPartnerSince(ctx context.Context, partnerID string, since time.Time) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE partner_id = $1 AND payment_date >= $2
		ORDER BY payment_date`, partnerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query partner payments: %w", err)
	}
	return collectPayments(rows)
}

func collectPayments(rows pgx.Rows) ([]domain.Payment, error) {
	defer rows.Close()

	out := make([]domain.Payment, 0)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(
			&p.ID, &p.CampaignID, &p.PartnerID, &p.Amount, &p.Currency, &p.Status,
			&p.StripePaymentIntentID, &p.StripeInvoiceID, &p.PaymentDate, &p.FailureReason,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return out, nil
}
