package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/repository"
	"github.com/loveworld-europe/donations/pkg/logger"
)

// WebhookEventRepository журнал обработанных событий Stripe
type WebhookEventRepository struct {
	db  DB
	log *logger.Logger
}

// NewWebhookEventRepository создает новый журнал событий
func NewWebhookEventRepository(db DB, log *logger.Logger) *WebhookEventRepository {
	return &WebhookEventRepository{db: db, log: log}
}

// Exists проверяет, было ли событие уже обработано
func (r *WebhookEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM webhook_events WHERE id = $1)`, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check webhook event: %w", err)
	}
	return exists, nil
}

// Record записывает событие
func (r *WebhookEventRepository) Record(ctx context.Context, e *domain.WebhookEvent) error {
	now := time.Now().UTC()
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = now
	}
	if e.ProcessedAt.IsZero() {
		e.ProcessedAt = now
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO webhook_events (id, type, outcome, received_at, processed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.Type, e.Outcome, e.ReceivedAt, e.ProcessedAt,
	)
	if err != nil {
		if mapped := mapError(err); mapped == repository.ErrDuplicate {
			return mapped
		}
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}
