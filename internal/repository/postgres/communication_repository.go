package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/pkg/logger"
)

// CommunicationRepository журнал отправленных писем в PostgreSQL
type CommunicationRepository struct {
	db  DB
	log *logger.Logger
}

// NewCommunicationRepository создает новый репозиторий уведомлений
func NewCommunicationRepository(db DB, log *logger.Logger) *CommunicationRepository {
	return &CommunicationRepository{db: db, log: log}
}

// Create записывает факт отправки
func (r *CommunicationRepository) Create(ctx context.Context, c *domain.Communication) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.SentAt.IsZero() {
		c.SentAt = time.Now().UTC()
	}
	if c.Type == "" {
		c.Type = domain.CommunicationTypeEmail
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO communications (id, partner_id, type, subject, content, sent_at, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.PartnerID, c.Type, c.Subject, c.Content, c.SentAt, c.Status, c.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to create communication: %w", err)
	}
	return nil
}

// ListByPartner возвращает историю писем партнера
func (r *CommunicationRepository) ListByPartner(ctx context.Context, partnerID string) ([]domain.Communication, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, partner_id, type, subject, content, sent_at, status, error
		FROM communications WHERE partner_id = $1 ORDER BY sent_at`, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query communications: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Communication, 0)
	for rows.Next() {
		var c domain.Communication
		if err := rows.Scan(&c.ID, &c.PartnerID, &c.Type, &c.Subject, &c.Content, &c.SentAt, &c.Status, &c.Error); err != nil {
			return nil, fmt.Errorf("failed to scan communication: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
