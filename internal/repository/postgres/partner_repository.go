package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/repository"
	"github.com/loveworld-europe/donations/pkg/logger"
)

const partnerColumns = `id, email, first_name, last_name, organization, phone, country,
	stripe_customer_id, billing_address, created_at, updated_at`

// PartnerRepository реализация репозитория партнеров через PostgreSQL
type PartnerRepository struct {
	db  DB
	log *logger.Logger
}

// NewPartnerRepository создает новый репозиторий партнеров
func NewPartnerRepository(db DB, log *logger.Logger) *PartnerRepository {
	return &PartnerRepository{db: db, log: log}
}

func scanPartner(row pgx.Row) (*domain.Partner, error) {
	var (
		p       domain.Partner
		address []byte
	)
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.FirstName,
		&p.LastName,
		&p.Organization,
		&p.Phone,
		&p.Country,
		&p.StripeCustomerID,
		&address,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(address) > 0 {
		var a domain.Address
		if err := json.Unmarshal(address, &a); err != nil {
			return nil, fmt.Errorf("decode billing address: %w", err)
		}
		p.BillingAddress = &a
	}
	return &p, nil
}

// GetByID возвращает партнера по ID
func (r *PartnerRepository) GetByID(ctx context.Context, id string) (*domain.Partner, error) {
	p, err := scanPartner(r.db.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partners WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

// GetByEmail возвращает партнера по email
func (r *PartnerRepository) GetByEmail(ctx context.Context, email string) (*domain.Partner, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	p, err := scanPartner(r.db.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partners WHERE email = $1`, email))
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

// Create создает нового партнера
func (r *PartnerRepository) Create(ctx context.Context, p *domain.Partner) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	var address []byte
	if p.BillingAddress != nil {
		b, err := json.Marshal(p.BillingAddress)
		if err != nil {
			return fmt.Errorf("encode billing address: %w", err)
		}
		address = b
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO partners (`+partnerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Email, p.FirstName, p.LastName, p.Organization, p.Phone, p.Country,
		p.StripeCustomerID, address, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if mapped := mapError(err); mapped == repository.ErrDuplicate {
			return mapped
		}
		return fmt.Errorf("failed to create partner: %w", err)
	}
	return nil
}

// SetStripeCustomerID сохраняет ID клиента Stripe
func (r *PartnerRepository) SetStripeCustomerID(ctx context.Context, partnerID, customerID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE partners SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`,
		partnerID, customerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update partner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
