package db

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/pkg/logger"
)

// DBClient клиент для отчетных запросов к базе данных.
type DBClient struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewDBClient создает новый экземпляр DBClient.
func NewDBClient(dsn string, log *logger.Logger) (*DBClient, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		log.Errorw("Failed to connect to database", "error", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Errorw("Failed to ping database", "error", err)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DBClient{db: db, log: log}, nil
}

// NewDBClientFromDB оборачивает уже открытое соединение.
func NewDBClientFromDB(db *sqlx.DB, log *logger.Logger) *DBClient {
	return &DBClient{db: db, log: log}
}

// DB возвращает нижележащее соединение (нужно для миграций).
func (dc *DBClient) DB() *sqlx.DB {
	return dc.db
}

// Close закрывает соединение с базой данных.
func (dc *DBClient) Close() error {
	err := dc.db.Close()
	if err != nil {
		dc.log.Errorw("Failed to close database connection", "error", err)
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// DashboardStats собирает сводку по кампаниям и платежам начиная с since.
func (dc *DBClient) DashboardStats(ctx context.Context, since time.Time) (*domain.DashboardStats, error) {
	stats := &domain.DashboardStats{
		GeneratedAt:     time.Now().UTC(),
		Since:           since,
		ActiveCampaigns: []domain.CampaignTypeCount{},
		Revenue:         []domain.CurrencyTotal{},
	}

	err := dc.db.SelectContext(ctx, &stats.ActiveCampaigns, `
		SELECT type, count(*) AS count
		FROM campaigns
		WHERE status = 'ACTIVE'
		GROUP BY type
		ORDER BY type`)
	if err != nil {
		dc.log.Errorw("Failed to count active campaigns", "error", err)
		return nil, fmt.Errorf("failed to count active campaigns: %w", err)
	}

	err = dc.db.GetContext(ctx, &stats.AdoptedLanguages,
		`SELECT count(*) FROM languages WHERE adoption_status = 'ADOPTED'`)
	if err != nil {
		dc.log.Errorw("Failed to count adopted languages", "error", err)
		return nil, fmt.Errorf("failed to count adopted languages: %w", err)
	}

	err = dc.db.SelectContext(ctx, &stats.Revenue, `
		SELECT currency, COALESCE(sum(amount), 0) AS amount, count(*) AS payments
		FROM payments
		WHERE status = 'SUCCEEDED' AND payment_date >= $1
		GROUP BY currency
		ORDER BY currency`, since)
	if err != nil {
		dc.log.Errorw("Failed to sum revenue", "error", err)
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}

	err = dc.db.GetContext(ctx, &stats.FailedPayments,
		`SELECT count(*) FROM payments WHERE status = 'FAILED' AND payment_date >= $1`, since)
	if err != nil {
		dc.log.Errorw("Failed to count failed payments", "error", err)
		return nil, fmt.Errorf("failed to count failed payments: %w", err)
	}

	dc.log.Debugw("Dashboard stats collected", "since", since, "adoptedLanguages", stats.AdoptedLanguages)
	return stats, nil
}
