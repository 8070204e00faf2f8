package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/pkg/logger"
)

const languageColumns = `id, name, native_name, iso639_code, region, countries, speaker_count,
	adoption_status, translation_needs_sponsorship, priority, created_at, updated_at`

// LanguageRepository реализация каталога языков через PostgreSQL
type LanguageRepository struct {
	db  DB
	log *logger.Logger
}

// NewLanguageRepository создает новый репозиторий языков
func NewLanguageRepository(db DB, log *logger.Logger) *LanguageRepository {
	return &LanguageRepository{db: db, log: log}
}

func scanLanguage(row pgx.Row) (*domain.Language, error) {
	var l domain.Language
	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.NativeName,
		&l.ISO639Code,
		&l.Region,
		&l.Countries,
		&l.SpeakerCount,
		&l.AdoptionStatus,
		&l.TranslationNeedsSponsorship,
		&l.Priority,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetByID возвращает язык по ID
func (r *LanguageRepository) GetByID(ctx context.Context, id string) (*domain.Language, error) {
	l, err := scanLanguage(r.db.QueryRow(ctx, `SELECT `+languageColumns+` FROM languages WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return l, nil
}

// List возвращает каталог языков
func (r *LanguageRepository) List(ctx context.Context, filter domain.LanguageFilter) ([]domain.Language, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("adoption_status = $%d", len(args)))
	}
	if filter.Region != "" {
		args = append(args, filter.Region)
		where = append(where, fmt.Sprintf("region = $%d", len(args)))
	}

	query := `SELECT ` + languageColumns + ` FROM languages`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY priority DESC, name`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query languages: %w", err)
	}
	defer rows.Close()

	languages := make([]domain.Language, 0)
	for rows.Next() {
		l, err := scanLanguage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan language: %w", err)
		}
		languages = append(languages, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating languages: %w", err)
	}
	return languages, nil
}
