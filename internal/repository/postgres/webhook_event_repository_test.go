package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/repository"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookEventLedger(t *testing.T) {
	ctx := context.Background()
	existsEventSQL := regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM webhook_events WHERE id = $1)`)
	insertEventSQL := regexp.QuoteMeta(`INSERT INTO webhook_events (id, type, outcome, received_at, processed_at)`)

	t.Run("exists", func(t *testing.T) {
		mock := newMock(t)
		repo := NewWebhookEventRepository(mock, logger.NewNop())
		mock.ExpectQuery(existsEventSQL).WithArgs("evt_1").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		seen, err := repo.Exists(ctx, "evt_1")
		require.NoError(t, err)
		assert.True(t, seen)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("record fills timestamps", func(t *testing.T) {
		mock := newMock(t)
		repo := NewWebhookEventRepository(mock, logger.NewNop())
		mock.ExpectExec(insertEventSQL).
			WithArgs("evt_1", "invoice.payment_succeeded", domain.WebhookOutcomeProcessed, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		e := &domain.WebhookEvent{ID: "evt_1", Type: "invoice.payment_succeeded", Outcome: domain.WebhookOutcomeProcessed}
		require.NoError(t, repo.Record(ctx, e))
		assert.False(t, e.ReceivedAt.IsZero())
		assert.False(t, e.ProcessedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("record twice", func(t *testing.T) {
		mock := newMock(t)
		repo := NewWebhookEventRepository(mock, logger.NewNop())
		mock.ExpectExec(insertEventSQL).WithArgs(anyArgs(5)...).WillReturnError(uniqueErr("webhook_events_pkey"))

		err := repo.Record(ctx, &domain.WebhookEvent{ID: "evt_1", Type: "invoice.paid"})
		assert.ErrorIs(t, err, repository.ErrDuplicate)
	})

	t.Run("storage failure", func(t *testing.T) {
		mock := newMock(t)
		repo := NewWebhookEventRepository(mock, logger.NewNop())
		mock.ExpectQuery(existsEventSQL).WithArgs("evt_2").WillReturnError(errors.New("connection refused"))

		_, err := repo.Exists(ctx, "evt_2")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to check webhook event")
	})
}
