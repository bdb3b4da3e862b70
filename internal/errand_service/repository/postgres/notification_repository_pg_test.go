package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/municipio/support-management/internal/errand_service/domain"
)

func setupNotificationTest(t *testing.T) (*PgNotificationRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPgNotificationRepository(mockPool, logger), mockPool
}

func TestPgNotificationRepository_Create(t *testing.T) {
	repo, mockPool := setupNotificationTest(t)
	defer mockPool.Close()
	ctx := context.Background()

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	notification := domain.NewSuspensionLiftedNotification("adm01", "Anna Andersson", uuid.New(), now)

	mockPool.ExpectExec(`INSERT INTO notifications`).
		WithArgs(notification.ID, "adm01", "Anna Andersson",
			"UPDATE", "SUSPENSION", domain.SuspensionLiftedDescription,
			notification.ErrandID, notification.Expires, false, false, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(ctx, notification)
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgNotificationRepository_ExistsUnacknowledged(t *testing.T) {
	repo, mockPool := setupNotificationTest(t)
	defer mockPool.Close()
	ctx := context.Background()

	errandID := uuid.New()
	createdAfter := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	t.Run("Exists", func(t *testing.T) {
		mockPool.ExpectQuery(`SELECT EXISTS`).
			WithArgs("adm01", errandID, domain.SuspensionLiftedDescription, createdAfter).
			WillReturnRows(mockPool.NewRows([]string{"exists"}).AddRow(true))

		exists, err := repo.ExistsUnacknowledged(ctx, "adm01", errandID, domain.SuspensionLiftedDescription, createdAfter)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("DoesNotExist", func(t *testing.T) {
		mockPool.ExpectQuery(`SELECT EXISTS`).
			WithArgs("adm01", errandID, domain.SuspensionLiftedDescription, createdAfter).
			WillReturnRows(mockPool.NewRows([]string{"exists"}).AddRow(false))

		exists, err := repo.ExistsUnacknowledged(ctx, "adm01", errandID, domain.SuspensionLiftedDescription, createdAfter)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestPgNotificationRepository_DeleteExpired(t *testing.T) {
	repo, mockPool := setupNotificationTest(t)
	defer mockPool.Close()
	ctx := context.Background()
	now := time.Date(2026, 9, 1, 2, 0, 0, 0, time.UTC)

	t.Run("ReturnsDeletedCount", func(t *testing.T) {
		mockPool.ExpectExec(`DELETE FROM notifications\s+WHERE expires < \$1`).
			WithArgs(now).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))

		deleted, err := repo.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(3), deleted)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("PropagatesExecError", func(t *testing.T) {
		mockPool.ExpectExec(`DELETE FROM notifications`).
			WithArgs(now).
			WillReturnError(errors.New("connection reset"))

		deleted, err := repo.DeleteExpired(ctx, now)
		require.Error(t, err)
		assert.Zero(t, deleted)
	})
}
