package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSyncCursorTest(t *testing.T) (*PgSyncCursorRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPgSyncCursorRepository(mockPool, logger), mockPool
}

func TestPgSyncCursorRepository_ListActive(t *testing.T) {
	repo, mockPool := setupSyncCursorTest(t)
	defer mockPool.Close()
	ctx := context.Background()

	t.Run("ReturnsActiveCursors", func(t *testing.T) {
		rows := mockPool.NewRows([]string{"namespace", "municipality_id", "latest_synced_sequence_number", "active"}).
			AddRow("CONTACTCENTER", "2281", int64(42), true).
			AddRow("CONTACTCENTER", "2282", int64(7), true)

		mockPool.ExpectQuery(`SELECT namespace, municipality_id, latest_synced_sequence_number, active\s+FROM sync_cursors\s+WHERE active`).
			WillReturnRows(rows)

		cursors, err := repo.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, cursors, 2)
		assert.Equal(t, int64(42), cursors[0].LatestSyncedSequenceNumber)
		assert.Equal(t, "2282", cursors[1].MunicipalityID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("PropagatesQueryError", func(t *testing.T) {
		mockPool.ExpectQuery(`FROM sync_cursors`).WillReturnError(errors.New("connection reset"))

		cursors, err := repo.ListActive(ctx)
		require.Error(t, err)
		assert.Nil(t, cursors)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgSyncCursorRepository_Advance(t *testing.T) {
	repo, mockPool := setupSyncCursorTest(t)
	defer mockPool.Close()
	ctx := context.Background()

	t.Run("RaisesWatermark", func(t *testing.T) {
		mockPool.ExpectExec(`UPDATE sync_cursors\s+SET latest_synced_sequence_number = \$1\s+WHERE namespace = \$2 AND municipality_id = \$3 AND latest_synced_sequence_number < \$1`).
			WithArgs(int64(42), "CONTACTCENTER", "2281").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.Advance(ctx, "CONTACTCENTER", "2281", 42)
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("LowerSequenceNumberIsANoOp", func(t *testing.T) {
		mockPool.ExpectExec(`UPDATE sync_cursors`).
			WithArgs(int64(5), "CONTACTCENTER", "2281").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		// The guard makes the statement affect zero rows; not an error.
		err := repo.Advance(ctx, "CONTACTCENTER", "2281", 5)
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("PropagatesExecError", func(t *testing.T) {
		mockPool.ExpectExec(`UPDATE sync_cursors`).
			WithArgs(int64(42), "CONTACTCENTER", "2281").
			WillReturnError(errors.New("connection reset"))

		err := repo.Advance(ctx, "CONTACTCENTER", "2281", 42)
		assert.Error(t, err)
	})
}
