package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dualtree-engine/pkg/errors"
	"github.com/dualtree-engine/pkg/model"
)

var runRowColumns = []string{
	"id", "rid", "algorithm", "status", "status_info",
	"dataset_key", "result_key", "params", "create_time", "begin_time", "end_time",
}

func sampleRunRow() *sqlmock.Rows {
	params, _ := json.Marshal(model.RunParams{Neighbors: 3})
	return sqlmock.NewRows(runRowColumns).AddRow(
		int64(1), "run-1", model.AlgorithmAllKNN, model.RunStatusPending,
		"", "datasets/run-1.csv", "", params, time.Now(), nil, nil,
	)
}

func TestPostgresRunRepository_GetPendingRuns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRunRepository(db)

	t.Run("GetPendingRuns_Success", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, rid, algorithm").WillReturnRows(sampleRunRow())

		runs, err := repo.GetPendingRuns(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "run-1", runs[0].RunUUID)
		assert.Equal(t, 3, runs[0].Params.Neighbors)
	})

	t.Run("GetPendingRuns_Empty", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, rid, algorithm").WillReturnRows(sqlmock.NewRows(runRowColumns))

		runs, err := repo.GetPendingRuns(context.Background(), 10)
		require.NoError(t, err)
		assert.Empty(t, runs)
	})
}

func TestPostgresRunRepository_GetRunByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRunRepository(db)

	t.Run("GetRunByID_Success", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, rid, algorithm").WithArgs(int64(1)).WillReturnRows(sampleRunRow())

		run, err := repo.GetRunByID(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), run.ID)
	})

	t.Run("GetRunByID_NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, rid, algorithm").WithArgs(int64(999)).WillReturnError(sql.ErrNoRows)

		run, err := repo.GetRunByID(context.Background(), 999)
		assert.Error(t, err)
		assert.Nil(t, run)
		assert.Equal(t, apperrors.CodeNotFound, apperrors.GetErrorCode(err))
	})
}

func TestPostgresRunRepository_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRunRepository(db)

	t.Run("UpdateStatus_Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE dualtree_run SET status").
			WithArgs(model.RunStatusCompleted, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.UpdateStatus(context.Background(), 1, model.RunStatusCompleted))
	})

	t.Run("UpdateStatus_NotFound", func(t *testing.T) {
		mock.ExpectExec("UPDATE dualtree_run SET status").
			WithArgs(model.RunStatusCompleted, int64(999)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateStatus(context.Background(), 999, model.RunStatusCompleted)
		assert.Error(t, err)
		assert.Equal(t, apperrors.CodeNotFound, apperrors.GetErrorCode(err))
	})
}

func TestPostgresRunRepository_SetResultKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRunRepository(db)

	mock.ExpectExec("UPDATE dualtree_run SET result_key").
		WithArgs("results/run-1.json.gz", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetResultKey(context.Background(), 1, "results/run-1.json.gz"))
}

func TestPostgresRunRepository_LockRunForProcessing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRunRepository(db)

	t.Run("Lock_Success", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM dualtree_run").
			WithArgs(int64(1), model.RunStatusPending).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
		mock.ExpectExec("UPDATE dualtree_run SET status").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ok, err := repo.LockRunForProcessing(context.Background(), 1)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Lock_AlreadyClaimed", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM dualtree_run").
			WithArgs(int64(1), model.RunStatusPending).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		ok, err := repo.LockRunForProcessing(context.Background(), 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
