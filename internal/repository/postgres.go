package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	apperrors "github.com/dualtree-engine/pkg/errors"
	"github.com/dualtree-engine/pkg/model"
)

// PostgresRunRepository implements RunRepository for PostgreSQL with
// plain SQL, for deployments that bypass the ORM.
type PostgresRunRepository struct {
	db *sql.DB
}

// NewPostgresRunRepository creates a new PostgresRunRepository.
func NewPostgresRunRepository(db *sql.DB) *PostgresRunRepository {
	return &PostgresRunRepository{db: db}
}

const runColumns = `
	SELECT id, rid, algorithm, status,
		   COALESCE(status_info, ''), COALESCE(dataset_key, ''),
		   COALESCE(result_key, ''), params, create_time, begin_time, end_time
	FROM dualtree_run
`

// GetPendingRuns retrieves runs waiting to be processed.
func (r *PostgresRunRepository) GetPendingRuns(ctx context.Context, limit int) ([]*model.Run, error) {
	query := runColumns + ` WHERE status = $1 ORDER BY id LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, model.RunStatusPending, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to query pending runs", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to read pending runs", err)
	}

	return runs, nil
}

// GetRunByID retrieves a run by its ID.
func (r *PostgresRunRepository) GetRunByID(ctx context.Context, id int64) (*model.Run, error) {
	row := r.db.QueryRowContext(ctx, runColumns+` WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Newf(apperrors.CodeNotFound, "run not found: %d", id)
		}
		return nil, err
	}
	return run, nil
}

// GetRunByUUID retrieves a run by its UUID.
func (r *PostgresRunRepository) GetRunByUUID(ctx context.Context, uuid string) (*model.Run, error) {
	row := r.db.QueryRowContext(ctx, runColumns+` WHERE rid = $1`, uuid)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Newf(apperrors.CodeNotFound, "run not found: %s", uuid)
		}
		return nil, err
	}
	return run, nil
}

// CreateRun inserts a new run.
func (r *PostgresRunRepository) CreateRun(ctx context.Context, run *model.Run) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to encode run params", err)
	}

	query := `
		INSERT INTO dualtree_run (rid, algorithm, status, status_info, dataset_key, result_key, params, create_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err = r.db.QueryRowContext(ctx, query,
		run.RunUUID, run.Algorithm, run.Status, run.StatusInfo,
		run.DatasetKey, run.ResultKey, params, run.CreateTime,
	).Scan(&run.ID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to create run", err)
	}

	return nil
}

// UpdateStatus updates the status of a run.
func (r *PostgresRunRepository) UpdateStatus(ctx context.Context, id int64, status model.RunStatus) error {
	query := `UPDATE dualtree_run SET status = $1 WHERE id = $2`
	return r.exec(ctx, query, status, id)
}

// UpdateStatusWithInfo updates the status with additional info.
func (r *PostgresRunRepository) UpdateStatusWithInfo(ctx context.Context, id int64, status model.RunStatus, info string) error {
	if status == model.RunStatusCompleted || status == model.RunStatusFailed {
		query := `UPDATE dualtree_run SET status = $1, status_info = $2, end_time = $3 WHERE id = $4`
		return r.exec(ctx, query, status, info, time.Now(), id)
	}
	query := `UPDATE dualtree_run SET status = $1, status_info = $2 WHERE id = $3`
	return r.exec(ctx, query, status, info, id)
}

// SetResultKey records the storage key of the run's result artifact.
func (r *PostgresRunRepository) SetResultKey(ctx context.Context, id int64, key string) error {
	query := `UPDATE dualtree_run SET result_key = $1 WHERE id = $2`
	return r.exec(ctx, query, key, id)
}

// LockRunForProcessing claims a pending run with a FOR UPDATE lock.
func (r *PostgresRunRepository) LockRunForProcessing(ctx context.Context, id int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var lockedID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM dualtree_run WHERE id = $1 AND status = $2 FOR UPDATE`,
		id, model.RunStatusPending,
	).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to lock run", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE dualtree_run SET status = $1, begin_time = $2 WHERE id = $3`,
		model.RunStatusRunning, time.Now(), id,
	)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to mark run running", err)
	}

	if err := tx.Commit(); err != nil {
		return false, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to commit lock", err)
	}
	return true, nil
}

func (r *PostgresRunRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to update run", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to get affected rows", err)
	}
	if affected == 0 {
		return apperrors.New(apperrors.CodeNotFound, "run not found")
	}

	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	run := &model.Run{}
	var paramsJSON []byte
	var beginTime, endTime sql.NullTime

	err := row.Scan(
		&run.ID, &run.RunUUID, &run.Algorithm, &run.Status,
		&run.StatusInfo, &run.DatasetKey, &run.ResultKey,
		&paramsJSON, &run.CreateTime, &beginTime, &endTime,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to scan run", err)
	}

	if beginTime.Valid {
		run.BeginTime = &beginTime.Time
	}
	if endTime.Valid {
		run.EndTime = &endTime.Time
	}
	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &run.Params); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to parse run params", err)
		}
	}

	return run, nil
}
