package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/dualtree-engine/pkg/errors"
	"github.com/dualtree-engine/pkg/model"
)

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// GetPendingRuns retrieves runs waiting to be processed.
func (r *GormRunRepository) GetPendingRuns(ctx context.Context, limit int) ([]*model.Run, error) {
	var records []DualtreeRun

	err := r.db.WithContext(ctx).
		Where("status = ?", model.RunStatusPending).
		Order("id").
		Limit(limit).
		Find(&records).Error

	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to query pending runs", err)
	}

	runs := make([]*model.Run, len(records))
	for i, rec := range records {
		runs[i] = rec.ToModel()
	}

	return runs, nil
}

// GetRunByID retrieves a run by its ID.
func (r *GormRunRepository) GetRunByID(ctx context.Context, id int64) (*model.Run, error) {
	var record DualtreeRun

	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.CodeNotFound, "run not found: %d", id)
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to get run", err)
	}

	return record.ToModel(), nil
}

// GetRunByUUID retrieves a run by its UUID.
func (r *GormRunRepository) GetRunByUUID(ctx context.Context, uuid string) (*model.Run, error) {
	var record DualtreeRun

	err := r.db.WithContext(ctx).Where("rid = ?", uuid).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.CodeNotFound, "run not found: %s", uuid)
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to get run", err)
	}

	return record.ToModel(), nil
}

// CreateRun inserts a new run.
func (r *GormRunRepository) CreateRun(ctx context.Context, run *model.Run) error {
	record, err := FromModel(run)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to encode run params", err)
	}
	record.ID = 0

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to create run", err)
	}

	run.ID = record.ID
	return nil
}

// UpdateStatus updates the status of a run.
func (r *GormRunRepository) UpdateStatus(ctx context.Context, id int64, status model.RunStatus) error {
	return r.updateStatus(ctx, id, map[string]interface{}{"status": status})
}

// UpdateStatusWithInfo updates the status with additional info.
func (r *GormRunRepository) UpdateStatusWithInfo(ctx context.Context, id int64, status model.RunStatus, info string) error {
	updates := map[string]interface{}{
		"status":      status,
		"status_info": info,
	}
	if status == model.RunStatusCompleted || status == model.RunStatusFailed {
		updates["end_time"] = time.Now()
	}
	return r.updateStatus(ctx, id, updates)
}

func (r *GormRunRepository) updateStatus(ctx context.Context, id int64, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&DualtreeRun{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to update run status", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Newf(apperrors.CodeNotFound, "run not found: %d", id)
	}

	return nil
}

// SetResultKey records the storage key of the run's result artifact.
func (r *GormRunRepository) SetResultKey(ctx context.Context, id int64, key string) error {
	result := r.db.WithContext(ctx).
		Model(&DualtreeRun{}).
		Where("id = ?", id).
		Update("result_key", key)

	if result.Error != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to set result key", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Newf(apperrors.CodeNotFound, "run not found: %d", id)
	}

	return nil
}

// LockRunForProcessing claims a pending run with a FOR UPDATE lock so
// two workers cannot pick it up at once.
func (r *GormRunRepository) LockRunForProcessing(ctx context.Context, id int64) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record DualtreeRun

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND status = ?", id, model.RunStatusPending).
			First(&record).Error

		if err != nil {
			return err
		}

		return tx.Model(&DualtreeRun{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":     model.RunStatusRunning,
				"begin_time": time.Now(),
			}).Error
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to lock run", err)
	}

	return true, nil
}

// GormSummaryRepository implements SummaryRepository using GORM.
type GormSummaryRepository struct {
	db      *gorm.DB
	version string
}

// NewGormSummaryRepository creates a new GormSummaryRepository.
func NewGormSummaryRepository(db *gorm.DB, version string) *GormSummaryRepository {
	return &GormSummaryRepository{db: db, version: version}
}

// SaveSummary saves a run summary to the database.
func (r *GormSummaryRepository) SaveSummary(ctx context.Context, summary *model.Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to marshal summary", err)
	}

	record := &RunSummary{
		RID:     summary.RunUUID,
		Summary: JSONField(payload),
		Version: r.version,
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to save summary", err)
	}

	return nil
}

// GetSummaryByRunUUID retrieves the summary for a run.
func (r *GormSummaryRepository) GetSummaryByRunUUID(ctx context.Context, runUUID string) (*model.Summary, error) {
	var record RunSummary

	err := r.db.WithContext(ctx).Where("rid = ?", runUUID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.CodeNotFound, "summary not found for run: %s", runUUID)
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to get summary", err)
	}

	return record.ToModel()
}
