package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/dualtree-engine/pkg/model"
)

// DualtreeRun represents the dualtree_run table.
type DualtreeRun struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	RID        string          `gorm:"column:rid;type:varchar(64);uniqueIndex"`
	Algorithm  model.Algorithm `gorm:"column:algorithm"`
	Status     model.RunStatus `gorm:"column:status"`
	StatusInfo string          `gorm:"column:status_info;type:text"`
	DatasetKey string          `gorm:"column:dataset_key;type:varchar(512)"`
	ResultKey  string          `gorm:"column:result_key;type:varchar(512)"`
	Params     JSONField       `gorm:"column:params;type:json"`
	CreateTime time.Time       `gorm:"column:create_time;autoCreateTime"`
	BeginTime  *time.Time      `gorm:"column:begin_time"`
	EndTime    *time.Time      `gorm:"column:end_time"`
}

// TableName returns the table name for DualtreeRun.
func (DualtreeRun) TableName() string {
	return "dualtree_run"
}

// ToModel converts DualtreeRun to model.Run.
func (r *DualtreeRun) ToModel() *model.Run {
	run := &model.Run{
		ID:         r.ID,
		RunUUID:    r.RID,
		Algorithm:  r.Algorithm,
		Status:     r.Status,
		StatusInfo: r.StatusInfo,
		DatasetKey: r.DatasetKey,
		ResultKey:  r.ResultKey,
		CreateTime: r.CreateTime,
		BeginTime:  r.BeginTime,
		EndTime:    r.EndTime,
	}

	if r.Params != nil {
		_ = json.Unmarshal(r.Params, &run.Params)
	}

	return run
}

// FromModel converts model.Run to a DualtreeRun record.
func FromModel(run *model.Run) (*DualtreeRun, error) {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return nil, err
	}
	return &DualtreeRun{
		ID:         run.ID,
		RID:        run.RunUUID,
		Algorithm:  run.Algorithm,
		Status:     run.Status,
		StatusInfo: run.StatusInfo,
		DatasetKey: run.DatasetKey,
		ResultKey:  run.ResultKey,
		Params:     JSONField(params),
		CreateTime: run.CreateTime,
		BeginTime:  run.BeginTime,
		EndTime:    run.EndTime,
	}, nil
}

// RunSummary represents the run_summary table.
type RunSummary struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RID       string    `gorm:"column:rid;type:varchar(64);uniqueIndex"`
	Summary   JSONField `gorm:"column:summary;type:json"`
	Version   string    `gorm:"column:version;type:varchar(32)"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for RunSummary.
func (RunSummary) TableName() string {
	return "run_summary"
}

// ToModel converts RunSummary to model.Summary.
func (s *RunSummary) ToModel() (*model.Summary, error) {
	summary := &model.Summary{RunUUID: s.RID}
	if s.Summary != nil {
		if err := json.Unmarshal(s.Summary, summary); err != nil {
			return nil, err
		}
	}
	summary.RunUUID = s.RID
	return summary, nil
}

// JSONField is a custom type for handling JSON fields in GORM.
type JSONField []byte

// Value implements driver.Valuer interface.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner interface.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = JSONField(v)
		return nil
	default:
		return errors.New("unsupported type for JSONField")
	}
}
