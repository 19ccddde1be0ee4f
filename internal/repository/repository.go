// Package repository provides database abstraction for the dual-tree engine service.
package repository

import (
	"context"

	"github.com/dualtree-engine/pkg/model"
)

// RunRepository defines the interface for run-related database operations.
type RunRepository interface {
	// GetPendingRuns retrieves runs waiting to be processed.
	GetPendingRuns(ctx context.Context, limit int) ([]*model.Run, error)

	// GetRunByID retrieves a run by its ID.
	GetRunByID(ctx context.Context, id int64) (*model.Run, error)

	// GetRunByUUID retrieves a run by its UUID.
	GetRunByUUID(ctx context.Context, uuid string) (*model.Run, error)

	// CreateRun inserts a new run.
	CreateRun(ctx context.Context, run *model.Run) error

	// UpdateStatus updates the status of a run.
	UpdateStatus(ctx context.Context, id int64, status model.RunStatus) error

	// UpdateStatusWithInfo updates the status with additional info.
	UpdateStatusWithInfo(ctx context.Context, id int64, status model.RunStatus, info string) error

	// SetResultKey records the storage key of the run's result artifact.
	SetResultKey(ctx context.Context, id int64, key string) error

	// LockRunForProcessing attempts to claim a pending run so no other
	// worker processes it concurrently.
	LockRunForProcessing(ctx context.Context, id int64) (bool, error)
}

// SummaryRepository defines the interface for run summary operations.
type SummaryRepository interface {
	// SaveSummary saves a run summary to the database.
	SaveSummary(ctx context.Context, summary *model.Summary) error

	// GetSummaryByRunUUID retrieves the summary for a run.
	GetSummaryByRunUUID(ctx context.Context, runUUID string) (*model.Summary, error)
}
