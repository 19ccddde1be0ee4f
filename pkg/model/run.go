// Package model defines the core data structures used throughout the application.
package model

import (
	"encoding/json"
	"time"
)

// Algorithm represents the dual-tree algorithm a run executes.
type Algorithm int

const (
	AlgorithmAllKNN Algorithm = 0 // All-k-nearest-neighbor search
	AlgorithmKDE    Algorithm = 1 // Kernel density estimation
)

// String returns the string representation of Algorithm.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmAllKNN:
		return "allknn"
	case AlgorithmKDE:
		return "kde"
	default:
		return "unknown"
	}
}

// ParseAlgorithm parses an algorithm name.
func ParseAlgorithm(name string) (Algorithm, bool) {
	switch name {
	case "allknn":
		return AlgorithmAllKNN, true
	case "kde":
		return AlgorithmKDE, true
	default:
		return 0, false
	}
}

// RunStatus represents the status of a run.
type RunStatus int

const (
	RunStatusPending   RunStatus = 0 // Pending
	RunStatusRunning   RunStatus = 1 // Running
	RunStatusCompleted RunStatus = 2 // Completed
	RunStatusFailed    RunStatus = 3 // Failed
)

// String returns the string representation of RunStatus.
func (s RunStatus) String() string {
	switch s {
	case RunStatusPending:
		return "pending"
	case RunStatusRunning:
		return "running"
	case RunStatusCompleted:
		return "completed"
	case RunStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Run represents one dual-tree computation over a dataset.
type Run struct {
	ID          int64      `json:"id" db:"id"`
	RunUUID     string     `json:"rid" db:"rid"`
	Algorithm   Algorithm  `json:"algorithm" db:"algorithm"`
	Status      RunStatus  `json:"status" db:"status"`
	StatusInfo  string     `json:"status_info" db:"status_info"`
	DatasetKey  string     `json:"dataset_key" db:"dataset_key"`
	ResultKey   string     `json:"result_key" db:"result_key"`
	Params      RunParams  `json:"params" db:"params"`
	CreateTime  time.Time  `json:"create_time" db:"create_time"`
	BeginTime   *time.Time `json:"begin_time" db:"begin_time"`
	EndTime     *time.Time `json:"end_time" db:"end_time"`
}

// RunParams holds run parameters.
type RunParams struct {
	Neighbors      int     `json:"neighbors,omitempty"`
	Bandwidth      float64 `json:"bandwidth,omitempty"`
	LeafSize       int     `json:"leaf_size,omitempty"`
	MaxSubtreeSize int     `json:"max_subtree_size,omitempty"`
	Workers        int     `json:"workers,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler for RunParams.
func (rp *RunParams) UnmarshalJSON(data []byte) error {
	type Alias RunParams
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(rp),
	}
	return json.Unmarshal(data, aux)
}

// Summary captures the outcome statistics of a completed run.
type Summary struct {
	RunUUID     string        `json:"rid"`
	Algorithm   string        `json:"algorithm"`
	Points      int           `json:"points"`
	Dimensions  int           `json:"dimensions"`
	Slots       int           `json:"slots"`
	Splits      int           `json:"splits"`
	Tasks       int           `json:"tasks"`
	BasePairs   int64         `json:"base_pairs"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	ElapsedText string        `json:"elapsed"`
}

// NewRun creates a new Run instance.
func NewRun(id int64, runUUID string, algorithm Algorithm) *Run {
	return &Run{
		ID:         id,
		RunUUID:    runUUID,
		Algorithm:  algorithm,
		Status:     RunStatusPending,
		CreateTime: time.Now(),
	}
}

// IsTerminal returns true if the run has finished, successfully or not.
func (r *Run) IsTerminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}
