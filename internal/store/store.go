package store

import (
	"context"
	"encoding/json"
	"time"
)

// RunStatus tracks a pipeline run through its lifecycle.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// StageStatus tracks one pipeline stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
)

// RunSpec records the inputs a run was invoked with, persisted alongside the
// run so any result can be traced back to its configuration.
type RunSpec struct {
	Left      string   `json:"left"`
	Right     string   `json:"right"`
	Mode      string   `json:"mode"`
	Align     string   `json:"align"`
	Variables []string `json:"variables,omitempty"`
}

// Run is one persisted pipeline invocation.
type Run struct {
	ID        string          `json:"id"`
	Spec      RunSpec         `json:"spec"`
	Status    RunStatus       `json:"status"`
	Report    json.RawMessage `json:"report,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RunStage is one stage of a run (ingest, link, merge, validate, derive,
// export).
type RunStage struct {
	ID        string      `json:"id"`
	RunID     string      `json:"run_id"`
	Name      string      `json:"name"`
	Status    StageStatus `json:"status"`
	Detail    string      `json:"detail,omitempty"`
	StartedAt time.Time   `json:"started_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  RunStatus `json:"status,omitempty"`
	Dataset string    `json:"dataset,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Offset  int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for pipeline run history.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, spec RunSpec) (*Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error
	CompleteRun(ctx context.Context, runID string, report json.RawMessage) error
	FailRun(ctx context.Context, runID string, msg string) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Stages
	CreateStage(ctx context.Context, runID string, name string) (*RunStage, error)
	CompleteStage(ctx context.Context, stageID string, status StageStatus, detail string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
