package domain

import (
	"fmt"
	"time"
)

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// Stage identifies the pipeline stage at which a fatal error occurred.
type Stage string

const (
	StageAuthentication Stage = "authentication"
	StageLocatorListing Stage = "locator_listing"
	StageURLResolution  Stage = "url_resolution"
	StageDownload       Stage = "download"
	StageReduce         Stage = "reduce"
	StageEnrichment     Stage = "enrichment"
	StageReport         Stage = "report"
)

// PipelineError is a fatal error tagged with the stage it occurred in.
// Soft, per-item failures are accumulated in RunCounters instead.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError wraps err with the stage it occurred in.
func NewPipelineError(stage Stage, err error) *PipelineError {
	return &PipelineError{Stage: stage, Err: err}
}

// RunCounters accumulates the per-item accounting of one run. Counts must be
// accurate regardless of the completion order of concurrent work.
type RunCounters struct {
	FilesFound      int `json:"files_found"`
	FilesDownloaded int `json:"files_downloaded"`
	FilesFailed     int `json:"files_failed"`
	EventsProcessed int `json:"events_processed"`
	ParseFailures   int `json:"parse_failures"`
	LookupFailures  int `json:"lookup_failures"`
	DistinctUsers   int `json:"distinct_users"`
	DistinctMetrics int `json:"distinct_metrics"`
}

// RunResult is the structured outcome of one pipeline run. A run always
// produces a result, even when it fails partway through.
type RunResult struct {
	ID          string      `json:"id"`
	Status      RunStatus   `json:"status"`
	FailedStage Stage       `json:"failed_stage,omitempty"`
	Error       string      `json:"error,omitempty"`
	Partial     bool        `json:"partial"`
	Counters    RunCounters `json:"counters"`
	ReportPaths []string    `json:"report_paths,omitempty"`
	Trace       []string    `json:"trace,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
}
