package domain

import "time"

// RunStatus is the pipeline state machine value.
type RunStatus string

const (
	RunStatusFetching    RunStatus = "fetching"
	RunStatusNormalizing RunStatus = "normalizing"
	RunStatusEmbedding   RunStatus = "embedding"
	RunStatusIndexing    RunStatus = "indexing"
	RunStatusDone        RunStatus = "done"
	RunStatusFailed      RunStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s RunStatus) Terminal() bool {
	return s == RunStatusDone || s == RunStatusFailed
}

// RunStats are the per-run counters.
// Deduplicated is the number of unique articles left after dedup;
// Duplicates is how many were collapsed away.
type RunStats struct {
	Fetched          int `gorm:"default:0" json:"fetched"`
	FeedErrors       int `gorm:"default:0" json:"feed_errors"`
	Malformed        int `gorm:"default:0" json:"malformed"`
	Duplicates       int `gorm:"default:0" json:"duplicates"`
	Deduplicated     int `gorm:"default:0" json:"deduplicated"`
	SkippedUnchanged int `gorm:"default:0" json:"skipped_unchanged"`
	Retried          int `gorm:"default:0" json:"retried"`
	Embedded         int `gorm:"default:0" json:"embedded"`
	Indexed          int `gorm:"default:0" json:"indexed"`
	Failed           int `gorm:"default:0" json:"failed"`
}

// PipelineRun records one execution of the ingestion pipeline.
type PipelineRun struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	Status      RunStatus  `gorm:"type:text;index:idx_runs_status" json:"status"`
	RunStats    `gorm:"embedded"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ErrorLog    string     `gorm:"type:text" json:"error_log,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for PipelineRun.
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}
