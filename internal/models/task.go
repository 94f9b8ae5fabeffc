package models

import (
	"encoding/json"
	"time"
)

// Task statuses. A task moves pending -> running -> completed|failed and the
// terminal result/error are written exactly once.
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// Task types understood by the queue worker.
const (
	TaskScanReleases      = "scan-releases-for-item"
	TaskRefreshCatalog    = "refresh-catalog-window"
	TaskScanFolder        = "scan-download-folder"
	TaskScanAutoDownload  = "scan-autodownload-candidates"
	TaskQueueAutoDownload = "queue-autodownload-transfers"
)

// Task is a unit of deferred work executed by the single queue worker.
type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	SubjectID *int64          `json:"subject_id,omitempty"`
	DedupKey  string          `json:"-"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Terminal reports whether the task has reached a final state.
func (t *Task) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// ScheduledJob is a recurring trigger that enqueues tasks on a cron schedule.
type ScheduledJob struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	JobType   string          `json:"job_type"` // mirrors a subset of task types
	CronExpr  string          `json:"cron_expr"`
	Enabled   bool            `json:"enabled"`
	Config    json.RawMessage `json:"config,omitempty"`
	LastRunAt *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt *time.Time      `json:"next_run_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
