package model

import "time"

// SyncStatus is the state of a recorded ingestion run.
type SyncStatus string

const (
	SyncStatusRunning  SyncStatus = "running"
	SyncStatusComplete SyncStatus = "complete"
	SyncStatusFailed   SyncStatus = "failed"
)

// SyncEntry represents a row in sync_log: one ingestion run of one source.
type SyncEntry struct {
	ID          string         `json:"id"`
	Source      string         `json:"source"`
	DataDate    time.Time      `json:"data_date"`
	DataSource  DataSource     `json:"data_source"`
	Status      SyncStatus     `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	RowsSynced  int64          `json:"rows_synced"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SyncResult holds the outcome of a run, passed to CompleteSync.
type SyncResult struct {
	RowsSynced int64          `json:"rows_synced"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
