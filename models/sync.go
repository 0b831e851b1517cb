package models

import "time"

// TaskKind identifies one schedulable sync task
type TaskKind string

const (
	TaskStockList  TaskKind = "stock_list"
	TaskMarketData TaskKind = "market_data"
	TaskIndexData  TaskKind = "index_data"
	TaskAll        TaskKind = "all"
)

// KnownTaskKinds lists the individually schedulable tasks
var KnownTaskKinds = []TaskKind{TaskStockList, TaskMarketData, TaskIndexData}

// SyncResult reports the outcome of one sync task run
type SyncResult struct {
	Task            TaskKind  `json:"task"`
	StartTime       time.Time `json:"start_time"`
	Success         bool      `json:"success"`
	TotalSymbols    int       `json:"total_symbols,omitempty"`
	SuccessCount    int       `json:"success_count"`
	FailedCount     int       `json:"failed_count"`
	Errors          []string  `json:"errors,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	Message         string    `json:"message,omitempty"`
}

// SyncAllResult aggregates the outcomes of a full sync pass
type SyncAllResult struct {
	StartTime       time.Time    `json:"start_time"`
	Success         bool         `json:"success"`
	Tasks           []SyncResult `json:"tasks"`
	DurationSeconds float64      `json:"duration_seconds"`
	Message         string       `json:"message,omitempty"`
}

// SyncTaskState is the scheduler's live view of one task
type SyncTaskState struct {
	LastRun         *time.Time `json:"last_run"`
	NextRun         *time.Time `json:"next_run"`
	Running         bool       `json:"running"`
	Success         *bool      `json:"success"`
	DurationSeconds float64    `json:"duration_seconds"`
}
