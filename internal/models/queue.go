package models

import "time"

// QueueStatus is the lifecycle state of a queued document.
type QueueStatus string

const (
	StatusPending    QueueStatus = "pending"
	StatusProcessing QueueStatus = "processing"
	StatusCompleted  QueueStatus = "completed"
	StatusFailed     QueueStatus = "failed"
)

// Terminal reports whether s is completed or failed.
func (s QueueStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next follows
// pending -> processing -> (completed | failed).
func (s QueueStatus) CanTransitionTo(next QueueStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// QueueItem tracks one document's progress through the indexing pipeline.
type QueueItem struct {
	DocumentID  string      `json:"document_id"`
	Title       string      `json:"title"`
	Status      QueueStatus `json:"status"`
	Progress    int         `json:"progress"`
	Error       string      `json:"error,omitempty"`
	ChunkCount  int         `json:"chunk_count,omitempty"`
	EnqueuedAt  time.Time   `json:"enqueued_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// QueueStats counts queue items per status.
type QueueStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// QueueSnapshot is the aggregate view returned by queue inspection.
type QueueSnapshot struct {
	Stats QueueStats  `json:"stats"`
	Items []QueueItem `json:"items"`
}
