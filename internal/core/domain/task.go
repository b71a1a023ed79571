package domain

import "time"

type TaskOutcome string

const (
	TaskPending      TaskOutcome = "pending"
	TaskSucceeded    TaskOutcome = "succeeded"
	TaskDeadLettered TaskOutcome = "dead-lettered"
)

// IngestionTask tracks one observed file through the pipeline. It lives in
// process memory; only dead-lettered tasks are persisted for operator review.
type IngestionTask struct {
	ID          string
	Path        string
	Filename    string
	Fingerprint string
	TenantID    string
	DocumentID  string
	Attempts    int
	NextRetryAt time.Time
	Outcome     TaskOutcome
	LastError   string
	ObservedAt  time.Time
}

// DeadLetter is the persisted record of a task that exhausted its retries.
type DeadLetter struct {
	ID           string    `json:"id"`
	TaskID       string    `json:"task_id"`
	Path         string    `json:"path"`
	Filename     string    `json:"filename"`
	TenantID     string    `json:"tenant_id,omitempty"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	Attempts     int       `json:"attempts"`
	LastError    string    `json:"last_error"`
	DeadLetterAt time.Time `json:"dead_letter_at"`
}
