package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobStatus is the per-job state machine position
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	// JobFailed means a retryable failure; the job goes back to the
	// queue after its backoff delay.
	JobFailed JobStatus = "failed"
	// JobDead is terminal: retries exhausted, missing dependency, or
	// malformed payload.
	JobDead JobStatus = "dead"
)

// JobRecord is the persisted shadow of a dispatcher job. The worker
// pool runs off an in-process channel; this row tracks status and
// attempts so terminal failures are visible to tooling.
type JobRecord struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	Kind    string `gorm:"not null;index" json:"kind"`
	Payload string `gorm:"type:text" json:"payload"`

	Status      JobStatus `gorm:"not null;index;default:queued" json:"status"`
	Attempts    int       `gorm:"default:0" json:"attempts"`
	MaxAttempts int       `gorm:"default:3" json:"max_attempts"`
	LastError   *string   `gorm:"type:text" json:"last_error,omitempty"`

	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID if none was provided
func (j *JobRecord) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for JobRecord
func (JobRecord) TableName() string {
	return "jobs"
}

// Context is free-form structured detail attached to an error report
type Context map[string]interface{}

// ErrorReport records a terminal job failure for retention and
// observability tooling. Nothing user-facing reads these.
type ErrorReport struct {
	ID      string  `gorm:"primaryKey;type:uuid" json:"id"`
	Source  string  `gorm:"index" json:"source"`
	Message string  `gorm:"type:text" json:"message"`
	Context Context `gorm:"serializer:json" json:"context"`

	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate assigns a UUID if none was provided
func (e *ErrorReport) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for ErrorReport
func (ErrorReport) TableName() string {
	return "error_reports"
}
