package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/eldarg/pinboard/backend/internal/logger"
	"github.com/eldarg/pinboard/backend/internal/metrics"
	"github.com/eldarg/pinboard/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Kind identifies a job type
type Kind string

const (
	KindFanOutPostNotifications Kind = "fan_out_post_notifications"
	KindSendNotificationEmail   Kind = "send_notification_email"
	KindGenerateThumbnail       Kind = "generate_thumbnail"
	KindInferTags               Kind = "infer_tags"
)

// Failure classification. Handlers wrap errors with these sentinels to
// steer the state machine; anything else is treated as transient and
// retried with the kind's fixed backoff.
var (
	// ErrMissingDependency means an entity the job references is gone.
	// Retrying cannot bring it back, so the job dies immediately.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrMalformedPayload means the payload does not decode or fails
	// structural checks. Also terminal: retrying cannot fix structure.
	ErrMalformedPayload = errors.New("malformed payload")
)

// DefaultMaxAttempts bounds retries per job
const DefaultMaxAttempts = 3

// backoffFor returns the fixed retry delay for a job kind
func backoffFor(kind Kind) time.Duration {
	switch kind {
	case KindFanOutPostNotifications, KindGenerateThumbnail:
		return 10 * time.Second
	default:
		return 30 * time.Second
	}
}

// HandlerFunc executes one job. The payload is the JSON the producer
// enqueued.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Job is one unit of background work
type Job struct {
	ID          string           `json:"id"`
	Kind        Kind             `json:"kind"`
	Payload     json.RawMessage  `json:"payload"`
	Status      models.JobStatus `json:"status"`
	Attempts    int              `json:"attempts"`
	MaxAttempts int              `json:"max_attempts"`
	LastError   *string          `json:"last_error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Dispatcher runs producer-declared jobs on a worker pool, outside the
// request cycle. Enqueue returns as soon as the job is buffered; it
// never waits for execution. Delivery is at-least-once with bounded
// retry, and every job is shadowed by a jobs table row so terminal
// failures stay visible after the process exits.
type Dispatcher struct {
	jobs       chan *Job
	results    map[string]*Job
	resultsMux sync.RWMutex

	handlers    map[Kind]HandlerFunc
	handlersMux sync.RWMutex

	workers int
	ctx     context.Context
	cancel  context.CancelFunc

	// db is optional; without it the jobs table shadow is skipped
	db *gorm.DB

	// backoff is swapped out in tests to avoid real sleeps
	backoff func(Kind) time.Duration

	// jobDone signals terminal transitions, for tests
	jobDone chan string
}

// NewDispatcher creates a dispatcher persisting job state to db.
// db may be nil (tests, tooling); the queue then runs purely in memory.
func NewDispatcher(db *gorm.DB) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}

	return &Dispatcher{
		jobs:     make(chan *Job, 256),
		results:  make(map[string]*Job),
		handlers: make(map[Kind]HandlerFunc),
		workers:  workers,
		ctx:      ctx,
		cancel:   cancel,
		db:       db,
		backoff:  backoffFor,
		jobDone:  make(chan string, 256),
	}
}

// Register installs the handler for a job kind
func (d *Dispatcher) Register(kind Kind, h HandlerFunc) {
	d.handlersMux.Lock()
	defer d.handlersMux.Unlock()
	d.handlers[kind] = h
}

// SetBackoff overrides the per-kind retry delay. Call before Start.
func (d *Dispatcher) SetBackoff(fn func(Kind) time.Duration) {
	d.backoff = fn
}

// Start launches the worker pool
func (d *Dispatcher) Start() {
	logger.Log.Info("Starting job dispatcher", zap.Int("workers", d.workers))
	for i := 0; i < d.workers; i++ {
		go d.worker(i)
	}
}

// Stop shuts the dispatcher down. In-flight jobs finish; buffered and
// backoff-pending jobs are dropped (they remain queued in the jobs
// table for tooling).
func (d *Dispatcher) Stop() {
	d.cancel()
}

// Enqueue buffers a job for asynchronous execution. payload must
// marshal to JSON. The returned job reflects the queued state; callers
// that don't care can ignore it.
func (d *Dispatcher) Enqueue(ctx context.Context, kind Kind, payload interface{}) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	job := &Job{
		ID:          uuid.New().String(),
		Kind:        kind,
		Payload:     raw,
		Status:      models.JobQueued,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   time.Now().UTC(),
	}

	d.persistCreate(ctx, job)

	d.resultsMux.Lock()
	d.results[job.ID] = job
	d.resultsMux.Unlock()

	select {
	case d.jobs <- job:
		metrics.Get().JobsEnqueuedTotal.WithLabelValues(string(kind)).Inc()
		return job, nil
	default:
		return nil, fmt.Errorf("job queue is full")
	}
}

// GetJob returns the current in-memory state of a job
func (d *Dispatcher) GetJob(jobID string) (*Job, error) {
	d.resultsMux.RLock()
	defer d.resultsMux.RUnlock()

	job, exists := d.results[jobID]
	if !exists {
		return nil, fmt.Errorf("job not found")
	}
	return job, nil
}

// WaitForJob blocks until the given job reaches a terminal state (for testing)
func (d *Dispatcher) WaitForJob(jobID string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case doneID := <-d.jobDone:
			if doneID == jobID {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for job %s", jobID)
		case <-d.ctx.Done():
			return fmt.Errorf("dispatcher stopped")
		}
	}
}

func (d *Dispatcher) worker(workerID int) {
	for {
		select {
		case job := <-d.jobs:
			if job == nil {
				return
			}
			d.runJob(workerID, job)
		case <-d.ctx.Done():
			return
		}
	}
}

// runJob executes one attempt and advances the state machine:
// Queued -> Running -> Succeeded | Failed (requeued after backoff) | Dead.
func (d *Dispatcher) runJob(workerID int, job *Job) {
	d.handlersMux.RLock()
	handler, ok := d.handlers[job.Kind]
	d.handlersMux.RUnlock()

	if !ok {
		d.fail(job, fmt.Errorf("%w: no handler registered for kind %q", ErrMalformedPayload, job.Kind))
		return
	}

	d.transition(job, models.JobRunning, nil)
	job.Attempts++
	start := time.Now()

	ctx, cancel := context.WithTimeout(d.ctx, 5*time.Minute)
	err := handler(ctx, job.Payload)
	cancel()

	if err == nil {
		now := time.Now().UTC()
		job.CompletedAt = &now
		d.transition(job, models.JobSucceeded, nil)
		metrics.Get().JobsProcessedTotal.WithLabelValues(string(job.Kind), "succeeded").Inc()
		logger.Log.Info("Job completed",
			zap.Int("worker_id", workerID),
			logger.WithJobID(job.ID),
			zap.String("kind", string(job.Kind)),
			zap.Int("attempt", job.Attempts),
			zap.Duration("elapsed", time.Since(start)),
		)
		d.signalDone(job.ID)
		return
	}

	d.fail(job, err)
}

// fail classifies a failure and either requeues or kills the job
func (d *Dispatcher) fail(job *Job, err error) {
	terminal := errors.Is(err, ErrMissingDependency) || errors.Is(err, ErrMalformedPayload)
	if !terminal && job.Attempts >= job.MaxAttempts {
		terminal = true
	}

	if terminal {
		now := time.Now().UTC()
		job.CompletedAt = &now
		d.transition(job, models.JobDead, err)
		metrics.Get().JobsProcessedTotal.WithLabelValues(string(job.Kind), "dead").Inc()
		d.report(job, err)
		d.signalDone(job.ID)
		return
	}

	d.transition(job, models.JobFailed, err)
	metrics.Get().JobRetriesTotal.WithLabelValues(string(job.Kind)).Inc()

	delay := d.backoff(job.Kind)
	logger.Log.Warn("Job failed, retrying",
		logger.WithJobID(job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Int("attempt", job.Attempts),
		zap.Duration("backoff", delay),
		zap.Error(err),
	)

	time.AfterFunc(delay, func() {
		if d.ctx.Err() != nil {
			return
		}
		d.transition(job, models.JobQueued, nil)
		select {
		case d.jobs <- job:
		case <-d.ctx.Done():
		}
	})
}

// transition updates in-memory state and the jobs table shadow
func (d *Dispatcher) transition(job *Job, status models.JobStatus, err error) {
	d.resultsMux.Lock()
	job.Status = status
	if err != nil {
		msg := err.Error()
		job.LastError = &msg
	}
	d.resultsMux.Unlock()

	if d.db == nil {
		return
	}

	updates := map[string]interface{}{
		"status":   status,
		"attempts": job.Attempts,
	}
	if job.LastError != nil {
		updates["last_error"] = *job.LastError
	}
	if job.CompletedAt != nil {
		updates["completed_at"] = *job.CompletedAt
	}
	if status == models.JobFailed {
		next := time.Now().UTC().Add(d.backoff(job.Kind))
		updates["next_attempt_at"] = next
	}

	if dbErr := d.db.Model(&models.JobRecord{}).
		Where("id = ?", job.ID).
		Updates(updates).Error; dbErr != nil {
		logger.Log.Warn("Failed to persist job transition",
			logger.WithJobID(job.ID), zap.Error(dbErr))
	}
}

func (d *Dispatcher) persistCreate(ctx context.Context, job *Job) {
	if d.db == nil {
		return
	}

	rec := &models.JobRecord{
		ID:          job.ID,
		Kind:        string(job.Kind),
		Payload:     string(job.Payload),
		Status:      models.JobQueued,
		MaxAttempts: job.MaxAttempts,
	}
	if err := d.db.WithContext(ctx).Create(rec).Error; err != nil {
		logger.Log.Warn("Failed to persist job record",
			logger.WithJobID(job.ID), zap.Error(err))
	}
}

// report emits the error report for a dead job
func (d *Dispatcher) report(job *Job, err error) {
	logger.Log.Error("Job dead",
		logger.WithJobID(job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Int("attempts", job.Attempts),
		zap.Error(err),
	)

	if d.db == nil {
		return
	}

	rep := &models.ErrorReport{
		Source:  "dispatcher",
		Message: err.Error(),
		Context: models.Context{
			"job_id":   job.ID,
			"kind":     string(job.Kind),
			"attempts": job.Attempts,
		},
	}
	if dbErr := d.db.Create(rep).Error; dbErr != nil {
		logger.Log.Warn("Failed to persist error report",
			logger.WithJobID(job.ID), zap.Error(dbErr))
	}
}

func (d *Dispatcher) signalDone(jobID string) {
	select {
	case d.jobDone <- jobID:
	default:
		// Channel full, don't block
	}
}
