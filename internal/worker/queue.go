package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/driveline/market-research-go/internal/models"
)

// JobStatus is the lifecycle state of one queued research job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// statusTTL bounds how long finished job records linger in Redis.
const statusTTL = 24 * time.Hour

// ErrJobNotFound is returned when a job ID has no status record.
var ErrJobNotFound = errors.New("research job not found")

// ResearchJob is one queued unit of work: run market research for a subject
// and persist the outcome.
type ResearchJob struct {
	ID         string              `json:"id"`
	SubjectID  string              `json:"subject_id"`
	Query      models.VehicleQuery `json:"query"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
}

// JobState is the queryable status record for a job.
type JobState struct {
	JobID     string    `json:"job_id"`
	SubjectID string    `json:"subject_id"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Queue is a Redis-list backed job queue for research runs. Producers push
// with Enqueue; workers block on Dequeue. Job lifecycle state lives in a
// separate per-job key so callers can poll progress.
type Queue struct {
	rdb      *redis.Client
	queueKey string
}

// NewQueue creates a queue on the given Redis list key.
func NewQueue(rdb *redis.Client, queueKey string) *Queue {
	return &Queue{rdb: rdb, queueKey: queueKey}
}

// Enqueue adds a research job for the subject and returns its job ID. The
// job starts in the pending state.
func (q *Queue) Enqueue(ctx context.Context, subjectID string, query models.VehicleQuery) (string, error) {
	job := ResearchJob{
		ID:         uuid.NewString(),
		SubjectID:  subjectID,
		Query:      query,
		EnqueuedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal research job: %w", err)
	}

	if err := q.rdb.LPush(ctx, q.queueKey, payload).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue research job: %w", err)
	}

	if err := q.setState(ctx, JobState{JobID: job.ID, SubjectID: subjectID, Status: JobStatusPending}); err != nil {
		return "", err
	}
	return job.ID, nil
}

// Dequeue blocks up to timeout for the next job. Returns (nil, nil) when the
// wait times out with an empty queue.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*ResearchJob, error) {
	result, err := q.rdb.BRPop(ctx, timeout, q.queueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue research job: %w", err)
	}

	// BRPop returns [key, payload]
	var job ResearchJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal research job: %w", err)
	}
	return &job, nil
}

// MarkStatus transitions a job's lifecycle state. The error message is kept
// only for failed jobs.
func (q *Queue) MarkStatus(ctx context.Context, job *ResearchJob, status JobStatus, jobErr error) error {
	state := JobState{JobID: job.ID, SubjectID: job.SubjectID, Status: status}
	if jobErr != nil {
		state.Error = jobErr.Error()
	}
	return q.setState(ctx, state)
}

// GetState returns the current lifecycle state of a job.
func (q *Queue) GetState(ctx context.Context, jobID string) (*JobState, error) {
	data, err := q.rdb.Get(ctx, q.stateKey(jobID)).Result()
	if err == redis.Nil {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job state: %w", err)
	}

	var state JobState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job state: %w", err)
	}
	return &state, nil
}

// Depth returns the number of jobs waiting in the queue.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queueKey).Result()
}

func (q *Queue) setState(ctx context.Context, state JobState) error {
	state.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal job state: %w", err)
	}
	if err := q.rdb.Set(ctx, q.stateKey(state.JobID), data, statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to write job state: %w", err)
	}
	return nil
}

func (q *Queue) stateKey(jobID string) string {
	return q.queueKey + ":state:" + jobID
}
