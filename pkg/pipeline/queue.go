package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lecternlabs/lectern/config"
	"github.com/lecternlabs/lectern/pkg/logging"
)

// queueKeyPrefix namespaces ingest queue keys in Redis.
const queueKeyPrefix = "lectern:queue:"

// Job is one queued ingestion request.
type Job struct {
	ID         string    `json:"id"`
	LectureID  string    `json:"lecture_id"`
	Path       string    `json:"path"`
	Title      string    `json:"title,omitempty"`
	Language   string    `json:"language,omitempty"`
	Retries    int       `json:"retries"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Request converts the job into a pipeline request.
func (j *Job) Request() Request {
	return Request{
		Path:      j.Path,
		Title:     j.Title,
		Language:  j.Language,
		LectureID: j.LectureID,
	}
}

// JobQueue is the ingest queue boundary, satisfied by the Redis queue and
// by in-memory fakes in tests.
type JobQueue interface {
	Enqueue(ctx context.Context, job *Job) error
	// Dequeue blocks up to the poll interval and returns nil when no job
	// arrived.
	Dequeue(ctx context.Context) (*Job, error)
	Depth(ctx context.Context) (int64, error)
}

// RedisQueue is a Redis-list-backed ingest queue. Workers on any host can
// consume jobs enqueued here.
type RedisQueue struct {
	client *redis.Client
	key    string
	poll   time.Duration
	logger logging.Logger
}

// NewRedisQueue creates a queue on the given connection.
func NewRedisQueue(client *redis.Client, cfg config.WorkerConfig, logger logging.Logger) *RedisQueue {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &RedisQueue{
		client: client,
		key:    queueKeyPrefix + cfg.QueueName,
		poll:   poll,
		logger: logger.With(logging.F("component", "ingest_queue")),
	}
}

// NewJob builds a job with a fresh id and lecture id.
func NewJob(path, title, language string) *Job {
	return &Job{
		ID:         uuid.NewString(),
		LectureID:  uuid.NewString(),
		Path:       path,
		Title:      title,
		Language:   language,
		EnqueuedAt: time.Now().UTC(),
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	q.logger.Debug("job enqueued",
		logging.F("job_id", job.ID),
		logging.F("lecture_id", job.LectureID),
		logging.F("path", job.Path))
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	res, err := q.client.BRPop(ctx, q.poll, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	// BRPop returns [key, value].
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}
	return &job, nil
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return n, nil
}
