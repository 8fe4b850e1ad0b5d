package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sudankdk/ceejudge/internal/logger"
	"github.com/sudankdk/ceejudge/internal/metrics"
	"github.com/sudankdk/ceejudge/internal/model"
)

var ErrJobNotFound = errors.New("job not found")

type State string

const (
	StatePending State = "PENDING"
	StateStarted State = "STARTED"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

type Job struct {
	ID         string           `json:"jobId"`
	Submission model.Submission `json:"submission"`
	EnqueuedAt time.Time        `json:"enqueuedAt"`
}

type JobStatus struct {
	JobID  string         `json:"jobId"`
	Status State          `json:"status"`
	Result *model.Outcome `json:"result"`
	Error  string         `json:"error,omitempty"`
}

type Config struct {
	Name      string
	ResultTTL time.Duration
}

func DefaultConfig() Config {
	return Config{Name: "ceejudge:jobs", ResultTTL: 24 * time.Hour}
}

// Queue is a FIFO job list plus a per-job status record, both in Redis.
type Queue struct {
	rdb *redis.Client
	cfg Config
	log *zerolog.Logger
}

func New(rdb *redis.Client, cfg Config, log *zerolog.Logger) *Queue {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = def.ResultTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Queue{rdb: rdb, cfg: cfg, log: log}
}

func (q *Queue) statusKey(id string) string {
	return q.cfg.Name + ":status:" + id
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

// Enqueue records the job as PENDING and pushes it onto the list.
func (q *Queue) Enqueue(ctx context.Context, sub model.Submission) (string, error) {
	job := Job{ID: uuid.NewString(), Submission: sub, EnqueuedAt: time.Now().UTC()}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encoding job: %w", err)
	}
	status, err := json.Marshal(JobStatus{JobID: job.ID, Status: StatePending})
	if err != nil {
		return "", fmt.Errorf("encoding status: %w", err)
	}

	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, q.statusKey(job.ID), status, q.cfg.ResultTTL)
		pipe.LPush(ctx, q.cfg.Name, payload)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("enqueueing job: %w", err)
	}
	metrics.JobsEnqueued.Inc()
	q.log.Debug().Str("job_id", job.ID).Msg("job enqueued")
	return job.ID, nil
}

// Dequeue blocks for up to wait and returns nil, nil when nothing arrived.
// Redis only honours whole seconds here.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	res, err := q.rdb.BRPop(ctx, wait, q.cfg.Name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// res is [key, value]
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decoding job: %w", err)
	}
	return &job, nil
}

func (q *Queue) MarkStarted(ctx context.Context, id string) error {
	return q.setStatus(ctx, JobStatus{JobID: id, Status: StateStarted})
}

func (q *Queue) Complete(ctx context.Context, id string, out model.Outcome) error {
	return q.setStatus(ctx, JobStatus{JobID: id, Status: StateSuccess, Result: &out})
}

// Fail records a job that produced no Outcome at all.
func (q *Queue) Fail(ctx context.Context, id string, cause error) error {
	return q.setStatus(ctx, JobStatus{JobID: id, Status: StateFailure, Error: cause.Error()})
}

func (q *Queue) setStatus(ctx context.Context, st JobStatus) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	if err := q.rdb.Set(ctx, q.statusKey(st.JobID), b, q.cfg.ResultTTL).Err(); err != nil {
		return fmt.Errorf("storing status of %s: %w", st.JobID, err)
	}
	return nil
}

func (q *Queue) Status(ctx context.Context, id string) (JobStatus, error) {
	b, err := q.rdb.Get(ctx, q.statusKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return JobStatus{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return JobStatus{}, err
	}
	var st JobStatus
	if err := json.Unmarshal(b, &st); err != nil {
		return JobStatus{}, fmt.Errorf("decoding status: %w", err)
	}
	return st, nil
}

func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.cfg.Name).Result()
	if err != nil {
		return 0, err
	}
	metrics.QueueDepth.Set(float64(n))
	return n, nil
}
