package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sudankdk/ceejudge/internal/logger"
	"github.com/sudankdk/ceejudge/internal/metrics"
	"github.com/sudankdk/ceejudge/internal/model"
	"github.com/sudankdk/ceejudge/internal/queue"
)

type Queue interface {
	Dequeue(ctx context.Context, wait time.Duration) (*queue.Job, error)
	MarkStarted(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, out model.Outcome) error
	Fail(ctx context.Context, id string, cause error) error
	Depth(ctx context.Context) (int64, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, sub model.Submission) model.Outcome
}

type Reaper interface {
	StartReaper(ctx context.Context, interval, olderThan time.Duration) error
}

type Config struct {
	Concurrency int
	PollWait    time.Duration
	// Backoff after a failed dequeue.
	Backoff       time.Duration
	StoreTimeout  time.Duration
	ReapInterval  time.Duration
	ReapOlderThan time.Duration
}

func DefaultConfig() Config {
	return Config{
		Concurrency:   2,
		PollWait:      5 * time.Second,
		Backoff:       time.Second,
		StoreTimeout:  5 * time.Second,
		ReapInterval:  time.Minute,
		ReapOlderThan: 10 * time.Minute,
	}
}

type Pool struct {
	q      Queue
	ev     Evaluator
	reaper Reaper
	cfg    Config
	log    *zerolog.Logger
}

// NewPool wires workers to q. reaper may be nil.
func NewPool(q Queue, ev Evaluator, reaper Reaper, cfg Config, log *zerolog.Logger) *Pool {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = def.PollWait
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pool{q: q, ev: ev, reaper: reaper, cfg: cfg, log: log}
}

// Run blocks until ctx is cancelled and every worker has finished its
// current job.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < p.cfg.Concurrency; i++ {
		g.Go(func() error {
			p.loop(ctx, i)
			return nil
		})
	}
	if p.reaper != nil && p.cfg.ReapInterval > 0 {
		g.Go(func() error {
			return p.reaper.StartReaper(ctx, p.cfg.ReapInterval, p.cfg.ReapOlderThan)
		})
	}

	p.log.Info().Int("workers", p.cfg.Concurrency).Msg("worker pool started")
	err := g.Wait()
	p.log.Info().Msg("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, id int) {
	log := p.log.With().Int("worker", id).Logger()
	for ctx.Err() == nil {
		job, err := p.q.Dequeue(ctx, p.cfg.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.Backoff):
			}
			continue
		}
		if job == nil {
			continue
		}
		if _, err := p.q.Depth(ctx); err != nil {
			log.Debug().Err(err).Msg("queue depth unavailable")
		}
		p.process(ctx, job, &log)
	}
}

// process evaluates one job. Each store write gets its own context, detached
// from ctx, so a job picked up before shutdown still gets its result recorded
// however long the evaluation took.
func (p *Pool) process(ctx context.Context, job *queue.Job, log *zerolog.Logger) {
	jl := log.With().Str("job_id", job.ID).Logger()

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	defer func() {
		if r := recover(); r != nil {
			jl.Error().Interface("panic", r).Msg("job panicked")
			store, cancel := p.storeContext(ctx)
			defer cancel()
			if err := p.q.Fail(store, job.ID, fmt.Errorf("worker panic: %v", r)); err != nil {
				jl.Error().Err(err).Msg("failed to record job failure")
			}
		}
	}()

	store, cancel := p.storeContext(ctx)
	err := p.q.MarkStarted(store, job.ID)
	cancel()
	if err != nil {
		jl.Warn().Err(err).Msg("failed to mark job started")
	}

	out := p.ev.Evaluate(ctx, job.Submission)

	store, cancel = p.storeContext(ctx)
	defer cancel()
	if err := p.q.Complete(store, job.ID, out); err != nil {
		jl.Error().Err(err).Msg("failed to store result")
		return
	}
	jl.Info().Str("status", out.Status.String()).Msg("job done")
}

func (p *Pool) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), p.cfg.StoreTimeout)
}
