package executer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/sudankdk/ceejudge/internal/bundle"
	"github.com/sudankdk/ceejudge/internal/classifier"
	"github.com/sudankdk/ceejudge/internal/logger"
	"github.com/sudankdk/ceejudge/internal/metrics"
	"github.com/sudankdk/ceejudge/internal/model"
	"github.com/sudankdk/ceejudge/internal/sandbox"
)

// Isolator hands out sandboxes and takes them back.
type Isolator interface {
	Acquire(ctx context.Context, limits sandbox.Limits) (*sandbox.Environment, error)
	Transfer(ctx context.Context, env *sandbox.Environment, archive io.Reader, dir string) error
	Release(ctx context.Context, env *sandbox.Environment) error
}

// Driver runs a command inside an acquired sandbox.
type Driver interface {
	Run(ctx context.Context, env *sandbox.Environment, cmd sandbox.Command) (model.ExecutionResult, error)
}

// Config holds the sandbox defaults. Limits.Memory and DefaultTimeoutSeconds
// apply to submissions that leave memory or timeout unset.
type Config struct {
	Limits                sandbox.Limits
	DefaultTimeoutSeconds int
	Interpreter           string
	WorkDir               string
	KillAfter             int
	MaxTimeoutSeconds     int
}

func DefaultConfig() Config {
	return Config{
		Limits:                sandbox.DefaultLimits(),
		DefaultTimeoutSeconds: model.DefaultTimeoutSeconds,
		Interpreter:           "python",
		WorkDir:               "/app",
		KillAfter:             1,
		MaxTimeoutSeconds:     60,
	}
}

type Executor struct {
	iso    Isolator
	driver Driver
	cfg    Config
	log    *zerolog.Logger
	now    func() time.Time
}

func NewExecutor(iso Isolator, driver Driver, cfg Config, log *zerolog.Logger) *Executor {
	def := DefaultConfig()
	if cfg.Limits.MemoryBytes == 0 {
		cfg.Limits = def.Limits
	}
	if cfg.DefaultTimeoutSeconds <= 0 {
		cfg.DefaultTimeoutSeconds = def.DefaultTimeoutSeconds
	}
	if cfg.Interpreter == "" {
		cfg.Interpreter = def.Interpreter
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = def.WorkDir
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Executor{iso: iso, driver: driver, cfg: cfg, log: log, now: time.Now}
}

// Evaluate runs one submission in its own sandbox and classifies the result.
// It always returns an Outcome; every failure, panics included, becomes
// StatusSystemError, and the sandbox is released before it returns.
func (e *Executor) Evaluate(ctx context.Context, sub model.Submission) (out model.Outcome) {
	sub = e.withDefaults(sub)
	start := time.Now()
	log := e.log.With().Int("timeout", sub.TimeoutSeconds).Str("memory", sub.MemoryLimit).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("evaluation panicked")
			out = model.SystemError(fmt.Sprintf("unexpected fault: %v", r))
		}
		metrics.EvaluationsTotal.WithLabelValues(out.Status.String()).Inc()
		metrics.EvaluationDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
		log.Info().Str("status", out.Status.String()).Dur("took", time.Since(start)).Msg("evaluation finished")
	}()

	if err := sub.Validate(e.cfg.MaxTimeoutSeconds); err != nil {
		return systemError(&log, "validating submission", err)
	}
	limits, err := e.cfg.Limits.WithMemory(sub.MemoryLimit)
	if err != nil {
		return systemError(&log, "applying limits", err)
	}
	b, err := bundle.Build(sub.Code, sub.Stdin, e.now())
	if err != nil {
		return systemError(&log, "building bundle", err)
	}

	phase := time.Now()
	env, err := e.iso.Acquire(ctx, limits)
	observe("acquire", phase)
	if err != nil {
		return systemError(&log, "acquiring sandbox", err)
	}
	log = log.With().Str("container", env.ShortID()).Logger()
	defer e.release(ctx, env, &log)

	phase = time.Now()
	err = e.iso.Transfer(ctx, env, b.Reader(), e.cfg.WorkDir)
	observe("transfer", phase)
	if err != nil {
		return systemError(&log, "transferring bundle", err)
	}

	phase = time.Now()
	raw, err := e.driver.Run(ctx, env, sandbox.Command{
		Interpreter:    e.cfg.Interpreter,
		Dir:            e.cfg.WorkDir,
		Script:         bundle.ProgramFile,
		StdinFile:      bundle.InputFile,
		TimeoutSeconds: sub.TimeoutSeconds,
		KillAfter:      e.cfg.KillAfter,
	})
	observe("run", phase)
	if err != nil {
		return systemError(&log, "running program", err)
	}
	if raw.Truncated {
		log.Warn().Msg("program output truncated")
	}
	log.Debug().Int("exit_code", raw.ExitCode).Int("stdout", len(raw.Stdout)).Int("stderr", len(raw.Stderr)).Msg("program finished")

	return classifier.Classify(raw, sub.ExpectedOutput)
}

func (e *Executor) withDefaults(sub model.Submission) model.Submission {
	if sub.TimeoutSeconds <= 0 {
		sub.TimeoutSeconds = e.cfg.DefaultTimeoutSeconds
	}
	if sub.MemoryLimit == "" {
		sub.MemoryLimit = e.cfg.Limits.Memory
	}
	return sub.WithDefaults()
}

// release never fails the evaluation; a sandbox that cannot be removed is
// logged and left to the reaper.
func (e *Executor) release(ctx context.Context, env *sandbox.Environment, log *zerolog.Logger) {
	phase := time.Now()
	err := e.iso.Release(ctx, env)
	observe("release", phase)
	if err != nil {
		metrics.ReleaseFailures.Inc()
		log.Error().Err(err).Msg("failed to release sandbox")
	}
}

func systemError(log *zerolog.Logger, step string, err error) model.Outcome {
	log.Error().Err(err).Str("step", step).Msg("evaluation failed")
	return model.SystemError(err.Error())
}

func observe(phase string, since time.Time) {
	metrics.EvaluationDuration.WithLabelValues(phase).Observe(time.Since(since).Seconds())
}
