package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sudankdk/ceejudge/internal/config"
	"github.com/sudankdk/ceejudge/internal/docker"
	"github.com/sudankdk/ceejudge/internal/executer"
	"github.com/sudankdk/ceejudge/internal/logger"
	"github.com/sudankdk/ceejudge/internal/queue"
	"github.com/sudankdk/ceejudge/internal/sandbox"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "ceejudge",
	Short: "ceejudge - sandboxed code evaluation",
	Long: `ceejudge runs untrusted Python submissions in throwaway Docker containers
and compares their output with the expected answer.

Run "ceejudge serve" for the HTTP API and "ceejudge worker" to evaluate queued jobs.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default ./ceejudge.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	return cfg, log, nil
}

func newQueue(cfg *config.Config, log *zerolog.Logger) (*queue.Queue, func() error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	q := queue.New(rdb, queue.Config{Name: cfg.Queue.Name, ResultTTL: cfg.Queue.ResultTTL}, log)
	return q, rdb.Close
}

// newEngine connects to Docker and builds the executor on top of it.
func newEngine(ctx context.Context, cfg *config.Config, log *zerolog.Logger) (*docker.Client, *executer.Executor, error) {
	maxOutput, err := cfg.MaxOutputBytes()
	if err != nil {
		return nil, nil, err
	}
	opts := docker.DefaultOptions()
	opts.Image = cfg.Runtime.Image
	opts.WorkDir = cfg.Runtime.WorkDir
	opts.User = cfg.Runtime.User
	opts.ReleaseTimeout = cfg.Runtime.ReleaseTimeout
	opts.MaxOutputBytes = maxOutput

	cli, err := docker.New(opts, log)
	if err != nil {
		return nil, nil, err
	}
	if err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, nil, err
	}
	if cfg.Runtime.PullMissing {
		if err := cli.EnsureImage(ctx); err != nil {
			_ = cli.Close()
			return nil, nil, err
		}
	}

	limits, err := sandbox.NewLimits(cfg.Limits.Memory)
	if err != nil {
		_ = cli.Close()
		return nil, nil, err
	}
	limits.PidsLimit = cfg.Limits.Pids

	ex := executer.NewExecutor(cli, cli, executer.Config{
		Limits:                limits,
		DefaultTimeoutSeconds: cfg.Limits.TimeoutSeconds,
		Interpreter:           cfg.Runtime.Interpreter,
		WorkDir:               cfg.Runtime.WorkDir,
		KillAfter:             cfg.Runtime.KillAfter,
		MaxTimeoutSeconds:     cfg.Limits.MaxTimeoutSeconds,
	}, log)
	return cli, ex, nil
}
