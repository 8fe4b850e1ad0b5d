package main

import (
	"github.com/spf13/cobra"

	"github.com/sudankdk/ceejudge/internal/worker"
)

var concurrencyFlag int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Evaluate queued submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if concurrencyFlag > 0 {
			cfg.Worker.Concurrency = concurrencyFlag
		}
		ctx, stop := signalContext()
		defer stop()

		cli, ex, err := newEngine(ctx, cfg, &log)
		if err != nil {
			return err
		}
		defer cli.Close()

		q, closeRedis := newQueue(cfg, &log)
		defer closeRedis()

		pool := worker.NewPool(q, ex, cli, worker.Config{
			Concurrency:   cfg.Worker.Concurrency,
			PollWait:      cfg.Worker.PollWait,
			ReapInterval:  cfg.Reaper.Interval,
			ReapOlderThan: cfg.Reaper.OlderThan,
		}, &log)
		return pool.Run(ctx)
	},
}

func init() {
	workerCmd.Flags().IntVarP(&concurrencyFlag, "concurrency", "c", 0, "number of workers (overrides config)")
	rootCmd.AddCommand(workerCmd)
}
