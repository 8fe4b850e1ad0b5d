package main

import (
	"github.com/spf13/cobra"

	"github.com/sudankdk/ceejudge/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		q, closeRedis := newQueue(cfg, &log)
		defer closeRedis()
		if err := q.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis not reachable yet")
		}

		srv := api.NewServer(q, api.Config{
			Addr:              cfg.Server.Addr,
			MaxTimeoutSeconds: cfg.Limits.MaxTimeoutSeconds,
			MaxCodeBytes:      cfg.Server.MaxCodeBytes,
			RateLimit:         cfg.RateLimit.RPS,
			RateBurst:         cfg.RateLimit.Burst,
			GlobalRate:        cfg.RateLimit.GlobalRPS,
		}, &log)
		return srv.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
