package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"checkin/internal/board"
	"checkin/internal/config"
	"checkin/internal/logger"
	"checkin/internal/queue"
	"checkin/internal/roster"
	"checkin/internal/store"
)

// Worker consumes roster events and keeps the cached team boards current.
func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	v := config.New()

	var settle time.Duration
	cmd := &cobra.Command{
		Use:           "checkin-worker",
		Short:         "Refreshes team boards from roster events.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, settle)
		},
	}
	cobra.CheckErr(config.BindFlags(cmd.Flags(), v))
	cmd.Flags().DurationVar(&settle, "settle", 200*time.Millisecond, "coalescing window for refreshes of one batch")
	cmd.SilenceUsage = true

	return cmd
}

func run(ctx context.Context, cfg config.App, settle time.Duration) error {
	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.QueueBackend != config.QueueRedis {
		return errors.New("worker needs queue_backend redis")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseDialect, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	rdb := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()
	if !rdb.Healthy(ctx) {
		log.Warnw("redis not reachable, consumer will retry", "addr", cfg.RedisAddr)
	}

	boards := board.NewService(roster.NewRepository(db), rdb.Client, cfg.BoardCacheTTL, log)
	events := queue.NewRedisQueue(rdb.Client, cfg.QueueKey)

	// warm the board of the current batch before waiting on events
	if _, err := boards.Refresh(ctx, cfg.Batch); err != nil {
		log.Warnw("initial board refresh failed", "batch", cfg.Batch, "error", err)
	}

	log.Infow("worker started", "queue", cfg.QueueKey)
	if err := boards.Consume(ctx, events, settle); err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	log.Infow("worker stopped")
	return nil
}
