package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"checkin/internal/assign"
	"checkin/internal/auth"
	"checkin/internal/board"
	"checkin/internal/config"
	"checkin/internal/handler"
	"checkin/internal/httpmiddleware"
	"checkin/internal/logger"
	"checkin/internal/queue"
	"checkin/internal/quiz"
	"checkin/internal/roster"
	"checkin/internal/session"
	"checkin/internal/store"
)

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	v := config.New()

	cmd := &cobra.Command{
		Use:           "checkin-api",
		Short:         "Serves event check-in and team assignment.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cobra.CheckErr(config.BindFlags(cmd.Flags(), v))
	cmd.SilenceUsage = true

	return cmd
}

func run(ctx context.Context, cfg config.App) error {
	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := store.NewDB(ctx, cfg.DatabaseDialect, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx, cfg.MigrateTimeout); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rdb := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()
	if rdb != nil && !rdb.Healthy(ctx) {
		log.Warnw("redis not reachable at startup", "addr", cfg.RedisAddr)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	events := newQueue(cfg, rdb)
	repo := roster.NewRepository(db)

	assigner := assign.New(repo, repo, log,
		assign.WithEvents(events),
		assign.WithMetrics(assign.NewMetrics(reg)),
		assign.WithRole(cfg.ParticipantRole),
	)

	var sessions session.Provider = session.NewMemoryProvider()
	if rdb != nil {
		sessions = session.NewRedisProvider(rdb.Client, "checkin:session:", cfg.SessionTTL)
	}

	flows := quiz.NewRegistry(
		quiz.Deps{Assigner: assigner, Teams: repo, Participants: repo, Log: log},
		flowConfig(cfg),
		sessions,
		cfg.FlowIdleTTL,
	)

	var boardCache *redis.Client
	if rdb != nil {
		boardCache = rdb.Client
	}

	boards := board.NewService(repo, boardCache, cfg.BoardCacheTTL, log)

	h := handler.New(handler.Options{
		Log:          log,
		Issuer:       newIssuer(cfg),
		Flows:        flows,
		Sessions:     sessions,
		Roster:       roster.NewService(repo, events, log, cfg.RequestTimeout),
		Board:        boards,
		Typewriter:   quiz.Typewriter{Interval: cfg.TypingInterval},
		Metrics:      handler.NewMetrics(reg),
		Batch:        cfg.Batch,
		PublicURL:    cfg.PublicURL,
		BoardRefresh: cfg.BoardRefresh,
		WaitTimeout:  cfg.MinDisplay() + cfg.AssignTimeout,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.RateLimit(newLimiter(cfg, rdb), log))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	r.GET("/healthz", func(c *gin.Context) {
		dbOK := db.Healthy(c.Request.Context())
		redisOK := rdb == nil || rdb.Healthy(c.Request.Context())
		status := http.StatusOK
		if !dbOK || !redisOK {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"db": dbOK, "redis": redisOK})
	})
	h.Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		flows.Run(ctx, time.Minute)
		return nil
	})
	if cfg.QueueBackend == config.QueueMemory {
		// no separate worker can read an in-process queue
		g.Go(func() error { return boards.Consume(ctx, events, 0) })
	}
	g.Go(func() error {
		log.Infow("listening", "addr", srv.Addr, "batch", cfg.Batch, "queue", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Infow("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newIssuer(cfg config.App) auth.Issuer {
	return auth.Issuer{Name: cfg.JWTIssuer, Key: cfg.JWTSigningKey, TTL: cfg.SessionTTL}
}

func flowConfig(cfg config.App) quiz.Config {
	fc := quiz.DefaultConfig()
	fc.Batch = cfg.Batch
	fc.LoadingDuration = cfg.LoadingDuration
	fc.SparkleDuration = cfg.SparkleDuration
	fc.AssignTimeout = cfg.AssignTimeout
	return fc
}

func newQueue(cfg config.App, rdb *store.Redis) queue.Queue {
	switch {
	case cfg.QueueBackend == config.QueueRedis && rdb != nil:
		return queue.NewRedisQueue(rdb.Client, cfg.QueueKey)
	case cfg.QueueBackend == config.QueueMemory:
		return queue.NewInMemory(256)
	default:
		return queue.Discard{}
	}
}

func newLimiter(cfg config.App, rdb *store.Redis) httpmiddleware.Limiter {
	if rdb != nil {
		return httpmiddleware.NewRedisWindow(rdb.Client, cfg.RateLimitPerMin)
	}
	return httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
}
