// Command intaked runs the intake HTTP server: idempotent submission
// intake, pipeline job tracking, and retry orchestration over a
// configurable store backend.
//
// Configuration is environment-driven (a .env file is honored):
//
//	INTAKE_ADDR              listen address (default ":8080")
//	INTAKE_STORE             memory | redis | postgres (default "memory")
//	DATABASE_URL             Postgres connection URL (postgres backend)
//	REDIS_ADDR               Redis address (redis backend, default "localhost:6379")
//	INTAKE_BACKOFF           schedule | constant | linear | exponential | jitter
//	INTAKE_MAX_RETRIES       retries per step (default 3)
//	INTAKE_RETRY_DELAYS      comma-separated durations (default "1s,3s,5s")
//	INTAKE_STEP_TIMEOUT      per-step deadline (default "2m")
//	INTAKE_PURGE_INTERVAL    expired-record sweep interval (default "1h")
//	LOG_LEVEL                debug | info | warn | error (default "info")
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/api"
	"github.com/mwerk/intake/backoff"
	"github.com/mwerk/intake/engine"
	"github.com/mwerk/intake/exec"
	"github.com/mwerk/intake/pipeline"
	"github.com/mwerk/intake/store"
	"github.com/mwerk/intake/store/memory"
	"github.com/mwerk/intake/store/postgres"
	redisstore "github.com/mwerk/intake/store/redis"
)

func main() {
	_ = godotenv.Load()

	logger := newLogger()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("intaked exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()

	st, err := openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}

	eng, err := engine.Build(cfg, st,
		engine.WithLogger(logger),
		engine.WithBackoff(backoffFromEnv(cfg)),
	)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	registerSteps(eng, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	api.New(eng).Register(e)

	addr := envStr("INTAKE_ADDR", ":8080")
	purgeInterval := envDur("INTAKE_PURGE_INTERVAL", time.Hour)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("intaked listening", slog.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(purgeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				n, err := eng.PurgeExpired(gctx)
				if err != nil {
					logger.Warn("purge of expired records failed", slog.String("error", err.Error()))
					continue
				}
				if n > 0 {
					logger.Info("expired records purged", slog.Int("count", n))
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		logger.Info("shutting down")
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", slog.String("error", err.Error()))
		}
		return eng.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// registerSteps binds the built-in pipeline handlers. Validation rejects
// submissions without a payload; the remaining steps only log, serving as
// the extension point for real processing logic.
func registerSteps(eng *engine.Engine, logger *slog.Logger) {
	eng.RegisterStep(pipeline.StepValidation, func(_ context.Context, in exec.Input) error {
		if len(in.Data) == 0 {
			return errors.New("submission has no payload to process")
		}
		return nil
	})

	for _, s := range []pipeline.Step{pipeline.StepAnalysis, pipeline.StepGeneration, pipeline.StepExport} {
		step := s
		eng.RegisterStep(step, func(_ context.Context, in exec.Input) error {
			logger.Debug("step executed",
				slog.String("step", step.String()),
				slog.String("job_id", in.JobID.String()),
			)
			return nil
		})
	}
}

func openStore(ctx context.Context, logger *slog.Logger) (store.Store, error) {
	backend := envStr("INTAKE_STORE", "memory")

	switch backend {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.New(), nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     envStr("REDIS_ADDR", "localhost:6379"),
			Password: envStr("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		})
		return redisstore.New(client, redisstore.WithLogger(logger)), nil

	case "postgres":
		url := os.Getenv("DATABASE_URL")
		if url == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres backend")
		}
		return postgres.New(ctx, url, postgres.WithLogger(logger))

	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// backoffFromEnv selects the retry backoff strategy. The default is the
// configured delay schedule.
func backoffFromEnv(cfg intake.Config) backoff.Strategy {
	initial := envDur("INTAKE_BACKOFF_INITIAL", time.Second)
	maxDelay := envDur("INTAKE_BACKOFF_MAX", 30*time.Second)

	switch envStr("INTAKE_BACKOFF", "schedule") {
	case "constant":
		return backoff.NewConstant(initial)
	case "linear":
		return backoff.NewLinear(initial, maxDelay)
	case "exponential":
		return backoff.NewExponential(initial, maxDelay)
	case "jitter":
		return backoff.NewExponentialWithJitter(initial, maxDelay)
	default:
		return backoff.NewSchedule(cfg.RetryDelays...)
	}
}

func loadConfig() intake.Config {
	cfg := intake.DefaultConfig()

	cfg.MaxRetries = envInt("INTAKE_MAX_RETRIES", cfg.MaxRetries)
	cfg.StepTimeout = envDur("INTAKE_STEP_TIMEOUT", cfg.StepTimeout)
	cfg.SubmissionTTL = envDur("INTAKE_SUBMISSION_TTL", cfg.SubmissionTTL)
	cfg.JobTTL = envDur("INTAKE_JOB_TTL", cfg.JobTTL)
	cfg.ShutdownTimeout = envDur("INTAKE_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	if raw := os.Getenv("INTAKE_RETRY_DELAYS"); raw != "" {
		var delays []time.Duration
		for _, part := range strings.Split(raw, ",") {
			d, err := time.ParseDuration(strings.TrimSpace(part))
			if err != nil {
				slog.Warn("invalid retry delay ignored", slog.String("value", part))
				continue
			}
			delays = append(delays, d)
		}
		if len(delays) > 0 {
			cfg.RetryDelays = delays
		}
	}

	return cfg
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer env value ignored", slog.String("key", key), slog.String("value", v))
		return fallback
	}
	return n
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration env value ignored", slog.String("key", key), slog.String("value", v))
		return fallback
	}
	return d
}
