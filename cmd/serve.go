package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/desertthunder/mediaq/internal/downloader"
	"github.com/desertthunder/mediaq/internal/events"
	"github.com/desertthunder/mediaq/internal/repositories"
	"github.com/desertthunder/mediaq/internal/server"
	"github.com/desertthunder/mediaq/internal/services"
	"github.com/desertthunder/mediaq/internal/sessions"
	"github.com/desertthunder/mediaq/internal/shared"
	"github.com/desertthunder/mediaq/internal/store"
	"github.com/desertthunder/mediaq/internal/tasks"
	"github.com/desertthunder/mediaq/internal/web"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// keyPath is where the session encryption key lives when sessions.secret_key is unset.
func keyPath(dbPath string) string {
	if dbPath == "" || dbPath == ":memory:" {
		return filepath.Join(".", "mediaq.key")
	}
	return filepath.Join(filepath.Dir(dbPath), "mediaq.key")
}

// Serve runs the scheduler and the HTTP API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.config
	if cmd.IsSet("concurrency") {
		config.Queue.Concurrency = cmd.Int("concurrency")
		if err := config.Validate(); err != nil {
			return err
		}
	}

	if config.Log.File != "" {
		fileLogger, err := shared.NewFileLogger(config.Log.File)
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		shared.SetLogLevel(fileLogger, r.logger.GetLevel())
		r.SetLogger(fileLogger)
	}
	logger := r.logger

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := shared.OpenDatabase(config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	key, err := shared.LoadOrCreateKey(config.Sessions.SecretKey, keyPath(config.Database.Path))
	if err != nil {
		return err
	}
	sealer, err := shared.NewSealer(key)
	if err != nil {
		return err
	}

	runner := downloader.NewExecRunner(config.Downloader.Binary, config.Queue.KillGrace.Duration)
	bus := events.NewBus(logger)
	defer bus.Close()
	taskStore := store.New(repositories.NewTaskRepository(db), logger)
	sess := sessions.New(repositories.NewSessionRepository(db), sealer, runner, bus,
		sessions.ConfigFromSessions(config.Sessions), logger, sessions.WithLookup(sessions.NewLookup(nil)))

	workerOpts := []downloader.WorkerOption{downloader.WithSessions(sess)}
	if config.Metadata.Enabled {
		fetcher, err := downloader.NewFetcher(runner, config.Metadata.CacheSize, logger)
		if err != nil {
			return err
		}
		workerOpts = append(workerOpts, downloader.WithMetadata(fetcher))
	}
	worker := downloader.NewWorker(taskStore, bus, runner, downloader.OptionsFromConfig(config), logger, workerOpts...)

	var schedOpts []tasks.Option
	if cmd.Bool("paused") {
		schedOpts = append(schedOpts, tasks.WithPaused())
	}
	sched := tasks.New(taskStore, bus, worker, tasks.ConfigFromQueue(config.Queue), logger, schedOpts...)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	router := server.NewRouter(server.Options{
		CORSOrigin: config.Server.CORSOrigin,
		RateLimit:  rate.Limit(config.Server.RateLimit),
		RateBurst:  config.Server.RateBurst,
		Logger:     logger,
	})
	local := services.NewLocal(sched, sess, bus).WithDownloader(runner, config.Downloader.Binary)
	web.NewHandler(local, logger).RegisterRoutes(router)

	addr := cmd.String("addr")
	if addr == "" {
		addr = config.Server.Addr()
	}
	logger.Info("mediaq serving", "addr", addr, "downloader", config.Downloader.Binary, "output", config.Downloader.OutputDir)

	if err := server.New(addr, router, config.Server.Shutdown.Duration, logger).Run(ctx); err != nil {
		return err
	}
	logger.Info("server stopped, stopping downloads")
	return nil
}
