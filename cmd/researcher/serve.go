package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/engine"
	"github.com/mohammad-safakhou/researcher/internal/logger"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/internal/runtime"
	srv "github.com/mohammad-safakhou/researcher/internal/server"
	"github.com/mohammad-safakhou/researcher/internal/store"
)

// drainTimeout bounds how long shutdown waits for running jobs.
const drainTimeout = 30 * time.Second

func serveCMD() *cobra.Command {
	var serveAddr string
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server and research workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
			}
			log, err := logger.New(cfg.General.Env, cfg.General.LogLevel)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()
			return run(cmd.Context(), cfg, log)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")

	return serve
}

func run(parent context.Context, cfg *config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	dsn := cfg.Storage.Postgres.DSN()
	if err := srv.Migrate(dsn, "up", 0); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts := []research.Option{research.WithMetrics(research.NewMetrics(reg))}

	if cfg.Storage.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
		defer rdb.Close()
		opts = append(opts, research.WithLocker(research.NewRedisLocker(rdb, cfg.Research.LockTTL)))
	} else {
		log.Warn("redis not configured, running without job locks")
	}

	resolve, err := engine.NewResolver(cfg, st, log)
	if err != nil {
		return err
	}
	dispatcher := research.NewDispatcher(cfg.Research.MaxConcurrentJobs, log)
	svc := research.NewService(st, resolve, dispatcher, log, opts...)
	if cfg.Research.RecoverOnStartup {
		if err := svc.Recover(ctx); err != nil {
			log.Error("job recovery failed", "error", err)
		}
	}

	e, err := srv.New(srv.Deps{Config: cfg, Store: st, Research: svc, Gatherer: reg, Log: log})
	if err != nil {
		return err
	}

	go func() {
		runtime.WaitForShutdown(ctx, log, "researcher")
		cancel()
	}()
	serveErr := srv.Run(ctx, e, cfg.Server.Address, log)
	cancel()

	// jobs still running after the drain window stay running and are failed
	// by Recover on the next start
	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer drainCancel()
	if err := dispatcher.Shutdown(drainCtx); err != nil {
		log.Warn("research jobs interrupted by shutdown", "error", err)
	}
	return serveErr
}
