package main

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"github.com/zulandar/soundcheck/internal/api"
	"github.com/zulandar/soundcheck/internal/config"
	"github.com/zulandar/soundcheck/internal/db"
	"github.com/zulandar/soundcheck/internal/notify"
	"github.com/zulandar/soundcheck/internal/reaper"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		noReaper   bool
		withWorker bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the expiration reaper",
		Long: `Starts the HTTP API. Unless --no-reaper is given, the expiration reaper
runs in the same process on scheduler.reap_schedule. With --worker and
notify.async set, the notification worker also runs in-process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, noReaper, withWorker)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Soundcheck config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	cmd.Flags().BoolVar(&noReaper, "no-reaper", false, "do not run the reaper in this process")
	cmd.Flags().BoolVar(&withWorker, "worker", false, "also run the notification worker")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, noReaper, withWorker bool) error {
	out := cmd.OutOrStdout()
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)
	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret (or SOUNDCHECK_JWT_SECRET) is required")
	}
	if port <= 0 {
		port = cfg.Server.Port
	}

	emitter, closer, err := buildEmitter(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()
	statsReader, statsCloser := buildStats(cfg, gormDB)
	defer statsCloser.Close()
	ro, lo, rp := schedulerOpts(cfg, emitter)

	ctx, cancel := signalContext(cmd)
	defer cancel()
	errCh := make(chan error, 2)

	if !noReaper {
		go func() {
			errCh <- reaper.RunDaemon(ctx, gormDB, reaper.DaemonOpts{
				Schedule: cfg.Scheduler.ReapSchedule,
				Location: cfg.Location(),
				Reap:     rp,
				Out:      out,
			})
		}()
	}
	if withWorker && cfg.Notify.Async {
		fan, err := buildSinks(cfg)
		if err != nil {
			return err
		}
		srv := newWorkerServer(cfg)
		if err := srv.Start(notify.NewServeMux(fan)); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
		defer srv.Shutdown()
		fmt.Fprintf(out, "Notification worker started (sinks: %v)\n", fan.Sinks())
	}

	go func() {
		errCh <- api.Start(ctx, api.StartOpts{
			DB:         gormDB,
			Port:       port,
			Out:        out,
			JWTSecret:  cfg.Server.JWTSecret,
			CronSecret: cfg.Server.CronSecret,
			Review:     ro,
			Ledger:     lo,
			Reap:       rp,
			Stats:      statsReader,
		})
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		cancel()
		return err
	}
}

func newWorkerServer(cfg *config.Config) *asynq.Server {
	return asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{notify.QueueName: 1},
	})
}
