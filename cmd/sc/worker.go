package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/soundcheck/internal/config"
	"github.com/zulandar/soundcheck/internal/notify"
)

func newWorkerCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued notifications",
		Long:  "Consumes notification tasks enqueued by the API when notify.async is set and delivers them to Slack, Discord and email.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Soundcheck config file")
	return cmd
}

func runWorker(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required to run the worker")
	}
	fan, err := buildSinks(cfg)
	if err != nil {
		return err
	}

	srv := newWorkerServer(cfg)
	if err := srv.Start(notify.NewServeMux(fan)); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	fmt.Fprintf(out, "Notification worker started on %s (sinks: %v)\n", cfg.Redis.Addr, fan.Sinks())

	ctx, cancel := signalContext(cmd)
	defer cancel()
	<-ctx.Done()
	srv.Shutdown()
	fmt.Fprintln(out, "Worker stopped.")
	return nil
}
