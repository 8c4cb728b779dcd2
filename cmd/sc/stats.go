package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/soundcheck/internal/db"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		fresh      bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the public platform statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)
			reader, closer := buildStats(cfg, gormDB)
			defer closer.Close()

			ctx := cmd.Context()
			if fresh {
				if err := reader.Invalidate(ctx); err != nil {
					return err
				}
			}
			p, err := reader.Get(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(p); err != nil {
				return fmt.Errorf("encode stats: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Soundcheck config file")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "drop the cached snapshot before reading")
	return cmd
}
