package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/soundcheck/internal/assign"
	"github.com/zulandar/soundcheck/internal/db"
	"github.com/zulandar/soundcheck/internal/notify"
	"github.com/zulandar/soundcheck/internal/reaper"
)

func newReapCmd() *cobra.Command {
	var (
		configPath string
		noCleanup  bool
	)

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Run one expiration sweep",
		Long:  "Expires lapsed leases, backfills the affected tracks and removes abandoned uploads. Suitable for an external scheduler.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReap(cmd, configPath, noCleanup)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Soundcheck config file")
	cmd.Flags().BoolVar(&noCleanup, "no-cleanup", false, "skip removal of abandoned uploads")
	return cmd
}

func runReap(cmd *cobra.Command, configPath string, noCleanup bool) error {
	out := cmd.OutOrStdout()
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	_, _, rp := schedulerOpts(cfg, notify.Nop{})
	ctx := cmd.Context()

	res, err := reaper.Reap(ctx, gormDB, rp)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Expired %d review(s) across %d track(s), reassigned %d.\n",
		res.Expired, res.AffectedTracks, res.Reassigned)
	for _, id := range res.Failed {
		fmt.Fprintf(out, "  backfill failed: %s\n", id)
	}

	if !noCleanup {
		n, err := reaper.Cleanup(ctx, gormDB, rp)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %d abandoned upload(s).\n", n)
	}
	return nil
}

func newAssignCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "assign <track-id>",
		Short: "Fill open review slots on a track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssign(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Soundcheck config file")
	return cmd
}

func runAssign(cmd *cobra.Command, configPath, trackID string) error {
	out := cmd.OutOrStdout()
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	_, lo, _ := schedulerOpts(cfg, notify.Nop{})
	res, err := assign.Assign(cmd.Context(), gormDB, trackID, lo.Assign)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Track %s: %d slot(s) open, %d assigned", res.TrackID, res.Needed, len(res.Assigned))
	if res.Started {
		fmt.Fprint(out, ", now IN_PROGRESS")
	}
	fmt.Fprintln(out, ".")
	return nil
}
