package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/soundcheck/internal/actor"
	"github.com/zulandar/soundcheck/internal/apperr"
	"github.com/zulandar/soundcheck/internal/db"
	"github.com/zulandar/soundcheck/internal/ledger"
)

func newTrackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Operator commands for tracks",
	}
	cmd.AddCommand(newTrackQueueCmd())
	cmd.AddCommand(newTrackDequeueCmd())
	cmd.AddCommand(newTrackVerifyCmd())
	return cmd
}

func newTrackQueueCmd() *cobra.Command {
	var (
		configPath string
		amount     int
	)

	cmd := &cobra.Command{
		Use:   "queue <track-id>",
		Short: "Record a completed payment and queue the track",
		Long:  "Replays the payment-completed fact for a track. Repeating it for an already queued track is a no-op.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)
			emitter, closer, err := buildEmitter(cfg)
			if err != nil {
				return err
			}
			defer closer.Close()

			_, lo, _ := schedulerOpts(cfg, emitter)
			res, err := ledger.Queue(cmd.Context(), gormDB, args[0], amount, lo)
			if err != nil {
				return err
			}
			if !res.Queued {
				fmt.Fprintf(out, "Track %s was already queued.\n", res.TrackID)
				return nil
			}
			assigned := 0
			if res.Assign != nil {
				assigned = len(res.Assign.Assigned)
			}
			fmt.Fprintf(out, "Queued track %s: %d review(s) requested, %d assigned, balance %d.\n",
				res.TrackID, res.ReviewsRequested, assigned, res.CreditsBalance)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Soundcheck config file")
	cmd.Flags().IntVar(&amount, "amount", 0, "payment amount in cents")
	return cmd
}

func newTrackDequeueCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "dequeue <track-id>",
		Short: "Stop a track and refund undelivered reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			_, lo, _ := schedulerOpts(cfg, nil)
			res, err := ledger.Dequeue(cmd.Context(), gormDB, args[0], actor.System, lo)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Track %s is now %s: refunded %d credit(s), expired %d review(s).\n",
				res.TrackID, res.NewStatus, res.CreditsRefunded, res.ReviewsExpired)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Soundcheck config file")
	return cmd
}

func newTrackVerifyCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "verify [track-id]",
		Short: "Check completed-review counters against the reviews table",
		Long:  "Recounts completed reviews for one track, or every track when no id is given, and fails when a counter has drifted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)
			if len(args) == 1 {
				r, err := ledger.Verify(gormDB, args[0])
				if r != nil {
					printReports(cmd, []ledger.Report{*r})
				}
				return err
			}
			broken, err := ledger.VerifyAll(gormDB)
			if err != nil && apperr.KindOf(err) != apperr.Integrity {
				return err
			}
			if len(broken) == 0 && err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "All counters are consistent.")
				return nil
			}
			printReports(cmd, broken)
			if err != nil {
				return err
			}
			return fmt.Errorf("%d track(s) have drifted counters", len(broken))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Soundcheck config file")
	return cmd
}

func printReports(cmd *cobra.Command, reports []ledger.Report) {
	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TRACK\tCOUNTED\tCOMPLETED\tREQUESTED")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", r.TrackID, r.Counted, r.ReviewsCompleted, r.ReviewsRequested)
	}
	w.Flush()
}
