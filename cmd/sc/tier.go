package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/zulandar/soundcheck/internal/tier"
)

func newTierCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tier <review-count> <average-rating>",
		Short: "Show the tier and payout earned by a review history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[0])
			if err != nil || count < 0 {
				return fmt.Errorf("review count must be a non-negative integer, got %q", args[0])
			}
			rating, err := strconv.ParseFloat(args[1], 64)
			if err != nil || rating < 0 || rating > 5 {
				return fmt.Errorf("average rating must be between 0 and 5, got %q", args[1])
			}
			t := tier.For(count, rating)
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d cents per review)\n", t, t.PayoutRate())
			return nil
		},
	}
}
