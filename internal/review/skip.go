package review

import (
	"context"
	"fmt"
	"log"

	"github.com/zulandar/soundcheck/internal/actor"
	"github.com/zulandar/soundcheck/internal/apperr"
	"github.com/zulandar/soundcheck/internal/assign"
	"github.com/zulandar/soundcheck/internal/models"
	"gorm.io/gorm"
)

// SkipResult reports a skip and the backfill that followed it.
type SkipResult struct {
	ReviewID    string
	TrackID     string
	SkipsToday  int
	Backfill    *assign.Result
	BackfillErr error
}

// Skip releases an active review back to the pool. Each assignee may skip at
// most SkipLimitPerDay reviews per day. The assigner then backfills the slot.
func Skip(ctx context.Context, gdb *gorm.DB, reviewID string, a actor.Actor, opts Opts) (*SkipResult, error) {
	opts = opts.withDefaults()
	res := &SkipResult{ReviewID: reviewID}

	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r models.Review
		as, err := lockReview(tx, reviewID, &r)
		if err != nil {
			return err
		}
		if err := as.authorize(a); err != nil {
			return err
		}
		if !as.onboarded {
			return apperr.Forbidden("complete onboarding first")
		}
		if r.Status != models.ReviewAssigned && r.Status != models.ReviewInProgress {
			return apperr.Conflict("only active reviews can be skipped")
		}

		var skips int64
		if err := tx.Model(&models.Review{}).
			Where("assignee_kind = ? AND assignee_id = ? AND status = ? AND skipped_at >= ?",
				as.kind, as.id, models.ReviewSkipped, StartOfDay(opts.Now, opts.Location).UTC()).
			Count(&skips).Error; err != nil {
			return fmt.Errorf("review: count skips for %s: %w", as.id, err)
		}
		if int(skips) >= opts.SkipLimitPerDay {
			return apperr.New(apperr.RateLimit, "skip limit reached (%d/day)", opts.SkipLimitPerDay)
		}

		if err := retire(tx, reviewID, models.ReviewSkipped, map[string]interface{}{"skipped_at": opts.Now}); err != nil {
			return err
		}
		res.TrackID = r.TrackID
		res.SkipsToday = int(skips) + 1
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Backfill, res.BackfillErr = assign.Assign(ctx, gdb, res.TrackID, opts.AssignOpts())
	if res.BackfillErr != nil {
		log.Printf("review: backfill after skip on %s: %v", res.TrackID, res.BackfillErr)
	}
	return res, nil
}
