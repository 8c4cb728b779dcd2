package review

import (
	"context"
	"fmt"

	"github.com/zulandar/soundcheck/internal/actor"
	"github.com/zulandar/soundcheck/internal/apperr"
	"github.com/zulandar/soundcheck/internal/models"
	"gorm.io/gorm"
)

// HeartbeatResult reports listening progress after a heartbeat.
type HeartbeatResult struct {
	ListenDuration       int
	Status               string
	MinimumReached       bool
	MinimumListenSeconds int
}

// Heartbeat credits listening time to a review. A client-reported total is
// trusted only up to ClientReportMaxStep seconds beyond the stored value;
// without one, the wall-clock gap since the previous heartbeat is credited,
// clamped to [0, HeartbeatMaxStep]. The first heartbeat starts the review
// and credits nothing.
func Heartbeat(ctx context.Context, gdb *gorm.DB, reviewID string, a actor.Actor, clientSeconds *int, opts Opts) (*HeartbeatResult, error) {
	opts = opts.withDefaults()
	res := &HeartbeatResult{MinimumListenSeconds: opts.MinListenSeconds}

	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r models.Review
		as, err := lockReview(tx, reviewID, &r)
		if err != nil {
			return err
		}
		if err := as.authorize(a); err != nil {
			return err
		}
		if models.ReviewTerminal(r.Status) {
			return apperr.Conflict("review is not active")
		}

		listen := r.ListenDuration + listenIncrement(&r, clientSeconds, opts)
		status := r.Status
		if status == models.ReviewAssigned {
			status = models.ReviewInProgress
		}
		if err := tx.Model(&models.Review{}).Where("id = ?", reviewID).Updates(map[string]interface{}{
			"listen_duration": listen,
			"last_heartbeat":  opts.Now,
			"status":          status,
		}).Error; err != nil {
			return fmt.Errorf("review: heartbeat %s: %w", reviewID, err)
		}
		res.ListenDuration = listen
		res.Status = status
		res.MinimumReached = listen >= opts.MinListenSeconds
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func listenIncrement(r *models.Review, clientSeconds *int, opts Opts) int {
	if clientSeconds != nil && *clientSeconds > r.ListenDuration {
		inc := *clientSeconds - r.ListenDuration
		if inc > opts.ClientReportMaxStep {
			inc = opts.ClientReportMaxStep
		}
		return inc
	}
	if r.LastHeartbeat == nil {
		return 0
	}
	delta := int(opts.Now.Sub(*r.LastHeartbeat).Seconds())
	if delta < 0 {
		return 0
	}
	if delta > opts.HeartbeatMaxStep {
		return opts.HeartbeatMaxStep
	}
	return delta
}
