// Package reaper expires stale leases and backfills the slots they held.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/soundcheck/internal/assign"
	"github.com/zulandar/soundcheck/internal/lease"
	"github.com/zulandar/soundcheck/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultBatch bounds the number of leases examined per sweep.
	DefaultBatch = 500
	// DefaultAbandonAfter is how old an unqueued track must be before cleanup.
	DefaultAbandonAfter = 24 * time.Hour
)

// Opts controls one sweep.
type Opts struct {
	Now          time.Time
	Batch        int
	AbandonAfter time.Duration
	Assign       assign.Opts
}

func (o Opts) withDefaults() Opts {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	o.Now = o.Now.UTC()
	if o.Batch <= 0 {
		o.Batch = DefaultBatch
	}
	if o.AbandonAfter <= 0 {
		o.AbandonAfter = DefaultAbandonAfter
	}
	o.Assign.Now = o.Now
	return o
}

// Result reports what a sweep did.
type Result struct {
	Expired        int      `json:"expired"`
	AffectedTracks int      `json:"affectedTracks"`
	Reassigned     int      `json:"reassigned"`
	Failed         []string `json:"failed,omitempty"` // track IDs whose backfill failed
}

// Reap expires every lease whose expiry has passed. Each lease is retired in
// its own transaction: the lease is deleted and its review, if still active,
// becomes EXPIRED. Completed or skipped reviews are never overwritten. Each
// affected track is then backfilled once; a failing track is recorded and
// the sweep moves on.
func Reap(ctx context.Context, gdb *gorm.DB, opts Opts) (*Result, error) {
	opts = opts.withDefaults()
	gdb = gdb.WithContext(ctx)

	stale, err := lease.Expired(gdb, opts.Now, opts.Batch)
	if err != nil {
		return nil, fmt.Errorf("reaper: %w", err)
	}

	res := &Result{}
	var tracks []string
	seen := make(map[string]bool)
	for _, l := range stale {
		expired, err := expireOne(gdb, l)
		if err != nil {
			log.Printf("reaper: expire lease %d on %s: %v", l.ID, l.TrackID, err)
			continue
		}
		if !expired {
			continue
		}
		res.Expired++
		if !seen[l.TrackID] {
			seen[l.TrackID] = true
			tracks = append(tracks, l.TrackID)
		}
	}
	res.AffectedTracks = len(tracks)

	for _, trackID := range tracks {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ar, err := assign.Assign(ctx, gdb, trackID, opts.Assign)
		if err != nil {
			log.Printf("reaper: backfill %s: %v", trackID, err)
			res.Failed = append(res.Failed, trackID)
			continue
		}
		res.Reassigned += len(ar.Assigned)
	}
	return res, nil
}

// expireOne retires a single lease. It reports false when a concurrent
// sweep or claim already removed the lease.
func expireOne(gdb *gorm.DB, l models.Lease) (bool, error) {
	expired := false
	err := gdb.Transaction(func(tx *gorm.DB) error {
		// Review before lease, the order every other writer uses.
		var r models.Review
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id", "status").
			Where("id = ?", l.ReviewID).Take(&r).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("reaper: lock review %s: %w", l.ReviewID, err)
		}
		n, err := lease.DeleteByID(tx, l.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if err := tx.Model(&models.Review{}).
			Where("id = ? AND status IN ?", l.ReviewID, []string{models.ReviewAssigned, models.ReviewInProgress}).
			Updates(map[string]interface{}{
				"status":     models.ReviewExpired,
				"active_key": nil,
			}).Error; err != nil {
			return fmt.Errorf("reaper: expire review %s: %w", l.ReviewID, err)
		}
		expired = true
		return nil
	})
	return expired, err
}

// Cleanup hard-deletes tracks that were uploaded but never queued and have
// been sitting for longer than AbandonAfter. It returns the number removed.
func Cleanup(ctx context.Context, gdb *gorm.DB, opts Opts) (int, error) {
	opts = opts.withDefaults()
	gdb = gdb.WithContext(ctx)
	cutoff := opts.Now.Add(-opts.AbandonAfter)

	var tracks []models.Track
	if err := gdb.Where("status = ? AND reviews_requested = 0 AND created_at < ?", models.TrackUploaded, cutoff).
		Where("NOT EXISTS (SELECT 1 FROM reviews WHERE reviews.track_id = tracks.id)").
		Find(&tracks).Error; err != nil {
		return 0, fmt.Errorf("reaper: find abandoned tracks: %w", err)
	}

	removed := 0
	for i := range tracks {
		t := &tracks[i]
		if err := gdb.Select("Genres").Delete(t).Error; err != nil {
			log.Printf("reaper: delete abandoned track %s: %v", t.ID, err)
			continue
		}
		removed++
	}
	return removed, nil
}
