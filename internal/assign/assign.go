// Package assign fills a track's open review slots with eligible dedicated
// reviewers.
package assign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/soundcheck/internal/apperr"
	"github.com/zulandar/soundcheck/internal/catalog"
	"github.com/zulandar/soundcheck/internal/db"
	"github.com/zulandar/soundcheck/internal/eligibility"
	"github.com/zulandar/soundcheck/internal/lease"
	"github.com/zulandar/soundcheck/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Opts controls one assignment pass.
type Opts struct {
	Now           time.Time
	LeaseTTL      time.Duration
	Catalog       catalog.Catalog
	MinAccountAge time.Duration
}

// Result summarises an assignment pass.
type Result struct {
	TrackID  string
	Needed   int
	Assigned []string // review IDs created in this pass
	Held     int      // candidates already assigned by a concurrent pass
	Started  bool     // track moved QUEUED -> IN_PROGRESS
}

// errFull stops the candidate loop once a concurrent pass filled the track.
var errFull = errors.New("assign: track is fully assigned")

// Assign computes how many review slots on trackID are unfilled and creates
// one ASSIGNED review plus lease per eligible candidate, up to that number.
// Each candidate is committed in its own transaction that recounts the need
// under a row lock, so concurrent calls for the same track never overfill it.
// Calling Assign on a fully assigned track is a no-op.
func Assign(ctx context.Context, gdb *gorm.DB, trackID string, opts Opts) (*Result, error) {
	if trackID == "" {
		return nil, apperr.New(apperr.Invalid, "track id is required")
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	opts.Now = opts.Now.UTC()
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	gdb = gdb.WithContext(ctx)
	res := &Result{TrackID: trackID}

	var track models.Track
	if err := gdb.Preload("Genres").Where("id = ?", trackID).First(&track).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Missing("track %s not found", trackID)
		}
		return nil, fmt.Errorf("assign: load track %s: %w", trackID, err)
	}
	if track.Status != models.TrackQueued && track.Status != models.TrackInProgress {
		return res, nil
	}
	pkg, err := opts.Catalog.Lookup(track.PackageType)
	if err != nil {
		return nil, fmt.Errorf("assign: %w", err)
	}
	// Peer tracks are pulled by claimants instead of pushed.
	if pkg.Peer {
		return res, nil
	}

	need, err := openSlots(gdb, &track)
	if err != nil {
		return nil, err
	}
	res.Needed = need
	if need <= 0 {
		return res, nil
	}

	target, err := eligibility.TargetFor(gdb, &track, opts.Catalog)
	if err != nil {
		return nil, fmt.Errorf("assign: %w", err)
	}
	pool, err := eligibility.ReviewerPool(gdb)
	if err != nil {
		return nil, fmt.Errorf("assign: %w", err)
	}
	excluded, err := eligibility.ExcludedKeys(gdb, trackID)
	if err != nil {
		return nil, fmt.Errorf("assign: %w", err)
	}
	candidates := eligibility.Filter(target, pool, eligibility.Opts{
		Excluded:      excluded,
		MinAccountAge: opts.MinAccountAge,
		Now:           opts.Now,
	})

	for _, c := range candidates {
		if len(res.Assigned) >= need {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		reviewID, started, err := assignOne(gdb, trackID, c, pkg.Priority, opts)
		switch {
		case errors.Is(err, errFull):
			return res, nil
		case errors.Is(err, lease.ErrHeld):
			res.Held++
			continue
		case err != nil:
			return res, err
		}
		res.Assigned = append(res.Assigned, reviewID)
		res.Started = res.Started || started
	}
	return res, nil
}

// assignOne commits a single candidate's review and lease.
func assignOne(gdb *gorm.DB, trackID string, c eligibility.Candidate, priority int, opts Opts) (string, bool, error) {
	reviewID := uuid.NewString()
	started := false

	err := gdb.Transaction(func(tx *gorm.DB) error {
		var track models.Track
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", trackID).First(&track).Error; err != nil {
			return fmt.Errorf("assign: lock track %s: %w", trackID, err)
		}
		if track.Status != models.TrackQueued && track.Status != models.TrackInProgress {
			return errFull
		}
		need, err := openSlots(tx, &track)
		if err != nil {
			return err
		}
		if need <= 0 {
			return errFull
		}

		review := models.Review{
			ID:           reviewID,
			TrackID:      trackID,
			AssigneeKind: c.Kind(),
			AssigneeID:   c.ProfileID(),
			ActiveKey:    models.ActiveKey(trackID, c.Kind(), c.ProfileID()),
			Status:       models.ReviewAssigned,
		}
		if err := tx.Create(&review).Error; err != nil {
			if db.IsDuplicateKey(err) {
				return lease.ErrHeld
			}
			return fmt.Errorf("assign: create review on %s: %w", trackID, err)
		}
		l := lease.New(lease.NewOpts{
			TrackID:  trackID,
			Kind:     c.Kind(),
			Assignee: c.ProfileID(),
			ReviewID: reviewID,
			Priority: priority,
			Now:      opts.Now,
			TTL:      opts.LeaseTTL,
		})
		if err := lease.Create(tx, l); err != nil {
			return err
		}
		if err := touchLastAssigned(tx, c, opts.Now); err != nil {
			return err
		}

		if need == 1 && track.Status == models.TrackQueued {
			if err := tx.Model(&models.Track{}).Where("id = ?", trackID).
				Update("status", models.TrackInProgress).Error; err != nil {
				return fmt.Errorf("assign: start track %s: %w", trackID, err)
			}
			started = true
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return reviewID, started, nil
}

// openSlots returns reviewsRequested minus reviews that are active or completed.
func openSlots(tx *gorm.DB, track *models.Track) (int, error) {
	var taken int64
	if err := tx.Model(&models.Review{}).
		Where("track_id = ? AND status IN ?", track.ID, []string{
			models.ReviewAssigned, models.ReviewInProgress, models.ReviewCompleted,
		}).Count(&taken).Error; err != nil {
		return 0, fmt.Errorf("assign: count reviews on %s: %w", track.ID, err)
	}
	return track.ReviewsRequested - int(taken), nil
}

func touchLastAssigned(tx *gorm.DB, c eligibility.Candidate, now time.Time) error {
	var model interface{} = &models.ReviewerProfile{}
	if c.Kind() == models.KindPeer {
		model = &models.ArtistProfile{}
	}
	if err := tx.Model(model).Where("id = ?", c.ProfileID()).
		Update("last_assigned_at", now).Error; err != nil {
		return fmt.Errorf("assign: touch %s: %w", eligibility.Key(c), err)
	}
	return nil
}
