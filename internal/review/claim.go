package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/zulandar/soundcheck/internal/actor"
	"github.com/zulandar/soundcheck/internal/apperr"
	"github.com/zulandar/soundcheck/internal/db"
	"github.com/zulandar/soundcheck/internal/eligibility"
	"github.com/zulandar/soundcheck/internal/lease"
	"github.com/zulandar/soundcheck/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClaimResult is returned by Claim.
type ClaimResult struct {
	ReviewID string
	Existing bool // the actor already held an active review on the track
}

// Claim gives a peer submitter an exclusive review slot on an open PEER
// track. Two concurrent claims for the last slot yield exactly one success;
// the loser gets STATE_CONFLICT and should try another track.
func Claim(ctx context.Context, gdb *gorm.DB, trackID string, a actor.Actor, opts Opts) (*ClaimResult, error) {
	opts = opts.withDefaults()
	if err := a.InGoodStanding(); err != nil {
		return nil, err
	}
	gdb = gdb.WithContext(ctx)

	var profile models.ArtistProfile
	if err := gdb.Preload("Genres").Where("user_id = ?", a.UserID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Forbidden("complete onboarding first")
		}
		return nil, fmt.Errorf("review: load artist for %s: %w", a.UserID, err)
	}
	cand := eligibility.PeerSubmitter{Profile: &profile}
	if !cand.Onboarded() {
		return nil, apperr.Forbidden("complete onboarding first")
	}
	if cand.Restricted() {
		return nil, apperr.Forbidden("account restricted")
	}

	var done int64
	if err := gdb.Model(&models.Review{}).
		Where("assignee_kind = ? AND assignee_id = ? AND status = ? AND completed_at >= ?",
			models.KindPeer, profile.ID, models.ReviewCompleted, StartOfDay(opts.Now, opts.Location).UTC()).
		Count(&done).Error; err != nil {
		return nil, fmt.Errorf("review: count peer reviews for %s: %w", profile.ID, err)
	}
	if int(done) >= opts.PeerClaimsPerDay {
		return nil, apperr.New(apperr.RateLimit, "daily limit of %d reviews reached", opts.PeerClaimsPerDay)
	}

	res := &ClaimResult{}
	err := gdb.Transaction(func(tx *gorm.DB) error {
		var track models.Track
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Genres").
			Where("id = ?", trackID).First(&track).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Missing("track %s not found", trackID)
			}
			return fmt.Errorf("review: lock track %s: %w", trackID, err)
		}
		if track.Status != models.TrackQueued && track.Status != models.TrackInProgress {
			return apperr.Conflict("track is no longer available for review")
		}
		pkg, err := opts.Catalog.Lookup(track.PackageType)
		if err != nil {
			return fmt.Errorf("review: %w", err)
		}
		if !pkg.Peer {
			return apperr.Conflict("track is not open for peer review")
		}

		var existing models.Review
		found := tx.Where("track_id = ? AND assignee_kind = ? AND assignee_id = ?", trackID, models.KindPeer, profile.ID).
			Limit(1).Find(&existing)
		if found.Error != nil {
			return fmt.Errorf("review: find existing claim on %s: %w", trackID, found.Error)
		}
		if found.RowsAffected > 0 {
			if models.ReviewTerminal(existing.Status) {
				return apperr.Conflict("you have already reviewed or skipped this track")
			}
			res.ReviewID = existing.ID
			res.Existing = true
			return nil
		}

		target, err := eligibility.TargetFor(tx, &track, opts.Catalog)
		if err != nil {
			return fmt.Errorf("review: %w", err)
		}
		switch reason := eligibility.Check(target, cand, eligibility.Opts{Now: opts.Now}); reason {
		case "":
		case eligibility.ReasonOwnTrack:
			return apperr.Forbidden("you cannot review your own track")
		default:
			return apperr.Forbidden("not eligible for this track: %s", reason)
		}

		var taken int64
		if err := tx.Model(&models.Review{}).
			Where("track_id = ? AND status IN ?", trackID, []string{
				models.ReviewAssigned, models.ReviewInProgress, models.ReviewCompleted,
			}).Count(&taken).Error; err != nil {
			return fmt.Errorf("review: count reviews on %s: %w", trackID, err)
		}
		if int(taken) >= track.ReviewsRequested {
			return apperr.Conflict("this track already has enough reviewers")
		}

		r := models.Review{
			ID:           uuid.NewString(),
			TrackID:      trackID,
			AssigneeKind: models.KindPeer,
			AssigneeID:   profile.ID,
			ActiveKey:    models.ActiveKey(trackID, models.KindPeer, profile.ID),
			Status:       models.ReviewAssigned,
		}
		if err := tx.Create(&r).Error; err != nil {
			if db.IsDuplicateKey(err) {
				return apperr.Conflict("track already claimed")
			}
			return fmt.Errorf("review: create claim on %s: %w", trackID, err)
		}
		l := lease.New(lease.NewOpts{
			TrackID:  trackID,
			Kind:     models.KindPeer,
			Assignee: profile.ID,
			ReviewID: r.ID,
			Priority: pkg.Priority,
			Now:      opts.Now,
			TTL:      opts.LeaseTTL,
		})
		if err := lease.Create(tx, l); err != nil {
			if errors.Is(err, lease.ErrHeld) {
				return apperr.Conflict("track already claimed")
			}
			return err
		}
		if err := tx.Model(&models.ArtistProfile{}).Where("id = ?", profile.ID).
			Update("last_assigned_at", opts.Now).Error; err != nil {
			return fmt.Errorf("review: touch peer %s: %w", profile.ID, err)
		}
		if track.Status == models.TrackQueued {
			if err := tx.Model(&models.Track{}).Where("id = ?", trackID).
				Update("status", models.TrackInProgress).Error; err != nil {
				return fmt.Errorf("review: start track %s: %w", trackID, err)
			}
		}
		res.ReviewID = r.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
