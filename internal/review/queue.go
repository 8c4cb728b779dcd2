package review

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/soundcheck/internal/actor"
	"github.com/zulandar/soundcheck/internal/apperr"
	"github.com/zulandar/soundcheck/internal/models"
	"gorm.io/gorm"
)

// QueueItem is one entry of an actor's pending queue.
type QueueItem struct {
	ReviewID       string    `json:"review_id"`
	TrackID        string    `json:"track_id"`
	TrackTitle     string    `json:"track_title"`
	PackageType    string    `json:"package_type"`
	Status         string    `json:"status"`
	ListenDuration int       `json:"listen_duration"`
	Priority       int       `json:"priority"`
	AssignedAt     time.Time `json:"assigned_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// PendingQueue lists the actor's ASSIGNED and IN_PROGRESS reviews whose
// leases have not expired, highest priority first then oldest assignment.
func PendingQueue(ctx context.Context, gdb *gorm.DB, a actor.Actor, opts Opts) ([]QueueItem, error) {
	opts = opts.withDefaults()
	if err := a.InGoodStanding(); err != nil {
		return nil, err
	}
	if !a.EmailVerified {
		return nil, apperr.Forbidden("verify your email first")
	}
	gdb = gdb.WithContext(ctx)

	keys, err := candidateKeys(gdb, a.UserID)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, apperr.Forbidden("no reviewer profile")
	}

	var items []QueueItem
	if err := gdb.Table("leases").
		Select("reviews.id AS review_id, reviews.track_id, tracks.title AS track_title, tracks.package_type, "+
			"reviews.status, reviews.listen_duration, leases.priority, leases.assigned_at, leases.expires_at").
		Joins("JOIN reviews ON reviews.id = leases.review_id").
		Joins("JOIN tracks ON tracks.id = leases.track_id").
		Where("leases.candidate_key IN ? AND leases.expires_at > ? AND reviews.status IN ?",
			keys, opts.Now, models.ActiveReviewStatuses).
		Order("leases.priority DESC, leases.assigned_at ASC").
		Scan(&items).Error; err != nil {
		return nil, fmt.Errorf("review: pending queue for %s: %w", a.UserID, err)
	}
	return items, nil
}

// candidateKeys returns the lease keys of every profile owned by userID,
// rejecting restricted or un-onboarded profiles.
func candidateKeys(gdb *gorm.DB, userID string) ([]string, error) {
	var keys []string

	var reviewers []models.ReviewerProfile
	if err := gdb.Where("user_id = ?", userID).Find(&reviewers).Error; err != nil {
		return nil, fmt.Errorf("review: load reviewer profile of %s: %w", userID, err)
	}
	for _, p := range reviewers {
		if p.IsRestricted {
			return nil, apperr.Forbidden("reviewer account restricted")
		}
		if !p.CompletedOnboarding || !p.OnboardingQuizPassed {
			return nil, apperr.Forbidden("complete onboarding first")
		}
		keys = append(keys, models.CandidateKey(models.KindReviewer, p.ID))
	}

	var artists []models.ArtistProfile
	if err := gdb.Where("user_id = ?", userID).Find(&artists).Error; err != nil {
		return nil, fmt.Errorf("review: load artist profile of %s: %w", userID, err)
	}
	for _, p := range artists {
		if p.IsRestricted || !p.CompletedOnboarding {
			continue
		}
		keys = append(keys, models.CandidateKey(models.KindPeer, p.ID))
	}
	return keys, nil
}
