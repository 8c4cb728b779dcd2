// Package lease manages the persisted reservation queue linking tracks to
// candidates until an expiry.
package lease

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/soundcheck/internal/db"
	"github.com/zulandar/soundcheck/internal/models"
	"gorm.io/gorm"
)

// DefaultTTL is how long a candidate holds a track before the reaper reclaims it.
const DefaultTTL = 48 * time.Hour

// ErrHeld is returned by Create when the candidate already holds a lease on
// the track.
var ErrHeld = errors.New("lease: candidate already holds this track")

// NewOpts describes a lease to be created.
type NewOpts struct {
	TrackID  string
	Kind     string
	Assignee string
	ReviewID string
	Priority int
	Now      time.Time
	TTL      time.Duration
}

// New builds an unsaved lease. Zero Now means time.Now(); zero TTL means DefaultTTL.
func New(opts NewOpts) *models.Lease {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &models.Lease{
		TrackID:       opts.TrackID,
		CandidateKey:  models.CandidateKey(opts.Kind, opts.Assignee),
		CandidateKind: opts.Kind,
		CandidateID:   opts.Assignee,
		ReviewID:      opts.ReviewID,
		Priority:      opts.Priority,
		AssignedAt:    now,
		ExpiresAt:     now.Add(ttl),
	}
}

// Create inserts l. A duplicate (track, candidate) pair yields ErrHeld.
func Create(tx *gorm.DB, l *models.Lease) error {
	if err := tx.Create(l).Error; err != nil {
		if db.IsDuplicateKey(err) {
			return ErrHeld
		}
		return fmt.Errorf("lease: create for track %s: %w", l.TrackID, err)
	}
	return nil
}

// DeleteForReview removes the lease paired with reviewID and reports how many
// rows were removed.
func DeleteForReview(tx *gorm.DB, reviewID string) (int64, error) {
	result := tx.Where("review_id = ?", reviewID).Delete(&models.Lease{})
	if result.Error != nil {
		return 0, fmt.Errorf("lease: delete for review %s: %w", reviewID, result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteByID removes one lease. Zero rows affected means another sweep got
// there first.
func DeleteByID(tx *gorm.DB, id uint) (int64, error) {
	result := tx.Where("id = ?", id).Delete(&models.Lease{})
	if result.Error != nil {
		return 0, fmt.Errorf("lease: delete %d: %w", id, result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteForTrack removes every lease on a track.
func DeleteForTrack(tx *gorm.DB, trackID string) (int64, error) {
	result := tx.Where("track_id = ?", trackID).Delete(&models.Lease{})
	if result.Error != nil {
		return 0, fmt.Errorf("lease: delete for track %s: %w", trackID, result.Error)
	}
	return result.RowsAffected, nil
}

// Expired returns leases with expires_at <= now, oldest first. A limit <= 0
// returns all of them.
func Expired(gdb *gorm.DB, now time.Time, limit int) ([]models.Lease, error) {
	q := gdb.Where("expires_at <= ?", now).Order("expires_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Lease
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("lease: list expired: %w", err)
	}
	return out, nil
}

// ForCandidate returns the leases held by one candidate, highest priority
// first and then soonest to expire.
func ForCandidate(gdb *gorm.DB, kind, id string) ([]models.Lease, error) {
	var out []models.Lease
	if err := gdb.Where("candidate_key = ?", models.CandidateKey(kind, id)).
		Order("priority DESC, expires_at ASC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("lease: list for %s: %w", models.CandidateKey(kind, id), err)
	}
	return out, nil
}

// CountForTrack returns the number of live leases on a track.
func CountForTrack(gdb *gorm.DB, trackID string) (int64, error) {
	var n int64
	if err := gdb.Model(&models.Lease{}).Where("track_id = ?", trackID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("lease: count for track %s: %w", trackID, err)
	}
	return n, nil
}
