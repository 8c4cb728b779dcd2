package eligibility

import (
	"fmt"

	"github.com/zulandar/soundcheck/internal/catalog"
	"github.com/zulandar/soundcheck/internal/models"
	"gorm.io/gorm"
)

// TargetFor builds the eligibility target for a track loaded with Genres.
func TargetFor(db *gorm.DB, track *models.Track, cat catalog.Catalog) (Target, error) {
	pkg, err := cat.Lookup(track.PackageType)
	if err != nil {
		return Target{}, fmt.Errorf("eligibility: %w", err)
	}
	var owner models.ArtistProfile
	if err := db.Select("id", "user_id").Where("id = ?", track.ArtistID).First(&owner).Error; err != nil {
		return Target{}, fmt.Errorf("eligibility: load owner of %s: %w", track.ID, err)
	}
	return Target{
		TrackID:     track.ID,
		OwnerUserID: owner.UserID,
		GenreIDs:    genreIDs(track.Genres),
		Package:     pkg,
	}, nil
}

// ReviewerPool loads dedicated reviewers that pass the cheap database-side
// checks. Filter applies the full rule set.
func ReviewerPool(db *gorm.DB) ([]Candidate, error) {
	var profiles []models.ReviewerProfile
	if err := db.Preload("Genres").
		Where("is_restricted = ? AND completed_onboarding = ? AND onboarding_quiz_passed = ?", false, true, true).
		Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("eligibility: load reviewer pool: %w", err)
	}
	pool := make([]Candidate, 0, len(profiles))
	for i := range profiles {
		pool = append(pool, DedicatedReviewer{Profile: &profiles[i]})
	}
	return pool, nil
}

// ExcludedKeys returns the candidate keys that already hold a review of any
// status on the track. Prior assignees are never re-assigned the same track.
func ExcludedKeys(db *gorm.DB, trackID string) (map[string]bool, error) {
	var rows []models.Review
	if err := db.Select("assignee_kind", "assignee_id").
		Where("track_id = ?", trackID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("eligibility: load prior assignees of %s: %w", trackID, err)
	}
	out := make(map[string]bool, len(rows))
	for _, r := range rows {
		out[models.CandidateKey(r.AssigneeKind, r.AssigneeID)] = true
	}
	return out, nil
}
