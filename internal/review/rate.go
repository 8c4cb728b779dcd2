package review

import (
	"context"
	"fmt"

	"github.com/zulandar/soundcheck/internal/actor"
	"github.com/zulandar/soundcheck/internal/apperr"
	"github.com/zulandar/soundcheck/internal/models"
	"github.com/zulandar/soundcheck/internal/tier"
	"gorm.io/gorm"
)

// RateResult is returned by Rate.
type RateResult struct {
	AverageRating float64
	Tier          tier.Tier // empty for peer reviewers
}

// Rate records the track owner's 1-5 rating of a completed review and
// refreshes the reviewer's average rating and tier.
func Rate(ctx context.Context, gdb *gorm.DB, reviewID string, a actor.Actor, rating int, opts Opts) (*RateResult, error) {
	if err := a.Authenticated(); err != nil {
		return nil, err
	}
	if rating < 1 || rating > 5 {
		return nil, apperr.New(apperr.Invalid, "rating must be between 1 and 5")
	}
	res := &RateResult{}

	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r models.Review
		if _, err := lockReview(tx, reviewID, &r); err != nil {
			return err
		}
		var owner models.ArtistProfile
		if err := tx.Table("artist_profiles").Select("artist_profiles.user_id").
			Joins("JOIN tracks ON tracks.artist_id = artist_profiles.id").
			Where("tracks.id = ?", r.TrackID).Take(&owner).Error; err != nil {
			return fmt.Errorf("review: load owner of %s: %w", r.TrackID, err)
		}
		if owner.UserID != a.UserID {
			return apperr.Forbidden("only the track owner can rate its reviews")
		}
		if r.Status != models.ReviewCompleted {
			return apperr.Conflict("only completed reviews can be rated")
		}
		if r.ArtistRating != nil {
			return apperr.Conflict("review already rated")
		}
		if err := tx.Model(&models.Review{}).Where("id = ?", reviewID).Update("artist_rating", rating).Error; err != nil {
			return fmt.Errorf("review: rate %s: %w", reviewID, err)
		}

		var avg struct{ Avg float64 }
		if err := tx.Model(&models.Review{}).Select("AVG(artist_rating) AS avg").
			Where("assignee_kind = ? AND assignee_id = ? AND artist_rating IS NOT NULL", r.AssigneeKind, r.AssigneeID).
			Scan(&avg).Error; err != nil {
			return fmt.Errorf("review: average rating of %s: %w", r.AssigneeID, err)
		}
		res.AverageRating = avg.Avg

		if r.AssigneeKind == models.KindPeer {
			if err := tx.Model(&models.ArtistProfile{}).Where("id = ?", r.AssigneeID).
				Update("peer_rating", avg.Avg).Error; err != nil {
				return fmt.Errorf("review: update peer rating of %s: %w", r.AssigneeID, err)
			}
			return nil
		}

		var p models.ReviewerProfile
		if err := tx.Select("id", "total_reviews").Where("id = ?", r.AssigneeID).First(&p).Error; err != nil {
			return fmt.Errorf("review: load reviewer %s: %w", r.AssigneeID, err)
		}
		res.Tier = tier.For(p.TotalReviews, avg.Avg)
		if err := tx.Model(&models.ReviewerProfile{}).Where("id = ?", r.AssigneeID).Updates(map[string]interface{}{
			"average_rating": avg.Avg,
			"tier":           string(res.Tier),
		}).Error; err != nil {
			return fmt.Errorf("review: update reviewer %s: %w", r.AssigneeID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
