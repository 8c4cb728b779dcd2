package review

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/zulandar/soundcheck/internal/actor"
	"github.com/zulandar/soundcheck/internal/apperr"
	"github.com/zulandar/soundcheck/internal/ledger"
	"github.com/zulandar/soundcheck/internal/models"
	"github.com/zulandar/soundcheck/internal/notify"
	"github.com/zulandar/soundcheck/internal/tier"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// First impressions a verdict may carry.
const (
	ImpressionStrongHook   = "STRONG_HOOK"
	ImpressionDecent       = "DECENT"
	ImpressionLostInterest = "LOST_INTEREST"
)

// MinWordsPerSection is the minimum length of each free-text verdict section.
const MinWordsPerSection = 30

// Verdict is the reviewer's written feedback.
type Verdict struct {
	FirstImpression string `json:"first_impression" validate:"required,oneof=STRONG_HOOK DECENT LOST_INTEREST"`
	Score           int    `json:"score" validate:"required,min=1,max=5"`
	BestPart        string `json:"best_part" validate:"required"`
	WeakestPart     string `json:"weakest_part" validate:"required"`
	Notes           string `json:"notes"`
}

var wordRe = regexp.MustCompile(`[a-z0-9']+`)

// CheckText rejects short or repetitive free text.
func CheckText(label, text string) error {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	if len(words) < MinWordsPerSection {
		return apperr.New(apperr.Invalid, "%s must be at least %d words", label, MinWordsPerSection)
	}
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	if len(unique) < 8 || float64(len(unique))/float64(len(words)) < 0.3 {
		return apperr.New(apperr.Invalid, "%s seems too repetitive; please be more specific", label)
	}
	return nil
}

// SubmitResult is returned by Submit.
type SubmitResult struct {
	ReviewID         string
	TrackID          string
	Earnings         int // cents paid to a dedicated reviewer
	CreditsEarned    int // credits earned by a peer
	ReviewsCompleted int
	ReviewsRequested int
	TrackCompleted   bool
	NewTier          tier.Tier
}

// Submit completes a review. The assignee must have listened for at least
// MinListenSeconds and sent a heartbeat within SessionTimeout. Payout,
// reviewer statistics, the track's completion counter and its status change
// are committed together; milestone notifications go out afterwards.
func Submit(ctx context.Context, gdb *gorm.DB, reviewID string, a actor.Actor, v Verdict, opts Opts) (*SubmitResult, error) {
	opts = opts.withDefaults()
	if err := CheckText("Best part", v.BestPart); err != nil {
		return nil, err
	}
	if err := CheckText("Weakest part", v.WeakestPart); err != nil {
		return nil, err
	}
	if v.Score < 1 || v.Score > 5 {
		return nil, apperr.New(apperr.Invalid, "score must be between 1 and 5")
	}

	res := &SubmitResult{ReviewID: reviewID}
	var track models.Track
	var owner models.ArtistProfile

	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Track before review, the order ledger.Dequeue and Cancel use.
		var ref models.Review
		if err := tx.Select("id", "track_id").Where("id = ?", reviewID).Take(&ref).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Missing("review %s not found", reviewID)
			}
			return fmt.Errorf("review: load %s: %w", reviewID, err)
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", ref.TrackID).First(&track).Error; err != nil {
			return fmt.Errorf("review: lock track %s: %w", ref.TrackID, err)
		}

		var r models.Review
		as, err := lockReview(tx, reviewID, &r)
		if err != nil {
			return err
		}
		if err := as.authorize(a); err != nil {
			return err
		}
		if r.Status == models.ReviewCompleted {
			return apperr.Conflict("review already submitted")
		}
		if models.ReviewTerminal(r.Status) {
			return apperr.Conflict("review is not active")
		}
		if r.ListenDuration < opts.MinListenSeconds {
			return apperr.Conflict("must listen for at least %d seconds", opts.MinListenSeconds)
		}
		if r.LastHeartbeat == nil || opts.Now.Sub(*r.LastHeartbeat) > opts.SessionTimeout {
			return apperr.Conflict("listen session expired; keep listening and try again")
		}

		if err := tx.Select("id", "email").Where("id = ?", track.ArtistID).First(&owner).Error; err != nil {
			return fmt.Errorf("review: load owner of %s: %w", track.ID, err)
		}

		pay := 0
		switch as.kind {
		case models.KindReviewer:
			pay = tier.Tier(as.tier).PayoutRate()
			newTier, err := creditReviewer(tx, as.id, pay, opts)
			if err != nil {
				return err
			}
			res.NewTier = newTier
		case models.KindPeer:
			if _, err := ledger.Apply(tx, as.id, track.ID, ledger.TxEarn, 1); err != nil {
				return err
			}
			if err := tx.Model(&models.ArtistProfile{}).Where("id = ?", as.id).
				Update("total_peer_reviews", gorm.Expr("total_peer_reviews + 1")).Error; err != nil {
				return fmt.Errorf("review: update peer %s: %w", as.id, err)
			}
			res.CreditsEarned = 1
		}
		res.Earnings = pay

		if err := retire(tx, reviewID, models.ReviewCompleted, map[string]interface{}{
			"completed_at":     opts.Now,
			"paid_amount":      pay,
			"first_impression": v.FirstImpression,
			"score":            v.Score,
			"best_part":        v.BestPart,
			"weakest_part":     v.WeakestPart,
			"notes":            v.Notes,
		}); err != nil {
			return err
		}

		var completed int64
		if err := tx.Model(&models.Review{}).
			Where("track_id = ? AND status = ?", track.ID, models.ReviewCompleted).
			Count(&completed).Error; err != nil {
			return fmt.Errorf("review: count completed on %s: %w", track.ID, err)
		}
		if int(completed) > track.ReviewsRequested {
			return apperr.Broken("track %s would have %d completed of %d requested", track.ID, completed, track.ReviewsRequested)
		}
		updates := map[string]interface{}{"reviews_completed": completed}
		if int(completed) == track.ReviewsRequested {
			updates["status"] = models.TrackCompleted
			updates["completed_at"] = opts.Now
			res.TrackCompleted = true
		}
		if err := tx.Model(&models.Track{}).Where("id = ?", track.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("review: update track %s: %w", track.ID, err)
		}
		res.TrackID = track.ID
		res.ReviewsCompleted = int(completed)
		res.ReviewsRequested = track.ReviewsRequested
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrIntegrity) {
			notify.Fire(ctx, opts.Emitter, notify.Event{Kind: notify.IntegrityAlert, TrackID: track.ID, Detail: err.Error()})
		}
		return nil, err
	}

	if notify.IsMilestone(res.ReviewsCompleted, res.ReviewsRequested) {
		notify.Fire(ctx, opts.Emitter, notify.Event{
			Kind:        notify.ReviewMilestone,
			TrackID:     track.ID,
			TrackTitle:  track.Title,
			ArtistEmail: owner.Email,
			Completed:   res.ReviewsCompleted,
			Requested:   res.ReviewsRequested,
			At:          opts.Now,
		})
	}
	return res, nil
}

// creditReviewer pays a reviewer, bumps their review count and recomputes
// their tier.
func creditReviewer(tx *gorm.DB, reviewerID string, pay int, opts Opts) (tier.Tier, error) {
	var p models.ReviewerProfile
	if err := tx.Select("id", "total_reviews", "average_rating").Where("id = ?", reviewerID).First(&p).Error; err != nil {
		return "", fmt.Errorf("review: load reviewer %s: %w", reviewerID, err)
	}
	newTier := tier.For(p.TotalReviews+1, p.AverageRating)
	if err := tx.Model(&models.ReviewerProfile{}).Where("id = ?", reviewerID).Updates(map[string]interface{}{
		"total_reviews":    gorm.Expr("total_reviews + 1"),
		"pending_balance":  gorm.Expr("pending_balance + ?", pay),
		"total_earnings":   gorm.Expr("total_earnings + ?", pay),
		"last_review_date": opts.Now,
		"tier":             string(newTier),
	}).Error; err != nil {
		return "", fmt.Errorf("review: update reviewer %s: %w", reviewerID, err)
	}
	return newTier, nil
}
