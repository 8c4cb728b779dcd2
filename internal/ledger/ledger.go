// Package ledger moves a track in and out of the review queue and keeps the
// submitter's credits reconciled with the reviews actually delivered.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/soundcheck/internal/actor"
	"github.com/zulandar/soundcheck/internal/apperr"
	"github.com/zulandar/soundcheck/internal/assign"
	"github.com/zulandar/soundcheck/internal/catalog"
	"github.com/zulandar/soundcheck/internal/db"
	"github.com/zulandar/soundcheck/internal/lease"
	"github.com/zulandar/soundcheck/internal/models"
	"github.com/zulandar/soundcheck/internal/notify"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Opts carries the collaborators of a ledger operation.
type Opts struct {
	Now     time.Time
	Catalog catalog.Catalog
	Assign  assign.Opts
	Emitter notify.Emitter
}

func (o Opts) withDefaults() Opts {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	o.Now = o.Now.UTC()
	if o.Catalog == nil {
		o.Catalog = catalog.Default()
	}
	if o.Assign.Catalog == nil {
		o.Assign.Catalog = o.Catalog
	}
	if o.Assign.Now.IsZero() {
		o.Assign.Now = o.Now
	}
	return o
}

// QueueResult is returned by Queue and RequestReviews.
type QueueResult struct {
	TrackID          string
	Queued           bool // false when the track was already queued
	ReviewsRequested int
	CreditsBalance   int
	Assign           *assign.Result
}

// Queue handles the PaymentCompleted fact: the track moves to QUEUED, its
// reviews are paid for, and the assigner runs. Repeated delivery of the same
// payment is a no-op.
func Queue(ctx context.Context, gdb *gorm.DB, trackID string, amountCents int, opts Opts) (*QueueResult, error) {
	opts = opts.withDefaults()
	if amountCents < 0 {
		return nil, apperr.New(apperr.Invalid, "amount must not be negative")
	}
	res := &QueueResult{TrackID: trackID}
	var track models.Track
	var artist models.ArtistProfile

	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockTrack(tx, trackID, &track); err != nil {
			return err
		}
		switch track.Status {
		case models.TrackQueued, models.TrackInProgress, models.TrackCompleted:
			res.ReviewsRequested = track.ReviewsRequested
			return nil
		case models.TrackUploaded, models.TrackPendingPayment:
		default:
			return apperr.Conflict("track %s is %s and cannot be queued", trackID, track.Status)
		}

		pkg, err := opts.Catalog.Lookup(track.PackageType)
		if err != nil {
			return apperr.Wrap(apperr.Invalid, err, "unknown package %s", track.PackageType)
		}
		requested := track.ReviewsRequested
		if requested == 0 {
			requested = pkg.Reviews
		}
		if requested <= 0 {
			return apperr.New(apperr.Invalid, "track %s has no reviews to queue", trackID)
		}

		if err := recordPayment(tx, trackID, amountCents, opts.Now); err != nil {
			return err
		}

		if _, err := Apply(tx, track.ArtistID, trackID, TxPurchase, requested); err != nil {
			return err
		}
		balance, err := Apply(tx, track.ArtistID, trackID, TxSpend, -requested)
		if err != nil {
			return err
		}

		if err := tx.Model(&models.ArtistProfile{}).Where("id = ?", track.ArtistID).Updates(map[string]interface{}{
			"total_tracks": gorm.Expr("total_tracks + 1"),
			"total_spent":  gorm.Expr("total_spent + ?", amountCents),
		}).Error; err != nil {
			return fmt.Errorf("ledger: update artist %s: %w", track.ArtistID, err)
		}
		if err := tx.Model(&models.Track{}).Where("id = ?", trackID).Updates(map[string]interface{}{
			"status":            models.TrackQueued,
			"reviews_requested": requested,
			"credits_spent":     requested,
			"paid_at":           opts.Now,
		}).Error; err != nil {
			return fmt.Errorf("ledger: queue track %s: %w", trackID, err)
		}
		if err := tx.Select("id", "email").Where("id = ?", track.ArtistID).First(&artist).Error; err != nil {
			return fmt.Errorf("ledger: load artist %s: %w", track.ArtistID, err)
		}
		res.Queued = true
		res.ReviewsRequested = requested
		res.CreditsBalance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Queued {
		afterQueue(ctx, gdb, &track, &artist, res, opts)
	}
	return res, nil
}

// recordPayment stores the payment for a track about to be queued. A track
// that was dequeued back to UPLOADED keeps its earlier row, which the new
// payment replaces. Callers hold the track lock.
func recordPayment(tx *gorm.DB, trackID string, amountCents int, now time.Time) error {
	var existing models.Payment
	err := tx.Where("track_id = ?", trackID).Take(&existing).Error
	switch {
	case err == nil:
		if err := tx.Model(&existing).Updates(map[string]interface{}{
			"amount_cents": amountCents,
			"status":       models.PaymentCompleted,
			"completed_at": now,
		}).Error; err != nil {
			return fmt.Errorf("ledger: update payment for %s: %w", trackID, err)
		}
		return nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("ledger: load payment for %s: %w", trackID, err)
	}

	payment := models.Payment{TrackID: trackID, AmountCents: amountCents, CompletedAt: now}
	if err := tx.Create(&payment).Error; err != nil {
		if db.IsDuplicateKey(err) {
			return apperr.Conflict("payment for track %s is already being recorded", trackID)
		}
		return fmt.Errorf("ledger: record payment for %s: %w", trackID, err)
	}
	return nil
}

// RequestReviews queues an uploaded track paid for with the owner's credits.
func RequestReviews(ctx context.Context, gdb *gorm.DB, trackID string, a actor.Actor, count int, opts Opts) (*QueueResult, error) {
	opts = opts.withDefaults()
	if err := a.InGoodStanding(); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, apperr.New(apperr.Invalid, "review count must be positive")
	}
	res := &QueueResult{TrackID: trackID}
	var track models.Track
	var artist models.ArtistProfile

	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockTrack(tx, trackID, &track); err != nil {
			return err
		}
		if err := checkOwner(tx, &track, a, &artist); err != nil {
			return err
		}
		if track.Status != models.TrackUploaded {
			return apperr.Conflict("track %s is %s; only uploaded tracks can request reviews", trackID, track.Status)
		}
		balance, err := Apply(tx, track.ArtistID, trackID, TxSpend, -count)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.ArtistProfile{}).Where("id = ?", track.ArtistID).
			Update("total_tracks", gorm.Expr("total_tracks + 1")).Error; err != nil {
			return fmt.Errorf("ledger: update artist %s: %w", track.ArtistID, err)
		}
		if err := tx.Model(&models.Track{}).Where("id = ?", trackID).Updates(map[string]interface{}{
			"status":            models.TrackQueued,
			"reviews_requested": count,
			"credits_spent":     count,
			"paid_at":           opts.Now,
		}).Error; err != nil {
			return fmt.Errorf("ledger: queue track %s: %w", trackID, err)
		}
		res.Queued = true
		res.ReviewsRequested = count
		res.CreditsBalance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	afterQueue(ctx, gdb, &track, &artist, res, opts)
	return res, nil
}

// afterQueue fires the post-commit side effects of queueing.
func afterQueue(ctx context.Context, gdb *gorm.DB, track *models.Track, artist *models.ArtistProfile, res *QueueResult, opts Opts) {
	notify.Fire(ctx, opts.Emitter, notify.Event{
		Kind:        notify.TrackQueued,
		TrackID:     track.ID,
		TrackTitle:  track.Title,
		ArtistEmail: artist.Email,
		Requested:   res.ReviewsRequested,
		At:          opts.Now,
	})
	ar, err := assign.Assign(ctx, gdb, track.ID, opts.Assign)
	if err != nil {
		log.Printf("ledger: assign after queue %s: %v", track.ID, err)
		return
	}
	res.Assign = ar
}

// DequeueResult is returned by Dequeue and Cancel.
type DequeueResult struct {
	TrackID          string
	CreditsRefunded  int
	NewStatus        string
	ReviewsRequested int
	ReviewsExpired   int
}

// Dequeue stops a track before all its reviews are delivered. Undelivered
// reviews are refunded, reviewsRequested shrinks to the completed count, and
// the track ends COMPLETED when some reviews were delivered or UPLOADED when
// none were.
func Dequeue(ctx context.Context, gdb *gorm.DB, trackID string, a actor.Actor, opts Opts) (*DequeueResult, error) {
	opts = opts.withDefaults()
	if err := a.Authenticated(); err != nil {
		return nil, err
	}
	res := &DequeueResult{TrackID: trackID}

	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var track models.Track
		if err := lockTrack(tx, trackID, &track); err != nil {
			return err
		}
		if err := checkOwner(tx, &track, a, nil); err != nil {
			return err
		}
		switch track.Status {
		case models.TrackQueued, models.TrackInProgress, models.TrackPendingPayment:
		default:
			return apperr.Conflict("track %s is %s and cannot be dequeued", trackID, track.Status)
		}

		completed, err := countCompleted(tx, trackID)
		if err != nil {
			return err
		}
		if completed > track.ReviewsRequested {
			return apperr.Broken("track %s has %d completed reviews of %d requested", trackID, completed, track.ReviewsRequested)
		}
		refund := track.ReviewsRequested - completed
		if refund > track.CreditsSpent {
			refund = track.CreditsSpent
		}

		expired, err := closeActive(tx, trackID)
		if err != nil {
			return err
		}
		res.ReviewsExpired = expired
		if refund > 0 {
			if _, err := Apply(tx, track.ArtistID, trackID, TxRefund, refund); err != nil {
				return err
			}
		}

		updates := map[string]interface{}{
			"reviews_requested": completed,
			"reviews_completed": completed,
			"credits_spent":     track.CreditsSpent - refund,
		}
		if completed > 0 {
			updates["status"] = models.TrackCompleted
			updates["completed_at"] = opts.Now
			res.NewStatus = models.TrackCompleted
		} else {
			updates["status"] = models.TrackUploaded
			res.NewStatus = models.TrackUploaded
		}
		if err := tx.Model(&models.Track{}).Where("id = ?", trackID).Updates(updates).Error; err != nil {
			return fmt.Errorf("ledger: dequeue track %s: %w", trackID, err)
		}
		res.CreditsRefunded = refund
		res.ReviewsRequested = completed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Cancel withdraws a track nobody has started reviewing. All debited credits
// are refunded and the track becomes CANCELLED.
func Cancel(ctx context.Context, gdb *gorm.DB, trackID string, a actor.Actor, opts Opts) (*DequeueResult, error) {
	opts = opts.withDefaults()
	if err := a.Authenticated(); err != nil {
		return nil, err
	}
	res := &DequeueResult{TrackID: trackID, NewStatus: models.TrackCancelled}

	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var track models.Track
		if err := lockTrack(tx, trackID, &track); err != nil {
			return err
		}
		if err := checkOwner(tx, &track, a, nil); err != nil {
			return err
		}
		if track.Status != models.TrackPendingPayment && track.Status != models.TrackQueued {
			return apperr.Conflict("track %s is %s and cannot be cancelled", trackID, track.Status)
		}
		var started int64
		if err := tx.Model(&models.Review{}).
			Where("track_id = ? AND status IN ?", trackID, []string{models.ReviewInProgress, models.ReviewCompleted}).
			Count(&started).Error; err != nil {
			return fmt.Errorf("ledger: count started reviews on %s: %w", trackID, err)
		}
		if started > 0 {
			return apperr.Conflict("track %s already has reviews underway; dequeue it instead", trackID)
		}

		expired, err := closeActive(tx, trackID)
		if err != nil {
			return err
		}
		res.ReviewsExpired = expired
		if track.CreditsSpent > 0 {
			if _, err := Apply(tx, track.ArtistID, trackID, TxRefund, track.CreditsSpent); err != nil {
				return err
			}
		}
		if err := tx.Model(&models.Track{}).Where("id = ?", trackID).Updates(map[string]interface{}{
			"status":        models.TrackCancelled,
			"credits_spent": 0,
		}).Error; err != nil {
			return fmt.Errorf("ledger: cancel track %s: %w", trackID, err)
		}
		res.CreditsRefunded = track.CreditsSpent
		res.ReviewsRequested = track.ReviewsRequested
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Report is the outcome of a reconciliation check on one track.
type Report struct {
	TrackID          string
	Counted          int
	ReviewsCompleted int
	ReviewsRequested int
}

// Verify recounts a track's completed reviews and compares them with the
// denormalized counter and the requested count. Drift is an INTEGRITY error.
func Verify(gdb *gorm.DB, trackID string) (*Report, error) {
	var track models.Track
	if err := gdb.Where("id = ?", trackID).First(&track).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Missing("track %s not found", trackID)
		}
		return nil, fmt.Errorf("ledger: load track %s: %w", trackID, err)
	}
	counted, err := countCompleted(gdb, trackID)
	if err != nil {
		return nil, err
	}
	rep := &Report{
		TrackID:          trackID,
		Counted:          counted,
		ReviewsCompleted: track.ReviewsCompleted,
		ReviewsRequested: track.ReviewsRequested,
	}
	if counted != track.ReviewsCompleted {
		return rep, apperr.Broken("track %s counter says %d completed, found %d", trackID, track.ReviewsCompleted, counted)
	}
	if counted > track.ReviewsRequested {
		return rep, apperr.Broken("track %s has %d completed of %d requested", trackID, counted, track.ReviewsRequested)
	}
	return rep, nil
}

// VerifyAll runs Verify over every track and returns the reports that failed.
func VerifyAll(gdb *gorm.DB) ([]Report, error) {
	var ids []string
	if err := gdb.Model(&models.Track{}).Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("ledger: list tracks: %w", err)
	}
	var broken []Report
	for _, id := range ids {
		rep, err := Verify(gdb, id)
		if err == nil {
			continue
		}
		if apperr.KindOf(err) != apperr.Integrity {
			return broken, err
		}
		broken = append(broken, *rep)
	}
	var negative int64
	if err := gdb.Model(&models.ArtistProfile{}).Where("review_credits < 0").Count(&negative).Error; err != nil {
		return broken, fmt.Errorf("ledger: check balances: %w", err)
	}
	if negative > 0 {
		return broken, apperr.Broken("%d artists have negative credits", negative)
	}
	return broken, nil
}

func lockTrack(tx *gorm.DB, trackID string, track *models.Track) error {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", trackID).First(track).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Missing("track %s not found", trackID)
		}
		return fmt.Errorf("ledger: lock track %s: %w", trackID, err)
	}
	return nil
}

// checkOwner verifies a owns track, or is privileged. When artist is non-nil
// it receives the owner's profile.
func checkOwner(tx *gorm.DB, track *models.Track, a actor.Actor, artist *models.ArtistProfile) error {
	var owner models.ArtistProfile
	if err := tx.Select("id", "user_id", "email").Where("id = ?", track.ArtistID).First(&owner).Error; err != nil {
		return fmt.Errorf("ledger: load owner of %s: %w", track.ID, err)
	}
	if artist != nil {
		*artist = owner
	}
	if owner.UserID != a.UserID && !a.Privileged() {
		return apperr.Forbidden("you do not own track %s", track.ID)
	}
	return nil
}

func countCompleted(tx *gorm.DB, trackID string) (int, error) {
	var n int64
	if err := tx.Model(&models.Review{}).
		Where("track_id = ? AND status = ?", trackID, models.ReviewCompleted).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("ledger: count completed on %s: %w", trackID, err)
	}
	return int(n), nil
}

// closeActive expires every active review on a track and drops its leases.
func closeActive(tx *gorm.DB, trackID string) (int, error) {
	result := tx.Model(&models.Review{}).
		Where("track_id = ? AND status IN ?", trackID, models.ActiveReviewStatuses).
		Updates(map[string]interface{}{
			"status":     models.ReviewExpired,
			"active_key": nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("ledger: expire reviews on %s: %w", trackID, result.Error)
	}
	if _, err := lease.DeleteForTrack(tx, trackID); err != nil {
		return 0, err
	}
	return int(result.RowsAffected), nil
}
