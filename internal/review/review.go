// Package review implements the reviewer-facing operations on a Review:
// claiming a peer track, listening heartbeats, skipping, submitting and
// rating.
package review

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/soundcheck/internal/actor"
	"github.com/zulandar/soundcheck/internal/apperr"
	"github.com/zulandar/soundcheck/internal/assign"
	"github.com/zulandar/soundcheck/internal/catalog"
	"github.com/zulandar/soundcheck/internal/config"
	"github.com/zulandar/soundcheck/internal/lease"
	"github.com/zulandar/soundcheck/internal/models"
	"github.com/zulandar/soundcheck/internal/notify"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Defaults for Opts fields left zero.
const (
	DefaultMinListenSeconds    = 180
	DefaultHeartbeatMaxStep    = 10
	DefaultClientReportMaxStep = 60
	DefaultSkipLimitPerDay     = 3
	DefaultPeerClaimsPerDay    = 2
	DefaultSessionTimeout      = 2 * time.Minute
)

// Opts carries the limits and collaborators of review operations.
type Opts struct {
	Now                 time.Time
	Location            *time.Location // daily windows start at midnight here
	LeaseTTL            time.Duration
	Catalog             catalog.Catalog
	MinAccountAge       time.Duration
	MinListenSeconds    int
	HeartbeatMaxStep    int
	ClientReportMaxStep int
	SkipLimitPerDay     int
	PeerClaimsPerDay    int
	SessionTimeout      time.Duration
	Emitter             notify.Emitter
}

// OptsFromConfig builds Opts from the scheduler configuration.
func OptsFromConfig(cfg *config.Config, emitter notify.Emitter) Opts {
	s := cfg.Scheduler
	return Opts{
		Location:            cfg.Location(),
		LeaseTTL:            s.LeaseTTL,
		Catalog:             catalog.FromConfig(cfg.Packages),
		MinAccountAge:       s.MinReviewerAccountAge,
		MinListenSeconds:    s.MinListenSeconds,
		HeartbeatMaxStep:    s.HeartbeatMaxStep,
		ClientReportMaxStep: s.ClientReportMaxStep,
		SkipLimitPerDay:     s.SkipLimitPerDay,
		PeerClaimsPerDay:    s.PeerClaimsPerDay,
		Emitter:             emitter,
	}
}

func (o Opts) withDefaults() Opts {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	// Stored timestamps are UTC so range queries compare like with like.
	o.Now = o.Now.UTC()
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Catalog == nil {
		o.Catalog = catalog.Default()
	}
	if o.MinListenSeconds <= 0 {
		o.MinListenSeconds = DefaultMinListenSeconds
	}
	if o.HeartbeatMaxStep <= 0 {
		o.HeartbeatMaxStep = DefaultHeartbeatMaxStep
	}
	if o.ClientReportMaxStep <= 0 {
		o.ClientReportMaxStep = DefaultClientReportMaxStep
	}
	if o.SkipLimitPerDay <= 0 {
		o.SkipLimitPerDay = DefaultSkipLimitPerDay
	}
	if o.PeerClaimsPerDay <= 0 {
		o.PeerClaimsPerDay = DefaultPeerClaimsPerDay
	}
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = DefaultSessionTimeout
	}
	return o
}

// AssignOpts returns the assigner options matching o.
func (o Opts) AssignOpts() assign.Opts {
	return assign.Opts{
		Now:           o.Now,
		LeaseTTL:      o.LeaseTTL,
		Catalog:       o.Catalog,
		MinAccountAge: o.MinAccountAge,
	}
}

// StartOfDay returns local midnight of now in loc.
func StartOfDay(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// assignee is the profile a review is assigned to.
type assignee struct {
	kind       string
	id         string
	userID     string
	restricted bool
	onboarded  bool
	tier       string
}

// lockReview loads a review FOR UPDATE and resolves its assignee.
func lockReview(tx *gorm.DB, reviewID string, r *models.Review) (*assignee, error) {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", reviewID).First(r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Missing("review %s not found", reviewID)
		}
		return nil, fmt.Errorf("review: load %s: %w", reviewID, err)
	}
	return loadAssignee(tx, r.AssigneeKind, r.AssigneeID)
}

func loadAssignee(tx *gorm.DB, kind, id string) (*assignee, error) {
	switch kind {
	case models.KindReviewer:
		var p models.ReviewerProfile
		if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
			return nil, fmt.Errorf("review: load reviewer %s: %w", id, err)
		}
		return &assignee{
			kind:       kind,
			id:         id,
			userID:     p.UserID,
			restricted: p.IsRestricted,
			onboarded:  p.CompletedOnboarding && p.OnboardingQuizPassed,
			tier:       p.Tier,
		}, nil
	case models.KindPeer:
		var p models.ArtistProfile
		if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
			return nil, fmt.Errorf("review: load peer %s: %w", id, err)
		}
		return &assignee{
			kind:       kind,
			id:         id,
			userID:     p.UserID,
			restricted: p.IsRestricted,
			onboarded:  p.CompletedOnboarding,
		}, nil
	default:
		return nil, apperr.Broken("review assignee kind %q is unknown", kind)
	}
}

// authorize checks that a owns the review and is allowed to work on it.
func (as *assignee) authorize(a actor.Actor) error {
	if err := a.Authenticated(); err != nil {
		return err
	}
	if as.userID != a.UserID {
		return apperr.Forbidden("review is assigned to someone else")
	}
	if a.Restricted || as.restricted {
		return apperr.Forbidden("account restricted")
	}
	return nil
}

// retire moves a review to a terminal status and drops its lease.
func retire(tx *gorm.DB, reviewID, status string, extra map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":     status,
		"active_key": nil,
	}
	for k, v := range extra {
		updates[k] = v
	}
	if err := tx.Model(&models.Review{}).Where("id = ?", reviewID).Updates(updates).Error; err != nil {
		return fmt.Errorf("review: mark %s %s: %w", reviewID, status, err)
	}
	_, err := lease.DeleteForReview(tx, reviewID)
	return err
}
