// Package eligibility decides which candidates may be assigned to a track.
package eligibility

import (
	"sort"
	"time"

	"github.com/zulandar/soundcheck/internal/catalog"
)

// Reasons a candidate is rejected.
const (
	ReasonRestricted      = "restricted"
	ReasonNotOnboarded    = "not onboarded"
	ReasonAlreadyAssigned = "already assigned to this track"
	ReasonOwnTrack        = "cannot review own track"
	ReasonGenreMismatch   = "no shared genre"
	ReasonTierTooLow      = "tier below package minimum"
	ReasonAccountTooNew   = "account too new"
)

// Target is the track side of an eligibility decision.
type Target struct {
	TrackID     string
	OwnerUserID string
	GenreIDs    []uint
	Package     catalog.Package
}

// Opts carries the per-call context of an eligibility decision.
type Opts struct {
	// Excluded holds candidate keys that already have a review on the track.
	Excluded      map[string]bool
	MinAccountAge time.Duration
	Now           time.Time
}

// Check returns the reason c is ineligible for target, or "" when eligible.
func Check(target Target, c Candidate, opts Opts) string {
	if c.Restricted() {
		return ReasonRestricted
	}
	if !c.Onboarded() {
		return ReasonNotOnboarded
	}
	if opts.Excluded[Key(c)] {
		return ReasonAlreadyAssigned
	}
	if target.OwnerUserID != "" && c.UserID() == target.OwnerUserID {
		return ReasonOwnTrack
	}
	if target.Package.GenreGated && !c.AnyGenre() && !sharesGenre(target.GenreIDs, c.GenreIDs()) {
		return ReasonGenreMismatch
	}
	if !c.Tier().AtLeast(target.Package.MinTier) {
		return ReasonTierTooLow
	}
	if opts.MinAccountAge > 0 {
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		if now.Sub(c.JoinedAt()) < opts.MinAccountAge {
			return ReasonAccountTooNew
		}
	}
	return ""
}

// Filter returns the eligible candidates from pool, best first: higher tier,
// then higher rating, then the candidate waiting longest since their last
// assignment, then the oldest account.
func Filter(target Target, pool []Candidate, opts Opts) []Candidate {
	var out []Candidate
	for _, c := range pool {
		if Check(target, c, opts) == "" {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	return out
}

func less(a, b Candidate) bool {
	if ra, rb := a.Tier().Rank(), b.Tier().Rank(); ra != rb {
		return ra > rb
	}
	if a.Rating() != b.Rating() {
		return a.Rating() > b.Rating()
	}
	la, lb := a.LastAssigned(), b.LastAssigned()
	switch {
	case la == nil && lb != nil:
		return true
	case la != nil && lb == nil:
		return false
	case la != nil && lb != nil && !la.Equal(*lb):
		return la.Before(*lb)
	}
	if !a.JoinedAt().Equal(b.JoinedAt()) {
		return a.JoinedAt().Before(b.JoinedAt())
	}
	return Key(a) < Key(b)
}

func sharesGenre(track, candidate []uint) bool {
	if len(track) == 0 {
		return false
	}
	set := make(map[uint]struct{}, len(track))
	for _, id := range track {
		set[id] = struct{}{}
	}
	for _, id := range candidate {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
