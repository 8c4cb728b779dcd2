package eligibility

import (
	"time"

	"github.com/zulandar/soundcheck/internal/models"
	"github.com/zulandar/soundcheck/internal/tier"
)

// Candidate is anyone who can be assigned to review a track: a dedicated
// reviewer or, for peer packages, another submitter.
type Candidate interface {
	Kind() string
	ProfileID() string
	UserID() string
	Tier() tier.Tier
	Rating() float64
	Restricted() bool
	Onboarded() bool
	AnyGenre() bool
	GenreIDs() []uint
	LastAssigned() *time.Time
	JoinedAt() time.Time
}

// Key returns the candidate's identity across both variants.
func Key(c Candidate) string {
	return models.CandidateKey(c.Kind(), c.ProfileID())
}

// DedicatedReviewer wraps a reviewer profile.
type DedicatedReviewer struct {
	Profile *models.ReviewerProfile
}

func (r DedicatedReviewer) Kind() string      { return models.KindReviewer }
func (r DedicatedReviewer) ProfileID() string { return r.Profile.ID }
func (r DedicatedReviewer) UserID() string    { return r.Profile.UserID }
func (r DedicatedReviewer) Rating() float64   { return r.Profile.AverageRating }
func (r DedicatedReviewer) Restricted() bool  { return r.Profile.IsRestricted }
func (r DedicatedReviewer) AnyGenre() bool    { return r.Profile.AnyGenre }
func (r DedicatedReviewer) JoinedAt() time.Time {
	return r.Profile.AccountCreatedAt
}
func (r DedicatedReviewer) LastAssigned() *time.Time { return r.Profile.LastAssignedAt }
func (r DedicatedReviewer) GenreIDs() []uint         { return genreIDs(r.Profile.Genres) }

// Tier returns the stored tier, falling back to recomputing it from the
// profile's aggregates when the stored value is unknown.
func (r DedicatedReviewer) Tier() tier.Tier {
	if t, err := tier.Parse(r.Profile.Tier); err == nil {
		return t
	}
	return tier.For(r.Profile.TotalReviews, r.Profile.AverageRating)
}

// Onboarded requires both onboarding and the qualification quiz.
func (r DedicatedReviewer) Onboarded() bool {
	return r.Profile.CompletedOnboarding && r.Profile.OnboardingQuizPassed
}

// PeerSubmitter wraps a submitter profile acting as a peer reviewer.
type PeerSubmitter struct {
	Profile *models.ArtistProfile
}

func (p PeerSubmitter) Kind() string             { return models.KindPeer }
func (p PeerSubmitter) ProfileID() string        { return p.Profile.ID }
func (p PeerSubmitter) UserID() string           { return p.Profile.UserID }
func (p PeerSubmitter) Tier() tier.Tier          { return tier.Rookie }
func (p PeerSubmitter) Rating() float64          { return p.Profile.PeerRating }
func (p PeerSubmitter) Restricted() bool         { return p.Profile.IsRestricted }
func (p PeerSubmitter) Onboarded() bool          { return p.Profile.CompletedOnboarding }
func (p PeerSubmitter) AnyGenre() bool           { return p.Profile.AnyGenre }
func (p PeerSubmitter) GenreIDs() []uint         { return genreIDs(p.Profile.Genres) }
func (p PeerSubmitter) LastAssigned() *time.Time { return p.Profile.LastAssignedAt }
func (p PeerSubmitter) JoinedAt() time.Time      { return p.Profile.CreatedAt }

func genreIDs(genres []models.Genre) []uint {
	ids := make([]uint, 0, len(genres))
	for _, g := range genres {
		ids = append(ids, g.ID)
	}
	return ids
}
