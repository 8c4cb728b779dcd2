// Package tier classifies reviewers by volume and rating.
package tier

import "fmt"

// Tier is a reviewer classification.
type Tier string

const (
	Rookie   Tier = "ROOKIE"
	Verified Tier = "VERIFIED"
	Pro      Tier = "PRO"
)

// Thresholds. Both bounds are inclusive.
const (
	VerifiedMinReviews = 25
	VerifiedMinRating  = 4.0
	ProMinReviews      = 100
	ProMinRating       = 4.5
)

// payoutCents is the per-review payout for each tier, in cents.
var payoutCents = map[Tier]int{
	Rookie:   15,
	Verified: 30,
	Pro:      50,
}

// For returns the tier earned by reviewCount reviews at averageRating.
// Rating gates the tier regardless of volume.
func For(reviewCount int, averageRating float64) Tier {
	if reviewCount >= ProMinReviews && averageRating >= ProMinRating {
		return Pro
	}
	if reviewCount >= VerifiedMinReviews && averageRating >= VerifiedMinRating {
		return Verified
	}
	return Rookie
}

// PayoutRate returns the per-review payout in cents. Unknown tiers pay the
// Rookie rate.
func (t Tier) PayoutRate() int {
	if c, ok := payoutCents[t]; ok {
		return c
	}
	return payoutCents[Rookie]
}

// Rank orders tiers: Rookie < Verified < Pro.
func (t Tier) Rank() int {
	switch t {
	case Pro:
		return 3
	case Verified:
		return 2
	case Rookie:
		return 1
	}
	return 0
}

// AtLeast reports whether t meets the minimum tier min.
// An empty min is always met.
func (t Tier) AtLeast(min Tier) bool {
	if min == "" {
		return true
	}
	return t.Rank() >= min.Rank()
}

// Parse converts a stored tier string, defaulting unknown values to an error.
func Parse(s string) (Tier, error) {
	switch Tier(s) {
	case Rookie, Verified, Pro:
		return Tier(s), nil
	}
	return "", fmt.Errorf("tier: unknown tier %q", s)
}

// All returns the tiers in ascending order.
func All() []Tier {
	return []Tier{Rookie, Verified, Pro}
}
