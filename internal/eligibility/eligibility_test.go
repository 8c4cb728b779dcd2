package eligibility

import (
	"testing"
	"time"

	"github.com/zulandar/soundcheck/internal/catalog"
	"github.com/zulandar/soundcheck/internal/dbtest"
	"github.com/zulandar/soundcheck/internal/models"
	"github.com/zulandar/soundcheck/internal/tier"
)

func reviewer(id string, mods ...func(*models.ReviewerProfile)) DedicatedReviewer {
	p := &models.ReviewerProfile{
		ID:                   id,
		UserID:               "u-" + id,
		Tier:                 string(tier.Rookie),
		CompletedOnboarding:  true,
		OnboardingQuizPassed: true,
		Genres:               []models.Genre{{ID: 1}},
		AccountCreatedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, m := range mods {
		m(p)
	}
	return DedicatedReviewer{Profile: p}
}

func standardTarget() Target {
	pkg, _ := catalog.Default().Lookup(catalog.Standard)
	return Target{TrackID: "t1", OwnerUserID: "u-owner", GenreIDs: []uint{1, 2}, Package: pkg}
}

func TestCheck_Rules(t *testing.T) {
	proPkg, _ := catalog.Default().Lookup(catalog.Pro)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		target Target
		cand   Candidate
		opts   Opts
		want   string
	}{
		{"eligible", standardTarget(), reviewer("a"), Opts{}, ""},
		{"restricted", standardTarget(), reviewer("a", func(p *models.ReviewerProfile) { p.IsRestricted = true }), Opts{}, ReasonRestricted},
		{"quiz not passed", standardTarget(), reviewer("a", func(p *models.ReviewerProfile) { p.OnboardingQuizPassed = false }), Opts{}, ReasonNotOnboarded},
		{"prior review", standardTarget(), reviewer("a"), Opts{Excluded: map[string]bool{"reviewer:a": true}}, ReasonAlreadyAssigned},
		{"own track", standardTarget(), reviewer("owner", func(p *models.ReviewerProfile) { p.UserID = "u-owner" }), Opts{}, ReasonOwnTrack},
		{"no shared genre", standardTarget(), reviewer("a", func(p *models.ReviewerProfile) { p.Genres = []models.Genre{{ID: 9}} }), Opts{}, ReasonGenreMismatch},
		{"any genre opt-in", standardTarget(), reviewer("a", func(p *models.ReviewerProfile) {
			p.Genres = nil
			p.AnyGenre = true
		}), Opts{}, ""},
		{"tier too low for pro", Target{TrackID: "t1", GenreIDs: []uint{1}, Package: proPkg}, reviewer("a", func(p *models.ReviewerProfile) { p.Tier = "VERIFIED" }), Opts{}, ReasonTierTooLow},
		{"pro meets pro", Target{TrackID: "t1", GenreIDs: []uint{1}, Package: proPkg}, reviewer("a", func(p *models.ReviewerProfile) { p.Tier = "PRO" }), Opts{}, ""},
		{"account too new", standardTarget(), reviewer("a", func(p *models.ReviewerProfile) { p.AccountCreatedAt = now.Add(-time.Hour) }), Opts{MinAccountAge: 24 * time.Hour, Now: now}, ReasonAccountTooNew},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Check(tt.target, tt.cand, tt.opts); got != tt.want {
				t.Errorf("Check() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheck_PeerSubmitterSelfExclusion(t *testing.T) {
	peerPkg, _ := catalog.Default().Lookup(catalog.Peer)
	target := Target{TrackID: "t1", OwnerUserID: "u-me", GenreIDs: []uint{1}, Package: peerPkg}
	self := PeerSubmitter{Profile: &models.ArtistProfile{ID: "me", UserID: "u-me", CompletedOnboarding: true, AnyGenre: true}}
	other := PeerSubmitter{Profile: &models.ArtistProfile{ID: "you", UserID: "u-you", CompletedOnboarding: true, AnyGenre: true}}

	if got := Check(target, self, Opts{}); got != ReasonOwnTrack {
		t.Errorf("self Check = %q, want %q", got, ReasonOwnTrack)
	}
	if got := Check(target, other, Opts{}); got != "" {
		t.Errorf("other Check = %q, want eligible", got)
	}
}

func TestFilter_Ordering(t *testing.T) {
	long := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	pool := []Candidate{
		reviewer("rookie-high", func(p *models.ReviewerProfile) { p.AverageRating = 4.9 }),
		reviewer("verified-recent", func(p *models.ReviewerProfile) {
			p.Tier = "VERIFIED"
			p.AverageRating = 4.2
			p.LastAssignedAt = &recent
		}),
		reviewer("verified-waiting", func(p *models.ReviewerProfile) {
			p.Tier = "VERIFIED"
			p.AverageRating = 4.2
			p.LastAssignedAt = &long
		}),
		reviewer("verified-never", func(p *models.ReviewerProfile) {
			p.Tier = "VERIFIED"
			p.AverageRating = 4.2
		}),
		reviewer("pro", func(p *models.ReviewerProfile) {
			p.Tier = "PRO"
			p.AverageRating = 4.6
		}),
		reviewer("banned", func(p *models.ReviewerProfile) { p.IsRestricted = true }),
	}

	got := Filter(standardTarget(), pool, Opts{})
	want := []string{"pro", "verified-never", "verified-waiting", "verified-recent", "rookie-high"}
	if len(got) != len(want) {
		t.Fatalf("Filter returned %d candidates, want %d", len(got), len(want))
	}
	for i, c := range got {
		if c.ProfileID() != want[i] {
			t.Errorf("position %d = %s, want %s", i, c.ProfileID(), want[i])
		}
	}
}

func TestDedicatedReviewer_TierFallback(t *testing.T) {
	r := reviewer("a", func(p *models.ReviewerProfile) {
		p.Tier = ""
		p.TotalReviews = 30
		p.AverageRating = 4.1
	})
	if r.Tier() != tier.Verified {
		t.Errorf("Tier() = %s, want VERIFIED", r.Tier())
	}
}

func TestPool_LoadsFromDB(t *testing.T) {
	gdb := dbtest.Open(t)
	artist := dbtest.Artist(t, gdb, 0, "pop")
	track := dbtest.Track(t, gdb, artist, catalog.Standard, models.TrackQueued, 2, "pop")
	ok := dbtest.Reviewer(t, gdb, dbtest.ReviewerOpts{}, "pop")
	dbtest.Reviewer(t, gdb, dbtest.ReviewerOpts{Restricted: true}, "pop")
	prior := dbtest.Reviewer(t, gdb, dbtest.ReviewerOpts{}, "pop")
	dbtest.Review(t, gdb, track.ID, models.KindReviewer, prior.ID, models.ReviewSkipped, time.Now())

	pool, err := ReviewerPool(gdb)
	if err != nil {
		t.Fatalf("ReviewerPool: %v", err)
	}
	if len(pool) != 2 {
		t.Fatalf("pool = %d, want 2 (restricted filtered in SQL)", len(pool))
	}

	var loaded models.Track
	gdb.Preload("Genres").First(&loaded, "id = ?", track.ID)
	target, err := TargetFor(gdb, &loaded, catalog.Default())
	if err != nil {
		t.Fatalf("TargetFor: %v", err)
	}
	if target.OwnerUserID != artist.UserID {
		t.Errorf("OwnerUserID = %q, want %q", target.OwnerUserID, artist.UserID)
	}

	excluded, err := ExcludedKeys(gdb, track.ID)
	if err != nil {
		t.Fatalf("ExcludedKeys: %v", err)
	}
	got := Filter(target, pool, Opts{Excluded: excluded})
	if len(got) != 1 || got[0].ProfileID() != ok.ID {
		t.Errorf("Filter = %v, want only %s", got, ok.ID)
	}
}
