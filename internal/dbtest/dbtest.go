// Package dbtest provides in-memory SQLite databases and fixtures for tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/soundcheck/internal/db"
	"github.com/zulandar/soundcheck/internal/models"
	"gorm.io/gorm"
)

// Open returns a migrated in-memory database.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Migrate(gdb, nil); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { db.Close(gdb) })
	return gdb
}

// Genre returns the seeded genre with the given slug.
func Genre(t *testing.T, gdb *gorm.DB, slug string) models.Genre {
	t.Helper()
	var g models.Genre
	if err := gdb.Where("slug = ?", slug).First(&g).Error; err != nil {
		t.Fatalf("genre %s: %v", slug, err)
	}
	return g
}

// Artist creates an onboarded submitter with the given credits.
func Artist(t *testing.T, gdb *gorm.DB, credits int, genres ...string) *models.ArtistProfile {
	t.Helper()
	id := uuid.NewString()
	a := &models.ArtistProfile{
		ID:                  id,
		UserID:              "user-" + id,
		DisplayName:         "artist",
		Email:               "artist@example.com",
		CompletedOnboarding: true,
		ReviewCredits:       credits,
		CreatedAt:           time.Now().UTC().Add(-72 * time.Hour),
	}
	for _, slug := range genres {
		a.Genres = append(a.Genres, Genre(t, gdb, slug))
	}
	if err := gdb.Create(a).Error; err != nil {
		t.Fatalf("create artist: %v", err)
	}
	return a
}

// ReviewerOpts tweaks a fixture reviewer.
type ReviewerOpts struct {
	Tier          string
	TotalReviews  int
	AverageRating float64
	Restricted    bool
	NotOnboarded  bool
	AnyGenre      bool
	AccountAge    time.Duration
	LastAssigned  *time.Time
}

// Reviewer creates a dedicated reviewer interested in the given genres.
func Reviewer(t *testing.T, gdb *gorm.DB, opts ReviewerOpts, genres ...string) *models.ReviewerProfile {
	t.Helper()
	if opts.Tier == "" {
		opts.Tier = "ROOKIE"
	}
	if opts.AccountAge == 0 {
		opts.AccountAge = 30 * 24 * time.Hour
	}
	id := uuid.NewString()
	r := &models.ReviewerProfile{
		ID:                   id,
		UserID:               "user-" + id,
		DisplayName:          "reviewer",
		Tier:                 opts.Tier,
		TotalReviews:         opts.TotalReviews,
		AverageRating:        opts.AverageRating,
		IsRestricted:         opts.Restricted,
		CompletedOnboarding:  !opts.NotOnboarded,
		OnboardingQuizPassed: !opts.NotOnboarded,
		AnyGenre:             opts.AnyGenre,
		LastAssignedAt:       opts.LastAssigned,
		AccountCreatedAt:     time.Now().UTC().Add(-opts.AccountAge),
	}
	for _, slug := range genres {
		r.Genres = append(r.Genres, Genre(t, gdb, slug))
	}
	if err := gdb.Create(r).Error; err != nil {
		t.Fatalf("create reviewer: %v", err)
	}
	return r
}

// Track creates a track owned by artist in the given state.
func Track(t *testing.T, gdb *gorm.DB, artist *models.ArtistProfile, pkg, status string, requested int, genres ...string) *models.Track {
	t.Helper()
	tr := &models.Track{
		ID:               uuid.NewString(),
		ArtistID:         artist.ID,
		Title:            "Demo",
		PackageType:      pkg,
		Status:           status,
		ReviewsRequested: requested,
	}
	if status != models.TrackUploaded && status != models.TrackPendingPayment {
		tr.CreditsSpent = requested
	}
	for _, slug := range genres {
		tr.Genres = append(tr.Genres, Genre(t, gdb, slug))
	}
	if err := gdb.Omit("Artist").Create(tr).Error; err != nil {
		t.Fatalf("create track: %v", err)
	}
	return tr
}

// Review inserts a review row with a lease when the status is active.
func Review(t *testing.T, gdb *gorm.DB, trackID, kind, assigneeID, status string, expiresAt time.Time) *models.Review {
	t.Helper()
	expiresAt = expiresAt.UTC()
	r := &models.Review{
		ID:           uuid.NewString(),
		TrackID:      trackID,
		AssigneeKind: kind,
		AssigneeID:   assigneeID,
		Status:       status,
	}
	if !models.ReviewTerminal(status) {
		r.ActiveKey = models.ActiveKey(trackID, kind, assigneeID)
	}
	if status == models.ReviewCompleted {
		now := time.Now().UTC()
		r.CompletedAt = &now
	}
	if err := gdb.Create(r).Error; err != nil {
		t.Fatalf("create review: %v", err)
	}
	if !models.ReviewTerminal(status) {
		l := &models.Lease{
			TrackID:       trackID,
			CandidateKey:  models.CandidateKey(kind, assigneeID),
			CandidateKind: kind,
			CandidateID:   assigneeID,
			ReviewID:      r.ID,
			AssignedAt:    expiresAt.Add(-48 * time.Hour),
			ExpiresAt:     expiresAt,
		}
		if err := gdb.Create(l).Error; err != nil {
			t.Fatalf("create lease: %v", err)
		}
	}
	return r
}

// Reload re-reads a row by primary key.
func Reload[T any](t *testing.T, gdb *gorm.DB, id string) *T {
	t.Helper()
	var v T
	if err := gdb.Where("id = ?", id).First(&v).Error; err != nil {
		t.Fatalf("reload %s: %v", id, err)
	}
	return &v
}

// Count counts rows of model matching the where clause.
func Count(t *testing.T, gdb *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	if err := gdb.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
