package assign

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/soundcheck/internal/apperr"
	"github.com/zulandar/soundcheck/internal/catalog"
	"github.com/zulandar/soundcheck/internal/dbtest"
	"github.com/zulandar/soundcheck/internal/models"
)

func TestAssign_FillsNeedAndCreatesLeases(t *testing.T) {
	gdb := dbtest.Open(t)
	artist := dbtest.Artist(t, gdb, 0)
	track := dbtest.Track(t, gdb, artist, catalog.Standard, models.TrackQueued, 2, "rock")
	for i := 0; i < 3; i++ {
		dbtest.Reviewer(t, gdb, dbtest.ReviewerOpts{}, "rock")
	}

	now := time.Now()
	res, err := Assign(context.Background(), gdb, track.ID, Opts{Now: now})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if res.Needed != 2 || len(res.Assigned) != 2 {
		t.Fatalf("Needed=%d Assigned=%d, want 2/2", res.Needed, len(res.Assigned))
	}
	if !res.Started {
		t.Error("Started = false, want true once fully assigned")
	}

	var leases []models.Lease
	gdb.Where("track_id = ?", track.ID).Find(&leases)
	if len(leases) != 2 {
		t.Fatalf("leases = %d, want 2", len(leases))
	}
	for _, l := range leases {
		if d := l.ExpiresAt.Sub(l.AssignedAt); d != 48*time.Hour {
			t.Errorf("lease TTL = %v, want 48h", d)
		}
		if l.Priority != 5 {
			t.Errorf("lease priority = %d, want 5 for STANDARD", l.Priority)
		}
	}
	if got := dbtest.Reload[models.Track](t, gdb, track.ID); got.Status != models.TrackInProgress {
		t.Errorf("track status = %s, want IN_PROGRESS", got.Status)
	}
}

func TestAssign_Idempotent(t *testing.T) {
	gdb := dbtest.Open(t)
	artist := dbtest.Artist(t, gdb, 0)
	track := dbtest.Track(t, gdb, artist, catalog.Standard, models.TrackQueued, 2, "rock")
	for i := 0; i < 4; i++ {
		dbtest.Reviewer(t, gdb, dbtest.ReviewerOpts{}, "rock")
	}

	if _, err := Assign(context.Background(), gdb, track.ID, Opts{}); err != nil {
		t.Fatalf("first Assign: %v", err)
	}
	res, err := Assign(context.Background(), gdb, track.ID, Opts{})
	if err != nil {
		t.Fatalf("second Assign: %v", err)
	}
	if len(res.Assigned) != 0 {
		t.Errorf("second pass assigned %d, want 0", len(res.Assigned))
	}
	if n := dbtest.Count(t, gdb, &models.Review{}, "track_id = ?", track.ID); n != 2 {
		t.Errorf("reviews = %d, want 2", n)
	}
	if n := dbtest.Count(t, gdb, &models.Lease{}, "track_id = ?", track.ID); n != 2 {
		t.Errorf("leases = %d, want 2", n)
	}
}

func TestAssign_ConcurrentCallsNeverOverfill(t *testing.T) {
	gdb := dbtest.Open(t)
	artist := dbtest.Artist(t, gdb, 0)
	track := dbtest.Track(t, gdb, artist, catalog.Standard, models.TrackQueued, 3, "rock")
	for i := 0; i < 6; i++ {
		dbtest.Reviewer(t, gdb, dbtest.ReviewerOpts{}, "rock")
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := Assign(context.Background(), gdb, track.ID, Opts{}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Assign: %v", err)
	}

	if n := dbtest.Count(t, gdb, &models.Review{}, "track_id = ? AND status = ?", track.ID, models.ReviewAssigned); n != 3 {
		t.Errorf("assigned reviews = %d, want 3", n)
	}
}

func TestAssign_CountsCompletedAndActive(t *testing.T) {
	gdb := dbtest.Open(t)
	artist := dbtest.Artist(t, gdb, 0)
	track := dbtest.Track(t, gdb, artist, catalog.Standard, models.TrackInProgress, 3, "rock")
	done := dbtest.Reviewer(t, gdb, dbtest.ReviewerOpts{}, "rock")
	busy := dbtest.Reviewer(t, gdb, dbtest.ReviewerOpts{}, "rock")
	dbtest.Reviewer(t, gdb, dbtest.ReviewerOpts{}, "rock")
	dbtest.Reviewer(t, gdb, dbtest.ReviewerOpts{}, "rock")
	dbtest.Review(t, gdb, track.ID, models.KindReviewer, done.ID, models.ReviewCompleted, time.Time{})
	dbtest.Review(t, gdb, track.ID, models.KindReviewer, busy.ID, models.ReviewInProgress, time.Now().Add(time.Hour))

	res, err := Assign(context.Background(), gdb, track.ID, Opts{})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if res.Needed != 1 || len(res.Assigned) != 1 {
		t.Errorf("Needed=%d Assigned=%d, want 1/1", res.Needed, len(res.Assigned))
	}
}

func TestAssign_NoEligibleCandidates(t *testing.T) {
	gdb := dbtest.Open(t)
	artist := dbtest.Artist(t, gdb, 0)
	track := dbtest.Track(t, gdb, artist, catalog.Standard, models.TrackQueued, 2, "jazz")
	dbtest.Reviewer(t, gdb, dbtest.ReviewerOpts{}, "metal")
	dbtest.Reviewer(t, gdb, dbtest.ReviewerOpts{AccountAge: time.Hour}, "jazz")

	res, err := Assign(context.Background(), gdb, track.ID, Opts{MinAccountAge: 24 * time.Hour})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if len(res.Assigned) != 0 {
		t.Errorf("Assigned = %d, want 0", len(res.Assigned))
	}
	if got := dbtest.Reload[models.Track](t, gdb, track.ID); got.Status != models.TrackQueued {
		t.Errorf("status = %s, want QUEUED while unassigned", got.Status)
	}
}

func TestAssign_ProPackageRequiresProTier(t *testing.T) {
	gdb := dbtest.Open(t)
	artist := dbtest.Artist(t, gdb, 0)
	track := dbtest.Track(t, gdb, artist, catalog.Pro, models.TrackQueued, 2, "pop")
	pro := dbtest.Reviewer(t, gdb, dbtest.ReviewerOpts{Tier: "PRO"}, "pop")
	dbtest.Reviewer(t, gdb, dbtest.ReviewerOpts{Tier: "VERIFIED"}, "pop")

	res, err := Assign(context.Background(), gdb, track.ID, Opts{})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if len(res.Assigned) != 1 {
		t.Fatalf("Assigned = %d, want 1", len(res.Assigned))
	}
	r := dbtest.Reload[models.Review](t, gdb, res.Assigned[0])
	if r.AssigneeID != pro.ID {
		t.Errorf("assignee = %s, want the PRO reviewer", r.AssigneeID)
	}
	var l models.Lease
	gdb.Where("review_id = ?", r.ID).First(&l)
	if l.Priority != 10 {
		t.Errorf("priority = %d, want 10", l.Priority)
	}
}

func TestAssign_SkipsIneligibleStatesAndPeerTracks(t *testing.T) {
	gdb := dbtest.Open(t)
	artist := dbtest.Artist(t, gdb, 0)
	dbtest.Reviewer(t, gdb, dbtest.ReviewerOpts{}, "rock")

	for _, tc := range []struct {
		pkg, status string
	}{
		{catalog.Standard, models.TrackPendingPayment},
		{catalog.Standard, models.TrackCompleted},
		{catalog.Peer, models.TrackQueued},
	} {
		track := dbtest.Track(t, gdb, artist, tc.pkg, tc.status, 1, "rock")
		res, err := Assign(context.Background(), gdb, track.ID, Opts{})
		if err != nil {
			t.Fatalf("%s/%s: %v", tc.pkg, tc.status, err)
		}
		if len(res.Assigned) != 0 {
			t.Errorf("%s/%s assigned %d, want 0", tc.pkg, tc.status, len(res.Assigned))
		}
	}
}

func TestAssign_UnknownTrack(t *testing.T) {
	gdb := dbtest.Open(t)
	_, err := Assign(context.Background(), gdb, "missing", Opts{})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestAssign_UpdatesLastAssigned(t *testing.T) {
	gdb := dbtest.Open(t)
	artist := dbtest.Artist(t, gdb, 0)
	track := dbtest.Track(t, gdb, artist, catalog.Standard, models.TrackQueued, 1, "rock")
	r := dbtest.Reviewer(t, gdb, dbtest.ReviewerOpts{}, "rock")

	if _, err := Assign(context.Background(), gdb, track.ID, Opts{}); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	got := dbtest.Reload[models.ReviewerProfile](t, gdb, r.ID)
	if got.LastAssignedAt == nil {
		t.Error("LastAssignedAt not set")
	}
}
