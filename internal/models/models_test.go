package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestTrack_Fields(t *testing.T) {
	typ := reflect.TypeOf(Track{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ArtistID", "index")
	assertGormTag(t, typ, "Status", "default:UPLOADED")
	assertGormTag(t, typ, "Status", "index")
	assertGormTag(t, typ, "Genres", "many2many:track_genres")
	assertGormTag(t, typ, "Reviews", "OnDelete:CASCADE")
	assertGormTag(t, typ, "Leases", "OnDelete:CASCADE")

	assertFieldType(t, typ, "ReviewsRequested", "int")
	assertFieldType(t, typ, "ReviewsCompleted", "int")
	assertFieldType(t, typ, "PaidAt", "*time.Time")
	assertFieldType(t, typ, "Payment", "*models.Payment")
}

func TestReview_Fields(t *testing.T) {
	typ := reflect.TypeOf(Review{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "TrackID", "index")
	assertGormTag(t, typ, "AssigneeID", "index")
	assertGormTag(t, typ, "ActiveKey", "uniqueIndex")
	assertGormTag(t, typ, "Status", "default:ASSIGNED")
	assertGormTag(t, typ, "BestPart", "type:text")

	assertFieldType(t, typ, "ActiveKey", "*string")
	assertFieldType(t, typ, "ListenDuration", "int")
	assertFieldType(t, typ, "LastHeartbeat", "*time.Time")
	assertFieldType(t, typ, "PaidAmount", "int")
	assertFieldType(t, typ, "ArtistRating", "*int")
}

func TestLease_Fields(t *testing.T) {
	typ := reflect.TypeOf(Lease{})

	// Composite uniqueness on (track, candidate).
	assertGormTag(t, typ, "TrackID", "uniqueIndex:idx_lease_track_candidate")
	assertGormTag(t, typ, "CandidateKey", "uniqueIndex:idx_lease_track_candidate")
	assertGormTag(t, typ, "ExpiresAt", "index")
	assertGormTag(t, typ, "ReviewID", "not null")

	assertFieldType(t, typ, "Priority", "int")
	assertFieldType(t, typ, "ExpiresAt", "time.Time")
}

func TestProfiles_Fields(t *testing.T) {
	rt := reflect.TypeOf(ReviewerProfile{})
	assertGormTag(t, rt, "UserID", "uniqueIndex")
	assertGormTag(t, rt, "Tier", "default:ROOKIE")
	assertGormTag(t, rt, "Genres", "many2many:reviewer_genres")
	assertFieldType(t, rt, "AverageRating", "float64")
	assertFieldType(t, rt, "LastAssignedAt", "*time.Time")

	at := reflect.TypeOf(ArtistProfile{})
	assertGormTag(t, at, "UserID", "uniqueIndex")
	assertGormTag(t, at, "ReviewCredits", "default:0")
	assertGormTag(t, at, "Genres", "many2many:artist_genres")
	assertFieldType(t, at, "ReviewCredits", "int")
}

func TestCreditTransaction_Fields(t *testing.T) {
	typ := reflect.TypeOf(CreditTransaction{})

	assertGormTag(t, typ, "ID", "autoIncrement")
	assertGormTag(t, typ, "ArtistID", "index")
	assertGormTag(t, typ, "Type", "size:16")
	assertFieldType(t, typ, "Balance", "int")
}

func TestReviewTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{ReviewAssigned, false},
		{ReviewInProgress, false},
		{ReviewCompleted, true},
		{ReviewExpired, true},
		{ReviewSkipped, true},
	}
	for _, tt := range tests {
		if got := ReviewTerminal(tt.status); got != tt.want {
			t.Errorf("ReviewTerminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestActiveKey(t *testing.T) {
	k := ActiveKey("trk-1", KindReviewer, "rev-9")
	if *k != "trk-1|reviewer:rev-9" {
		t.Errorf("ActiveKey = %q, want %q", *k, "trk-1|reviewer:rev-9")
	}
	if CandidateKey(KindPeer, "art-2") != "peer:art-2" {
		t.Errorf("CandidateKey = %q", CandidateKey(KindPeer, "art-2"))
	}
}
