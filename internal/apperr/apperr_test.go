package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := fmt.Errorf("review: skip: %w", New(RateLimit, "skip limit reached (3/day)"))
	if !errors.Is(err, ErrRateLimited) {
		t.Error("errors.Is(err, ErrRateLimited) = false")
	}
	if errors.Is(err, ErrConflict) {
		t.Error("rate limit matched ErrConflict")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{Forbidden("restricted"), Authorization},
		{fmt.Errorf("wrapped: %w", Conflict("taken")), StateConflict},
		{errors.New("plain"), ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestMessage_HidesIntegrityAndUntyped(t *testing.T) {
	if got := Message(Missing("track not found")); got != "track not found" {
		t.Errorf("Message = %q", got)
	}
	if got := Message(Broken("completed 6 > requested 5")); got != "internal error" {
		t.Errorf("integrity Message = %q, want generic", got)
	}
	if got := Message(errors.New("sql: connection refused")); got != "internal error" {
		t.Errorf("untyped Message = %q, want generic", got)
	}
}

func TestWrap_Unwraps(t *testing.T) {
	cause := errors.New("unique constraint")
	err := Wrap(StateConflict, cause, "already claimed")
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable")
	}
}
