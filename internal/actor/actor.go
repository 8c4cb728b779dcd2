// Package actor describes the authenticated caller of a scheduler operation.
package actor

import "github.com/zulandar/soundcheck/internal/apperr"

// Role names recognised by the scheduler.
const (
	RoleArtist   = "artist"
	RoleReviewer = "reviewer"
	RoleAdmin    = "admin"
	RoleSystem   = "system"
)

// Actor is the identity supplied by the auth collaborator on every request.
type Actor struct {
	UserID        string
	Roles         []string
	Restricted    bool
	Onboarded     bool
	EmailVerified bool
}

// System is the actor used by cron and CLI callers.
var System = Actor{UserID: "system", Roles: []string{RoleSystem}, Onboarded: true, EmailVerified: true}

// HasRole reports whether the actor holds role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Privileged reports whether the actor may act on other users' tracks.
func (a Actor) Privileged() bool {
	return a.HasRole(RoleAdmin) || a.HasRole(RoleSystem)
}

// Authenticated returns an AUTHENTICATION error for an anonymous actor.
func (a Actor) Authenticated() error {
	if a.UserID == "" {
		return apperr.New(apperr.Authentication, "authentication required")
	}
	return nil
}

// InGoodStanding checks the flags required to work on reviews.
func (a Actor) InGoodStanding() error {
	if err := a.Authenticated(); err != nil {
		return err
	}
	if a.Restricted {
		return apperr.Forbidden("account restricted")
	}
	if !a.Onboarded {
		return apperr.Forbidden("complete onboarding first")
	}
	return nil
}
