package api

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/zulandar/soundcheck/internal/actor"
	"github.com/zulandar/soundcheck/internal/apperr"
)

const actorKey = "actor"

// Claims is the bearer token issued by the identity service.
type Claims struct {
	Roles         []string `json:"roles,omitempty"`
	Restricted    bool     `json:"restricted,omitempty"`
	Onboarded     bool     `json:"onboarded"`
	EmailVerified bool     `json:"email_verified"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the scheduler's caller identity.
func (c *Claims) Actor() actor.Actor {
	return actor.Actor{
		UserID:        c.Subject,
		Roles:         c.Roles,
		Restricted:    c.Restricted,
		Onboarded:     c.Onboarded,
		EmailVerified: c.EmailVerified,
	}
}

// SignToken issues an HS256 token for claims. Used by tests and `sc` tooling.
func SignToken(secret string, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearer(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// requireActor validates the bearer token and stores the actor on the context.
func requireActor(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c)
		if raw == "" {
			abort(c, apperr.New(apperr.Authentication, "missing bearer token"))
			return
		}
		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || claims.Subject == "" {
			abort(c, apperr.New(apperr.Authentication, "invalid or expired token"))
			return
		}
		c.Set(actorKey, claims.Actor())
		c.Next()
	}
}

// requireSystem accepts only callers presenting the cron secret.
func requireSystem(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := bearer(c)
		if secret == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			abort(c, apperr.New(apperr.Authentication, "unauthorized"))
			return
		}
		c.Set(actorKey, actor.System)
		c.Next()
	}
}

func currentActor(c *gin.Context) actor.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(actor.Actor); ok {
			return a
		}
	}
	return actor.Actor{}
}
