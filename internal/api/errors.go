package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/soundcheck/internal/apperr"
)

var statusByKind = map[apperr.Kind]int{
	apperr.Authentication: http.StatusUnauthorized,
	apperr.Authorization:  http.StatusForbidden,
	apperr.StateConflict:  http.StatusConflict,
	apperr.RateLimit:      http.StatusTooManyRequests,
	apperr.NotFound:       http.StatusNotFound,
	apperr.Integrity:      http.StatusInternalServerError,
	apperr.Invalid:        http.StatusBadRequest,
}

// statusFor maps an error to its HTTP status. Untyped errors are 500.
func statusFor(err error) int {
	if s, ok := statusByKind[apperr.KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// abort writes err as a JSON error body and stops the handler chain.
func abort(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("api: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	body := gin.H{"error": apperr.Message(err)}
	if kind := apperr.KindOf(err); kind != "" && kind != apperr.Integrity {
		body["kind"] = string(kind)
	}
	c.AbortWithStatusJSON(status, body)
}
