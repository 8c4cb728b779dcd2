package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/zulandar/soundcheck/internal/apperr"
	"github.com/zulandar/soundcheck/internal/ledger"
	"github.com/zulandar/soundcheck/internal/reaper"
	"github.com/zulandar/soundcheck/internal/review"
)

var validate = validator.New()

type handlers struct {
	opts StartOpts
}

type claimRequest struct {
	TrackID string `json:"trackId" binding:"required"`
}

type heartbeatRequest struct {
	ListenDuration *int `json:"listenDuration" binding:"omitempty,min=0"`
}

type rateRequest struct {
	Rating int `json:"rating" binding:"required,min=1,max=5"`
}

type requestReviewsRequest struct {
	Count int `json:"count" binding:"required,min=1,max=100"`
}

type paymentCompletedRequest struct {
	TrackID     string `json:"trackId" binding:"required"`
	AmountCents int    `json:"amountCents" binding:"min=0"`
}

// bind decodes a JSON body into v. An empty body is accepted when optional.
func bind(c *gin.Context, v interface{}, optional bool) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		abort(c, apperr.Wrap(apperr.Invalid, err, "invalid request body"))
		return false
	}
	return true
}

func (h *handlers) stats(c *gin.Context) {
	p, err := h.opts.Stats.Get(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) pendingQueue(c *gin.Context) {
	items, err := review.PendingQueue(c.Request.Context(), h.opts.DB, currentActor(c), h.opts.Review)
	if err != nil {
		abort(c, err)
		return
	}
	if items == nil {
		items = []review.QueueItem{}
	}
	c.JSON(http.StatusOK, gin.H{"reviews": items})
}

func (h *handlers) claim(c *gin.Context) {
	var req claimRequest
	if !bind(c, &req, false) {
		return
	}
	res, err := review.Claim(c.Request.Context(), h.opts.DB, req.TrackID, currentActor(c), h.opts.Review)
	if err != nil {
		abort(c, err)
		return
	}
	status := http.StatusCreated
	if res.Existing {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"reviewId": res.ReviewID, "existing": res.Existing})
}

func (h *handlers) heartbeat(c *gin.Context) {
	var req heartbeatRequest
	if !bind(c, &req, true) {
		return
	}
	res, err := review.Heartbeat(c.Request.Context(), h.opts.DB, c.Param("id"), currentActor(c), req.ListenDuration, h.opts.Review)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"listenDuration":       res.ListenDuration,
		"status":               res.Status,
		"minimumReached":       res.MinimumReached,
		"minimumListenSeconds": res.MinimumListenSeconds,
	})
}

func (h *handlers) skip(c *gin.Context) {
	res, err := review.Skip(c.Request.Context(), h.opts.DB, c.Param("id"), currentActor(c), h.opts.Review)
	if err != nil {
		abort(c, err)
		return
	}
	body := gin.H{"success": true, "skipsToday": res.SkipsToday}
	if res.Backfill != nil {
		body["reassigned"] = len(res.Backfill.Assigned)
	}
	c.JSON(http.StatusOK, body)
}

func (h *handlers) submit(c *gin.Context) {
	var v review.Verdict
	if !bind(c, &v, false) {
		return
	}
	if err := validate.Struct(v); err != nil {
		abort(c, apperr.Wrap(apperr.Invalid, err, "verdict is incomplete"))
		return
	}
	res, err := review.Submit(c.Request.Context(), h.opts.DB, c.Param("id"), currentActor(c), v, h.opts.Review)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"earnings":         res.Earnings,
		"creditsEarned":    res.CreditsEarned,
		"reviewsCompleted": res.ReviewsCompleted,
		"reviewsRequested": res.ReviewsRequested,
		"trackCompleted":   res.TrackCompleted,
		"tier":             res.NewTier,
	})
}

func (h *handlers) rate(c *gin.Context) {
	var req rateRequest
	if !bind(c, &req, false) {
		return
	}
	res, err := review.Rate(c.Request.Context(), h.opts.DB, c.Param("id"), currentActor(c), req.Rating, h.opts.Review)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "averageRating": res.AverageRating})
}

func (h *handlers) requestReviews(c *gin.Context) {
	var req requestReviewsRequest
	if !bind(c, &req, false) {
		return
	}
	res, err := ledger.RequestReviews(c.Request.Context(), h.opts.DB, c.Param("id"), currentActor(c), req.Count, h.opts.Ledger)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, queueBody(res))
}

func (h *handlers) dequeue(c *gin.Context) {
	res, err := ledger.Dequeue(c.Request.Context(), h.opts.DB, c.Param("id"), currentActor(c), h.opts.Ledger)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, dequeueBody(res))
}

func (h *handlers) cancel(c *gin.Context) {
	res, err := ledger.Cancel(c.Request.Context(), h.opts.DB, c.Param("id"), currentActor(c), h.opts.Ledger)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, dequeueBody(res))
}

func (h *handlers) reap(c *gin.Context) {
	res, err := reaper.Reap(c.Request.Context(), h.opts.DB, h.opts.Reap)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) paymentCompleted(c *gin.Context) {
	var req paymentCompletedRequest
	if !bind(c, &req, false) {
		return
	}
	res, err := ledger.Queue(c.Request.Context(), h.opts.DB, req.TrackID, req.AmountCents, h.opts.Ledger)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, queueBody(res))
}

func queueBody(res *ledger.QueueResult) gin.H {
	body := gin.H{
		"success":          true,
		"trackId":          res.TrackID,
		"queued":           res.Queued,
		"reviewsRequested": res.ReviewsRequested,
		"creditsBalance":   res.CreditsBalance,
	}
	if res.Assign != nil {
		body["assigned"] = len(res.Assign.Assigned)
	}
	return body
}

func dequeueBody(res *ledger.DequeueResult) gin.H {
	return gin.H{
		"success":          true,
		"creditsRefunded":  res.CreditsRefunded,
		"newStatus":        res.NewStatus,
		"reviewsRequested": res.ReviewsRequested,
	}
}
