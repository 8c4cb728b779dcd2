package models

// Track statuses.
const (
	TrackUploaded       = "UPLOADED"
	TrackPendingPayment = "PENDING_PAYMENT"
	TrackQueued         = "QUEUED"
	TrackInProgress     = "IN_PROGRESS"
	TrackCompleted      = "COMPLETED"
	TrackCancelled      = "CANCELLED"
)

// Review statuses.
const (
	ReviewAssigned   = "ASSIGNED"
	ReviewInProgress = "IN_PROGRESS"
	ReviewCompleted  = "COMPLETED"
	ReviewExpired    = "EXPIRED"
	ReviewSkipped    = "SKIPPED"
)

// PaymentCompleted is the status of a recorded payment.
const PaymentCompleted = "COMPLETED"

// Assignee kinds.
const (
	KindReviewer = "reviewer"
	KindPeer     = "peer"
)

// ActiveReviewStatuses are the non-terminal review statuses.
var ActiveReviewStatuses = []string{ReviewAssigned, ReviewInProgress}

// ReviewTerminal reports whether a review status is terminal.
func ReviewTerminal(status string) bool {
	switch status {
	case ReviewCompleted, ReviewExpired, ReviewSkipped:
		return true
	}
	return false
}

// CandidateKey is the stable identity of an assignee across both kinds.
func CandidateKey(kind, id string) string {
	return kind + ":" + id
}

// ActiveKey builds the value of Review.ActiveKey for a non-terminal review.
func ActiveKey(trackID, kind, id string) *string {
	k := trackID + "|" + CandidateKey(kind, id)
	return &k
}
