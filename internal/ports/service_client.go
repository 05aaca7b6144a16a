package ports

import (
	"context"

	"github.com/reviewlab/syncward/internal/domain"
)

// ServiceClient talks to the review service. Implementations classify
// responses: non-2xx statuses surface as *domain.SendError, transport
// failures surface as the wrapped network error.
type ServiceClient interface {
	// Post sends payload to the given service endpoint. The payload and
	// endpoint are exactly what a queued operation records, so replaying a
	// queued op is a plain Post.
	Post(ctx context.Context, endpoint string, payload []byte) error

	// FetchReviewState retrieves the authoritative workflow state for the
	// session.
	FetchReviewState(ctx context.Context, sessionID string) (domain.ReviewState, error)
}

// Endpoint builders for the review service API. The paths are part of the
// service contract; queued operations record them verbatim for replay.

// SaveCellsEndpoint returns the batch cell-save path for a session.
func SaveCellsEndpoint(sessionID string) string {
	return "/v1/sessions/" + sessionID + "/cells"
}

// SaveGradesEndpoint returns the grading-save path for a session.
func SaveGradesEndpoint(sessionID string) string {
	return "/v1/sessions/" + sessionID + "/grades"
}

// ReviewStatusEndpoint returns the review-status path for a session.
func ReviewStatusEndpoint(sessionID string) string {
	return "/v1/sessions/" + sessionID + "/review-status"
}

// SubmitForReviewEndpoint returns the submit-for-review transition path.
func SubmitForReviewEndpoint(sessionID string) string {
	return "/v1/sessions/" + sessionID + "/submit-for-review"
}

// ResubmitEndpoint returns the resubmit transition path.
func ResubmitEndpoint(sessionID string) string {
	return "/v1/sessions/" + sessionID + "/resubmit"
}

// ReviewStateProvider exposes the cached authoritative review state to the
// savers, which consult it before scheduling any send.
type ReviewStateProvider interface {
	// IsLocked reports whether the review status currently forbids edits.
	IsLocked() bool

	// Current returns the cached review state snapshot.
	Current() domain.ReviewState
}

// Connectivity reports whether the host currently considers itself online.
type Connectivity interface {
	Online() bool
}
