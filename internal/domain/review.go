package domain

// ReviewStatus is the server-authoritative workflow status of a session.
//
// The workflow state machine, transitions requested by the client and
// performed by the server:
//
//	draft     --submit-->   submitted
//	submitted --approve-->  approved   (terminal for edits)
//	submitted --return-->   returned
//	submitted --reject-->   rejected   (terminal, no resubmission)
//	returned  --resubmit--> submitted  (round += 1)
//	returned  --resubmit at round == maxRounds--> escalated
type ReviewStatus string

const (
	ReviewDraft     ReviewStatus = "draft"
	ReviewSubmitted ReviewStatus = "submitted"
	ReviewReturned  ReviewStatus = "returned"
	ReviewApproved  ReviewStatus = "approved"
	ReviewRejected  ReviewStatus = "rejected"
	ReviewEscalated ReviewStatus = "escalated"
)

// Locked reports whether edits are forbidden in this status. Approved and
// rejected are terminal for edits; submitted sessions are locked until the
// reviewer returns them.
func (s ReviewStatus) Locked() bool {
	switch s {
	case ReviewSubmitted, ReviewApproved, ReviewRejected:
		return true
	default:
		return false
	}
}

// precondition returns the status an operation of the given type depends on,
// or empty if the operation has no status precondition.
func (s ReviewStatus) precondition(t OpType) ReviewStatus {
	switch t {
	case OpSubmitForReview:
		return ReviewDraft
	case OpResubmit:
		return ReviewReturned
	default:
		return ""
	}
}

// AllowsReplay reports whether a queued operation of the given type may still
// be replayed while the authoritative status is s. Operations without a
// status precondition are always replayable.
func (s ReviewStatus) AllowsReplay(t OpType) bool {
	pre := s.precondition(t)
	return pre == "" || pre == s
}

// ReviewState is the client's read-only cached copy of the server-owned
// workflow state. The can* booleans are authoritative; the client never
// re-derives them locally.
type ReviewState struct {
	Status      ReviewStatus `json:"review_status"`
	Round       int          `json:"review_round"`
	MaxRounds   int          `json:"max_rounds"`
	CanSubmit   bool         `json:"can_submit_for_review"`
	CanResubmit bool         `json:"can_resubmit"`
	Feedback    string       `json:"review_feedback"`
}

// Locked reports whether the cached status forbids edits.
func (r ReviewState) Locked() bool {
	return r.Status.Locked()
}

// GradeDraft is one reviewable item's grade/explanation pair.
type GradeDraft struct {
	// Grades maps criterion identifiers to assigned scores.
	Grades map[string]int `json:"grades"`

	// Explanation is the free-text justification for the grades.
	Explanation string `json:"explanation"`

	// Submitted marks the draft as final rather than an autosave snapshot.
	Submitted bool `json:"submitted"`
}
