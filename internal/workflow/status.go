package workflow

// Status represents the lifecycle position of an event request.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusSubmitted        Status = "submitted"
	StatusUnderReview      Status = "under_review"
	StatusReadyForApproval Status = "ready_for_approval"
	StatusApproved         Status = "approved"
	StatusReturned         Status = "returned"
	StatusWithdrawn        Status = "withdrawn"
)

var validStatuses = map[Status]bool{
	StatusDraft:            true,
	StatusSubmitted:        true,
	StatusUnderReview:      true,
	StatusReadyForApproval: true,
	StatusApproved:         true,
	StatusReturned:         true,
	StatusWithdrawn:        true,
}

// AllStatuses lists every stored status in workflow order.
func AllStatuses() []Status {
	return []Status{
		StatusDraft,
		StatusSubmitted,
		StatusUnderReview,
		StatusReadyForApproval,
		StatusApproved,
		StatusReturned,
		StatusWithdrawn,
	}
}

// IsValid reports whether the status is part of the workflow.
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// HoldsClaim reports whether a request in this status must carry an assigned admin.
func (s Status) HoldsClaim() bool {
	return s == StatusUnderReview || s == StatusReadyForApproval
}

func (s Status) String() string {
	return string(s)
}
