package notifications

const (
	TypeRequestSubmitted    = "rate_request_submitted"
	TypeRequestRecommended  = "rate_request_recommended"
	TypeRequestApproved     = "rate_request_approved"
	TypeRequestRejected     = "rate_request_rejected"
	TypeOverrideSubmitted   = "rate_override_submitted"
	TypeOverrideRecommended = "rate_override_recommended"
	TypeOverrideApproved    = "rate_override_approved"
	TypeOverrideRejected    = "rate_override_rejected"
)
