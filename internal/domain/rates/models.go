package rates

import "time"

// Stage is the position of a request or override in the two-stage approval
// chain. APPROVED and REJECTED are terminal.
type Stage string

const (
	StagePendingRecommendation Stage = "pending_recommendation"
	StagePendingFinal          Stage = "pending_final"
	StageApproved              Stage = "approved"
	StageRejected              Stage = "rejected"
)

func (s Stage) Terminal() bool {
	return s == StageApproved || s == StageRejected
}

func (s Stage) Valid() bool {
	switch s {
	case StagePendingRecommendation, StagePendingFinal, StageApproved, StageRejected:
		return true
	}
	return false
}

type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

func (o Outcome) Valid() bool {
	return o == OutcomeApproved || o == OutcomeRejected
}

// DecisionStage identifies which of the two approval stages a decision
// belongs to. Each stage requires its own decision record.
type DecisionStage string

const (
	DecisionRecommending DecisionStage = "recommending"
	DecisionFinal        DecisionStage = "final"
)

type Capability string

const (
	CapabilityRecommending Capability = "recommending_approver"
	CapabilityFinal        Capability = "final_approver"
)

type SubjectType string

const (
	SubjectChangeRequest SubjectType = "rate_change_request"
	SubjectOverride      SubjectType = "rate_override"
)

func ParseSubjectType(raw string) (SubjectType, bool) {
	switch SubjectType(raw) {
	case SubjectChangeRequest, SubjectOverride:
		return SubjectType(raw), true
	}
	return "", false
}

type OverrideType string

const (
	OverrideFixedRate     OverrideType = "fixed_rate"
	OverridePercentageCap OverrideType = "percentage_cap"
	OverrideNoIncrease    OverrideType = "no_increase"
)

func (t OverrideType) Valid() bool {
	switch t {
	case OverrideFixedRate, OverridePercentageCap, OverrideNoIncrease:
		return true
	}
	return false
}

// RateSource tells a caller where a resolved rate came from.
type RateSource string

const (
	SourceBase               RateSource = "base"
	SourceStandardIncrease   RateSource = "standard_increase"
	SourceOverrideFixed      RateSource = "override_fixed"
	SourceOverrideCap        RateSource = "override_cap"
	SourceOverrideNoIncrease RateSource = "override_no_increase"
)

// RateOverride suspends or bounds the standard rate mechanism for a lease
// unit over the window [EffectiveFrom, EffectiveTo). A nil EffectiveTo means
// open-ended. Exactly one of FixedRate/PercentageCap is set, per Type.
type RateOverride struct {
	ID            string       `json:"id"`
	LeaseUnitID   string       `json:"leaseUnitId"`
	Type          OverrideType `json:"overrideType"`
	FixedRate     *float64     `json:"fixedRate,omitempty"`
	PercentageCap *float64     `json:"percentageCap,omitempty"`
	EffectiveFrom time.Time    `json:"effectiveFrom"`
	EffectiveTo   *time.Time   `json:"effectiveTo,omitempty"`
	Reason        string       `json:"reason"`
	RequestedBy   string       `json:"requestedBy"`
	Stage         Stage        `json:"stage"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

func (o RateOverride) SubjectID() string        { return o.ID }
func (o RateOverride) SubjectType() SubjectType { return SubjectOverride }
func (o RateOverride) CurrentStage() Stage      { return o.Stage }

// Covers reports whether the override's effective window contains at.
func (o RateOverride) Covers(at time.Time) bool {
	if at.Before(o.EffectiveFrom) {
		return false
	}
	return o.EffectiveTo == nil || at.Before(*o.EffectiveTo)
}

func (o RateOverride) ActiveAt(at time.Time) bool {
	return o.Stage == StageApproved && o.Covers(at)
}

// Overlaps reports whether two effective windows intersect. Windows are
// half-open, so back-to-back windows do not overlap.
func (o RateOverride) Overlaps(other RateOverride) bool {
	if o.EffectiveTo != nil && !other.EffectiveFrom.Before(*o.EffectiveTo) {
		return false
	}
	if other.EffectiveTo != nil && !o.EffectiveFrom.Before(*other.EffectiveTo) {
		return false
	}
	return true
}

// RateChangeRequest proposes a new standard rent baseline for a lease unit,
// e.g. an annual escalation.
type RateChangeRequest struct {
	ID            string    `json:"id"`
	LeaseUnitID   string    `json:"leaseUnitId"`
	ProposedRate  float64   `json:"proposedRate"`
	EffectiveFrom time.Time `json:"effectiveFrom"`
	Reason        string    `json:"reason"`
	RequestedBy   string    `json:"requestedBy"`
	Stage         Stage     `json:"stage"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (r RateChangeRequest) SubjectID() string        { return r.ID }
func (r RateChangeRequest) SubjectType() SubjectType { return SubjectChangeRequest }
func (r RateChangeRequest) CurrentStage() Stage      { return r.Stage }

// Decision is one approver's recorded action at one stage. Decisions are
// append-only; together they form the audit trail of a subject.
type Decision struct {
	ID          string        `json:"id"`
	SubjectType SubjectType   `json:"subjectType"`
	SubjectID   string        `json:"subjectId"`
	Stage       DecisionStage `json:"stage"`
	DeciderID   string        `json:"deciderId"`
	Outcome     Outcome       `json:"outcome"`
	Comment     string        `json:"comment,omitempty"`
	DecidedAt   time.Time     `json:"decidedAt"`
}

// Approver is the capability view of a user, the only part of identity the
// engine consults.
type Approver struct {
	ID           string
	Recommending bool
	Final        bool
}

func (a Approver) Holds(c Capability) bool {
	switch c {
	case CapabilityRecommending:
		return a.Recommending
	case CapabilityFinal:
		return a.Final
	}
	return false
}

// NewOverride is the input for creating a rate override. Validate enforces
// the tagged-union shape before anything touches storage.
type NewOverride struct {
	LeaseUnitID   string
	Type          OverrideType
	FixedRate     *float64
	PercentageCap *float64
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
	Reason        string
	RequestedBy   string
}

func (n NewOverride) Validate() error {
	if n.LeaseUnitID == "" {
		return &ValidationError{Field: "leaseUnitId", Reason: "is required"}
	}
	if n.RequestedBy == "" {
		return &ValidationError{Field: "requestedBy", Reason: "is required"}
	}
	if !n.Type.Valid() {
		return &ValidationError{Field: "overrideType", Reason: "must be one of fixed_rate, percentage_cap, no_increase"}
	}
	if n.EffectiveFrom.IsZero() {
		return &ValidationError{Field: "effectiveFrom", Reason: "is required"}
	}
	if n.EffectiveTo != nil && !n.EffectiveTo.After(n.EffectiveFrom) {
		return &ValidationError{Field: "effectiveTo", Reason: "must be strictly after effectiveFrom"}
	}

	switch n.Type {
	case OverrideFixedRate:
		if n.FixedRate == nil {
			return &ValidationError{Field: "fixedRate", Reason: "is required for fixed_rate overrides"}
		}
		if *n.FixedRate <= 0 {
			return &ValidationError{Field: "fixedRate", Reason: "must be greater than zero"}
		}
		if n.PercentageCap != nil {
			return &ValidationError{Field: "percentageCap", Reason: "must not be set for fixed_rate overrides"}
		}
	case OverridePercentageCap:
		if n.PercentageCap == nil {
			return &ValidationError{Field: "percentageCap", Reason: "is required for percentage_cap overrides"}
		}
		if *n.PercentageCap < 0 || *n.PercentageCap > 100 {
			return &ValidationError{Field: "percentageCap", Reason: "must be between 0 and 100"}
		}
		if n.FixedRate != nil {
			return &ValidationError{Field: "fixedRate", Reason: "must not be set for percentage_cap overrides"}
		}
	case OverrideNoIncrease:
		if n.FixedRate != nil {
			return &ValidationError{Field: "fixedRate", Reason: "must not be set for no_increase overrides"}
		}
		if n.PercentageCap != nil {
			return &ValidationError{Field: "percentageCap", Reason: "must not be set for no_increase overrides"}
		}
	}
	return nil
}

// NewChangeRequest is the input for creating a standard rate-change request.
type NewChangeRequest struct {
	LeaseUnitID   string
	ProposedRate  float64
	EffectiveFrom time.Time
	Reason        string
	RequestedBy   string
}

func (n NewChangeRequest) Validate() error {
	if n.LeaseUnitID == "" {
		return &ValidationError{Field: "leaseUnitId", Reason: "is required"}
	}
	if n.RequestedBy == "" {
		return &ValidationError{Field: "requestedBy", Reason: "is required"}
	}
	if n.ProposedRate <= 0 {
		return &ValidationError{Field: "proposedRate", Reason: "must be greater than zero"}
	}
	if n.EffectiveFrom.IsZero() {
		return &ValidationError{Field: "effectiveFrom", Reason: "is required"}
	}
	return nil
}
