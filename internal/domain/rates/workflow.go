package rates

import (
	"context"
	"time"
)

// Action is one of the two stage transitions an approver can perform.
type Action string

const (
	ActionRecommend Action = "recommend"
	ActionFinalize  Action = "finalize"
)

func (a Action) fromStage() Stage {
	if a == ActionFinalize {
		return StagePendingFinal
	}
	return StagePendingRecommendation
}

func (a Action) capability() Capability {
	if a == ActionFinalize {
		return CapabilityFinal
	}
	return CapabilityRecommending
}

func (a Action) decisionStage() DecisionStage {
	if a == ActionFinalize {
		return DecisionFinal
	}
	return DecisionRecommending
}

// Transition computes the stage an action moves a subject to. Terminal stages
// permit nothing; a subject at the wrong pending stage permits nothing
// either.
func Transition(subjectID string, current Stage, action Action, outcome Outcome) (Stage, error) {
	if current != action.fromStage() {
		return current, &InvalidStateError{ID: subjectID, Stage: current}
	}
	if outcome == OutcomeRejected {
		return StageRejected, nil
	}
	if action == ActionRecommend {
		return StagePendingFinal, nil
	}
	return StageApproved, nil
}

// Subject is the narrow view of anything the workflow can move through the
// approval chain. RateChangeRequest and RateOverride both implement it, so
// one workflow serves both entity types.
type Subject interface {
	SubjectID() string
	SubjectType() SubjectType
	CurrentStage() Stage
}

// TransitionStore persists a stage transition. Advance moves the subject from
// "from" to "to" only if it is still at "from", appending the decision in the
// same atomic scope. It returns *InvalidStateError when the guard fails (the
// losing side of a race lands here) and *ConflictError when approving an
// override whose effective window overlaps another approved override on the
// same lease unit.
type TransitionStore interface {
	Advance(ctx context.Context, subject Subject, from, to Stage, decision Decision) error
}

// Workflow is the two-stage approval engine shared by rate change requests
// and rate overrides: PENDING_RECOMMENDATION -> PENDING_FINAL -> APPROVED or
// REJECTED, with direct rejection from the first stage.
type Workflow struct {
	Store TransitionStore
	Now   func() time.Time
}

func NewWorkflow(store TransitionStore) *Workflow {
	return &Workflow{Store: store, Now: time.Now}
}

func (w *Workflow) Recommend(ctx context.Context, subject Subject, actor Approver, outcome Outcome, comment string) (Stage, Decision, error) {
	return w.apply(ctx, subject, actor, ActionRecommend, outcome, comment)
}

func (w *Workflow) Finalize(ctx context.Context, subject Subject, actor Approver, outcome Outcome, comment string) (Stage, Decision, error) {
	return w.apply(ctx, subject, actor, ActionFinalize, outcome, comment)
}

func (w *Workflow) apply(ctx context.Context, subject Subject, actor Approver, action Action, outcome Outcome, comment string) (Stage, Decision, error) {
	if !outcome.Valid() {
		return subject.CurrentStage(), Decision{}, &ValidationError{Field: "outcome", Reason: "must be approved or rejected"}
	}
	if !actor.Holds(action.capability()) {
		return subject.CurrentStage(), Decision{}, &UnauthorizedError{UserID: actor.ID, Capability: action.capability()}
	}

	to, err := Transition(subject.SubjectID(), subject.CurrentStage(), action, outcome)
	if err != nil {
		return subject.CurrentStage(), Decision{}, err
	}

	decision := Decision{
		SubjectType: subject.SubjectType(),
		SubjectID:   subject.SubjectID(),
		Stage:       action.decisionStage(),
		DeciderID:   actor.ID,
		Outcome:     outcome,
		Comment:     comment,
		DecidedAt:   w.now(),
	}

	// The store re-checks the stage atomically; the in-memory check above
	// only produces a friendlier error without a round trip.
	if err := w.Store.Advance(ctx, subject, action.fromStage(), to, decision); err != nil {
		return subject.CurrentStage(), Decision{}, err
	}
	return to, decision, nil
}

func (w *Workflow) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
