package rates

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed override/request input. Nothing is
// persisted when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// UnauthorizedError reports an actor acting on a stage without holding the
// matching approver capability.
type UnauthorizedError struct {
	UserID     string
	Capability Capability
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("user %s lacks capability %s", e.UserID, e.Capability)
}

// InvalidStateError reports a transition attempted from a stage that does not
// permit it, including the losing side of a concurrent transition race.
type InvalidStateError struct {
	ID    string
	Stage Stage
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("subject %s is in stage %s which does not permit this transition", e.ID, e.Stage)
}

// ConflictError reports a finalize-time effective-window overlap with other
// approved overrides on the same lease unit. The subject stays in
// PENDING_FINAL; the listed overrides must be resolved out of band first.
type ConflictError struct {
	ID            string
	ConflictsWith []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("override %s overlaps approved override(s) %s", e.ID, strings.Join(e.ConflictsWith, ", "))
}
