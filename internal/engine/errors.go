package engine

import (
	"fmt"

	"coordline/internal/domain"
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("work item %s not found", e.ID)
}

// TransitionError names the refused (from, to) pair.
type TransitionError struct {
	ID     string
	From   domain.Status
	To     domain.Status
	Reason string
}

func (e TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid transition %s -> %s for %s: %s", e.From, e.To, e.ID, e.Reason)
	}
	return fmt.Sprintf("invalid transition %s -> %s for %s", e.From, e.To, e.ID)
}

// CapacityError means the active-work ceiling is reached. Retry after a
// completion.
type CapacityError struct {
	Active int
	Limit  int
}

func (e CapacityError) Error() string {
	return fmt.Sprintf("active work limit reached: %d of %d in progress", e.Active, e.Limit)
}

type CycleError struct {
	From string
	To   string
}

func (e CycleError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("work item %s cannot depend on itself", e.From)
	}
	return fmt.Sprintf("blocks edge %s -> %s would create a cycle", e.From, e.To)
}
