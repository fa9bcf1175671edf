package engine

import "coordline/internal/domain"

type transitionKey struct {
	from, to domain.Status
}

// transitions is the closed table of legal moves and their impact.
var transitions = map[transitionKey]int{
	{domain.StatusPending, domain.StatusInProgress}:   3,
	{domain.StatusInProgress, domain.StatusCompleted}: 5,
	{domain.StatusInProgress, domain.StatusBlocked}:   -2,
	{domain.StatusBlocked, domain.StatusInProgress}:   2,
	{domain.StatusPending, domain.StatusCancelled}:    -1,
	{domain.StatusInProgress, domain.StatusCancelled}: -3,
}

// ensureTransition rejects anything outside the table unless force is set.
// Forced moves exist only for dependency blocking.
func ensureTransition(id string, from, to domain.Status, force bool) error {
	if force {
		return nil
	}
	if _, ok := transitions[transitionKey{from, to}]; ok {
		return nil
	}
	return TransitionError{ID: id, From: from, To: to}
}

// TransitionImpact is the fixed impact of a move; unlisted pairs are 0.
func TransitionImpact(from, to domain.Status) int {
	return transitions[transitionKey{from, to}]
}

// Allowed reports whether from -> to is in the table.
func Allowed(from, to domain.Status) bool {
	_, ok := transitions[transitionKey{from, to}]
	return ok
}
