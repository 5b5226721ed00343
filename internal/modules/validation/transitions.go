package validation

import (
	"fmt"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// applicationTransitions is the directed graph of allowed status moves.
// REJECTED and CANCELLED are terminal.
var applicationTransitions = map[domain.ApplicationStatus][]domain.ApplicationStatus{
	domain.ApplicationPending:     {domain.ApplicationUnderReview, domain.ApplicationCancelled},
	domain.ApplicationUnderReview: {domain.ApplicationApproved, domain.ApplicationRejected, domain.ApplicationPending},
	domain.ApplicationApproved:    {domain.ApplicationCancelled},
	domain.ApplicationRejected:    {},
	domain.ApplicationCancelled:   {},
}

// AllowedTransitions lists the statuses reachable from from in one step.
func AllowedTransitions(from domain.ApplicationStatus) []domain.ApplicationStatus {
	next := applicationTransitions[from]
	out := make([]domain.ApplicationStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to domain.ApplicationStatus) bool {
	for _, s := range applicationTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a RuleViolation when from -> to is not allowed.
func CheckTransition(from, to domain.ApplicationStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return domain.RuleViolation{
		Code:    domain.CodeInvalidStatusTransition,
		Message: fmt.Sprintf("cannot move application from %s to %s", from, to),
	}
}

// ValidateStatusTransition checks a transition given as raw strings.
func ValidateStatusTransition(from, to string) Result {
	r := Valid()

	fromStatus, err := domain.ParseApplicationStatus(from)
	if err != nil {
		r.add("from", CodeInvalidEnum, "unknown application status %q", from)
	}
	toStatus, err := domain.ParseApplicationStatus(to)
	if err != nil {
		r.add("to", CodeInvalidEnum, "unknown application status %q", to)
	}
	if !r.IsValid {
		return r
	}

	if !CanTransition(fromStatus, toStatus) {
		r.add("to", CodeInvalidStatusTransition, "cannot move application from %s to %s", fromStatus, toStatus)
	}
	return r
}
