package tenants

import "fmt"

// Transition names an explicit assignment status change
type Transition string

const (
	TransitionActivate   Transition = "activate"
	TransitionSuspend    Transition = "suspend"
	TransitionDeactivate Transition = "deactivate"
	TransitionArchive    Transition = "archive"
)

var transitionSources = map[Transition][]AssignmentStatus{
	TransitionActivate:   {AssignmentPending, AssignmentInactive, AssignmentSuspended},
	TransitionSuspend:    {AssignmentActive},
	TransitionDeactivate: {AssignmentActive, AssignmentSuspended},
	TransitionArchive: {
		AssignmentPending,
		AssignmentActive,
		AssignmentInactive,
		AssignmentSuspended,
		AssignmentExpired,
	},
}

var transitionTargets = map[Transition]AssignmentStatus{
	TransitionActivate:   AssignmentActive,
	TransitionSuspend:    AssignmentSuspended,
	TransitionDeactivate: AssignmentInactive,
	TransitionArchive:    AssignmentArchived,
}

// ParseTransition validates a transition name
func ParseTransition(s string) (Transition, bool) {
	t := Transition(s)
	_, ok := transitionTargets[t]
	return t, ok
}

// Sources lists the statuses the transition may start from
func (t Transition) Sources() []AssignmentStatus {
	return transitionSources[t]
}

// Apply returns the status reached by applying t to from
func (t Transition) Apply(from AssignmentStatus) (AssignmentStatus, error) {
	to, ok := transitionTargets[t]
	if !ok {
		return "", fmt.Errorf("%w: unknown transition %q", ErrInvalidTransition, t)
	}
	for _, s := range transitionSources[t] {
		if s == from {
			return to, nil
		}
	}
	return "", fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, t, from)
}
