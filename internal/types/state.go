// Package types provides shared types used across multiple packages.
// This package has no dependencies on other picturebook packages to avoid import cycles.
package types

// NarrativeState is the illustration lifecycle state of a narrative.
type NarrativeState string

const (
	// StateNarrativeOnly means the story is saved and no illustrations are in flight.
	// It is terminal when no image provider is configured.
	StateNarrativeOnly NarrativeState = "narrative_only"
	// StateIllustrationsInFlight means an illustration task has been queued or is running.
	StateIllustrationsInFlight NarrativeState = "illustrations_in_flight"
	// StateIllustrationsSettled means every page has an illustration, real or placeholder.
	StateIllustrationsSettled NarrativeState = "illustrations_settled"
)

// ParseNarrativeState converts a string to a NarrativeState.
// Returns StateNarrativeOnly if the string is not recognized.
func ParseNarrativeState(s string) NarrativeState {
	switch s {
	case "illustrations_in_flight":
		return StateIllustrationsInFlight
	case "illustrations_settled":
		return StateIllustrationsSettled
	default:
		return StateNarrativeOnly
	}
}

// CanTransition reports whether moving from one state to another is allowed.
// States only move forward.
func (s NarrativeState) CanTransition(to NarrativeState) bool {
	switch s {
	case StateNarrativeOnly:
		return to == StateIllustrationsInFlight
	case StateIllustrationsInFlight:
		return to == StateIllustrationsSettled
	default:
		return false
	}
}

// Terminal reports whether no further transition can happen from s.
func (s NarrativeState) Terminal() bool {
	return s == StateIllustrationsSettled
}
