// Package consensus reduces per-slot judge decisions to one agreement label.
package consensus

import "strings"

// Decision is a single judge's verdict. The zero value marks an unused slot.
type Decision string

// Decisions.
const (
	Include   Decision = "include"
	Exclude   Decision = "exclude"
	Uncertain Decision = "uncertain"
)

// Consensus is the agreement label derived from the slot decisions.
type Consensus string

// Consensus labels.
const (
	AgreeInclude Consensus = "include"
	AgreeExclude Consensus = "exclude"
	Conflict     Consensus = "conflict"
	Undecided    Consensus = "uncertain"
)

// Decisive reports whether d is include or exclude.
func (d Decision) Decisive() bool { return d == Include || d == Exclude }

// ParseDecision normalizes free-form judge output. Unknown values map to Uncertain.
func ParseDecision(s string) Decision {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "include", "included":
		return Include
	case "exclude", "excluded":
		return Exclude
	default:
		return Uncertain
	}
}

// ParseConsensus reads a stored consensus label. Unknown values map to Undecided.
func ParseConsensus(s string) Consensus {
	switch Consensus(strings.ToLower(strings.TrimSpace(s))) {
	case AgreeInclude:
		return AgreeInclude
	case AgreeExclude:
		return AgreeExclude
	case Conflict:
		return Conflict
	default:
		return Undecided
	}
}

// Resolve derives consensus from zero, one or two decisions.
//
//	none                     -> uncertain
//	one                      -> that decision
//	equal decisive pair      -> that decision
//	include + exclude        -> conflict
//	uncertain + decisive     -> the decisive one
//	uncertain + uncertain    -> uncertain
//
// Empty decisions are unused slots and are ignored.
func Resolve(decisions ...Decision) Consensus {
	var decisive []Decision
	for _, d := range decisions {
		switch {
		case d == "":
			continue
		case d.Decisive():
			decisive = append(decisive, d)
		}
	}
	switch len(decisive) {
	case 0:
		return Undecided
	case 1:
		return Consensus(decisive[0])
	}
	first := decisive[0]
	for _, d := range decisive[1:] {
		if d != first {
			return Conflict
		}
	}
	return Consensus(first)
}
