package model

import (
	"strings"

	"github.com/okian/sieve/internal/domain/consensus"
)

// Decision and Consensus are owned by the consensus package.
type (
	Decision  = consensus.Decision
	Consensus = consensus.Consensus
)

// Decision values.
const (
	Include   = consensus.Include
	Exclude   = consensus.Exclude
	Uncertain = consensus.Uncertain
)

// DefaultExcludeCode marks an outcome without an exclusion code.
const DefaultExcludeCode = "NA"

// Tier is the processing tier assigned by the classifier.
type Tier string

// Tiers.
const (
	T1 Tier = "T1" // deterministic exclude, no provider call
	T2 Tier = "T2" // one provider
	T3 Tier = "T3" // two providers
)

// ParseTier reads a stored tier. It returns false for unknown values.
func ParseTier(s string) (Tier, bool) {
	switch t := Tier(strings.ToUpper(strings.TrimSpace(s))); t {
	case T1, T2, T3:
		return t, true
	default:
		return "", false
	}
}

// Slot names one of the two judging positions.
type Slot string

// Slots.
const (
	SlotA Slot = "A"
	SlotB Slot = "B"
)

// Other returns the opposite slot.
func (s Slot) Other() Slot {
	if s == SlotA {
		return SlotB
	}
	return SlotA
}

// ParseSlot accepts a or b in any case.
func ParseSlot(s string) (Slot, bool) {
	switch Slot(strings.ToUpper(strings.TrimSpace(s))) {
	case SlotA:
		return SlotA, true
	case SlotB:
		return SlotB, true
	default:
		return "", false
	}
}

// Outcome is what one provider call produced for one item.
type Outcome struct {
	Decision    Decision
	Confidence  float64
	ExcludeCode string
	Rationale   string
	ModelUsed   string

	// Failure is set in memory by the invoker. Persisted outcomes recover it
	// from the rationale tag via Kind.
	Failure FailureKind
}

// Used reports whether the slot holds an outcome at all.
func (o Outcome) Used() bool { return o.Decision != "" }

// Kind returns the failure kind, reading the rationale tag when the outcome
// was loaded from storage.
func (o Outcome) Kind() FailureKind {
	if o.Failure != FailureNone {
		return o.Failure
	}
	return ClassifyFailure(o.Decision, o.Rationale, o.ModelUsed)
}

// Failed reports whether the outcome is a recorded failure.
func (o Outcome) Failed() bool { return o.Used() && o.Kind() != FailureNone }

// Human holds adjudication columns filled in outside this tool.
type Human struct {
	Human1Decision         string
	Human2Decision         string
	AdjudicatedDecision    string
	AdjudicatedExcludeCode string
	DecisionRationale      string
	AdjudicatorID          string
}

// Result is the screening record for one item.
type Result struct {
	ID     string
	Title  string
	Year   string
	Source string
	Tier   Tier

	A Outcome
	B Outcome

	Consensus Consensus
	Human     Human
}

// NewResult starts a result for item at tier with empty slots.
func NewResult(item Item, tier Tier) Result {
	return Result{
		ID:        item.ID,
		Title:     item.Title,
		Year:      item.Year,
		Source:    item.Source,
		Tier:      tier,
		Consensus: consensus.Undecided,
	}
}

// Slot returns the outcome held in s.
func (r *Result) Slot(s Slot) Outcome {
	if s == SlotA {
		return r.A
	}
	return r.B
}

// SetSlot overwrites one slot and recomputes consensus.
func (r *Result) SetSlot(s Slot, o Outcome) {
	if s == SlotA {
		r.A = o
	} else {
		r.B = o
	}
	r.Consensus = consensus.Resolve(r.A.Decision, r.B.Decision)
}

// FailedSlots lists the used slots holding a failure, in A, B order.
func (r *Result) FailedSlots() []Slot {
	var out []Slot
	for _, s := range []Slot{SlotA, SlotB} {
		if r.Slot(s).Failed() {
			out = append(out, s)
		}
	}
	return out
}
