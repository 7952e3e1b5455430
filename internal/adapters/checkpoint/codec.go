package checkpoint

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/sieve/internal/domain/consensus"
	"github.com/okian/sieve/internal/domain/model"
)

// Columns is the checkpoint schema in order.
var Columns = []string{ //nolint:gochecknoglobals // schema contract
	"id", "title", "year", "source",
	"decision_A", "decision_B",
	"confidence_A", "confidence_B",
	"excludeCode_A", "excludeCode_B",
	"rationale_A", "rationale_B",
	"consensus", "tier",
	"modelUsed_A", "modelUsed_B",
	"human1_decision", "human2_decision",
	"adjudicated_decision", "adjudicated_exclude_code",
	"decision_rationale", "adjudicator_id",
}

// encodeRow flattens a result in Columns order. Unused slots are blank.
func encodeRow(r model.Result) []string {
	a, b := slotFields(r.A), slotFields(r.B)
	return []string{
		r.ID, r.Title, r.Year, r.Source,
		a.decision, b.decision,
		a.confidence, b.confidence,
		a.excludeCode, b.excludeCode,
		a.rationale, b.rationale,
		string(r.Consensus), string(r.Tier),
		a.modelUsed, b.modelUsed,
		r.Human.Human1Decision, r.Human.Human2Decision,
		r.Human.AdjudicatedDecision, r.Human.AdjudicatedExcludeCode,
		r.Human.DecisionRationale, r.Human.AdjudicatorID,
	}
}

type slotRow struct {
	decision    string
	confidence  string
	excludeCode string
	rationale   string
	modelUsed   string
}

func slotFields(o model.Outcome) slotRow {
	if !o.Used() {
		return slotRow{}
	}
	return slotRow{
		decision:    string(o.Decision),
		confidence:  strconv.FormatFloat(o.Confidence, 'f', -1, 64),
		excludeCode: o.ExcludeCode,
		rationale:   o.Rationale,
		modelUsed:   o.ModelUsed,
	}
}

// decodeRow rebuilds a result from values keyed by column name.
func decodeRow(get func(col string) string) (model.Result, error) {
	r := model.Result{
		ID:     get("id"),
		Title:  get("title"),
		Year:   get("year"),
		Source: get("source"),
		Human: model.Human{
			Human1Decision:         get("human1_decision"),
			Human2Decision:         get("human2_decision"),
			AdjudicatedDecision:    get("adjudicated_decision"),
			AdjudicatedExcludeCode: get("adjudicated_exclude_code"),
			DecisionRationale:      get("decision_rationale"),
			AdjudicatorID:          get("adjudicator_id"),
		},
	}
	tier, ok := model.ParseTier(get("tier"))
	if !ok {
		return model.Result{}, fmt.Errorf("%w: id %q has unknown tier %q", ErrMalformed, r.ID, get("tier"))
	}
	r.Tier = tier

	var err error
	if r.A, err = decodeSlot(get, "A"); err != nil {
		return model.Result{}, fmt.Errorf("id %q: %w", r.ID, err)
	}
	if r.B, err = decodeSlot(get, "B"); err != nil {
		return model.Result{}, fmt.Errorf("id %q: %w", r.ID, err)
	}
	r.Consensus = consensus.ParseConsensus(get("consensus"))
	return r, nil
}

func decodeSlot(get func(col string) string, slot string) (model.Outcome, error) {
	raw := strings.TrimSpace(get("decision_" + slot))
	if raw == "" {
		return model.Outcome{}, nil
	}
	o := model.Outcome{
		Decision:    consensus.ParseDecision(raw),
		ExcludeCode: get("excludeCode_" + slot),
		Rationale:   get("rationale_" + slot),
		ModelUsed:   get("modelUsed_" + slot),
	}
	if c := strings.TrimSpace(get("confidence_" + slot)); c != "" {
		f, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return model.Outcome{}, fmt.Errorf("%w: confidence_%s %q", ErrMalformed, slot, c)
		}
		o.Confidence = f
	}
	return o, nil
}
