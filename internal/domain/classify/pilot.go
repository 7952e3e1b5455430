package classify

import (
	"github.com/okian/sieve/internal/domain/consensus"
	"github.com/okian/sieve/internal/domain/model"
)

// FalseNegative is a human-included item the classifier would auto-exclude.
type FalseNegative struct {
	ID     string
	Title  string
	Reason string
}

// PilotReport summarizes a validation run against human labels.
type PilotReport struct {
	Checked        int
	Included       int
	Tiers          map[model.Tier]int
	FalseNegatives []FalseNegative
}

// Passed reports whether no included item was sent to T1.
func (r PilotReport) Passed() bool { return len(r.FalseNegatives) == 0 }

// Pilot classifies labeled items and reports every human include that lands
// in T1. Items without a label are skipped.
func (c *Classifier) Pilot(items []model.Item, labels map[string]string) PilotReport {
	rep := PilotReport{Tiers: map[model.Tier]int{}}
	for _, it := range items {
		label, ok := labels[it.ID]
		if !ok {
			continue
		}
		rep.Checked++
		cl := c.Classify(it.Text())
		rep.Tiers[cl.Tier]++
		if consensus.ParseDecision(label) != consensus.Include {
			continue
		}
		rep.Included++
		if cl.Tier == model.T1 {
			rep.FalseNegatives = append(rep.FalseNegatives, FalseNegative{ID: it.ID, Title: it.Title, Reason: cl.Reason})
		}
	}
	return rep
}
