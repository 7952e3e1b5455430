// Package classify assigns screening tiers from keyword evidence.
package classify

import (
	"regexp"
	"strings"

	"github.com/okian/sieve/internal/domain/model"
)

// T1 reasons.
const (
	ReasonNoDomainTerms = "no_domain_terms"
	ReasonDomainOnly    = "domain_no_context_no_outcome"
)

const (
	codeNoDomain   = "E2"
	codeDomainOnly = "E2+E3"
	t1Confidence   = 1.0
)

var reasonRationale = map[string]string{ //nolint:gochecknoglobals // fixed lookup
	ReasonNoDomainTerms: "T1 keyword pre-filter: no domain terms found in title/abstract/keywords",
	ReasonDomainOnly:    "T1 keyword pre-filter: domain terms present but no context and no outcome terms",
}

// Classification is the tier decision for one text.
type Classification struct {
	Tier        model.Tier
	Reason      string // set for T1 only
	ExcludeCode string // set for T1 only
}

// Rationale is the audit text written into both slots of a T1 result.
func (c Classification) Rationale() string {
	if r, ok := reasonRationale[c.Reason]; ok {
		return r
	}
	return "T1 keyword pre-filter: " + c.Reason
}

// Classifier holds compiled term matchers. It is safe for concurrent use.
type Classifier struct {
	domainTerms  []string
	contextTerms []string
	outcomeTerms []string

	domain  *regexp.Regexp
	context *regexp.Regexp
	outcome *regexp.Regexp
}

// New builds a Classifier over the default vocabularies unless overridden.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		domainTerms:  DefaultDomainTerms,
		contextTerms: DefaultContextTerms,
		outcomeTerms: DefaultOutcomeTerms,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.domain = compileTerms(c.domainTerms)
	c.context = compileTerms(c.contextTerms)
	c.outcome = compileTerms(c.outcomeTerms)
	return c
}

// Classify applies the tier rules in order:
//
//	no domain term                      -> T1 (E2)
//	domain, no context and no outcome   -> T1 (E2+E3)
//	domain and exactly one of the two   -> T2
//	domain, context and outcome         -> T3
func (c *Classifier) Classify(text string) Classification {
	if !c.domain.MatchString(text) {
		return Classification{Tier: model.T1, Reason: ReasonNoDomainTerms, ExcludeCode: codeNoDomain}
	}
	hasContext := c.context.MatchString(text)
	hasOutcome := c.outcome.MatchString(text)
	switch {
	case hasContext && hasOutcome:
		return Classification{Tier: model.T3}
	case hasContext || hasOutcome:
		return Classification{Tier: model.T2}
	default:
		return Classification{Tier: model.T1, Reason: ReasonDomainOnly, ExcludeCode: codeDomainOnly}
	}
}

// AutoExclude builds the final result for a T1 item. Both slots carry the
// keyword-filter verdict so the row reads like a unanimous exclude.
func AutoExclude(item model.Item, c Classification) model.Result {
	r := model.NewResult(item, model.T1)
	o := model.Outcome{
		Decision:    model.Exclude,
		Confidence:  t1Confidence,
		ExcludeCode: c.ExcludeCode,
		Rationale:   c.Rationale(),
		ModelUsed:   model.ModelKeywordFilter,
	}
	r.SetSlot(model.SlotA, o)
	r.SetSlot(model.SlotB, o)
	return r
}

// compileTerms joins terms into one case-insensitive word-bounded matcher.
func compileTerms(terms []string) *regexp.Regexp {
	alts := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		prefix := strings.HasSuffix(t, "*")
		t = strings.TrimSuffix(t, "*")
		words := strings.Fields(t)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alt := strings.Join(words, `\s+`)
		if prefix {
			alt += `\w*`
		}
		alts = append(alts, alt)
	}
	if len(alts) == 0 {
		// matches nothing
		return regexp.MustCompile(`[^\x00-\x{10FFFF}]`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
}
