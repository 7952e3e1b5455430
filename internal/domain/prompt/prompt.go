// Package prompt renders the screening prompt sent to every judge.
package prompt

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/okian/sieve/internal/domain/model"
)

// Default is the built-in screening prompt.
const Default = `You are screening studies for an educational AI adoption meta-analysis.

Apply these criteria:
1) Empirical quantitative study with primary data
2) AI technology is focal (not general ICT/IT)
3) Educational setting/population (students, instructors, administrators)
4) Adoption/acceptance/intention/use is measured
5) Correlation matrix or standardized beta/path data appears available or likely
6) English language
7) Publication window target: 2015-2025
8) Sample size n >= 50 (if stated or inferable from abstract)
9) Peer-reviewed journal article or full conference paper

Exclude codes:
E1=Not empirical/quantitative, E2=AI not focal, E3=Not education context,
E4=No adoption/acceptance outcome, E5=No effect size data,
E6=Not English, E7=Outside 2015-2025, E8=n<50, E9=Not peer-reviewed,
E10=Duplicate sample, E11=Qualitative/review only, E12=Other

Return strict JSON:
{
  "decision": "include|exclude|uncertain",
  "confidence": 0.0,
  "exclude_code": "E1|E2|E3|E4|E5|E6|E7|E8|E9|E10|E11|E12|NA",
  "criteria_flags": {
    "quantitative": "yes|no|unclear",
    "ai_focal": "yes|no|unclear",
    "education_context": "yes|no|unclear",
    "adoption_outcome": "yes|no|unclear",
    "effect_size_reported": "yes|no|unclear",
    "english": "yes|no|unclear",
    "sample_size_adequate": "yes|no|unclear"
  },
  "rationale": "1-2 sentences"
}

Title: {{.Title}}
Abstract: {{.Abstract}}
Keywords: {{.Keywords}}
Year: {{.Year}}
Source: {{.Source}}
`

// Renderer fills the prompt template with item fields.
type Renderer struct {
	tmpl *template.Template
}

// New parses text as a template over model.Item fields.
func New(text string) (*Renderer, error) {
	t, err := template.New("prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	// surface unknown field references before any item is dispatched
	if err := t.Execute(&strings.Builder{}, model.Item{}); err != nil {
		return nil, fmt.Errorf("check prompt template: %w", err)
	}
	return &Renderer{tmpl: t}, nil
}

// Load reads a template from path, or returns the built-in prompt when path is empty.
func Load(path string) (*Renderer, error) {
	if path == "" {
		return New(Default)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt template: %w", err)
	}
	return New(string(b))
}

// Render returns the prompt for item.
func (r *Renderer) Render(item model.Item) (string, error) {
	var sb strings.Builder
	if err := r.tmpl.Execute(&sb, item); err != nil {
		return "", fmt.Errorf("render prompt for %s: %w", item.ID, err)
	}
	return sb.String(), nil
}
