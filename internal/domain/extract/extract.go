// Package extract pulls the judgment object out of free-form judge output.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/okian/sieve/internal/domain/consensus"
)

const defaultExcludeCode = "NA"

var errTrailingData = errors.New("trailing data after object")

var fencedRE = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")

// JSON returns the first JSON object found in text, trying in order:
// the whole trimmed text, a fenced code block, then the first balanced
// {...} span. The error is one of ErrEmptyOutput, ErrNoJSON or ErrMalformedJSON.
func JSON(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyOutput
	}
	if obj, err := decodeObject(text); err == nil {
		return obj, nil
	}
	if m := fencedRE.FindStringSubmatch(text); m != nil {
		if obj, err := decodeObject(m[1]); err == nil {
			return obj, nil
		}
	}
	span, ok := firstBalanced(text)
	if !ok {
		return nil, ErrNoJSON
	}
	obj, err := decodeObject(span)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedJSON, err)
	}
	return obj, nil
}

// Judgment is the normalized verdict carried by a judge's JSON object.
type Judgment struct {
	Decision    consensus.Decision
	Confidence  float64
	ExcludeCode string
	Rationale   string
}

// ParseJudgment extracts and normalizes a Judgment from judge output.
func ParseJudgment(text string) (Judgment, error) {
	obj, err := JSON(text)
	if err != nil {
		return Judgment{}, err
	}
	j := Judgment{
		Decision:    consensus.ParseDecision(stringField(obj, "decision")),
		Confidence:  confidence(obj["confidence"]),
		ExcludeCode: strings.TrimSpace(stringField(obj, "exclude_code")),
		Rationale:   strings.TrimSpace(stringField(obj, "rationale")),
	}
	if j.ExcludeCode == "" {
		j.ExcludeCode = defaultExcludeCode
	}
	return j, nil
}

func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, ErrNoJSON
	}
	// prose after a valid object sends the caller to the next stage
	if strings.TrimSpace(s[dec.InputOffset():]) != "" {
		return nil, errTrailingData
	}
	return obj, nil
}

// firstBalanced returns the first {...} span whose braces balance, ignoring
// braces inside JSON strings.
func firstBalanced(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
		// unbalanced from this brace; try the next one
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// confidence accepts numbers and numeric strings and clamps to [0,1].
// Anything else is 0.
func confidence(v any) float64 {
	var f float64
	switch x := v.(type) {
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0
		}
		f = n
	case float64:
		f = x
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		f = n
	default:
		return 0
	}
	switch {
	case math.IsNaN(f):
		return 0
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
