package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// FailureKind classifies why a provider call produced no judgment.
type FailureKind string

// Failure kinds. FailureNone is the zero value.
const (
	FailureNone      FailureKind = ""
	FailureCrash     FailureKind = "crash"
	FailureTimeout   FailureKind = "timeout"
	FailureEmpty     FailureKind = "empty"
	FailureParse     FailureKind = "parse"
	FailureExhausted FailureKind = "exhausted"
	FailureCanceled  FailureKind = "canceled"
)

// MaxSnippet bounds stderr and raw output kept in rationales.
const MaxSnippet = 200

// ModelKeywordFilter is recorded as the model of T1 results.
const ModelKeywordFilter = "keyword-filter"

// ProviderNamePattern is the syntax of provider names. Failure tags start
// with a provider label, so a name must not read like a sentence.
const ProviderNamePattern = `[a-z0-9][a-z0-9_-]*`

var (
	subPrefixRE = regexp.MustCompile(`^` + ProviderNamePattern + `-sub\([^)]*\): `)
	timeoutRE   = regexp.MustCompile(`^(` + ProviderNamePattern + `)(?:\(([^)]*)\))? timed out after \d+s`)
	taggedRE    = regexp.MustCompile(`^(` + ProviderNamePattern + `)(?:\(([^)]*)\))? (failed|empty|exhausted):`)
)

// ClassifyFailure recovers the failure kind from a persisted slot. A decisive
// decision is never a failure, whatever its rationale says. A tag counts only
// when its label agrees with modelUsed, the model recorded for the slot, so a
// judge rationale such as "Recruitment failed: ..." stays a judgment.
func ClassifyFailure(d Decision, rationale, modelUsed string) FailureKind {
	if d != Uncertain {
		return FailureNone
	}
	r := subPrefixRE.ReplaceAllString(rationale, "")
	if strings.HasPrefix(r, "parse failed:") {
		return FailureParse
	}
	if m := timeoutRE.FindStringSubmatch(r); m != nil && labelMatches(m[1], m[2], modelUsed) {
		return FailureTimeout
	}
	if m := taggedRE.FindStringSubmatch(r); m != nil && labelMatches(m[1], m[2], modelUsed) {
		switch m[3] {
		case "failed":
			return FailureCrash
		case "empty":
			return FailureEmpty
		case "exhausted":
			return FailureExhausted
		}
	}
	return FailureNone
}

// labelMatches reports whether a tag label provider or provider(model) could
// have been written for a slot whose recorded model is modelUsed.
func labelMatches(provider, model, modelUsed string) bool {
	switch {
	case modelUsed == "":
		return true
	case model != "":
		return model == modelUsed
	default:
		return provider == modelUsed
	}
}

// Label names a provider call in failure tags: provider or provider(model).
func Label(provider, model string) string {
	if model == "" || model == provider {
		return provider
	}
	return provider + "(" + model + ")"
}

// SubstitutePrefix marks a rationale written by a substitute provider.
func SubstitutePrefix(provider, model string) string {
	return fmt.Sprintf("%s-sub(%s): ", provider, model)
}

// Snippet trims s and cuts it to MaxSnippet runes.
func Snippet(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxSnippet {
		return s
	}
	return string([]rune(s)[:MaxSnippet])
}

// Failure outcome constructors. Each yields an uncertain decision with a
// rationale that ClassifyFailure maps back to the same kind.

// CrashOutcome is a spawn error or non-zero exit.
func CrashOutcome(label, stderr, modelUsed string) Outcome {
	return failure(FailureCrash, label+" failed: "+Snippet(stderr), modelUsed)
}

// TimeoutOutcome is a call that ran past its deadline.
func TimeoutOutcome(label string, after time.Duration, modelUsed string) Outcome {
	return failure(FailureTimeout, fmt.Sprintf("%s timed out after %ds", label, int(after.Round(time.Second)/time.Second)), modelUsed)
}

// EmptyOutcome is a call with nothing on stdout.
func EmptyOutcome(label, stderr, modelUsed string) Outcome {
	return failure(FailureEmpty, label+" empty: "+Snippet(stderr), modelUsed)
}

// ExhaustedOutcome is a quota or ladder exhaustion.
func ExhaustedOutcome(label, detail, modelUsed string) Outcome {
	return failure(FailureExhausted, label+" exhausted: "+Snippet(detail), modelUsed)
}

// ParseOutcome is output without a usable JSON object.
func ParseOutcome(raw, modelUsed string) Outcome {
	return failure(FailureParse, "parse failed: "+Snippet(raw), modelUsed)
}

// CanceledOutcome is a call abandoned because the run stopped. It is never persisted.
func CanceledOutcome(label, modelUsed string) Outcome {
	return failure(FailureCanceled, label+" canceled", modelUsed)
}

func failure(kind FailureKind, rationale, modelUsed string) Outcome {
	return Outcome{
		Decision:    Uncertain,
		ExcludeCode: DefaultExcludeCode,
		Rationale:   rationale,
		ModelUsed:   modelUsed,
		Failure:     kind,
	}
}
