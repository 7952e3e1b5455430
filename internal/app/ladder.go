package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/okian/sieve/internal/adapters/judge"
	"github.com/okian/sieve/internal/domain/model"
	"github.com/okian/sieve/pkg/metrics"
)

// ExhaustedDetail is the rationale detail once every rung is exhausted.
const ExhaustedDetail = "all fallback models exhausted"

// Ladder walks one provider's fallback models. The current rung is sticky:
// once a model reports exhaustion every later call starts at the next one.
// It is safe for concurrent use.
type Ladder struct {
	provider string
	models   []string
	idx      atomic.Int64
}

// NewLadder creates a ladder over models, tried in order.
func NewLadder(provider string, models []string) *Ladder {
	return &Ladder{provider: provider, models: append([]string(nil), models...)}
}

// Current returns the active model, or false once the ladder is exhausted.
func (l *Ladder) Current() (string, bool) {
	i := int(l.idx.Load())
	if i >= len(l.models) {
		return "", false
	}
	return l.models[i], true
}

// advance moves past rung from. Concurrent callers that saw the same rung
// exhausted advance the ladder once.
func (l *Ladder) advance(from int64) bool {
	if l.idx.CompareAndSwap(from, from+1) {
		metrics.RecordLadderAdvance(l.provider)
		return true
	}
	return false
}

// Call invokes the provider starting at the current rung and moves down the
// ladder while the outcome is exhausted. Any other outcome, success or not,
// is returned as is.
func (l *Ladder) Call(ctx context.Context, inv judge.Invoker, text string, timeout time.Duration) model.Outcome {
	last := ""
	for {
		i := l.idx.Load()
		if int(i) >= len(l.models) {
			if last == "" && len(l.models) > 0 {
				last = l.models[len(l.models)-1]
			}
			return model.ExhaustedOutcome(model.Label(l.provider, last), ExhaustedDetail, last)
		}
		m := l.models[i]
		out := inv.Invoke(ctx, judge.Call{Provider: l.provider, Model: m, Prompt: text, Timeout: timeout})
		if out.Failure != model.FailureExhausted {
			return out
		}
		last = m
		l.advance(i)
	}
}
