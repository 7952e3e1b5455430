package app

import (
	"context"
	"time"

	"github.com/okian/sieve/internal/domain/model"
	"github.com/okian/sieve/pkg/logger"
)

// Run phases reported in progress snapshots.
const (
	PhaseIdle      = "idle"
	PhaseScreening = "screening"
	PhaseDone      = "done"
)

// Progress is a point-in-time view of a screening run.
type Progress struct {
	RunID      string         `json:"run_id"`
	Phase      string         `json:"phase"`
	Total      int            `json:"total"`
	Dispatched int            `json:"dispatched"`
	Completed  int            `json:"completed"`
	Tiers      map[string]int `json:"tiers,omitempty"`
	RatePerMin float64        `json:"rate_per_min"`
	ETASeconds float64        `json:"eta_seconds"`
	StartedAt  time.Time      `json:"started_at"`
}

// Progress returns a snapshot safe to read from any goroutine.
func (o *Orchestrator) Progress() Progress {
	o.mu.RLock()
	p := o.progress
	tiers := make(map[string]int, len(p.Tiers))
	for k, v := range p.Tiers {
		tiers[k] = v
	}
	o.mu.RUnlock()
	p.Tiers = tiers
	p.Dispatched = int(o.dispatched.Load())
	return p
}

func (o *Orchestrator) startProgress(total int, started time.Time) {
	o.mu.Lock()
	o.progress.Phase = PhaseScreening
	o.progress.Total = total
	o.progress.StartedAt = started
	o.progress.Tiers = map[string]int{}
	o.mu.Unlock()
}

func (o *Orchestrator) setPhase(phase string) {
	o.mu.Lock()
	o.progress.Phase = phase
	o.mu.Unlock()
}

// advanceProgress counts one completion and logs every progress_every.
func (o *Orchestrator) advanceProgress(ctx context.Context, tier model.Tier) {
	o.mu.Lock()
	p := &o.progress
	p.Completed++
	p.Tiers[string(tier)]++
	elapsed := time.Since(p.StartedAt)
	p.RatePerMin, p.ETASeconds = rateAndETA(p.Completed, p.Total, elapsed)
	snap := *p
	o.mu.Unlock()

	if o.set.progress > 0 && (snap.Completed%o.set.progress == 0 || snap.Completed == snap.Total) {
		o.log.Info(ctx, "screening progress",
			logger.Int("completed", snap.Completed),
			logger.Int("total", snap.Total),
			logger.Float64("rate_per_min", snap.RatePerMin),
			logger.Duration("eta", time.Duration(snap.ETASeconds*float64(time.Second)).Round(time.Second)),
		)
	}
}

// rateAndETA extrapolates the remaining time from the average rate so far.
func rateAndETA(completed, total int, elapsed time.Duration) (perMin, etaSeconds float64) {
	if completed <= 0 || elapsed <= 0 {
		return 0, 0
	}
	perMin = float64(completed) / elapsed.Minutes()
	remaining := total - completed
	if remaining <= 0 {
		return perMin, 0
	}
	return perMin, float64(remaining) / perMin * 60
}
