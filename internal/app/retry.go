package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/sieve/internal/adapters/checkpoint"
	"github.com/okian/sieve/internal/adapters/judge"
	"github.com/okian/sieve/internal/adapters/pool"
	"github.com/okian/sieve/internal/config"
	"github.com/okian/sieve/internal/domain/model"
	"github.com/okian/sieve/pkg/logger"
	"github.com/okian/sieve/pkg/metrics"
)

// Group names a retry bucket: tier and failed slot(s).
type Group string

// Retry groups.
const (
	GroupT2A  Group = "T2/A"
	GroupT2B  Group = "T2/B"
	GroupT3A  Group = "T3/A"
	GroupT3B  Group = "T3/B"
	GroupT3AB Group = "T3/AB"
)

// Retry slot results recorded in metrics.
const (
	resultRecovered   = "recovered"
	resultStillFailed = "still_failed"
	resultCanceled    = "canceled"
	resultUndecided   = "undecided"
)

// RetryTask is one result selected for retry.
type RetryTask struct {
	Index int // position in the checkpoint snapshot
	ID    string
	Tier  model.Tier
	Group Group
	Slots []model.Slot // failed slots, retried in this order
}

// Substitute reports whether the slot is filled by the other slot's provider.
func (t RetryTask) Substitute() bool { return t.Tier == model.T2 }

// Plan selects every non-T1 result with a failed slot and groups it.
// Results with no failure, and T1 results, are never selected.
func Plan(results []model.Result) []RetryTask {
	var tasks []RetryTask
	for i := range results {
		r := &results[i]
		failed := r.FailedSlots()
		if len(failed) == 0 {
			continue
		}
		t := RetryTask{Index: i, ID: r.ID, Tier: r.Tier, Slots: failed}
		switch {
		case r.Tier == model.T2 && len(failed) == 1:
			t.Group = Group("T2/" + string(failed[0]))
		case r.Tier == model.T3 && len(failed) == 1:
			t.Group = Group("T3/" + string(failed[0]))
		case r.Tier == model.T3:
			t.Group = GroupT3AB
		default:
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks
}

// RetryCoordinator re-judges failed slots of a checkpoint. It owns one
// fallback ladder per provider, so ladder positions are sticky for the
// lifetime of the coordinator and isolated from any other coordinator.
type RetryCoordinator struct {
	store   checkpoint.Store
	invoker judge.Invoker
	set     settings
	opts    options
	log     logger.Logger
	ladders map[string]*Ladder
}

// NewRetryCoordinator wires a coordinator from cfg. The configuration must
// already be valid.
func NewRetryCoordinator(cfg *config.Config, store checkpoint.Store, invoker judge.Invoker, opts ...Option) (*RetryCoordinator, error) {
	if store == nil || invoker == nil {
		return nil, errors.New("retry coordinator needs a checkpoint store and an invoker")
	}
	o, err := resolveOptions(cfg, "retry", opts)
	if err != nil {
		return nil, err
	}
	set := newSettings(cfg)
	ladders := make(map[string]*Ladder, len(set.providers))
	for name, p := range set.providers {
		ladders[name] = NewLadder(name, p.Ladder())
	}
	return &RetryCoordinator{
		store:   store,
		invoker: invoker,
		set:     set,
		opts:    o,
		log:     o.log,
		ladders: ladders,
	}, nil
}

// Ladder returns the coordinator's ladder for provider.
func (c *RetryCoordinator) Ladder(provider string) (*Ladder, bool) {
	l, ok := c.ladders[provider]
	return l, ok
}

type slotUpdate struct {
	slot    model.Slot
	outcome model.Outcome
}

// Run retries every planned slot once. items supply the prompt fields;
// results without a matching item are judged on their stored header fields.
//
// Only failed slots are written and only with a non-canceled outcome, so
// decisive slots and slots outside the task stay untouched. The checkpoint
// is saved every save_every tasks and at the end.
func (c *RetryCoordinator) Run(ctx context.Context, items []model.Item) (rep RetryReport, err error) {
	started := time.Now()
	rep = newRetryReport(c.opts.runID)

	results, err := c.store.Load(ctx)
	if err != nil {
		return rep, fmt.Errorf("load checkpoint: %w", err)
	}
	tasks := Plan(results)
	for _, t := range tasks {
		g := rep.Groups[t.Group]
		g.Selected++
		rep.Groups[t.Group] = g
	}
	if len(tasks) == 0 {
		c.log.Info(ctx, "nothing to retry", logger.Int("results", len(results)))
		return rep, nil
	}
	c.log.Info(ctx, "retry started", logger.Int("results", len(results)), logger.Int("selected", len(tasks)), logger.Any("groups", rep.selected()))

	defer func() {
		if serr := saveResults(ctx, c.store, results, c.log); serr != nil && err == nil {
			err = serr
		}
		rep.Ladders = c.ladderPositions()
		rep.Elapsed = time.Since(started)
		c.log.Info(ctx, "retry finished",
			logger.Int("recovered", rep.Recovered()),
			logger.Int("undecided", rep.Undecided()),
			logger.Int("still_failed", rep.StillFailed()),
			logger.Any("ladders", rep.Ladders),
			logger.Duration("elapsed", rep.Elapsed),
		)
	}()

	byID := itemIndex(items)
	sinceSave := 0
	_, perr := pool.Run(ctx, tasks, func(ctx context.Context, t RetryTask) []slotUpdate {
		it, ok := byID[t.ID]
		if !ok {
			r := results[t.Index]
			it = model.Item{ID: r.ID, Title: r.Title, Year: r.Year, Source: r.Source}
		}
		return c.retry(ctx, t, it)
	}, func(t RetryTask, ups []slotUpdate) error {
		r := &results[t.Index]
		canceled := false
		for _, u := range ups {
			if u.outcome.Failure == model.FailureCanceled {
				canceled = true
				continue
			}
			if !r.Slot(u.slot).Failed() {
				continue
			}
			r.SetSlot(u.slot, u.outcome)
		}

		g := rep.Groups[t.Group]
		switch {
		case canceled:
			g.Canceled++
			metrics.RecordRetrySlot(string(t.Group), resultCanceled)
		case stillFailed(r, t.Slots):
			g.StillFailed++
			metrics.RecordRetrySlot(string(t.Group), resultStillFailed)
		case undecided(r, t.Slots):
			g.Undecided++
			metrics.RecordRetrySlot(string(t.Group), resultUndecided)
		default:
			g.Recovered++
			metrics.RecordRetrySlot(string(t.Group), resultRecovered)
		}
		rep.Groups[t.Group] = g

		sinceSave++
		if sinceSave >= c.set.saveEvery {
			sinceSave = 0
			return saveResults(ctx, c.store, results, c.log)
		}
		return nil
	}, pool.WithWorkers(c.set.workers), pool.WithName("retry"), pool.WithLogger(c.log))

	if perr != nil {
		if ctx.Err() != nil {
			return rep, fmt.Errorf("retry interrupted: %w", perr)
		}
		return rep, perr
	}
	return rep, nil
}

// retry re-judges the failed slots of one task in slot order. T3/AB tries
// A through its ladder first, then B through its own.
func (c *RetryCoordinator) retry(ctx context.Context, t RetryTask, it model.Item) []slotUpdate {
	text, err := c.opts.prompt.Render(it)
	ups := make([]slotUpdate, 0, len(t.Slots))
	for _, s := range t.Slots {
		provider := c.set.slots[s]
		if t.Substitute() {
			provider = c.set.slots[s.Other()]
		}
		var out model.Outcome
		switch l, ok := c.ladders[provider]; {
		case err != nil:
			out = model.CrashOutcome(provider, err.Error(), "")
		case !ok:
			out = model.CrashOutcome(provider, "unknown provider", "")
		default:
			out = l.Call(ctx, c.invoker, text, c.set.timeout)
		}
		if t.Substitute() && out.Failure != model.FailureCanceled {
			out.Rationale = model.SubstitutePrefix(provider, out.ModelUsed) + out.Rationale
		}
		ups = append(ups, slotUpdate{slot: s, outcome: out})
		if out.Failure == model.FailureCanceled {
			break
		}
	}
	return ups
}

func (c *RetryCoordinator) ladderPositions() map[string]string {
	out := make(map[string]string, len(c.ladders))
	for name, l := range c.ladders {
		if m, ok := l.Current(); ok {
			out[name] = m
		} else {
			out[name] = "exhausted"
		}
	}
	return out
}

// undecided reports whether a judge answered one of slots without deciding.
func undecided(r *model.Result, slots []model.Slot) bool {
	for _, s := range slots {
		if r.Slot(s).Decision == model.Uncertain {
			return true
		}
	}
	return false
}

func stillFailed(r *model.Result, slots []model.Slot) bool {
	for _, s := range slots {
		if r.Slot(s).Failed() {
			return true
		}
	}
	return false
}
