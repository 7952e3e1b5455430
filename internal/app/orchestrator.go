package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/sieve/internal/adapters/checkpoint"
	"github.com/okian/sieve/internal/adapters/judge"
	"github.com/okian/sieve/internal/adapters/pool"
	"github.com/okian/sieve/internal/config"
	"github.com/okian/sieve/internal/domain/classify"
	"github.com/okian/sieve/internal/domain/dedupe"
	"github.com/okian/sieve/internal/domain/model"
	"github.com/okian/sieve/pkg/logger"
	"github.com/okian/sieve/pkg/metrics"
)

// RunSummary describes one screening run.
type RunSummary struct {
	RunID      string
	Items      int // input items
	Skipped    int // already in the checkpoint
	Tiers      map[model.Tier]int
	Dispatched int
	Completed  int
	Canceled   int
	Consensus  map[model.Consensus]int // over the whole checkpoint after the run
	Elapsed    time.Duration
}

// Orchestrator screens items on a bounded pool and checkpoints as it goes.
type Orchestrator struct {
	store   checkpoint.Store
	invoker judge.Invoker
	set     settings
	opts    options
	log     logger.Logger

	dispatched atomic.Int64
	mu         sync.RWMutex
	progress   Progress
}

// NewOrchestrator wires an orchestrator from cfg. The configuration must
// already be valid.
func NewOrchestrator(cfg *config.Config, store checkpoint.Store, invoker judge.Invoker, opts ...Option) (*Orchestrator, error) {
	if store == nil || invoker == nil {
		return nil, errors.New("orchestrator needs a checkpoint store and an invoker")
	}
	o, err := resolveOptions(cfg, "orchestrator", opts)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		store:    store,
		invoker:  invoker,
		set:      newSettings(cfg),
		opts:     o,
		log:      o.log,
		progress: Progress{RunID: o.runID, Phase: PhaseIdle},
	}, nil
}

// RunID identifies this orchestrator's run in logs and progress.
func (o *Orchestrator) RunID() string { return o.opts.runID }

type job struct {
	item model.Item
	tier model.Tier
}

type verdict struct {
	result   model.Result
	canceled bool
}

// Run screens every item that has no result in the checkpoint yet.
//
// T1 items are resolved without a provider call and saved first. T2 and T3
// items then run on the pool; completions are consumed on this goroutine,
// which alone owns the result buffer, and the buffer is saved every
// save_every completions and once more on the way out. Items whose calls
// were canceled are left out of the buffer so a later run redoes them.
func (o *Orchestrator) Run(ctx context.Context, items []model.Item) (sum RunSummary, err error) {
	started := time.Now()
	sum = RunSummary{RunID: o.opts.runID, Items: len(items), Tiers: map[model.Tier]int{}}

	buf, err := o.store.Load(ctx)
	if err != nil {
		return sum, fmt.Errorf("load checkpoint: %w", err)
	}
	ids := make([]string, len(buf))
	for i, r := range buf {
		ids[i] = r.ID
	}
	done := dedupe.NewInMemoryDeduper(dedupe.WithSeen(ids...), dedupe.WithCapacity(len(buf)+len(items)))

	var todo []model.Item
	for _, it := range items {
		if done.SeenAndRecord(ctx, it.ID) {
			sum.Skipped++
			continue
		}
		todo = append(todo, it)
	}
	if len(todo) == 0 {
		o.log.Info(ctx, "nothing to screen", logger.Int("items", len(items)), logger.Int("done", len(buf)))
		sum.Consensus = consensusCounts(buf)
		sum.Elapsed = time.Since(started)
		return sum, nil
	}

	var t2, t3 []job
	t1 := 0
	for _, it := range todo {
		c := o.opts.classifier.Classify(it.Text())
		sum.Tiers[c.Tier]++
		switch c.Tier {
		case model.T1:
			buf = append(buf, classify.AutoExclude(it, c))
			metrics.RecordItem(string(model.T1))
			t1++
		case model.T2:
			t2 = append(t2, job{item: it, tier: model.T2})
		default:
			t3 = append(t3, job{item: it, tier: model.T3})
		}
	}
	o.log.Info(ctx, "screening started",
		logger.Int("items", len(items)),
		logger.Int("skipped", sum.Skipped),
		logger.Int("t1", t1),
		logger.Int("t2", len(t2)),
		logger.Int("t3", len(t3)),
		logger.Int("workers", o.set.workers),
	)

	defer func() {
		if serr := saveResults(ctx, o.store, buf, o.log); serr != nil && err == nil {
			err = serr
		}
		sum.Consensus = consensusCounts(buf)
		sum.Elapsed = time.Since(started)
		o.setPhase(PhaseDone)
		o.log.Info(ctx, "screening finished",
			logger.Int("completed", sum.Completed),
			logger.Int("canceled", sum.Canceled),
			logger.Any("tiers", sum.Tiers),
			logger.Any("consensus", sum.Consensus),
			logger.Duration("elapsed", sum.Elapsed),
		)
	}()

	if t1 > 0 {
		if err := saveResults(ctx, o.store, buf, o.log); err != nil {
			return sum, err
		}
	}

	jobs := append(t2, t3...)
	o.startProgress(len(jobs), started)

	sinceSave := 0
	stats, perr := pool.Run(ctx, jobs, o.judge, func(j job, v verdict) error {
		if v.canceled {
			done.Unrecord(ctx, j.item.ID)
			sum.Canceled++
			return nil
		}
		buf = append(buf, v.result)
		metrics.RecordItem(string(j.tier))
		sum.Completed++
		o.advanceProgress(ctx, j.tier)

		sinceSave++
		if sinceSave >= o.set.saveEvery {
			sinceSave = 0
			return saveResults(ctx, o.store, buf, o.log)
		}
		return nil
	}, pool.WithWorkers(o.set.workers), pool.WithName("screening"), pool.WithLogger(o.log))
	sum.Dispatched = stats.Dispatched

	if perr != nil {
		if ctx.Err() != nil {
			o.log.Warn(ctx, "screening interrupted", logger.Int("completed", sum.Completed), logger.Int("pending", len(jobs)-sum.Completed))
			return sum, fmt.Errorf("screening interrupted: %w", perr)
		}
		return sum, perr
	}
	return sum, nil
}

// judge runs the provider calls of one item. T3 calls run concurrently.
func (o *Orchestrator) judge(ctx context.Context, j job) verdict {
	o.dispatched.Add(1)
	res := model.NewResult(j.item, j.tier)

	slots := []model.Slot{o.set.singleSlot}
	if j.tier == model.T3 {
		slots = []model.Slot{model.SlotA, model.SlotB}
	}
	outs := make([]model.Outcome, len(slots))

	text, err := o.opts.prompt.Render(j.item)
	switch {
	case err != nil:
		for i, s := range slots {
			provider := o.set.slots[s]
			m := o.set.providers[provider].Model
			outs[i] = model.CrashOutcome(model.Label(provider, m), err.Error(), m)
		}
	case len(slots) == 1:
		outs[0] = o.call(ctx, slots[0], text)
	default:
		var wg sync.WaitGroup
		for i, s := range slots {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outs[i] = o.call(ctx, s, text)
			}()
		}
		wg.Wait()
	}

	v := verdict{}
	for i, s := range slots {
		if outs[i].Failure == model.FailureCanceled {
			v.canceled = true
		}
		res.SetSlot(s, outs[i])
	}
	v.result = res
	return v
}

func (o *Orchestrator) call(ctx context.Context, s model.Slot, text string) model.Outcome {
	provider := o.set.slots[s]
	return o.invoker.Invoke(ctx, judge.Call{
		Provider: provider,
		Model:    o.set.providers[provider].Model,
		Prompt:   text,
		Timeout:  o.set.timeout,
	})
}

func consensusCounts(results []model.Result) map[model.Consensus]int {
	out := map[model.Consensus]int{}
	for _, r := range results {
		out[r.Consensus]++
	}
	return out
}
