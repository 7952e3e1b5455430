// Package app coordinates screening runs and retry passes over the
// classifier, the judges and the checkpoint store.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/sieve/internal/adapters/checkpoint"
	"github.com/okian/sieve/internal/config"
	"github.com/okian/sieve/internal/domain/classify"
	"github.com/okian/sieve/internal/domain/model"
	"github.com/okian/sieve/internal/domain/prompt"
	"github.com/okian/sieve/pkg/logger"
	"github.com/okian/sieve/pkg/metrics"
)

// settings are the values both runners read from the configuration.
type settings struct {
	workers    int
	timeout    time.Duration
	saveEvery  int
	progress   int
	singleSlot model.Slot
	slots      map[model.Slot]string
	providers  map[string]config.Provider
}

func newSettings(cfg *config.Config) settings {
	single, ok := model.ParseSlot(cfg.SingleSlot)
	if !ok {
		single = model.SlotB
	}
	return settings{
		workers:    cfg.WorkerCount,
		timeout:    cfg.Timeout(),
		saveEvery:  cfg.SaveEvery,
		progress:   cfg.ProgressEvery,
		singleSlot: single,
		slots: map[model.Slot]string{
			model.SlotA: cfg.SlotProvider(config.SlotA),
			model.SlotB: cfg.SlotProvider(config.SlotB),
		},
		providers: cfg.Providers,
	}
}

// resolveOptions applies opts and fills whatever is still missing from cfg.
func resolveOptions(cfg *config.Config, component string, opts []Option) (options, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Get().Named(component)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	o.log = o.log.With(logger.String("run_id", o.runID))
	if o.prompt == nil {
		r, err := prompt.Load(cfg.PromptFile)
		if err != nil {
			return o, err
		}
		o.prompt = r
	}
	if o.classifier == nil {
		o.classifier = classify.New(
			classify.WithDomainTerms(cfg.Terms.Domain),
			classify.WithContextTerms(cfg.Terms.Context),
			classify.WithOutcomeTerms(cfg.Terms.Outcome),
		)
	}
	return o, nil
}

// saveResults writes the full buffer. Saves run even after the run context
// is canceled so an interrupted run keeps what it finished.
func saveResults(ctx context.Context, store checkpoint.Store, results []model.Result, log logger.Logger) error {
	started := time.Now()
	if err := store.Save(context.WithoutCancel(ctx), results); err != nil {
		metrics.RecordCheckpointSaveError()
		log.Error(ctx, "checkpoint save failed", logger.Int("rows", len(results)), logger.Error(err))
		return fmt.Errorf("save checkpoint: %w", err)
	}
	metrics.RecordCheckpointSave(len(results))
	log.Debug(ctx, "checkpoint saved", logger.Int("rows", len(results)), logger.Duration("took", time.Since(started)))
	return nil
}

// itemIndex maps ids to items for prompt rendering.
func itemIndex(items []model.Item) map[string]model.Item {
	idx := make(map[string]model.Item, len(items))
	for _, it := range items {
		if _, dup := idx[it.ID]; !dup {
			idx[it.ID] = it
		}
	}
	return idx
}
