package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/okian/sieve/internal/domain/model"
)

var providerNameRE = regexp.MustCompile(`^` + model.ProviderNamePattern + `$`)

// Validate checks that every referenced provider can be launched and that
// the pool and checkpoint settings are usable.
func (c *Config) Validate() error {
	if c.WorkerCount <= 0 {
		return invalid("worker_count must be positive, got %d", c.WorkerCount)
	}
	if c.TimeoutSeconds <= 0 {
		return invalid("timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.SaveEvery <= 0 {
		return invalid("save_every must be positive, got %d", c.SaveEvery)
	}
	if c.ProgressEvery <= 0 {
		return invalid("progress_every must be positive, got %d", c.ProgressEvery)
	}
	if c.LaunchRate < 0 {
		return invalid("launch_rate must not be negative, got %g", c.LaunchRate)
	}
	switch c.Checkpoint.Backend {
	case BackendCSV, BackendSQLite:
	default:
		return invalid("checkpoint.backend must be %q or %q, got %q", BackendCSV, BackendSQLite, c.Checkpoint.Backend)
	}
	if strings.TrimSpace(c.Checkpoint.Path) == "" {
		return invalid("checkpoint.path must not be empty")
	}
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !providerNameRE.MatchString(name) {
			return invalid("provider name %q must be lowercase letters, digits, '-' or '_'", name)
		}
	}
	if s := strings.ToUpper(c.SingleSlot); s != SlotA && s != SlotB {
		return invalid("single_slot must be A or B, got %q", c.SingleSlot)
	}
	for _, slot := range []string{SlotA, SlotB} {
		name := c.SlotProvider(slot)
		if name == "" {
			return invalid("slots.%s must name a provider", slot)
		}
		p, ok := c.Providers[name]
		if !ok {
			return invalid("slots.%s references unknown provider %q", slot, name)
		}
		if err := validateProvider(name, p); err != nil {
			return err
		}
	}
	return nil
}

func validateProvider(name string, p Provider) error {
	if len(p.Command) == 0 || strings.TrimSpace(p.Command[0]) == "" {
		return invalid("providers.%s.command must not be empty", name)
	}
	hasPrompt := false
	for _, tok := range p.Command {
		if strings.Contains(tok, PromptToken) {
			hasPrompt = true
			break
		}
	}
	if !hasPrompt {
		return invalid("providers.%s.command must contain a %s token", name, PromptToken)
	}
	if p.UsesModel() {
		if p.Model == "" {
			return invalid("providers.%s.command uses %s but no model is set", name, ModelToken)
		}
		for i, m := range p.FallbackModels {
			if strings.TrimSpace(m) == "" {
				return invalid("providers.%s.fallback_models[%d] is empty", name, i)
			}
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
