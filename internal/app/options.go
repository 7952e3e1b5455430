package app

import (
	"github.com/okian/sieve/internal/domain/classify"
	"github.com/okian/sieve/internal/domain/prompt"
	"github.com/okian/sieve/pkg/logger"
)

type options struct {
	log        logger.Logger
	classifier *classify.Classifier
	prompt     *prompt.Renderer
	runID      string
}

// Option configures an Orchestrator or a RetryCoordinator.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClassifier replaces the classifier built from the configured terms.
func WithClassifier(c *classify.Classifier) Option {
	return func(o *options) {
		if c != nil {
			o.classifier = c
		}
	}
}

// WithPrompt replaces the prompt loaded from the configuration.
func WithPrompt(r *prompt.Renderer) Option {
	return func(o *options) {
		if r != nil {
			o.prompt = r
		}
	}
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.runID = id
		}
	}
}
