package classify

// Option configures a Classifier.
type Option func(*Classifier)

// WithDomainTerms replaces the domain vocabulary. An empty list keeps the default.
func WithDomainTerms(terms []string) Option {
	return func(c *Classifier) {
		if len(terms) > 0 {
			c.domainTerms = terms
		}
	}
}

// WithContextTerms replaces the context vocabulary. An empty list keeps the default.
func WithContextTerms(terms []string) Option {
	return func(c *Classifier) {
		if len(terms) > 0 {
			c.contextTerms = terms
		}
	}
}

// WithOutcomeTerms replaces the outcome vocabulary. An empty list keeps the default.
func WithOutcomeTerms(terms []string) Option {
	return func(c *Classifier) {
		if len(terms) > 0 {
			c.outcomeTerms = terms
		}
	}
}
