// Package provider produces letter body text from intake facts. It abstracts
// over a research-augmented primary backend and a direct-completion fallback,
// and is deliberately side-effect-free: refund and failure-status bookkeeping
// belong to the caller.
package provider

import (
	"context"

	"letterworks/pkg/clients"
	"letterworks/pkg/logging"
	"letterworks/pkg/models"
)

// Request carries everything a provider needs to draft one letter.
type Request struct {
	LetterID   string
	UserID     string
	LetterType string
	IntakeData models.IntakeData
	// Feedback is set only for improve calls on an existing draft.
	Feedback string
}

// Draft is a successful generation result.
type Draft struct {
	Content         string
	Method          ProviderName
	ResearchApplied bool
	Jurisdiction    string
}

// Adapter drives the primary→fallback provider chain.
type Adapter struct {
	cfg      Config
	primary  *primaryClient
	fallback *fallbackClient
	logger   logging.Logger
}

// NewAdapter builds an Adapter from an explicit config. The circuit breaker
// guards only the primary provider; the fallback is already the escape hatch.
func NewAdapter(cfg Config, logger logging.Logger) *Adapter {
	breaker := clients.NewCircuitBreaker(clients.CircuitBreakerConfig{
		Name:   "primary-provider",
		Logger: logger,
	})
	return &Adapter{
		cfg:      cfg,
		primary:  newPrimaryClient(cfg, breaker),
		fallback: newFallbackClient(cfg),
		logger:   logger,
	}
}

// Generate drafts letter content, trying the primary provider first and
// falling back on any primary failure class. If both providers fail the
// caller gets a single aggregated error; there is no partial success.
func (a *Adapter) Generate(ctx context.Context, req Request) (Draft, error) {
	var primaryFailure *Failure

	if a.primary.configured() {
		draft, failure := a.primary.generate(ctx, req)
		if failure == nil {
			if len(draft.Content) >= a.cfg.MinContentLength {
				return draft, nil
			}
			// Transport succeeded but the content is unusable.
			failure = &Failure{Provider: ProviderPrimary, Class: ClassEmptyContent}
		}
		primaryFailure = failure
		a.logger.WithFields(logging.Fields{
			"letter_id": req.LetterID,
			"provider":  failure.Provider,
			"class":     failure.Class,
		}).Warn("Primary provider failed, trying fallback")
	} else {
		primaryFailure = &Failure{Provider: ProviderPrimary, Class: ClassNotConfigured}
	}

	if !a.fallback.configured() {
		return Draft{}, &UnavailableError{
			Primary:  primaryFailure,
			Fallback: &Failure{Provider: ProviderFallback, Class: ClassNotConfigured},
		}
	}

	draft, failure := a.fallback.generate(ctx, req)
	if failure == nil {
		if len(draft.Content) >= a.cfg.MinContentLength {
			return draft, nil
		}
		failure = &Failure{Provider: ProviderFallback, Class: ClassEmptyContent}
	}

	a.logger.WithFields(logging.Fields{
		"letter_id": req.LetterID,
		"provider":  failure.Provider,
		"class":     failure.Class,
	}).Error("Fallback provider failed")

	return Draft{}, &UnavailableError{
		Primary:  primaryFailure,
		Fallback: failure,
	}
}
