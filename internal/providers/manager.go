package providers

import (
	"context"
	"fmt"

	"github.com/toniwang/geyago/pkg/errors"
	"github.com/toniwang/geyago/pkg/utils"
)

// Manager coordinates answer generation across providers. With no explicit
// provider it tries the default first, then every other provider in sorted
// order, one at a time. An explicit provider choice is honored exactly: its
// failure propagates and no fallback happens.
type Manager struct {
	registry   *Registry
	dispatcher *Dispatcher
	logger     *utils.Logger
}

// GenerateResult is the outcome of a generation round. Found is false when
// every candidate was exhausted or the reply carried no answer.
type GenerateResult struct {
	Answer string
	Origin string // provider id the answer came from
	Found  bool
}

// NewManager creates a generation coordinator
func NewManager(registry *Registry, dispatcher *Dispatcher, logger *utils.Logger) *Manager {
	return &Manager{
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Generate resolves a question through the provider chain. providerID and
// model may be empty; an unknown explicit providerID is a validation error.
func (m *Manager) Generate(ctx context.Context, question, options, questionType, providerID, model string) (*GenerateResult, error) {
	if providerID != "" {
		adapter, ok := m.registry.Get(providerID)
		if !ok {
			return nil, errors.NewValidation(fmt.Sprintf("unknown provider: %s", providerID))
		}
		result, err := m.dispatcher.Dispatch(ctx, adapter, question, options, questionType, model)
		if err != nil {
			return nil, err
		}
		return &GenerateResult{Answer: result.Answer, Origin: providerID, Found: result.Found}, nil
	}

	candidates := m.registry.Candidates()
	if len(candidates) == 0 {
		return nil, errors.New(errors.ErrProviderUnavailable, "no providers available")
	}

	for _, id := range candidates {
		adapter, ok := m.registry.Get(id)
		if !ok {
			continue
		}
		result, err := m.dispatcher.Dispatch(ctx, adapter, question, options, questionType, model)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			m.logger.WithProvider(id).WithError(err).Warn("Provider failed, trying next")
			continue
		}
		// A completed dispatch ends the chain even when no answer was found.
		return &GenerateResult{Answer: result.Answer, Origin: id, Found: result.Found}, nil
	}

	m.logger.WithQuestion(question).Warn("All providers failed")
	return &GenerateResult{Found: false}, nil
}

// Probe checks a provider end to end with a trivial question. Used by the
// management API to verify credentials and connectivity.
func (m *Manager) Probe(ctx context.Context, providerID string) (*GenerateResult, error) {
	return m.Generate(ctx, "1+1=?", "A.1 B.2 C.3", "single", providerID, "")
}
