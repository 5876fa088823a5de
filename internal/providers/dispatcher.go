package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/toniwang/geyago/internal/config"
	"github.com/toniwang/geyago/pkg/answer"
	"github.com/toniwang/geyago/pkg/retry"
	"github.com/toniwang/geyago/pkg/utils"
)

// Dispatcher executes one adapter's HTTP call with bounded retries and
// exponential backoff. One dispatch is strictly sequential and blocks the
// calling goroutine for the duration of the exchange and any retry sleeps.
// Timeout and retry settings are read from the live configuration on every
// dispatch so api_config changes apply without a restart.
type Dispatcher struct {
	client  *http.Client
	cfg     *config.Manager
	sleeper retry.Sleeper
	logger  *utils.Logger
}

// DispatchResult is the outcome of one successful HTTP exchange. Found is
// false when the backend replied but no answer could be salvaged from the
// reply text; that is not a dispatch failure and triggers no fallback.
type DispatchResult struct {
	Answer string
	Found  bool
}

// NewDispatcher creates a dispatcher. sleeper may be nil for the real clock.
func NewDispatcher(cfg *config.Manager, sleeper retry.Sleeper, logger *utils.Logger) *Dispatcher {
	return &Dispatcher{
		client:  &http.Client{},
		cfg:     cfg,
		sleeper: sleeper,
		logger:  logger,
	}
}

func (d *Dispatcher) policy() retry.Policy {
	apiCfg := d.cfg.Get().API
	policy := retry.Policy{
		MaxAttempts:  apiCfg.MaxRetries,
		InitialDelay: time.Duration(apiCfg.RetryDelay) * time.Second,
	}
	return policy
}

// Dispatch resolves a question against one provider. It validates the
// provider's precondition (no network call when the provider is not
// callable), builds the request through the adapter, performs the exchange
// under the retry policy and repairs the reply into an answer string.
func (d *Dispatcher) Dispatch(ctx context.Context, adapter Adapter, question, options, questionType, model string) (*DispatchResult, error) {
	if err := adapter.Validate(); err != nil {
		return nil, err
	}

	if model == "" {
		model = adapter.DefaultModel()
	}

	prompt := adapter.BuildPrompt(question, options, questionType)
	payload := adapter.BuildPayload(prompt, model)
	headers := adapter.BuildHeaders()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, retry.NewProviderError(adapter.ID(), retry.CategoryClient,
			fmt.Sprintf("failed to marshal payload: %v", err), false)
	}

	runner := retry.NewRunner(d.policy(), d.sleeper, d.logger)

	var raw string
	err = runner.Do(ctx, func(ctx context.Context, attempt int) error {
		text, attemptErr := d.exchange(ctx, adapter, headers, body, attempt)
		if attemptErr != nil {
			return attemptErr
		}
		raw = text
		return nil
	})
	if err != nil {
		return nil, err
	}

	extracted, found := answer.Extract(raw)
	if !found {
		d.logger.WithProvider(adapter.ID()).
			WithField("reply", utils.Truncate(raw, 200)).
			Warn("No answer found in provider reply")
		return &DispatchResult{Found: false}, nil
	}

	return &DispatchResult{Answer: extracted, Found: true}, nil
}

// exchange performs a single POST attempt and classifies its failure modes
func (d *Dispatcher) exchange(ctx context.Context, adapter Adapter, headers map[string]string, body []byte, attempt int) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, adapter.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", retry.NewProviderError(adapter.ID(), retry.CategoryClient,
			fmt.Sprintf("failed to create request: %v", err), false)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	d.logger.WithProvider(adapter.ID()).
		WithField("attempt", attempt).
		WithField("url", req.URL.String()).
		Debug("Sending provider request")

	start := time.Now()
	resp, err := d.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		classified := retry.ClassifyTransport(adapter.ID(), err)
		d.logger.WithProvider(adapter.ID()).
			WithField("duration_ms", duration.Milliseconds()).
			WithError(err).
			Warn("Provider request failed")
		return "", classified
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", retry.NewProviderError(adapter.ID(), retry.CategoryNetwork,
			fmt.Sprintf("failed to read response: %v", err), true)
	}

	d.logger.WithProvider(adapter.ID()).
		WithField("status_code", resp.StatusCode).
		WithField("duration_ms", duration.Milliseconds()).
		Debug("Provider response received")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		classified := retry.ClassifyStatus(adapter.ID(), resp.StatusCode, utils.Truncate(string(respBody), 200))
		d.logger.WithProvider(adapter.ID()).
			WithField("status_code", resp.StatusCode).
			WithField("retryable", classified.Retryable).
			Warn("Provider returned error status")
		return "", classified
	}

	text, err := adapter.ParseEnvelope(respBody)
	if err != nil {
		// The shape is wrong regardless of attempt count.
		return "", retry.NewProviderError(adapter.ID(), retry.CategoryEnvelope, err.Error(), false)
	}
	return text, nil
}
