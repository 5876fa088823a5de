package providers

import (
	"encoding/json"
	"fmt"

	"github.com/toniwang/geyago/internal/config"
)

// ollamaAdapter targets a locally hosted Ollama instance: a single prompt
// field instead of a message array, no credential, and a bare "response"
// text field in the reply.
type ollamaAdapter struct {
	baseAdapter
}

type ollamaEnvelope struct {
	Response *string `json:"response"`
}

func newOllamaAdapter(id string, cfg *config.ProviderConfig) Adapter {
	return &ollamaAdapter{baseAdapter{id: id, cfg: cfg}}
}

func (a *ollamaAdapter) Kind() Kind {
	return KindOllama
}

func (a *ollamaAdapter) BuildPayload(prompt, model string) map[string]interface{} {
	options := map[string]interface{}{
		"temperature": 0.1,
		"top_p":       0.9,
		"num_predict": 512,
	}
	// Configured parameters override the local-inference defaults.
	for key, value := range a.cfg.Parameters {
		options[key] = value
	}

	return map[string]interface{}{
		"model":   model,
		"prompt":  prompt,
		"stream":  false,
		"options": options,
	}
}

func (a *ollamaAdapter) BuildHeaders() map[string]string {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	for key, value := range a.cfg.Headers {
		headers[key] = value
	}
	return headers
}

func (a *ollamaAdapter) ParseEnvelope(body []byte) (string, error) {
	var envelope ollamaEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("failed to decode response envelope: %w", err)
	}
	if envelope.Response == nil {
		return "", fmt.Errorf("response envelope has no response field")
	}
	return *envelope.Response, nil
}

// Validate skips the credential check: local backends need no API key
func (a *ollamaAdapter) Validate() error {
	return a.validate(false)
}
