package providers

import (
	"encoding/json"
	"fmt"

	"github.com/toniwang/geyago/internal/config"
)

// openAIAdapter speaks the OpenAI-compatible chat-completions format, which
// most hosted backends (SiliconFlow, DeepSeek, Moonshot, ...) expose.
type openAIAdapter struct {
	baseAdapter
}

// chatEnvelope is the part of a chat-completions success reply we consume
type chatEnvelope struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func newOpenAIAdapter(id string, cfg *config.ProviderConfig) Adapter {
	return &openAIAdapter{baseAdapter{id: id, cfg: cfg}}
}

func (a *openAIAdapter) Kind() Kind {
	return KindOpenAICompatible
}

func (a *openAIAdapter) BuildPayload(prompt, model string) map[string]interface{} {
	payload := map[string]interface{}{
		"model": model,
		"messages": []map[string]interface{}{
			{"role": "user", "content": prompt},
		},
	}
	return a.mergeParameters(payload)
}

func (a *openAIAdapter) BuildHeaders() map[string]string {
	return a.bearerHeaders()
}

func (a *openAIAdapter) ParseEnvelope(body []byte) (string, error) {
	return parseChatEnvelope(body)
}

func (a *openAIAdapter) Validate() error {
	return a.validate(true)
}

// parseChatEnvelope extracts the assistant message from a chat-completions
// reply. Shared by the OpenAI-compatible and Ali adapters.
func parseChatEnvelope(body []byte) (string, error) {
	var envelope chatEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("failed to decode response envelope: %w", err)
	}
	if len(envelope.Choices) == 0 {
		return "", fmt.Errorf("response envelope has no choices")
	}
	return envelope.Choices[0].Message.Content, nil
}
