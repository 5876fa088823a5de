package providers

import (
	"encoding/json"
	"fmt"

	"github.com/toniwang/geyago/internal/config"
)

// geminiAdapter speaks the Google Gemini generateContent format: a contents
// array instead of chat messages, an API-key header instead of a bearer
// token, and a candidates envelope.
type geminiAdapter struct {
	baseAdapter
}

type geminiEnvelope struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func newGeminiAdapter(id string, cfg *config.ProviderConfig) Adapter {
	return &geminiAdapter{baseAdapter{id: id, cfg: cfg}}
}

func (a *geminiAdapter) Kind() Kind {
	return KindGemini
}

func (a *geminiAdapter) BuildPayload(prompt, model string) map[string]interface{} {
	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]interface{}{{"text": prompt}}},
		},
	}
	if len(a.cfg.Parameters) > 0 {
		generation := make(map[string]interface{}, len(a.cfg.Parameters))
		for key, value := range a.cfg.Parameters {
			generation[key] = value
		}
		payload["generationConfig"] = generation
	}
	return payload
}

func (a *geminiAdapter) BuildHeaders() map[string]string {
	headers := map[string]string{
		"Content-Type":   "application/json",
		"x-goog-api-key": a.cfg.APIKey,
	}
	for key, value := range a.cfg.Headers {
		headers[key] = value
	}
	return headers
}

func (a *geminiAdapter) ParseEnvelope(body []byte) (string, error) {
	var envelope geminiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("failed to decode response envelope: %w", err)
	}
	if len(envelope.Candidates) == 0 || len(envelope.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("response envelope has no candidates")
	}
	return envelope.Candidates[0].Content.Parts[0].Text, nil
}

func (a *geminiAdapter) Validate() error {
	return a.validate(true)
}
