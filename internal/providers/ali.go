package providers

import (
	"github.com/toniwang/geyago/internal/config"
)

// aliAdapter targets the Ali Bailian (Tongyi Qianwen) platform. Its
// compatible-mode endpoint uses the chat-completions envelope, but the
// platform is configured with its own base URL, parameter defaults and the
// occasional extra header, so it stays a distinct adapter kind.
type aliAdapter struct {
	baseAdapter
}

func newAliAdapter(id string, cfg *config.ProviderConfig) Adapter {
	return &aliAdapter{baseAdapter{id: id, cfg: cfg}}
}

func (a *aliAdapter) Kind() Kind {
	return KindAli
}

func (a *aliAdapter) BuildPayload(prompt, model string) map[string]interface{} {
	payload := map[string]interface{}{
		"model": model,
		"messages": []map[string]interface{}{
			{"role": "user", "content": prompt},
		},
	}
	return a.mergeParameters(payload)
}

func (a *aliAdapter) BuildHeaders() map[string]string {
	return a.bearerHeaders()
}

func (a *aliAdapter) ParseEnvelope(body []byte) (string, error) {
	return parseChatEnvelope(body)
}

func (a *aliAdapter) Validate() error {
	return a.validate(true)
}
