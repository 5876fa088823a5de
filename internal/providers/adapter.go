// Package providers implements the AI backend adapters, the dispatch logic
// with retries and the provider registry for the question bank service.
package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/toniwang/geyago/internal/config"
	"github.com/toniwang/geyago/pkg/errors"
)

// Kind discriminates which request/response shape a provider uses
type Kind string

const (
	KindOpenAICompatible Kind = "openai_compatible"
	KindAli              Kind = "ali_custom"
	KindGemini           Kind = "gemini_custom"
	KindOllama           Kind = "ollama_custom"
)

// Adapter turns a question into a backend-specific request and a
// backend-specific response into raw reply text. Implementations are
// stateless over immutable provider configuration; all mutation goes
// through the registry.
type Adapter interface {
	// ID returns the provider id this adapter was built for
	ID() string
	// Name returns the provider display name
	Name() string
	// Kind returns the adapter kind
	Kind() Kind
	// DefaultModel returns the configured default model name
	DefaultModel() string
	// Endpoint returns the URL requests are posted to
	Endpoint() string

	// BuildPrompt produces the instruction text sent to the model. The
	// prompt contract is load-bearing: it requests a strict single-field
	// JSON object that the answer parser assumes.
	BuildPrompt(question, options, questionType string) string
	// BuildPayload merges prompt, model and adapter-specific shape with the
	// provider's configured parameters (configured parameters win)
	BuildPayload(prompt, model string) map[string]interface{}
	// BuildHeaders returns the request headers, configured extras last
	BuildHeaders() map[string]string
	// ParseEnvelope extracts the raw reply text from the backend's
	// success envelope
	ParseEnvelope(body []byte) (string, error)

	// Validate reports whether the provider is callable at all. A failing
	// provider is excluded from dispatch without a network call.
	Validate() error
}

// constructor builds an adapter for one provider id and config
type constructor func(id string, cfg *config.ProviderConfig) Adapter

var constructors = map[Kind]constructor{
	KindOpenAICompatible: newOpenAIAdapter,
	KindAli:              newAliAdapter,
	KindGemini:           newGeminiAdapter,
	KindOllama:           newOllamaAdapter,
}

// New creates an adapter for the provider's configured request format
func New(id string, cfg *config.ProviderConfig) (Adapter, error) {
	build, ok := constructors[Kind(cfg.RequestFormat)]
	if !ok {
		return nil, fmt.Errorf("unsupported request format: %s", cfg.RequestFormat)
	}
	return build(id, cfg), nil
}

// SupportedFormats returns the known adapter kinds, sorted
func SupportedFormats() []string {
	formats := make([]string, 0, len(constructors))
	for kind := range constructors {
		formats = append(formats, string(kind))
	}
	sort.Strings(formats)
	return formats
}

// baseAdapter carries the behaviour shared across adapter kinds
type baseAdapter struct {
	id  string
	cfg *config.ProviderConfig
}

func (b *baseAdapter) ID() string {
	return b.id
}

func (b *baseAdapter) Name() string {
	return b.cfg.Name
}

func (b *baseAdapter) DefaultModel() string {
	return b.cfg.Models.Default
}

func (b *baseAdapter) Endpoint() string {
	return b.cfg.BaseURL
}

// BuildPrompt renders the shared prompt contract: strict {"answer": "..."}
// JSON, multi-select answers joined with "###", literal true/false words for
// judgement questions, no conversational filler.
func (b *baseAdapter) BuildPrompt(question, options, questionType string) string {
	var sb strings.Builder
	sb.WriteString(`You are a question bank answering function. Answer the question from the given options. ` +
		`For choice questions return the option content itself, never the option letter. ` +
		`For multi-select questions join the answers with "###". ` +
		`For judgement questions return the literal word "true" or "false", nothing else. ` +
		`For fill-in-the-blank questions return the content, joining multiple blanks with "###". ` +
		`Reply strictly in the format {"answer": "your_answer_string"}. ` +
		`Your reply must be that JSON object only: no acknowledgements, no explanations, no filler.`)

	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	if options != "" {
		sb.WriteString("\nOptions: ")
		sb.WriteString(options)
	}
	if questionType != "" {
		sb.WriteString("\nType: ")
		sb.WriteString(questionType)
	}
	return sb.String()
}

// validate is the precondition shared by all adapters: enabled and reachable.
// requireKey is false for local backends.
func (b *baseAdapter) validate(requireKey bool) error {
	if !b.cfg.Enabled {
		return errors.New(errors.ErrProviderUnavailable, fmt.Sprintf("provider %s is disabled", b.id))
	}
	if b.cfg.BaseURL == "" {
		return errors.New(errors.ErrProviderUnavailable, fmt.Sprintf("provider %s has no base URL", b.id))
	}
	if requireKey && strings.TrimSpace(b.cfg.APIKey) == "" {
		return errors.New(errors.ErrProviderUnavailable, fmt.Sprintf("provider %s has no API key", b.id))
	}
	return nil
}

// mergeParameters copies the provider's configured request parameters over
// the adapter-built payload; configured values take precedence on collision.
func (b *baseAdapter) mergeParameters(payload map[string]interface{}) map[string]interface{} {
	for key, value := range b.cfg.Parameters {
		payload[key] = value
	}
	return payload
}

// bearerHeaders builds the common header set: content-type, a bearer
// credential, then configured extras last so they win.
func (b *baseAdapter) bearerHeaders() map[string]string {
	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + b.cfg.APIKey,
	}
	for key, value := range b.cfg.Headers {
		headers[key] = value
	}
	return headers
}
