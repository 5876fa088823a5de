package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/toniwang/geyago/internal/config"
	"github.com/toniwang/geyago/pkg/errors"
	"github.com/toniwang/geyago/pkg/utils"
)

// Registry holds the constructed adapters for all enabled providers and
// tracks which one is the default. Reads take the read lock; mutating
// operations persist the configuration document before rebuilding.
type Registry struct {
	mu          sync.RWMutex
	cfg         *config.Manager
	logger      *utils.Logger
	adapters    map[string]Adapter
	order       []string
	defaultID   string
	initialized bool
}

// Info describes one configured provider for the management API. Disabled
// and misconfigured providers appear here too; Callable distinguishes them.
type Info struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Enabled      bool     `json:"enabled"`
	Callable     bool     `json:"callable"`
	IsDefault    bool     `json:"is_default"`
	DefaultModel string   `json:"default_model"`
	Models       []string `json:"models"`
	Format       string   `json:"request_format"`
}

// NewRegistry creates an empty registry. Call Initialize before use.
func NewRegistry(cfg *config.Manager, logger *utils.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		adapters: make(map[string]Adapter),
	}
}

// Initialize constructs adapters for every enabled provider. Calling it
// again on an initialized registry is a no-op; use Reinitialize to rebuild.
func (r *Registry) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return nil
	}
	return r.initializeLocked()
}

// Reinitialize tears down the adapter set and rebuilds it from the current
// configuration. Used after model mutations and external config changes.
func (r *Registry) Reinitialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
	return r.initializeLocked()
}

// Clear discards all adapters; the next Initialize rebuilds them
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
}

func (r *Registry) clearLocked() {
	r.adapters = make(map[string]Adapter)
	r.order = nil
	r.defaultID = ""
	r.initialized = false
}

func (r *Registry) initializeLocked() error {
	ids := r.cfg.EnabledProviderIDs()
	for _, id := range ids {
		providerCfg, ok := r.cfg.Provider(id)
		if !ok {
			continue
		}
		adapter, err := New(id, providerCfg)
		if err != nil {
			// A provider with a bogus format must not take the service down.
			r.logger.WithProvider(id).WithError(err).Warn("Skipping provider")
			continue
		}
		r.adapters[id] = adapter
		r.order = append(r.order, id)
	}
	sort.Strings(r.order)

	configured := r.cfg.Get().App.DefaultAI
	if _, ok := r.adapters[configured]; ok {
		r.defaultID = configured
	} else if len(r.order) > 0 {
		r.defaultID = r.order[0]
		if configured != "" {
			r.logger.WithField("configured", configured).
				WithField("fallback", r.defaultID).
				Warn("Configured default provider not available, using first enabled")
		}
	}

	r.initialized = true
	r.logger.WithField("providers", r.order).
		WithField("default", r.defaultID).
		Info("Provider registry initialized")
	return nil
}

// Get returns the adapter for a provider id
func (r *Registry) Get(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[id]
	return adapter, ok
}

// DefaultID returns the current default provider id, or "" when no provider
// could be constructed.
func (r *Registry) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID
}

// IDs returns all constructed provider ids, sorted
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Candidates returns provider ids in dispatch order: the default first, then
// every other constructed provider sorted by id.
func (r *Registry) Candidates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultID == "" {
		out := make([]string, len(r.order))
		copy(out, r.order)
		return out
	}
	out := make([]string, 0, len(r.order))
	out = append(out, r.defaultID)
	for _, id := range r.order {
		if id != r.defaultID {
			out = append(out, id)
		}
	}
	return out
}

// SetDefault changes the default provider and persists the choice
func (r *Registry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[id]; !ok {
		return errors.NewNotFound(fmt.Sprintf("provider %s not found", id))
	}
	err := r.cfg.Update(func(c *config.Config) error {
		c.App.DefaultAI = id
		return nil
	})
	if err != nil {
		return errors.New(errors.ErrInternalServer, fmt.Sprintf("failed to persist default provider: %v", err))
	}
	r.defaultID = id
	return nil
}

// AddModel appends a model to a provider's available list. Adding a model
// that is already present succeeds without change. A provider with no
// default model adopts the new one. The mutation happens on a config copy
// swapped in atomically, so concurrent readers never observe a half-edited
// model list.
func (r *Registry) AddModel(id, model string) error {
	if model == "" {
		return errors.NewValidation("model name is required")
	}
	err := r.cfg.Update(func(c *config.Config) error {
		providerCfg, ok := c.Providers[id]
		if !ok {
			return errors.NewNotFound(fmt.Sprintf("provider %s not found", id))
		}
		if providerCfg.HasModel(model) {
			return nil
		}
		providerCfg.Models.Available = append(providerCfg.Models.Available, model)
		if providerCfg.Models.Default == "" {
			providerCfg.Models.Default = model
		}
		return nil
	})
	if err != nil {
		return err
	}
	return r.Reinitialize()
}

// RemoveModel deletes a model from a provider's available list. Removing a
// model that is not present succeeds without change. When the default model
// is removed the first remaining model becomes the default, or "" when none
// remain.
func (r *Registry) RemoveModel(id, model string) error {
	err := r.cfg.Update(func(c *config.Config) error {
		providerCfg, ok := c.Providers[id]
		if !ok {
			return errors.NewNotFound(fmt.Sprintf("provider %s not found", id))
		}
		if !providerCfg.HasModel(model) {
			return nil
		}

		remaining := make([]string, 0, len(providerCfg.Models.Available)-1)
		for _, m := range providerCfg.Models.Available {
			if m != model {
				remaining = append(remaining, m)
			}
		}
		providerCfg.Models.Available = remaining
		if providerCfg.Models.Default == model {
			if len(remaining) > 0 {
				providerCfg.Models.Default = remaining[0]
			} else {
				providerCfg.Models.Default = ""
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return r.Reinitialize()
}

// ModelsFor returns a copy of a provider's model list
func (r *Registry) ModelsFor(id string) (*config.ModelConfig, error) {
	providerCfg, ok := r.cfg.Provider(id)
	if !ok {
		return nil, errors.NewNotFound(fmt.Sprintf("provider %s not found", id))
	}
	models := config.ModelConfig{
		Default:   providerCfg.Models.Default,
		Available: append([]string(nil), providerCfg.Models.Available...),
	}
	return &models, nil
}

// Infos describes every configured provider, including disabled ones, in
// sorted id order.
func (r *Registry) Infos() []Info {
	cfg := r.cfg.Get()
	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		providerCfg := cfg.Providers[id]
		info := Info{
			ID:           id,
			Name:         providerCfg.Name,
			Enabled:      providerCfg.Enabled,
			IsDefault:    id == r.defaultID,
			DefaultModel: providerCfg.Models.Default,
			Models:       providerCfg.Models.Available,
			Format:       providerCfg.RequestFormat,
		}
		if adapter, ok := r.adapters[id]; ok {
			info.Callable = adapter.Validate() == nil
		}
		infos = append(infos, info)
	}
	return infos
}
