// Package config provides configuration management for the question bank service
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the full configuration document. The registry writes it back to
// disk whenever a mutating operation succeeds, so every field carries both
// mapstructure tags (viper load) and json tags (save).
type Config struct {
	Server    ServerConfig               `mapstructure:"server" json:"server"`
	Database  DatabaseConfig             `mapstructure:"database" json:"database"`
	Redis     RedisConfig                `mapstructure:"redis" json:"redis"`
	Logging   LoggingConfig              `mapstructure:"logging" json:"logging"`
	App       AppConfig                  `mapstructure:"app" json:"app"`
	API       APIConfig                  `mapstructure:"api_config" json:"api_config"`
	Providers map[string]*ProviderConfig `mapstructure:"ai_providers" json:"ai_providers"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host  string `mapstructure:"host" json:"host"`
	Port  int    `mapstructure:"port" json:"port"`
	Debug bool   `mapstructure:"debug" json:"debug"`
}

// DatabaseConfig represents question bank storage configuration
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" json:"driver"` // sqlite or postgres
	DSN    string `mapstructure:"dsn" json:"dsn"`
}

// RedisConfig represents the optional hot answer cache. The relational store
// stays the source of truth; Redis only shortcuts exact-match lookups.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	Password string `mapstructure:"password" json:"password"`
	Database int    `mapstructure:"database" json:"database"`
	TTL      int    `mapstructure:"ttl_seconds" json:"ttl_seconds"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
	Output string `mapstructure:"output" json:"output"`
}

// AppConfig represents application-level settings
type AppConfig struct {
	Name      string `mapstructure:"name" json:"name"`
	Version   string `mapstructure:"version" json:"version"`
	DefaultAI string `mapstructure:"default_ai" json:"default_ai"`
	Homepage  string `mapstructure:"homepage" json:"homepage"`
}

// APIConfig represents shared outbound provider call settings
type APIConfig struct {
	Timeout    int `mapstructure:"timeout" json:"timeout"`         // seconds per attempt
	MaxRetries int `mapstructure:"max_retries" json:"max_retries"` // attempt budget per dispatch
	RetryDelay int `mapstructure:"retry_delay" json:"retry_delay"` // backoff seed, seconds
}

// ModelConfig represents a provider's model list
type ModelConfig struct {
	Default   string   `mapstructure:"default" json:"default"`
	Available []string `mapstructure:"available" json:"available"`
}

// ProviderConfig represents one AI backend
type ProviderConfig struct {
	Name          string                 `mapstructure:"name" json:"name"`
	Enabled       bool                   `mapstructure:"enabled" json:"enabled"`
	APIKey        string                 `mapstructure:"api_key" json:"api_key"`
	BaseURL       string                 `mapstructure:"base_url" json:"base_url"`
	Models        ModelConfig            `mapstructure:"models" json:"models"`
	RequestFormat string                 `mapstructure:"request_format" json:"request_format"`
	Headers       map[string]string      `mapstructure:"headers" json:"headers,omitempty"`
	Parameters    map[string]interface{} `mapstructure:"parameters" json:"parameters"`
	AuthType      string                 `mapstructure:"auth_type" json:"auth_type,omitempty"`
	SecretKey     string                 `mapstructure:"secret_key" json:"secret_key,omitempty"`
}

// HasModel reports whether name is in the available model list
func (p *ProviderConfig) HasModel(name string) bool {
	for _, m := range p.Models.Available {
		if m == name {
			return true
		}
	}
	return false
}

func (p *ProviderConfig) clone() *ProviderConfig {
	cp := *p
	cp.Models.Available = append([]string(nil), p.Models.Available...)
	if p.Headers != nil {
		cp.Headers = make(map[string]string, len(p.Headers))
		for k, v := range p.Headers {
			cp.Headers[k] = v
		}
	}
	if p.Parameters != nil {
		cp.Parameters = make(map[string]interface{}, len(p.Parameters))
		for k, v := range p.Parameters {
			cp.Parameters[k] = v
		}
	}
	return &cp
}

// Clone returns a deep copy of the configuration document
func (c *Config) Clone() *Config {
	cp := *c
	cp.Providers = make(map[string]*ProviderConfig, len(c.Providers))
	for id, provider := range c.Providers {
		cp.Providers[id] = provider.clone()
	}
	return &cp
}

// Manager handles configuration loading, validation and persistence
type Manager struct {
	mu     sync.RWMutex
	config *Config
	viper  *viper.Viper
	path   string
}

// NewManager creates a new configuration manager. path may be empty, in
// which case config.json is searched in the working directory and ./configs.
func NewManager(path string) *Manager {
	return &Manager{
		viper: viper.New(),
		path:  path,
	}
}

// Load loads configuration from file and environment
func (m *Manager) Load() error {
	m.setDefaults()

	if m.path != "" {
		m.viper.SetConfigFile(m.path)
	} else {
		m.viper.SetConfigName("config")
		m.viper.SetConfigType("json")
		m.viper.AddConfigPath(".")
		m.viper.AddConfigPath("./configs")
	}

	m.viper.AutomaticEnv()
	m.viper.SetEnvPrefix("GEYAGO")
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if os.IsNotExist(err) {
				// Missing file is OK, defaults and env vars apply.
			} else {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	config := &Config{}
	if err := m.viper.Unmarshal(config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if config.Providers == nil {
		config.Providers = make(map[string]*ProviderConfig)
	}

	m.mu.Lock()
	m.config = config
	m.mu.Unlock()
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	m.viper.SetDefault("server.host", "0.0.0.0")
	m.viper.SetDefault("server.port", 5000)
	m.viper.SetDefault("server.debug", false)

	m.viper.SetDefault("database.driver", "sqlite")
	m.viper.SetDefault("database.dsn", "question_bank.db")

	m.viper.SetDefault("redis.enabled", false)
	m.viper.SetDefault("redis.host", "localhost")
	m.viper.SetDefault("redis.port", 6379)
	m.viper.SetDefault("redis.password", "")
	m.viper.SetDefault("redis.database", 0)
	m.viper.SetDefault("redis.ttl_seconds", 3600)

	m.viper.SetDefault("logging.level", "info")
	m.viper.SetDefault("logging.format", "text")
	m.viper.SetDefault("logging.output", "stdout")

	m.viper.SetDefault("app.name", "Geyago Question Bank")
	m.viper.SetDefault("app.version", "1.0.0")
	m.viper.SetDefault("app.default_ai", "")
	m.viper.SetDefault("app.homepage", "https://toni.wang/")

	m.viper.SetDefault("api_config.timeout", 30)
	m.viper.SetDefault("api_config.max_retries", 3)
	m.viper.SetDefault("api_config.retry_delay", 2)
}

// Get returns the current configuration snapshot. Snapshots are never
// mutated after publication: all changes go through Update, which swaps in
// a fresh copy. Callers may read the returned document without locking.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Update applies mutate to a deep copy of the current document and swaps
// the copy in atomically, then persists it. When mutate returns an error
// the copy is discarded and the published document stays untouched, so a
// rejected update applies nothing. Concurrent readers keep the snapshot
// they already hold.
func (m *Manager) Update(mutate func(*Config) error) error {
	m.mu.Lock()
	if m.config == nil {
		m.mu.Unlock()
		return fmt.Errorf("configuration not loaded")
	}
	draft := m.config.Clone()
	if err := mutate(draft); err != nil {
		m.mu.Unlock()
		return err
	}
	m.config = draft
	m.mu.Unlock()

	return m.Save()
}

// Validate validates the loaded configuration
func (m *Manager) Validate() error {
	cfg := m.Get()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" && cfg.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
	if cfg.API.MaxRetries < 1 {
		return fmt.Errorf("api_config.max_retries must be at least 1")
	}
	for id, provider := range cfg.Providers {
		if provider.Enabled && provider.BaseURL == "" {
			return fmt.Errorf("provider %s is enabled but has no base_url", id)
		}
	}
	return nil
}

// Save writes the current configuration document back to disk. Registry
// mutations (set-default, add/remove-model, enable/disable) call this after
// every successful change.
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	path := m.viper.ConfigFileUsed()
	if path == "" {
		path = m.path
	}
	if path == "" {
		path = "config.json"
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Watch starts watching the config file for external changes
func (m *Manager) Watch(callback func(*Config)) {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		config := &Config{}
		if err := m.viper.Unmarshal(config); err != nil {
			return
		}
		if config.Providers == nil {
			config.Providers = make(map[string]*ProviderConfig)
		}
		m.mu.Lock()
		m.config = config
		m.mu.Unlock()
		if callback != nil {
			callback(config)
		}
	})
}

// Provider returns the configuration for one provider id
func (m *Manager) Provider(id string) (*ProviderConfig, bool) {
	cfg := m.Get()
	if cfg == nil {
		return nil, false
	}
	provider, ok := cfg.Providers[id]
	return provider, ok
}

// EnabledProviderIDs returns the ids of all enabled providers, sorted so
// that iteration order is deterministic across restarts.
func (m *Manager) EnabledProviderIDs() []string {
	cfg := m.Get()
	if cfg == nil {
		return nil
	}
	ids := make([]string, 0, len(cfg.Providers))
	for id, provider := range cfg.Providers {
		if provider.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// CallTimeout returns the per-attempt provider call timeout
func (m *Manager) CallTimeout() time.Duration {
	cfg := m.Get()
	if cfg == nil || cfg.API.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(cfg.API.Timeout) * time.Second
}
