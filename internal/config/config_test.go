package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, doc map[string]interface{}) string {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	manager := NewManager(writeConfig(t, map[string]interface{}{}))
	require.NoError(t, manager.Load())

	cfg := manager.Get()
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "question_bank.db", cfg.Database.DSN)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 30, cfg.API.Timeout)
	assert.Equal(t, 3, cfg.API.MaxRetries)
	assert.Equal(t, 2, cfg.API.RetryDelay)
	assert.NotNil(t, cfg.Providers)
}

func TestLoadProviders(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"app": map[string]interface{}{"default_ai": "siliconflow"},
		"ai_providers": map[string]interface{}{
			"siliconflow": map[string]interface{}{
				"name":           "SiliconFlow",
				"enabled":        true,
				"api_key":        "sk-test",
				"base_url":       "https://api.siliconflow.cn/v1/chat/completions",
				"request_format": "openai_compatible",
				"models": map[string]interface{}{
					"default":   "deepseek-chat",
					"available": []string{"deepseek-chat", "qwen-turbo"},
				},
			},
			"local": map[string]interface{}{
				"name":           "Ollama",
				"enabled":        false,
				"base_url":       "http://localhost:11434/api/generate",
				"request_format": "ollama_custom",
			},
		},
	})

	manager := NewManager(path)
	require.NoError(t, manager.Load())

	provider, ok := manager.Provider("siliconflow")
	require.True(t, ok)
	assert.Equal(t, "SiliconFlow", provider.Name)
	assert.True(t, provider.Enabled)
	assert.Equal(t, "deepseek-chat", provider.Models.Default)
	assert.True(t, provider.HasModel("qwen-turbo"))
	assert.False(t, provider.HasModel("gpt-4"))

	assert.Equal(t, []string{"siliconflow"}, manager.EnabledProviderIDs())
	assert.Equal(t, "siliconflow", manager.Get().App.DefaultAI)

	_, ok = manager.Provider("missing")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = -1 }, true},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, true},
		{"zero retries", func(c *Config) { c.API.MaxRetries = 0 }, true},
		{"enabled provider without base url", func(c *Config) {
			c.Providers["p1"] = &ProviderConfig{Enabled: true}
		}, true},
		{"disabled provider without base url", func(c *Config) {
			c.Providers["p1"] = &ProviderConfig{Enabled: false}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager(writeConfig(t, map[string]interface{}{}))
			require.NoError(t, manager.Load())
			tt.mutate(manager.Get())

			err := manager.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"app": map[string]interface{}{"default_ai": "p1"},
		"ai_providers": map[string]interface{}{
			"p1": map[string]interface{}{
				"name":           "P1",
				"enabled":        true,
				"base_url":       "http://p1.local",
				"request_format": "openai_compatible",
				"models": map[string]interface{}{
					"default":   "m1",
					"available": []string{"m1"},
				},
			},
		},
	})

	manager := NewManager(path)
	require.NoError(t, manager.Load())

	// Mutate and persist, then reload through a fresh manager.
	cfg := manager.Get()
	cfg.App.DefaultAI = "p2"
	cfg.Providers["p1"].Models.Available = append(cfg.Providers["p1"].Models.Available, "m2")
	require.NoError(t, manager.Save())

	reloaded := NewManager(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, "p2", reloaded.Get().App.DefaultAI)

	provider, ok := reloaded.Provider("p1")
	require.True(t, ok)
	assert.Equal(t, []string{"m1", "m2"}, provider.Models.Available)
}

func TestCallTimeout(t *testing.T) {
	manager := NewManager(writeConfig(t, map[string]interface{}{
		"api_config": map[string]interface{}{"timeout": 7},
	}))
	require.NoError(t, manager.Load())
	assert.Equal(t, 7*time.Second, manager.CallTimeout())
}

func TestUpdateSwapsSnapshot(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"app": map[string]interface{}{"default_ai": "p1"},
		"ai_providers": map[string]interface{}{
			"p1": map[string]interface{}{
				"name":           "P1",
				"enabled":        true,
				"api_key":        "sk",
				"base_url":       "http://p1.local",
				"request_format": "openai_compatible",
				"models": map[string]interface{}{
					"default":   "m1",
					"available": []string{"m1"},
				},
			},
		},
	})
	manager := NewManager(path)
	require.NoError(t, manager.Load())

	before := manager.Get()
	require.NoError(t, manager.Update(func(cfg *Config) error {
		cfg.App.DefaultAI = "p2"
		cfg.Providers["p1"].Models.Available = append(cfg.Providers["p1"].Models.Available, "m2")
		return nil
	}))

	after := manager.Get()
	assert.NotSame(t, before, after, "a successful update publishes a new snapshot")
	assert.Equal(t, "p2", after.App.DefaultAI)
	assert.Equal(t, []string{"m1", "m2"}, after.Providers["p1"].Models.Available)

	// Holders of the old snapshot never observe the mutation.
	assert.Equal(t, "p1", before.App.DefaultAI)
	assert.Equal(t, []string{"m1"}, before.Providers["p1"].Models.Available)
}

func TestUpdateAbortsOnError(t *testing.T) {
	manager := NewManager(writeConfig(t, map[string]interface{}{
		"app": map[string]interface{}{"default_ai": "p1"},
	}))
	require.NoError(t, manager.Load())

	before := manager.Get()
	err := manager.Update(func(cfg *Config) error {
		cfg.App.DefaultAI = "rejected"
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	assert.Same(t, before, manager.Get(), "a rejected update applies nothing")
	assert.Equal(t, "p1", manager.Get().App.DefaultAI)
}
