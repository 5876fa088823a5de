package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toniwang/geyago/internal/config"
	"github.com/toniwang/geyago/pkg/retry"
	"github.com/toniwang/geyago/pkg/utils"
)

// recordingSleeper records backoff delays without sleeping
type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

// newTestConfig writes a config document to a temp dir and loads it, so
// Save calls land in the temp dir instead of the working directory.
func newTestConfig(t *testing.T, providerCfgs map[string]*config.ProviderConfig, defaultAI string) *config.Manager {
	t.Helper()

	doc := map[string]interface{}{
		"app": map[string]interface{}{
			"default_ai": defaultAI,
		},
		"api_config": map[string]interface{}{
			"timeout":     5,
			"max_retries": 3,
			"retry_delay": 1,
		},
		"ai_providers": providerCfgs,
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0644))

	manager := config.NewManager(path)
	require.NoError(t, manager.Load())
	return manager
}

func openAIProvider(baseURL string) *config.ProviderConfig {
	return &config.ProviderConfig{
		Name:          "Test Provider",
		Enabled:       true,
		APIKey:        "sk-test",
		BaseURL:       baseURL,
		Models:        config.ModelConfig{Default: "test-model", Available: []string{"test-model"}},
		RequestFormat: "openai_compatible",
	}
}

func chatReply(content string) string {
	reply := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]interface{}{"content": content}},
		},
	}
	data, _ := json.Marshal(reply)
	return string(data)
}

func newTestDispatcher(t *testing.T, cfg *config.Manager) (*Dispatcher, *recordingSleeper) {
	t.Helper()
	sleeper := &recordingSleeper{}
	return NewDispatcher(cfg, sleeper, utils.NewNopLogger()), sleeper
}

func TestDispatchSuccess(t *testing.T) {
	var requests int32
	var gotModel string
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		gotAuth = r.Header.Get("Authorization")

		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotModel, _ = payload["model"].(string)

		fmt.Fprint(w, chatReply(`It's {"answer": "2"} thanks`))
	}))
	defer srv.Close()

	cfg := newTestConfig(t, map[string]*config.ProviderConfig{"p1": openAIProvider(srv.URL)}, "p1")
	dispatcher, sleeper := newTestDispatcher(t, cfg)

	adapter, err := New("p1", cfg.Get().Providers["p1"])
	require.NoError(t, err)

	result, err := dispatcher.Dispatch(context.Background(), adapter, "1+1=?", "A.1 B.2 C.3", "single", "")
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, "2", result.Answer)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "test-model", gotModel, "default model fills in when none requested")
}

func TestDispatchRetriesServerErrors(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := newTestConfig(t, map[string]*config.ProviderConfig{"p1": openAIProvider(srv.URL)}, "p1")
	dispatcher, sleeper := newTestDispatcher(t, cfg)

	adapter, err := New("p1", cfg.Get().Providers["p1"])
	require.NoError(t, err)

	_, err = dispatcher.Dispatch(context.Background(), adapter, "q", "", "", "")
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests), "budget of 3 attempts spent")
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, sleeper.delays)
	assert.Equal(t, retry.CategoryServer, retry.CategoryOf(err))
}

func TestDispatchFailsFastOnRateLimit(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := newTestConfig(t, map[string]*config.ProviderConfig{"p1": openAIProvider(srv.URL)}, "p1")
	dispatcher, sleeper := newTestDispatcher(t, cfg)

	adapter, err := New("p1", cfg.Get().Providers["p1"])
	require.NoError(t, err)

	_, err = dispatcher.Dispatch(context.Background(), adapter, "q", "", "", "")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, retry.CategoryRateLimit, retry.CategoryOf(err))
}

func TestDispatchFailsFastOnAuthError(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := newTestConfig(t, map[string]*config.ProviderConfig{"p1": openAIProvider(srv.URL)}, "p1")
	dispatcher, _ := newTestDispatcher(t, cfg)

	adapter, err := New("p1", cfg.Get().Providers["p1"])
	require.NoError(t, err)

	_, err = dispatcher.Dispatch(context.Background(), adapter, "q", "", "", "")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
	assert.Equal(t, retry.CategoryAuth, retry.CategoryOf(err))
}

func TestDispatchMalformedEnvelopeIsFatal(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		fmt.Fprint(w, `{"unexpected": true}`)
	}))
	defer srv.Close()

	cfg := newTestConfig(t, map[string]*config.ProviderConfig{"p1": openAIProvider(srv.URL)}, "p1")
	dispatcher, sleeper := newTestDispatcher(t, cfg)

	adapter, err := New("p1", cfg.Get().Providers["p1"])
	require.NoError(t, err)

	_, err = dispatcher.Dispatch(context.Background(), adapter, "q", "", "", "")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests), "a wrong shape does not improve with retries")
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, retry.CategoryEnvelope, retry.CategoryOf(err))
}

func TestDispatchNoAnswerIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatReply("I cannot answer that."))
	}))
	defer srv.Close()

	cfg := newTestConfig(t, map[string]*config.ProviderConfig{"p1": openAIProvider(srv.URL)}, "p1")
	dispatcher, _ := newTestDispatcher(t, cfg)

	adapter, err := New("p1", cfg.Get().Providers["p1"])
	require.NoError(t, err)

	result, err := dispatcher.Dispatch(context.Background(), adapter, "q", "", "", "")
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.Empty(t, result.Answer)
}

func TestDispatchSkipsNetworkOnPreconditionFailure(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer srv.Close()

	providerCfg := openAIProvider(srv.URL)
	providerCfg.APIKey = ""
	cfg := newTestConfig(t, map[string]*config.ProviderConfig{"p1": providerCfg}, "p1")
	dispatcher, _ := newTestDispatcher(t, cfg)

	adapter, err := New("p1", cfg.Get().Providers["p1"])
	require.NoError(t, err)

	_, err = dispatcher.Dispatch(context.Background(), adapter, "q", "", "", "")
	require.Error(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&requests), "no network call for an uncallable provider")
}

func TestDispatchExplicitModelOverridesDefault(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotModel, _ = payload["model"].(string)
		fmt.Fprint(w, chatReply(`{"answer": "ok"}`))
	}))
	defer srv.Close()

	cfg := newTestConfig(t, map[string]*config.ProviderConfig{"p1": openAIProvider(srv.URL)}, "p1")
	dispatcher, _ := newTestDispatcher(t, cfg)

	adapter, err := New("p1", cfg.Get().Providers["p1"])
	require.NoError(t, err)

	_, err = dispatcher.Dispatch(context.Background(), adapter, "q", "", "", "other-model")
	require.NoError(t, err)
	assert.Equal(t, "other-model", gotModel)
}
