package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toniwang/geyago/internal/config"
	"github.com/toniwang/geyago/pkg/errors"
	"github.com/toniwang/geyago/pkg/utils"
)

// countingServer returns an httptest server that counts requests and serves
// a fixed handler.
func countingServer(handler func(w http.ResponseWriter)) (*httptest.Server, *int32) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		handler(w)
	}))
	return srv, &count
}

func newFallbackFixture(t *testing.T) (*Manager, *config.Manager, map[string]*int32, func()) {
	t.Helper()

	failing, failingCount := countingServer(func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	working, workingCount := countingServer(func(w http.ResponseWriter) {
		fmt.Fprint(w, chatReply(`{"answer": "from backup"}`))
	})
	spare, spareCount := countingServer(func(w http.ResponseWriter) {
		fmt.Fprint(w, chatReply(`{"answer": "from spare"}`))
	})

	// Default "aaa" fails; fallback order after it is sorted: bbb, ccc.
	cfg := newTestConfig(t, map[string]*config.ProviderConfig{
		"aaa": openAIProvider(failing.URL),
		"bbb": openAIProvider(working.URL),
		"ccc": openAIProvider(spare.URL),
	}, "aaa")

	registry := NewRegistry(cfg, utils.NewNopLogger())
	require.NoError(t, registry.Initialize())

	dispatcher := NewDispatcher(cfg, &recordingSleeper{}, utils.NewNopLogger())
	manager := NewManager(registry, dispatcher, utils.NewNopLogger())

	counts := map[string]*int32{
		"aaa": failingCount,
		"bbb": workingCount,
		"ccc": spareCount,
	}
	closeAll := func() {
		failing.Close()
		working.Close()
		spare.Close()
	}
	return manager, cfg, counts, closeAll
}

func TestGenerateFallsBackToNextProvider(t *testing.T) {
	manager, _, counts, closeAll := newFallbackFixture(t)
	defer closeAll()

	result, err := manager.Generate(context.Background(), "q", "", "single", "", "")
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, "from backup", result.Answer)
	assert.Equal(t, "bbb", result.Origin)

	assert.Equal(t, int32(3), atomic.LoadInt32(counts["aaa"]), "default spends its retry budget first")
	assert.Equal(t, int32(1), atomic.LoadInt32(counts["bbb"]))
	assert.Equal(t, int32(0), atomic.LoadInt32(counts["ccc"]), "chain stops at the first completed dispatch")
}

func TestGenerateExplicitProviderNeverFallsBack(t *testing.T) {
	manager, _, counts, closeAll := newFallbackFixture(t)
	defer closeAll()

	_, err := manager.Generate(context.Background(), "q", "", "single", "aaa", "")
	require.Error(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(counts["aaa"]))
	assert.Equal(t, int32(0), atomic.LoadInt32(counts["bbb"]))
	assert.Equal(t, int32(0), atomic.LoadInt32(counts["ccc"]))
}

func TestGenerateUnknownExplicitProviderIsValidationError(t *testing.T) {
	manager, _, _, closeAll := newFallbackFixture(t)
	defer closeAll()

	_, err := manager.Generate(context.Background(), "q", "", "single", "nope", "")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestGenerateAllProvidersFail(t *testing.T) {
	failing, _ := countingServer(func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer failing.Close()

	cfg := newTestConfig(t, map[string]*config.ProviderConfig{
		"only": openAIProvider(failing.URL),
	}, "only")

	registry := NewRegistry(cfg, utils.NewNopLogger())
	require.NoError(t, registry.Initialize())
	manager := NewManager(registry, NewDispatcher(cfg, &recordingSleeper{}, utils.NewNopLogger()), utils.NewNopLogger())

	result, err := manager.Generate(context.Background(), "q", "", "single", "", "")
	require.NoError(t, err, "exhausting the chain is not an error")
	assert.False(t, result.Found)
}

func TestGenerateNoAnswerEndsChain(t *testing.T) {
	// The default completes its dispatch but the reply holds no answer; the
	// chain must not continue to the next provider.
	unhelpful, unhelpfulCount := countingServer(func(w http.ResponseWriter) {
		fmt.Fprint(w, chatReply("I have no idea."))
	})
	defer unhelpful.Close()
	helpful, helpfulCount := countingServer(func(w http.ResponseWriter) {
		fmt.Fprint(w, chatReply(`{"answer": "late"}`))
	})
	defer helpful.Close()

	cfg := newTestConfig(t, map[string]*config.ProviderConfig{
		"aaa": openAIProvider(unhelpful.URL),
		"bbb": openAIProvider(helpful.URL),
	}, "aaa")

	registry := NewRegistry(cfg, utils.NewNopLogger())
	require.NoError(t, registry.Initialize())
	manager := NewManager(registry, NewDispatcher(cfg, &recordingSleeper{}, utils.NewNopLogger()), utils.NewNopLogger())

	result, err := manager.Generate(context.Background(), "q", "", "single", "", "")
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.Equal(t, int32(1), atomic.LoadInt32(unhelpfulCount))
	assert.Equal(t, int32(0), atomic.LoadInt32(helpfulCount))
}

func TestGenerateSkipsUncallableDefault(t *testing.T) {
	helpful, helpfulCount := countingServer(func(w http.ResponseWriter) {
		fmt.Fprint(w, chatReply(`{"answer": "ok"}`))
	})
	defer helpful.Close()

	// The default has no API key, so its precondition fails and the chain
	// moves on without a network call.
	broken := openAIProvider("http://broken.local")
	broken.APIKey = ""

	cfg := newTestConfig(t, map[string]*config.ProviderConfig{
		"aaa": broken,
		"bbb": openAIProvider(helpful.URL),
	}, "aaa")

	registry := NewRegistry(cfg, utils.NewNopLogger())
	require.NoError(t, registry.Initialize())
	manager := NewManager(registry, NewDispatcher(cfg, &recordingSleeper{}, utils.NewNopLogger()), utils.NewNopLogger())

	result, err := manager.Generate(context.Background(), "q", "", "single", "", "")
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, "bbb", result.Origin)
	assert.Equal(t, int32(1), atomic.LoadInt32(helpfulCount))
}

func TestGenerateNoProvidersConfigured(t *testing.T) {
	cfg := newTestConfig(t, map[string]*config.ProviderConfig{}, "")
	registry := NewRegistry(cfg, utils.NewNopLogger())
	require.NoError(t, registry.Initialize())
	manager := NewManager(registry, NewDispatcher(cfg, &recordingSleeper{}, utils.NewNopLogger()), utils.NewNopLogger())

	_, err := manager.Generate(context.Background(), "q", "", "single", "", "")
	require.Error(t, err)
}
