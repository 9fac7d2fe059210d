package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/internal/config"
	"chatline/internal/model"
	"chatline/internal/service"
)

// fakeCompletionAPI serves the model catalog and a streaming chat endpoint
// that answers every prompt with "Hi there".
func fakeCompletionAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[{"id":"openai/gpt-x","name":"GPT X"},{"id":"meta/llama","name":"Llama"}]}`)
	})
	mux.HandleFunc("/anon/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"Hi", " there"} {
			fmt.Fprintf(w, "data: {\"model\":%q,\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", req.Model, piece)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		AppPort:          8000,
		LogLevel:         "DEBUG",
		StoreDriver:      "memory",
		APIBaseURL:       apiURL,
		ModelsEndpoint:   "/models",
		ChatEndpoint:     "/web/chat/completions",
		AnonChatEndpoint: "/anon/chat/completions",
		DefaultPaidModel: "gpt-4",
	}
}

func TestNewApp(t *testing.T) {
	t.Run("SQLite store", func(t *testing.T) {
		cfg := testConfig("http://localhost:1")
		cfg.StoreDriver = "sqlite"
		cfg.DatabasePath = filepath.Join(t.TempDir(), "data", "chatline.db")

		app, err := NewApp(cfg)
		require.NoError(t, err)
		defer func() { require.NoError(t, app.Close()) }()

		assert.NotNil(t, app.Store.DB)
		assert.NotNil(t, app.Server)
		assert.Equal(t, ":8000", app.Server.Addr)
	})

	t.Run("Redis store", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig("http://localhost:1")
		cfg.StoreDriver = "redis"
		cfg.RedisAddr = mr.Addr()

		app, err := NewApp(cfg)
		require.NoError(t, err)
		defer func() { require.NoError(t, app.Close()) }()

		assert.NotNil(t, app.Store.Redis)
	})

	t.Run("Unreachable redis", func(t *testing.T) {
		cfg := testConfig("http://localhost:1")
		cfg.StoreDriver = "redis"
		cfg.RedisAddr = "127.0.0.1:1"

		_, err := NewApp(cfg)
		assert.ErrorContains(t, err, "failed to connect to redis")
	})

	t.Run("Unknown driver", func(t *testing.T) {
		cfg := testConfig("http://localhost:1")
		cfg.StoreDriver = "etcd"

		_, err := NewApp(cfg)
		assert.ErrorContains(t, err, "unknown store driver")
	})
}

func TestApp_Restore_CatalogUnavailable(t *testing.T) {
	app, err := NewApp(testConfig("http://127.0.0.1:1"))
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close()) }()

	require.NoError(t, app.Restore(context.Background()))
	assert.Empty(t, app.Models.Catalog().Models)
}

func TestApp_EndToEnd(t *testing.T) {
	remote := fakeCompletionAPI(t)
	app, err := NewApp(testConfig(remote.URL))
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close()) }()
	require.NoError(t, app.Restore(context.Background()))

	server := httptest.NewServer(app.Server.Handler)
	defer server.Close()
	base := server.URL + "/api/v1"

	// The catalog is sorted by name and its first entry is the default.
	var models struct {
		Catalog struct {
			Default string `json:"default"`
		} `json:"catalog"`
	}
	getJSON(t, base+"/models", &models)
	assert.Equal(t, "openai/gpt-x", models.Catalog.Default)

	resp, err := http.Post(base+"/messages", "application/json", strings.NewReader(`{"prompt":"Hello"}`))
	require.NoError(t, err)
	var result service.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, service.OutcomeCompleted, result.Outcome)
	assert.Equal(t, "Hi there", result.Text)

	require.NoError(t, app.Manager.Flush(context.Background()))

	var metas []model.ConversationMeta
	getJSON(t, base+"/conversations", &metas)
	require.Len(t, metas, 1)
	assert.Equal(t, "Hello", metas[0].Title)
	assert.Equal(t, "openai/gpt-x", metas[0].Model)
	assert.True(t, metas[0].Current)

	var state service.SessionState
	getJSON(t, base+"/state", &state)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, "gpt-x", state.Messages[1].ModelLabel)

	snap := app.Publisher.Snapshot()
	require.Len(t, snap.Bubbles, 2)
	assert.Equal(t, "<p>Hi there</p>\n", snap.Bubbles[1].HTML)

	health, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	require.NoError(t, health.Body.Close())
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func getJSON(t *testing.T, url string, v interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}
