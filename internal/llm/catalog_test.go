package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogJSON = `{"data":[
	{"id":"zeta/free","name":"Zeta","pricing":{"prompt":"0","completion":"0"}},
	{"id":"openai/gpt-4","name":"GPT-4","pricing":{"prompt":"0.00003","completion":"0.00006"}},
	{"id":"alpha/free","name":"alpha","pricing":{"prompt":0,"completion":0}}
]}`

func catalogServer(t *testing.T, frontierStatus int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			_, _ = w.Write([]byte(catalogJSON))
		case "/frontier_models":
			w.WriteHeader(frontierStatus)
			_, _ = w.Write([]byte(`{"frontier_models":["openai/gpt-4"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestCatalogClient_Fetch(t *testing.T) {
	server := catalogServer(t, http.StatusOK)
	defer server.Close()

	opts := CatalogOptions{
		BaseURL:                server.URL,
		ModelsEndpoint:         "/models",
		FrontierModelsEndpoint: "/frontier_models",
		DefaultFreeModel:       "zeta/free",
		DefaultPaidModel:       "openai/gpt-4",
	}
	client := NewCatalogClient(opts)

	t.Run("Without frontier access hides paid models", func(t *testing.T) {
		cat, err := client.Fetch(context.Background(), false)
		require.NoError(t, err)

		ids := make([]string, 0, len(cat.Models))
		for _, m := range cat.Models {
			ids = append(ids, m.ID)
		}
		assert.Equal(t, []string{"alpha/free", "zeta/free"}, ids)
		assert.Equal(t, "zeta/free", cat.Default)
	})

	t.Run("With frontier access uses the paid default", func(t *testing.T) {
		cat, err := client.Fetch(context.Background(), true)
		require.NoError(t, err)

		require.Len(t, cat.Models, 3)
		assert.Equal(t, "GPT-4", cat.Models[1].Name)
		assert.True(t, cat.Models[1].Frontier)
		assert.Equal(t, "openai/gpt-4", cat.Default)
	})
}

func TestCatalogClient_FrontierFailureIgnored(t *testing.T) {
	server := catalogServer(t, http.StatusInternalServerError)
	defer server.Close()

	client := NewCatalogClient(CatalogOptions{
		BaseURL:                server.URL,
		ModelsEndpoint:         "/models",
		FrontierModelsEndpoint: "/frontier_models",
	})
	cat, err := client.Fetch(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, "alpha/free", cat.Default)
}

func TestCatalogClient_ModelsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewCatalogClient(CatalogOptions{BaseURL: server.URL, ModelsEndpoint: "/models"})
	_, err := client.Fetch(context.Background(), false)

	assert.ErrorContains(t, err, "failed to fetch models")
}

func TestBuildCatalog_Defaults(t *testing.T) {
	models := []CatalogModel{{ID: "b", Name: "B"}, {ID: "a", Name: "A"}}

	cat := buildCatalog(models, nil, true, "", "missing")
	assert.Equal(t, "a", cat.Default)

	cat = buildCatalog(models, nil, false, "b", "")
	assert.Equal(t, "b", cat.Default)

	empty := buildCatalog(nil, nil, false, "", "")
	assert.Empty(t, empty.Default)
	assert.NotNil(t, empty.Models)
}
