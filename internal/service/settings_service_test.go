package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	app_errors "chatline/internal/errors"
	"chatline/internal/llm"
	"chatline/internal/model"
	"chatline/internal/repository"
	"chatline/internal/service"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Load(ctx context.Context, modelID string, progress func(llm.Progress)) error {
	args := m.Called(ctx, modelID, progress)
	return args.Error(0)
}

func (m *mockEngine) ChatStream(ctx context.Context, modelID string, messages []llm.EngineMessage) (<-chan llm.EngineChunk, error) {
	args := m.Called(ctx, modelID, messages)
	ch, _ := args.Get(0).(<-chan llm.EngineChunk)
	return ch, args.Error(1)
}

type localHarness struct {
	*harness
	engine   *mockEngine
	registry *llm.EngineRegistry
	local    *service.LocalModels
}

func setupLocalModels(t *testing.T, enabled bool) *localHarness {
	t.Helper()
	h := newHarness(t)
	engine := &mockEngine{}
	t.Cleanup(func() { engine.AssertExpectations(t) })
	registry := llm.NewEngineRegistry(engine)
	caps := model.Capabilities{LocalModeEnabled: enabled}
	local := service.NewLocalModels(h.store, registry, h.session, h.manager, caps)
	return &localHarness{harness: h, engine: engine, registry: registry, local: local}
}

const (
	llamaID = "Llama-3.2-1B-Instruct-q4f16_1-MLC"
	gemmaID = "gemma-2-2b-it-q4f16_1-MLC"
)

func TestLocalModels_LoadModel(t *testing.T) {
	ctx := context.Background()

	t.Run("First model switches to local mode", func(t *testing.T) {
		// ARRANGE
		l := setupLocalModels(t, true)
		l.engine.On("Load", mock.Anything, llamaID, mock.Anything).Return(nil).Once()

		// ACT
		err := l.local.LoadModel(ctx, llamaID, nil)

		// ASSERT
		require.NoError(t, err)
		sel := l.session.Selection()
		assert.True(t, sel.LocalMode)
		assert.Equal(t, llamaID, sel.ActiveLocal)
		assert.Equal(t, "local:"+llamaID, sel.StoredModel())

		var enabled []string
		require.NoError(t, l.store.GetJSON(ctx, repository.KeyEnabledLocalModels, &enabled))
		assert.Equal(t, []string{llamaID}, enabled)
		var mode bool
		require.NoError(t, l.store.GetJSON(ctx, repository.KeyLocalMode, &mode))
		assert.True(t, mode)

		assert.Equal(t, []service.LocalModelStatus{{ID: llamaID, Name: llm.DisplayName(llamaID), Loaded: true, Active: true}}, l.local.List())
	})

	t.Run("Second model keeps the active one", func(t *testing.T) {
		l := setupLocalModels(t, true)
		l.engine.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(nil).Twice()

		require.NoError(t, l.local.LoadModel(ctx, llamaID, nil))
		require.NoError(t, l.local.LoadModel(ctx, gemmaID, nil))

		assert.Equal(t, llamaID, l.session.Selection().ActiveLocal)
		assert.Len(t, l.local.List(), 2)
	})

	t.Run("Engine failure leaves the model disabled", func(t *testing.T) {
		l := setupLocalModels(t, true)
		l.engine.On("Load", mock.Anything, llamaID, mock.Anything).Return(errors.New("out of memory")).Once()

		err := l.local.LoadModel(ctx, llamaID, nil)

		assert.ErrorContains(t, err, "out of memory")
		assert.Empty(t, l.local.List())
		assert.False(t, l.session.Selection().LocalMode)
	})

	t.Run("Local mode disabled", func(t *testing.T) {
		l := setupLocalModels(t, false)

		err := l.local.LoadModel(ctx, llamaID, nil)

		assert.ErrorIs(t, err, app_errors.ErrPermission)
	})
}

func TestLocalModels_RemoveModel(t *testing.T) {
	ctx := context.Background()

	t.Run("Removing the last model returns to remote mode", func(t *testing.T) {
		l := setupLocalModels(t, true)
		l.engine.On("Load", mock.Anything, llamaID, mock.Anything).Return(nil).Once()
		require.NoError(t, l.local.LoadModel(ctx, llamaID, nil))

		require.NoError(t, l.local.RemoveModel(ctx, llamaID))

		sel := l.session.Selection()
		assert.False(t, sel.LocalMode)
		assert.Empty(t, sel.ActiveLocal)
		assert.False(t, l.registry.IsLoaded(llamaID))
		assert.Empty(t, l.local.List())
	})

	t.Run("Removing the active model deactivates it", func(t *testing.T) {
		l := setupLocalModels(t, true)
		l.engine.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(nil).Twice()
		require.NoError(t, l.local.LoadModel(ctx, llamaID, nil))
		require.NoError(t, l.local.LoadModel(ctx, gemmaID, nil))

		require.NoError(t, l.local.RemoveModel(ctx, llamaID))

		sel := l.session.Selection()
		assert.True(t, sel.LocalMode)
		assert.Empty(t, sel.ActiveLocal)
	})

	t.Run("Unknown model", func(t *testing.T) {
		l := setupLocalModels(t, true)

		assert.ErrorIs(t, l.local.RemoveModel(ctx, llamaID), app_errors.ErrNotFound)
	})
}

func TestLocalModels_SetMode(t *testing.T) {
	ctx := context.Background()

	t.Run("Switching saves a non-empty conversation", func(t *testing.T) {
		l := setupLocalModels(t, true)
		exchange(t, l.harness, "Hello", "Hi")
		l.engine.On("Load", mock.Anything, llamaID, mock.Anything).Return(nil).Once()
		require.NoError(t, l.local.LoadModel(ctx, llamaID, nil))

		convs, err := l.store.List(ctx)
		require.NoError(t, err)
		require.Len(t, convs, 1)
		assert.Equal(t, "local:"+llamaID, convs[0].Model)

		require.NoError(t, l.local.SetMode(ctx, false))

		convs, err = l.store.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, "openai/gpt-x", convs[0].Model)
		assert.Empty(t, l.session.Selection().ActiveLocal)
	})

	t.Run("Entering local mode activates the first enabled model", func(t *testing.T) {
		l := setupLocalModels(t, true)
		l.engine.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(nil).Twice()
		require.NoError(t, l.local.LoadModel(ctx, llamaID, nil))
		require.NoError(t, l.local.LoadModel(ctx, gemmaID, nil))
		require.NoError(t, l.local.SetMode(ctx, false))

		require.NoError(t, l.local.SetMode(ctx, true))

		assert.Equal(t, llamaID, l.session.Selection().ActiveLocal)
	})

	t.Run("No enabled models", func(t *testing.T) {
		l := setupLocalModels(t, true)

		assert.ErrorIs(t, l.local.SetMode(ctx, true), app_errors.ErrValidation)
	})
}

func TestLocalModels_SelectModel(t *testing.T) {
	ctx := context.Background()

	t.Run("Loads a restored model on first use", func(t *testing.T) {
		l := setupLocalModels(t, true)
		require.NoError(t, l.store.SetJSON(ctx, repository.KeyEnabledLocalModels, []string{llamaID, gemmaID}))
		require.NoError(t, l.store.SetJSON(ctx, repository.KeyLocalMode, true))
		require.NoError(t, l.local.Restore(ctx))
		require.Equal(t, llamaID, l.session.Selection().ActiveLocal)
		require.False(t, l.registry.IsLoaded(gemmaID))

		l.engine.On("Load", mock.Anything, gemmaID, mock.Anything).Return(nil).Once()
		require.NoError(t, l.local.SelectModel(ctx, gemmaID, nil))

		assert.Equal(t, gemmaID, l.session.Selection().ActiveLocal)
		assert.True(t, l.registry.IsLoaded(gemmaID))
	})

	t.Run("Empty id deactivates", func(t *testing.T) {
		l := setupLocalModels(t, true)
		l.engine.On("Load", mock.Anything, llamaID, mock.Anything).Return(nil).Once()
		require.NoError(t, l.local.LoadModel(ctx, llamaID, nil))

		require.NoError(t, l.local.SelectModel(ctx, "", nil))

		sel := l.session.Selection()
		assert.True(t, sel.LocalMode)
		assert.Empty(t, sel.ActiveLocal)
		assert.Equal(t, "openai/gpt-x", sel.StoredModel())
	})

	t.Run("Model not enabled", func(t *testing.T) {
		l := setupLocalModels(t, true)

		assert.ErrorIs(t, l.local.SelectModel(ctx, gemmaID, nil), app_errors.ErrNotFound)
	})
}

func TestDefaultBackends(t *testing.T) {
	registry := llm.NewEngineRegistry(&mockEngine{})
	remote := llm.RemoteOptions{BaseURL: "http://api.test", ChatEndpoint: "/chat", AnonChatEndpoint: "/anon/chat"}
	caps := model.Capabilities{LocalModeEnabled: true}
	factory := service.DefaultBackends(remote, registry, caps)

	t.Run("Remote when local mode is off", func(t *testing.T) {
		b, err := factory(service.Selection{ModelID: "openai/gpt-x"})
		require.NoError(t, err)
		assert.IsType(t, &llm.RemoteBackend{}, b)
		assert.Equal(t, "gpt-x", b.Label())
	})

	t.Run("Remote when the active local model is not loaded", func(t *testing.T) {
		b, err := factory(service.Selection{ModelID: "openai/gpt-x", LocalMode: true, ActiveLocal: llamaID})
		require.NoError(t, err)
		assert.IsType(t, &llm.RemoteBackend{}, b)
	})

	t.Run("No model selected", func(t *testing.T) {
		_, err := factory(service.Selection{})
		assert.Error(t, err)
	})
}
