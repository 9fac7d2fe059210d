package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/internal/model"
)

type fakeEngine struct {
	chunks  []EngineChunk
	got     []EngineMessage
	loadErr error
	loads   int
	block   chan struct{}
}

func (e *fakeEngine) Load(_ context.Context, _ string, progress func(Progress)) error {
	e.loads++
	if e.loadErr != nil {
		return e.loadErr
	}
	if progress != nil {
		progress(Progress{Status: "success", Fraction: 1})
	}
	return nil
}

func (e *fakeEngine) ChatStream(ctx context.Context, _ string, msgs []EngineMessage) (<-chan EngineChunk, error) {
	e.got = msgs
	ch := make(chan EngineChunk)
	go func() {
		defer close(ch)
		for _, c := range e.chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
		if e.block != nil {
			select {
			case <-e.block:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

func TestLocalBackend_Stream(t *testing.T) {
	t.Run("Reduces history to text and streams", func(t *testing.T) {
		engine := &fakeEngine{chunks: []EngineChunk{{Content: "Hi"}, {Content: " there"}}}
		history := []model.Message{
			model.NewUserMessage("Hello", nil),
			{Role: model.RoleAssistant, Text: "Hey"},
			model.NewUserMessage("Again", nil),
		}

		b := NewLocalBackend(engine, "Llama-3.2-1B-Instruct-q4f16_1-MLC")
		ch, err := b.Stream(context.Background(), history)
		require.NoError(t, err)

		text, notices, streamErr := collect(t, ch)
		assert.NoError(t, streamErr)
		assert.Empty(t, notices)
		assert.Equal(t, "Hi there", text)
		assert.Equal(t, []EngineMessage{
			{Role: "user", Content: "Hello"},
			{Role: "assistant", Content: "Hey"},
			{Role: "user", Content: "Again"},
		}, engine.got)
		assert.Equal(t, "Llama 3.2 1B (Local)", b.Label())
	})

	t.Run("Emits image notice first", func(t *testing.T) {
		engine := &fakeEngine{chunks: []EngineChunk{{Content: "ok"}}}
		history := []model.Message{model.NewUserMessage("look", []string{"data:image/png;base64,AA"})}

		ch, err := NewLocalBackend(engine, "m").Stream(context.Background(), history)
		require.NoError(t, err)

		text, notices, streamErr := collect(t, ch)
		assert.NoError(t, streamErr)
		assert.Equal(t, []string{ImageNotice}, notices)
		assert.Equal(t, "ok", text)
		assert.Equal(t, "look", engine.got[0].Content)
	})

	t.Run("Wraps engine errors", func(t *testing.T) {
		engine := &fakeEngine{chunks: []EngineChunk{{Content: "x"}, {Err: errors.New("device lost")}}}

		ch, err := NewLocalBackend(engine, "m").Stream(context.Background(), []model.Message{model.NewUserMessage("q", nil)})
		require.NoError(t, err)

		_, _, streamErr := collect(t, ch)
		require.Error(t, streamErr)
		assert.Equal(t, "Local model error: device lost", streamErr.Error())
	})

	t.Run("Stops on cancellation", func(t *testing.T) {
		engine := &fakeEngine{chunks: []EngineChunk{{Content: "Par"}}, block: make(chan struct{})}
		ctx, cancel := context.WithCancel(context.Background())

		ch, err := NewLocalBackend(engine, "m").Stream(ctx, []model.Message{model.NewUserMessage("q", nil)})
		require.NoError(t, err)

		first := <-ch
		assert.Equal(t, "Par", first.Text)
		cancel()
		for range ch {
		}
	})
}

func TestEngineRegistry(t *testing.T) {
	engine := &fakeEngine{}
	reg := NewEngineRegistry(engine)
	ctx := context.Background()

	assert.False(t, reg.IsLoaded("a"))
	require.NoError(t, reg.Load(ctx, "b", nil))
	require.NoError(t, reg.Load(ctx, "a", nil))
	require.NoError(t, reg.Load(ctx, "a", nil))

	assert.Equal(t, 2, engine.loads)
	assert.Equal(t, []string{"a", "b"}, reg.Loaded())

	reg.Unload("a")
	assert.False(t, reg.IsLoaded("a"))

	engine.loadErr = errors.New("no space")
	assert.Error(t, reg.Load(ctx, "c", nil))
	assert.False(t, reg.IsLoaded("c"))
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"Llama-3.2-1B-Instruct-q4f16_1-MLC":    "Llama 3.2 1B",
		"gemma-2-2b-it-q4f16_1-MLC":            "gemma 2 2b",
		"Qwen2.5-0.5B-Chat-q4f32_1-MLC":        "Qwen2.5 0.5B",
		"Phi-3.5-mini-instruct-v0.1":           "Phi 3.5 mini v0.1",
		"TinyLlama-1.1B-Chat-v1.0-q4f16_1-MLC": "TinyLlama 1.1B v1.0",
		"llama3.2:1b":                          "llama3.2:1b",
	}
	for in, want := range tests {
		assert.Equal(t, want, DisplayName(in), in)
	}
}
