package llm

import (
	"context"

	"github.com/pkg/errors"

	"chatline/internal/model"
)

// ImageNotice is shown when images are sent to a local model.
const ImageNotice = "Note: Local models do not support image input. Processing text only."

// LocalBackend generates with a model loaded into a local Engine.
type LocalBackend struct {
	engine  Engine
	modelID string
}

func NewLocalBackend(engine Engine, modelID string) *LocalBackend {
	return &LocalBackend{engine: engine, modelID: modelID}
}

func (b *LocalBackend) Label() string { return LocalLabel(b.modelID) }

// LocalLabel is the display label of a local model.
func LocalLabel(modelID string) string { return DisplayName(modelID) + " (Local)" }

func (b *LocalBackend) Stream(ctx context.Context, history []model.Message) (<-chan Fragment, error) {
	msgs := make([]EngineMessage, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, EngineMessage{Role: string(m.Role), Content: m.TextContent()})
	}

	chunks, err := b.engine.ChatStream(ctx, b.modelID, msgs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}
		return nil, errors.Wrap(err, "Local model error")
	}

	ch := make(chan Fragment)
	go func() {
		defer close(ch)

		send := func(f Fragment) bool {
			select {
			case ch <- f:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if hasImages(history) && !send(Fragment{Notice: ImageNotice}) {
			return
		}

		for chunk := range chunks {
			if ctx.Err() != nil {
				send(Fragment{Err: ErrCanceled})
				return
			}
			if chunk.Err != nil {
				send(Fragment{Err: errors.Wrap(chunk.Err, "Local model error")})
				return
			}
			if chunk.Content == "" {
				continue
			}
			if !send(Fragment{Text: chunk.Content}) {
				return
			}
		}
		if ctx.Err() != nil {
			send(Fragment{Err: ErrCanceled})
		}
	}()
	return ch, nil
}

// hasImages reports whether the newest user message carries images.
func hasImages(history []model.Message) bool {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleUser {
			return len(history[i].Images()) > 0
		}
	}
	return false
}
