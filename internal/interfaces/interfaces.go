package interfaces

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"chatline/internal/llm"
	"chatline/internal/model"
	"chatline/internal/render"
	"chatline/internal/service"
)

// ChatService is the conversation surface used by the HTTP layer.
type ChatService interface {
	Send(ctx context.Context, prompt string) (*service.Result, error)
	Retry(ctx context.Context) (*service.Result, error)
	Stop() bool
	Toggle(ctx context.Context) (bool, error)
	State() service.SessionState
	StageImages(images ...string)
	RemoveImage(i int) error
	List(ctx context.Context) ([]model.ConversationMeta, error)
	Get(ctx context.Context, id string) (*model.Conversation, error)
	Load(ctx context.Context, id string) error
	StartNew(ctx context.Context) error
	Delete(ctx context.Context, id string) error
}

// ModelService exposes the remote model catalog.
type ModelService interface {
	Catalog() *llm.Catalog
	Refresh(ctx context.Context) (*llm.Catalog, error)
	Select(id string) error
}

// LocalModelService manages local inference models.
type LocalModelService interface {
	List() []service.LocalModelStatus
	LoadModel(ctx context.Context, id string, progress func(llm.Progress)) error
	RemoveModel(ctx context.Context, id string) error
	SetMode(ctx context.Context, local bool) error
	SelectModel(ctx context.Context, id string, progress func(llm.Progress)) error
}

// RenderStream delivers render events to remote views.
type RenderStream interface {
	Snapshot() render.Snapshot
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}
