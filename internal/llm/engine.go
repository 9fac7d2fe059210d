package llm

import (
	"context"
	"sort"
	"sync"
)

// Progress reports how far a model load has advanced.
type Progress struct {
	Status    string  `json:"status"`
	Completed int64   `json:"completed,omitempty"`
	Total     int64   `json:"total,omitempty"`
	Fraction  float64 `json:"fraction"`
}

// EngineMessage is a text-only chat message understood by a local engine.
type EngineMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EngineChunk is one piece of local engine output.
type EngineChunk struct {
	Content string
	Err     error
}

// Engine is a local inference runtime.
type Engine interface {
	// Load makes modelID available, reporting progress along the way.
	Load(ctx context.Context, modelID string, progress func(Progress)) error
	// ChatStream generates a reply. The channel is closed when generation ends.
	ChatStream(ctx context.Context, modelID string, messages []EngineMessage) (<-chan EngineChunk, error)
}

// EngineRegistry tracks which models have been loaded into the engine.
type EngineRegistry struct {
	engine Engine

	mu     sync.RWMutex
	loaded map[string]bool
}

func NewEngineRegistry(engine Engine) *EngineRegistry {
	return &EngineRegistry{engine: engine, loaded: make(map[string]bool)}
}

// Engine returns the underlying runtime.
func (r *EngineRegistry) Engine() Engine { return r.engine }

// Load loads modelID unless it is already loaded.
func (r *EngineRegistry) Load(ctx context.Context, modelID string, progress func(Progress)) error {
	if r.IsLoaded(modelID) {
		if progress != nil {
			progress(Progress{Status: "ready", Fraction: 1})
		}
		return nil
	}
	if err := r.engine.Load(ctx, modelID, progress); err != nil {
		return err
	}
	r.mu.Lock()
	r.loaded[modelID] = true
	r.mu.Unlock()
	return nil
}

func (r *EngineRegistry) IsLoaded(modelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded[modelID]
}

func (r *EngineRegistry) Unload(modelID string) {
	r.mu.Lock()
	delete(r.loaded, modelID)
	r.mu.Unlock()
}

// Loaded returns the loaded model ids in sorted order.
func (r *EngineRegistry) Loaded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.loaded))
	for id := range r.loaded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
