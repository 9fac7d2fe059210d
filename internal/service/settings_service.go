package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	app_errors "chatline/internal/errors"
	"chatline/internal/llm"
	"chatline/internal/model"
	"chatline/internal/repository"
)

// Saver persists the active conversation.
type Saver interface {
	Save(ctx context.Context) error
}

// LocalModelStatus describes one enabled local model.
type LocalModelStatus struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Loaded bool   `json:"loaded"`
	Active bool   `json:"active"`
}

// LocalModels manages the enabled local models and the local mode flag.
// Both are persisted in the conversation store.
type LocalModels struct {
	store    *repository.ConversationStore
	registry *llm.EngineRegistry
	session  *Session
	saver    Saver
	enabled  bool

	mu     sync.Mutex
	models []string
}

func NewLocalModels(store *repository.ConversationStore, registry *llm.EngineRegistry, session *Session, saver Saver, caps model.Capabilities) *LocalModels {
	return &LocalModels{
		store:    store,
		registry: registry,
		session:  session,
		saver:    saver,
		enabled:  caps.LocalModeEnabled && registry != nil,
	}
}

var errLocalDisabled = fmt.Errorf("%w: local mode is disabled", app_errors.ErrPermission)

// Restore reads the enabled models and the mode flag saved by a previous run.
// Models are not loaded until they are selected.
func (l *LocalModels) Restore(ctx context.Context) error {
	if !l.enabled {
		return nil
	}

	var models []string
	if err := l.store.GetJSON(ctx, repository.KeyEnabledLocalModels, &models); err != nil && !errors.Is(err, repository.ErrNotFound) {
		slog.WarnContext(ctx, "Could not read enabled local models", "error", err)
	}
	var localMode bool
	if err := l.store.GetJSON(ctx, repository.KeyLocalMode, &localMode); err != nil && !errors.Is(err, repository.ErrNotFound) {
		slog.WarnContext(ctx, "Could not read local mode flag", "error", err)
	}

	l.mu.Lock()
	l.models = models
	l.mu.Unlock()

	if localMode && len(models) > 0 {
		l.session.setLocal(true, models[0])
	}
	return nil
}

// List returns the enabled local models in the order they were added.
func (l *LocalModels) List() []LocalModelStatus {
	l.mu.Lock()
	models := slices.Clone(l.models)
	l.mu.Unlock()

	active := l.session.Selection().ActiveLocal
	out := make([]LocalModelStatus, 0, len(models))
	for _, id := range models {
		out = append(out, LocalModelStatus{
			ID:     id,
			Name:   llm.DisplayName(id),
			Loaded: l.registry != nil && l.registry.IsLoaded(id),
			Active: id == active,
		})
	}
	return out
}

// LoadModel loads id into the engine and enables it. Enabling the first
// model switches to local mode.
func (l *LocalModels) LoadModel(ctx context.Context, id string, progress func(llm.Progress)) error {
	if !l.enabled {
		return errLocalDisabled
	}
	if id == "" {
		return fmt.Errorf("%w: model id is required", app_errors.ErrValidation)
	}

	slog.InfoContext(ctx, "Loading local model", "model", id)
	if err := l.registry.Load(ctx, id, progress); err != nil {
		return fmt.Errorf("could not load local model %s: %w", id, err)
	}

	l.mu.Lock()
	if !slices.Contains(l.models, id) {
		l.models = append(l.models, id)
	}
	models := slices.Clone(l.models)
	l.mu.Unlock()

	if err := l.store.SetJSON(ctx, repository.KeyEnabledLocalModels, models); err != nil {
		return fmt.Errorf("could not persist enabled local models: %w", err)
	}

	if len(models) == 1 {
		return l.SetMode(ctx, true)
	}
	return nil
}

// RemoveModel unloads and disables id. Removing the last model switches back
// to remote mode.
func (l *LocalModels) RemoveModel(ctx context.Context, id string) error {
	if !l.enabled {
		return errLocalDisabled
	}

	l.mu.Lock()
	idx := slices.Index(l.models, id)
	if idx < 0 {
		l.mu.Unlock()
		return fmt.Errorf("%w: local model %q is not enabled", app_errors.ErrNotFound, id)
	}
	l.models = slices.Delete(l.models, idx, idx+1)
	models := slices.Clone(l.models)
	l.mu.Unlock()

	l.registry.Unload(id)
	if err := l.store.SetJSON(ctx, repository.KeyEnabledLocalModels, models); err != nil {
		return fmt.Errorf("could not persist enabled local models: %w", err)
	}

	sel := l.session.Selection()
	if sel.ActiveLocal == id {
		l.session.setLocal(sel.LocalMode, "")
	}
	if len(models) == 0 {
		return l.SetMode(ctx, false)
	}
	return nil
}

// SetMode switches between local and remote generation. Entering local mode
// activates the first enabled model when none is active. A non-empty
// conversation is saved so its stored model reflects the switch.
func (l *LocalModels) SetMode(ctx context.Context, local bool) error {
	if !l.enabled {
		return errLocalDisabled
	}

	l.mu.Lock()
	models := slices.Clone(l.models)
	l.mu.Unlock()

	if local && len(models) == 0 {
		return fmt.Errorf("%w: no local models enabled", app_errors.ErrValidation)
	}

	active := ""
	if local {
		active = l.session.Selection().ActiveLocal
		if active == "" {
			active = models[0]
		}
	}
	l.session.setLocal(local, active)

	if err := l.store.SetJSON(ctx, repository.KeyLocalMode, local); err != nil {
		return fmt.Errorf("could not persist local mode: %w", err)
	}

	if len(l.session.Messages()) > 0 {
		return l.saver.Save(ctx)
	}
	return nil
}

// SelectModel activates an enabled local model, loading it first when
// needed. An empty id deactivates local generation without leaving local
// mode.
func (l *LocalModels) SelectModel(ctx context.Context, id string, progress func(llm.Progress)) error {
	if !l.enabled {
		return errLocalDisabled
	}

	sel := l.session.Selection()
	if id == "" {
		l.session.setLocal(sel.LocalMode, "")
		return nil
	}

	l.mu.Lock()
	known := slices.Contains(l.models, id)
	l.mu.Unlock()
	if !known {
		return fmt.Errorf("%w: local model %q is not enabled", app_errors.ErrNotFound, id)
	}

	if !l.registry.IsLoaded(id) {
		if err := l.registry.Load(ctx, id, progress); err != nil {
			return fmt.Errorf("could not load local model %s: %w", id, err)
		}
	}
	l.session.setLocal(sel.LocalMode, id)
	return nil
}
