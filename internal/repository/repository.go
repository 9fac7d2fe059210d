package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"chatline/internal/model"
)

// Storage keys. The conversation list and the current id live under two
// fixed keys so any KV backend can hold the whole client state.
const (
	KeyConversations       = "chatline_conversations"
	KeyCurrentConversation = "chatline_current_conversation"
	KeyEnabledLocalModels  = "chatline_enabled_local_models"
	KeyLocalMode           = "chatline_local_mode"
)

// KV is a string key-value store. Get returns ErrNotFound for missing keys.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// ConversationStore persists the conversation list and the current
// conversation marker on top of a KV backend.
type ConversationStore struct {
	kv KV
}

func NewConversationStore(kv KV) *ConversationStore {
	return &ConversationStore{kv: kv}
}

// List returns all stored conversations in stored order. A missing or
// unparseable list reads as empty.
func (s *ConversationStore) List(ctx context.Context) ([]model.Conversation, error) {
	raw, err := s.kv.Get(ctx, KeyConversations)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []model.Conversation{}, nil
		}
		return nil, err
	}

	convs := []model.Conversation{}
	if err := json.Unmarshal([]byte(raw), &convs); err != nil {
		slog.WarnContext(ctx, "Stored conversation list is corrupt, treating as empty", "error", err)
		return []model.Conversation{}, nil
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	return convs, nil
}

// SaveAll replaces the stored conversation list.
func (s *ConversationStore) SaveAll(ctx context.Context, convs []model.Conversation) error {
	if convs == nil {
		convs = []model.Conversation{}
	}
	return s.SetJSON(ctx, KeyConversations, convs)
}

// CurrentID returns the id of the current conversation, or "" when unset.
func (s *ConversationStore) CurrentID(ctx context.Context) (string, error) {
	id, err := s.kv.Get(ctx, KeyCurrentConversation)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return id, err
}

func (s *ConversationStore) SetCurrentID(ctx context.Context, id string) error {
	if id == "" {
		return s.ClearCurrentID(ctx)
	}
	return s.kv.Set(ctx, KeyCurrentConversation, id)
}

func (s *ConversationStore) ClearCurrentID(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyCurrentConversation)
}

// GetJSON decodes the value stored under key into v.
func (s *ConversationStore) GetJSON(ctx context.Context, key string, v any) error {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("could not decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func (s *ConversationStore) SetJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not encode %s: %w", key, err)
	}
	return s.kv.Set(ctx, key, string(data))
}
