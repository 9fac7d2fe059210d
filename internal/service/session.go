package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/huandu/go-clone"

	app_errors "chatline/internal/errors"
	"chatline/internal/model"
)

var (
	// ErrGenerationActive rejects operations while a response is streaming.
	ErrGenerationActive = fmt.Errorf("%w: a response is already being generated", app_errors.ErrConflict)
	// ErrEmptyPrompt rejects a send without text.
	ErrEmptyPrompt = fmt.Errorf("%w: prompt must not be empty", app_errors.ErrValidation)
)

// RetrySlot remembers the last failed exchange so it can be regenerated in
// place.
type RetrySlot struct {
	Prompt   string `json:"prompt"`
	TargetID string `json:"target_id"`
}

// Selection describes which backend the next generation should use.
type Selection struct {
	ModelID     string
	LocalMode   bool
	ActiveLocal string
}

// StoredModel returns the persisted model identifier, "local:<id>" in local
// mode.
func (s Selection) StoredModel() string {
	if s.LocalMode && s.ActiveLocal != "" {
		return localModelPrefix + s.ActiveLocal
	}
	return s.ModelID
}

const localModelPrefix = "local:"

// Session is the in-memory state of the active conversation: the message
// log, the generation flag and everything selected by the user.
type Session struct {
	mu sync.Mutex

	generating bool
	cancel     context.CancelFunc
	retry      *RetrySlot

	messages  []model.Message
	images    []string
	currentID string

	modelID     string
	localMode   bool
	activeLocal string
}

func NewSession() *Session {
	return &Session{}
}

// SessionState is a point-in-time copy of a Session.
type SessionState struct {
	Generating     bool            `json:"generating"`
	Retry          *RetrySlot      `json:"retry,omitempty"`
	Messages       []model.Message `json:"messages"`
	StagedImages   []string        `json:"staged_images"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Model          string          `json:"model"`
	LocalMode      bool            `json:"local_mode"`
	ActiveLocal    string          `json:"active_local_model,omitempty"`
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SessionState{
		Generating:     s.generating,
		Messages:       cloneMessages(s.messages),
		StagedImages:   append([]string{}, s.images...),
		ConversationID: s.currentID,
		Model:          s.modelID,
		LocalMode:      s.localMode,
		ActiveLocal:    s.activeLocal,
	}
	if s.retry != nil {
		r := *s.retry
		st.Retry = &r
	}
	return st
}

func (s *Session) Generating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating
}

// Retry returns the pending retry slot, if any.
func (s *Session) Retry() (RetrySlot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retry == nil {
		return RetrySlot{}, false
	}
	return *s.retry, true
}

// Messages returns a deep copy of the message log.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.messages)
}

func (s *Session) Selection() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectionLocked()
}

func (s *Session) selectionLocked() Selection {
	return Selection{ModelID: s.modelID, LocalMode: s.localMode, ActiveLocal: s.activeLocal}
}

func (s *Session) SetModel(id string) {
	s.mu.Lock()
	s.modelID = id
	s.mu.Unlock()
}

func (s *Session) setLocal(mode bool, active string) {
	s.mu.Lock()
	s.localMode = mode
	s.activeLocal = active
	s.mu.Unlock()
}

// Cancel aborts the active generation. It reports whether one was running.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.generating || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// StageImages attaches images to the next message.
func (s *Session) StageImages(images ...string) {
	s.mu.Lock()
	s.images = append(s.images, images...)
	s.mu.Unlock()
}

// RemoveImage drops the staged image at index i.
func (s *Session) RemoveImage(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.images) {
		return fmt.Errorf("%w: no staged image at index %d", app_errors.ErrNotFound, i)
	}
	s.images = append(s.images[:i], s.images[i+1:]...)
	return nil
}

func (s *Session) StagedImages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.images...)
}

func cloneMessages(msgs []model.Message) []model.Message {
	if msgs == nil {
		return []model.Message{}
	}
	return clone.Clone(msgs).([]model.Message)
}
