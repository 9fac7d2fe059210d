package service

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	app_errors "chatline/internal/errors"
	"chatline/internal/llm"
	"chatline/internal/model"
	"chatline/internal/render"
	"chatline/internal/repository"
)

const (
	titleMaxRunes = 40
	defaultTitle  = "New conversation"
)

// ErrNothingToRetry is returned by Retry when no exchange failed.
var ErrNothingToRetry = fmt.Errorf("%w: nothing to retry", app_errors.ErrNotFound)

// Manager owns the conversation lifecycle: it sends messages through the
// Coordinator and persists, restores and deletes conversations.
type Manager struct {
	store     *repository.ConversationStore
	session   *Session
	coord     *Coordinator
	target    render.Target
	markdown  render.Markdown
	models    *ModelService
	saveDelay time.Duration
	now       func() time.Time

	// opMu serializes store read-modify-write cycles.
	opMu sync.Mutex

	saveMu    sync.Mutex
	saveTimer *time.Timer
}

func NewManager(
	store *repository.ConversationStore,
	session *Session,
	coord *Coordinator,
	target render.Target,
	markdown render.Markdown,
	models *ModelService,
	saveDelay time.Duration,
) *Manager {
	return &Manager{
		store:     store,
		session:   session,
		coord:     coord,
		target:    target,
		markdown:  markdown,
		models:    models,
		saveDelay: saveDelay,
		now:       time.Now,
	}
}

func (m *Manager) Session() *Session { return m.session }

// Send starts a new exchange with prompt and any staged images.
func (m *Manager) Send(ctx context.Context, prompt string) (*Result, error) {
	res, err := m.coord.Run(ctx, m.session, GenerationRequest{
		Prompt: prompt,
		Images: m.session.StagedImages(),
	})
	if err != nil {
		return nil, err
	}
	if res.Outcome == OutcomeCompleted {
		m.scheduleSave()
	}
	return res, nil
}

// Retry regenerates the last failed exchange in place.
func (m *Manager) Retry(ctx context.Context) (*Result, error) {
	slot, ok := m.session.Retry()
	if !ok {
		return nil, ErrNothingToRetry
	}
	res, err := m.coord.Run(ctx, m.session, GenerationRequest{
		Prompt:      slot.Prompt,
		RetryTarget: slot.TargetID,
	})
	if err != nil {
		return nil, err
	}
	if res.Outcome == OutcomeCompleted {
		m.scheduleSave()
	}
	return res, nil
}

// Stop aborts the active generation. It reports whether one was running.
func (m *Manager) Stop() bool {
	return m.session.Cancel()
}

// Toggle stops the active generation, or starts a new conversation when
// idle. It reports whether a generation was stopped.
func (m *Manager) Toggle(ctx context.Context) (bool, error) {
	if m.session.Cancel() {
		return true, nil
	}
	return false, m.StartNew(ctx)
}

func (m *Manager) scheduleSave() {
	if m.saveDelay <= 0 {
		if err := m.Save(context.Background()); err != nil {
			slog.Error("Failed to save conversation", "error", err)
		}
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	m.saveTimer = time.AfterFunc(m.saveDelay, func() {
		if err := m.Save(context.Background()); err != nil {
			slog.Error("Failed to save conversation", "error", err)
		}
	})
}

// flushPendingSave runs a deferred save now. Callers hold opMu.
func (m *Manager) flushPendingSave(ctx context.Context) error {
	m.saveMu.Lock()
	pending := m.saveTimer != nil && m.saveTimer.Stop()
	m.saveTimer = nil
	m.saveMu.Unlock()

	if !pending {
		return nil
	}
	return m.saveLocked(ctx)
}

// Flush runs a pending deferred save now.
func (m *Manager) Flush(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.flushPendingSave(ctx)
}

// Save writes the message log to the store, creating a conversation when
// none is active. An empty log is not saved.
func (m *Manager) Save(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.saveLocked(ctx)
}

func (m *Manager) saveLocked(ctx context.Context) error {
	m.session.mu.Lock()
	if len(m.session.messages) == 0 {
		m.session.mu.Unlock()
		return nil
	}
	msgs := cloneMessages(m.session.messages)
	currentID := m.session.currentID
	storedModel := m.session.selectionLocked().StoredModel()
	m.session.mu.Unlock()

	convs, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("could not read conversations: %w", err)
	}

	now := m.now().UTC()
	idx := -1
	if currentID != "" {
		idx = findConversation(convs, currentID)
	}
	if idx < 0 {
		if currentID != "" {
			slog.WarnContext(ctx, "Active conversation vanished from store, saving as new", "id", currentID)
		}
		conv := model.Conversation{ID: newConversationID(), CreatedAt: now}
		convs = append([]model.Conversation{conv}, convs...)
		idx = 0
	}

	conv := &convs[idx]
	conv.Messages = msgs
	conv.Title = conversationTitle(msgs)
	conv.Model = storedModel
	conv.UpdatedAt = now

	if err := m.store.SaveAll(ctx, convs); err != nil {
		return fmt.Errorf("could not save conversations: %w", err)
	}
	if err := m.store.SetCurrentID(ctx, conv.ID); err != nil {
		return fmt.Errorf("could not save current conversation: %w", err)
	}

	m.session.mu.Lock()
	m.session.currentID = conv.ID
	m.session.mu.Unlock()

	slog.DebugContext(ctx, "Conversation saved", "id", conv.ID, "messages", len(msgs))
	return nil
}

// Load makes the stored conversation id active. Unknown ids are ignored.
func (m *Manager) Load(ctx context.Context, id string) error {
	if m.session.Generating() {
		return ErrGenerationActive
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.flushPendingSave(ctx); err != nil {
		slog.WarnContext(ctx, "Could not save conversation before loading another", "error", err)
	}

	convs, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("could not read conversations: %w", err)
	}
	idx := findConversation(convs, id)
	if idx < 0 {
		slog.DebugContext(ctx, "Ignoring load of unknown conversation", "id", id)
		return nil
	}
	conv := convs[idx]
	msgs := cloneMessages(conv.Messages)

	m.session.mu.Lock()
	m.session.messages = msgs
	m.session.currentID = conv.ID
	m.session.retry = nil
	m.session.mu.Unlock()

	if err := m.store.SetCurrentID(ctx, conv.ID); err != nil {
		return fmt.Errorf("could not save current conversation: %w", err)
	}

	if conv.Model != "" && !strings.HasPrefix(conv.Model, localModelPrefix) && m.models != nil && m.models.Contains(conv.Model) {
		m.session.SetModel(conv.Model)
	}

	m.renderConversation(conv.Model, msgs)
	return nil
}

func (m *Manager) renderConversation(storedModel string, msgs []model.Message) {
	fallback := FallbackLabel(storedModel)

	m.target.Reset(len(msgs) == 0)
	for _, msg := range msgs {
		text := msg.TextContent()
		if msg.Role == model.RoleUser {
			m.target.AppendBubble(render.Bubble{
				ID:     newSlotID(),
				Role:   model.RoleUser,
				Author: m.coord.userLabel,
				Raw:    text,
				HTML:   plainHTML(text),
				Images: msg.Images(),
			})
			continue
		}
		label := msg.ModelLabel
		if label == "" {
			label = fallback
		}
		m.target.AppendBubble(render.Bubble{
			ID:     newSlotID(),
			Role:   msg.Role,
			Author: label,
			Raw:    text,
			HTML:   m.markdown.Render(text),
		})
	}
}

// StartNew leaves the active conversation and clears the log.
func (m *Manager) StartNew(ctx context.Context) error {
	if m.session.Generating() {
		return ErrGenerationActive
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.flushPendingSave(ctx); err != nil {
		slog.WarnContext(ctx, "Could not save conversation before starting a new one", "error", err)
	}
	return m.startNewLocked(ctx)
}

func (m *Manager) startNewLocked(ctx context.Context) error {
	m.session.mu.Lock()
	m.session.currentID = ""
	m.session.messages = nil
	m.session.retry = nil
	m.session.mu.Unlock()

	m.target.Reset(true)

	if err := m.store.ClearCurrentID(ctx); err != nil {
		return fmt.Errorf("could not clear current conversation: %w", err)
	}
	return nil
}

// Delete removes a stored conversation. Deleting the active conversation
// starts a new one.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.session.mu.Lock()
	isCurrent := id != "" && id == m.session.currentID
	generating := m.session.generating
	m.session.mu.Unlock()
	if isCurrent && generating {
		return ErrGenerationActive
	}

	convs, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("could not read conversations: %w", err)
	}
	idx := findConversation(convs, id)
	if idx < 0 {
		return fmt.Errorf("%w: conversation %s", app_errors.ErrNotFound, id)
	}
	convs = append(convs[:idx], convs[idx+1:]...)
	if err := m.store.SaveAll(ctx, convs); err != nil {
		return fmt.Errorf("could not save conversations: %w", err)
	}
	slog.InfoContext(ctx, "Conversation deleted", "id", id)

	if isCurrent {
		m.saveMu.Lock()
		if m.saveTimer != nil {
			m.saveTimer.Stop()
			m.saveTimer = nil
		}
		m.saveMu.Unlock()
		return m.startNewLocked(ctx)
	}
	return nil
}

// Restore reopens the conversation that was active when the store was last
// written.
func (m *Manager) Restore(ctx context.Context) error {
	id, err := m.store.CurrentID(ctx)
	if err != nil {
		return fmt.Errorf("could not read current conversation: %w", err)
	}
	if id == "" {
		return nil
	}
	if err := m.Load(ctx, id); err != nil {
		return err
	}
	if m.session.State().ConversationID != id {
		slog.WarnContext(ctx, "Current conversation no longer exists", "id", id)
		return m.store.ClearCurrentID(ctx)
	}
	return nil
}

// List returns stored conversations, most recently updated first.
func (m *Manager) List(ctx context.Context) ([]model.ConversationMeta, error) {
	convs, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read conversations: %w", err)
	}
	current := m.session.State().ConversationID

	metas := make([]model.ConversationMeta, 0, len(convs))
	for _, c := range convs {
		metas = append(metas, model.ConversationMeta{
			ID:           c.ID,
			Title:        c.Title,
			Model:        c.Model,
			MessageCount: len(c.Messages),
			UpdatedAt:    c.UpdatedAt,
			Current:      c.ID == current,
		})
	}
	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Get returns a stored conversation.
func (m *Manager) Get(ctx context.Context, id string) (*model.Conversation, error) {
	convs, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read conversations: %w", err)
	}
	idx := findConversation(convs, id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: conversation %s", app_errors.ErrNotFound, id)
	}
	return &convs[idx], nil
}

func (m *Manager) State() SessionState { return m.session.State() }

func (m *Manager) StageImages(images ...string) { m.session.StageImages(images...) }

func (m *Manager) RemoveImage(i int) error { return m.session.RemoveImage(i) }

func (m *Manager) SelectModel(id string) error { return m.models.Select(id) }

func (m *Manager) SetCatalog(cat *llm.Catalog) { m.models.SetCatalog(cat) }

func findConversation(convs []model.Conversation, id string) int {
	for i := range convs {
		if convs[i].ID == id {
			return i
		}
	}
	return -1
}

func newConversationID() string { return "conv-" + uuid.NewString() }

// conversationTitle derives a title from the first message.
func conversationTitle(msgs []model.Message) string {
	if len(msgs) == 0 {
		return defaultTitle
	}
	text := msgs[0].TextContent()
	if utf8.RuneCountInString(text) > titleMaxRunes {
		return string([]rune(text)[:titleMaxRunes]) + "..."
	}
	if text == "" {
		return defaultTitle
	}
	return text
}

// FallbackLabel is the author label for stored assistant messages that
// carry none.
func FallbackLabel(storedModel string) string {
	if id, ok := strings.CutPrefix(storedModel, localModelPrefix); ok {
		return llm.LocalLabel(id)
	}
	if storedModel == "" {
		return "Assistant"
	}
	return llm.RemoteLabel(storedModel)
}

func plainHTML(text string) string {
	return "<p>" + html.EscapeString(text) + "</p>"
}
