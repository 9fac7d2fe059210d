package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"chatline/internal/llm"
	"chatline/internal/model"
	"chatline/internal/render"
)

// VisionHint follows a status error when images were attached.
const VisionHint = "Error. Ensure you are using a vision capable model if you are inputting an image."

// Outcome is how a generation ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCanceled  Outcome = "canceled"
)

// GenerationRequest starts a generation. A non-empty RetryTarget regenerates
// into that existing slot instead of starting a new exchange.
type GenerationRequest struct {
	Prompt      string
	Images      []string
	RetryTarget string
}

// Result describes a finished generation.
type Result struct {
	Outcome Outcome `json:"outcome"`
	SlotID  string  `json:"slot_id"`
	Text    string  `json:"text"`
	Error   string  `json:"error,omitempty"`
}

// BackendFactory picks the backend for a generation.
type BackendFactory func(sel Selection) (llm.Backend, error)

// DefaultBackends uses the local engine when local mode is on and the active
// local model is loaded, and the remote endpoint otherwise.
func DefaultBackends(remote llm.RemoteOptions, registry *llm.EngineRegistry, caps model.Capabilities) BackendFactory {
	return func(sel Selection) (llm.Backend, error) {
		if caps.LocalModeEnabled && sel.LocalMode && sel.ActiveLocal != "" &&
			registry != nil && registry.IsLoaded(sel.ActiveLocal) {
			return llm.NewLocalBackend(registry.Engine(), sel.ActiveLocal), nil
		}
		if sel.ModelID == "" {
			return nil, errors.New("no model selected")
		}
		return llm.NewRemoteBackend(remote, sel.ModelID, caps.Authenticated), nil
	}
}

// Coordinator drives one generation at a time from backend fragments to the
// render target and the message log.
type Coordinator struct {
	target         render.Target
	markdown       render.Markdown
	backends       BackendFactory
	userLabel      string
	renderInterval time.Duration
}

func NewCoordinator(target render.Target, markdown render.Markdown, backends BackendFactory, caps model.Capabilities, renderInterval time.Duration) *Coordinator {
	label := caps.Username
	if label == "" {
		label = "You"
	}
	return &Coordinator{
		target:         target,
		markdown:       markdown,
		backends:       backends,
		userLabel:      label,
		renderInterval: renderInterval,
	}
}

func newSlotID() string { return "msg-" + uuid.NewString() }

// Run performs one generation on s. The returned error is non-nil only when
// the request is rejected; backend failures are reported in the Result.
func (c *Coordinator) Run(ctx context.Context, s *Session, req GenerationRequest) (*Result, error) {
	retry := req.RetryTarget != ""

	s.mu.Lock()
	if s.generating {
		s.mu.Unlock()
		return nil, ErrGenerationActive
	}
	prompt := req.Prompt
	if retry && prompt == "" && s.retry != nil {
		prompt = s.retry.Prompt
	}
	if strings.TrimSpace(prompt) == "" {
		s.mu.Unlock()
		return nil, ErrEmptyPrompt
	}

	slot := req.RetryTarget
	var userMsg model.Message
	if !retry {
		s.retry = nil
		userMsg = model.NewUserMessage(prompt, req.Images)
		s.messages = append(s.messages, userMsg)
		slot = newSlotID()
	}

	genCtx, cancel := context.WithCancel(ctx)
	s.generating = true
	s.cancel = cancel
	history := cloneMessages(s.messages)
	sel := s.selectionLocked()
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.generating = false
		s.cancel = nil
		s.mu.Unlock()
		c.target.SetLoading(slot, false)
		c.target.SetGenerating(false)
	}()

	backend, backendErr := c.backends(sel)
	author := ""
	if backend != nil {
		author = backend.Label()
	}

	if !retry {
		c.target.AppendBubble(render.Bubble{
			ID:     newSlotID(),
			Role:   model.RoleUser,
			Author: c.userLabel,
			Raw:    prompt,
			HTML:   plainHTML(prompt),
			Images: userMsg.Images(),
		})
	}
	// Appending an existing slot id replaces the bubble, which resets a
	// retried slot in place.
	c.target.AppendBubble(render.Bubble{ID: slot, Role: model.RoleAssistant, Author: author, State: render.StateLoading})
	c.target.SetGenerating(true)
	c.target.SetLoading(slot, true)

	run := &generation{
		c:         c,
		s:         s,
		slot:      slot,
		prompt:    prompt,
		local:     isLocal(backend),
		hadImages: len(lastUserImages(history)) > 0,
	}

	if backendErr != nil {
		return run.fail(backendErr), nil
	}

	fragments, err := backend.Stream(genCtx, history)
	if err != nil {
		if llm.IsCanceled(err) || genCtx.Err() != nil {
			return run.canceled(), nil
		}
		return run.fail(err), nil
	}

	return run.consume(genCtx, fragments, backend.Label()), nil
}

// generation holds the per-run state of Coordinator.Run.
type generation struct {
	c         *Coordinator
	s         *Session
	slot      string
	prompt    string
	local     bool
	hadImages bool

	buf      strings.Builder
	rendered int
}

func (g *generation) consume(ctx context.Context, fragments <-chan llm.Fragment, label string) *Result {
	var limiter *rate.Limiter
	if g.c.renderInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(g.c.renderInterval), 1)
	}

	for {
		select {
		case <-ctx.Done():
			return g.canceled()
		case f, ok := <-fragments:
			if !ok {
				if ctx.Err() != nil {
					return g.canceled()
				}
				return g.complete(label)
			}
			switch {
			case f.Err != nil:
				var frameErr *llm.FrameError
				switch {
				case llm.IsCanceled(f.Err) || ctx.Err() != nil:
					return g.canceled()
				case errors.As(f.Err, &frameErr):
					return g.failWith(frameErr.Message, f.Err)
				default:
					return g.fail(f.Err)
				}
			case f.Notice != "":
				g.c.target.SetNotice(g.slot, f.Notice)
			case f.Text != "":
				if g.buf.Len() == 0 {
					g.c.target.SetLoading(g.slot, false)
				}
				g.buf.WriteString(f.Text)
				if limiter == nil || limiter.Allow() {
					g.flush()
				}
			}
		}
	}
}

// flush renders the accumulated text unless it is already on screen.
func (g *generation) flush() {
	if g.buf.Len() == g.rendered {
		return
	}
	text := g.buf.String()
	g.c.target.SetContent(g.slot, text, g.c.markdown.Render(text))
	g.rendered = len(text)
}

func (g *generation) complete(label string) *Result {
	g.flush()
	text := g.buf.String()

	g.s.mu.Lock()
	g.s.messages = append(g.s.messages, model.Message{
		Role:       model.RoleAssistant,
		Text:       text,
		ModelLabel: label,
	})
	g.s.retry = nil
	g.s.images = nil
	g.s.mu.Unlock()

	return &Result{Outcome: OutcomeCompleted, SlotID: g.slot, Text: text}
}

func (g *generation) canceled() *Result {
	g.flush()
	if g.buf.Len() == 0 {
		g.c.target.SetStopped(g.slot)
	}
	slog.Debug("Generation stopped", "slot", g.slot, "chars", g.buf.Len())
	return &Result{Outcome: OutcomeCanceled, SlotID: g.slot, Text: g.buf.String()}
}

// fail renders a setup, transport or engine error into the slot.
func (g *generation) fail(err error) *Result {
	var statusErr *llm.StatusError
	var msg string
	switch {
	case errors.As(err, &statusErr):
		msg = statusErr.Error()
		if g.hadImages {
			msg += "\n\n" + VisionHint
		}
	case g.local:
		msg = err.Error()
	default:
		msg = "Error: " + err.Error()
	}
	return g.failWith(msg, err)
}

func (g *generation) failWith(msg string, err error) *Result {
	slog.Warn("Generation failed", "slot", g.slot, "error", err)

	g.s.mu.Lock()
	g.s.retry = &RetrySlot{Prompt: g.prompt, TargetID: g.slot}
	g.s.mu.Unlock()

	g.c.target.SetError(g.slot, msg)
	return &Result{Outcome: OutcomeFailed, SlotID: g.slot, Text: g.buf.String(), Error: msg}
}

func isLocal(b llm.Backend) bool {
	_, ok := b.(*llm.LocalBackend)
	return ok
}

// lastUserImages returns the images of the newest user message.
func lastUserImages(history []model.Message) []string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleUser {
			return history[i].Images()
		}
	}
	return nil
}
