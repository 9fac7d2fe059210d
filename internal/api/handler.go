package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	app_errors "chatline/internal/errors"
	"chatline/internal/interfaces"
	"chatline/internal/render"
)

// SnapshotEvent is the first frame of the events stream.
type SnapshotEvent struct {
	Type     string          `json:"type"`
	Snapshot render.Snapshot `json:"snapshot"`
}

// ChatHandler serves the conversation endpoints.
type ChatHandler struct {
	service interfaces.ChatService
	events  interfaces.RenderStream
}

func NewChatHandler(svc interfaces.ChatService, events interfaces.RenderStream) *ChatHandler {
	return &ChatHandler{service: svc, events: events}
}

// GetState returns the session state.
func (h *ChatHandler) GetState(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.service.State())
}

// HandleEvents streams render events. The first frame is a snapshot of the
// current view.
func (h *ChatHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	setStreamHeaders(w)

	messages, err := h.events.Subscribe(r.Context())
	if err != nil {
		slog.Error("Could not subscribe to render events", "error", err)
		sendStreamError(w, "Could not subscribe to events")
		return
	}

	if err := writeStreamEvent(w, SnapshotEvent{Type: "snapshot", Snapshot: h.events.Snapshot()}); err != nil {
		slog.Warn("Could not write snapshot, client likely disconnected.", "error", err)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("Events client disconnected.")
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			err := writeRawStreamEvent(w, msg.Payload)
			msg.Ack()
			if err != nil {
				slog.Warn("Could not write to events stream, client likely disconnected.", "error", err)
				return
			}
		}
	}
}

// SendMessage sends a prompt and waits for the generation to finish. The
// response text is delivered through the events stream while it is produced.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeRequest(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	if len(req.Images) > 0 {
		h.service.StageImages(req.Images...)
	}

	res, err := h.service.Send(r.Context(), req.Prompt)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// RetryMessage regenerates the last failed response.
func (h *ChatHandler) RetryMessage(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Retry(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h *ChatHandler) StopGeneration(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, StopResponse{Stopped: h.service.Stop()})
}

// Toggle stops a running generation, or starts a new conversation when idle.
func (h *ChatHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	stopped, err := h.service.Toggle(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StopResponse{Stopped: stopped})
}

func (h *ChatHandler) StageImages(w http.ResponseWriter, r *http.Request) {
	var req StageImagesRequest
	if err := decodeRequest(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	h.service.StageImages(req.Images...)
	respondWithJSON(w, http.StatusOK, h.service.State())
}

func (h *ChatHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondWithError(w, fmt.Errorf("%w: image index must be a number", app_errors.ErrValidation))
		return
	}
	if err := h.service.RemoveImage(index); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.service.State())
}

func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	metas, err := h.service.List(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, metas)
}

func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.service.Get(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, conv)
}

func (h *ChatHandler) NewConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.service.StartNew(r.Context()); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (h *ChatHandler) LoadConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Load(r.Context(), chi.URLParam(r, "conversationID")); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.service.State())
}

func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "conversationID")); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}
