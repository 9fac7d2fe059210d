package api

import (
	"log/slog"
	"net/http"

	"chatline/internal/interfaces"
	"chatline/internal/llm"
	"chatline/internal/service"
)

// ModelsResponse lists the remote catalog together with the local models.
type ModelsResponse struct {
	Catalog *llm.Catalog               `json:"catalog"`
	Local   []service.LocalModelStatus `json:"local"`
}

// ModelHandler serves the model catalog and local model endpoints.
type ModelHandler struct {
	models interfaces.ModelService
	local  interfaces.LocalModelService
}

func NewModelHandler(models interfaces.ModelService, local interfaces.LocalModelService) *ModelHandler {
	return &ModelHandler{models: models, local: local}
}

// HandleListModels returns the model catalog. `?refresh=true` fetches it
// again first.
func (h *ModelHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	catalog := h.models.Catalog()
	if r.URL.Query().Get("refresh") == "true" {
		var err error
		if catalog, err = h.models.Refresh(r.Context()); err != nil {
			respondWithError(w, err)
			return
		}
	}
	respondWithJSON(w, http.StatusOK, ModelsResponse{Catalog: catalog, Local: h.local.List()})
}

func (h *ModelHandler) HandleSelectModel(w http.ResponseWriter, r *http.Request) {
	var req SelectModelRequest
	if err := decodeRequest(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	if err := h.models.Select(req.Model); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (h *ModelHandler) HandleListLocalModels(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.local.List())
}

// HandleLoadLocalModel loads and enables a local model, streaming load
// progress as SSE frames.
func (h *ModelHandler) HandleLoadLocalModel(w http.ResponseWriter, r *http.Request) {
	setStreamHeaders(w)

	var req SelectModelRequest
	if err := decodeRequest(r, &req); err != nil {
		slog.Warn("Invalid local model load request", "error", err)
		sendStreamError(w, err.Error())
		return
	}

	ctx := r.Context()
	progressChan := make(chan llm.Progress)
	errChan := make(chan error, 1)
	go func() {
		defer close(progressChan)
		errChan <- h.local.LoadModel(ctx, req.Model, func(p llm.Progress) {
			select {
			case progressChan <- p:
			case <-ctx.Done():
			}
		})
	}()

	for p := range progressChan {
		if err := writeStreamEvent(w, p); err != nil {
			slog.Warn("Could not write to model load stream, client likely disconnected.", "error", err)
			// Keep draining so the loader can finish.
			for range progressChan {
			}
			break
		}
	}

	if err := <-errChan; err != nil {
		slog.Error("Error loading local model", "model", req.Model, "error", err)
		sendStreamError(w, err.Error())
		return
	}
	if err := writeStreamEvent(w, llm.Progress{Status: "ready", Fraction: 1}); err != nil {
		slog.Warn("Could not write final model load event", "error", err)
	}
	slog.Info("Finished streaming local model load.", "model", req.Model)
}

func (h *ModelHandler) HandleRemoveLocalModel(w http.ResponseWriter, r *http.Request) {
	var req SelectModelRequest
	if err := decodeRequest(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	if err := h.local.RemoveModel(r.Context(), req.Model); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (h *ModelHandler) HandleSetLocalMode(w http.ResponseWriter, r *http.Request) {
	var req LocalModeRequest
	if err := decodeRequest(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	if err := h.local.SetMode(r.Context(), req.Local); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// HandleSelectLocalModel activates an enabled local model. An empty model
// deactivates local generation.
func (h *ModelHandler) HandleSelectLocalModel(w http.ResponseWriter, r *http.Request) {
	var req OptionalModelRequest
	if err := decodeRequest(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	if err := h.local.SelectModel(r.Context(), req.Model, nil); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}
