package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	app_errors "chatline/internal/errors"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse acknowledges an operation that returns no resource.
type StatusResponse struct {
	Status string `json:"status"`
}

// StopResponse reports whether a running generation was stopped.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// SendMessageRequest starts a new exchange. Images are staged before the
// prompt is sent.
type SendMessageRequest struct {
	Prompt string   `json:"prompt" validate:"required,max=100000"`
	Images []string `json:"images" validate:"max=10,dive,required,startswith=data:image/"`
}

// StageImagesRequest attaches images to the next message.
type StageImagesRequest struct {
	Images []string `json:"images" validate:"required,min=1,max=10,dive,required,startswith=data:image/"`
}

// SelectModelRequest names a model to use.
type SelectModelRequest struct {
	Model string `json:"model" validate:"required,max=200"`
}

// OptionalModelRequest names a model, or none.
type OptionalModelRequest struct {
	Model string `json:"model" validate:"max=200"`
}

// LocalModeRequest toggles local generation.
type LocalModeRequest struct {
	Local bool `json:"local"`
}

// respondWithError maps service errors to HTTP status codes.
func respondWithError(w http.ResponseWriter, err error) {
	var statusCode int
	var message string

	switch {
	case errors.Is(err, app_errors.ErrNotFound):
		statusCode = http.StatusNotFound
		message = "The requested resource was not found."
	case errors.Is(err, app_errors.ErrValidation):
		statusCode = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, app_errors.ErrConflict):
		statusCode = http.StatusConflict
		message = err.Error()
	case errors.Is(err, app_errors.ErrPermission):
		statusCode = http.StatusForbidden
		message = "You do not have permission to perform this action."
	default:
		statusCode = http.StatusInternalServerError
		message = "An unexpected internal server error occurred."
	}

	slog.Warn("Responding with error", "status_code", statusCode, "client_message", message, "internal_error", err)

	respondWithJSON(w, statusCode, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

// decodeRequest reads a JSON body into v and validates it.
func decodeRequest(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", app_errors.ErrValidation)
	}
	return validateRequest(v)
}

func setStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// sendStreamError writes an `event: error` frame to an SSE stream.
func sendStreamError(w http.ResponseWriter, message string) {
	slog.Warn("Sending stream error to client", "message", message)
	jsonData, err := json.Marshal(ErrorResponse{Error: message})
	if err != nil {
		slog.Error("Failed to marshal stream error payload", "error", err)
		return
	}

	if _, err := fmt.Fprintf(w, "event: error\ndata: %s\n\n", string(jsonData)); err != nil {
		slog.Warn("Failed to write stream error, client might have disconnected", "error", err)
		return
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// writeStreamEvent writes one SSE data frame. A write error means the client
// is gone.
func writeStreamEvent(w http.ResponseWriter, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		slog.Error("Failed to marshal stream data to JSON", "error", err)
		return nil
	}
	return writeRawStreamEvent(w, jsonData)
}

func writeRawStreamEvent(w http.ResponseWriter, payload []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("failed to write data to stream: %w", err)
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
