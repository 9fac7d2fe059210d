package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"chatline/internal/model"
)

const maxFrameSize = 1024 * 1024

// RemoteOptions configures the OpenAI-compatible completion endpoint.
type RemoteOptions struct {
	BaseURL          string
	ChatEndpoint     string
	AnonChatEndpoint string
	APIKey           string
	HTTPClient       *http.Client
}

// RemoteBackend streams completions from an OpenAI-compatible server-sent
// event endpoint.
type RemoteBackend struct {
	client   *http.Client
	endpoint string
	apiKey   string
	modelID  string
}

// NewRemoteBackend returns a backend for modelID. Authenticated callers use
// the chat endpoint, everybody else the anonymous one.
func NewRemoteBackend(opts RemoteOptions, modelID string, authenticated bool) *RemoteBackend {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	path := opts.AnonChatEndpoint
	if authenticated {
		path = opts.ChatEndpoint
	}
	return &RemoteBackend{
		client:   client,
		endpoint: strings.TrimRight(opts.BaseURL, "/") + path,
		apiKey:   opts.APIKey,
		modelID:  modelID,
	}
}

// Endpoint returns the URL completions are posted to.
func (b *RemoteBackend) Endpoint() string { return b.endpoint }

// Label returns the model id without its provider prefix.
func (b *RemoteBackend) Label() string { return RemoteLabel(b.modelID) }

// RemoteLabel strips everything up to the last "/" of a model id.
func RemoteLabel(modelID string) string {
	if i := strings.LastIndex(modelID, "/"); i >= 0 {
		return modelID[i+1:]
	}
	return modelID
}

// streamFrame is a chat completion chunk that may instead carry an error.
type streamFrame struct {
	openai.ChatCompletionStreamResponse
	Error json.RawMessage `json:"error,omitempty"`
}

func (b *RemoteBackend) Stream(ctx context.Context, history []model.Message) (<-chan Fragment, error) {
	req := openai.ChatCompletionRequest{
		Model:    b.modelID,
		Messages: toOpenAIMessages(history),
		Stream:   true,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "could not create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
		return nil, &StatusError{Code: resp.StatusCode, Message: statusMessage(raw)}
	}

	ch := make(chan Fragment)
	go b.consume(ctx, resp.Body, ch)
	return ch, nil
}

func (b *RemoteBackend) consume(ctx context.Context, body io.ReadCloser, ch chan<- Fragment) {
	defer close(ch)
	defer body.Close()

	send := func(f Fragment) bool {
		select {
		case ch <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return
		}

		var frame streamFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			slog.Debug("Skipping malformed stream frame", "error", err)
			continue
		}

		if msg, ok := frameErrorMessage(frame.Error); ok {
			send(Fragment{Err: &FrameError{Message: msg}})
			return
		}

		if len(frame.Choices) == 0 {
			continue
		}
		if content := frame.Choices[0].Delta.Content; content != "" {
			if !send(Fragment{Text: content}) {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			send(Fragment{Err: ErrCanceled})
			return
		}
		send(Fragment{Err: errors.Wrap(err, "stream read failed")})
	}
}

func toOpenAIMessages(history []model.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		msg := openai.ChatCompletionMessage{Role: string(m.Role)}
		if m.Parts == nil {
			msg.Content = m.Text
			out = append(out, msg)
			continue
		}
		for _, p := range m.Parts {
			switch p.Type {
			case model.PartText:
				msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: p.Text,
				})
			case model.PartImageURL:
				if p.ImageURL == nil {
					continue
				}
				msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: p.ImageURL.URL},
				})
			}
		}
		out = append(out, msg)
	}
	return out
}

// frameErrorMessage extracts the message of an error payload. The payload is
// either a string or an object with a "message" field.
func frameErrorMessage(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("false")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", false
		}
		return s, true
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message, true
	}
	return "Unknown error", true
}

// statusMessage picks the most specific message from an error response body.
func statusMessage(raw []byte) string {
	var body struct {
		Error  json.RawMessage `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return strings.TrimSpace(string(raw))
	}
	if msg, ok := frameErrorMessage(body.Error); ok {
		return msg
	}
	if detail := bytes.TrimSpace(body.Detail); len(detail) > 0 && !bytes.Equal(detail, []byte("null")) {
		var s string
		if err := json.Unmarshal(detail, &s); err == nil {
			return s
		}
		return string(detail)
	}
	return strings.TrimSpace(string(raw))
}
