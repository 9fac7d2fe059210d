package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// OllamaClient is an Engine backed by an Ollama server.
type OllamaClient struct {
	client *http.Client
	url    string
}

func NewOllamaClient(url string) *OllamaClient {
	return &OllamaClient{
		client: &http.Client{},
		url:    strings.TrimRight(url, "/"),
	}
}

// LocalModel is a model available on the Ollama server.
type LocalModel struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type pullLine struct {
	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
	Error     string `json:"error"`
}

type chatLine struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func (c *OllamaClient) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "could not create request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
		return nil, errors.Errorf("api returned non-200 status %d: %s", resp.StatusCode, ollamaErrorText(raw))
	}
	return resp, nil
}

// Load pulls modelID, reporting download progress.
func (c *OllamaClient) Load(ctx context.Context, modelID string, progress func(Progress)) error {
	resp, err := c.post(ctx, "/api/pull", map[string]any{"model": modelID, "stream": true})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var pl pullLine
		if err := json.Unmarshal(line, &pl); err != nil {
			continue
		}
		if pl.Error != "" {
			return errors.New(pl.Error)
		}
		if progress != nil {
			p := Progress{Status: pl.Status, Completed: pl.Completed, Total: pl.Total}
			if pl.Total > 0 {
				p.Fraction = float64(pl.Completed) / float64(pl.Total)
			}
			if pl.Status == "success" {
				p.Fraction = 1
			}
			progress(p)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "pull stream failed")
	}
	return nil
}

// ChatStream streams a chat completion for modelID.
func (c *OllamaClient) ChatStream(ctx context.Context, modelID string, messages []EngineMessage) (<-chan EngineChunk, error) {
	resp, err := c.post(ctx, "/api/chat", map[string]any{
		"model":    modelID,
		"messages": messages,
		"stream":   true,
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan EngineChunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		send := func(chunk EngineChunk) bool {
			select {
			case ch <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var cl chatLine
			if err := json.Unmarshal(line, &cl); err != nil {
				send(EngineChunk{Err: errors.Wrap(err, "could not decode stream chunk")})
				return
			}
			if cl.Error != "" {
				send(EngineChunk{Err: errors.New(cl.Error)})
				return
			}
			if cl.Message.Content != "" {
				if !send(EngineChunk{Content: cl.Message.Content}) {
					return
				}
			}
			if cl.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			send(EngineChunk{Err: errors.Wrap(err, "chat stream failed")})
		}
	}()
	return ch, nil
}

// List returns the models present on the server.
func (c *OllamaClient) List(ctx context.Context) ([]LocalModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/api/tags", nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not create request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
		return nil, errors.Errorf("api returned non-200 status %d: %s", resp.StatusCode, ollamaErrorText(raw))
	}

	var out struct {
		Models []LocalModel `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "could not decode model list")
	}
	return out.Models, nil
}

func ollamaErrorText(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
