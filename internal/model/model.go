package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType identifies the kind of a content part.
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

// ImageURL points at an image, usually a data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart is one element of a multi-part message body.
type ContentPart struct {
	Type     PartType  `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// Message is a single exchanged message.
//
// Content is either plain text (Text) or an ordered sequence of parts (Parts).
// When Parts is non-nil it takes precedence and the message is encoded with an
// array "content" field.
type Message struct {
	Role       Role
	Text       string
	Parts      []ContentPart
	ModelLabel string
}

type messageJSON struct {
	Role       Role            `json:"role"`
	Content    json.RawMessage `json:"content"`
	ModelLabel string          `json:"modelLabel,omitempty"`
}

// NewUserMessage builds a user message with the prompt followed by any images.
func NewUserMessage(prompt string, images []string) Message {
	parts := make([]ContentPart, 0, len(images)+1)
	parts = append(parts, ContentPart{Type: PartText, Text: prompt})
	for _, img := range images {
		parts = append(parts, ContentPart{Type: PartImageURL, ImageURL: &ImageURL{URL: img}})
	}
	return Message{Role: RoleUser, Parts: parts}
}

// TextContent returns the plain text of the message: the string content, or
// the first text part of a multi-part message.
func (m Message) TextContent() string {
	if m.Parts == nil {
		return m.Text
	}
	for _, p := range m.Parts {
		if p.Type == PartText {
			return p.Text
		}
	}
	return ""
}

// Images returns the image URLs attached to the message, in order.
func (m Message) Images() []string {
	var images []string
	for _, p := range m.Parts {
		if p.Type == PartImageURL && p.ImageURL != nil {
			images = append(images, p.ImageURL.URL)
		}
	}
	return images
}

func (m Message) MarshalJSON() ([]byte, error) {
	var content []byte
	var err error
	if m.Parts != nil {
		content, err = json.Marshal(m.Parts)
	} else {
		content, err = json.Marshal(m.Text)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageJSON{Role: m.Role, Content: content, ModelLabel: m.ModelLabel})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.ModelLabel = raw.ModelLabel
	m.Text = ""
	m.Parts = nil

	content := bytes.TrimSpace(raw.Content)
	switch {
	case len(content) == 0 || bytes.Equal(content, []byte("null")):
		return nil
	case content[0] == '[':
		parts := []ContentPart{}
		if err := json.Unmarshal(content, &parts); err != nil {
			return fmt.Errorf("could not decode message parts: %w", err)
		}
		m.Parts = parts
	default:
		if err := json.Unmarshal(content, &m.Text); err != nil {
			return fmt.Errorf("could not decode message content: %w", err)
		}
	}
	return nil
}

// Conversation is a persisted exchange history.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConversationMeta is the listing view of a conversation.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	UpdatedAt    time.Time `json:"updated_at"`
	Current      bool      `json:"current"`
}

// Capabilities enumerates the flags the host environment grants this client.
type Capabilities struct {
	Authenticated    bool   `json:"authenticated"`
	FrontierAccess   bool   `json:"frontier_access"`
	LocalModeEnabled bool   `json:"local_mode_enabled"`
	Username         string `json:"username,omitempty"`
}
