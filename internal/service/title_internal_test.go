package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chatline/internal/model"
)

func TestConversationTitle(t *testing.T) {
	assert.Equal(t, defaultTitle, conversationTitle(nil))
	assert.Equal(t, defaultTitle, conversationTitle([]model.Message{model.NewUserMessage("", []string{"data:image/png;base64,AAAA"})}))
	assert.Equal(t, "Hi", conversationTitle([]model.Message{model.NewUserMessage("Hi", nil)}))
}

func TestSelectionStoredModel(t *testing.T) {
	assert.Equal(t, "a/b", Selection{ModelID: "a/b"}.StoredModel())
	assert.Equal(t, "local:m", Selection{ModelID: "a/b", LocalMode: true, ActiveLocal: "m"}.StoredModel())
	assert.Equal(t, "a/b", Selection{ModelID: "a/b", LocalMode: true}.StoredModel())
}
