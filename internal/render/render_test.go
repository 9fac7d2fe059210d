package render_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/internal/model"
	"chatline/internal/render"
)

func TestView_Lifecycle(t *testing.T) {
	v := render.NewView()
	assert.True(t, v.Snapshot().Welcome)

	v.AppendBubble(render.Bubble{ID: "u1", Role: model.RoleUser, Author: "You", Raw: "Hello"})
	v.AppendBubble(render.Bubble{ID: "a1", Role: model.RoleAssistant, Author: "gpt-4"})
	v.SetGenerating(true)
	v.SetLoading("a1", true)

	b, ok := v.Bubble("a1")
	require.True(t, ok)
	assert.Equal(t, render.StateLoading, b.State)

	v.SetContent("a1", "Hi", "<p>Hi</p>\n")
	b, _ = v.Bubble("a1")
	assert.Equal(t, render.StateStreaming, b.State)
	assert.Equal(t, "Hi", b.Raw)

	v.SetGenerating(false)
	b, _ = v.Bubble("a1")
	assert.Equal(t, render.StateDone, b.State)

	snap := v.Snapshot()
	assert.False(t, snap.Welcome)
	assert.False(t, snap.Generating)
	assert.Len(t, snap.Bubbles, 2)

	v.Reset(true)
	assert.Empty(t, v.Snapshot().Bubbles)
	assert.True(t, v.Snapshot().Welcome)
}

func TestView_ErrorAndStopped(t *testing.T) {
	v := render.NewView()
	v.AppendBubble(render.Bubble{ID: "a1", Role: model.RoleAssistant, Author: "gpt-4"})
	v.AppendBubble(render.Bubble{ID: "a2", Role: model.RoleAssistant, Author: "gpt-4"})

	v.SetError("a1", "<overloaded>")
	v.SetStopped("a2")

	b, _ := v.Bubble("a1")
	assert.Equal(t, render.ErrorAuthor, b.Author)
	assert.Equal(t, render.StateError, b.State)
	assert.Equal(t, "<p>&lt;overloaded&gt;</p>", b.HTML)

	b, _ = v.Bubble("a2")
	assert.Equal(t, render.StoppedText, b.Raw)
	assert.Equal(t, render.StateStopped, b.State)

	// Unknown slots are ignored.
	v.SetContent("nope", "x", "x")
	_, ok := v.Bubble("nope")
	assert.False(t, ok)
}

func TestMarkdown(t *testing.T) {
	md := render.NewMarkdown()

	out := md.Render("**bold** and ~~gone~~\n\n| a | b |\n|---|---|\n| 1 | 2 |")
	assert.Contains(t, out, "<strong>bold</strong>")
	assert.Contains(t, out, "<del>gone</del>")
	assert.Contains(t, out, "<table>")

	unsafe := md.Render("<script>alert(1)</script>")
	assert.NotContains(t, unsafe, "<script>")
}

func TestPublisher_OrderedEvents(t *testing.T) {
	pub := render.NewPublisher(render.NewView())
	defer func() { _ = pub.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := pub.Subscribe(ctx)
	require.NoError(t, err)

	done := make(chan []render.Event)
	go func() {
		var events []render.Event
		for msg := range msgs {
			var ev render.Event
			assert.NoError(t, json.Unmarshal(msg.Payload, &ev))
			msg.Ack()
			events = append(events, ev)
			if len(events) == 4 {
				done <- events
				return
			}
		}
	}()

	pub.AppendBubble(render.Bubble{ID: "a1", Role: model.RoleAssistant})
	pub.SetLoading("a1", true)
	pub.SetContent("a1", "Hi", "<p>Hi</p>")
	pub.SetGenerating(false)

	select {
	case events := <-done:
		assert.Equal(t, render.EventBubble, events[0].Type)
		assert.Equal(t, render.EventLoading, events[1].Type)
		assert.Equal(t, render.EventContent, events[2].Type)
		assert.Equal(t, "Hi", events[2].Raw)
		assert.Equal(t, render.EventGenerating, events[3].Type)
		for i, ev := range events {
			assert.Equal(t, uint64(i+1), ev.Seq)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("events not delivered")
	}

	b, ok := pub.View().Bubble("a1")
	require.True(t, ok)
	assert.Equal(t, "Hi", b.Raw)
}
