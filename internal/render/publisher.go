package render

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Topic carries render events.
const Topic = "render"

// Event types.
const (
	EventBubble     = "bubble"
	EventLoading    = "loading"
	EventContent    = "content"
	EventNotice     = "notice"
	EventError      = "error"
	EventStopped    = "stopped"
	EventGenerating = "generating"
	EventReset      = "reset"
)

// Event is one render instruction as delivered to subscribers.
type Event struct {
	Seq    uint64  `json:"seq"`
	Type   string  `json:"type"`
	Slot   string  `json:"slot,omitempty"`
	Bubble *Bubble `json:"bubble,omitempty"`
	Raw    string  `json:"raw,omitempty"`
	HTML   string  `json:"html,omitempty"`
	Text   string  `json:"text,omitempty"`
	On     bool    `json:"on,omitempty"`
}

// Publisher is a Target that updates a View and broadcasts every change as
// an Event. Publishing blocks until each subscriber acknowledged the event,
// so subscribers observe events in order.
type Publisher struct {
	view   *View
	pubSub *gochannel.GoChannel

	mu  sync.Mutex
	seq uint64
}

func NewPublisher(view *View) *Publisher {
	return &Publisher{
		view: view,
		pubSub: gochannel.NewGoChannel(gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
		}, watermill.NopLogger{}),
	}
}

// View returns the view kept in sync by the publisher.
func (p *Publisher) View() *View { return p.view }

// Snapshot returns the current state of the view.
func (p *Publisher) Snapshot() Snapshot { return p.view.Snapshot() }

// Subscribe returns a channel of render events. Each message must be acked.
// The subscription ends when ctx is done.
func (p *Publisher) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return p.pubSub.Subscribe(ctx, Topic)
}

func (p *Publisher) Close() error {
	return p.pubSub.Close()
}

// publish applies the change to the view and emits the event under one lock
// so sequence numbers match view order.
func (p *Publisher) publish(apply func(), ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	apply()
	p.seq++
	ev.Seq = p.seq

	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to encode render event", "type", ev.Type, "error", err)
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.pubSub.Publish(Topic, msg); err != nil {
		slog.Warn("Failed to publish render event", "type", ev.Type, "error", err)
	}
}

func (p *Publisher) AppendBubble(b Bubble) {
	p.publish(func() { p.view.AppendBubble(b) }, Event{Type: EventBubble, Slot: b.ID, Bubble: &b})
}

func (p *Publisher) SetLoading(slot string, on bool) {
	p.publish(func() { p.view.SetLoading(slot, on) }, Event{Type: EventLoading, Slot: slot, On: on})
}

func (p *Publisher) SetContent(slot, raw, html string) {
	p.publish(func() { p.view.SetContent(slot, raw, html) }, Event{Type: EventContent, Slot: slot, Raw: raw, HTML: html})
}

func (p *Publisher) SetNotice(slot, text string) {
	p.publish(func() { p.view.SetNotice(slot, text) }, Event{Type: EventNotice, Slot: slot, Text: text})
}

func (p *Publisher) SetError(slot, text string) {
	p.publish(func() { p.view.SetError(slot, text) }, Event{Type: EventError, Slot: slot, Text: text})
}

func (p *Publisher) SetStopped(slot string) {
	p.publish(func() { p.view.SetStopped(slot) }, Event{Type: EventStopped, Slot: slot, Text: StoppedText})
}

func (p *Publisher) SetGenerating(on bool) {
	p.publish(func() { p.view.SetGenerating(on) }, Event{Type: EventGenerating, On: on})
}

func (p *Publisher) Reset(welcome bool) {
	p.publish(func() { p.view.Reset(welcome) }, Event{Type: EventReset, On: welcome})
}
