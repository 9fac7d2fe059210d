package render

import (
	"html"
	"sync"

	"chatline/internal/model"
)

// BubbleState is the display state of a message bubble.
type BubbleState string

const (
	StateLoading   BubbleState = "loading"
	StateStreaming BubbleState = "streaming"
	StateDone      BubbleState = "done"
	StateError     BubbleState = "error"
	StateStopped   BubbleState = "stopped"
)

// ErrorAuthor replaces the author label of a failed response.
const ErrorAuthor = "Error"

// StoppedText is shown in a response stopped before any output.
const StoppedText = "Stopped"

// Bubble is one rendered message.
type Bubble struct {
	ID     string      `json:"id"`
	Role   model.Role  `json:"role"`
	Author string      `json:"author"`
	Raw    string      `json:"raw"`
	HTML   string      `json:"html"`
	Notice string      `json:"notice,omitempty"`
	Images []string    `json:"images,omitempty"`
	State  BubbleState `json:"state"`
}

// Target receives incremental rendering instructions for a conversation.
type Target interface {
	AppendBubble(b Bubble)
	SetLoading(slot string, on bool)
	SetContent(slot, raw, html string)
	SetNotice(slot, text string)
	SetError(slot, text string)
	SetStopped(slot string)
	SetGenerating(on bool)
	Reset(welcome bool)
}

// Snapshot is the full state of a View.
type Snapshot struct {
	Bubbles    []Bubble `json:"bubbles"`
	Generating bool     `json:"generating"`
	Welcome    bool     `json:"welcome"`
}

// View is a Target that keeps the rendered transcript in memory.
type View struct {
	mu         sync.RWMutex
	bubbles    []Bubble
	index      map[string]int
	generating bool
	welcome    bool
}

func NewView() *View {
	return &View{index: make(map[string]int), welcome: true}
}

// AppendBubble adds b, or replaces the bubble with the same id in place.
func (v *View) AppendBubble(b Bubble) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if b.State == "" {
		b.State = StateDone
	}
	v.welcome = false
	if i, ok := v.index[b.ID]; ok {
		v.bubbles[i] = b
		return
	}
	v.index[b.ID] = len(v.bubbles)
	v.bubbles = append(v.bubbles, b)
}

// update applies fn to the bubble with the given id, if present.
func (v *View) update(slot string, fn func(b *Bubble)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i, ok := v.index[slot]; ok {
		fn(&v.bubbles[i])
	}
}

func (v *View) SetLoading(slot string, on bool) {
	v.update(slot, func(b *Bubble) {
		switch {
		case on:
			b.State = StateLoading
		case b.State == StateLoading:
			b.State = StateStreaming
		}
	})
}

func (v *View) SetContent(slot, raw, html string) {
	v.update(slot, func(b *Bubble) {
		b.Raw = raw
		b.HTML = html
		if b.State == StateLoading {
			b.State = StateStreaming
		}
	})
}

func (v *View) SetNotice(slot, text string) {
	v.update(slot, func(b *Bubble) { b.Notice = text })
}

func (v *View) SetError(slot, text string) {
	v.update(slot, func(b *Bubble) {
		b.Author = ErrorAuthor
		b.Raw = text
		b.HTML = "<p>" + html.EscapeString(text) + "</p>"
		b.State = StateError
	})
}

func (v *View) SetStopped(slot string) {
	v.update(slot, func(b *Bubble) {
		b.Raw = StoppedText
		b.HTML = "<p>" + StoppedText + "</p>"
		b.State = StateStopped
	})
}

func (v *View) SetGenerating(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.generating = on
	if on {
		return
	}
	for i := range v.bubbles {
		if v.bubbles[i].State == StateStreaming || v.bubbles[i].State == StateLoading {
			v.bubbles[i].State = StateDone
		}
	}
}

func (v *View) Reset(welcome bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bubbles = nil
	v.index = make(map[string]int)
	v.welcome = welcome
}

// Bubble returns the bubble with the given id.
func (v *View) Bubble(slot string) (Bubble, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	i, ok := v.index[slot]
	if !ok {
		return Bubble{}, false
	}
	return v.bubbles[i], true
}

func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	bubbles := make([]Bubble, len(v.bubbles))
	copy(bubbles, v.bubbles)
	return Snapshot{Bubbles: bubbles, Generating: v.generating, Welcome: v.welcome}
}
