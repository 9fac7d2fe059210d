package llm

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"chatline/internal/model"
)

// ErrCanceled is delivered when a generation is stopped by its caller.
var ErrCanceled = errors.New("generation canceled")

// Fragment is one item of a generation stream. Exactly one field is set.
type Fragment struct {
	// Text is an incremental piece of assistant output.
	Text string
	// Notice is an out-of-band message for the view. It is not part of the
	// assistant's answer.
	Notice string
	// Err terminates the stream.
	Err error
}

// Backend produces an assistant response for a message history.
//
// Stream returns a setup error (for example a *StatusError) before any
// fragment is produced. Otherwise the returned channel yields fragments in
// order and is closed when the stream ends. A fragment carrying Err is always
// the last one. Implementations stop producing when ctx is done.
type Backend interface {
	Stream(ctx context.Context, history []model.Message) (<-chan Fragment, error)
	// Label is the display label recorded on the assistant message.
	Label() string
}

// FrameError is an error payload the backend interleaved in the stream.
type FrameError struct {
	Message string
}

func (e *FrameError) Error() string { return e.Message }

// StatusError is a non-success HTTP response from the completion endpoint.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Code)
	}
	return e.Message
}

// IsCanceled reports whether err stems from caller cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}
