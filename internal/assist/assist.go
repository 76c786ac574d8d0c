// Package assist bridges rooms to an external AI completion backend.
//
// The backend is opaque to this server: it is consumed as a single
// request-to-text function. Prompt construction, model selection and the
// HTTP mechanics of the inference call all live on the other side of
// CompleteFunc.
package assist

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pairpad/pairpad/internal/collab"
	"github.com/pairpad/pairpad/internal/logging"
)

const (
	// MaxRetries is the maximum number of retries for a failed completion.
	MaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 10 * time.Second
	// RetryMaxElapsedTime is the maximum total time spent retrying.
	RetryMaxElapsedTime = time.Minute
)

// ErrNoBackend is returned when no completion backend is configured.
var ErrNoBackend = errors.New("no completion backend configured")

// CompleteFunc turns a prompt into a completion.
type CompleteFunc func(ctx context.Context, prompt string) (string, error)

// Broadcaster injects an event into every member of a named room.
type Broadcaster interface {
	Broadcast(roomID string, v any) int
}

// Assistant asks the completion backend for a reply and posts it into a
// room as a chat message from the assistant identity.
type Assistant struct {
	complete CompleteFunc
	rooms    Broadcaster
	userName string

	now func() time.Time
}

// New creates an Assistant. complete may be nil, in which case Reply
// fails with ErrNoBackend.
func New(complete CompleteFunc, rooms Broadcaster) *Assistant {
	return &Assistant{
		complete: complete,
		rooms:    rooms,
		userName: "assistant",
		now:      time.Now,
	}
}

// newRetryBackoff creates an exponential backoff with jitter for
// completion retries, cancelable through ctx.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// Reply requests a completion for prompt and broadcasts it into roomID
// as a chat message. The completion call is retried with exponential
// backoff; the broadcast itself stays best-effort like every other
// fan-out. Returns the completion text.
func (a *Assistant) Reply(ctx context.Context, roomID, prompt string) (string, error) {
	if a.complete == nil {
		return "", ErrNoBackend
	}

	var reply string
	op := func() error {
		text, err := a.complete(ctx, prompt)
		if err != nil {
			logging.Warn().Err(err).Str("roomID", roomID).Msg("completion attempt failed")
			return err
		}
		reply = text
		return nil
	}
	if err := backoff.Retry(op, newRetryBackoff(ctx)); err != nil {
		return "", err
	}

	a.rooms.Broadcast(roomID, collab.ChatMessage{
		Type:      collab.MsgChatMessage,
		UserID:    "assistant",
		UserName:  a.userName,
		Message:   reply,
		Timestamp: a.now().UnixMilli(),
	})
	return reply, nil
}
