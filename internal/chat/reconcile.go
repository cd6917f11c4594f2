package chat

import (
	"errors"
	"iter"
	"strings"

	"github.com/suPer8Hu/ads-dashboard/internal/ai"
)

var (
	// ErrStreamFailed is returned when the stream carried an error event.
	ErrStreamFailed = errors.New("stream reported an error")
	// ErrEmptyStream is returned when the stream ended without a terminal event and
	// without any content.
	ErrEmptyStream = errors.New("stream ended without content")
)

// StreamError carries the message of an in-stream error event.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return "stream error: " + e.Message }

func (e *StreamError) Unwrap() error { return ErrStreamFailed }

// Observer receives every event of a streamed turn as it arrives, for live rendering.
type Observer func(ai.StreamEvent)

// TurnResult is the outcome of a reconciled streamed turn.
type TurnResult struct {
	Message    ai.Message
	TokenUsage ai.TokenUsage
	// Partial is set when the stream ended without a complete event but had content.
	Partial bool
}

// ReconcileStreamedTurn folds a streamed turn into one assistant message. Content chunks
// are concatenated in arrival order; init and tool events only reach the observer.
func ReconcileStreamedTurn(events iter.Seq[ai.StreamEvent], observe Observer) (TurnResult, error) {
	var b strings.Builder
	chunks := 0

	for ev := range events {
		if observe != nil {
			observe(ev)
		}
		switch ev.Kind {
		case ai.EventContent:
			b.WriteString(ev.Text)
			chunks++
		case ai.EventError:
			return TurnResult{}, &StreamError{Message: ev.Message}
		case ai.EventComplete:
			return TurnResult{
				Message:    ai.AssistantMessage(b.String()),
				TokenUsage: ev.TokenUsage,
			}, nil
		}
	}

	if chunks == 0 {
		return TurnResult{}, ErrEmptyStream
	}
	return TurnResult{Message: ai.AssistantMessage(b.String()), Partial: true}, nil
}
