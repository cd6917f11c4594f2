package chat

import (
	"context"
	"time"

	"github.com/suPer8Hu/ads-dashboard/internal/ai"
)

// Session is a persisted conversation.
type Session struct {
	ID          string       `json:"session_id"`
	Messages    []ai.Message `json:"messages"`
	NumMessages int          `json:"num_messages"`
	Rating      *int         `json:"rating,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// SessionSummary is one entry of the chat history list.
type SessionSummary struct {
	ID          string    `json:"session_id"`
	NumMessages int       `json:"num_messages"`
	Rating      *int      `json:"rating,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is the slice of the persistence gateway the chat controller needs.
// GetSession returns an error matching apperr.ErrNotFound when the id is unknown.
// AppendSessionMessage creates the session on its first message.
type Store interface {
	GetSession(ctx context.Context, id string) (*Session, error)
	AppendSessionMessage(ctx context.Context, id string, m ai.Message) error
	SetSessionRating(ctx context.Context, id string, rating int) error
	FetchSessionHistoryPage(ctx context.Context, skip, limit int) ([]SessionSummary, error)
}

// Workflow is the external chat webhook.
type Workflow interface {
	Chat(ctx context.Context, req ai.ChatRequest) ([]ai.Message, error)
	Stream(ctx context.Context, req ai.ChatRequest) (*ai.Decoder, error)
}
