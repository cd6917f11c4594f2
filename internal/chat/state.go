package chat

import (
	"slices"

	"github.com/suPer8Hu/ads-dashboard/internal/ai"
	"github.com/suPer8Hu/ads-dashboard/internal/common"
)

type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseAwaitingResponse  Phase = "awaiting_response"
	PhaseStreamingResponse Phase = "streaming_response"
	PhaseError             Phase = "error"
)

const maxNotices = 10

// SessionState is everything the chat view owns for one dashboard user. It is passed
// explicitly to every Controller operation and serialized between requests.
type SessionState struct {
	SessionID string       `json:"session_id"`
	Messages  []ai.Message `json:"messages"`

	// ToolCalls is the ledger of resolved tool calls; PendingToolCalls lists requests that
	// have not (yet) been answered.
	ToolCalls        []ToolCallRecord `json:"tool_calls"`
	PendingToolCalls []ToolCallRecord `json:"pending_tool_calls,omitempty"`

	StagedImage string `json:"staged_image,omitempty"`
	Streaming   bool   `json:"streaming"`
	Phase       Phase  `json:"phase"`
	Rating      *int   `json:"rating,omitempty"`

	LastTokenUsage ai.TokenUsage `json:"last_token_usage,omitempty"`

	History          []SessionSummary `json:"history"`
	HistoryExhausted bool             `json:"history_exhausted"`

	Notices []string `json:"notices,omitempty"`
}

func NewSessionState() *SessionState {
	return &SessionState{
		SessionID: common.MustULID(),
		Messages:  []ai.Message{},
		ToolCalls: []ToolCallRecord{},
		Phase:     PhaseIdle,
	}
}

func (s *SessionState) HasStagedImage() bool { return s.StagedImage != "" }

// StageImage replaces any previously staged image.
func (s *SessionState) StageImage(base64Image string) { s.StagedImage = base64Image }

func (s *SessionState) ClearImage() { s.StagedImage = "" }

// takeImage consumes the staged image.
func (s *SessionState) takeImage() string {
	img := s.StagedImage
	s.StagedImage = ""
	return img
}

func (s *SessionState) addNotice(msg string) {
	s.Notices = append(s.Notices, msg)
	if len(s.Notices) > maxNotices {
		s.Notices = s.Notices[len(s.Notices)-maxNotices:]
	}
}

// DrainNotices returns and clears pending user-visible notices.
func (s *SessionState) DrainNotices() []string {
	n := s.Notices
	s.Notices = nil
	return n
}

func (s *SessionState) rebuildLedger() {
	s.ToolCalls = ParseToolCalls(s.Messages)
	s.PendingToolCalls = PendingToolCalls(s.Messages)
}

// Snapshot returns a read-only copy that shares no slices with s. The staged image
// payload is dropped.
func (s *SessionState) Snapshot() SessionState {
	cp := *s
	cp.Messages = slices.Clone(s.Messages)
	cp.ToolCalls = slices.Clone(s.ToolCalls)
	cp.PendingToolCalls = slices.Clone(s.PendingToolCalls)
	cp.History = slices.Clone(s.History)
	cp.Notices = slices.Clone(s.Notices)
	cp.LastTokenUsage = slices.Clone(s.LastTokenUsage)
	if s.Rating != nil {
		r := *s.Rating
		cp.Rating = &r
	}
	cp.StagedImage = ""
	return cp
}
