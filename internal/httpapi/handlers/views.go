package handlers

import (
	"github.com/suPer8Hu/ads-dashboard/internal/ads"
	"github.com/suPer8Hu/ads-dashboard/internal/ai"
	"github.com/suPer8Hu/ads-dashboard/internal/chat"
)

type chatView struct {
	chat.SessionState
	HasImage    bool   `json:"has_image"`
	WorkflowURL string `json:"workflow_url,omitempty"`
}

// chatSnapshot renders st and consumes its pending notices.
func (h *Handler) chatSnapshot(st *chat.SessionState) chatView {
	v := chatView{
		SessionState: st.Snapshot(),
		HasImage:     st.HasStagedImage(),
		WorkflowURL:  h.Cfg.ChatWorkflowURL,
	}
	st.DrainNotices()
	return v
}

type turnView struct {
	Messages   []ai.Message          `json:"messages"`
	ToolCalls  []chat.ToolCallRecord `json:"tool_calls"`
	TokenUsage ai.TokenUsage         `json:"token_usage,omitempty"`
	Partial    bool                  `json:"partial,omitempty"`
	Failed     bool                  `json:"failed"`
	Error      string                `json:"error,omitempty"`
}

func newTurnView(t chat.Turn) turnView {
	v := turnView{
		Messages:   t.Messages,
		ToolCalls:  t.ToolCalls,
		TokenUsage: t.TokenUsage,
		Partial:    t.Partial,
		Failed:     t.Failure != nil,
	}
	if t.Failure != nil {
		v.Error = t.Failure.Error()
	}
	return v
}

type adView struct {
	ads.Ad
	LibraryURL string `json:"library_url"`
	Competitor string `json:"competitor,omitempty"`
}

type adsView struct {
	Ads          []adView          `json:"ads"`
	Cursor       uint64            `json:"cursor"`
	SelectedTags []string          `json:"selected_tags"`
	Type         ads.TypeFilter    `json:"type"`
	Vocabulary   []string          `json:"vocabulary"`
	Competitors  map[string]string `json:"competitors"`
	Exhausted    bool              `json:"exhausted"`
	Notices      []string          `json:"notices,omitempty"`
}

// adsSnapshot renders st and consumes its pending notices.
func adsSnapshot(st *ads.State) adsView {
	list := make([]adView, 0, len(st.Ads))
	for _, a := range st.Ads {
		name, _ := st.CompetitorName(a)
		list = append(list, adView{Ad: a, LibraryURL: a.LibraryURL(), Competitor: name})
	}
	return adsView{
		Ads:          list,
		Cursor:       st.Cursor,
		SelectedTags: append([]string{}, st.SelectedTags...),
		Type:         st.Type,
		Vocabulary:   append([]string{}, st.Vocabulary...),
		Competitors:  st.Competitors,
		Exhausted:    st.Exhausted,
		Notices:      st.DrainNotices(),
	}
}
