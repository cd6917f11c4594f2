package chat

import "github.com/suPer8Hu/ads-dashboard/internal/ai"

// ToolCallRecord pairs a tool-call request with its result. Result is nil until the
// matching tool message arrives.
type ToolCallRecord struct {
	ID         string  `json:"id"`
	Tool       string  `json:"tool"`
	Parameters string  `json:"parameters"`
	Result     *string `json:"result,omitempty"`
}

func (r ToolCallRecord) Pending() bool { return r.Result == nil }

// pairToolCalls registers one record per assistant tool-call request and fills results
// from later tool messages. Records keep first-registration order. A tool message whose
// id was never requested is ignored; a repeated request id keeps its first position.
func pairToolCalls(messages []ai.Message) []ToolCallRecord {
	var records []ToolCallRecord
	index := make(map[string]int)

	for _, m := range messages {
		switch m.Role {
		case ai.RoleAssistant:
			for _, tc := range m.ToolCalls {
				if _, seen := index[tc.ID]; seen {
					continue
				}
				index[tc.ID] = len(records)
				records = append(records, ToolCallRecord{
					ID:         tc.ID,
					Tool:       tc.ToolName,
					Parameters: tc.ArgumentsJSON,
				})
			}
		case ai.RoleTool:
			i, ok := index[m.ToolCallID]
			if !ok {
				continue
			}
			result := m.Content.String()
			records[i].Result = &result
		}
	}
	return records
}

// ParseToolCalls returns the resolved tool calls of a transcript, in request order.
// Requests without a result are left out; see PendingToolCalls.
func ParseToolCalls(messages []ai.Message) []ToolCallRecord {
	all := pairToolCalls(messages)
	out := make([]ToolCallRecord, 0, len(all))
	for _, r := range all {
		if !r.Pending() {
			out = append(out, r)
		}
	}
	return out
}

// PendingToolCalls returns the requests that never received a result.
func PendingToolCalls(messages []ai.Message) []ToolCallRecord {
	var out []ToolCallRecord
	for _, r := range pairToolCalls(messages) {
		if r.Pending() {
			out = append(out, r)
		}
	}
	return out
}
