package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one element of a structured (list) message body.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Content is either plain text or a structured list of parts. Parts != nil marks the
// structured form, even when empty.
type Content struct {
	Text  string
	Parts []ContentPart
}

func TextContent(s string) Content { return Content{Text: s} }

func (c Content) IsStructured() bool { return c.Parts != nil }

// String flattens the content for display; structured parts contribute their text.
func (c Content) String() string {
	if !c.IsStructured() {
		return c.Text
	}
	var b strings.Builder
	for _, p := range c.Parts {
		if p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsStructured() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = Content{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Content{Text: s}
		return nil
	case '[':
		parts := []ContentPart{}
		if err := json.Unmarshal(b, &parts); err != nil {
			return err
		}
		*c = Content{Parts: parts}
		return nil
	default:
		return fmt.Errorf("content: expected string or list, got %q", string(b[:1]))
	}
}

// ToolCallRequest is a tool invocation requested by an assistant message.
type ToolCallRequest struct {
	ID            string `json:"id"`
	ToolName      string `json:"name"`
	ArgumentsJSON string `json:"arguments"`
}

// UnmarshalJSON accepts the flat form {id, name, arguments} and the nested
// {id, function: {name, arguments}} form; arguments may be a JSON string or object.
func (t *ToolCallRequest) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
		Function  *struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"function"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	name, args := raw.Name, raw.Arguments
	if raw.Function != nil {
		if name == "" {
			name = raw.Function.Name
		}
		if len(args) == 0 {
			args = raw.Function.Arguments
		}
	}
	argStr, err := argumentsString(args)
	if err != nil {
		return err
	}
	*t = ToolCallRequest{ID: raw.ID, ToolName: name, ArgumentsJSON: argStr}
	return nil
}

func argumentsString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type Message struct {
	Role       Role              `json:"role"`
	Content    Content           `json:"content"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	WithImage  bool              `json:"with_image,omitempty"`
}

func UserMessage(text string, withImage bool) Message {
	return Message{Role: RoleUser, Content: TextContent(text), WithImage: withImage}
}

func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: TextContent(text)}
}

var errInvalidMessage = errors.New("invalid message")

// Validate enforces the per-role shape: only assistant messages carry tool calls, and a
// tool message references exactly one tool call id.
func (m Message) Validate() error {
	switch m.Role {
	case RoleUser:
		if len(m.ToolCalls) > 0 || m.ToolCallID != "" {
			return fmt.Errorf("%w: user message with tool fields", errInvalidMessage)
		}
	case RoleAssistant:
		if m.ToolCallID != "" {
			return fmt.Errorf("%w: assistant message with tool_call_id", errInvalidMessage)
		}
		for i, tc := range m.ToolCalls {
			if strings.TrimSpace(tc.ID) == "" {
				return fmt.Errorf("%w: tool call %d has no id", errInvalidMessage, i)
			}
		}
	case RoleTool:
		if strings.TrimSpace(m.ToolCallID) == "" {
			return fmt.Errorf("%w: tool message without tool_call_id", errInvalidMessage)
		}
		if len(m.ToolCalls) > 0 {
			return fmt.Errorf("%w: tool message with tool calls", errInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown role %q", errInvalidMessage, m.Role)
	}
	return nil
}
