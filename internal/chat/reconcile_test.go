package chat

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/ads-dashboard/internal/ai"
)

func chunk(s string) ai.StreamEvent { return ai.StreamEvent{Kind: ai.EventContent, Text: s} }

func TestReconcileHelloWorld(t *testing.T) {
	events := []ai.StreamEvent{
		{Kind: ai.EventInit, Message: "started"},
		chunk("Hello "),
		chunk("world"),
		{Kind: ai.EventComplete, TokenUsage: ai.TokenUsage{10, 5}},
	}

	var seen []ai.EventKind
	res, err := ReconcileStreamedTurn(slices.Values(events), func(ev ai.StreamEvent) {
		seen = append(seen, ev.Kind)
	})
	require.NoError(t, err)

	assert.Equal(t, ai.Message{Role: ai.RoleAssistant, Content: ai.TextContent("Hello world")}, res.Message)
	assert.Equal(t, ai.TokenUsage{10, 5}, res.TokenUsage)
	assert.False(t, res.Partial)
	assert.Equal(t, []ai.EventKind{ai.EventInit, ai.EventContent, ai.EventContent, ai.EventComplete}, seen)
}

func TestReconcileConcatenatesInArrivalOrder(t *testing.T) {
	parts := []string{"a", "", "bc", " d ", "\n", "é"}
	var events []ai.StreamEvent
	for i, p := range parts {
		events = append(events, chunk(p))
		if i%2 == 0 {
			events = append(events, ai.StreamEvent{Kind: ai.EventToolStart, ToolName: "t"})
		}
	}
	events = append(events, ai.StreamEvent{Kind: ai.EventComplete})

	res, err := ReconcileStreamedTurn(slices.Values(events), nil)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(parts, ""), res.Message.Content.String())
}

func TestReconcileErrorEventFails(t *testing.T) {
	events := []ai.StreamEvent{chunk("partial"), {Kind: ai.EventError, Message: "workflow crashed"}}

	res, err := ReconcileStreamedTurn(slices.Values(events), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStreamFailed))

	var se *StreamError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "workflow crashed", se.Message)
	assert.Empty(t, res.Message.Role)
}

func TestReconcilePartialContentIsSoftSuccess(t *testing.T) {
	res, err := ReconcileStreamedTurn(slices.Values([]ai.StreamEvent{chunk("cut "), chunk("off")}), nil)
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, "cut off", res.Message.Content.String())
}

func TestReconcileNoContentFails(t *testing.T) {
	_, err := ReconcileStreamedTurn(slices.Values([]ai.StreamEvent{{Kind: ai.EventInit}}), nil)
	assert.True(t, errors.Is(err, ErrEmptyStream))
}
