package ai

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func newBody(s string) *trackingBody { return &trackingBody{Reader: strings.NewReader(s)} }

func collect(d *Decoder) []StreamEvent {
	var out []StreamEvent
	for ev := range d.Events() {
		out = append(out, ev)
	}
	return out
}

func TestDecoderClassifiesEvents(t *testing.T) {
	body := newBody(strings.Join([]string{
		`data: {"type":"init","message":"starting"}`,
		`: comment line`,
		`event: ignored`,
		`data: {"type":"content","chunk":"Hello "}`,
		``,
		`data: {"type":"tool_start","tool_name":"search"}`,
		`data: {"type":"tool_end","tool_name":"search"}`,
		`data: {"type":"content","chunk":"world"}`,
		`data: {"type":"complete","token_usage":[10,5]}`,
	}, "\n"))

	d := NewDecoder(body, nil)
	events := collect(d)

	require.Len(t, events, 6)
	assert.Equal(t, StreamEvent{Kind: EventInit, Message: "starting"}, events[0])
	assert.Equal(t, StreamEvent{Kind: EventContent, Text: "Hello "}, events[1])
	assert.Equal(t, StreamEvent{Kind: EventToolStart, ToolName: "search"}, events[2])
	assert.Equal(t, StreamEvent{Kind: EventToolEnd, ToolName: "search"}, events[3])
	assert.Equal(t, StreamEvent{Kind: EventComplete, TokenUsage: TokenUsage{10, 5}}, events[5])
	assert.Equal(t, "Hello world", d.Text())
	assert.Equal(t, 2, d.Chunks())
	assert.True(t, body.closed)
}

func TestDecoderSkipsMalformedAndBlankData(t *testing.T) {
	body := newBody("data: {not json\ndata:    \ndata: {\"type\":\"content\",\"chunk\":\"ok\"}\n")
	d := NewDecoder(body, nil)
	events := collect(d)

	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Text)
	assert.Equal(t, 1, d.Skipped())
	assert.NoError(t, d.Err())
}

func TestDecoderRequiresLiteralPrefix(t *testing.T) {
	d := NewDecoder(newBody("data:{\"type\":\"content\",\"chunk\":\"x\"}\n"), nil)
	assert.Empty(t, collect(d))
}

func TestDecoderStopsAtTerminalEvents(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		d := NewDecoder(newBody("data: {\"type\":\"complete\"}\ndata: {\"type\":\"content\",\"chunk\":\"late\"}\n"), nil)
		events := collect(d)
		require.Len(t, events, 1)
		assert.Equal(t, EventComplete, events[0].Kind)
		assert.Empty(t, d.Text())
	})

	t.Run("success false", func(t *testing.T) {
		d := NewDecoder(newBody("data: {\"type\":\"content\",\"chunk\":\"a\"}\ndata: {\"success\":false,\"error\":\"boom\"}\ndata: {\"type\":\"content\",\"chunk\":\"b\"}\n"), nil)
		events := collect(d)
		require.Len(t, events, 2)
		assert.Equal(t, StreamEvent{Kind: EventError, Message: "boom"}, events[1])
		assert.Equal(t, "a", d.Text())
	})

	t.Run("success false without message", func(t *testing.T) {
		d := NewDecoder(newBody("data: {\"success\":false}\n"), nil)
		events := collect(d)
		require.Len(t, events, 1)
		assert.Equal(t, "Unknown error", events[0].Message)
	})
}

func TestDecoderAccumulatesWhenCallerStopsEarly(t *testing.T) {
	body := newBody("data: {\"type\":\"content\",\"chunk\":\"a\"}\ndata: {\"type\":\"content\",\"chunk\":\"b\"}\n")
	d := NewDecoder(body, nil)
	for range d.Events() {
		break
	}
	assert.Equal(t, "a", d.Text())
	assert.True(t, body.closed)

	_, ok := d.Next()
	assert.False(t, ok, "decoder is not restartable")
}

type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "data: {\"type\":\"content\",\"chunk\":\"part\"}\n"), nil
	}
	return 0, errors.New("connection reset")
}

func TestDecoderReportsReadError(t *testing.T) {
	body := &trackingBody{Reader: &failingReader{}}
	d := NewDecoder(body, nil)
	events := collect(d)

	require.Len(t, events, 1)
	assert.EqualError(t, d.Err(), "connection reset")
	assert.Equal(t, "part", d.Text())
}

func TestDecoderSkipsOversizedLine(t *testing.T) {
	huge := `data: {"type":"tool_end","tool_name":"` + strings.Repeat("x", 3*1024*1024) + `"}`
	body := newBody(strings.Join([]string{
		`data: {"type":"content","chunk":"a"}`,
		huge,
		`data: {"type":"content","chunk":"b"}`,
		`data: {"type":"complete"}`,
	}, "\n") + "\n")
	d := NewDecoder(body, nil)
	events := collect(d)

	require.Len(t, events, 3)
	assert.Equal(t, EventComplete, events[2].Kind)
	assert.Equal(t, "ab", d.Text())
	assert.Equal(t, 1, d.Skipped())
	assert.NoError(t, d.Err())
	assert.True(t, body.closed)
}

func TestDecoderReadsLastLineWithoutNewline(t *testing.T) {
	d := NewDecoder(newBody("data: {\"type\":\"content\",\"chunk\":\"x\"}\r\ndata: {\"type\":\"content\",\"chunk\":\"y\"}"), nil)
	events := collect(d)

	require.Len(t, events, 2)
	assert.Equal(t, "xy", d.Text())
	assert.NoError(t, d.Err())
}

func TestDecoderClassifiesByTypeBeforeSuccessFlag(t *testing.T) {
	d := NewDecoder(newBody("data: {\"type\":\"content\",\"chunk\":\"a\",\"success\":false}\ndata: {\"type\":\"content\",\"chunk\":\"b\"}\n"), nil)
	events := collect(d)

	require.Len(t, events, 2)
	assert.Equal(t, EventContent, events[0].Kind)
	assert.Equal(t, "ab", d.Text())
}
