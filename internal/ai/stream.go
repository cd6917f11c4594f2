package ai

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/suPer8Hu/ads-dashboard/internal/apperr"
	"github.com/suPer8Hu/ads-dashboard/internal/logger"
)

type EventKind string

const (
	EventInit      EventKind = "init"
	EventContent   EventKind = "content"
	EventToolStart EventKind = "tool_start"
	EventToolEnd   EventKind = "tool_end"
	EventComplete  EventKind = "complete"
	EventError     EventKind = "error"
)

// TokenUsage is reported by the workflow as [input, output].
type TokenUsage []int

// StreamEvent is one decoded event of a streamed turn. Only the fields relevant to Kind
// are set.
type StreamEvent struct {
	Kind       EventKind  `json:"type"`
	Message    string     `json:"message,omitempty"`
	Text       string     `json:"chunk,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	TokenUsage TokenUsage `json:"token_usage,omitempty"`
}

// Terminal reports whether the stream ends after this event.
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventComplete || e.Kind == EventError
}

const dataPrefix = "data: "

// maxLineBytes bounds a single stream line. Longer lines are dropped like malformed ones.
const maxLineBytes = 2 * 1024 * 1024

type rawEvent struct {
	Type       string          `json:"type"`
	Message    string          `json:"message"`
	Chunk      string          `json:"chunk"`
	ToolName   string          `json:"tool_name"`
	TokenUsage json.RawMessage `json:"token_usage"`
	Success    *bool           `json:"success"`
	Error      string          `json:"error"`
}

// Decoder turns a line-oriented `data: <json>` body into StreamEvents. It is forward-only
// and cannot be restarted. The body is closed once a terminal event is seen or the body
// ends.
type Decoder struct {
	body io.ReadCloser
	r    *bufio.Reader
	log  *logger.Logger

	// readErr ends the stream on the next call once the event read with it is returned
	readErr error

	acc     strings.Builder
	chunks  int
	skipped int
	done    bool
	err     error
}

func NewDecoder(body io.ReadCloser, log *logger.Logger) *Decoder {
	if log == nil {
		log = logger.Nop()
	}
	// long JSON lines are normal for tool payloads
	return &Decoder{body: body, r: bufio.NewReaderSize(body, maxLineBytes), log: log}
}

// Next returns the next event, or false once the stream has ended.
func (d *Decoder) Next() (StreamEvent, bool) {
	if d.done {
		return StreamEvent{}, false
	}
	for d.readErr == nil {
		line, err := d.readLine()
		if err != nil {
			d.readErr = err
		}
		ev, ok := d.parseLine(line)
		if !ok {
			continue
		}
		if ev.Kind == EventContent {
			d.acc.WriteString(ev.Text)
			d.chunks++
		}
		if ev.Terminal() {
			d.finish(nil)
		}
		return ev, true
	}
	err := d.readErr
	if errors.Is(err, io.EOF) {
		err = nil
	}
	d.finish(err)
	return StreamEvent{}, false
}

// readLine returns the next line without its terminator. A line that does not fit the
// buffer is discarded and counted as skipped; reading continues after it.
func (d *Decoder) readLine() ([]byte, error) {
	line, err := d.r.ReadSlice('\n')
	if !errors.Is(err, bufio.ErrBufferFull) {
		return bytes.TrimRight(line, "\r\n"), err
	}
	n := len(line)
	for errors.Is(err, bufio.ErrBufferFull) {
		line, err = d.r.ReadSlice('\n')
		n += len(line)
	}
	d.skipped++
	d.log.Warn("skipping oversized stream line",
		"error", apperr.Wrap(apperr.ErrDecode, "stream.read_line", fmt.Errorf("line of %d bytes exceeds %d", n, maxLineBytes)))
	return nil, err
}

// Events adapts the decoder to a range-over-func sequence.
func (d *Decoder) Events() iter.Seq[StreamEvent] {
	return func(yield func(StreamEvent) bool) {
		for {
			ev, ok := d.Next()
			if !ok {
				return
			}
			if !yield(ev) {
				_ = d.Close()
				return
			}
		}
	}
}

// Text is every content chunk seen so far, concatenated in arrival order.
func (d *Decoder) Text() string { return d.acc.String() }

// Chunks is the number of content events seen so far.
func (d *Decoder) Chunks() int { return d.chunks }

// Skipped is the number of malformed lines dropped.
func (d *Decoder) Skipped() int { return d.skipped }

// Err is the read error that ended the stream, if any. A clean close returns nil.
func (d *Decoder) Err() error { return d.err }

// Close abandons the stream. Safe to call more than once.
func (d *Decoder) Close() error {
	if d.done {
		return nil
	}
	d.finish(nil)
	return nil
}

func (d *Decoder) finish(err error) {
	d.done = true
	d.err = err
	_ = d.body.Close()
}

func (d *Decoder) parseLine(line []byte) (StreamEvent, bool) {
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return StreamEvent{}, false
	}
	data := bytes.TrimSpace(line[len(dataPrefix):])
	if len(data) == 0 {
		return StreamEvent{}, false
	}

	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		d.skipped++
		d.log.Warn("skipping malformed stream line",
			"error", apperr.Wrap(apperr.ErrDecode, "stream.parse_line", err), "line", truncate(data, 200))
		return StreamEvent{}, false
	}

	switch EventKind(raw.Type) {
	case EventInit:
		return StreamEvent{Kind: EventInit, Message: raw.Message}, true
	case EventContent:
		return StreamEvent{Kind: EventContent, Text: raw.Chunk}, true
	case EventToolStart:
		return StreamEvent{Kind: EventToolStart, ToolName: raw.ToolName}, true
	case EventToolEnd:
		return StreamEvent{Kind: EventToolEnd, ToolName: raw.ToolName}, true
	case EventComplete:
		return StreamEvent{Kind: EventComplete, TokenUsage: parseTokenUsage(raw.TokenUsage)}, true
	case EventError:
		msg := raw.Message
		if msg == "" {
			msg = raw.Error
		}
		return StreamEvent{Kind: EventError, Message: msg}, true
	}

	// success:false only counts when the type is not one of the above
	if raw.Success != nil && !*raw.Success {
		msg := raw.Error
		if msg == "" {
			msg = raw.Message
		}
		if msg == "" {
			msg = "Unknown error"
		}
		return StreamEvent{Kind: EventError, Message: msg}, true
	}
	d.log.Debug("ignoring unknown stream event", "type", raw.Type)
	return StreamEvent{}, false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func parseTokenUsage(raw json.RawMessage) TokenUsage {
	if len(raw) == 0 {
		return nil
	}
	var usage TokenUsage
	if err := json.Unmarshal(raw, &usage); err != nil {
		return nil
	}
	return usage
}
