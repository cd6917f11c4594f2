package chat

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/ads-dashboard/internal/ai"
	"github.com/suPer8Hu/ads-dashboard/internal/apperr"
)

type memStore struct {
	sessions  map[string]*Session
	failWrite bool
	clock     time.Time
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]*Session{}, clock: time.Unix(1700000000, 0)}
}

func (s *memStore) GetSession(ctx context.Context, id string) (*Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperr.NotFound("mem.get_session")
	}
	cp := *sess
	cp.Messages = append([]ai.Message(nil), sess.Messages...)
	return &cp, nil
}

func (s *memStore) AppendSessionMessage(ctx context.Context, id string, m ai.Message) error {
	if s.failWrite {
		return apperr.Persistence("mem.append", errors.New("disk full"))
	}
	s.clock = s.clock.Add(time.Second)
	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{ID: id, CreatedAt: s.clock}
		s.sessions[id] = sess
	}
	sess.Messages = append(sess.Messages, m)
	sess.NumMessages = len(sess.Messages)
	sess.UpdatedAt = s.clock
	return nil
}

func (s *memStore) SetSessionRating(ctx context.Context, id string, rating int) error {
	sess, ok := s.sessions[id]
	if !ok {
		return apperr.NotFound("mem.rate")
	}
	sess.Rating = &rating
	return nil
}

func (s *memStore) FetchSessionHistoryPage(ctx context.Context, skip, limit int) ([]SessionSummary, error) {
	all := make([]SessionSummary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, SessionSummary{ID: sess.ID, NumMessages: sess.NumMessages, Rating: sess.Rating, CreatedAt: sess.CreatedAt, UpdatedAt: sess.UpdatedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	if skip >= len(all) {
		return []SessionSummary{}, nil
	}
	end := min(skip+limit, len(all))
	return all[skip:end], nil
}

type fakeWorkflow struct {
	reply     []ai.Message
	chatErr   error
	stream    string
	streamErr error
	// hang keeps the stream open after its content until the request context ends
	hang      bool
	requests  []ai.ChatRequest
}

func (w *fakeWorkflow) Chat(ctx context.Context, req ai.ChatRequest) ([]ai.Message, error) {
	w.requests = append(w.requests, req)
	if w.chatErr != nil {
		return nil, w.chatErr
	}
	return w.reply, nil
}

func (w *fakeWorkflow) Stream(ctx context.Context, req ai.ChatRequest) (*ai.Decoder, error) {
	w.requests = append(w.requests, req)
	if w.streamErr != nil {
		return nil, w.streamErr
	}
	if w.hang {
		return ai.NewDecoder(io.NopCloser(io.MultiReader(strings.NewReader(w.stream), ctxReader{ctx})), nil), nil
	}
	return ai.NewDecoder(io.NopCloser(strings.NewReader(w.stream)), nil), nil
}

type ctxReader struct{ ctx context.Context }

func (r ctxReader) Read(p []byte) (int, error) {
	<-r.ctx.Done()
	return 0, r.ctx.Err()
}

func newTestController(store *memStore, wf *fakeWorkflow) *Controller {
	return NewController(store, wf, nil, Options{Model: "gpt-test", IsTestChat: true, HistoryPageSize: 2})
}

func TestSendMessageNonStreaming(t *testing.T) {
	store := newMemStore()
	wf := &fakeWorkflow{reply: []ai.Message{
		assistantWithCalls(ai.ToolCallRequest{ID: "c1", ToolName: "search_ads", ArgumentsJSON: `{"q":"shoes"}`}),
		toolResult("c1", "4 ads"),
		ai.AssistantMessage("Found 4 ads."),
	}}
	c := newTestController(store, wf)
	st := NewSessionState()

	turn, err := c.SendMessage(context.Background(), st, "  find shoe ads ", nil)
	require.NoError(t, err)
	require.NoError(t, turn.Failure)

	require.Len(t, wf.requests, 1)
	assert.Equal(t, ai.ChatRequest{UserQuery: "find shoe ads", SessionID: st.SessionID, IsTestChat: true, Model: "gpt-test"}, wf.requests[0])

	assert.Len(t, st.Messages, 4)
	assert.Equal(t, PhaseIdle, st.Phase)
	require.Len(t, turn.ToolCalls, 1)
	assert.Equal(t, "search_ads", turn.ToolCalls[0].Tool)
	assert.Equal(t, turn.ToolCalls, st.ToolCalls)

	persisted := store.sessions[st.SessionID]
	require.NotNil(t, persisted, "session is created on first write")
	assert.Equal(t, st.Messages, persisted.Messages)
}

func TestSendMessageStreaming(t *testing.T) {
	store := newMemStore()
	wf := &fakeWorkflow{stream: strings.Join([]string{
		`data: {"type":"init","message":"hi"}`,
		`data: {"type":"content","chunk":"Hello "}`,
		`data: {"type":"tool_start","tool_name":"lookup"}`,
		`data: {"type":"tool_end","tool_name":"lookup"}`,
		`data: {"type":"content","chunk":"world"}`,
		`data: {"type":"complete","token_usage":[10,5]}`,
	}, "\n")}
	c := newTestController(store, wf)
	st := NewSessionState()
	st.Streaming = true

	var live []string
	turn, err := c.SendMessage(context.Background(), st, "hello", func(ev ai.StreamEvent) {
		if ev.Kind == ai.EventContent {
			live = append(live, ev.Text)
			// nothing is persisted mid-stream
			assert.Len(t, store.sessions[st.SessionID].Messages, 1)
		}
	})
	require.NoError(t, err)
	require.NoError(t, turn.Failure)

	assert.Equal(t, []string{"Hello ", "world"}, live)
	assert.Equal(t, ai.TokenUsage{10, 5}, turn.TokenUsage)
	assert.Equal(t, ai.TokenUsage{10, 5}, st.LastTokenUsage)
	require.Len(t, st.Messages, 2)
	assert.Equal(t, ai.AssistantMessage("Hello world"), st.Messages[1])
	assert.Equal(t, st.Messages, store.sessions[st.SessionID].Messages)
}

func TestSendMessageStreamErrorEventIsNotPersisted(t *testing.T) {
	store := newMemStore()
	wf := &fakeWorkflow{stream: "data: {\"type\":\"content\",\"chunk\":\"x\"}\ndata: {\"success\":false,\"error\":\"boom\"}\n"}
	c := newTestController(store, wf)
	st := NewSessionState()
	st.Streaming = true

	turn, err := c.SendMessage(context.Background(), st, "hello", nil)
	require.NoError(t, err)
	require.Error(t, turn.Failure)
	assert.True(t, errors.Is(turn.Failure, ErrStreamFailed))

	require.Len(t, st.Messages, 2)
	assert.Equal(t, FailureMessage, st.Messages[1].Content.String())

	persisted := store.sessions[st.SessionID].Messages
	require.Len(t, persisted, 1, "only the user message reaches history")
	assert.Equal(t, ai.RoleUser, persisted[0].Role)
	assert.Equal(t, PhaseIdle, st.Phase)
}

func TestSendMessageTransportFailureAppendsFailureMessage(t *testing.T) {
	store := newMemStore()
	wf := &fakeWorkflow{chatErr: apperr.Transport("webhook.chat", errors.New("connection refused"))}
	c := newTestController(store, wf)
	st := NewSessionState()

	turn, err := c.SendMessage(context.Background(), st, "hello", nil)
	require.NoError(t, err)
	assert.True(t, errors.Is(turn.Failure, apperr.ErrTransport))

	persisted := store.sessions[st.SessionID].Messages
	require.Len(t, persisted, 2)
	assert.Equal(t, FailureMessage, persisted[1].Content.String())
	assert.Equal(t, PhaseIdle, st.Phase)
}

func TestSendMessageEmptyStreamFails(t *testing.T) {
	store := newMemStore()
	wf := &fakeWorkflow{stream: "data: {\"type\":\"init\"}\n"}
	c := newTestController(store, wf)
	st := NewSessionState()
	st.Streaming = true

	turn, err := c.SendMessage(context.Background(), st, "hello", nil)
	require.NoError(t, err)
	assert.True(t, errors.Is(turn.Failure, ErrEmptyStream))
	assert.Len(t, store.sessions[st.SessionID].Messages, 2)
}

func TestSendMessagePersistenceFailureKeepsMemoryState(t *testing.T) {
	store := newMemStore()
	store.failWrite = true
	wf := &fakeWorkflow{reply: []ai.Message{ai.AssistantMessage("ok")}}
	c := newTestController(store, wf)
	st := NewSessionState()

	turn, err := c.SendMessage(context.Background(), st, "hello", nil)
	require.NoError(t, err)
	require.NoError(t, turn.Failure)

	assert.Len(t, st.Messages, 2)
	assert.NotEmpty(t, st.DrainNotices())
	assert.Empty(t, st.Notices)
}

func TestSendMessageRejectsEmptyAndBusy(t *testing.T) {
	c := newTestController(newMemStore(), &fakeWorkflow{})
	st := NewSessionState()

	_, err := c.SendMessage(context.Background(), st, "   ", nil)
	assert.True(t, errors.Is(err, apperr.ErrInvalid))

	st.Phase = PhaseStreamingResponse
	_, err = c.SendMessage(context.Background(), st, "hi", nil)
	assert.True(t, errors.Is(err, apperr.ErrBusy))
	assert.Empty(t, st.Messages)
}

func TestStagedImageIsConsumedOnce(t *testing.T) {
	store := newMemStore()
	wf := &fakeWorkflow{reply: []ai.Message{ai.AssistantMessage("nice picture")}}
	c := newTestController(store, wf)
	st := NewSessionState()
	st.StageImage("aW1hZ2U=")

	_, err := c.SendMessage(context.Background(), st, "what is this?", nil)
	require.NoError(t, err)
	_, err = c.SendMessage(context.Background(), st, "and now?", nil)
	require.NoError(t, err)

	require.Len(t, wf.requests, 2)
	assert.Equal(t, "aW1hZ2U=", wf.requests[0].Image)
	assert.Empty(t, wf.requests[1].Image)
	assert.True(t, st.Messages[0].WithImage)
	assert.False(t, st.Messages[2].WithImage)
	assert.False(t, st.HasStagedImage())
}

func TestLoadSessionRebuildsLedger(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	for _, m := range sampleTranscript() {
		require.NoError(t, store.AppendSessionMessage(ctx, "01HISTORY", m))
	}
	c := newTestController(store, &fakeWorkflow{})
	st := NewSessionState()
	st.StageImage("stale")

	loaded, err := c.LoadSession(ctx, st, "01HISTORY")
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, "01HISTORY", st.SessionID)
	assert.Equal(t, sampleTranscript(), st.Messages)
	assert.Len(t, st.ToolCalls, 2)
	assert.Len(t, st.PendingToolCalls, 1)
	assert.False(t, st.HasStagedImage())
}

func TestLoadSessionNotFoundResets(t *testing.T) {
	store := newMemStore()
	c := newTestController(store, &fakeWorkflow{})
	st := NewSessionState()
	st.Messages = append(st.Messages, ai.UserMessage("old", false))
	st.Streaming = true
	oldID := st.SessionID

	loaded, err := c.LoadSession(context.Background(), st, "nonexistent-id")
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.Empty(t, st.Messages)
	assert.Empty(t, st.ToolCalls)
	assert.NotEqual(t, oldID, st.SessionID)
	assert.NotEqual(t, "nonexistent-id", st.SessionID)
	assert.True(t, st.Streaming, "streaming preference survives a reset")
}

func TestResetChatKeepsStoredSession(t *testing.T) {
	store := newMemStore()
	c := newTestController(store, &fakeWorkflow{reply: []ai.Message{ai.AssistantMessage("ok")}})
	st := NewSessionState()
	ctx := context.Background()

	_, err := c.SendMessage(ctx, st, "hello", nil)
	require.NoError(t, err)
	oldID := st.SessionID

	c.ResetChat(ctx, st)
	assert.NotEqual(t, oldID, st.SessionID)
	assert.Empty(t, st.Messages)
	assert.Contains(t, store.sessions, oldID)
	require.Len(t, st.History, 1)
	assert.Equal(t, oldID, st.History[0].ID)
	assert.NotContains(t, store.sessions, st.SessionID, "new session is created lazily")
}

func TestHistoryPaging(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, store.AppendSessionMessage(ctx, id, ai.UserMessage(id, false)))
	}
	c := newTestController(store, &fakeWorkflow{})
	st := NewSessionState()

	n, err := c.LoadHistory(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, st.HistoryExhausted)

	n, err = c.LoadMoreHistory(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, st.HistoryExhausted)

	n, err = c.LoadMoreHistory(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	ids := []string{st.History[0].ID, st.History[1].ID, st.History[2].ID}
	assert.Equal(t, []string{"s3", "s2", "s1"}, ids)
}

func TestRateSession(t *testing.T) {
	store := newMemStore()
	c := newTestController(store, &fakeWorkflow{reply: []ai.Message{ai.AssistantMessage("ok")}})
	st := NewSessionState()
	ctx := context.Background()

	assert.True(t, errors.Is(c.RateSession(ctx, st, 3), apperr.ErrInvalid), "empty chat cannot be rated")

	_, err := c.SendMessage(ctx, st, "hello", nil)
	require.NoError(t, err)

	assert.True(t, errors.Is(c.RateSession(ctx, st, 6), apperr.ErrInvalid))
	require.NoError(t, c.RateSession(ctx, st, 5))
	require.NotNil(t, st.Rating)
	assert.Equal(t, 5, *st.Rating)
	assert.Equal(t, 5, *store.sessions[st.SessionID].Rating)
}

func TestSendMessageStreamIsBoundedByTurnTimeout(t *testing.T) {
	store := newMemStore()
	wf := &fakeWorkflow{stream: "data: {\"type\":\"content\",\"chunk\":\"partial\"}\n", hang: true}
	c := NewController(store, wf, nil, Options{TurnTimeout: 50 * time.Millisecond})
	st := NewSessionState()
	st.Streaming = true

	start := time.Now()
	turn, err := c.SendMessage(context.Background(), st, "hi", nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.True(t, turn.Partial)
	require.Len(t, st.Messages, 2)
	assert.Equal(t, "partial", st.Messages[1].Content.String())
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Len(t, store.sessions[st.SessionID].Messages, 2)
}
