package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/ads-dashboard/internal/ai"
	"github.com/suPer8Hu/ads-dashboard/internal/apperr"
	"github.com/suPer8Hu/ads-dashboard/internal/logger"
)

// FailureMessage is shown in place of an assistant reply when a turn fails.
const FailureMessage = "Sorry, an error occurred. Please try again refreshing the app."

const defaultHistoryPageSize = 20

type Options struct {
	Model           string
	IsTestChat      bool
	HistoryPageSize int
	// TurnTimeout bounds a whole turn, streamed ones included. Zero means no bound.
	TurnTimeout     time.Duration
}

// Controller runs chat operations against an explicit SessionState.
type Controller struct {
	store    Store
	workflow Workflow
	log      *logger.Logger
	opts     Options
}

func NewController(store Store, workflow Workflow, log *logger.Logger, opts Options) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	if opts.HistoryPageSize <= 0 || opts.HistoryPageSize > 100 {
		opts.HistoryPageSize = defaultHistoryPageSize
	}
	return &Controller{
		store:    store,
		workflow: workflow,
		log:      log.With("component", "ChatController"),
		opts:     opts,
	}
}

// Turn describes what a SendMessage call appended after the user message.
type Turn struct {
	Messages   []ai.Message     `json:"messages"`
	ToolCalls  []ToolCallRecord `json:"tool_calls"`
	TokenUsage ai.TokenUsage    `json:"token_usage,omitempty"`
	// Partial marks a streamed reply that ended without a complete event.
	Partial bool `json:"partial,omitempty"`
	// Failure is the cause when the synthetic failure message was appended instead of a reply.
	Failure error `json:"-"`
}

// SendMessage runs one turn: the user message is appended and persisted, then the
// workflow is called (streamed when st.Streaming is set). Workflow failures never
// surface as an error; they append FailureMessage and are reported in Turn.Failure.
// The returned error is reserved for rejected input.
func (c *Controller) SendMessage(ctx context.Context, st *SessionState, text string, observe Observer) (Turn, error) {
	const op = "chat.send_message"

	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, apperr.Invalid(op, "message is empty")
	}
	if st.Phase == PhaseAwaitingResponse || st.Phase == PhaseStreamingResponse {
		return Turn{}, apperr.Wrap(apperr.ErrBusy, op, nil)
	}
	defer func() { st.Phase = PhaseIdle }()

	if c.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.TurnTimeout)
		defer cancel()
	}

	image := st.takeImage()
	userMsg := ai.UserMessage(text, image != "")
	st.Messages = append(st.Messages, userMsg)
	_ = c.persist(ctx, st, userMsg)

	req := ai.ChatRequest{
		UserQuery:  text,
		SessionID:  st.SessionID,
		IsTestChat: c.opts.IsTestChat,
		Model:      c.opts.Model,
		Image:      image,
	}

	if st.Streaming {
		st.Phase = PhaseStreamingResponse
		return c.streamTurn(ctx, st, req, observe), nil
	}
	st.Phase = PhaseAwaitingResponse
	return c.plainTurn(ctx, st, req), nil
}

func (c *Controller) plainTurn(ctx context.Context, st *SessionState, req ai.ChatRequest) Turn {
	msgs, err := c.workflow.Chat(ctx, req)
	if err != nil {
		return c.fail(ctx, st, err, true)
	}

	before := st.ToolCalls
	for _, m := range msgs {
		st.Messages = append(st.Messages, m)
		_ = c.persist(ctx, st, m)
	}
	st.rebuildLedger()

	return Turn{
		Messages:  msgs,
		ToolCalls: newRecords(st.ToolCalls, before),
	}
}

func (c *Controller) streamTurn(ctx context.Context, st *SessionState, req ai.ChatRequest, observe Observer) Turn {
	dec, err := c.workflow.Stream(ctx, req)
	if err != nil {
		return c.fail(ctx, st, err, true)
	}
	defer dec.Close()

	res, err := ReconcileStreamedTurn(dec.Events(), observe)
	if err != nil {
		if errors.Is(err, ErrStreamFailed) {
			// the workflow produced no reply; nothing goes to history
			return c.fail(ctx, st, err, false)
		}
		if readErr := dec.Err(); readErr != nil {
			err = apperr.Transport("chat.stream", readErr)
		}
		return c.fail(ctx, st, err, true)
	}
	if res.Partial {
		c.log.Warn("stream ended without complete event",
			"session_id", st.SessionID, "chars", len(dec.Text()), "read_error", dec.Err())
	}
	if n := dec.Skipped(); n > 0 {
		c.log.Warn("stream had malformed lines", "session_id", st.SessionID, "skipped", n)
	}

	before := st.ToolCalls
	st.Messages = append(st.Messages, res.Message)
	_ = c.persist(ctx, st, res.Message)
	st.LastTokenUsage = res.TokenUsage
	st.rebuildLedger()

	return Turn{
		Messages:   []ai.Message{res.Message},
		ToolCalls:  newRecords(st.ToolCalls, before),
		TokenUsage: res.TokenUsage,
		Partial:    res.Partial,
	}
}

func (c *Controller) fail(ctx context.Context, st *SessionState, cause error, persist bool) Turn {
	st.Phase = PhaseError
	c.log.Error("chat turn failed", "session_id", st.SessionID, "error", cause)

	msg := ai.AssistantMessage(FailureMessage)
	st.Messages = append(st.Messages, msg)
	if persist {
		_ = c.persist(ctx, st, msg)
	}
	return Turn{Messages: []ai.Message{msg}, Failure: cause}
}

// persist writes m and records a notice on failure. In-memory state is kept either way.
// A cancelled request still gets its transcript written.
func (c *Controller) persist(ctx context.Context, st *SessionState, m ai.Message) error {
	if err := c.store.AppendSessionMessage(context.WithoutCancel(ctx), st.SessionID, m); err != nil {
		c.log.Error("failed to persist chat message", "session_id", st.SessionID, "role", m.Role, "error", err)
		st.addNotice("This message could not be saved and will be missing from the chat history.")
		return err
	}
	return nil
}

// newRecords returns the ledger entries of now that were not resolved in before.
func newRecords(now, before []ToolCallRecord) []ToolCallRecord {
	seen := make(map[string]struct{}, len(before))
	for _, r := range before {
		seen[r.ID] = struct{}{}
	}
	out := []ToolCallRecord{}
	for _, r := range now {
		if _, ok := seen[r.ID]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// ResetChat starts a fresh conversation. The previous session stays in storage.
func (c *Controller) ResetChat(ctx context.Context, st *SessionState) {
	streaming := st.Streaming
	*st = *NewSessionState()
	st.Streaming = streaming
	if _, err := c.LoadHistory(ctx, st); err != nil {
		c.log.Warn("failed to refresh chat history", "error", err)
	}
}

// LoadSession replaces the transcript with a persisted session. An unknown id falls
// back to ResetChat and reports loaded=false.
func (c *Controller) LoadSession(ctx context.Context, st *SessionState, id string) (loaded bool, err error) {
	sess, err := c.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			c.log.Info("chat session not found, starting a new one", "session_id", id)
			c.ResetChat(ctx, st)
			return false, nil
		}
		st.addNotice("Could not load the chat session.")
		return false, err
	}

	st.SessionID = sess.ID
	st.Messages = append([]ai.Message{}, sess.Messages...)
	st.StagedImage = ""
	st.Rating = sess.Rating
	st.LastTokenUsage = nil
	st.Phase = PhaseIdle
	st.rebuildLedger()

	c.log.Info("loaded chat session", "session_id", sess.ID, "messages", len(sess.Messages))
	return true, nil
}

// LoadHistory replaces the history list with its first page.
func (c *Controller) LoadHistory(ctx context.Context, st *SessionState) (int, error) {
	page, err := c.store.FetchSessionHistoryPage(ctx, 0, c.opts.HistoryPageSize)
	if err != nil {
		return 0, err
	}
	st.History = page
	st.HistoryExhausted = len(page) < c.opts.HistoryPageSize
	return len(page), nil
}

// LoadMoreHistory appends the next history page, skipping what is already listed.
func (c *Controller) LoadMoreHistory(ctx context.Context, st *SessionState) (int, error) {
	page, err := c.store.FetchSessionHistoryPage(ctx, len(st.History), c.opts.HistoryPageSize)
	if err != nil {
		return 0, err
	}
	if len(page) == 0 {
		st.HistoryExhausted = true
		return 0, nil
	}
	st.History = append(st.History, page...)
	st.HistoryExhausted = len(page) < c.opts.HistoryPageSize
	return len(page), nil
}

// RateSession stores a 0..5 rating for the active session, then reflects it in st.
func (c *Controller) RateSession(ctx context.Context, st *SessionState, rating int) error {
	const op = "chat.rate_session"
	if rating < 0 || rating > 5 {
		return apperr.Invalid(op, "rating %d out of range 0..5", rating)
	}
	if len(st.Messages) == 0 {
		return apperr.Invalid(op, "nothing to rate yet")
	}
	if err := c.store.SetSessionRating(ctx, st.SessionID, rating); err != nil {
		st.addNotice("The rating could not be saved.")
		return fmt.Errorf("%s: %w", op, err)
	}
	st.Rating = &rating
	for i := range st.History {
		if st.History[i].ID == st.SessionID {
			st.History[i].Rating = &rating
		}
	}
	return nil
}
