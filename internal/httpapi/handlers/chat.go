package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ads-dashboard/internal/ai"
	"github.com/suPer8Hu/ads-dashboard/internal/chat"
	"github.com/suPer8Hu/ads-dashboard/internal/common"
)

// withChat runs op under the dashboard's turn lock against its chat state, saves the
// state and responds with the chat snapshot plus extra.
func (h *Handler) withChat(c *gin.Context, op func(ctx context.Context, st *chat.SessionState) (gin.H, error)) {
	ctx := c.Request.Context()
	id := dashboardID(c)

	release, err := h.States.AcquireTurn(ctx, id)
	if err != nil {
		h.failErr(c, err)
		return
	}
	defer release()

	st, err := h.loadChat(ctx, id)
	if err != nil {
		h.failErr(c, err)
		return
	}

	var extra gin.H
	var opErr error
	if op != nil {
		extra, opErr = op(ctx, st)
	}
	// rendering consumes notices, so it happens before the save
	var view chatView
	if opErr == nil {
		view = h.chatSnapshot(st)
	}
	if err := h.saveChat(ctx, id, st); err != nil {
		h.failErr(c, err)
		return
	}
	if opErr != nil {
		h.failErr(c, opErr)
		return
	}

	resp := gin.H{"chat": view}
	for k, v := range extra {
		resp[k] = v
	}
	common.OK(c, resp)
}

// loadChat returns the chat state, loading the history sidebar for a new visitor.
func (h *Handler) loadChat(ctx context.Context, id string) (*chat.SessionState, error) {
	state, err := h.loadState(ctx, id)
	if err != nil {
		return nil, err
	}
	st := state.Chat
	if st.History == nil {
		if _, err := h.ChatSvc.LoadHistory(ctx, st); err != nil {
			h.Log.Warn("failed to load chat history", "error", err)
		}
	}
	return st, nil
}

func (h *Handler) GetChat(c *gin.Context) {
	h.withChat(c, nil)
}

func (h *Handler) ResetChat(c *gin.Context) {
	h.withChat(c, func(ctx context.Context, st *chat.SessionState) (gin.H, error) {
		h.ChatSvc.ResetChat(ctx, st)
		return nil, nil
	})
}

func (h *Handler) LoadChatSession(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	h.withChat(c, func(ctx context.Context, st *chat.SessionState) (gin.H, error) {
		loaded, err := h.ChatSvc.LoadSession(ctx, st, sessionID)
		return gin.H{"loaded": loaded}, err
	})
}

func (h *Handler) LoadMoreChatHistory(c *gin.Context) {
	h.withChat(c, func(ctx context.Context, st *chat.SessionState) (gin.H, error) {
		n, err := h.ChatSvc.LoadMoreHistory(ctx, st)
		return gin.H{"loaded": n}, err
	})
}

type streamingReq struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) SetChatStreaming(c *gin.Context) {
	var req streamingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	h.withChat(c, func(ctx context.Context, st *chat.SessionState) (gin.H, error) {
		st.Streaming = *req.Enabled
		return nil, nil
	})
}

type ratingReq struct {
	Rating *int `json:"rating" binding:"required"`
}

func (h *Handler) RateChatSession(c *gin.Context) {
	var req ratingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	h.withChat(c, func(ctx context.Context, st *chat.SessionState) (gin.H, error) {
		return nil, h.ChatSvc.RateSession(ctx, st, *req.Rating)
	})
}

var allowedImageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

// StageChatImage reads the multipart "image" field and stages it, base64 encoded, for
// the next message.
func (h *Handler) StageChatImage(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "image file required")
		return
	}
	if fh.Size > h.Cfg.MaxImageBytes {
		common.Fail(c, http.StatusRequestEntityTooLarge, 41301, "image too large")
		return
	}
	f, err := fh.Open()
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "image file required")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.Cfg.MaxImageBytes+1))
	if err != nil {
		h.failErr(c, err)
		return
	}
	if int64(len(data)) > h.Cfg.MaxImageBytes {
		common.Fail(c, http.StatusRequestEntityTooLarge, 41301, "image too large")
		return
	}
	if _, ok := allowedImageTypes[http.DetectContentType(data)]; !ok {
		common.Fail(c, http.StatusUnsupportedMediaType, 41501, "unsupported image type")
		return
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	h.withChat(c, func(ctx context.Context, st *chat.SessionState) (gin.H, error) {
		st.StageImage(encoded)
		return nil, nil
	})
}

func (h *Handler) ClearChatImage(c *gin.Context) {
	h.withChat(c, func(ctx context.Context, st *chat.SessionState) (gin.H, error) {
		st.ClearImage()
		return nil, nil
	})
}

type sendMessageReq struct {
	Message string `json:"message" binding:"required"`
}

// SendChatMessage runs one turn. With streaming off the reply is a regular envelope;
// with streaming on the turn is relayed as server-sent events.
func (h *Handler) SendChatMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	ctx := c.Request.Context()
	id := dashboardID(c)

	release, err := h.States.AcquireTurn(ctx, id)
	if err != nil {
		h.failErr(c, err)
		return
	}
	defer release()

	st, err := h.loadChat(ctx, id)
	if err != nil {
		h.failErr(c, err)
		return
	}

	if st.Streaming {
		h.streamTurn(c, id, st, req.Message)
		return
	}

	turn, err := h.ChatSvc.SendMessage(ctx, st, req.Message, nil)
	var view chatView
	if err == nil {
		view = h.chatSnapshot(st)
	}
	if saveErr := h.saveChat(ctx, id, st); saveErr != nil {
		h.failErr(c, saveErr)
		return
	}
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"turn": newTurnView(turn), "chat": view})
}

type turnOutcome struct {
	turn chat.Turn
	err  error
}

func (h *Handler) streamTurn(c *gin.Context, id string, st *chat.SessionState, text string) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		common.Fail(c, http.StatusInternalServerError, 50004, "streaming not supported")
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx

	// avoid gin writing a JSON response later
	c.Status(http.StatusOK)

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			// last-resort: send a simple error that won't break SSE framing
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	relay := func(ev ai.StreamEvent) {
		switch ev.Kind {
		case ai.EventInit:
			writeJSON("init", gin.H{"type": "init", "message": ev.Message})
		case ai.EventContent:
			writeJSON("chunk", gin.H{"type": "chunk", "delta": ev.Text})
		case ai.EventToolStart, ai.EventToolEnd:
			writeJSON("tool", gin.H{"type": string(ev.Kind), "tool_name": ev.ToolName})
		}
	}

	ctx := c.Request.Context()
	events := make(chan ai.StreamEvent, 64)
	done := make(chan turnOutcome, 1)

	go func() {
		turn, err := h.ChatSvc.SendMessage(ctx, st, text, func(ev ai.StreamEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
		done <- turnOutcome{turn: turn, err: err}
	}()

	// heartbeat ticker (keeps connections alive)
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			relay(ev)

		case <-ticker.C:
			writeJSON("ping", gin.H{"type": "ping", "ts": time.Now().Unix()})

		case out := <-done:
			// events sent before the turn returned are still buffered
			for drained := false; !drained; {
				select {
				case ev := <-events:
					relay(ev)
				default:
					drained = true
				}
			}

			var view chatView
			if out.err == nil {
				view = h.chatSnapshot(st)
			}
			if err := h.saveChat(ctx, id, st); err != nil {
				h.Log.Error("failed to save chat state", "dashboard_session", id, "error", err)
			}
			if out.err != nil {
				writeJSON("error", gin.H{"type": "error", "message": out.err.Error()})
				return
			}
			writeJSON("done", gin.H{
				"type": "done",
				"turn": newTurnView(out.turn),
				"chat": view,
			})
			return
		}
	}
}
