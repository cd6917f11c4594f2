package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ads-dashboard/internal/ads"
	"github.com/suPer8Hu/ads-dashboard/internal/apperr"
	"github.com/suPer8Hu/ads-dashboard/internal/chat"
	"github.com/suPer8Hu/ads-dashboard/internal/common"
	"github.com/suPer8Hu/ads-dashboard/internal/config"
	"github.com/suPer8Hu/ads-dashboard/internal/dashboard"
	"github.com/suPer8Hu/ads-dashboard/internal/httpapi/middleware"
	"github.com/suPer8Hu/ads-dashboard/internal/logger"
)

type Handler struct {
	Cfg     config.Config
	Log     *logger.Logger
	States  dashboard.Store
	Ads     *ads.Browser
	ChatSvc *chat.Controller
}

func NewHandler(cfg config.Config, log *logger.Logger, states dashboard.Store, browser *ads.Browser, chatSvc *chat.Controller) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		Cfg:     cfg,
		Log:     log.With("component", "HTTPHandler"),
		States:  states,
		Ads:     browser,
		ChatSvc: chatSvc,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func dashboardID(c *gin.Context) string {
	return c.GetString(middleware.DashboardSessionKey)
}

// failErr maps an operation error onto the response envelope.
func (h *Handler) failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalid):
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40004, "not found")
	case errors.Is(err, apperr.ErrBusy):
		common.Fail(c, http.StatusConflict, 40901, "a chat turn is already in progress")
	case errors.Is(err, apperr.ErrPersistence):
		h.Log.Error("storage error", "request_id", c.GetString(middleware.RequestIDKey), "error", err)
		common.Fail(c, http.StatusInternalServerError, 50003, "storage error")
	default:
		h.Log.Error("internal error", "request_id", c.GetString(middleware.RequestIDKey), "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

// loadState returns the stored dashboard state, or a fresh one for a new visitor.
func (h *Handler) loadState(ctx context.Context, id string) (*dashboard.State, error) {
	st, err := h.States.Load(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return dashboard.NewState(), nil
	}
	return st, err
}

// savePart re-reads the stored state and applies only the part the request owns, so a
// long chat turn does not overwrite ads changes made meanwhile (and vice versa).
func (h *Handler) savePart(ctx context.Context, id string, apply func(*dashboard.State)) error {
	ctx = context.WithoutCancel(ctx)
	cur, err := h.loadState(ctx, id)
	if err != nil {
		return err
	}
	apply(cur)
	return h.States.Save(ctx, id, cur)
}

func (h *Handler) saveChat(ctx context.Context, id string, st *chat.SessionState) error {
	return h.savePart(ctx, id, func(cur *dashboard.State) { cur.Chat = st })
}

func (h *Handler) saveAds(ctx context.Context, id string, st *ads.State) error {
	return h.savePart(ctx, id, func(cur *dashboard.State) { cur.Ads = st })
}
