package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ads-dashboard/internal/common"
	"github.com/suPer8Hu/ads-dashboard/internal/httpapi/handlers"
	"github.com/suPer8Hu/ads-dashboard/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(h.Log))
	r.Use(middleware.Recovery(h.Log))
	if len(h.Cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(h.Cfg.CORSOrigins))
	}

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	// dashboard (state keyed by the dashboard session)
	dash := r.Group("/")
	dash.Use(middleware.DashboardSession(int(h.Cfg.StateTTL.Seconds())))

	dash.GET("/ads", h.GetAds)
	dash.POST("/ads/refresh", h.RefreshAds)
	dash.POST("/ads/more", h.LoadMoreAds)
	dash.PUT("/ads/filters", h.ApplyAdFilters)
	dash.DELETE("/ads/filters", h.ClearAdFilters)
	dash.PUT("/ads/:ad_archive_id/tags", h.UpdateAdTags)
	dash.POST("/ads/:ad_archive_id/tags", h.AddAdTag)
	dash.DELETE("/ads/:ad_archive_id", h.DeleteAd)

	dash.GET("/chat", h.GetChat)
	dash.POST("/chat/messages", h.SendChatMessage)
	dash.POST("/chat/reset", h.ResetChat)
	dash.POST("/chat/sessions/:session_id/load", h.LoadChatSession)
	dash.PUT("/chat/streaming", h.SetChatStreaming)
	dash.PUT("/chat/image", h.StageChatImage)
	dash.DELETE("/chat/image", h.ClearChatImage)
	dash.PUT("/chat/rating", h.RateChatSession)
	dash.POST("/chat/history/more", h.LoadMoreChatHistory)

	// browser extension
	ext := r.Group("/meta-ads")
	ext.Use(middleware.APIKey(h.Cfg.ExtensionAPIKey))
	ext.GET("/all-saved-ads", h.AllSavedAds)
	ext.POST("/save", h.SaveAd)
	ext.POST("/unsave", h.UnsaveAd)
	ext.POST("/update-tags", h.UpdateSavedAdTags)
	ext.POST("/competitors", h.RegisterCompetitor)

	return r
}
