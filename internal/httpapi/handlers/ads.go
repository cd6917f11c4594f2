package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ads-dashboard/internal/ads"
	"github.com/suPer8Hu/ads-dashboard/internal/common"
)

// withAds runs op against the caller's ads view, initializing it on first use, saves the
// view and responds with its snapshot plus extra.
func (h *Handler) withAds(c *gin.Context, op func(ctx context.Context, st *ads.State) (gin.H, error)) {
	ctx := c.Request.Context()
	id := dashboardID(c)

	state, err := h.loadState(ctx, id)
	if err != nil {
		h.failErr(c, err)
		return
	}
	st := state.Ads
	if !st.Initialized {
		if err := h.Ads.Init(ctx, st); err != nil {
			h.failErr(c, err)
			return
		}
	}

	extra, opErr := op(ctx, st)
	// rendering consumes notices, so it happens before the save
	var view adsView
	if opErr == nil {
		view = adsSnapshot(st)
	}
	if err := h.saveAds(ctx, id, st); err != nil {
		h.failErr(c, err)
		return
	}
	if opErr != nil {
		h.failErr(c, opErr)
		return
	}

	resp := gin.H{"ads": view}
	for k, v := range extra {
		resp[k] = v
	}
	common.OK(c, resp)
}

func (h *Handler) GetAds(c *gin.Context) {
	h.withAds(c, func(ctx context.Context, st *ads.State) (gin.H, error) {
		return nil, nil
	})
}

func (h *Handler) RefreshAds(c *gin.Context) {
	h.withAds(c, func(ctx context.Context, st *ads.State) (gin.H, error) {
		return nil, h.Ads.Refresh(ctx, st)
	})
}

func (h *Handler) LoadMoreAds(c *gin.Context) {
	h.withAds(c, func(ctx context.Context, st *ads.State) (gin.H, error) {
		n, err := h.Ads.LoadMore(ctx, st)
		return gin.H{"loaded": n}, err
	})
}

type applyFiltersReq struct {
	Tags []string `json:"tags"`
	Type string   `json:"type"`
}

func (h *Handler) ApplyAdFilters(c *gin.Context) {
	var req applyFiltersReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	h.withAds(c, func(ctx context.Context, st *ads.State) (gin.H, error) {
		return nil, h.Ads.ApplyFilters(ctx, st, req.Tags, ads.TypeFilter(req.Type))
	})
}

func (h *Handler) ClearAdFilters(c *gin.Context) {
	h.withAds(c, func(ctx context.Context, st *ads.State) (gin.H, error) {
		return nil, h.Ads.ClearFilters(ctx, st)
	})
}

type updateTagsReq struct {
	Tags []string `json:"tags"`
}

func (h *Handler) UpdateAdTags(c *gin.Context) {
	var req updateTagsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	adID := c.Param("ad_archive_id")
	h.withAds(c, func(ctx context.Context, st *ads.State) (gin.H, error) {
		tags, err := h.Ads.UpdateTags(ctx, st, adID, req.Tags)
		return gin.H{"tags": tags}, err
	})
}

type addTagReq struct {
	Tag string `json:"tag" binding:"required"`
}

func (h *Handler) AddAdTag(c *gin.Context) {
	var req addTagReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Tag) == "" {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	adID := c.Param("ad_archive_id")
	h.withAds(c, func(ctx context.Context, st *ads.State) (gin.H, error) {
		tags, err := h.Ads.AddTag(ctx, st, adID, req.Tag)
		return gin.H{"tags": tags}, err
	})
}

func (h *Handler) DeleteAd(c *gin.Context) {
	adID := c.Param("ad_archive_id")
	h.withAds(c, func(ctx context.Context, st *ads.State) (gin.H, error) {
		return gin.H{"deleted": adID}, h.Ads.DeleteAd(ctx, st, adID)
	})
}
