package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ads-dashboard/internal/ads"
	"github.com/suPer8Hu/ads-dashboard/internal/apperr"
)

// The browser extension reads {success, error, ...} bodies rather than the dashboard
// envelope.

// archiveID accepts the ad id as a JSON string or number.
type archiveID string

func (a *archiveID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = archiveID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("adId: %w", err)
	}
	*a = archiveID(n.String())
	return nil
}

func extFail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func (h *Handler) extFailErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		extFail(c, http.StatusNotFound, "ad not found")
	case errors.Is(err, apperr.ErrInvalid):
		extFail(c, http.StatusBadRequest, err.Error())
	default:
		h.Log.Error("extension request failed", "path", c.FullPath(), "error", err)
		extFail(c, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) AllSavedAds(c *gin.Context) {
	refs, tags, err := h.Ads.Saved(c.Request.Context())
	if err != nil {
		h.Log.Error("list saved ads failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "ads": []ads.SavedRef{}, "tags": []string{}, "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ads": refs, "tags": tags})
}

type saveAdReq struct {
	AdID        archiveID       `json:"adId"`
	VideoURL    *string         `json:"videoUrl"`
	PosterURL   *string         `json:"posterUrl"`
	ImgURL      *string         `json:"imgUrl"`
	QueryParams map[string]any  `json:"query_params"`
	FullText    string          `json:"full_html_text"`
	Tags        []string        `json:"tags"`
	ExtraData   json.RawMessage `json:"extra_data"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (h *Handler) SaveAd(c *gin.Context) {
	var req saveAdReq
	if err := c.ShouldBindJSON(&req); err != nil || req.AdID == "" {
		extFail(c, http.StatusBadRequest, "adId is required")
		return
	}

	saved, err := h.Ads.SaveAd(c.Request.Context(), ads.NewAd{
		AdArchiveID: string(req.AdID),
		VideoURL:    deref(req.VideoURL),
		PosterURL:   deref(req.PosterURL),
		ImgURL:      deref(req.ImgURL),
		QueryParams: req.QueryParams,
		FullText:    req.FullText,
		Tags:        req.Tags,
		ExtraData:   req.ExtraData,
	})
	if err != nil {
		h.extFailErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ad_archive_id": saved.AdArchiveID, "tags": saved.Tags})
}

type unsaveAdReq struct {
	AdID archiveID `json:"adId"`
}

func (h *Handler) UnsaveAd(c *gin.Context) {
	var req unsaveAdReq
	if err := c.ShouldBindJSON(&req); err != nil || req.AdID == "" {
		extFail(c, http.StatusBadRequest, "adId is required")
		return
	}
	if err := h.Ads.UnsaveAd(c.Request.Context(), string(req.AdID)); err != nil {
		h.extFailErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type competitorReq struct {
	PageID   archiveID `json:"pageId"`
	PageName string    `json:"pageName"`
}

// RegisterCompetitor names an advertiser page so the dashboard can label its ads.
func (h *Handler) RegisterCompetitor(c *gin.Context) {
	var req competitorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		extFail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.Ads.RegisterCompetitor(c.Request.Context(), string(req.PageID), req.PageName); err != nil {
		h.extFailErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type extUpdateTagsReq struct {
	AdID archiveID `json:"adId"`
	Tags []string  `json:"tags"`
}

func (h *Handler) UpdateSavedAdTags(c *gin.Context) {
	var req extUpdateTagsReq
	if err := c.ShouldBindJSON(&req); err != nil || req.AdID == "" {
		extFail(c, http.StatusBadRequest, "adId is required")
		return
	}
	tags, err := h.Ads.RetagAd(c.Request.Context(), string(req.AdID), req.Tags)
	if err != nil {
		h.extFailErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tags": tags})
}
