package ads

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

type TypeFilter string

const (
	TypeAll   TypeFilter = "all"
	TypeImage TypeFilter = "image"
	TypeVideo TypeFilter = "video"
)

// ParseTypeFilter accepts "all", "image" and "video" in any case; empty means all.
func ParseTypeFilter(s string) (TypeFilter, error) {
	switch TypeFilter(strings.ToLower(strings.TrimSpace(s))) {
	case "", TypeAll:
		return TypeAll, nil
	case TypeImage:
		return TypeImage, nil
	case TypeVideo:
		return TypeVideo, nil
	default:
		return "", fmt.Errorf("unknown ad type filter %q", s)
	}
}

// Ad is a saved ad. IDs grow with insertion, so ordering by ID descending is
// most-recent-first and an ID works as a pagination cursor.
type Ad struct {
	ID          uint64    `json:"id"`
	AdArchiveID string    `json:"ad_archive_id"`
	ImgURL      string    `json:"img_url,omitempty"`
	VideoURL    string    `json:"video_url,omitempty"`
	PosterURL   string    `json:"poster_url,omitempty"`
	BodyText    string    `json:"body_text"`
	Tags        []string  `json:"tags"`
	PageID      string    `json:"page_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const libraryURL = "https://www.facebook.com/ads/library/?id="

func (a Ad) LibraryURL() string { return libraryURL + a.AdArchiveID }

// MatchesAny reports whether the ad carries at least one of tags.
func (a Ad) MatchesAny(tags []string) bool {
	for _, t := range a.Tags {
		if slices.Contains(tags, t) {
			return true
		}
	}
	return false
}

// NormalizeTags trims tags, drops empty ones and removes duplicates, keeping first
// occurrence order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// NewAd is an ad captured by the browser extension.
type NewAd struct {
	AdArchiveID string          `json:"adId"`
	VideoURL    string          `json:"videoUrl"`
	PosterURL   string          `json:"posterUrl"`
	ImgURL      string          `json:"imgUrl"`
	QueryParams map[string]any  `json:"query_params"`
	FullText    string          `json:"full_html_text"`
	Tags        []string        `json:"tags"`
	ExtraData   json.RawMessage `json:"extra_data,omitempty"`
}

// BodyText prefers the snapshot body captured from the ads library and falls back to
// the page text.
func (n NewAd) BodyText() string {
	if len(n.ExtraData) > 0 {
		var extra struct {
			Snapshot struct {
				Body struct {
					Text string `json:"text"`
				} `json:"body"`
			} `json:"snapshot"`
		}
		if err := json.Unmarshal(n.ExtraData, &extra); err == nil && extra.Snapshot.Body.Text != "" {
			return extra.Snapshot.Body.Text
		}
	}
	return n.FullText
}

// PageID is the advertiser page the ad was saved from.
func (n NewAd) PageID() string {
	v, ok := n.QueryParams["view_all_page_id"]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// SavedRef is what the browser extension needs to mark ads as saved.
type SavedRef struct {
	AdArchiveID string   `json:"ad_archive_id"`
	Tags        []string `json:"tags"`
}
