package ads

import (
	"context"
	"time"
)

// Store is the slice of the persistence gateway the ads browser needs. Methods keyed by
// ad archive id return an error matching apperr.ErrNotFound when the ad is unknown.
type Store interface {
	// FetchAdsPage returns up to limit ads with ID < cursor (cursor 0: from the newest),
	// newest first. A non-empty tags list keeps ads carrying at least one of them.
	FetchAdsPage(ctx context.Context, cursor uint64, tags []string, typ TypeFilter, limit int) ([]Ad, error)
	DistinctAdTags(ctx context.Context) ([]string, error)
	UpdateAdTags(ctx context.Context, adArchiveID string, tags []string) error
	DeleteAd(ctx context.Context, adArchiveID string) error
	FetchCompetitors(ctx context.Context) (map[string]string, error)
	UpsertCompetitor(ctx context.Context, pageID, name string) error

	SaveAd(ctx context.Context, ad NewAd) (*Ad, error)
	ListSavedAds(ctx context.Context) ([]SavedRef, error)
}

type EventType string

const (
	EventSaved       EventType = "ad.saved"
	EventTagsUpdated EventType = "ad.tags_updated"
	EventDeleted     EventType = "ad.deleted"
)

type Event struct {
	Type        EventType `json:"type"`
	AdArchiveID string    `json:"ad_archive_id"`
	Tags        []string  `json:"tags,omitempty"`
	At          time.Time `json:"at"`
}

// Publisher announces ad changes to other consumers (tag cache warmers).
type Publisher interface {
	PublishAdEvent(ctx context.Context, ev Event) error
}
