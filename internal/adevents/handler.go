// Package adevents reacts to ad change events published by the API server.
package adevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/suPer8Hu/ads-dashboard/internal/ads"
	"github.com/suPer8Hu/ads-dashboard/internal/logger"
)

// ErrBadMessage marks a delivery that can never succeed; it should not be retried.
var ErrBadMessage = errors.New("bad ad event")

// TagSource is the uncached source of the tag vocabulary.
type TagSource interface {
	DistinctAdTags(ctx context.Context) ([]string, error)
}

// VocabularyCache receives the recomputed vocabulary.
type VocabularyCache interface {
	Warm(ctx context.Context, tags []string)
}

type Handler struct {
	source TagSource
	cache  VocabularyCache
	log    *logger.Logger
}

func NewHandler(source TagSource, cache VocabularyCache, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{source: source, cache: cache, log: log.With("component", "AdEventHandler")}
}

// Handle decodes one event and re-warms the tag vocabulary from the database.
func (h *Handler) Handle(ctx context.Context, body []byte) error {
	var ev ads.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if ev.AdArchiveID == "" {
		return fmt.Errorf("%w: missing ad_archive_id", ErrBadMessage)
	}
	switch ev.Type {
	case ads.EventSaved, ads.EventTagsUpdated, ads.EventDeleted:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrBadMessage, ev.Type)
	}

	tags, err := h.source.DistinctAdTags(ctx)
	if err != nil {
		return fmt.Errorf("reload tag vocabulary: %w", err)
	}
	h.cache.Warm(ctx, tags)

	h.log.Info("tag vocabulary refreshed",
		"event", ev.Type, "ad_archive_id", ev.AdArchiveID, "tags", len(tags))
	return nil
}
