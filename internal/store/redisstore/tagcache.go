package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/ads-dashboard/internal/ads"
	"github.com/suPer8Hu/ads-dashboard/internal/logger"
)

var _ ads.Store = (*TagCache)(nil)

const tagVocabularyKey = "ads:tags"

// TagCache serves DistinctAdTags from redis and drops the cached value on every write
// that can change it. Everything else goes straight to the wrapped store.
type TagCache struct {
	ads.Store
	rdb goredis.UniversalClient
	ttl time.Duration
	log *logger.Logger
}

func NewTagCache(next ads.Store, rdb goredis.UniversalClient, ttl time.Duration, log *logger.Logger) *TagCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TagCache{Store: next, rdb: rdb, ttl: ttl, log: log.With("component", "TagCache")}
}

func (c *TagCache) DistinctAdTags(ctx context.Context) ([]string, error) {
	raw, err := c.rdb.Get(ctx, tagVocabularyKey).Bytes()
	if err == nil {
		var tags []string
		jerr := json.Unmarshal(raw, &tags)
		if jerr == nil {
			return tags, nil
		}
		c.log.Warn("bad cached tag vocabulary", "error", jerr)
	} else if !errors.Is(err, goredis.Nil) {
		c.log.Warn("tag cache read failed", "error", err)
	}

	tags, err := c.Store.DistinctAdTags(ctx)
	if err != nil {
		return nil, err
	}
	c.Warm(ctx, tags)
	return tags, nil
}

// Warm stores tags as the current vocabulary.
func (c *TagCache) Warm(ctx context.Context, tags []string) {
	raw, err := json.Marshal(tags)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, tagVocabularyKey, raw, c.ttl).Err(); err != nil {
		c.log.Warn("tag cache write failed", "error", err)
	}
}

// Invalidate forgets the cached vocabulary.
func (c *TagCache) Invalidate(ctx context.Context) {
	if err := c.rdb.Del(ctx, tagVocabularyKey).Err(); err != nil {
		c.log.Warn("tag cache invalidation failed", "error", err)
	}
}

func (c *TagCache) UpdateAdTags(ctx context.Context, adArchiveID string, tags []string) error {
	err := c.Store.UpdateAdTags(ctx, adArchiveID, tags)
	if err == nil {
		c.Invalidate(ctx)
	}
	return err
}

func (c *TagCache) DeleteAd(ctx context.Context, adArchiveID string) error {
	err := c.Store.DeleteAd(ctx, adArchiveID)
	if err == nil {
		c.Invalidate(ctx)
	}
	return err
}

func (c *TagCache) SaveAd(ctx context.Context, ad ads.NewAd) (*ads.Ad, error) {
	saved, err := c.Store.SaveAd(ctx, ad)
	if err == nil {
		c.Invalidate(ctx)
	}
	return saved, err
}
