package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/suPer8Hu/ads-dashboard/internal/ads"
	"github.com/suPer8Hu/ads-dashboard/internal/apperr"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func (r adRow) toAd() ads.Ad {
	tags := make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		tags = append(tags, t.Tag)
	}
	return ads.Ad{
		ID:          r.ID,
		AdArchiveID: r.AdArchiveID,
		ImgURL:      r.ImgURL,
		VideoURL:    r.VideoURL,
		PosterURL:   r.PosterURL,
		BodyText:    r.BodyText,
		Tags:        tags,
		PageID:      r.PageID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func preloadTags(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

// FetchAdsPage returns ads with id < cursor (cursor 0 starts at the newest), newest first.
func (g *Gateway) FetchAdsPage(ctx context.Context, cursor uint64, tags []string, typ ads.TypeFilter, limit int) ([]ads.Ad, error) {
	q := g.db.WithContext(ctx).Model(&adRow{}).Preload("Tags", preloadTags)

	if cursor > 0 {
		q = q.Where("id < ?", cursor)
	}
	if len(tags) > 0 {
		sub := g.db.Model(&adTagRow{}).Select("ad_id").Where("tag IN ?", tags)
		q = q.Where("id IN (?)", sub)
	}
	switch typ {
	case ads.TypeVideo:
		q = q.Where("video_url <> ''")
	case ads.TypeImage:
		q = q.Where("img_url <> ''")
	}

	var rows []adRow
	if err := q.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, apperr.Persistence("docstore.fetch_ads_page", err)
	}

	out := make([]ads.Ad, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toAd())
	}
	return out, nil
}

// DistinctAdTags returns every tag in use, sorted.
func (g *Gateway) DistinctAdTags(ctx context.Context) ([]string, error) {
	var tags []string
	if err := g.db.WithContext(ctx).Model(&adTagRow{}).
		Distinct("tag").
		Order("tag ASC").
		Pluck("tag", &tags).Error; err != nil {
		return nil, apperr.Persistence("docstore.distinct_ad_tags", err)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

func (g *Gateway) findAd(tx *gorm.DB, adArchiveID string) (*adRow, error) {
	var row adRow
	if err := tx.Where("ad_archive_id = ?", adArchiveID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func replaceTags(tx *gorm.DB, adID uint64, tags []string) error {
	if err := tx.Where("ad_id = ?", adID).Delete(&adTagRow{}).Error; err != nil {
		return err
	}
	if len(tags) == 0 {
		return nil
	}
	rows := make([]adTagRow, 0, len(tags))
	for _, t := range tags {
		rows = append(rows, adTagRow{AdID: adID, Tag: t})
	}
	return tx.Create(&rows).Error
}

// UpdateAdTags replaces the tag list of an ad. tags must already be normalized.
func (g *Gateway) UpdateAdTags(ctx context.Context, adArchiveID string, tags []string) error {
	const op = "docstore.update_ad_tags"
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := g.findAd(tx, adArchiveID)
		if err != nil {
			return err
		}
		if err := replaceTags(tx, row.ID, tags); err != nil {
			return err
		}
		return tx.Model(row).Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return notFoundOr(op, err)
	}
	return nil
}

func (g *Gateway) DeleteAd(ctx context.Context, adArchiveID string) error {
	const op = "docstore.delete_ad"
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := g.findAd(tx, adArchiveID)
		if err != nil {
			return err
		}
		if err := tx.Where("ad_id = ?", row.ID).Delete(&adTagRow{}).Error; err != nil {
			return err
		}
		return tx.Delete(row).Error
	})
	if err != nil {
		return notFoundOr(op, err)
	}
	return nil
}

// SaveAd inserts an ad or, when the archive id is already saved, refreshes its media,
// text and tags.
func (g *Gateway) SaveAd(ctx context.Context, in ads.NewAd) (*ads.Ad, error) {
	const op = "docstore.save_ad"

	var saved adRow
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := adRow{
			AdArchiveID: in.AdArchiveID,
			ImgURL:      in.ImgURL,
			VideoURL:    in.VideoURL,
			PosterURL:   in.PosterURL,
			BodyText:    in.BodyText(),
			PageID:      in.PageID(),
			QueryParams: jsonColumn(in.QueryParams),
			ExtraData:   datatypes.JSON(in.ExtraData),
		}

		existing, err := g.findAd(tx, in.AdArchiveID)
		switch {
		case err == nil:
			fields.ID = existing.ID
			fields.CreatedAt = existing.CreatedAt
			if err := tx.Omit("Tags").Save(&fields).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Omit("Tags").Create(&fields).Error; err != nil {
				return err
			}
		default:
			return err
		}

		if err := replaceTags(tx, fields.ID, in.Tags); err != nil {
			return err
		}
		return tx.Preload("Tags", preloadTags).First(&saved, fields.ID).Error
	})
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}

	ad := saved.toAd()
	return &ad, nil
}

// ListSavedAds returns archive id and tags of every saved ad, newest first.
func (g *Gateway) ListSavedAds(ctx context.Context) ([]ads.SavedRef, error) {
	var rows []adRow
	if err := g.db.WithContext(ctx).
		Select("id", "ad_archive_id").
		Preload("Tags", preloadTags).
		Order("id DESC").
		Find(&rows).Error; err != nil {
		return nil, apperr.Persistence("docstore.list_saved_ads", err)
	}
	out := make([]ads.SavedRef, 0, len(rows))
	for _, r := range rows {
		a := r.toAd()
		out = append(out, ads.SavedRef{AdArchiveID: a.AdArchiveID, Tags: a.Tags})
	}
	return out, nil
}

func jsonColumn(m map[string]any) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
