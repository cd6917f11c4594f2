// Package docstore is the persistence gateway for saved ads and chat sessions.
package docstore

import (
	"context"
	"errors"

	"github.com/suPer8Hu/ads-dashboard/internal/ads"
	"github.com/suPer8Hu/ads-dashboard/internal/apperr"
	"github.com/suPer8Hu/ads-dashboard/internal/chat"
	"gorm.io/gorm"
)

var (
	_ ads.Store  = (*Gateway)(nil)
	_ chat.Store = (*Gateway)(nil)
)

type Gateway struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Gateway {
	return &Gateway{db: db}
}

// Migrate creates or updates every table the gateway uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&adRow{}, &adTagRow{}, &competitorRow{}, &sessionRow{}, &messageRow{})
}

// UpsertCompetitor registers the display name of an advertiser page.
func (g *Gateway) UpsertCompetitor(ctx context.Context, pageID, name string) error {
	const op = "docstore.upsert_competitor"
	var row competitorRow
	err := g.db.WithContext(ctx).Where("page_id = ?", pageID).First(&row).Error
	switch {
	case err == nil:
		if err := g.db.WithContext(ctx).Model(&row).Update("page_name", name).Error; err != nil {
			return apperr.Persistence(op, err)
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := g.db.WithContext(ctx).Create(&competitorRow{PageID: pageID, PageName: name}).Error; err != nil {
			return apperr.Persistence(op, err)
		}
		return nil
	default:
		return apperr.Persistence(op, err)
	}
}

func (g *Gateway) FetchCompetitors(ctx context.Context) (map[string]string, error) {
	var rows []competitorRow
	if err := g.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, apperr.Persistence("docstore.fetch_competitors", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.PageID] = r.PageName
	}
	return out, nil
}

func notFoundOr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(op)
	}
	return apperr.Persistence(op, err)
}
