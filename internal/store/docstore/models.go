package docstore

import (
	"time"

	"gorm.io/datatypes"
)

type adRow struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement"`
	AdArchiveID string         `gorm:"type:varchar(64);uniqueIndex;not null"`
	ImgURL      string         `gorm:"type:text"`
	VideoURL    string         `gorm:"type:text"`
	PosterURL   string         `gorm:"type:text"`
	BodyText    string         `gorm:"type:text"`
	PageID      string         `gorm:"type:varchar(64);index"`
	QueryParams datatypes.JSON `gorm:"type:json"`
	ExtraData   datatypes.JSON `gorm:"type:json"`
	Tags        []adTagRow     `gorm:"foreignKey:AdID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (adRow) TableName() string { return "ads" }

type adTagRow struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	AdID uint64 `gorm:"not null;index:uniq_ad_tag,unique,priority:1"`
	Tag  string `gorm:"type:varchar(128);not null;index;index:uniq_ad_tag,unique,priority:2"`
}

func (adTagRow) TableName() string { return "ad_tags" }

type competitorRow struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	PageID   string `gorm:"type:varchar(64);uniqueIndex;not null"`
	PageName string `gorm:"type:varchar(255);not null"`
}

func (competitorRow) TableName() string { return "competitors" }

type sessionRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	SessionID   string `gorm:"type:varchar(26);uniqueIndex;not null"`
	NumMessages int    `gorm:"not null;default:0"`
	Rating      *int   `gorm:"default:null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time `gorm:"index"`
}

func (sessionRow) TableName() string { return "chat_sessions" }

type messageRow struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement"`
	SessionID  string         `gorm:"type:varchar(26);index;not null"`
	Role       string         `gorm:"type:varchar(16);not null"`
	Content    datatypes.JSON `gorm:"type:json"`
	ToolCalls  datatypes.JSON `gorm:"type:json"`
	ToolCallID string         `gorm:"type:varchar(128)"`
	WithImage  bool           `gorm:"not null;default:false"`
	CreatedAt  time.Time
}

func (messageRow) TableName() string { return "chat_messages" }
