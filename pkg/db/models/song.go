package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Song is a purchasable catalog track. AudioKey and CoverKey are opaque
// object-storage keys chosen by the upload pipeline; the permanent object
// location is never exposed to clients.
type Song struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Title           string          `gorm:"column:title;not null" json:"title"`
	Artist          string          `gorm:"column:artist;not null" json:"artist"`
	Price           decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	Featured        bool            `gorm:"column:featured;not null;default:false" json:"featured"`
	Genre           string          `gorm:"column:genre;not null" json:"genre"`
	DurationSeconds int             `gorm:"column:duration_seconds;not null" json:"duration_seconds"`
	AudioKey        string          `gorm:"column:audio_key;not null;unique" json:"-"`
	CoverKey        string          `gorm:"column:cover_key;not null" json:"-"`
	AlbumID         *uuid.UUID      `gorm:"column:album_id;type:uuid;index" json:"album_id,omitempty"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
