package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Album is a priced bundle of songs. Its price is independent of the sum of
// member song prices; bundle discounts are intentional.
type Album struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Title       string          `gorm:"column:title;not null" json:"title"`
	Artist      string          `gorm:"column:artist;not null" json:"artist"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	Featured    bool            `gorm:"column:featured;not null;default:false" json:"featured"`
	CoverKey    string          `gorm:"column:cover_key;not null" json:"-"`
	ReleaseDate time.Time       `gorm:"column:release_date;not null" json:"release_date"`
	Description *string         `gorm:"column:description" json:"description,omitempty"`
	Songs       []Song          `gorm:"foreignKey:AlbumID" json:"songs,omitempty"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
