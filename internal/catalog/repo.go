package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunecrate/tunecrate-backend/pkg/db/models"
	"github.com/tunecrate/tunecrate-backend/pkg/pagination"
)

// Repository exposes catalog persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a catalog repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type listQuery struct {
	featured *bool
	genre    string
	cursor   *pagination.Cursor
	limit    int
}

// CreateSong inserts a standalone song row.
func (r *Repository) CreateSong(ctx context.Context, song *models.Song) (*models.Song, error) {
	if err := r.db.WithContext(ctx).Create(song).Error; err != nil {
		return nil, err
	}
	return song, nil
}

// CreateAlbumWithSongs inserts the album and all member songs in one
// transaction. Partial albums must never become visible.
func (r *Repository) CreateAlbumWithSongs(ctx context.Context, album *models.Album, songs []models.Song) (*models.Album, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(album).Error; err != nil {
			return err
		}
		for i := range songs {
			songs[i].AlbumID = &album.ID
			if err := tx.Create(&songs[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	album.Songs = songs
	return album, nil
}

// FindSongByID loads a song by id.
func (r *Repository) FindSongByID(ctx context.Context, id uuid.UUID) (*models.Song, error) {
	var song models.Song
	if err := r.db.WithContext(ctx).First(&song, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &song, nil
}

// FindAlbumByID loads an album with its member songs.
func (r *Repository) FindAlbumByID(ctx context.Context, id uuid.UUID) (*models.Album, error) {
	var album models.Album
	if err := r.db.WithContext(ctx).Preload("Songs").First(&album, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &album, nil
}

// ListSongs returns songs using cursor pagination with optional filters.
func (r *Repository) ListSongs(ctx context.Context, opts listQuery) ([]models.Song, error) {
	query := r.db.WithContext(ctx).Model(&models.Song{})

	if opts.featured != nil {
		query = query.Where("featured = ?", *opts.featured)
	}
	if opts.genre != "" {
		query = query.Where("genre = ?", opts.genre)
	}
	if opts.cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.cursor.CreatedAt, opts.cursor.CreatedAt, opts.cursor.ID)
	}

	query = query.Order("created_at DESC").Order("id DESC").Limit(opts.limit)

	var rows []models.Song
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListAlbums returns albums using cursor pagination with an optional featured filter.
func (r *Repository) ListAlbums(ctx context.Context, opts listQuery) ([]models.Album, error) {
	query := r.db.WithContext(ctx).Model(&models.Album{})

	if opts.featured != nil {
		query = query.Where("featured = ?", *opts.featured)
	}
	if opts.cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.cursor.CreatedAt, opts.cursor.CreatedAt, opts.cursor.ID)
	}

	query = query.Order("created_at DESC").Order("id DESC").Limit(opts.limit)

	var rows []models.Album
	if err := query.Preload("Songs").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SongsByIDs loads the given songs in one query.
func (r *Repository) SongsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Song, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Song
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// AlbumsByIDs loads the given albums in one query, member songs included.
func (r *Repository) AlbumsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Album, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Album
	if err := r.db.WithContext(ctx).Preload("Songs").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteSong removes the song row.
func (r *Repository) DeleteSong(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Song{}, "id = ?", id).Error
}

// DeleteAlbumWithSongs removes the album and its member songs in one transaction.
func (r *Repository) DeleteAlbumWithSongs(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Song{}, "album_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Album{}, "id = ?", id).Error
	})
}
