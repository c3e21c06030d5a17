package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/tunecrate/tunecrate-backend/pkg/db/models"
	"github.com/tunecrate/tunecrate-backend/pkg/enums"
	pkgerrors "github.com/tunecrate/tunecrate-backend/pkg/errors"
	"github.com/tunecrate/tunecrate-backend/pkg/metrics"
)

type accessChecker interface {
	CanStreamSong(ctx context.Context, userID, songID uuid.UUID) (bool, error)
	HasCompleted(ctx context.Context, userID, itemID uuid.UUID) (bool, error)
}

type catalogFinder interface {
	FindSongByID(ctx context.Context, id uuid.UUID) (*models.Song, error)
	FindAlbumByID(ctx context.Context, id uuid.UUID) (*models.Album, error)
}

type urlSigner interface {
	SignedReadURL(bucket, object string, expires time.Duration) (string, error)
}

// StreamLink is a short-lived playback URL for one song.
type StreamLink struct {
	SongID    uuid.UUID `json:"song_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DownloadLink is one downloadable file of a purchased asset.
type DownloadLink struct {
	SongID    uuid.UUID `json:"song_id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DownloadBundle is every file the buyer receives for one purchased asset.
type DownloadBundle struct {
	ItemID   uuid.UUID       `json:"item_id"`
	ItemType enums.AssetKind `json:"item_type"`
	Links    []DownloadLink  `json:"links"`
}

// Service turns entitlements into time-limited media URLs. Permanent object
// locations never leave this package; expiry is enforced by the storage
// signature itself.
type Service interface {
	StreamURL(ctx context.Context, userID, songID uuid.UUID) (*StreamLink, error)
	DownloadLinks(ctx context.Context, userID, itemID uuid.UUID, kind enums.AssetKind) (*DownloadBundle, error)
}

type service struct {
	access      accessChecker
	catalog     catalogFinder
	signer      urlSigner
	bucket      string
	streamTTL   time.Duration
	downloadTTL time.Duration
	store       *metrics.StoreMetrics
}

// NewService builds the delivery service. The metrics handle may be nil.
func NewService(
	access accessChecker,
	catalog catalogFinder,
	signer urlSigner,
	bucket string,
	streamTTL, downloadTTL time.Duration,
	store *metrics.StoreMetrics,
) (Service, error) {
	if access == nil {
		return nil, fmt.Errorf("access checker required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog finder required")
	}
	if signer == nil {
		return nil, fmt.Errorf("url signer required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket required")
	}
	if streamTTL <= 0 || downloadTTL <= 0 {
		return nil, fmt.Errorf("signed url ttls must be positive")
	}
	return &service{
		access:      access,
		catalog:     catalog,
		signer:      signer,
		bucket:      bucket,
		streamTTL:   streamTTL,
		downloadTTL: downloadTTL,
		store:       store,
	}, nil
}

func (s *service) StreamURL(ctx context.Context, userID, songID uuid.UUID) (*StreamLink, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if songID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "song id is required")
	}

	allowed, err := s.access.CanStreamSong(ctx, userID, songID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "song not owned")
	}

	song, err := s.findSong(ctx, songID)
	if err != nil {
		return nil, err
	}

	url, err := s.signer.SignedReadURL(s.bucket, song.AudioKey, s.streamTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign stream url")
	}
	s.store.IncSignedURL("stream")

	return &StreamLink{
		SongID:    song.ID,
		URL:       url,
		ExpiresAt: time.Now().Add(s.streamTTL),
	}, nil
}

// DownloadLinks signs a URL per file of the purchased asset. An album bundle
// is all-or-nothing; a single file that cannot be signed fails the whole
// request rather than handing the buyer a partial album.
func (s *service) DownloadLinks(ctx context.Context, userID, itemID uuid.UUID, kind enums.AssetKind) (*DownloadBundle, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item type must be song or album")
	}

	songs, err := s.filesFor(ctx, itemID, kind)
	if err != nil {
		return nil, err
	}

	// A song is owned either directly or through its album, same as streaming.
	var owned bool
	if kind == enums.AssetKindSong {
		owned, err = s.access.CanStreamSong(ctx, userID, itemID)
	} else {
		owned, err = s.access.HasCompleted(ctx, userID, itemID)
	}
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "item not owned")
	}

	expiresAt := time.Now().Add(s.downloadTTL)
	links := make([]DownloadLink, 0, len(songs))
	var signErr error
	for _, song := range songs {
		url, err := s.signer.SignedReadURL(s.bucket, song.AudioKey, s.downloadTTL)
		if err != nil {
			signErr = multierr.Append(signErr, fmt.Errorf("sign %s: %w", song.ID, err))
			continue
		}
		links = append(links, DownloadLink{
			SongID:    song.ID,
			Title:     song.Title,
			URL:       url,
			ExpiresAt: expiresAt,
		})
	}
	if signErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, signErr, "sign download urls")
	}
	s.store.IncSignedURL("download")

	return &DownloadBundle{ItemID: itemID, ItemType: kind, Links: links}, nil
}

func (s *service) filesFor(ctx context.Context, itemID uuid.UUID, kind enums.AssetKind) ([]models.Song, error) {
	switch kind {
	case enums.AssetKindSong:
		song, err := s.findSong(ctx, itemID)
		if err != nil {
			return nil, err
		}
		return []models.Song{*song}, nil
	case enums.AssetKindAlbum:
		album, err := s.catalog.FindAlbumByID(ctx, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "album not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup album")
		}
		if len(album.Songs) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "album has no files")
		}
		return album.Songs, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item type must be song or album")
	}
}

func (s *service) findSong(ctx context.Context, id uuid.UUID) (*models.Song, error) {
	song, err := s.catalog.FindSongByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "song not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup song")
	}
	return song, nil
}
