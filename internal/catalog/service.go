package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/tunecrate/tunecrate-backend/pkg/db/models"
	pkgerrors "github.com/tunecrate/tunecrate-backend/pkg/errors"
	"github.com/tunecrate/tunecrate-backend/pkg/logger"
	"github.com/tunecrate/tunecrate-backend/pkg/pagination"
)

var allowedAudioExts = []string{".mp3", ".wav", ".flac", ".m4a", ".aac"}

var allowedAudioMimes = []string{
	"audio/mpeg",
	"audio/mp4",
	"audio/x-m4a",
	"audio/wav",
	"audio/x-wav",
	"audio/flac",
	"audio/aac",
}

var allowedCoverExts = []string{".jpg", ".jpeg", ".png", ".webp"}

var allowedCoverMimes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
}

type catalogRepository interface {
	CreateSong(ctx context.Context, song *models.Song) (*models.Song, error)
	CreateAlbumWithSongs(ctx context.Context, album *models.Album, songs []models.Song) (*models.Album, error)
	FindSongByID(ctx context.Context, id uuid.UUID) (*models.Song, error)
	FindAlbumByID(ctx context.Context, id uuid.UUID) (*models.Album, error)
	ListSongs(ctx context.Context, opts listQuery) ([]models.Song, error)
	ListAlbums(ctx context.Context, opts listQuery) ([]models.Album, error)
	DeleteSong(ctx context.Context, id uuid.UUID) error
	DeleteAlbumWithSongs(ctx context.Context, id uuid.UUID) error
}

type storageClient interface {
	Upload(ctx context.Context, bucket, object, contentType string, body io.Reader) error
	DeleteObject(ctx context.Context, bucket, object string) error
}

// FileUpload carries one multipart file part through the upload pipeline.
type FileUpload struct {
	FileName    string
	ContentType string
	SizeBytes   int64
	Body        io.Reader
}

// SongInput holds the metadata for one track.
type SongInput struct {
	Title           string
	Artist          string
	Price           decimal.Decimal
	Genre           string
	DurationSeconds int
	Featured        bool
}

// SongUpload is a standalone track plus its media files.
type SongUpload struct {
	SongInput
	Audio FileUpload
	Cover FileUpload
}

// AlbumTrack is one member track of an album upload.
type AlbumTrack struct {
	SongInput
	Audio FileUpload
}

// AlbumUpload is the complete payload for an atomic album publish.
type AlbumUpload struct {
	Title       string
	Artist      string
	Price       decimal.Decimal
	Featured    bool
	Description *string
	ReleaseDate string
	Cover       FileUpload
	Tracks      []AlbumTrack
}

// ListParams carries catalog listing filters from the controller.
type ListParams struct {
	Featured *bool
	Genre    string
	Limit    int
	Cursor   string
}

// SongPage is one page of songs with the next cursor.
type SongPage struct {
	Items  []models.Song `json:"items"`
	Cursor string        `json:"cursor,omitempty"`
}

// AlbumPage is one page of albums with the next cursor.
type AlbumPage struct {
	Items  []models.Album `json:"items"`
	Cursor string         `json:"cursor,omitempty"`
}

// Service exposes the public catalog reads and the admin publish/remove operations.
type Service interface {
	GetSong(ctx context.Context, id uuid.UUID) (*models.Song, error)
	GetAlbum(ctx context.Context, id uuid.UUID) (*models.Album, error)
	ListSongs(ctx context.Context, params ListParams) (*SongPage, error)
	ListAlbums(ctx context.Context, params ListParams) (*AlbumPage, error)
	UploadSong(ctx context.Context, input SongUpload) (*models.Song, error)
	UploadAlbum(ctx context.Context, input AlbumUpload) (*models.Album, error)
	DeleteSong(ctx context.Context, id uuid.UUID) error
	DeleteAlbum(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo           catalogRepository
	storage        storageClient
	bucket         string
	maxUploadBytes int64
	logg           *logger.Logger
}

// NewService builds the catalog service backed by the repo and blob storage.
func NewService(repo catalogRepository, storage storageClient, bucket string, maxUploadBytes int64, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if storage == nil {
		return nil, fmt.Errorf("storage client required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket required")
	}
	if maxUploadBytes <= 0 {
		return nil, fmt.Errorf("max upload size must be positive")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:           repo,
		storage:        storage,
		bucket:         bucket,
		maxUploadBytes: maxUploadBytes,
		logg:           logg,
	}, nil
}

func (s *service) GetSong(ctx context.Context, id uuid.UUID) (*models.Song, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "song id is required")
	}
	song, err := s.repo.FindSongByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "song not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup song")
	}
	return song, nil
}

func (s *service) GetAlbum(ctx context.Context, id uuid.UUID) (*models.Album, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "album id is required")
	}
	album, err := s.repo.FindAlbumByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "album not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup album")
	}
	return album, nil
}

func (s *service) ListSongs(ctx context.Context, params ListParams) (*SongPage, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := listQuery{
		featured: params.Featured,
		genre:    strings.TrimSpace(params.Genre),
		limit:    pagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.ListSongs(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list songs")
	}

	nextCursor := ""
	if len(rows) > limit {
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: rows[limit].CreatedAt,
			ID:        rows[limit].ID,
		})
		rows = rows[:limit]
	}

	return &SongPage{Items: rows, Cursor: nextCursor}, nil
}

func (s *service) ListAlbums(ctx context.Context, params ListParams) (*AlbumPage, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := listQuery{
		featured: params.Featured,
		limit:    pagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.ListAlbums(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list albums")
	}

	nextCursor := ""
	if len(rows) > limit {
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: rows[limit].CreatedAt,
			ID:        rows[limit].ID,
		})
		rows = rows[:limit]
	}

	return &AlbumPage{Items: rows, Cursor: nextCursor}, nil
}

func (s *service) UploadSong(ctx context.Context, input SongUpload) (*models.Song, error) {
	if err := s.validateSongInput(input.SongInput); err != nil {
		return nil, err
	}
	if err := s.validateFile(input.Audio, allowedAudioExts, allowedAudioMimes, "audio"); err != nil {
		return nil, err
	}
	if err := s.validateFile(input.Cover, allowedCoverExts, allowedCoverMimes, "cover"); err != nil {
		return nil, err
	}

	songID := uuid.New()
	audioKey := buildObjectKey("audio", songID, input.Audio.FileName)
	coverKey := buildObjectKey("covers", songID, input.Cover.FileName)

	uploaded := make([]string, 0, 2)
	if err := s.storage.Upload(ctx, s.bucket, audioKey, input.Audio.ContentType, input.Audio.Body); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload audio")
	}
	uploaded = append(uploaded, audioKey)

	if err := s.storage.Upload(ctx, s.bucket, coverKey, input.Cover.ContentType, input.Cover.Body); err != nil {
		return nil, s.compensate(ctx, uploaded, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload cover"))
	}
	uploaded = append(uploaded, coverKey)

	song := &models.Song{
		ID:              songID,
		Title:           strings.TrimSpace(input.Title),
		Artist:          strings.TrimSpace(input.Artist),
		Price:           input.Price,
		Featured:        input.Featured,
		Genre:           strings.TrimSpace(input.Genre),
		DurationSeconds: input.DurationSeconds,
		AudioKey:        audioKey,
		CoverKey:        coverKey,
	}
	created, err := s.repo.CreateSong(ctx, song)
	if err != nil {
		return nil, s.compensate(ctx, uploaded, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create song"))
	}
	return created, nil
}

func (s *service) UploadAlbum(ctx context.Context, input AlbumUpload) (*models.Album, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if strings.TrimSpace(input.Artist) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "artist is required")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if len(input.Tracks) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "album requires at least one track")
	}
	releaseDate, err := parseReleaseDate(input.ReleaseDate)
	if err != nil {
		return nil, err
	}
	if err := s.validateFile(input.Cover, allowedCoverExts, allowedCoverMimes, "cover"); err != nil {
		return nil, err
	}
	for i, track := range input.Tracks {
		if err := s.validateSongInput(track.SongInput); err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("track %d: %s", i+1, validationMessage(err)))
		}
		if err := s.validateFile(track.Audio, allowedAudioExts, allowedAudioMimes, "audio"); err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("track %d: %s", i+1, validationMessage(err)))
		}
	}

	albumID := uuid.New()
	coverKey := buildObjectKey("covers", albumID, input.Cover.FileName)

	// Blobs first, rows second. Any failure unwinds every blob already
	// written so no orphaned object survives a failed publish.
	uploaded := make([]string, 0, len(input.Tracks)+1)
	if err := s.storage.Upload(ctx, s.bucket, coverKey, input.Cover.ContentType, input.Cover.Body); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload album cover")
	}
	uploaded = append(uploaded, coverKey)

	songs := make([]models.Song, len(input.Tracks))
	for i, track := range input.Tracks {
		songID := uuid.New()
		audioKey := buildObjectKey("audio", songID, track.Audio.FileName)
		if err := s.storage.Upload(ctx, s.bucket, audioKey, track.Audio.ContentType, track.Audio.Body); err != nil {
			return nil, s.compensate(ctx, uploaded, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("upload track %d", i+1)))
		}
		uploaded = append(uploaded, audioKey)

		songs[i] = models.Song{
			ID:              songID,
			Title:           strings.TrimSpace(track.Title),
			Artist:          strings.TrimSpace(track.Artist),
			Price:           track.Price,
			Featured:        track.Featured,
			Genre:           strings.TrimSpace(track.Genre),
			DurationSeconds: track.DurationSeconds,
			AudioKey:        audioKey,
			CoverKey:        coverKey,
		}
	}

	album := &models.Album{
		ID:          albumID,
		Title:       strings.TrimSpace(input.Title),
		Artist:      strings.TrimSpace(input.Artist),
		Price:       input.Price,
		Featured:    input.Featured,
		CoverKey:    coverKey,
		ReleaseDate: releaseDate,
		Description: input.Description,
	}
	created, err := s.repo.CreateAlbumWithSongs(ctx, album, songs)
	if err != nil {
		return nil, s.compensate(ctx, uploaded, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create album"))
	}
	return created, nil
}

func (s *service) DeleteSong(ctx context.Context, id uuid.UUID) error {
	song, err := s.GetSong(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteSong(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete song")
	}

	// Rows first so the catalog stops selling immediately. Blob failures are
	// logged and swallowed; the catalog deletion already succeeded.
	var blobErr error
	blobErr = multierr.Append(blobErr, s.storage.DeleteObject(ctx, s.bucket, song.AudioKey))
	if song.AlbumID == nil {
		blobErr = multierr.Append(blobErr, s.storage.DeleteObject(ctx, s.bucket, song.CoverKey))
	}
	if blobErr != nil {
		s.logg.Error(s.logg.WithField(ctx, "song_id", id.String()), "reclaim song media failed", blobErr)
	}
	return nil
}

func (s *service) DeleteAlbum(ctx context.Context, id uuid.UUID) error {
	album, err := s.GetAlbum(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteAlbumWithSongs(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete album")
	}

	var blobErr error
	for _, song := range album.Songs {
		blobErr = multierr.Append(blobErr, s.storage.DeleteObject(ctx, s.bucket, song.AudioKey))
	}
	blobErr = multierr.Append(blobErr, s.storage.DeleteObject(ctx, s.bucket, album.CoverKey))
	if blobErr != nil {
		s.logg.Error(s.logg.WithField(ctx, "album_id", id.String()), "reclaim album media failed", blobErr)
	}
	return nil
}

// compensate deletes the uploaded blobs in reverse order and attaches any
// cleanup failures to the original error.
func (s *service) compensate(ctx context.Context, uploaded []string, cause error) error {
	var cleanupErr error
	for i := len(uploaded) - 1; i >= 0; i-- {
		cleanupErr = multierr.Append(cleanupErr, s.storage.DeleteObject(ctx, s.bucket, uploaded[i]))
	}
	if cleanupErr != nil {
		return multierr.Append(cause, cleanupErr)
	}
	return cause
}

func (s *service) validateSongInput(input SongInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if strings.TrimSpace(input.Artist) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "artist is required")
	}
	if strings.TrimSpace(input.Genre) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "genre is required")
	}
	if input.Price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if input.DurationSeconds < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "duration must be at least one second")
	}
	return nil
}

func (s *service) validateFile(file FileUpload, allowedExts, allowedMimes []string, field string) error {
	if file.Body == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s file is required", field))
	}
	if file.SizeBytes <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s file is empty", field))
	}
	if file.SizeBytes > s.maxUploadBytes {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s file exceeds %d bytes", field, s.maxUploadBytes))
	}
	ext := strings.ToLower(path.Ext(strings.TrimSpace(file.FileName)))
	if !contains(allowedExts, ext) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s file type %q not allowed", field, ext))
	}
	// The extension is authoritative; the declared type is a cross-check.
	mime := strings.ToLower(strings.TrimSpace(file.ContentType))
	if !contains(allowedMimes, mime) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s content type %q not allowed", field, file.ContentType))
	}
	return nil
}

func contains(values []string, candidate string) bool {
	for _, v := range values {
		if v == candidate {
			return true
		}
	}
	return false
}

func parseReleaseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC(), nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "release_date must be YYYY-MM-DD")
}

func validationMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Message()
	}
	return err.Error()
}
