package entitlements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tunecrate/tunecrate-backend/pkg/db"
	"github.com/tunecrate/tunecrate-backend/pkg/db/models"
	"github.com/tunecrate/tunecrate-backend/pkg/enums"
	pkgerrors "github.com/tunecrate/tunecrate-backend/pkg/errors"
	"github.com/tunecrate/tunecrate-backend/pkg/pagination"
)

type entitlementRepository interface {
	CreatePending(ctx context.Context, row *models.Entitlement) (*models.Entitlement, error)
	DeletePending(ctx context.Context, id uuid.UUID) (bool, error)
	FindByReference(ctx context.Context, reference string) (*models.Entitlement, error)
	MarkCompleted(ctx context.Context, reference string, paidAt time.Time) (bool, *models.Entitlement, error)
	MarkFailed(ctx context.Context, reference string) (bool, error)
	Revoke(ctx context.Context, userID, itemID uuid.UUID, revokedBy uuid.UUID, reason string, at time.Time) (int64, error)
	MarkNotified(ctx context.Context, id uuid.UUID) error
	HasCompleted(ctx context.Context, userID, itemID uuid.UUID) (bool, error)
	HasCompletedForAnyItem(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, opts listQuery) ([]models.Entitlement, error)
}

type catalogFinder interface {
	FindSongByID(ctx context.Context, id uuid.UUID) (*models.Song, error)
	SongsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Song, error)
	AlbumsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Album, error)
}

// PendingInput creates the ledger row for a purchase the gateway has not yet
// confirmed.
type PendingInput struct {
	UserID    uuid.UUID
	ItemID    uuid.UUID
	ItemType  enums.AssetKind
	Reference string
	Amount    decimal.Decimal
	Currency  enums.Currency
}

// LibraryItem is one owned asset with its catalog record resolved.
type LibraryItem struct {
	Entitlement models.Entitlement `json:"entitlement"`
	Song        *models.Song       `json:"song,omitempty"`
	Album       *models.Album      `json:"album,omitempty"`
}

// LibraryPage is one page of the user's owned assets.
type LibraryPage struct {
	Items  []LibraryItem `json:"items"`
	Cursor string        `json:"cursor,omitempty"`
}

// Service owns the entitlement ledger: pending creation, the idempotent
// completion transition, revocation, access checks, and the library view.
type Service interface {
	CreatePending(ctx context.Context, input PendingInput) (*models.Entitlement, error)
	Discard(ctx context.Context, id uuid.UUID) error
	GetByReference(ctx context.Context, reference string) (*models.Entitlement, error)
	Complete(ctx context.Context, reference string, paidAt time.Time) (bool, *models.Entitlement, error)
	Fail(ctx context.Context, reference string) (bool, error)
	Revoke(ctx context.Context, targetUserID, itemID, revokedBy uuid.UUID, reason string) (int64, error)
	MarkNotified(ctx context.Context, id uuid.UUID) error
	HasCompleted(ctx context.Context, userID, itemID uuid.UUID) (bool, error)
	CanStreamSong(ctx context.Context, userID, songID uuid.UUID) (bool, error)
	Library(ctx context.Context, userID uuid.UUID, params pagination.Params) (*LibraryPage, error)
}

type service struct {
	repo    entitlementRepository
	catalog catalogFinder
}

// NewService builds the entitlements service.
func NewService(repo entitlementRepository, catalog catalogFinder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("entitlements repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog finder required")
	}
	return &service{repo: repo, catalog: catalog}, nil
}

func (s *service) CreatePending(ctx context.Context, input PendingInput) (*models.Entitlement, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if !input.ItemType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item type must be song or album")
	}
	if strings.TrimSpace(input.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if input.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	if !input.Currency.IsValid() {
		input.Currency = enums.CurrencyNGN
	}

	owned, err := s.repo.HasCompleted(ctx, input.UserID, input.ItemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check ownership")
	}
	if owned {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "item already owned")
	}

	row := &models.Entitlement{
		UserID:    input.UserID,
		ItemID:    input.ItemID,
		ItemType:  input.ItemType,
		Reference: strings.TrimSpace(input.Reference),
		Amount:    input.Amount,
		Currency:  input.Currency,
	}
	created, err := s.repo.CreatePending(ctx, row)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment reference already used")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create pending entitlement")
	}
	return created, nil
}

// Discard tears down a pending row that never reached the gateway. A row no
// longer pending has been confirmed concurrently and is left alone.
func (s *service) Discard(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "entitlement id is required")
	}
	if _, err := s.repo.DeletePending(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "discard pending entitlement")
	}
	return nil
}

func (s *service) GetByReference(ctx context.Context, reference string) (*models.Entitlement, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	row, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "entitlement not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup entitlement")
	}
	return row, nil
}

func (s *service) Complete(ctx context.Context, reference string, paidAt time.Time) (bool, *models.Entitlement, error) {
	if strings.TrimSpace(reference) == "" {
		return false, nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	applied, row, err := s.repo.MarkCompleted(ctx, reference, paidAt)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil, pkgerrors.New(pkgerrors.CodeNotFound, "entitlement not found")
		}
		return false, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete entitlement")
	}
	return applied, row, nil
}

func (s *service) Fail(ctx context.Context, reference string) (bool, error) {
	if strings.TrimSpace(reference) == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	applied, err := s.repo.MarkFailed(ctx, reference)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail entitlement")
	}
	return applied, nil
}

// Revoke withdraws the user's completed entitlements for one item and reports
// how many rows were modified. Pending and failed rows are left untouched, so
// a count of zero means there was nothing to revoke.
func (s *service) Revoke(ctx context.Context, targetUserID, itemID, revokedBy uuid.UUID, reason string) (int64, error) {
	if targetUserID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "target user id is required")
	}
	if itemID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if strings.TrimSpace(reason) == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "revoke reason is required")
	}

	modified, err := s.repo.Revoke(ctx, targetUserID, itemID, revokedBy, strings.TrimSpace(reason), time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke entitlement")
	}
	return modified, nil
}

func (s *service) MarkNotified(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "entitlement id is required")
	}
	if err := s.repo.MarkNotified(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notified")
	}
	return nil
}

func (s *service) HasCompleted(ctx context.Context, userID, itemID uuid.UUID) (bool, error) {
	owned, err := s.repo.HasCompleted(ctx, userID, itemID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check ownership")
	}
	return owned, nil
}

// CanStreamSong grants access when the user owns the song itself or the album
// it belongs to.
func (s *service) CanStreamSong(ctx context.Context, userID, songID uuid.UUID) (bool, error) {
	song, err := s.catalog.FindSongByID(ctx, songID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "song not found")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup song")
	}

	itemIDs := []uuid.UUID{song.ID}
	if song.AlbumID != nil {
		itemIDs = append(itemIDs, *song.AlbumID)
	}
	owned, err := s.repo.HasCompletedForAnyItem(ctx, userID, itemIDs)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check ownership")
	}
	return owned, nil
}

func (s *service) Library(ctx context.Context, userID uuid.UUID, params pagination.Params) (*LibraryPage, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	query := listQuery{
		status: enums.EntitlementStatusCompleted,
		limit:  pagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.ListByUser(ctx, userID, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list library")
	}

	nextCursor := ""
	if len(rows) > limit {
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: rows[limit].CreatedAt,
			ID:        rows[limit].ID,
		})
		rows = rows[:limit]
	}

	items, err := s.hydrate(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &LibraryPage{Items: items, Cursor: nextCursor}, nil
}

// hydrate resolves the catalog record behind each entitlement in two bulk
// lookups. Entitlements whose item has since been removed are kept with a nil
// item so the ledger stays visible.
func (s *service) hydrate(ctx context.Context, rows []models.Entitlement) ([]LibraryItem, error) {
	songIDs := make([]uuid.UUID, 0, len(rows))
	albumIDs := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		switch row.ItemType {
		case enums.AssetKindSong:
			songIDs = append(songIDs, row.ItemID)
		case enums.AssetKindAlbum:
			albumIDs = append(albumIDs, row.ItemID)
		}
	}

	songs, err := s.catalog.SongsByIDs(ctx, songIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve songs")
	}
	albums, err := s.catalog.AlbumsByIDs(ctx, albumIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve albums")
	}

	songByID := make(map[uuid.UUID]*models.Song, len(songs))
	for i := range songs {
		songByID[songs[i].ID] = &songs[i]
	}
	albumByID := make(map[uuid.UUID]*models.Album, len(albums))
	for i := range albums {
		albumByID[albums[i].ID] = &albums[i]
	}

	items := make([]LibraryItem, len(rows))
	for i, row := range rows {
		item := LibraryItem{Entitlement: row}
		switch row.ItemType {
		case enums.AssetKindSong:
			item.Song = songByID[row.ItemID]
		case enums.AssetKindAlbum:
			item.Album = albumByID[row.ItemID]
		}
		items[i] = item
	}
	return items, nil
}
