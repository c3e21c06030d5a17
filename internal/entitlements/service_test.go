package entitlements

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tunecrate/tunecrate-backend/pkg/db/models"
	"github.com/tunecrate/tunecrate-backend/pkg/enums"
	pkgerrors "github.com/tunecrate/tunecrate-backend/pkg/errors"
	"github.com/tunecrate/tunecrate-backend/pkg/pagination"
)

type stubEntitlementRepo struct {
	created        *models.Entitlement
	createErr      error
	row            *models.Entitlement
	findErr        error
	completedRow   *models.Entitlement
	completedSeen  bool
	markApplied    bool
	markErr        error
	failApplied    bool
	revokeCount    int64
	revokeErr      error
	lastRevoke     [2]uuid.UUID
	discarded      []uuid.UUID
	notified       []uuid.UUID
	owned          bool
	ownedAny       bool
	ownershipErr   bool
	listRows       []models.Entitlement
	listErr        error
	lastList       listQuery
	lastAnyItemIDs []uuid.UUID
}

func (s *stubEntitlementRepo) CreatePending(ctx context.Context, row *models.Entitlement) (*models.Entitlement, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = row
	return row, nil
}

func (s *stubEntitlementRepo) DeletePending(ctx context.Context, id uuid.UUID) (bool, error) {
	s.discarded = append(s.discarded, id)
	return true, nil
}

func (s *stubEntitlementRepo) FindByReference(ctx context.Context, reference string) (*models.Entitlement, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.row == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.row, nil
}

func (s *stubEntitlementRepo) MarkCompleted(ctx context.Context, reference string, paidAt time.Time) (bool, *models.Entitlement, error) {
	s.completedSeen = true
	if s.markErr != nil {
		return false, nil, s.markErr
	}
	return s.markApplied, s.completedRow, nil
}

func (s *stubEntitlementRepo) MarkFailed(ctx context.Context, reference string) (bool, error) {
	return s.failApplied, nil
}

func (s *stubEntitlementRepo) Revoke(ctx context.Context, userID, itemID uuid.UUID, revokedBy uuid.UUID, reason string, at time.Time) (int64, error) {
	if s.revokeErr != nil {
		return 0, s.revokeErr
	}
	s.lastRevoke = [2]uuid.UUID{userID, itemID}
	return s.revokeCount, nil
}

func (s *stubEntitlementRepo) MarkNotified(ctx context.Context, id uuid.UUID) error {
	s.notified = append(s.notified, id)
	return nil
}

func (s *stubEntitlementRepo) HasCompleted(ctx context.Context, userID, itemID uuid.UUID) (bool, error) {
	if s.ownershipErr {
		return false, errors.New("db down")
	}
	return s.owned, nil
}

func (s *stubEntitlementRepo) HasCompletedForAnyItem(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (bool, error) {
	if s.ownershipErr {
		return false, errors.New("db down")
	}
	s.lastAnyItemIDs = itemIDs
	return s.ownedAny, nil
}

func (s *stubEntitlementRepo) ListByUser(ctx context.Context, userID uuid.UUID, opts listQuery) ([]models.Entitlement, error) {
	s.lastList = opts
	return s.listRows, s.listErr
}

type stubCatalogFinder struct {
	song    *models.Song
	songErr error
	songs   []models.Song
	albums  []models.Album
}

func (s *stubCatalogFinder) FindSongByID(ctx context.Context, id uuid.UUID) (*models.Song, error) {
	if s.songErr != nil {
		return nil, s.songErr
	}
	if s.song == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.song, nil
}

func (s *stubCatalogFinder) SongsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Song, error) {
	return s.songs, nil
}

func (s *stubCatalogFinder) AlbumsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Album, error) {
	return s.albums, nil
}

func newTestService(t *testing.T, repo *stubEntitlementRepo, catalog *stubCatalogFinder) Service {
	t.Helper()
	svc, err := NewService(repo, catalog)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func pendingInput() PendingInput {
	return PendingInput{
		UserID:    uuid.New(),
		ItemID:    uuid.New(),
		ItemType:  enums.AssetKindSong,
		Reference: "tc_abc123",
		Amount:    decimal.NewFromInt(1500),
		Currency:  enums.CurrencyNGN,
	}
}

func TestCreatePendingWritesRow(t *testing.T) {
	repo := &stubEntitlementRepo{}
	svc := newTestService(t, repo, &stubCatalogFinder{})

	row, err := svc.CreatePending(context.Background(), pendingInput())
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if repo.created == nil {
		t.Fatal("expected row to be created")
	}
	if row.Currency != enums.CurrencyNGN {
		t.Fatalf("unexpected currency %s", row.Currency)
	}
}

func TestCreatePendingDefaultsCurrency(t *testing.T) {
	repo := &stubEntitlementRepo{}
	svc := newTestService(t, repo, &stubCatalogFinder{})

	input := pendingInput()
	input.Currency = ""
	row, err := svc.CreatePending(context.Background(), input)
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if row.Currency != enums.CurrencyNGN {
		t.Fatalf("expected NGN default, got %s", row.Currency)
	}
}

func TestCreatePendingRejectsOwnedItem(t *testing.T) {
	repo := &stubEntitlementRepo{owned: true}
	svc := newTestService(t, repo, &stubCatalogFinder{})

	_, err := svc.CreatePending(context.Background(), pendingInput())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if repo.created != nil {
		t.Fatal("no row must be written for an owned item")
	}
}

func TestCreatePendingRejectsReusedReference(t *testing.T) {
	repo := &stubEntitlementRepo{createErr: errors.New(`duplicate key value violates unique constraint "entitlements_reference_key"`)}
	svc := newTestService(t, repo, &stubCatalogFinder{})

	_, err := svc.CreatePending(context.Background(), pendingInput())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreatePendingValidation(t *testing.T) {
	svc := newTestService(t, &stubEntitlementRepo{}, &stubCatalogFinder{})

	cases := []struct {
		name   string
		mutate func(*PendingInput)
	}{
		{name: "missing user", mutate: func(in *PendingInput) { in.UserID = uuid.Nil }},
		{name: "missing item", mutate: func(in *PendingInput) { in.ItemID = uuid.Nil }},
		{name: "bad item type", mutate: func(in *PendingInput) { in.ItemType = "playlist" }},
		{name: "missing reference", mutate: func(in *PendingInput) { in.Reference = "  " }},
		{name: "negative amount", mutate: func(in *PendingInput) { in.Amount = decimal.NewFromInt(-1) }},
	}
	for _, tc := range cases {
		input := pendingInput()
		tc.mutate(&input)
		_, err := svc.CreatePending(context.Background(), input)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestCompleteReportsWhetherTransitionApplied(t *testing.T) {
	row := &models.Entitlement{ID: uuid.New(), Status: enums.EntitlementStatusCompleted}

	repo := &stubEntitlementRepo{markApplied: true, completedRow: row}
	svc := newTestService(t, repo, &stubCatalogFinder{})

	applied, got, err := svc.Complete(context.Background(), "tc_abc123", time.Now())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !applied {
		t.Fatal("expected first completion to apply")
	}
	if got.ID != row.ID {
		t.Fatal("expected completed row back")
	}

	// second confirmation of the same reference is a no-op
	repo.markApplied = false
	applied, got, err = svc.Complete(context.Background(), "tc_abc123", time.Now())
	if err != nil {
		t.Fatalf("Complete replay: %v", err)
	}
	if applied {
		t.Fatal("replayed completion must not apply")
	}
	if got == nil || got.Status != enums.EntitlementStatusCompleted {
		t.Fatal("replay must still return the completed row")
	}
}

func TestCompleteUnknownReference(t *testing.T) {
	repo := &stubEntitlementRepo{markErr: gorm.ErrRecordNotFound}
	svc := newTestService(t, repo, &stubCatalogFinder{})

	_, _, err := svc.Complete(context.Background(), "tc_missing", time.Now())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRevokeRequiresReason(t *testing.T) {
	svc := newTestService(t, &stubEntitlementRepo{}, &stubCatalogFinder{})
	_, err := svc.Revoke(context.Background(), uuid.New(), uuid.New(), uuid.New(), "  ")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRevokeReportsModifiedCount(t *testing.T) {
	repo := &stubEntitlementRepo{revokeCount: 1}
	svc := newTestService(t, repo, &stubCatalogFinder{})

	targetUserID := uuid.New()
	itemID := uuid.New()
	modified, err := svc.Revoke(context.Background(), targetUserID, itemID, uuid.New(), "chargeback")
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if modified != 1 {
		t.Fatalf("expected 1 modified row, got %d", modified)
	}
	if repo.lastRevoke != [2]uuid.UUID{targetUserID, itemID} {
		t.Fatal("revoke must target the (user, item) pair")
	}
}

func TestRevokeWithoutCompletedRowsIsZero(t *testing.T) {
	repo := &stubEntitlementRepo{revokeCount: 0}
	svc := newTestService(t, repo, &stubCatalogFinder{})

	modified, err := svc.Revoke(context.Background(), uuid.New(), uuid.New(), uuid.New(), "chargeback")
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if modified != 0 {
		t.Fatal("pending or absent rows must not count as revoked")
	}
}

func TestDiscardDeletesPendingRow(t *testing.T) {
	repo := &stubEntitlementRepo{}
	svc := newTestService(t, repo, &stubCatalogFinder{})

	id := uuid.New()
	if err := svc.Discard(context.Background(), id); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if len(repo.discarded) != 1 || repo.discarded[0] != id {
		t.Fatal("expected pending row deletion")
	}
}

func TestCanStreamSongViaAlbumOwnership(t *testing.T) {
	albumID := uuid.New()
	song := &models.Song{ID: uuid.New(), AlbumID: &albumID}
	repo := &stubEntitlementRepo{ownedAny: true}
	svc := newTestService(t, repo, &stubCatalogFinder{song: song})

	ok, err := svc.CanStreamSong(context.Background(), uuid.New(), song.ID)
	if err != nil {
		t.Fatalf("CanStreamSong: %v", err)
	}
	if !ok {
		t.Fatal("album owner must be able to stream member songs")
	}
	if len(repo.lastAnyItemIDs) != 2 {
		t.Fatalf("expected song and album in ownership check, got %v", repo.lastAnyItemIDs)
	}
}

func TestCanStreamSongWithoutOwnership(t *testing.T) {
	song := &models.Song{ID: uuid.New()}
	repo := &stubEntitlementRepo{ownedAny: false}
	svc := newTestService(t, repo, &stubCatalogFinder{song: song})

	ok, err := svc.CanStreamSong(context.Background(), uuid.New(), song.ID)
	if err != nil {
		t.Fatalf("CanStreamSong: %v", err)
	}
	if ok {
		t.Fatal("expected access denied")
	}
	if len(repo.lastAnyItemIDs) != 1 {
		t.Fatalf("standalone song must check only itself, got %v", repo.lastAnyItemIDs)
	}
}

func TestCanStreamSongUnknownSong(t *testing.T) {
	svc := newTestService(t, &stubEntitlementRepo{}, &stubCatalogFinder{})
	_, err := svc.CanStreamSong(context.Background(), uuid.New(), uuid.New())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLibraryHydratesItems(t *testing.T) {
	now := time.Now()
	songID := uuid.New()
	albumID := uuid.New()
	repo := &stubEntitlementRepo{listRows: []models.Entitlement{
		{ID: uuid.New(), ItemID: songID, ItemType: enums.AssetKindSong, CreatedAt: now},
		{ID: uuid.New(), ItemID: albumID, ItemType: enums.AssetKindAlbum, CreatedAt: now.Add(-time.Minute)},
	}}
	catalog := &stubCatalogFinder{
		songs:  []models.Song{{ID: songID, Title: "Track"}},
		albums: []models.Album{{ID: albumID, Title: "Album"}},
	}
	svc := newTestService(t, repo, catalog)

	page, err := svc.Library(context.Background(), uuid.New(), pagination.Params{})
	if err != nil {
		t.Fatalf("Library: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	if page.Items[0].Song == nil || page.Items[0].Song.Title != "Track" {
		t.Fatal("song entitlement not hydrated")
	}
	if page.Items[1].Album == nil || page.Items[1].Album.Title != "Album" {
		t.Fatal("album entitlement not hydrated")
	}
	if repo.lastList.status != enums.EntitlementStatusCompleted {
		t.Fatal("library must list only completed entitlements")
	}
}

func TestLibraryPaginates(t *testing.T) {
	now := time.Now()
	rows := make([]models.Entitlement, 26)
	for i := range rows {
		rows[i] = models.Entitlement{
			ID:        uuid.New(),
			ItemID:    uuid.New(),
			ItemType:  enums.AssetKindSong,
			CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		}
	}
	repo := &stubEntitlementRepo{listRows: rows}
	svc := newTestService(t, repo, &stubCatalogFinder{})

	page, err := svc.Library(context.Background(), uuid.New(), pagination.Params{Limit: 25})
	if err != nil {
		t.Fatalf("Library: %v", err)
	}
	if len(page.Items) != 25 {
		t.Fatalf("expected 25 items, got %d", len(page.Items))
	}
	if page.Cursor == "" {
		t.Fatal("expected next cursor")
	}
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if cursor.ID != rows[25].ID {
		t.Fatal("cursor should point at overflow row")
	}
}

func TestMarkNotified(t *testing.T) {
	repo := &stubEntitlementRepo{}
	svc := newTestService(t, repo, &stubCatalogFinder{})

	id := uuid.New()
	if err := svc.MarkNotified(context.Background(), id); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	if len(repo.notified) != 1 || repo.notified[0] != id {
		t.Fatal("expected notified flag set")
	}
}
