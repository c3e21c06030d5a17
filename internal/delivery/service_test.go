package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunecrate/tunecrate-backend/pkg/db/models"
	"github.com/tunecrate/tunecrate-backend/pkg/enums"
	pkgerrors "github.com/tunecrate/tunecrate-backend/pkg/errors"
)

type stubAccess struct {
	stream    bool
	streamErr error
	owned     bool
}

func (s *stubAccess) CanStreamSong(ctx context.Context, userID, songID uuid.UUID) (bool, error) {
	return s.stream, s.streamErr
}

func (s *stubAccess) HasCompleted(ctx context.Context, userID, itemID uuid.UUID) (bool, error) {
	return s.owned, nil
}

type stubFinder struct {
	song  *models.Song
	album *models.Album
}

func (s *stubFinder) FindSongByID(ctx context.Context, id uuid.UUID) (*models.Song, error) {
	if s.song == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.song, nil
}

func (s *stubFinder) FindAlbumByID(ctx context.Context, id uuid.UUID) (*models.Album, error) {
	if s.album == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.album, nil
}

type stubSigner struct {
	failObjects map[string]error // substring match
	signed      []string
}

func (s *stubSigner) SignedReadURL(bucket, object string, expires time.Duration) (string, error) {
	for substr, err := range s.failObjects {
		if strings.Contains(object, substr) {
			return "", err
		}
	}
	s.signed = append(s.signed, object)
	return "https://storage.googleapis.com/" + bucket + "/" + object + "?sig", nil
}

func newTestService(t *testing.T, access *stubAccess, finder *stubFinder, signer *stubSigner) Service {
	t.Helper()
	svc, err := NewService(access, finder, signer, "bucket", time.Hour, 24*time.Hour, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestStreamURLForOwnedSong(t *testing.T) {
	song := &models.Song{ID: uuid.New(), AudioKey: "audio/a/track.mp3"}
	signer := &stubSigner{}
	svc := newTestService(t, &stubAccess{stream: true}, &stubFinder{song: song}, signer)

	link, err := svc.StreamURL(context.Background(), uuid.New(), song.ID)
	if err != nil {
		t.Fatalf("StreamURL: %v", err)
	}
	if !strings.Contains(link.URL, song.AudioKey) {
		t.Fatalf("unexpected url %q", link.URL)
	}
	if !link.ExpiresAt.After(time.Now()) {
		t.Fatal("expected future expiry")
	}
}

func TestStreamURLDeniedWithoutOwnership(t *testing.T) {
	song := &models.Song{ID: uuid.New(), AudioKey: "audio/a/track.mp3"}
	signer := &stubSigner{}
	svc := newTestService(t, &stubAccess{stream: false}, &stubFinder{song: song}, signer)

	_, err := svc.StreamURL(context.Background(), uuid.New(), song.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(signer.signed) != 0 {
		t.Fatal("no url must be signed without ownership")
	}
}

func TestStreamURLUnknownSong(t *testing.T) {
	// access check hits the catalog first; an unknown song surfaces there
	svc := newTestService(t, &stubAccess{streamErr: pkgerrors.New(pkgerrors.CodeNotFound, "song not found")}, &stubFinder{}, &stubSigner{})

	_, err := svc.StreamURL(context.Background(), uuid.New(), uuid.New())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDownloadLinksForSong(t *testing.T) {
	song := &models.Song{ID: uuid.New(), Title: "Track", AudioKey: "audio/a/track.mp3"}
	signer := &stubSigner{}
	svc := newTestService(t, &stubAccess{stream: true}, &stubFinder{song: song}, signer)

	bundle, err := svc.DownloadLinks(context.Background(), uuid.New(), song.ID, enums.AssetKindSong)
	if err != nil {
		t.Fatalf("DownloadLinks: %v", err)
	}
	if len(bundle.Links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(bundle.Links))
	}
	if bundle.Links[0].Title != "Track" {
		t.Fatalf("unexpected title %q", bundle.Links[0].Title)
	}
}

func TestDownloadLinksForSongViaAlbumOwnership(t *testing.T) {
	// No song-level entitlement; access comes through the parent album.
	song := &models.Song{ID: uuid.New(), Title: "Track", AudioKey: "audio/a/track.mp3"}
	signer := &stubSigner{}
	svc := newTestService(t, &stubAccess{stream: true, owned: false}, &stubFinder{song: song}, signer)

	bundle, err := svc.DownloadLinks(context.Background(), uuid.New(), song.ID, enums.AssetKindSong)
	if err != nil {
		t.Fatalf("DownloadLinks: %v", err)
	}
	if len(bundle.Links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(bundle.Links))
	}
}

func TestDownloadLinksForAlbum(t *testing.T) {
	album := &models.Album{
		ID: uuid.New(),
		Songs: []models.Song{
			{ID: uuid.New(), Title: "One", AudioKey: "audio/1/one.mp3"},
			{ID: uuid.New(), Title: "Two", AudioKey: "audio/2/two.mp3"},
		},
	}
	signer := &stubSigner{}
	svc := newTestService(t, &stubAccess{owned: true}, &stubFinder{album: album}, signer)

	bundle, err := svc.DownloadLinks(context.Background(), uuid.New(), album.ID, enums.AssetKindAlbum)
	if err != nil {
		t.Fatalf("DownloadLinks: %v", err)
	}
	if len(bundle.Links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(bundle.Links))
	}
}

func TestDownloadLinksAlbumIsAllOrNothing(t *testing.T) {
	album := &models.Album{
		ID: uuid.New(),
		Songs: []models.Song{
			{ID: uuid.New(), Title: "One", AudioKey: "audio/1/one.mp3"},
			{ID: uuid.New(), Title: "Two", AudioKey: "audio/2/two.mp3"},
		},
	}
	signer := &stubSigner{failObjects: map[string]error{"two.mp3": errors.New("key unavailable")}}
	svc := newTestService(t, &stubAccess{owned: true}, &stubFinder{album: album}, signer)

	_, err := svc.DownloadLinks(context.Background(), uuid.New(), album.ID, enums.AssetKindAlbum)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestDownloadLinksDeniedWithoutOwnership(t *testing.T) {
	song := &models.Song{ID: uuid.New(), AudioKey: "audio/a/track.mp3"}
	signer := &stubSigner{}
	svc := newTestService(t, &stubAccess{owned: false}, &stubFinder{song: song}, signer)

	_, err := svc.DownloadLinks(context.Background(), uuid.New(), song.ID, enums.AssetKindSong)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(signer.signed) != 0 {
		t.Fatal("no url must be signed without ownership")
	}
}

func TestDownloadLinksUnknownAlbum(t *testing.T) {
	svc := newTestService(t, &stubAccess{owned: true}, &stubFinder{}, &stubSigner{})

	_, err := svc.DownloadLinks(context.Background(), uuid.New(), uuid.New(), enums.AssetKindAlbum)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
