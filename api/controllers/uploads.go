package controllers

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tunecrate/tunecrate-backend/api/responses"
	"github.com/tunecrate/tunecrate-backend/api/validators"
	"github.com/tunecrate/tunecrate-backend/internal/catalog"
	pkgerrors "github.com/tunecrate/tunecrate-backend/pkg/errors"
	"github.com/tunecrate/tunecrate-backend/pkg/logger"
)

// multipart bodies are spooled to disk above this threshold
const multipartMemoryLimit = 32 << 20

const maxTextFieldLen = 255

// SongUpload publishes a standalone track: metadata fields plus "audio" and
// "cover" file parts.
func SongUpload(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body"))
			return
		}
		defer cleanupMultipart(r)

		input, err := songInputFromForm(r.MultipartForm.Value)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		audio, closeAudio, err := filePart(r, "audio")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer closeAudio()

		cover, closeCover, err := filePart(r, "cover")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer closeCover()

		song, err := svc.UploadSong(r.Context(), catalog.SongUpload{
			SongInput: input,
			Audio:     audio,
			Cover:     cover,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, song)
	}
}

type albumTrackMetadata struct {
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	Price           string `json:"price"`
	Genre           string `json:"genre"`
	DurationSeconds int    `json:"duration_seconds"`
	Featured        bool   `json:"featured"`
}

type albumMetadata struct {
	Title       string               `json:"title"`
	Artist      string               `json:"artist"`
	Price       string               `json:"price"`
	Featured    bool                 `json:"featured"`
	Description *string              `json:"description"`
	ReleaseDate string               `json:"release_date"`
	Tracks      []albumTrackMetadata `json:"tracks"`
}

// AlbumUpload publishes an album atomically. The request carries a "metadata"
// JSON field describing the album and its tracks, a "cover" file part, and one
// "track_{i}" file part per track in metadata order.
func AlbumUpload(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body"))
			return
		}
		defer cleanupMultipart(r)

		raw := r.FormValue("metadata")
		if strings.TrimSpace(raw) == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "metadata field is required"))
			return
		}
		var meta albumMetadata
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid metadata"))
			return
		}

		price, err := parsePrice(meta.Price)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cover, closeCover, err := filePart(r, "cover")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer closeCover()

		upload := catalog.AlbumUpload{
			Title:       validators.SanitizeString(meta.Title, maxTextFieldLen),
			Artist:      validators.SanitizeString(meta.Artist, maxTextFieldLen),
			Price:       price,
			Featured:    meta.Featured,
			Description: meta.Description,
			ReleaseDate: meta.ReleaseDate,
			Cover:       cover,
		}

		closers := make([]func(), 0, len(meta.Tracks))
		defer func() {
			for _, closeFn := range closers {
				closeFn()
			}
		}()
		for i, track := range meta.Tracks {
			trackPrice, err := parsePrice(track.Price)
			if err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("track %d: invalid price", i+1)))
				return
			}
			audio, closeAudio, err := filePart(r, "track_"+strconv.Itoa(i))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			closers = append(closers, closeAudio)

			upload.Tracks = append(upload.Tracks, catalog.AlbumTrack{
				SongInput: catalog.SongInput{
					Title:           validators.SanitizeString(track.Title, maxTextFieldLen),
					Artist:          validators.SanitizeString(track.Artist, maxTextFieldLen),
					Price:           trackPrice,
					Genre:           validators.SanitizeString(track.Genre, maxTextFieldLen),
					DurationSeconds: track.DurationSeconds,
					Featured:        track.Featured,
				},
				Audio: audio,
			})
		}

		album, err := svc.UploadAlbum(r.Context(), upload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, album)
	}
}

// SongDelete removes a track and reclaims its media.
func SongDelete(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "songId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid song id"))
			return
		}
		if err := svc.DeleteSong(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// AlbumDelete removes an album with its tracks and reclaims their media.
func AlbumDelete(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "albumId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid album id"))
			return
		}
		if err := svc.DeleteAlbum(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

func songInputFromForm(values map[string][]string) (catalog.SongInput, error) {
	get := func(key string) string {
		if v, ok := values[key]; ok && len(v) > 0 {
			return validators.SanitizeString(v[0], maxTextFieldLen)
		}
		return ""
	}

	price, err := parsePrice(get("price"))
	if err != nil {
		return catalog.SongInput{}, err
	}

	duration := 0
	if raw := get("duration_seconds"); raw != "" {
		duration, err = strconv.Atoi(raw)
		if err != nil {
			return catalog.SongInput{}, pkgerrors.New(pkgerrors.CodeValidation, "duration_seconds must be an integer")
		}
	}

	featured := false
	if raw := get("featured"); raw != "" {
		featured, err = strconv.ParseBool(raw)
		if err != nil {
			return catalog.SongInput{}, pkgerrors.New(pkgerrors.CodeValidation, "featured must be a boolean")
		}
	}

	return catalog.SongInput{
		Title:           get("title"),
		Artist:          get("artist"),
		Price:           price,
		Genre:           get("genre"),
		DurationSeconds: duration,
		Featured:        featured,
	}, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "price is required")
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "price must be a decimal number")
	}
	return price, nil
}

func filePart(r *http.Request, field string) (catalog.FileUpload, func(), error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return catalog.FileUpload{}, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s file is required", field))
	}
	return catalog.FileUpload{
		FileName:    header.Filename,
		ContentType: partContentType(header),
		SizeBytes:   header.Size,
		Body:        file,
	}, func() { _ = file.Close() }, nil
}

func partContentType(header *multipart.FileHeader) string {
	return strings.TrimSpace(header.Header.Get("Content-Type"))
}

func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}
