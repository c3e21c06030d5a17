package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tunecrate/tunecrate-backend/api/responses"
	"github.com/tunecrate/tunecrate-backend/api/validators"
	"github.com/tunecrate/tunecrate-backend/internal/catalog"
	pkgerrors "github.com/tunecrate/tunecrate-backend/pkg/errors"
	"github.com/tunecrate/tunecrate-backend/pkg/logger"
	"github.com/tunecrate/tunecrate-backend/pkg/pagination"
)

func listParamsFromQuery(r *http.Request) (catalog.ListParams, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return catalog.ListParams{}, err
	}

	params := catalog.ListParams{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		Genre:  strings.TrimSpace(r.URL.Query().Get("genre")),
	}
	if featured, present, err := validators.ParseQueryBool(r, "featured"); err != nil {
		return catalog.ListParams{}, err
	} else if present {
		params.Featured = &featured
	}
	return params, nil
}

// SongList serves the public song catalog with cursor pagination.
func SongList(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := listParamsFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListSongs(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// SongGet serves one catalog song.
func SongGet(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "songId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid song id"))
			return
		}

		song, err := svc.GetSong(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, song)
	}
}

// AlbumList serves the public album catalog with cursor pagination.
func AlbumList(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := listParamsFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListAlbums(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AlbumGet serves one album with its track list.
func AlbumGet(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "albumId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid album id"))
			return
		}

		album, err := svc.GetAlbum(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, album)
	}
}
