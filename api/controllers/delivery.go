package controllers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tunecrate/tunecrate-backend/api/middleware"
	"github.com/tunecrate/tunecrate-backend/api/responses"
	"github.com/tunecrate/tunecrate-backend/api/validators"
	"github.com/tunecrate/tunecrate-backend/internal/delivery"
	"github.com/tunecrate/tunecrate-backend/pkg/enums"
	pkgerrors "github.com/tunecrate/tunecrate-backend/pkg/errors"
	"github.com/tunecrate/tunecrate-backend/pkg/logger"
)

func resolveUserID(r *http.Request, users subjectResolver) (uuid.UUID, error) {
	subjectID := middleware.SubjectIDFromContext(r.Context())
	if subjectID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	user, err := users.FindBySubject(r.Context(), subjectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// no local row means no purchases, so nothing is owned
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "item not owned")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve user")
	}
	return user.ID, nil
}

// StreamSong issues a short-lived playback URL for an owned song. The default
// response is a 302 to the signed URL so players can hit the endpoint
// directly; ?redirect=false returns the locator as JSON instead. Byte-range
// requests pass through to the storage tier on the signed URL itself.
func StreamSong(svc delivery.Service, users subjectResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := resolveUserID(r, users)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		songID, err := uuid.Parse(chi.URLParam(r, "songId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid song id"))
			return
		}

		link, err := svc.StreamURL(r.Context(), userID, songID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if r.URL.Query().Get("redirect") == "false" {
			responses.WriteSuccess(w, link)
			return
		}
		http.Redirect(w, r, link.URL, http.StatusFound)
	}
}

type downloadRequest struct {
	ItemType string `json:"item_type" validate:"required,oneof=song album"`
}

// DownloadAsset issues download URLs for a purchased asset. Albums return one
// link per track.
func DownloadAsset(svc delivery.Service, users subjectResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := resolveUserID(r, users)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		assetID, err := uuid.Parse(chi.URLParam(r, "assetId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid asset id"))
			return
		}

		var payload downloadRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemType, err := enums.ParseAssetKind(payload.ItemType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid item_type"))
			return
		}

		bundle, err := svc.DownloadLinks(r.Context(), userID, assetID, itemType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bundle)
	}
}
