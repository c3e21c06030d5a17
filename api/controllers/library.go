package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/tunecrate/tunecrate-backend/api/middleware"
	"github.com/tunecrate/tunecrate-backend/api/responses"
	"github.com/tunecrate/tunecrate-backend/api/validators"
	"github.com/tunecrate/tunecrate-backend/internal/entitlements"
	"github.com/tunecrate/tunecrate-backend/pkg/db/models"
	pkgerrors "github.com/tunecrate/tunecrate-backend/pkg/errors"
	"github.com/tunecrate/tunecrate-backend/pkg/logger"
	"github.com/tunecrate/tunecrate-backend/pkg/pagination"
)

type subjectResolver interface {
	FindBySubject(ctx context.Context, subjectID string) (*models.User, error)
}

// Library lists the authenticated user's owned assets. A user who never
// purchased anything has an empty library, not an error.
func Library(svc entitlements.Service, users subjectResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subjectID := middleware.SubjectIDFromContext(r.Context())
		if subjectID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := users.FindBySubject(r.Context(), subjectID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteSuccess(w, entitlements.LibraryPage{Items: []entitlements.LibraryItem{}})
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve user"))
			return
		}

		page, err := svc.Library(r.Context(), user.ID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
