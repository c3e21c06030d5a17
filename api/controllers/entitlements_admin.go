package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tunecrate/tunecrate-backend/api/middleware"
	"github.com/tunecrate/tunecrate-backend/api/responses"
	"github.com/tunecrate/tunecrate-backend/api/validators"
	"github.com/tunecrate/tunecrate-backend/internal/entitlements"
	"github.com/tunecrate/tunecrate-backend/internal/users"
	"github.com/tunecrate/tunecrate-backend/pkg/db/models"
	"github.com/tunecrate/tunecrate-backend/pkg/enums"
	pkgerrors "github.com/tunecrate/tunecrate-backend/pkg/errors"
	"github.com/tunecrate/tunecrate-backend/pkg/logger"
)

type identityMirror interface {
	FindOrCreateBySubject(ctx context.Context, identity users.Identity) (*models.User, error)
}

type revokeRequest struct {
	TargetUserID string `json:"target_user_id" validate:"required,uuid"`
	ItemID       string `json:"item_id" validate:"required,uuid"`
	Reason       string `json:"reason" validate:"required"`
}

// AdminEntitlementRevoke forces the target user's completed entitlements for
// one item to failed with an audit trail. Rows are kept, never deleted.
func AdminEntitlementRevoke(svc entitlements.Service, mirror identityMirror, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subjectID := middleware.SubjectIDFromContext(r.Context())
		if subjectID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var payload revokeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		targetUserID, err := uuid.Parse(payload.TargetUserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target user id"))
			return
		}
		itemID, err := uuid.Parse(payload.ItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}

		admin, err := mirror.FindOrCreateBySubject(r.Context(), users.Identity{
			SubjectID: subjectID,
			Email:     middleware.EmailFromContext(r.Context()),
			Role:      enums.UserRoleAdmin,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve admin"))
			return
		}

		modified, err := svc.Revoke(r.Context(), targetUserID, itemID, admin.ID, strings.TrimSpace(payload.Reason))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"modified_count": modified})
	}
}
