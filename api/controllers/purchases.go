package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tunecrate/tunecrate-backend/api/middleware"
	"github.com/tunecrate/tunecrate-backend/api/responses"
	"github.com/tunecrate/tunecrate-backend/api/validators"
	"github.com/tunecrate/tunecrate-backend/internal/purchases"
	"github.com/tunecrate/tunecrate-backend/pkg/enums"
	pkgerrors "github.com/tunecrate/tunecrate-backend/pkg/errors"
	"github.com/tunecrate/tunecrate-backend/pkg/logger"
)

type purchaseInitiateRequest struct {
	ItemID   string `json:"item_id" validate:"required,uuid"`
	ItemType string `json:"item_type" validate:"required,oneof=song album"`
}

// PurchaseInitiate opens a checkout session for the authenticated buyer.
func PurchaseInitiate(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subjectID := middleware.SubjectIDFromContext(r.Context())
		if subjectID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var payload purchaseInitiateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		itemID, err := uuid.Parse(payload.ItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item_id"))
			return
		}
		itemType, err := enums.ParseAssetKind(payload.ItemType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid item_type"))
			return
		}

		role, _ := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
		checkout, err := svc.Initiate(r.Context(), purchases.InitiateInput{
			SubjectID: subjectID,
			Email:     middleware.EmailFromContext(r.Context()),
			Role:      role,
			ItemID:    itemID,
			ItemType:  itemType,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, checkout)
	}
}

type purchaseVerifyRequest struct {
	Reference string `json:"reference" validate:"required"`
}

// PurchaseVerify settles a checkout session through the gateway verify
// endpoint. Safe to replay.
func PurchaseVerify(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subjectID := middleware.SubjectIDFromContext(r.Context())
		if subjectID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var payload purchaseVerifyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Verify(r.Context(), subjectID, strings.TrimSpace(payload.Reference))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
