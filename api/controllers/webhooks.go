package controllers

import (
	"io"
	"net/http"
	"strings"

	"github.com/tunecrate/tunecrate-backend/api/responses"
	paystackwebhook "github.com/tunecrate/tunecrate-backend/internal/webhooks/paystack"
	pkgerrors "github.com/tunecrate/tunecrate-backend/pkg/errors"
	"github.com/tunecrate/tunecrate-backend/pkg/logger"
)

const (
	paystackSignatureHeader = "X-Paystack-Signature"
	webhookBodyLimit        = 1 << 20
)

type signatureVerifier interface {
	ValidateSignature(payload []byte, signature string) bool
}

// PaystackWebhook receives gateway events. The HMAC signature over the raw
// body is checked before the payload is even decoded; nothing reaches the
// ledger on a bad signature.
func PaystackWebhook(svc *paystackwebhook.Service, verifier signatureVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}

		// A mis-signed body is a hard 400 so the gateway's retry and
		// alerting kick in; nothing reaches the ledger.
		signature := strings.TrimSpace(r.Header.Get(paystackSignatureHeader))
		if signature == "" || !verifier.ValidateSignature(body, signature) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid webhook signature"))
			return
		}

		event, err := paystackwebhook.ParseEvent(body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.HandleEvent(r.Context(), event); err != nil {
			// an unknown reference is not ours to settle; ack so the
			// gateway stops redelivering
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
				logg.Warn(logg.WithField(r.Context(), "event", event.Event), "webhook references unknown purchase")
				responses.WriteSuccess(w, map[string]bool{"received": true})
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
