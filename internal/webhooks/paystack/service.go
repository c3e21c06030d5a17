package paystackwebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tunecrate/tunecrate-backend/pkg/db/models"
	pkgerrors "github.com/tunecrate/tunecrate-backend/pkg/errors"
	"github.com/tunecrate/tunecrate-backend/pkg/logger"
	"github.com/tunecrate/tunecrate-backend/pkg/metrics"
)

const eventDedupeTTL = 24 * time.Hour

type entitlementLedger interface {
	GetByReference(ctx context.Context, reference string) (*models.Entitlement, error)
	Complete(ctx context.Context, reference string, paidAt time.Time) (bool, *models.Entitlement, error)
	Fail(ctx context.Context, reference string) (bool, error)
}

type receiptNotifier interface {
	PurchaseCompleted(ctx context.Context, row *models.Entitlement) error
}

type dedupeStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookEventKey(provider, eventID string) string
}

// Event is the envelope the gateway posts to the webhook endpoint.
type Event struct {
	Event string     `json:"event"`
	Data  ChargeData `json:"data"`
}

// ChargeData is the charge payload inside a gateway event.
type ChargeData struct {
	ID         int64  `json:"id"`
	Reference  string `json:"reference"`
	Status     string `json:"status"`
	AmountKobo int64  `json:"amount"`
	Currency   string `json:"currency"`
	PaidAt     string `json:"paid_at"`
}

// Service applies gateway webhook events to the entitlement ledger. Signature
// verification happens in the controller before any payload reaches this
// service.
type Service struct {
	ledger   entitlementLedger
	notifier receiptNotifier
	dedupe   dedupeStore
	store    *metrics.StoreMetrics
	logg     *logger.Logger
}

// NewService builds the webhook service. The metrics handle may be nil.
func NewService(
	ledger entitlementLedger,
	notifier receiptNotifier,
	dedupe dedupeStore,
	store *metrics.StoreMetrics,
	logg *logger.Logger,
) (*Service, error) {
	if ledger == nil {
		return nil, fmt.Errorf("entitlement ledger required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("receipt notifier required")
	}
	if dedupe == nil {
		return nil, fmt.Errorf("dedupe store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		ledger:   ledger,
		notifier: notifier,
		dedupe:   dedupe,
		store:    store,
		logg:     logg,
	}, nil
}

// ParseEvent decodes the raw webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload")
	}
	if strings.TrimSpace(event.Event) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event type missing")
	}
	return &event, nil
}

// HandleEvent routes one verified gateway event. Events the store does not
// react to are acknowledged without touching the ledger.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event":     event.Event,
		"reference": event.Data.Reference,
	})

	key := s.dedupeKey(event)
	fresh, err := s.dedupe.SetNX(ctx, key, "1", eventDedupeTTL)
	if err != nil {
		s.store.IncWebhookEvent(event.Event, "error")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook dedupe check")
	}
	if !fresh {
		s.store.IncWebhookEvent(event.Event, "duplicate")
		s.logg.Info(logCtx, "webhook event already processed")
		return nil
	}

	switch strings.ToLower(event.Event) {
	case "charge.success":
		err = s.handleChargeSuccess(ctx, event.Data)
	case "charge.failed":
		err = s.handleChargeFailed(ctx, event.Data)
	default:
		s.store.IncWebhookEvent(event.Event, "ignored")
		s.logg.Info(logCtx, "ignoring unhandled webhook event")
		return nil
	}

	if err != nil {
		// Release the guard so the gateway's redelivery is processed, not
		// acknowledged as a duplicate.
		if delErr := s.dedupe.Del(ctx, key); delErr != nil {
			s.logg.Error(logCtx, "release webhook dedupe key failed", delErr)
		}
		s.store.IncWebhookEvent(event.Event, "error")
		return err
	}
	s.store.IncWebhookEvent(event.Event, "processed")
	return nil
}

func (s *Service) handleChargeSuccess(ctx context.Context, data ChargeData) error {
	if strings.TrimSpace(data.Reference) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge reference missing")
	}

	row, err := s.ledger.GetByReference(ctx, data.Reference)
	if err != nil {
		return err
	}

	if kobo(row.Amount) != data.AmountKobo || !strings.EqualFold(string(row.Currency), data.Currency) {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"reference":        data.Reference,
			"expected_kobo":    kobo(row.Amount),
			"charged_kobo":     data.AmountKobo,
			"charged_currency": data.Currency,
		}), "webhook settlement does not match entitlement", nil)
		return pkgerrors.New(pkgerrors.CodeStateConflict, "settled amount does not match purchase")
	}

	applied, row, err := s.ledger.Complete(ctx, data.Reference, paidAtOf(data))
	if err != nil {
		return err
	}
	if !applied {
		// verify or an earlier delivery already granted it
		return nil
	}

	s.store.IncPurchaseCompleted("webhook")
	if notifyErr := s.notifier.PurchaseCompleted(ctx, row); notifyErr != nil {
		s.logg.Error(s.logg.WithField(ctx, "reference", data.Reference),
			"receipt dispatch failed", notifyErr)
	}
	return nil
}

func (s *Service) handleChargeFailed(ctx context.Context, data ChargeData) error {
	if strings.TrimSpace(data.Reference) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge reference missing")
	}
	applied, err := s.ledger.Fail(ctx, data.Reference)
	if err != nil {
		return err
	}
	if applied {
		s.store.IncPurchaseFailed()
	}
	return nil
}

// dedupeKey identifies one gateway delivery. Paystack event IDs are not
// guaranteed present, so the key falls back to event type plus reference.
func (s *Service) dedupeKey(event *Event) string {
	id := strconv.FormatInt(event.Data.ID, 10)
	if event.Data.ID == 0 {
		id = event.Event + ":" + event.Data.Reference
	}
	return s.dedupe.WebhookEventKey("paystack", id)
}

// kobo converts an NGN amount to the gateway's integer subunit.
func kobo(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func paidAtOf(data ChargeData) time.Time {
	if strings.TrimSpace(data.PaidAt) == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
		return t
	}
	return time.Now().UTC()
}
