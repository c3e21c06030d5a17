package purchases

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tunecrate/tunecrate-backend/internal/entitlements"
	"github.com/tunecrate/tunecrate-backend/internal/users"
	"github.com/tunecrate/tunecrate-backend/pkg/db/models"
	"github.com/tunecrate/tunecrate-backend/pkg/enums"
	pkgerrors "github.com/tunecrate/tunecrate-backend/pkg/errors"
	"github.com/tunecrate/tunecrate-backend/pkg/logger"
	"github.com/tunecrate/tunecrate-backend/pkg/metrics"
	"github.com/tunecrate/tunecrate-backend/pkg/paystack"
)

type entitlementLedger interface {
	CreatePending(ctx context.Context, input entitlements.PendingInput) (*models.Entitlement, error)
	Discard(ctx context.Context, id uuid.UUID) error
	GetByReference(ctx context.Context, reference string) (*models.Entitlement, error)
	Complete(ctx context.Context, reference string, paidAt time.Time) (bool, *models.Entitlement, error)
	Fail(ctx context.Context, reference string) (bool, error)
}

type catalogPricer interface {
	FindSongByID(ctx context.Context, id uuid.UUID) (*models.Song, error)
	FindAlbumByID(ctx context.Context, id uuid.UUID) (*models.Album, error)
}

type userMirror interface {
	FindOrCreateBySubject(ctx context.Context, identity users.Identity) (*models.User, error)
	FindBySubject(ctx context.Context, subjectID string) (*models.User, error)
}

type gatewayClient interface {
	Initialize(ctx context.Context, params paystack.InitializeParams) (*paystack.Authorization, error)
	Verify(ctx context.Context, reference string) (*paystack.Transaction, error)
}

type receiptNotifier interface {
	PurchaseCompleted(ctx context.Context, row *models.Entitlement) error
}

// InitiateInput carries the identity claims and the asset the buyer wants.
type InitiateInput struct {
	SubjectID string
	Email     string
	Role      enums.UserRole
	ItemID    uuid.UUID
	ItemType  enums.AssetKind
}

// Checkout is the hosted-payment handle the buyer is redirected to.
type Checkout struct {
	EntitlementID    uuid.UUID       `json:"entitlement_id"`
	Reference        string          `json:"reference"`
	AuthorizationURL string          `json:"authorization_url"`
	AccessCode       string          `json:"access_code"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         enums.Currency  `json:"currency"`
}

// VerifyResult reports the entitlement state after a verify round-trip.
type VerifyResult struct {
	Entitlement   *models.Entitlement `json:"entitlement"`
	GatewayStatus string              `json:"gateway_status"`
}

// Service orchestrates purchases against the payment gateway: it opens
// checkout sessions and settles them through the verify endpoint. The
// entitlement ledger owns every state transition.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*Checkout, error)
	Verify(ctx context.Context, subjectID, reference string) (*VerifyResult, error)
}

type service struct {
	ledger   entitlementLedger
	catalog  catalogPricer
	users    userMirror
	gateway  gatewayClient
	notifier receiptNotifier
	store    *metrics.StoreMetrics
	logger   *logger.Logger
}

// NewService builds the purchases service. The metrics handle may be nil.
func NewService(
	ledger entitlementLedger,
	catalog catalogPricer,
	users userMirror,
	gateway gatewayClient,
	notifier receiptNotifier,
	store *metrics.StoreMetrics,
	logg *logger.Logger,
) (Service, error) {
	if ledger == nil {
		return nil, fmt.Errorf("entitlement ledger required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog pricer required")
	}
	if users == nil {
		return nil, fmt.Errorf("user mirror required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("receipt notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		ledger:   ledger,
		catalog:  catalog,
		users:    users,
		gateway:  gateway,
		notifier: notifier,
		store:    store,
		logger:   logg,
	}, nil
}

func (s *service) Initiate(ctx context.Context, input InitiateInput) (*Checkout, error) {
	if strings.TrimSpace(input.SubjectID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if strings.TrimSpace(input.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer email is required")
	}
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if !input.ItemType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item type must be song or album")
	}

	user, err := s.users.FindOrCreateBySubject(ctx, users.Identity{
		SubjectID: input.SubjectID,
		Email:     input.Email,
		Role:      input.Role,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve user")
	}

	price, err := s.priceFor(ctx, input.ItemID, input.ItemType)
	if err != nil {
		return nil, err
	}

	reference := newReference()
	row, err := s.ledger.CreatePending(ctx, entitlements.PendingInput{
		UserID:    user.ID,
		ItemID:    input.ItemID,
		ItemType:  input.ItemType,
		Reference: reference,
		Amount:    price,
		Currency:  enums.CurrencyNGN,
	})
	if err != nil {
		return nil, err
	}

	authorization, err := s.gateway.Initialize(ctx, paystack.InitializeParams{
		Email:      input.Email,
		AmountKobo: toKobo(price),
		Reference:  reference,
		Currency:   string(row.Currency),
		Metadata: map[string]any{
			"user_id":        user.ID.String(),
			"item_id":        input.ItemID.String(),
			"item_type":      string(input.ItemType),
			"entitlement_id": row.ID.String(),
		},
	})
	if err != nil {
		// No checkout session exists, so the pending row is an orphan.
		if discardErr := s.ledger.Discard(ctx, row.ID); discardErr != nil {
			s.logger.Error(s.logger.WithField(ctx, "reference", reference),
				"failed to discard pending entitlement after gateway error", discardErr)
		}
		return nil, err
	}

	s.store.IncPurchaseInitiated(string(input.ItemType))
	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"reference": reference,
		"item_type": string(input.ItemType),
		"item_id":   input.ItemID.String(),
	}), "purchase initiated")

	return &Checkout{
		EntitlementID:    row.ID,
		Reference:        reference,
		AuthorizationURL: authorization.AuthorizationURL,
		AccessCode:       authorization.AccessCode,
		Amount:           price,
		Currency:         row.Currency,
	}, nil
}

func (s *service) Verify(ctx context.Context, subjectID, reference string) (*VerifyResult, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}

	row, err := s.ledger.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeVerify(ctx, subjectID, row); err != nil {
		return nil, err
	}

	// Already settled: replaying verify is a read, not a second grant.
	if row.Status == enums.EntitlementStatusCompleted {
		return &VerifyResult{Entitlement: row, GatewayStatus: "success"}, nil
	}

	tx, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}

	if !tx.Succeeded() {
		if _, failErr := s.ledger.Fail(ctx, reference); failErr != nil {
			return nil, failErr
		}
		s.store.IncPurchaseFailed()
		row.Status = enums.EntitlementStatusFailed
		return &VerifyResult{Entitlement: row, GatewayStatus: tx.Status}, nil
	}

	if toKobo(row.Amount) != tx.AmountKobo || !strings.EqualFold(string(row.Currency), tx.Currency) {
		s.logger.Error(s.logger.WithFields(ctx, map[string]any{
			"reference":        reference,
			"expected_kobo":    toKobo(row.Amount),
			"charged_kobo":     tx.AmountKobo,
			"charged_currency": tx.Currency,
		}), "gateway settlement does not match entitlement", nil)
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "settled amount does not match purchase")
	}

	applied, row, err := s.ledger.Complete(ctx, reference, paidAtOf(tx))
	if err != nil {
		return nil, err
	}
	if applied {
		s.store.IncPurchaseCompleted("verify")
		if notifyErr := s.notifier.PurchaseCompleted(ctx, row); notifyErr != nil {
			s.logger.Error(s.logger.WithField(ctx, "reference", reference),
				"receipt dispatch failed", notifyErr)
		}
	}
	return &VerifyResult{Entitlement: row, GatewayStatus: tx.Status}, nil
}

// authorizeVerify stops one buyer from settling another buyer's reference.
// Callers without a subject (the webhook path does not have one) skip the
// check.
func (s *service) authorizeVerify(ctx context.Context, subjectID string, row *models.Entitlement) error {
	if strings.TrimSpace(subjectID) == "" {
		return nil
	}
	user, err := s.users.FindBySubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "reference belongs to another buyer")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve user")
	}
	if user.ID != row.UserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "reference belongs to another buyer")
	}
	return nil
}

func (s *service) priceFor(ctx context.Context, itemID uuid.UUID, kind enums.AssetKind) (decimal.Decimal, error) {
	switch kind {
	case enums.AssetKindSong:
		song, err := s.catalog.FindSongByID(ctx, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "song not found")
			}
			return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup song")
		}
		return song.Price, nil
	case enums.AssetKindAlbum:
		album, err := s.catalog.FindAlbumByID(ctx, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "album not found")
			}
			return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup album")
		}
		return album.Price, nil
	default:
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "item type must be song or album")
	}
}

// newReference mints the gateway payment reference. It doubles as the
// idempotency key for completion, so it must be unique per checkout session.
func newReference() string {
	id := uuid.New()
	return "tc_" + hex.EncodeToString(id[:])
}

// toKobo converts an NGN amount to the gateway's integer subunit.
func toKobo(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func paidAtOf(tx *paystack.Transaction) time.Time {
	if tx == nil || strings.TrimSpace(tx.PaidAt) == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339, tx.PaidAt); err == nil {
		return t
	}
	return time.Now().UTC()
}
