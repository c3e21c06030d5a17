package notifications

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tunecrate/tunecrate-backend/pkg/enums"
)

// EventTypePurchaseCompleted tags receipt messages on the wire.
const EventTypePurchaseCompleted = "purchase.completed"

// ReceiptEvent is the payload published when an entitlement completes. The
// notifier worker turns it into a buyer-facing receipt.
type ReceiptEvent struct {
	EntitlementID uuid.UUID       `json:"entitlement_id"`
	UserID        uuid.UUID       `json:"user_id"`
	ItemID        uuid.UUID       `json:"item_id"`
	ItemType      enums.AssetKind `json:"item_type"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      enums.Currency  `json:"currency"`
	PurchasedAt   time.Time       `json:"purchased_at"`
}
