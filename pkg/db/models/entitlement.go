package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tunecrate/tunecrate-backend/pkg/enums"
)

// Entitlement is the durable record of who owns what. Reference is the
// gateway payment reference and the idempotency key for completion: the
// pending->completed transition must happen at most once per reference.
// Revocation flips status to failed and stamps the audit columns; rows are
// never deleted.
type Entitlement struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID           uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	ItemID           uuid.UUID               `gorm:"column:item_id;type:uuid;not null;index" json:"item_id"`
	ItemType         enums.AssetKind         `gorm:"column:item_type;not null" json:"item_type"`
	Reference        string                  `gorm:"column:reference;not null;unique" json:"reference"`
	Amount           decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency         enums.Currency          `gorm:"column:currency;not null;default:'NGN'" json:"currency"`
	Status           enums.EntitlementStatus `gorm:"column:status;not null;default:'pending';index" json:"status"`
	PurchasedAt      *time.Time              `gorm:"column:purchased_at" json:"purchased_at,omitempty"`
	NotificationSent bool                    `gorm:"column:notification_sent;not null;default:false" json:"notification_sent"`
	RevokedAt        *time.Time              `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
	RevokedBy        *uuid.UUID              `gorm:"column:revoked_by;type:uuid" json:"revoked_by,omitempty"`
	RevokeReason     *string                 `gorm:"column:revoke_reason" json:"revoke_reason,omitempty"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
