package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/tunecrate/tunecrate-backend/pkg/db/models"
	"github.com/tunecrate/tunecrate-backend/pkg/logger"
)

const receiptDedupeTTL = 24 * time.Hour

type notifiedMarker interface {
	MarkNotified(ctx context.Context, id uuid.UUID) error
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type deduper interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
}

// ReceiptSender delivers the receipt to the buyer. The default implementation
// logs the delivery; a mail provider slots in behind the same interface.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, to string, event ReceiptEvent) error
}

// LogSender writes receipts to the application log instead of a mailbox.
type LogSender struct {
	logg *logger.Logger
}

// NewLogSender builds the log-backed receipt sender.
func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

// SendReceipt logs the receipt delivery.
func (s *LogSender) SendReceipt(ctx context.Context, to string, event ReceiptEvent) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"to":        to,
		"reference": event.Reference,
		"item_type": string(event.ItemType),
		"amount":    event.Amount.String(),
	}), "purchase receipt sent")
	return nil
}

// Consumer drains the receipts subscription: each completed purchase event is
// deduplicated, delivered to the buyer, and marked notified on the ledger.
type Consumer struct {
	ledger       notifiedMarker
	users        userFinder
	sender       ReceiptSender
	dedupe       deduper
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewConsumer builds the receipt consumer.
func NewConsumer(
	ledger notifiedMarker,
	users userFinder,
	sender ReceiptSender,
	dedupe deduper,
	subscription *pubsub.Subscriber,
	logg *logger.Logger,
) (*Consumer, error) {
	if ledger == nil {
		return nil, fmt.Errorf("entitlement ledger required")
	}
	if users == nil {
		return nil, fmt.Errorf("user finder required")
	}
	if sender == nil {
		return nil, fmt.Errorf("receipt sender required")
	}
	if dedupe == nil {
		return nil, fmt.Errorf("dedupe store required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("receipts subscription required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		ledger:       ledger,
		users:        users,
		sender:       sender,
		dedupe:       dedupe,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.Attributes["event_type"], msg.ID, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process handles one message and reports whether it should be acked.
func (c *Consumer) process(ctx context.Context, eventType, messageID string, data []byte) bool {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	if eventType != EventTypePurchaseCompleted {
		c.logg.Info(logCtx, "skipping unrecognized event")
		return true
	}

	var event ReceiptEvent
	if err := json.Unmarshal(data, &event); err != nil {
		// malformed payloads never become deliverable; drop them
		c.logg.Error(logCtx, "dropping undecodable receipt event", err)
		return true
	}
	logCtx = c.logg.WithField(logCtx, "reference", event.Reference)

	fresh, err := c.dedupe.SetNX(ctx, receiptDedupeKey(event.EntitlementID), "1", receiptDedupeTTL)
	if err != nil {
		c.logg.Error(logCtx, "receipt dedupe check failed", err)
		return false
	}
	if !fresh {
		c.logg.Info(logCtx, "receipt already delivered")
		return true
	}

	user, err := c.users.FindByID(ctx, event.UserID)
	if err != nil {
		c.logg.Error(logCtx, "resolving receipt recipient failed", err)
		return false
	}

	if err := c.sender.SendReceipt(ctx, user.Email, event); err != nil {
		c.logg.Error(logCtx, "receipt delivery failed", err)
		return false
	}

	if err := c.ledger.MarkNotified(ctx, event.EntitlementID); err != nil {
		// delivery happened; the dedupe key stops a duplicate send on redelivery
		c.logg.Error(logCtx, "marking entitlement notified failed", err)
		return false
	}

	c.logg.Info(logCtx, "receipt processed")
	return true
}

func receiptDedupeKey(entitlementID uuid.UUID) string {
	return "receipt:" + entitlementID.String()
}
