package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/tunecrate/tunecrate-backend/pkg/db/models"
	pkgerrors "github.com/tunecrate/tunecrate-backend/pkg/errors"
	"github.com/tunecrate/tunecrate-backend/pkg/logger"
)

type messagePublisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

// TopicPublisher adapts a Pub/Sub publisher handle to the synchronous publish
// shape the service wants.
type TopicPublisher struct {
	publisher *pubsub.Publisher
}

// NewTopicPublisher wraps the given publisher handle.
func NewTopicPublisher(publisher *pubsub.Publisher) (*TopicPublisher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher handle required")
	}
	return &TopicPublisher{publisher: publisher}, nil
}

// Publish sends one message and blocks until the broker acknowledges it.
func (p *TopicPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	result := p.publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	return result.Get(ctx)
}

// Service publishes receipt events for completed purchases.
type Service interface {
	PurchaseCompleted(ctx context.Context, row *models.Entitlement) error
}

type service struct {
	publisher messagePublisher
	logg      *logger.Logger
}

// NewService builds the receipt publisher.
func NewService(publisher messagePublisher, logg *logger.Logger) (Service, error) {
	if publisher == nil {
		return nil, fmt.Errorf("message publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{publisher: publisher, logg: logg}, nil
}

func (s *service) PurchaseCompleted(ctx context.Context, row *models.Entitlement) error {
	if row == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "entitlement is required")
	}

	purchasedAt := time.Now().UTC()
	if row.PurchasedAt != nil {
		purchasedAt = *row.PurchasedAt
	}
	event := ReceiptEvent{
		EntitlementID: row.ID,
		UserID:        row.UserID,
		ItemID:        row.ItemID,
		ItemType:      row.ItemType,
		Reference:     row.Reference,
		Amount:        row.Amount,
		Currency:      row.Currency,
		PurchasedAt:   purchasedAt,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode receipt event")
	}

	messageID, err := s.publisher.Publish(ctx, data, map[string]string{
		"event_type": EventTypePurchaseCompleted,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish receipt event")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"reference":  row.Reference,
	}), "receipt event published")
	return nil
}
