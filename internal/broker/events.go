package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventHandler handles incoming events
type EventHandler struct {
	onAccountDeleted     func(context.Context, *models.AccountDeletedEvent) error
	onAccountRoleChanged func(context.Context, *models.AccountRoleChangedEvent) error
	logger               *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnAccountDeleted registers a handler for AccountDeleted events
func (eh *EventHandler) OnAccountDeleted(handler func(context.Context, *models.AccountDeletedEvent) error) {
	eh.onAccountDeleted = handler
}

// OnAccountRoleChanged registers a handler for AccountRoleChanged events
func (eh *EventHandler) OnAccountRoleChanged(handler func(context.Context, *models.AccountRoleChangedEvent) error) {
	eh.onAccountRoleChanged = handler
}

func eventType(msg kafka.Message) (string, error) {
	for _, h := range msg.Headers {
		if h.Key == HeaderEventType {
			return string(h.Value), nil
		}
	}
	var base models.BaseEvent
	if err := json.Unmarshal(msg.Value, &base); err != nil {
		return "", fmt.Errorf("failed to unmarshal base event: %w", err)
	}
	return base.EventType, nil
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	typ, err := eventType(msg)
	if err != nil {
		return err
	}

	eh.logger.Debug("Handling event", zap.String("event_type", typ), zap.String("key", string(msg.Key)))

	switch typ {
	case models.EventTypeAccountDeleted:
		if eh.onAccountDeleted != nil {
			var event models.AccountDeletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal AccountDeleted event: %w", err)
			}
			return eh.onAccountDeleted(ctx, &event)
		}

	case models.EventTypeAccountRoleChanged:
		if eh.onAccountRoleChanged != nil {
			var event models.AccountRoleChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal AccountRoleChanged event: %w", err)
			}
			return eh.onAccountRoleChanged(ctx, &event)
		}

	default:
		// order events are for downstream consumers
	}

	return nil
}
