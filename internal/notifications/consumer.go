package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/alikhafaji/mazadpay-backend/pkg/enums"
	"github.com/alikhafaji/mazadpay-backend/pkg/logger"
	"github.com/alikhafaji/mazadpay-backend/pkg/outbox"
	"github.com/alikhafaji/mazadpay-backend/pkg/outbox/idempotency"
)

const deliveryConsumer = "notification-delivery"

// DeliveryChannel pushes a notification out-of-band (SMS, push, email).
type DeliveryChannel interface {
	Deliver(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title string) error
}

// Consumer watches the domain stream for notification requests published by
// the outbox and hands them to the external delivery channel. The in-app row
// already exists by the time this runs; delivery here is best-effort.
type Consumer struct {
	channel      DeliveryChannel
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds the notification delivery consumer.
func NewConsumer(channel DeliveryChannel, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if channel == nil {
		return nil, fmt.Errorf("delivery channel required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		channel:      channel,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventNotificationRequested) {
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, deliveryConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		return processResult{ack: true}
	}

	var payload notificationRequestedPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		_ = c.idempotency.Delete(ctx, deliveryConsumer, eventID)
		return processResult{nack: true}
	}

	logCtx = c.logg.WithUserID(logCtx, payload.UserID.String())
	if err := c.channel.Deliver(ctx, payload.UserID, payload.Type, payload.Title); err != nil {
		c.logg.Error(logCtx, "notification delivery failed", err)
		_ = c.idempotency.Delete(ctx, deliveryConsumer, eventID)
		return processResult{nack: true}
	}

	c.logg.Info(logCtx, "notification delivered")
	return processResult{ack: true}
}

type notificationRequestedPayload struct {
	NotificationID uuid.UUID              `json:"notificationId"`
	UserID         uuid.UUID              `json:"userId"`
	Type           enums.NotificationType `json:"type"`
	Title          string                 `json:"title"`
}

// LogChannel is the default delivery channel: it only records the event.
// Real transports plug in behind DeliveryChannel.
type LogChannel struct {
	Logg *logger.Logger
}

func (l *LogChannel) Deliver(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title string) error {
	logCtx := l.Logg.WithFields(ctx, map[string]any{
		"user_id": userID.String(),
		"type":    string(kind),
		"title":   title,
	})
	l.Logg.Info(logCtx, "notification dispatched")
	return nil
}
