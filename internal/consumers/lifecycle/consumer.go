package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/alikhafaji/mazadpay-backend/internal/permissions"
	"github.com/alikhafaji/mazadpay-backend/internal/wallet"
	"github.com/alikhafaji/mazadpay-backend/pkg/db/models"
	pkgerrors "github.com/alikhafaji/mazadpay-backend/pkg/errors"
	"github.com/alikhafaji/mazadpay-backend/pkg/logger"
	"github.com/alikhafaji/mazadpay-backend/pkg/outbox"
)

const lifecycleConsumer = "order-lifecycle"

// Event types published by the marketplace core on the orders topic.
const (
	eventDeliveryConfirmed = "delivery_confirmed"
	eventReturnRequested   = "return_requested"
	eventReturnResolved    = "return_resolved"
	eventBuyerRefused      = "buyer_refused"
)

type transitionEngine interface {
	CreateOnDelivery(ctx context.Context, input permissions.CreateOnDeliveryInput) (*models.PayoutPermission, error)
	LockForReturn(ctx context.Context, transactionID, returnRequestID uuid.UUID) error
	ResolveReturn(ctx context.Context, input permissions.ResolveReturnInput) error
	BlockForBuyerRefusal(ctx context.Context, transactionID uuid.UUID, reason string) error
}

type walletLedger interface {
	CommissionFor(ctx context.Context, sellerID uuid.UUID, saleAmount int64, at time.Time) (int64, error)
	SettleDeliveryTx(ctx context.Context, tx *gorm.DB, input wallet.SettleDeliveryInput) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer drives the payout clearance engine from order-lifecycle events
// emitted by the marketplace core.
type Consumer struct {
	engine      transitionEngine
	wallet      walletLedger
	tx          txRunner
	idempotency idempotencyChecker
	logg        *logger.Logger
}

// ConsumerParams wires the lifecycle consumer.
type ConsumerParams struct {
	Engine      transitionEngine
	Wallet      walletLedger
	Tx          txRunner
	Idempotency idempotencyChecker
	Logger      *logger.Logger
}

// NewConsumer builds the order-lifecycle consumer.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Engine == nil {
		return nil, fmt.Errorf("transition engine required")
	}
	if params.Wallet == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		engine:      params.Engine,
		wallet:      params.Wallet,
		tx:          params.Tx,
		idempotency: params.Idempotency,
		logg:        params.Logger,
	}, nil
}

// Run pulls from the orders subscription until the context is canceled.
func (c *Consumer) Run(ctx context.Context, subscription *pubsub.Subscriber) error {
	if subscription == nil {
		return fmt.Errorf("orders subscription required")
	}
	return subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var envelope outbox.PayloadEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			c.logg.Error(ctx, "failed to decode lifecycle envelope", err)
			msg.Ack()
			return
		}
		if err := c.Process(ctx, msg.Attributes["event_type"], envelope); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Process applies one lifecycle event. A nil return means the message should
// be acked; an error means redelivery is wanted.
func (c *Consumer) Process(ctx context.Context, eventType string, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})

	switch eventType {
	case eventDeliveryConfirmed, eventReturnRequested, eventReturnResolved, eventBuyerRefused:
	default:
		c.logg.Info(logCtx, "event not handled by lifecycle consumer")
		return nil
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return nil
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, lifecycleConsumer, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	switch eventType {
	case eventDeliveryConfirmed:
		err = c.handleDeliveryConfirmed(logCtx, envelope.Data)
	case eventReturnRequested:
		err = c.handleReturnRequested(logCtx, envelope.Data)
	case eventReturnResolved:
		err = c.handleReturnResolved(logCtx, envelope.Data)
	case eventBuyerRefused:
		err = c.handleBuyerRefused(logCtx, envelope.Data)
	}
	if err == nil {
		c.logg.Info(logCtx, "lifecycle event applied")
		return nil
	}

	// Lost races and replays land on records another worker already moved;
	// redelivery would never succeed, so those are consumed.
	if pkgerrors.IsCode(err, pkgerrors.CodeConflict) || pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		c.logg.Info(c.logg.WithField(logCtx, "cause", err.Error()), "lifecycle event already applied elsewhere")
		return nil
	}
	if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		c.logg.Error(logCtx, "discarding malformed lifecycle event", err)
		return nil
	}

	c.logg.Error(logCtx, "failed to apply lifecycle event", err)
	_ = c.idempotency.Delete(ctx, lifecycleConsumer, eventID)
	return err
}

type deliveryConfirmedPayload struct {
	TransactionID uuid.UUID `json:"transactionId"`
	SellerID      uuid.UUID `json:"sellerId"`
	Amount        int64     `json:"amount"`
	ShippingFee   int64     `json:"shippingFee"`
	DeliveredAt   time.Time `json:"deliveredAt"`
}

type returnRequestedPayload struct {
	TransactionID   uuid.UUID `json:"transactionId"`
	ReturnRequestID uuid.UUID `json:"returnRequestId"`
}

type returnResolvedPayload struct {
	TransactionID   uuid.UUID `json:"transactionId"`
	ReturnRequestID uuid.UUID `json:"returnRequestId"`
	Outcome         string    `json:"outcome"`
	RefundAmount    int64     `json:"refundAmount"`
	Reason          string    `json:"reason"`
	AdminID         uuid.UUID `json:"adminId"`
}

type buyerRefusedPayload struct {
	TransactionID uuid.UUID `json:"transactionId"`
	Reason        string    `json:"reason"`
}

func (c *Consumer) handleDeliveryConfirmed(ctx context.Context, data json.RawMessage) error {
	var payload deliveryConfirmedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logg.Error(ctx, "failed to parse delivery payload", err)
		return nil
	}
	if payload.TransactionID == uuid.Nil || payload.SellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery event missing transaction or seller id")
	}
	deliveredAt := payload.DeliveredAt
	if deliveredAt.IsZero() {
		deliveredAt = time.Now().UTC()
	}

	commission, err := c.wallet.CommissionFor(ctx, payload.SellerID, payload.Amount, deliveredAt)
	if err != nil {
		return fmt.Errorf("commission for seller %s: %w", payload.SellerID, err)
	}

	// Settlement is idempotent per transaction, so a crash between the two
	// steps is safe to replay.
	if err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return c.wallet.SettleDeliveryTx(ctx, tx, wallet.SettleDeliveryInput{
			TransactionID: payload.TransactionID,
			SellerID:      payload.SellerID,
			Amount:        payload.Amount,
			Commission:    commission,
			ShippingFee:   payload.ShippingFee,
			DeliveredAt:   deliveredAt,
		})
	}); err != nil {
		return fmt.Errorf("settle wallet for transaction %s: %w", payload.TransactionID, err)
	}

	_, err = c.engine.CreateOnDelivery(ctx, permissions.CreateOnDeliveryInput{
		TransactionID:      payload.TransactionID,
		PlatformCommission: commission,
	})
	return err
}

func (c *Consumer) handleReturnRequested(ctx context.Context, data json.RawMessage) error {
	var payload returnRequestedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logg.Error(ctx, "failed to parse return payload", err)
		return nil
	}
	return c.engine.LockForReturn(ctx, payload.TransactionID, payload.ReturnRequestID)
}

func (c *Consumer) handleReturnResolved(ctx context.Context, data json.RawMessage) error {
	var payload returnResolvedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logg.Error(ctx, "failed to parse return resolution payload", err)
		return nil
	}
	return c.engine.ResolveReturn(ctx, permissions.ResolveReturnInput{
		TransactionID:   payload.TransactionID,
		ReturnRequestID: payload.ReturnRequestID,
		Outcome:         permissions.ReturnOutcome(payload.Outcome),
		AdminID:         payload.AdminID,
		Reason:          payload.Reason,
		RefundAmount:    payload.RefundAmount,
	})
}

func (c *Consumer) handleBuyerRefused(ctx context.Context, data json.RawMessage) error {
	var payload buyerRefusedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logg.Error(ctx, "failed to parse refusal payload", err)
		return nil
	}
	return c.engine.BlockForBuyerRefusal(ctx, payload.TransactionID, payload.Reason)
}
