package lifecycle

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/alikhafaji/mazadpay-backend/internal/permissions"
	"github.com/alikhafaji/mazadpay-backend/internal/wallet"
	"github.com/alikhafaji/mazadpay-backend/pkg/db/models"
	pkgerrors "github.com/alikhafaji/mazadpay-backend/pkg/errors"
	"github.com/alikhafaji/mazadpay-backend/pkg/logger"
	"github.com/alikhafaji/mazadpay-backend/pkg/outbox"
)

func TestLifecycleConsumerSettlesDelivery(t *testing.T) {
	engine := &fakeEngine{}
	ledger := &fakeLedger{commission: 6_800}
	consumer := mustConsumer(t, engine, ledger, allowAllIdempotency())

	txnID := uuid.New()
	sellerID := uuid.New()
	deliveredAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	envelope := buildEnvelope(t, map[string]any{
		"transactionId": txnID.String(),
		"sellerId":      sellerID.String(),
		"amount":        85_000,
		"shippingFee":   4_000,
		"deliveredAt":   deliveredAt.Format(time.RFC3339),
	})

	if err := consumer.Process(context.Background(), eventDeliveryConfirmed, envelope); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if len(ledger.settled) != 1 {
		t.Fatalf("expected 1 settlement, got %d", len(ledger.settled))
	}
	settled := ledger.settled[0]
	if settled.TransactionID != txnID || settled.SellerID != sellerID {
		t.Fatalf("settlement ids mismatch")
	}
	if settled.Commission != 6_800 || settled.Amount != 85_000 || settled.ShippingFee != 4_000 {
		t.Fatalf("settlement amounts mismatch: %+v", settled)
	}
	if !settled.DeliveredAt.Equal(deliveredAt) {
		t.Fatalf("delivered at mismatch: %s", settled.DeliveredAt)
	}
	if len(engine.created) != 1 {
		t.Fatalf("expected 1 permission created, got %d", len(engine.created))
	}
	if engine.created[0].PlatformCommission != 6_800 {
		t.Fatalf("commission not forwarded to transition engine")
	}
}

func TestLifecycleConsumerIgnoresForeignEvents(t *testing.T) {
	engine := &fakeEngine{}
	ledger := &fakeLedger{}
	consumer := mustConsumer(t, engine, ledger, allowAllIdempotency())

	envelope := buildEnvelope(t, map[string]any{})
	if err := consumer.Process(context.Background(), "listing_created", envelope); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(ledger.settled) != 0 || len(engine.created) != 0 {
		t.Fatalf("foreign event must be a no-op")
	}
}

func TestLifecycleConsumerIsIdempotent(t *testing.T) {
	engine := &fakeEngine{}
	ledger := &fakeLedger{}
	consumer := mustConsumer(t, engine, ledger, fakeIdempotency{
		check: func(_ context.Context, _ string, _ uuid.UUID) (bool, error) {
			return true, nil
		},
	})

	envelope := buildEnvelope(t, map[string]any{"transactionId": uuid.NewString()})
	if err := consumer.Process(context.Background(), eventReturnRequested, envelope); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(engine.locked) != 0 {
		t.Fatalf("duplicate event must not reach the engine")
	}
}

func TestLifecycleConsumerLocksOnReturnRequested(t *testing.T) {
	engine := &fakeEngine{}
	consumer := mustConsumer(t, engine, &fakeLedger{}, allowAllIdempotency())

	txnID := uuid.New()
	returnID := uuid.New()
	envelope := buildEnvelope(t, map[string]any{
		"transactionId":   txnID.String(),
		"returnRequestId": returnID.String(),
	})

	if err := consumer.Process(context.Background(), eventReturnRequested, envelope); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(engine.locked) != 1 || engine.locked[0].transactionID != txnID || engine.locked[0].returnRequestID != returnID {
		t.Fatalf("lock call mismatch: %+v", engine.locked)
	}
}

func TestLifecycleConsumerResolvesReturn(t *testing.T) {
	engine := &fakeEngine{}
	consumer := mustConsumer(t, engine, &fakeLedger{}, allowAllIdempotency())

	txnID := uuid.New()
	envelope := buildEnvelope(t, map[string]any{
		"transactionId":   txnID.String(),
		"returnRequestId": uuid.NewString(),
		"outcome":         "refunded",
		"refundAmount":    42_000,
		"reason":          "damaged item",
	})

	if err := consumer.Process(context.Background(), eventReturnResolved, envelope); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(engine.resolved) != 1 {
		t.Fatalf("expected 1 resolve call")
	}
	resolved := engine.resolved[0]
	if resolved.Outcome != permissions.ReturnOutcomeRefunded || resolved.RefundAmount != 42_000 {
		t.Fatalf("resolve input mismatch: %+v", resolved)
	}
}

func TestLifecycleConsumerBlocksOnBuyerRefusal(t *testing.T) {
	engine := &fakeEngine{}
	consumer := mustConsumer(t, engine, &fakeLedger{}, allowAllIdempotency())

	txnID := uuid.New()
	envelope := buildEnvelope(t, map[string]any{
		"transactionId": txnID.String(),
		"reason":        "buyer refused package",
	})

	if err := consumer.Process(context.Background(), eventBuyerRefused, envelope); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(engine.refused) != 1 || engine.refused[0].transactionID != txnID {
		t.Fatalf("refusal call mismatch")
	}
}

func TestLifecycleConsumerAcksLostRaces(t *testing.T) {
	engine := &fakeEngine{
		lockErr: pkgerrors.New(pkgerrors.CodeConflict, "payout permission was modified concurrently"),
	}
	deleted := false
	consumer := mustConsumer(t, engine, &fakeLedger{}, fakeIdempotency{
		check: func(_ context.Context, _ string, _ uuid.UUID) (bool, error) {
			return false, nil
		},
		deleteFn: func(_ context.Context, _ string, _ uuid.UUID) error {
			deleted = true
			return nil
		},
	})

	envelope := buildEnvelope(t, map[string]any{
		"transactionId":   uuid.NewString(),
		"returnRequestId": uuid.NewString(),
	})
	if err := consumer.Process(context.Background(), eventReturnRequested, envelope); err != nil {
		t.Fatalf("lost race must be consumed, got: %v", err)
	}
	if deleted {
		t.Fatalf("consumed event must keep its idempotency mark")
	}
}

func TestLifecycleConsumerNacksTransientFailures(t *testing.T) {
	engine := &fakeEngine{
		lockErr: pkgerrors.New(pkgerrors.CodeDependency, "database unavailable"),
	}
	deleted := false
	consumer := mustConsumer(t, engine, &fakeLedger{}, fakeIdempotency{
		check: func(_ context.Context, _ string, _ uuid.UUID) (bool, error) {
			return false, nil
		},
		deleteFn: func(_ context.Context, _ string, _ uuid.UUID) error {
			deleted = true
			return nil
		},
	})

	envelope := buildEnvelope(t, map[string]any{
		"transactionId":   uuid.NewString(),
		"returnRequestId": uuid.NewString(),
	})
	if err := consumer.Process(context.Background(), eventReturnRequested, envelope); err == nil {
		t.Fatalf("transient failure must be surfaced for redelivery")
	}
	if !deleted {
		t.Fatalf("idempotency mark must be released for redelivery")
	}
}

func TestLifecycleConsumerDropsMalformedEnvelope(t *testing.T) {
	engine := &fakeEngine{}
	consumer := mustConsumer(t, engine, &fakeLedger{}, allowAllIdempotency())

	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    "not-a-uuid",
		OccurredAt: time.Now(),
		Data:       []byte(`{}`),
	}
	if err := consumer.Process(context.Background(), eventBuyerRefused, envelope); err != nil {
		t.Fatalf("malformed envelope must be consumed, got: %v", err)
	}
	if len(engine.refused) != 0 {
		t.Fatalf("malformed envelope must not reach the engine")
	}
}

type lockCall struct {
	transactionID   uuid.UUID
	returnRequestID uuid.UUID
}

type refusalCall struct {
	transactionID uuid.UUID
	reason        string
}

type fakeEngine struct {
	created  []permissions.CreateOnDeliveryInput
	locked   []lockCall
	resolved []permissions.ResolveReturnInput
	refused  []refusalCall

	createErr error
	lockErr   error
}

func (f *fakeEngine) CreateOnDelivery(_ context.Context, input permissions.CreateOnDeliveryInput) (*models.PayoutPermission, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, input)
	return &models.PayoutPermission{ID: uuid.New(), TransactionID: input.TransactionID}, nil
}

func (f *fakeEngine) LockForReturn(_ context.Context, transactionID, returnRequestID uuid.UUID) error {
	if f.lockErr != nil {
		return f.lockErr
	}
	f.locked = append(f.locked, lockCall{transactionID: transactionID, returnRequestID: returnRequestID})
	return nil
}

func (f *fakeEngine) ResolveReturn(_ context.Context, input permissions.ResolveReturnInput) error {
	f.resolved = append(f.resolved, input)
	return nil
}

func (f *fakeEngine) BlockForBuyerRefusal(_ context.Context, transactionID uuid.UUID, reason string) error {
	f.refused = append(f.refused, refusalCall{transactionID: transactionID, reason: reason})
	return nil
}

type fakeLedger struct {
	commission int64
	settled    []wallet.SettleDeliveryInput
	settleErr  error
}

func (f *fakeLedger) CommissionFor(_ context.Context, _ uuid.UUID, _ int64, _ time.Time) (int64, error) {
	return f.commission, nil
}

func (f *fakeLedger) SettleDeliveryTx(_ context.Context, _ *gorm.DB, input wallet.SettleDeliveryInput) error {
	if f.settleErr != nil {
		return f.settleErr
	}
	f.settled = append(f.settled, input)
	return nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeIdempotency struct {
	check    func(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	deleteFn func(ctx context.Context, consumer string, eventID uuid.UUID) error
}

func (f fakeIdempotency) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	return f.check(ctx, consumer, eventID)
}

func (f fakeIdempotency) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(ctx, consumer, eventID)
}

func allowAllIdempotency() fakeIdempotency {
	return fakeIdempotency{
		check: func(_ context.Context, _ string, _ uuid.UUID) (bool, error) {
			return false, nil
		},
	}
}

func mustConsumer(t *testing.T, engine *fakeEngine, ledger *fakeLedger, manager fakeIdempotency) *Consumer {
	t.Helper()
	consumer, err := NewConsumer(ConsumerParams{
		Engine:      engine,
		Wallet:      ledger,
		Tx:          passthroughTx{},
		Idempotency: manager,
		Logger: logger.New(logger.Options{
			ServiceName: "lifecycle-test",
			Level:       logger.ParseLevel("debug"),
			Output:      io.Discard,
		}),
	})
	if err != nil {
		t.Fatalf("failed to build consumer: %v", err)
	}
	return consumer
}

func buildEnvelope(t *testing.T, payload any) outbox.PayloadEnvelope {
	t.Helper()
	bytes, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       bytes,
	}
}
