package permissions

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/alikhafaji/mazadpay-backend/pkg/db/models"
	"github.com/alikhafaji/mazadpay-backend/pkg/enums"
	pkgerrors "github.com/alikhafaji/mazadpay-backend/pkg/errors"
	"github.com/alikhafaji/mazadpay-backend/pkg/logger"
	"github.com/alikhafaji/mazadpay-backend/pkg/outbox"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time { return c.current }

func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func (c *fakeClock) Set(t time.Time) { c.current = t }

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type captureOutbox struct {
	events []outbox.DomainEvent
}

func (c *captureOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	c.events = append(c.events, event)
	return nil
}

func (c *captureOutbox) typesEmitted() []enums.OutboxEventType {
	types := make([]enums.OutboxEventType, 0, len(c.events))
	for _, event := range c.events {
		types = append(types, event.EventType)
	}
	return types
}

type reversalCall struct {
	TransactionID uuid.UUID
	Reason        string
}

type fakeWallet struct {
	reversals []reversalCall
	paid      []uuid.UUID
}

func (w *fakeWallet) ReverseSettlementTx(_ context.Context, _ *gorm.DB, transactionID uuid.UUID, reason string) (int64, error) {
	w.reversals = append(w.reversals, reversalCall{TransactionID: transactionID, Reason: reason})
	return 1, nil
}

func (w *fakeWallet) MarkEntriesPaidTx(_ context.Context, _ *gorm.DB, transactionID uuid.UUID) error {
	w.paid = append(w.paid, transactionID)
	return nil
}

type fakeAccounts struct {
	suspended map[uuid.UUID]bool
}

func (a *fakeAccounts) SuspendSellerTx(_ context.Context, _ *gorm.DB, sellerID uuid.UUID) (bool, error) {
	if a.suspended[sellerID] {
		return false, nil
	}
	a.suspended[sellerID] = true
	return true, nil
}

type notification struct {
	UserID uuid.UUID
	Kind   enums.NotificationType
	Title  string
}

type fakeNotifier struct {
	sellerNotes []notification
	adminNotes  []notification
}

func (n *fakeNotifier) NotifySeller(_ context.Context, sellerID uuid.UUID, kind enums.NotificationType, title, _ string) error {
	n.sellerNotes = append(n.sellerNotes, notification{UserID: sellerID, Kind: kind, Title: title})
	return nil
}

func (n *fakeNotifier) NotifyAdmins(_ context.Context, kind enums.NotificationType, title, _ string) error {
	n.adminNotes = append(n.adminNotes, notification{Kind: kind, Title: title})
	return nil
}

type harness struct {
	db       *gorm.DB
	repo     Repository
	svc      Service
	clock    *fakeClock
	outbox   *captureOutbox
	wallet   *fakeWallet
	accounts *fakeAccounts
	notifier *fakeNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.SaleTransaction{},
		&models.PayoutPermission{},
	))

	clock := &fakeClock{current: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)}
	repo := NewRepository(conn)
	capture := &captureOutbox{}
	wallet := &fakeWallet{}
	accounts := &fakeAccounts{suspended: map[uuid.UUID]bool{}}
	notes := &fakeNotifier{}
	logg := logger.New(logger.Options{ServiceName: "permissions-test", Output: io.Discard})

	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Tx:       &gormTxRunner{db: conn},
		Outbox:   capture,
		Wallet:   wallet,
		Accounts: accounts,
		Notifier: notes,
		Logger:   logg,
		Now:      clock.Now,
	})
	require.NoError(t, err)

	return &harness{
		db:       conn,
		repo:     repo,
		svc:      svc,
		clock:    clock,
		outbox:   capture,
		wallet:   wallet,
		accounts: accounts,
		notifier: notes,
	}
}

func (h *harness) seedDeliveredSale(t *testing.T, policyDays int, amount int64, deliveredAt time.Time) *models.SaleTransaction {
	t.Helper()
	return h.seedSale(t, policyDays, amount, enums.TransactionStatusDelivered, &deliveredAt)
}

func (h *harness) seedSale(t *testing.T, policyDays int, amount int64, status enums.TransactionStatus, deliveredAt *time.Time) *models.SaleTransaction {
	t.Helper()

	seller := &models.User{ID: uuid.New(), Email: uuid.NewString() + "@mazadpay.iq", FullName: "Seller", Role: enums.UserRoleSeller, IsActive: true}
	buyer := &models.User{ID: uuid.New(), Email: uuid.NewString() + "@mazadpay.iq", FullName: "Buyer", Role: enums.UserRoleBuyer, IsActive: true}
	require.NoError(t, h.db.Create(seller).Error)
	require.NoError(t, h.db.Create(buyer).Error)

	listing := &models.Listing{ID: uuid.New(), SellerID: seller.ID, Title: "Vintage radio", ReturnPolicyDays: policyDays}
	require.NoError(t, h.db.Create(listing).Error)

	txn := &models.SaleTransaction{
		ID:          uuid.New(),
		ListingID:   listing.ID,
		SellerID:    seller.ID,
		BuyerID:     buyer.ID,
		Amount:      amount,
		Status:      status,
		DeliveredAt: deliveredAt,
	}
	require.NoError(t, h.db.Create(txn).Error)
	return txn
}

func (h *harness) mustFind(t *testing.T, transactionID uuid.UUID) *models.PayoutPermission {
	t.Helper()
	record, err := h.repo.FindByTransactionID(context.Background(), transactionID)
	require.NoError(t, err)
	return record
}

func TestGracePeriodExpiry_LongerWindowWins(t *testing.T) {
	deliveredAt := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		policyDays   int
		expectedDays int
	}{
		{0, 2},
		{1, 2},
		{2, 2},
		{3, 3},
		{7, 7},
		{14, 14},
		{30, 30},
	}
	for _, tc := range cases {
		got := GracePeriodExpiry(deliveredAt, tc.policyDays)
		want := deliveredAt.Add(time.Duration(tc.expectedDays) * 24 * time.Hour)
		assert.Equal(t, want, got, "policy %d days", tc.policyDays)
	}
}

func TestCreateOnDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	deliveredAt := h.clock.Now().Add(-time.Hour)
	txn := h.seedDeliveredSale(t, 7, 250_000, deliveredAt)

	record, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID, PlatformCommission: 20_000})
	require.NoError(t, err)

	assert.Equal(t, enums.PermissionStatusWithheld, record.PermissionStatus)
	assert.False(t, record.IsCleared)
	assert.Equal(t, int64(230_000), record.PayoutAmount)
	assert.Equal(t, int64(250_000), record.OriginalAmount)
	assert.Equal(t, int64(20_000), record.PlatformCommission)
	assert.Equal(t, 7, record.ReturnPolicyDays)
	assert.Equal(t, deliveredAt.Add(7*24*time.Hour), record.GracePeriodExpiresAt)
	require.NotNil(t, record.Notes)
	assert.Contains(t, *record.Notes, "withheld on delivery")
	assert.Equal(t, []enums.OutboxEventType{enums.EventPayoutWithheld}, h.outbox.typesEmitted())

	// Duplicate delivery events are a no-op returning the existing record.
	again, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID, PlatformCommission: 20_000})
	require.NoError(t, err)
	assert.Equal(t, record.ID, again.ID)

	var count int64
	require.NoError(t, h.db.Model(&models.PayoutPermission{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Len(t, h.outbox.events, 1)
}

func TestCreateOnDelivery_RejectsBadStates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pending := h.seedSale(t, 3, 100_000, enums.TransactionStatusPending, nil)
	_, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: pending.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	delivered := h.seedDeliveredSale(t, 3, 100_000, h.clock.Now())
	_, err = h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: delivered.ID, PlatformCommission: 150_000})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestLockForReturn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	txn := h.seedDeliveredSale(t, 7, 100_000, h.clock.Now())
	_, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID, PlatformCommission: 5_000})
	require.NoError(t, err)

	returnRequest := uuid.New()
	require.NoError(t, h.svc.LockForReturn(ctx, txn.ID, returnRequest))

	record := h.mustFind(t, txn.ID)
	assert.Equal(t, enums.PermissionStatusLocked, record.PermissionStatus)
	require.NotNil(t, record.LockedAt)
	require.NotNil(t, record.LockedByReturnRequest)
	assert.Equal(t, returnRequest, *record.LockedByReturnRequest)

	// Locking an already-locked payout is a state conflict.
	err = h.svc.LockForReturn(ctx, txn.ID, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	// A return against an unknown transaction must surface, not be swallowed.
	err = h.svc.LockForReturn(ctx, uuid.New(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	assert.Len(t, h.notifier.sellerNotes, 1)
	assert.Equal(t, enums.NotificationTypePayoutBlocked, h.notifier.sellerNotes[0].Kind)
}

func TestLockForReturn_AllowedFromCleared(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	txn := h.seedDeliveredSale(t, 0, 100_000, h.clock.Now().Add(-3*24*time.Hour))
	_, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID})
	require.NoError(t, err)

	result, err := h.svc.SweepExpiredGracePeriods(ctx, h.clock.Now())
	require.NoError(t, err)
	require.Equal(t, 1, result.Transitioned)

	require.NoError(t, h.svc.LockForReturn(ctx, txn.ID, uuid.New()))
	record := h.mustFind(t, txn.ID)
	assert.Equal(t, enums.PermissionStatusLocked, record.PermissionStatus)
	assert.False(t, record.IsCleared)
}

func TestResolveReturn_RejectedBeforeExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	txn := h.seedDeliveredSale(t, 14, 100_000, h.clock.Now())
	_, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID})
	require.NoError(t, err)

	returnRequest := uuid.New()
	require.NoError(t, h.svc.LockForReturn(ctx, txn.ID, returnRequest))
	h.clock.Advance(24 * time.Hour)

	require.NoError(t, h.svc.ResolveReturn(ctx, ResolveReturnInput{
		TransactionID:   txn.ID,
		ReturnRequestID: returnRequest,
		Outcome:         ReturnOutcomeRejected,
	}))

	record := h.mustFind(t, txn.ID)
	assert.Equal(t, enums.PermissionStatusWithheld, record.PermissionStatus)
	assert.False(t, record.IsCleared)
	assert.Nil(t, record.LockedAt)
	assert.Nil(t, record.LockedByReturnRequest)
	assert.Nil(t, record.ClearedAt)
}

func TestResolveReturn_RejectedAfterExpiryClears(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Grace window already expired while the dispute was open, so the unlock
	// must re-evaluate against now instead of restoring withheld.
	txn := h.seedDeliveredSale(t, 1, 100_000, h.clock.Now().Add(-3*24*time.Hour))
	_, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID})
	require.NoError(t, err)

	returnRequest := uuid.New()
	require.NoError(t, h.svc.LockForReturn(ctx, txn.ID, returnRequest))
	h.clock.Advance(24 * time.Hour)

	require.NoError(t, h.svc.ResolveReturn(ctx, ResolveReturnInput{
		TransactionID:   txn.ID,
		ReturnRequestID: returnRequest,
		Outcome:         ReturnOutcomeRejected,
	}))

	record := h.mustFind(t, txn.ID)
	assert.Equal(t, enums.PermissionStatusCleared, record.PermissionStatus)
	assert.True(t, record.IsCleared)
	require.NotNil(t, record.ClearedAt)
	require.NotNil(t, record.ClearedBy)
	assert.Equal(t, "system", *record.ClearedBy)
	assert.Len(t, h.notifier.sellerNotes, 2)
	assert.Equal(t, enums.NotificationTypePayoutCleared, h.notifier.sellerNotes[1].Kind)
}

func TestResolveReturn_WrongRequestCannotUnlock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	txn := h.seedDeliveredSale(t, 7, 100_000, h.clock.Now())
	_, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID})
	require.NoError(t, err)
	require.NoError(t, h.svc.LockForReturn(ctx, txn.ID, uuid.New()))

	err = h.svc.ResolveReturn(ctx, ResolveReturnInput{
		TransactionID:   txn.ID,
		ReturnRequestID: uuid.New(),
		Outcome:         ReturnOutcomeRejected,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestResolveReturn_Refunded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	txn := h.seedDeliveredSale(t, 7, 200_000, h.clock.Now())
	_, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID, PlatformCommission: 10_000})
	require.NoError(t, err)

	returnRequest := uuid.New()
	require.NoError(t, h.svc.LockForReturn(ctx, txn.ID, returnRequest))

	adminID := uuid.New()
	require.NoError(t, h.svc.ResolveReturn(ctx, ResolveReturnInput{
		TransactionID:   txn.ID,
		ReturnRequestID: returnRequest,
		Outcome:         ReturnOutcomeRefunded,
		AdminID:         adminID,
		Reason:          "item damaged in transit",
		RefundAmount:    200_000,
	}))

	record := h.mustFind(t, txn.ID)
	assert.Equal(t, enums.PermissionStatusBlocked, record.PermissionStatus)
	assert.Equal(t, int64(200_000), record.DebtAmount)
	require.NotNil(t, record.DebtStatus)
	assert.Equal(t, enums.DebtStatusPending, *record.DebtStatus)
	require.NotNil(t, record.DebtDueDate)
	assert.Equal(t, h.clock.Now().Add(30*24*time.Hour), record.DebtDueDate.UTC())
	require.NotNil(t, record.BlockedBy)
	assert.Equal(t, adminID.String(), *record.BlockedBy)

	require.Len(t, h.wallet.reversals, 1)
	assert.Equal(t, txn.ID, h.wallet.reversals[0].TransactionID)
}

func TestBlockForBuyerRefusal_ZeroesPayoutAndDebt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	txn := h.seedDeliveredSale(t, 7, 180_000, h.clock.Now())
	_, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID, PlatformCommission: 9_000})
	require.NoError(t, err)

	require.NoError(t, h.svc.BlockForBuyerRefusal(ctx, txn.ID, "buyer refused delivery"))

	record := h.mustFind(t, txn.ID)
	assert.Equal(t, enums.PermissionStatusBlocked, record.PermissionStatus)
	assert.Equal(t, int64(0), record.PayoutAmount)
	assert.Equal(t, int64(0), record.DebtAmount)
	require.NotNil(t, record.DebtStatus)
	assert.Equal(t, enums.DebtStatusResolved, *record.DebtStatus)
	assert.Nil(t, record.DebtDueDate)
	// The original amounts stay on the record for audit.
	assert.Equal(t, int64(180_000), record.OriginalAmount)

	require.Len(t, h.wallet.reversals, 1)

	// Resolved-debt blocks are terminal.
	err = h.svc.BlockForBuyerRefusal(ctx, txn.ID, "again")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestSweepExpiredGracePeriods_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now()

	expiredA := h.seedDeliveredSale(t, 2, 100_000, now.Add(-3*24*time.Hour))
	expiredB := h.seedDeliveredSale(t, 0, 50_000, now.Add(-5*24*time.Hour))
	pendingC := h.seedDeliveredSale(t, 14, 70_000, now.Add(-24*time.Hour))
	lockedD := h.seedDeliveredSale(t, 2, 30_000, now.Add(-4*24*time.Hour))
	for _, txn := range []*models.SaleTransaction{expiredA, expiredB, pendingC, lockedD} {
		_, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID})
		require.NoError(t, err)
	}
	require.NoError(t, h.svc.LockForReturn(ctx, lockedD.ID, uuid.New()))

	result, err := h.svc.SweepExpiredGracePeriods(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Transitioned)
	assert.Equal(t, 0, result.Failed)

	for _, txn := range []*models.SaleTransaction{expiredA, expiredB} {
		record := h.mustFind(t, txn.ID)
		assert.Equal(t, enums.PermissionStatusCleared, record.PermissionStatus)
		assert.True(t, record.IsCleared)
		require.NotNil(t, record.ClearedBy)
		assert.Equal(t, "system", *record.ClearedBy)
	}
	assert.Equal(t, enums.PermissionStatusWithheld, h.mustFind(t, pendingC.ID).PermissionStatus)
	assert.Equal(t, enums.PermissionStatusLocked, h.mustFind(t, lockedD.ID).PermissionStatus)

	// A second run finds nothing to do.
	again, err := h.svc.SweepExpiredGracePeriods(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Transitioned)
}

func TestMarkPaid_OnlyFromCleared(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	txn := h.seedDeliveredSale(t, 0, 120_000, h.clock.Now().Add(-3*24*time.Hour))
	_, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID, PlatformCommission: 6_000})
	require.NoError(t, err)

	// Withheld payouts cannot be paid; failing loudly beats silently skipping.
	err = h.svc.MarkPaid(ctx, MarkPaidInput{TransactionID: txn.ID, PayoutReference: "zc-1", PaidBy: "ops"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	result, err := h.svc.SweepExpiredGracePeriods(ctx, h.clock.Now())
	require.NoError(t, err)
	require.Equal(t, 1, result.Transitioned)

	require.NoError(t, h.svc.MarkPaid(ctx, MarkPaidInput{TransactionID: txn.ID, PayoutReference: "zc-1", PaidBy: "ops"}))

	record := h.mustFind(t, txn.ID)
	assert.Equal(t, enums.PermissionStatusPaid, record.PermissionStatus)
	require.NotNil(t, record.PaidAt)
	firstPaidAt := *record.PaidAt
	require.NotNil(t, record.PayoutReference)
	assert.Equal(t, "zc-1", *record.PayoutReference)
	require.Len(t, h.wallet.paid, 1)

	// Paying twice must fail and leave the original payment untouched.
	h.clock.Advance(time.Hour)
	err = h.svc.MarkPaid(ctx, MarkPaidInput{TransactionID: txn.ID, PayoutReference: "zc-2", PaidBy: "ops2"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	record = h.mustFind(t, txn.ID)
	assert.Equal(t, firstPaidAt, *record.PaidAt)
	assert.Equal(t, "zc-1", *record.PayoutReference)
	require.Len(t, h.wallet.paid, 1)
}

func TestMarkPaidBulk_SkipsBadRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now()

	clearedA := h.seedDeliveredSale(t, 0, 100_000, now.Add(-3*24*time.Hour))
	clearedB := h.seedDeliveredSale(t, 0, 60_000, now.Add(-3*24*time.Hour))
	withheldC := h.seedDeliveredSale(t, 30, 40_000, now)
	ids := make([]uuid.UUID, 0, 3)
	for _, txn := range []*models.SaleTransaction{clearedA, clearedB, withheldC} {
		record, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID})
		require.NoError(t, err)
		ids = append(ids, record.ID)
	}
	_, err := h.svc.SweepExpiredGracePeriods(ctx, now)
	require.NoError(t, err)

	paid, err := h.svc.MarkPaidBulk(ctx, MarkPaidBulkInput{
		PermissionIDs: ids,
		AdminID:       uuid.New(),
		Method:        "zaincash",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, paid)

	assert.Equal(t, enums.PermissionStatusPaid, h.mustFind(t, clearedA.ID).PermissionStatus)
	assert.Equal(t, enums.PermissionStatusPaid, h.mustFind(t, clearedB.ID).PermissionStatus)
	assert.Equal(t, enums.PermissionStatusWithheld, h.mustFind(t, withheldC.ID).PermissionStatus)
}

func TestAdminReverse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	txn := h.seedDeliveredSale(t, 0, 90_000, h.clock.Now().Add(-3*24*time.Hour))
	created, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID, PlatformCommission: 4_500})
	require.NoError(t, err)
	_, err = h.svc.SweepExpiredGracePeriods(ctx, h.clock.Now())
	require.NoError(t, err)

	adminID := uuid.New()
	require.NoError(t, h.svc.AdminReverse(ctx, AdminReverseInput{
		PermissionID: created.ID,
		AdminID:      adminID,
		Reason:       "counterfeit item confirmed",
	}))

	record := h.mustFind(t, txn.ID)
	assert.Equal(t, enums.PermissionStatusBlocked, record.PermissionStatus)
	assert.False(t, record.IsCleared)
	assert.Equal(t, int64(85_500), record.DebtAmount)
	require.NotNil(t, record.DebtDueDate)
	assert.Equal(t, h.clock.Now().Add(5*24*time.Hour), record.DebtDueDate.UTC())
	require.NotNil(t, record.DebtStatus)
	assert.Equal(t, enums.DebtStatusPending, *record.DebtStatus)
	require.Len(t, h.wallet.reversals, 1)

	// Terminal and locked states cannot be reversed.
	err = h.svc.AdminReverse(ctx, AdminReverseInput{PermissionID: created.ID, AdminID: adminID, Reason: "again"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestEnforceDebtSuspensions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now()

	overdueTxn := h.seedDeliveredSale(t, 7, 150_000, now.Add(-10*24*time.Hour))
	recentTxn := h.seedDeliveredSale(t, 7, 80_000, now.Add(-10*24*time.Hour))
	for _, txn := range []*models.SaleTransaction{overdueTxn, recentTxn} {
		_, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID})
		require.NoError(t, err)
	}

	// Overdue seller blocked 6 days ago; the other only 4 days ago.
	h.clock.Set(now.Add(-6 * 24 * time.Hour))
	require.NoError(t, h.svc.BlockForRefund(ctx, BlockForRefundInput{
		TransactionID: overdueTxn.ID, AdminID: uuid.New(), Reason: "refund", RefundAmount: 150_000,
	}))
	h.clock.Set(now.Add(-4 * 24 * time.Hour))
	require.NoError(t, h.svc.BlockForRefund(ctx, BlockForRefundInput{
		TransactionID: recentTxn.ID, AdminID: uuid.New(), Reason: "refund", RefundAmount: 80_000,
	}))
	h.clock.Set(now)

	suspended, err := h.svc.EnforceDebtSuspensions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, suspended)

	overdue := h.mustFind(t, overdueTxn.ID)
	require.NotNil(t, overdue.DebtStatus)
	assert.Equal(t, enums.DebtStatusEscalated, *overdue.DebtStatus)
	assert.True(t, h.accounts.suspended[overdue.SellerID])

	recent := h.mustFind(t, recentTxn.ID)
	require.NotNil(t, recent.DebtStatus)
	assert.Equal(t, enums.DebtStatusPending, *recent.DebtStatus)
	assert.False(t, h.accounts.suspended[recent.SellerID])

	require.Len(t, h.notifier.adminNotes, 1)
	assert.Equal(t, enums.NotificationTypeAccountSuspended, h.notifier.adminNotes[0].Kind)

	// A second run skips the already-suspended seller.
	suspended, err = h.svc.EnforceDebtSuspensions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, suspended)
	assert.Len(t, h.notifier.adminNotes, 1)
}

func TestHighDebtAlert(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now()

	bigTxn := h.seedDeliveredSale(t, 7, 150_000, now.Add(-2*24*time.Hour))
	smallTxn := h.seedDeliveredSale(t, 7, 40_000, now.Add(-2*24*time.Hour))
	for _, txn := range []*models.SaleTransaction{bigTxn, smallTxn} {
		_, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID})
		require.NoError(t, err)
		require.NoError(t, h.svc.BlockForRefund(ctx, BlockForRefundInput{
			TransactionID: txn.ID, AdminID: uuid.New(), Reason: "refund", RefundAmount: txn.Amount,
		}))
	}

	alerted, err := h.svc.HighDebtAlert(ctx, 100_000)
	require.NoError(t, err)
	assert.Equal(t, 1, alerted)
	require.Len(t, h.notifier.adminNotes, 1)
	assert.Equal(t, enums.NotificationTypeHighDebtAlert, h.notifier.adminNotes[0].Kind)
}

func TestEndToEndClearance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	deliveredAt := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	h.clock.Set(deliveredAt)
	txn := h.seedDeliveredSale(t, 3, 500_000, deliveredAt)

	record, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID, PlatformCommission: 25_000})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 4, 9, 0, 0, 0, time.UTC), record.GracePeriodExpiresAt)

	// Too early: nothing clears.
	h.clock.Set(time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC))
	result, err := h.svc.SweepExpiredGracePeriods(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Transitioned)
	assert.Equal(t, enums.PermissionStatusWithheld, h.mustFind(t, txn.ID).PermissionStatus)

	// Past expiry: the sweep clears it.
	h.clock.Set(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	result, err = h.svc.SweepExpiredGracePeriods(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Transitioned)

	cleared := h.mustFind(t, txn.ID)
	assert.Equal(t, enums.PermissionStatusCleared, cleared.PermissionStatus)
	assert.True(t, cleared.IsCleared)

	require.NoError(t, h.svc.MarkPaid(ctx, MarkPaidInput{TransactionID: txn.ID, PayoutReference: "batch-2026-01-05", PaidBy: "finance"}))
	paid := h.mustFind(t, txn.ID)
	assert.Equal(t, enums.PermissionStatusPaid, paid.PermissionStatus)
	require.NotNil(t, paid.PayoutReference)

	// The paid record is immutable from here on.
	err = h.svc.MarkPaid(ctx, MarkPaidInput{TransactionID: txn.ID, PayoutReference: "other", PaidBy: "finance"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	err = h.svc.AdminReverse(ctx, AdminReverseInput{PermissionID: paid.ID, AdminID: uuid.New(), Reason: "late"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, "batch-2026-01-05", *h.mustFind(t, txn.ID).PayoutReference)
}

func TestClearedPayouts_FIFOOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.seedDeliveredSale(t, 0, 10_000, h.clock.Now().Add(-6*24*time.Hour))
	second := h.seedDeliveredSale(t, 0, 20_000, h.clock.Now().Add(-5*24*time.Hour))
	_, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: first.ID})
	require.NoError(t, err)

	// Clear the first record a day before the second.
	h.clock.Advance(-24 * time.Hour)
	_, err = h.svc.SweepExpiredGracePeriods(ctx, h.clock.Now())
	require.NoError(t, err)
	h.clock.Advance(24 * time.Hour)
	_, err = h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: second.ID})
	require.NoError(t, err)
	_, err = h.svc.SweepExpiredGracePeriods(ctx, h.clock.Now())
	require.NoError(t, err)

	views, err := h.svc.ClearedPayouts(ctx, nil, 100)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, first.ID, views[0].TransactionID)
	assert.Equal(t, second.ID, views[1].TransactionID)
}

func TestSellerHistory_NewestDeliveredFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	seller := &models.User{ID: uuid.New(), Email: "history@mazadpay.iq", FullName: "Seller", Role: enums.UserRoleSeller, IsActive: true}
	buyer := &models.User{ID: uuid.New(), Email: "hbuyer@mazadpay.iq", FullName: "Buyer", Role: enums.UserRoleBuyer, IsActive: true}
	listing := &models.Listing{ID: uuid.New(), SellerID: seller.ID, Title: "Rug", ReturnPolicyDays: 3}
	require.NoError(t, h.db.Create(seller).Error)
	require.NoError(t, h.db.Create(buyer).Error)
	require.NoError(t, h.db.Create(listing).Error)

	older := h.clock.Now().Add(-48 * time.Hour)
	newer := h.clock.Now().Add(-24 * time.Hour)
	var newestTxn uuid.UUID
	for _, deliveredAt := range []time.Time{older, newer} {
		deliveredAt := deliveredAt
		txn := &models.SaleTransaction{
			ID: uuid.New(), ListingID: listing.ID, SellerID: seller.ID, BuyerID: buyer.ID,
			Amount: 15_000, Status: enums.TransactionStatusDelivered, DeliveredAt: &deliveredAt,
		}
		require.NoError(t, h.db.Create(txn).Error)
		_, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID})
		require.NoError(t, err)
		newestTxn = txn.ID
	}

	views, err := h.svc.SellerHistory(ctx, seller.ID, 10)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, newestTxn, views[0].TransactionID)
}

func TestAdminPayoutGroups(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now()

	txnA := h.seedDeliveredSale(t, 0, 100_000, now.Add(-3*24*time.Hour))
	txnB := h.seedDeliveredSale(t, 0, 50_000, now.Add(-3*24*time.Hour))
	for _, txn := range []*models.SaleTransaction{txnA, txnB} {
		_, err := h.svc.CreateOnDelivery(ctx, CreateOnDeliveryInput{TransactionID: txn.ID, PlatformCommission: 5_000})
		require.NoError(t, err)
	}
	_, err := h.svc.SweepExpiredGracePeriods(ctx, now)
	require.NoError(t, err)

	groups, err := h.svc.AdminPayoutGroups(ctx, nil)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	total := int64(0)
	for _, group := range groups {
		assert.Equal(t, 1, group.PayoutCount)
		total += group.TotalAmount
	}
	assert.Equal(t, int64(140_000), total)
}
