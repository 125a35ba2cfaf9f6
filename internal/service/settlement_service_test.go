package service_test

import (
	"io"
	"sync"
	"testing"
	"time"

	"loyalty/config"
	"loyalty/internal/database"
	"loyalty/internal/domain"
	"loyalty/internal/models"
	"loyalty/internal/repository"
	"loyalty/internal/service"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection serializes concurrent transactions in tests the
	// way MySQL row locks would in production.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func pointsConfig() *config.PointsConfig {
	return &config.PointsConfig{
		Ratio:       1,
		ExpiryDays:  365,
		OrderExpiry: time.Hour,
	}
}

type fixture struct {
	db         *gorm.DB
	orders     *repository.OrderRepository
	points     *repository.PointsRepository
	users      *repository.UserRepository
	settlement *service.SettlementService
	pointsSvc  *service.PointsService
}

func newFixture(t *testing.T) *fixture {
	db := newTestDB(t)
	log := newTestLogger()
	orders := repository.NewOrderRepository(db)
	points := repository.NewPointsRepository(db)
	users := repository.NewUserRepository(db)
	return &fixture{
		db:         db,
		orders:     orders,
		points:     points,
		users:      users,
		settlement: service.NewSettlementService(db, orders, points, pointsConfig(), log),
		pointsSvc:  service.NewPointsService(db, users, points, log),
	}
}

func (f *fixture) createUser(t *testing.T) *models.User {
	t.Helper()
	u := &models.User{Nickname: "alice", Status: domain.UserActive}
	require.NoError(t, f.users.Create(u))
	return u
}

func (f *fixture) createOrder(t *testing.T, userID uint, amountCents int64) *models.PaymentOrder {
	t.Helper()
	o := &models.PaymentOrder{
		UserID:        userID,
		MerchantID:    1,
		AmountCents:   amountCents,
		PointsAwarded: amountCents / 100, // ratio 1
		ExpiredAt:     time.Now().Add(time.Hour),
	}
	require.NoError(t, f.orders.Create(o))
	return o
}

func (f *fixture) rewardEntries(t *testing.T, orderID uint) []models.PointsRecord {
	t.Helper()
	var records []models.PointsRecord
	require.NoError(t, f.db.
		Where("order_id = ? AND category = ?", orderID, domain.CategoryPaymentReward).
		Find(&records).Error)
	return records
}

func TestSettlePayment_AwardsPoints(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t)
	order := f.createOrder(t, user.ID, 5000)
	require.Equal(t, int64(50), order.PointsAwarded)

	settled, err := f.settlement.SettlePayment(order.ID, "txn-001")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, settled.Status)
	assert.NotNil(t, settled.PaidAt)
	assert.Equal(t, "txn-001", settled.TransactionID)

	got, err := f.users.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.PointsBalance)

	entries := f.rewardEntries(t, order.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(50), entries[0].PointsChange)
	assert.Equal(t, int64(50), entries[0].BalanceAfter)
	require.NotNil(t, entries[0].ExpiresAt)
	assert.True(t, entries[0].ExpiresAt.After(time.Now().AddDate(0, 0, 364)))

	ok, err := f.points.VerifyBalance(user.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSettlePayment_DuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t)
	order := f.createOrder(t, user.ID, 5000)

	_, err := f.settlement.SettlePayment(order.ID, "txn-001")
	require.NoError(t, err)

	_, err = f.settlement.SettlePayment(order.ID, "txn-001")
	assert.ErrorIs(t, err, service.ErrAlreadySettled)

	entries := f.rewardEntries(t, order.ID)
	assert.Len(t, entries, 1)
	got, err := f.users.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.PointsBalance)
}

func TestSettlePayment_ConcurrentCalls(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t)
	order := f.createOrder(t, user.ID, 5000)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.settlement.SettlePayment(order.ID, "txn-001")
		}(i)
	}
	wg.Wait()

	settledCount := 0
	for _, err := range errs {
		switch {
		case err == nil:
			settledCount++
		default:
			assert.ErrorIs(t, err, service.ErrAlreadySettled)
		}
	}
	assert.Equal(t, 1, settledCount, "exactly one call should win")

	entries := f.rewardEntries(t, order.ID)
	assert.Len(t, entries, 1)
	got, err := f.users.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.PointsBalance)
}

func TestSettlePayment_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.settlement.SettlePayment(9999, "txn-001")
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestSettlePayment_CancelledOrder(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t)
	order := f.createOrder(t, user.ID, 5000)
	require.NoError(t, f.settlement.CancelOrder(order.ID))

	_, err := f.settlement.SettlePayment(order.ID, "txn-001")
	assert.ErrorIs(t, err, service.ErrOrderClosed)
	assert.Empty(t, f.rewardEntries(t, order.ID))
}

func TestSettlePayment_RollsBackOnLedgerFailure(t *testing.T) {
	f := newFixture(t)
	order := &models.PaymentOrder{
		UserID:        9999, // no such user
		MerchantID:    1,
		AmountCents:   5000,
		PointsAwarded: 50,
		ExpiredAt:     time.Now().Add(time.Hour),
	}
	require.NoError(t, f.orders.Create(order))

	_, err := f.settlement.SettlePayment(order.ID, "txn-001")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	// The status transition must have rolled back with the ledger append.
	got, err := f.orders.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, got.Status)
}

func TestRefundOrder_ReversesAward(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t)
	order := f.createOrder(t, user.ID, 5000)
	_, err := f.settlement.SettlePayment(order.ID, "txn-001")
	require.NoError(t, err)

	refunded, err := f.settlement.RefundOrder(order.ID, "customer request")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderRefunded, refunded.Status)

	got, err := f.users.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.PointsBalance, "full refund returns balance to pre-order value")

	var reversals []models.PointsRecord
	require.NoError(t, f.db.
		Where("order_id = ? AND category = ?", order.ID, domain.CategoryRefundReversal).
		Find(&reversals).Error)
	require.Len(t, reversals, 1)
	assert.Equal(t, int64(-50), reversals[0].PointsChange)

	// Second refund is a conflict, not a second reversal.
	_, err = f.settlement.RefundOrder(order.ID, "again")
	assert.ErrorIs(t, err, service.ErrInvalidState)
	require.NoError(t, f.db.
		Where("order_id = ? AND category = ?", order.ID, domain.CategoryRefundReversal).
		Find(&reversals).Error)
	assert.Len(t, reversals, 1)
}

func TestRefundOrder_PendingOrder(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t)
	order := f.createOrder(t, user.ID, 5000)

	_, err := f.settlement.RefundOrder(order.ID, "too early")
	assert.ErrorIs(t, err, service.ErrInvalidState)
}

func TestRefundOrder_MayDriveBalanceNegative(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t)
	order := f.createOrder(t, user.ID, 5000)
	_, err := f.settlement.SettlePayment(order.ID, "txn-001")
	require.NoError(t, err)

	_, err = f.pointsSvc.SpendPoints(user.ID, 30, "mall purchase", nil)
	require.NoError(t, err)

	_, err = f.settlement.RefundOrder(order.ID, "customer request")
	require.NoError(t, err)

	got, err := f.users.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-30), got.PointsBalance, "reversal is unconditional even past intervening spend")

	ok, err := f.points.VerifyBalance(user.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCancelOrder_NoLedgerEffect(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t)
	order := f.createOrder(t, user.ID, 5000)

	require.NoError(t, f.settlement.CancelOrder(order.ID))
	got, err := f.orders.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, got.Status)

	var count int64
	require.NoError(t, f.db.Model(&models.PointsRecord{}).Count(&count).Error)
	assert.Zero(t, count)

	// Cancelling twice conflicts.
	assert.ErrorIs(t, f.settlement.CancelOrder(order.ID), service.ErrInvalidState)
}

func TestExpireIfOverdue(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t)

	fresh := f.createOrder(t, user.ID, 5000)
	expired, err := f.settlement.ExpireIfOverdue(fresh.ID)
	require.NoError(t, err)
	assert.False(t, expired, "live order must not expire")

	overdue := &models.PaymentOrder{
		UserID:        user.ID,
		MerchantID:    1,
		AmountCents:   5000,
		PointsAwarded: 50,
		ExpiredAt:     time.Now().Add(-time.Minute),
	}
	require.NoError(t, f.orders.Create(overdue))

	expired, err = f.settlement.ExpireIfOverdue(overdue.ID)
	require.NoError(t, err)
	assert.True(t, expired)

	// Late confirmation on the expired order is a conflict.
	_, err = f.settlement.SettlePayment(overdue.ID, "txn-late")
	assert.ErrorIs(t, err, service.ErrOrderClosed)
}
