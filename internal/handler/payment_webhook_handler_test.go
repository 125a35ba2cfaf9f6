package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loyalty/config"
	"loyalty/internal/database"
	"loyalty/internal/domain"
	"loyalty/internal/handler"
	"loyalty/internal/models"
	"loyalty/internal/repository"
	"loyalty/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type webhookFixture struct {
	db     *gorm.DB
	engine *gin.Engine
	orders *repository.OrderRepository
	users  *repository.UserRepository
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))

	log := logrus.New()
	log.SetOutput(io.Discard)

	orders := repository.NewOrderRepository(db)
	points := repository.NewPointsRepository(db)
	users := repository.NewUserRepository(db)
	settlement := service.NewSettlementService(db, orders, points,
		&config.PointsConfig{Ratio: 1, ExpiryDays: 365, OrderExpiry: time.Hour}, log)

	engine := gin.New()
	engine.POST("/webhooks/payment", handler.NewPaymentWebhookHandler(orders, settlement, log).Handle)
	return &webhookFixture{db: db, engine: engine, orders: orders, users: users}
}

func (f *webhookFixture) post(t *testing.T, payload handler.PaymentCallback) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *webhookFixture) seedOrder(t *testing.T) (*models.User, *models.PaymentOrder) {
	t.Helper()
	user := &models.User{Nickname: "carol", Status: domain.UserActive}
	require.NoError(t, f.users.Create(user))
	order := &models.PaymentOrder{
		UserID:        user.ID,
		MerchantID:    1,
		AmountCents:   5000,
		PointsAwarded: 50,
		ExpiredAt:     time.Now().Add(time.Hour),
	}
	require.NoError(t, f.orders.Create(order))
	return user, order
}

func TestWebhook_SettlesOrder(t *testing.T) {
	f := newWebhookFixture(t)
	user, order := f.seedOrder(t)

	w := f.post(t, handler.PaymentCallback{
		OrderNo:       order.OrderNo,
		TransactionID: "txn-001",
		TotalFee:      5000,
		ResultCode:    "SUCCESS",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"points_awarded":50`)

	var got models.User
	require.NoError(t, f.db.First(&got, user.ID).Error)
	assert.Equal(t, int64(50), got.PointsBalance)
}

func TestWebhook_DuplicateDeliveryAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)
	user, order := f.seedOrder(t)
	payload := handler.PaymentCallback{
		OrderNo:       order.OrderNo,
		TransactionID: "txn-001",
		TotalFee:      5000,
		ResultCode:    "SUCCESS",
	}

	first := f.post(t, payload)
	assert.Equal(t, http.StatusOK, first.Code)

	second := f.post(t, payload)
	assert.Equal(t, http.StatusOK, second.Code, "duplicate must be acknowledged, not errored")
	assert.Contains(t, second.Body.String(), `"already_settled":true`)

	var count int64
	require.NoError(t, f.db.Model(&models.PointsRecord{}).
		Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWebhook_AmountMismatchRejected(t *testing.T) {
	f := newWebhookFixture(t)
	_, order := f.seedOrder(t)

	w := f.post(t, handler.PaymentCallback{
		OrderNo:       order.OrderNo,
		TransactionID: "txn-001",
		TotalFee:      4999,
		ResultCode:    "SUCCESS",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	got, err := f.orders.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, got.Status)
}

func TestWebhook_UnknownOrderAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)
	w := f.post(t, handler.PaymentCallback{
		OrderNo:       "NO-unknown",
		TransactionID: "txn-001",
		TotalFee:      5000,
		ResultCode:    "SUCCESS",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_NonSuccessResultNoStateChange(t *testing.T) {
	f := newWebhookFixture(t)
	_, order := f.seedOrder(t)

	w := f.post(t, handler.PaymentCallback{
		OrderNo:       order.OrderNo,
		TransactionID: "txn-001",
		TotalFee:      5000,
		ResultCode:    "FAIL",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	got, err := f.orders.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, got.Status)
}
