package order

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/elfein/storefront/internal/coupon"
	"github.com/elfein/storefront/internal/events"
	"github.com/elfein/storefront/internal/gateway"
	"github.com/elfein/storefront/internal/models"
	"github.com/elfein/storefront/internal/session"
	"github.com/elfein/storefront/internal/wallet"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeGateway struct {
	intents int
	fail    bool
}

func (f *fakeGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*gateway.Intent, error) {
	if f.fail {
		return nil, errors.New("gateway down")
	}
	f.intents++
	return &gateway.Intent{ID: "order_fake1", Amount: amount, Currency: currency, Receipt: receipt}, nil
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

var testSecret = []byte("test-secret")

func sign(orderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, testSecret)
	mac.Write([]byte(orderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

func setupSvc(t *testing.T) (*Service, *fakeGateway) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	gw := &fakeGateway{}
	engine := &coupon.Engine{DB: db, Sessions: session.NewStore(session.DefaultTTL)}
	svc := NewService(db, engine, gw, &gateway.Verifier{Secret: testSecret}, events.Nop{})
	return svc, gw
}

// seedOrder stores a two-line order for user 1 paid by the given method:
// 2x500 shirts and 1x300 jeans with a 130 coupon split 100/30. Matching
// variants exist with 8 and 9 in stock, as if checkout already reserved.
func seedOrder(t *testing.T, db *gorm.DB, method models.PaymentMethod, payment models.PaymentStatus) *models.Order {
	require.NoError(t, db.Create(&models.Variant{
		ProductID: 1, Size: "M", Color: "blue", Price: dec("500"), Stock: 8, IsListed: true,
	}).Error)
	require.NoError(t, db.Create(&models.Variant{
		ProductID: 2, Size: "32", Color: "black", Price: dec("300"), Stock: 9, IsListed: true,
	}).Error)

	c := models.Coupon{
		Code: "FLAT130", DiscountType: models.DiscountFixed, DiscountValue: dec("130"),
		StartingDate: time.Now().Add(-time.Hour), ValidUntil: time.Now().Add(time.Hour),
		UsageLimit: 1, IsActive: true, UsedCount: 1,
	}
	require.NoError(t, db.Create(&c).Error)
	require.NoError(t, db.Create(&models.CouponRedemption{CouponID: c.ID, UserID: 1, Count: 1}).Error)

	order := &models.Order{
		UserID: 1,
		Items: []models.OrderItem{
			{
				ProductID: 1, ProductName: "shirt", Size: "M", Color: "blue",
				BasePrice: dec("500"), Price: dec("500"), Quantity: 2,
				OfferPrice: dec("1000"), CouponShare: dec("100"), OrderStatus: models.ItemPending,
			},
			{
				ProductID: 2, ProductName: "jeans", Size: "32", Color: "black",
				BasePrice: dec("300"), Price: dec("300"), Quantity: 1,
				OfferPrice: dec("300"), CouponShare: dec("30"), OrderStatus: models.ItemPending,
			},
		},
		ItemsTotal:    dec("1300"),
		Discount:      dec("130"),
		FinalPrice:    dec("1170"),
		PaymentMethod: method,
		PaymentStatus: payment,
		OrderStatus:   models.OrderPending,
		CouponID:      &c.ID,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func reload(t *testing.T, db *gorm.DB, orderID string) *models.Order {
	var o models.Order
	require.NoError(t, db.Preload("Items").Where("order_id = ?", orderID).First(&o).Error)
	return &o
}

func stockOf(t *testing.T, db *gorm.DB, productID uint) int {
	var v models.Variant
	require.NoError(t, db.Where("product_id = ?", productID).First(&v).Error)
	return v.Stock
}

func walletBalance(t *testing.T, db *gorm.DB, userID uint) decimal.Decimal {
	b, err := (&wallet.Service{DB: db}).Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func TestCancelItemPrepaid(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentWallet, models.PaymentCompleted)

	err := svc.CancelItem(context.Background(), 1, o.OrderID, o.Items[0].ID, "changed my mind")
	require.NoError(t, err)

	got := reload(t, svc.DB, o.OrderID)
	require.Equal(t, models.ItemCancelled, got.Items[0].OrderStatus)
	require.Equal(t, "changed my mind", got.Items[0].CancellationReason)

	// stock back, refund = line total minus its coupon share
	require.Equal(t, 10, stockOf(t, svc.DB, 1))
	require.True(t, walletBalance(t, svc.DB, 1).Equal(dec("900")))

	// totals now cover the surviving line only
	require.True(t, got.ItemsTotal.Equal(dec("300")), "got %s", got.ItemsTotal)
	require.True(t, got.Discount.Equal(dec("30")))
	require.True(t, got.FinalPrice.Equal(dec("270")))
	require.Equal(t, models.OrderPending, got.OrderStatus)
}

func TestCancelItemCODNoRefund(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentCOD, models.PaymentPending)

	require.NoError(t, svc.CancelItem(context.Background(), 1, o.OrderID, o.Items[0].ID, ""))
	require.True(t, walletBalance(t, svc.DB, 1).IsZero())
	require.Equal(t, 10, stockOf(t, svc.DB, 1))
}

func TestCancelItemAlreadyShippedStillCancellable(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentCOD, models.PaymentPending)
	require.NoError(t, svc.DB.Model(&models.OrderItem{}).
		Where("id = ?", o.Items[0].ID).Update("order_status", models.ItemShipped).Error)

	require.NoError(t, svc.CancelItem(context.Background(), 1, o.OrderID, o.Items[0].ID, ""))
}

func TestCancelItemDeliveredRejected(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentCOD, models.PaymentPending)
	require.NoError(t, svc.DB.Model(&models.OrderItem{}).
		Where("id = ?", o.Items[0].ID).Update("order_status", models.ItemDelivered).Error)

	err := svc.CancelItem(context.Background(), 1, o.OrderID, o.Items[0].ID, "")
	require.ErrorIs(t, err, ErrNotCancellable)
}

func TestCancelItemLastLineCancelsOrder(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentCOD, models.PaymentPending)
	ctx := context.Background()

	require.NoError(t, svc.CancelItem(ctx, 1, o.OrderID, o.Items[0].ID, ""))
	require.NoError(t, svc.CancelItem(ctx, 1, o.OrderID, o.Items[1].ID, ""))

	got := reload(t, svc.DB, o.OrderID)
	require.Equal(t, models.OrderCancelled, got.OrderStatus)
	require.True(t, got.FinalPrice.IsZero())
}

func TestCancelItemForeignOrder(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentCOD, models.PaymentPending)
	err := svc.CancelItem(context.Background(), 2, o.OrderID, o.Items[0].ID, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancelOrderPrepaid(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentWallet, models.PaymentCompleted)

	require.NoError(t, svc.CancelOrder(context.Background(), 1, o.OrderID, "moved house"))

	got := reload(t, svc.DB, o.OrderID)
	require.Equal(t, models.OrderCancelled, got.OrderStatus)
	require.Equal(t, models.PaymentRefunded, got.PaymentStatus)

	// whole remaining charge refunded, stock back, coupon usage released
	require.True(t, walletBalance(t, svc.DB, 1).Equal(dec("1170")))
	require.Equal(t, 10, stockOf(t, svc.DB, 1))
	require.Equal(t, 10, stockOf(t, svc.DB, 2))

	var c models.Coupon
	require.NoError(t, svc.DB.First(&c, *o.CouponID).Error)
	require.Equal(t, 0, c.UsedCount)
	var red models.CouponRedemption
	require.NoError(t, svc.DB.Where("coupon_id = ? AND user_id = ?", c.ID, 1).First(&red).Error)
	require.Equal(t, 0, red.Count)
}

func TestCancelOrderCODNoRefund(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentCOD, models.PaymentPending)

	require.NoError(t, svc.CancelOrder(context.Background(), 1, o.OrderID, ""))

	got := reload(t, svc.DB, o.OrderID)
	require.Equal(t, models.OrderCancelled, got.OrderStatus)
	require.Equal(t, models.PaymentPending, got.PaymentStatus)
	require.True(t, walletBalance(t, svc.DB, 1).IsZero())
}

func TestCancelOrderDeliveredRejected(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentCOD, models.PaymentPending)
	require.NoError(t, svc.DB.Model(&models.Order{}).
		Where("id = ?", o.ID).Update("order_status", models.OrderDelivered).Error)

	err := svc.CancelOrder(context.Background(), 1, o.OrderID, "")
	require.ErrorIs(t, err, ErrNotCancellable)
}

func TestRequestReturnFlow(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentCOD, models.PaymentCompleted)
	ctx := context.Background()
	itemID := o.Items[0].ID

	// only delivered items are returnable
	err := svc.RequestReturn(ctx, 1, o.OrderID, itemID, "too small")
	require.ErrorIs(t, err, ErrNotReturnable)

	require.NoError(t, svc.DB.Model(&models.OrderItem{}).
		Where("id = ?", itemID).Update("order_status", models.ItemDelivered).Error)

	require.ErrorIs(t, svc.RequestReturn(ctx, 1, o.OrderID, itemID, ""), ErrReasonRequired)
	require.NoError(t, svc.RequestReturn(ctx, 1, o.OrderID, itemID, "too small"))

	got := reload(t, svc.DB, o.OrderID)
	require.Equal(t, models.ItemReturnRequested, got.Items[0].OrderStatus)
	require.Equal(t, "too small", got.Items[0].ReturnReason)

	require.NoError(t, svc.CancelReturnRequest(ctx, 1, o.OrderID, itemID))
	got = reload(t, svc.DB, o.OrderID)
	require.Equal(t, models.ItemDelivered, got.Items[0].OrderStatus)
	require.Empty(t, got.Items[0].ReturnReason)

	require.ErrorIs(t, svc.CancelReturnRequest(ctx, 1, o.OrderID, itemID), ErrNoReturnRequest)
}

func TestVerifyPayment(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentRazorpay, models.PaymentPending)
	ctx := context.Background()

	// the cart rows checkout left behind for the deferred path
	require.NoError(t, svc.DB.Create(&models.CartItem{
		UserID: 1, ProductID: 1, Size: "M", Color: "blue", Quantity: 2,
		Price: dec("500"), TotalPrice: dec("1000"),
	}).Error)

	sig := sign("order_fake1", "pay_123")
	require.NoError(t, svc.VerifyPayment(ctx, 1, o.OrderID, "order_fake1", "pay_123", sig))

	got := reload(t, svc.DB, o.OrderID)
	require.Equal(t, models.PaymentCompleted, got.PaymentStatus)

	// the deferred half of checkout ran: stock reserved, cart cleared,
	// coupon committed a second time
	require.Equal(t, 6, stockOf(t, svc.DB, 1))
	require.Equal(t, 8, stockOf(t, svc.DB, 2))
	var n int64
	require.NoError(t, svc.DB.Model(&models.CartItem{}).Where("user_id = ?", 1).Count(&n).Error)
	require.Zero(t, n)
	var c models.Coupon
	require.NoError(t, svc.DB.First(&c, *o.CouponID).Error)
	require.Equal(t, 2, c.UsedCount)

	// a second callback is rejected and changes nothing
	err := svc.VerifyPayment(ctx, 1, o.OrderID, "order_fake1", "pay_123", sig)
	require.ErrorIs(t, err, ErrAlreadyPaid)
	require.Equal(t, 6, stockOf(t, svc.DB, 1))
}

func TestVerifyPaymentBadSignature(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentRazorpay, models.PaymentPending)

	err := svc.VerifyPayment(context.Background(), 1, o.OrderID, "order_fake1", "pay_123", "bogus")
	require.ErrorIs(t, err, ErrInvalidSignature)

	got := reload(t, svc.DB, o.OrderID)
	require.Equal(t, models.PaymentPending, got.PaymentStatus)
	require.Equal(t, 8, stockOf(t, svc.DB, 1))
}

func TestVerifyPaymentNonGatewayOrder(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentCOD, models.PaymentPending)
	err := svc.VerifyPayment(context.Background(), 1, o.OrderID, "x", "y", "z")
	require.ErrorIs(t, err, ErrNotGatewayOrder)
}

func TestVerifyPaymentRevivesFailedOrder(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentRazorpay, models.PaymentFailed)
	require.NoError(t, svc.DB.Model(&models.Order{}).Where("id = ?", o.ID).
		Updates(map[string]interface{}{"order_status": models.OrderFailed, "retry_locked": true}).Error)
	require.NoError(t, svc.DB.Model(&models.OrderItem{}).Where("order_ref = ?", o.ID).
		Update("order_status", models.ItemFailed).Error)

	sig := sign("order_fake1", "pay_123")
	require.NoError(t, svc.VerifyPayment(context.Background(), 1, o.OrderID, "order_fake1", "pay_123", sig))

	got := reload(t, svc.DB, o.OrderID)
	require.Equal(t, models.PaymentCompleted, got.PaymentStatus)
	require.Equal(t, models.OrderPending, got.OrderStatus)
	require.False(t, got.RetryLocked)
	for _, it := range got.Items {
		require.Equal(t, models.ItemPending, it.OrderStatus)
	}
}

func TestGetExpiresStaleGatewayOrder(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentRazorpay, models.PaymentPending)

	svc.now = func() time.Time { return time.Now().Add(PaymentExpiry + time.Minute) }

	got, err := svc.Get(context.Background(), 1, o.OrderID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentFailed, got.PaymentStatus)
	require.Equal(t, models.OrderFailed, got.OrderStatus)
	require.True(t, got.RetryLocked)
	for _, it := range got.Items {
		require.Equal(t, models.ItemFailed, it.OrderStatus)
	}
}

func TestGetLeavesFreshGatewayOrder(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentRazorpay, models.PaymentPending)

	got, err := svc.Get(context.Background(), 1, o.OrderID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentPending, got.PaymentStatus)
	require.False(t, got.RetryLocked)
}

func TestRetryPayment(t *testing.T) {
	svc, gw := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentRazorpay, models.PaymentFailed)

	intent, err := svc.RetryPayment(context.Background(), 1, o.OrderID)
	require.NoError(t, err)
	require.Equal(t, "order_fake1", intent.ID)
	require.Equal(t, 1, gw.intents)

	got := reload(t, svc.DB, o.OrderID)
	require.Equal(t, 1, got.RetryCount)
}

func TestRetryPaymentLimit(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentRazorpay, models.PaymentFailed)
	require.NoError(t, svc.DB.Model(&models.Order{}).Where("id = ?", o.ID).
		Update("retry_count", MaxPaymentRetries).Error)

	_, err := svc.RetryPayment(context.Background(), 1, o.OrderID)
	require.ErrorIs(t, err, ErrRetryLimit)

	// hitting the cap locks further retries
	got := reload(t, svc.DB, o.OrderID)
	require.True(t, got.RetryLocked)

	_, err = svc.RetryPayment(context.Background(), 1, o.OrderID)
	require.ErrorIs(t, err, ErrRetryLocked)
}

func TestRetryPaymentExpired(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentRazorpay, models.PaymentPending)
	svc.now = func() time.Time { return time.Now().Add(PaymentExpiry + time.Minute) }

	_, err := svc.RetryPayment(context.Background(), 1, o.OrderID)
	require.ErrorIs(t, err, ErrRetryLocked)
}

func TestMarkPaymentFailed(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentRazorpay, models.PaymentPending)
	ctx := context.Background()

	require.NoError(t, svc.MarkPaymentFailed(ctx, 1, o.OrderID))

	// the whole order fails, not just the payment record
	got := reload(t, svc.DB, o.OrderID)
	require.Equal(t, models.PaymentFailed, got.PaymentStatus)
	require.Equal(t, models.OrderFailed, got.OrderStatus)
	for _, it := range got.Items {
		require.Equal(t, models.ItemFailed, it.OrderStatus)
	}

	// under the cap the order stays retryable
	require.False(t, got.RetryLocked)
	_, err := svc.RetryPayment(ctx, 1, o.OrderID)
	require.NoError(t, err)

	// a failed order is invisible to the admin book
	orders, total, err := svc.ListOrders(ctx, ListFilter{})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, orders)
}

func TestMarkPaymentFailedLocksAtRetryCap(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentRazorpay, models.PaymentPending)
	require.NoError(t, svc.DB.Model(&models.Order{}).Where("id = ?", o.ID).
		Update("retry_count", MaxPaymentRetries).Error)

	require.NoError(t, svc.MarkPaymentFailed(context.Background(), 1, o.OrderID))

	got := reload(t, svc.DB, o.OrderID)
	require.True(t, got.RetryLocked)

	_, err := svc.RetryPayment(context.Background(), 1, o.OrderID)
	require.ErrorIs(t, err, ErrRetryLocked)
}

func TestVerifyPaymentRevivesClientReportedFailure(t *testing.T) {
	svc, _ := setupSvc(t)
	o := seedOrder(t, svc.DB, models.PaymentRazorpay, models.PaymentPending)
	ctx := context.Background()

	require.NoError(t, svc.MarkPaymentFailed(ctx, 1, o.OrderID))

	sig := sign("order_fake1", "pay_123")
	require.NoError(t, svc.VerifyPayment(ctx, 1, o.OrderID, "order_fake1", "pay_123", sig))

	got := reload(t, svc.DB, o.OrderID)
	require.Equal(t, models.PaymentCompleted, got.PaymentStatus)
	require.Equal(t, models.OrderPending, got.OrderStatus)
	for _, it := range got.Items {
		require.Equal(t, models.ItemPending, it.OrderStatus)
	}
}
