package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/elfein/storefront/internal/cart"
	"github.com/elfein/storefront/internal/coupon"
	"github.com/elfein/storefront/internal/events"
	"github.com/elfein/storefront/internal/gateway"
	"github.com/elfein/storefront/internal/models"
	"github.com/elfein/storefront/internal/pricing"
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

func setupOrchestrator(t *testing.T) (*Orchestrator, *fakeGateway) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	resolver := &pricing.Resolver{DB: db}
	gw := &fakeGateway{}
	o := &Orchestrator{
		DB:      db,
		Cart:    &cart.Service{DB: db, Pricing: resolver},
		Pricing: resolver,
		Coupons: &coupon.Engine{DB: db, Sessions: session.NewStore(session.DefaultTTL)},
		Wallet:  &wallet.Service{DB: db},
		Gateway: gw,
		Events:  events.Nop{},
	}
	return o, gw
}

// seedCheckout gives user 1 an address plus a two-line cart: 2x500 shirts
// and 1x300 jeans.
func seedCheckout(t *testing.T, db *gorm.DB) {
	require.NoError(t, db.Create(&models.User{Name: "asha", Email: "asha@example.com", PasswordHash: "x"}).Error)
	require.NoError(t, db.Create(&models.Address{UserID: 1, Name: "Asha", Line: "12 Hill Rd"}).Error)

	cat := models.Category{Name: "men", IsListed: true}
	require.NoError(t, db.Create(&cat).Error)

	shirt := models.Product{Name: "shirt", CategoryID: cat.ID, IsListed: true}
	jeans := models.Product{Name: "jeans", CategoryID: cat.ID, IsListed: true}
	require.NoError(t, db.Create(&shirt).Error)
	require.NoError(t, db.Create(&jeans).Error)

	require.NoError(t, db.Create(&models.Variant{
		ProductID: shirt.ID, Size: "M", Color: "blue", Price: dec("500"), Stock: 10, IsListed: true,
	}).Error)
	require.NoError(t, db.Create(&models.Variant{
		ProductID: jeans.ID, Size: "32", Color: "black", Price: dec("300"), Stock: 10, IsListed: true,
	}).Error)

	require.NoError(t, db.Create(&models.CartItem{
		UserID: 1, ProductID: shirt.ID, Size: "M", Color: "blue", Quantity: 2,
		Price: dec("500"), TotalPrice: dec("1000"),
	}).Error)
	require.NoError(t, db.Create(&models.CartItem{
		UserID: 1, ProductID: jeans.ID, Size: "32", Color: "black", Quantity: 1,
		Price: dec("300"), TotalPrice: dec("300"),
	}).Error)
}

func variantStock(t *testing.T, db *gorm.DB, productID uint) int {
	var v models.Variant
	require.NoError(t, db.Where("product_id = ?", productID).First(&v).Error)
	return v.Stock
}

func cartCount(t *testing.T, db *gorm.DB) int64 {
	var n int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("user_id = ?", 1).Count(&n).Error)
	return n
}

func TestPlaceOrderCOD(t *testing.T) {
	o, _ := setupOrchestrator(t)
	seedCheckout(t, o.DB)

	res, err := o.PlaceOrder(context.Background(), 1, 0, models.PaymentCOD)
	require.NoError(t, err)
	require.NotEmpty(t, res.OrderID)
	require.True(t, res.Amount.Equal(dec("1300")), "got %s", res.Amount)

	var order models.Order
	require.NoError(t, o.DB.Preload("Items").Where("order_id = ?", res.OrderID).First(&order).Error)
	require.Equal(t, models.OrderPending, order.OrderStatus)
	require.Equal(t, models.PaymentPending, order.PaymentStatus)
	require.Len(t, order.Items, 2)
	require.Equal(t, "Asha", order.Address.Name)

	// stock reserved and cart cleared
	require.Equal(t, 8, variantStock(t, o.DB, order.Items[0].ProductID))
	require.Equal(t, 9, variantStock(t, o.DB, order.Items[1].ProductID))
	require.Zero(t, cartCount(t, o.DB))
}

func TestPlaceOrderWithCouponApportions(t *testing.T) {
	o, _ := setupOrchestrator(t)
	seedCheckout(t, o.DB)
	ctx := context.Background()

	c := models.Coupon{
		Code: "FLAT130", DiscountType: models.DiscountFixed, DiscountValue: dec("130"),
		MinimumPurchase: dec("1000"), StartingDate: time.Now().Add(-time.Hour),
		ValidUntil: time.Now().Add(time.Hour), UsageLimit: 1, IsActive: true,
	}
	require.NoError(t, o.DB.Create(&c).Error)
	_, err := o.Coupons.Apply(ctx, 1, "FLAT130", dec("1300"))
	require.NoError(t, err)

	res, err := o.PlaceOrder(ctx, 1, 0, models.PaymentCOD)
	require.NoError(t, err)
	require.True(t, res.Amount.Equal(dec("1170")), "got %s", res.Amount)

	var order models.Order
	require.NoError(t, o.DB.Preload("Items").Where("order_id = ?", res.OrderID).First(&order).Error)
	require.NotNil(t, order.CouponID)
	require.True(t, order.Discount.Equal(dec("130")))

	// line shares sum to the discount, proportional to 1000:300
	require.True(t, order.Items[0].CouponShare.Equal(dec("100")), "got %s", order.Items[0].CouponShare)
	require.True(t, order.Items[1].CouponShare.Equal(dec("30")), "got %s", order.Items[1].CouponShare)

	// redemption recorded and session released
	var got models.Coupon
	require.NoError(t, o.DB.First(&got, c.ID).Error)
	require.Equal(t, 1, got.UsedCount)
	_, held := o.Coupons.Held(1)
	require.False(t, held)
}

func TestPlaceOrderWallet(t *testing.T) {
	o, _ := setupOrchestrator(t)
	seedCheckout(t, o.DB)
	ctx := context.Background()
	require.NoError(t, o.Wallet.Credit(ctx, 1, dec("2000"), "Wallet top-up", ""))

	res, err := o.PlaceOrder(ctx, 1, 0, models.PaymentWallet)
	require.NoError(t, err)

	var order models.Order
	require.NoError(t, o.DB.Where("order_id = ?", res.OrderID).First(&order).Error)
	require.Equal(t, models.PaymentCompleted, order.PaymentStatus)

	b, err := o.Wallet.Balance(ctx, 1)
	require.NoError(t, err)
	require.True(t, b.Equal(dec("700")), "got %s", b)
}

func TestPlaceOrderWalletFullyCouponCovered(t *testing.T) {
	o, _ := setupOrchestrator(t)
	seedCheckout(t, o.DB)
	ctx := context.Background()

	c := models.Coupon{
		Code: "FREEBIE", DiscountType: models.DiscountFixed, DiscountValue: dec("1500"),
		MinimumPurchase: dec("1000"), StartingDate: time.Now().Add(-time.Hour),
		ValidUntil: time.Now().Add(time.Hour), UsageLimit: 1, IsActive: true,
	}
	require.NoError(t, o.DB.Create(&c).Error)
	_, err := o.Coupons.Apply(ctx, 1, "FREEBIE", dec("1300"))
	require.NoError(t, err)

	// empty wallet, nothing owed: the order goes through without a debit
	res, err := o.PlaceOrder(ctx, 1, 0, models.PaymentWallet)
	require.NoError(t, err)
	require.True(t, res.Amount.IsZero(), "got %s", res.Amount)

	var order models.Order
	require.NoError(t, o.DB.Where("order_id = ?", res.OrderID).First(&order).Error)
	require.Equal(t, models.PaymentCompleted, order.PaymentStatus)

	b, err := o.Wallet.Balance(ctx, 1)
	require.NoError(t, err)
	require.True(t, b.IsZero())

	var n int64
	require.NoError(t, o.DB.Model(&models.WalletTransaction{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestPlaceOrderWalletInsufficient(t *testing.T) {
	o, _ := setupOrchestrator(t)
	seedCheckout(t, o.DB)
	ctx := context.Background()
	require.NoError(t, o.Wallet.Credit(ctx, 1, dec("100"), "Wallet top-up", ""))

	_, err := o.PlaceOrder(ctx, 1, 0, models.PaymentWallet)
	require.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	// nothing moved: no order, stock intact, cart intact, balance intact
	var n int64
	require.NoError(t, o.DB.Model(&models.Order{}).Count(&n).Error)
	require.Zero(t, n)
	require.Equal(t, int64(2), cartCount(t, o.DB))

	b, err := o.Wallet.Balance(ctx, 1)
	require.NoError(t, err)
	require.True(t, b.Equal(dec("100")))
}

func TestPlaceOrderRazorpayDefersEverything(t *testing.T) {
	o, gw := setupOrchestrator(t)
	seedCheckout(t, o.DB)

	res, err := o.PlaceOrder(context.Background(), 1, 0, models.PaymentRazorpay)
	require.NoError(t, err)
	require.Equal(t, "order_fake1", res.GatewayOrderID)
	require.Equal(t, 1, gw.intents)

	var order models.Order
	require.NoError(t, o.DB.Preload("Items").Where("order_id = ?", res.OrderID).First(&order).Error)
	require.Equal(t, models.PaymentPending, order.PaymentStatus)

	// stock and cart untouched until the payment verifies
	require.Equal(t, 10, variantStock(t, o.DB, order.Items[0].ProductID))
	require.Equal(t, int64(2), cartCount(t, o.DB))
}

func TestPlaceOrderGatewayFailure(t *testing.T) {
	o, gw := setupOrchestrator(t)
	gw.fail = true
	seedCheckout(t, o.DB)

	_, err := o.PlaceOrder(context.Background(), 1, 0, models.PaymentRazorpay)
	require.Error(t, err)

	var n int64
	require.NoError(t, o.DB.Model(&models.Order{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestPlaceOrderStockShortage(t *testing.T) {
	o, _ := setupOrchestrator(t)
	seedCheckout(t, o.DB)
	require.NoError(t, o.DB.Model(&models.Variant{}).Where("size = ?", "M").Update("stock", 1).Error)

	_, err := o.PlaceOrder(context.Background(), 1, 0, models.PaymentCOD)
	var stockErr *StockError
	require.ErrorAs(t, err, &stockErr)
	require.True(t, stockErr.OutOfStock)
	require.Equal(t, "shirt", stockErr.ProductName)

	var n int64
	require.NoError(t, o.DB.Model(&models.Order{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestPlaceOrderUnlistedProduct(t *testing.T) {
	o, _ := setupOrchestrator(t)
	seedCheckout(t, o.DB)
	require.NoError(t, o.DB.Model(&models.Product{}).Where("name = ?", "shirt").Update("is_listed", false).Error)

	_, err := o.PlaceOrder(context.Background(), 1, 0, models.PaymentCOD)
	var stockErr *StockError
	require.ErrorAs(t, err, &stockErr)
	require.False(t, stockErr.OutOfStock)
}

func TestPlaceOrderBadAddressIndex(t *testing.T) {
	o, _ := setupOrchestrator(t)
	seedCheckout(t, o.DB)

	_, err := o.PlaceOrder(context.Background(), 1, 5, models.PaymentCOD)
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	o, _ := setupOrchestrator(t)
	_, err := o.PlaceOrder(context.Background(), 1, 0, models.PaymentCOD)
	require.ErrorIs(t, err, ErrCartEmpty)
}

func TestPlaceOrderUnknownMethod(t *testing.T) {
	o, _ := setupOrchestrator(t)
	seedCheckout(t, o.DB)
	_, err := o.PlaceOrder(context.Background(), 1, 0, models.PaymentMethod("upi"))
	require.ErrorIs(t, err, ErrPaymentMethod)
}

func TestPlaceOrderUsesCurrentPrices(t *testing.T) {
	o, _ := setupOrchestrator(t)
	seedCheckout(t, o.DB)

	// cart rows carry stale prices; the order must reprice from the catalog
	require.NoError(t, o.DB.Model(&models.Variant{}).Where("size = ?", "M").Update("discount_price", dec("400")).Error)

	res, err := o.PlaceOrder(context.Background(), 1, 0, models.PaymentCOD)
	require.NoError(t, err)
	require.True(t, res.Amount.Equal(dec("1100")), "got %s", res.Amount)
}

func TestSummaryReportsStaleCoupon(t *testing.T) {
	o, _ := setupOrchestrator(t)
	seedCheckout(t, o.DB)
	ctx := context.Background()

	c := models.Coupon{
		Code: "FLAT130", DiscountType: models.DiscountFixed, DiscountValue: dec("130"),
		MinimumPurchase: dec("1000"), StartingDate: time.Now().Add(-time.Hour),
		ValidUntil: time.Now().Add(time.Hour), UsageLimit: 1, IsActive: true,
	}
	require.NoError(t, o.DB.Create(&c).Error)
	_, err := o.Coupons.Apply(ctx, 1, "FLAT130", dec("1300"))
	require.NoError(t, err)

	require.NoError(t, o.DB.Model(&c).Update("is_active", false).Error)

	sum, err := o.Summary(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Coupon is no longer available", sum.CouponMessage)
	require.Empty(t, sum.AppliedCoupon)
	require.True(t, sum.FinalTotal.Equal(sum.ItemsTotal))
}

func TestSummaryWithCoupon(t *testing.T) {
	o, _ := setupOrchestrator(t)
	seedCheckout(t, o.DB)
	ctx := context.Background()

	c := models.Coupon{
		Code: "SAVE10", DiscountType: models.DiscountPercentage, DiscountValue: dec("10"),
		MinimumPurchase: dec("1000"), MaximumDiscount: dec("200"),
		StartingDate: time.Now().Add(-time.Hour), ValidUntil: time.Now().Add(time.Hour),
		UsageLimit: 1, IsActive: true,
	}
	require.NoError(t, o.DB.Create(&c).Error)
	_, err := o.Coupons.Apply(ctx, 1, "SAVE10", dec("1300"))
	require.NoError(t, err)

	sum, err := o.Summary(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "SAVE10", sum.AppliedCoupon)
	require.True(t, sum.CouponDiscount.Equal(dec("130")), "got %s", sum.CouponDiscount)
	require.True(t, sum.FinalTotal.Equal(dec("1170")), "got %s", sum.FinalTotal)
}
