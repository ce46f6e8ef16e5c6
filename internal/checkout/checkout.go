// Package checkout turns a cart into an order. Everything the client sent
// is distrusted: stock, prices and the coupon are all re-resolved here, and
// the mutating steps run inside one database transaction so a failed step
// leaves stock, wallet and coupon counters untouched.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/elfein/storefront/internal/cart"
	"github.com/elfein/storefront/internal/coupon"
	"github.com/elfein/storefront/internal/events"
	"github.com/elfein/storefront/internal/gateway"
	"github.com/elfein/storefront/internal/inventory"
	"github.com/elfein/storefront/internal/logging"
	"github.com/elfein/storefront/internal/mailer"
	"github.com/elfein/storefront/internal/models"
	"github.com/elfein/storefront/internal/pricing"
	"github.com/elfein/storefront/internal/wallet"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrCartEmpty      = errors.New("cart empty")
	ErrInvalidAddress = errors.New("invalid address")
	ErrPaymentMethod  = errors.New("unsupported payment method")
)

// StockError reports which product blocked checkout so the customer can fix
// the cart instead of guessing.
type StockError struct {
	ProductName string
	OutOfStock  bool
}

func (e *StockError) Error() string {
	if e.OutOfStock {
		return fmt.Sprintf("%s is out of stock", e.ProductName)
	}
	return fmt.Sprintf("%s is unavailable", e.ProductName)
}

type Orchestrator struct {
	DB      *gorm.DB
	Cart    *cart.Service
	Pricing *pricing.Resolver
	Coupons *coupon.Engine
	Wallet  *wallet.Service
	Gateway gateway.Client
	Events  events.Publisher
	Mailer  mailer.Mailer
}

// Summary is the checkout page data: totals recomputed at view time because
// prices can drift between cart-add and checkout.
type Summary struct {
	Lines          []cart.Line     `json:"lines"`
	BaseTotal      decimal.Decimal `json:"base_total"`
	ItemsTotal     decimal.Decimal `json:"items_total"`
	CouponDiscount decimal.Decimal `json:"coupon_discount"`
	FinalTotal     decimal.Decimal `json:"final_total"`
	AppliedCoupon  string          `json:"applied_coupon,omitempty"`
	CouponMessage  string          `json:"coupon_message,omitempty"`
}

func (o *Orchestrator) Summary(ctx context.Context, userID uint) (*Summary, error) {
	lines, err := o.Cart.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrCartEmpty
	}

	sum := &Summary{Lines: lines}
	for _, l := range lines {
		sum.BaseTotal = sum.BaseTotal.Add(l.BasePrice.Mul(decimal.NewFromInt(int64(l.Item.Quantity))))
		sum.ItemsTotal = sum.ItemsTotal.Add(l.TotalPrice)
	}
	sum.BaseTotal = sum.BaseTotal.Round(2)
	sum.ItemsTotal = sum.ItemsTotal.Round(2)
	sum.FinalTotal = sum.ItemsTotal

	applied, stale, err := o.Coupons.Revalidate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stale {
		sum.CouponMessage = "Coupon is no longer available"
	}
	if applied != nil {
		sum.CouponDiscount = applied.Discount
		sum.AppliedCoupon = applied.Code
		sum.FinalTotal = decimal.Max(sum.ItemsTotal.Sub(applied.Discount), decimal.Zero).Round(2)
	}
	return sum, nil
}

type Result struct {
	OrderID        string               `json:"order_id"`
	PaymentMethod  models.PaymentMethod `json:"payment_method"`
	Amount         decimal.Decimal      `json:"amount"`
	GatewayOrderID string               `json:"gateway_order_id,omitempty"`
}

// PlaceOrder validates the cart, re-resolves authoritative prices, and
// creates the order in the initial state the payment method calls for:
//
//	wallet   - debit, order paid, stock reserved, coupon committed, cart cleared
//	cod      - order pending, stock reserved, coupon committed, cart cleared
//	razorpay - intent created, order pending; stock, coupon and cart wait
//	           for the verified payment callback
func (o *Orchestrator) PlaceOrder(ctx context.Context, userID uint, addressIndex int, method models.PaymentMethod) (*Result, error) {
	var items []models.CartItem
	if err := o.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrCartEmpty
	}

	addr, err := o.addressAt(ctx, userID, addressIndex)
	if err != nil {
		return nil, err
	}

	// strict re-check before anything mutates
	variants := make([]models.Variant, len(items))
	for i, item := range items {
		var product models.Product
		err := o.DB.WithContext(ctx).
			Where("id = ? AND is_listed = ? AND is_deleted = ?", item.ProductID, true, false).
			First(&product).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &StockError{ProductName: o.productName(ctx, item.ProductID)}
		}
		if err != nil {
			return nil, err
		}

		var variant models.Variant
		err = o.DB.WithContext(ctx).
			Where("product_id = ? AND size = ? AND color = ? AND is_listed = ?",
				item.ProductID, item.Size, item.Color, true).
			First(&variant).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && variant.Stock < item.Quantity) {
			return nil, &StockError{ProductName: product.Name, OutOfStock: true}
		}
		if err != nil {
			return nil, err
		}
		variants[i] = variant
	}

	// authoritative pricing; client-submitted prices are never trusted
	itemsTotal := decimal.Zero
	lineTotals := make([]decimal.Decimal, len(items))
	orderItems := make([]models.OrderItem, len(items))
	for i, item := range items {
		finalPrice, err := o.Pricing.Resolve(ctx, &variants[i])
		if err != nil {
			return nil, err
		}

		var product models.Product
		if err := o.DB.WithContext(ctx).First(&product, item.ProductID).Error; err != nil {
			return nil, err
		}

		lineTotal := finalPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		lineTotals[i] = lineTotal
		itemsTotal = itemsTotal.Add(lineTotal).Round(2)

		orderItems[i] = models.OrderItem{
			ProductID:     item.ProductID,
			ProductName:   product.Name,
			ProductImages: product.Images,
			Size:          item.Size,
			Color:         item.Color,
			BasePrice:     variants[i].Price,
			Price:         finalPrice,
			Quantity:      item.Quantity,
			OfferPrice:    lineTotal,
			OrderStatus:   models.ItemPending,
		}
	}

	couponDiscount := decimal.Zero
	var couponID *uint
	if applied, ok := o.Coupons.Held(userID); ok {
		couponDiscount = applied.Discount
		id := applied.CouponID
		couponID = &id
	}

	finalAmount := decimal.Max(itemsTotal.Sub(couponDiscount), decimal.Zero).Round(2)

	shares := coupon.Apportion(lineTotals, couponDiscount)
	for i := range orderItems {
		orderItems[i].CouponShare = shares[i]
	}

	order := &models.Order{
		UserID:        userID,
		Items:         orderItems,
		ItemsTotal:    itemsTotal,
		Discount:      couponDiscount,
		FinalPrice:    finalAmount,
		Address:       addr.Snapshot(),
		PaymentMethod: method,
		PaymentStatus: models.PaymentPending,
		OrderStatus:   models.OrderPending,
		CouponID:      couponID,
	}

	switch method {
	case models.PaymentWallet:
		order.PaymentStatus = models.PaymentCompleted
		err = o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// a coupon can cover the whole total; nothing to debit then
			if finalAmount.IsPositive() {
				w := &wallet.Service{DB: tx}
				if err := w.Debit(ctx, userID, finalAmount, "Order Payment", ""); err != nil {
					return err
				}
			}
			return o.commitOrder(ctx, tx, order, items, userID)
		})
		if err != nil {
			return nil, err
		}
		o.finishSession(ctx, userID, order)
		return &Result{OrderID: order.OrderID, PaymentMethod: method, Amount: finalAmount}, nil

	case models.PaymentRazorpay:
		intent, err := o.Gateway.CreateIntent(ctx, finalAmount, "INR", "receipt_"+fmt.Sprint(order.UserID))
		if err != nil {
			return nil, err
		}
		if err := o.DB.WithContext(ctx).Create(order).Error; err != nil {
			return nil, err
		}
		// cart, stock and coupon usage are all deferred to the verified
		// payment callback; an abandoned intent holds nothing hostage
		return &Result{
			OrderID:        order.OrderID,
			PaymentMethod:  method,
			Amount:         finalAmount,
			GatewayOrderID: intent.ID,
		}, nil

	case models.PaymentCOD:
		err = o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return o.commitOrder(ctx, tx, order, items, userID)
		})
		if err != nil {
			return nil, err
		}
		o.finishSession(ctx, userID, order)
		return &Result{OrderID: order.OrderID, PaymentMethod: method, Amount: finalAmount}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrPaymentMethod, method)
	}
}

// commitOrder creates the order, reserves stock for every line, commits the
// coupon redemption and clears the cart, all on the caller's transaction.
func (o *Orchestrator) commitOrder(ctx context.Context, tx *gorm.DB, order *models.Order, items []models.CartItem, userID uint) error {
	if err := tx.Create(order).Error; err != nil {
		return err
	}

	ledger := &inventory.Ledger{DB: tx}
	for _, item := range items {
		key := inventory.VariantKey{ProductID: item.ProductID, Size: item.Size, Color: item.Color}
		if err := ledger.Reserve(ctx, key, item.Quantity); err != nil {
			return err
		}
	}

	if order.CouponID != nil {
		engine := &coupon.Engine{DB: tx, Sessions: o.Coupons.Sessions}
		if err := engine.Commit(ctx, *order.CouponID, userID); err != nil {
			return err
		}
	}

	return tx.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error
}

// finishSession drops the applied coupon and announces the order. Runs
// after the transaction committed; event and mail failures are only logged,
// the order stands either way.
func (o *Orchestrator) finishSession(ctx context.Context, userID uint, order *models.Order) {
	o.Coupons.Clear(userID)
	if err := o.Events.Publish(ctx, events.OrderEvent{
		Type:    events.OrderCreated,
		OrderID: order.OrderID,
		UserID:  userID,
		Amount:  order.FinalPrice,
	}); err != nil {
		logging.FromContext(ctx).Warn("publish_order_created_failed", "order_id", order.OrderID, "error", err)
	}
	o.mailConfirmation(ctx, userID, order)
}

func (o *Orchestrator) mailConfirmation(ctx context.Context, userID uint, order *models.Order) {
	if o.Mailer == nil {
		return
	}
	var user models.User
	if err := o.DB.WithContext(ctx).First(&user, userID).Error; err != nil {
		return
	}
	body := fmt.Sprintf("<p>Your order <b>%s</b> for %s has been placed.</p>",
		order.OrderID, order.FinalPrice.StringFixed(2))
	if err := o.Mailer.Send(user.Email, "Order confirmation", body); err != nil {
		logging.FromContext(ctx).Warn("order_confirmation_mail_failed", "order_id", order.OrderID, "error", err)
	}
}

func (o *Orchestrator) addressAt(ctx context.Context, userID uint, index int) (*models.Address, error) {
	var addresses []models.Address
	if err := o.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&addresses).Error; err != nil {
		return nil, err
	}
	if index < 0 || index >= len(addresses) {
		return nil, ErrInvalidAddress
	}
	return &addresses[index], nil
}

func (o *Orchestrator) productName(ctx context.Context, productID uint) string {
	var product models.Product
	if err := o.DB.WithContext(ctx).First(&product, productID).Error; err != nil {
		return fmt.Sprintf("product %d", productID)
	}
	return product.Name
}
