// Package order owns the post-checkout lifecycle: fulfillment status,
// cancellation, returns, gateway payment verification and retry, and the
// refund flow into the wallet.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elfein/storefront/internal/coupon"
	"github.com/elfein/storefront/internal/events"
	"github.com/elfein/storefront/internal/gateway"
	"github.com/elfein/storefront/internal/inventory"
	"github.com/elfein/storefront/internal/logging"
	"github.com/elfein/storefront/internal/models"
	"github.com/elfein/storefront/internal/wallet"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// PaymentExpiry is how long an unverified gateway order stays payable.
	PaymentExpiry = 10 * time.Minute
	// MaxPaymentRetries caps fresh payment intents per order.
	MaxPaymentRetries = 3
)

var (
	ErrNotFound         = errors.New("order not found")
	ErrNotCancellable   = errors.New("order can no longer be cancelled")
	ErrItemNotFound     = errors.New("order item not found")
	ErrNotReturnable    = errors.New("item is not eligible for return")
	ErrReasonRequired   = errors.New("reason required")
	ErrNoReturnRequest  = errors.New("no pending return request")
	ErrAlreadyPaid      = errors.New("payment already completed")
	ErrInvalidSignature = errors.New("payment signature mismatch")
	ErrNotGatewayOrder  = errors.New("not a gateway payment order")
	ErrRetryLocked      = errors.New("payment retries locked")
	ErrRetryLimit       = errors.New("payment retry limit reached")
)

type Service struct {
	DB       *gorm.DB
	Coupons  *coupon.Engine
	Gateway  gateway.Client
	Verifier *gateway.Verifier
	Events   events.Publisher
	now      func() time.Time
}

func NewService(db *gorm.DB, coupons *coupon.Engine, gw gateway.Client, verifier *gateway.Verifier, pub events.Publisher) *Service {
	return &Service{DB: db, Coupons: coupons, Gateway: gw, Verifier: verifier, Events: pub, now: time.Now}
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// List returns the user's orders newest first. Stale gateway orders are
// expired on the way out; there is no background sweeper, the read path is
// the sweeper.
func (s *Service) List(ctx context.Context, userID uint) ([]models.Order, error) {
	var orders []models.Order
	err := s.DB.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if err := s.expireIfStale(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *Service) Get(ctx context.Context, userID uint, orderID string) (*models.Order, error) {
	order, err := s.load(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.expireIfStale(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) load(ctx context.Context, userID uint, orderID string) (*models.Order, error) {
	var order models.Order
	q := s.DB.WithContext(ctx).Preload("Items").Where("order_id = ?", orderID)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// expireIfStale fails a gateway order that has waited past PaymentExpiry
// without a verified payment. Items go to failed and retries lock; the
// customer has to place a fresh order.
func (s *Service) expireIfStale(ctx context.Context, order *models.Order) error {
	if order.PaymentMethod != models.PaymentRazorpay || order.RetryLocked {
		return nil
	}
	if order.PaymentStatus != models.PaymentPending && order.PaymentStatus != models.PaymentFailed {
		return nil
	}
	if s.clock().Sub(order.CreatedAt) < PaymentExpiry {
		return nil
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.OrderItem{}).
			Where("order_ref = ?", order.ID).
			Update("order_status", models.ItemFailed).Error; err != nil {
			return err
		}
		return tx.Model(order).Updates(map[string]interface{}{
			"payment_status": models.PaymentFailed,
			"order_status":   models.OrderFailed,
			"retry_locked":   true,
		}).Error
	})
	if err != nil {
		return err
	}
	order.PaymentStatus = models.PaymentFailed
	order.OrderStatus = models.OrderFailed
	order.RetryLocked = true
	for i := range order.Items {
		order.Items[i].OrderStatus = models.ItemFailed
	}
	s.publish(ctx, events.PaymentFailed, order)
	return nil
}

// CancelItem cancels one line: stock comes back, and on a paid non-COD
// order the line's charge minus its coupon share goes to the wallet. Order
// totals are recomputed so they always reflect only payable items.
func (s *Service) CancelItem(ctx context.Context, userID uint, orderID string, itemID uint, reason string) error {
	order, err := s.load(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if order.OrderStatus == models.OrderCancelled || order.OrderStatus == models.OrderDelivered {
		return ErrNotCancellable
	}
	item := findItem(order, itemID)
	if item == nil {
		return ErrItemNotFound
	}
	switch item.OrderStatus {
	case models.ItemDelivered, models.ItemReturnRequested, models.ItemReturned, models.ItemCancelled, models.ItemFailed:
		return fmt.Errorf("%w: item is %s", ErrNotCancellable, item.OrderStatus)
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item.OrderStatus = models.ItemCancelled
		item.CancellationReason = reason
		if err := tx.Save(item).Error; err != nil {
			return err
		}

		ledger := &inventory.Ledger{DB: tx}
		key := inventory.VariantKey{ProductID: item.ProductID, Size: item.Size, Color: item.Color}
		if err := ledger.Release(ctx, key, item.Quantity); err != nil && !errors.Is(err, inventory.ErrNotFound) {
			return err
		}

		if order.PaymentMethod != models.PaymentCOD && order.PaymentStatus == models.PaymentCompleted {
			refund := item.OfferPrice.Sub(item.CouponShare).Round(2)
			w := &wallet.Service{DB: tx}
			if err := w.Credit(ctx, userID, refund, "Refund for cancelled item", order.OrderID); err != nil {
				return err
			}
		}

		recomputeTotals(order)
		order.OrderStatus = Rollup(order.Items)
		return tx.Save(order).Error
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.ItemCancelled, order)
	return nil
}

// CancelOrder cancels every still-pending line, releases their stock,
// refunds the whole remaining charge to the wallet for paid non-COD orders
// and gives the coupon usage back.
func (s *Service) CancelOrder(ctx context.Context, userID uint, orderID string, reason string) error {
	order, err := s.load(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if order.OrderStatus == models.OrderCancelled || order.OrderStatus == models.OrderDelivered {
		return ErrNotCancellable
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := &inventory.Ledger{DB: tx}
		for i := range order.Items {
			item := &order.Items[i]
			switch item.OrderStatus {
			case models.ItemDelivered, models.ItemReturnRequested, models.ItemReturned, models.ItemCancelled, models.ItemFailed:
				continue
			}
			item.OrderStatus = models.ItemCancelled
			item.CancellationReason = reason
			if err := tx.Save(item).Error; err != nil {
				return err
			}
			key := inventory.VariantKey{ProductID: item.ProductID, Size: item.Size, Color: item.Color}
			if err := ledger.Release(ctx, key, item.Quantity); err != nil && !errors.Is(err, inventory.ErrNotFound) {
				return err
			}
		}

		if order.PaymentMethod != models.PaymentCOD && order.PaymentStatus == models.PaymentCompleted {
			w := &wallet.Service{DB: tx}
			if err := w.Credit(ctx, userID, order.FinalPrice, "Refund for cancelled order", order.OrderID); err != nil {
				return err
			}
			order.PaymentStatus = models.PaymentRefunded
		}

		if order.CouponID != nil {
			engine := &coupon.Engine{DB: tx, Sessions: s.Coupons.Sessions}
			if err := engine.Revert(ctx, *order.CouponID, userID); err != nil {
				return err
			}
		}

		recomputeTotals(order)
		order.OrderStatus = Rollup(order.Items)
		return tx.Save(order).Error
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.OrderCancelled, order)
	return nil
}

// RequestReturn flags a delivered item for the admin return queue.
func (s *Service) RequestReturn(ctx context.Context, userID uint, orderID string, itemID uint, reason string) error {
	if reason == "" {
		return ErrReasonRequired
	}
	order, err := s.load(ctx, userID, orderID)
	if err != nil {
		return err
	}
	item := findItem(order, itemID)
	if item == nil {
		return ErrItemNotFound
	}
	if item.OrderStatus != models.ItemDelivered {
		return fmt.Errorf("%w: item is %s", ErrNotReturnable, item.OrderStatus)
	}
	item.OrderStatus = models.ItemReturnRequested
	item.ReturnReason = reason
	return s.DB.WithContext(ctx).Save(item).Error
}

func (s *Service) CancelReturnRequest(ctx context.Context, userID uint, orderID string, itemID uint) error {
	order, err := s.load(ctx, userID, orderID)
	if err != nil {
		return err
	}
	item := findItem(order, itemID)
	if item == nil {
		return ErrItemNotFound
	}
	if item.OrderStatus != models.ItemReturnRequested {
		return ErrNoReturnRequest
	}
	item.OrderStatus = models.ItemDelivered
	item.ReturnReason = ""
	return s.DB.WithContext(ctx).Save(item).Error
}

// VerifyPayment accepts the gateway callback for a razorpay order. On a
// valid signature the deferred half of checkout finally runs: stock is
// reserved, coupon usage commits, the cart clears. A failed-then-verified
// order comes back to pending and unlocks.
func (s *Service) VerifyPayment(ctx context.Context, userID uint, orderID, gatewayOrderRef, paymentRef, signature string) error {
	order, err := s.load(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if order.PaymentMethod != models.PaymentRazorpay {
		return ErrNotGatewayOrder
	}
	if order.PaymentStatus == models.PaymentCompleted {
		return ErrAlreadyPaid
	}
	if !s.Verifier.Verify(gatewayOrderRef, paymentRef, signature) {
		return ErrInvalidSignature
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := &inventory.Ledger{DB: tx}
		for i := range order.Items {
			item := &order.Items[i]
			if item.OrderStatus == models.ItemFailed {
				item.OrderStatus = models.ItemPending
			}
			if item.OrderStatus == models.ItemCancelled {
				continue
			}
			if err := tx.Save(item).Error; err != nil {
				return err
			}
			key := inventory.VariantKey{ProductID: item.ProductID, Size: item.Size, Color: item.Color}
			if err := ledger.Reserve(ctx, key, item.Quantity); err != nil {
				return err
			}
		}

		if order.CouponID != nil {
			engine := &coupon.Engine{DB: tx, Sessions: s.Coupons.Sessions}
			if err := engine.Commit(ctx, *order.CouponID, userID); err != nil {
				return err
			}
		}

		if err := tx.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}

		order.PaymentStatus = models.PaymentCompleted
		if order.OrderStatus == models.OrderFailed {
			order.OrderStatus = models.OrderPending
		}
		order.RetryLocked = false
		return tx.Save(order).Error
	})
	if err != nil {
		return err
	}
	s.Coupons.Clear(userID)
	s.publish(ctx, events.PaymentCompleted, order)
	return nil
}

// RetryPayment mints a fresh gateway intent for an unpaid order. Allowed
// while the order has not expired, is not locked and has retries left.
func (s *Service) RetryPayment(ctx context.Context, userID uint, orderID string) (*gateway.Intent, error) {
	order, err := s.load(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != models.PaymentRazorpay {
		return nil, ErrNotGatewayOrder
	}
	if order.PaymentStatus == models.PaymentCompleted {
		return nil, ErrAlreadyPaid
	}
	if err := s.expireIfStale(ctx, order); err != nil {
		return nil, err
	}
	if order.RetryLocked {
		return nil, ErrRetryLocked
	}
	if order.RetryCount >= MaxPaymentRetries {
		if err := s.DB.WithContext(ctx).Model(order).Update("retry_locked", true).Error; err != nil {
			return nil, err
		}
		return nil, ErrRetryLimit
	}

	intent, err := s.Gateway.CreateIntent(ctx, order.FinalPrice, "INR", "retry_"+order.OrderID)
	if err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(order).Update("retry_count", order.RetryCount+1).Error; err != nil {
		return nil, err
	}
	return intent, nil
}

// MarkPaymentFailed records a client-reported gateway failure. Order and
// items fail together so the admin book and sales figures stop seeing them;
// the order stays retryable until expiry or the retry cap locks it, and a
// later verified payment revives it.
func (s *Service) MarkPaymentFailed(ctx context.Context, userID uint, orderID string) error {
	order, err := s.load(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if order.PaymentMethod != models.PaymentRazorpay {
		return ErrNotGatewayOrder
	}
	if order.PaymentStatus == models.PaymentCompleted {
		return ErrAlreadyPaid
	}

	locked := order.RetryCount >= MaxPaymentRetries
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.OrderItem{}).
			Where("order_ref = ?", order.ID).
			Update("order_status", models.ItemFailed).Error; err != nil {
			return err
		}
		updates := map[string]interface{}{
			"payment_status": models.PaymentFailed,
			"order_status":   models.OrderFailed,
		}
		if locked {
			updates["retry_locked"] = true
		}
		return tx.Model(order).Updates(updates).Error
	})
	if err != nil {
		return err
	}
	order.PaymentStatus = models.PaymentFailed
	order.OrderStatus = models.OrderFailed
	if locked {
		order.RetryLocked = true
	}
	for i := range order.Items {
		order.Items[i].OrderStatus = models.ItemFailed
	}
	s.publish(ctx, events.PaymentFailed, order)
	return nil
}

func (s *Service) publish(ctx context.Context, typ events.Type, order *models.Order) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, events.OrderEvent{
		Type:    typ,
		OrderID: order.OrderID,
		UserID:  order.UserID,
		Amount:  order.FinalPrice,
	}); err != nil {
		logging.FromContext(ctx).Warn("publish_order_event_failed",
			"type", string(typ), "order_id", order.OrderID, "error", err)
	}
}

func findItem(order *models.Order, itemID uint) *models.OrderItem {
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			return &order.Items[i]
		}
	}
	return nil
}

// recomputeTotals rebuilds the stored money fields from payable items only,
// so a cancelled line's charge and coupon share drop out together.
func recomputeTotals(order *models.Order) {
	itemsTotal := decimal.Zero
	discount := decimal.Zero
	for _, it := range order.Items {
		switch it.OrderStatus {
		case models.ItemCancelled, models.ItemFailed, models.ItemReturned:
			continue
		}
		itemsTotal = itemsTotal.Add(it.OfferPrice)
		discount = discount.Add(it.CouponShare)
	}
	order.ItemsTotal = itemsTotal.Round(2)
	order.Discount = discount.Round(2)
	order.FinalPrice = decimal.Max(itemsTotal.Sub(discount), decimal.Zero).Round(2)
}
