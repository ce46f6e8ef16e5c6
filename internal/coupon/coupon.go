// Package coupon validates coupon codes against a cart, apportions the
// resulting discount across order lines and keeps the usage counters.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elfein/storefront/internal/models"
	"github.com/elfein/storefront/internal/session"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("invalid coupon")
	ErrNotYetActive   = errors.New("coupon not yet active")
	ErrExpired        = errors.New("coupon expired")
	ErrMinPurchase    = errors.New("minimum purchase not met")
	ErrUsageLimit     = errors.New("coupon usage limit reached")
	ErrAlreadyApplied = errors.New("only one coupon can be applied")
)

const sessionKey = "appliedCoupon"

// Applied is the session-scoped record of a coupon held against a cart. It
// becomes durable only when checkout commits it into an order.
type Applied struct {
	CouponID uint
	Code     string
	Discount decimal.Decimal
}

type Engine struct {
	DB       *gorm.DB
	Sessions *session.Store
}

var percentBase = decimal.NewFromInt(100)

// Apply validates code against the cart total and, on success, remembers
// the applied coupon in the user's session. A second coupon while one is
// held is rejected.
func (e *Engine) Apply(ctx context.Context, userID uint, code string, cartTotal decimal.Decimal) (*Applied, error) {
	if _, ok := e.Sessions.Get(userID, sessionKey); ok {
		return nil, ErrAlreadyApplied
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("%w: code required", ErrNotFound)
	}

	var c models.Coupon
	err := e.DB.WithContext(ctx).
		Where("code = ? AND is_deleted = ? AND is_active = ?", code, false, true).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if c.StartingDate.After(now) {
		return nil, ErrNotYetActive
	}
	if c.ValidUntil.Before(now) {
		return nil, ErrExpired
	}
	if cartTotal.LessThan(c.MinimumPurchase) {
		return nil, fmt.Errorf("%w: minimum purchase %s required", ErrMinPurchase, c.MinimumPurchase.StringFixed(2))
	}

	if c.UsageLimit != 0 {
		used, err := e.redemptionCount(ctx, c.ID, userID)
		if err != nil {
			return nil, err
		}
		if used >= c.UsageLimit {
			return nil, ErrUsageLimit
		}
	}

	applied := &Applied{CouponID: c.ID, Code: c.Code, Discount: Discount(&c, cartTotal)}
	e.Sessions.Put(userID, sessionKey, applied)
	return applied, nil
}

// Discount computes the amount a coupon takes off the given total:
// percentage capped by MaximumDiscount, fixed as-is, rounded to 2 decimals.
func Discount(c *models.Coupon, total decimal.Decimal) decimal.Decimal {
	if c.DiscountType == models.DiscountPercentage {
		d := total.Mul(c.DiscountValue).Div(percentBase).Round(2)
		if c.MaximumDiscount.IsPositive() && d.GreaterThan(c.MaximumDiscount) {
			d = c.MaximumDiscount
		}
		return d
	}
	return c.DiscountValue.Round(2)
}

// Held returns the coupon currently applied in the user's session, if any.
func (e *Engine) Held(userID uint) (*Applied, bool) {
	v, ok := e.Sessions.Get(userID, sessionKey)
	if !ok {
		return nil, false
	}
	a, ok := v.(*Applied)
	return a, ok
}

// Clear drops the session-applied coupon.
func (e *Engine) Clear(userID uint) {
	e.Sessions.Delete(userID, sessionKey)
}

// Revalidate re-checks that a held coupon is still usable; a stale one is
// cleared and reported so the caller can surface a message.
func (e *Engine) Revalidate(ctx context.Context, userID uint) (*Applied, bool, error) {
	a, ok := e.Held(userID)
	if !ok {
		return nil, false, nil
	}

	var c models.Coupon
	err := e.DB.WithContext(ctx).First(&c, a.CouponID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		e.Clear(userID)
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	now := time.Now()
	if c.IsDeleted || !c.IsActive || c.StartingDate.After(now) || c.ValidUntil.Before(now) {
		e.Clear(userID)
		return nil, true, nil
	}
	return a, false, nil
}

// Apportion distributes discount across line totals proportionally, each
// share rounded to 2 decimals. The last line absorbs the residual so the
// shares always sum to exactly the discount; refunds computed from shares
// stay reproducible.
func Apportion(lineTotals []decimal.Decimal, discount decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(lineTotals))
	if len(lineTotals) == 0 || !discount.IsPositive() {
		return shares
	}

	itemsTotal := decimal.Zero
	for _, t := range lineTotals {
		itemsTotal = itemsTotal.Add(t)
	}

	distributed := decimal.Zero
	for i, t := range lineTotals {
		if i == len(lineTotals)-1 {
			shares[i] = discount.Sub(distributed).Round(2)
			break
		}
		share := decimal.Zero
		if itemsTotal.IsPositive() {
			share = t.Div(itemsTotal).Mul(discount).Round(2)
		}
		shares[i] = share
		distributed = distributed.Add(share)
	}
	return shares
}

// Commit makes a session-applied coupon durable: the global used count and
// the user's redemption row both move in one transaction. Called when an
// order is created (cod/wallet) or when a gateway payment verifies.
func (e *Engine) Commit(ctx context.Context, couponID, userID uint) error {
	return e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Coupon
		if err := tx.First(&c, couponID).Error; err != nil {
			return err
		}
		if err := tx.Model(&c).Update("used_count", gorm.Expr("used_count + 1")).Error; err != nil {
			return err
		}

		var red models.CouponRedemption
		err := tx.Where("coupon_id = ? AND user_id = ?", couponID, userID).First(&red).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.CouponRedemption{CouponID: couponID, UserID: userID, Count: 1}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&red).Update("count", gorm.Expr("count + 1")).Error
	})
}

// Revert releases a redemption on whole-order cancellation. Counters floor
// at zero. Single-item cancels and returns deliberately do not revert: the
// coupon was granted against the whole-order total.
func (e *Engine) Revert(ctx context.Context, couponID, userID uint) error {
	return e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Coupon
		err := tx.First(&c, couponID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if c.UsedCount > 0 {
			if err := tx.Model(&c).Update("used_count", c.UsedCount-1).Error; err != nil {
				return err
			}
		}

		var red models.CouponRedemption
		err = tx.Where("coupon_id = ? AND user_id = ?", couponID, userID).First(&red).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if red.Count > 0 {
			return tx.Model(&red).Update("count", red.Count-1).Error
		}
		return nil
	})
}

func (e *Engine) redemptionCount(ctx context.Context, couponID, userID uint) (int, error) {
	var red models.CouponRedemption
	err := e.DB.WithContext(ctx).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		First(&red).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return red.Count, nil
}
