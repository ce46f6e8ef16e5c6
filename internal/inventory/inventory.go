// Package inventory is the stock ledger. Stock is decremented only on a
// validated checkout or payment-success path and incremented only on
// cancellation or return, so every reservation is paired with at most one
// later release.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/elfein/storefront/internal/models"
	"gorm.io/gorm"
)

var (
	ErrOutOfStock = errors.New("out of stock")
	ErrNotFound   = errors.New("variant not found")
)

// VariantKey identifies a SKU the way ordered items store it: by product
// plus the size/color pair.
type VariantKey struct {
	ProductID uint
	Size      string
	Color     string
}

type Ledger struct {
	DB *gorm.DB
}

// Reserve decrements stock by qty. The decrement is guarded in the UPDATE
// itself (stock >= qty AND is_listed) so two concurrent checkouts cannot
// drive stock negative.
func (l *Ledger) Reserve(ctx context.Context, key VariantKey, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reserve qty must be positive, got %d", qty)
	}

	res := l.DB.WithContext(ctx).Model(&models.Variant{}).
		Where("product_id = ? AND size = ? AND color = ? AND is_listed = ? AND stock >= ?",
			key.ProductID, key.Size, key.Color, true, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return l.classify(ctx, key)
	}
	return nil
}

// Release returns qty units to stock. Called on cancellation and on
// return approval.
func (l *Ledger) Release(ctx context.Context, key VariantKey, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("release qty must be positive, got %d", qty)
	}

	res := l.DB.WithContext(ctx).Model(&models.Variant{}).
		Where("product_id = ? AND size = ? AND color = ?", key.ProductID, key.Size, key.Color).
		Update("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Available reports whether the variant is listed with at least qty in stock.
func (l *Ledger) Available(ctx context.Context, key VariantKey, qty int) (bool, error) {
	var count int64
	err := l.DB.WithContext(ctx).Model(&models.Variant{}).
		Where("product_id = ? AND size = ? AND color = ? AND is_listed = ? AND stock >= ?",
			key.ProductID, key.Size, key.Color, true, qty).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (l *Ledger) classify(ctx context.Context, key VariantKey) error {
	var count int64
	err := l.DB.WithContext(ctx).Model(&models.Variant{}).
		Where("product_id = ? AND size = ? AND color = ?", key.ProductID, key.Size, key.Color).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrOutOfStock
}
