// Package pricing computes the effective unit price of a catalog variant.
// Two discounts compete: the variant-level discount price and the
// category-level promotional offer. The customer always gets the lower one.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/elfein/storefront/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Resolver struct {
	DB *gorm.DB
}

var percentBase = decimal.NewFromInt(100)

// Resolve is a pure read: it never mutates state and is called at cart
// render, coupon application and checkout time. A missing product or
// category is not an error, it simply means no category offer applies.
func (r *Resolver) Resolve(ctx context.Context, variant *models.Variant) (decimal.Decimal, error) {
	if variant == nil {
		return decimal.Zero, nil
	}

	categoryPrice := variant.Price

	var product models.Product
	err := r.DB.WithContext(ctx).First(&product, variant.ProductID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return variant.Price, nil
	case err != nil:
		return decimal.Zero, err
	}

	var category models.Category
	err = r.DB.WithContext(ctx).First(&category, product.CategoryID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, err
	}
	if err == nil && offerActive(&category, time.Now()) {
		if category.OfferIsPercent {
			categoryPrice = variant.Price.Sub(variant.Price.Mul(category.OfferPrice).Div(percentBase))
		} else {
			categoryPrice = variant.Price.Sub(category.OfferPrice)
		}
	}

	variantDiscount := variant.Price
	if variant.DiscountPrice.IsPositive() {
		variantDiscount = variant.DiscountPrice
	}

	if categoryPrice.LessThan(variantDiscount) {
		return categoryPrice, nil
	}
	return variantDiscount, nil
}

func offerActive(c *models.Category, now time.Time) bool {
	if !c.OfferPrice.IsPositive() {
		return false
	}
	return c.OfferValidDate == nil || c.OfferValidDate.After(now)
}
