// Package cart merges stored cart lines with live catalog availability and
// current resolved prices. Unavailable lines are flagged for the customer
// to remove, never silently dropped.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/elfein/storefront/internal/models"
	"github.com/elfein/storefront/internal/pricing"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const MaxQtyPerProduct = 5

var (
	ErrValidation        = errors.New("validation")
	ErrNotFound          = errors.New("not found")
	ErrUnavailable       = errors.New("product unavailable")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrMaxQuantity       = errors.New("maximum quantity reached")
)

type Service struct {
	DB      *gorm.DB
	Pricing *pricing.Resolver
}

// Line is a cart item joined with the live variant and resolved price.
type Line struct {
	Item         models.CartItem `json:"item"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image,omitempty"`
	BasePrice    decimal.Decimal `json:"base_price"`
	Price        decimal.Decimal `json:"price"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	Stock        int             `json:"stock"`
	MaxQty       int             `json:"max_qty"`
	Unavailable  bool            `json:"unavailable"`
}

// Load joins every cart line with the live variant keyed by
// {product, size, color, listed} and the current resolved price.
func (s *Service) Load(ctx context.Context, userID uint) ([]Line, error) {
	var items []models.CartItem
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}

	lines := make([]Line, 0, len(items))
	for _, item := range items {
		line := Line{Item: item, MaxQty: MaxQtyPerProduct}

		var product models.Product
		err := s.DB.WithContext(ctx).First(&product, item.ProductID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err == nil {
			line.ProductName = product.Name
			if len(product.Images) > 0 {
				line.ProductImage = product.Images[0]
			}
			line.Unavailable = product.IsDeleted || !product.IsListed
		} else {
			line.Unavailable = true
		}

		var variant models.Variant
		err = s.DB.WithContext(ctx).
			Where("product_id = ? AND size = ? AND color = ? AND is_listed = ?",
				item.ProductID, item.Size, item.Color, true).
			First(&variant).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// keep the stored price so the customer sees what they added
			line.BasePrice = item.Price
			line.Price = item.Price
			line.TotalPrice = item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
			line.Unavailable = true
		case err != nil:
			return nil, err
		default:
			final, err := s.Pricing.Resolve(ctx, &variant)
			if err != nil {
				return nil, err
			}
			line.BasePrice = variant.Price
			line.Price = final
			line.TotalPrice = final.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
			line.Stock = variant.Stock
			if variant.Stock < MaxQtyPerProduct {
				line.MaxQty = variant.Stock
			}
		}

		lines = append(lines, line)
	}
	return lines, nil
}

// Total sums the resolved line totals of available lines; it is the amount
// coupon eligibility is judged against.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.Unavailable {
			continue
		}
		total = total.Add(l.TotalPrice)
	}
	return total.Round(2)
}

// AddItem puts one unit of a variant into the cart, re-validating the whole
// product/category chain. Adding an already-carted variant bumps its
// quantity. The product is dropped from the wishlist on success.
func (s *Service) AddItem(ctx context.Context, userID, variantID uint) error {
	var variant models.Variant
	err := s.DB.WithContext(ctx).
		Where("id = ? AND is_listed = ?", variantID, true).
		First(&variant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: variant", ErrUnavailable)
	}
	if err != nil {
		return err
	}
	if variant.Stock <= 0 {
		return fmt.Errorf("%w: variant", ErrUnavailable)
	}

	var product models.Product
	err = s.DB.WithContext(ctx).
		Where("id = ? AND is_listed = ? AND is_deleted = ?", variant.ProductID, true, false).
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: product", ErrUnavailable)
	}
	if err != nil {
		return err
	}

	var category models.Category
	err = s.DB.WithContext(ctx).
		Where("id = ? AND is_listed = ? AND is_deleted = ?", product.CategoryID, true, false).
		First(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: category", ErrUnavailable)
	}
	if err != nil {
		return err
	}

	unitPrice := variant.Price
	if variant.DiscountPrice.IsPositive() {
		unitPrice = variant.DiscountPrice
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.CartItem
		err := tx.Where("user_id = ? AND product_id = ? AND size = ? AND color = ?",
			userID, product.ID, variant.Size, variant.Color).
			First(&item).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.CartItem{
				UserID:     userID,
				ProductID:  product.ID,
				Size:       variant.Size,
				Color:      variant.Color,
				Quantity:   1,
				Price:      unitPrice,
				TotalPrice: unitPrice,
			}).Error
		}
		if err != nil {
			return err
		}

		if item.Quantity >= MaxQtyPerProduct {
			return ErrMaxQuantity
		}
		if item.Quantity+1 > variant.Stock {
			return ErrInsufficientStock
		}

		item.Quantity++
		item.TotalPrice = unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		item.Price = unitPrice
		return tx.Save(&item).Error
	})
	if err != nil {
		return err
	}

	return s.DB.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, product.ID).
		Delete(&models.WishlistItem{}).Error
}

// UpdateQty applies a +1/-1 style delta, re-checking the live variant stock
// at mutation time rather than trusting what the cart page displayed.
func (s *Service) UpdateQty(ctx context.Context, userID, itemID uint, delta int) error {
	var item models.CartItem
	err := s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", itemID, userID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var variant models.Variant
	err = s.DB.WithContext(ctx).
		Where("product_id = ? AND size = ? AND color = ? AND is_listed = ?",
			item.ProductID, item.Size, item.Color, true).
		First(&variant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: variant", ErrUnavailable)
	}
	if err != nil {
		return err
	}

	newQty := item.Quantity + delta
	if newQty < 1 || newQty > MaxQtyPerProduct {
		return fmt.Errorf("%w: quantity out of range", ErrValidation)
	}
	if newQty > variant.Stock {
		return ErrInsufficientStock
	}

	item.Quantity = newQty
	item.TotalPrice = item.Price.Mul(decimal.NewFromInt(int64(newQty))).Round(2)
	return s.DB.WithContext(ctx).Save(&item).Error
}

// ChangeVariant switches a line to another size/color of the same product,
// keeping the quantity if the target variant can cover it.
func (s *Service) ChangeVariant(ctx context.Context, userID, itemID, variantID uint) error {
	var item models.CartItem
	err := s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", itemID, userID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var variant models.Variant
	err = s.DB.WithContext(ctx).
		Where("id = ? AND is_listed = ? AND stock > 0", variantID, true).
		First(&variant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: selected size out of stock", ErrUnavailable)
	}
	if err != nil {
		return err
	}
	if item.Quantity > variant.Stock {
		return ErrInsufficientStock
	}

	unitPrice := variant.Price
	if variant.DiscountPrice.IsPositive() {
		unitPrice = variant.DiscountPrice
	}

	item.Size = variant.Size
	item.Color = variant.Color
	item.Price = unitPrice
	item.TotalPrice = unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
	return s.DB.WithContext(ctx).Save(&item).Error
}

func (s *Service) RemoveItem(ctx context.Context, userID, itemID uint) error {
	return s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", itemID, userID).
		Delete(&models.CartItem{}).Error
}

// Clear deletes the cart wholesale; called after a successful order.
func (s *Service) Clear(ctx context.Context, userID uint) error {
	return s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.CartItem{}).Error
}
