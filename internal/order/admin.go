package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/elfein/storefront/internal/events"
	"github.com/elfein/storefront/internal/inventory"
	"github.com/elfein/storefront/internal/models"
	"github.com/elfein/storefront/internal/wallet"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrReturnDecision = errors.New("return decision must be approve or reject")

type ListFilter struct {
	Status models.OrderStatus
	Search string
	Page   int
	Limit  int
}

// ListOrders is the admin order book. Failed orders and gateway orders
// still waiting on payment are hidden; they are not actionable.
func (s *Service) ListOrders(ctx context.Context, f ListFilter) ([]models.Order, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}

	q := s.DB.WithContext(ctx).Model(&models.Order{}).
		Where("order_status <> ?", models.OrderFailed).
		Where("NOT (payment_method = ? AND payment_status = ?)", models.PaymentRazorpay, models.PaymentPending)
	if f.Status != "" {
		q = q.Where("order_status = ?", f.Status)
	}
	if f.Search != "" {
		like := "%" + strings.TrimSpace(f.Search) + "%"
		q = q.Where("order_id LIKE ? OR addr_name LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	err := q.Preload("Items").
		Order("created_at DESC").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateItemStatus moves one item along the fulfillment track. Delivery
// stamps the item and, once the whole order rolls up to delivered, settles
// a COD payment.
func (s *Service) UpdateItemStatus(ctx context.Context, orderID string, itemID uint, next models.ItemStatus) error {
	order, err := s.load(ctx, 0, orderID)
	if err != nil {
		return err
	}
	item := findItem(order, itemID)
	if item == nil {
		return ErrItemNotFound
	}
	if err := ValidateAdminTransition(item.OrderStatus, next); err != nil {
		return err
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item.OrderStatus = next
		if next == models.ItemDelivered {
			now := s.clock()
			item.DeliveredOn = &now
		}
		if next == models.ItemCancelled {
			ledger := &inventory.Ledger{DB: tx}
			key := inventory.VariantKey{ProductID: item.ProductID, Size: item.Size, Color: item.Color}
			if err := ledger.Release(ctx, key, item.Quantity); err != nil && !errors.Is(err, inventory.ErrNotFound) {
				return err
			}
		}
		if err := tx.Save(item).Error; err != nil {
			return err
		}

		order.OrderStatus = Rollup(order.Items)
		if order.OrderStatus == models.OrderDelivered {
			if order.DeliveredOn == nil {
				now := s.clock()
				order.DeliveredOn = &now
			}
			if order.PaymentMethod == models.PaymentCOD && order.PaymentStatus == models.PaymentPending {
				order.PaymentStatus = models.PaymentCompleted
			}
		}
		if next == models.ItemCancelled {
			recomputeTotals(order)
		}
		return tx.Save(order).Error
	})
}

// ReturnEntry pairs a requested item with its order for the admin queue.
type ReturnEntry struct {
	Order models.Order     `json:"order"`
	Item  models.OrderItem `json:"item"`
}

func (s *Service) ReturnQueue(ctx context.Context) ([]ReturnEntry, error) {
	var items []models.OrderItem
	err := s.DB.WithContext(ctx).
		Where("order_status = ?", models.ItemReturnRequested).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	entries := make([]ReturnEntry, 0, len(items))
	for _, item := range items {
		var order models.Order
		if err := s.DB.WithContext(ctx).First(&order, item.OrderRef).Error; err != nil {
			return nil, err
		}
		entries = append(entries, ReturnEntry{Order: order, Item: item})
	}
	return entries, nil
}

// HandleReturn resolves a return request. Approval brings the stock back
// and refunds the line's charge minus its coupon share to the wallet; a
// rejected item keeps its delivery record and shows as delivered.
func (s *Service) HandleReturn(ctx context.Context, orderID string, itemID uint, approve bool) error {
	order, err := s.load(ctx, 0, orderID)
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

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !approve {
			item.OrderStatus = models.ItemRejected
			if err := tx.Save(item).Error; err != nil {
				return err
			}
			order.OrderStatus = returnRollup(order.Items)
			return tx.Save(order).Error
		}

		item.OrderStatus = models.ItemReturned
		if err := tx.Save(item).Error; err != nil {
			return err
		}

		ledger := &inventory.Ledger{DB: tx}
		key := inventory.VariantKey{ProductID: item.ProductID, Size: item.Size, Color: item.Color}
		if err := ledger.Release(ctx, key, item.Quantity); err != nil && !errors.Is(err, inventory.ErrNotFound) {
			return err
		}

		refund := item.OfferPrice.Sub(item.CouponShare).Round(2)
		w := &wallet.Service{DB: tx}
		if err := w.Credit(ctx, order.UserID, refund, "Refund for returned item", order.OrderID); err != nil {
			return err
		}

		order.OrderStatus = returnRollup(order.Items)
		if order.OrderStatus == models.OrderReturned {
			order.PaymentStatus = models.PaymentRefunded
		}
		return tx.Save(order).Error
	})
	if err != nil {
		return err
	}
	if approve {
		s.publish(ctx, events.ItemReturned, order)
	}
	return nil
}

// InvoiceLine is an order item as it appears on the customer invoice.
// A rejected return stays "delivered" on paper; the customer kept the item
// and the charge stands.
type InvoiceLine struct {
	ProductName string            `json:"product_name"`
	Size        string            `json:"size"`
	Color       string            `json:"color"`
	Quantity    int               `json:"quantity"`
	BasePrice   decimal.Decimal   `json:"base_price"`
	LineTotal   decimal.Decimal   `json:"line_total"`
	CouponShare decimal.Decimal   `json:"coupon_share"`
	Status      models.ItemStatus `json:"status"`
}

type Invoice struct {
	OrderID        string               `json:"order_id"`
	OrderedAt      time.Time            `json:"ordered_at"`
	Address        models.OrderAddress  `json:"address"`
	PaymentMethod  models.PaymentMethod `json:"payment_method"`
	Lines          []InvoiceLine        `json:"lines"`
	MrpTotal       decimal.Decimal      `json:"mrp_total"`
	MrpDiscount    decimal.Decimal      `json:"mrp_discount"`
	CouponDiscount decimal.Decimal      `json:"coupon_discount"`
	FinalTotal     decimal.Decimal      `json:"final_total"`
}

// InvoiceFor builds invoice data over the payable items only.
func (s *Service) InvoiceFor(ctx context.Context, userID uint, orderID string) (*Invoice, error) {
	order, err := s.load(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	inv := &Invoice{
		OrderID:       order.OrderID,
		OrderedAt:     order.CreatedAt,
		Address:       order.Address,
		PaymentMethod: order.PaymentMethod,
	}
	for _, it := range order.Items {
		switch it.OrderStatus {
		case models.ItemCancelled, models.ItemFailed, models.ItemReturned:
			continue
		}
		status := it.OrderStatus
		if status == models.ItemRejected {
			status = models.ItemDelivered
		}
		mrp := it.BasePrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
		inv.Lines = append(inv.Lines, InvoiceLine{
			ProductName: it.ProductName,
			Size:        it.Size,
			Color:       it.Color,
			Quantity:    it.Quantity,
			BasePrice:   it.BasePrice,
			LineTotal:   it.OfferPrice,
			CouponShare: it.CouponShare,
			Status:      status,
		})
		inv.MrpTotal = inv.MrpTotal.Add(mrp)
		if d := mrp.Sub(it.OfferPrice); d.IsPositive() {
			inv.MrpDiscount = inv.MrpDiscount.Add(d)
		}
		inv.CouponDiscount = inv.CouponDiscount.Add(it.CouponShare)
		inv.FinalTotal = inv.FinalTotal.Add(it.OfferPrice.Sub(it.CouponShare))
	}
	inv.MrpTotal = inv.MrpTotal.Round(2)
	inv.MrpDiscount = inv.MrpDiscount.Round(2)
	inv.CouponDiscount = inv.CouponDiscount.Round(2)
	inv.FinalTotal = inv.FinalTotal.Round(2)
	return inv, nil
}
