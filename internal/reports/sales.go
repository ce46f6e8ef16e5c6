// Package reports computes admin sales figures and renders the CSV export.
package reports

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/elfein/storefront/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrBadRange    = errors.New("unknown report range")
	ErrCustomDates = errors.New("custom range needs valid from and to dates")
)

type Range string

const (
	RangeDaily   Range = "daily"
	RangeWeekly  Range = "weekly"
	RangeMonthly Range = "monthly"
	RangeYearly  Range = "yearly"
	RangeCustom  Range = "custom"
)

// Summary aggregates only sold goods: cancelled, returned and failed items
// never count toward sales. MRP discount is clamped per item so a markup
// above MRP cannot shrink the figure.
type Summary struct {
	TotalOrders         int             `json:"total_orders"`
	TotalSales          decimal.Decimal `json:"total_sales"`
	TotalOrderItemsSold int             `json:"total_order_items_sold"`
	TotalCouponDiscount decimal.Decimal `json:"total_coupon_discount"`
	TotalMrpDiscount    decimal.Decimal `json:"total_mrp_discount"`
}

type Generator struct {
	DB  *gorm.DB
	Now func() time.Time
}

func (g *Generator) clock() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// DateRange resolves a named range to [from, to). Custom requires both
// bounds; the end date is widened to the end of its day.
func (g *Generator) DateRange(r Range, from, to time.Time) (time.Time, time.Time, error) {
	now := g.clock()
	switch r {
	case RangeDaily:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return start, now, nil
	case RangeWeekly:
		return now.AddDate(0, 0, -7), now, nil
	case RangeMonthly:
		return now.AddDate(0, -1, 0), now, nil
	case RangeYearly:
		return now.AddDate(-1, 0, 0), now, nil
	case RangeCustom:
		if from.IsZero() || to.IsZero() || to.Before(from) {
			return time.Time{}, time.Time{}, ErrCustomDates
		}
		end := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, to.Location())
		return from, end, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s", ErrBadRange, r)
	}
}

func (g *Generator) ordersIn(ctx context.Context, from, to time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := g.DB.WithContext(ctx).
		Preload("Items").
		Where("created_at BETWEEN ? AND ?", from, to).
		Where("order_status <> ?", models.OrderFailed).
		Where("NOT (payment_method = ? AND payment_status = ?)", models.PaymentRazorpay, models.PaymentPending).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

func soldItem(s models.ItemStatus) bool {
	switch s {
	case models.ItemCancelled, models.ItemReturned, models.ItemFailed:
		return false
	}
	return true
}

// Report returns the matched orders together with their summary.
func (g *Generator) Report(ctx context.Context, r Range, from, to time.Time) ([]models.Order, *Summary, error) {
	start, end, err := g.DateRange(r, from, to)
	if err != nil {
		return nil, nil, err
	}
	orders, err := g.ordersIn(ctx, start, end)
	if err != nil {
		return nil, nil, err
	}
	return orders, Summarize(orders), nil
}

func Summarize(orders []models.Order) *Summary {
	sum := &Summary{}
	for _, order := range orders {
		counted := false
		for _, it := range order.Items {
			if !soldItem(it.OrderStatus) {
				continue
			}
			counted = true
			sum.TotalOrderItemsSold += it.Quantity
			sum.TotalSales = sum.TotalSales.Add(it.OfferPrice.Sub(it.CouponShare))
			sum.TotalCouponDiscount = sum.TotalCouponDiscount.Add(it.CouponShare)
			mrp := it.BasePrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
			if d := mrp.Sub(it.OfferPrice); d.IsPositive() {
				sum.TotalMrpDiscount = sum.TotalMrpDiscount.Add(d)
			}
		}
		if counted {
			sum.TotalOrders++
		}
	}
	sum.TotalSales = sum.TotalSales.Round(2)
	sum.TotalCouponDiscount = sum.TotalCouponDiscount.Round(2)
	sum.TotalMrpDiscount = sum.TotalMrpDiscount.Round(2)
	return sum
}

// WriteCSV renders one row per sold item plus a trailing summary block.
func WriteCSV(w io.Writer, orders []models.Order, sum *Summary) error {
	cw := csv.NewWriter(w)
	header := []string{"order_id", "date", "customer", "product", "quantity", "mrp", "charged", "coupon_share", "net", "payment_method", "status"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, order := range orders {
		for _, it := range order.Items {
			if !soldItem(it.OrderStatus) {
				continue
			}
			net := it.OfferPrice.Sub(it.CouponShare).Round(2)
			row := []string{
				order.OrderID,
				order.CreatedAt.Format("2006-01-02"),
				order.Address.Name,
				it.ProductName,
				fmt.Sprint(it.Quantity),
				it.BasePrice.Mul(decimal.NewFromInt(int64(it.Quantity))).StringFixed(2),
				it.OfferPrice.StringFixed(2),
				it.CouponShare.StringFixed(2),
				net.StringFixed(2),
				string(order.PaymentMethod),
				string(it.OrderStatus),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	summaryRows := [][]string{
		{},
		{"total_orders", fmt.Sprint(sum.TotalOrders)},
		{"total_sales", sum.TotalSales.StringFixed(2)},
		{"total_items_sold", fmt.Sprint(sum.TotalOrderItemsSold)},
		{"total_coupon_discount", sum.TotalCouponDiscount.StringFixed(2)},
		{"total_mrp_discount", sum.TotalMrpDiscount.StringFixed(2)},
	}
	for _, row := range summaryRows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
