package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StringList is stored as a JSON text column so the same model works on
// postgres and on the sqlite test database.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
}

type Category struct {
	ID             uint            `gorm:"primaryKey;autoIncrement"     json:"id"`
	Name           string          `gorm:"not null"                     json:"name"`
	Description    string          `json:"description"`
	OfferPrice     decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"offer_price"`
	OfferIsPercent bool            `gorm:"default:false"                json:"offer_is_percent"`
	OfferValidDate *time.Time      `json:"offer_valid_date,omitempty"`
	IsListed       bool            `gorm:"default:true"                 json:"is_listed"`
	IsDeleted      bool            `gorm:"default:false"                json:"is_deleted"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type SubCategory struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	CategoryID uint   `gorm:"index;not null"           json:"category_id"`
	Name       string `gorm:"not null"                 json:"name"`
	IsListed   bool   `gorm:"default:true"             json:"is_listed"`
	IsDeleted  bool   `gorm:"default:false"            json:"is_deleted"`
}

type Product struct {
	ID            uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string     `gorm:"not null"                 json:"name"`
	Description   string     `json:"description"`
	CategoryID    uint       `gorm:"index;not null"           json:"category_id"`
	SubCategoryID uint       `gorm:"index"                    json:"sub_category_id"`
	Images        StringList `gorm:"type:text"                json:"images"`
	IsListed      bool       `gorm:"default:true"             json:"is_listed"`
	IsDeleted     bool       `gorm:"default:false"            json:"is_deleted"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Variant is the purchasable SKU. Stock only moves through the inventory
// service: down on a committed order line, up on cancellation or return.
type Variant struct {
	ID            uint            `gorm:"primaryKey;autoIncrement"             json:"id"`
	ProductID     uint            `gorm:"uniqueIndex:idx_variant_key;not null" json:"product_id"`
	Size          string          `gorm:"uniqueIndex:idx_variant_key"          json:"size"`
	Color         string          `gorm:"uniqueIndex:idx_variant_key"          json:"color"`
	Price         decimal.Decimal `gorm:"type:numeric(12,2);not null"          json:"price"`
	DiscountPrice decimal.Decimal `gorm:"type:numeric(12,2);default:0"         json:"discount_price"`
	Stock         int             `gorm:"not null;default:0;check:stock>=0"    json:"stock"`
	IsListed      bool            `gorm:"default:true"                         json:"is_listed"`
}

type CartItem struct {
	ID         uint            `gorm:"primaryKey;autoIncrement"   json:"id"`
	UserID     uint            `gorm:"index;not null"             json:"user_id"`
	ProductID  uint            `gorm:"not null"                   json:"product_id"`
	Size       string          `json:"size"`
	Color      string          `json:"color"`
	Quantity   int             `gorm:"default:1;check:quantity>0" json:"quantity"`
	Price      decimal.Decimal `gorm:"type:numeric(12,2)"         json:"price"`
	TotalPrice decimal.Decimal `gorm:"type:numeric(12,2)"         json:"total_price"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type WishlistItem struct {
	ID        uint `gorm:"primaryKey;autoIncrement"                       json:"id"`
	UserID    uint `gorm:"uniqueIndex:idx_wishlist_user_product;not null" json:"user_id"`
	ProductID uint `gorm:"uniqueIndex:idx_wishlist_user_product;not null" json:"product_id"`
}

type DiscountType string

const (
	DiscountFixed      DiscountType = "fixed"
	DiscountPercentage DiscountType = "percentage"
)

type Coupon struct {
	ID              uint            `gorm:"primaryKey;autoIncrement"    json:"id"`
	Code            string          `gorm:"index;not null"              json:"code"`
	Description     string          `json:"description"`
	DiscountType    DiscountType    `gorm:"not null;default:fixed"      json:"discount_type"`
	DiscountValue   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discount_value"`
	MinimumPurchase decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"minimum_purchase"`
	MaximumDiscount decimal.Decimal `gorm:"type:numeric(12,2)"          json:"maximum_discount"`
	StartingDate    time.Time       `gorm:"not null"                    json:"starting_date"`
	ValidUntil      time.Time       `gorm:"not null"                    json:"valid_until"`
	UsageLimit      int             `gorm:"default:1"                   json:"usage_limit"`
	UsedCount       int             `gorm:"default:0"                   json:"used_count"`
	IsActive        bool            `gorm:"default:true"                json:"is_active"`
	IsDeleted       bool            `gorm:"default:false"               json:"is_deleted"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type CouponRedemption struct {
	ID       uint `gorm:"primaryKey;autoIncrement"                        json:"id"`
	CouponID uint `gorm:"uniqueIndex:idx_redemption_coupon_user;not null" json:"coupon_id"`
	UserID   uint `gorm:"uniqueIndex:idx_redemption_coupon_user;not null" json:"user_id"`
	Count    int  `gorm:"default:0"                                       json:"count"`
}

type PaymentMethod string

const (
	PaymentCOD      PaymentMethod = "cod"
	PaymentWallet   PaymentMethod = "wallet"
	PaymentRazorpay PaymentMethod = "razorpay"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type ItemStatus string

const (
	ItemPending         ItemStatus = "pending"
	ItemShipped         ItemStatus = "shipped"
	ItemOutForDelivery  ItemStatus = "out for delivery"
	ItemDelivered       ItemStatus = "delivered"
	ItemCancelled       ItemStatus = "cancelled"
	ItemReturnRequested ItemStatus = "returnRequested"
	ItemReturned        ItemStatus = "returned"
	ItemRejected        ItemStatus = "rejected"
	ItemFailed          ItemStatus = "failed"
)

type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderShipped        OrderStatus = "shipped"
	OrderOutForDelivery OrderStatus = "out for delivery"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
	OrderReturned       OrderStatus = "returned"
	OrderFailed         OrderStatus = "failed"
)

// OrderAddress is a denormalized snapshot; editing the address book after
// checkout must not rewrite order history.
type OrderAddress struct {
	Name     string `json:"name"`
	Mobile   string `json:"mobile"`
	Line     string `json:"line"`
	Locality string `json:"locality"`
	City     string `json:"city"`
	State    string `json:"state"`
	Pincode  string `json:"pincode"`
}

type Order struct {
	ID             uint            `gorm:"primaryKey;autoIncrement"      json:"-"`
	OrderID        string          `gorm:"uniqueIndex;not null"          json:"order_id"`
	UserID         uint            `gorm:"index;not null"                json:"user_id"`
	Items          []OrderItem     `gorm:"foreignKey:OrderRef"           json:"items"`
	ItemsTotal     decimal.Decimal `gorm:"type:numeric(12,2);not null"   json:"items_total"`
	Discount       decimal.Decimal `gorm:"type:numeric(12,2);default:0"  json:"discount"`
	ShippingCharge decimal.Decimal `gorm:"type:numeric(12,2);default:0"  json:"shipping_charge"`
	FinalPrice     decimal.Decimal `gorm:"type:numeric(12,2);not null"   json:"final_price"`
	Address        OrderAddress    `gorm:"embedded;embeddedPrefix:addr_" json:"address"`
	PaymentMethod  PaymentMethod   `gorm:"not null;default:cod"          json:"payment_method"`
	PaymentStatus  PaymentStatus   `gorm:"not null;default:pending"      json:"payment_status"`
	OrderStatus    OrderStatus     `gorm:"not null;default:pending"      json:"order_status"`
	CouponID       *uint           `gorm:"index"                         json:"coupon_id,omitempty"`
	RetryCount     int             `gorm:"default:0"                     json:"retry_count"`
	RetryLocked    bool            `gorm:"default:false"                 json:"retry_locked"`
	DeliveredOn    *time.Time      `json:"delivered_on,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.OrderID == "" {
		o.OrderID = uuid.New().String()
	}
	return nil
}

// OrderItem snapshots name, images and prices at order time. OfferPrice is
// the charged line total (unit price * quantity); CouponShare is this line's
// slice of the order-level coupon discount.
type OrderItem struct {
	ID                 uint            `gorm:"primaryKey;autoIncrement"     json:"id"`
	OrderRef           uint            `gorm:"index;not null"               json:"-"`
	ProductID          uint            `gorm:"not null"                     json:"product_id"`
	ProductName        string          `gorm:"not null"                     json:"product_name"`
	ProductImages      StringList      `gorm:"type:text"                    json:"product_images"`
	Size               string          `json:"size"`
	Color              string          `json:"color"`
	BasePrice          decimal.Decimal `gorm:"type:numeric(12,2)"           json:"base_price"`
	Price              decimal.Decimal `gorm:"type:numeric(12,2)"           json:"price"`
	Quantity           int             `gorm:"not null"                     json:"quantity"`
	OfferPrice         decimal.Decimal `gorm:"type:numeric(12,2);not null"  json:"offer_price"`
	CouponShare        decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"coupon_share"`
	OrderStatus        ItemStatus      `gorm:"not null;default:pending"     json:"order_status"`
	ReturnReason       string          `gorm:"default:''"                   json:"return_reason"`
	CancellationReason string          `gorm:"default:''"                   json:"cancellation_reason"`
	DeliveredOn        *time.Time      `json:"delivered_on,omitempty"`
}

type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

type Wallet struct {
	ID      uint            `gorm:"primaryKey;autoIncrement"     json:"id"`
	UserID  uint            `gorm:"uniqueIndex;not null"         json:"user_id"`
	Balance decimal.Decimal `gorm:"type:numeric(12,2);default:0" json:"balance"`
}

type WalletTransaction struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"    json:"id"`
	WalletID    uint            `gorm:"index;not null"              json:"wallet_id"`
	Type        TransactionType `gorm:"not null"                    json:"type"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Description string          `json:"description"`
	OrderID     string          `gorm:"default:''"                  json:"order_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Address struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID   uint   `gorm:"index;not null"           json:"user_id"`
	Name     string `gorm:"not null"                 json:"name"`
	Mobile   string `json:"mobile"`
	Line     string `gorm:"not null"                 json:"line"`
	Locality string `json:"locality"`
	City     string `json:"city"`
	State    string `json:"state"`
	Pincode  string `json:"pincode"`
}

func (a Address) Snapshot() OrderAddress {
	return OrderAddress{
		Name:     a.Name,
		Mobile:   a.Mobile,
		Line:     a.Line,
		Locality: a.Locality,
		City:     a.City,
		State:    a.State,
		Pincode:  a.Pincode,
	}
}

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"not null"                 json:"name"`
	Email        string    `gorm:"uniqueIndex;not null"     json:"email"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	Role         string    `gorm:"not null;default:user"    json:"role"`
	IsBlocked    bool      `gorm:"default:false"            json:"is_blocked"`
	CreatedAt    time.Time `json:"created_at"`
}

// All lists every persisted model for automigration.
func All() []interface{} {
	return []interface{}{
		&Category{}, &SubCategory{}, &Product{}, &Variant{},
		&CartItem{}, &WishlistItem{},
		&Coupon{}, &CouponRedemption{},
		&Order{}, &OrderItem{},
		&Wallet{}, &WalletTransaction{},
		&Address{}, &User{},
	}
}
