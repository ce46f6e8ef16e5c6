package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/elfein/storefront/internal/logging"
	"github.com/elfein/storefront/internal/models"
)

type AdminCouponHandler struct {
	DB *gorm.DB
}

type couponRequest struct {
	Code            string          `json:"code"`
	Description     string          `json:"description"`
	DiscountType    string          `json:"discount_type"`
	DiscountValue   decimal.Decimal `json:"discount_value"`
	MinimumPurchase decimal.Decimal `json:"minimum_purchase"`
	MaximumDiscount decimal.Decimal `json:"maximum_discount"`
	StartingDate    time.Time       `json:"starting_date"`
	ValidUntil      time.Time       `json:"valid_until"`
	UsageLimit      int             `json:"usage_limit"`
}

func (r *couponRequest) validate() error {
	r.Code = strings.ToUpper(strings.TrimSpace(r.Code))
	if r.Code == "" {
		return errors.New("coupon code required")
	}
	switch models.DiscountType(r.DiscountType) {
	case models.DiscountFixed:
		if !r.DiscountValue.IsPositive() {
			return errors.New("discount value must be positive")
		}
	case models.DiscountPercentage:
		if !r.DiscountValue.IsPositive() || r.DiscountValue.GreaterThan(decimal.NewFromInt(90)) {
			return errors.New("percentage discount must be between 1 and 90")
		}
	default:
		return errors.New("discount type must be fixed or percentage")
	}
	if r.StartingDate.IsZero() || r.ValidUntil.IsZero() || r.ValidUntil.Before(r.StartingDate) {
		return errors.New("valid date window required")
	}
	if r.UsageLimit < 0 {
		return errors.New("usage limit cannot be negative")
	}
	return nil
}

func (h *AdminCouponHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	var coupons []models.Coupon
	err := h.DB.WithContext(ctx).
		Where("is_deleted = ?", false).
		Order("created_at DESC").
		Find(&coupons).Error
	if err != nil {
		logging.FromContext(ctx).Error("list_coupons_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, coupons)
}

func (h *AdminCouponHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.create_coupon")

	var req couponRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_coupon_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := req.validate(); err != nil {
		l.Warn("create_coupon_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// the code must be unique among live coupons only; a deleted coupon
	// frees its code for reuse
	var existing models.Coupon
	err := h.DB.WithContext(ctx).
		Where("code = ? AND is_deleted = ?", req.Code, false).
		First(&existing).Error
	if err == nil {
		return echo.NewHTTPError(http.StatusConflict, "coupon code already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		l.Error("create_coupon_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	coupon := models.Coupon{
		Code:            req.Code,
		Description:     req.Description,
		DiscountType:    models.DiscountType(req.DiscountType),
		DiscountValue:   req.DiscountValue,
		MinimumPurchase: req.MinimumPurchase,
		MaximumDiscount: req.MaximumDiscount,
		StartingDate:    req.StartingDate,
		ValidUntil:      req.ValidUntil,
		UsageLimit:      req.UsageLimit,
		IsActive:        true,
	}
	if err := h.DB.WithContext(ctx).Create(&coupon).Error; err != nil {
		l.Error("create_coupon_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("create_coupon_success", "code", coupon.Code)
	return c.JSON(http.StatusCreated, coupon)
}

func (h *AdminCouponHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.update_coupon")

	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var req couponRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := req.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var coupon models.Coupon
	if err := h.DB.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&coupon).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "coupon not found")
	}

	var clash models.Coupon
	err = h.DB.WithContext(ctx).
		Where("code = ? AND is_deleted = ? AND id <> ?", req.Code, false, id).
		First(&clash).Error
	if err == nil {
		return echo.NewHTTPError(http.StatusConflict, "coupon code already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		l.Error("update_coupon_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	coupon.Code = req.Code
	coupon.Description = req.Description
	coupon.DiscountType = models.DiscountType(req.DiscountType)
	coupon.DiscountValue = req.DiscountValue
	coupon.MinimumPurchase = req.MinimumPurchase
	coupon.MaximumDiscount = req.MaximumDiscount
	coupon.StartingDate = req.StartingDate
	coupon.ValidUntil = req.ValidUntil
	coupon.UsageLimit = req.UsageLimit
	if err := h.DB.WithContext(ctx).Save(&coupon).Error; err != nil {
		l.Error("update_coupon_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, coupon)
}

func (h *AdminCouponHandler) Toggle(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var coupon models.Coupon
	if err := h.DB.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&coupon).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "coupon not found")
	}

	coupon.IsActive = !coupon.IsActive
	if err := h.DB.WithContext(ctx).Save(&coupon).Error; err != nil {
		logging.FromContext(ctx).Error("toggle_coupon_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, coupon)
}

func (h *AdminCouponHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	err = h.DB.WithContext(ctx).Model(&models.Coupon{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{"is_deleted": true, "is_active": false}).Error
	if err != nil {
		logging.FromContext(ctx).Error("delete_coupon_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.NoContent(http.StatusNoContent)
}
