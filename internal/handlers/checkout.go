package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/elfein/storefront/internal/cart"
	"github.com/elfein/storefront/internal/checkout"
	"github.com/elfein/storefront/internal/coupon"
	"github.com/elfein/storefront/internal/inventory"
	"github.com/elfein/storefront/internal/logging"
	"github.com/elfein/storefront/internal/models"
	"github.com/elfein/storefront/internal/wallet"
)

type CheckoutHandler struct {
	Svc     *checkout.Orchestrator
	Cart    *cart.Service
	Coupons *coupon.Engine
}

func (h *CheckoutHandler) GetSummary(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.summary")

	userID, err := GetID(c)
	if err != nil {
		return err
	}

	sum, err := h.Svc.Summary(ctx, userID)
	if err != nil {
		if errors.Is(err, checkout.ErrCartEmpty) {
			return echo.NewHTTPError(http.StatusBadRequest, "cart is empty")
		}
		l.Error("summary_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *CheckoutHandler) ApplyCoupon(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.apply_coupon")

	userID, err := GetID(c)
	if err != nil {
		return err
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "coupon code required")
	}

	lines, err := h.Cart.Load(ctx, userID)
	if err != nil {
		l.Error("apply_coupon_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	applied, err := h.Coupons.Apply(ctx, userID, req.Code, cart.Total(lines))
	if err != nil {
		if httpErr := badRequestIf(err,
			coupon.ErrNotFound, coupon.ErrNotYetActive, coupon.ErrExpired,
			coupon.ErrMinPurchase, coupon.ErrUsageLimit, coupon.ErrAlreadyApplied,
		); httpErr != nil {
			l.Warn("apply_coupon_error", "status", 400, "code", req.Code, "error", err)
			return httpErr
		}
		l.Error("apply_coupon_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("apply_coupon_success", "code", applied.Code)
	return c.JSON(http.StatusOK, applied)
}

func (h *CheckoutHandler) RemoveCoupon(c echo.Context) error {
	userID, err := GetID(c)
	if err != nil {
		return err
	}
	h.Coupons.Clear(userID)
	return c.NoContent(http.StatusNoContent)
}

func (h *CheckoutHandler) PlaceOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.place_order")

	userID, err := GetID(c)
	if err != nil {
		return err
	}

	var req struct {
		AddressIndex  int    `json:"address_index"`
		PaymentMethod string `json:"payment_method"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("place_order_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	result, err := h.Svc.PlaceOrder(ctx, userID, req.AddressIndex, models.PaymentMethod(req.PaymentMethod))
	if err != nil {
		var stockErr *checkout.StockError
		switch {
		case errors.As(err, &stockErr):
			l.Warn("place_order_error", "status", 409, "reason", "stock", "error", err)
			return echo.NewHTTPError(http.StatusConflict, stockErr.Error())
		case errors.Is(err, checkout.ErrCartEmpty),
			errors.Is(err, checkout.ErrInvalidAddress),
			errors.Is(err, checkout.ErrPaymentMethod):
			l.Warn("place_order_error", "status", 400, "error", err)
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, wallet.ErrInsufficientBalance):
			l.Warn("place_order_error", "status", 402, "reason", "wallet balance", "error", err)
			return echo.NewHTTPError(http.StatusPaymentRequired, "insufficient wallet balance")
		case errors.Is(err, inventory.ErrOutOfStock):
			l.Warn("place_order_error", "status", 409, "reason", "stock", "error", err)
			return echo.NewHTTPError(http.StatusConflict, "out of stock")
		}
		l.Error("place_order_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("place_order_success", "order_id", result.OrderID, "method", string(result.PaymentMethod))
	return c.JSON(http.StatusCreated, result)
}
