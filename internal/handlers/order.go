package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/elfein/storefront/internal/logging"
	"github.com/elfein/storefront/internal/order"
)

type OrderHandler struct {
	Svc *order.Service
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.list")

	userID, err := GetID(c)
	if err != nil {
		return err
	}

	orders, err := h.Svc.List(ctx, userID)
	if err != nil {
		l.Error("list_orders_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.get")

	userID, err := GetID(c)
	if err != nil {
		return err
	}

	o, err := h.Svc.Get(ctx, userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		l.Error("get_order_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, o)
}

func (h *OrderHandler) CancelItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.cancel_item")

	userID, err := GetID(c)
	if err != nil {
		return err
	}
	itemID, err := paramUint(c, "itemID")
	if err != nil {
		return err
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.CancelItem(ctx, userID, c.Param("id"), itemID, req.Reason); err != nil {
		if errors.Is(err, order.ErrNotFound) || errors.Is(err, order.ErrItemNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		if httpErr := badRequestIf(err, order.ErrNotCancellable); httpErr != nil {
			l.Warn("cancel_item_error", "status", 400, "error", err)
			return httpErr
		}
		l.Error("cancel_item_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("cancel_item_success", "order_id", c.Param("id"), "item_id", itemID)
	return c.NoContent(http.StatusOK)
}

func (h *OrderHandler) CancelOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.cancel_order")

	userID, err := GetID(c)
	if err != nil {
		return err
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.CancelOrder(ctx, userID, c.Param("id"), req.Reason); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		if httpErr := badRequestIf(err, order.ErrNotCancellable); httpErr != nil {
			l.Warn("cancel_order_error", "status", 400, "error", err)
			return httpErr
		}
		l.Error("cancel_order_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("cancel_order_success", "order_id", c.Param("id"))
	return c.NoContent(http.StatusOK)
}

func (h *OrderHandler) RequestReturn(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.request_return")

	userID, err := GetID(c)
	if err != nil {
		return err
	}
	itemID, err := paramUint(c, "itemID")
	if err != nil {
		return err
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.RequestReturn(ctx, userID, c.Param("id"), itemID, req.Reason); err != nil {
		if errors.Is(err, order.ErrNotFound) || errors.Is(err, order.ErrItemNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		if httpErr := badRequestIf(err, order.ErrNotReturnable, order.ErrReasonRequired); httpErr != nil {
			l.Warn("request_return_error", "status", 400, "error", err)
			return httpErr
		}
		l.Error("request_return_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.NoContent(http.StatusOK)
}

func (h *OrderHandler) CancelReturn(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetID(c)
	if err != nil {
		return err
	}
	itemID, err := paramUint(c, "itemID")
	if err != nil {
		return err
	}

	if err := h.Svc.CancelReturnRequest(ctx, userID, c.Param("id"), itemID); err != nil {
		if errors.Is(err, order.ErrNotFound) || errors.Is(err, order.ErrItemNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		if httpErr := badRequestIf(err, order.ErrNoReturnRequest); httpErr != nil {
			return httpErr
		}
		logging.FromContext(ctx).Error("cancel_return_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.NoContent(http.StatusOK)
}

func (h *OrderHandler) Invoice(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetID(c)
	if err != nil {
		return err
	}

	inv, err := h.Svc.InvoiceFor(ctx, userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		logging.FromContext(ctx).Error("invoice_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *OrderHandler) VerifyPayment(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.verify_payment")

	userID, err := GetID(c)
	if err != nil {
		return err
	}

	var req struct {
		GatewayOrderID string `json:"gateway_order_id"`
		PaymentID      string `json:"payment_id"`
		Signature      string `json:"signature"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	err = h.Svc.VerifyPayment(ctx, userID, c.Param("id"), req.GatewayOrderID, req.PaymentID, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		case errors.Is(err, order.ErrInvalidSignature):
			l.Warn("verify_payment_error", "status", 400, "reason", "signature", "order_id", c.Param("id"))
			return echo.NewHTTPError(http.StatusBadRequest, "payment verification failed")
		case errors.Is(err, order.ErrAlreadyPaid), errors.Is(err, order.ErrNotGatewayOrder):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		l.Error("verify_payment_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("verify_payment_success", "order_id", c.Param("id"))
	return c.NoContent(http.StatusOK)
}

func (h *OrderHandler) RetryPayment(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.retry_payment")

	userID, err := GetID(c)
	if err != nil {
		return err
	}

	intent, err := h.Svc.RetryPayment(ctx, userID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, order.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		case errors.Is(err, order.ErrRetryLocked), errors.Is(err, order.ErrRetryLimit),
			errors.Is(err, order.ErrAlreadyPaid), errors.Is(err, order.ErrNotGatewayOrder):
			l.Warn("retry_payment_error", "status", 400, "order_id", c.Param("id"), "error", err)
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		l.Error("retry_payment_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, intent)
}

func (h *OrderHandler) PaymentFailed(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetID(c)
	if err != nil {
		return err
	}

	if err := h.Svc.MarkPaymentFailed(ctx, userID, c.Param("id")); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		if httpErr := badRequestIf(err, order.ErrAlreadyPaid, order.ErrNotGatewayOrder); httpErr != nil {
			return httpErr
		}
		logging.FromContext(ctx).Error("payment_failed_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.NoContent(http.StatusOK)
}
