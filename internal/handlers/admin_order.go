package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/elfein/storefront/internal/logging"
	"github.com/elfein/storefront/internal/models"
	"github.com/elfein/storefront/internal/order"
)

type AdminOrderHandler struct {
	Svc *order.Service
}

func (h *AdminOrderHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.list_orders")

	filter := order.ListFilter{
		Status: models.OrderStatus(c.QueryParam("status")),
		Search: c.QueryParam("q"),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "size"),
	}

	orders, total, err := h.Svc.ListOrders(ctx, filter)
	if err != nil {
		l.Error("list_orders_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "orders": orders})
}

func (h *AdminOrderHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	o, err := h.Svc.Get(ctx, 0, c.Param("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		logging.FromContext(ctx).Error("admin_get_order_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, o)
}

func (h *AdminOrderHandler) UpdateItemStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.update_item_status")

	itemID, err := paramUint(c, "itemID")
	if err != nil {
		return err
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil || req.Status == "" {
		l.Warn("update_item_status_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "status required")
	}

	err = h.Svc.UpdateItemStatus(ctx, c.Param("id"), itemID, models.ItemStatus(req.Status))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) || errors.Is(err, order.ErrItemNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		if httpErr := badRequestIf(err, order.ErrInvalidTransition, order.ErrTerminalStatus); httpErr != nil {
			l.Warn("update_item_status_error", "status", 400, "error", err)
			return httpErr
		}
		l.Error("update_item_status_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("update_item_status_success", "order_id", c.Param("id"), "item_id", itemID, "new_status", req.Status)
	return c.NoContent(http.StatusOK)
}

func (h *AdminOrderHandler) ReturnQueue(c echo.Context) error {
	ctx := c.Request().Context()

	entries, err := h.Svc.ReturnQueue(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("return_queue_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *AdminOrderHandler) HandleReturn(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.handle_return")

	itemID, err := paramUint(c, "itemID")
	if err != nil {
		return err
	}

	var req struct {
		Decision string `json:"decision"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Decision != "approve" && req.Decision != "reject" {
		return echo.NewHTTPError(http.StatusBadRequest, order.ErrReturnDecision.Error())
	}

	err = h.Svc.HandleReturn(ctx, c.Param("id"), itemID, req.Decision == "approve")
	if err != nil {
		if errors.Is(err, order.ErrNotFound) || errors.Is(err, order.ErrItemNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		if httpErr := badRequestIf(err, order.ErrNoReturnRequest); httpErr != nil {
			l.Warn("handle_return_error", "status", 400, "error", err)
			return httpErr
		}
		l.Error("handle_return_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("handle_return_success", "order_id", c.Param("id"), "item_id", itemID, "decision", req.Decision)
	return c.NoContent(http.StatusOK)
}
