package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/elfein/storefront/internal/cart"
	"github.com/elfein/storefront/internal/logging"
	"github.com/elfein/storefront/internal/models"
)

type CartHandler struct {
	Svc *cart.Service
}

func (h *CartHandler) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.get_cart")

	userID, err := GetID(c)
	if err != nil {
		return err
	}

	lines, err := h.Svc.Load(ctx, userID)
	if err != nil {
		l.Error("get_cart_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items": lines,
		"total": cart.Total(lines),
	})
}

func (h *CartHandler) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.add_to_cart")

	userID, err := GetID(c)
	if err != nil {
		return err
	}

	var req struct {
		VariantID uint `json:"variant_id"`
	}
	if err := c.Bind(&req); err != nil || req.VariantID == 0 {
		l.Warn("add_to_cart_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.AddItem(ctx, userID, req.VariantID); err != nil {
		if httpErr := badRequestIf(err, cart.ErrUnavailable, cart.ErrInsufficientStock, cart.ErrMaxQuantity, cart.ErrNotFound); httpErr != nil {
			l.Warn("add_to_cart_error", "status", 400, "error", err)
			return httpErr
		}
		l.Error("add_to_cart_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("add_to_cart_success", "variant_id", req.VariantID)
	return c.NoContent(http.StatusCreated)
}

func (h *CartHandler) UpdateQuantity(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.update_quantity")

	userID, err := GetID(c)
	if err != nil {
		return err
	}
	itemID, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Delta int `json:"delta"`
	}
	if err := c.Bind(&req); err != nil || req.Delta == 0 {
		l.Warn("update_quantity_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.UpdateQty(ctx, userID, itemID, req.Delta); err != nil {
		if httpErr := badRequestIf(err, cart.ErrValidation, cart.ErrInsufficientStock, cart.ErrMaxQuantity, cart.ErrNotFound); httpErr != nil {
			l.Warn("update_quantity_error", "status", 400, "error", err)
			return httpErr
		}
		l.Error("update_quantity_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.NoContent(http.StatusOK)
}

func (h *CartHandler) ChangeVariant(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.change_variant")

	userID, err := GetID(c)
	if err != nil {
		return err
	}
	itemID, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		VariantID uint `json:"variant_id"`
	}
	if err := c.Bind(&req); err != nil || req.VariantID == 0 {
		l.Warn("change_variant_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.ChangeVariant(ctx, userID, itemID, req.VariantID); err != nil {
		if httpErr := badRequestIf(err, cart.ErrUnavailable, cart.ErrInsufficientStock, cart.ErrNotFound); httpErr != nil {
			l.Warn("change_variant_error", "status", 400, "error", err)
			return httpErr
		}
		l.Error("change_variant_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.NoContent(http.StatusOK)
}

func (h *CartHandler) RemoveItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.remove_item")

	userID, err := GetID(c)
	if err != nil {
		return err
	}
	itemID, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	if err := h.Svc.RemoveItem(ctx, userID, itemID); err != nil {
		l.Error("remove_item_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.NoContent(http.StatusNoContent)
}

type WishlistHandler struct {
	DB *gorm.DB
}

func (h *WishlistHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := GetID(c)
	if err != nil {
		return err
	}

	var items []models.WishlistItem
	if err := h.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&items).Error; err != nil {
		logging.FromContext(ctx).Error("wishlist_list_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, items)
}

func (h *WishlistHandler) Add(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := GetID(c)
	if err != nil {
		return err
	}

	var req struct {
		ProductID uint `json:"product_id"`
	}
	if err := c.Bind(&req); err != nil || req.ProductID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	item := models.WishlistItem{UserID: userID, ProductID: req.ProductID}
	err = h.DB.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, req.ProductID).
		FirstOrCreate(&item).Error
	if err != nil {
		logging.FromContext(ctx).Error("wishlist_add_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *WishlistHandler) Remove(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := GetID(c)
	if err != nil {
		return err
	}
	productID, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	err = h.DB.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.WishlistItem{}).Error
	if err != nil {
		logging.FromContext(ctx).Error("wishlist_remove_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.NoContent(http.StatusNoContent)
}
