package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/elfein/storefront/internal/logging"
	"github.com/elfein/storefront/internal/models"
	"github.com/elfein/storefront/internal/util"
)

type AdminCustomerHandler struct {
	DB *gorm.DB
}

func (h *AdminCustomerHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.list_customers")

	offset, limit := util.Paginate(queryInt(c, "page"), queryInt(c, "size"))

	q := h.DB.WithContext(ctx).Model(&models.User{}).Where("role = ?", "user")
	if search := strings.TrimSpace(c.QueryParam("q")); search != "" {
		like := "%" + search + "%"
		q = q.Where("name LIKE ? OR email LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		l.Error("list_customers_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var users []models.User
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		l.Error("list_customers_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "customers": users})
}

func (h *AdminCustomerHandler) setBlocked(c echo.Context, blocked bool) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.block_customer")

	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var user models.User
	if err := h.DB.WithContext(ctx).Where("id = ? AND role = ?", id, "user").First(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "customer not found")
	}

	user.IsBlocked = blocked
	if err := h.DB.WithContext(ctx).Save(&user).Error; err != nil {
		l.Error("block_customer_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("block_customer_success", "user_id", user.ID, "blocked", blocked)
	return c.JSON(http.StatusOK, user)
}

func (h *AdminCustomerHandler) Block(c echo.Context) error {
	return h.setBlocked(c, true)
}

func (h *AdminCustomerHandler) Unblock(c echo.Context) error {
	return h.setBlocked(c, false)
}
