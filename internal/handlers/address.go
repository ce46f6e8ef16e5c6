package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/elfein/storefront/internal/logging"
	"github.com/elfein/storefront/internal/models"
)

type AddressHandler struct {
	DB *gorm.DB
}

type addressRequest struct {
	Name     string `json:"name"`
	Mobile   string `json:"mobile"`
	Line     string `json:"line"`
	Locality string `json:"locality"`
	City     string `json:"city"`
	State    string `json:"state"`
	Pincode  string `json:"pincode"`
}

func (h *AddressHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := GetID(c)
	if err != nil {
		return err
	}

	var addresses []models.Address
	err = h.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&addresses).Error
	if err != nil {
		logging.FromContext(ctx).Error("address_list_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, addresses)
}

func (h *AddressHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "address.create")

	userID, err := GetID(c)
	if err != nil {
		return err
	}

	var req addressRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("address_create_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Name == "" || req.Line == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and line are required")
	}

	addr := models.Address{
		UserID:   userID,
		Name:     req.Name,
		Mobile:   req.Mobile,
		Line:     req.Line,
		Locality: req.Locality,
		City:     req.City,
		State:    req.State,
		Pincode:  req.Pincode,
	}
	if err := h.DB.WithContext(ctx).Create(&addr).Error; err != nil {
		l.Error("address_create_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusCreated, addr)
}

func (h *AddressHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "address.update")

	userID, err := GetID(c)
	if err != nil {
		return err
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var req addressRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var addr models.Address
	if err := h.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&addr).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "address not found")
	}

	addr.Name = req.Name
	addr.Mobile = req.Mobile
	addr.Line = req.Line
	addr.Locality = req.Locality
	addr.City = req.City
	addr.State = req.State
	addr.Pincode = req.Pincode
	if err := h.DB.WithContext(ctx).Save(&addr).Error; err != nil {
		l.Error("address_update_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, addr)
}

func (h *AddressHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := GetID(c)
	if err != nil {
		return err
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	err = h.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Address{}).Error
	if err != nil {
		logging.FromContext(ctx).Error("address_delete_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.NoContent(http.StatusNoContent)
}
