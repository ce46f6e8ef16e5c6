package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/elfein/storefront/internal/logging"
	"github.com/elfein/storefront/internal/models"
	"github.com/elfein/storefront/internal/search"
)

type AdminCatalogHandler struct {
	DB    *gorm.DB
	Index *search.Index
}

type categoryRequest struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	OfferPrice     decimal.Decimal `json:"offer_price"`
	OfferIsPercent bool            `json:"offer_is_percent"`
	OfferValidDate *time.Time      `json:"offer_valid_date"`
}

func (h *AdminCatalogHandler) ListCategories(c echo.Context) error {
	ctx := c.Request().Context()

	var categories []models.Category
	err := h.DB.WithContext(ctx).
		Where("is_deleted = ?", false).
		Order("id ASC").
		Find(&categories).Error
	if err != nil {
		logging.FromContext(ctx).Error("list_categories_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, categories)
}

func (h *AdminCatalogHandler) CreateCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.create_category")

	var req categoryRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		l.Warn("create_category_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "category name required")
	}
	if req.OfferIsPercent && req.OfferPrice.GreaterThan(decimal.NewFromInt(90)) {
		return echo.NewHTTPError(http.StatusBadRequest, "percentage offer cannot exceed 90")
	}

	category := models.Category{
		Name:           req.Name,
		Description:    req.Description,
		OfferPrice:     req.OfferPrice,
		OfferIsPercent: req.OfferIsPercent,
		OfferValidDate: req.OfferValidDate,
		IsListed:       true,
	}
	if err := h.DB.WithContext(ctx).Create(&category).Error; err != nil {
		l.Error("create_category_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("create_category_success", "category_id", category.ID)
	return c.JSON(http.StatusCreated, category)
}

func (h *AdminCatalogHandler) UpdateCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.update_category")

	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var req categoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.OfferIsPercent && req.OfferPrice.GreaterThan(decimal.NewFromInt(90)) {
		return echo.NewHTTPError(http.StatusBadRequest, "percentage offer cannot exceed 90")
	}

	var category models.Category
	if err := h.DB.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&category).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "category not found")
	}

	category.Name = req.Name
	category.Description = req.Description
	category.OfferPrice = req.OfferPrice
	category.OfferIsPercent = req.OfferIsPercent
	category.OfferValidDate = req.OfferValidDate
	if err := h.DB.WithContext(ctx).Save(&category).Error; err != nil {
		l.Error("update_category_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, category)
}

// ToggleCategory flips the category's listing. Products stay untouched in
// the database; their effective listing follows the category at read time,
// but the search index is refreshed so hidden products stop matching.
func (h *AdminCatalogHandler) ToggleCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.toggle_category")

	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var category models.Category
	if err := h.DB.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&category).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "category not found")
	}

	category.IsListed = !category.IsListed
	if err := h.DB.WithContext(ctx).Save(&category).Error; err != nil {
		l.Error("toggle_category_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if err := h.reindexCategory(c, &category); err != nil {
		l.Warn("toggle_category_reindex_failed", "category_id", category.ID, "error", err)
	}

	l.Info("toggle_category_success", "category_id", category.ID, "is_listed", category.IsListed)
	return c.JSON(http.StatusOK, category)
}

func (h *AdminCatalogHandler) DeleteCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.delete_category")

	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var category models.Category
	if err := h.DB.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&category).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "category not found")
	}

	category.IsDeleted = true
	category.IsListed = false
	if err := h.DB.WithContext(ctx).Save(&category).Error; err != nil {
		l.Error("delete_category_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if err := h.reindexCategory(c, &category); err != nil {
		l.Warn("delete_category_reindex_failed", "category_id", category.ID, "error", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminCatalogHandler) reindexCategory(c echo.Context, category *models.Category) error {
	if h.Index == nil {
		return nil
	}
	ctx := c.Request().Context()

	var products []models.Product
	if err := h.DB.WithContext(ctx).Where("category_id = ?", category.ID).Find(&products).Error; err != nil {
		return err
	}
	for i := range products {
		p := products[i]
		if !category.IsListed || category.IsDeleted {
			if err := h.Index.RemoveProduct(ctx, p.ID); err != nil {
				return err
			}
			continue
		}
		if err := h.Index.IndexProduct(ctx, &p); err != nil {
			return err
		}
	}
	return nil
}

type productRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	CategoryID    uint     `json:"category_id"`
	SubCategoryID uint     `json:"sub_category_id"`
	Images        []string `json:"images"`
}

func (h *AdminCatalogHandler) CreateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.create_product")

	var req productRequest
	if err := c.Bind(&req); err != nil || req.Name == "" || req.CategoryID == 0 {
		l.Warn("create_product_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "name and category required")
	}

	var category models.Category
	err := h.DB.WithContext(ctx).Where("id = ? AND is_deleted = ?", req.CategoryID, false).First(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown category")
	}
	if err != nil {
		l.Error("create_product_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	product := models.Product{
		Name:          req.Name,
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		SubCategoryID: req.SubCategoryID,
		Images:        req.Images,
		IsListed:      true,
	}
	if err := h.DB.WithContext(ctx).Create(&product).Error; err != nil {
		l.Error("create_product_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if h.Index != nil {
		if err := h.Index.IndexProduct(ctx, &product); err != nil {
			l.Warn("create_product_index_failed", "product_id", product.ID, "error", err)
		}
	}

	l.Info("create_product_success", "product_id", product.ID)
	return c.JSON(http.StatusCreated, product)
}

func (h *AdminCatalogHandler) UpdateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.update_product")

	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var req productRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var product models.Product
	if err := h.DB.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&product).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	}

	product.Name = req.Name
	product.Description = req.Description
	if req.CategoryID != 0 {
		product.CategoryID = req.CategoryID
	}
	product.SubCategoryID = req.SubCategoryID
	product.Images = req.Images
	if err := h.DB.WithContext(ctx).Save(&product).Error; err != nil {
		l.Error("update_product_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if h.Index != nil {
		if err := h.Index.IndexProduct(ctx, &product); err != nil {
			l.Warn("update_product_index_failed", "product_id", product.ID, "error", err)
		}
	}
	return c.JSON(http.StatusOK, product)
}

func (h *AdminCatalogHandler) ToggleProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.toggle_product")

	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var product models.Product
	if err := h.DB.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&product).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	}

	product.IsListed = !product.IsListed
	if err := h.DB.WithContext(ctx).Save(&product).Error; err != nil {
		l.Error("toggle_product_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if h.Index != nil {
		if err := h.Index.IndexProduct(ctx, &product); err != nil {
			l.Warn("toggle_product_index_failed", "product_id", product.ID, "error", err)
		}
	}
	return c.JSON(http.StatusOK, product)
}

func (h *AdminCatalogHandler) DeleteProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.delete_product")

	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var product models.Product
	if err := h.DB.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&product).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	}

	product.IsDeleted = true
	product.IsListed = false
	if err := h.DB.WithContext(ctx).Save(&product).Error; err != nil {
		l.Error("delete_product_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if h.Index != nil {
		if err := h.Index.RemoveProduct(ctx, product.ID); err != nil {
			l.Warn("delete_product_index_failed", "product_id", product.ID, "error", err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

type variantRequest struct {
	ProductID     uint            `json:"product_id"`
	Size          string          `json:"size"`
	Color         string          `json:"color"`
	Price         decimal.Decimal `json:"price"`
	DiscountPrice decimal.Decimal `json:"discount_price"`
	Stock         int             `json:"stock"`
}

func (h *AdminCatalogHandler) CreateVariant(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.create_variant")

	var req variantRequest
	if err := c.Bind(&req); err != nil || req.ProductID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if !req.Price.IsPositive() || req.Stock < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "price must be positive and stock non-negative")
	}
	if req.DiscountPrice.GreaterThanOrEqual(req.Price) && req.DiscountPrice.IsPositive() {
		return echo.NewHTTPError(http.StatusBadRequest, "discount price must be below price")
	}

	variant := models.Variant{
		ProductID:     req.ProductID,
		Size:          req.Size,
		Color:         req.Color,
		Price:         req.Price,
		DiscountPrice: req.DiscountPrice,
		Stock:         req.Stock,
		IsListed:      true,
	}
	if err := h.DB.WithContext(ctx).Create(&variant).Error; err != nil {
		l.Error("create_variant_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("create_variant_success", "variant_id", variant.ID)
	return c.JSON(http.StatusCreated, variant)
}

func (h *AdminCatalogHandler) UpdateVariant(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.update_variant")

	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var req variantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if !req.Price.IsPositive() || req.Stock < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "price must be positive and stock non-negative")
	}

	var variant models.Variant
	if err := h.DB.WithContext(ctx).First(&variant, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "variant not found")
	}

	variant.Price = req.Price
	variant.DiscountPrice = req.DiscountPrice
	variant.Stock = req.Stock
	if err := h.DB.WithContext(ctx).Save(&variant).Error; err != nil {
		l.Error("update_variant_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, variant)
}

func (h *AdminCatalogHandler) ToggleVariant(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var variant models.Variant
	if err := h.DB.WithContext(ctx).First(&variant, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "variant not found")
	}

	variant.IsListed = !variant.IsListed
	if err := h.DB.WithContext(ctx).Save(&variant).Error; err != nil {
		logging.FromContext(ctx).Error("toggle_variant_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, variant)
}
