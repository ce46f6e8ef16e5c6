package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/elfein/storefront/internal/logging"
	"github.com/elfein/storefront/internal/models"
	"github.com/elfein/storefront/internal/pricing"
	"github.com/elfein/storefront/internal/search"
	"github.com/elfein/storefront/internal/util"
	"github.com/shopspring/decimal"
)

type CatalogHandler struct {
	DB      *gorm.DB
	Pricing *pricing.Resolver
}

type variantView struct {
	models.Variant
	FinalPrice decimal.Decimal `json:"final_price"`
}

func (h *CatalogHandler) ListProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.list_products")

	offset, limit := util.Paginate(queryInt(c, "page"), queryInt(c, "size"))

	q := h.DB.WithContext(ctx).Model(&models.Product{}).
		Where("is_listed = ? AND is_deleted = ?", true, false)
	if categoryID := queryInt(c, "category"); categoryID > 0 {
		q = q.Where("category_id = ?", categoryID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		l.Error("list_products_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var products []models.Product
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&products).Error; err != nil {
		l.Error("list_products_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "products": products})
}

func (h *CatalogHandler) GetProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.get_product")

	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var product models.Product
	err = h.DB.WithContext(ctx).
		Where("id = ? AND is_listed = ? AND is_deleted = ?", id, true, false).
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	}
	if err != nil {
		l.Error("get_product_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var variants []models.Variant
	err = h.DB.WithContext(ctx).
		Where("product_id = ? AND is_listed = ?", id, true).
		Find(&variants).Error
	if err != nil {
		l.Error("get_product_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	views := make([]variantView, len(variants))
	for i := range variants {
		final, err := h.Pricing.Resolve(ctx, &variants[i])
		if err != nil {
			l.Error("get_product_error", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
		views[i] = variantView{Variant: variants[i], FinalPrice: final}
	}
	return c.JSON(http.StatusOK, echo.Map{"product": product, "variants": views})
}

type SearchHandler struct {
	Index *search.Index
}

func (h *SearchHandler) Search(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.search")

	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}
	from, size := util.Paginate(queryInt(c, "page"), queryInt(c, "size"))

	total, hits, err := h.Index.Search(ctx, q, from, size)
	if err != nil {
		l.Error("search_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "products": hits})
}
