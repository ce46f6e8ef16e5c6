package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/elfein/storefront/internal/handlers"
	"github.com/elfein/storefront/internal/middleware/auth"
)

type Deps struct {
	Tokens *auth.TokenService

	AuthHandler     *handlers.AuthHandler
	CatalogHandler  *handlers.CatalogHandler
	SearchHandler   *handlers.SearchHandler
	CartHandler     *handlers.CartHandler
	WishlistHandler *handlers.WishlistHandler
	AddressHandler  *handlers.AddressHandler
	CheckoutHandler *handlers.CheckoutHandler
	OrderHandler    *handlers.OrderHandler
	WalletHandler   *handlers.WalletHandler

	AdminCatalog  *handlers.AdminCatalogHandler
	AdminCoupons  *handlers.AdminCouponHandler
	AdminOrders   *handlers.AdminOrderHandler
	AdminCustomer *handlers.AdminCustomerHandler
	AdminReports  *handlers.AdminReportHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)

	v1.GET("/products", d.CatalogHandler.ListProducts)
	v1.GET("/products/:id", d.CatalogHandler.GetProduct)
	v1.GET("/search", d.SearchHandler.Search)

	user := v1.Group("", d.Tokens.Middleware)

	user.GET("/cart", d.CartHandler.GetCart)
	user.POST("/cart", d.CartHandler.AddToCart)
	user.PATCH("/cart/:id", d.CartHandler.UpdateQuantity)
	user.PATCH("/cart/:id/variant", d.CartHandler.ChangeVariant)
	user.DELETE("/cart/:id", d.CartHandler.RemoveItem)

	user.GET("/wishlist", d.WishlistHandler.List)
	user.POST("/wishlist", d.WishlistHandler.Add)
	user.DELETE("/wishlist/:id", d.WishlistHandler.Remove)

	user.GET("/addresses", d.AddressHandler.List)
	user.POST("/addresses", d.AddressHandler.Create)
	user.PATCH("/addresses/:id", d.AddressHandler.Update)
	user.DELETE("/addresses/:id", d.AddressHandler.Delete)

	user.GET("/checkout", d.CheckoutHandler.GetSummary)
	user.POST("/checkout/coupon", d.CheckoutHandler.ApplyCoupon)
	user.DELETE("/checkout/coupon", d.CheckoutHandler.RemoveCoupon)
	user.POST("/checkout", d.CheckoutHandler.PlaceOrder)

	user.GET("/orders", d.OrderHandler.ListOrders)
	user.GET("/orders/:id", d.OrderHandler.GetOrder)
	user.GET("/orders/:id/invoice", d.OrderHandler.Invoice)
	user.POST("/orders/:id/cancel", d.OrderHandler.CancelOrder)
	user.POST("/orders/:id/items/:itemID/cancel", d.OrderHandler.CancelItem)
	user.POST("/orders/:id/items/:itemID/return", d.OrderHandler.RequestReturn)
	user.DELETE("/orders/:id/items/:itemID/return", d.OrderHandler.CancelReturn)
	user.POST("/orders/:id/payment/verify", d.OrderHandler.VerifyPayment)
	user.POST("/orders/:id/payment/retry", d.OrderHandler.RetryPayment)
	user.POST("/orders/:id/payment/failed", d.OrderHandler.PaymentFailed)

	user.GET("/wallet", d.WalletHandler.Balance)
	user.GET("/wallet/transactions", d.WalletHandler.Transactions)
	user.POST("/wallet/topup", d.WalletHandler.TopUpInit)
	user.POST("/wallet/topup/verify", d.WalletHandler.TopUpVerify)

	admin := v1.Group("/admin", d.Tokens.AdminMiddleware)

	admin.GET("/categories", d.AdminCatalog.ListCategories)
	admin.POST("/categories", d.AdminCatalog.CreateCategory)
	admin.PATCH("/categories/:id", d.AdminCatalog.UpdateCategory)
	admin.POST("/categories/:id/toggle", d.AdminCatalog.ToggleCategory)
	admin.DELETE("/categories/:id", d.AdminCatalog.DeleteCategory)

	admin.POST("/products", d.AdminCatalog.CreateProduct)
	admin.PATCH("/products/:id", d.AdminCatalog.UpdateProduct)
	admin.POST("/products/:id/toggle", d.AdminCatalog.ToggleProduct)
	admin.DELETE("/products/:id", d.AdminCatalog.DeleteProduct)

	admin.POST("/variants", d.AdminCatalog.CreateVariant)
	admin.PATCH("/variants/:id", d.AdminCatalog.UpdateVariant)
	admin.POST("/variants/:id/toggle", d.AdminCatalog.ToggleVariant)

	admin.GET("/coupons", d.AdminCoupons.List)
	admin.POST("/coupons", d.AdminCoupons.Create)
	admin.PATCH("/coupons/:id", d.AdminCoupons.Update)
	admin.POST("/coupons/:id/toggle", d.AdminCoupons.Toggle)
	admin.DELETE("/coupons/:id", d.AdminCoupons.Delete)

	admin.GET("/orders", d.AdminOrders.List)
	admin.GET("/orders/:id", d.AdminOrders.Get)
	admin.PATCH("/orders/:id/items/:itemID/status", d.AdminOrders.UpdateItemStatus)
	admin.GET("/returns", d.AdminOrders.ReturnQueue)
	admin.POST("/orders/:id/items/:itemID/return", d.AdminOrders.HandleReturn)

	admin.GET("/customers", d.AdminCustomer.List)
	admin.POST("/customers/:id/block", d.AdminCustomer.Block)
	admin.POST("/customers/:id/unblock", d.AdminCustomer.Unblock)

	admin.GET("/reports/sales", d.AdminReports.Sales)
	admin.GET("/reports/sales/csv", d.AdminReports.SalesCSV)
}
