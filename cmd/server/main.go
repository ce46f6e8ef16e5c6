package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/smtp"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/elfein/storefront/internal/cart"
	"github.com/elfein/storefront/internal/checkout"
	"github.com/elfein/storefront/internal/config"
	"github.com/elfein/storefront/internal/coupon"
	"github.com/elfein/storefront/internal/events"
	"github.com/elfein/storefront/internal/gateway"
	"github.com/elfein/storefront/internal/handlers"
	"github.com/elfein/storefront/internal/logging"
	"github.com/elfein/storefront/internal/mailer"
	"github.com/elfein/storefront/internal/middleware/auth"
	"github.com/elfein/storefront/internal/order"
	"github.com/elfein/storefront/internal/pricing"
	"github.com/elfein/storefront/internal/reports"
	"github.com/elfein/storefront/internal/search"
	"github.com/elfein/storefront/internal/session"
	httpserver "github.com/elfein/storefront/internal/transport/http"
	"github.com/elfein/storefront/internal/wallet"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	esClient, err := search.NewClient(configuration)
	if err != nil {
		log.Fatalf("elasticsearch init error: %v", err)
	}
	index := &search.Index{ES: esClient, Index: search.ProductIndex}

	producer := events.NewProducer(configuration.KAFKA_ADDRESS)

	var mail mailer.Mailer = mailer.Nop{}
	if configuration.SMTP_ADDRESS != "" {
		mail = mailer.NewSMTP(configuration.SMTP_ADDRESS, configuration.SMTP_FROM, smtp.Auth(nil))
	}

	sessions := session.NewStore(session.DefaultTTL)
	tokens := &auth.TokenService{JWTSecret: []byte(configuration.JWT_SECRET)}
	verifier := &gateway.Verifier{Secret: []byte(configuration.RAZORPAY_SECRET)}
	razorpay := gateway.NewRazorpay(configuration.RAZORPAY_KEY_ID, configuration.RAZORPAY_SECRET)

	priceResolver := &pricing.Resolver{DB: db}
	coupons := &coupon.Engine{DB: db, Sessions: sessions}
	wallets := &wallet.Service{DB: db}
	carts := &cart.Service{DB: db, Pricing: priceResolver}
	orchestrator := &checkout.Orchestrator{
		DB:      db,
		Cart:    carts,
		Pricing: priceResolver,
		Coupons: coupons,
		Wallet:  wallets,
		Gateway: razorpay,
		Events:  producer,
		Mailer:  mail,
	}
	orders := order.NewService(db, coupons, razorpay, verifier, producer)
	reportGen := &reports.Generator{DB: db}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := logging.IntoContext(c.Request().Context(), logger)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})

	deps := httpserver.Deps{
		Tokens:          tokens,
		AuthHandler:     &handlers.AuthHandler{DB: db, Tokens: tokens},
		CatalogHandler:  &handlers.CatalogHandler{DB: db, Pricing: priceResolver},
		SearchHandler:   &handlers.SearchHandler{Index: index},
		CartHandler:     &handlers.CartHandler{Svc: carts},
		WishlistHandler: &handlers.WishlistHandler{DB: db},
		AddressHandler:  &handlers.AddressHandler{DB: db},
		CheckoutHandler: &handlers.CheckoutHandler{Svc: orchestrator, Cart: carts, Coupons: coupons},
		OrderHandler:    &handlers.OrderHandler{Svc: orders},
		WalletHandler:   &handlers.WalletHandler{Svc: wallets, Gateway: razorpay, Verifier: verifier, Sessions: sessions},
		AdminCatalog:    &handlers.AdminCatalogHandler{DB: db, Index: index},
		AdminCoupons:    &handlers.AdminCouponHandler{DB: db},
		AdminOrders:     &handlers.AdminOrderHandler{Svc: orders},
		AdminCustomer:   &handlers.AdminCustomerHandler{DB: db},
		AdminReports:    &handlers.AdminReportHandler{Gen: reportGen},
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}

	if err := producer.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
