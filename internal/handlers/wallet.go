package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/elfein/storefront/internal/gateway"
	"github.com/elfein/storefront/internal/logging"
	"github.com/elfein/storefront/internal/session"
	"github.com/elfein/storefront/internal/wallet"
)

const topUpSessionKey = "walletTopUp"

type WalletHandler struct {
	Svc      *wallet.Service
	Gateway  gateway.Client
	Verifier *gateway.Verifier
	Sessions *session.Store
}

type pendingTopUp struct {
	GatewayOrderID string
	Amount         decimal.Decimal
}

func (h *WalletHandler) Balance(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetID(c)
	if err != nil {
		return err
	}

	balance, err := h.Svc.Balance(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("wallet_balance_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, echo.Map{"balance": balance})
}

func (h *WalletHandler) Transactions(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetID(c)
	if err != nil {
		return err
	}

	txs, err := h.Svc.Transactions(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("wallet_transactions_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, txs)
}

// TopUpInit opens a gateway intent for the requested amount. The credit
// itself waits for the verified callback; the pending amount sits in the
// session and expires with it.
func (h *WalletHandler) TopUpInit(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "wallet.top_up_init")

	userID, err := GetID(c)
	if err != nil {
		return err
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.Bind(&req); err != nil || !req.Amount.IsPositive() {
		l.Warn("top_up_init_error", "status", 400, "reason", "invalid amount")
		return echo.NewHTTPError(http.StatusBadRequest, "positive amount required")
	}

	intent, err := h.Gateway.CreateIntent(ctx, req.Amount, "INR", "wallet_topup")
	if err != nil {
		l.Error("top_up_init_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.Sessions.Put(userID, topUpSessionKey, pendingTopUp{GatewayOrderID: intent.ID, Amount: req.Amount})

	l.Info("top_up_init_success", "gateway_order_id", intent.ID)
	return c.JSON(http.StatusOK, echo.Map{"gateway_order_id": intent.ID, "amount": req.Amount})
}

func (h *WalletHandler) TopUpVerify(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "wallet.top_up_verify")

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

	raw, ok := h.Sessions.Get(userID, topUpSessionKey)
	if !ok {
		l.Warn("top_up_verify_error", "status", 400, "reason", "no pending top-up")
		return echo.NewHTTPError(http.StatusBadRequest, "no pending top-up")
	}
	pending, ok := raw.(pendingTopUp)
	if !ok || pending.GatewayOrderID != req.GatewayOrderID {
		l.Warn("top_up_verify_error", "status", 400, "reason", "intent mismatch")
		return echo.NewHTTPError(http.StatusBadRequest, "no pending top-up")
	}

	if !h.Verifier.Verify(req.GatewayOrderID, req.PaymentID, req.Signature) {
		l.Warn("top_up_verify_error", "status", 400, "reason", "signature")
		return echo.NewHTTPError(http.StatusBadRequest, "payment verification failed")
	}

	if err := h.Svc.Credit(ctx, userID, pending.Amount, "Wallet top-up", ""); err != nil {
		l.Error("top_up_verify_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	h.Sessions.Delete(userID, topUpSessionKey)

	l.Info("top_up_verify_success", "amount", pending.Amount.String())
	return c.NoContent(http.StatusOK)
}
