// Package gateway is the payment-gateway boundary. The engine only needs
// two things from it: create an external payment intent for an amount, and
// verify the signature a success callback carries.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Intent is an external payment order awaiting customer action.
type Intent struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Receipt  string          `json:"receipt"`
}

type Client interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*Intent, error)
}

// Verifier checks a callback signature: HMAC-SHA256 over
// "orderRef|paymentRef" keyed by the shared secret, hex encoded, exact
// match, no tolerance.
type Verifier struct {
	Secret []byte
}

func (v Verifier) Verify(orderRef, paymentRef, signature string) bool {
	mac := hmac.New(sha256.New, v.Secret)
	mac.Write([]byte(orderRef + "|" + paymentRef))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Razorpay creates intents against the Razorpay orders API. Amounts are
// sent in paise.
type Razorpay struct {
	KeyID      string
	KeySecret  string
	BaseURL    string
	HTTPClient *http.Client
}

func NewRazorpay(keyID, keySecret string) *Razorpay {
	return &Razorpay{
		KeyID:      keyID,
		KeySecret:  keySecret,
		BaseURL:    "https://api.razorpay.com/v1",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Razorpay) CreateIntent(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*Intent, error) {
	payload := map[string]interface{}{
		"amount":   amount.Mul(decimal.NewFromInt(100)).IntPart(),
		"currency": currency,
		"receipt":  receipt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(r.KeyID, r.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: create order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway: create order: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("gateway: decode response: %w", err)
	}

	return &Intent{ID: out.ID, Amount: amount, Currency: currency, Receipt: receipt}, nil
}
