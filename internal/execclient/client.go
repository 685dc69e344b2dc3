// Package execclient is the thin HTTP client against the pricing/liquidation
// engine (C5): instant-execute, close, stoploss/takeprofit add/cancel,
// pending place/modify/cancel, and lifecycle-id registration. Grounded on
// exec/client.go's Client shape — a dry-run-capable http.Client wrapper with
// HMAC-signed requests, structured zerolog logging, and a doRequest chokepoint
// that classifies non-2xx responses.
package execclient

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/orderflow/internal/apierr"
	"github.com/web3guy0/orderflow/internal/domain"
)

type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

func New(baseURL, secret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Response is the caller-facing answer from every RPC; its Flow says whether the state change
// already happened (local) or the provider still needs to confirm it
// (provider), per spec.md §4.5.
type Response struct {
	Flow               domain.Flow     `json:"flow"`
	ExecPrice          decimal.Decimal `json:"exec_price"`
	MarginUSD          decimal.Decimal `json:"margin_usd"`
	ContractValue      decimal.Decimal `json:"contract_value"`
	CommissionEntry    decimal.Decimal `json:"commission_entry"`
	UsedMarginExecuted decimal.Decimal `json:"used_margin_executed"`
}

type instantExecuteRequest struct {
	OrderID  string          `json:"order_id"`
	Symbol   string          `json:"symbol"`
	Kind     string          `json:"order_type"`
	Price    decimal.Decimal `json:"order_price"`
	Quantity decimal.Decimal `json:"order_quantity"`
	UserType string          `json:"user_type"`
	UserID   string          `json:"user_id"`
}

// InstantExecute dispatches a place-instant request (spec.md §4.6).
func (c *Client) InstantExecute(o *domain.Order) (*Response, error) {
	return c.call("/execute/instant", instantExecuteRequest{
		OrderID:  o.OrderID,
		Symbol:   o.Symbol,
		Kind:     string(o.Kind),
		Price:    o.Price,
		Quantity: o.Quantity,
		UserType: string(o.UserType),
		UserID:   o.UserID,
	})
}

type lifecycleRequest struct {
	OrderID     string `json:"order_id"`
	LifecycleID string `json:"lifecycle_id"`
}

func (c *Client) Close(orderID, closeID string) (*Response, error) {
	return c.call("/execute/close", lifecycleRequest{OrderID: orderID, LifecycleID: closeID})
}

func (c *Client) Cancel(orderID, cancelID string) (*Response, error) {
	return c.call("/execute/cancel", lifecycleRequest{OrderID: orderID, LifecycleID: cancelID})
}

func (c *Client) StoplossAdd(orderID, slID string, price decimal.Decimal) (*Response, error) {
	return c.call("/execute/stoploss/add", struct {
		lifecycleRequest
		Price decimal.Decimal `json:"price"`
	}{lifecycleRequest{orderID, slID}, price})
}

func (c *Client) StoplossCancel(orderID, slCancelID string) (*Response, error) {
	return c.call("/execute/stoploss/cancel", lifecycleRequest{OrderID: orderID, LifecycleID: slCancelID})
}

func (c *Client) TakeprofitAdd(orderID, tpID string, price decimal.Decimal) (*Response, error) {
	return c.call("/execute/takeprofit/add", struct {
		lifecycleRequest
		Price decimal.Decimal `json:"price"`
	}{lifecycleRequest{orderID, tpID}, price})
}

func (c *Client) TakeprofitCancel(orderID, tpCancelID string) (*Response, error) {
	return c.call("/execute/takeprofit/cancel", lifecycleRequest{OrderID: orderID, LifecycleID: tpCancelID})
}

func (c *Client) PendingPlace(o *domain.Order, lifecycleID string) (*Response, error) {
	return c.call("/execute/pending/place", struct {
		instantExecuteRequest
		LifecycleID string `json:"lifecycle_id"`
	}{instantExecuteRequest{
		OrderID:  o.OrderID,
		Symbol:   o.Symbol,
		Kind:     string(o.Kind),
		Price:    o.Price,
		Quantity: o.Quantity,
		UserType: string(o.UserType),
		UserID:   o.UserID,
	}, lifecycleID})
}

func (c *Client) PendingModify(orderID, modifyID string, newPrice decimal.Decimal) (*Response, error) {
	return c.call("/execute/pending/modify", struct {
		lifecycleRequest
		Price decimal.Decimal `json:"price"`
	}{lifecycleRequest{orderID, modifyID}, newPrice})
}

func (c *Client) PendingCancel(orderID, cancelID string) (*Response, error) {
	return c.call("/execute/pending/cancel", lifecycleRequest{OrderID: orderID, LifecycleID: cancelID})
}

func (c *Client) RegisterLifecycleID(orderID, lifecycleID string) error {
	_, err := c.call("/execute/lifecycle/register", lifecycleRequest{OrderID: orderID, LifecycleID: lifecycleID})
	return err
}

// call is the doRequest chokepoint: it signs, posts, and classifies the
// response per spec.md §4.5 — 4xx surfaces a structured reason, 409 maps to
// apierr.Precondition (duplicate dispatch), everything else non-2xx maps
// to apierr.Transient.
func (c *Client) call(path string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apierr.Wrap(apierr.Validation, "encode request", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.sign(req, payload)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "rpc unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "read response", err)
	}

	log.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("execclient rpc")

	switch {
	case resp.StatusCode == http.StatusConflict:
		var reason struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(respBody, &reason)
		return nil, apierr.New(apierr.Precondition, firstNonEmpty(reason.Reason, "duplicate"))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var reason struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(respBody, &reason)
		return nil, apierr.New(apierr.RemoteRejection, firstNonEmpty(reason.Reason, fmt.Sprintf("http %d", resp.StatusCode)))
	case resp.StatusCode >= 500:
		return nil, apierr.New(apierr.Transient, fmt.Sprintf("rpc http %d", resp.StatusCode))
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, apierr.Wrap(apierr.Transient, "decode response", err)
	}
	return &out, nil
}

// sign attaches an HMAC-SHA256 signature over a Keccak256 digest of
// timestamp+path+body, the same two-stage shape the teacher uses signing
// CLOB requests (a fixed-size digest run through HMAC with a shared
// secret), generalized to the internal provider secret instead of a CLOB
// API secret.
func (c *Client) sign(req *http.Request, body []byte) {
	if c.secret == "" {
		return
	}
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	message := timestamp + req.Method + req.URL.Path + string(body)
	digest := crypto.Keccak256([]byte(message))

	h := hmac.New(sha256.New, []byte(c.secret))
	h.Write(digest)
	signature := hex.EncodeToString(h.Sum(nil))

	req.Header.Set("X-Internal-Timestamp", timestamp)
	req.Header.Set("X-Internal-Signature", signature)
}

func firstNonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
