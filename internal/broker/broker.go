// Package broker submits market orders and reports each outcome as an order
// reference or a typed *OrderError.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// OrderRequest is an intraday market order: type market, time in force day.
type OrderRequest struct {
	Token         string
	Symbol        string
	Qty           int
	Side          alpaca.Side
	ClientOrderID string
}

func (r OrderRequest) validate() error {
	if r.Symbol == "" {
		return errors.New("symbol is required")
	}
	if r.Qty <= 0 {
		return fmt.Errorf("qty must be > 0, got %d", r.Qty)
	}
	if r.Side != alpaca.Buy && r.Side != alpaca.Sell {
		return fmt.Errorf("unsupported side %q", r.Side)
	}
	return nil
}

type OrderRef struct {
	ID            string
	ClientOrderID string
	Status        string
}

type FailureReason string

const (
	ReasonInvalid      FailureReason = "invalid_request"
	ReasonRejected     FailureReason = "rejected"
	ReasonTimeout      FailureReason = "timeout"
	ReasonEmptyOrderID FailureReason = "empty_order_id"
)

// OrderError is returned for every order that did not produce an order id.
type OrderError struct {
	Reason FailureReason
	Symbol string
	Side   alpaca.Side
	Err    error
}

func (e *OrderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("order %s %s: %s", e.Side, e.Symbol, e.Reason)
	}
	return fmt.Sprintf("order %s %s: %s: %v", e.Side, e.Symbol, e.Reason, e.Err)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the failure reason from err, or "" if err is not an
// *OrderError.
func ReasonOf(err error) FailureReason {
	var orderErr *OrderError
	if errors.As(err, &orderErr) {
		return orderErr.Reason
	}
	return ""
}

type orderPlacer interface {
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
}

// Client places orders through the Alpaca trading API.
type Client struct {
	placer orderPlacer
	log    zerolog.Logger
}

func New(apiKey, apiSecret, baseURL string, log zerolog.Logger) *Client {
	opts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	}
	return &Client{
		placer: alpaca.NewClient(opts),
		log:    log.With().Str("component", "broker").Logger(),
	}
}

type placeResult struct {
	order *alpaca.Order
	err   error
}

// SubmitOrder places a market day order. The SDK call is not cancellable, so
// the wait is bounded by ctx; an expired ctx is reported as ReasonTimeout.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (OrderRef, error) {
	if err := req.validate(); err != nil {
		return OrderRef{}, &OrderError{Reason: ReasonInvalid, Symbol: req.Symbol, Side: req.Side, Err: err}
	}

	qty := decimal.NewFromInt(int64(req.Qty))
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          req.Side,
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: req.ClientOrderID,
	}

	done := make(chan placeResult, 1)
	go func() {
		order, err := c.placer.PlaceOrder(orderReq)
		done <- placeResult{order: order, err: err}
	}()

	var res placeResult
	select {
	case <-ctx.Done():
		c.log.Error().Str("symbol", req.Symbol).Str("side", string(req.Side)).Err(ctx.Err()).Msg("place order timed out")
		return OrderRef{}, &OrderError{Reason: ReasonTimeout, Symbol: req.Symbol, Side: req.Side, Err: ctx.Err()}
	case res = <-done:
	}

	if res.err != nil {
		c.log.Error().Str("symbol", req.Symbol).Str("side", string(req.Side)).Int("qty", req.Qty).Err(res.err).Msg("place order failed")
		return OrderRef{}, &OrderError{Reason: ReasonRejected, Symbol: req.Symbol, Side: req.Side, Err: res.err}
	}
	if res.order == nil || strings.TrimSpace(res.order.ID) == "" {
		c.log.Error().Str("symbol", req.Symbol).Str("side", string(req.Side)).Msg("place order returned no order id")
		return OrderRef{}, &OrderError{Reason: ReasonEmptyOrderID, Symbol: req.Symbol, Side: req.Side}
	}

	c.log.Info().
		Str("order_id", res.order.ID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Int("qty", req.Qty).
		Str("status", string(res.order.Status)).
		Msg("place order success")
	return OrderRef{
		ID:            strings.TrimSpace(res.order.ID),
		ClientOrderID: res.order.ClientOrderID,
		Status:        string(res.order.Status),
	}, nil
}
