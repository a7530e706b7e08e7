package broker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/rs/zerolog"
)

type fakePlacer struct {
	order *alpaca.Order
	err   error
	delay time.Duration
	last  alpaca.PlaceOrderRequest
}

func (f *fakePlacer) PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error) {
	f.last = req
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.order, f.err
}

func newTestClient(placer orderPlacer) *Client {
	return &Client{placer: placer, log: zerolog.Nop()}
}

func TestSubmitOrderSuccess(t *testing.T) {
	placer := &fakePlacer{order: &alpaca.Order{ID: " ord-1 ", ClientOrderID: "run-1", Status: "accepted"}}
	client := newTestClient(placer)

	ref, err := client.SubmitOrder(context.Background(), OrderRequest{Symbol: "NTPC", Qty: 1, Side: alpaca.Buy, ClientOrderID: "run-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.ID != "ord-1" {
		t.Fatalf("expected trimmed order id, got %q", ref.ID)
	}
	if placer.last.Type != alpaca.Market || placer.last.TimeInForce != alpaca.Day {
		t.Fatalf("expected market/day order, got %s/%s", placer.last.Type, placer.last.TimeInForce)
	}
	if placer.last.Qty == nil || placer.last.Qty.IntPart() != 1 {
		t.Fatalf("expected qty 1, got %v", placer.last.Qty)
	}
}

func TestSubmitOrderFailures(t *testing.T) {
	tests := []struct {
		name   string
		placer *fakePlacer
		req    OrderRequest
		reason FailureReason
	}{
		{
			name:   "rejected",
			placer: &fakePlacer{err: errors.New("insufficient buying power")},
			req:    OrderRequest{Symbol: "NTPC", Qty: 1, Side: alpaca.Sell},
			reason: ReasonRejected,
		},
		{
			name:   "empty id",
			placer: &fakePlacer{order: &alpaca.Order{ID: "  "}},
			req:    OrderRequest{Symbol: "NTPC", Qty: 1, Side: alpaca.Buy},
			reason: ReasonEmptyOrderID,
		},
		{
			name:   "nil order",
			placer: &fakePlacer{},
			req:    OrderRequest{Symbol: "NTPC", Qty: 1, Side: alpaca.Buy},
			reason: ReasonEmptyOrderID,
		},
		{
			name:   "invalid qty",
			placer: &fakePlacer{},
			req:    OrderRequest{Symbol: "NTPC", Qty: 0, Side: alpaca.Buy},
			reason: ReasonInvalid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestClient(tt.placer).SubmitOrder(context.Background(), tt.req)
			if got := ReasonOf(err); got != tt.reason {
				t.Fatalf("expected reason %s, got %s (%v)", tt.reason, got, err)
			}
		})
	}
}

func TestSubmitOrderTimeout(t *testing.T) {
	placer := &fakePlacer{order: &alpaca.Order{ID: "late"}, delay: 200 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := newTestClient(placer).SubmitOrder(ctx, OrderRequest{Symbol: "NTPC", Qty: 1, Side: alpaca.Buy})
	if ReasonOf(err) != ReasonTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
}

func TestPaperFillsOrders(t *testing.T) {
	paper := NewPaper(zerolog.Nop())
	ref, err := paper.SubmitOrder(context.Background(), OrderRequest{Symbol: "NTPC", Qty: 2, Side: alpaca.Buy})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(ref.ID, "paper-") {
		t.Fatalf("unexpected paper order id %q", ref.ID)
	}
	if got := paper.Orders(); len(got) != 1 || got[0].Qty != 2 {
		t.Fatalf("unexpected recorded orders %+v", got)
	}
}
