package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Paper fills every valid order immediately without contacting a venue.
type Paper struct {
	log    zerolog.Logger
	mu     sync.Mutex
	orders []OrderRequest
}

func NewPaper(log zerolog.Logger) *Paper {
	return &Paper{log: log.With().Str("component", "paper_broker").Logger()}
}

func (p *Paper) SubmitOrder(ctx context.Context, req OrderRequest) (OrderRef, error) {
	if err := req.validate(); err != nil {
		return OrderRef{}, &OrderError{Reason: ReasonInvalid, Symbol: req.Symbol, Side: req.Side, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return OrderRef{}, &OrderError{Reason: ReasonTimeout, Symbol: req.Symbol, Side: req.Side, Err: err}
	}

	p.mu.Lock()
	p.orders = append(p.orders, req)
	p.mu.Unlock()

	ref := OrderRef{
		ID:            "paper-" + uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Status:        "filled",
	}
	p.log.Info().Str("order_id", ref.ID).Str("symbol", req.Symbol).Str("side", string(req.Side)).Int("qty", req.Qty).Msg("paper order filled")
	return ref, nil
}

// Orders returns a copy of the submitted orders.
func (p *Paper) Orders() []OrderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OrderRequest, len(p.orders))
	copy(out, p.orders)
	return out
}
