package md

import (
	"context"
	"math"
	"time"
)

// Tick is one last-traded-price update for an instrument token. Time is the
// exchange timestamp and is zero when the feed does not supply one.
type Tick struct {
	Token string
	Price float64
	Time  time.Time
}

// Valid reports whether the tick carries a token and a finite positive price.
func (t Tick) Valid() bool {
	return t.Token != "" && t.Price > 0 && !math.IsInf(t.Price, 0) && !math.IsNaN(t.Price)
}

// Source pushes ticks onto out until ctx is cancelled or the feed fails.
type Source interface {
	Run(ctx context.Context, out chan<- Tick) error
}

func emit(ctx context.Context, out chan<- Tick, tick Tick) error {
	select {
	case out <- tick:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
