package strategy

import (
	"time"

	"bandbot/internal/indicators"
	"bandbot/internal/state"
)

type Action string

const (
	Hold Action = "HOLD"
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

// Opposite returns the action that unwinds a.
func (a Action) Opposite() Action {
	switch a {
	case Buy:
		return Sell
	case Sell:
		return Buy
	default:
		return Hold
	}
}

type Kind string

const (
	KindNone  Kind = ""
	KindEntry Kind = "entry"
	KindExit  Kind = "exit"
)

// EntryAction is the order side that opens a position on side.
func EntryAction(side state.Side) Action {
	if side == state.Short {
		return Sell
	}
	return Buy
}

// ExitAction is the order side that closes a position on side.
func ExitAction(side state.Side) Action {
	return EntryAction(side).Opposite()
}

type MarketSnapshot struct {
	Timestamp       time.Time
	Price           float64
	Indicators      indicators.Snapshot
	Position        *state.Position
	ProfitThreshold float64
}

type TradeIntent struct {
	Action Action
	Kind   Kind
	// Side is the position side being opened or closed.
	Side   state.Side
	Reason string
}

type Strategy interface {
	Decide(snapshot MarketSnapshot) TradeIntent
}
