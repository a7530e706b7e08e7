package risk

import (
	"errors"
	"time"

	"bandbot/internal/state"
	"bandbot/internal/strategy"
)

var (
	ErrCooldownActive = errors.New("cooldown_active")
	ErrMinHoldActive  = errors.New("min_hold_active")
	ErrKillSwitch     = errors.New("kill_switch_enabled")
	ErrPositionOpen   = errors.New("position_already_open")
	ErrNoPosition     = errors.New("no_position_to_close")
	ErrInvalidQty     = errors.New("invalid_quantity")
)

type RiskContext struct {
	Now           time.Time
	LastAction    time.Time
	HasLastAction bool
	Cooldown      time.Duration
	Position      *state.Position
	MinHold       time.Duration
	Qty           int
	KillSwitch    bool
}

// CooldownRemaining returns how long the instrument stays in cooldown.
func (c RiskContext) CooldownRemaining() time.Duration {
	if !c.HasLastAction {
		return 0
	}
	elapsed := c.Now.Sub(c.LastAction)
	if elapsed >= c.Cooldown {
		return 0
	}
	return c.Cooldown - elapsed
}

type Gate struct{}

// Admit decides whether a tick may be evaluated at all: the instrument must
// be out of cooldown and an open position must have been held for the
// minimum hold time.
func (g Gate) Admit(ctx RiskContext) error {
	if ctx.CooldownRemaining() > 0 {
		return ErrCooldownActive
	}
	if ctx.Position != nil && ctx.Now.Sub(ctx.Position.EntryTime) < ctx.MinHold {
		return ErrMinHoldActive
	}
	return nil
}

// Approve checks an intent against the ledger before an order is sent.
func (g Gate) Approve(intent strategy.TradeIntent, ctx RiskContext) error {
	if intent.Action == strategy.Hold {
		return nil
	}
	if ctx.KillSwitch {
		return ErrKillSwitch
	}
	if ctx.Qty <= 0 {
		return ErrInvalidQty
	}
	switch intent.Kind {
	case strategy.KindEntry:
		if ctx.Position != nil {
			return ErrPositionOpen
		}
	case strategy.KindExit:
		if ctx.Position == nil {
			return ErrNoPosition
		}
	}
	return nil
}
