package engine

import (
	"context"
	"time"

	"bandbot/internal/md"
)

// Run processes ticks until ctx is cancelled or ticks is closed. A session
// timer wakes the loop so open positions are liquidated after the close
// cutoff even if their instruments stop ticking.
func (e *Engine) Run(ctx context.Context, ticks <-chan md.Tick) error {
	ticker := time.NewTicker(e.settings.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick, ok := <-ticks:
			if !ok {
				return nil
			}
			e.OnTick(ctx, tick)
		case <-ticker.C:
			e.CheckSession(ctx)
		}
	}
}

// CheckSession force-closes open positions once the session clock has
// passed the close cutoff.
func (e *Engine) CheckSession(ctx context.Context) int {
	now := e.settings.Calendar.In(e.now())
	if !e.settings.Calendar.AfterClose(now) {
		return 0
	}
	if len(e.ledger.OpenPositions()) == 0 {
		return 0
	}
	closed, _ := e.ForceCloseAll(ctx, now)
	if closed > 0 {
		e.log.Info().Time("now", now).Int("closed", closed).Msg("session close reached")
	}
	return closed
}
