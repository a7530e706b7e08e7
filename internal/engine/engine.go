// Package engine runs the per-tick trading loop: it keeps a rolling price
// window per instrument, evaluates the strategy once the window is warm and
// turns approved intents into market orders and audit records.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bandbot/internal/audit"
	"bandbot/internal/broker"
	"bandbot/internal/indicators"
	"bandbot/internal/md"
	"bandbot/internal/metrics"
	"bandbot/internal/risk"
	"bandbot/internal/session"
	"bandbot/internal/state"
	"bandbot/internal/strategy"
)

// Gateway submits market orders. Both broker.Client and broker.Paper satisfy it.
type Gateway interface {
	SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderRef, error)
}

// Instrument is a tradable token with its broker symbol and order size.
type Instrument struct {
	Token  string
	Symbol string
	Qty    int
}

// Settings holds the indicator, session and trading rule parameters.
type Settings struct {
	Indicators      indicators.Params
	Calendar        session.Calendar
	Cooldown        time.Duration
	MinHold         time.Duration
	CooldownOnEntry bool
	KillSwitch      bool
	OrderTimeout    time.Duration
	CheckInterval   time.Duration
}

type instrument struct {
	Instrument
	window *md.Window
}

// Engine evaluates ticks for a fixed set of instruments against one ledger.
type Engine struct {
	settings    Settings
	instruments map[string]*instrument
	strategy    strategy.Strategy
	gate        risk.Gate
	gateway     Gateway
	ledger      *state.Ledger
	sink        audit.Sink
	log         zerolog.Logger
	now         func() time.Time
	runID       string
	orderSeqNum uint64

	// blockedDay records the day a blocked forced close was last logged, per token.
	blockedDay map[string]string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for ticks without an exchange
// timestamp and for the session timer.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRunID sets the prefix of generated client order ids.
func WithRunID(runID string) Option {
	return func(e *Engine) {
		if runID != "" {
			e.runID = runID
		}
	}
}

// New builds an Engine with an empty price window per instrument.
func New(settings Settings, instruments []Instrument, strat strategy.Strategy, gateway Gateway, ledger *state.Ledger, sink audit.Sink, log zerolog.Logger, opts ...Option) (*Engine, error) {
	size := settings.Indicators.WindowSize()
	if size <= 0 {
		return nil, errors.New("indicator window size must be > 0")
	}
	if settings.OrderTimeout <= 0 {
		settings.OrderTimeout = 10 * time.Second
	}
	if settings.CheckInterval <= 0 {
		settings.CheckInterval = 15 * time.Second
	}
	if sink == nil {
		sink = audit.Discard{}
	}

	byToken := make(map[string]*instrument, len(instruments))
	for _, inst := range instruments {
		if _, dup := byToken[inst.Token]; dup {
			return nil, fmt.Errorf("duplicate instrument token %q", inst.Token)
		}
		byToken[inst.Token] = &instrument{Instrument: inst, window: md.NewWindow(size)}
	}

	e := &Engine{
		settings:    settings,
		instruments: byToken,
		strategy:    strat,
		gate:        risk.Gate{},
		gateway:     gateway,
		ledger:      ledger,
		sink:        sink,
		log:         log.With().Str("component", "engine").Logger(),
		now:         time.Now,
		runID:       uuid.NewString(),
		blockedDay:  map[string]string{},
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, pos := range ledger.OpenPositions() {
		metrics.OpenPositions.WithLabelValues(pos.Symbol).Set(sideValue(pos.Side))
	}
	return e, nil
}

// OnTick evaluates one tick. Ticks must be delivered from a single goroutine.
func (e *Engine) OnTick(ctx context.Context, tick md.Tick) Outcome {
	if !tick.Valid() {
		metrics.MalformedTicksTotal.Inc()
		e.log.Warn().Str("token", tick.Token).Float64("price", tick.Price).Msg("discarding malformed tick")
		return OutcomeIgnored
	}
	inst, ok := e.instruments[tick.Token]
	if !ok {
		e.log.Debug().Str("token", tick.Token).Msg("skipping unknown token")
		return OutcomeIgnored
	}

	ts := tick.Time
	if ts.IsZero() {
		ts = e.now()
	}
	ts = e.settings.Calendar.In(ts)
	price := tick.Price

	inst.window.Add(price)
	metrics.TicksTotal.WithLabelValues(inst.Symbol).Inc()

	outcome := e.evaluate(ctx, inst, ts, price)
	metrics.DecisionsTotal.WithLabelValues(inst.Symbol, string(outcome)).Inc()
	return outcome
}

func (e *Engine) evaluate(ctx context.Context, inst *instrument, ts time.Time, price float64) Outcome {
	cal := e.settings.Calendar
	if cal.AfterClose(ts) {
		if closed, blocked := e.ForceCloseAll(ctx, ts); blocked > 0 && closed == 0 {
			return OutcomeRejected
		}
		return OutcomeForceClosed
	}

	snap, ok := indicators.Compute(inst.window.Values(), e.settings.Indicators)
	if !ok {
		return OutcomeWarmingUp
	}

	riskCtx := e.riskContext(inst, ts)
	if err := e.gate.Admit(riskCtx); err != nil {
		switch {
		case errors.Is(err, risk.ErrCooldownActive):
			e.log.Debug().Str("symbol", inst.Symbol).Dur("remaining", riskCtx.CooldownRemaining()).Msg("cooldown active")
			return OutcomeCooldown
		default:
			return OutcomeHolding
		}
	}

	intent := e.strategy.Decide(strategy.MarketSnapshot{
		Timestamp:       ts,
		Price:           price,
		Indicators:      snap,
		Position:        riskCtx.Position,
		ProfitThreshold: cal.ProfitThreshold(ts),
	})

	logEvent := e.log.Debug().
		Str("symbol", inst.Symbol).
		Float64("price", price).
		Float64("ema_short", snap.ShortEMA).
		Float64("ema_long", snap.LongEMA).
		Float64("upper_band", snap.UpperBand).
		Float64("lower_band", snap.LowerBand).
		Float64("rsi", snap.RSI)
	if intent.Action == strategy.Hold {
		logEvent.Str("reason", intent.Reason).Msg("no signal")
		return OutcomeNoSignal
	}
	logEvent.Str("intent", string(intent.Action)).Str("reason", intent.Reason).Msg("signal")

	if err := e.gate.Approve(intent, riskCtx); err != nil {
		e.log.Info().Str("symbol", inst.Symbol).Str("intent", string(intent.Action)).Err(err).Msg("intent rejected")
		return OutcomeRejected
	}

	e.appendSignal(ctx, audit.Signal{
		Timestamp: ts,
		Day:       cal.Day(ts),
		Token:     inst.Token,
		Symbol:    inst.Symbol,
		Side:      string(intent.Action),
		Price:     price,
		Reason:    intent.Reason,
	})

	ref, err := e.submit(ctx, inst.Token, inst.Symbol, inst.Qty, intent.Action)
	if err != nil {
		e.log.Error().
			Str("symbol", inst.Symbol).
			Str("side", string(intent.Action)).
			Str("kind", string(intent.Kind)).
			Err(err).
			Msg("order failed")
		return OutcomeOrderFailed
	}

	outcome := OutcomeEntered
	switch intent.Kind {
	case strategy.KindEntry:
		pos := state.Position{
			Token:      inst.Token,
			Symbol:     inst.Symbol,
			Side:       intent.Side,
			Qty:        inst.Qty,
			EntryPrice: price,
			EntryTime:  ts,
			OrderID:    ref.ID,
		}
		if err := e.ledger.Open(pos); err != nil {
			e.log.Error().Str("symbol", inst.Symbol).Err(err).Msg("record position")
		}
		if e.settings.CooldownOnEntry {
			e.ledger.MarkAction(inst.Token, ts)
		}
		metrics.OpenPositions.WithLabelValues(inst.Symbol).Set(sideValue(intent.Side))
	case strategy.KindExit:
		e.ledger.Close(inst.Token)
		e.ledger.MarkAction(inst.Token, ts)
		metrics.OpenPositions.WithLabelValues(inst.Symbol).Set(0)
		outcome = OutcomeExited
	}

	e.appendOrder(ctx, audit.Order{
		Timestamp: ts,
		Day:       cal.Day(ts),
		Token:     inst.Token,
		Symbol:    inst.Symbol,
		Side:      string(intent.Action),
		Price:     price,
		OrderID:   ref.ID,
	})
	e.log.Info().
		Str("symbol", inst.Symbol).
		Str("side", string(intent.Action)).
		Str("kind", string(intent.Kind)).
		Float64("price", price).
		Str("order_id", ref.ID).
		Str("reason", intent.Reason).
		Msg(string(outcome))
	return outcome
}

func (e *Engine) riskContext(inst *instrument, ts time.Time) risk.RiskContext {
	last, hasLast := e.ledger.LastAction(inst.Token)
	rc := risk.RiskContext{
		Now:           ts,
		LastAction:    last,
		HasLastAction: hasLast,
		Cooldown:      e.settings.Cooldown,
		MinHold:       e.settings.MinHold,
		Qty:           inst.Qty,
		KillSwitch:    e.settings.KillSwitch,
	}
	if pos, ok := e.ledger.Position(inst.Token); ok {
		rc.Position = &pos
	}
	return rc
}

// ForceCloseAll sends one opposite-side market order per open position and
// removes every position from the ledger. The position is dropped even when
// its order fails; such failures are logged and counted. It returns the
// number of positions closed and the number the rule gate kept open.
func (e *Engine) ForceCloseAll(ctx context.Context, ts time.Time) (closed, blocked int) {
	cal := e.settings.Calendar
	positions := e.ledger.OpenPositions()
	for _, pos := range positions {
		price := pos.EntryPrice
		if inst, ok := e.instruments[pos.Token]; ok {
			if last, ok := inst.window.Last(); ok {
				price = last
			}
		}
		action := strategy.ExitAction(pos.Side)
		intent := strategy.TradeIntent{Action: action, Kind: strategy.KindExit, Side: pos.Side, Reason: "session_close"}
		if err := e.gate.Approve(intent, risk.RiskContext{Position: &pos, Qty: pos.Qty, KillSwitch: e.settings.KillSwitch}); err != nil {
			blocked++
			if day := cal.Day(ts); e.blockedDay[pos.Token] != day {
				e.blockedDay[pos.Token] = day
				e.log.Error().Str("symbol", pos.Symbol).Err(err).Msg("forced close blocked, position left open")
			}
			continue
		}

		ref, err := e.submit(ctx, pos.Token, pos.Symbol, pos.Qty, action)
		e.ledger.Close(pos.Token)
		e.ledger.MarkAction(pos.Token, ts)
		metrics.OpenPositions.WithLabelValues(pos.Symbol).Set(0)
		closed++
		if err != nil {
			metrics.ForcedCloseFailuresTotal.WithLabelValues(pos.Symbol).Inc()
			e.log.Error().
				Str("symbol", pos.Symbol).
				Str("side", string(action)).
				Float64("price", price).
				Err(err).
				Msg("forced close order failed, position dropped from ledger")
			continue
		}

		e.appendOrder(ctx, audit.Order{
			Timestamp: ts,
			Day:       cal.Day(ts),
			Token:     pos.Token,
			Symbol:    pos.Symbol,
			Side:      string(action),
			Price:     price,
			OrderID:   ref.ID,
		})
		e.log.Info().
			Str("symbol", pos.Symbol).
			Str("side", string(action)).
			Float64("price", price).
			Str("order_id", ref.ID).
			Msg("force closed")
	}
	return closed, blocked
}

func (e *Engine) submit(ctx context.Context, token, symbol string, qty int, action strategy.Action) (broker.OrderRef, error) {
	side := alpaca.Buy
	if action == strategy.Sell {
		side = alpaca.Sell
	}
	req := broker.OrderRequest{
		Token:         token,
		Symbol:        symbol,
		Qty:           qty,
		Side:          side,
		ClientOrderID: e.nextClientOrderID(),
	}

	orderCtx, cancel := context.WithTimeout(ctx, e.settings.OrderTimeout)
	defer cancel()

	start := time.Now()
	ref, err := e.gateway.SubmitOrder(orderCtx, req)
	metrics.OrderLatency.Observe(time.Since(start).Seconds())

	result := "success"
	if err != nil {
		result = string(broker.ReasonOf(err))
		if result == "" {
			result = "error"
		}
	} else if ref.ID == "" {
		err = &broker.OrderError{Reason: broker.ReasonEmptyOrderID, Symbol: symbol, Side: side}
		result = string(broker.ReasonEmptyOrderID)
	}
	metrics.OrdersTotal.WithLabelValues(symbol, string(side), result).Inc()
	return ref, err
}

func (e *Engine) nextClientOrderID() string {
	seq := atomic.AddUint64(&e.orderSeqNum, 1)
	return fmt.Sprintf("%s-%d", e.runID, seq)
}

func (e *Engine) appendSignal(ctx context.Context, signal audit.Signal) {
	if err := e.sink.AppendSignal(ctx, signal); err != nil {
		metrics.AuditFailuresTotal.Inc()
		e.log.Warn().Str("symbol", signal.Symbol).Err(err).Msg("audit signal failed")
	}
}

func (e *Engine) appendOrder(ctx context.Context, order audit.Order) {
	if err := e.sink.AppendOrder(ctx, order); err != nil {
		metrics.AuditFailuresTotal.Inc()
		e.log.Warn().Str("symbol", order.Symbol).Str("order_id", order.OrderID).Err(err).Msg("audit order failed")
	}
}

func sideValue(side state.Side) float64 {
	if side == state.Short {
		return -1
	}
	return 1
}
