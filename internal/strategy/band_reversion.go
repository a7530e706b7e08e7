package strategy

import (
	"fmt"

	"bandbot/internal/indicators"
	"bandbot/internal/state"
)

// BandReversion enters against a band touch that runs with the EMA trend and
// exits on a fixed percent profit.
//
// Long entry: short EMA above long EMA, price at or below the lower band and
// RSI below Oversold. Short entry mirrors it with the upper band and
// Overbought. An open position exits once its gain reaches the snapshot's
// profit threshold.
type BandReversion struct {
	Oversold   float64
	Overbought float64
}

func NewBandReversion(oversold, overbought float64) BandReversion {
	return BandReversion{Oversold: oversold, Overbought: overbought}
}

func (b BandReversion) Decide(snapshot MarketSnapshot) TradeIntent {
	if snapshot.Position != nil {
		return b.exit(snapshot)
	}
	return b.entry(snapshot)
}

func (b BandReversion) entry(snapshot MarketSnapshot) TradeIntent {
	ind := snapshot.Indicators
	price := snapshot.Price

	if ind.ShortEMA > ind.LongEMA && price <= ind.LowerBand && ind.RSI < b.Oversold {
		return TradeIntent{
			Action: Buy,
			Kind:   KindEntry,
			Side:   state.Long,
			Reason: fmt.Sprintf("uptrend_lower_band_rsi=%.2f", ind.RSI),
		}
	}
	if ind.ShortEMA < ind.LongEMA && price >= ind.UpperBand && ind.RSI > b.Overbought {
		return TradeIntent{
			Action: Sell,
			Kind:   KindEntry,
			Side:   state.Short,
			Reason: fmt.Sprintf("downtrend_upper_band_rsi=%.2f", ind.RSI),
		}
	}
	return TradeIntent{Action: Hold, Reason: "no_signal"}
}

func (b BandReversion) exit(snapshot MarketSnapshot) TradeIntent {
	pos := snapshot.Position
	change, ok := indicators.PercentChange(pos.EntryPrice, snapshot.Price)
	if !ok {
		return TradeIntent{Action: Hold, Reason: "invalid_entry_price"}
	}
	threshold := snapshot.ProfitThreshold

	switch {
	case pos.Side == state.Long && change >= threshold:
		return TradeIntent{
			Action: Sell,
			Kind:   KindExit,
			Side:   state.Long,
			Reason: fmt.Sprintf("profit_target change=%.3f%%", change),
		}
	case pos.Side == state.Short && change <= -threshold:
		return TradeIntent{
			Action: Buy,
			Kind:   KindExit,
			Side:   state.Short,
			Reason: fmt.Sprintf("profit_target change=%.3f%%", change),
		}
	}
	return TradeIntent{Action: Hold, Reason: "below_target"}
}
