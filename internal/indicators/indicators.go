// Package indicators computes technical indicators over an ordered price series.
//
// Every function reports whether its result is defined. A short series yields
// ok == false rather than a placeholder value.
package indicators

import "math"

// EMA returns the exponential moving average of prices using the weighting
// 2/(period+1). The average is seeded with the first price and applied
// recursively across the whole series.
func EMA(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period {
		return 0, false
	}
	alpha := 2.0 / float64(period+1)
	ema := prices[0]
	for _, price := range prices[1:] {
		ema = alpha*price + (1-alpha)*ema
	}
	return ema, true
}

// Bands returns the upper and lower volatility bands: the mean of the last
// period prices plus and minus k sample standard deviations.
func Bands(prices []float64, period int, k float64) (upper, lower float64, ok bool) {
	if period < 2 || len(prices) < period {
		return 0, 0, false
	}
	window := prices[len(prices)-period:]
	mean := 0.0
	for _, price := range window {
		mean += price
	}
	mean /= float64(period)

	variance := 0.0
	for _, price := range window {
		diff := price - mean
		variance += diff * diff
	}
	std := math.Sqrt(variance / float64(period-1))
	return mean + k*std, mean - k*std, true
}

// RSI returns the relative strength index over the last period price
// differences, using simple averages of gains and losses. It needs period+1
// prices. A window with gains and no losses saturates at 100; a flat window
// reports 50.
func RSI(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period+1 {
		return 0, false
	}
	var gains, losses float64
	for i := len(prices) - period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	return 100 - 100/(1+avgGain/avgLoss), true
}

// PercentChange returns the move from entry to current in percent.
func PercentChange(entry, current float64) (float64, bool) {
	if entry == 0 {
		return 0, false
	}
	return (current - entry) / entry * 100, true
}

// Snapshot holds the indicator values evaluated on one tick.
type Snapshot struct {
	ShortEMA  float64
	LongEMA   float64
	UpperBand float64
	LowerBand float64
	RSI       float64
}

// Params configures Compute.
type Params struct {
	ShortPeriod    int
	LongPeriod     int
	BandPeriod     int
	BandStdDev     float64
	OscillatorSpan int
}

// WindowSize is the rolling window bound: the longer of the long trend and
// band periods.
func (p Params) WindowSize() int {
	return max(p.LongPeriod, p.BandPeriod)
}

// Compute evaluates all indicators. ok is false if any of them is undefined.
func Compute(prices []float64, p Params) (Snapshot, bool) {
	var snap Snapshot
	var ok bool
	if snap.ShortEMA, ok = EMA(prices, p.ShortPeriod); !ok {
		return Snapshot{}, false
	}
	if snap.LongEMA, ok = EMA(prices, p.LongPeriod); !ok {
		return Snapshot{}, false
	}
	if snap.UpperBand, snap.LowerBand, ok = Bands(prices, p.BandPeriod, p.BandStdDev); !ok {
		return Snapshot{}, false
	}
	if snap.RSI, ok = RSI(prices, p.OscillatorSpan); !ok {
		return Snapshot{}, false
	}
	return snap, true
}
