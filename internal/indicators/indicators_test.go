package indicators

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func risingThenDrop() []float64 {
	prices := make([]float64, 0, 21)
	for i := 0; i < 20; i++ {
		prices = append(prices, 100+0.1*float64(i))
	}
	return append(prices, 99.0)
}

func TestEMAUndefinedWhenShort(t *testing.T) {
	if _, ok := EMA([]float64{1, 2, 3}, 4); ok {
		t.Fatalf("expected EMA to be undefined")
	}
	if _, ok := EMA([]float64{1, 2, 3}, 0); ok {
		t.Fatalf("expected EMA to be undefined for zero period")
	}
}

func TestEMASeededWithFirstPrice(t *testing.T) {
	ema, ok := EMA([]float64{10, 20, 30}, 3)
	if !ok {
		t.Fatalf("expected EMA to be defined")
	}
	// alpha = 0.5: 10 -> 15 -> 22.5
	if math.Abs(ema-22.5) > epsilon {
		t.Fatalf("expected 22.5, got %.6f", ema)
	}
}

func TestEMAConstantSeries(t *testing.T) {
	ema, ok := EMA([]float64{5, 5, 5, 5, 5}, 3)
	if !ok || ema != 5 {
		t.Fatalf("expected 5, got %.6f ok=%v", ema, ok)
	}
}

func TestBands(t *testing.T) {
	upper, lower, ok := Bands([]float64{99, 1, 2, 3, 4, 5}, 5, 2)
	if !ok {
		t.Fatalf("expected bands to be defined")
	}
	// last five: mean 3, sample std sqrt(2.5)
	std := math.Sqrt(2.5)
	if math.Abs(upper-(3+2*std)) > epsilon || math.Abs(lower-(3-2*std)) > epsilon {
		t.Fatalf("unexpected bands upper=%.6f lower=%.6f", upper, lower)
	}
}

func TestBandsUndefinedWhenShort(t *testing.T) {
	if _, _, ok := Bands([]float64{1, 2}, 3, 2); ok {
		t.Fatalf("expected bands to be undefined")
	}
	if _, _, ok := Bands([]float64{1, 2}, 1, 2); ok {
		t.Fatalf("expected bands to be undefined for a single-sample period")
	}
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		period int
		want   float64
	}{
		{name: "only gains", prices: []float64{1, 2, 3, 4}, period: 3, want: 100},
		{name: "flat", prices: []float64{2, 2, 2, 2}, period: 3, want: 50},
		{name: "only losses", prices: []float64{4, 3, 2, 1}, period: 3, want: 0},
		// gains 2, losses 1 -> rs 2 -> 66.67
		{name: "mixed", prices: []float64{10, 12, 11, 11}, period: 3, want: 100 - 100/3.0},
		{name: "uses last period diffs", prices: []float64{50, 10, 12, 11, 11}, period: 3, want: 100 - 100/3.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RSI(tt.prices, tt.period)
			if !ok {
				t.Fatalf("expected RSI to be defined")
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Fatalf("expected %.6f, got %.6f", tt.want, got)
			}
		})
	}
}

func TestRSIUndefinedWhenShort(t *testing.T) {
	if _, ok := RSI([]float64{1, 2, 3}, 3); ok {
		t.Fatalf("expected RSI to need period+1 prices")
	}
}

func TestPercentChange(t *testing.T) {
	change, ok := PercentChange(100, 100.5)
	if !ok || math.Abs(change-0.5) > 1e-9 {
		t.Fatalf("expected 0.5, got %.6f", change)
	}
	if _, ok := PercentChange(0, 1); ok {
		t.Fatalf("expected undefined change for zero entry")
	}
}

func TestComputeRisingThenDrop(t *testing.T) {
	params := Params{ShortPeriod: 9, LongPeriod: 21, BandPeriod: 20, BandStdDev: 2, OscillatorSpan: 14}
	snap, ok := Compute(risingThenDrop(), params)
	if !ok {
		t.Fatalf("expected snapshot to be defined")
	}
	if snap.ShortEMA <= snap.LongEMA {
		t.Fatalf("expected short EMA above long EMA, got %.4f <= %.4f", snap.ShortEMA, snap.LongEMA)
	}
	if 99.0 > snap.LowerBand {
		t.Fatalf("expected last price at or below lower band %.4f", snap.LowerBand)
	}
	if snap.RSI >= 40 {
		t.Fatalf("expected RSI below 40, got %.4f", snap.RSI)
	}
}

func TestComputeUndefinedUntilWindowFills(t *testing.T) {
	params := Params{ShortPeriod: 9, LongPeriod: 21, BandPeriod: 20, BandStdDev: 2, OscillatorSpan: 14}
	if _, ok := Compute(risingThenDrop()[:20], params); ok {
		t.Fatalf("expected snapshot to be undefined with 20 prices")
	}
	if params.WindowSize() != 21 {
		t.Fatalf("expected window size 21, got %d", params.WindowSize())
	}
}
