package md

import (
	"context"
	"math/rand"
	"time"
)

// StubSource emits a seeded random walk per token, for offline runs.
type StubSource struct {
	tokens   []string
	interval time.Duration
	seed     int64
	start    float64
	step     float64
}

func NewStubSource(tokens []string, interval time.Duration, seed int64) *StubSource {
	if interval <= 0 {
		interval = time.Second
	}
	return &StubSource{
		tokens:   append([]string(nil), tokens...),
		interval: interval,
		seed:     seed,
		start:    100,
		step:     0.002,
	}
}

func (s *StubSource) Run(ctx context.Context, out chan<- Tick) error {
	rng := rand.New(rand.NewSource(s.seed))
	prices := make(map[string]float64, len(s.tokens))
	for _, token := range s.tokens {
		prices[token] = s.start
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, token := range s.tokens {
				px := prices[token] * (1 + (rng.Float64()-0.5)*2*s.step)
				prices[token] = px
				// Time is left zero so the engine stamps ticks with its own clock.
				if err := emit(ctx, out, Tick{Token: token, Price: px}); err != nil {
					return err
				}
			}
		}
	}
}
