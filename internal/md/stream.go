package md

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
	"github.com/rs/zerolog"
)

// AlpacaSource streams stock trades and maps each symbol back to the
// configured instrument token.
type AlpacaSource struct {
	apiKey    string
	apiSecret string
	feed      marketdata.Feed
	tokens    map[string]string
	log       zerolog.Logger
}

// NewAlpacaSource subscribes to trades for every symbol in symbolTokens
// (symbol -> token).
func NewAlpacaSource(apiKey, apiSecret, feed string, symbolTokens map[string]string, log zerolog.Logger) *AlpacaSource {
	tokens := make(map[string]string, len(symbolTokens))
	for symbol, token := range symbolTokens {
		tokens[symbol] = token
	}
	return &AlpacaSource{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		feed:      parseFeed(feed),
		tokens:    tokens,
		log:       log.With().Str("component", "alpaca_feed").Logger(),
	}
}

func (s *AlpacaSource) Run(ctx context.Context, out chan<- Tick) error {
	symbols := make([]string, 0, len(s.tokens))
	for symbol := range s.tokens {
		symbols = append(symbols, symbol)
	}

	client := stream.NewStocksClient(
		s.feed,
		stream.WithCredentials(s.apiKey, s.apiSecret),
	)

	// Connect must be called before subscribing in this SDK version.
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect market data stream: %w", err)
	}

	if err := client.SubscribeToTrades(func(trade stream.Trade) {
		tick, ok := s.toTick(trade)
		if !ok {
			s.log.Debug().Str("symbol", trade.Symbol).Msg("trade for unmapped symbol")
			return
		}
		// The handler runs on the SDK goroutine; a cancelled ctx just drops the trade.
		_ = emit(ctx, out, tick)
	}, symbols...); err != nil {
		return fmt.Errorf("subscribe to trades: %w", err)
	}

	s.log.Info().Strs("symbols", symbols).Msg("subscribed to trades")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-client.Terminated():
		if err != nil {
			return fmt.Errorf("market data stream terminated: %w", err)
		}
		return ctx.Err()
	}
}

func (s *AlpacaSource) toTick(trade stream.Trade) (Tick, bool) {
	token, ok := s.tokens[trade.Symbol]
	if !ok {
		return Tick{}, false
	}
	return Tick{Token: token, Price: trade.Price, Time: trade.Timestamp}, true
}

func parseFeed(feed string) marketdata.Feed {
	switch feed {
	case "iex":
		return marketdata.IEX
	case "sip":
		return marketdata.SIP
	default:
		return marketdata.IEX
	}
}
