package md

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bandbot/internal/metrics"
)

// tickMessage is the JSON frame pushed by the broker's tick websocket.
// exchange_timestamp is epoch milliseconds.
type tickMessage struct {
	Token             json.RawMessage `json:"token"`
	LastTradedPrice   json.Number     `json:"last_traded_price"`
	ExchangeTimestamp int64           `json:"exchange_timestamp"`
}

// WebsocketSource reads JSON tick frames from url, reconnecting with
// exponential backoff.
type WebsocketSource struct {
	url          string
	log          zerolog.Logger
	pingInterval time.Duration
	readTimeout  time.Duration
	minBackoff   time.Duration
	maxBackoff   time.Duration
}

func NewWebsocketSource(url string, log zerolog.Logger) *WebsocketSource {
	return &WebsocketSource{
		url:          url,
		log:          log.With().Str("component", "websocket_feed").Logger(),
		pingInterval: 15 * time.Second,
		readTimeout:  30 * time.Second,
		minBackoff:   time.Second,
		maxBackoff:   30 * time.Second,
	}
}

func (s *WebsocketSource) Run(ctx context.Context, out chan<- Tick) error {
	backoff := s.minBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		connected, err := s.consume(ctx, out)
		if connected {
			backoff = s.minBackoff
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn().Err(err).Dur("backoff", backoff).Msg("tick feed disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(s.maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

// consume reads from one connection. connected reports whether the dial
// succeeded, so the caller can reset its backoff.
func (s *WebsocketSource) consume(ctx context.Context, out chan<- Tick) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	s.log.Info().Str("url", s.url).Msg("connected tick feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					s.log.Warn().Err(err).Msg("tick feed ping failed")
					return
				}
			case <-pingCtx.Done():
				// Unblock ReadMessage.
				conn.Close()
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			return true, err
		}
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))

		tick, err := parseTickMessage(message)
		if err != nil {
			metrics.MalformedTicksTotal.Inc()
			s.log.Warn().Err(err).Msg("discarding malformed tick frame")
			continue
		}
		if err := emit(ctx, out, tick); err != nil {
			return true, err
		}
	}
}

func parseTickMessage(message []byte) (Tick, error) {
	var msg tickMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return Tick{}, fmt.Errorf("decode tick: %w", err)
	}
	token, err := parseToken(msg.Token)
	if err != nil {
		return Tick{}, err
	}
	price, err := msg.LastTradedPrice.Float64()
	if err != nil {
		return Tick{}, fmt.Errorf("tick %s: invalid last_traded_price %q", token, msg.LastTradedPrice)
	}
	tick := Tick{Token: token, Price: price}
	if msg.ExchangeTimestamp > 0 {
		tick.Time = time.UnixMilli(msg.ExchangeTimestamp)
	}
	return tick, nil
}

// parseToken accepts the token as a JSON string or number.
func parseToken(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("tick without token")
	}
	var token string
	if err := json.Unmarshal(raw, &token); err == nil {
		if token == "" {
			return "", fmt.Errorf("tick without token")
		}
		return token, nil
	}
	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return "", fmt.Errorf("invalid token %s", raw)
	}
	if _, err := strconv.ParseInt(number.String(), 10, 64); err != nil {
		return "", fmt.Errorf("invalid token %s", raw)
	}
	return number.String(), nil
}
