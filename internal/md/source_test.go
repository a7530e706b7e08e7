package md

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestParseTickMessage(t *testing.T) {
	tick, err := parseTickMessage([]byte(`{"token":"11630","last_traded_price":184.35,"exchange_timestamp":1718013600000}`))
	if err != nil {
		t.Fatalf("parseTickMessage returned error: %v", err)
	}
	if tick.Token != "11630" || tick.Price != 184.35 {
		t.Fatalf("unexpected tick %+v", tick)
	}
	if !tick.Time.Equal(time.UnixMilli(1718013600000)) {
		t.Fatalf("unexpected time %s", tick.Time)
	}
}

func TestParseTickMessageNumericTokenWithoutTimestamp(t *testing.T) {
	tick, err := parseTickMessage([]byte(`{"token":2475,"last_traded_price":"271.5"}`))
	if err != nil {
		t.Fatalf("parseTickMessage returned error: %v", err)
	}
	if tick.Price != 271.5 {
		t.Fatalf("expected quoted price to parse, got %.2f", tick.Price)
	}
	if tick.Token != "2475" {
		t.Fatalf("expected numeric token to be stringified, got %q", tick.Token)
	}
	if !tick.Time.IsZero() {
		t.Fatalf("expected zero time without exchange_timestamp")
	}
}

func TestParseTickMessageRejectsMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`{"last_traded_price":10}`,
		`{"token":"","last_traded_price":10}`,
		`{"token":"1"}`,
		`{"token":{"a":1},"last_traded_price":10}`,
	}
	for _, raw := range cases {
		if _, err := parseTickMessage([]byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestTickValid(t *testing.T) {
	if !(Tick{Token: "1", Price: 10}).Valid() {
		t.Fatalf("expected tick to be valid")
	}
	if (Tick{Token: "", Price: 10}).Valid() {
		t.Fatalf("expected empty token to be invalid")
	}
	if (Tick{Token: "1", Price: 0}).Valid() {
		t.Fatalf("expected zero price to be invalid")
	}
}

func TestStubSourceEmitsTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := NewStubSource([]string{"11630", "2475"}, 10*time.Millisecond, 1)
	ticks := make(chan Tick, 4)
	go func() {
		_ = src.Run(ctx, ticks)
	}()

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case tk := <-ticks:
			if !tk.Valid() {
				t.Fatalf("stub emitted invalid tick %+v", tk)
			}
			seen[tk.Token] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for ticks")
		}
	}
}

func TestWebsocketSourceEmitsTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"token":"11630","last_traded_price":184.35}`))
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := NewWebsocketSource("ws"+strings.TrimPrefix(server.URL, "http"), zerolog.Nop())
	ticks := make(chan Tick, 1)
	done := make(chan error, 1)
	go func() {
		done <- src.Run(ctx, ticks)
	}()

	select {
	case tk := <-ticks:
		if tk.Token != "11630" || tk.Price != 184.35 {
			t.Fatalf("unexpected tick %+v", tk)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("source did not stop after cancel")
	}
}

func TestWebsocketSourceResetsBackoffAfterConnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// One tick per connection, then drop it.
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"token":"11630","last_traded_price":184.35}`))
		conn.Close()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := NewWebsocketSource("ws"+strings.TrimPrefix(server.URL, "http"), zerolog.Nop())
	src.minBackoff = 10 * time.Millisecond
	src.maxBackoff = 10 * time.Second
	ticks := make(chan Tick, 16)
	go func() {
		_ = src.Run(ctx, ticks)
	}()

	// Without a reset the 12th reconnect would wait over ten seconds.
	deadline := time.After(3 * time.Second)
	for i := 0; i < 12; i++ {
		select {
		case <-ticks:
		case <-deadline:
			t.Fatalf("only %d reconnects before deadline, backoff kept growing", i)
		}
	}
}

func TestWebsocketConsumeReportsFailedDial(t *testing.T) {
	src := NewWebsocketSource("ws://127.0.0.1:1/ticks", zerolog.Nop())
	connected, err := src.consume(context.Background(), make(chan Tick, 1))
	if err == nil || connected {
		t.Fatalf("expected failed dial, got connected=%v err=%v", connected, err)
	}
}
