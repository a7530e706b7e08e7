package audit

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type memorySink struct {
	mu      sync.Mutex
	signals []Signal
	orders  []Order
	err     error
	closed  bool
}

func (m *memorySink) AppendSignal(_ context.Context, signal Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.signals = append(m.signals, signal)
	return nil
}

func (m *memorySink) AppendOrder(_ context.Context, order Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.orders = append(m.orders, order)
	return nil
}

func (m *memorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func TestCSVSinkPartitionsByDay(t *testing.T) {
	sink, err := NewCSVSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewCSVSink error: %v", err)
	}
	ts := time.Date(2025, 3, 10, 10, 15, 0, 0, time.FixedZone("IST", 5*3600+1800))
	ctx := context.Background()

	if err := sink.AppendSignal(ctx, Signal{Timestamp: ts, Day: "2025-03-10", Token: "11630", Side: "BUY", Price: 99}); err != nil {
		t.Fatalf("append signal: %v", err)
	}
	if err := sink.AppendOrder(ctx, Order{Timestamp: ts, Day: "2025-03-10", Token: "11630", Side: "BUY", Price: 99.05, OrderID: "ord-1"}); err != nil {
		t.Fatalf("append order: %v", err)
	}
	if err := sink.AppendOrder(ctx, Order{Timestamp: ts.Add(24 * time.Hour), Day: "2025-03-11", Token: "11630", Side: "SELL", Price: 100, OrderID: "ord-2"}); err != nil {
		t.Fatalf("append order: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	signals, err := os.ReadFile(sink.SignalPath("2025-03-10"))
	if err != nil {
		t.Fatalf("read signals: %v", err)
	}
	if want := "2025-03-10 10:15:00.000000+05:30,11630,BUY,99\n"; string(signals) != want {
		t.Fatalf("unexpected signal rows %q", signals)
	}

	orders, err := os.ReadFile(sink.OrderPath("2025-03-10"))
	if err != nil {
		t.Fatalf("read orders: %v", err)
	}
	if !strings.HasSuffix(string(orders), ",11630,BUY,99.05,ord-1\n") {
		t.Fatalf("unexpected order rows %q", orders)
	}
	next, err := os.ReadFile(sink.OrderPath("2025-03-11"))
	if err != nil {
		t.Fatalf("read next day orders: %v", err)
	}
	if !strings.Contains(string(next), "ord-2") {
		t.Fatalf("expected next day order, got %q", next)
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	good := &memorySink{}
	bad := &memorySink{err: errors.New("down")}
	multi := Multi{good, bad}

	err := multi.AppendOrder(context.Background(), Order{OrderID: "ord-1"})
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(good.orders) != 1 {
		t.Fatalf("expected healthy sink to receive the order")
	}
}

func TestAsyncDrainsOnClose(t *testing.T) {
	inner := &memorySink{}
	async := NewAsync(inner, 8, zerolog.Nop())

	for i := 0; i < 5; i++ {
		if err := async.AppendSignal(context.Background(), Signal{Token: "11630"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := async.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(inner.signals) != 5 || !inner.closed {
		t.Fatalf("expected 5 drained signals and closed sink, got %d closed=%v", len(inner.signals), inner.closed)
	}
	if err := async.AppendSignal(context.Background(), Signal{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestAsyncReportsWriteFailures(t *testing.T) {
	inner := &memorySink{err: errors.New("disk full")}
	var mu sync.Mutex
	var failures int
	async := NewAsync(inner, 4, zerolog.Nop(), WithErrorHandler(func(error) {
		mu.Lock()
		failures++
		mu.Unlock()
	}))

	_ = async.AppendOrder(context.Background(), Order{OrderID: "ord-1"})
	_ = async.Close()

	mu.Lock()
	defer mu.Unlock()
	if failures != 1 {
		t.Fatalf("expected one reported failure, got %d", failures)
	}
}
