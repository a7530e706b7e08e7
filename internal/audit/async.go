package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrQueueFull = errors.New("audit queue full")
	ErrClosed    = errors.New("audit sink closed")
)

type record struct {
	signal *Signal
	order  *Order
}

// Async hands records to a background worker so callers never wait on the
// underlying sink. Write failures are logged and passed to OnError.
type Async struct {
	sink    Sink
	queue   chan record
	log     zerolog.Logger
	timeout time.Duration
	onError func(error)

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type AsyncOption func(*Async)

// WithWriteTimeout bounds each write made by the worker.
func WithWriteTimeout(d time.Duration) AsyncOption {
	return func(a *Async) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithErrorHandler is called from the worker for every failed write.
func WithErrorHandler(fn func(error)) AsyncOption {
	return func(a *Async) {
		a.onError = fn
	}
}

func NewAsync(sink Sink, size int, log zerolog.Logger, opts ...AsyncOption) *Async {
	if size <= 0 {
		size = 256
	}
	a := &Async{
		sink:    sink,
		queue:   make(chan record, size),
		log:     log.With().Str("component", "audit").Logger(),
		timeout: 5 * time.Second,
		onError: func(error) {},
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for rec := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		var err error
		if rec.signal != nil {
			err = a.sink.AppendSignal(ctx, *rec.signal)
		} else if rec.order != nil {
			err = a.sink.AppendOrder(ctx, *rec.order)
		}
		cancel()
		if err != nil {
			a.log.Warn().Err(err).Msg("audit write failed")
			a.onError(err)
		}
	}
}

func (a *Async) enqueue(rec record) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- rec:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Async) AppendSignal(_ context.Context, signal Signal) error {
	return a.enqueue(record{signal: &signal})
}

func (a *Async) AppendOrder(_ context.Context, order Order) error {
	return a.enqueue(record{order: &order})
}

// Close drains the queue and closes the wrapped sink.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.sink.Close()
}
