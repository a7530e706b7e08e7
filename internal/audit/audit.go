// Package audit persists trade signals and order confirmations as append-only
// records partitioned by trading day.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Signal records a trade decision at the moment it was taken.
type Signal struct {
	Timestamp time.Time `json:"timestamp"`
	Day       string    `json:"day"`
	Token     string    `json:"token"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Reason    string    `json:"reason,omitempty"`
}

// Order records a confirmed order.
type Order struct {
	Timestamp time.Time `json:"timestamp"`
	Day       string    `json:"day"`
	Token     string    `json:"token"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	OrderID   string    `json:"order_id"`
}

type Sink interface {
	AppendSignal(ctx context.Context, signal Signal) error
	AppendOrder(ctx context.Context, order Order) error
	Close() error
}

const timestampLayout = "2006-01-02 15:04:05.000000-07:00"

func formatPrice(price float64) string {
	return decimal.NewFromFloat(price).String()
}

func dayOf(day string, ts time.Time) string {
	if day != "" {
		return day
	}
	return ts.Format("2006-01-02")
}

// Multi writes every record to all sinks and joins their errors.
type Multi []Sink

func (m Multi) AppendSignal(ctx context.Context, signal Signal) error {
	var errs []error
	for _, sink := range m {
		if err := sink.AppendSignal(ctx, signal); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) AppendOrder(ctx context.Context, order Order) error {
	var errs []error
	for _, sink := range m {
		if err := sink.AppendOrder(ctx, order); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, sink := range m {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every record.
type Discard struct{}

func (Discard) AppendSignal(context.Context, Signal) error { return nil }
func (Discard) AppendOrder(context.Context, Order) error   { return nil }
func (Discard) Close() error                               { return nil }
