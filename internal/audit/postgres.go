package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaQuery = `
	CREATE TABLE IF NOT EXISTS trade_signals (
		id          BIGSERIAL PRIMARY KEY,
		trading_day DATE NOT NULL,
		signaled_at TIMESTAMPTZ NOT NULL,
		token       TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		side        TEXT NOT NULL,
		price       NUMERIC NOT NULL,
		reason      TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS order_confirmations (
		id          BIGSERIAL PRIMARY KEY,
		trading_day DATE NOT NULL,
		ordered_at  TIMESTAMPTZ NOT NULL,
		token       TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		side        TEXT NOT NULL,
		price       NUMERIC NOT NULL,
		order_id    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS trade_signals_day_idx ON trade_signals (trading_day);
	CREATE INDEX IF NOT EXISTS order_confirmations_day_idx ON order_confirmations (trading_day);`

const insertSignalQuery = `
	INSERT INTO trade_signals (trading_day, signaled_at, token, symbol, side, price, reason)
	VALUES ($1,$2,$3,$4,$5,$6,$7)`

const insertOrderQuery = `
	INSERT INTO order_confirmations (trading_day, ordered_at, token, symbol, side, price, order_id)
	VALUES ($1,$2,$3,$4,$5,$6,$7)`

// PostgresSink inserts records into trade_signals and order_confirmations.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaQuery); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

func (s *PostgresSink) AppendSignal(ctx context.Context, signal Signal) error {
	_, err := s.pool.Exec(ctx, insertSignalQuery,
		dayOf(signal.Day, signal.Timestamp),
		signal.Timestamp,
		signal.Token,
		signal.Symbol,
		signal.Side,
		formatPrice(signal.Price),
		signal.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert trade signal: %w", err)
	}
	return nil
}

func (s *PostgresSink) AppendOrder(ctx context.Context, order Order) error {
	_, err := s.pool.Exec(ctx, insertOrderQuery,
		dayOf(order.Day, order.Timestamp),
		order.Timestamp,
		order.Token,
		order.Symbol,
		order.Side,
		formatPrice(order.Price),
		order.OrderID,
	)
	if err != nil {
		return fmt.Errorf("insert order confirmation: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
