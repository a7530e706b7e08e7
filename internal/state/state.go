// Package state keeps the position ledger: open positions and the time of the
// last completed trade action, per instrument token.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

var ErrPositionExists = errors.New("position already open")

type Position struct {
	Token      string    `json:"token"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Qty        int       `json:"qty"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	OrderID    string    `json:"order_id"`
}

// Snapshot is the serialisable ledger content.
type Snapshot struct {
	Day        string               `json:"day"`
	Positions  map[string]Position  `json:"positions"`
	LastAction map[string]time.Time `json:"last_action"`
}

type Ledger struct {
	mu         sync.RWMutex
	positions  map[string]Position
	lastAction map[string]time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		positions:  map[string]Position{},
		lastAction: map[string]time.Time{},
	}
}

func (l *Ledger) Position(token string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[token]
	return pos, ok
}

// Open records a new position. A token holds at most one position.
func (l *Ledger) Open(pos Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.positions[pos.Token]; exists {
		return fmt.Errorf("open %s: %w", pos.Token, ErrPositionExists)
	}
	l.positions[pos.Token] = pos
	return nil
}

// Close removes and returns the position for token.
func (l *Ledger) Close(token string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[token]
	if ok {
		delete(l.positions, token)
	}
	return pos, ok
}

// MarkAction sets the cooldown marker for token.
func (l *Ledger) MarkAction(token string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastAction[token] = at
}

func (l *Ledger) LastAction(token string) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	at, ok := l.lastAction[token]
	return at, ok
}

// OpenPositions returns the open positions ordered by token.
func (l *Ledger) OpenPositions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

func (l *Ledger) Snapshot(day string) Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := Snapshot{
		Day:        day,
		Positions:  make(map[string]Position, len(l.positions)),
		LastAction: make(map[string]time.Time, len(l.lastAction)),
	}
	for k, v := range l.positions {
		snap.Positions[k] = v
	}
	for k, v := range l.lastAction {
		snap.LastAction[k] = v
	}
	return snap
}

func (l *Ledger) Restore(snap Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = make(map[string]Position, len(snap.Positions))
	for k, v := range snap.Positions {
		l.positions[k] = v
	}
	l.lastAction = make(map[string]time.Time, len(snap.LastAction))
	for k, v := range snap.LastAction {
		l.lastAction[k] = v
	}
}

// Save writes the ledger for the given trading day as JSON.
func (l *Ledger) Save(path, day string) error {
	data, err := json.MarshalIndent(l.Snapshot(day), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads a checkpoint written by Save.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	if snap.Positions == nil {
		snap.Positions = map[string]Position{}
	}
	if snap.LastAction == nil {
		snap.LastAction = map[string]time.Time{}
	}
	return snap, nil
}
