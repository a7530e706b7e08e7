package audit

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	signalFilePrefix = "log_trade_signals"
	orderFilePrefix  = "log_order"
)

// CSVSink appends rows to one file per stream and trading day, e.g.
// log_trade_signals2025-03-10.csv and log_order2025-03-10.csv.
type CSVSink struct {
	dir   string
	mu    sync.Mutex
	files map[string]*csvFile
}

type csvFile struct {
	file   *os.File
	writer *bufio.Writer
}

func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &CSVSink{dir: dir, files: map[string]*csvFile{}}, nil
}

// SignalPath returns the signal file for day.
func (s *CSVSink) SignalPath(day string) string {
	return filepath.Join(s.dir, signalFilePrefix+day+".csv")
}

// OrderPath returns the order file for day.
func (s *CSVSink) OrderPath(day string) string {
	return filepath.Join(s.dir, orderFilePrefix+day+".csv")
}

func (s *CSVSink) AppendSignal(_ context.Context, signal Signal) error {
	row := []string{
		signal.Timestamp.Format(timestampLayout),
		signal.Token,
		signal.Side,
		formatPrice(signal.Price),
	}
	return s.append(s.SignalPath(dayOf(signal.Day, signal.Timestamp)), row)
}

func (s *CSVSink) AppendOrder(_ context.Context, order Order) error {
	row := []string{
		order.Timestamp.Format(timestampLayout),
		order.Token,
		order.Side,
		formatPrice(order.Price),
		order.OrderID,
	}
	return s.append(s.OrderPath(dayOf(order.Day, order.Timestamp)), row)
}

func (s *CSVSink) append(path string, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open(path)
	if err != nil {
		return err
	}
	if _, err := f.writer.WriteString(strings.Join(row, ",") + "\n"); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

func (s *CSVSink) open(path string) (*csvFile, error) {
	if f, ok := s.files[path]; ok {
		return f, nil
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	f := &csvFile{file: file, writer: bufio.NewWriter(file)}
	s.files[path] = f
	return f, nil
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for path, f := range s.files {
		if err := f.writer.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := f.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.files, path)
	}
	return firstErr
}
