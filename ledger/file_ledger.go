package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Ensure FileLedger implements Ledger
var _ Ledger = (*FileLedger)(nil)

// FileLedger appends events to a JSON-lines file. Lines are never rewritten.
type FileLedger struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewFileLedger opens (or creates) the ledger file for appending.
func NewFileLedger(path string) (*FileLedger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	return &FileLedger{path: path, file: f}, nil
}

// Publish writes one record line and syncs it to disk before returning the tx id.
func (l *FileLedger) Publish(ctx context.Context, ev Event) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	txID, err := TxID(ev)
	if err != nil {
		return "", err
	}
	line, err := Canonical(Record{Event: ev, TxID: txID})
	if err != nil {
		return "", err
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return "", fmt.Errorf("%w: ledger closed", ErrUnavailable)
	}
	if _, err := l.file.Write(line); err != nil {
		return "", fmt.Errorf("%w: write: %v", ErrUnavailable, err)
	}
	if err := l.file.Sync(); err != nil {
		return "", fmt.Errorf("%w: sync: %v", ErrUnavailable, err)
	}
	return txID, nil
}

func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadRecords loads every record from a JSON-lines ledger file in append order.
func ReadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}
