package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"time_horizon/logs"
)

// Ensure JSONHistory implements HistoryStore
var _ HistoryStore = (*JSONHistory)(nil)

// historyFile is the on-disk document.
type historyFile struct {
	History     []Entry   `json:"history"`
	LastUpdated time.Time `json:"last_updated"`
}

// JSONHistory keeps the whole history in one JSON document. Every append
// rewrites the file atomically (temp file + rename), so a crash leaves either
// the old or the new document, never a torn one.
type JSONHistory struct {
	mu       sync.RWMutex
	filePath string
	doc      *historyFile
}

// NewJSONHistory loads the history at filePath, creating an empty document
// when the file does not exist yet.
func NewJSONHistory(filePath string) (*JSONHistory, error) {
	h := &JSONHistory{
		filePath: filePath,
		doc:      &historyFile{History: make([]Entry, 0)},
	}

	if err := h.load(); err != nil {
		if os.IsNotExist(err) {
			logs.Infof("[History] No history file at %s, starting with an empty history.", filePath)
			if err := h.save(); err != nil {
				return nil, fmt.Errorf("failed to create initial history file: %w", err)
			}
			return h, nil
		}
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return h, nil
}

// save writes the document atomically. Callers hold the lock.
func (h *JSONHistory) save() error {
	data, err := json.MarshalIndent(h.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history for saving: %w", err)
	}

	if dir := filepath.Dir(h.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	tmpFilePath := h.filePath + ".tmp"
	f, err := os.OpenFile(tmpFilePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open temporary history file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write temporary history file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync temporary history file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temporary history file: %w", err)
	}
	if err := os.Rename(tmpFilePath, h.filePath); err != nil {
		return err
	}
	// The rename has landed; a directory sync failure is only logged.
	if err := syncDir(filepath.Dir(h.filePath)); err != nil {
		logs.Warnf("[History] Failed to sync history directory: %v", err)
	}
	return nil
}

// syncDir flushes directory metadata so a completed rename survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		d.Close()
		return err
	}
	return d.Close()
}

func (h *JSONHistory) load() error {
	data, err := os.ReadFile(h.filePath)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil // Empty file is treated as an empty history
	}
	var doc historyFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.History == nil {
		doc.History = make([]Entry, 0)
	}
	h.doc = &doc
	return nil
}

// Append adds e and persists the document. On a failed write the in-memory
// copy is rolled back so memory and disk stay in step.
func (h *JSONHistory) Append(e Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	prevUpdated := h.doc.LastUpdated
	h.doc.History = append(h.doc.History, e)
	h.doc.LastUpdated = time.Now().UTC()
	if err := h.save(); err != nil {
		h.doc.History = h.doc.History[:len(h.doc.History)-1]
		h.doc.LastUpdated = prevUpdated
		return err
	}
	return nil
}

// LoadAll returns a copy of every entry in append order.
func (h *JSONHistory) LoadAll() ([]Entry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Entry, len(h.doc.History))
	copy(out, h.doc.History)
	return out, nil
}

// LastUpdated returns when the document was last written.
func (h *JSONHistory) LastUpdated() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.doc.LastUpdated
}

func (h *JSONHistory) Close() error { return nil }
