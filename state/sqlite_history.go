package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"time_horizon/logs"

	_ "modernc.org/sqlite"
)

// Ensure SQLiteHistory implements HistoryStore
var _ HistoryStore = (*SQLiteHistory)(nil)

// SQLiteHistory persists decisions to an append-only SQLite table.
type SQLiteHistory struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteHistory opens (or creates) the database and runs migrations.
func NewSQLiteHistory(dbPath string) (*SQLiteHistory, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL: audit readers may attach while the node writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	h := &SQLiteHistory{db: db}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logs.Infof("[History] sqlite history opened: %s", dbPath)
	return h, nil
}

func (h *SQLiteHistory) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS intervention_history (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id          TEXT NOT NULL,
			timestamp         INTEGER NOT NULL,
			stress            REAL NOT NULL,
			level             TEXT NOT NULL,
			throttle_delay_ms INTEGER NOT NULL,
			cooling_off_min   INTEGER NOT NULL,
			glass_floor_tx    TEXT,
			proof             TEXT,
			message           TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_ts ON intervention_history(timestamp)`,
	}
	for _, s := range stmts {
		if _, err := h.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (h *SQLiteHistory) Append(e Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.db.Exec(`INSERT INTO intervention_history
		(cycle_id, timestamp, stress, level, throttle_delay_ms, cooling_off_min, glass_floor_tx, proof, message)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		e.CycleID, e.Timestamp.UnixNano(), e.Stress, e.Level,
		e.ThrottleDelayMs, e.CoolingOffMinutes, e.GlassFloorTx, e.Proof, e.Message,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (h *SQLiteHistory) LoadAll() ([]Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rows, err := h.db.Query(`SELECT cycle_id, timestamp, stress, level, throttle_delay_ms,
		cooling_off_min, glass_floor_tx, proof, message
		FROM intervention_history ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e       Entry
			ts      int64
			tx      sql.NullString
			proof   sql.NullString
			message sql.NullString
		)
		if err := rows.Scan(&e.CycleID, &ts, &e.Stress, &e.Level, &e.ThrottleDelayMs,
			&e.CoolingOffMinutes, &tx, &proof, &message); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.GlassFloorTx = tx.String
		e.Proof = proof.String
		e.Message = message.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (h *SQLiteHistory) Close() error {
	logs.Info("[History] closing sqlite history")
	return h.db.Close()
}
