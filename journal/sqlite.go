package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/tolelom/procrastichain/events"
)

// SQLiteRecorder appends protocol events to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *zap.Logger) (*SQLiteRecorder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets analysis queries read while the node appends.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("journal opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS protocol_events (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at  INTEGER NOT NULL,
			block_height INTEGER NOT NULL,
			tx_id        TEXT,
			event_type   TEXT NOT NULL,
			data         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_height ON protocol_events(block_height)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON protocol_events(event_type)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s, err)
		}
	}
	return nil
}

// Record appends ev.
func (r *SQLiteRecorder) Record(ev events.Event) error {
	data, err := encodeData(ev.Data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.db.Exec(
		`INSERT INTO protocol_events (recorded_at, block_height, tx_id, event_type, data) VALUES (?, ?, ?, ?, ?)`,
		time.Now().UnixMilli(), ev.BlockHeight, ev.TxID, string(ev.Type), data,
	)
	if err != nil {
		return fmt.Errorf("insert protocol event: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *SQLiteRecorder) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(
		`SELECT id, recorded_at, block_height, tx_id, event_type, data
		 FROM protocol_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query protocol events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			recorded int64
			txID     sql.NullString
			data     sql.NullString
		)
		if err := rows.Scan(&e.ID, &recorded, &e.BlockHeight, &txID, &e.Type, &data); err != nil {
			return nil, fmt.Errorf("scan protocol event: %w", err)
		}
		e.RecordedAt = time.UnixMilli(recorded)
		e.TxID = txID.String
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &e.Data); err != nil {
				return nil, fmt.Errorf("decode event %d: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
