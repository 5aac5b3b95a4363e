// Package sqlite stores offset-change history in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boxboy523/inzi/internal/log"
	"github.com/boxboy523/inzi/internal/types"
	_ "modernc.org/sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS offset_history (
	id INTEGER PRIMARY KEY,
	timestamp TEXT NOT NULL,
	machine_id INTEGER NOT NULL,
	tool_slot INTEGER NOT NULL,
	old_value INTEGER NOT NULL,
	delta INTEGER NOT NULL,
	new_value INTEGER NOT NULL,
	success BOOLEAN NOT NULL,
	source TEXT NOT NULL DEFAULT 'write'
)`

const createIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_offset_history_slot
ON offset_history (machine_id, tool_slot, timestamp)`

// Storage holds a SQLite-backed history store.
type Storage struct {
	db *sql.DB
}

// New opens (creating if needed) the history database at path.
func New(path string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("could not open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not ping history database: %w", err)
	}

	for _, stmt := range []string{createTableSQL, createIndexSQL} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("could not create history schema: %w", err)
		}
	}

	return &Storage{db: db}, nil
}

// StartHistoryEngine creates a goroutine loop to receive records and write
// them behind the control loop's back.
func (s *Storage) StartHistoryEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.OffsetChangeRecord {
	log.Info("starting SQLite history engine...")
	recordChan := make(chan types.OffsetChangeRecord, 10)
	go s.processRecords(ctx, wg, recordChan)
	return recordChan
}

func (s *Storage) processRecords(ctx context.Context, wg *sync.WaitGroup, rchan <-chan types.OffsetChangeRecord) {
	wg.Add(1)
	defer wg.Done()

	for {
		select {
		case r := <-rchan:
			if err := s.StoreRecord(r); err != nil {
				log.Errorf("could not store history record: %v", err)
			}
		case <-ctx.Done():
			log.Info("cancellation request received. Cancelling history record processor")
			return
		}
	}
}

// StoreRecord inserts one record.
func (s *Storage) StoreRecord(r types.OffsetChangeRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO offset_history
			(timestamp, machine_id, tool_slot, old_value, delta, new_value, success, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UTC().Format(time.RFC3339Nano), r.MachineID, r.ToolSlot,
		r.OldValue, r.Delta, r.NewValue, r.Success, r.Source)
	return err
}

// Latest returns the most recent record for one tool slot, or nil.
func (s *Storage) Latest(machineID uint16, slot int16) (*types.OffsetChangeRecord, error) {
	records, err := s.Recent(machineID, slot, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// Recent returns up to limit records for one tool slot, newest first.
func (s *Storage) Recent(machineID uint16, slot int16, limit int) ([]types.OffsetChangeRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, machine_id, tool_slot, old_value, delta, new_value, success, source
		FROM offset_history
		WHERE machine_id = ? AND tool_slot = ?
		ORDER BY timestamp DESC
		LIMIT ?`, machineID, slot, limit)
	if err != nil {
		return nil, fmt.Errorf("could not query history: %w", err)
	}
	defer rows.Close()

	var records []types.OffsetChangeRecord
	for rows.Next() {
		var r types.OffsetChangeRecord
		var timestamp string
		err := rows.Scan(&r.ID, &timestamp, &r.MachineID, &r.ToolSlot,
			&r.OldValue, &r.Delta, &r.NewValue, &r.Success, &r.Source)
		if err != nil {
			return nil, fmt.Errorf("could not scan history row: %w", err)
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp); err != nil {
			return nil, fmt.Errorf("bad timestamp in history row %d: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *Storage) Close() error {
	return s.db.Close()
}
