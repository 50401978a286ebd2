/*
Package sqlite holds the terminal-side durable state: the queue of sales
recorded while offline and the last known fair state.

Each lives in a named slot of the local_slots table as a JSON payload,
rewritten on every change. The file survives process restarts, which is the
only durability the terminal needs.
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mamadbah2/feria/internal/domain/models"
	"github.com/mamadbah2/feria/internal/repository"
)

// Fixed slot identifiers.
const (
	PendingSlot   = "pending_sales_orders"
	FairStateSlot  = "last_feria_state"
)

// Queue persists pending sales in SQLite.
type Queue struct {
	db   *sql.DB
	slot string
	mu   sync.Mutex
}

// Open opens or creates the queue database at path. Use ":memory:" for an
// ephemeral queue.
func Open(path string) (*Queue, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}
	// a single connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)

	q := &Queue{db: db, slot: PendingSlot}
	if err := q.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate queue database: %w", err)
	}
	return q, nil
}

func (q *Queue) migrate() error {
	_, err := q.db.Exec(`
	CREATE TABLE IF NOT EXISTS local_slots (
		slot TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`)
	return err
}

// Close closes the database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Load returns the pending sales in FIFO order. An undecodable payload wraps
// repository.ErrCorruptSlot.
func (q *Queue) Load(ctx context.Context) ([]models.Sale, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	payload, ok, err := readSlot(ctx, q.db, q.slot)
	if err != nil || !ok {
		return nil, err
	}

	var sales []models.Sale
	if err := json.Unmarshal([]byte(payload), &sales); err != nil {
		return nil, fmt.Errorf("%w: pending queue: %v", repository.ErrCorruptSlot, err)
	}
	return sales, nil
}

// Save replaces the slot contents. An empty queue removes the slot.
func (q *Queue) Save(ctx context.Context, sales []models.Sale) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(sales) == 0 {
		return deleteSlot(ctx, q.db, q.slot)
	}

	payload, err := json.Marshal(sales)
	if err != nil {
		return fmt.Errorf("failed to encode pending queue: %w", err)
	}
	return writeSlot(ctx, q.db, q.slot, string(payload))
}

// StateCache returns the fair state slot stored in the same database.
func (q *Queue) StateCache() *StateCache {
	return &StateCache{db: q.db}
}

// StateCache keeps the last fair state seen from the shared store so an
// offline restart can still price sales.
type StateCache struct {
	db *sql.DB
	mu sync.Mutex
}

// LoadState returns false when nothing has been cached yet.
func (c *StateCache) LoadState(ctx context.Context) (models.FairState, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, ok, err := readSlot(ctx, c.db, FairStateSlot)
	if err != nil || !ok {
		return models.FairState{}, false, err
	}

	var state models.FairState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return models.FairState{}, false, fmt.Errorf("%w: fair state: %v", repository.ErrCorruptSlot, err)
	}
	return state, true, nil
}

func (c *StateCache) SaveState(ctx context.Context, state models.FairState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode fair state: %w", err)
	}
	return writeSlot(ctx, c.db, FairStateSlot, string(payload))
}

func readSlot(ctx context.Context, db *sql.DB, slot string) (string, bool, error) {
	var payload string
	err := db.QueryRowContext(ctx, `SELECT payload FROM local_slots WHERE slot = ?`, slot).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read slot %s: %w", slot, err)
	}
	return payload, true, nil
}

func writeSlot(ctx context.Context, db *sql.DB, slot, payload string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO local_slots (slot, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		slot, payload, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write slot %s: %w", slot, err)
	}
	return nil
}

func deleteSlot(ctx context.Context, db *sql.DB, slot string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM local_slots WHERE slot = ?`, slot); err != nil {
		return fmt.Errorf("failed to clear slot %s: %w", slot, err)
	}
	return nil
}
