// Package repository defines the document store collaborator shared by the
// ledger and the lifecycle manager.
package repository

import (
	"context"
	"errors"

	"github.com/mamadbah2/feria/internal/domain/models"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrCorruptSlot is wrapped by local slot adapters whose payload cannot be
// decoded.
var ErrCorruptSlot = errors.New("corrupt local slot")

// MaxBatchSize is the per-batch item ceiling of the underlying store.
const MaxBatchSize = 400

// Store is the shared document store holding the active slot, the live sale
// stream and the fair history.
type Store interface {
	Ping(ctx context.Context) error

	// ActiveFeria returns nil when the slot is empty or carries no name.
	ActiveFeria(ctx context.Context) (*models.FeriaConfig, error)
	SaveActiveFeria(ctx context.Context, cfg models.FeriaConfig) error
	// ClearActiveFeria removes the fair fields and the activation marker but
	// keeps the settings document.
	ClearActiveFeria(ctx context.Context) error
	// ActivationMarker returns the id of the history record whose activation
	// has not completed, or "".
	ActivationMarker(ctx context.Context) (string, error)
	// SetActivationMarker records historyID as being activated. "" clears it.
	SetActivationMarker(ctx context.Context, historyID string) error

	ListActiveSales(ctx context.Context) ([]models.Sale, error)
	// InsertSale is insert-if-absent by idempotency key and returns the id of
	// the stored record.
	InsertSale(ctx context.Context, sale models.Sale) (string, error)
	// InsertSales writes one batch of at most MaxBatchSize sales with the same
	// insert-if-absent semantics.
	InsertSales(ctx context.Context, sales []models.Sale) error
	// DeleteSales removes one batch of ids. Unknown ids are ignored.
	DeleteSales(ctx context.Context, ids []string) error

	FindHistoryByName(ctx context.Context, name string) (*models.HistoricalFeria, error)
	GetHistory(ctx context.Context, id string) (*models.HistoricalFeria, error)
	// SaveHistory creates or overwrites the record with the same id.
	SaveHistory(ctx context.Context, record models.HistoricalFeria) error
	DeleteHistory(ctx context.Context, id string) error
	ListHistory(ctx context.Context) ([]models.HistoricalFeria, error)
}
