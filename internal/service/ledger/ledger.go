// Package ledger records sales and keeps them durable while the terminal is
// disconnected from the shared store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/feria/internal/domain/models"
	"github.com/mamadbah2/feria/internal/repository"
	"github.com/mamadbah2/feria/pkg/metrics"
)

// TempIDPrefix marks ids assigned locally to queued sales.
const TempIDPrefix = "temp-"

// Connectivity is the terminal's view of the shared store.
type Connectivity string

const (
	Online  Connectivity = "online"
	Offline Connectivity = "offline"
)

// SaleWriter is the slice of the store the ledger writes through to.
type SaleWriter interface {
	InsertSale(ctx context.Context, sale models.Sale) (string, error)
}

// Queue persists the pending sales.
type Queue interface {
	Load(ctx context.Context) ([]models.Sale, error)
	Save(ctx context.Context, sales []models.Sale) error
}

// Receipt describes how a sale was accepted.
type Receipt struct {
	Sale    models.Sale `json:"sale"`
	Queued  bool        `json:"queued"`
	Pending int         `json:"pending"`
}

// Status is the indicator surfaced to the operator.
type Status struct {
	Connectivity Connectivity `json:"connectivity"`
	Pending      int          `json:"pending"`
}

// Ledger accepts sales and replays the offline queue. Its methods are
// serialized; it never polls for connectivity.
type Ledger struct {
	writer  SaleWriter
	queue   Queue
	logger  *zap.Logger
	metrics *metrics.LedgerMetrics
	now     func() time.Time

	mu      sync.Mutex
	state   Connectivity
	pending []models.Sale
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithConnectivity sets the initial connectivity. The default is Online.
func WithConnectivity(state Connectivity) Option {
	return func(l *Ledger) { l.state = state }
}

// New builds a ledger and loads the persisted queue. A queue that cannot be
// decoded is discarded and the ledger starts empty.
func New(ctx context.Context, writer SaleWriter, queue Queue, opts ...Option) (*Ledger, error) {
	if writer == nil || queue == nil {
		return nil, errors.New("ledger requires a writer and a queue")
	}

	l := &Ledger{
		writer: writer,
		queue:  queue,
		logger: zap.NewNop(),
		now:    time.Now,
		state:  Online,
	}
	for _, opt := range opts {
		opt(l)
	}

	pending, err := queue.Load(ctx)
	switch {
	case errors.Is(err, repository.ErrCorruptSlot):
		l.logger.Warn("discarding corrupt pending queue", zap.Error(err))
		if err := queue.Save(ctx, nil); err != nil {
			l.logger.Error("failed to reset corrupt pending queue", zap.Error(err))
		}
		pending = nil
	case err != nil:
		return nil, fmt.Errorf("load pending queue: %w", err)
	}

	l.pending = pending
	l.metrics.SetPending(len(pending))
	if len(pending) > 0 {
		l.logger.Info("pending sales restored", zap.Int("count", len(pending)))
	}
	return l, nil
}

// RecordSale validates and records a sale. Online sales are written through;
// a failed write falls back to the queue instead of failing the operator.
// Only validation or local persistence failures are returned.
func (l *Ledger) RecordSale(ctx context.Context, sale models.Sale) (Receipt, error) {
	if sale.IdempotencyKey == "" {
		sale.IdempotencyKey = uuid.NewString()
	}
	if sale.Timestamp.IsZero() {
		sale.Timestamp = l.now().UTC()
	}
	if err := sale.Validate(); err != nil {
		return Receipt{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	path := metrics.PathQueued
	if l.state == Online {
		id, err := l.writer.InsertSale(ctx, sale.WithoutID())
		if err == nil {
			sale.ID = id
			l.metrics.IncRecorded(metrics.PathOnline)
			return Receipt{Sale: sale, Pending: len(l.pending)}, nil
		}
		l.logger.Warn("write-through failed, queueing sale",
			zap.String("idempotency_key", sale.IdempotencyKey),
			zap.Error(err))
		path = metrics.PathFallback
	}

	sale.ID = TempIDPrefix + uuid.NewString()
	next := append(append([]models.Sale(nil), l.pending...), sale)
	if err := l.queue.Save(ctx, next); err != nil {
		return Receipt{}, fmt.Errorf("persist pending queue: %w", err)
	}
	l.pending = next
	l.metrics.IncRecorded(path)
	l.metrics.SetPending(len(next))

	l.logger.Debug("sale queued", zap.String("id", sale.ID), zap.Int("pending", len(next)))
	return Receipt{Sale: sale, Queued: true, Pending: len(next)}, nil
}

// SetConnectivity is the boundary signal. Going from Offline to Online
// drains the queue inside the same critical section, so a sale recorded
// concurrently is written only after every older queued sale.
func (l *Ledger) SetConnectivity(ctx context.Context, state Connectivity) error {
	if state != Online && state != Offline {
		return fmt.Errorf("unknown connectivity %q", state)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	previous := l.state
	l.state = state
	if previous == state {
		return nil
	}
	l.logger.Info("connectivity changed", zap.String("from", string(previous)), zap.String("to", string(state)))

	if state == Online {
		_, err := l.drainLocked(ctx)
		return err
	}
	return nil
}

// OnConnectivityRestored marks the ledger online and drains the queue.
func (l *Ledger) OnConnectivityRestored(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = Online
	return l.drainLocked(ctx)
}

// Drain replays queued sales in FIFO order with their temporary ids removed.
// The remainder is persisted after every write, so an interruption leaves
// only undrained sales behind. On the first store failure the ledger goes
// Offline and keeps the remainder.
func (l *Ledger) Drain(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.drainLocked(ctx)
}

// drainLocked must be called with l.mu held.
func (l *Ledger) drainLocked(ctx context.Context) (int, error) {
	drained := 0
	defer func() {
		l.metrics.AddDrained(drained)
		l.metrics.SetPending(len(l.pending))
	}()

	for len(l.pending) > 0 {
		sale := l.pending[0]
		if _, err := l.writer.InsertSale(ctx, sale.WithoutID()); err != nil {
			l.state = Offline
			l.logger.Warn("drain interrupted",
				zap.Int("drained", drained),
				zap.Int("remaining", len(l.pending)),
				zap.Error(err))
			return drained, fmt.Errorf("replay sale %s: %w", sale.ID, err)
		}

		remaining := append([]models.Sale(nil), l.pending[1:]...)
		l.pending = remaining
		drained++

		if err := l.queue.Save(ctx, remaining); err != nil {
			return drained, fmt.Errorf("persist pending queue: %w", err)
		}
	}

	if drained > 0 {
		l.logger.Info("pending sales drained", zap.Int("count", drained))
	}
	return drained, nil
}

// Status reports connectivity and queue depth.
func (l *Ledger) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{Connectivity: l.state, Pending: len(l.pending)}
}

// Pending returns a copy of the queued sales.
func (l *Ledger) Pending() []models.Sale {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Sale, len(l.pending))
	copy(out, l.pending)
	return out
}

// BuildSale prices a cart with the current config. The resulting total is
// fixed for the life of the sale.
func BuildSale(cfg models.FeriaConfig, items []models.SaleItem, method models.PaymentMethod, operatorID string, now time.Time) (models.Sale, error) {
	var total float64
	for i, item := range items {
		switch item.Unit {
		case models.UnitPinta:
			total += cfg.PricePerPinta * float64(item.Quantity)
		case models.UnitLitro:
			total += cfg.PricePerLitro * float64(item.Quantity)
		default:
			return models.Sale{}, fmt.Errorf("%w: item %d has unsupported unit %q", models.ErrInvalidSale, i, item.Unit)
		}
	}

	sale := models.Sale{
		IdempotencyKey: uuid.NewString(),
		SchemaVersion:  models.SchemaItems,
		Timestamp:      now.UTC(),
		Items:          append([]models.SaleItem(nil), items...),
		TotalAmount:    total,
		PaymentMethod:  method,
		OperatorID:     operatorID,
	}
	if err := sale.Validate(); err != nil {
		return models.Sale{}, err
	}
	return sale, nil
}
