// Package memory provides an in-process Store used by tests and by the
// single-node demo mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mamadbah2/feria/internal/domain/models"
	"github.com/mamadbah2/feria/internal/repository"
)

// Op names a Store method for failure injection.
type Op string

const (
	OpPing          Op = "ping"
	OpActiveFeria   Op = "active_feria"
	OpSaveActive    Op = "save_active"
	OpClearActive   Op = "clear_active"
	OpMarker        Op = "activation_marker"
	OpSetMarker     Op = "set_activation_marker"
	OpListSales     Op = "list_sales"
	OpInsertSale    Op = "insert_sale"
	OpInsertSales   Op = "insert_sales"
	OpDeleteSales   Op = "delete_sales"
	OpFindHistory   Op = "find_history"
	OpGetHistory    Op = "get_history"
	OpSaveHistory   Op = "save_history"
	OpDeleteHistory Op = "delete_history"
	OpListHistory   Op = "list_history"
)

// FailFunc decides whether the n-th call (1-based) of op fails.
type FailFunc func(op Op, call int) error

// Store is a mutex-guarded implementation of repository.Store.
type Store struct {
	mu      sync.RWMutex
	active  *models.FeriaConfig
	marker  string
	sales   map[string]models.Sale
	order   []string
	keys    map[string]string
	history map[string]models.HistoricalFeria
	calls   map[Op]int
	fail    FailFunc
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		sales:   map[string]models.Sale{},
		keys:    map[string]string{},
		history: map[string]models.HistoricalFeria{},
		calls:   map[Op]int{},
	}
}

// FailWith installs a failure hook. Passing nil clears it.
func (s *Store) FailWith(fn FailFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fn
	s.calls = map[Op]int{}
}

// Calls returns how many times op has been invoked since the last FailWith.
func (s *Store) Calls(op Op) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

// check must be called with the write lock held.
func (s *Store) check(op Op) error {
	s.calls[op]++
	if s.fail == nil {
		return nil
	}
	return s.fail(op, s.calls[op])
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check(OpPing)
}

func (s *Store) ActiveFeria(_ context.Context) (*models.FeriaConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpActiveFeria); err != nil {
		return nil, err
	}
	if s.active == nil || s.active.Name == "" {
		return nil, nil
	}
	cfg := copyConfig(*s.active)
	return &cfg, nil
}

func (s *Store) SaveActiveFeria(_ context.Context, cfg models.FeriaConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpSaveActive); err != nil {
		return err
	}
	stored := copyConfig(cfg)
	s.active = &stored
	return nil
}

func (s *Store) ClearActiveFeria(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpClearActive); err != nil {
		return err
	}
	s.active = nil
	s.marker = ""
	return nil
}

func (s *Store) ActivationMarker(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpMarker); err != nil {
		return "", err
	}
	return s.marker, nil
}

func (s *Store) SetActivationMarker(_ context.Context, historyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpSetMarker); err != nil {
		return err
	}
	s.marker = historyID
	return nil
}

func (s *Store) ListActiveSales(_ context.Context) ([]models.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpListSales); err != nil {
		return nil, err
	}
	out := make([]models.Sale, 0, len(s.order))
	for _, id := range s.order {
		if sale, ok := s.sales[id]; ok {
			out = append(out, copySale(sale))
		}
	}
	return out, nil
}

func (s *Store) InsertSale(_ context.Context, sale models.Sale) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpInsertSale); err != nil {
		return "", err
	}
	return s.insertLocked(sale), nil
}

func (s *Store) InsertSales(_ context.Context, sales []models.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpInsertSales); err != nil {
		return err
	}
	if len(sales) > repository.MaxBatchSize {
		return fmt.Errorf("batch of %d exceeds limit %d", len(sales), repository.MaxBatchSize)
	}
	for _, sale := range sales {
		s.insertLocked(sale)
	}
	return nil
}

func (s *Store) insertLocked(sale models.Sale) string {
	if sale.IdempotencyKey != "" {
		if id, ok := s.keys[sale.IdempotencyKey]; ok {
			if _, live := s.sales[id]; live {
				return id
			}
		}
	}
	id := uuid.NewString()
	stored := copySale(sale)
	stored.ID = id
	s.sales[id] = stored
	s.order = append(s.order, id)
	if sale.IdempotencyKey != "" {
		s.keys[sale.IdempotencyKey] = id
	}
	return id
}

func (s *Store) DeleteSales(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpDeleteSales); err != nil {
		return err
	}
	if len(ids) > repository.MaxBatchSize {
		return fmt.Errorf("batch of %d exceeds limit %d", len(ids), repository.MaxBatchSize)
	}
	for _, id := range ids {
		sale, ok := s.sales[id]
		if !ok {
			continue
		}
		delete(s.sales, id)
		if sale.IdempotencyKey != "" {
			delete(s.keys, sale.IdempotencyKey)
		}
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.sales[id]; ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
	return nil
}

func (s *Store) FindHistoryByName(_ context.Context, name string) (*models.HistoricalFeria, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpFindHistory); err != nil {
		return nil, err
	}
	for _, record := range s.history {
		if record.Config.Name == name {
			out := copyHistory(record)
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) GetHistory(_ context.Context, id string) (*models.HistoricalFeria, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpGetHistory); err != nil {
		return nil, err
	}
	record, ok := s.history[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := copyHistory(record)
	return &out, nil
}

func (s *Store) SaveHistory(_ context.Context, record models.HistoricalFeria) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpSaveHistory); err != nil {
		return err
	}
	if record.ID == "" {
		return fmt.Errorf("history record requires an id")
	}
	for id, existing := range s.history {
		if id != record.ID && existing.Config.Name == record.Config.Name {
			return fmt.Errorf("history name %q already used by %s", record.Config.Name, id)
		}
	}
	s.history[record.ID] = copyHistory(record)
	return nil
}

func (s *Store) DeleteHistory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpDeleteHistory); err != nil {
		return err
	}
	if _, ok := s.history[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.history, id)
	return nil
}

func (s *Store) ListHistory(_ context.Context) ([]models.HistoricalFeria, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpListHistory); err != nil {
		return nil, err
	}
	out := make([]models.HistoricalFeria, 0, len(s.history))
	for _, record := range s.history {
		out = append(out, copyHistory(record))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ArchivedAt.After(out[j].ArchivedAt)
	})
	return out, nil
}

func copyConfig(cfg models.FeriaConfig) models.FeriaConfig {
	if cfg.InitialStock != nil {
		stock := make(map[string]float64, len(cfg.InitialStock))
		for k, v := range cfg.InitialStock {
			stock[k] = v
		}
		cfg.InitialStock = stock
	}
	return cfg
}

func copySale(sale models.Sale) models.Sale {
	id := sale.ID
	out := sale.WithoutID()
	out.ID = id
	return out
}

func copyHistory(record models.HistoricalFeria) models.HistoricalFeria {
	record.Config = copyConfig(record.Config)
	sales := make([]models.Sale, len(record.Sales))
	for i, sale := range record.Sales {
		sales[i] = copySale(sale)
	}
	record.Sales = sales
	record.Report.StockSummary = append([]models.StockSummary(nil), record.Report.StockSummary...)
	record.Report.UntrackedStyles = append([]string(nil), record.Report.UntrackedStyles...)
	return record
}
