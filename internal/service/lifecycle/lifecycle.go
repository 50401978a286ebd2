// Package lifecycle owns the active fair slot: configuring, archiving and
// reactivating fairs.
//
// Multi-document operations run as sequences of idempotent steps rather than
// one transaction. Every step can be repeated: history is overwritten by name,
// sales are deleted by id, and restored sales are inserted by idempotency key.
// A failed Archive or Activate is therefore recovered by calling it again.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/feria/internal/domain/models"
	"github.com/mamadbah2/feria/internal/repository"
	"github.com/mamadbah2/feria/internal/service/reporting"
	"github.com/mamadbah2/feria/pkg/metrics"
)

var (
	// ErrNoActiveFair is returned when an operation needs an active fair.
	ErrNoActiveFair = errors.New("no active feria")
	// ErrHistoryNotFound is returned for unknown history ids.
	ErrHistoryNotFound = errors.New("historical feria not found")
)

// saleKeyNamespace derives stable idempotency keys for sales that lack one.
var saleKeyNamespace = uuid.MustParse("6f0c1f4e-3b7a-4d2e-9a55-7c1d3e0b9f21")

// Summarizer computes the report frozen into history records.
type Summarizer interface {
	Summarize(cfg models.FeriaConfig, sales []models.Sale) models.ReportSummary
}

// StateCache persists the last fair state seen on this terminal.
type StateCache interface {
	LoadState(ctx context.Context) (models.FairState, bool, error)
	SaveState(ctx context.Context, state models.FairState) error
}

// Manager is the single owner of the active slot and the history records.
type Manager struct {
	store     repository.Store
	reports   Summarizer
	logger    *zap.Logger
	metrics   *metrics.LifecycleMetrics
	now       func() time.Time
	batchSize int
	local     StateCache

	// mu serializes lifecycle operations.
	mu sync.Mutex

	cacheMu sync.Mutex
	cached  models.FairState
}

// Option configures a Manager.
type Option func(*Manager)

// WithBatchSize sets the chunk size for batched writes, clamped to
// 1..repository.MaxBatchSize.
func WithBatchSize(n int) Option {
	return func(m *Manager) { m.batchSize = clampBatch(n) }
}

// WithLogger sets the logger. A nil logger keeps the no-op default.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records operation outcomes and durations.
func WithMetrics(lm *metrics.LifecycleMetrics) Option {
	return func(m *Manager) { m.metrics = lm }
}

// WithClock overrides time.Now for archive timestamps and report times.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSummarizer replaces the report engine used for frozen reports.
func WithSummarizer(s Summarizer) Option {
	return func(m *Manager) {
		if s != nil {
			m.reports = s
		}
	}
}

// WithStateCache persists the last known fair state so CurrentConfig can
// serve it after an offline restart.
func WithStateCache(c StateCache) Option {
	return func(m *Manager) { m.local = c }
}

// NewManager builds a lifecycle manager over store.
func NewManager(store repository.Store, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		reports:   reporting.NewService(nil),
		logger:    zap.NewNop(),
		now:       time.Now,
		batchSize: repository.MaxBatchSize,
		cached:    models.NoActiveFair(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BatchSize returns the effective chunk size.
func (m *Manager) BatchSize() int {
	return m.batchSize
}

// State reads the active slot from the store.
func (m *Manager) State(ctx context.Context) (models.FairState, error) {
	cfg, err := m.store.ActiveFeria(ctx)
	if err != nil {
		return models.FairState{}, fmt.Errorf("read active feria: %w", err)
	}
	state := models.NoActiveFair()
	if cfg != nil {
		state = models.FairActive(*cfg)
	}
	m.remember(ctx, state)
	return state, nil
}

// ActiveConfig returns the active config or ErrNoActiveFair.
func (m *Manager) ActiveConfig(ctx context.Context) (models.FeriaConfig, error) {
	state, err := m.State(ctx)
	if err != nil {
		return models.FeriaConfig{}, err
	}
	if !state.Active() {
		return models.FeriaConfig{}, ErrNoActiveFair
	}
	return *state.Config, nil
}

// CurrentConfig is ActiveConfig with a fallback to the last known state when
// the store cannot be reached, so an offline terminal can keep pricing sales.
func (m *Manager) CurrentConfig(ctx context.Context) (models.FeriaConfig, error) {
	cfg, err := m.ActiveConfig(ctx)
	if err == nil || errors.Is(err, ErrNoActiveFair) {
		return cfg, err
	}

	cached := m.lastKnown(ctx)
	if !cached.Active() {
		return models.FeriaConfig{}, err
	}
	m.logger.Warn("store unreachable, using last known feria config", zap.String("feria", cached.Config.Name), zap.Error(err))
	return *cached.Config, nil
}

// ConfigureActive writes cfg into the active slot, starting a fair or
// updating the running one.
func (m *Manager) ConfigureActive(ctx context.Context, cfg models.FeriaConfig) (err error) {
	defer m.observe("configure", m.now(), &err)

	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.store.ActiveFeria(ctx)
	if err != nil {
		return fmt.Errorf("read active feria: %w", err)
	}
	if current == nil {
		// a new fair may reuse the name of an archive that never finalized
		if _, err := m.finalizeArchives(ctx); err != nil {
			return err
		}
		// an activation that stopped before filling the slot is abandoned
		if err := m.store.SetActivationMarker(ctx, ""); err != nil {
			return fmt.Errorf("clear activation marker: %w", err)
		}
	}

	if err := m.store.SaveActiveFeria(ctx, cfg); err != nil {
		return fmt.Errorf("save active feria: %w", err)
	}
	m.remember(ctx, models.FairActive(cfg))
	m.logger.Info("active feria configured", zap.String("feria", cfg.Name))
	return nil
}

// LiveReport re-runs the report engine over the live sale stream.
func (m *Manager) LiveReport(ctx context.Context) (models.LiveReport, error) {
	cfg, err := m.ActiveConfig(ctx)
	if err != nil {
		return models.LiveReport{}, err
	}
	sales, err := m.store.ListActiveSales(ctx)
	if err != nil {
		return models.LiveReport{}, fmt.Errorf("list active sales: %w", err)
	}
	return models.LiveReport{
		Config:      cfg,
		Summary:     m.reports.Summarize(cfg, sales),
		GeneratedAt: m.now().UTC(),
	}, nil
}

// Archive freezes the active fair into history and empties the active slot.
// When the slot is already empty because an earlier run stopped after
// clearing it, that run's record is finalized and returned.
func (m *Manager) Archive(ctx context.Context) (record models.HistoricalFeria, err error) {
	defer m.observe("archive", m.now(), &err)

	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.store.ActiveFeria(ctx)
	if err != nil {
		return models.HistoricalFeria{}, fmt.Errorf("read active feria: %w", err)
	}
	if cfg == nil {
		m.remember(ctx, models.NoActiveFair())
		leftover, err := m.finalizeArchives(ctx)
		if err != nil {
			return models.HistoricalFeria{}, err
		}
		if leftover == nil {
			return models.HistoricalFeria{}, ErrNoActiveFair
		}
		return *leftover, nil
	}
	return m.archive(ctx, *cfg)
}

// archive must be called with m.mu held.
func (m *Manager) archive(ctx context.Context, cfg models.FeriaConfig) (models.HistoricalFeria, error) {
	live, err := m.store.ListActiveSales(ctx)
	if err != nil {
		return models.HistoricalFeria{}, fmt.Errorf("list active sales: %w", err)
	}

	existing, err := m.store.FindHistoryByName(ctx, cfg.Name)
	if err != nil {
		return models.HistoricalFeria{}, fmt.Errorf("find feria history: %w", err)
	}

	record := models.HistoricalFeria{ID: uuid.NewString(), Config: cfg}
	if existing != nil {
		record.ID = existing.ID
	}

	record.Sales = withKeys(record.ID, live)
	if existing != nil && existing.Status == models.StatusArchiving {
		// an earlier archive stopped midway; part of the stream may already
		// be gone from the live collection
		record.Sales = mergeSales(existing.Sales, record.Sales)
		m.logger.Info("resuming interrupted archive",
			zap.String("feria", cfg.Name),
			zap.Int("archived", len(existing.Sales)),
			zap.Int("live", len(live)))
	}

	record.Report = m.reports.Summarize(cfg, record.Sales)
	record.ArchivedAt = m.now().UTC()
	record.Status = models.StatusArchiving

	if err := m.store.SaveHistory(ctx, record); err != nil {
		return models.HistoricalFeria{}, fmt.Errorf("save feria history: %w", err)
	}

	if err := m.deleteSales(ctx, live); err != nil {
		return models.HistoricalFeria{}, err
	}

	if err := m.store.ClearActiveFeria(ctx); err != nil {
		return models.HistoricalFeria{}, fmt.Errorf("clear active feria: %w", err)
	}
	m.remember(ctx, models.NoActiveFair())

	record.Status = models.StatusArchived
	if err := m.store.SaveHistory(ctx, record); err != nil {
		return models.HistoricalFeria{}, fmt.Errorf("finalize feria history: %w", err)
	}

	m.logger.Info("feria archived",
		zap.String("feria", cfg.Name),
		zap.String("history_id", record.ID),
		zap.Int("sales", len(record.Sales)),
		zap.Bool("overwrote", existing != nil))
	return record, nil
}

// Activate promotes a historical fair to the active slot. An active fair is
// archived first. The slot's activation marker identifies an interrupted
// activation of the same record, which is resumed instead.
func (m *Manager) Activate(ctx context.Context, historical models.HistoricalFeria) (err error) {
	defer m.observe("activate", m.now(), &err)

	if err := historical.Config.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.store.ActiveFeria(ctx)
	if err != nil {
		return fmt.Errorf("read active feria: %w", err)
	}
	marker, err := m.store.ActivationMarker(ctx)
	if err != nil {
		return fmt.Errorf("read activation marker: %w", err)
	}

	switch {
	case current != nil && historical.ID != "" && marker == historical.ID && current.Name == historical.Config.Name:
		m.logger.Info("resuming interrupted activation", zap.String("feria", current.Name), zap.String("history_id", historical.ID))
	case current != nil:
		if _, err := m.archive(ctx, *current); err != nil {
			return fmt.Errorf("archive %s before switching: %w", current.Name, err)
		}
	default:
		if _, err := m.finalizeArchives(ctx); err != nil {
			return err
		}
		orphans, err := m.store.ListActiveSales(ctx)
		if err != nil {
			return fmt.Errorf("list orphan sales: %w", err)
		}
		if len(orphans) > 0 {
			m.logger.Warn("removing live sales without an active feria", zap.Int("count", len(orphans)))
		}
		if err := m.deleteSales(ctx, orphans); err != nil {
			return err
		}
	}

	// marker before slot: a filled slot without it is a fair to archive
	if err := m.store.SetActivationMarker(ctx, historical.ID); err != nil {
		return fmt.Errorf("mark activation: %w", err)
	}
	if err := m.store.SaveActiveFeria(ctx, historical.Config); err != nil {
		return fmt.Errorf("save active feria: %w", err)
	}
	m.remember(ctx, models.FairActive(historical.Config))

	restored := withKeys(historical.ID, historical.Sales)
	for i := range restored {
		restored[i] = restored[i].WithoutID()
	}
	for start := 0; start < len(restored); start += m.batchSize {
		end := min(start+m.batchSize, len(restored))
		if err := m.store.InsertSales(ctx, restored[start:end]); err != nil {
			return fmt.Errorf("restore sales %d-%d: %w", start, end, err)
		}
	}

	if err := m.store.SetActivationMarker(ctx, ""); err != nil {
		return fmt.Errorf("clear activation marker: %w", err)
	}

	m.logger.Info("feria activated",
		zap.String("feria", historical.Config.Name),
		zap.String("history_id", historical.ID),
		zap.Int("sales", len(restored)))
	return nil
}

// ActivateByID loads a history record and activates it.
func (m *Manager) ActivateByID(ctx context.Context, id string) error {
	record, err := m.HistoryByID(ctx, id)
	if err != nil {
		return err
	}
	return m.Activate(ctx, record)
}

// Delete removes a history record. The active slot is never touched.
func (m *Manager) Delete(ctx context.Context, id string) (err error) {
	defer m.observe("delete", m.now(), &err)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.DeleteHistory(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrHistoryNotFound
		}
		return fmt.Errorf("delete feria history: %w", err)
	}
	m.logger.Info("feria history deleted", zap.String("history_id", id))
	return nil
}

// History lists records, newest first.
func (m *Manager) History(ctx context.Context) ([]models.HistoricalFeria, error) {
	records, err := m.store.ListHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("list feria history: %w", err)
	}
	return records, nil
}

// HistoryByID returns one record.
func (m *Manager) HistoryByID(ctx context.Context, id string) (models.HistoricalFeria, error) {
	record, err := m.store.GetHistory(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.HistoricalFeria{}, ErrHistoryNotFound
	}
	if err != nil {
		return models.HistoricalFeria{}, fmt.Errorf("get feria history: %w", err)
	}
	return *record, nil
}

// deleteSales removes sales by id in sequential chunks.
func (m *Manager) deleteSales(ctx context.Context, sales []models.Sale) error {
	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		if sale.ID != "" {
			ids = append(ids, sale.ID)
		}
	}
	for start := 0; start < len(ids); start += m.batchSize {
		end := min(start+m.batchSize, len(ids))
		if err := m.store.DeleteSales(ctx, ids[start:end]); err != nil {
			return fmt.Errorf("delete live sales %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// finalizeArchives marks every archiving record as archived and returns the
// newest one. It must only run while the active slot is empty: archive clears
// the slot after deleting the live sales, so such records are complete.
func (m *Manager) finalizeArchives(ctx context.Context) (*models.HistoricalFeria, error) {
	records, err := m.store.ListHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("list feria history: %w", err)
	}

	var newest *models.HistoricalFeria
	for i := range records {
		record := records[i]
		if record.Status != models.StatusArchiving {
			continue
		}
		record.Status = models.StatusArchived
		if err := m.store.SaveHistory(ctx, record); err != nil {
			return nil, fmt.Errorf("finalize feria history: %w", err)
		}
		m.logger.Info("finalized interrupted archive", zap.String("feria", record.Config.Name), zap.String("history_id", record.ID))
		if newest == nil {
			newest = &record
		}
	}
	return newest, nil
}

// remember updates the cached state and persists it locally when it changed.
func (m *Manager) remember(ctx context.Context, state models.FairState) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	if reflect.DeepEqual(m.cached, state) {
		return
	}
	m.cached = state
	if m.local == nil {
		return
	}
	if err := m.local.SaveState(ctx, state); err != nil {
		m.logger.Warn("failed to persist fair state", zap.Error(err))
	}
}

// lastKnown returns the in-memory state, falling back to the persisted one
// after a restart.
func (m *Manager) lastKnown(ctx context.Context) models.FairState {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	if m.cached.Active() || m.local == nil {
		return m.cached
	}
	state, ok, err := m.local.LoadState(ctx)
	if err != nil {
		m.logger.Warn("failed to load persisted fair state", zap.Error(err))
		return m.cached
	}
	if !ok {
		return m.cached
	}
	m.cached = state
	return state
}

func (m *Manager) observe(op string, started time.Time, err *error) {
	m.metrics.Observe(op, started, *err)
	if *err != nil {
		m.logger.Error("lifecycle operation failed", zap.String("op", op), zap.Error(*err))
	}
}

// mergeSales returns archived followed by the live sales it does not already
// contain.
func mergeSales(archived, live []models.Sale) []models.Sale {
	seen := make(map[string]struct{}, len(archived))
	out := make([]models.Sale, 0, len(archived)+len(live))
	for _, sale := range archived {
		seen[saleIdentity(sale)] = struct{}{}
		out = append(out, sale)
	}
	for _, sale := range live {
		if _, ok := seen[saleIdentity(sale)]; ok {
			continue
		}
		out = append(out, sale)
	}
	return out
}

func saleIdentity(sale models.Sale) string {
	if sale.IdempotencyKey != "" {
		return "key:" + sale.IdempotencyKey
	}
	return "id:" + sale.ID
}

// withKeys copies sales, deriving a stable idempotency key for the ones that
// have none, so they can be restored without duplicates.
func withKeys(scope string, sales []models.Sale) []models.Sale {
	out := make([]models.Sale, len(sales))
	for i, sale := range sales {
		id := sale.ID
		copied := sale.WithoutID()
		copied.ID = id
		if copied.IdempotencyKey == "" {
			seed := id
			if seed == "" {
				seed = fmt.Sprintf("#%d", i)
			}
			copied.IdempotencyKey = uuid.NewSHA1(saleKeyNamespace, []byte(scope+"/"+seed)).String()
		}
		out[i] = copied
	}
	return out
}

func clampBatch(n int) int {
	if n <= 0 || n > repository.MaxBatchSize {
		return repository.MaxBatchSize
	}
	return n
}
