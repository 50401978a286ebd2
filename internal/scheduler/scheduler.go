package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/feria/internal/config"
	"github.com/mamadbah2/feria/internal/domain/models"
	"github.com/mamadbah2/feria/internal/service/ledger"
	"github.com/mamadbah2/feria/internal/service/lifecycle"
	"github.com/mamadbah2/feria/internal/service/reporting"
	"github.com/mamadbah2/feria/internal/service/whatsapp"
)

// Pinger reports whether the shared store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectivitySink receives connectivity transitions.
type ConnectivitySink interface {
	SetConnectivity(ctx context.Context, state ledger.Connectivity) error
}

// ReportSource produces the live report for the digest.
type ReportSource interface {
	LiveReport(ctx context.Context) (models.LiveReport, error)
}

// Deps are the collaborators the jobs act on. Notifier may be nil, which
// disables the report digest.
type Deps struct {
	Store     Pinger
	Ledger    ConnectivitySink
	Reports   ReportSource
	Notifier  whatsapp.Notifier
	Recipient string
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron   *cron.Cron
	cfg    config.ScheduleConfig
	deps   Deps
	logger *zap.Logger
}

// NewScheduler creates a new scheduler instance running in the configured timezone.
func NewScheduler(cfg config.ScheduleConfig, deps Deps, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc := time.Local
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %s: %w", cfg.Timezone, err)
		}
	}

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}, nil
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler")

	if s.deps.Store != nil && s.deps.Ledger != nil {
		if _, err := s.cron.AddFunc(s.cfg.ConnectivityProbe, s.runProbe); err != nil {
			return fmt.Errorf("schedule connectivity probe %q: %w", s.cfg.ConnectivityProbe, err)
		}
	}

	if s.deps.Notifier != nil && s.deps.Reports != nil {
		if _, err := s.cron.AddFunc(s.cfg.ReportCron, s.runDigest); err != nil {
			return fmt.Errorf("schedule report digest %q: %w", s.cfg.ReportCron, err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// ProbeConnectivity pings the store and forwards the outcome to the ledger.
func (s *Scheduler) ProbeConnectivity(ctx context.Context) (ledger.Connectivity, error) {
	state := ledger.Online
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.Debug("store ping failed", zap.Error(err))
		state = ledger.Offline
	}
	if err := s.deps.Ledger.SetConnectivity(ctx, state); err != nil {
		return state, err
	}
	return state, nil
}

// SendReportDigest formats the live report and sends it to the recipient.
// Nothing is sent while no fair is active.
func (s *Scheduler) SendReportDigest(ctx context.Context) error {
	report, err := s.deps.Reports.LiveReport(ctx)
	if errors.Is(err, lifecycle.ErrNoActiveFair) {
		s.logger.Info("no active feria, skipping report digest")
		return nil
	}
	if err != nil {
		return fmt.Errorf("build live report: %w", err)
	}

	req := models.OutboundMessageRequest{
		To:      s.deps.Recipient,
		Message: reporting.FormatSummary(report.Config, report.Summary),
	}
	return s.deps.Notifier.SendOutbound(ctx, req)
}

func (s *Scheduler) runProbe() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.ProbeConnectivity(ctx); err != nil {
		s.logger.Warn("connectivity probe could not drain queue", zap.Error(err))
	}
}

func (s *Scheduler) runDigest() {
	s.logger.Info("generating report digest")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := s.SendReportDigest(ctx); err != nil {
		s.logger.Error("failed to send report digest", zap.Error(err))
		return
	}
	s.logger.Info("report digest sent")
}
