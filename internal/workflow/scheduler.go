package workflow

import (
	"context"
	"io"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers recurring workflow runs on a cron schedule. A trigger
// that fires while a previous scheduled run is still active is skipped.
type Scheduler struct {
	cron   *cron.Cron
	svc    *Service
	cfg    Config
	spec   string
	logger *slog.Logger
}

// NewScheduler creates a scheduler that starts a workflow with the given
// config on every cron tick. spec uses the standard 5-field cron syntax.
func NewScheduler(svc *Service, cfg Config, spec string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		cron:   cron.New(),
		svc:    svc,
		cfg:    cfg,
		spec:   spec,
		logger: logger,
	}
}

// Start registers the schedule and starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, s.trigger)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("workflow scheduler started", "schedule", s.spec)
	return nil
}

// Stop stops the cron loop. Already-running workflows keep going.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("workflow scheduler stopped")
}

func (s *Scheduler) trigger() {
	ctx := context.Background()

	active, err := s.svc.ActiveCount(ctx)
	if err != nil {
		s.logger.Warn("scheduled trigger failed to check active jobs", "error", err)
		return
	}
	if active > 0 {
		s.logger.Info("skipping scheduled workflow, jobs still active", "active", active)
		return
	}

	jobID, err := s.svc.StartWorkflow(ctx, s.cfg)
	if err != nil {
		s.logger.Warn("scheduled workflow trigger failed", "error", err)
		return
	}
	s.logger.Info("scheduled workflow started", "job", jobID)
}
