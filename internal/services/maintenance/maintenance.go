// Package maintenance runs periodic storage housekeeping: pruning old
// fired-timer audit rows and checkpointing the sqlite WAL.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"tickbot/internal/storage"
	"tickbot/pkg/logx"
)

type Config struct {
	// AuditRetention is how long fired-timer audit rows are kept.
	// Default 30 days.
	AuditRetention time.Duration

	// CheckpointSpec is the cron schedule for WAL checkpoints and audit
	// pruning. Default "17 3 * * *" (daily, off the hour).
	CheckpointSpec string
}

type Service struct {
	cfg   Config
	log   logx.Logger
	store storage.Store

	c *cron.Cron
}

func New(cfg Config, store storage.Store, log logx.Logger) *Service {
	if cfg.AuditRetention <= 0 {
		cfg.AuditRetention = 30 * 24 * time.Hour
	}
	if cfg.CheckpointSpec == "" {
		cfg.CheckpointSpec = "17 3 * * *"
	}
	return &Service{cfg: cfg, log: log, store: store}
}

func (s *Service) Start(ctx context.Context) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s.c = cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC))

	if _, err := s.c.AddFunc(s.cfg.CheckpointSpec, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", s.cfg.CheckpointSpec, err)
	}
	s.c.Start()
	s.log.Info("maintenance scheduled",
		logx.String("spec", s.cfg.CheckpointSpec),
		logx.Duration("audit_retention", s.cfg.AuditRetention))
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.c == nil {
		return nil
	}
	stopped := s.c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Service) runOnce(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.cfg.AuditRetention)
	n, err := s.store.PruneFired(cctx, cutoff)
	if err != nil {
		s.log.Warn("audit prune failed", logx.Err(err))
	} else if n > 0 {
		s.log.Info("audit rows pruned", logx.Int64("count", n), logx.Time("cutoff", cutoff))
	}

	if err := s.store.Checkpoint(cctx); err != nil {
		s.log.Warn("wal checkpoint failed", logx.Err(err))
	} else {
		s.log.Debug("wal checkpoint complete")
	}
}
