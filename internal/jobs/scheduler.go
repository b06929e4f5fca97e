// Package jobs runs the in-process retention sweeps.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"fotoreg/api/internal/config"
)

// SessionPurger removes expired session rows.
type SessionPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// AuditPruner removes audit entries past retention.
type AuditPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Scheduler struct {
	cron     *cron.Cron
	sessions SessionPurger
	audits   AuditPruner
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewScheduler(sessions SessionPurger, audits AuditPruner, cfg *config.AppConfig, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		sessions: sessions,
		audits:   audits,
		cfg:      cfg,
		log:      log.With().Str("component", "jobs").Logger(),
	}
}

func (s *Scheduler) Start() error {
	// Hourly: drop session rows expired longer than the grace period ago.
	if _, err := s.cron.AddFunc("0 0 * * * *", s.purgeSessions); err != nil {
		return err
	}
	// Daily at midnight: prune the audit trail past retention.
	if _, err := s.cron.AddFunc("0 0 0 * * *", s.pruneAuditLogs); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) purgeSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.cfg.Retention.ExpiredSessions)
	removed, err := s.sessions.DeleteExpired(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("session purge failed")
		return
	}
	if removed > 0 {
		s.log.Info().Int64("removed", removed).Msg("expired sessions purged")
	}
}

func (s *Scheduler) pruneAuditLogs() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.cfg.Retention.AuditLogs)
	removed, err := s.audits.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("audit prune failed")
		return
	}
	if removed > 0 {
		s.log.Info().Int64("removed", removed).Msg("audit entries pruned")
	}
}
