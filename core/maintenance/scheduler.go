// Package maintenance runs the periodic housekeeping jobs: expired-session
// purge and audit-log retention.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"cyberwatch-soc/config"
	"cyberwatch-soc/core/store"
	"cyberwatch-soc/core/utils"
)

type Scheduler struct {
	cron     *cron.Cron
	sessions store.SessionsStore
	audits   store.AuditStore
	cfg      *config.AppConfig
	logger   *utils.Logger
}

func NewScheduler(sessions store.SessionsStore, audits store.AuditStore, cfg *config.AppConfig, logger *utils.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		sessions: sessions,
		audits:   audits,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *Scheduler) Start() error {
	if !s.cfg.Maintenance.Enabled {
		s.logger.Printf("maintenance scheduler disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.Maintenance.SessionPurgeSpec, s.purgeSessions); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.Maintenance.AuditTrimSpec, s.trimAudit); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Printf("maintenance scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) purgeSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := s.sessions.DeleteExpired(ctx, utils.NowUTC())
	if err != nil {
		s.logger.Errorf("session purge failed: %v", err)
		return
	}
	if n > 0 {
		s.logger.Printf("purged %d expired sessions", n)
	}
}

func (s *Scheduler) trimAudit() {
	days := s.cfg.Maintenance.AuditRetentionDays
	if days <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	cutoff := utils.NowUTC().AddDate(0, 0, -days)
	n, err := s.audits.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Errorf("audit trim failed: %v", err)
		return
	}
	if n > 0 {
		s.logger.Printf("trimmed %d audit entries older than %s", n, cutoff.Format(time.RFC3339))
	}
}
