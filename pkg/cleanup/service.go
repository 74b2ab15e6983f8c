// Package cleanup provides a single background retention loop covering
// checkpoint and health-check-row retention (spec §F.3 "Retention/cleanup
// worker"), grounded on the teacher's pkg/cleanup/service.go: one ticker,
// each sub-task error-isolated from the others.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/bmad-run/overseer/ent"
	"github.com/bmad-run/overseer/ent/healthcheck"
	"github.com/bmad-run/overseer/pkg/checkpoint"
)

// Service periodically enforces retention policies:
//   - Deletes checkpoints older than CheckpointRetentionDays (spec §4.4,
//     manual checkpoints excluded — enforced by checkpoint.Engine.Cleanup)
//   - Deletes health_checks rows older than HealthCheckRetentionDays
//
// Both operations are idempotent and safe to run from multiple instances.
type Service struct {
	client                   *ent.Client
	checkpoints              *checkpoint.Engine
	interval                 time.Duration
	checkpointRetentionDays  int
	healthCheckRetentionDays int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(client *ent.Client, checkpoints *checkpoint.Engine, interval time.Duration, checkpointRetentionDays, healthCheckRetentionDays int) *Service {
	return &Service{
		client:                   client,
		checkpoints:              checkpoints,
		interval:                 interval,
		checkpointRetentionDays:  checkpointRetentionDays,
		healthCheckRetentionDays: healthCheckRetentionDays,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started",
		"checkpoint_retention_days", s.checkpointRetentionDays,
		"health_check_retention_days", s.healthCheckRetentionDays,
		"interval", s.interval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.cleanupCheckpoints(ctx)
	s.cleanupHealthChecks(ctx)
}

func (s *Service) cleanupCheckpoints(ctx context.Context) {
	result, err := s.checkpoints.Cleanup(ctx, s.checkpointRetentionDays)
	if err != nil {
		slog.Error("retention: checkpoint cleanup failed", "error", err)
		return
	}
	if result.Deleted > 0 {
		slog.Info("retention: deleted expired checkpoints", "count", result.Deleted, "freed_bytes", result.FreedBytes)
	}
}

func (s *Service) cleanupHealthChecks(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.healthCheckRetentionDays)
	n, err := s.client.HealthCheck.Delete().
		Where(healthcheck.CheckTimeLT(cutoff)).
		Exec(ctx)
	if err != nil {
		slog.Error("retention: health_checks cleanup failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("retention: deleted expired health_checks rows", "count", n)
	}
}
