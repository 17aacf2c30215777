// Package maintenance runs background cleanup of idle sessions and their uploads.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/sqlask/sqlask/internal/observability"
	"github.com/sqlask/sqlask/internal/session"
)

type Config struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// Releaser frees whatever swept sessions still hold and reports how many
// uploads it actually deleted.
type Releaser interface {
	Release(ctx context.Context, sessions []*session.Session) int
}

type Service struct {
	Sessions *session.Manager
	Releaser Releaser
	Config   Config
	Logger   *slog.Logger
}

type SweepSummary struct {
	SessionsScanned int `json:"sessions_scanned"`
	SessionsRemoved int `json:"sessions_removed"`
	UploadsReleased int `json:"uploads_released"`
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	sweepTicker := time.NewTicker(s.Config.SweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sweepTicker.C:
			summary := s.RunSweepOnce(ctx)
			if s.Logger != nil && summary.SessionsRemoved > 0 {
				s.Logger.InfoContext(ctx, "session sweep completed", slog.Any("summary", summary))
			}
		}
	}
}

// RunSweepOnce drops sessions idle longer than IdleTTL and releases their uploads.
func (s *Service) RunSweepOnce(ctx context.Context) SweepSummary {
	s.ensureDefaults()
	if s.Sessions == nil {
		return SweepSummary{}
	}

	summary := SweepSummary{SessionsScanned: s.Sessions.Len()}
	removed := s.Sessions.Sweep(s.Config.IdleTTL)
	summary.SessionsRemoved = len(removed)
	if s.Releaser != nil && len(removed) > 0 {
		summary.UploadsReleased = s.Releaser.Release(ctx, removed)
	}

	sweepRunsTotal.Inc()
	sessionsSweptTotal.Add(float64(summary.SessionsRemoved))
	uploadsReleasedTotal.Add(float64(summary.UploadsReleased))
	observability.SetActiveSessions(s.Sessions.Len())
	return summary
}

func (s *Service) ensureDefaults() {
	if s.Config.IdleTTL <= 0 {
		s.Config.IdleTTL = 2 * time.Hour
	}
	if s.Config.SweepInterval <= 0 {
		s.Config.SweepInterval = 5 * time.Minute
	}
}
