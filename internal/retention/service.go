// Package retention prunes the notification journal and forgets finished
// trigger edit sessions.
package retention

import (
	"context"
	"log/slog"
	"time"
)

const DefaultDays = 14

type Store interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sessions is implemented by triggers.Sessions.
type Sessions interface {
	PruneClosed() int
}

type Service struct {
	store         Store
	sessions      Sessions
	retentionDays int
	log           *slog.Logger
	now           func() time.Time
}

func NewService(store Store, sessions Sessions, days int, logger *slog.Logger) *Service {
	if days <= 0 {
		days = DefaultDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:         store,
		sessions:      sessions,
		retentionDays: days,
		log:           logger.With("module", "retention"),
		now:           time.Now,
	}
}

func (s *Service) Run(ctx context.Context) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)
	if n, err := s.store.DeleteOlderThan(ctx, cutoff); err != nil {
		s.log.Error("retention cleanup failed", "err", err)
	} else {
		s.log.Info("retention cleanup completed", "cutoff", cutoff, "deleted", n)
	}
	if s.sessions != nil {
		if n := s.sessions.PruneClosed(); n > 0 {
			s.log.Info("closed edit sessions pruned", "count", n)
		}
	}
}
