package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultCleanupInterval is how often old history is pruned
const DefaultCleanupInterval = 24 * time.Hour

// RunCleanup removes history older than the stored retention period
func (s *Scanner) RunCleanup() (int64, error) {
	days, err := s.db.GetRetentionDays()
	if err != nil {
		return 0, err
	}
	removed, err := s.db.CleanupOldData(days)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Info().Int64("removed", removed).Int("retention_days", days).Msg("pruned old history")
	}
	return removed, nil
}

// StartCleanup prunes history immediately and then every interval until
// ctx is done
func (s *Scanner) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if _, err := s.RunCleanup(); err != nil {
				log.Error().Err(err).Msg("history cleanup failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
