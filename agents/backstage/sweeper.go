package backstage

import (
	"context"
	"fmt"

	"backstage/shared/storage"
)

// SweepRecorder counts removed cache entries.
type SweepRecorder interface {
	RecordSwept(n int)
}

// CacheSweeper is the maintenance job that deletes expired video cache
// entries.
type CacheSweeper struct {
	cache    *storage.VideoCache
	recorder SweepRecorder
}

func NewCacheSweeper(cache *storage.VideoCache, recorder SweepRecorder) *CacheSweeper {
	return &CacheSweeper{cache: cache, recorder: recorder}
}

func (s *CacheSweeper) Name() string {
	return "cache-sweep"
}

func (s *CacheSweeper) RunOnce(ctx context.Context) (string, error) {
	n, err := s.cache.SweepExpired(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to sweep video cache: %w", err)
	}
	if s.recorder != nil {
		s.recorder.RecordSwept(n)
	}
	return fmt.Sprintf("removed %d expired entries", n), nil
}
