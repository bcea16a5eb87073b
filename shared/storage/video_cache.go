package storage

import (
	"context"
	"fmt"
	"time"

	"backstage/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	CachePrefix = "backstage-cache-"
	CacheTTL    = 24 * time.Hour
)

func cacheKey(videoID string) string {
	return CachePrefix + videoID
}

// VideoCache stores transcript and detected speakers per video for CacheTTL.
// Updates are read-modify-write without any compare-and-swap: two concurrent
// research updates for one video can lose one of them.
type VideoCache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	log   logrus.FieldLogger
}

type CacheOption func(*VideoCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *VideoCache) { c.now = now }
}

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *VideoCache) { c.ttl = ttl }
}

func NewVideoCache(store Store, log logrus.FieldLogger, opts ...CacheOption) *VideoCache {
	c := &VideoCache{
		store: store,
		ttl:   CacheTTL,
		now:   time.Now,
		log:   log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now is the cache's clock, used to stamp new entries.
func (c *VideoCache) Now() time.Time {
	return c.now()
}

func (c *VideoCache) expired(e *models.CachedVideoEntry) bool {
	return e.Age(c.now()) > c.ttl
}

// Get returns the entry for videoID while it is fresh. A stale entry is
// deleted and reported as a miss.
func (c *VideoCache) Get(ctx context.Context, videoID string) (*models.CachedVideoEntry, bool, error) {
	key := cacheKey(videoID)

	var entry models.CachedVideoEntry
	ok, err := GetJSON(ctx, c.store, key, &entry)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	if c.expired(&entry) {
		if err := c.store.Remove(ctx, key); err != nil {
			c.log.WithError(err).WithField("video_id", videoID).Warn("Failed to remove expired cache entry")
		}
		return nil, false, nil
	}
	return &entry, true, nil
}

// Put overwrites whatever is cached for entry.VideoID.
func (c *VideoCache) Put(ctx context.Context, entry *models.CachedVideoEntry) error {
	if err := SetJSON(ctx, c.store, cacheKey(entry.VideoID), entry); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// UpdatePersonaResearch sets research on every persona named personaName and
// rewrites the entry. Nothing happens when the video is not cached.
func (c *VideoCache) UpdatePersonaResearch(ctx context.Context, videoID, personaName, research string) error {
	entry, ok, err := c.Get(ctx, videoID)
	if err != nil || !ok {
		return err
	}

	personas := make([]models.Persona, len(entry.Personas))
	for i, p := range entry.Personas {
		if p.Name == personaName {
			p.Research = research
		}
		personas[i] = p
	}
	entry.Personas = personas

	return c.Put(ctx, entry)
}

// SweepExpired deletes every stale entry and returns how many were removed.
func (c *VideoCache) SweepExpired(ctx context.Context) (int, error) {
	keys, err := c.store.Keys(ctx, CachePrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list cache keys: %w", err)
	}

	removed := 0
	for _, key := range keys {
		var entry models.CachedVideoEntry
		ok, err := GetJSON(ctx, c.store, key, &entry)
		if err != nil {
			return removed, fmt.Errorf("failed to read cache entry %s: %w", key, err)
		}
		if !ok || !c.expired(&entry) {
			continue
		}
		if err := c.store.Remove(ctx, key); err != nil {
			return removed, fmt.Errorf("failed to remove cache entry %s: %w", key, err)
		}
		removed++
	}

	if removed > 0 {
		c.log.WithField("count", removed).Info("Cleared expired cache entries")
	}
	return removed, nil
}
